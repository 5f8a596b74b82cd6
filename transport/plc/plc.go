package plc

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rcll/mps-refbox/mpslog"
	"github.com/rcll/mps-refbox/mpsreg"
	"github.com/rcll/mps-refbox/transport"
)

// pollInterval is how often the background poller re-reads every
// subscribed register to synthesize change events, since Modbus/TCP has
// no server push. Grounded on miner.worker.newWorkLoop's use of a fixed
// recommit/poll timer driving a standalone goroutine.
const pollInterval = 50 * time.Millisecond

const dialTimeout = 5 * time.Second
const ioTimeout = 2 * time.Second

// defaultRegisterAddr maps the symbolic register set to Modbus
// holding-register addresses. The numeric addresses are a deployment
// detail per SPEC_FULL.md §6; every PLC Transport uses this table unless
// it is overridden per deployment with WithRegisterMap.
var defaultRegisterAddr = map[mpsreg.Register]uint16{
	mpsreg.ACTION:          0,
	mpsreg.DATA0:           1,
	mpsreg.DATA1:           2,
	mpsreg.DATA2:           3,
	mpsreg.DATA3:           4,
	mpsreg.STATUS_ENABLE:   5,
	mpsreg.STATUS_READY_IN: 6,
	mpsreg.STATUS_BUSY_IN:  7,
	mpsreg.BARCODE_IN:      8,
	mpsreg.SLIDECOUNT_IN:   9,
	mpsreg.LIGHT_RED:       10,
	mpsreg.LIGHT_YELLOW:    11,
	mpsreg.LIGHT_GREEN:     12,
	mpsreg.LIGHT_DURATION:  13,
	mpsreg.HEARTBEAT:       14,
}

// boolRegisters are treated as a single 0/1 holding register rather than a
// 16-bit integer.
var boolRegisters = map[mpsreg.Register]bool{
	mpsreg.STATUS_ENABLE:   true,
	mpsreg.STATUS_READY_IN: true,
	mpsreg.STATUS_BUSY_IN:  true,
}

// Transport is the Modbus/TCP PLC backend. One Transport serves exactly
// one station, addressed by UnitID.
type Transport struct {
	Host   string
	Port   uint16
	UnitID byte

	mu        sync.Mutex
	conn      net.Conn
	connected bool
	nextTxID  uint16
	regAddr   map[mpsreg.Register]uint16

	subMu sync.Mutex
	subs  map[mpsreg.Register][]transport.Callback
	last  map[mpsreg.Register]mpsreg.Value

	pollStop chan struct{}
	pollDone chan struct{}

	log *mpslog.Logger
}

// New creates a PLC transport for the given host/port/unit, disconnected.
func New(host string, port uint16, unitID byte) *Transport {
	return &Transport{
		Host:    host,
		Port:    port,
		UnitID:  unitID,
		regAddr: defaultRegisterAddr,
		subs:    make(map[mpsreg.Register][]transport.Callback),
		last:    make(map[mpsreg.Register]mpsreg.Value),
		log:     mpslog.Root.With(fmt.Sprintf("plc:%s:%d/%d", host, port, unitID)),
	}
}

// WithRegisterMap overrides the symbolic-to-Modbus-address table, for
// stations whose wiring doesn't match the default layout.
func (t *Transport) WithRegisterMap(m map[mpsreg.Register]uint16) *Transport {
	t.regAddr = m
	return t
}

func (t *Transport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected {
		return nil
	}
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", t.Host, t.Port), dialTimeout)
	if err != nil {
		return transport.NewError("connect", transport.Disconnected, err)
	}
	t.conn = conn
	t.connected = true
	t.pollStop = make(chan struct{})
	t.pollDone = make(chan struct{})
	go t.pollLoop(t.pollStop, t.pollDone)
	t.log.Info("connected")
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	conn := t.conn
	stop := t.pollStop
	done := t.pollDone
	t.connected = false
	t.conn = nil
	t.pollStop = nil
	t.pollDone = nil
	t.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *Transport) Write(reg mpsreg.Register, val mpsreg.Value) error {
	addr, ok := t.regAddr[reg]
	if !ok {
		return transport.NewError("write", transport.ProtocolError, fmt.Errorf("unmapped register %s", reg))
	}
	raw := encodeRegisterValue(reg, val)

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return transport.NewError("write", transport.Disconnected, nil)
	}
	txID := t.txID()
	frame := encodeWriteSingleRegister(txID, t.UnitID, addr, raw)
	if err := t.roundTrip(frame); err != nil {
		return transport.NewError("write", transport.ProtocolError, err)
	}
	return nil
}

func (t *Transport) Read(reg mpsreg.Register) (mpsreg.Value, error) {
	addr, ok := t.regAddr[reg]
	if !ok {
		return mpsreg.Value{}, transport.NewError("read", transport.ProtocolError, fmt.Errorf("unmapped register %s", reg))
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return mpsreg.Value{}, transport.NewError("read", transport.Disconnected, nil)
	}
	txID := t.txID()
	frame := encodeReadHoldingRegisters(txID, t.UnitID, addr, 1)
	resp, err := t.roundTripResponse(frame)
	if err != nil {
		return mpsreg.Value{}, transport.NewError("read", transport.ProtocolError, err)
	}
	regs, err := decodeHoldingRegisters(resp)
	if err != nil || len(regs) < 1 {
		return mpsreg.Value{}, transport.NewError("read", transport.ProtocolError, err)
	}
	return decodeRegisterValue(reg, regs[0]), nil
}

func (t *Transport) Subscribe(reg mpsreg.Register, cb transport.Callback) (transport.Unsubscribe, error) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	t.subs[reg] = append(t.subs[reg], cb)
	idx := len(t.subs[reg]) - 1
	return func() {
		t.subMu.Lock()
		defer t.subMu.Unlock()
		if idx < len(t.subs[reg]) {
			t.subs[reg][idx] = nil
		}
	}, nil
}

// pollLoop re-reads every subscribed register on a fixed interval and
// fires callbacks for any that changed, synthesizing the change-event
// semantics OPC-UA would give natively. Runs on its own goroutine and
// must never block the caller — matches the "callbacks arrive on their
// own thread" ordering contract in SPEC_FULL.md §5.
func (t *Transport) pollLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.pollOnce()
		}
	}
}

func (t *Transport) pollOnce() {
	t.subMu.Lock()
	regs := make([]mpsreg.Register, 0, len(t.subs))
	for r, cbs := range t.subs {
		if len(cbs) > 0 {
			regs = append(regs, r)
		}
	}
	t.subMu.Unlock()

	for _, reg := range regs {
		val, err := t.Read(reg)
		if err != nil {
			continue
		}
		t.subMu.Lock()
		prev, seen := t.last[reg]
		changed := !seen || prev != val
		if changed {
			t.last[reg] = val
		}
		cbs := append([]transport.Callback(nil), t.subs[reg]...)
		t.subMu.Unlock()

		if changed {
			for _, cb := range cbs {
				if cb != nil {
					cb(val)
				}
			}
		}
	}
}

func (t *Transport) txID() uint16 {
	t.nextTxID++
	return t.nextTxID
}

func (t *Transport) roundTrip(frame []byte) error {
	_, err := t.roundTripResponse(frame)
	return err
}

func (t *Transport) roundTripResponse(frame []byte) ([]byte, error) {
	if t.conn == nil {
		return nil, fmt.Errorf("not connected")
	}
	t.conn.SetDeadline(time.Now().Add(ioTimeout))
	if _, err := t.conn.Write(frame); err != nil {
		t.connected = false
		return nil, err
	}
	header := make([]byte, 7)
	if _, err := readFull(t.conn, header); err != nil {
		t.connected = false
		return nil, err
	}
	length := int(header[4])<<8 | int(header[5])
	if length < 1 {
		return nil, fmt.Errorf("modbus: invalid response length")
	}
	pdu := make([]byte, length-1)
	if len(pdu) > 0 {
		if _, err := readFull(t.conn, pdu); err != nil {
			t.connected = false
			return nil, err
		}
	}
	full := append(header, pdu...)
	_, respPDU, err := decodeADU(full)
	return respPDU, err
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func encodeRegisterValue(reg mpsreg.Register, val mpsreg.Value) uint16 {
	if boolRegisters[reg] {
		if val.AsBool() {
			return 1
		}
		return 0
	}
	switch val.Kind {
	case mpsreg.KindUint16:
		return val.Uint16
	case mpsreg.KindInt32:
		return uint16(val.Int32)
	default:
		return 0
	}
}

func decodeRegisterValue(reg mpsreg.Register, raw uint16) mpsreg.Value {
	if boolRegisters[reg] {
		return mpsreg.BoolValue(raw != 0)
	}
	if reg == mpsreg.BARCODE_IN {
		return mpsreg.Int32Value(int32(raw))
	}
	return mpsreg.Uint16Value(raw)
}

// Package simulation is the TCP Transport backend used against the
// external MPS simulator. The simulator is a collaborator outside this
// repository's control, so the wire format is kept deliberately simple:
// length-prefixed JSON frames over a single persistent connection,
// grounded on the teacher's RPC framing idiom rather than its binary
// peer-to-peer wire codec (rlp), since JSON is what the simulator
// actually speaks.
package simulation

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/rcll/mps-refbox/mpslog"
	"github.com/rcll/mps-refbox/mpsreg"
	"github.com/rcll/mps-refbox/transport"
)

// frame is the wire shape of one message in either direction: a write
// request/response, or an unsolicited register-change push.
type frame struct {
	Register mpsreg.Register `json:"register"`
	Kind     mpsreg.Kind     `json:"kind"`
	Bool     bool            `json:"bool,omitempty"`
	Uint16   uint16          `json:"uint16,omitempty"`
	Int32    int32           `json:"int32,omitempty"`
}

func valueToFrame(reg mpsreg.Register, v mpsreg.Value) frame {
	return frame{Register: reg, Kind: v.Kind, Bool: v.Bool, Uint16: v.Uint16, Int32: v.Int32}
}

func (f frame) value() mpsreg.Value {
	return mpsreg.Value{Kind: f.Kind, Bool: f.Bool, Uint16: f.Uint16, Int32: f.Int32}
}

const (
	dialTimeout     = 5 * time.Second
	ioTimeout       = 2 * time.Second
	barcodeCacheLen = 64

	minBackoff = 250 * time.Millisecond
	maxBackoff = 10 * time.Second
)

// Transport is the Simulation backend: one persistent TCP connection to
// the simulator, carrying length-prefixed JSON frames in both
// directions.
type Transport struct {
	Addr string

	mu        sync.Mutex
	conn      net.Conn
	connected bool
	reader    *bufio.Reader

	subMu sync.Mutex
	subs  map[mpsreg.Register][]transport.Callback
	last  map[mpsreg.Register]mpsreg.Value

	// barcodes de-duplicates repeated BARCODE_IN pushes the simulator is
	// known to occasionally resend for the same physical scan.
	barcodes *lru.Cache

	readStop chan struct{}
	readDone chan struct{}

	log *mpslog.Logger
}

// New creates a Simulation transport for the given "host:port" address.
func New(addr string) *Transport {
	cache, _ := lru.New(barcodeCacheLen)
	return &Transport{
		Addr:     addr,
		subs:     make(map[mpsreg.Register][]transport.Callback),
		last:     make(map[mpsreg.Register]mpsreg.Value),
		barcodes: cache,
		log:      mpslog.Root.With(fmt.Sprintf("simulation:%s", addr)),
	}
}

func (t *Transport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected {
		return nil
	}
	conn, err := net.DialTimeout("tcp", t.Addr, dialTimeout)
	if err != nil {
		return transport.NewError("connect", transport.Disconnected, err)
	}
	t.conn = conn
	t.reader = bufio.NewReader(conn)
	t.connected = true
	t.readStop = make(chan struct{})
	t.readDone = make(chan struct{})
	go t.readLoop(t.readStop, t.readDone)
	t.log.Info("connected")
	return nil
}

// ConnectWithBackoff retries Connect with exponential backoff up to
// maxBackoff, stopping early if stop is closed, after the legacy SPS
// controller's try_reconnect loop. Only the Simulation backend has this
// method; the PLC and Mockup backends have no backoff loop, and nothing
// in this repository calls it.
func (t *Transport) ConnectWithBackoff(stop <-chan struct{}) error {
	backoff := minBackoff
	for {
		err := t.Connect()
		if err == nil {
			return nil
		}
		select {
		case <-stop:
			return err
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (t *Transport) Close() error {
	t.mu.Lock()
	conn := t.conn
	stop := t.readStop
	done := t.readDone
	t.connected = false
	t.conn = nil
	t.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if conn != nil {
		err := conn.Close()
		if done != nil {
			<-done
		}
		return err
	}
	return nil
}

func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *Transport) Write(reg mpsreg.Register, val mpsreg.Value) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return transport.NewError("write", transport.Disconnected, nil)
	}
	if err := t.writeFrame(valueToFrame(reg, val)); err != nil {
		t.connected = false
		return transport.NewError("write", transport.ProtocolError, err)
	}
	return nil
}

// Read returns the register's most recently pushed value. The
// Simulation protocol is push based and the single connection belongs
// to readLoop, so Read never issues a wire round trip of its own — it
// answers from the value cache dispatch maintains, and a register the
// simulator has never pushed reads as the zero value.
func (t *Transport) Read(reg mpsreg.Register) (mpsreg.Value, error) {
	t.mu.Lock()
	connected := t.connected
	t.mu.Unlock()
	if !connected {
		return mpsreg.Value{}, transport.NewError("read", transport.Disconnected, nil)
	}
	t.subMu.Lock()
	defer t.subMu.Unlock()
	return t.last[reg], nil
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

// readLoop drains unsolicited pushes from the simulator and dispatches
// them to subscribers. Grounded on miner.worker.mainLoop's
// select-driven event dispatch.
func (t *Transport) readLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}
		f, err := t.readFrame()
		if err != nil {
			t.mu.Lock()
			t.connected = false
			t.mu.Unlock()
			t.log.Warn("simulation read failed", "err", err)
			return
		}
		t.dispatch(f)
	}
}

func (t *Transport) dispatch(f frame) {
	if f.Register == mpsreg.BARCODE_IN && t.barcodes != nil {
		key := f.Int32
		if t.barcodes.Contains(key) {
			return
		}
		t.barcodes.Add(key, struct{}{})
	}

	val := f.value()
	t.subMu.Lock()
	t.last[f.Register] = val
	cbs := append([]transport.Callback(nil), t.subs[f.Register]...)
	t.subMu.Unlock()

	for _, cb := range cbs {
		if cb != nil {
			cb(val)
		}
	}
}

func (t *Transport) writeFrame(f frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}
	hdr := make([]byte, 4)
	binary.BigEndian.PutUint32(hdr, uint32(len(payload)))
	t.conn.SetWriteDeadline(time.Now().Add(ioTimeout))
	if _, err := t.conn.Write(hdr); err != nil {
		return err
	}
	_, err = t.conn.Write(payload)
	return err
}

func (t *Transport) readFrame() (frame, error) {
	hdr := make([]byte, 4)
	if _, err := io.ReadFull(t.reader, hdr); err != nil {
		return frame{}, err
	}
	n := binary.BigEndian.Uint32(hdr)
	if n > 1<<20 {
		return frame{}, fmt.Errorf("simulation: frame too large (%d bytes)", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(t.reader, payload); err != nil {
		return frame{}, err
	}
	var f frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return frame{}, err
	}
	return f, nil
}

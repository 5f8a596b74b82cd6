package simulation

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcll/mps-refbox/mpsreg"
	"github.com/rcll/mps-refbox/transport"
)

// fakeSimulator accepts one connection and lets the test push frames to
// the client and read frames the client wrote.
type fakeSimulator struct {
	ln net.Listener

	mu   sync.Mutex
	conn net.Conn
}

func startFakeSimulator(t *testing.T) *fakeSimulator {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeSimulator{ln: ln}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
	}()
	t.Cleanup(func() {
		ln.Close()
		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.mu.Unlock()
	})
	return s
}

func (s *fakeSimulator) waitConn(t *testing.T) net.Conn {
	t.Helper()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.conn != nil
	}, time.Second, time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *fakeSimulator) push(t *testing.T, f frame) {
	t.Helper()
	payload, err := json.Marshal(f)
	require.NoError(t, err)
	hdr := make([]byte, 4)
	binary.BigEndian.PutUint32(hdr, uint32(len(payload)))
	conn := s.waitConn(t)
	_, err = conn.Write(append(hdr, payload...))
	require.NoError(t, err)
}

func (s *fakeSimulator) readFrame(t *testing.T) frame {
	t.Helper()
	conn := s.waitConn(t)
	hdr := make([]byte, 4)
	_, err := io.ReadFull(conn, hdr)
	require.NoError(t, err)
	payload := make([]byte, binary.BigEndian.Uint32(hdr))
	_, err = io.ReadFull(conn, payload)
	require.NoError(t, err)
	var f frame
	require.NoError(t, json.Unmarshal(payload, &f))
	return f
}

func connectedClient(t *testing.T, s *fakeSimulator) *Transport {
	t.Helper()
	tr := New(s.ln.Addr().String())
	require.NoError(t, tr.Connect())
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestConnectFailsWhenSimulatorAbsent(t *testing.T) {
	tr := New("127.0.0.1:1")
	err := tr.Connect()
	require.Error(t, err)
	assert.True(t, transport.IsDisconnected(err))
}

func TestConnectWithBackoffStopsWhenAsked(t *testing.T) {
	tr := New("127.0.0.1:1")
	stop := make(chan struct{})
	close(stop)
	err := tr.ConnectWithBackoff(stop)
	require.Error(t, err)
}

func TestWriteSendsOneFrame(t *testing.T) {
	s := startFakeSimulator(t)
	tr := connectedClient(t, s)

	require.NoError(t, tr.Write(mpsreg.ACTION, mpsreg.Uint16Value(9)))

	f := s.readFrame(t)
	assert.Equal(t, mpsreg.ACTION, f.Register)
	assert.Equal(t, uint16(9), f.Uint16)
}

func TestPushDispatchesToSubscribers(t *testing.T) {
	s := startFakeSimulator(t)
	tr := connectedClient(t, s)

	var mu sync.Mutex
	var got []mpsreg.Value
	_, err := tr.Subscribe(mpsreg.STATUS_BUSY_IN, func(v mpsreg.Value) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
	})
	require.NoError(t, err)

	s.push(t, frame{Register: mpsreg.STATUS_BUSY_IN, Kind: mpsreg.KindBool, Bool: true})
	s.push(t, frame{Register: mpsreg.STATUS_BUSY_IN, Kind: mpsreg.KindBool, Bool: false})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.True(t, got[0].AsBool())
	assert.False(t, got[1].AsBool())
}

func TestRepeatedBarcodePushIsDeduplicated(t *testing.T) {
	s := startFakeSimulator(t)
	tr := connectedClient(t, s)

	var mu sync.Mutex
	var got []int32
	_, err := tr.Subscribe(mpsreg.BARCODE_IN, func(v mpsreg.Value) {
		mu.Lock()
		got = append(got, v.Int32)
		mu.Unlock()
	})
	require.NoError(t, err)

	s.push(t, frame{Register: mpsreg.BARCODE_IN, Kind: mpsreg.KindInt32, Int32: 42})
	s.push(t, frame{Register: mpsreg.BARCODE_IN, Kind: mpsreg.KindInt32, Int32: 42})
	s.push(t, frame{Register: mpsreg.BARCODE_IN, Kind: mpsreg.KindInt32, Int32: 43})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int32{42, 43}, got)
}

func TestReadBeforeConnectFails(t *testing.T) {
	tr := New("127.0.0.1:1")
	_, err := tr.Read(mpsreg.ACTION)
	require.Error(t, err)
	assert.True(t, transport.IsDisconnected(err))
}

func TestReadReturnsLastPushedValue(t *testing.T) {
	s := startFakeSimulator(t)
	tr := connectedClient(t, s)

	v, err := tr.Read(mpsreg.SLIDECOUNT_IN)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), v.Uint16, "a never-pushed register reads as the zero value")

	s.push(t, frame{Register: mpsreg.SLIDECOUNT_IN, Kind: mpsreg.KindUint16, Uint16: 7})

	require.Eventually(t, func() bool {
		v, err := tr.Read(mpsreg.SLIDECOUNT_IN)
		return err == nil && v.Uint16 == 7
	}, time.Second, time.Millisecond)
}

func TestFrameTooLargeIsRejected(t *testing.T) {
	s := startFakeSimulator(t)
	tr := connectedClient(t, s)

	conn := s.waitConn(t)
	hdr := make([]byte, 4)
	binary.BigEndian.PutUint32(hdr, 1<<24)
	_, err := conn.Write(hdr)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return !tr.Connected() }, time.Second, time.Millisecond)
}

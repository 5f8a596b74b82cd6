package fleet_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcll/mps-refbox/fleet"
	"github.com/rcll/mps-refbox/mpsreg"
	"github.com/rcll/mps-refbox/station"
	"github.com/rcll/mps-refbox/transport/mockup"
)

func newConnectedBase(t *testing.T, name station.Name) (*station.BaseStation, *mockup.Transport) {
	t.Helper()
	tr := mockup.New()
	s := station.NewBaseStation(name, tr, station.Callbacks{})
	require.NoError(t, s.Connect())
	return s, tr
}

func TestFleetLookupByVariety(t *testing.T) {
	fl := fleet.New()
	base, _ := newConnectedBase(t, "C-BS")
	fl.Add(base)

	got, ok := fl.Station("C-BS")
	assert.True(t, ok)
	assert.Equal(t, station.Name("C-BS"), got.Name())

	_, ok = fl.Station("X-ZZ")
	assert.False(t, ok)

	_, ok = fl.Base("C-BS")
	assert.True(t, ok)

	_, ok = fl.Ring("C-BS")
	assert.False(t, ok, "a Base station must not satisfy a Ring lookup")
}

func TestFleetIssueSerializesPerStation(t *testing.T) {
	fl := fleet.New()
	base, _ := newConnectedBase(t, "C-BS")
	fl.Add(base)

	var running int32
	blocker := make(chan struct{})
	op := func() error {
		atomic.AddInt32(&running, 1)
		<-blocker
		return nil
	}

	var onDoneCalls int32
	ticket1, ok1 := fl.Issue("C-BS", "op", op, func(error) { atomic.AddInt32(&onDoneCalls, 1) })
	require.True(t, ok1)
	require.NotNil(t, ticket1)

	// Give the worker a moment to actually start op before issuing again.
	time.Sleep(10 * time.Millisecond)

	ticket2, ok2 := fl.Issue("C-BS", "op", op, nil)
	assert.False(t, ok2, "a second command while the first is outstanding must be dropped")
	assert.Nil(t, ticket2)

	close(blocker)
	require.NoError(t, ticket1.Wait())
	assert.Equal(t, int32(1), atomic.LoadInt32(&running), "op must only have run once")
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&onDoneCalls) == 1 }, time.Second, time.Millisecond)
}

func TestFleetIssueAllowsNewCommandAfterCompletion(t *testing.T) {
	fl := fleet.New()
	base, _ := newConnectedBase(t, "C-BS")
	fl.Add(base)

	ticket1, ok := fl.Issue("C-BS", "op", func() error { return nil }, nil)
	require.True(t, ok)
	require.NoError(t, ticket1.Wait())

	ticket2, ok := fl.Issue("C-BS", "op", func() error { return nil }, nil)
	assert.True(t, ok)
	require.NoError(t, ticket2.Wait())
}

func TestFleetProcessEmitsCoarseState(t *testing.T) {
	fl := fleet.New()
	base, tr := newConnectedBase(t, "C-BS")
	fl.Add(base)

	ticks := fl.Process()
	require.Len(t, ticks, 1)
	assert.Equal(t, "C-BS", ticks[0].Name)
	assert.Equal(t, "IDLE", ticks[0].State)
	assert.Equal(t, uint16(0), ticks[0].NumBases)

	tr.Fire(mpsreg.STATUS_BUSY_IN, mpsreg.BoolValue(true))
	ticks = fl.Process()
	require.Len(t, ticks, 1)
	assert.Equal(t, "BUSY", ticks[0].State)
}

func TestFleetProcessReportsRingSlideCounter(t *testing.T) {
	fl := fleet.New()
	tr := mockup.New()
	r := station.NewRingStation("M-RS1", tr, station.Callbacks{}, nil)
	require.NoError(t, r.Connect())
	fl.Add(r)

	tr.Fire(mpsreg.SLIDECOUNT_IN, mpsreg.Uint16Value(7))

	ticks := fl.Process()
	require.Len(t, ticks, 1)
	assert.Equal(t, uint16(7), ticks[0].NumBases)
}

func TestFleetProcessIsAtomicAcrossStations(t *testing.T) {
	fl := fleet.New()
	for _, name := range []station.Name{"C-BS1", "C-BS2", "C-BS3"} {
		base, _ := newConnectedBase(t, name)
		fl.Add(base)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			ticks := fl.Process()
			assert.Len(t, ticks, 3)
		}
	}()
	wg.Wait()
}

func TestFleetShutdownWaitsForOutstandingTickets(t *testing.T) {
	fl := fleet.New()
	base, _ := newConnectedBase(t, "C-BS")
	fl.Add(base)

	var ran int32
	fl.Issue("C-BS", "op", func() error {
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&ran, 1)
		return nil
	}, nil)

	fl.Shutdown(time.Second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
}

package mpsconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcll/mps-refbox/enginebridge"
	"github.com/rcll/mps-refbox/station"
)

func TestUnitIDForTrailingDigit(t *testing.T) {
	assert.Equal(t, byte(1), unitIDFor(station.Name("M-RS1")))
	assert.Equal(t, byte(2), unitIDFor(station.Name("M-RS2")))
	assert.Equal(t, byte(1), unitIDFor(station.Name("C-BS")))
	assert.Equal(t, byte(1), unitIDFor(station.Name("")))
}

func TestRingCostsNilWithoutOverrides(t *testing.T) {
	sc := StationConfig{Type: "RS"}
	assert.Nil(t, ringCosts(sc))
}

func TestRingCostsMergesOverridesOntoDefaults(t *testing.T) {
	sc := StationConfig{Type: "RS", RingCosts: map[string]uint16{"ORANGE": 5}}
	out := ringCosts(sc)
	require.NotNil(t, out)
	assert.Equal(t, uint16(5), out[station.RingOrange])
	assert.Equal(t, station.DefaultRingCosts[station.RingBlue], out[station.RingBlue])
}

func TestBuildFleetWithMockupStations(t *testing.T) {
	cfg := Config{
		Enable:     true,
		Connection: "mockup",
		Stations: map[string]StationConfig{
			"C-BS":  {Type: "BS", Active: true},
			"C-CS1": {Type: "CS", Active: true},
			"M-RS1": {Type: "RS", Active: true},
			"C-DS":  {Type: "DS", Active: true},
			"X-XX":  {Type: "BS", Active: false},
		},
	}

	fl, bridge, err := NewBridge(cfg, enginebridge.NewNopEngine())
	require.NoError(t, err)
	require.NotNil(t, bridge)

	names := fl.Names()
	assert.Len(t, names, 4, "the inactive station must not be built")

	_, ok := fl.Base("C-BS")
	assert.True(t, ok)
	_, ok = fl.Cap("C-CS1")
	assert.True(t, ok)
	_, ok = fl.Ring("M-RS1")
	assert.True(t, ok)
	_, ok = fl.Delivery("C-DS")
	assert.True(t, ok)

	_, ok = fl.Station("X-XX")
	assert.False(t, ok)
}

func TestBuildFleetRejectsUnrecognizedType(t *testing.T) {
	cfg := Config{
		Connection: "mockup",
		Stations: map[string]StationConfig{
			"C-ZZ": {Type: "ZZ", Active: true},
		},
	}
	_, _, err := NewBridge(cfg, enginebridge.NewNopEngine())
	require.Error(t, err)
}

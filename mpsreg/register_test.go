package mpsreg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegisterString(t *testing.T) {
	tests := []struct {
		reg  Register
		want string
	}{
		{ACTION, "ACTION"},
		{STATUS_BUSY_IN, "STATUS_BUSY_IN"},
		{SLIDECOUNT_IN, "SLIDECOUNT_IN"},
		{Register(999), "UNKNOWN_REGISTER"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.reg.String())
	}
}

func TestDataSlot(t *testing.T) {
	assert.Equal(t, DATA0, DataSlot(0))
	assert.Equal(t, DATA1, DataSlot(1))
	assert.Equal(t, DATA3, DataSlot(3))
}

func TestValueAsBool(t *testing.T) {
	assert.True(t, BoolValue(true).AsBool())
	assert.False(t, BoolValue(false).AsBool())
	assert.True(t, Uint16Value(1).AsBool())
	assert.False(t, Uint16Value(0).AsBool())
	assert.True(t, Int32Value(-1).AsBool())
	assert.False(t, Int32Value(0).AsBool())
}

package plc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeReadHoldingRegisters(t *testing.T) {
	frame := encodeReadHoldingRegisters(0x0102, 3, 0x0007, 1)

	require.Len(t, frame, 12)
	assert.Equal(t, []byte{0x01, 0x02}, frame[0:2], "transaction id")
	assert.Equal(t, []byte{0x00, 0x00}, frame[2:4], "protocol id")
	assert.Equal(t, []byte{0x00, 0x06}, frame[4:6], "length covers unit id + pdu")
	assert.Equal(t, byte(3), frame[6], "unit id")
	assert.Equal(t, byte(fnReadHoldingRegisters), frame[7])
	assert.Equal(t, []byte{0x00, 0x07, 0x00, 0x01}, frame[8:12])
}

func TestEncodeWriteSingleRegister(t *testing.T) {
	frame := encodeWriteSingleRegister(1, 1, 0x0005, 0xBEEF)

	require.Len(t, frame, 12)
	assert.Equal(t, byte(fnWriteSingleRegister), frame[7])
	assert.Equal(t, []byte{0x00, 0x05, 0xBE, 0xEF}, frame[8:12])
}

func TestDecodeADURejectsShortFrame(t *testing.T) {
	_, _, err := decodeADU([]byte{0, 1, 0, 0, 0, 2, 1})
	require.Error(t, err)
}

func TestDecodeADUReportsException(t *testing.T) {
	// Exception response: function code with the high bit set, one
	// exception-code byte.
	frame := []byte{0, 1, 0, 0, 0, 3, 1, 0x83, 0x02}
	_, _, err := decodeADU(frame)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exception")
}

func TestDecodeADURoundTrip(t *testing.T) {
	sent := encodeWriteSingleRegister(7, 2, 10, 99)
	hdr, pdu, err := decodeADU(sent)
	require.NoError(t, err)
	assert.Equal(t, uint16(7), hdr.transactionID)
	assert.Equal(t, byte(2), hdr.unitID)
	assert.Equal(t, byte(fnWriteSingleRegister), pdu[0])
}

func TestDecodeHoldingRegisters(t *testing.T) {
	pdu := []byte{fnReadHoldingRegisters, 4, 0x00, 0x2A, 0xFF, 0xFF}
	regs, err := decodeHoldingRegisters(pdu)
	require.NoError(t, err)
	require.Len(t, regs, 2)
	assert.Equal(t, uint16(42), regs[0])
	assert.Equal(t, uint16(0xFFFF), regs[1])
}

func TestDecodeHoldingRegistersRejectsMalformed(t *testing.T) {
	_, err := decodeHoldingRegisters([]byte{fnReadHoldingRegisters})
	require.Error(t, err)

	_, err = decodeHoldingRegisters([]byte{fnReadHoldingRegisters, 3, 0, 0, 0})
	require.Error(t, err, "odd byte count")

	_, err = decodeHoldingRegisters([]byte{fnReadHoldingRegisters, 4, 0, 0})
	require.Error(t, err, "byte count past end of pdu")
}

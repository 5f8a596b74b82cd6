// Package plc is the PLC Transport backend. It speaks Modbus/TCP — the
// compile profile this repository targets, per SPEC_FULL.md §4.1 — over a
// single-server TCP connection, one station per unit id. This file holds
// the minimal Modbus/TCP ADU codec; it intentionally implements only the
// function codes this repository's register map needs (read/write holding
// registers), in the teacher's small-codec idiom (rlp's ParseTypeByHead /
// ParseTypeByEnd: just enough wire parsing for the caller's concrete need).
package plc

import (
	"encoding/binary"
	"fmt"
)

const (
	fnReadHoldingRegisters  = 0x03
	fnWriteSingleRegister   = 0x06
	fnWriteMultipleRegister = 0x10
)

// aduHeader is the 7-byte MBAP header prefixed to every Modbus/TCP frame.
type aduHeader struct {
	transactionID uint16
	protocolID    uint16
	length        uint16
	unitID        byte
}

func encodeReadHoldingRegisters(txID uint16, unitID byte, addr, count uint16) []byte {
	pdu := []byte{fnReadHoldingRegisters, 0, 0, 0, 0}
	binary.BigEndian.PutUint16(pdu[1:3], addr)
	binary.BigEndian.PutUint16(pdu[3:5], count)
	return encodeADU(txID, unitID, pdu)
}

func encodeWriteSingleRegister(txID uint16, unitID byte, addr, value uint16) []byte {
	pdu := []byte{fnWriteSingleRegister, 0, 0, 0, 0}
	binary.BigEndian.PutUint16(pdu[1:3], addr)
	binary.BigEndian.PutUint16(pdu[3:5], value)
	return encodeADU(txID, unitID, pdu)
}

func encodeADU(txID uint16, unitID byte, pdu []byte) []byte {
	buf := make([]byte, 7+len(pdu))
	binary.BigEndian.PutUint16(buf[0:2], txID)
	binary.BigEndian.PutUint16(buf[2:4], 0) // protocol id is always 0 for Modbus/TCP
	binary.BigEndian.PutUint16(buf[4:6], uint16(len(pdu)+1))
	buf[6] = unitID
	copy(buf[7:], pdu)
	return buf
}

// decodeADU splits a received frame into its header and PDU, and reports a
// Modbus exception as an error.
func decodeADU(frame []byte) (aduHeader, []byte, error) {
	if len(frame) < 8 {
		return aduHeader{}, nil, fmt.Errorf("modbus: short frame (%d bytes)", len(frame))
	}
	hdr := aduHeader{
		transactionID: binary.BigEndian.Uint16(frame[0:2]),
		protocolID:    binary.BigEndian.Uint16(frame[2:4]),
		length:        binary.BigEndian.Uint16(frame[4:6]),
		unitID:        frame[6],
	}
	pdu := frame[7:]
	if len(pdu) > 0 && pdu[0]&0x80 != 0 {
		code := byte(0)
		if len(pdu) > 1 {
			code = pdu[1]
		}
		return hdr, pdu, fmt.Errorf("modbus: exception response, function=%#x code=%#x", pdu[0]&0x7F, code)
	}
	return hdr, pdu, nil
}

// decodeHoldingRegisters extracts the register values from a read-holding-
// registers response PDU.
func decodeHoldingRegisters(pdu []byte) ([]uint16, error) {
	if len(pdu) < 2 {
		return nil, fmt.Errorf("modbus: short read response")
	}
	byteCount := int(pdu[1])
	if len(pdu) < 2+byteCount || byteCount%2 != 0 {
		return nil, fmt.Errorf("modbus: malformed read response")
	}
	out := make([]uint16, byteCount/2)
	for i := range out {
		out[i] = binary.BigEndian.Uint16(pdu[2+2*i : 4+2*i])
	}
	return out, nil
}

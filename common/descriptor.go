package common

import (
	"fmt"
)

const (
	// MaxAccountSerial is the highest encodable destination account serial
	// (28 bits: 4-bit control nibble + up to 3 trailing bytes).
	MaxAccountSerial = uint32(0x0FFFFFFF)

	// MaxSubjectLen is the maximum length of the destination subject.
	MaxSubjectLen = 32

	reservedBitsMask = 0xC0
	lenSelectorShift = 4
	serialNibbleMask = 0x0F
)

// DepositDescriptor routes a deposit to a destination account and subject
// within the rollup's account namespace.
//
// Wire layout is [control:1][serial:1..=3][subject:0..=32], big-endian.
// The control byte reserves its top 2 bits, selects the serial length with the
// next 2 bits (00 -> 1 byte, 01 -> 2, 10 -> 3, 11 -> invalid) and carries the
// serial's most-significant nibble in its bottom 4 bits. The subject is the
// remainder of the buffer, so a descriptor can only be the last field of its
// enclosing container.
type DepositDescriptor struct {
	AccountSerial uint32
	Subject       []byte
}

// NewDepositDescriptor validates the serial and subject bounds and returns
// the descriptor value.
func NewDepositDescriptor(serial uint32, subject []byte) (*DepositDescriptor, error) {
	if serial > MaxAccountSerial {
		return nil, fmt.Errorf("account serial %d exceeds %d", serial, MaxAccountSerial)
	}
	if len(subject) > MaxSubjectLen {
		return nil, fmt.Errorf("subject length %d exceeds %d bytes", len(subject), MaxSubjectLen)
	}
	return &DepositDescriptor{AccountSerial: serial, Subject: subject}, nil
}

// Encode serializes the descriptor, always picking the minimal serial length
// for the value.
func (d *DepositDescriptor) Encode() ([]byte, error) {
	if d.AccountSerial > MaxAccountSerial {
		return nil, fmt.Errorf(
			"account serial %d exceeds %d", d.AccountSerial, MaxAccountSerial,
		)
	}
	if len(d.Subject) > MaxSubjectLen {
		return nil, fmt.Errorf(
			"subject length %d exceeds %d bytes", len(d.Subject), MaxSubjectLen,
		)
	}

	var serialBytes int
	switch {
	case d.AccountSerial <= 0xFFF:
		serialBytes = 1
	case d.AccountSerial <= 0xFFFFF:
		serialBytes = 2
	default:
		serialBytes = 3
	}

	buf := make([]byte, 0, 1+serialBytes+len(d.Subject))
	nibble := byte(d.AccountSerial >> (8 * serialBytes) & serialNibbleMask)
	buf = append(buf, byte(serialBytes-1)<<lenSelectorShift|nibble)
	for i := serialBytes - 1; i >= 0; i-- {
		buf = append(buf, byte(d.AccountSerial>>(8*i)))
	}
	return append(buf, d.Subject...), nil
}

// DecodeDescriptor parses a descriptor from buf, consuming the whole buffer.
func DecodeDescriptor(buf []byte) (*DepositDescriptor, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("missing descriptor control byte")
	}

	control := buf[0]
	if control&reservedBitsMask != 0 {
		return nil, fmt.Errorf("reserved control bits set: %#02x", control)
	}

	selector := control >> lenSelectorShift
	if selector > 2 {
		return nil, fmt.Errorf("invalid serial length selector: %d", selector)
	}
	serialBytes := int(selector) + 1

	if len(buf) < 1+serialBytes {
		return nil, fmt.Errorf(
			"descriptor too short: %d bytes, expected at least %d", len(buf), 1+serialBytes,
		)
	}

	serial := uint32(control & serialNibbleMask)
	for _, b := range buf[1 : 1+serialBytes] {
		serial = serial<<8 | uint32(b)
	}

	subject := buf[1+serialBytes:]
	if len(subject) > MaxSubjectLen {
		return nil, fmt.Errorf("subject length %d exceeds %d bytes", len(subject), MaxSubjectLen)
	}
	if len(subject) == 0 {
		subject = nil
	}

	return &DepositDescriptor{AccountSerial: serial, Subject: subject}, nil
}

package common_test

import (
	"bytes"
	"testing"

	"github.com/alpenlabs/bridged/common"
	"github.com/stretchr/testify/require"
)

func TestDescriptorRoundTrip(t *testing.T) {
	subjects := [][]byte{
		nil,
		{0x01},
		bytes.Repeat([]byte{0xab}, 20),
		bytes.Repeat([]byte{0xff}, 32),
	}
	serials := []uint32{0, 1, 0xFFF, 0x1000, 0xFFFFF, 0x100000, 0x0FFFFFFF}

	for _, serial := range serials {
		for _, subject := range subjects {
			desc, err := common.NewDepositDescriptor(serial, subject)
			require.NoError(t, err)

			encoded, err := desc.Encode()
			require.NoError(t, err)

			decoded, err := common.DecodeDescriptor(encoded)
			require.NoError(t, err)
			require.Equal(t, serial, decoded.AccountSerial)
			require.Equal(t, subject, decoded.Subject)
		}
	}
}

func TestDescriptorMinimalLength(t *testing.T) {
	tests := []struct {
		serial      uint32
		serialBytes int
	}{
		{0, 1},
		{0xFFF, 1},
		{0x1000, 2},
		{0xFFFFF, 2},
		{0x100000, 3},
		{0x0FFFFFFF, 3},
	}

	for _, tt := range tests {
		desc := &common.DepositDescriptor{AccountSerial: tt.serial}
		encoded, err := desc.Encode()
		require.NoError(t, err)
		require.Len(t, encoded, 1+tt.serialBytes,
			"serial %#x should encode to %d serial bytes", tt.serial, tt.serialBytes)
	}
}

func TestDescriptorSerialCeiling(t *testing.T) {
	desc := &common.DepositDescriptor{AccountSerial: 0x10000000}
	_, err := desc.Encode()
	require.Error(t, err)

	_, err = common.NewDepositDescriptor(0x10000000, nil)
	require.Error(t, err)
}

func TestDescriptorSubjectTooLong(t *testing.T) {
	subject := bytes.Repeat([]byte{0x01}, 33)

	desc := &common.DepositDescriptor{AccountSerial: 1, Subject: subject}
	_, err := desc.Encode()
	require.Error(t, err)

	// 1-byte serial followed by a 33-byte remainder
	buf := append([]byte{0x00, 0x01}, subject...)
	_, err = common.DecodeDescriptor(buf)
	require.Error(t, err)
}

func TestDescriptorDecodeInvalid(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"empty buffer", nil},
		{"reserved bit set", []byte{0x80, 0x01}},
		{"both reserved bits set", []byte{0xC0, 0x01}},
		{"length selector 11", []byte{0x30, 0x01, 0x02, 0x03}},
		{"truncated serial", []byte{0x20, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := common.DecodeDescriptor(tt.buf)
			require.Error(t, err)
		})
	}
}

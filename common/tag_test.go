package common_test

import (
	"bytes"
	"testing"

	"github.com/alpenlabs/bridged/common"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

var testMagic = []byte{0x61, 0x6c, 0x70, 0x64}

func TestTagRoundTrip(t *testing.T) {
	tag := &common.Tag{
		Subprotocol: common.BridgeSubprotocolId,
		Type:        common.TxTypeDeposit,
		Payload:     bytes.Repeat([]byte{0x42}, 40),
	}

	script, err := tag.EncodeTag(testMagic)
	require.NoError(t, err)

	parsed, err := common.ParseTagScript(testMagic, script)
	require.NoError(t, err)
	require.Equal(t, tag.Subprotocol, parsed.Subprotocol)
	require.Equal(t, tag.Type, parsed.Type)
	require.Equal(t, tag.Payload, parsed.Payload)
}

func TestTagWrongMagic(t *testing.T) {
	tag := &common.Tag{Subprotocol: common.BridgeSubprotocolId, Type: common.TxTypeDeposit}
	script, err := tag.EncodeTag([]byte{0xde, 0xad, 0xbe, 0xef})
	require.NoError(t, err)

	_, err = common.ParseTagScript(testMagic, script)
	require.ErrorIs(t, err, common.ErrWrongMagic)
}

func TestTagNotOpReturn(t *testing.T) {
	_, err := common.ParseTagScript(testMagic, []byte{0x51})
	require.ErrorIs(t, err, common.ErrNoTag)

	_, err = common.ParseTagScript(testMagic, nil)
	require.ErrorIs(t, err, common.ErrNoTag)
}

func TestTagShortPayload(t *testing.T) {
	tag := &common.Tag{}
	script, err := tag.EncodeTag(testMagic)
	require.NoError(t, err)
	// Strip the two header bytes below the minimum.
	short := script[:len(script)-2]
	short[1] -= 2 // fix up the data push length
	_, err = common.ParseTagScript(testMagic, short)
	require.ErrorIs(t, err, common.ErrShortTag)
}

func TestFindTag(t *testing.T) {
	tag := &common.Tag{
		Subprotocol: common.BridgeSubprotocolId,
		Type:        common.TxTypeWithdrawalIntent,
		Payload:     []byte{0x01, 0x02},
	}
	script, err := tag.EncodeTag(testMagic)
	require.NoError(t, err)

	tx := wire.NewMsgTx(2)
	tx.AddTxOut(wire.NewTxOut(1000, []byte{0x51}))
	tx.AddTxOut(wire.NewTxOut(0, script))

	found, err := common.FindTag(testMagic, tx)
	require.NoError(t, err)
	require.Equal(t, common.TxTypeWithdrawalIntent, found.Type)
	require.Equal(t, tag.Payload, found.Payload)
}

func TestFindTagNone(t *testing.T) {
	tx := wire.NewMsgTx(2)
	tx.AddTxOut(wire.NewTxOut(1000, []byte{0x51}))

	_, err := common.FindTag(testMagic, tx)
	require.ErrorIs(t, err, common.ErrNoTag)
}

func TestFindTagForeignSubprotocol(t *testing.T) {
	tag := &common.Tag{Subprotocol: 7, Type: common.TxTypeDeposit}
	script, err := tag.EncodeTag(testMagic)
	require.NoError(t, err)

	tx := wire.NewMsgTx(2)
	tx.AddTxOut(wire.NewTxOut(0, script))

	_, err = common.FindTag(testMagic, tx)
	require.ErrorIs(t, err, common.ErrWrongSubpro)
}

func TestDepositPayloadRoundTrip(t *testing.T) {
	desc, err := common.NewDepositDescriptor(77, bytes.Repeat([]byte{0x11}, 32))
	require.NoError(t, err)

	payload := &common.DepositPayload{
		DepositIdx: 5,
		Descriptor: *desc,
	}
	copy(payload.TakebackHash[:], bytes.Repeat([]byte{0xcc}, 32))

	encoded, err := payload.Encode()
	require.NoError(t, err)
	require.Len(t, encoded, 4+32+34)

	parsed, err := common.ParseDepositPayload(encoded, 34)
	require.NoError(t, err)
	require.Equal(t, payload.DepositIdx, parsed.DepositIdx)
	require.Equal(t, payload.TakebackHash, parsed.TakebackHash)
	require.Equal(t, payload.Descriptor, parsed.Descriptor)
}

func TestDepositPayloadWrongLength(t *testing.T) {
	_, err := common.ParseDepositPayload(make([]byte, 40), 34)
	require.Error(t, err)
}

func TestWithdrawalIntentPayloadRoundTrip(t *testing.T) {
	desc, err := common.NewDepositDescriptor(3, bytes.Repeat([]byte{0x22}, 32))
	require.NoError(t, err)

	tests := []struct {
		name    string
		payload *common.WithdrawalIntentPayload
	}{
		{
			"with operator preference",
			&common.WithdrawalIntentPayload{
				Amount:      1_000_000_000,
				OperatorIdx: 9,
				HasOperator: true,
				Descriptor:  *desc,
			},
		},
		{
			"without operator preference",
			&common.WithdrawalIntentPayload{
				Amount:     500_000,
				Descriptor: *desc,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := tt.payload.Encode()
			require.NoError(t, err)

			parsed, err := common.ParseWithdrawalIntentPayload(encoded)
			require.NoError(t, err)
			require.Equal(t, tt.payload, parsed)
		})
	}
}

func TestWithdrawalIntentPayloadInvalid(t *testing.T) {
	_, err := common.ParseWithdrawalIntentPayload(make([]byte, 8))
	require.Error(t, err)

	// operator length byte beyond the 4-byte cap
	buf := append(make([]byte, 8), 5, 0, 0, 0, 0, 0, 0x00, 0x01)
	_, err = common.ParseWithdrawalIntentPayload(buf)
	require.Error(t, err)
}

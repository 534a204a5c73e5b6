package common

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// MagicLen is the length of the tag magic prefix.
const MagicLen = 4

// BridgeSubprotocolId identifies the bridge custody subprotocol inside the
// shared tag namespace.
const BridgeSubprotocolId byte = 1

type TxType byte

const (
	TxTypeDeposit TxType = iota + 1
	TxTypeWithdrawalIntent
)

var (
	ErrNoTag       = errors.New("no subprotocol tag found")
	ErrWrongMagic  = errors.New("invalid tag magic")
	ErrShortTag    = errors.New("tag payload too short")
	ErrWrongSubpro = errors.New("tag belongs to another subprotocol")
)

// Tag is the on-chain routing envelope: [magic:4][subprotocol:1][tx_type:1][payload].
type Tag struct {
	Subprotocol byte
	Type        TxType
	Payload     []byte
}

// EncodeTag serializes the envelope into an OP_RETURN script.
func (t *Tag) EncodeTag(magic []byte) ([]byte, error) {
	if len(magic) != MagicLen {
		return nil, fmt.Errorf("magic must be %d bytes, got %d", MagicLen, len(magic))
	}
	data := make([]byte, 0, MagicLen+2+len(t.Payload))
	data = append(data, magic...)
	data = append(data, t.Subprotocol, byte(t.Type))
	data = append(data, t.Payload...)
	return txscript.NewScriptBuilder().AddOp(txscript.OP_RETURN).AddData(data).Script()
}

// ParseTagScript extracts the envelope from an OP_RETURN script.
func ParseTagScript(magic, script []byte) (*Tag, error) {
	if len(script) == 0 || script[0] != txscript.OP_RETURN {
		return nil, ErrNoTag
	}

	tokenizer := txscript.MakeScriptTokenizer(0, script)
	if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_RETURN {
		if err := tokenizer.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNoTag
	}

	var payload []byte
	for tokenizer.Next() {
		data := tokenizer.Data()
		if data == nil {
			return nil, fmt.Errorf("invalid OP_RETURN data push")
		}
		payload = append(payload, data...)
	}
	if err := tokenizer.Err(); err != nil {
		return nil, err
	}

	if len(payload) < MagicLen || !bytes.HasPrefix(payload, magic) {
		return nil, ErrWrongMagic
	}
	payload = payload[MagicLen:]
	if len(payload) < 2 {
		return nil, ErrShortTag
	}

	return &Tag{
		Subprotocol: payload[0],
		Type:        TxType(payload[1]),
		Payload:     payload[2:],
	}, nil
}

// FindTag scans the outputs of tx for the subprotocol's tag envelope.
// Returns ErrNoTag if no output carries one.
func FindTag(magic []byte, tx *wire.MsgTx) (*Tag, error) {
	for _, out := range tx.TxOut {
		tag, err := ParseTagScript(magic, out.PkScript)
		if err != nil {
			if errors.Is(err, ErrNoTag) || errors.Is(err, ErrWrongMagic) {
				continue
			}
			return nil, err
		}
		if tag.Subprotocol != BridgeSubprotocolId {
			return nil, ErrWrongSubpro
		}
		return tag, nil
	}
	return nil, ErrNoTag
}

// DepositPayload is the deposit tag payload:
// [deposit_idx:4 BE][takeback_tapnode_hash:32][descriptor: fixed length].
type DepositPayload struct {
	DepositIdx   uint32
	TakebackHash [32]byte
	Descriptor   DepositDescriptor
}

// Encode serializes the payload, padding nothing: the descriptor must already
// have the configured fixed length once encoded.
func (p *DepositPayload) Encode() ([]byte, error) {
	desc, err := p.Descriptor.Encode()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, 4+32+len(desc))
	buf = binary.BigEndian.AppendUint32(buf, p.DepositIdx)
	buf = append(buf, p.TakebackHash[:]...)
	return append(buf, desc...), nil
}

// ParseDepositPayload parses a deposit payload whose descriptor occupies
// exactly descriptorLen trailing bytes.
func ParseDepositPayload(buf []byte, descriptorLen int) (*DepositPayload, error) {
	if len(buf) != 4+32+descriptorLen {
		return nil, fmt.Errorf(
			"invalid deposit payload length: %d, expected %d", len(buf), 4+32+descriptorLen,
		)
	}

	desc, err := DecodeDescriptor(buf[36:])
	if err != nil {
		return nil, fmt.Errorf("invalid deposit descriptor: %s", err)
	}

	payload := &DepositPayload{
		DepositIdx: binary.BigEndian.Uint32(buf[:4]),
		Descriptor: *desc,
	}
	copy(payload.TakebackHash[:], buf[4:36])
	return payload, nil
}

// WithdrawalIntentPayload is the debug/mock withdrawal-intent payload:
// [amount:8 BE][operator_len B:1][operator_idx: B bytes BE, B in 0..=4][descriptor: remainder].
// A zero operator length means no operator preference.
type WithdrawalIntentPayload struct {
	Amount      uint64
	OperatorIdx uint32
	HasOperator bool
	Descriptor  DepositDescriptor
}

func (p *WithdrawalIntentPayload) Encode() ([]byte, error) {
	desc, err := p.Descriptor.Encode()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, 8+1+4+len(desc))
	buf = binary.BigEndian.AppendUint64(buf, p.Amount)
	if p.HasOperator {
		buf = append(buf, 4)
		buf = binary.BigEndian.AppendUint32(buf, p.OperatorIdx)
	} else {
		buf = append(buf, 0)
	}
	return append(buf, desc...), nil
}

func ParseWithdrawalIntentPayload(buf []byte) (*WithdrawalIntentPayload, error) {
	if len(buf) < 9 {
		return nil, fmt.Errorf("invalid withdrawal intent payload length: %d", len(buf))
	}

	payload := &WithdrawalIntentPayload{
		Amount: binary.BigEndian.Uint64(buf[:8]),
	}

	operatorLen := int(buf[8])
	if operatorLen > 4 {
		return nil, fmt.Errorf("invalid operator index length: %d", operatorLen)
	}
	if len(buf) < 9+operatorLen {
		return nil, fmt.Errorf("withdrawal intent payload too short for operator index")
	}
	if operatorLen > 0 {
		var idx uint32
		for _, b := range buf[9 : 9+operatorLen] {
			idx = idx<<8 | uint32(b)
		}
		payload.OperatorIdx = idx
		payload.HasOperator = true
	}

	desc, err := DecodeDescriptor(buf[9+operatorLen:])
	if err != nil {
		return nil, fmt.Errorf("invalid withdrawal descriptor: %s", err)
	}
	payload.Descriptor = *desc

	return payload, nil
}

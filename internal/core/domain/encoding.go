package domain

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/tlv"
)

// Canonical state encoding. The three tables serialize into a deterministic,
// byte-stable tlv stream so every validating node commits to identical bytes.
// Operators, deposits and assignments are always written in ascending idx
// order.

const (
	tlvTypeOperators   tlv.Type = 1
	tlvTypeDeposits    tlv.Type = 2
	tlvTypeAssignments tlv.Type = 3
)

const operatorRecordSize = 4 + 1 + 33

func EOperatorTable(w io.Writer, val interface{}, buf *[8]byte) error {
	if t, ok := val.(**OperatorTable); ok {
		table := *t
		if err := tlv.WriteVarInt(w, uint64(len(table.operators)), buf); err != nil {
			return err
		}
		for _, op := range table.operators {
			idx := uint32(op.Idx)
			if err := tlv.EUint32(w, &idx, buf); err != nil {
				return err
			}
			var active uint8
			if _, inactive := table.inactive[op.Idx]; !inactive {
				active = 1
			}
			if err := tlv.EUint8(w, &active, buf); err != nil {
				return err
			}
			pubkey := op.PubKey
			if err := tlv.EPubKey(w, &pubkey, buf); err != nil {
				return err
			}
		}
		return nil
	}
	return tlv.NewTypeForEncodingErr(val, "operatorTable")
}

func DOperatorTable(r io.Reader, val interface{}, buf *[8]byte, l uint64) error {
	if t, ok := val.(**OperatorTable); ok {
		count, err := tlv.ReadVarInt(r, buf)
		if err != nil {
			return err
		}

		table := &OperatorTable{inactive: make(map[OperatorIdx]struct{})}
		for i := uint64(0); i < count; i++ {
			var idx uint32
			if err := tlv.DUint32(r, &idx, buf, 4); err != nil {
				return err
			}
			var active uint8
			if err := tlv.DUint8(r, &active, buf, 1); err != nil {
				return err
			}
			op := Operator{Idx: OperatorIdx(idx)}
			if err := tlv.DPubKey(r, &op.PubKey, buf, 33); err != nil {
				return err
			}
			if active == 0 {
				table.inactive[op.Idx] = struct{}{}
			}
			table.operators = append(table.operators, op)
		}
		*t = table
		return nil
	}
	return tlv.NewTypeForDecodingErr(val, "operatorTable", l, l)
}

func OperatorTableSize(t *OperatorTable) tlv.SizeFunc {
	return func() uint64 {
		n := uint64(len(t.operators))
		return uint64(tlv.VarIntSize(n)) + n*operatorRecordSize
	}
}

func eDeposit(w io.Writer, d *Deposit, buf *[8]byte) error {
	if err := tlv.EUint32(w, &d.Idx, buf); err != nil {
		return err
	}
	if err := tlv.EUint64(w, &d.Amount, buf); err != nil {
		return err
	}
	hash := [32]byte(d.Outpoint.Hash)
	if err := tlv.EBytes32(w, &hash, buf); err != nil {
		return err
	}
	if err := tlv.EUint32(w, &d.Outpoint.Index, buf); err != nil {
		return err
	}
	if err := tlv.WriteVarInt(w, uint64(len(d.NotaryOperators)), buf); err != nil {
		return err
	}
	for _, op := range d.NotaryOperators {
		idx := uint32(op)
		if err := tlv.EUint32(w, &idx, buf); err != nil {
			return err
		}
	}
	return nil
}

func dDeposit(r io.Reader, d *Deposit, buf *[8]byte) error {
	if err := tlv.DUint32(r, &d.Idx, buf, 4); err != nil {
		return err
	}
	if err := tlv.DUint64(r, &d.Amount, buf, 8); err != nil {
		return err
	}
	var hash [32]byte
	if err := tlv.DBytes32(r, &hash, buf, 32); err != nil {
		return err
	}
	d.Outpoint.Hash = chainhash.Hash(hash)
	if err := tlv.DUint32(r, &d.Outpoint.Index, buf, 4); err != nil {
		return err
	}
	count, err := tlv.ReadVarInt(r, buf)
	if err != nil {
		return err
	}
	d.NotaryOperators = make([]OperatorIdx, 0, count)
	for i := uint64(0); i < count; i++ {
		var idx uint32
		if err := tlv.DUint32(r, &idx, buf, 4); err != nil {
			return err
		}
		d.NotaryOperators = append(d.NotaryOperators, OperatorIdx(idx))
	}
	return nil
}

func depositSize(d *Deposit) uint64 {
	n := uint64(len(d.NotaryOperators))
	return 4 + 8 + 32 + 4 + uint64(tlv.VarIntSize(n)) + n*4
}

func EDepositsTable(w io.Writer, val interface{}, buf *[8]byte) error {
	if t, ok := val.(**DepositsTable); ok {
		table := *t
		if err := tlv.WriteVarInt(w, uint64(len(table.deposits)), buf); err != nil {
			return err
		}
		for i := range table.deposits {
			if err := eDeposit(w, &table.deposits[i], buf); err != nil {
				return err
			}
		}
		return nil
	}
	return tlv.NewTypeForEncodingErr(val, "depositsTable")
}

func DDepositsTable(r io.Reader, val interface{}, buf *[8]byte, l uint64) error {
	if t, ok := val.(**DepositsTable); ok {
		count, err := tlv.ReadVarInt(r, buf)
		if err != nil {
			return err
		}
		table := &DepositsTable{denomination: (*t).denomination}
		for i := uint64(0); i < count; i++ {
			var deposit Deposit
			if err := dDeposit(r, &deposit, buf); err != nil {
				return err
			}
			table.deposits = append(table.deposits, deposit)
		}
		*t = table
		return nil
	}
	return tlv.NewTypeForDecodingErr(val, "depositsTable", l, l)
}

func DepositsTableSize(t *DepositsTable) tlv.SizeFunc {
	return func() uint64 {
		size := uint64(tlv.VarIntSize(uint64(len(t.deposits))))
		for i := range t.deposits {
			size += depositSize(&t.deposits[i])
		}
		return size
	}
}

func eAssignmentEntry(w io.Writer, e *AssignmentEntry, buf *[8]byte) error {
	if err := eDeposit(w, &e.Deposit, buf); err != nil {
		return err
	}
	outValue := uint64(e.Command.Output.Value)
	if err := tlv.EUint64(w, &outValue, buf); err != nil {
		return err
	}
	if err := tlv.WriteVarInt(w, uint64(len(e.Command.Output.PkScript)), buf); err != nil {
		return err
	}
	if _, err := w.Write(e.Command.Output.PkScript); err != nil {
		return err
	}
	if err := tlv.EUint64(w, &e.Command.OperatorFee, buf); err != nil {
		return err
	}
	assignee := uint32(e.Assignee)
	if err := tlv.EUint32(w, &assignee, buf); err != nil {
		return err
	}
	if err := tlv.EUint64(w, &e.Deadline, buf); err != nil {
		return err
	}
	if err := tlv.WriteVarInt(w, uint64(len(e.TriedOperators)), buf); err != nil {
		return err
	}
	for _, op := range e.TriedOperators {
		idx := uint32(op)
		if err := tlv.EUint32(w, &idx, buf); err != nil {
			return err
		}
	}
	return nil
}

func dAssignmentEntry(r io.Reader, e *AssignmentEntry, buf *[8]byte) error {
	if err := dDeposit(r, &e.Deposit, buf); err != nil {
		return err
	}
	var outValue uint64
	if err := tlv.DUint64(r, &outValue, buf, 8); err != nil {
		return err
	}
	e.Command.Output.Value = int64(outValue)
	scriptLen, err := tlv.ReadVarInt(r, buf)
	if err != nil {
		return err
	}
	if scriptLen > 0 {
		e.Command.Output.PkScript = make([]byte, scriptLen)
		if _, err := io.ReadFull(r, e.Command.Output.PkScript); err != nil {
			return err
		}
	}
	if err := tlv.DUint64(r, &e.Command.OperatorFee, buf, 8); err != nil {
		return err
	}
	var assignee uint32
	if err := tlv.DUint32(r, &assignee, buf, 4); err != nil {
		return err
	}
	e.Assignee = OperatorIdx(assignee)
	if err := tlv.DUint64(r, &e.Deadline, buf, 8); err != nil {
		return err
	}
	count, err := tlv.ReadVarInt(r, buf)
	if err != nil {
		return err
	}
	for i := uint64(0); i < count; i++ {
		var idx uint32
		if err := tlv.DUint32(r, &idx, buf, 4); err != nil {
			return err
		}
		e.TriedOperators = append(e.TriedOperators, OperatorIdx(idx))
	}
	return nil
}

func assignmentEntrySize(e *AssignmentEntry) uint64 {
	scriptLen := uint64(len(e.Command.Output.PkScript))
	tried := uint64(len(e.TriedOperators))
	return depositSize(&e.Deposit) +
		8 + uint64(tlv.VarIntSize(scriptLen)) + scriptLen + 8 +
		4 + 8 + uint64(tlv.VarIntSize(tried)) + tried*4
}

func EAssignmentTable(w io.Writer, val interface{}, buf *[8]byte) error {
	if t, ok := val.(**AssignmentTable); ok {
		entries := (*t).Assignments()
		if err := tlv.WriteVarInt(w, uint64(len(entries)), buf); err != nil {
			return err
		}
		for i := range entries {
			if err := eAssignmentEntry(w, &entries[i], buf); err != nil {
				return err
			}
		}
		return nil
	}
	return tlv.NewTypeForEncodingErr(val, "assignmentTable")
}

func DAssignmentTable(r io.Reader, val interface{}, buf *[8]byte, l uint64) error {
	if t, ok := val.(**AssignmentTable); ok {
		count, err := tlv.ReadVarInt(r, buf)
		if err != nil {
			return err
		}
		table := NewAssignmentTable((*t).duration)
		for i := uint64(0); i < count; i++ {
			entry := &AssignmentEntry{}
			if err := dAssignmentEntry(r, entry, buf); err != nil {
				return err
			}
			table.entries[entry.Deposit.Idx] = entry
		}
		*t = table
		return nil
	}
	return tlv.NewTypeForDecodingErr(val, "assignmentTable", l, l)
}

func AssignmentTableSize(t *AssignmentTable) tlv.SizeFunc {
	return func() uint64 {
		size := uint64(tlv.VarIntSize(uint64(len(t.entries))))
		for _, entry := range t.entries {
			size += assignmentEntrySize(entry)
		}
		return size
	}
}

// Encode writes the canonical serialization of the three tables.
func (s *BridgeState) Encode(w io.Writer) error {
	stream, err := tlv.NewStream(
		tlv.MakeDynamicRecord(
			tlvTypeOperators, &s.operators, OperatorTableSize(s.operators),
			EOperatorTable, nil,
		),
		tlv.MakeDynamicRecord(
			tlvTypeDeposits, &s.deposits, DepositsTableSize(s.deposits),
			EDepositsTable, nil,
		),
		tlv.MakeDynamicRecord(
			tlvTypeAssignments, &s.assignments, AssignmentTableSize(s.assignments),
			EAssignmentTable, nil,
		),
	)
	if err != nil {
		return err
	}
	return stream.Encode(w)
}

// Decode replaces the table contents with the canonical serialization read
// from r. The configured params are kept as-is.
func (s *BridgeState) Decode(r io.Reader) error {
	stream, err := tlv.NewStream(
		tlv.MakeDynamicRecord(
			tlvTypeOperators, &s.operators, OperatorTableSize(s.operators),
			nil, DOperatorTable,
		),
		tlv.MakeDynamicRecord(
			tlvTypeDeposits, &s.deposits, DepositsTableSize(s.deposits),
			nil, DDepositsTable,
		),
		tlv.MakeDynamicRecord(
			tlvTypeAssignments, &s.assignments, AssignmentTableSize(s.assignments),
			nil, DAssignmentTable,
		),
	)
	if err != nil {
		return err
	}
	if err := stream.Decode(r); err != nil {
		return err
	}
	if s.operators.Len() == 0 {
		return fmt.Errorf("decoded state has no operators")
	}
	return nil
}

// Serialize returns the canonical state bytes.
func (s *BridgeState) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Commitment hashes the canonical serialization.
func (s *BridgeState) Commitment() ([32]byte, error) {
	serialized, err := s.Serialize()
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(serialized), nil
}

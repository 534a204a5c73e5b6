package domain

import (
	"fmt"
	"sort"

	"github.com/alpenlabs/bridged/common"
	"github.com/btcsuite/btcd/btcec/v2"
)

// OperatorIdx is the stable integer id of a federation operator.
type OperatorIdx uint32

type Operator struct {
	Idx    OperatorIdx
	PubKey *btcec.PublicKey
}

// OperatorTable tracks federation membership. The aggregated Schnorr key over
// the currently-active operators is recomputed on demand, never cached across
// a mutation.
//
// The table must always hold at least one active operator: a membership change
// that would empty it panics, because it signals a bug in the caller's
// upstream guarantees rather than a recoverable condition.
type OperatorTable struct {
	operators []Operator // ascending idx
	inactive  map[OperatorIdx]struct{}
}

// NewOperatorTable builds the table from the ordered federation pubkey list,
// with all operators active. Operator idx is the position in the list.
func NewOperatorTable(pubkeys []*btcec.PublicKey) (*OperatorTable, error) {
	if len(pubkeys) == 0 {
		return nil, fmt.Errorf("missing operator pubkeys")
	}

	operators := make([]Operator, 0, len(pubkeys))
	for i, pubkey := range pubkeys {
		if pubkey == nil {
			return nil, fmt.Errorf("nil pubkey for operator %d", i)
		}
		operators = append(operators, Operator{Idx: OperatorIdx(i), PubKey: pubkey})
	}

	return &OperatorTable{
		operators: operators,
		inactive:  make(map[OperatorIdx]struct{}),
	}, nil
}

// CurrentMultisig returns the ascending indices of the active operators.
func (t *OperatorTable) CurrentMultisig() []OperatorIdx {
	indices := make([]OperatorIdx, 0, len(t.operators))
	for _, op := range t.operators {
		if _, ok := t.inactive[op.Idx]; ok {
			continue
		}
		indices = append(indices, op.Idx)
	}
	return indices
}

// AggregatedKey recomputes the MuSig2 aggregated key over the active
// operators' pubkeys.
func (t *OperatorTable) AggregatedKey() (*btcec.PublicKey, error) {
	pubkeys := make([]*btcec.PublicKey, 0, len(t.operators))
	for _, op := range t.operators {
		if _, ok := t.inactive[op.Idx]; ok {
			continue
		}
		pubkeys = append(pubkeys, op.PubKey)
	}
	return common.AggregateOperatorKeys(pubkeys)
}

// ApplyMembershipChanges atomically activates the added operators and
// deactivates the removed ones. Panics if the result would leave zero active
// operators.
func (t *OperatorTable) ApplyMembershipChanges(add []Operator, remove []OperatorIdx) {
	known := make(map[OperatorIdx]struct{}, len(t.operators))
	for _, op := range t.operators {
		known[op.Idx] = struct{}{}
	}

	inactive := make(map[OperatorIdx]struct{}, len(t.inactive))
	for idx := range t.inactive {
		inactive[idx] = struct{}{}
	}

	operators := append([]Operator{}, t.operators...)
	for _, op := range add {
		if _, ok := known[op.Idx]; ok {
			delete(inactive, op.Idx)
			continue
		}
		operators = append(operators, op)
		known[op.Idx] = struct{}{}
	}
	sort.Slice(operators, func(i, j int) bool { return operators[i].Idx < operators[j].Idx })

	for _, idx := range remove {
		inactive[idx] = struct{}{}
	}

	activeCount := 0
	for _, op := range operators {
		if _, ok := inactive[op.Idx]; !ok {
			activeCount++
		}
	}
	if activeCount == 0 {
		panic("operator table invariant violated: membership change leaves no active operator")
	}

	t.operators = operators
	t.inactive = inactive
}

// RemoveOperator deactivates a single operator, inheriting the
// panic-on-empty invariant of ApplyMembershipChanges.
func (t *OperatorTable) RemoveOperator(idx OperatorIdx) {
	t.ApplyMembershipChanges(nil, []OperatorIdx{idx})
}

func (t *OperatorTable) Operator(idx OperatorIdx) (Operator, bool) {
	for _, op := range t.operators {
		if op.Idx == idx {
			return op, true
		}
	}
	return Operator{}, false
}

func (t *OperatorTable) IsActive(idx OperatorIdx) bool {
	if _, ok := t.Operator(idx); !ok {
		return false
	}
	_, inactive := t.inactive[idx]
	return !inactive
}

// Operators returns a copy of all known operators in idx order, active or not.
func (t *OperatorTable) Operators() []Operator {
	return append([]Operator{}, t.operators...)
}

func (t *OperatorTable) Len() int {
	return len(t.operators)
}

package domain

import (
	"sort"

	"github.com/btcsuite/btcd/wire"
)

// Deposit is a confirmed deposit UTXO awaiting a withdrawal assignment.
// NotaryOperators is the snapshot of active operator indices taken at
// confirmation time and determines the eligible assignees for its withdrawal.
type Deposit struct {
	Idx             uint32
	NotaryOperators []OperatorIdx
	Amount          uint64
	Outpoint        wire.OutPoint
}

// DepositsTable is the FIFO queue of confirmed deposits, ordered by strictly
// increasing idx. Deposits are consumed oldest-first.
type DepositsTable struct {
	denomination uint64
	deposits     []Deposit // ascending idx
}

func NewDepositsTable(denomination uint64) *DepositsTable {
	return &DepositsTable{denomination: denomination}
}

// InsertDeposit appends a deposit to the queue. It fails if the idx already
// exists, the amount differs from the configured denomination or the notary
// operator set is empty.
func (t *DepositsTable) InsertDeposit(deposit Deposit) error {
	if deposit.Amount != t.denomination {
		return &DepositError{
			Kind:       DepositErrAmountMismatch,
			DepositIdx: deposit.Idx,
			Expected:   t.denomination,
			Actual:     deposit.Amount,
		}
	}
	if len(deposit.NotaryOperators) == 0 {
		return &DepositError{Kind: DepositErrEmptyNotarySet, DepositIdx: deposit.Idx}
	}

	pos := sort.Search(len(t.deposits), func(i int) bool {
		return t.deposits[i].Idx >= deposit.Idx
	})
	if pos < len(t.deposits) && t.deposits[pos].Idx == deposit.Idx {
		return &DepositError{Kind: DepositErrDuplicateIdx, DepositIdx: deposit.Idx}
	}

	t.deposits = append(t.deposits, Deposit{})
	copy(t.deposits[pos+1:], t.deposits[pos:])
	t.deposits[pos] = deposit
	return nil
}

// Oldest returns the deposit with the smallest idx without removing it.
func (t *DepositsTable) Oldest() (Deposit, bool) {
	if len(t.deposits) == 0 {
		return Deposit{}, false
	}
	return t.deposits[0], true
}

// RemoveOldestDeposit pops the deposit with the smallest idx.
func (t *DepositsTable) RemoveOldestDeposit() (Deposit, bool) {
	if len(t.deposits) == 0 {
		return Deposit{}, false
	}
	oldest := t.deposits[0]
	t.deposits = t.deposits[1:]
	return oldest, true
}

func (t *DepositsTable) GetDeposit(idx uint32) (Deposit, bool) {
	pos := sort.Search(len(t.deposits), func(i int) bool {
		return t.deposits[i].Idx >= idx
	})
	if pos < len(t.deposits) && t.deposits[pos].Idx == idx {
		return t.deposits[pos], true
	}
	return Deposit{}, false
}

// Deposits returns a copy of the queue in idx order.
func (t *DepositsTable) Deposits() []Deposit {
	return append([]Deposit{}, t.deposits...)
}

func (t *DepositsTable) Len() int {
	return len(t.deposits)
}

func (t *DepositsTable) Denomination() uint64 {
	return t.denomination
}

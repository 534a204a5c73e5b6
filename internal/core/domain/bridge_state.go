package domain

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
)

// Params are the configured subprotocol parameters. They are part of the
// chain's configuration, not of the replicated state.
type Params struct {
	// Denomination is the exact amount, in satoshis, of every deposit.
	Denomination uint64
	// OperatorFee is the fee, in satoshis, credited to the assigned operator
	// on top of the withdrawal output.
	OperatorFee uint64
	// AssignmentDuration is how many L1 blocks an assignment stays valid
	// before it is handed to another operator.
	AssignmentDuration uint64
}

// DepositInfo is the parsed deposit handed over by the chain worker once the
// deposit transaction has been validated.
type DepositInfo struct {
	Idx      uint32
	Amount   uint64
	Outpoint wire.OutPoint
}

// BridgeState owns the three bridge tables and exposes the subprotocol's
// public transitions. It executes synchronously, once per confirmed block, as
// a pure function of (prior state, block transactions, block commitment):
// no clocks, no local entropy, no internal concurrency.
type BridgeState struct {
	params      Params
	operators   *OperatorTable
	deposits    *DepositsTable
	assignments *AssignmentTable
}

func NewBridgeState(operatorPubkeys []*btcec.PublicKey, params Params) (*BridgeState, error) {
	operators, err := NewOperatorTable(operatorPubkeys)
	if err != nil {
		return nil, err
	}
	return &BridgeState{
		params:      params,
		operators:   operators,
		deposits:    NewDepositsTable(params.Denomination),
		assignments: NewAssignmentTable(params.AssignmentDuration),
	}, nil
}

// AddDeposit snapshots the current multisig as the deposit's notary set and
// enqueues it in the deposits table.
func (s *BridgeState) AddDeposit(info DepositInfo) error {
	return s.deposits.InsertDeposit(Deposit{
		Idx:             info.Idx,
		NotaryOperators: s.operators.CurrentMultisig(),
		Amount:          info.Amount,
		Outpoint:        info.Outpoint,
	})
}

// CreateWithdrawalAssignment pops the oldest deposit and assigns it the given
// withdrawal output plus the configured operator fee. A preferred operator is
// honored only when it belongs to the deposit's notary set. On any failure
// both tables are left untouched.
func (s *BridgeState) CreateWithdrawalAssignment(
	withdrawalOutput wire.TxOut, preferred *OperatorIdx, l1Block BlockCommitment,
) (*AssignmentEntry, error) {
	oldest, ok := s.deposits.Oldest()
	if !ok {
		return nil, &WithdrawalError{Kind: WithdrawalErrNoUnassignedDeposits}
	}

	cmd := WithdrawalCommand{
		Output:      withdrawalOutput,
		OperatorFee: s.params.OperatorFee,
	}

	entry, err := s.assignments.AddNewAssignment(
		oldest, cmd, oldest.NotaryOperators, preferred, l1Block,
	)
	if err != nil {
		return nil, err
	}

	s.deposits.RemoveOldestDeposit()
	return entry, nil
}

// ReassignExpiredAssignments sweeps the assignment table against the current
// active multisig.
func (s *BridgeState) ReassignExpiredAssignments(
	currentBlock BlockCommitment,
) ([]uint32, error) {
	return s.assignments.ReassignExpiredAssignments(
		s.operators.CurrentMultisig(), currentBlock,
	)
}

func (s *BridgeState) RemoveAssignment(idx uint32) (*AssignmentEntry, bool) {
	return s.assignments.RemoveAssignment(idx)
}

// RemoveOperator deactivates a federation operator. Removing the last active
// operator panics, inheriting the operator table invariant.
func (s *BridgeState) RemoveOperator(idx OperatorIdx) {
	s.operators.RemoveOperator(idx)
}

// AggregatedKey is the current federation multisig key.
func (s *BridgeState) AggregatedKey() (*btcec.PublicKey, error) {
	return s.operators.AggregatedKey()
}

func (s *BridgeState) Params() Params {
	return s.params
}

func (s *BridgeState) Operators() *OperatorTable {
	return s.operators
}

func (s *BridgeState) Deposits() *DepositsTable {
	return s.deposits
}

func (s *BridgeState) Assignments() *AssignmentTable {
	return s.assignments
}

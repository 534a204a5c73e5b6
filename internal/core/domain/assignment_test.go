package domain

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func testBlock(height uint64, seed byte) BlockCommitment {
	var hash chainhash.Hash
	hash[0] = seed
	return BlockCommitment{Height: height, Hash: hash}
}

func testCommand(total uint64) WithdrawalCommand {
	return WithdrawalCommand{
		Output:      wire.TxOut{Value: int64(total - 100), PkScript: []byte{0x51}},
		OperatorFee: 100,
	}
}

func TestAddNewAssignment(t *testing.T) {
	notary := []OperatorIdx{0, 1, 2, 3}
	block := testBlock(100, 0xaa)
	deposit := testDeposit(1, 1000)

	table := NewAssignmentTable(5)
	entry, err := table.AddNewAssignment(deposit, testCommand(1000), notary, nil, block)
	require.NoError(t, err)
	require.Contains(t, notary, entry.Assignee)
	require.Equal(t, uint64(105), entry.Deadline)
	require.Empty(t, entry.TriedOperators)
	require.Equal(t, 1, table.Len())

	// The pick is a pure function of (block hash, deposit idx, candidates):
	// a fresh table fed the same inputs lands on the same operator.
	other := NewAssignmentTable(5)
	otherEntry, err := other.AddNewAssignment(deposit, testCommand(1000), notary, nil, block)
	require.NoError(t, err)
	require.Equal(t, entry.Assignee, otherEntry.Assignee)

	// Candidate order must not matter either.
	shuffled := []OperatorIdx{3, 0, 2, 1}
	third := NewAssignmentTable(5)
	thirdEntry, err := third.AddNewAssignment(deposit, testCommand(1000), shuffled, nil, block)
	require.NoError(t, err)
	require.Equal(t, entry.Assignee, thirdEntry.Assignee)
}

func TestAddNewAssignmentPreferredOperator(t *testing.T) {
	notary := []OperatorIdx{0, 1, 2, 3}
	block := testBlock(100, 0xaa)
	deposit := testDeposit(1, 1000)

	baseline, err := NewAssignmentTable(5).AddNewAssignment(
		deposit, testCommand(1000), notary, nil, block,
	)
	require.NoError(t, err)

	// A preference inside the notary set overrides the derived choice.
	for _, preferred := range notary {
		table := NewAssignmentTable(5)
		entry, err := table.AddNewAssignment(
			deposit, testCommand(1000), notary, &preferred, block,
		)
		require.NoError(t, err)
		require.Equal(t, preferred, entry.Assignee)
	}

	// A preference outside the notary set is ignored.
	outsider := OperatorIdx(99)
	table := NewAssignmentTable(5)
	entry, err := table.AddNewAssignment(
		deposit, testCommand(1000), notary, &outsider, block,
	)
	require.NoError(t, err)
	require.Equal(t, baseline.Assignee, entry.Assignee)
}

func TestAddNewAssignmentAmountMismatch(t *testing.T) {
	table := NewAssignmentTable(5)

	_, err := table.AddNewAssignment(
		testDeposit(1, 1000), testCommand(900), []OperatorIdx{0, 1}, nil, testBlock(100, 0x01),
	)
	var withdrawalErr *WithdrawalError
	require.ErrorAs(t, err, &withdrawalErr)
	require.Equal(t, WithdrawalErrAmountMismatch, withdrawalErr.Kind)
	require.Equal(t, uint64(1000), withdrawalErr.Expected)
	require.Equal(t, uint64(900), withdrawalErr.Actual)
	require.Equal(t, 0, table.Len())
}

func TestAddNewAssignmentNoCandidates(t *testing.T) {
	table := NewAssignmentTable(5)

	_, err := table.AddNewAssignment(
		testDeposit(1, 1000), testCommand(1000), nil, nil, testBlock(100, 0x01),
	)
	var withdrawalErr *WithdrawalError
	require.ErrorAs(t, err, &withdrawalErr)
	require.Equal(t, WithdrawalErrNoEligibleOperator, withdrawalErr.Kind)
}

func TestReassignExpiredAssignments(t *testing.T) {
	notary := []OperatorIdx{0, 1, 2, 3}
	table := NewAssignmentTable(5)

	entry, err := table.AddNewAssignment(
		testDeposit(1, 1000), testCommand(1000), notary, nil, testBlock(100, 0x01),
	)
	require.NoError(t, err)
	first := entry.Assignee

	// Not expired yet: deadline is 105.
	reassigned, err := table.ReassignExpiredAssignments(notary, testBlock(104, 0x02))
	require.NoError(t, err)
	require.Empty(t, reassigned)
	require.Equal(t, first, entry.Assignee)

	// At the deadline the entry expires and moves to a fresh operator.
	reassigned, err = table.ReassignExpiredAssignments(notary, testBlock(105, 0x02))
	require.NoError(t, err)
	require.Equal(t, []uint32{1}, reassigned)
	require.NotEqual(t, first, entry.Assignee)
	require.Equal(t, []OperatorIdx{first}, entry.TriedOperators)
	require.Equal(t, uint64(110), entry.Deadline)
}

func TestReassignNeverRepeatsOperator(t *testing.T) {
	notary := []OperatorIdx{0, 1, 2, 3}
	table := NewAssignmentTable(1)

	entry, err := table.AddNewAssignment(
		testDeposit(1, 1000), testCommand(1000), notary, nil, testBlock(100, 0x01),
	)
	require.NoError(t, err)

	seen := map[OperatorIdx]struct{}{entry.Assignee: {}}
	height := entry.Deadline
	for range len(notary) - 1 {
		_, err := table.ReassignExpiredAssignments(notary, testBlock(height, byte(height)))
		require.NoError(t, err)

		_, dup := seen[entry.Assignee]
		require.False(t, dup, "operator %d assigned twice", entry.Assignee)
		seen[entry.Assignee] = struct{}{}
		height = entry.Deadline
	}
	require.Len(t, seen, len(notary))

	// Every operator has now had its turn: the next sweep must fail, and
	// fail identically on every node.
	_, err = table.ReassignExpiredAssignments(notary, testBlock(height, 0xff))
	var withdrawalErr *WithdrawalError
	require.ErrorAs(t, err, &withdrawalErr)
	require.Equal(t, WithdrawalErrNoEligibleOperator, withdrawalErr.Kind)
	require.Equal(t, uint32(1), withdrawalErr.DepositIdx)
}

func TestReassignSweepIsAtomic(t *testing.T) {
	notary := []OperatorIdx{0, 1, 2}
	table := NewAssignmentTable(1)

	healthy, err := table.AddNewAssignment(
		testDeposit(1, 1000), testCommand(1000), notary, nil, testBlock(100, 0x01),
	)
	require.NoError(t, err)
	stuck, err := table.AddNewAssignment(
		testDeposit(2, 1000), testCommand(1000), notary, nil, testBlock(100, 0x01),
	)
	require.NoError(t, err)

	// Exhaust the second entry's candidate set.
	for _, op := range notary {
		if op != stuck.Assignee {
			stuck.TriedOperators = append(stuck.TriedOperators, op)
		}
	}

	healthyBefore := *healthy
	stuckBefore := *stuck

	_, err = table.ReassignExpiredAssignments(notary, testBlock(200, 0x02))
	var withdrawalErr *WithdrawalError
	require.ErrorAs(t, err, &withdrawalErr)
	require.Equal(t, WithdrawalErrNoEligibleOperator, withdrawalErr.Kind)
	require.Equal(t, uint32(2), withdrawalErr.DepositIdx)

	// The failed sweep must not have touched either entry, including the one
	// that had a valid replacement available.
	require.Equal(t, healthyBefore.Assignee, healthy.Assignee)
	require.Equal(t, healthyBefore.Deadline, healthy.Deadline)
	require.Equal(t, healthyBefore.TriedOperators, healthy.TriedOperators)
	require.Equal(t, stuckBefore.Assignee, stuck.Assignee)
	require.Equal(t, stuckBefore.Deadline, stuck.Deadline)
}

func TestRemoveAssignment(t *testing.T) {
	table := NewAssignmentTable(5)
	_, err := table.AddNewAssignment(
		testDeposit(1, 1000), testCommand(1000), []OperatorIdx{0, 1}, nil, testBlock(100, 0x01),
	)
	require.NoError(t, err)

	entry, ok := table.RemoveAssignment(1)
	require.True(t, ok)
	require.Equal(t, uint32(1), entry.Deposit.Idx)
	require.Equal(t, 0, table.Len())

	_, ok = table.RemoveAssignment(1)
	require.False(t, ok)
}

func TestAssignmentsOrdered(t *testing.T) {
	table := NewAssignmentTable(5)
	for _, idx := range []uint32{9, 2, 5} {
		_, err := table.AddNewAssignment(
			testDeposit(idx, 1000), testCommand(1000),
			[]OperatorIdx{0, 1}, nil, testBlock(100, 0x01),
		)
		require.NoError(t, err)
	}

	entries := table.Assignments()
	require.Len(t, entries, 3)
	require.Equal(t, uint32(2), entries[0].Deposit.Idx)
	require.Equal(t, uint32(5), entries[1].Deposit.Idx)
	require.Equal(t, uint32(9), entries[2].Deposit.Idx)
}

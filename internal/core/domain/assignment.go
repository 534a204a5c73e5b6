package domain

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// BlockCommitment is the L1 block reference a transition executes against.
// Its hash is the only entropy source of the subprotocol.
type BlockCommitment struct {
	Height uint64
	Hash   chainhash.Hash
}

// WithdrawalCommand describes what the assigned operator must pay out:
// the destination output plus its own fee.
type WithdrawalCommand struct {
	Output      wire.TxOut
	OperatorFee uint64
}

// TotalAmount is the value the command consumes from the backing deposit.
func (c WithdrawalCommand) TotalAmount() uint64 {
	return uint64(c.Output.Value) + c.OperatorFee
}

// AssignmentEntry tracks one withdrawal obligation. The entry moves from
// Assigned to Reassigned every time its deadline expires, accumulating the
// operators already tried, until fulfilled or cancelled.
type AssignmentEntry struct {
	Deposit        Deposit
	Command        WithdrawalCommand
	Assignee       OperatorIdx
	Deadline       uint64 // L1 height
	TriedOperators []OperatorIdx
}

func (e *AssignmentEntry) isExpired(height uint64) bool {
	return e.Deadline <= height
}

func (e *AssignmentEntry) hasTried(idx OperatorIdx) bool {
	for _, tried := range e.TriedOperators {
		if tried == idx {
			return true
		}
	}
	return false
}

const (
	roleAssign   = "bridge_assign"
	roleReassign = "bridge_reassign"
)

// pickOperator deterministically derives an operator choice from the block
// hash, a role tag and the deposit idx. Every validator feeding the same
// block sequence reaches the identical choice; the modulo reduction is kept
// as-is for cross-implementation compatibility.
func pickOperator(
	blockHash chainhash.Hash, role string, depositIdx uint32, candidates []OperatorIdx,
) OperatorIdx {
	h := sha256.New()
	h.Write(blockHash[:])
	h.Write([]byte(role))
	var idxBuf [4]byte
	binary.BigEndian.PutUint32(idxBuf[:], depositIdx)
	h.Write(idxBuf[:])
	sum := h.Sum(nil)

	pos := binary.BigEndian.Uint32(sum[:4]) % uint32(len(candidates))
	return candidates[pos]
}

// AssignmentTable holds the active withdrawal assignments keyed by deposit
// idx. Entries are removed on fulfillment or cancellation.
type AssignmentTable struct {
	duration uint64 // assignment validity in blocks
	entries  map[uint32]*AssignmentEntry
}

func NewAssignmentTable(duration uint64) *AssignmentTable {
	return &AssignmentTable{
		duration: duration,
		entries:  make(map[uint32]*AssignmentEntry),
	}
}

// AddNewAssignment assigns the given deposit to an operator selected
// pseudo-randomly from its notary set, deriving the choice from l1Block's
// hash. A preferred operator overrides the derived choice when it belongs to
// the notary set, and is silently ignored otherwise. The deadline is
// l1Block.Height + the configured duration.
func (t *AssignmentTable) AddNewAssignment(
	deposit Deposit, cmd WithdrawalCommand, notaryOperators []OperatorIdx,
	preferred *OperatorIdx, l1Block BlockCommitment,
) (*AssignmentEntry, error) {
	if deposit.Amount != cmd.TotalAmount() {
		return nil, &WithdrawalError{
			Kind:       WithdrawalErrAmountMismatch,
			DepositIdx: deposit.Idx,
			Expected:   deposit.Amount,
			Actual:     cmd.TotalAmount(),
		}
	}

	candidates := append([]OperatorIdx{}, notaryOperators...)
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })
	if len(candidates) == 0 {
		return nil, &WithdrawalError{
			Kind: WithdrawalErrNoEligibleOperator, DepositIdx: deposit.Idx,
		}
	}

	assignee := pickOperator(l1Block.Hash, roleAssign, deposit.Idx, candidates)
	if preferred != nil {
		for _, op := range candidates {
			if op == *preferred {
				assignee = *preferred
				break
			}
		}
	}

	entry := &AssignmentEntry{
		Deposit:  deposit,
		Command:  cmd,
		Assignee: assignee,
		Deadline: l1Block.Height + t.duration,
	}
	t.entries[deposit.Idx] = entry
	return entry, nil
}

// ReassignExpiredAssignments sweeps every entry whose deadline has passed at
// currentBlock and hands it to a replacement operator drawn from
// notaryOperators minus the operators the entry already went through. The old
// assignee joins the tried set and the deadline is extended.
//
// If any expired entry has no eligible operator left the whole sweep fails
// with no partial mutation applied. Returns the reassigned deposit indices.
func (t *AssignmentTable) ReassignExpiredAssignments(
	notaryOperators []OperatorIdx, currentBlock BlockCommitment,
) ([]uint32, error) {
	expired := make([]uint32, 0, len(t.entries))
	for idx, entry := range t.entries {
		if entry.isExpired(currentBlock.Height) {
			expired = append(expired, idx)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i] < expired[j] })

	// Stage every pick before mutating anything so that a single
	// un-reassignable entry aborts the sweep with zero effect.
	replacements := make(map[uint32]OperatorIdx, len(expired))
	for _, idx := range expired {
		entry := t.entries[idx]

		candidates := make([]OperatorIdx, 0, len(notaryOperators))
		for _, op := range notaryOperators {
			if entry.hasTried(op) || op == entry.Assignee {
				continue
			}
			candidates = append(candidates, op)
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })

		if len(candidates) == 0 {
			return nil, &WithdrawalError{
				Kind: WithdrawalErrNoEligibleOperator, DepositIdx: idx,
			}
		}
		replacements[idx] = pickOperator(currentBlock.Hash, roleReassign, idx, candidates)
	}

	for _, idx := range expired {
		entry := t.entries[idx]
		entry.TriedOperators = append(entry.TriedOperators, entry.Assignee)
		entry.Assignee = replacements[idx]
		entry.Deadline = currentBlock.Height + t.duration
	}
	return expired, nil
}

// RemoveAssignment deletes and returns the entry for the given deposit idx.
func (t *AssignmentTable) RemoveAssignment(idx uint32) (*AssignmentEntry, bool) {
	entry, ok := t.entries[idx]
	if !ok {
		return nil, false
	}
	delete(t.entries, idx)
	return entry, true
}

func (t *AssignmentTable) GetAssignment(idx uint32) (*AssignmentEntry, bool) {
	entry, ok := t.entries[idx]
	return entry, ok
}

// Assignments returns a copy of the entries in deposit idx order.
func (t *AssignmentTable) Assignments() []AssignmentEntry {
	indices := make([]uint32, 0, len(t.entries))
	for idx := range t.entries {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	entries := make([]AssignmentEntry, 0, len(indices))
	for _, idx := range indices {
		entries = append(entries, *t.entries[idx])
	}
	return entries
}

func (t *AssignmentTable) Len() int {
	return len(t.entries)
}

package domain

import "fmt"

// DepositErrorKind enumerates the closed family of deposit validation
// failures. All of them are permanent rejections of the offending transaction.
type DepositErrorKind int

const (
	DepositErrAmountMismatch DepositErrorKind = iota
	DepositErrDuplicateIdx
	DepositErrInvalidSignature
	DepositErrEmptyNotarySet
)

type DepositError struct {
	Kind       DepositErrorKind
	DepositIdx uint32
	Expected   uint64
	Actual     uint64
	Reason     string
}

func (e *DepositError) Error() string {
	switch e.Kind {
	case DepositErrAmountMismatch:
		return fmt.Sprintf(
			"invalid deposit %d amount: expected %d, got %d",
			e.DepositIdx, e.Expected, e.Actual,
		)
	case DepositErrDuplicateIdx:
		return fmt.Sprintf("duplicate deposit index %d", e.DepositIdx)
	case DepositErrInvalidSignature:
		return fmt.Sprintf("invalid deposit %d signature: %s", e.DepositIdx, e.Reason)
	case DepositErrEmptyNotarySet:
		return fmt.Sprintf("deposit %d has an empty notary operator set", e.DepositIdx)
	default:
		return fmt.Sprintf("unknown deposit error kind %d", e.Kind)
	}
}

// WithdrawalErrorKind enumerates the closed family of withdrawal command
// failures. They report "this operation did not happen": no partial state
// change is ever left behind.
type WithdrawalErrorKind int

const (
	WithdrawalErrNoUnassignedDeposits WithdrawalErrorKind = iota
	WithdrawalErrAmountMismatch
	WithdrawalErrNoEligibleOperator
)

type WithdrawalError struct {
	Kind       WithdrawalErrorKind
	DepositIdx uint32
	Expected   uint64
	Actual     uint64
}

func (e *WithdrawalError) Error() string {
	switch e.Kind {
	case WithdrawalErrNoUnassignedDeposits:
		return "no unassigned deposits"
	case WithdrawalErrAmountMismatch:
		return fmt.Sprintf(
			"withdrawal amount mismatch for deposit %d: expected %d, got %d",
			e.DepositIdx, e.Expected, e.Actual,
		)
	case WithdrawalErrNoEligibleOperator:
		return fmt.Sprintf(
			"no eligible operator remaining to reassign deposit %d", e.DepositIdx,
		)
	default:
		return fmt.Sprintf("unknown withdrawal error kind %d", e.Kind)
	}
}

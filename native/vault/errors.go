package vault

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	errNilState      = errors.New("vault engine: state not configured")
	errNilAdapter    = errors.New("vault engine: lending adapter not configured")
	errNilRegistry   = errors.New("vault engine: tenant registry not configured")
	errInvalidAmount = errors.New("vault engine: amount must be positive")

	// ErrTenantNotRegistered signals the tenant identifier is unknown to the
	// registry.
	ErrTenantNotRegistered = errors.New("vault engine: tenant not registered")
	// ErrUnauthorizedTenantAccess signals the caller is not the tenant's
	// configured operator.
	ErrUnauthorizedTenantAccess = errors.New("vault engine: unauthorized tenant access")
	// ErrAddressZero rejects the zero address wherever an identifier is
	// required.
	ErrAddressZero = errors.New("vault engine: address must not be zero")
	// ErrArrayLengthMismatch rejects batches whose amount and borrower slices
	// differ in length.
	ErrArrayLengthMismatch = errors.New("vault engine: batch array length mismatch")
	// ErrBatchSizeExceeded rejects batches above the configured bound.
	ErrBatchSizeExceeded = errors.New("vault engine: batch size exceeded")
	// ErrZeroAmount rejects batch settlements with a zero total.
	ErrZeroAmount = errors.New("vault engine: total amount must not be zero")
	// ErrRepaymentFailed aborts a batch when any single adapter repayment
	// reports failure. The batch is all-or-nothing.
	ErrRepaymentFailed = errors.New("vault engine: batch repayment failed")
	// ErrEpochYieldApplied guards against applying epoch yield twice for the
	// same (epoch, tenant) pair.
	ErrEpochYieldApplied = errors.New("vault engine: epoch yield already applied")
	// ErrScoreOutOfRange rejects performance scores above 10000 basis points.
	ErrScoreOutOfRange = errors.New("vault engine: performance score exceeds 10000 bps")
)

// InsufficientBalanceError reports a balance check failure together with the
// requested and available amounts.
type InsufficientBalanceError struct {
	Requested *big.Int
	Available *big.Int
}

// Error implements the error interface.
func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("vault engine: insufficient balance: requested %s, available %s", e.Requested, e.Available)
}

// IsInsufficientBalance reports whether err is an InsufficientBalanceError.
func IsInsufficientBalance(err error) bool {
	var target *InsufficientBalanceError
	return errors.As(err, &target)
}

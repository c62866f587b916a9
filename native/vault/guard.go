package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Stateless validation helpers shared by the accrual and settlement engines.
// They reject bad input before any state mutation occurs.

// CheckAddress rejects the zero address.
func CheckAddress(addr common.Address) error {
	if addr == (common.Address{}) {
		return ErrAddressZero
	}
	return nil
}

// CheckRegistered verifies the tenant exists in the registry.
func CheckRegistered(reg Registry, tenant common.Address) error {
	if reg == nil {
		return errNilRegistry
	}
	ok, err := reg.IsRegistered(tenant)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTenantNotRegistered
	}
	return nil
}

// CheckOperator verifies the caller is the tenant's configured operator.
func CheckOperator(entry RegistryEntry, caller common.Address) error {
	if entry.Operator != caller {
		return ErrUnauthorizedTenantAccess
	}
	return nil
}

// CheckBalance verifies requested does not exceed available. The returned
// error carries both amounts for the caller.
func CheckBalance(requested, available *big.Int) error {
	if requested == nil || available == nil || available.Cmp(requested) < 0 {
		return &InsufficientBalanceError{
			Requested: copyBigInt(requested),
			Available: copyBigInt(available),
		}
	}
	return nil
}

// CheckBatchBounds validates the paired batch slices: equal lengths and a
// size no greater than max.
func CheckBatchBounds(amounts, borrowers int, max int) error {
	if amounts != borrowers {
		return ErrArrayLengthMismatch
	}
	if max > 0 && amounts > max {
		return ErrBatchSizeExceeded
	}
	return nil
}

// performanceScoreMaxBps is the inclusive ceiling for tenant performance
// scores.
const performanceScoreMaxBps = 10_000

// CheckPerformanceScore validates a score expressed in basis points.
func CheckPerformanceScore(bps uint64) error {
	if bps > performanceScoreMaxBps {
		return ErrScoreOutOfRange
	}
	return nil
}

// ensureEpochUnapplied is the idempotence guard for epoch-scoped yield
// application.
func (e *Engine) ensureEpochUnapplied(epoch uint64, tenant common.Address) error {
	applied, err := e.state.EpochYieldApplied(epoch, tenant)
	if err != nil {
		return err
	}
	if applied {
		return ErrEpochYieldApplied
	}
	return nil
}

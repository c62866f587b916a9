package vault

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"tenantvault/core/events"
	nativecommon "tenantvault/native/common"
)

// ProcessBatchRepayment settles a bounded batch of borrower positions through
// the lending adapter. The batch is all-or-nothing at the adapter-call level:
// any single repayment failure aborts the whole batch and no local state is
// touched. On success the pooled yield reservation is reduced by the repaid
// amount (floored at zero) and the current epoch's allocation is decremented
// best-effort.
//
// The engine grants the adapter a scoped spending authorization for exactly
// totalAmount before the loop and revokes it once the loop completes,
// regardless of outcome. All local state mutation happens strictly after the
// external calls so a re-entering adapter can never observe an inconsistent
// reservation.
func (e *Engine) ProcessBatchRepayment(borrowers []common.Address, amounts []*big.Int, totalAmount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.adapter == nil {
		return nil, errNilAdapter
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := CheckBatchBounds(len(amounts), len(borrowers), e.maxBatch); err != nil {
		return nil, err
	}
	if totalAmount == nil || totalAmount.Sign() == 0 {
		return nil, ErrZeroAmount
	}

	if err := e.adapter.ApproveSpending(totalAmount); err != nil {
		return nil, err
	}

	repaid := big.NewInt(0)
	var loopErr error
	for i := range amounts {
		amount := amounts[i]
		if amount == nil || amount.Sign() == 0 {
			continue
		}
		if err := e.adapter.RepayOnBehalf(borrowers[i], amount); err != nil {
			loopErr = fmt.Errorf("%w: entry %d: %v", ErrRepaymentFailed, i, err)
			break
		}
		repaid.Add(repaid, amount)
	}

	// Revoke the scoped authorization unconditionally. A failure to revoke
	// after a failed batch is reported, but never masks the repayment error.
	if err := e.adapter.ApproveSpending(big.NewInt(0)); err != nil && loopErr == nil {
		loopErr = err
	}
	if loopErr != nil {
		return nil, loopErr
	}

	if err := e.settleEpochAllocation(repaid); err != nil {
		return nil, err
	}

	reserve, err := e.ensureReserve()
	if err != nil {
		return nil, err
	}
	reserved := new(big.Int).Sub(reserve.TotalYieldReserved, repaid)
	if reserved.Sign() < 0 {
		reserved.SetInt64(0)
	}
	reserve.TotalYieldReserved = reserved
	if err := e.state.PutReserve(reserve); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.BatchSettled{
		Entries:  len(amounts),
		Repaid:   new(big.Int).Set(repaid),
		Reserved: new(big.Int).Set(reserved),
	})
	return repaid, nil
}

// settleEpochAllocation decrements the current epoch's yield allocation by
// the repaid amount. The bookkeeping is best-effort: a shortfall leaves the
// allocation untouched rather than underflowing, and an absent epoch manager
// skips the step entirely.
func (e *Engine) settleEpochAllocation(repaid *big.Int) error {
	if e.epochs == nil || repaid.Sign() == 0 {
		return nil
	}
	epoch, err := e.epochs.CurrentEpoch()
	if err != nil {
		return err
	}
	allocated, err := e.state.EpochAllocation(epoch)
	if err != nil {
		return err
	}
	if allocated == nil || allocated.Cmp(repaid) < 0 {
		return nil
	}
	return e.state.SetEpochAllocation(epoch, new(big.Int).Sub(allocated, repaid))
}

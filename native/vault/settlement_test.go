package vault

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"tenantvault/core/events"
)

func TestProcessBatchRepaymentHappyPath(t *testing.T) {
	adapter := newMockAdapter(1000, 1200)
	engine, state, recorder := newTestEngine(adapter, newMockRegistry())
	state.reserve = &PooledReserve{
		TotalYieldReserved: big.NewInt(150),
		TotalPrincipal:     big.NewInt(1000),
	}

	borrowers := []common.Address{testAddr(0x10), testAddr(0x11), testAddr(0x12)}
	amounts := []*big.Int{big.NewInt(40), big.NewInt(0), big.NewInt(60)}

	repaid, err := engine.ProcessBatchRepayment(borrowers, amounts, big.NewInt(100))
	if err != nil {
		t.Fatalf("batch repayment: %v", err)
	}
	if repaid.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected repaid: %s", repaid)
	}

	// Zero entries are skipped, so only two adapter repayments land.
	if len(adapter.repayments) != 2 {
		t.Fatalf("expected 2 repayments, got %d", len(adapter.repayments))
	}

	// Exact-amount authorization granted first, revoked to zero afterwards.
	if len(adapter.approved) != 2 {
		t.Fatalf("expected approve/revoke pair, got %d calls", len(adapter.approved))
	}
	if adapter.approved[0].Cmp(big.NewInt(100)) != 0 || adapter.approved[1].Sign() != 0 {
		t.Fatalf("unexpected authorization sequence: %v", adapter.approved)
	}

	if state.reserve.TotalYieldReserved.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("unexpected reservation: %s", state.reserve.TotalYieldReserved)
	}

	if len(recorder.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(recorder.Events))
	}
	settled, ok := recorder.Events[0].(events.BatchSettled)
	if !ok {
		t.Fatalf("expected BatchSettled, got %T", recorder.Events[0])
	}
	if settled.Repaid.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected event repaid: %s", settled.Repaid)
	}
}

func TestProcessBatchRepaymentAllOrNothing(t *testing.T) {
	adapter := newMockAdapter(1000, 1200)
	adapter.failAtEntry = 1
	engine, state, _ := newTestEngine(adapter, newMockRegistry())
	state.reserve = &PooledReserve{
		TotalYieldReserved: big.NewInt(150),
		TotalPrincipal:     big.NewInt(1000),
	}

	borrowers := []common.Address{testAddr(0x10), testAddr(0x11)}
	amounts := []*big.Int{big.NewInt(40), big.NewInt(60)}

	_, err := engine.ProcessBatchRepayment(borrowers, amounts, big.NewInt(100))
	if !errors.Is(err, ErrRepaymentFailed) {
		t.Fatalf("expected ErrRepaymentFailed, got %v", err)
	}

	// The reservation is untouched by the failed batch.
	if state.reserve.TotalYieldReserved.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("reservation mutated on failure: %s", state.reserve.TotalYieldReserved)
	}

	// The scoped authorization is still revoked.
	if len(adapter.approved) != 2 || adapter.approved[1].Sign() != 0 {
		t.Fatalf("authorization not revoked after failure: %v", adapter.approved)
	}
}

func TestProcessBatchRepaymentValidation(t *testing.T) {
	adapter := newMockAdapter(0, 0)
	engine, _, _ := newTestEngine(adapter, newMockRegistry())

	_, err := engine.ProcessBatchRepayment(
		[]common.Address{testAddr(0x10)},
		[]*big.Int{big.NewInt(1), big.NewInt(2)},
		big.NewInt(3),
	)
	if !errors.Is(err, ErrArrayLengthMismatch) {
		t.Fatalf("expected ErrArrayLengthMismatch, got %v", err)
	}

	engine.SetMaxBatchSize(1)
	_, err = engine.ProcessBatchRepayment(
		[]common.Address{testAddr(0x10), testAddr(0x11)},
		[]*big.Int{big.NewInt(1), big.NewInt(2)},
		big.NewInt(3),
	)
	if !errors.Is(err, ErrBatchSizeExceeded) {
		t.Fatalf("expected ErrBatchSizeExceeded, got %v", err)
	}

	engine.SetMaxBatchSize(DefaultMaxBatchSize)
	_, err = engine.ProcessBatchRepayment(
		[]common.Address{testAddr(0x10)},
		[]*big.Int{big.NewInt(1)},
		big.NewInt(0),
	)
	if !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}

	// No adapter interaction happens on rejected input.
	if len(adapter.approved) != 0 || len(adapter.repayments) != 0 {
		t.Fatalf("adapter touched by invalid batches")
	}
}

func TestProcessBatchRepaymentEpochDecrement(t *testing.T) {
	adapter := newMockAdapter(1000, 1200)
	engine, state, _ := newTestEngine(adapter, newMockRegistry())
	epochs := newMockEpochManager(5)
	engine.SetEpochManager(epochs)
	state.reserve = &PooledReserve{
		TotalYieldReserved: big.NewInt(500),
		TotalPrincipal:     big.NewInt(1000),
	}
	if err := state.SetEpochAllocation(5, big.NewInt(120)); err != nil {
		t.Fatalf("seed allocation: %v", err)
	}

	if _, err := engine.ProcessBatchRepayment(
		[]common.Address{testAddr(0x10)},
		[]*big.Int{big.NewInt(100)},
		big.NewInt(100),
	); err != nil {
		t.Fatalf("batch repayment: %v", err)
	}
	alloc, _ := state.EpochAllocation(5)
	if alloc.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("unexpected allocation: %s", alloc)
	}

	// An allocation smaller than the repaid amount is left untouched.
	if _, err := engine.ProcessBatchRepayment(
		[]common.Address{testAddr(0x11)},
		[]*big.Int{big.NewInt(100)},
		big.NewInt(100),
	); err != nil {
		t.Fatalf("second batch: %v", err)
	}
	alloc, _ = state.EpochAllocation(5)
	if alloc.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("allocation underflowed: %s", alloc)
	}
}

func TestGuardHelpers(t *testing.T) {
	if err := CheckAddress(common.Address{}); !errors.Is(err, ErrAddressZero) {
		t.Fatalf("expected ErrAddressZero, got %v", err)
	}
	if err := CheckAddress(testAddr(0x01)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := CheckPerformanceScore(10000); err != nil {
		t.Fatalf("10000 bps must be accepted: %v", err)
	}
	if err := CheckPerformanceScore(10001); !errors.Is(err, ErrScoreOutOfRange) {
		t.Fatalf("expected ErrScoreOutOfRange, got %v", err)
	}
	if err := CheckOperator(RegistryEntry{Operator: testAddr(0x01)}, testAddr(0x02)); !errors.Is(err, ErrUnauthorizedTenantAccess) {
		t.Fatalf("expected ErrUnauthorizedTenantAccess, got %v", err)
	}
	if err := CheckBatchBounds(3, 3, 0); err != nil {
		t.Fatalf("unbounded batch rejected: %v", err)
	}
}

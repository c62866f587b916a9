package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"tenantvault/core/events"
	nativecommon "tenantvault/native/common"
)

var (
	// indexScale is the fixed-point scale of the global deposit index.
	indexScale = big.NewInt(1_000_000_000_000_000_000)
	// basisPointsDenominator converts yield-share percentages to fractions.
	basisPointsDenominator = big.NewInt(10_000)
)

const moduleName = "vault"

// DefaultMaxBatchSize bounds the number of entries a single batch settlement
// may carry.
const DefaultMaxBatchSize = 100

// Engine orchestrates the yield-bearing pooled position shared by all
// tenants: index refresh, per-tenant accrual, deposits and withdrawals, and
// epoch-scoped yield allocation.
type Engine struct {
	state    State
	adapter  LendingAdapter
	registry Registry
	epochs   EpochManager
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	maxBatch int
}

// NewEngine constructs a vault engine wired to the external lending adapter
// and tenant registry.
func NewEngine(adapter LendingAdapter, registry Registry) *Engine {
	return &Engine{
		adapter:  adapter,
		registry: registry,
		emitter:  events.NoopEmitter{},
		maxBatch: DefaultMaxBatchSize,
	}
}

// SetState wires the engine to the persistence layer.
func (e *Engine) SetState(state State) { e.state = state }

// SetEpochManager configures the optional epoch accounting collaborator.
func (e *Engine) SetEpochManager(m EpochManager) {
	if e == nil {
		return
	}
	e.epochs = m
}

// SetEmitter configures the observability event sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetPauses wires the administrative pause view consulted before mutations.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetMaxBatchSize overrides the batch settlement entry bound. Zero disables
// the check.
func (e *Engine) SetMaxBatchSize(max int) {
	if e == nil {
		return
	}
	e.maxBatch = max
}

// ComputeGlobalIndex derives the next global deposit index from the adapter's
// reported figures. A zero principal leaves the index unchanged; otherwise
// the candidate is max(assets-reserved, 0)*SCALE/principal, clamped so the
// index never decreases even when the adapter temporarily reports a lower
// ratio.
func ComputeGlobalIndex(principal, assets, reserved, current *big.Int) *big.Int {
	if current == nil {
		current = new(big.Int).Set(indexScale)
	}
	if principal == nil || principal.Sign() == 0 {
		return new(big.Int).Set(current)
	}
	available := copyBigInt(assets)
	available.Sub(available, copyBigInt(reserved))
	if available.Sign() < 0 {
		available.SetInt64(0)
	}
	candidate := available.Mul(available, indexScale)
	candidate.Quo(candidate, principal)
	if candidate.Cmp(current) < 0 {
		return new(big.Int).Set(current)
	}
	return candidate
}

// RefreshGlobalIndex reads the adapter's reported principal and assets,
// recomputes the global deposit index, persists it when it advanced, and
// returns the current value.
func (e *Engine) RefreshGlobalIndex() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.adapter == nil {
		return nil, errNilAdapter
	}
	principal, err := e.adapter.TotalPrincipalDeposited()
	if err != nil {
		return nil, err
	}
	assets, err := e.adapter.TotalAssets()
	if err != nil {
		return nil, err
	}
	reserve, err := e.ensureReserve()
	if err != nil {
		return nil, err
	}
	current, err := e.ensureGlobalIndex()
	if err != nil {
		return nil, err
	}
	next := ComputeGlobalIndex(principal, assets, reserve.TotalYieldReserved, current)
	if next.Cmp(current) > 0 {
		if err := e.state.SetGlobalIndex(next); err != nil {
			return nil, err
		}
	}
	return next, nil
}

// accruedYield computes principal*(index delta)*shareBps/(SCALE*10000) with
// truncating division.
func accruedYield(principal, ratio *big.Int, shareBps uint64) *big.Int {
	if principal == nil || principal.Sign() <= 0 || ratio == nil || ratio.Sign() <= 0 || shareBps == 0 {
		return big.NewInt(0)
	}
	accrued := new(big.Int).Mul(principal, ratio)
	accrued.Mul(accrued, new(big.Int).SetUint64(shareBps))
	denom := new(big.Int).Mul(indexScale, basisPointsDenominator)
	return accrued.Quo(accrued, denom)
}

// AccrueTenantYield apportions the tenant's share of pooled yield based on
// the movement of the global deposit index since the tenant's last accrual.
// The tenant's observed index is always advanced to the current global index,
// even when no yield accrues. The accrued amount is returned.
func (e *Engine) AccrueTenantYield(tenant common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := CheckAddress(tenant); err != nil {
		return nil, err
	}
	if err := CheckRegistered(e.registry, tenant); err != nil {
		return nil, err
	}
	entry, err := e.registry.GetTenant(tenant)
	if err != nil {
		return nil, err
	}

	index, err := e.ensureGlobalIndex()
	if err != nil {
		return nil, err
	}
	acct, err := e.ensureTenant(tenant, index)
	if err != nil {
		return nil, err
	}

	// A zero-share tenant only has its observed index advanced. Skipping the
	// advance would let a later configuration change claim yield for the
	// unconfigured interval.
	if entry.YieldShareBps == 0 {
		acct.LastGlobalIndex = new(big.Int).Set(index)
		return big.NewInt(0), e.state.PutTenant(tenant, acct)
	}

	preIndex := new(big.Int).Set(acct.LastGlobalIndex)
	accrued := big.NewInt(0)
	if index.Cmp(acct.LastGlobalIndex) > 0 {
		ratio := new(big.Int).Sub(index, acct.LastGlobalIndex)
		accrued = accruedYield(acct.TotalPrincipal, ratio, entry.YieldShareBps)
	}

	acct.LastGlobalIndex = new(big.Int).Set(index)
	if accrued.Sign() == 0 {
		return accrued, e.state.PutTenant(tenant, acct)
	}

	reserve, err := e.ensureReserve()
	if err != nil {
		return nil, err
	}
	acct.TotalPrincipal = new(big.Int).Add(acct.TotalPrincipal, accrued)
	reserve.TotalPrincipal = new(big.Int).Add(reserve.TotalPrincipal, accrued)
	reserve.TotalYieldReserved = new(big.Int).Add(reserve.TotalYieldReserved, accrued)

	if err := e.state.PutTenant(tenant, acct); err != nil {
		return nil, err
	}
	if err := e.state.PutReserve(reserve); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.YieldGenerated{
		Tenant:    tenant,
		PreIndex:  preIndex,
		PostIndex: new(big.Int).Set(index),
		Amount:    new(big.Int).Set(accrued),
	})
	e.emitter.Emit(events.YieldAccrued{
		Tenant:         tenant,
		Accrued:        new(big.Int).Set(accrued),
		ShareBps:       entry.YieldShareBps,
		TotalPrincipal: new(big.Int).Set(reserve.TotalPrincipal),
	})
	return accrued, nil
}

// PreviewPotentialYield computes the yield the next AccrueTenantYield call
// would credit at this instant without mutating any state.
func (e *Engine) PreviewPotentialYield(tenant common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := CheckRegistered(e.registry, tenant); err != nil {
		return nil, err
	}
	entry, err := e.registry.GetTenant(tenant)
	if err != nil {
		return nil, err
	}
	if entry.YieldShareBps == 0 {
		return big.NewInt(0), nil
	}
	index, err := e.ensureGlobalIndex()
	if err != nil {
		return nil, err
	}
	acct, err := e.ensureTenant(tenant, index)
	if err != nil {
		return nil, err
	}
	if index.Cmp(acct.LastGlobalIndex) <= 0 {
		return big.NewInt(0), nil
	}
	ratio := new(big.Int).Sub(index, acct.LastGlobalIndex)
	return accruedYield(acct.TotalPrincipal, ratio, entry.YieldShareBps), nil
}

// EpochYieldAvailable returns the positive difference between adapter assets
// and adapter principal. When includeUnshared is false the amount already
// allocated within the epoch is subtracted, with a zero floor, so an
// epoch-scoped distribution can never double-count earmarked yield.
func EpochYieldAvailable(assets, principal, allocated *big.Int, includeUnshared bool) *big.Int {
	diff := copyBigInt(assets)
	diff.Sub(diff, copyBigInt(principal))
	if diff.Sign() < 0 {
		return big.NewInt(0)
	}
	if includeUnshared {
		return diff
	}
	diff.Sub(diff, copyBigInt(allocated))
	if diff.Sign() < 0 {
		return big.NewInt(0)
	}
	return diff
}

// CurrentEpochYield reports how much pooled yield the current epoch may still
// draw. With includeUnshared set the full adapter surplus is returned
// regardless of prior allocations.
func (e *Engine) CurrentEpochYield(includeUnshared bool) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.adapter == nil {
		return nil, errNilAdapter
	}
	assets, err := e.adapter.TotalAssets()
	if err != nil {
		return nil, err
	}
	principal, err := e.adapter.TotalPrincipalDeposited()
	if err != nil {
		return nil, err
	}
	allocated := big.NewInt(0)
	if e.epochs != nil && !includeUnshared {
		epoch, err := e.epochs.CurrentEpoch()
		if err != nil {
			return nil, err
		}
		allocated, err = e.state.EpochAllocation(epoch)
		if err != nil {
			return nil, err
		}
	}
	return EpochYieldAvailable(assets, principal, allocated, includeUnshared), nil
}

// ApplyEpochYield allocates epoch-scoped yield to a tenant exactly once per
// (epoch, tenant) pair. The amount is capped by the epoch's remaining
// unallocated yield.
func (e *Engine) ApplyEpochYield(epoch uint64, tenant common.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	if err := CheckRegistered(e.registry, tenant); err != nil {
		return err
	}
	if err := e.ensureEpochUnapplied(epoch, tenant); err != nil {
		return err
	}
	available, err := e.CurrentEpochYield(false)
	if err != nil {
		return err
	}
	if err := CheckBalance(amount, available); err != nil {
		return err
	}

	allocated, err := e.state.EpochAllocation(epoch)
	if err != nil {
		return err
	}
	// The epoch manager is notified before anything is persisted, and the
	// idempotence marker is written last, so a failure at any step leaves the
	// (epoch, tenant) pair retryable.
	if e.epochs != nil {
		if err := e.epochs.AllocateYield(tenant, amount); err != nil {
			return err
		}
	}
	if err := e.state.SetEpochAllocation(epoch, new(big.Int).Add(allocated, amount)); err != nil {
		return err
	}
	if err := e.state.MarkEpochYieldApplied(epoch, tenant); err != nil {
		return err
	}
	e.emitter.Emit(events.EpochYieldApplied{
		Epoch:  epoch,
		Tenant: tenant,
		Amount: new(big.Int).Set(amount),
	})
	return nil
}

// Deposit routes tenant principal into the pooled position. The global index
// is refreshed and pending yield accrued before the deposit so share issuance
// uses an up-to-date index. The minted share amount is returned.
func (e *Engine) Deposit(operator, tenant common.Address, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.adapter == nil {
		return nil, errNilAdapter
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	if err := CheckAddress(operator); err != nil {
		return nil, err
	}
	if err := CheckRegistered(e.registry, tenant); err != nil {
		return nil, err
	}
	entry, err := e.registry.GetTenant(tenant)
	if err != nil {
		return nil, err
	}
	if err := CheckOperator(entry, operator); err != nil {
		return nil, err
	}

	if _, err := e.RefreshGlobalIndex(); err != nil {
		return nil, err
	}
	if _, err := e.AccrueTenantYield(tenant); err != nil {
		return nil, err
	}

	index, err := e.ensureGlobalIndex()
	if err != nil {
		return nil, err
	}
	acct, err := e.ensureTenant(tenant, index)
	if err != nil {
		return nil, err
	}
	reserve, err := e.ensureReserve()
	if err != nil {
		return nil, err
	}

	// Shares are issued against the current index, defaulting to par when the
	// tenant has none yet.
	shares := new(big.Int)
	if acct.TotalShares.Sign() == 0 {
		shares.Set(amount)
	} else {
		shares.Mul(amount, indexScale)
		shares.Quo(shares, index)
		if shares.Sign() == 0 {
			shares.Set(amount)
		}
	}

	// External call before any persisted mutation: a failed deposit leaves
	// the vault untouched.
	if err := e.adapter.DepositToProtocol(amount); err != nil {
		return nil, err
	}

	acct.TotalPrincipal = new(big.Int).Add(acct.TotalPrincipal, amount)
	acct.TotalShares = new(big.Int).Add(acct.TotalShares, shares)
	acct.TotalUnits = new(big.Int).Add(acct.TotalUnits, amount)
	reserve.TotalPrincipal = new(big.Int).Add(reserve.TotalPrincipal, amount)

	if err := e.state.PutTenant(tenant, acct); err != nil {
		return nil, err
	}
	if err := e.state.PutReserve(reserve); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.TenantDeposited{
		Tenant: tenant,
		Amount: new(big.Int).Set(amount),
		Shares: new(big.Int).Set(shares),
	})
	return shares, nil
}

// Withdraw releases tenant principal (including accrued yield, which the
// preceding accrual folds into principal) back through the lending adapter.
func (e *Engine) Withdraw(operator, tenant common.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.adapter == nil {
		return errNilAdapter
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	if err := CheckAddress(operator); err != nil {
		return err
	}
	if err := CheckRegistered(e.registry, tenant); err != nil {
		return err
	}
	entry, err := e.registry.GetTenant(tenant)
	if err != nil {
		return err
	}
	if err := CheckOperator(entry, operator); err != nil {
		return err
	}

	if _, err := e.RefreshGlobalIndex(); err != nil {
		return err
	}
	if _, err := e.AccrueTenantYield(tenant); err != nil {
		return err
	}

	index, err := e.ensureGlobalIndex()
	if err != nil {
		return err
	}
	acct, err := e.ensureTenant(tenant, index)
	if err != nil {
		return err
	}
	if err := CheckBalance(amount, acct.TotalPrincipal); err != nil {
		return err
	}
	reserve, err := e.ensureReserve()
	if err != nil {
		return err
	}

	// Burn shares pro rata against the pre-withdrawal principal.
	burned := new(big.Int)
	if acct.TotalPrincipal.Sign() > 0 {
		burned.Mul(amount, acct.TotalShares)
		burned.Quo(burned, acct.TotalPrincipal)
	}
	if burned.Cmp(acct.TotalShares) > 0 {
		burned.Set(acct.TotalShares)
	}

	if err := e.adapter.WithdrawFromProtocol(amount); err != nil {
		return err
	}

	acct.TotalPrincipal = new(big.Int).Sub(acct.TotalPrincipal, amount)
	acct.TotalShares = new(big.Int).Sub(acct.TotalShares, burned)
	if acct.TotalUnits.Cmp(amount) >= 0 {
		acct.TotalUnits = new(big.Int).Sub(acct.TotalUnits, amount)
	} else {
		acct.TotalUnits = big.NewInt(0)
	}
	reserve.TotalPrincipal = new(big.Int).Sub(reserve.TotalPrincipal, amount)

	if err := e.state.PutTenant(tenant, acct); err != nil {
		return err
	}
	if err := e.state.PutReserve(reserve); err != nil {
		return err
	}

	e.emitter.Emit(events.TenantWithdrawn{
		Tenant: tenant,
		Amount: new(big.Int).Set(amount),
	})
	return nil
}

func (e *Engine) ensureTenant(addr common.Address, index *big.Int) (*TenantAccount, error) {
	acct, err := e.state.GetTenant(addr)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		acct = &TenantAccount{Address: addr}
	}
	if acct.TotalPrincipal == nil {
		acct.TotalPrincipal = big.NewInt(0)
	}
	if acct.TotalShares == nil {
		acct.TotalShares = big.NewInt(0)
	}
	if acct.TotalUnits == nil {
		acct.TotalUnits = big.NewInt(0)
	}
	if acct.LastGlobalIndex == nil || acct.LastGlobalIndex.Sign() == 0 {
		if index != nil && index.Sign() > 0 {
			acct.LastGlobalIndex = new(big.Int).Set(index)
		} else {
			acct.LastGlobalIndex = new(big.Int).Set(indexScale)
		}
	}
	return acct, nil
}

func (e *Engine) ensureReserve() (*PooledReserve, error) {
	reserve, err := e.state.GetReserve()
	if err != nil {
		return nil, err
	}
	if reserve == nil {
		reserve = &PooledReserve{}
	}
	if reserve.TotalYieldReserved == nil {
		reserve.TotalYieldReserved = big.NewInt(0)
	}
	if reserve.TotalPrincipal == nil {
		reserve.TotalPrincipal = big.NewInt(0)
	}
	return reserve, nil
}

func (e *Engine) ensureGlobalIndex() (*big.Int, error) {
	index, err := e.state.GlobalIndex()
	if err != nil {
		return nil, err
	}
	if index == nil || index.Sign() == 0 {
		index = new(big.Int).Set(indexScale)
		if err := e.state.SetGlobalIndex(index); err != nil {
			return nil, err
		}
	}
	return index, nil
}

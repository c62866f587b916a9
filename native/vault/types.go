package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TenantAccount holds the pooled-position accounting for a single tenant.
// Amount values are denominated in base units of the shared asset and
// expressed as big integers to match on-chain precision.
type TenantAccount struct {
	// Address is the tenant identifier.
	Address common.Address
	// TotalPrincipal is the tenant's principal including all yield accrued so
	// far.
	TotalPrincipal *big.Int
	// TotalShares tracks the pool shares issued against the tenant's
	// deposits.
	TotalShares *big.Int
	// TotalUnits counts the raw deposit units issued, one per base unit of
	// principal deposited.
	TotalUnits *big.Int
	// LastGlobalIndex records the global deposit index observed at the
	// tenant's most recent accrual. It never lags the index a computation was
	// derived from.
	LastGlobalIndex *big.Int
}

// Clone produces a deep copy so callers cannot mutate engine-held state.
func (a *TenantAccount) Clone() *TenantAccount {
	if a == nil {
		return nil
	}
	out := &TenantAccount{Address: a.Address}
	out.TotalPrincipal = copyBigInt(a.TotalPrincipal)
	out.TotalShares = copyBigInt(a.TotalShares)
	out.TotalUnits = copyBigInt(a.TotalUnits)
	out.LastGlobalIndex = copyBigInt(a.LastGlobalIndex)
	return out
}

// PooledReserve aggregates cross-tenant accounting. It is updated atomically
// with every tenant mutation so the invariants
// sum(tenant principal) == TotalPrincipal and
// TotalYieldReserved <= adapter-reported assets hold between operations.
type PooledReserve struct {
	// TotalYieldReserved is the pooled yield already earmarked for tenants.
	TotalYieldReserved *big.Int
	// TotalPrincipal is the principal summed across all tenants.
	TotalPrincipal *big.Int
}

// Clone produces a deep copy of the reserve.
func (r *PooledReserve) Clone() *PooledReserve {
	if r == nil {
		return nil
	}
	return &PooledReserve{
		TotalYieldReserved: copyBigInt(r.TotalYieldReserved),
		TotalPrincipal:     copyBigInt(r.TotalPrincipal),
	}
}

// RegistryEntry describes a tenant's configuration as reported by the tenant
// registry collaborator.
type RegistryEntry struct {
	// Operator is the address authorized to move the tenant's funds.
	Operator common.Address
	// YieldShareBps is the tenant's configured yield split in basis points.
	YieldShareBps uint64
}

// State abstracts the persistence layer the vault engine operates against.
type State interface {
	GetTenant(addr common.Address) (*TenantAccount, error)
	PutTenant(addr common.Address, acct *TenantAccount) error
	GetReserve() (*PooledReserve, error)
	PutReserve(res *PooledReserve) error
	GlobalIndex() (*big.Int, error)
	SetGlobalIndex(idx *big.Int) error
	EpochYieldApplied(epoch uint64, tenant common.Address) (bool, error)
	MarkEpochYieldApplied(epoch uint64, tenant common.Address) error
	EpochAllocation(epoch uint64) (*big.Int, error)
	SetEpochAllocation(epoch uint64, amount *big.Int) error
}

// Registry is the external tenant registry collaborator. Tenant CRUD lives
// behind it; the engine only reads.
type Registry interface {
	IsRegistered(tenant common.Address) (bool, error)
	GetTenant(tenant common.Address) (RegistryEntry, error)
}

// LendingAdapter fronts the external money market holding the pooled
// position. A non-nil error from any method is a hard failure: the enclosing
// operation aborts without partial effect.
type LendingAdapter interface {
	DepositToProtocol(amount *big.Int) error
	WithdrawFromProtocol(amount *big.Int) error
	TotalAssets() (*big.Int, error)
	TotalPrincipalDeposited() (*big.Int, error)
	// ApproveSpending grants the adapter a scoped spending authorization for
	// exactly the given amount. Passing zero revokes it.
	ApproveSpending(amount *big.Int) error
	RepayOnBehalf(borrower common.Address, amount *big.Int) error
}

// EpochManager is the optional epoch accounting collaborator. When absent the
// engine skips epoch bookkeeping entirely.
type EpochManager interface {
	CurrentEpoch() (uint64, error)
	AllocateYield(tenant common.Address, amount *big.Int) error
}

func copyBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

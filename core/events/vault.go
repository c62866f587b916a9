package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// TypeYieldGenerated is emitted when the global deposit index advances and
	// fresh yield becomes attributable to a tenant.
	TypeYieldGenerated = "vault.yield.generated"
	// TypeYieldAccrued is emitted when a tenant's principal is credited with
	// its share of pooled yield.
	TypeYieldAccrued = "vault.yield.accrued"
	// TypeTenantDeposited is emitted when a tenant deposits principal into the
	// pooled position.
	TypeTenantDeposited = "vault.tenant.deposited"
	// TypeTenantWithdrawn is emitted when a tenant withdraws principal from
	// the pooled position.
	TypeTenantWithdrawn = "vault.tenant.withdrawn"
	// TypeBatchSettled is emitted after a batch repayment lands in full.
	TypeBatchSettled = "vault.batch.settled"
	// TypeEpochYieldApplied is emitted when epoch-scoped yield is allocated to
	// a tenant for the first time within that epoch.
	TypeEpochYieldApplied = "vault.epoch.yield_applied"
)

// YieldGenerated captures the index movement observed while refreshing the
// global deposit index. PreIndex and PostIndex allow downstream auditors to
// replay the accrual.
type YieldGenerated struct {
	Tenant    common.Address
	PreIndex  *big.Int
	PostIndex *big.Int
	Amount    *big.Int
}

// EventType implements the Event interface.
func (YieldGenerated) EventType() string { return TypeYieldGenerated }

// YieldAccrued records the yield credited to a single tenant together with
// the aggregate principal after the accrual.
type YieldAccrued struct {
	Tenant         common.Address
	Accrued        *big.Int
	ShareBps       uint64
	TotalPrincipal *big.Int
}

// EventType implements the Event interface.
func (YieldAccrued) EventType() string { return TypeYieldAccrued }

// TenantDeposited captures a principal deposit routed into the pooled
// position.
type TenantDeposited struct {
	Tenant common.Address
	Amount *big.Int
	Shares *big.Int
}

// EventType implements the Event interface.
func (TenantDeposited) EventType() string { return TypeTenantDeposited }

// TenantWithdrawn captures a principal withdrawal out of the pooled position.
type TenantWithdrawn struct {
	Tenant common.Address
	Amount *big.Int
}

// EventType implements the Event interface.
func (TenantWithdrawn) EventType() string { return TypeTenantWithdrawn }

// BatchSettled summarises a completed batch repayment.
type BatchSettled struct {
	Entries  int
	Repaid   *big.Int
	Reserved *big.Int
}

// EventType implements the Event interface.
func (BatchSettled) EventType() string { return TypeBatchSettled }

// EpochYieldApplied records the first application of epoch-scoped yield for a
// given (epoch, tenant) pair.
type EpochYieldApplied struct {
	Epoch  uint64
	Tenant common.Address
	Amount *big.Int
}

// EventType implements the Event interface.
func (EpochYieldApplied) EventType() string { return TypeEpochYieldApplied }

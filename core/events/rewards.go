package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// TypeStaleClaimAttempt is emitted when a user attempts to claim against
	// balances that predate the latest authorized update.
	TypeStaleClaimAttempt = "rewards.claim.stale"
	// TypeRewardClaimed is emitted per tenant when a claim pays out.
	TypeRewardClaimed = "rewards.claim.paid"
	// TypeRewardClaimSettled is emitted once per claim with the aggregate
	// amount transferred.
	TypeRewardClaimSettled = "rewards.claim.settled"
	// TypeAuthorityRotated is emitted when the off-chain signing authority is
	// replaced.
	TypeAuthorityRotated = "rewards.authority.rotated"
)

// StaleClaimAttempt carries the user's recorded sequence alongside the
// current global update sequence so operators can diagnose missed syncs.
type StaleClaimAttempt struct {
	User           common.Address
	UserSequence   uint64
	GlobalSequence uint64
}

// EventType implements the Event interface.
func (StaleClaimAttempt) EventType() string { return TypeStaleClaimAttempt }

// RewardClaimed records a per-tenant payout. Paid may be lower than Owed when
// the funding source was pro-rated.
type RewardClaimed struct {
	User   common.Address
	Tenant common.Address
	Owed   *big.Int
	Paid   *big.Int
}

// EventType implements the Event interface.
func (RewardClaimed) EventType() string { return TypeRewardClaimed }

// RewardClaimSettled aggregates a claim's total payout across tenants.
type RewardClaimSettled struct {
	User      common.Address
	TotalOwed *big.Int
	TotalPaid *big.Int
	ProRated  bool
}

// EventType implements the Event interface.
func (RewardClaimSettled) EventType() string { return TypeRewardClaimSettled }

// AuthorityRotated records the signing authority change together with the
// sequence value consumed by the rotation.
type AuthorityRotated struct {
	Old      common.Address
	New      common.Address
	Sequence uint64
}

// EventType implements the Event interface.
func (AuthorityRotated) EventType() string { return TypeAuthorityRotated }

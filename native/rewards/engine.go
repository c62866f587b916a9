package rewards

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"tenantvault/core/events"
	nativecommon "tenantvault/native/common"
	"tenantvault/native/fixmath"
	"tenantvault/native/vault"
)

const moduleName = "rewards"

// claimDomainV1 separates claim digests from any other signed payload in the
// system.
const claimDomainV1 = "tenantvault/rewards/claim/v1"

// State abstracts the persistence the claim protocol operates against.
type State interface {
	Authority() (common.Address, error)
	SetAuthority(addr common.Address) error
	AuthoritySequence() (uint64, error)
	SetAuthoritySequence(seq uint64) error
	GlobalUpdateSequence() (uint64, error)
	SetGlobalUpdateSequence(seq uint64) error
	UserLastSyncedSequence(user common.Address) (uint64, error)
	SetUserLastSyncedSequence(user common.Address, seq uint64) error
	LedgerEntry(tenant, user common.Address) (*Entry, error)
	PutLedgerEntry(tenant, user common.Address, entry *Entry) error
}

// FundingSource fronts the pool that reward claims draw from.
type FundingSource interface {
	Available() (*big.Int, error)
	Transfer(to common.Address, amount *big.Int) error
}

// ClaimAuthorization is the off-chain-signed message authorizing a reward
// claim. Only its sequence number is persisted; the message itself is
// ephemeral.
type ClaimAuthorization struct {
	Recipient common.Address
	Tenants   []common.Address
	Amounts   []*big.Int
	Sequence  uint64
	// Expiry is advisory data checked by value against the engine clock, not
	// enforced by any runtime deadline. Zero disables the check.
	Expiry int64
}

// Hash reconstructs the canonical domain-separated digest signed by the
// reward authority.
func (a *ClaimAuthorization) Hash() ([]byte, error) {
	if a == nil {
		return nil, errNilAuthorization
	}
	if len(a.Tenants) != len(a.Amounts) {
		return nil, ErrLengthMismatch
	}
	tenants := make([]string, len(a.Tenants))
	for i, tenant := range a.Tenants {
		tenants[i] = strings.ToLower(hex.EncodeToString(tenant[:]))
	}
	amounts := make([]string, len(a.Amounts))
	for i, amount := range a.Amounts {
		if amount == nil {
			amounts[i] = "0"
			continue
		}
		amounts[i] = amount.String()
	}
	payload := fmt.Sprintf("%s|to=%s|tenants=%s|amounts=%s|seq=%d|exp=%d",
		claimDomainV1,
		strings.ToLower(hex.EncodeToString(a.Recipient[:])),
		strings.Join(tenants, ","),
		strings.Join(amounts, ","),
		a.Sequence,
		a.Expiry,
	)
	return ethcrypto.Keccak256([]byte(payload)), nil
}

// SignAuthorization produces the 65-byte signature the engine verifies. It is
// used by the off-chain updater tooling and by tests.
func SignAuthorization(a *ClaimAuthorization, key *ecdsa.PrivateKey) ([]byte, error) {
	hash, err := a.Hash()
	if err != nil {
		return nil, err
	}
	return ethcrypto.Sign(hash, key)
}

// Engine implements the signature-gated, monotonic-nonce-guarded reward
// claim protocol.
type Engine struct {
	state   State
	funding FundingSource
	emitter events.Emitter
	pauses  nativecommon.PauseView
	now     func() time.Time
}

// NewEngine constructs a rewards engine drawing from the supplied funding
// source.
func NewEngine(funding FundingSource) *Engine {
	return &Engine{
		funding: funding,
		emitter: events.NoopEmitter{},
		now:     time.Now,
	}
}

// SetState wires the engine to the persistence layer.
func (e *Engine) SetState(state State) { e.state = state }

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

// SetPauses wires the administrative pause view.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetClock overrides the engine clock, primarily for deterministic testing.
func (e *Engine) SetClock(now func() time.Time) {
	if e == nil || now == nil {
		return
	}
	e.now = now
}

func (e *Engine) nowUnix() uint64 {
	ts := e.now().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

// VerifyAuthorization recovers the signer of the authorization and checks it
// against the configured authority and the next expected sequence value. It
// performs no state mutation; Claim consumes the sequence on success.
func (e *Engine) VerifyAuthorization(auth *ClaimAuthorization, sig []byte) (common.Address, error) {
	if e == nil || e.state == nil {
		return common.Address{}, errNilState
	}
	if auth == nil {
		return common.Address{}, errNilAuthorization
	}
	hash, err := auth.Hash()
	if err != nil {
		return common.Address{}, err
	}
	if len(sig) != 65 {
		return common.Address{}, ErrSignatureInvalid
	}
	pubKey, err := ethcrypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, ErrSignatureInvalid
	}
	recovered := ethcrypto.PubkeyToAddress(*pubKey)
	authority, err := e.state.Authority()
	if err != nil {
		return common.Address{}, err
	}
	if recovered != authority {
		return common.Address{}, ErrSignerNotAuthority
	}
	last, err := e.state.AuthoritySequence()
	if err != nil {
		return common.Address{}, err
	}
	// Strictly sequential: reuse and skipping both fail.
	if auth.Sequence != last+1 {
		return common.Address{}, ErrAuthoritySequence
	}
	return recovered, nil
}

// RotateAuthority replaces the off-chain signing authority. The rotation
// consumes one sequence step so that any authorization pending under the old
// authority is invalidated.
func (e *Engine) RotateAuthority(next common.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := vault.CheckAddress(next); err != nil {
		return err
	}
	old, err := e.state.Authority()
	if err != nil {
		return err
	}
	last, err := e.state.AuthoritySequence()
	if err != nil {
		return err
	}
	if err := e.state.SetAuthoritySequence(last + 1); err != nil {
		return err
	}
	if err := e.state.SetAuthority(next); err != nil {
		return err
	}
	e.emitter.Emit(events.AuthorityRotated{Old: old, New: next, Sequence: last + 1})
	return nil
}

// RecordAllocation credits a user's claim position for a tenant. It is a
// balance-affecting update: the global update sequence advances and the user
// is re-synced to the new value, leaving every other lagging user stale.
func (e *Engine) RecordAllocation(tenant, user common.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := vault.CheckAddress(user); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrAmountExceedsLimit
	}
	now := e.nowUnix()
	entry, err := e.state.LedgerEntry(tenant, user)
	if err != nil {
		return err
	}
	if entry == nil {
		entry, err = NewEntry(nil, nil, now, flagActive)
		if err != nil {
			return err
		}
	}
	next := new(big.Int).Add(entry.Remaining(), amount)
	if err := entry.SetRemaining(next, now); err != nil {
		return err
	}
	if err := entry.SetActive(true, now); err != nil {
		return err
	}
	if err := e.state.PutLedgerEntry(tenant, user, entry); err != nil {
		return err
	}
	return e.syncUser(user)
}

// syncUser advances the global update sequence by one and records the new
// value as the user's last synced sequence.
func (e *Engine) syncUser(user common.Address) error {
	global, err := e.state.GlobalUpdateSequence()
	if err != nil {
		return err
	}
	global++
	if err := e.state.SetGlobalUpdateSequence(global); err != nil {
		return err
	}
	return e.state.SetUserLastSyncedSequence(user, global)
}

// Claim verifies the signed authorization and pays the bound amounts to the
// recipient, pro-rating when the funding source cannot cover the total owed.
// Ledger settlements and the sequence step are staged in memory and persisted
// only after the funding transfer succeeds, so a claim that fails at any point
// leaves no partial state behind. The total paid is returned.
func (e *Engine) Claim(auth *ClaimAuthorization, sig []byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.funding == nil {
		return nil, errNilFunding
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if auth == nil {
		return nil, errNilAuthorization
	}
	if len(auth.Tenants) != len(auth.Amounts) {
		return nil, ErrLengthMismatch
	}
	if err := vault.CheckAddress(auth.Recipient); err != nil {
		return nil, err
	}
	if auth.Expiry > 0 && int64(e.nowUnix()) > auth.Expiry {
		return nil, ErrAuthorizationExpired
	}

	// Claiming against balances that predate the latest authorized update is
	// refused until the user is re-synced.
	userSeq, err := e.state.UserLastSyncedSequence(auth.Recipient)
	if err != nil {
		return nil, err
	}
	globalSeq, err := e.state.GlobalUpdateSequence()
	if err != nil {
		return nil, err
	}
	if userSeq < globalSeq {
		e.emitter.Emit(events.StaleClaimAttempt{
			User:           auth.Recipient,
			UserSequence:   userSeq,
			GlobalSequence: globalSeq,
		})
		return nil, ErrStaleBalances
	}

	if _, err := e.VerifyAuthorization(auth, sig); err != nil {
		return nil, err
	}
	last, err := e.state.AuthoritySequence()
	if err != nil {
		return nil, err
	}

	totalOwed := big.NewInt(0)
	for _, amount := range auth.Amounts {
		if amount == nil {
			continue
		}
		if amount.Sign() < 0 {
			return nil, ErrAmountExceedsLimit
		}
		totalOwed.Add(totalOwed, amount)
	}

	// Stage phase: every settlement mutates an in-memory clone of its ledger
	// entry. Nothing is written back until the funding transfer has moved the
	// funds.
	totalPaid := big.NewInt(0)
	proRated := false
	staged := make(map[common.Address]*Entry)
	var stagedOrder []common.Address
	var payouts []pendingPayout
	if totalOwed.Sign() > 0 {
		available, err := e.funding.Available()
		if err != nil {
			return nil, err
		}
		if available == nil || available.Sign() < 0 {
			available = big.NewInt(0)
		}
		proRated = available.Cmp(totalOwed) < 0

		now := e.nowUnix()
		for i, tenant := range auth.Tenants {
			owed := auth.Amounts[i]
			if owed == nil || owed.Sign() == 0 {
				continue
			}
			paid := new(big.Int).Set(owed)
			if proRated {
				paid, err = prorate(owed, available, totalOwed)
				if err != nil {
					return nil, err
				}
			}
			if paid.Sign() > 0 {
				entry := staged[tenant]
				if entry == nil {
					entry, err = e.stageEntry(tenant, auth.Recipient)
					if err != nil {
						return nil, err
					}
					staged[tenant] = entry
					stagedOrder = append(stagedOrder, tenant)
				}
				if err := entry.DecrementRemaining(paid, now); err != nil {
					return nil, err
				}
				if err := entry.IncrementClaimed(paid, now); err != nil {
					return nil, err
				}
			}
			totalPaid.Add(totalPaid, paid)
			payouts = append(payouts, pendingPayout{
				tenant: tenant,
				owed:   new(big.Int).Set(owed),
				paid:   paid,
			})
		}

		if totalPaid.Sign() > 0 {
			if err := e.funding.Transfer(auth.Recipient, totalPaid); err != nil {
				return nil, err
			}
		}
	}

	// Commit phase: the funds have moved. The sequence is consumed first so
	// the authorization cannot be replayed.
	if err := e.state.SetAuthoritySequence(last + 1); err != nil {
		return nil, err
	}
	for _, tenant := range stagedOrder {
		if err := e.state.PutLedgerEntry(tenant, auth.Recipient, staged[tenant]); err != nil {
			return nil, err
		}
	}
	// The claim itself is a balance-affecting update: the user ends synced.
	if err := e.syncUser(auth.Recipient); err != nil {
		return nil, err
	}

	for _, p := range payouts {
		e.emitter.Emit(events.RewardClaimed{
			User:   auth.Recipient,
			Tenant: p.tenant,
			Owed:   p.owed,
			Paid:   p.paid,
		})
	}
	e.emitter.Emit(events.RewardClaimSettled{
		User:      auth.Recipient,
		TotalOwed: totalOwed,
		TotalPaid: new(big.Int).Set(totalPaid),
		ProRated:  proRated,
	})
	return totalPaid, nil
}

// prorate computes floor(owed*available/totalOwed) through the wide-multiply
// primitive so intermediate products cannot overflow.
func prorate(owed, available, totalOwed *big.Int) (*big.Int, error) {
	o, overflow := uint256.FromBig(owed)
	if overflow {
		return nil, ErrAmountExceedsLimit
	}
	a, overflow := uint256.FromBig(available)
	if overflow {
		return nil, ErrAmountExceedsLimit
	}
	t, overflow := uint256.FromBig(totalOwed)
	if overflow {
		return nil, ErrAmountExceedsLimit
	}
	q, err := fixmath.MulDiv(o, a, t)
	if err != nil {
		return nil, err
	}
	return q.ToBig(), nil
}

// pendingPayout records one authorized line item for post-commit event
// emission.
type pendingPayout struct {
	tenant common.Address
	owed   *big.Int
	paid   *big.Int
}

// stageEntry loads the (tenant, user) ledger position and returns a mutable
// clone for staged settlement.
func (e *Engine) stageEntry(tenant, user common.Address) (*Entry, error) {
	entry, err := e.state.LedgerEntry(tenant, user)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrInsufficientRemaining
	}
	if !entry.Active() {
		return nil, ErrPositionInactive
	}
	return entry.Clone(), nil
}

// GlobalSequence reports the current global update sequence.
func (e *Engine) GlobalSequence() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.GlobalUpdateSequence()
}

// NextAuthoritySequence reports the sequence value the next authorization
// must carry.
func (e *Engine) NextAuthoritySequence() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	last, err := e.state.AuthoritySequence()
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

package state

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"tenantvault/native/vault"
	"tenantvault/storage"
)

const (
	adapterAssetsKey    = "adapter/assets"
	adapterPrincipalKey = "adapter/principal"
	adapterApprovalKey  = "adapter/approval"
	adapterRepaidFmt    = "adapter/repaid/%x"
)

// PositionMirror is a storage-backed view of the pooled position held at the
// external money market. An off-chain syncer refreshes the totals; the vault
// engine reads and adjusts them through the adapter contract.
type PositionMirror struct {
	db storage.Database
	mu sync.Mutex
}

// NewPositionMirror wraps the supplied database.
func NewPositionMirror(db storage.Database) *PositionMirror {
	return &PositionMirror{db: db}
}

func (m *PositionMirror) ready() error {
	if m == nil || m.db == nil {
		return errors.New("state: position mirror not initialised")
	}
	return nil
}

func (m *PositionMirror) getAmount(key string) (*big.Int, error) {
	data, err := m.db.Get([]byte(key))
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(data), nil
}

func (m *PositionMirror) putAmount(key string, v *big.Int) error {
	return m.db.Put([]byte(key), v.Bytes())
}

// SyncTotals overwrites the mirrored totals. The off-chain syncer calls this
// after reading the protocol position.
func (m *PositionMirror) SyncTotals(assets, principal *big.Int) error {
	if err := m.ready(); err != nil {
		return err
	}
	if assets == nil || assets.Sign() < 0 || principal == nil || principal.Sign() < 0 {
		return errors.New("state: mirrored totals must be non-negative")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.putAmount(adapterAssetsKey, assets); err != nil {
		return err
	}
	return m.putAmount(adapterPrincipalKey, principal)
}

// TotalAssets reports the mirrored protocol balance including earned yield.
func (m *PositionMirror) TotalAssets() (*big.Int, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getAmount(adapterAssetsKey)
}

// TotalPrincipalDeposited reports the mirrored principal.
func (m *PositionMirror) TotalPrincipalDeposited() (*big.Int, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getAmount(adapterPrincipalKey)
}

// DepositToProtocol adjusts both mirrored totals upward.
func (m *PositionMirror) DepositToProtocol(amount *big.Int) error {
	return m.adjust(amount, 1)
}

// WithdrawFromProtocol adjusts both mirrored totals downward.
func (m *PositionMirror) WithdrawFromProtocol(amount *big.Int) error {
	return m.adjust(amount, -1)
}

func (m *PositionMirror) adjust(amount *big.Int, sign int) error {
	if err := m.ready(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return errors.New("state: adapter amount must be non-negative")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range []string{adapterAssetsKey, adapterPrincipalKey} {
		current, err := m.getAmount(key)
		if err != nil {
			return err
		}
		var next *big.Int
		if sign > 0 {
			next = new(big.Int).Add(current, amount)
		} else {
			next = new(big.Int).Sub(current, amount)
			if next.Sign() < 0 {
				return fmt.Errorf("state: withdrawal of %s exceeds mirrored balance %s", amount, current)
			}
		}
		if err := m.putAmount(key, next); err != nil {
			return err
		}
	}
	return nil
}

// ApproveSpending records the scoped spending authorization. Zero revokes.
func (m *PositionMirror) ApproveSpending(amount *big.Int) error {
	if err := m.ready(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return errors.New("state: approval amount must be non-negative")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putAmount(adapterApprovalKey, amount)
}

// Approval reports the outstanding spending authorization.
func (m *PositionMirror) Approval() (*big.Int, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getAmount(adapterApprovalKey)
}

// RepayOnBehalf consumes approval and records the cumulative repayment made
// for the borrower.
func (m *PositionMirror) RepayOnBehalf(borrower common.Address, amount *big.Int) error {
	if err := m.ready(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return errors.New("state: repayment amount must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	approval, err := m.getAmount(adapterApprovalKey)
	if err != nil {
		return err
	}
	if approval.Cmp(amount) < 0 {
		return fmt.Errorf("state: repayment of %s exceeds approval %s", amount, approval)
	}
	if err := m.putAmount(adapterApprovalKey, new(big.Int).Sub(approval, amount)); err != nil {
		return err
	}
	key := fmt.Sprintf(adapterRepaidFmt, borrower)
	repaid, err := m.getAmount(key)
	if err != nil {
		return err
	}
	return m.putAmount(key, new(big.Int).Add(repaid, amount))
}

// RepaidOnBehalf reports the cumulative amount repaid for the borrower.
func (m *PositionMirror) RepaidOnBehalf(borrower common.Address) (*big.Int, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getAmount(fmt.Sprintf(adapterRepaidFmt, borrower))
}

// ReserveFunding draws reward payouts from the vault's reserved yield. It
// satisfies the rewards funding contract.
type ReserveFunding struct {
	vault *VaultState
}

// NewReserveFunding binds the funding source to the vault state.
func NewReserveFunding(vault *VaultState) *ReserveFunding {
	return &ReserveFunding{vault: vault}
}

// Available reports the yield currently reserved and payable.
func (f *ReserveFunding) Available() (*big.Int, error) {
	if f == nil || f.vault == nil {
		return nil, errors.New("state: reserve funding not initialised")
	}
	reserve, err := f.vault.GetReserve()
	if err != nil {
		return nil, err
	}
	if reserve == nil || reserve.TotalYieldReserved == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(reserve.TotalYieldReserved), nil
}

// Transfer releases reserved yield to the recipient.
func (f *ReserveFunding) Transfer(to common.Address, amount *big.Int) error {
	if f == nil || f.vault == nil {
		return errors.New("state: reserve funding not initialised")
	}
	if amount == nil || amount.Sign() <= 0 {
		return errors.New("state: transfer amount must be positive")
	}
	reserve, err := f.vault.GetReserve()
	if err != nil {
		return err
	}
	if reserve == nil {
		reserve = &vault.PooledReserve{
			TotalYieldReserved: big.NewInt(0),
			TotalPrincipal:     big.NewInt(0),
		}
	}
	if reserve.TotalYieldReserved.Cmp(amount) < 0 {
		return fmt.Errorf("state: payout of %s exceeds reserved yield %s", amount, reserve.TotalYieldReserved)
	}
	reserve.TotalYieldReserved = new(big.Int).Sub(reserve.TotalYieldReserved, amount)
	if err := f.vault.PutReserve(reserve); err != nil {
		return err
	}
	key := []byte(fmt.Sprintf(payoutKeyFmt, to))
	paid, err := f.vault.db.Get(key)
	total := big.NewInt(0)
	if err == nil {
		total.SetBytes(paid)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	total.Add(total, amount)
	return f.vault.db.Put(key, total.Bytes())
}

const payoutKeyFmt = "rewards/payout/%x"

// PaidOut reports the cumulative amount released to the recipient.
func (f *ReserveFunding) PaidOut(to common.Address) (*big.Int, error) {
	if f == nil || f.vault == nil {
		return nil, errors.New("state: reserve funding not initialised")
	}
	data, err := f.vault.db.Get([]byte(fmt.Sprintf(payoutKeyFmt, to)))
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(data), nil
}

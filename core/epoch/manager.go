package epoch

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"tenantvault/storage"
)

const (
	allocationKeyFmt = "epoch/allocation/%020d/%x"
	totalKeyFmt      = "epoch/total/%020d"
)

// Manager derives the current epoch from wall-clock time and records the
// yield allocated to tenants per epoch. It satisfies the vault engine's epoch
// collaborator contract.
type Manager struct {
	cfg Config
	db  storage.Database
	now func() time.Time
	mu  sync.Mutex
}

// NewManager validates the configuration and wraps the supplied database.
func NewManager(cfg Config, db storage.Database) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if db == nil {
		return nil, errors.New("epoch: nil database")
	}
	return &Manager{cfg: cfg, db: db, now: time.Now}, nil
}

// SetClock overrides the manager clock, primarily for deterministic testing.
func (m *Manager) SetClock(now func() time.Time) {
	if m == nil || now == nil {
		return
	}
	m.now = now
}

// CurrentEpoch returns the epoch number for the current time.
func (m *Manager) CurrentEpoch() (uint64, error) {
	if m == nil || m.db == nil {
		return 0, errors.New("epoch: manager not initialised")
	}
	now := m.now().Unix()
	if now <= m.cfg.GenesisUnix {
		return 0, nil
	}
	return uint64(now-m.cfg.GenesisUnix) / m.cfg.Length, nil
}

func (m *Manager) getAmount(key []byte) (*big.Int, error) {
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(data), nil
}

func (m *Manager) addAmount(key []byte, amount *big.Int) error {
	current, err := m.getAmount(key)
	if err != nil {
		return err
	}
	return m.db.Put(key, new(big.Int).Add(current, amount).Bytes())
}

// AllocateYield records yield allocated to the tenant in the current epoch.
func (m *Manager) AllocateYield(tenant common.Address, amount *big.Int) error {
	if m == nil || m.db == nil {
		return errors.New("epoch: manager not initialised")
	}
	if amount == nil || amount.Sign() < 0 {
		return errors.New("epoch: allocation must be non-negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	current, err := m.CurrentEpoch()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.addAmount([]byte(fmt.Sprintf(allocationKeyFmt, current, tenant)), amount); err != nil {
		return err
	}
	return m.addAmount([]byte(fmt.Sprintf(totalKeyFmt, current)), amount)
}

// Allocation reports the yield recorded for the tenant in the given epoch.
func (m *Manager) Allocation(epoch uint64, tenant common.Address) (*big.Int, error) {
	if m == nil || m.db == nil {
		return nil, errors.New("epoch: manager not initialised")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getAmount([]byte(fmt.Sprintf(allocationKeyFmt, epoch, tenant)))
}

// TotalAllocated reports the yield recorded across all tenants in the epoch.
func (m *Manager) TotalAllocated(epoch uint64) (*big.Int, error) {
	if m == nil || m.db == nil {
		return nil, errors.New("epoch: manager not initialised")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getAmount([]byte(fmt.Sprintf(totalKeyFmt, epoch)))
}

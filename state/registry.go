package state

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"tenantvault/native/vault"
	"tenantvault/storage"
)

const registryKeyFmt = "vault/registry/%s"

// ErrTenantUnknown is returned when a registry lookup misses.
var ErrTenantUnknown = errors.New("state: tenant not registered")

// Registry is the persistent tenant registry. Engines only read it; tenant
// onboarding and configuration changes go through Register/Deregister.
type Registry struct {
	db storage.Database
	mu sync.RWMutex
}

// NewRegistry wraps the supplied database.
func NewRegistry(db storage.Database) *Registry {
	return &Registry{db: db}
}

type storedRegistryEntry struct {
	Operator      []byte
	YieldShareBps uint64
}

func registryKey(tenant common.Address) []byte {
	return []byte(fmt.Sprintf(registryKeyFmt, hex.EncodeToString(tenant[:])))
}

// Register writes or replaces the tenant's configuration.
func (r *Registry) Register(tenant common.Address, entry vault.RegistryEntry) error {
	if r == nil || r.db == nil {
		return errors.New("state: registry not initialised")
	}
	if tenant == (common.Address{}) {
		return vault.ErrAddressZero
	}
	if entry.Operator == (common.Address{}) {
		return vault.ErrAddressZero
	}
	if err := vault.CheckPerformanceScore(entry.YieldShareBps); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	encoded, err := rlp.EncodeToBytes(storedRegistryEntry{
		Operator:      append([]byte(nil), entry.Operator[:]...),
		YieldShareBps: entry.YieldShareBps,
	})
	if err != nil {
		return err
	}
	return r.db.Put(registryKey(tenant), encoded)
}

// IsRegistered reports whether the tenant has a registry entry.
func (r *Registry) IsRegistered(tenant common.Address) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("state: registry not initialised")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.db.Has(registryKey(tenant))
}

// GetTenant loads the tenant's configuration.
func (r *Registry) GetTenant(tenant common.Address) (vault.RegistryEntry, error) {
	if r == nil || r.db == nil {
		return vault.RegistryEntry{}, errors.New("state: registry not initialised")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	data, err := r.db.Get(registryKey(tenant))
	if errors.Is(err, storage.ErrNotFound) {
		return vault.RegistryEntry{}, ErrTenantUnknown
	}
	if err != nil {
		return vault.RegistryEntry{}, err
	}
	var stored storedRegistryEntry
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return vault.RegistryEntry{}, err
	}
	entry := vault.RegistryEntry{YieldShareBps: stored.YieldShareBps}
	copy(entry.Operator[:], stored.Operator)
	return entry, nil
}

package state

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"tenantvault/native/vault"
	"tenantvault/storage"
)

const (
	vaultTenantKeyFmt    = "vault/tenant/%s"
	vaultTenantIndexKey  = "vault/tenant/index"
	vaultReserveKey      = "vault/reserve"
	vaultGlobalIndexKey  = "vault/global-index"
	vaultEpochAppliedFmt = "vault/epoch/%020d/applied/%s"
	vaultEpochAllocFmt   = "vault/epoch/%020d/allocation"
)

// VaultState persists vault engine state in a key-value store. It keeps an
// ordered address index alongside a membership set so listings stay
// deterministic without rescanning the index on every write.
type VaultState struct {
	db      storage.Database
	mu      sync.RWMutex
	indexed map[common.Address]struct{}
}

// NewVaultState wraps the supplied database.
func NewVaultState(db storage.Database) *VaultState {
	return &VaultState{db: db}
}

type storedTenant struct {
	Address         []byte
	TotalPrincipal  []byte
	TotalShares     []byte
	TotalUnits      []byte
	LastGlobalIndex []byte
}

type storedReserve struct {
	TotalYieldReserved []byte
	TotalPrincipal     []byte
}

func tenantKey(addr common.Address) []byte {
	return []byte(fmt.Sprintf(vaultTenantKeyFmt, hex.EncodeToString(addr[:])))
}

func bigFromBytes(b []byte) *big.Int {
	if len(b) == 0 {
		return big.NewInt(0)
	}
	return new(big.Int).SetBytes(b)
}

func bigBytes(v *big.Int) []byte {
	if v == nil {
		return nil
	}
	return v.Bytes()
}

// GetTenant loads the tenant account, or nil when none has been written.
func (s *VaultState) GetTenant(addr common.Address) (*vault.TenantAccount, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("state: vault state not initialised")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := s.db.Get(tenantKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var stored storedTenant
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, err
	}
	acct := &vault.TenantAccount{
		TotalPrincipal:  bigFromBytes(stored.TotalPrincipal),
		TotalShares:     bigFromBytes(stored.TotalShares),
		TotalUnits:      bigFromBytes(stored.TotalUnits),
		LastGlobalIndex: bigFromBytes(stored.LastGlobalIndex),
	}
	copy(acct.Address[:], stored.Address)
	return acct, nil
}

// PutTenant writes the tenant account and maintains the address index.
func (s *VaultState) PutTenant(addr common.Address, acct *vault.TenantAccount) error {
	if s == nil || s.db == nil {
		return errors.New("state: vault state not initialised")
	}
	if acct == nil {
		return errors.New("state: nil tenant account")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	encoded, err := rlp.EncodeToBytes(storedTenant{
		Address:         append([]byte(nil), addr[:]...),
		TotalPrincipal:  bigBytes(acct.TotalPrincipal),
		TotalShares:     bigBytes(acct.TotalShares),
		TotalUnits:      bigBytes(acct.TotalUnits),
		LastGlobalIndex: bigBytes(acct.LastGlobalIndex),
	})
	if err != nil {
		return err
	}
	if err := s.db.Put(tenantKey(addr), encoded); err != nil {
		return err
	}
	return s.ensureIndexed(addr)
}

func (s *VaultState) ensureIndexed(addr common.Address) error {
	if s.indexed == nil {
		index, err := s.loadIndex()
		if err != nil {
			return err
		}
		s.indexed = make(map[common.Address]struct{}, len(index))
		for _, existing := range index {
			s.indexed[existing] = struct{}{}
		}
	}
	if _, ok := s.indexed[addr]; ok {
		return nil
	}
	index, err := s.loadIndex()
	if err != nil {
		return err
	}
	index = append(index, addr)
	if err := s.saveIndex(index); err != nil {
		return err
	}
	s.indexed[addr] = struct{}{}
	return nil
}

func (s *VaultState) loadIndex() ([]common.Address, error) {
	data, err := s.db.Get([]byte(vaultTenantIndexKey))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var raw [][]byte
	if err := rlp.DecodeBytes(data, &raw); err != nil {
		return nil, err
	}
	index := make([]common.Address, len(raw))
	for i := range raw {
		copy(index[i][:], raw[i])
	}
	return index, nil
}

func (s *VaultState) saveIndex(index []common.Address) error {
	raw := make([][]byte, len(index))
	for i := range index {
		raw[i] = append([]byte(nil), index[i][:]...)
	}
	encoded, err := rlp.EncodeToBytes(raw)
	if err != nil {
		return err
	}
	return s.db.Put([]byte(vaultTenantIndexKey), encoded)
}

// Tenants lists every tenant address ever written, sorted for determinism.
func (s *VaultState) Tenants() ([]common.Address, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("state: vault state not initialised")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	sort.Slice(index, func(i, j int) bool {
		return index[i].Cmp(index[j]) < 0
	})
	return index, nil
}

// GetReserve loads the pooled reserve, defaulting to zeros when unwritten.
func (s *VaultState) GetReserve() (*vault.PooledReserve, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("state: vault state not initialised")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := s.db.Get([]byte(vaultReserveKey))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var stored storedReserve
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, err
	}
	return &vault.PooledReserve{
		TotalYieldReserved: bigFromBytes(stored.TotalYieldReserved),
		TotalPrincipal:     bigFromBytes(stored.TotalPrincipal),
	}, nil
}

// PutReserve writes the pooled reserve.
func (s *VaultState) PutReserve(res *vault.PooledReserve) error {
	if s == nil || s.db == nil {
		return errors.New("state: vault state not initialised")
	}
	if res == nil {
		return errors.New("state: nil reserve")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	encoded, err := rlp.EncodeToBytes(storedReserve{
		TotalYieldReserved: bigBytes(res.TotalYieldReserved),
		TotalPrincipal:     bigBytes(res.TotalPrincipal),
	})
	if err != nil {
		return err
	}
	return s.db.Put([]byte(vaultReserveKey), encoded)
}

// GlobalIndex loads the global deposit index. A nil result means the index
// has never been initialised; the engine substitutes its par value.
func (s *VaultState) GlobalIndex() (*big.Int, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("state: vault state not initialised")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := s.db.Get([]byte(vaultGlobalIndexKey))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return bigFromBytes(data), nil
}

// SetGlobalIndex writes the global deposit index.
func (s *VaultState) SetGlobalIndex(idx *big.Int) error {
	if s == nil || s.db == nil {
		return errors.New("state: vault state not initialised")
	}
	if idx == nil || idx.Sign() < 0 {
		return errors.New("state: global index must be non-negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Put([]byte(vaultGlobalIndexKey), idx.Bytes())
}

func epochAppliedKey(epoch uint64, tenant common.Address) []byte {
	return []byte(fmt.Sprintf(vaultEpochAppliedFmt, epoch, hex.EncodeToString(tenant[:])))
}

// EpochYieldApplied reports whether the tenant's yield was already applied
// for the epoch.
func (s *VaultState) EpochYieldApplied(epoch uint64, tenant common.Address) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("state: vault state not initialised")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.Has(epochAppliedKey(epoch, tenant))
}

// MarkEpochYieldApplied records the tenant's epoch application marker.
func (s *VaultState) MarkEpochYieldApplied(epoch uint64, tenant common.Address) error {
	if s == nil || s.db == nil {
		return errors.New("state: vault state not initialised")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Put(epochAppliedKey(epoch, tenant), []byte{0x01})
}

// EpochAllocation loads the yield allocated to the epoch so far.
func (s *VaultState) EpochAllocation(epoch uint64) (*big.Int, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("state: vault state not initialised")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := s.db.Get([]byte(fmt.Sprintf(vaultEpochAllocFmt, epoch)))
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	return bigFromBytes(data), nil
}

// SetEpochAllocation writes the epoch's allocated yield total.
func (s *VaultState) SetEpochAllocation(epoch uint64, amount *big.Int) error {
	if s == nil || s.db == nil {
		return errors.New("state: vault state not initialised")
	}
	if amount == nil || amount.Sign() < 0 {
		return errors.New("state: epoch allocation must be non-negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Put([]byte(fmt.Sprintf(vaultEpochAllocFmt, epoch)), amount.Bytes())
}

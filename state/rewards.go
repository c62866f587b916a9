package state

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"tenantvault/native/rewards"
	"tenantvault/storage"
)

const (
	rewardsAuthorityKey    = "rewards/authority"
	rewardsAuthoritySeqKey = "rewards/authority/sequence"
	rewardsGlobalSeqKey    = "rewards/sequence/global"
	rewardsUserSeqFmt      = "rewards/sequence/user/%s"
	rewardsEntryKeyFmt     = "rewards/ledger/%s/%s"
)

// RewardState persists claim-protocol state in a key-value store. Ledger
// entries are stored as their packed 32-byte words so a position always costs
// one slot regardless of history.
type RewardState struct {
	db storage.Database
	mu sync.RWMutex
}

// NewRewardState wraps the supplied database.
func NewRewardState(db storage.Database) *RewardState {
	return &RewardState{db: db}
}

func (s *RewardState) ready() error {
	if s == nil || s.db == nil {
		return errors.New("state: reward state not initialised")
	}
	return nil
}

func (s *RewardState) getUint64(key []byte) (uint64, error) {
	data, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("state: malformed counter at %q", key)
	}
	return binary.BigEndian.Uint64(data), nil
}

func (s *RewardState) putUint64(key []byte, value uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], value)
	return s.db.Put(key, buf[:])
}

// Authority returns the configured signing authority, zero when unset.
func (s *RewardState) Authority() (common.Address, error) {
	if err := s.ready(); err != nil {
		return common.Address{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := s.db.Get([]byte(rewardsAuthorityKey))
	if errors.Is(err, storage.ErrNotFound) {
		return common.Address{}, nil
	}
	if err != nil {
		return common.Address{}, err
	}
	var addr common.Address
	copy(addr[:], data)
	return addr, nil
}

// SetAuthority records the signing authority.
func (s *RewardState) SetAuthority(addr common.Address) error {
	if err := s.ready(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Put([]byte(rewardsAuthorityKey), append([]byte(nil), addr[:]...))
}

// AuthoritySequence returns the last consumed authorization sequence.
func (s *RewardState) AuthoritySequence() (uint64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getUint64([]byte(rewardsAuthoritySeqKey))
}

// SetAuthoritySequence records the last consumed authorization sequence.
func (s *RewardState) SetAuthoritySequence(seq uint64) error {
	if err := s.ready(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putUint64([]byte(rewardsAuthoritySeqKey), seq)
}

// GlobalUpdateSequence returns the global balance-update sequence.
func (s *RewardState) GlobalUpdateSequence() (uint64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getUint64([]byte(rewardsGlobalSeqKey))
}

// SetGlobalUpdateSequence records the global balance-update sequence.
func (s *RewardState) SetGlobalUpdateSequence(seq uint64) error {
	if err := s.ready(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putUint64([]byte(rewardsGlobalSeqKey), seq)
}

func userSeqKey(user common.Address) []byte {
	return []byte(fmt.Sprintf(rewardsUserSeqFmt, hex.EncodeToString(user[:])))
}

// UserLastSyncedSequence returns the sequence the user last synced at.
func (s *RewardState) UserLastSyncedSequence(user common.Address) (uint64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getUint64(userSeqKey(user))
}

// SetUserLastSyncedSequence records the user's synced sequence.
func (s *RewardState) SetUserLastSyncedSequence(user common.Address, seq uint64) error {
	if err := s.ready(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putUint64(userSeqKey(user), seq)
}

func entryKey(tenant, user common.Address) []byte {
	return []byte(fmt.Sprintf(rewardsEntryKeyFmt,
		hex.EncodeToString(tenant[:]), hex.EncodeToString(user[:])))
}

// LedgerEntry loads the packed claim position, or nil when none exists.
func (s *RewardState) LedgerEntry(tenant, user common.Address) (*rewards.Entry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := s.db.Get(entryKey(tenant, user))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) != rewards.EntryWordSize {
		return nil, fmt.Errorf("state: malformed ledger entry for %s/%s",
			hex.EncodeToString(tenant[:]), hex.EncodeToString(user[:]))
	}
	var word [rewards.EntryWordSize]byte
	copy(word[:], data)
	return rewards.DecodeEntry(word), nil
}

// PutLedgerEntry writes the packed claim position.
func (s *RewardState) PutLedgerEntry(tenant, user common.Address, entry *rewards.Entry) error {
	if err := s.ready(); err != nil {
		return err
	}
	if entry == nil {
		return errors.New("state: nil ledger entry")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	word := entry.Encode()
	return s.db.Put(entryKey(tenant, user), word[:])
}

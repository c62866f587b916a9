package state

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"tenantvault/native/rewards"
	"tenantvault/native/vault"
	"tenantvault/storage"
)

func addr(suffix byte) common.Address {
	var a common.Address
	a[len(a)-1] = suffix
	return a
}

func TestVaultStateTenantRoundTrip(t *testing.T) {
	s := NewVaultState(storage.NewMemDB())

	missing, err := s.GetTenant(addr(0x01))
	require.NoError(t, err)
	require.Nil(t, missing)

	acct := &vault.TenantAccount{
		Address:         addr(0x01),
		TotalPrincipal:  big.NewInt(1_000),
		TotalShares:     big.NewInt(900),
		TotalUnits:      big.NewInt(1_000),
		LastGlobalIndex: big.NewInt(1_100),
	}
	require.NoError(t, s.PutTenant(addr(0x01), acct))

	got, err := s.GetTenant(addr(0x01))
	require.NoError(t, err)
	require.Equal(t, acct.Address, got.Address)
	require.Zero(t, got.TotalPrincipal.Cmp(acct.TotalPrincipal))
	require.Zero(t, got.TotalShares.Cmp(acct.TotalShares))
	require.Zero(t, got.TotalUnits.Cmp(acct.TotalUnits))
	require.Zero(t, got.LastGlobalIndex.Cmp(acct.LastGlobalIndex))
}

func TestVaultStateTenantIndexDeduplicates(t *testing.T) {
	s := NewVaultState(storage.NewMemDB())
	acct := &vault.TenantAccount{TotalPrincipal: big.NewInt(1)}

	require.NoError(t, s.PutTenant(addr(0x02), acct))
	require.NoError(t, s.PutTenant(addr(0x01), acct))
	require.NoError(t, s.PutTenant(addr(0x02), acct))

	tenants, err := s.Tenants()
	require.NoError(t, err)
	require.Equal(t, []common.Address{addr(0x01), addr(0x02)}, tenants)
}

func TestVaultStateReserveAndIndex(t *testing.T) {
	s := NewVaultState(storage.NewMemDB())

	res, err := s.GetReserve()
	require.NoError(t, err)
	require.Nil(t, res)

	require.NoError(t, s.PutReserve(&vault.PooledReserve{
		TotalYieldReserved: big.NewInt(50),
		TotalPrincipal:     big.NewInt(1_050),
	}))
	res, err = s.GetReserve()
	require.NoError(t, err)
	require.Zero(t, res.TotalYieldReserved.Cmp(big.NewInt(50)))
	require.Zero(t, res.TotalPrincipal.Cmp(big.NewInt(1_050)))

	idx, err := s.GlobalIndex()
	require.NoError(t, err)
	require.Nil(t, idx)

	require.NoError(t, s.SetGlobalIndex(big.NewInt(1_100)))
	idx, err = s.GlobalIndex()
	require.NoError(t, err)
	require.Zero(t, idx.Cmp(big.NewInt(1_100)))

	require.Error(t, s.SetGlobalIndex(nil))
}

func TestVaultStateEpochBookkeeping(t *testing.T) {
	s := NewVaultState(storage.NewMemDB())

	applied, err := s.EpochYieldApplied(7, addr(0x01))
	require.NoError(t, err)
	require.False(t, applied)

	require.NoError(t, s.MarkEpochYieldApplied(7, addr(0x01)))
	applied, err = s.EpochYieldApplied(7, addr(0x01))
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = s.EpochYieldApplied(7, addr(0x02))
	require.NoError(t, err)
	require.False(t, applied)

	alloc, err := s.EpochAllocation(7)
	require.NoError(t, err)
	require.Zero(t, alloc.Sign())

	require.NoError(t, s.SetEpochAllocation(7, big.NewInt(120)))
	alloc, err = s.EpochAllocation(7)
	require.NoError(t, err)
	require.Zero(t, alloc.Cmp(big.NewInt(120)))
}

func TestRewardStateSequencesAndEntries(t *testing.T) {
	s := NewRewardState(storage.NewMemDB())

	authority, err := s.Authority()
	require.NoError(t, err)
	require.Equal(t, common.Address{}, authority)

	require.NoError(t, s.SetAuthority(addr(0xEE)))
	authority, err = s.Authority()
	require.NoError(t, err)
	require.Equal(t, addr(0xEE), authority)

	seq, err := s.AuthoritySequence()
	require.NoError(t, err)
	require.Zero(t, seq)
	require.NoError(t, s.SetAuthoritySequence(3))
	seq, err = s.AuthoritySequence()
	require.NoError(t, err)
	require.EqualValues(t, 3, seq)

	require.NoError(t, s.SetGlobalUpdateSequence(9))
	global, err := s.GlobalUpdateSequence()
	require.NoError(t, err)
	require.EqualValues(t, 9, global)

	userSeq, err := s.UserLastSyncedSequence(addr(0xAA))
	require.NoError(t, err)
	require.Zero(t, userSeq)
	require.NoError(t, s.SetUserLastSyncedSequence(addr(0xAA), 9))
	userSeq, err = s.UserLastSyncedSequence(addr(0xAA))
	require.NoError(t, err)
	require.EqualValues(t, 9, userSeq)

	entry, err := s.LedgerEntry(addr(0x01), addr(0xAA))
	require.NoError(t, err)
	require.Nil(t, entry)

	stored, err := rewards.NewEntry(big.NewInt(500), big.NewInt(20), 1_700_000_000, 1)
	require.NoError(t, err)
	require.NoError(t, s.PutLedgerEntry(addr(0x01), addr(0xAA), stored))

	entry, err = s.LedgerEntry(addr(0x01), addr(0xAA))
	require.NoError(t, err)
	require.Zero(t, entry.Remaining().Cmp(big.NewInt(500)))
	require.Zero(t, entry.Claimed().Cmp(big.NewInt(20)))
	require.EqualValues(t, 1_700_000_000, entry.LastUpdate())
	require.True(t, entry.Active())
}

func TestRegistryRoundTrip(t *testing.T) {
	r := NewRegistry(storage.NewMemDB())

	registered, err := r.IsRegistered(addr(0x01))
	require.NoError(t, err)
	require.False(t, registered)

	_, err = r.GetTenant(addr(0x01))
	require.ErrorIs(t, err, ErrTenantUnknown)

	entry := vault.RegistryEntry{Operator: addr(0x0F), YieldShareBps: 5_000}
	require.NoError(t, r.Register(addr(0x01), entry))

	registered, err = r.IsRegistered(addr(0x01))
	require.NoError(t, err)
	require.True(t, registered)

	got, err := r.GetTenant(addr(0x01))
	require.NoError(t, err)
	require.Equal(t, entry, got)

	require.ErrorIs(t, r.Register(common.Address{}, entry), vault.ErrAddressZero)
	require.ErrorIs(t, r.Register(addr(0x02), vault.RegistryEntry{}), vault.ErrAddressZero)
	require.ErrorIs(t, r.Register(addr(0x02), vault.RegistryEntry{
		Operator:      addr(0x0F),
		YieldShareBps: 10_001,
	}), vault.ErrScoreOutOfRange)
}

func TestVaultStatePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db1, err := storage.NewLevelDB(dir)
	require.NoError(t, err)

	s1 := NewVaultState(db1)
	require.NoError(t, s1.SetGlobalIndex(big.NewInt(1_234)))
	require.NoError(t, s1.PutTenant(addr(0x01), &vault.TenantAccount{
		Address:        addr(0x01),
		TotalPrincipal: big.NewInt(77),
	}))
	db1.Close()

	db2, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()

	s2 := NewVaultState(db2)
	idx, err := s2.GlobalIndex()
	require.NoError(t, err)
	require.Zero(t, idx.Cmp(big.NewInt(1_234)))

	acct, err := s2.GetTenant(addr(0x01))
	require.NoError(t, err)
	require.Zero(t, acct.TotalPrincipal.Cmp(big.NewInt(77)))

	tenants, err := s2.Tenants()
	require.NoError(t, err)
	require.Equal(t, []common.Address{addr(0x01)}, tenants)
}

package rewards

import (
	"errors"
	"math/big"
	"testing"
)

func TestEntryEncodeDecodeRoundTrip(t *testing.T) {
	entry, err := NewEntry(big.NewInt(1_500_000), big.NewInt(42), 1_700_000_000, flagActive)
	if err != nil {
		t.Fatalf("new entry: %v", err)
	}
	word := entry.Encode()
	decoded := DecodeEntry(word)
	if decoded.Remaining().Cmp(entry.Remaining()) != 0 {
		t.Fatalf("remaining mismatch: %s vs %s", decoded.Remaining(), entry.Remaining())
	}
	if decoded.Claimed().Cmp(entry.Claimed()) != 0 {
		t.Fatalf("claimed mismatch: %s vs %s", decoded.Claimed(), entry.Claimed())
	}
	if decoded.LastUpdate() != entry.LastUpdate() {
		t.Fatalf("timestamp mismatch: %d vs %d", decoded.LastUpdate(), entry.LastUpdate())
	}
	if !decoded.Active() {
		t.Fatalf("active flag lost in round trip")
	}
}

func TestEntryEncodeMaxValues(t *testing.T) {
	entry, err := NewEntry(new(big.Int).Set(maxUint96), new(big.Int).Set(maxUint96), maxTimestamp, ^uint32(0))
	if err != nil {
		t.Fatalf("new entry at bounds: %v", err)
	}
	decoded := DecodeEntry(entry.Encode())
	if decoded.Remaining().Cmp(maxUint96) != 0 {
		t.Fatalf("max remaining mangled: %s", decoded.Remaining())
	}
	if decoded.Claimed().Cmp(maxUint96) != 0 {
		t.Fatalf("max claimed mangled: %s", decoded.Claimed())
	}
	if decoded.LastUpdate() != maxTimestamp {
		t.Fatalf("max timestamp mangled: %d", decoded.LastUpdate())
	}
	if decoded.Flags() != ^uint32(0) {
		t.Fatalf("flags mangled: %#x", decoded.Flags())
	}
}

func TestEntryRejectsOutOfRangeFields(t *testing.T) {
	tooBig := new(big.Int).Add(maxUint96, big.NewInt(1))
	if _, err := NewEntry(tooBig, nil, 0, 0); !errors.Is(err, ErrAmountExceedsLimit) {
		t.Fatalf("expected amount limit error for remaining, got %v", err)
	}
	if _, err := NewEntry(nil, tooBig, 0, 0); !errors.Is(err, ErrAmountExceedsLimit) {
		t.Fatalf("expected amount limit error for claimed, got %v", err)
	}
	if _, err := NewEntry(nil, big.NewInt(-1), 0, 0); !errors.Is(err, ErrAmountExceedsLimit) {
		t.Fatalf("expected amount limit error for negative claimed, got %v", err)
	}
	if _, err := NewEntry(nil, nil, maxTimestamp+1, 0); !errors.Is(err, ErrTimestampExceedsLimit) {
		t.Fatalf("expected timestamp limit error, got %v", err)
	}
}

func TestEntryMutatorsEnforceBounds(t *testing.T) {
	entry, err := NewEntry(big.NewInt(100), big.NewInt(0), 10, flagActive)
	if err != nil {
		t.Fatalf("new entry: %v", err)
	}
	if err := entry.DecrementRemaining(big.NewInt(101), 11); !errors.Is(err, ErrInsufficientRemaining) {
		t.Fatalf("expected insufficient remaining, got %v", err)
	}
	if entry.LastUpdate() != 10 {
		t.Fatalf("failed mutation must not touch timestamp, got %d", entry.LastUpdate())
	}
	if err := entry.DecrementRemaining(big.NewInt(60), 11); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if got := entry.Remaining(); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("remaining = %s, want 40", got)
	}
	if entry.LastUpdate() != 11 {
		t.Fatalf("timestamp not refreshed, got %d", entry.LastUpdate())
	}
	if err := entry.IncrementClaimed(big.NewInt(60), 12); err != nil {
		t.Fatalf("increment claimed: %v", err)
	}
	overflow := new(big.Int).Set(maxUint96)
	if err := entry.IncrementClaimed(overflow, 13); !errors.Is(err, ErrAmountExceedsLimit) {
		t.Fatalf("expected claimed overflow error, got %v", err)
	}
	if err := entry.SetRemaining(big.NewInt(1), maxTimestamp+1); !errors.Is(err, ErrTimestampExceedsLimit) {
		t.Fatalf("expected timestamp limit error, got %v", err)
	}
}

func TestEntryActiveFlagToggle(t *testing.T) {
	entry, err := NewEntry(big.NewInt(5), nil, 1, 0)
	if err != nil {
		t.Fatalf("new entry: %v", err)
	}
	if entry.Active() {
		t.Fatalf("entry unexpectedly active")
	}
	if err := entry.SetActive(true, 2); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if !entry.Active() || entry.LastUpdate() != 2 {
		t.Fatalf("activation not applied: active=%v ts=%d", entry.Active(), entry.LastUpdate())
	}
	if err := entry.SetActive(false, 3); err != nil {
		t.Fatalf("clear active: %v", err)
	}
	if entry.Active() {
		t.Fatalf("deactivation not applied")
	}
}

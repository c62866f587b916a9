package rewards

import (
	"math/big"
)

// Entry packs one (tenant, user) claim position into a single 32-byte
// storage word: 96 bits remaining, 96 bits claimed, 32 bits last-update
// timestamp, 32 bits feature flags. The narrow widths bound token amounts to
// 2^96-1 base units (tens of billions of whole 18-decimal tokens) and
// timestamps to the year 2106; exceeding either bound is a hard failure,
// never a silent truncation.
type Entry struct {
	remaining  *big.Int
	claimed    *big.Int
	lastUpdate uint64
	flags      uint32
}

const (
	// flagActive marks the position as live. Inactive positions refuse
	// payouts.
	flagActive uint32 = 1 << 0

	// EntryWordSize is the packed width of one ledger entry, exactly one
	// storage slot.
	EntryWordSize = 32
)

var (
	maxUint96 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 96), big.NewInt(1))

	maxTimestamp = uint64(1)<<32 - 1
)

// NewEntry validates each field against its bit-width ceiling and packs the
// result.
func NewEntry(remaining, claimed *big.Int, lastUpdate uint64, flags uint32) (*Entry, error) {
	if err := checkAmount(remaining); err != nil {
		return nil, err
	}
	if err := checkAmount(claimed); err != nil {
		return nil, err
	}
	if lastUpdate > maxTimestamp {
		return nil, ErrTimestampExceedsLimit
	}
	return &Entry{
		remaining:  copyAmount(remaining),
		claimed:    copyAmount(claimed),
		lastUpdate: lastUpdate,
		flags:      flags,
	}, nil
}

func checkAmount(v *big.Int) error {
	if v == nil {
		return nil
	}
	if v.Sign() < 0 || v.Cmp(maxUint96) > 0 {
		return ErrAmountExceedsLimit
	}
	return nil
}

func copyAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// Clone returns an independent deep copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	return &Entry{
		remaining:  new(big.Int).Set(e.remaining),
		claimed:    new(big.Int).Set(e.claimed),
		lastUpdate: e.lastUpdate,
		flags:      e.flags,
	}
}

// Remaining returns the unclaimed balance still allocated to the position.
func (e *Entry) Remaining() *big.Int { return new(big.Int).Set(e.remaining) }

// Claimed returns the cumulative amount paid out of the position.
func (e *Entry) Claimed() *big.Int { return new(big.Int).Set(e.claimed) }

// LastUpdate returns the logical-clock timestamp of the last mutation.
func (e *Entry) LastUpdate() uint64 { return e.lastUpdate }

// Flags returns the raw feature flag word.
func (e *Entry) Flags() uint32 { return e.flags }

// Active reports whether the position's active flag is set.
func (e *Entry) Active() bool { return e.flags&flagActive != 0 }

func (e *Entry) touch(now uint64) error {
	if now > maxTimestamp {
		return ErrTimestampExceedsLimit
	}
	e.lastUpdate = now
	return nil
}

// SetRemaining replaces the remaining balance and refreshes the timestamp.
func (e *Entry) SetRemaining(v *big.Int, now uint64) error {
	if err := checkAmount(v); err != nil {
		return err
	}
	if err := e.touch(now); err != nil {
		return err
	}
	e.remaining = copyAmount(v)
	return nil
}

// SetClaimed replaces the claimed balance and refreshes the timestamp.
func (e *Entry) SetClaimed(v *big.Int, now uint64) error {
	if err := checkAmount(v); err != nil {
		return err
	}
	if err := e.touch(now); err != nil {
		return err
	}
	e.claimed = copyAmount(v)
	return nil
}

// IncrementClaimed adds delta to the claimed balance and refreshes the
// timestamp. The sum must still fit in 96 bits.
func (e *Entry) IncrementClaimed(delta *big.Int, now uint64) error {
	if delta == nil || delta.Sign() < 0 {
		return ErrAmountExceedsLimit
	}
	next := new(big.Int).Add(e.claimed, delta)
	if next.Cmp(maxUint96) > 0 {
		return ErrAmountExceedsLimit
	}
	if err := e.touch(now); err != nil {
		return err
	}
	e.claimed = next
	return nil
}

// DecrementRemaining subtracts delta from the remaining balance and refreshes
// the timestamp. A delta exceeding the current balance fails with
// ErrInsufficientRemaining.
func (e *Entry) DecrementRemaining(delta *big.Int, now uint64) error {
	if delta == nil || delta.Sign() < 0 {
		return ErrAmountExceedsLimit
	}
	if e.remaining.Cmp(delta) < 0 {
		return ErrInsufficientRemaining
	}
	if err := e.touch(now); err != nil {
		return err
	}
	e.remaining = new(big.Int).Sub(e.remaining, delta)
	return nil
}

// SetActive toggles the active flag and refreshes the timestamp.
func (e *Entry) SetActive(active bool, now uint64) error {
	if err := e.touch(now); err != nil {
		return err
	}
	if active {
		e.flags |= flagActive
	} else {
		e.flags &^= flagActive
	}
	return nil
}

// Encode packs the entry into its 32-byte storage word, big-endian:
// remaining[0:12] claimed[12:24] lastUpdate[24:28] flags[28:32].
func (e *Entry) Encode() [EntryWordSize]byte {
	var word [EntryWordSize]byte
	e.remaining.FillBytes(word[0:12])
	e.claimed.FillBytes(word[12:24])
	ts := uint32(e.lastUpdate)
	word[24] = byte(ts >> 24)
	word[25] = byte(ts >> 16)
	word[26] = byte(ts >> 8)
	word[27] = byte(ts)
	word[28] = byte(e.flags >> 24)
	word[29] = byte(e.flags >> 16)
	word[30] = byte(e.flags >> 8)
	word[31] = byte(e.flags)
	return word
}

// DecodeEntry unpacks a 32-byte storage word produced by Encode. Decoded
// fields are in range by construction.
func DecodeEntry(word [EntryWordSize]byte) *Entry {
	ts := uint64(word[24])<<24 | uint64(word[25])<<16 | uint64(word[26])<<8 | uint64(word[27])
	flags := uint32(word[28])<<24 | uint32(word[29])<<16 | uint32(word[30])<<8 | uint32(word[31])
	return &Entry{
		remaining:  new(big.Int).SetBytes(word[0:12]),
		claimed:    new(big.Int).SetBytes(word[12:24]),
		lastUpdate: ts,
		flags:      flags,
	}
}

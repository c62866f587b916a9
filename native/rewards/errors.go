package rewards

import "errors"

var (
	errNilState         = errors.New("rewards: state not configured")
	errNilFunding       = errors.New("rewards: funding source not configured")
	errNilAuthorization = errors.New("rewards: authorization required")

	// ErrAmountExceedsLimit rejects amounts outside the packed 96-bit range.
	ErrAmountExceedsLimit = errors.New("rewards: amount exceeds 96-bit limit")
	// ErrTimestampExceedsLimit rejects timestamps outside the packed 32-bit
	// range.
	ErrTimestampExceedsLimit = errors.New("rewards: timestamp exceeds 32-bit limit")
	// ErrInsufficientRemaining rejects a decrement larger than the remaining
	// balance.
	ErrInsufficientRemaining = errors.New("rewards: insufficient remaining balance")

	// ErrStaleBalances rejects a claim from a user whose recorded sequence
	// lags the global update sequence.
	ErrStaleBalances = errors.New("rewards: stale balances")
	// ErrLengthMismatch rejects authorizations whose tenant and amount lists
	// differ in length.
	ErrLengthMismatch = errors.New("rewards: tenant and amount lists differ in length")
	// ErrSignatureInvalid signals the signature could not be recovered.
	ErrSignatureInvalid = errors.New("rewards: signature invalid")
	// ErrSignerNotAuthority signals the recovered signer is not the
	// configured authority.
	ErrSignerNotAuthority = errors.New("rewards: signer is not the authority")
	// ErrAuthoritySequence rejects an authorization whose sequence number is
	// not exactly the authority's next expected value.
	ErrAuthoritySequence = errors.New("rewards: authority sequence out of order")
	// ErrAuthorizationExpired rejects an authorization past its advisory
	// expiry.
	ErrAuthorizationExpired = errors.New("rewards: authorization expired")
	// ErrPositionInactive rejects payouts against a deactivated ledger
	// position.
	ErrPositionInactive = errors.New("rewards: position inactive")
)

package trade

import "errors"

// Error kinds surfaced by the trade processor. The HTTP layer maps these
// to status codes; the error text is what the caller sees, so no package
// prefixes here.
var (
	// ErrInvalidTrade is returned for malformed or out-of-range input,
	// before any store access.
	ErrInvalidTrade = errors.New("invalid trade request")

	// ErrUserNotFound is returned when the trading account does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrInsufficientBalance rejects a buy whose total exceeds the
	// user's cash balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientCredits rejects a sell against a missing position
	// or one holding fewer credits than requested.
	ErrInsufficientCredits = errors.New("insufficient credits")
)

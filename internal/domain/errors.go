package domain

import (
	"errors"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sentinel errors — compare with errors.Is()
// ──────────────────────────────────────────────────────────────────────────────

// Fight errors
var (
	// ErrFightNotFound is returned when no fight matches the given criteria.
	ErrFightNotFound = errors.New("fight not found")

	// ErrFightClosed is returned when a wager is attempted on a fight that no
	// longer accepts bets (done or canceled).
	ErrFightClosed = errors.New("fight is not open for betting")

	// ErrFightHasOpenDeals reports a fight that still has non-terminal deals.
	// The catalog synchroniser does not return it: PruneMissing skips such
	// fights without an error.
	ErrFightHasOpenDeals = errors.New("fight has unsettled deals")

	// ErrInvalidWinner is returned when a recorded result names a side other
	// than 1 or 2.
	ErrInvalidWinner = errors.New("winner side must be 1 or 2")
)

// Deal errors
var (
	// ErrDealNotFound is returned when no deal matches the given criteria.
	ErrDealNotFound = errors.New("deal not found")

	// ErrDealNotOpen is returned when a match is attempted against a deal that
	// is no longer awaiting a counterparty ("already taken").
	ErrDealNotOpen = errors.New("deal is no longer open for matching")

	// ErrSelfMatch is returned when a user tries to take the opposite side of
	// their own wager.
	ErrSelfMatch = errors.New("cannot match your own deal")

	// ErrInvalidSide is returned when the side is not 1 or 2.
	ErrInvalidSide = errors.New("side must be 1 or 2")
)

// Money errors
var (
	// ErrAmountInvalid is returned when an amount string cannot be parsed.
	ErrAmountInvalid = errors.New("amount is not a valid decimal")

	// ErrAmountPrecision is returned for amounts with more than two
	// fractional digits.
	ErrAmountPrecision = errors.New("amount has more than two fractional digits")

	// ErrAmountNotPositive is returned for zero or negative stakes.
	ErrAmountNotPositive = errors.New("amount must be positive")
)

// User errors
var (
	// ErrUserNotFound is returned when no user matches the given criteria.
	ErrUserNotFound = errors.New("user not found")
)

// Provider / reconciliation errors
var (
	// ErrProviderUnavailable is returned when the payment provider cannot be
	// reached or responds with a transport-level failure. Always retryable.
	ErrProviderUnavailable = errors.New("payment provider unavailable")

	// ErrWaiterNotFound is returned when an invoice_wait row has already been
	// consumed by the other reconciliation path. Not a failure.
	ErrWaiterNotFound = errors.New("invoice waiter already applied")
)

// Auth errors
var (
	// ErrUnauthorized is returned when valid credentials are not present.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the caller lacks the required privilege.
	ErrForbidden = errors.New("forbidden: insufficient permissions")

	// ErrTokenExpired names an admin JWT that has passed its TTL. The
	// backoffice middleware reports expired tokens as ErrTokenInvalid.
	ErrTokenExpired = errors.New("token has expired")

	// ErrTokenInvalid is returned when a token cannot be parsed or its
	// signature does not match.
	ErrTokenInvalid = errors.New("token is invalid")
)

// ──────────────────────────────────────────────────────────────────────────────
// Helper predicates
// ──────────────────────────────────────────────────────────────────────────────

// notFoundErrors collects all "entity not found" sentinel errors so that
// IsNotFound can stay in sync automatically.
var notFoundErrors = []error{
	ErrFightNotFound,
	ErrDealNotFound,
	ErrUserNotFound,
}

// IsNotFound returns true when err (or any error in its chain) is one of the
// domain "not found" errors. Use this instead of comparing error values
// directly when translating domain errors to HTTP 404 responses.
func IsNotFound(err error) bool {
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsConflict returns true for errors that represent a state conflict (race
// loss, closed fight, double-processing).
func IsConflict(err error) bool {
	conflictErrors := []error{
		ErrDealNotOpen,
		ErrSelfMatch,
		ErrFightClosed,
		ErrFightHasOpenDeals,
	}
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsValidation returns true for user-input validation errors that should be
// rejected at the presentation boundary with no persistence effect.
func IsValidation(err error) bool {
	validationErrors := []error{
		ErrInvalidSide,
		ErrInvalidWinner,
		ErrAmountInvalid,
		ErrAmountPrecision,
		ErrAmountNotPositive,
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsAuthError returns true for authentication/authorisation errors.
func IsAuthError(err error) bool {
	authErrors := []error{
		ErrUnauthorized,
		ErrForbidden,
		ErrTokenExpired,
		ErrTokenInvalid,
	}
	for _, target := range authErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

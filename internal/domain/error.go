package domain

import "errors"

var (
	// Validation failures. Use cases report these as model.ValidationResult
	// values; the sentinels exist so callers can branch with errors.Is.
	ErrInvalidFormat          = errors.New("code must be exactly 8 characters (A-Z, 0-9)")
	ErrInvalidEmailFormat     = errors.New("invalid email format")
	ErrAlreadyRedeemed        = errors.New("code already redeemed")
	ErrDuplicateParticipation = errors.New("email already participated in this campaign")

	// Submission errors raised before a code is looked at.
	ErrMissingFields   = errors.New("required fields missing")
	ErrConsentRequired = errors.New("privacy consent is required")

	// Storage and coordination errors.
	ErrPersistence   = errors.New("redemption store could not be saved")
	ErrStoreDegraded = errors.New("redemption store unreadable, continuing with empty set")
	ErrLockBusy      = errors.New("redemption store is locked")
	ErrRateLimited   = errors.New("too many requests")

	// Outbound integration errors.
	ErrSubscription = errors.New("newsletter subscription failed")

	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthorized    = errors.New("unauthorized")
)

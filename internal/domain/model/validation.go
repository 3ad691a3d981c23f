package model

import "golden-ticket/internal/domain"

// FailureReason names why a validation failed. It is the stable,
// machine-readable part of a ValidationResult.
type FailureReason string

const (
	ReasonInvalidFormat          FailureReason = "InvalidFormat"
	ReasonInvalidEmailFormat     FailureReason = "InvalidEmailFormat"
	ReasonAlreadyRedeemed        FailureReason = "AlreadyRedeemed"
	ReasonDuplicateParticipation FailureReason = "DuplicateParticipation"
)

// ValidationResult is returned by every validator. Failures are values, not
// errors: callers branch on Valid and read Error for the reason.
type ValidationResult struct {
	Valid   bool          `json:"valid"`
	Error   FailureReason `json:"error,omitempty"`
	Message string        `json:"message,omitempty"`

	// AlreadyRedeemed diagnostics.
	UsedBy string `json:"usedBy,omitempty"`
	UsedAt string `json:"usedAt,omitempty"`

	// DuplicateParticipation diagnostics.
	ExistingCodes []string `json:"existingCodes,omitempty"`

	// Set by composite validators to the failing step's full result.
	Details *ValidationResult `json:"details,omitempty"`
}

func Valid() ValidationResult { return ValidationResult{Valid: true} }

func Invalid(reason FailureReason) ValidationResult {
	r := ValidationResult{Error: reason}
	if err := reason.Err(); err != nil {
		r.Message = err.Error()
	}
	return r
}

// Err maps the reason onto its domain sentinel, nil when valid.
func (v ValidationResult) Err() error {
	if v.Valid {
		return nil
	}
	return v.Error.Err()
}

func (r FailureReason) Err() error {
	switch r {
	case "":
		return nil
	case ReasonInvalidFormat:
		return domain.ErrInvalidFormat
	case ReasonInvalidEmailFormat:
		return domain.ErrInvalidEmailFormat
	case ReasonAlreadyRedeemed:
		return domain.ErrAlreadyRedeemed
	case ReasonDuplicateParticipation:
		return domain.ErrDuplicateParticipation
	default:
		return domain.ErrInvalidArgument
	}
}

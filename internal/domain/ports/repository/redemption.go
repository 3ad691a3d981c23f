package repository

import (
	"context"

	"golden-ticket/internal/domain/model"
)

// RedemptionStore is the port for the persisted set of redeemed codes.
// Implementations always read and write the complete set.
type RedemptionStore interface {
	// Load returns the whole set. Missing or empty storage yields an empty
	// set and a nil error. Unreadable storage yields an empty set together
	// with an error wrapping domain.ErrStoreDegraded; callers may carry on.
	Load(ctx context.Context) (model.RedemptionSet, error)
	// Save durably replaces the stored set. Errors wrap domain.ErrPersistence.
	Save(ctx context.Context, set model.RedemptionSet) error
	// Backend names the implementation for logs and metrics.
	Backend() string
}

// RecordInserter is implemented by stores that can add one record
// atomically without rewriting the whole set. Insert reports false, without
// touching the existing row, when the code is already stored.
type RecordInserter interface {
	Insert(ctx context.Context, rec *model.RedemptionRecord) (bool, error)
}

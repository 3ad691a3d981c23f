package crm

import (
	"context"

	"golden-ticket/internal/domain/ports/adapter"
)

var _ adapter.CRM = (*NoopCRM)(nil)

// NoopCRM is used when no CRM key is configured. It hands out no profile
// id, so the CRM follow-ups are skipped.
type NoopCRM struct{}

func (NoopCRM) Name() string { return "noop_crm" }

func (NoopCRM) UpsertProfile(ctx context.Context, p adapter.CRMProfile) (string, error) {
	return "", nil
}

func (NoopCRM) TrackEvent(ctx context.Context, profileID, event string, props map[string]any) error {
	return nil
}

func (NoopCRM) Subscribe(ctx context.Context, profileID, email string) error { return nil }

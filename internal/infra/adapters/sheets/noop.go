package sheets

import (
	"context"

	"golden-ticket/internal/domain/ports/adapter"
)

var _ adapter.SheetLogger = (*NoopLogger)(nil)

type NoopLogger struct{}

func (NoopLogger) Name() string { return "noop_sheets" }

func (NoopLogger) Append(ctx context.Context, row adapter.SheetRow) error { return nil }

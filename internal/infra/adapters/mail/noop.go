package mail

import (
	"context"

	"golden-ticket/internal/domain/ports/adapter"
)

var _ adapter.Mailer = (*NoopMailer)(nil)

type NoopMailer struct{}

func (NoopMailer) Name() string { return "noop_mail" }

func (NoopMailer) Send(ctx context.Context, msg adapter.EmailMessage) error { return nil }

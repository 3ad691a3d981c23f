package usecase

import (
	"context"
	"fmt"

	"golden-ticket/internal/domain"
	"golden-ticket/internal/domain/model"
	"golden-ticket/internal/domain/ports/adapter"
	"golden-ticket/internal/infra/logging"
	"golden-ticket/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ NewsletterUseCase = (*newsletterUC)(nil)

// NewsletterUseCase handles the e-mail-only newsletter signup. The CRM
// list runs double opt-in, so a signup stays pending until confirmed.
type NewsletterUseCase interface {
	Signup(ctx context.Context, in model.NewsletterSignup) (*model.NewsletterResult, error)
}

type NewsletterOptions struct {
	Website string
}

type newsletterUC struct {
	crm  adapter.CRM
	opts NewsletterOptions
	log  *zerolog.Logger
}

func NewNewsletterUseCase(crm adapter.CRM, opts NewsletterOptions, logger *zerolog.Logger) *newsletterUC {
	if opts.Website == "" {
		opts.Website = model.DefaultWebsite
	}
	l := logger.With().Str("component", "NewsletterUC").Logger()
	return &newsletterUC{crm: crm, opts: opts, log: &l}
}

// Signup upserts the profile and subscribes it to the list. Both calls run
// inline: without them there is no signup to report.
func (u *newsletterUC) Signup(ctx context.Context, in model.NewsletterSignup) (*model.NewsletterResult, error) {
	defer logging.TraceDuration(u.log, "NewsletterUC.Signup")()

	in.Normalize()
	if in.Email == "" || !model.IsValidEmail(in.Email) {
		return nil, domain.ErrInvalidEmailFormat
	}

	profileID, err := u.crm.UpsertProfile(ctx, adapter.CRMProfile{
		Email:             in.Email,
		FirstName:         in.FirstName,
		LastName:          in.LastName,
		Phone:             in.Phone,
		Street:            in.Street,
		City:              in.City,
		PostalCode:        in.PostalCode,
		Country:           in.Country,
		TicketCode:        in.TicketCode,
		Website:           u.opts.Website,
		NewsletterConsent: true,
		Properties:        in.Properties(),
	})
	if err != nil {
		metrics.IncOutbound(u.crm.Name(), "upsert_profile", "error")
		return nil, fmt.Errorf("%w: upsert profile: %w", domain.ErrSubscription, err)
	}
	metrics.IncOutbound(u.crm.Name(), "upsert_profile", "ok")

	if err := u.crm.Subscribe(ctx, profileID, in.Email); err != nil {
		metrics.IncOutbound(u.crm.Name(), "subscribe", "error")
		return nil, fmt.Errorf("%w: subscribe: %w", domain.ErrSubscription, err)
	}
	metrics.IncOutbound(u.crm.Name(), "subscribe", "ok")

	l := logging.With(ctx, u.log)
	l.Info().
		Str("source", in.Source).
		Strs("tags", in.Tags()).
		Bool("crm_profile", profileID != "").
		Msg("newsletter signup")

	return &model.NewsletterResult{
		Success:         true,
		Message:         "Successfully subscribed!",
		Email:           in.Email,
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		Offer:           in.OfferKind(),
		Status:          model.NewsletterStatus,
		AddressProvided: in.HasAddress(),
		CRMProfileID:    profileID,
	}, nil
}

package usecase

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"golden-ticket/internal/domain"
	"golden-ticket/internal/domain/model"
	"golden-ticket/internal/domain/ports/adapter"
	"golden-ticket/internal/infra/logging"
	"golden-ticket/internal/infra/metrics"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ RegistrationUseCase = (*registrationUC)(nil)

// Dispatcher runs best-effort follow-ups off the request path.
// worker.Pool satisfies it.
type Dispatcher interface {
	Submit(task func(ctx context.Context) error) error
}

// RegistrationUseCase turns a landing-page submission into a committed
// redemption plus the CRM, spreadsheet and e-mail follow-ups.
type RegistrationUseCase interface {
	Register(ctx context.Context, sub model.Submission) (*model.RegistrationResult, error)
}

// RegistrationOptions configures the follow-ups.
type RegistrationOptions struct {
	Website      string
	EventName    string
	MailSubject  string
	FollowUpWait time.Duration
	Clock        func() time.Time
}

type registrationUC struct {
	redemptions RedemptionUseCase
	crm         adapter.CRM
	sheets      adapter.SheetLogger
	mailer      adapter.Mailer
	dispatcher  Dispatcher

	opts RegistrationOptions
	tmpl *template.Template
	log  *zerolog.Logger
}

func NewRegistrationUseCase(
	redemptions RedemptionUseCase,
	crm adapter.CRM,
	sheets adapter.SheetLogger,
	mailer adapter.Mailer,
	dispatcher Dispatcher,
	opts RegistrationOptions,
	logger *zerolog.Logger,
) *registrationUC {
	if opts.Website == "" {
		opts.Website = model.DefaultWebsite
	}
	if opts.EventName == "" {
		opts.EventName = "Golden Ticket Redeemed"
	}
	if opts.MailSubject == "" {
		opts.MailSubject = "Deine Golden-Ticket-Teilnahme"
	}
	if opts.FollowUpWait <= 0 {
		opts.FollowUpWait = 15 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	l := logger.With().Str("component", "RegistrationUC").Logger()
	return &registrationUC{
		redemptions: redemptions,
		crm:         crm,
		sheets:      sheets,
		mailer:      mailer,
		dispatcher:  dispatcher,
		opts:        opts,
		tmpl:        template.Must(template.New("confirmation").Parse(confirmationHTML)),
		log:         &l,
	}
}

func (u *registrationUC) Register(ctx context.Context, sub model.Submission) (*model.RegistrationResult, error) {
	defer logging.TraceDuration(u.log, "RegistrationUC.Register")()

	sub.Normalize()
	if err := checkSubmission(&sub); err != nil {
		return nil, err
	}

	res, err := u.redemptions.Redeem(ctx, sub.TicketCode, sub.Email, sub.RecordExtra(u.opts.Website))
	if err != nil {
		return nil, err
	}
	if !res.Valid {
		return &model.RegistrationResult{
			Success:    false,
			Message:    res.Message,
			TicketCode: sub.TicketCode,
			Email:      sub.Email,
			Validation: &res,
		}, nil
	}

	l := logging.With(ctx, u.log)
	out := &model.RegistrationResult{
		Success:              true,
		Message:              "Golden Ticket erfolgreich eingelöst",
		TicketCode:           sub.TicketCode,
		Email:                sub.Email,
		ParticipantID:        ulid.Make().String(),
		NewsletterSubscribed: sub.NewsletterConsent,
	}

	profileID, err := u.crm.UpsertProfile(ctx, crmProfile(&sub, u.opts.Website))
	if err != nil {
		// The redemption is committed; the profile can be repaired later.
		l.Error().Err(err).Str("code", sub.TicketCode).Msg("crm profile upsert failed")
		metrics.IncOutbound(u.crm.Name(), "upsert_profile", "error")
	} else {
		metrics.IncOutbound(u.crm.Name(), "upsert_profile", "ok")
	}
	out.CRMProfileID = profileID

	u.followUps(ctx, sub, profileID, out.ParticipantID)

	l.Info().
		Str("code", sub.TicketCode).
		Str("participant_id", out.ParticipantID).
		Bool("crm_profile", profileID != "").
		Msg("registration completed")
	return out, nil
}

// followUps queues the best-effort calls. Each task gets its own deadline
// detached from the request, which will be gone by the time it runs.
func (u *registrationUC) followUps(ctx context.Context, sub model.Submission, profileID, participantID string) {
	traceID := logging.TraceID(ctx)
	submittedAt := u.opts.Clock()

	tasks := []struct {
		integration string
		op          string
		run         func(ctx context.Context) error
		skip        bool
	}{
		{u.crm.Name(), "track_event", func(ctx context.Context) error {
			return u.crm.TrackEvent(ctx, profileID, u.opts.EventName, map[string]any{
				"ticket_code":    sub.TicketCode,
				"campaign":       sub.Campaign,
				"source":         sub.Source,
				"participant_id": participantID,
				"website":        u.opts.Website,
			})
		}, profileID == ""},
		{u.crm.Name(), "subscribe", func(ctx context.Context) error {
			return u.crm.Subscribe(ctx, profileID, sub.Email)
		}, profileID == "" || !sub.NewsletterConsent},
		{u.sheets.Name(), "append", func(ctx context.Context) error {
			return u.sheets.Append(ctx, sheetRow(&sub, submittedAt))
		}, false},
		{u.mailer.Name(), "send", func(ctx context.Context) error {
			msg, err := u.confirmation(&sub, participantID)
			if err != nil {
				return err
			}
			return u.mailer.Send(ctx, msg)
		}, false},
	}

	for _, t := range tasks {
		if t.skip {
			metrics.IncOutbound(t.integration, t.op, "skipped")
			continue
		}
		t := t
		task := func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(logging.WithTraceID(ctx, traceID), u.opts.FollowUpWait)
			defer cancel()
			if err := t.run(ctx); err != nil {
				metrics.IncOutbound(t.integration, t.op, "error")
				l := logging.With(ctx, u.log)
				l.Warn().Err(err).Str("integration", t.integration).Str("op", t.op).Str("code", sub.TicketCode).Msg("follow-up failed")
				return nil
			}
			metrics.IncOutbound(t.integration, t.op, "ok")
			return nil
		}
		if u.dispatcher == nil || u.dispatcher.Submit(task) != nil {
			// Queue full or no pool: run inline rather than drop it.
			_ = task(context.WithoutCancel(ctx))
		}
	}
}

func (u *registrationUC) confirmation(sub *model.Submission, participantID string) (adapter.EmailMessage, error) {
	var buf bytes.Buffer
	err := u.tmpl.Execute(&buf, map[string]any{
		"FirstName":     sub.FirstName,
		"TicketCode":    sub.TicketCode,
		"ParticipantID": participantID,
		"Website":       u.opts.Website,
		"Newsletter":    sub.NewsletterConsent,
	})
	if err != nil {
		return adapter.EmailMessage{}, fmt.Errorf("render confirmation: %w", err)
	}
	return adapter.EmailMessage{To: sub.Email, Subject: u.opts.MailSubject, HTML: buf.String()}, nil
}

// checkSubmission enforces the form rules in the order the page reports
// them: e-mail, code, consent, then the remaining required fields.
func checkSubmission(sub *model.Submission) error {
	if sub.Email == "" || !model.IsValidEmail(sub.Email) {
		return domain.ErrInvalidEmailFormat
	}
	if !model.IsValidCode(sub.TicketCode) {
		return domain.ErrInvalidFormat
	}
	if !sub.Consent {
		return domain.ErrConsentRequired
	}
	if missing := sub.MissingFields(); len(missing) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrMissingFields, strings.Join(missing, ", "))
	}
	return nil
}

func crmProfile(sub *model.Submission, website string) adapter.CRMProfile {
	return adapter.CRMProfile{
		Email:             sub.Email,
		FirstName:         sub.FirstName,
		LastName:          sub.LastName,
		Phone:             sub.Phone,
		Street:            sub.Street,
		City:              sub.City,
		PostalCode:        sub.PostalCode,
		Country:           sub.Country,
		TicketCode:        sub.TicketCode,
		Website:           website,
		NewsletterConsent: sub.NewsletterConsent,
		Redeemed:          true,
	}
}

func sheetRow(sub *model.Submission, at time.Time) adapter.SheetRow {
	return adapter.SheetRow{
		SubmittedAt: at,
		TicketCode:  sub.TicketCode,
		FirstName:   sub.FirstName,
		LastName:    sub.LastName,
		Email:       sub.Email,
		Phone:       sub.Phone,
		Street:      sub.Street,
		PostalCode:  sub.PostalCode,
		City:        sub.City,
		Country:     sub.Country,
		Source:      sub.Source,
		UTMSource:   sub.UTMSource,
		UTMMedium:   sub.UTMMedium,
		UTMCampaign: sub.UTMCampaign,
		Consent:     sub.Consent,
		ConsentTs:   sub.ConsentTs,
	}
}

const confirmationHTML = `<!DOCTYPE html>
<html lang="de">
<body style="font-family: Arial, sans-serif; color: #3b2a1a;">
  <h1>Hallo {{.FirstName}},</h1>
  <p>dein Golden Ticket <strong>{{.TicketCode}}</strong> ist eingelöst. Du nimmst jetzt an der Verlosung teil.</p>
  <p>Deine Teilnahme-ID: {{.ParticipantID}}</p>
  {{if .Newsletter}}<p>Bitte bestätige noch deine Newsletter-Anmeldung über den Link in der separaten E-Mail.</p>{{end}}
  <p>Viel Glück!<br>{{.Website}}</p>
</body>
</html>`

package adapter

import (
	"context"
	"time"
)

// SheetRow is the flat record appended to the spreadsheet log.
type SheetRow struct {
	SubmittedAt time.Time
	TicketCode  string
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	Street      string
	PostalCode  string
	City        string
	Country     string
	Source      string
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
	Consent     bool
	ConsentTs   string
}

// SheetLogger appends submissions to a spreadsheet-backed log. Best effort.
type SheetLogger interface {
	Name() string
	Append(ctx context.Context, row SheetRow) error
}

// EmailMessage is a rendered transactional e-mail.
type EmailMessage struct {
	To      string
	Subject string
	HTML    string
}

// Mailer sends transactional e-mails. Best effort.
type Mailer interface {
	Name() string
	Send(ctx context.Context, msg EmailMessage) error
}

// Alerter pushes operator-facing notices such as a degraded store.
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

package adapter

import "context"

// CRMProfile is the subscriber profile pushed to the e-mail/CRM platform.
type CRMProfile struct {
	Email             string
	FirstName         string
	LastName          string
	Phone             string // raw; adapters normalize to E.164
	Street            string
	City              string
	PostalCode        string
	Country           string
	TicketCode        string
	Website           string
	NewsletterConsent bool
	Redeemed          bool           // the ticket code was redeemed just now
	Properties        map[string]any // extra custom properties, merged last
}

// CRM creates or updates subscriber profiles, tracks events and handles
// list subscriptions (double opt-in is the platform's business).
type CRM interface {
	Name() string
	UpsertProfile(ctx context.Context, p CRMProfile) (profileID string, err error)
	TrackEvent(ctx context.Context, profileID, event string, props map[string]any) error
	Subscribe(ctx context.Context, profileID, email string) error
}

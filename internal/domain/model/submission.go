package model

import (
	"strconv"
	"strings"
)

const DefaultCountry = "DE"

// Submission is what the landing page posts once the participant has
// entered a code and their contact details.
type Submission struct {
	TicketCode        string `json:"ticketCode"`
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
	Email             string `json:"email"`
	Phone             string `json:"phone"`
	Street            string `json:"street"`
	City              string `json:"city"`
	PostalCode        string `json:"postalCode"`
	Country           string `json:"country"`
	Campaign          string `json:"campaign,omitempty"`
	Source            string `json:"source,omitempty"`
	UTMSource         string `json:"utm_source,omitempty"`
	UTMMedium         string `json:"utm_medium,omitempty"`
	UTMCampaign       string `json:"utm_campaign,omitempty"`
	Consent           bool   `json:"consent"`
	ConsentTs         string `json:"consentTs,omitempty"`
	NewsletterConsent bool   `json:"newsletterConsent"`
}

// Normalize trims every field, normalizes code and e-mail, and applies the
// country/campaign/source defaults.
func (s *Submission) Normalize() {
	s.TicketCode = NormalizeCode(s.TicketCode)
	s.Email = NormalizeEmail(s.Email)
	for _, f := range []*string{
		&s.FirstName, &s.LastName, &s.Phone, &s.Street, &s.City, &s.PostalCode,
		&s.Country, &s.Campaign, &s.Source, &s.UTMSource, &s.UTMMedium, &s.UTMCampaign, &s.ConsentTs,
	} {
		*f = strings.TrimSpace(*f)
	}
	if s.Country == "" {
		s.Country = DefaultCountry
	}
	if s.Campaign == "" {
		s.Campaign = DefaultCampaign
	}
	if s.Source == "" {
		s.Source = "golden_ticket"
	}
}

// MissingFields lists the required contact fields left empty, in form order.
func (s *Submission) MissingFields() []string {
	var missing []string
	required := []struct {
		name string
		val  string
	}{
		{"firstName", s.FirstName},
		{"lastName", s.LastName},
		{"phone", s.Phone},
		{"street", s.Street},
		{"postalCode", s.PostalCode},
		{"city", s.City},
	}
	for _, f := range required {
		if strings.TrimSpace(f.val) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// HasAddress reports whether any part of the postal address was given.
func (s *Submission) HasAddress() bool {
	return s.Street != "" || s.City != "" || s.PostalCode != ""
}

// RecordExtra returns the denormalized fields stored alongside a redemption.
func (s *Submission) RecordExtra(website string) map[string]string {
	extra := map[string]string{
		"campaign":          s.Campaign,
		"firstName":         s.FirstName,
		"lastName":          s.LastName,
		"phone":             s.Phone,
		"street":            s.Street,
		"city":              s.City,
		"postalCode":        s.PostalCode,
		"country":           s.Country,
		"source":            s.Source,
		"newsletterConsent": strconv.FormatBool(s.NewsletterConsent),
	}
	if website != "" {
		extra["website"] = website
	}
	for k, v := range map[string]string{
		"utm_source":   s.UTMSource,
		"utm_medium":   s.UTMMedium,
		"utm_campaign": s.UTMCampaign,
		"consentTs":    s.ConsentTs,
	} {
		if v != "" {
			extra[k] = v
		}
	}
	return extra
}

// RegistrationResult is the response of a completed golden-ticket registration.
type RegistrationResult struct {
	Success              bool              `json:"success"`
	Message              string            `json:"message"`
	TicketCode           string            `json:"ticketCode,omitempty"`
	Email                string            `json:"email,omitempty"`
	ParticipantID        string            `json:"participantId,omitempty"`
	CRMProfileID         string            `json:"crmProfileId,omitempty"`
	NewsletterSubscribed bool              `json:"newsletterSubscribed"`
	Validation           *ValidationResult `json:"validation,omitempty"`
}

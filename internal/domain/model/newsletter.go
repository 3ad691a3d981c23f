package model

import "strings"

const (
	DefaultNewsletterSource = "standard"
	// NewsletterStatus is the list status of a fresh signup; the CRM sends
	// the opt-in mail and flips it once confirmed.
	NewsletterStatus = "pending"
)

// NewsletterSignup is the e-mail-only signup form. Everything but the
// e-mail is optional.
type NewsletterSignup struct {
	Email       string `json:"email"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Phone       string `json:"phone"`
	TicketCode  string `json:"ticketCode"`
	Street      string `json:"street"`
	City        string `json:"city"`
	PostalCode  string `json:"postalCode"`
	Country     string `json:"country"`
	Source      string `json:"source"`
	Offer       string `json:"offer"`
	UTMSource   string `json:"utm_source"`
	UTMMedium   string `json:"utm_medium"`
	UTMCampaign string `json:"utm_campaign"`
}

func (n *NewsletterSignup) Normalize() {
	n.Email = NormalizeEmail(n.Email)
	for _, f := range []*string{
		&n.FirstName, &n.LastName, &n.Phone, &n.TicketCode, &n.Street, &n.City, &n.PostalCode,
		&n.Country, &n.Source, &n.Offer, &n.UTMSource, &n.UTMMedium, &n.UTMCampaign,
	} {
		*f = strings.TrimSpace(*f)
	}
	if n.TicketCode != "" {
		n.TicketCode = NormalizeCode(n.TicketCode)
	}
	if n.Country == "" {
		n.Country = DefaultCountry
	}
	if n.Source == "" {
		n.Source = DefaultNewsletterSource
	}
}

func (n *NewsletterSignup) HasAddress() bool {
	return n.Street != "" || n.City != "" || n.PostalCode != ""
}

func (n *NewsletterSignup) isHeroOffer() bool {
	return n.Source == "hero_dubai_offer" || n.Source == "hero_offer"
}

// OfferName is the offer stored on the profile: the one posted, else the
// default for the source.
func (n *NewsletterSignup) OfferName() string {
	switch {
	case n.Offer != "":
		return n.Offer
	case n.Source == "hero_dubai_offer":
		return "Dubai Schokolade"
	default:
		return "Standard"
	}
}

// OfferKind is the coarse offer reported back to the page.
func (n *NewsletterSignup) OfferKind() string {
	if n.isHeroOffer() {
		return "dubai_chocolate"
	}
	return "standard"
}

// Tags lists the segmentation tags of the signup, in a stable order and
// without duplicates.
func (n *NewsletterSignup) Tags() []string {
	tags := []string{"website-signup", n.Source}
	if n.Source == "golden_ticket" {
		tags = append(tags, "golden-ticket-gewinnspiel", "newsletter-opt-in")
		if n.TicketCode != "" {
			tags = append(tags, "ticket-code-provided")
		}
	}
	if n.isHeroOffer() {
		tags = append(tags, "dubai_chocolate")
	}
	if n.Offer != "" {
		tags = append(tags, strings.Join(strings.Fields(strings.ToLower(n.Offer)), "_"))
	}
	if n.HasAddress() {
		tags = append(tags, "address_provided")
	}
	if n.UTMSource != "" {
		tags = append(tags, "utm_source_"+n.UTMSource)
	}
	if n.UTMCampaign != "" {
		tags = append(tags, "utm_campaign_"+n.UTMCampaign)
	}

	seen := make(map[string]bool, len(tags))
	out := tags[:0]
	for _, t := range tags {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// Properties maps source, offer, UTM parameters and tags onto custom
// profile properties.
func (n *NewsletterSignup) Properties() map[string]any {
	props := map[string]any{
		"newsletter_source": n.Source,
		"newsletter_offer":  n.OfferName(),
		"signup_tags":       n.Tags(),
	}
	for k, v := range map[string]string{
		"utm_source":   n.UTMSource,
		"utm_medium":   n.UTMMedium,
		"utm_campaign": n.UTMCampaign,
	} {
		if v != "" {
			props[k] = v
		}
	}
	return props
}

// NewsletterResult is the response of a newsletter signup.
type NewsletterResult struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	Email           string `json:"email"`
	FirstName       string `json:"firstName,omitempty"`
	LastName        string `json:"lastName,omitempty"`
	Offer           string `json:"offer"`
	Status          string `json:"status"`
	AddressProvided bool   `json:"address_provided"`
	CRMProfileID    string `json:"crmProfileId,omitempty"`
}

// File: internal/infra/adapters/crm/klaviyo.go
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golden-ticket/internal/domain/ports/adapter"
	"golden-ticket/internal/infra/logging"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

var _ adapter.CRM = (*KlaviyoCRM)(nil)

var e164 = regexp.MustCompile(`^\+\d+$`)

// KlaviyoCRM talks to the Klaviyo JSON:API (profiles, events and
// subscription jobs). Double opt-in is configured on the list itself.
type KlaviyoCRM struct {
	apiKey   string
	listID   string
	baseURL  string
	revision string
	source   string
	dev      bool
	client   *http.Client
	now      func() time.Time
	log      *zerolog.Logger
}

type KlaviyoOptions struct {
	APIKey   string
	ListID   string
	BaseURL  string
	Revision string
	Source   string // custom_source of subscription jobs
	Timeout  time.Duration
	Dev      bool // log PII unredacted
}

func NewKlaviyoCRM(opts KlaviyoOptions, logger *zerolog.Logger) (*KlaviyoCRM, error) {
	if opts.APIKey == "" {
		return nil, errors.New("klaviyo api key empty")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://a.klaviyo.com/api"
	}
	if opts.Revision == "" {
		opts.Revision = "2024-10-15"
	}
	if opts.Source == "" {
		opts.Source = "Golden Ticket Website"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	l := logger.With().Str("component", "KlaviyoCRM").Logger()
	return &KlaviyoCRM{
		apiKey:   opts.APIKey,
		listID:   opts.ListID,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		revision: opts.Revision,
		source:   opts.Source,
		dev:      opts.Dev,
		client:   &http.Client{Timeout: opts.Timeout},
		now:      time.Now,
		log:      &l,
	}, nil
}

func (k *KlaviyoCRM) Name() string { return "klaviyo" }

// UpsertProfile creates the profile, falling back to an update of the
// existing one when Klaviyo answers 409 with duplicate_profile_id.
func (k *KlaviyoCRM) UpsertProfile(ctx context.Context, p adapter.CRMProfile) (string, error) {
	attrs := k.profileAttributes(p)
	status, body, err := k.do(ctx, http.MethodPost, "/profiles/", map[string]any{
		"data": map[string]any{"type": "profile", "attributes": attrs},
	})
	if err != nil {
		return "", err
	}
	switch {
	case status == http.StatusCreated || status == http.StatusOK:
		id := gjson.GetBytes(body, "data.id").String()
		if id == "" {
			return "", errors.New("klaviyo create profile: no id in response")
		}
		return id, nil
	case status == http.StatusConflict:
		id := gjson.GetBytes(body, "errors.0.meta.duplicate_profile_id").String()
		if id == "" {
			return "", fmt.Errorf("klaviyo create profile: conflict without duplicate_profile_id")
		}
		return k.updateProfile(ctx, id, attrs)
	default:
		return "", fmt.Errorf("klaviyo create profile: status %d: %s", status, trim(body))
	}
}

func (k *KlaviyoCRM) updateProfile(ctx context.Context, id string, attrs map[string]any) (string, error) {
	status, body, err := k.do(ctx, http.MethodPatch, "/profiles/"+id+"/", map[string]any{
		"data": map[string]any{"type": "profile", "id": id, "attributes": attrs},
	})
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("klaviyo update profile: status %d: %s", status, trim(body))
	}
	return id, nil
}

func (k *KlaviyoCRM) TrackEvent(ctx context.Context, profileID, event string, props map[string]any) error {
	payload := map[string]any{
		"data": map[string]any{
			"type": "event",
			"attributes": map[string]any{
				"profile": map[string]any{
					"data": map[string]any{"type": "profile", "id": profileID},
				},
				"metric": map[string]any{
					"data": map[string]any{"type": "metric", "attributes": map[string]any{"name": event}},
				},
				"properties": props,
			},
		},
	}
	status, body, err := k.do(ctx, http.MethodPost, "/events/", payload)
	if err != nil {
		return err
	}
	if status != http.StatusAccepted && status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("klaviyo track event: status %d: %s", status, trim(body))
	}
	return nil
}

// Subscribe starts a subscription job on the configured list.
func (k *KlaviyoCRM) Subscribe(ctx context.Context, profileID, email string) error {
	if k.listID == "" {
		return errors.New("klaviyo list id not configured")
	}
	payload := map[string]any{
		"data": map[string]any{
			"type": "profile-subscription-bulk-create-job",
			"attributes": map[string]any{
				"custom_source": k.source,
				"profiles": map[string]any{
					"data": []any{map[string]any{
						"type": "profile",
						"id":   profileID,
						"attributes": map[string]any{
							"email": strings.ToLower(strings.TrimSpace(email)),
							"subscriptions": map[string]any{
								"email": map[string]any{"marketing": map[string]any{"consent": "SUBSCRIBED"}},
							},
						},
					}},
				},
			},
			"relationships": map[string]any{
				"list": map[string]any{"data": map[string]any{"type": "list", "id": k.listID}},
			},
		},
	}
	status, body, err := k.do(ctx, http.MethodPost, "/profile-subscription-bulk-create-jobs/", payload)
	if err != nil {
		return err
	}
	if status != http.StatusAccepted && status != http.StatusOK {
		return fmt.Errorf("klaviyo subscribe: status %d: %s", status, trim(body))
	}
	return nil
}

func (k *KlaviyoCRM) profileAttributes(p adapter.CRMProfile) map[string]any {
	attrs := map[string]any{
		"email":      strings.ToLower(strings.TrimSpace(p.Email)),
		"first_name": p.FirstName,
		"last_name":  p.LastName,
	}
	if p.Phone != "" {
		if phone, ok := NormalizePhone(p.Phone); ok {
			attrs["phone_number"] = phone
		} else {
			k.log.Warn().Str("phone", logging.Redact(p.Phone, k.dev)).Msg("phone number dropped, not E.164")
		}
	}
	if p.Street != "" || p.City != "" || p.PostalCode != "" {
		loc := map[string]any{}
		if p.Street != "" {
			loc["address1"] = p.Street
		}
		if p.City != "" {
			loc["city"] = p.City
		}
		if p.PostalCode != "" {
			loc["zip"] = p.PostalCode
		}
		country := p.Country
		if country == "" {
			country = "DE"
		}
		loc["country"] = country
		attrs["location"] = loc
	}
	props := map[string]any{
		"website":            p.Website,
		"newsletter_consent": p.NewsletterConsent,
	}
	if p.TicketCode != "" {
		props["ticket_code"] = p.TicketCode
	}
	if p.Redeemed {
		props["golden_ticket_redeemed"] = true
		props["golden_ticket_redeemed_at"] = k.now().UTC().Format(time.RFC3339)
	}
	for key, v := range p.Properties {
		props[key] = v
	}
	attrs["properties"] = props
	return attrs
}

func (k *KlaviyoCRM) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, k.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Klaviyo-API-Key "+k.apiKey)
	req.Header.Set("Content-Type", "application/vnd.api+json")
	req.Header.Set("Accept", "application/vnd.api+json")
	req.Header.Set("revision", k.revision)

	resp, err := k.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("klaviyo %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("klaviyo %s %s: read body: %w", method, path, err)
	}
	return resp.StatusCode, body, nil
}

// NormalizePhone rewrites a German-style number into E.164: separators are
// stripped, a leading 0 becomes +49, a bare 49 gets its plus, anything else
// without a plus is assumed to be German. ok is false when the result is
// not at least 11 characters of + and digits.
func NormalizePhone(raw string) (string, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' || r == '(' || r == ')' {
			return -1
		}
		return r
	}, raw)
	if cleaned == "" {
		return "", false
	}
	if !strings.HasPrefix(cleaned, "+") {
		switch {
		case strings.HasPrefix(cleaned, "0"):
			cleaned = "+49" + cleaned[1:]
		case strings.HasPrefix(cleaned, "49"):
			cleaned = "+" + cleaned
		default:
			cleaned = "+49" + cleaned
		}
	}
	if len(cleaned) < 11 || !e164.MatchString(cleaned) {
		return cleaned, false
	}
	return cleaned, true
}

func trim(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 300 {
		return s[:300] + "..."
	}
	return s
}

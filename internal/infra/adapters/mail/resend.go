// Package mail sends transactional e-mails through the Resend HTTP API.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golden-ticket/internal/domain/ports/adapter"

	"github.com/tidwall/gjson"
)

var _ adapter.Mailer = (*ResendMailer)(nil)

type ResendMailer struct {
	apiKey  string
	baseURL string
	from    string
	client  *http.Client
}

func NewResendMailer(apiKey, baseURL, from string, timeout time.Duration) (*ResendMailer, error) {
	if apiKey == "" {
		return nil, errors.New("resend api key empty")
	}
	if from == "" {
		return nil, errors.New("mail sender empty")
	}
	if baseURL == "" {
		baseURL = "https://api.resend.com"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ResendMailer{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		from:    from,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (m *ResendMailer) Name() string { return "resend" }

func (m *ResendMailer) Send(ctx context.Context, msg adapter.EmailMessage) error {
	if msg.To == "" {
		return errors.New("mail recipient empty")
	}
	b, err := json.Marshal(map[string]any{
		"from":    m.from,
		"to":      []string{msg.To},
		"subject": msg.Subject,
		"html":    msg.HTML,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/emails", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("resend send: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 300 {
		reason := gjson.GetBytes(body, "message").String()
		if reason == "" {
			reason = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("resend send: status %d: %s", resp.StatusCode, reason)
	}
	return nil
}

// Package sheets appends submissions to a Google Sheets web app endpoint.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golden-ticket/internal/domain/ports/adapter"
)

var _ adapter.SheetLogger = (*WebAppLogger)(nil)

// WebAppLogger posts one flat row per submission to an Apps Script web app.
// Column names and date format follow the German sheet the team reads.
type WebAppLogger struct {
	url    string
	client *http.Client
	loc    *time.Location
}

func NewWebAppLogger(url string, timeout time.Duration) (*WebAppLogger, error) {
	if url == "" {
		return nil, errors.New("sheets web app url empty")
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		loc = time.UTC
	}
	return &WebAppLogger{url: url, client: &http.Client{Timeout: timeout}, loc: loc}, nil
}

func (w *WebAppLogger) Name() string { return "google_sheets" }

func (w *WebAppLogger) Append(ctx context.Context, row adapter.SheetRow) error {
	b, err := json.Marshal(w.payload(row))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sheets append: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sheets append: status %d", resp.StatusCode)
	}
	return nil
}

func (w *WebAppLogger) payload(row adapter.SheetRow) map[string]string {
	at := row.SubmittedAt.In(w.loc)
	consent := "Nein"
	if row.Consent {
		consent = "Ja"
	}
	consentTs := row.ConsentTs
	if consentTs == "" {
		consentTs = row.SubmittedAt.UTC().Format(time.RFC3339)
	}
	return map[string]string{
		"datum":             at.Format("02.01.2006"),
		"uhrzeit":           at.Format("15:04:05"),
		"ticket_code":       row.TicketCode,
		"vorname":           row.FirstName,
		"nachname":          row.LastName,
		"email":             row.Email,
		"handynummer":       row.Phone,
		"strasse":           row.Street,
		"plz":               row.PostalCode,
		"stadt":             row.City,
		"land":              row.Country,
		"quelle":            row.Source,
		"utm_source":        row.UTMSource,
		"utm_medium":        row.UTMMedium,
		"utm_campaign":      row.UTMCampaign,
		"einwilligung":      consent,
		"einwilligung_zeit": consentTs,
	}
}

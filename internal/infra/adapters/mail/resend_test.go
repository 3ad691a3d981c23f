//go:build !integration

package mail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golden-ticket/internal/domain/ports/adapter"
)

func TestResendMailer_Send(t *testing.T) {
	var body struct {
		From    string   `json:"from"`
		To      []string `json:"to"`
		Subject string   `json:"subject"`
		HTML    string   `json:"html"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"id":"abc"}`))
	}))
	defer srv.Close()

	m, err := NewResendMailer("re_test", srv.URL+"/", "Golden Ticket <noreply@example.com>", time.Second)
	require.NoError(t, err)

	err = m.Send(context.Background(), adapter.EmailMessage{To: "erika@example.com", Subject: "Hallo", HTML: "<p>hi</p>"})
	require.NoError(t, err)
	assert.Equal(t, []string{"erika@example.com"}, body.To)
	assert.Equal(t, "Golden Ticket <noreply@example.com>", body.From)
	assert.Equal(t, "<p>hi</p>", body.HTML)
}

func TestResendMailer_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"statusCode":422,"message":"Invalid to field"}`))
	}))
	defer srv.Close()

	m, err := NewResendMailer("re_test", srv.URL, "a@example.com", time.Second)
	require.NoError(t, err)

	err = m.Send(context.Background(), adapter.EmailMessage{To: "x@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid to field")

	assert.Error(t, m.Send(context.Background(), adapter.EmailMessage{}))

	_, err = NewResendMailer("", "", "a@example.com", 0)
	assert.Error(t, err)
	_, err = NewResendMailer("k", "", "", 0)
	assert.Error(t, err)
}

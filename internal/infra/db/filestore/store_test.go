//go:build !integration

package filestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golden-ticket/internal/domain"
	"golden-ticket/internal/domain/model"
	"golden-ticket/internal/infra/adapters/alert"
	"golden-ticket/internal/infra/lock"
	"golden-ticket/internal/usecase"
)

const legacyDoc = `{
  "AB12CD34": {
    "code": "AB12CD34",
    "email": "user@example.com",
    "timestamp": "2025-03-01T10:00:00.000Z",
    "campaign": "goldenticket_2025",
    "website": "goldenticket.sweetsausallerwelt.de",
    "firstName": "Max",
    "source": "golden_ticket",
    "newsletterConsent": true
  }
}`

func TestStore_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("missing file is an empty store", func(t *testing.T) {
		s := New(filepath.Join(t.TempDir(), "used-codes.json"))
		set, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, set)
	})

	t.Run("empty file is an empty store", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "used-codes.json")
		require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o644))
		set, err := New(path).Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, set)
	})

	t.Run("corrupt file is empty and degraded", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "used-codes.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"AB12CD34": {`), 0o644))
		set, err := New(path).Load(ctx)
		assert.True(t, errors.Is(err, domain.ErrStoreDegraded))
		assert.NotNil(t, set)
		assert.Empty(t, set)
	})

	t.Run("legacy document", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "used-codes.json")
		require.NoError(t, os.WriteFile(path, []byte(legacyDoc), 0o644))
		set, err := New(path).Load(ctx)
		require.NoError(t, err)
		rec := set["AB12CD34"]
		require.NotNil(t, rec)
		assert.Equal(t, "user@example.com", rec.Email)
		assert.Equal(t, "Max", rec.FirstName)
		assert.Equal(t, "true", rec.Metadata["newsletterConsent"])
		assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), rec.Timestamp)
	})
}

func TestStore_Save(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 12, 0, 0, 123_000_000, time.UTC)

	t.Run("creates the directory and round-trips", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a", "b", "used-codes.json")
		s := New(path)
		rec, err := model.NewRedemptionRecord("AB12CD34", "user@example.com", at, map[string]string{"source": "qr"})
		require.NoError(t, err)
		set := model.RedemptionSet{"AB12CD34": rec}

		require.NoError(t, s.Save(ctx, set))
		first, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(first), `"timestamp": "2025-06-01T12:00:00.123Z"`)

		loaded, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, set, loaded)

		// save(load()) leaves the document as it was
		require.NoError(t, s.Save(ctx, loaded))
		second, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(second))
	})

	t.Run("legacy non-string values survive save(load())", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "used-codes.json")
		require.NoError(t, os.WriteFile(path, []byte(legacyDoc), 0o644))
		s := New(path)

		loaded, err := s.Load(ctx)
		require.NoError(t, err)
		require.NoError(t, s.Save(ctx, loaded))
		first, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(first), `"newsletterConsent": true`)
		assert.NotContains(t, string(first), `"newsletterConsent": "true"`)

		again, err := s.Load(ctx)
		require.NoError(t, err)
		require.NoError(t, s.Save(ctx, again))
		second, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(second))
	})

	t.Run("corrupt document is moved aside before replacing", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "used-codes.json")
		require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))
		s := New(path)
		s.now = func() time.Time { return time.Unix(1700000000, 0) }

		require.NoError(t, s.Save(ctx, model.NewRedemptionSet()))

		aside, err := os.ReadFile(path + ".corrupt-1700000000")
		require.NoError(t, err)
		assert.Equal(t, "not json", string(aside))
		current, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "{}", strings.TrimSpace(string(current)))
	})

	t.Run("unwritable location is a persistence error", func(t *testing.T) {
		dir := t.TempDir()
		blocker := filepath.Join(dir, "file")
		require.NoError(t, os.WriteFile(blocker, nil, 0o644))
		s := New(filepath.Join(blocker, "used-codes.json"))

		err := s.Save(ctx, model.NewRedemptionSet())
		assert.ErrorIs(t, err, domain.ErrPersistence)
	})

	t.Run("no temp files are left behind", func(t *testing.T) {
		dir := t.TempDir()
		s := New(filepath.Join(dir, "used-codes.json"))
		require.NoError(t, s.Save(ctx, model.NewRedemptionSet()))
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}

func TestStore_UnreadableDocumentIsNeverReplaced(t *testing.T) {
	ctx := context.Background()

	t.Run("path that cannot be read as a file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "used-codes.json")
		require.NoError(t, os.Mkdir(path, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(path, "keep"), []byte("x"), 0o644))
		s := New(path)

		set, err := s.Load(ctx)
		assert.ErrorIs(t, err, domain.ErrStoreDegraded)
		assert.Empty(t, set)

		err = s.Save(ctx, model.NewRedemptionSet())
		assert.ErrorIs(t, err, domain.ErrPersistence)

		kept, err := os.ReadFile(filepath.Join(path, "keep"))
		require.NoError(t, err)
		assert.Equal(t, "x", string(kept))
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 1, "nothing moved aside or written next to it")
	})

	t.Run("permission denied", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root reads any file")
		}
		path := filepath.Join(t.TempDir(), "used-codes.json")
		require.NoError(t, os.WriteFile(path, []byte(legacyDoc), 0o644))
		require.NoError(t, os.Chmod(path, 0o000))
		t.Cleanup(func() { _ = os.Chmod(path, 0o644) })
		s := New(path)

		err := s.Save(ctx, model.NewRedemptionSet())
		assert.ErrorIs(t, err, domain.ErrPersistence)

		require.NoError(t, os.Chmod(path, 0o644))
		set, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Contains(t, set, "AB12CD34")
	})
}

// A redemption against an unreadable document must fail instead of
// committing a store that holds only the new code.
func TestStore_RedeemWithUnreadableDocumentKeepsEarlierCodes(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()
	dir := t.TempDir()
	path := filepath.Join(dir, "used-codes.json")
	s := New(path)
	uc := usecase.NewRedemptionUseCase(s, lock.NewLocalLocker(time.Second), alert.NewLogAlerter(&logger),
		usecase.RedemptionOptions{}, &logger)

	for _, code := range []string{"AAAAAAAA", "BBBBBBBB", "CCCCCCCC"} {
		require.NoError(t, uc.MarkCodeAsUsed(ctx, code, strings.ToLower(code[:1])+"@example.com", nil))
	}
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	// Swap the document for something that fails to read.
	require.NoError(t, os.Rename(path, path+".real"))
	require.NoError(t, os.Mkdir(path, 0o755))

	res, err := uc.Redeem(ctx, "DDDDDDDD", "d@example.com", nil)
	require.ErrorIs(t, err, domain.ErrPersistence)
	assert.False(t, res.Valid)

	require.NoError(t, os.Remove(path))
	require.NoError(t, os.Rename(path+".real", path))
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))

	set, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAAAAAAA", "BBBBBBBB", "CCCCCCCC"}, set.Codes())
}

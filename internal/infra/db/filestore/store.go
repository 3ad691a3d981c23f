// Package filestore keeps the whole redemption set in one JSON document,
// the layout the landing page has always written (used-codes.json).
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golden-ticket/internal/domain"
	"golden-ticket/internal/domain/model"
	"golden-ticket/internal/domain/ports/repository"
)

var _ repository.RedemptionStore = (*Store)(nil)

// docState describes what read found at the document path.
type docState int

const (
	docAbsent     docState = iota // missing or blank
	docOK                         // parsed
	docCorrupt                    // present but not valid JSON
	docUnreadable                 // present but could not be read
)

type Store struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

func New(path string) *Store {
	return &Store{path: path, now: time.Now}
}

func (s *Store) Backend() string { return "file" }

func (s *Store) Path() string { return s.path }

// Load reads the document. A missing or empty file is an empty set with no
// error; an unparsable one is an empty set plus an ErrStoreDegraded error.
func (s *Store) Load(ctx context.Context) (model.RedemptionSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, _, err := s.read()
	return set, err
}

// Save writes set to a temp file next to the document and renames it into
// place. An unparsable document is first moved aside to
// <path>.corrupt-<unix> so replacing it does not lose what was there. A
// document that exists but cannot be read is never replaced: the set handed
// in was not built from it.
func (s *Store) Save(ctx context.Context, set model.RedemptionSet) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch _, state, readErr := s.read(); state {
	case docUnreadable:
		return fmt.Errorf("%w: refusing to replace unreadable store: %v", domain.ErrPersistence, readErr)
	case docCorrupt:
		aside := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().Unix())
		if err := os.Rename(s.path, aside); err != nil {
			return fmt.Errorf("%w: move corrupt store aside: %v", domain.ErrPersistence, err)
		}
	}

	if set == nil {
		set = model.NewRedemptionSet()
	}
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode: %v", domain.ErrPersistence, err)
	}
	if err := writeAtomic(s.path, data); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return nil
}

// read must be called with mu held.
func (s *Store) read() (model.RedemptionSet, docState, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.NewRedemptionSet(), docAbsent, nil
	}
	if err != nil {
		return model.NewRedemptionSet(), docUnreadable, fmt.Errorf("%w: read %s: %v", domain.ErrStoreDegraded, s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return model.NewRedemptionSet(), docAbsent, nil
	}

	set := model.NewRedemptionSet()
	if err := json.Unmarshal(data, &set); err != nil {
		return model.NewRedemptionSet(), docCorrupt, fmt.Errorf("%w: parse %s: %v", domain.ErrStoreDegraded, s.path, err)
	}
	for code, rec := range set {
		if rec != nil && rec.Code == "" {
			rec.Code = code
		}
	}
	return set, docOK, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

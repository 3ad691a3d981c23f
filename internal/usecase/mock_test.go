//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"golden-ticket/internal/domain"
	"golden-ticket/internal/domain/model"
	"golden-ticket/internal/domain/ports/adapter"
	"golden-ticket/internal/domain/ports/repository"
)

// -----------------------------
// Utilities
// -----------------------------

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

// -----------------------------
// Redemption store mocks
// -----------------------------

var _ repository.RedemptionStore = (*MockStore)(nil)

// MockStore keeps a deep copy of the set, like a real backend would.
type MockStore struct {
	mu      sync.Mutex
	data    model.RedemptionSet
	loadErr error
	saveErr error
	saves   int
}

func NewMockStore() *MockStore { return &MockStore{data: model.NewRedemptionSet()} }

func (m *MockStore) Backend() string { return "mock" }

func (m *MockStore) Load(ctx context.Context) (model.RedemptionSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return model.NewRedemptionSet(), m.loadErr
	}
	return m.data.Clone(), nil
}

func (m *MockStore) Save(ctx context.Context, set model.RedemptionSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.data = set.Clone()
	return nil
}

// Seed places a record directly, bypassing validation.
func (m *MockStore) Seed(code, email, campaign string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[code] = &model.RedemptionRecord{
		Code:      code,
		Email:     email,
		Campaign:  campaign,
		Website:   model.DefaultWebsite,
		Timestamp: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (m *MockStore) Snapshot() model.RedemptionSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.Clone()
}

func (m *MockStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

var _ repository.RecordInserter = (*MockInsertStore)(nil)

// MockInsertStore adds the single-row insert path SQL stores offer.
type MockInsertStore struct {
	*MockStore
	inserts int
}

func NewMockInsertStore() *MockInsertStore { return &MockInsertStore{MockStore: NewMockStore()} }

func (m *MockInsertStore) Insert(ctx context.Context, rec *model.RedemptionRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return false, m.saveErr
	}
	if _, ok := m.data[rec.Code]; ok {
		return false, nil
	}
	cp := *rec
	m.data[rec.Code] = &cp
	m.inserts++
	return true, nil
}

// -----------------------------
// Locker mock
// -----------------------------

var _ repository.Locker = (*MockLocker)(nil)

// MockLocker is a blocking in-process lock; busy forces ErrLockBusy.
type MockLocker struct {
	mu    sync.Mutex
	held  map[string]chan struct{}
	busy  bool
	calls int
}

func NewMockLocker() *MockLocker { return &MockLocker{held: make(map[string]chan struct{})} }

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	for {
		l.mu.Lock()
		l.calls++
		if l.busy {
			l.mu.Unlock()
			return "", domain.ErrLockBusy
		}
		ch, taken := l.held[key]
		if !taken {
			l.held[key] = make(chan struct{})
			l.mu.Unlock()
			return uuid.NewString(), nil
		}
		l.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.held[key]
	if !ok {
		return errors.New("not locked")
	}
	delete(l.held, key)
	close(ch)
	return nil
}

// -----------------------------
// Adapter mocks
// -----------------------------

type MockAlerter struct {
	mu   sync.Mutex
	msgs []string
	sent chan struct{}
}

func NewMockAlerter() *MockAlerter { return &MockAlerter{sent: make(chan struct{}, 16)} }

func (a *MockAlerter) Alert(ctx context.Context, text string) error {
	a.mu.Lock()
	a.msgs = append(a.msgs, text)
	a.mu.Unlock()
	a.sent <- struct{}{}
	return nil
}

func (a *MockAlerter) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.msgs)
}

var _ adapter.CRM = (*MockCRM)(nil)

type MockCRM struct {
	mu           sync.Mutex
	profileID    string
	upsertErr    error
	subscribeErr error
	profiles     []adapter.CRMProfile
	events       []string
	subscribed   []string
}

func NewMockCRM() *MockCRM { return &MockCRM{profileID: "01PROFILE"} }

func (c *MockCRM) Name() string { return "mockcrm" }

func (c *MockCRM) UpsertProfile(ctx context.Context, p adapter.CRMProfile) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.upsertErr != nil {
		return "", c.upsertErr
	}
	c.profiles = append(c.profiles, p)
	return c.profileID, nil
}

func (c *MockCRM) TrackEvent(ctx context.Context, profileID, event string, props map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event+":"+props["ticket_code"].(string))
	return nil
}

func (c *MockCRM) Subscribe(ctx context.Context, profileID, email string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribeErr != nil {
		return c.subscribeErr
	}
	c.subscribed = append(c.subscribed, email)
	return nil
}

var _ adapter.SheetLogger = (*MockSheets)(nil)

type MockSheets struct {
	mu   sync.Mutex
	rows []adapter.SheetRow
	err  error
}

func (s *MockSheets) Name() string { return "mocksheets" }

func (s *MockSheets) Append(ctx context.Context, row adapter.SheetRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, row)
	return nil
}

var _ adapter.Mailer = (*MockMailer)(nil)

type MockMailer struct {
	mu   sync.Mutex
	sent []adapter.EmailMessage
}

func (m *MockMailer) Name() string { return "mockmail" }

func (m *MockMailer) Send(ctx context.Context, msg adapter.EmailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// InlineDispatcher runs tasks synchronously so tests can assert on them.
type InlineDispatcher struct{ runs int }

func (d *InlineDispatcher) Submit(task func(ctx context.Context) error) error {
	d.runs++
	return task(context.Background())
}

// FullDispatcher always rejects, like a saturated pool.
type FullDispatcher struct{}

func (FullDispatcher) Submit(func(ctx context.Context) error) error {
	return errors.New("worker queue full")
}

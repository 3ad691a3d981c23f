//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"golden-ticket/internal/domain"
	"golden-ticket/internal/domain/model"
	"golden-ticket/internal/domain/ports/repository"
	"golden-ticket/internal/usecase"
)

var testNow = time.Date(2025, 6, 1, 12, 30, 45, 123_000_000, time.UTC)

func newRedemptionUC(store repository.RedemptionStore, alerter *MockAlerter) usecase.RedemptionUseCase {
	opts := usecase.RedemptionOptions{Clock: fixedClock(testNow), LockTTL: time.Second}
	if alerter == nil {
		return usecase.NewRedemptionUseCase(store, NewMockLocker(), nil, opts, newTestLogger())
	}
	return usecase.NewRedemptionUseCase(store, NewMockLocker(), alerter, opts, newTestLogger())
}

func TestRedemptionUseCase_ValidateCode(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects anything that is not eight alphanumerics", func(t *testing.T) {
		uc := newRedemptionUC(NewMockStore(), nil)
		for _, code := range []string{"", "ABC", "AB12CD3", "AB12CD345", "AB12-D34", "ÄB12CD34", "AB 2CD34"} {
			res := uc.ValidateCode(ctx, code, "")
			if res.Valid || res.Error != model.ReasonInvalidFormat {
				t.Errorf("code %q: expected InvalidFormat, got %+v", code, res)
			}
		}
	})

	t.Run("normalizes case and whitespace", func(t *testing.T) {
		uc := newRedemptionUC(NewMockStore(), nil)
		if res := uc.ValidateCode(ctx, "  ab12cd34 ", ""); !res.Valid {
			t.Fatalf("expected valid, got %+v", res)
		}
	})

	t.Run("reports who used a redeemed code", func(t *testing.T) {
		store := NewMockStore()
		store.Seed("AB12CD34", "first@example.com", model.DefaultCampaign)
		uc := newRedemptionUC(store, nil)

		res := uc.ValidateCode(ctx, "ab12cd34", "")
		if res.Valid || res.Error != model.ReasonAlreadyRedeemed {
			t.Fatalf("expected AlreadyRedeemed, got %+v", res)
		}
		if res.UsedBy != "first@example.com" {
			t.Errorf("expected usedBy first@example.com, got %q", res.UsedBy)
		}
		if res.UsedAt != "2025-03-01T10:00:00.000Z" {
			t.Errorf("unexpected usedAt %q", res.UsedAt)
		}
		if !errors.Is(res.Err(), domain.ErrAlreadyRedeemed) {
			t.Errorf("expected ErrAlreadyRedeemed, got %v", res.Err())
		}
	})
}

func TestRedemptionUseCase_ValidateEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects malformed addresses", func(t *testing.T) {
		uc := newRedemptionUC(NewMockStore(), nil)
		for _, email := range []string{"", "plain", "a@b", "a b@c.de", "@example.com"} {
			if res := uc.ValidateEmail(ctx, email, ""); res.Error != model.ReasonInvalidEmailFormat {
				t.Errorf("email %q: expected InvalidEmailFormat, got %+v", email, res)
			}
		}
	})

	t.Run("duplicate within the same campaign lists prior codes", func(t *testing.T) {
		store := NewMockStore()
		store.Seed("ZZZZ0001", "user@example.com", "camp1")
		store.Seed("AAAA0001", "USER@example.com", "camp1")
		uc := newRedemptionUC(store, nil)

		res := uc.ValidateEmail(ctx, " User@Example.COM ", "camp1")
		if res.Valid || res.Error != model.ReasonDuplicateParticipation {
			t.Fatalf("expected DuplicateParticipation, got %+v", res)
		}
		want := []string{"AAAA0001", "ZZZZ0001"}
		if !reflect.DeepEqual(res.ExistingCodes, want) {
			t.Errorf("expected %v, got %v", want, res.ExistingCodes)
		}
	})

	t.Run("other campaign does not count", func(t *testing.T) {
		store := NewMockStore()
		store.Seed("ZZZZ0001", "user@example.com", "camp1")
		uc := newRedemptionUC(store, nil)

		if res := uc.ValidateEmail(ctx, "user@example.com", "camp2"); !res.Valid {
			t.Fatalf("expected valid, got %+v", res)
		}
	})

	t.Run("empty campaign means the default one", func(t *testing.T) {
		store := NewMockStore()
		store.Seed("ZZZZ0001", "user@example.com", model.DefaultCampaign)
		uc := newRedemptionUC(store, nil)

		if res := uc.ValidateEmail(ctx, "user@example.com", ""); res.Valid {
			t.Fatal("expected duplicate in default campaign")
		}
	})

	t.Run("records without email are skipped", func(t *testing.T) {
		store := NewMockStore()
		store.Seed("ZZZZ0001", "", "camp1")
		store.data["NILREC01"] = nil
		uc := newRedemptionUC(store, nil)

		if res := uc.ValidateEmail(ctx, "user@example.com", "camp1"); !res.Valid {
			t.Fatalf("expected valid, got %+v", res)
		}
	})
}

func TestRedemptionUseCase_ValidateSubmission(t *testing.T) {
	ctx := context.Background()
	store := NewMockStore()
	store.Seed("AB12CD34", "first@example.com", "camp1")
	store.Seed("ZZZZ0001", "dup@example.com", "camp1")
	uc := newRedemptionUC(store, nil)

	cases := []struct {
		name  string
		code  string
		email string
		want  model.FailureReason
	}{
		{"code problem wins over email problem", "bad", "not-an-email", model.ReasonInvalidFormat},
		{"redeemed code wins over duplicate email", "AB12CD34", "dup@example.com", model.ReasonAlreadyRedeemed},
		{"email format after code", "NEWC0DE1", "broken@", model.ReasonInvalidEmailFormat},
		{"duplicate email", "NEWC0DE1", "dup@example.com", model.ReasonDuplicateParticipation},
		{"valid", "NEWC0DE1", "fresh@example.com", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := uc.ValidateSubmission(ctx, tc.code, tc.email, "camp1")
			if tc.want == "" {
				if !res.Valid {
					t.Fatalf("expected valid, got %+v", res)
				}
				return
			}
			if res.Valid || res.Error != tc.want {
				t.Fatalf("expected %s, got %+v", tc.want, res)
			}
			if res.Details == nil || res.Details.Error != tc.want {
				t.Errorf("expected details of the failing step, got %+v", res.Details)
			}
		})
	}
}

func TestRedemptionUseCase_MarkCodeAsUsed(t *testing.T) {
	ctx := context.Background()

	t.Run("end to end on an empty store", func(t *testing.T) {
		// --- Arrange ---
		store := NewMockStore()
		uc := newRedemptionUC(store, nil)

		// --- Act / Assert ---
		if res := uc.ValidateCode(ctx, "AB12CD34", ""); !res.Valid {
			t.Fatalf("expected valid on empty store, got %+v", res)
		}
		if err := uc.MarkCodeAsUsed(ctx, "ab12cd34", "User@Example.com", map[string]string{"source": "qr"}); err != nil {
			t.Fatalf("MarkCodeAsUsed failed: %v", err)
		}
		rec, ok := store.Snapshot()["AB12CD34"]
		if !ok {
			t.Fatal("expected key AB12CD34 in store")
		}
		if rec.Email != "user@example.com" || rec.Campaign != model.DefaultCampaign || rec.Website != model.DefaultWebsite {
			t.Errorf("unexpected record %+v", rec)
		}
		if rec.Metadata["source"] != "qr" {
			t.Errorf("expected metadata source=qr, got %v", rec.Metadata)
		}
		if !rec.Timestamp.Equal(testNow) {
			t.Errorf("expected timestamp %v, got %v", testNow, rec.Timestamp)
		}
		res := uc.ValidateCode(ctx, "AB12CD34", "")
		if res.Valid || res.Error != model.ReasonAlreadyRedeemed || res.UsedBy != "user@example.com" {
			t.Fatalf("expected AlreadyRedeemed by user@example.com, got %+v", res)
		}
	})

	t.Run("never overwrites an existing code", func(t *testing.T) {
		store := NewMockStore()
		store.Seed("AB12CD34", "first@example.com", model.DefaultCampaign)
		uc := newRedemptionUC(store, nil)

		err := uc.MarkCodeAsUsed(ctx, "AB12CD34", "second@example.com", nil)
		if !errors.Is(err, domain.ErrAlreadyRedeemed) {
			t.Fatalf("expected ErrAlreadyRedeemed, got %v", err)
		}
		if got := store.Snapshot()["AB12CD34"].Email; got != "first@example.com" {
			t.Errorf("record was overwritten by %q", got)
		}
	})

	t.Run("save failure is a persistence error", func(t *testing.T) {
		store := NewMockStore()
		store.saveErr = errors.New("disk full")
		uc := newRedemptionUC(store, nil)

		err := uc.MarkCodeAsUsed(ctx, "AB12CD34", "user@example.com", nil)
		if !errors.Is(err, domain.ErrPersistence) {
			t.Fatalf("expected ErrPersistence, got %v", err)
		}
		if len(store.Snapshot()) != 0 {
			t.Error("nothing should be committed")
		}
	})

	t.Run("invalid code is refused before touching the store", func(t *testing.T) {
		store := NewMockStore()
		uc := newRedemptionUC(store, nil)

		if err := uc.MarkCodeAsUsed(ctx, "nope", "user@example.com", nil); !errors.Is(err, domain.ErrInvalidFormat) {
			t.Fatalf("expected ErrInvalidFormat, got %v", err)
		}
		if store.Saves() != 0 {
			t.Error("store should not be saved")
		}
	})

	t.Run("uses the single-row insert when the store has one", func(t *testing.T) {
		store := NewMockInsertStore()
		uc := newRedemptionUC(store, nil)

		if err := uc.MarkCodeAsUsed(ctx, "AB12CD34", "user@example.com", nil); err != nil {
			t.Fatalf("MarkCodeAsUsed failed: %v", err)
		}
		if store.inserts != 1 || store.Saves() != 0 {
			t.Errorf("expected 1 insert and no full save, got %d/%d", store.inserts, store.Saves())
		}
	})
}

func TestRedemptionUseCase_Redeem(t *testing.T) {
	ctx := context.Background()

	t.Run("second redemption is rejected and leaves the store unchanged", func(t *testing.T) {
		store := NewMockStore()
		uc := newRedemptionUC(store, nil)

		res, err := uc.Redeem(ctx, "AB12CD34", "user@example.com", nil)
		if err != nil || !res.Valid {
			t.Fatalf("first redeem: res=%+v err=%v", res, err)
		}
		after := store.Snapshot()

		res, err = uc.Redeem(ctx, "AB12CD34", "other@example.com", nil)
		if err != nil {
			t.Fatalf("second redeem returned error: %v", err)
		}
		if res.Valid || res.Error != model.ReasonAlreadyRedeemed {
			t.Fatalf("expected AlreadyRedeemed, got %+v", res)
		}
		if !reflect.DeepEqual(after, store.Snapshot()) {
			t.Error("store changed after rejected redemption")
		}
	})

	t.Run("duplicate participation is rejected", func(t *testing.T) {
		store := NewMockStore()
		store.Seed("ZZZZ0001", "user@example.com", "camp1")
		uc := newRedemptionUC(store, nil)

		res, err := uc.Redeem(ctx, "AB12CD34", "user@example.com", map[string]string{"campaign": "camp1"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Error != model.ReasonDuplicateParticipation {
			t.Fatalf("expected DuplicateParticipation, got %+v", res)
		}
	})

	t.Run("busy lock surfaces as an error", func(t *testing.T) {
		store := NewMockStore()
		locker := NewMockLocker()
		locker.busy = true
		uc := usecase.NewRedemptionUseCase(store, locker, nil, usecase.RedemptionOptions{}, newTestLogger())

		_, err := uc.Redeem(ctx, "AB12CD34", "user@example.com", nil)
		if !errors.Is(err, domain.ErrLockBusy) {
			t.Fatalf("expected ErrLockBusy, got %v", err)
		}
	})

	t.Run("concurrent redemptions of different codes are all kept", func(t *testing.T) {
		store := NewMockStore()
		uc := newRedemptionUC(store, nil)

		var wg sync.WaitGroup
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				code := fmt.Sprintf("CODE%04d", i)
				if _, err := uc.Redeem(ctx, code, fmt.Sprintf("u%d@example.com", i), nil); err != nil {
					t.Errorf("redeem %s: %v", code, err)
				}
			}(i)
		}
		wg.Wait()

		if got := len(store.Snapshot()); got != 25 {
			t.Fatalf("expected 25 records, got %d", got)
		}
	})

	t.Run("concurrent redemptions of one code commit exactly once", func(t *testing.T) {
		store := NewMockStore()
		uc := newRedemptionUC(store, nil)

		var (
			wg  sync.WaitGroup
			mu  sync.Mutex
			won int
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				res, err := uc.Redeem(ctx, "AB12CD34", fmt.Sprintf("u%d@example.com", i), nil)
				if err != nil {
					t.Errorf("redeem: %v", err)
					return
				}
				if res.Valid {
					mu.Lock()
					won++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		if won != 1 {
			t.Fatalf("expected exactly one winner, got %d", won)
		}
	})
}

func TestRedemptionUseCase_DegradedStore(t *testing.T) {
	ctx := context.Background()
	store := NewMockStore()
	store.loadErr = fmt.Errorf("%w: unexpected end of JSON input", domain.ErrStoreDegraded)
	alerter := NewMockAlerter()
	uc := newRedemptionUC(store, alerter)

	// Fails open: the unreadable store reads as empty.
	if res := uc.ValidateCode(ctx, "AB12CD34", ""); !res.Valid {
		t.Fatalf("expected valid on degraded store, got %+v", res)
	}
	select {
	case <-alerter.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a degraded-store alert")
	}

	// Throttled: the clock does not move, so no second alert.
	uc.ValidateEmail(ctx, "user@example.com", "")
	time.Sleep(50 * time.Millisecond)
	if n := alerter.Count(); n != 1 {
		t.Errorf("expected 1 alert, got %d", n)
	}
}

func TestRedemptionUseCase_Statistics(t *testing.T) {
	ctx := context.Background()
	store := NewMockStore()
	store.Seed("AAAA0001", "a@example.com", "camp1")
	store.Seed("BBBB0002", "b@example.com", "camp1")
	store.Seed("CCCC0003", "c@example.com", "camp2")
	uc := newRedemptionUC(store, nil)

	stats := uc.Statistics(ctx, "camp1")
	if stats.TotalCodes != 2 || stats.UniqueEmails != 2 {
		t.Errorf("expected 2 codes / 2 emails, got %+v", stats)
	}
	want := map[string]int{"camp1": 2, "camp2": 1}
	if !reflect.DeepEqual(stats.ByCampaign, want) {
		t.Errorf("expected byCampaign %v, got %v", want, stats.ByCampaign)
	}

	all := uc.Statistics(ctx, "")
	if all.TotalCodes != 3 || all.UniqueEmails != 3 {
		t.Errorf("expected 3/3 over whole store, got %+v", all)
	}
	if all.ByWebsite[model.DefaultWebsite] != 3 {
		t.Errorf("expected 3 by website, got %v", all.ByWebsite)
	}
}

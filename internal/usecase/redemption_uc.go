package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golden-ticket/internal/domain"
	"golden-ticket/internal/domain/model"
	"golden-ticket/internal/domain/ports/adapter"
	"golden-ticket/internal/domain/ports/repository"
	"golden-ticket/internal/infra/logging"
	"golden-ticket/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ RedemptionUseCase = (*redemptionUC)(nil)

// How often the degraded-store alert may fire.
const degradedAlertEvery = 5 * time.Minute

// RedemptionUseCase validates ticket codes and e-mails against the
// redemption store and records successful redemptions.
type RedemptionUseCase interface {
	ValidateCode(ctx context.Context, code, campaign string) model.ValidationResult
	ValidateEmail(ctx context.Context, email, campaign string) model.ValidationResult
	ValidateSubmission(ctx context.Context, code, email, campaign string) model.ValidationResult
	MarkCodeAsUsed(ctx context.Context, code, email string, extra map[string]string) error
	Redeem(ctx context.Context, code, email string, extra map[string]string) (model.ValidationResult, error)
	Statistics(ctx context.Context, campaign string) model.StatsSummary
}

// RedemptionOptions carries the campaign defaults and tuning knobs.
type RedemptionOptions struct {
	Campaign string
	Website  string
	LockTTL  time.Duration
	Clock    func() time.Time
}

type redemptionUC struct {
	store   repository.RedemptionStore
	locker  repository.Locker
	alerter adapter.Alerter

	campaign string
	website  string
	lockTTL  time.Duration
	now      func() time.Time

	alertMu   sync.Mutex
	lastAlert time.Time

	log *zerolog.Logger
}

func NewRedemptionUseCase(
	store repository.RedemptionStore,
	locker repository.Locker,
	alerter adapter.Alerter,
	opts RedemptionOptions,
	logger *zerolog.Logger,
) *redemptionUC {
	if opts.Campaign == "" {
		opts.Campaign = model.DefaultCampaign
	}
	if opts.Website == "" {
		opts.Website = model.DefaultWebsite
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	l := logger.With().Str("component", "RedemptionUC").Str("backend", store.Backend()).Logger()
	return &redemptionUC{
		store:    store,
		locker:   locker,
		alerter:  alerter,
		campaign: opts.Campaign,
		website:  opts.Website,
		lockTTL:  opts.LockTTL,
		now:      opts.Clock,
		log:      &l,
	}
}

func (u *redemptionUC) ValidateCode(ctx context.Context, code, campaign string) model.ValidationResult {
	defer logging.TraceDuration(u.log, "RedemptionUC.ValidateCode")()

	norm := model.NormalizeCode(code)
	if !model.IsValidCode(norm) {
		return u.reject(model.Invalid(model.ReasonInvalidFormat))
	}
	return u.reject(checkCode(u.load(ctx), norm))
}

func (u *redemptionUC) ValidateEmail(ctx context.Context, email, campaign string) model.ValidationResult {
	defer logging.TraceDuration(u.log, "RedemptionUC.ValidateEmail")()

	norm := model.NormalizeEmail(email)
	if !model.IsValidEmail(norm) {
		return u.reject(model.Invalid(model.ReasonInvalidEmailFormat))
	}
	return u.reject(u.checkEmail(ctx, u.load(ctx), norm, u.campaignOr(campaign)))
}

// ValidateSubmission checks the code first and the e-mail second, so a
// submission with both problems always reports the code problem.
func (u *redemptionUC) ValidateSubmission(ctx context.Context, code, email, campaign string) model.ValidationResult {
	defer logging.TraceDuration(u.log, "RedemptionUC.ValidateSubmission")()
	return u.reject(u.validateIn(ctx, nil, code, email, u.campaignOr(campaign)))
}

// MarkCodeAsUsed records a redemption. It never overwrites: an existing
// code fails with domain.ErrAlreadyRedeemed. Persistence failures wrap
// domain.ErrPersistence and mean nothing was committed.
func (u *redemptionUC) MarkCodeAsUsed(ctx context.Context, code, email string, extra map[string]string) error {
	defer logging.TraceDuration(u.log, "RedemptionUC.MarkCodeAsUsed")()

	rec, err := model.NewRedemptionRecord(code, email, u.now(), u.withDefaults(extra))
	if err != nil {
		return err
	}
	err = u.withLock(ctx, func() error {
		return u.insert(ctx, u.load(ctx), rec)
	})
	u.count(rec.Campaign, err)
	return err
}

// Redeem is the atomic check-then-mark: validation and the write happen
// under the store lock. A validation failure comes back as an invalid
// result with a nil error; lock and persistence problems are errors.
func (u *redemptionUC) Redeem(ctx context.Context, code, email string, extra map[string]string) (model.ValidationResult, error) {
	defer logging.TraceDuration(u.log, "RedemptionUC.Redeem")()

	extra = u.withDefaults(extra)
	campaign := extra["campaign"]

	var res model.ValidationResult
	err := u.withLock(ctx, func() error {
		set := u.load(ctx)
		res = u.validateIn(ctx, set, code, email, campaign)
		if !res.Valid {
			return nil
		}
		rec, err := model.NewRedemptionRecord(code, email, u.now(), extra)
		if err != nil {
			return err
		}
		if err := u.insert(ctx, set, rec); err != nil {
			if errors.Is(err, domain.ErrAlreadyRedeemed) {
				// Lost a race against a writer outside this lock.
				res = failWithDetails(model.Invalid(model.ReasonAlreadyRedeemed))
				return nil
			}
			return err
		}
		return nil
	})
	switch {
	case err != nil:
		metrics.IncRedemption(campaign, "failed")
		return model.ValidationResult{}, err
	case !res.Valid:
		metrics.IncRedemption(campaign, "rejected")
		return u.reject(res), nil
	}
	metrics.IncRedemption(campaign, "committed")

	l := logging.With(ctx, u.log)
	l.Info().
		Str("code", model.NormalizeCode(code)).
		Str("email", logging.Redact(model.NormalizeEmail(email), false)).
		Str("campaign", campaign).
		Msg("code redeemed")
	return res, nil
}

func (u *redemptionUC) Statistics(ctx context.Context, campaign string) model.StatsSummary {
	defer logging.TraceDuration(u.log, "RedemptionUC.Statistics")()
	return u.load(ctx).Summarize(strings.TrimSpace(campaign))
}

// validateIn runs the code check then the e-mail check against set,
// loading the store when set is nil.
func (u *redemptionUC) validateIn(ctx context.Context, set model.RedemptionSet, code, email, campaign string) model.ValidationResult {
	normCode := model.NormalizeCode(code)
	if !model.IsValidCode(normCode) {
		return failWithDetails(model.Invalid(model.ReasonInvalidFormat))
	}
	normEmail := model.NormalizeEmail(email)
	if set == nil {
		set = u.load(ctx)
	}
	if res := checkCode(set, normCode); !res.Valid {
		return failWithDetails(res)
	}
	if !model.IsValidEmail(normEmail) {
		return failWithDetails(model.Invalid(model.ReasonInvalidEmailFormat))
	}
	if res := u.checkEmail(ctx, set, normEmail, campaign); !res.Valid {
		return failWithDetails(res)
	}
	return model.Valid()
}

func checkCode(set model.RedemptionSet, code string) model.ValidationResult {
	rec, ok := set[code]
	if !ok || rec == nil {
		return model.Valid()
	}
	res := model.Invalid(model.ReasonAlreadyRedeemed)
	res.UsedBy = orUnknown(rec.Email)
	res.UsedAt = orUnknown(rec.TimestampString())
	return res
}

func (u *redemptionUC) checkEmail(ctx context.Context, set model.RedemptionSet, email, campaign string) model.ValidationResult {
	var codes []string
	for key, rec := range set {
		if rec == nil || rec.Email == "" {
			l := logging.With(ctx, u.log)
			l.Warn().Str("code", key).Msg("record without email skipped")
			continue
		}
		if strings.ToLower(rec.Email) != email || rec.Campaign != campaign {
			continue
		}
		c := rec.Code
		if c == "" {
			c = key
		}
		codes = append(codes, c)
	}
	if len(codes) == 0 {
		return model.Valid()
	}
	sort.Strings(codes)
	res := model.Invalid(model.ReasonDuplicateParticipation)
	res.ExistingCodes = codes
	return res
}

// load reads the store, failing open: an unreadable store is logged,
// counted and alerted on, then treated as empty.
func (u *redemptionUC) load(ctx context.Context) model.RedemptionSet {
	start := time.Now()
	set, err := u.store.Load(ctx)
	metrics.ObserveStoreOp(u.store.Backend(), "load", msSince(start), err == nil)
	if err != nil {
		l := logging.With(ctx, u.log)
		l.Error().Err(err).Msg("redemption store degraded, continuing with empty set")
		metrics.IncStoreDegraded(u.store.Backend())
		u.alertDegraded(err)
	}
	if set == nil {
		set = model.NewRedemptionSet()
	}
	return set
}

// insert adds rec unless its code is taken, through RecordInserter when
// the store offers it and through a full save otherwise.
func (u *redemptionUC) insert(ctx context.Context, set model.RedemptionSet, rec *model.RedemptionRecord) error {
	if existing, ok := set[rec.Code]; ok && existing != nil {
		return domain.ErrAlreadyRedeemed
	}

	start := time.Now()
	var err error
	if ins, ok := u.store.(repository.RecordInserter); ok {
		var inserted bool
		inserted, err = ins.Insert(ctx, rec)
		if err == nil && !inserted {
			metrics.ObserveStoreOp(u.store.Backend(), "insert", msSince(start), true)
			return domain.ErrAlreadyRedeemed
		}
		metrics.ObserveStoreOp(u.store.Backend(), "insert", msSince(start), err == nil)
	} else {
		set[rec.Code] = rec
		err = u.store.Save(ctx, set)
		metrics.ObserveStoreOp(u.store.Backend(), "save", msSince(start), err == nil)
	}
	if err != nil {
		if !errors.Is(err, domain.ErrPersistence) {
			err = fmt.Errorf("%w: %w", domain.ErrPersistence, err)
		}
		l := logging.With(ctx, u.log)
		l.Error().Err(err).Str("code", rec.Code).Msg("could not persist redemption")
		return err
	}
	return nil
}

func (u *redemptionUC) withLock(ctx context.Context, fn func() error) error {
	token, err := u.locker.TryLock(ctx, repository.StoreLockKey, u.lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockBusy) {
			metrics.IncLockAcquire("busy")
			return err
		}
		metrics.IncLockAcquire("error")
		return fmt.Errorf("%w: %w", domain.ErrLockBusy, err)
	}
	metrics.IncLockAcquire("acquired")
	defer func() {
		if err := u.locker.Unlock(context.WithoutCancel(ctx), repository.StoreLockKey, token); err != nil {
			u.log.Warn().Err(err).Msg("store unlock failed")
		}
	}()
	return fn()
}

func (u *redemptionUC) alertDegraded(cause error) {
	if u.alerter == nil {
		return
	}
	u.alertMu.Lock()
	if !u.lastAlert.IsZero() && u.now().Sub(u.lastAlert) < degradedAlertEvery {
		u.alertMu.Unlock()
		return
	}
	u.lastAlert = u.now()
	u.alertMu.Unlock()

	msg := fmt.Sprintf("redemption store (%s) is unreadable, serving as empty: %v", u.store.Backend(), cause)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := u.alerter.Alert(ctx, msg); err != nil {
			u.log.Warn().Err(err).Msg("degraded-store alert failed")
		}
	}()
}

func (u *redemptionUC) reject(res model.ValidationResult) model.ValidationResult {
	if !res.Valid {
		metrics.IncValidationFailure(string(res.Error))
	}
	return res
}

func (u *redemptionUC) count(campaign string, err error) {
	switch {
	case err == nil:
		metrics.IncRedemption(campaign, "committed")
	case errors.Is(err, domain.ErrAlreadyRedeemed):
		metrics.IncRedemption(campaign, "rejected")
	default:
		metrics.IncRedemption(campaign, "failed")
	}
}

func (u *redemptionUC) campaignOr(c string) string {
	if c = strings.TrimSpace(c); c != "" {
		return c
	}
	return u.campaign
}

// withDefaults copies extra and fills campaign and website.
func (u *redemptionUC) withDefaults(extra map[string]string) map[string]string {
	out := make(map[string]string, len(extra)+2)
	for k, v := range extra {
		out[k] = v
	}
	out["campaign"] = u.campaignOr(out["campaign"])
	if strings.TrimSpace(out["website"]) == "" {
		out["website"] = u.website
	}
	return out
}

func failWithDetails(res model.ValidationResult) model.ValidationResult {
	detail := res
	res.Details = &detail
	return res
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}

package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"golden-ticket/internal/domain"
	"golden-ticket/internal/domain/model"
	"golden-ticket/internal/domain/ports/repository"
	"golden-ticket/internal/infra/i18n"
	"golden-ticket/internal/infra/logging"
	"golden-ticket/internal/infra/metrics"
	"golden-ticket/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type ServerOptions struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	RateLimit      int
	RateWindow     time.Duration
	Translator     *i18n.Translator
}

// Server exposes the redemption, registration and newsletter use cases
// over HTTP.
type Server struct {
	redemptions  usecase.RedemptionUseCase
	registration usecase.RegistrationUseCase
	newsletter   usecase.NewsletterUseCase
	auth         *AuthManager
	limiter      repository.RateLimiter
	opts         ServerOptions
	tr           *i18n.Translator
	log          *zerolog.Logger
}

func NewServer(
	redemptions usecase.RedemptionUseCase,
	registration usecase.RegistrationUseCase,
	newsletter usecase.NewsletterUseCase,
	auth *AuthManager,
	limiter repository.RateLimiter,
	opts ServerOptions,
	logger *zerolog.Logger,
) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = time.Minute
	}
	if opts.Translator == nil {
		opts.Translator = i18n.MustDefault()
	}
	lg := logger.With().Str("component", "HTTPServer").Logger()
	return &Server{
		redemptions:  redemptions,
		registration: registration,
		newsletter:   newsletter,
		auth:         auth,
		limiter:      limiter,
		opts:         opts,
		tr:           opts.Translator,
		log:          &lg,
	}
}

// Router builds the chi router with the full middleware chain.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(
		TraceID(),
		RequestLog(s.log),
		Recover(s.log),
		Timeout(s.opts.RequestTimeout),
		CORS(s.opts.AllowedOrigins),
	)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.rateLimit("validate"))
			r.Post("/validate-code", s.handleValidateCode)
			r.Post("/validate-submission", s.handleValidateSubmission)
		})
		r.With(s.rateLimit("golden-ticket")).
			Post("/golden-ticket", s.handleGoldenTicket)
		r.With(s.rateLimit("newsletter")).
			Post("/newsletter", s.handleNewsletter)

		r.Route("/v1", func(r chi.Router) {
			r.With(s.rateLimit("admin")).
				Post("/admin/session", s.handleLogin)
			r.Delete("/admin/session", s.handleLogout)
			r.With(s.auth.RequireAdmin).Get("/stats", s.handleStats)
		})
	})
	return r
}

func (s *Server) rateLimit(name string) Middleware {
	return RateLimit(s.limiter, name, s.opts.RateLimit, s.opts.RateWindow, s.tr.T("error.rate_limited"), s.log)
}

type validateRequest struct {
	Code     string `json:"code"`
	Email    string `json:"email"`
	Campaign string `json:"campaign"`
}

func (s *Server) handleValidateCode(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, s.tr.T("error.bad_request"))
		return
	}
	s.writeValidation(w, s.redemptions.ValidateCode(r.Context(), req.Code, req.Campaign))
}

func (s *Server) handleValidateSubmission(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, s.tr.T("error.bad_request"))
		return
	}
	s.writeValidation(w, s.redemptions.ValidateSubmission(r.Context(), req.Code, req.Email, req.Campaign))
}

func (s *Server) writeValidation(w http.ResponseWriter, res model.ValidationResult) {
	res = s.localize(res)
	if res.Valid {
		writeJSON(w, http.StatusOK, res)
		return
	}
	writeJSON(w, http.StatusBadRequest, res)
}

func (s *Server) handleGoldenTicket(w http.ResponseWriter, r *http.Request) {
	var sub model.Submission
	if err := decodeJSON(w, r, &sub); err != nil {
		writeError(w, http.StatusBadRequest, s.tr.T("error.bad_request"))
		return
	}

	out, err := s.registration.Register(r.Context(), sub)
	if err != nil {
		status, msg := s.registrationError(err)
		if status >= 500 {
			l := logging.With(r.Context(), s.log)
			l.Error().Err(err).Int("status", status).Msg("registration failed")
		}
		writeError(w, status, msg)
		return
	}
	if !out.Success {
		status := http.StatusBadRequest
		if out.Validation != nil {
			v := s.localize(*out.Validation)
			out.Validation = &v
			out.Message = v.Message
			switch v.Error {
			case model.ReasonAlreadyRedeemed, model.ReasonDuplicateParticipation:
				status = http.StatusConflict
			}
		}
		writeJSON(w, status, out)
		return
	}
	out.Message = s.tr.T("registration.success")
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleNewsletter(w http.ResponseWriter, r *http.Request) {
	var in model.NewsletterSignup
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, s.tr.T("error.bad_request"))
		return
	}

	out, err := s.newsletter.Signup(r.Context(), in)
	if err != nil {
		status, msg := http.StatusInternalServerError, s.tr.T("error.internal")
		switch {
		case errors.Is(err, domain.ErrInvalidEmailFormat):
			status, msg = http.StatusBadRequest, s.tr.T("error.invalid_email")
		case errors.Is(err, domain.ErrSubscription):
			status, msg = http.StatusBadGateway, s.tr.T("newsletter.failed")
		}
		if status >= 500 {
			l := logging.With(r.Context(), s.log)
			l.Error().Err(err).Int("status", status).Msg("newsletter signup failed")
		}
		writeError(w, status, msg)
		return
	}
	out.Message = s.tr.T("newsletter.success")
	writeJSON(w, http.StatusOK, out)
}

// registrationError maps use case errors onto a status and a message the
// landing page can show as is.
func (s *Server) registrationError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidEmailFormat):
		return http.StatusBadRequest, s.tr.T("error.invalid_email")
	case errors.Is(err, domain.ErrInvalidFormat):
		return http.StatusBadRequest, s.tr.T("error.invalid_code")
	case errors.Is(err, domain.ErrConsentRequired):
		return http.StatusBadRequest, s.tr.T("error.consent_required")
	case errors.Is(err, domain.ErrMissingFields):
		if _, fields, ok := strings.Cut(err.Error(), ": "); ok {
			return http.StatusBadRequest, s.tr.T("error.missing_fields_named", fields)
		}
		return http.StatusBadRequest, s.tr.T("error.missing_fields")
	case errors.Is(err, domain.ErrLockBusy):
		return http.StatusServiceUnavailable, s.tr.T("error.lock_busy")
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusInternalServerError, s.tr.T("error.persistence")
	default:
		return http.StatusInternalServerError, s.tr.T("error.internal")
	}
}

// localize swaps the failure message for the translated one, details
// included.
func (s *Server) localize(res model.ValidationResult) model.ValidationResult {
	if key := "reason." + string(res.Error); !res.Valid && s.tr.Has(key) {
		res.Message = s.tr.T(key)
	}
	if res.Details != nil {
		d := s.localize(*res.Details)
		res.Details = &d
	}
	return res
}

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.auth.Enabled() {
		writeError(w, http.StatusForbidden, "admin access disabled")
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if !s.auth.CheckPassword(req.Password) {
		l := logging.With(r.Context(), s.log)
		l.Warn().Msg("admin login rejected")
		writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized.Error())
		return
	}
	tok, exp, err := s.auth.Mint(w)
	if err != nil {
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Msg("mint admin session")
		writeError(w, http.StatusInternalServerError, s.tr.T("error.internal"))
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: tok, ExpiresAt: exp.UTC()})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.auth.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	campaign := strings.TrimSpace(r.URL.Query().Get("campaign"))
	writeJSON(w, http.StatusOK, s.redemptions.Statistics(r.Context(), campaign))
}

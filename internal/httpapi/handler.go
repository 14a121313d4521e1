package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"healthqueue/internal/events"
	"healthqueue/internal/logging"
	"healthqueue/internal/session"
	"healthqueue/internal/store"
	"healthqueue/internal/throttle"
)

const defaultWaitMinutes = 20

type Handler struct {
	store       store.Store
	sessions    *session.Manager
	throttle    throttle.Throttle
	events      events.Publisher
	log         logrus.FieldLogger
	waitMinutes func(department string) int
	limiter     *RateLimiter
	pages       *pageServer
	trustProxy  bool
	now         func() time.Time
}

type Options struct {
	Sessions    *session.Manager
	Throttle    throttle.Throttle
	Events      events.Publisher
	Logger      logrus.FieldLogger
	WaitMinutes func(department string) int
	RateLimit   RateLimitConfig
	StaticDir   string
	// TrustProxy honours X-Forwarded-For and X-Real-IP. Enable it only
	// behind a proxy that overwrites those headers.
	TrustProxy bool
}

type errorResponse struct {
	RequestID string        `json:"request_id,omitempty"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(st store.Store, options Options) *Handler {
	h := &Handler{
		store:       st,
		sessions:    options.Sessions,
		throttle:    options.Throttle,
		events:      options.Events,
		log:         options.Logger,
		waitMinutes: options.WaitMinutes,
		limiter:     NewRateLimiter(options.RateLimit),
		pages:       newPageServer(options.StaticDir),
		trustProxy:  options.TrustProxy,
		now:         time.Now,
	}
	if h.throttle == nil {
		h.throttle = throttle.NewMemory(throttle.Options{})
	}
	if h.events == nil {
		h.events = events.Noop{}
	}
	if h.log == nil {
		h.log = logging.Discard()
	}
	if h.waitMinutes == nil {
		h.waitMinutes = func(string) int { return defaultWaitMinutes }
	}
	return h
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if h.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(h.limiter.Middleware)

		r.Post("/register/{role}", h.handleRegister)
		r.Post("/login", h.handleLogin)
		r.Get("/logout", h.handleLogout)
		r.Post("/logout", h.handleLogout)
		r.Get("/me", h.handleMe)

		r.Get("/queue", h.handleListQueue)
		r.Post("/queue", h.handleCheckIn)
		r.Get("/doctors", h.handleListDoctors)

		r.Group(func(r chi.Router) {
			r.Use(h.requireDoctor)
			r.Put("/queue", h.handleAdvance)
			r.Get("/patients", h.handleListPatients)
			r.Get("/stats", h.handleStats)
		})
	})

	r.NotFound(h.handlePage)
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.log.WithError(err).Warn("health check failed")
		writeError(w, r, http.StatusServiceUnavailable, "unavailable", "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := mapError(err)
	if status == http.StatusInternalServerError {
		h.log.WithError(err).WithField("request_id", middleware.GetReqID(r.Context())).Error("request failed")
	}
	writeError(w, r, status, code, message)
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrMissingFields):
		return http.StatusBadRequest, "invalid_request", "required fields are missing"
	case errors.Is(err, store.ErrInvalidRole):
		return http.StatusBadRequest, "invalid_role", "role must be patient or doctor"
	case errors.Is(err, store.ErrInvalidStatus):
		return http.StatusBadRequest, "invalid_status", "unknown status"
	case errors.Is(err, store.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid credentials"
	case errors.Is(err, session.ErrNoSession), errors.Is(err, session.ErrInvalidSession):
		return http.StatusUnauthorized, "unauthorized", "not authenticated"
	case errors.Is(err, store.ErrPrincipalNotFound):
		return http.StatusNotFound, "user_not_found", "user not found"
	case errors.Is(err, store.ErrEntryNotFound):
		return http.StatusNotFound, "entry_not_found", "queue entry not found"
	case errors.Is(err, store.ErrPhoneTaken):
		return http.StatusConflict, "phone_taken", "phone number already registered"
	case errors.Is(err, store.ErrPhoneIsDoctor):
		return http.StatusConflict, "phone_is_doctor", "phone number belongs to a doctor"
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition", "status can only move forward"
	case errors.Is(err, throttle.ErrLocked):
		return http.StatusTooManyRequests, "rate_limited", "too many failed attempts, try again later"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: middleware.GetReqID(r.Context()),
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

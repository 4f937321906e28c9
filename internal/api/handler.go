// Package api provides HTTP handlers for the intake API.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"

	"github.com/tenxafrica/intake/internal/domain"
	"github.com/tenxafrica/intake/internal/engine"
	"github.com/tenxafrica/intake/internal/identity"
	"github.com/tenxafrica/intake/internal/store"
	"github.com/tenxafrica/intake/internal/validate"
)

const (
	defaultMaxUploadBytes = 32 << 20
	maxJSONBodyBytes      = 1 << 20
)

// errSessionBusy is returned when another request holds the session.
var errSessionBusy = errors.New("session_busy")

// StreamCloser ends live streams of a session.
type StreamCloser interface {
	CloseSession(sessionID string)
}

// Options configures a Handler.
type Options struct {
	// Limiter throttles advance and submit; nil disables rate limiting.
	Limiter *RateLimiter
	// Streams is told when a session restarts or is discarded.
	Streams StreamCloser
	// MaxUploadBytes caps a multipart file pick.
	MaxUploadBytes int64
	// DefaultCountry is advertised by the countries endpoint.
	DefaultCountry string
}

// Handler serves the form and session endpoints.
type Handler struct {
	engines map[string]*engine.Engine
	order   []string
	repo    store.Repository
	opts    Options

	// busy holds the ids of sessions with a mutation in progress.
	mu   sync.Mutex
	busy map[string]struct{}
}

// NewHandler creates a Handler for the given engines, one per form.
func NewHandler(repo store.Repository, engines []*engine.Engine, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.DefaultCountry == "" {
		opts.DefaultCountry = validate.DefaultCountry
	}
	h := &Handler{
		engines: make(map[string]*engine.Engine, len(engines)),
		repo:    repo,
		opts:    opts,
		busy:    make(map[string]struct{}),
	}
	for _, e := range engines {
		slug := e.Definition().Slug
		h.engines[slug] = e
		h.order = append(h.order, slug)
	}
	sort.Strings(h.order)
	return h
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := sonic.ConfigDefault.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// errorBody is the shape of every error response.
type errorBody struct {
	Error   string                 `json:"error"`
	Fields  []*validate.FieldError `json:"fields,omitempty"`
	Session *engine.View           `json:"session,omitempty"`
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, errorBody{Error: message})
}

// decodeJSON reads a small JSON request body into v. An empty body leaves v
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// RegisterRoutes registers the form and session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	limited := func(next http.Handler) http.Handler { return next }
	if h.opts.Limiter != nil {
		limited = h.opts.Limiter.Middleware
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/forms", h.ListForms)
		r.Get("/forms/{slug}", h.GetForm)
		r.Post("/forms/{slug}/sessions", h.CreateSession)
		r.Get("/countries", h.Countries)

		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.DeleteSession)
			r.Put("/values/{field}", h.SetValue)
			r.Patch("/values", h.PatchValues)
			r.Post("/files/{field}", h.SetFiles)
			r.Post("/toggle/{field}", h.Toggle)
			r.Post("/select/{field}", h.Select)
			r.Post("/phone/blur", h.BlurPhone)
			r.Post("/country", h.Country)
			r.Post("/back", h.Back)
			r.Post("/duplicate/ack", h.AcknowledgeDuplicate)
			r.Post("/challenge", h.Challenge)
			r.Post("/restart", h.Restart)
			r.Post("/reveal/{stage}", h.RevealComplete)
			r.Post("/modal", h.Modal)
			r.With(limited).Post("/advance", h.Advance)
			r.With(limited).Post("/submit", h.Submit)
		})
	})
}

// lock marks a session busy without blocking. Only held locks are tracked,
// so the table never outgrows the requests in flight.
func (h *Handler) lock(id string) (unlock func(), ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, held := h.busy[id]; held {
		return nil, false
	}
	h.busy[id] = struct{}{}
	return func() {
		h.mu.Lock()
		delete(h.busy, id)
		h.mu.Unlock()
	}, true
}

// load fetches a session owned by visitorID together with its engine.
// Sessions of other visitors are reported as missing.
func (h *Handler) load(ctx context.Context, id, visitorID string) (*engine.Engine, *domain.Session, error) {
	s, err := h.repo.GetSession(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if s.VisitorID != visitorID {
		return nil, nil, store.ErrNotFound
	}
	eng, ok := h.engines[s.FormSlug]
	if !ok {
		return nil, nil, fmt.Errorf("form %q: %w", s.FormSlug, store.ErrNotFound)
	}
	return eng, s, nil
}

// mutation changes a loaded session.
type mutation func(ctx context.Context, eng *engine.Engine, s *domain.Session) error

// mutate runs op under the session lock and persists the result. A flagged
// duplicate lead is a rejection that still changes the session, so it is
// saved as well.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, op mutation) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	unlock, ok := h.lock(id)
	if !ok {
		slog.Warn("Session mutation already in progress", "session_id", id)
		h.fail(w, nil, nil, errSessionBusy)
		return
	}
	defer unlock()

	eng, s, err := h.load(ctx, id, identity.VisitorIDFromContext(ctx))
	if err != nil {
		h.fail(w, nil, nil, err)
		return
	}

	opErr := op(ctx, eng, s)
	if opErr == nil || errors.Is(opErr, engine.ErrDuplicateLead) {
		if err := h.repo.SaveSession(ctx, s); err != nil {
			slog.Error("Failed to save session", "error", err, "session_id", id)
			Error(w, http.StatusInternalServerError, "save_failed")
			return
		}
	}
	if opErr != nil {
		h.fail(w, eng, s, opErr)
		return
	}
	JSON(w, http.StatusOK, eng.View(s))
}

// fail maps err to a status and writes it with the session view when one is
// loaded.
func (h *Handler) fail(w http.ResponseWriter, eng *engine.Engine, s *domain.Session, err error) {
	status, code := classify(err)
	body := errorBody{Error: code}

	var se *engine.StageError
	if errors.As(err, &se) {
		body.Fields = se.Fields
	}
	if eng != nil && s != nil {
		v := eng.View(s)
		body.Session = &v
	}
	if status == http.StatusInternalServerError {
		slog.Error("Session request failed", "error", err)
	}
	JSON(w, status, body)
}

var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{errSessionBusy, http.StatusConflict, "session_busy"},
	{engine.ErrStageInvalid, http.StatusUnprocessableEntity, "stage_invalid"},
	{engine.ErrSessionClosed, http.StatusConflict, "session_closed"},
	{engine.ErrSessionComplete, http.StatusConflict, "session_complete"},
	{engine.ErrNotComplete, http.StatusConflict, "stages_remaining"},
	{engine.ErrDuplicateLead, http.StatusConflict, "duplicate_lead"},
	{engine.ErrAcknowledgeNotAllowed, http.StatusConflict, "acknowledge_not_allowed"},
	{engine.ErrNoDuplicate, http.StatusConflict, "no_duplicate"},
	{engine.ErrBackDisabled, http.StatusConflict, "back_disabled"},
	{engine.ErrFieldNotActive, http.StatusConflict, "field_not_active"},
	{engine.ErrRevealPending, http.StatusConflict, "reveal_pending"},
	{engine.ErrChallengeRequired, http.StatusConflict, "challenge_required"},
	{engine.ErrSubmitInFlight, http.StatusConflict, "submit_in_flight"},
	{engine.ErrNotRetryable, http.StatusConflict, "not_retryable"},
	{engine.ErrUnknownField, http.StatusNotFound, "unknown_field"},
	{engine.ErrUnknownStage, http.StatusNotFound, "unknown_stage"},
	{store.ErrNotFound, http.StatusNotFound, "session_not_found"},
	{engine.ErrWrongKind, http.StatusBadRequest, "wrong_field_kind"},
	{engine.ErrNotToggleable, http.StatusBadRequest, "not_toggleable"},
	{engine.ErrUnknownCountry, http.StatusBadRequest, "unknown_country"},
	{errBadRequest, http.StatusBadRequest, "bad_request"},
}

// errBadRequest marks malformed request input.
var errBadRequest = errors.New("bad request")

func classify(err error) (int, string) {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.status, c.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

func badRequest(err error) error {
	return fmt.Errorf("%w: %w", errBadRequest, err)
}

package submit

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/tenxafrica/intake/internal/attachment"
	"github.com/tenxafrica/intake/internal/domain"
)

const (
	// DefaultSimulateDelay is how long a simulated submission takes.
	DefaultSimulateDelay = 1500 * time.Millisecond
	maxResponseBytes     = 64 << 10
)

// ChallengeVerifier checks a widget token with the verification provider.
type ChallengeVerifier interface {
	Verify(ctx context.Context, token string) (bool, error)
}

// Pipeline posts completed sessions to their form's webhook.
type Pipeline struct {
	client        *http.Client
	encoder       *attachment.Encoder
	verifier      ChallengeVerifier
	simulateDelay time.Duration
	now           func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithVerifier verifies challenge tokens server-side before posting.
func WithVerifier(v ChallengeVerifier) Option {
	return func(p *Pipeline) { p.verifier = v }
}

// WithSimulateDelay sets the latency of simulated submissions.
func WithSimulateDelay(d time.Duration) Option {
	return func(p *Pipeline) { p.simulateDelay = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline creates a pipeline. A nil client gets a 30s timeout.
func NewPipeline(client *http.Client, encoder *attachment.Encoder, opts ...Option) *Pipeline {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if encoder == nil {
		encoder = attachment.NewEncoder(0)
	}
	p := &Pipeline{
		client:        client,
		encoder:       encoder,
		simulateDelay: DefaultSimulateDelay,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit posts the session and returns the interpreted outcome. It never
// returns a Go error: every failure becomes an error outcome.
func (p *Pipeline) Submit(ctx context.Context, def *domain.FormDefinition, s *domain.Session) domain.Result {
	webhook := strings.TrimSpace(def.WebhookURL)
	if webhook == "" {
		if def.Simulate {
			return p.simulate(ctx, def, s)
		}
		slog.Error("Form has no webhook configured", "form", def.Slug, "session_id", s.ID)
		return Misconfigured()
	}

	if p.verifier != nil && s.ChallengeToken != "" {
		valid, err := p.verifier.Verify(ctx, s.ChallengeToken)
		switch {
		case err != nil:
			slog.Warn("Challenge verification unavailable, deferring to webhook", "error", err, "form", def.Slug)
		case !valid:
			slog.Info("Challenge token rejected", "form", def.Slug, "session_id", s.ID)
			return domain.Result{
				Outcome:   domain.OutcomeError,
				Kind:      domain.ErrorInvalidChallenge,
				Message:   DisplayMessage(def.ErrorMessages, domain.ErrorInvalidChallenge, "Invalid Captcha"),
				Retryable: true,
			}
		}
	}

	payload := BuildPayload(def, s, p.now())
	attachments, err := p.encoder.EncodeForm(ctx, def, s)
	if err != nil {
		slog.Error("Failed to encode attachments", "error", err, "form", def.Slug, "session_id", s.ID)
		return Failure(def)
	}
	payload.Attachments = attachments

	body, err := sonic.Marshal(payload)
	if err != nil {
		slog.Error("Failed to encode submission", "error", err, "form", def.Slug)
		return Failure(def)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook, bytes.NewReader(body))
	if err != nil {
		slog.Error("Failed to build submission request", "error", err, "form", def.Slug)
		return Misconfigured()
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Error("Submission failed", "error", err, "form", def.Slug, "session_id", s.ID)
		return Failure(def)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		slog.Warn("Failed to read webhook response", "error", err, "form", def.Slug)
	}

	result := Classify(def, resp.StatusCode, respBody)
	slog.Info("Submission processed",
		"form", def.Slug,
		"session_id", s.ID,
		"status", resp.StatusCode,
		"outcome", result.Outcome,
		"kind", result.Kind,
		"attachments", len(attachments))
	return result
}

func (p *Pipeline) simulate(ctx context.Context, def *domain.FormDefinition, s *domain.Session) domain.Result {
	slog.Warn("No webhook configured, simulating submission", "form", def.Slug, "session_id", s.ID)
	if p.simulateDelay > 0 {
		t := time.NewTimer(p.simulateDelay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return Failure(def)
		case <-t.C:
		}
	}
	success := def.Success
	return domain.Result{Outcome: domain.OutcomeSuccess, Success: &success}
}

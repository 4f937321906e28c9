// Package guard checks whether a lead is already known before the contact
// stage is left.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultMemoTTL is how long a check result is reused for the same email.
const DefaultMemoTTL = 10 * time.Minute

// Result is the remote answer to a duplicate check.
type Result struct {
	Exists bool   `json:"exists"`
	Name   string `json:"name,omitempty"`
}

// Checker asks a remote system whether an email belongs to a known lead.
type Checker interface {
	CheckDuplicate(ctx context.Context, email string) (Result, error)
}

// Verdict is what the engine acts on.
type Verdict struct {
	Exists  bool
	Name    string
	Message string
	// Degraded is set when the check failed and the guard let the lead through.
	Degraded bool
}

type memoEntry struct {
	result Result
	at     time.Time
}

// Guard deduplicates and memoises checks and fails open on error.
type Guard struct {
	checker Checker
	contact string
	ttl     time.Duration
	now     func() time.Time

	group singleflight.Group
	mu    sync.Mutex
	memo  map[string]memoEntry
}

// New creates a guard. contact is the direct channel offered in the message.
func New(checker Checker, contact string, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultMemoTTL
	}
	return &Guard{
		checker: checker,
		contact: contact,
		ttl:     ttl,
		now:     time.Now,
		memo:    make(map[string]memoEntry),
	}
}

// Normalize is the key emails are compared under.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Check returns the verdict for email. Concurrent checks of the same email
// share one remote call. A failed check is logged and treated as not found.
func (g *Guard) Check(ctx context.Context, email string) Verdict {
	key := Normalize(email)
	if key == "" {
		return Verdict{}
	}
	if r, ok := g.cached(key); ok {
		return g.verdict(r)
	}

	v, err, shared := g.group.Do(key, func() (interface{}, error) {
		r, err := g.checker.CheckDuplicate(ctx, key)
		if err != nil {
			return nil, err
		}
		g.store(key, r)
		return r, nil
	})
	if err != nil {
		slog.Warn("Duplicate check failed, continuing without it", "error", err, "shared", shared)
		return Verdict{Degraded: true}
	}
	return g.verdict(v.(Result))
}

// Forget drops the memoised result for email.
func (g *Guard) Forget(email string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.memo, Normalize(email))
}

func (g *Guard) cached(key string) (Result, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.memo[key]
	if !ok {
		return Result{}, false
	}
	if g.now().Sub(e.at) > g.ttl {
		delete(g.memo, key)
		return Result{}, false
	}
	return e.result, true
}

func (g *Guard) store(key string, r Result) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.memo[key] = memoEntry{result: r, at: g.now()}
}

func (g *Guard) verdict(r Result) Verdict {
	if !r.Exists {
		return Verdict{}
	}
	return Verdict{Exists: true, Name: r.Name, Message: Message(r.Name, g.contact)}
}

// Message is the explanation shown for a known lead.
func Message(name, contact string) string {
	who := strings.TrimSpace(name)
	if who == "" {
		who = "this contact"
	}
	if contact == "" {
		return fmt.Sprintf("We already have %s on file.", who)
	}
	return fmt.Sprintf("We already have %s on file. Reach us directly at %s to continue.", who, contact)
}

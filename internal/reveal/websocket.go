package reveal

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/tenxafrica/intake/internal/identity"
)

// Prompt is the prompt of a session's active stage.
type Prompt struct {
	StageID  string
	Text     string
	Revealed bool
	Complete bool
}

// Source gives the stream access to form sessions.
type Source interface {
	// CurrentPrompt returns the prompt of the session's active stage.
	CurrentPrompt(ctx context.Context, sessionID, visitorID string) (Prompt, error)
	// MarkRevealed records that the stage prompt has fully shown.
	MarkRevealed(ctx context.Context, sessionID, visitorID, stageID string) error
}

// Handler streams prompt reveals over a websocket.
//
// Server messages: {"type":"chunk","stage","text"}, {"type":"done","stage"},
// {"type":"complete"}, {"type":"error","error"} and {"type":"pong"}.
// Client messages: {"type":"reveal"} after an advance, {"type":"skip"} to show
// the rest of the prompt at once, and {"type":"ping"}.
type Handler struct {
	source         Source
	hub            *Hub
	allowedOrigins []string
	isDev          bool
	newChunker     func() *Chunker
}

// NewHandler creates a reveal stream handler.
func NewHandler(source Source, hub *Hub, allowedOrigins []string, isDev bool) *Handler {
	return &Handler{
		source:         source,
		hub:            hub,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
		newChunker:     func() *Chunker { return NewChunker(rand.Uint64()) },
	}
}

type message struct {
	Type  string `json:"type"`
	Stage string `json:"stage,omitempty"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// ServeHTTP implements http.Handler for the websocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	visitorID := identity.VisitorIDFromContext(r.Context())

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "session_id", sessionID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()

	h.hub.Register(sessionID, ws)
	defer h.hub.Unregister(sessionID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cmds := make(chan string, 4)
	go func() {
		defer cancel()
		h.readLoop(ctx, ws, cmds, sessionID)
	}()

	if err := h.reveal(ctx, ws, sessionID, visitorID, cmds); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-cmds:
			if cmd != "reveal" {
				continue
			}
			if err := h.reveal(ctx, ws, sessionID, visitorID, cmds); err != nil {
				return
			}
		}
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.allowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", strings.Join(h.allowedOrigins, ","))
	return false
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, cmds chan<- string, sessionID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("Reveal stream closed by client", "session_id", sessionID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "session_id", sessionID)
			}
			return
		}

		var msg message
		if err := sonic.Unmarshal(data, &msg); err != nil {
			slog.Debug("Ignoring malformed reveal message", "session_id", sessionID)
			continue
		}
		switch msg.Type {
		case "ping":
			if err := writeJSON(ctx, ws, message{Type: "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		case "reveal", "skip":
			select {
			case cmds <- msg.Type:
			default:
			}
		}
	}
}

// reveal streams the active stage's prompt and records its completion. A
// prompt that already showed is sent as a single chunk.
func (h *Handler) reveal(ctx context.Context, ws *websocket.Conn, sessionID, visitorID string, cmds <-chan string) error {
	p, err := h.source.CurrentPrompt(ctx, sessionID, visitorID)
	if err != nil {
		slog.Warn("Reveal prompt unavailable", "error", err, "session_id", sessionID)
		_ = writeJSON(ctx, ws, message{Type: "error", Error: err.Error()})
		return err
	}
	if p.Complete {
		return writeJSON(ctx, ws, message{Type: "complete"})
	}

	frames := []Frame{{Text: p.Text}}
	if !p.Revealed {
		frames = h.newChunker().Split(p.Text)
	}

	for i, f := range frames {
		skip, err := pause(ctx, f.Delay, cmds)
		if err != nil {
			return err
		}
		text := f.Text
		if skip {
			text = joinFrames(frames[i:])
		}
		if err := writeJSON(ctx, ws, message{Type: "chunk", Stage: p.StageID, Text: text}); err != nil {
			return err
		}
		if skip {
			break
		}
	}

	if err := writeJSON(ctx, ws, message{Type: "done", Stage: p.StageID}); err != nil {
		return err
	}
	if p.Revealed {
		return nil
	}
	if err := h.source.MarkRevealed(ctx, sessionID, visitorID, p.StageID); err != nil {
		slog.Warn("Failed to record prompt reveal", "error", err, "session_id", sessionID, "stage", p.StageID)
	}
	return nil
}

// pause waits d, returning early with skip=true when the client asks to skip.
// Other commands arriving mid-reveal are dropped.
func pause(ctx context.Context, d time.Duration, cmds <-chan string) (skip bool, err error) {
	if d <= 0 {
		return false, nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case cmd := <-cmds:
			if cmd == "skip" {
				return true, nil
			}
		case <-t.C:
			return false, nil
		}
	}
}

func joinFrames(frames []Frame) string {
	var b strings.Builder
	for _, f := range frames {
		b.WriteString(f.Text)
	}
	return b.String()
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v message) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}

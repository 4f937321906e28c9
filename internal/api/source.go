package api

import (
	"context"
	"time"

	"github.com/tenxafrica/intake/internal/reveal"
)

const (
	revealLockAttempts = 20
	revealLockWait     = 25 * time.Millisecond
)

var _ reveal.Source = (*Handler)(nil)

// CurrentPrompt returns the prompt of the session's active stage.
func (h *Handler) CurrentPrompt(ctx context.Context, sessionID, visitorID string) (reveal.Prompt, error) {
	eng, s, err := h.load(ctx, sessionID, visitorID)
	if err != nil {
		return reveal.Prompt{}, err
	}
	stage := eng.Definition().Stage(s.CurrentStage)
	if stage == nil || s.Outcome.IsTerminal() {
		return reveal.Prompt{Complete: true}, nil
	}
	return reveal.Prompt{
		StageID:  stage.ID,
		Text:     stage.Prompt,
		Revealed: s.Revealed[stage.ID],
	}, nil
}

// MarkRevealed records a finished reveal. A reveal ends while the visitor may
// be typing, so a busy session is retried briefly instead of failing.
func (h *Handler) MarkRevealed(ctx context.Context, sessionID, visitorID, stageID string) error {
	unlock, err := h.waitLock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	eng, s, err := h.load(ctx, sessionID, visitorID)
	if err != nil {
		return err
	}
	if err := eng.RevealComplete(s, stageID); err != nil {
		return err
	}
	return h.repo.SaveSession(ctx, s)
}

func (h *Handler) waitLock(ctx context.Context, id string) (func(), error) {
	for range revealLockAttempts {
		if unlock, ok := h.lock(id); ok {
			return unlock, nil
		}
		t := time.NewTimer(revealLockWait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return nil, errSessionBusy
}

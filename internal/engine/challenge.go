package engine

import (
	"context"
	"strings"

	"github.com/tenxafrica/intake/internal/domain"
)

// SetChallengeToken stores the token handed over by the verification widget.
// It is the only writer of the token.
func (e *Engine) SetChallengeToken(s *domain.Session, token string) error {
	if err := e.writable(s); err != nil {
		return err
	}
	s.ChallengeToken = strings.TrimSpace(token)
	s.Touch(e.opts.Now())
	return nil
}

// CanSubmit reports whether the submission control is enabled.
func (e *Engine) CanSubmit(s *domain.Session) bool {
	if s.Outcome == domain.OutcomeSuccess || s.Outcome == domain.OutcomeDuplicate || !retryable(s) {
		return false
	}
	if e.def.RequireChallenge && s.ChallengeToken == "" {
		return false
	}
	n := e.def.StageCount()
	switch {
	case s.CurrentStage >= n:
		return true
	case s.CurrentStage == n-1:
		return e.IsStageValid(s, s.CurrentStage)
	default:
		return false
	}
}

// Submit posts the session and applies the outcome. Submitting from the last
// stage first advances past it. Only one submission per session runs at a time.
func (e *Engine) Submit(ctx context.Context, s *domain.Session) (domain.Result, error) {
	if err := e.writable(s); err != nil {
		return domain.Result{}, err
	}
	if !retryable(s) {
		return domain.Result{}, ErrNotRetryable
	}
	if _, busy := e.inflight.LoadOrStore(s.ID, struct{}{}); busy {
		return domain.Result{}, ErrSubmitInFlight
	}
	defer e.inflight.Delete(s.ID)

	if s.CurrentStage < e.def.StageCount()-1 {
		return domain.Result{}, ErrNotComplete
	}
	if e.def.RequireChallenge && s.ChallengeToken == "" {
		return domain.Result{}, ErrChallengeRequired
	}
	if s.CurrentStage == e.def.StageCount()-1 {
		if err := e.Advance(ctx, s); err != nil {
			return domain.Result{}, err
		}
	}
	if !e.IsComplete(s) {
		return domain.Result{}, ErrNotComplete
	}

	res := e.submitter.Submit(ctx, e.def, s)
	e.apply(s, res)
	return res, nil
}

// retryable is false after an error outcome that resubmitting cannot fix;
// only a restart clears it.
func retryable(s *domain.Session) bool {
	return s.Outcome != domain.OutcomeError || s.Result == nil || s.Result.Retryable
}

func (e *Engine) apply(s *domain.Session, res domain.Result) {
	s.Outcome = res.Outcome
	s.Result = &res

	if res.Outcome == domain.OutcomeSuccess || res.Outcome == domain.OutcomeDuplicate {
		e.forgetEmails(s)
	}

	switch res.Outcome {
	case domain.OutcomeSuccess:
		s.ChallengeToken = ""
		if e.def.SendAnother {
			e.clearMessageFields(s)
		}
	case domain.OutcomeError:
		if res.Kind == domain.ErrorInvalidChallenge {
			s.ChallengeToken = ""
		}
	}
	s.Touch(e.opts.Now())
}

// forgetEmails drops memoised guard results for the submitted emails, which
// the lead store now knows.
func (e *Engine) forgetEmails(s *domain.Session) {
	if e.guard == nil {
		return
	}
	for _, f := range e.def.Fields() {
		if f.Kind == domain.KindEmail && s.Values[f.Name] != "" {
			e.guard.Forget(s.Values[f.Name])
		}
	}
	s.EmailChecked = ""
}

func (e *Engine) clearMessageFields(s *domain.Session) {
	for _, f := range e.def.Fields() {
		if !f.Kind.IsMessage() {
			continue
		}
		delete(s.Values, f.Name)
		delete(s.Files, f.Name)
		delete(s.FileNotes, f.Name)
	}
}

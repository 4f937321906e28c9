// Package engine runs the staged intake flow of one form definition.
//
// An Engine is stateless with respect to sessions: every operation takes the
// *domain.Session it mutates. Callers serialise operations per session.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tenxafrica/intake/internal/attachment"
	"github.com/tenxafrica/intake/internal/domain"
	"github.com/tenxafrica/intake/internal/guard"
	"github.com/tenxafrica/intake/internal/ui"
	"github.com/tenxafrica/intake/internal/validate"
)

// DuplicateGuard decides whether an email belongs to a known lead.
type DuplicateGuard interface {
	Check(ctx context.Context, email string) guard.Verdict
	// Forget drops what is remembered about email once it has been submitted.
	Forget(email string)
}

// Submitter posts a completed session and interprets the response.
type Submitter interface {
	Submit(ctx context.Context, def *domain.FormDefinition, s *domain.Session) domain.Result
}

// Options tunes engine behaviour that is not part of the form definition.
type Options struct {
	// AutoAdvanceDelay is waited before a choice selection advances the stage.
	AutoAdvanceDelay time.Duration
	// GateInputOnReveal rejects field edits until the stage prompt is revealed.
	GateInputOnReveal bool
	// DefaultCountry is the phone region of new sessions.
	DefaultCountry string
	// Now is the clock; time.Now when nil.
	Now func() time.Time
}

// Engine drives sessions of one form definition.
type Engine struct {
	def       *domain.FormDefinition
	guard     DuplicateGuard
	submitter Submitter
	opts      Options

	inflight sync.Map
}

// New builds an engine. guard may be nil when the form has no duplicate check.
func New(def *domain.FormDefinition, g DuplicateGuard, submitter Submitter, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DefaultCountry == "" {
		opts.DefaultCountry = validate.DefaultCountry
	}
	return &Engine{def: def, guard: g, submitter: submitter, opts: opts}
}

// Definition returns the form the engine runs.
func (e *Engine) Definition() *domain.FormDefinition {
	return e.def
}

// NewSession starts a session on the first stage.
func (e *Engine) NewSession(id, visitorID string) *domain.Session {
	return domain.NewSession(id, e.def.Slug, visitorID, e.opts.DefaultCountry, e.opts.Now())
}

func (e *Engine) writable(s *domain.Session) error {
	s.EnsureMaps()
	if s.Outcome == domain.OutcomeSuccess || s.Outcome == domain.OutcomeDuplicate {
		return ErrSessionClosed
	}
	return nil
}

// activeField resolves name to a field on the session's current stage.
func (e *Engine) activeField(s *domain.Session, name string) (*domain.FieldDefinition, *domain.StageDefinition, error) {
	field, idx := e.def.Field(name)
	if field == nil {
		return nil, nil, ErrUnknownField
	}
	if idx != s.CurrentStage {
		return nil, nil, ErrFieldNotActive
	}
	stage := e.def.Stage(idx)
	if e.opts.GateInputOnReveal && !s.Revealed[stage.ID] {
		return nil, nil, ErrRevealPending
	}
	return field, stage, nil
}

func (e *Engine) fieldContext(s *domain.Session, field *domain.FieldDefinition) validate.Context {
	return validate.Context{
		Country:    s.PhoneCountry,
		ToggledOff: s.ToggledOff[field.Name],
		Files:      s.Files[field.Name],
	}
}

// CheckField validates one field against the session.
func (e *Engine) CheckField(s *domain.Session, field *domain.FieldDefinition) *validate.FieldError {
	return validate.Check(field, s.Values[field.Name], e.fieldContext(s, field))
}

// StageErrors returns the field errors of stage i; nil means the stage is valid.
func (e *Engine) StageErrors(s *domain.Session, i int) []*validate.FieldError {
	stage := e.def.Stage(i)
	if stage == nil {
		return nil
	}
	var errs []*validate.FieldError
	for fi := range stage.Fields {
		if fe := e.CheckField(s, &stage.Fields[fi]); fe != nil {
			errs = append(errs, fe)
		}
	}
	if stage.IsChallenge() && e.def.RequireChallenge && strings.TrimSpace(s.ChallengeToken) == "" {
		errs = append(errs, &validate.FieldError{
			Field:   "challengeToken",
			Reason:  validate.ReasonRequired,
			Message: "Complete the security check to continue",
		})
	}
	return errs
}

// IsStageValid reports whether every field of stage i validates.
func (e *Engine) IsStageValid(s *domain.Session, i int) bool {
	return len(e.StageErrors(s, i)) == 0
}

// SetValue stores a text-like or choice value of a field on the active stage.
// Editing a flagged email clears the duplicate flag.
func (e *Engine) SetValue(s *domain.Session, name, value string) error {
	if err := e.writable(s); err != nil {
		return err
	}
	field, _, err := e.activeField(s, name)
	if err != nil {
		return err
	}
	if field.Kind == domain.KindFile {
		return ErrWrongKind
	}
	s.Values[name] = value
	if field.Kind == domain.KindEmail && s.Duplicate != nil &&
		guard.Normalize(s.Duplicate.Email) != guard.Normalize(value) {
		s.Duplicate = nil
	}
	s.Touch(e.opts.Now())
	return nil
}

// SetFiles replaces the picked files of a file field with those that satisfy
// its constraints and records the rejection note.
func (e *Engine) SetFiles(s *domain.Session, name string, files []domain.File) (attachment.Selection, error) {
	if err := e.writable(s); err != nil {
		return attachment.Selection{}, err
	}
	field, _, err := e.activeField(s, name)
	if err != nil {
		return attachment.Selection{}, err
	}
	if field.Kind != domain.KindFile {
		return attachment.Selection{}, ErrWrongKind
	}
	sel := attachment.Filter(field, files)
	if len(sel.Accepted) == 0 {
		delete(s.Files, name)
	} else {
		s.Files[name] = sel.Accepted
	}
	if sel.Note == "" {
		delete(s.FileNotes, name)
	} else {
		s.FileNotes[name] = sel.Note
	}
	s.Touch(e.opts.Now())
	return sel, nil
}

// Toggle opts a toggleable field out of (off=true) or back into the form.
// The value is kept so re-enabling restores it.
func (e *Engine) Toggle(s *domain.Session, name string, off bool) error {
	if err := e.writable(s); err != nil {
		return err
	}
	field, _, err := e.activeField(s, name)
	if err != nil {
		return err
	}
	if !field.Toggleable {
		return ErrNotToggleable
	}
	if off {
		s.ToggledOff[name] = true
	} else {
		delete(s.ToggledOff, name)
	}
	s.Touch(e.opts.Now())
	return nil
}

// BlurPhone rewrites a parseable phone value into international display form.
func (e *Engine) BlurPhone(s *domain.Session, name string) error {
	if err := e.writable(s); err != nil {
		return err
	}
	field, _, err := e.activeField(s, name)
	if err != nil {
		return err
	}
	if field.Kind != domain.KindPhone {
		return ErrWrongKind
	}
	value := strings.TrimSpace(s.Values[name])
	if value == "" {
		return nil
	}
	if display, _, ok := validate.CanonicalPhone(value, s.PhoneCountry); ok {
		s.Values[name] = display
		s.Touch(e.opts.Now())
	}
	return nil
}

// SetCountry selects the phone region and closes the picker.
func (e *Engine) SetCountry(s *domain.Session, code string) error {
	if err := e.writable(s); err != nil {
		return err
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if !validate.IsRegion(code) {
		return ErrUnknownCountry
	}
	s.CountryPicker.Select(func() { s.PhoneCountry = code })
	s.Touch(e.opts.Now())
	return nil
}

// CountryPicker opens, closes or dismisses the phone country picker.
func (e *Engine) CountryPicker(s *domain.Session, action ui.DisclosureAction) error {
	if err := e.writable(s); err != nil {
		return err
	}
	if !s.CountryPicker.Apply(action) {
		return fmt.Errorf("unknown picker action %q", action)
	}
	s.Touch(e.opts.Now())
	return nil
}

// SetModal opens, closes or escapes the modals around the form. Modal state
// survives terminal outcomes and restarts.
func (e *Engine) SetModal(s *domain.Session, action ui.ModalAction, name string) error {
	if !s.Modals.Apply(action, name) {
		return fmt.Errorf("modal action %q on %q", action, name)
	}
	s.Touch(e.opts.Now())
	return nil
}

// Advance moves past the active stage when it validates and its email, if
// any, is not flagged. An invalid stage leaves the session untouched.
func (e *Engine) Advance(ctx context.Context, s *domain.Session) error {
	if err := e.writable(s); err != nil {
		return err
	}
	stage := e.def.Stage(s.CurrentStage)
	if stage == nil {
		return ErrSessionComplete
	}
	if errs := e.StageErrors(s, s.CurrentStage); len(errs) > 0 {
		return &StageError{Stage: s.CurrentStage, Fields: errs}
	}
	if err := e.checkDuplicate(ctx, s, stage); err != nil {
		return err
	}
	s.MarkCompleted(s.CurrentStage)
	s.CurrentStage++
	s.Touch(e.opts.Now())
	return nil
}

func (e *Engine) checkDuplicate(ctx context.Context, s *domain.Session, stage *domain.StageDefinition) error {
	field := stage.EmailField()
	if field == nil || e.guard == nil || s.ToggledOff[field.Name] {
		return nil
	}
	email := strings.TrimSpace(s.Values[field.Name])
	key := guard.Normalize(email)
	if key == "" {
		return nil
	}

	if d := s.Duplicate; d != nil && guard.Normalize(d.Email) == key {
		if d.Acknowledged {
			return nil
		}
		return ErrDuplicateLead
	}
	if s.EmailChecked == key {
		return nil
	}

	// Only a clear result is remembered; a flagged email is asked again
	// once its flag has been cleared by an edit.
	v := e.guard.Check(ctx, email)
	if !v.Exists {
		s.EmailChecked = key
		return nil
	}
	s.Duplicate = &domain.DuplicateFlag{Email: email, Name: v.Name, Message: v.Message}
	s.Touch(e.opts.Now())
	return ErrDuplicateLead
}

// AcknowledgeDuplicate lets the user continue past a flagged email when the
// form allows it.
func (e *Engine) AcknowledgeDuplicate(s *domain.Session) error {
	if err := e.writable(s); err != nil {
		return err
	}
	if e.def.DuplicatePolicy != domain.DuplicateAcknowledge {
		return ErrAcknowledgeNotAllowed
	}
	if s.Duplicate == nil {
		return ErrNoDuplicate
	}
	s.Duplicate.Acknowledged = true
	s.Touch(e.opts.Now())
	return nil
}

// Select sets a choice value and, on auto-advancing stages, advances after
// the configured delay. It reports whether the stage advanced; a selection
// that leaves the stage invalid is not an error.
func (e *Engine) Select(ctx context.Context, s *domain.Session, name, value string) (bool, error) {
	field, _ := e.def.Field(name)
	if field == nil {
		return false, ErrUnknownField
	}
	if !field.Kind.IsChoice() {
		return false, ErrWrongKind
	}
	if err := e.SetValue(s, name, value); err != nil {
		return false, err
	}
	stage := e.def.Stage(s.CurrentStage)
	if !stage.AutoAdvances() {
		return false, nil
	}
	if fe := e.CheckField(s, field); fe != nil {
		return false, nil
	}

	if d := e.opts.AutoAdvanceDelay; d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-t.C:
		}
	}

	err := e.Advance(ctx, s)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrStageInvalid):
		return false, nil
	default:
		return false, err
	}
}

// Back returns to the previous stage. Completed history and values are kept.
func (e *Engine) Back(s *domain.Session) error {
	if err := e.writable(s); err != nil {
		return err
	}
	if !e.def.AllowBack || s.CurrentStage == 0 {
		return ErrBackDisabled
	}
	s.CurrentStage--
	s.Touch(e.opts.Now())
	return nil
}

// RevealComplete records that the prompt of stageID finished revealing.
func (e *Engine) RevealComplete(s *domain.Session, stageID string) error {
	s.EnsureMaps()
	for i := range e.def.Stages {
		if e.def.Stages[i].ID == stageID {
			s.Revealed[stageID] = true
			return nil
		}
	}
	return ErrUnknownStage
}

// Restart resets the session to the first stage. Tracking data and the phone
// region survive; identity values survive a successful submission when the
// form offers to send another message.
func (e *Engine) Restart(s *domain.Session) {
	keepValues := e.def.SendAnother && s.Outcome == domain.OutcomeSuccess
	fresh := domain.NewSession(s.ID, s.FormSlug, s.VisitorID, s.PhoneCountry, s.CreatedAt)
	fresh.Tracking = s.Tracking
	fresh.Modals = s.Modals
	if keepValues {
		fresh.Values = s.Values
	}
	for k, v := range s.Tracking {
		if f, _ := e.def.Field(k); f != nil && fresh.Values[k] == "" {
			fresh.Values[k] = v
		}
	}
	fresh.EnsureMaps()
	fresh.Touch(e.opts.Now())
	*s = *fresh
}

// Progress is the share of stages passed, in percent.
func (e *Engine) Progress(s *domain.Session) int {
	n := e.def.StageCount()
	if n == 0 {
		return 100
	}
	if s.CurrentStage >= n {
		return 100
	}
	return s.CurrentStage * 100 / n
}

// IsComplete reports whether every stage has been passed.
func (e *Engine) IsComplete(s *domain.Session) bool {
	return s.CurrentStage >= e.def.StageCount()
}

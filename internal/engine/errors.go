package engine

import (
	"errors"
	"strings"

	"github.com/tenxafrica/intake/internal/validate"
)

var (
	// ErrStageInvalid is returned when advance is attempted on an invalid stage.
	ErrStageInvalid = errors.New("stage is not valid")
	// ErrSessionComplete is returned when an action needs an active stage.
	ErrSessionComplete = errors.New("all stages are complete")
	// ErrNotComplete is returned when submission is attempted before the last stage.
	ErrNotComplete = errors.New("form has stages left")
	// ErrSessionClosed is returned when a session with a final outcome is mutated.
	ErrSessionClosed = errors.New("session already has a final outcome")
	// ErrDuplicateLead blocks advance while the email is flagged.
	ErrDuplicateLead = errors.New("lead already on file")
	// ErrAcknowledgeNotAllowed is returned when the form only clears the flag on edit.
	ErrAcknowledgeNotAllowed = errors.New("duplicate flag cannot be acknowledged")
	// ErrNoDuplicate is returned when acknowledging without a flag.
	ErrNoDuplicate = errors.New("no duplicate flag to acknowledge")
	// ErrUnknownField is returned for a field name the definition does not have.
	ErrUnknownField = errors.New("unknown field")
	// ErrFieldNotActive is returned when a field outside the active stage is edited.
	ErrFieldNotActive = errors.New("field is not on the active stage")
	// ErrWrongKind is returned when an action does not apply to the field's kind.
	ErrWrongKind = errors.New("action does not apply to this field kind")
	// ErrNotToggleable is returned when toggling a field that cannot be opted out.
	ErrNotToggleable = errors.New("field cannot be toggled")
	// ErrRevealPending is returned while input is gated on the prompt reveal.
	ErrRevealPending = errors.New("stage prompt is still revealing")
	// ErrUnknownStage is returned for a stage id the definition does not have.
	ErrUnknownStage = errors.New("unknown stage")
	// ErrBackDisabled is returned when back navigation is off or impossible.
	ErrBackDisabled = errors.New("back navigation is not available")
	// ErrUnknownCountry is returned for a region the numbering plan does not know.
	ErrUnknownCountry = errors.New("unknown country")
	// ErrChallengeRequired is returned when submitting without a verification token.
	ErrChallengeRequired = errors.New("security check not completed")
	// ErrNotRetryable is returned when resubmitting after a failure retrying cannot fix.
	ErrNotRetryable = errors.New("submission cannot be retried")
	// ErrSubmitInFlight is returned while a submission for the session is pending.
	ErrSubmitInFlight = errors.New("submission already in progress")
)

// StageError lists the field errors that keep a stage from advancing.
type StageError struct {
	Stage  int
	Fields []*validate.FieldError
}

func (e *StageError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Error())
	}
	return "stage is not valid: " + strings.Join(msgs, "; ")
}

// Is matches ErrStageInvalid.
func (e *StageError) Is(target error) bool {
	return target == ErrStageInvalid
}

package domain

import (
	"slices"
	"time"

	"github.com/tenxafrica/intake/internal/ui"
)

// Outcome is the submission state of a session.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeSuccess   Outcome = "success"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeError     Outcome = "error"
)

// IsTerminal reports whether the outcome ends the active form flow.
// An error is terminal for display but can be retried.
func (o Outcome) IsTerminal() bool {
	return o == OutcomeSuccess || o == OutcomeDuplicate || o == OutcomeError
}

// ErrorKind categorises a failed submission.
type ErrorKind string

const (
	ErrorInvalidChallenge ErrorKind = "invalid_challenge"
	ErrorDuplicate        ErrorKind = "duplicate"
	ErrorProcessing       ErrorKind = "processing"
	ErrorGeneric          ErrorKind = "generic"
	ErrorMisconfigured    ErrorKind = "misconfigured"
)

// Result is the interpreted response of one submission attempt.
type Result struct {
	Outcome   Outcome        `json:"outcome"`
	Kind      ErrorKind      `json:"kind,omitempty"`
	Message   string         `json:"message,omitempty"`
	Retryable bool           `json:"retryable"`
	Success   *SuccessConfig `json:"success,omitempty"`
}

// StageStatus is the explicit per-stage position relative to the session.
type StageStatus string

const (
	StageNotReached StageStatus = "not-reached"
	StageActive     StageStatus = "active"
	StageCompleted  StageStatus = "completed"
)

// File is one selected file of a file field.
type File struct {
	Name     string `json:"name"`
	MIMEType string `json:"type"`
	Size     int64  `json:"size"`
	Content  []byte `json:"content,omitempty"`
}

// DuplicateFlag records a positive duplicate-lead check.
type DuplicateFlag struct {
	Email        string `json:"email"`
	Name         string `json:"name,omitempty"`
	Message      string `json:"message"`
	Acknowledged bool   `json:"acknowledged"`
}

// Session is the runtime state of one form render.
type Session struct {
	ID             string             `json:"id"`
	FormSlug       string             `json:"form_slug"`
	VisitorID      string             `json:"visitor_id"`
	CurrentStage   int                `json:"current_stage"`
	Completed      []int              `json:"completed_stages"`
	Values         map[string]string  `json:"values"`
	Files          map[string][]File  `json:"files,omitempty"`
	FileNotes      map[string]string  `json:"file_notes,omitempty"`
	ToggledOff     map[string]bool    `json:"toggled_off,omitempty"`
	Tracking       map[string]string  `json:"tracking,omitempty"`
	PhoneCountry   string             `json:"phone_country"`
	CountryPicker  ui.Disclosure      `json:"country_picker"`
	Modals         ui.ModalController `json:"modals"`
	ChallengeToken string             `json:"challenge_token,omitempty"`
	Duplicate      *DuplicateFlag     `json:"duplicate,omitempty"`
	EmailChecked   string             `json:"email_checked,omitempty"`
	Revealed       map[string]bool    `json:"revealed,omitempty"`
	Outcome        Outcome            `json:"outcome"`
	Result         *Result            `json:"result,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// NewSession returns an empty session positioned on the first stage.
func NewSession(id, formSlug, visitorID, country string, now time.Time) *Session {
	return &Session{
		ID:           id,
		FormSlug:     formSlug,
		VisitorID:    visitorID,
		Values:       make(map[string]string),
		Files:        make(map[string][]File),
		FileNotes:    make(map[string]string),
		ToggledOff:   make(map[string]bool),
		Tracking:     make(map[string]string),
		Revealed:     make(map[string]bool),
		PhoneCountry: country,
		Outcome:      OutcomePending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// EnsureMaps initialises nil maps, e.g. after decoding a stored snapshot.
func (s *Session) EnsureMaps() {
	if s.Values == nil {
		s.Values = make(map[string]string)
	}
	if s.Files == nil {
		s.Files = make(map[string][]File)
	}
	if s.FileNotes == nil {
		s.FileNotes = make(map[string]string)
	}
	if s.ToggledOff == nil {
		s.ToggledOff = make(map[string]bool)
	}
	if s.Tracking == nil {
		s.Tracking = make(map[string]string)
	}
	if s.Revealed == nil {
		s.Revealed = make(map[string]bool)
	}
}

// HasCompleted reports whether stage i is in the completed history.
func (s *Session) HasCompleted(i int) bool {
	return slices.Contains(s.Completed, i)
}

// MarkCompleted appends i to the history unless it is already there.
func (s *Session) MarkCompleted(i int) {
	if !s.HasCompleted(i) {
		s.Completed = append(s.Completed, i)
	}
}

// StageStatus returns the position of stage i relative to the session.
func (s *Session) StageStatus(i int) StageStatus {
	switch {
	case i == s.CurrentStage:
		return StageActive
	case s.HasCompleted(i):
		return StageCompleted
	default:
		return StageNotReached
	}
}

// Touch records a mutation.
func (s *Session) Touch(now time.Time) {
	s.UpdatedAt = now
}

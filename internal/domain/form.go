// Package domain contains core domain types for the intake engine.
package domain

import "strings"

// FieldKind identifies how a field is rendered and validated.
type FieldKind string

const (
	KindText       FieldKind = "text"
	KindEmail      FieldKind = "email"
	KindPhone      FieldKind = "phone"
	KindURL        FieldKind = "url"
	KindMultiline  FieldKind = "textarea"
	KindSingle     FieldKind = "radio"
	KindEnumerated FieldKind = "select"
	KindFile       FieldKind = "file"
)

var kindAliases = map[string]FieldKind{
	"text":              KindText,
	"email":             KindEmail,
	"phone":             KindPhone,
	"tel":               KindPhone,
	"url":               KindURL,
	"textarea":          KindMultiline,
	"multiline-text":    KindMultiline,
	"radio":             KindSingle,
	"single-choice":     KindSingle,
	"select":            KindEnumerated,
	"enumerated-choice": KindEnumerated,
	"file":              KindFile,
}

// ParseFieldKind resolves a kind name, accepting the long-form aliases.
func ParseFieldKind(s string) (FieldKind, bool) {
	k, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]
	return k, ok
}

// IsChoice reports whether the kind selects from a fixed option list.
func (k FieldKind) IsChoice() bool {
	return k == KindSingle || k == KindEnumerated
}

// IsMessage reports whether values of this kind are transient message content
// that is cleared after a successful submission.
func (k FieldKind) IsMessage() bool {
	return k == KindMultiline || k == KindFile
}

// Option is one selectable value of a choice field.
type Option struct {
	Value string `yaml:"value" json:"value"`
	Label string `yaml:"label" json:"label"`
}

// FileConstraints limits what a file field accepts.
type FileConstraints struct {
	Accept    []string `yaml:"accept,omitempty" json:"accept,omitempty"`
	Multiple  bool     `yaml:"multiple,omitempty" json:"multiple,omitempty"`
	MaxCount  int      `yaml:"maxCount,omitempty" json:"maxCount,omitempty"`
	MaxSizeMB float64  `yaml:"maxSizeMB,omitempty" json:"maxSizeMB,omitempty"`
}

// Default file limits.
const (
	DefaultMaxSizeMB = 10
	DefaultAccept    = "application/pdf,.pdf"
)

// FieldDefinition is the declarative description of one input.
type FieldDefinition struct {
	Name        string           `yaml:"name" json:"name"`
	Kind        FieldKind        `yaml:"type" json:"type"`
	Label       string           `yaml:"label,omitempty" json:"label,omitempty"`
	Placeholder string           `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
	HelperText  string           `yaml:"helperText,omitempty" json:"helperText,omitempty"`
	Required    bool             `yaml:"required,omitempty" json:"required,omitempty"`
	MinLength   int              `yaml:"minLength,omitempty" json:"minLength,omitempty"`
	Options     []Option         `yaml:"options,omitempty" json:"options,omitempty"`
	File        *FileConstraints `yaml:"file,omitempty" json:"file,omitempty"`
	Toggleable  bool             `yaml:"toggleable,omitempty" json:"toggleable,omitempty"`
	ToggleLabel string           `yaml:"toggleLabel,omitempty" json:"toggleLabel,omitempty"`
}

// HasOption reports whether value is one of the field's options.
func (f *FieldDefinition) HasOption(value string) bool {
	for _, o := range f.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}

// MaxBytes returns the per-file size cap in bytes.
func (f *FieldDefinition) MaxBytes() int64 {
	mb := float64(DefaultMaxSizeMB)
	if f.File != nil && f.File.MaxSizeMB > 0 {
		mb = f.File.MaxSizeMB
	}
	return int64(mb * 1024 * 1024)
}

// MaxSizeMB returns the configured per-file cap in megabytes.
func (f *FieldDefinition) MaxSizeMB() float64 {
	if f.File != nil && f.File.MaxSizeMB > 0 {
		return f.File.MaxSizeMB
	}
	return DefaultMaxSizeMB
}

// MaxFiles returns how many files the field keeps; zero means no limit.
func (f *FieldDefinition) MaxFiles() int {
	if f.File == nil {
		return 1
	}
	if f.File.MaxCount > 0 {
		return f.File.MaxCount
	}
	if f.File.Multiple {
		return 0
	}
	return 1
}

// AcceptPatterns returns the accepted MIME/extension patterns.
func (f *FieldDefinition) AcceptPatterns() []string {
	if f.File != nil && len(f.File.Accept) > 0 {
		return f.File.Accept
	}
	return strings.Split(DefaultAccept, ",")
}

// AdvanceMode selects how a stage moves forward.
type AdvanceMode string

const (
	// AdvanceButton requires an explicit continue action.
	AdvanceButton AdvanceMode = "button"
	// AdvanceAuto fires on choice selection.
	AdvanceAuto AdvanceMode = "auto"
)

// AdvanceControl describes the continue affordance of a stage.
type AdvanceControl struct {
	Mode         AdvanceMode `yaml:"mode,omitempty" json:"mode,omitempty"`
	Label        string      `yaml:"label,omitempty" json:"label,omitempty"`
	ShowOnMobile bool        `yaml:"showOnMobile,omitempty" json:"showOnMobile,omitempty"`
}

// StageKindChallenge marks the bot-verification stage.
const StageKindChallenge = "challenge"

// StageDefinition is one step of the conversation.
type StageDefinition struct {
	ID           string            `yaml:"id" json:"id"`
	Kind         string            `yaml:"kind,omitempty" json:"kind,omitempty"`
	Prompt       string            `yaml:"prompt" json:"prompt"`
	HistoryLabel string            `yaml:"historyLabel" json:"historyLabel"`
	Fields       []FieldDefinition `yaml:"fields,omitempty" json:"fields,omitempty"`
	Advance      *AdvanceControl   `yaml:"advanceButton,omitempty" json:"advanceButton,omitempty"`
}

// IsChallenge reports whether this is the security stage guarded by the challenge widget.
func (s *StageDefinition) IsChallenge() bool {
	return s.Kind == StageKindChallenge || s.ID == "security"
}

// AutoAdvances reports whether a choice selection should advance the stage.
// Stages holding a radio field auto-advance unless told otherwise.
func (s *StageDefinition) AutoAdvances() bool {
	if s.Advance != nil && s.Advance.Mode != "" {
		return s.Advance.Mode == AdvanceAuto
	}
	for _, f := range s.Fields {
		if f.Kind == KindSingle {
			return true
		}
	}
	return false
}

// EmailField returns the first email field of the stage, if any.
func (s *StageDefinition) EmailField() *FieldDefinition {
	for i := range s.Fields {
		if s.Fields[i].Kind == KindEmail {
			return &s.Fields[i]
		}
	}
	return nil
}

// Field returns the named field of the stage.
func (s *StageDefinition) Field(name string) *FieldDefinition {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}

// ErrorMessages overrides the display string per submission error category.
type ErrorMessages struct {
	InvalidCaptcha  string `yaml:"invalidCaptcha,omitempty" json:"invalidCaptcha,omitempty"`
	ProcessingError string `yaml:"processingError,omitempty" json:"processingError,omitempty"`
	Duplicate       string `yaml:"duplicate,omitempty" json:"duplicate,omitempty"`
	Generic         string `yaml:"generic,omitempty" json:"generic,omitempty"`
}

// SuccessConfig is shown after a successful submission.
type SuccessConfig struct {
	Headline string `yaml:"headline" json:"headline"`
	Message  string `yaml:"message" json:"message"`
	CTALabel string `yaml:"ctaLabel,omitempty" json:"ctaLabel,omitempty"`
	CTAHref  string `yaml:"ctaHref,omitempty" json:"ctaHref,omitempty"`
}

// DuplicatePolicy decides how a flagged email can be cleared.
type DuplicatePolicy string

const (
	// DuplicateBlock clears the flag only when the email is edited.
	DuplicateBlock DuplicatePolicy = "block"
	// DuplicateAcknowledge also lets the user acknowledge and continue.
	DuplicateAcknowledge DuplicatePolicy = "acknowledge"
)

// DefaultTrackingParams are captured when a form names none.
var DefaultTrackingParams = []string{"token", "utm_source", "utm_medium", "utm_campaign"}

// FormDefinition is the static structure one engine is built from.
type FormDefinition struct {
	Slug              string            `yaml:"slug" json:"slug"`
	Title             string            `yaml:"title" json:"title"`
	Description       string            `yaml:"description,omitempty" json:"description,omitempty"`
	Source            string            `yaml:"source,omitempty" json:"-"`
	WebhookURL        string            `yaml:"webhookUrl" json:"-"`
	DuplicateCheckURL string            `yaml:"emailCheckWebhookUrl,omitempty" json:"-"`
	DuplicatePolicy   DuplicatePolicy   `yaml:"duplicatePolicy,omitempty" json:"duplicatePolicy,omitempty"`
	ContactEmail      string            `yaml:"contactEmail,omitempty" json:"contactEmail,omitempty"`
	TrackingParams    []string          `yaml:"trackingParams,omitempty" json:"-"`
	RequireChallenge  bool              `yaml:"requireTurnstile,omitempty" json:"requireChallenge"`
	AllowBack         bool              `yaml:"allowBack,omitempty" json:"allowBack"`
	SendAnother       bool              `yaml:"sendAnother,omitempty" json:"sendAnother"`
	Simulate          bool              `yaml:"simulate,omitempty" json:"-"`
	ErrorMessages     ErrorMessages     `yaml:"errorMessages,omitempty" json:"-"`
	Stages            []StageDefinition `yaml:"stages" json:"stages"`
	Success           SuccessConfig     `yaml:"success" json:"success"`
}

// StageCount returns the number of stages; it doubles as the "complete" index.
func (d *FormDefinition) StageCount() int {
	return len(d.Stages)
}

// Stage returns the stage at index i, or nil past the end.
func (d *FormDefinition) Stage(i int) *StageDefinition {
	if i < 0 || i >= len(d.Stages) {
		return nil
	}
	return &d.Stages[i]
}

// Field looks a field up across all stages and returns it with its stage index.
func (d *FormDefinition) Field(name string) (*FieldDefinition, int) {
	for si := range d.Stages {
		if f := d.Stages[si].Field(name); f != nil {
			return f, si
		}
	}
	return nil, -1
}

// Fields returns all fields in stage order.
func (d *FormDefinition) Fields() []*FieldDefinition {
	var out []*FieldDefinition
	for si := range d.Stages {
		for fi := range d.Stages[si].Fields {
			out = append(out, &d.Stages[si].Fields[fi])
		}
	}
	return out
}

// Tracking returns the query parameter names captured as tracking data.
func (d *FormDefinition) Tracking() []string {
	if len(d.TrackingParams) == 0 {
		return DefaultTrackingParams
	}
	return d.TrackingParams
}

// SourceTag returns the metadata source attached to submissions.
func (d *FormDefinition) SourceTag() string {
	if d.Source != "" {
		return d.Source
	}
	return "terminal-form-" + d.Slug
}

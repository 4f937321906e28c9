package engine

import (
	"github.com/tenxafrica/intake/internal/domain"
	"github.com/tenxafrica/intake/internal/validate"
)

// FileMeta describes a picked file without its content.
type FileMeta struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// FieldView is the render state of one field.
type FieldView struct {
	Name       string                 `json:"name"`
	Kind       domain.FieldKind       `json:"kind"`
	Value      string                 `json:"value,omitempty"`
	ToggledOff bool                   `json:"toggled_off,omitempty"`
	Files      []FileMeta             `json:"files,omitempty"`
	Note       string                 `json:"note,omitempty"`
	Error      *validate.FieldError   `json:"error,omitempty"`
	Definition domain.FieldDefinition `json:"definition"`
}

// StageView is the render state of one stage.
type StageView struct {
	ID           string             `json:"id"`
	Prompt       string             `json:"prompt"`
	HistoryLabel string             `json:"history_label"`
	Status       domain.StageStatus `json:"status"`
	Revealed     bool               `json:"revealed"`
	Fields       []FieldView        `json:"fields,omitempty"`
}

// View is everything a presentation layer needs to render a session.
type View struct {
	ID                string                `json:"id"`
	Form              string                `json:"form"`
	CurrentStage      int                   `json:"current_stage"`
	CompletedStages   []int                 `json:"completed_stages"`
	Complete          bool                  `json:"complete"`
	Progress          int                   `json:"progress"`
	CanAdvance        bool                  `json:"can_advance"`
	CanSubmit         bool                  `json:"can_submit"`
	CanGoBack         bool                  `json:"can_go_back"`
	ChallengeRequired bool                  `json:"challenge_required"`
	ChallengeSet      bool                  `json:"challenge_set"`
	PhoneCountry      string                `json:"phone_country"`
	CountryOpen       bool                  `json:"country_open"`
	Modals            []string              `json:"modals,omitempty"`
	ActiveModal       string                `json:"active_modal,omitempty"`
	BodyScrollLocked  bool                  `json:"body_scroll_locked"`
	Duplicate         *domain.DuplicateFlag `json:"duplicate,omitempty"`
	Outcome           domain.Outcome        `json:"outcome"`
	Result            *domain.Result        `json:"result,omitempty"`
	Stages            []StageView           `json:"stages"`
}

// View renders the session. Field errors are reported for reached stages only.
func (e *Engine) View(s *domain.Session) View {
	s.EnsureMaps()
	v := View{
		ID:                s.ID,
		Form:              s.FormSlug,
		CurrentStage:      s.CurrentStage,
		CompletedStages:   append([]int{}, s.Completed...),
		Complete:          e.IsComplete(s),
		Progress:          e.Progress(s),
		CanSubmit:         e.CanSubmit(s),
		CanGoBack:         e.def.AllowBack && s.CurrentStage > 0 && !s.Outcome.IsTerminal(),
		ChallengeRequired: e.def.RequireChallenge,
		ChallengeSet:      s.ChallengeToken != "",
		PhoneCountry:      s.PhoneCountry,
		CountryOpen:       s.CountryPicker.IsOpen(),
		Modals:            append([]string(nil), s.Modals.Stack...),
		ActiveModal:       s.Modals.Top(),
		BodyScrollLocked:  s.Modals.BodyScrollLocked(),
		Duplicate:         s.Duplicate,
		Outcome:           s.Outcome,
		Result:            s.Result,
	}
	if !v.Complete {
		v.CanAdvance = e.IsStageValid(s, s.CurrentStage) && (s.Duplicate == nil || s.Duplicate.Acknowledged)
	}

	for i := range e.def.Stages {
		stage := &e.def.Stages[i]
		status := s.StageStatus(i)
		sv := StageView{
			ID:           stage.ID,
			Prompt:       stage.Prompt,
			HistoryLabel: stage.HistoryLabel,
			Status:       status,
			Revealed:     s.Revealed[stage.ID],
		}
		for fi := range stage.Fields {
			field := &stage.Fields[fi]
			fv := FieldView{
				Name:       field.Name,
				Kind:       field.Kind,
				Value:      s.Values[field.Name],
				ToggledOff: s.ToggledOff[field.Name],
				Note:       s.FileNotes[field.Name],
				Definition: *field,
			}
			for _, f := range s.Files[field.Name] {
				fv.Files = append(fv.Files, FileMeta{Name: f.Name, Type: f.MIMEType, Size: f.Size})
			}
			if status != domain.StageNotReached {
				fv.Error = e.CheckField(s, field)
			}
			sv.Fields = append(sv.Fields, fv)
		}
		v.Stages = append(v.Stages, sv)
	}
	return v
}

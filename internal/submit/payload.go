// Package submit assembles the submission payload, posts it to the form's
// webhook and interprets the response.
package submit

import (
	"strings"
	"time"

	"github.com/tenxafrica/intake/internal/attachment"
	"github.com/tenxafrica/intake/internal/domain"
	"github.com/tenxafrica/intake/internal/validate"
)

// Metadata travels next to the form data.
type Metadata struct {
	SubmittedAt    string `json:"submittedAt"`
	Source         string `json:"source"`
	ChallengeToken string `json:"challengeToken"`
}

// Payload is the JSON body posted to the webhook.
type Payload struct {
	FormData    map[string]string       `json:"formData"`
	Metadata    Metadata                `json:"metadata"`
	Tracking    map[string]string       `json:"tracking,omitempty"`
	Attachments []attachment.Attachment `json:"attachments,omitempty"`
}

// BuildPayload derives the payload from a session, without attachments.
//
// Every non-file field has a key in formData: toggled-off and unanswered
// fields resolve to "", websites to their bare host and phone numbers to E.164.
// The challenge token only appears in metadata.
func BuildPayload(def *domain.FormDefinition, s *domain.Session, now time.Time) Payload {
	data := make(map[string]string)
	for _, f := range def.Fields() {
		if f.Kind == domain.KindFile {
			continue
		}
		data[f.Name] = formValue(f, s)
	}

	p := Payload{
		FormData: data,
		Metadata: Metadata{
			SubmittedAt:    now.UTC().Format(time.RFC3339Nano),
			Source:         def.SourceTag(),
			ChallengeToken: s.ChallengeToken,
		},
	}
	if len(s.Tracking) > 0 {
		p.Tracking = make(map[string]string, len(s.Tracking))
		for k, v := range s.Tracking {
			p.Tracking[k] = v
		}
	}
	return p
}

func formValue(f *domain.FieldDefinition, s *domain.Session) string {
	if s.ToggledOff[f.Name] {
		return ""
	}
	value := strings.TrimSpace(s.Values[f.Name])
	if value == "" {
		return ""
	}
	switch f.Kind {
	case domain.KindURL:
		return validate.BareHost(value)
	case domain.KindPhone:
		if _, e164, ok := validate.CanonicalPhone(value, s.PhoneCountry); ok {
			return e164
		}
	}
	return value
}

// Package attachment filters picked files against field constraints and
// serialises accepted files for the submission payload.
package attachment

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/tenxafrica/intake/internal/domain"
	"github.com/tenxafrica/intake/internal/validate"
)

// DefaultSafetyCap bounds the size of a file whose content is embedded.
const DefaultSafetyCap int64 = 5 * 1024 * 1024

// Attachment is one file entry of the submission wire format.
type Attachment struct {
	Field           string `json:"field"`
	Name            string `json:"name"`
	Size            int64  `json:"size"`
	Type            string `json:"type"`
	ContentBase64   string `json:"contentBase64,omitempty"`
	ContentIncluded bool   `json:"contentIncluded"`
}

// Selection is the outcome of filtering one file pick.
// Note is the field-level message, empty when every file was accepted.
type Selection struct {
	Accepted     []domain.File
	Note         string
	RejectedType int
	RejectedSize int
	RejectedOver int
}

// Filter splits files into those that satisfy the field and a note describing
// the rest. Rejected files never reach the session.
func Filter(field *domain.FieldDefinition, files []domain.File) Selection {
	var sel Selection
	patterns := field.AcceptPatterns()
	limit := field.MaxBytes()
	for _, f := range files {
		// Each file is counted under one reason; type wins over size.
		switch {
		case !validate.Accepts(patterns, f):
			sel.RejectedType++
		case f.Size > limit:
			sel.RejectedSize++
		default:
			sel.Accepted = append(sel.Accepted, f)
		}
	}

	if n := field.MaxFiles(); n > 0 && len(sel.Accepted) > n {
		sel.RejectedOver = len(sel.Accepted) - n
		sel.Accepted = sel.Accepted[:n]
	}

	switch {
	case len(files) == 0:
	case len(sel.Accepted) == 0:
		if sel.RejectedType > 0 {
			sel.Note = validate.TypeMessage(field)
		} else {
			sel.Note = validate.SizeMessage(field)
		}
	default:
		var notes []string
		if sel.RejectedType > 0 {
			notes = append(notes, fmt.Sprintf("%d file(s) ignored (type)", sel.RejectedType))
		}
		if sel.RejectedSize > 0 {
			notes = append(notes, fmt.Sprintf("%d file(s) ignored (size)", sel.RejectedSize))
		}
		if sel.RejectedOver > 0 {
			notes = append(notes, fmt.Sprintf("%d file(s) ignored (count)", sel.RejectedOver))
		}
		sel.Note = strings.Join(notes, ", ")
	}
	return sel
}

// Encoder turns accepted files into wire attachments.
type Encoder struct {
	// SafetyCap is the largest file whose content is embedded.
	SafetyCap int64
	// Workers limits concurrent encodes; zero means unlimited.
	Workers int
}

// NewEncoder returns an encoder with the given cap, falling back to DefaultSafetyCap.
func NewEncoder(safetyCap int64) *Encoder {
	if safetyCap <= 0 {
		safetyCap = DefaultSafetyCap
	}
	return &Encoder{SafetyCap: safetyCap, Workers: 4}
}

// Encode produces one attachment per file in input order. Files above the
// safety cap, or with no buffered content, are listed without content.
func (e *Encoder) Encode(ctx context.Context, field string, files []domain.File) ([]Attachment, error) {
	out := make([]Attachment, len(files))
	g, ctx := errgroup.WithContext(ctx)
	if e.Workers > 0 {
		g.SetLimit(e.Workers)
	}
	for i, f := range files {
		out[i] = Attachment{Field: field, Name: f.Name, Size: f.Size, Type: f.MIMEType}
		if f.Size > e.SafetyCap || len(f.Content) == 0 {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i].ContentBase64 = base64.StdEncoding.EncodeToString(f.Content)
			out[i].ContentIncluded = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("encode %s attachments: %w", field, err)
	}
	return out, nil
}

// EncodeForm encodes the files of every non-toggled file field in definition order.
func (e *Encoder) EncodeForm(ctx context.Context, def *domain.FormDefinition, s *domain.Session) ([]Attachment, error) {
	var all []Attachment
	for _, field := range def.Fields() {
		if field.Kind != domain.KindFile || s.ToggledOff[field.Name] {
			continue
		}
		files := s.Files[field.Name]
		if len(files) == 0 {
			continue
		}
		encoded, err := e.Encode(ctx, field.Name, files)
		if err != nil {
			return nil, err
		}
		all = append(all, encoded...)
	}
	return all, nil
}

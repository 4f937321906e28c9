// Package formdef loads form definitions from YAML.
package formdef

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tenxafrica/intake/internal/domain"
)

// ErrNotFound is returned by Registry.Get for an unknown slug.
var ErrNotFound = errors.New("form not found")

// Parse decodes one definition. Environment references such as
// ${PUBLIC_CONTACT_WEBHOOK_URL} are expanded before decoding, and name is used
// as the slug when the document has none.
func Parse(data []byte, name string) (*domain.FormDefinition, error) {
	expanded := os.ExpandEnv(string(data))

	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)

	var def domain.FormDefinition
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: empty definition", name)
		}
		return nil, fmt.Errorf("%s: parse: %w", name, err)
	}

	if strings.TrimSpace(def.Slug) == "" {
		def.Slug = name
	}
	if def.DuplicatePolicy == "" {
		def.DuplicatePolicy = domain.DuplicateBlock
	}
	for si := range def.Stages {
		for fi := range def.Stages[si].Fields {
			f := &def.Stages[si].Fields[fi]
			if k, ok := domain.ParseFieldKind(string(f.Kind)); ok {
				f.Kind = k
			}
		}
	}

	if err := Validate(&def); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &def, nil
}

// Validate checks the structural invariants of a definition and reports every
// violation it finds.
func Validate(def *domain.FormDefinition) error {
	var errs []error

	if len(def.Stages) == 0 {
		errs = append(errs, errors.New("form has no stages"))
	}
	if strings.TrimSpace(def.WebhookURL) == "" && !def.Simulate {
		errs = append(errs, errors.New("webhookUrl is required unless simulate is set"))
	}
	switch def.DuplicatePolicy {
	case "", domain.DuplicateBlock, domain.DuplicateAcknowledge:
	default:
		errs = append(errs, fmt.Errorf("unknown duplicatePolicy %q", def.DuplicatePolicy))
	}

	stageIDs := make(map[string]bool)
	fieldNames := make(map[string]string)
	for si := range def.Stages {
		st := &def.Stages[si]
		if st.ID == "" {
			errs = append(errs, fmt.Errorf("stage %d: missing id", si))
		} else if stageIDs[st.ID] {
			errs = append(errs, fmt.Errorf("stage %q: duplicate id", st.ID))
		}
		stageIDs[st.ID] = true

		if st.Advance != nil {
			switch st.Advance.Mode {
			case "", domain.AdvanceButton, domain.AdvanceAuto:
			default:
				errs = append(errs, fmt.Errorf("stage %q: unknown advance mode %q", st.ID, st.Advance.Mode))
			}
		}
		if st.IsChallenge() && len(st.Fields) > 0 {
			errs = append(errs, fmt.Errorf("stage %q: challenge stage cannot hold fields", st.ID))
		}

		for _, f := range st.Fields {
			if f.Name == "" {
				errs = append(errs, fmt.Errorf("stage %q: field without name", st.ID))
				continue
			}
			if prev, dup := fieldNames[f.Name]; dup {
				errs = append(errs, fmt.Errorf("field %q: declared in stages %q and %q", f.Name, prev, st.ID))
			}
			fieldNames[f.Name] = st.ID

			if _, ok := domain.ParseFieldKind(string(f.Kind)); !ok {
				errs = append(errs, fmt.Errorf("field %q: unknown type %q", f.Name, f.Kind))
				continue
			}
			if f.Kind.IsChoice() && len(f.Options) == 0 {
				errs = append(errs, fmt.Errorf("field %q: choice field needs options", f.Name))
			}
			if f.Kind != domain.KindFile && f.File != nil {
				errs = append(errs, fmt.Errorf("field %q: file constraints on a %s field", f.Name, f.Kind))
			}
			if f.MinLength < 0 {
				errs = append(errs, fmt.Errorf("field %q: negative minLength", f.Name))
			}
		}
	}

	return errors.Join(errs...)
}

// Registry holds the loaded definitions keyed by slug.
type Registry struct {
	forms map[string]*domain.FormDefinition
	order []string
}

// NewRegistry builds a registry from already-validated definitions.
func NewRegistry(defs ...*domain.FormDefinition) (*Registry, error) {
	r := &Registry{forms: make(map[string]*domain.FormDefinition)}
	for _, def := range defs {
		if _, exists := r.forms[def.Slug]; exists {
			return nil, fmt.Errorf("duplicate form slug %q", def.Slug)
		}
		r.forms[def.Slug] = def
		r.order = append(r.order, def.Slug)
	}
	sort.Strings(r.order)
	return r, nil
}

// LoadDir parses every .yaml/.yml file in dir. The file basename is the
// default slug.
func LoadDir(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read forms dir: %w", err)
	}

	var defs []*domain.FormDefinition
	var errs []error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		def, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		defs = append(defs, def)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return NewRegistry(defs...)
}

// LoadFile parses a single definition file.
func LoadFile(path string) (*domain.FormDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read form definition: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Parse(data, name)
}

// Get returns the definition for slug.
func (r *Registry) Get(slug string) (*domain.FormDefinition, error) {
	def, ok := r.forms[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, slug)
	}
	return def, nil
}

// All returns the definitions ordered by slug.
func (r *Registry) All() []*domain.FormDefinition {
	out := make([]*domain.FormDefinition, 0, len(r.order))
	for _, slug := range r.order {
		out = append(out, r.forms[slug])
	}
	return out
}

// Package tracking captures referral parameters from the landing URL.
package tracking

import (
	"net/url"
	"strings"

	"github.com/tenxafrica/intake/internal/domain"
)

// Capture reads the form's tracking parameters and field prefills from a raw
// query string. Tracking values stay out of form data; a query key that names
// a field pre-fills it. File fields are never pre-filled.
func Capture(def *domain.FormDefinition, rawQuery string) (tracked, prefill map[string]string) {
	tracked = make(map[string]string)
	prefill = make(map[string]string)

	params, err := url.ParseQuery(strings.TrimPrefix(rawQuery, "?"))
	if err != nil && len(params) == 0 {
		return tracked, prefill
	}

	for _, key := range def.Tracking() {
		if v := strings.TrimSpace(params.Get(key)); v != "" {
			tracked[key] = v
		}
	}
	for _, f := range def.Fields() {
		if f.Kind == domain.KindFile {
			continue
		}
		if v := strings.TrimSpace(params.Get(f.Name)); v != "" {
			prefill[f.Name] = v
		}
	}
	return tracked, prefill
}

// Apply stores captured values on a new session.
func Apply(s *domain.Session, tracked, prefill map[string]string) {
	s.EnsureMaps()
	for k, v := range tracked {
		s.Tracking[k] = v
	}
	for k, v := range prefill {
		s.Values[k] = v
	}
}

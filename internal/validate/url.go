package validate

import (
	"net/url"
	"regexp"
	"strings"
)

var schemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

// NormalizeHost reduces a website entry to its bare hostname.
// "https://www.example.com/path" and "example.com/path" both yield "example.com".
// ok is false when the input has no hostname containing a dot.
func NormalizeHost(value string) (host string, ok bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", false
	}
	prefixed := trimmed
	if !schemePattern.MatchString(prefixed) {
		prefixed = "https://" + prefixed
	}

	u, err := url.Parse(prefixed)
	if err != nil || u.Hostname() == "" {
		return fallbackHost(trimmed), false
	}
	hostname := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(hostname, "www."), strings.Contains(hostname, ".")
}

// BareHost is NormalizeHost without the validity bit; unparsable input is
// stripped heuristically.
func BareHost(value string) string {
	host, _ := NormalizeHost(value)
	return host
}

func fallbackHost(s string) string {
	s = schemePattern.ReplaceAllString(s, "")
	s = strings.TrimPrefix(strings.ToLower(s), "www.")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return s
}

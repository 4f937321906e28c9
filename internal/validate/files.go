package validate

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/tenxafrica/intake/internal/domain"
)

// Accepts reports whether file matches one of the accept patterns.
// Patterns are exact MIME types, "type/*" masks, ".ext" suffixes or "*/*".
func Accepts(patterns []string, file domain.File) bool {
	mime := strings.ToLower(file.MIMEType)
	ext := strings.ToLower(path.Ext(file.Name))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		switch {
		case p == "*/*" || p == "*":
			return true
		case strings.HasPrefix(p, "."):
			if ext == p {
				return true
			}
		case strings.HasSuffix(p, "/*"):
			if strings.HasPrefix(mime, strings.TrimSuffix(p, "*")) {
				return true
			}
		case mime != "" && mime == p:
			return true
		}
	}
	return false
}

// TypeMessage is the field error for a file of an unaccepted type.
func TypeMessage(field *domain.FieldDefinition) string {
	return "Unsupported file type. Please attach " + describeAccept(field.AcceptPatterns()) + "."
}

// SizeMessage is the field error for a file above the per-field cap.
func SizeMessage(field *domain.FieldDefinition) string {
	return "File too large. Max " + strconv.FormatFloat(field.MaxSizeMB(), 'f', -1, 64) + "MB."
}

func checkFiles(field *domain.FieldDefinition, files []domain.File) *FieldError {
	if len(files) == 0 {
		if field.Required {
			return fieldError(field, ReasonRequired, "Please attach a file")
		}
		return nil
	}
	if n := field.MaxFiles(); n > 0 && len(files) > n {
		return fieldError(field, ReasonFileCount, fmt.Sprintf("Attach at most %d file(s)", n))
	}
	limit := field.MaxBytes()
	patterns := field.AcceptPatterns()
	for _, f := range files {
		if !Accepts(patterns, f) {
			return fieldError(field, ReasonFileType, TypeMessage(field))
		}
		if f.Size > limit {
			return fieldError(field, ReasonFileSize, SizeMessage(field))
		}
	}
	return nil
}

func describeAccept(patterns []string) string {
	seen := make(map[string]bool)
	var names []string
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		var name string
		switch {
		case p == "application/pdf" || p == ".pdf":
			name = "PDF"
		case strings.HasSuffix(p, "/*"):
			name = strings.TrimSuffix(p, "/*") + " files"
		case strings.HasPrefix(p, "."):
			name = strings.ToUpper(strings.TrimPrefix(p, "."))
		default:
			name = p
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	if len(names) == 1 && names[0] == "PDF" {
		return "a PDF"
	}
	return strings.Join(names, ", ")
}

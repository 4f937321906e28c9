// Package validate decides field validity for form definitions.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tenxafrica/intake/internal/domain"
)

// Reason classifies a field-level validation failure.
type Reason string

const (
	ReasonRequired  Reason = "required"
	ReasonFormat    Reason = "format"
	ReasonTooShort  Reason = "too_short"
	ReasonNotOption Reason = "not_an_option"
	ReasonFileType  Reason = "file_type"
	ReasonFileSize  Reason = "file_size"
	ReasonFileCount Reason = "file_count"
)

// FieldError is a local, recoverable validation failure of one field.
type FieldError struct {
	Field   string `json:"field"`
	Reason  Reason `json:"reason"`
	Message string `json:"message"`
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// Context carries the session state a field's validity depends on.
type Context struct {
	// Country is the ISO region phone numbers are parsed under.
	Country string
	// ToggledOff is set when the user opted the field out of the form.
	ToggledOff bool
	// Files are the selected files of a file field.
	Files []domain.File
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// IsEmail reports whether s has the local@domain.tld shape.
func IsEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// IsFieldValid reports whether value satisfies the field under ctx.
func IsFieldValid(field *domain.FieldDefinition, value string, ctx Context) bool {
	return Check(field, value, ctx) == nil
}

// Check returns the reason value does not satisfy field, or nil.
// The result is a concrete pointer; compare it to nil before storing it in an error.
func Check(field *domain.FieldDefinition, value string, ctx Context) *FieldError {
	if ctx.ToggledOff {
		return nil
	}
	if field.Kind == domain.KindFile {
		return checkFiles(field, ctx.Files)
	}

	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		if !field.Required {
			return nil
		}
		return fieldError(field, ReasonRequired, requiredMessage(field))
	}

	switch field.Kind {
	case domain.KindEmail:
		if !IsEmail(trimmed) {
			return fieldError(field, ReasonFormat, "Please enter a valid email")
		}
	case domain.KindURL:
		if _, ok := NormalizeHost(trimmed); !ok {
			return fieldError(field, ReasonFormat, "Please enter a valid website, e.g. example.com")
		}
	case domain.KindPhone:
		if !IsPhone(trimmed, ctx.Country) {
			return fieldError(field, ReasonFormat, "Please enter a valid phone number")
		}
	case domain.KindMultiline:
		if n := utf8.RuneCountInString(trimmed); n < field.MinLength {
			return fieldError(field, ReasonTooShort, fmt.Sprintf("At least %d characters (%d so far)", field.MinLength, n))
		}
	case domain.KindSingle, domain.KindEnumerated:
		if !field.HasOption(value) {
			return fieldError(field, ReasonNotOption, "Please choose one of the options")
		}
	}
	return nil
}

func requiredMessage(field *domain.FieldDefinition) string {
	label := field.Label
	if label == "" {
		label = field.Name
	}
	if field.Kind.IsChoice() {
		return "Please choose " + strings.ToLower(label)
	}
	return label + " is required"
}

func fieldError(field *domain.FieldDefinition, reason Reason, msg string) *FieldError {
	return &FieldError{Field: field.Name, Reason: reason, Message: msg}
}

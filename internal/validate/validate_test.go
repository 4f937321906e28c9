package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenxafrica/intake/internal/domain"
)

func allKinds() []domain.FieldKind {
	return []domain.FieldKind{
		domain.KindText, domain.KindEmail, domain.KindPhone, domain.KindURL,
		domain.KindMultiline, domain.KindSingle, domain.KindEnumerated, domain.KindFile,
	}
}

func TestCheck_OptionalEmptyAlwaysValid(t *testing.T) {
	for _, kind := range allKinds() {
		field := &domain.FieldDefinition{
			Name:      "f",
			Kind:      kind,
			MinLength: 20,
			Options:   []domain.Option{{Value: "a", Label: "A"}},
		}
		for _, v := range []string{"", "   ", "\t\n"} {
			assert.True(t, IsFieldValid(field, v, Context{}), "kind %s value %q", kind, v)
		}
	}
}

func TestCheck_ToggledOffAlwaysValid(t *testing.T) {
	for _, kind := range allKinds() {
		field := &domain.FieldDefinition{Name: "f", Kind: kind, Required: true, MinLength: 5}
		assert.True(t, IsFieldValid(field, "garbage value @@", Context{ToggledOff: true}), "kind %s", kind)
		assert.True(t, IsFieldValid(field, "", Context{ToggledOff: true}), "kind %s", kind)
	}
}

func TestCheck_RequiredText(t *testing.T) {
	field := &domain.FieldDefinition{Name: "name", Label: "Name", Kind: domain.KindText, Required: true}

	err := Check(field, "   ", Context{})
	require.NotNil(t, err)
	assert.Equal(t, ReasonRequired, err.Reason)
	assert.Equal(t, "name", err.Field)
	assert.Equal(t, "Name is required", err.Message)

	assert.Nil(t, Check(field, "Ada", Context{}))
}

func TestCheck_Email(t *testing.T) {
	field := &domain.FieldDefinition{Name: "email", Kind: domain.KindEmail, Required: true}

	tests := []struct {
		value string
		valid bool
	}{
		{"ada@example.com", true},
		{"a.b+c@sub.example.co.za", true},
		{"ada@example", false},
		{"ada example@x.com", false},
		{"@example.com", false},
		{"ada@@example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsFieldValid(field, tt.value, Context{}))
		})
	}
}

func TestCheck_Multiline(t *testing.T) {
	field := &domain.FieldDefinition{Name: "message", Kind: domain.KindMultiline, Required: true, MinLength: 10}

	err := Check(field, "  too short ", Context{})
	require.NotNil(t, err)
	assert.Equal(t, ReasonTooShort, err.Reason)

	assert.Nil(t, Check(field, "long enough message", Context{}))
}

func TestCheck_Choice(t *testing.T) {
	field := &domain.FieldDefinition{
		Name:     "budget",
		Kind:     domain.KindSingle,
		Required: true,
		Options:  []domain.Option{{Value: "small", Label: "Small"}, {Value: "large", Label: "Large"}},
	}

	assert.Nil(t, Check(field, "small", Context{}))

	err := Check(field, "medium", Context{})
	require.NotNil(t, err)
	assert.Equal(t, ReasonNotOption, err.Reason)

	err = Check(field, "", Context{})
	require.NotNil(t, err)
	assert.Equal(t, ReasonRequired, err.Reason)
}

func TestCheck_URL(t *testing.T) {
	field := &domain.FieldDefinition{Name: "website", Kind: domain.KindURL, Required: true}

	assert.True(t, IsFieldValid(field, "example.com/path", Context{}))
	assert.True(t, IsFieldValid(field, "https://www.example.com", Context{}))
	assert.False(t, IsFieldValid(field, "localhost", Context{}))
	assert.False(t, IsFieldValid(field, "not a url", Context{}))
}

func TestNormalizeHost(t *testing.T) {
	tests := []struct {
		in   string
		host string
		ok   bool
	}{
		{"example.com/path", "example.com", true},
		{"https://www.Example.com/a?b=c", "example.com", true},
		{"http://sub.example.co.za", "sub.example.co.za", true},
		{"www.example.com", "example.com", true},
		{"localhost:8080", "localhost", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			host, ok := NormalizeHost(tt.in)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestCheck_Phone(t *testing.T) {
	field := &domain.FieldDefinition{Name: "phone", Kind: domain.KindPhone, Required: true}

	assert.True(t, IsFieldValid(field, "071 123 4567", Context{Country: "ZA"}))
	assert.True(t, IsFieldValid(field, "(201) 555-0123", Context{Country: "US"}))
	assert.False(t, IsFieldValid(field, "12345", Context{Country: "ZA"}))
	assert.False(t, IsFieldValid(field, "call me", Context{Country: "ZA"}))
}

func TestCanonicalPhone_Idempotent(t *testing.T) {
	display, e164, ok := CanonicalPhone("071 123 4567", "ZA")
	require.True(t, ok)
	assert.Equal(t, "+27 71 123 4567", display)
	assert.Equal(t, "+27711234567", e164)

	again, e164Again, ok := CanonicalPhone(display, "ZA")
	require.True(t, ok)
	assert.Equal(t, display, again)
	assert.Equal(t, e164, e164Again)

	// A canonical value keeps its own country even if the picker changes.
	other, _, ok := CanonicalPhone(display, "US")
	require.True(t, ok)
	assert.Equal(t, display, other)
}

func TestCanonicalPhone_Unparsable(t *testing.T) {
	display, e164, ok := CanonicalPhone("not a number", "ZA")
	assert.False(t, ok)
	assert.Equal(t, "not a number", display)
	assert.Empty(t, e164)
}

func TestRegions(t *testing.T) {
	regions := Regions()
	require.NotEmpty(t, regions)

	var za *Region
	for i := range regions {
		if regions[i].Code == "ZA" {
			za = &regions[i]
		}
	}
	require.NotNil(t, za)
	assert.Equal(t, 27, za.CallingCode)
	assert.Equal(t, "South Africa", za.Name)
	assert.True(t, IsRegion("za"))
	assert.False(t, IsRegion("XX"))
}

func pdfField(required bool) *domain.FieldDefinition {
	return &domain.FieldDefinition{
		Name:     "brief",
		Kind:     domain.KindFile,
		Required: required,
		File:     &domain.FileConstraints{Multiple: true, MaxSizeMB: 1},
	}
}

func TestCheck_Files(t *testing.T) {
	pdf := domain.File{Name: "brief.pdf", MIMEType: "application/pdf", Size: 1024}
	big := domain.File{Name: "big.pdf", MIMEType: "application/pdf", Size: 2 * 1024 * 1024}
	exe := domain.File{Name: "setup.exe", MIMEType: "application/octet-stream", Size: 10}

	assert.Nil(t, Check(pdfField(false), "", Context{}))

	err := Check(pdfField(true), "", Context{})
	require.NotNil(t, err)
	assert.Equal(t, ReasonRequired, err.Reason)

	assert.Nil(t, Check(pdfField(true), "", Context{Files: []domain.File{pdf}}))

	err = Check(pdfField(true), "", Context{Files: []domain.File{pdf, big}})
	require.NotNil(t, err)
	assert.Equal(t, ReasonFileSize, err.Reason)
	assert.True(t, strings.Contains(err.Message, "too large"))

	err = Check(pdfField(true), "", Context{Files: []domain.File{exe}})
	require.NotNil(t, err)
	assert.Equal(t, ReasonFileType, err.Reason)
	assert.Equal(t, "Unsupported file type. Please attach a PDF.", err.Message)
}

func TestCheck_FileCount(t *testing.T) {
	field := pdfField(true)
	field.File.MaxCount = 1
	pdf := domain.File{Name: "a.pdf", MIMEType: "application/pdf", Size: 1}

	err := Check(field, "", Context{Files: []domain.File{pdf, pdf}})
	require.NotNil(t, err)
	assert.Equal(t, ReasonFileCount, err.Reason)
}

func TestAccepts(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		file     domain.File
		want     bool
	}{
		{"exact mime", []string{"application/pdf"}, domain.File{Name: "x", MIMEType: "application/pdf"}, true},
		{"extension without mime", []string{".pdf"}, domain.File{Name: "X.PDF"}, true},
		{"wildcard family", []string{"image/*"}, domain.File{Name: "a.png", MIMEType: "image/png"}, true},
		{"wildcard mismatch", []string{"image/*"}, domain.File{Name: "a.pdf", MIMEType: "application/pdf"}, false},
		{"any", []string{"*/*"}, domain.File{Name: "a.bin"}, true},
		{"no match", []string{"application/pdf", ".pdf"}, domain.File{Name: "a.doc", MIMEType: "application/msword"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Accepts(tt.patterns, tt.file))
		})
	}
}

func TestSizeMessage(t *testing.T) {
	assert.Equal(t, "File too large. Max 10MB.", SizeMessage(&domain.FieldDefinition{Kind: domain.KindFile}))
	assert.Equal(t, "File too large. Max 2.5MB.", SizeMessage(&domain.FieldDefinition{
		Kind: domain.KindFile,
		File: &domain.FileConstraints{MaxSizeMB: 2.5},
	}))
}

package tracking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tenxafrica/intake/internal/domain"
)

func form(params ...string) *domain.FormDefinition {
	return &domain.FormDefinition{
		Slug:           "contact",
		TrackingParams: params,
		Stages: []domain.StageDefinition{{ID: "one", Fields: []domain.FieldDefinition{
			{Name: "name", Kind: domain.KindText},
			{Name: "email", Kind: domain.KindEmail},
			{Name: "brief", Kind: domain.KindFile},
		}}},
	}
}

func TestCapture_DefaultParams(t *testing.T) {
	tracked, prefill := Capture(form(), "?utm_source=newsletter&utm_medium=email&token=abc&ref=x&email=ada%40example.com&brief=x")

	assert.Equal(t, map[string]string{
		"utm_source": "newsletter",
		"utm_medium": "email",
		"token":      "abc",
	}, tracked)
	assert.Equal(t, map[string]string{"email": "ada@example.com"}, prefill)
}

func TestCapture_ConfiguredParams(t *testing.T) {
	tracked, _ := Capture(form("ref"), "utm_source=newsletter&ref=partner")
	assert.Equal(t, map[string]string{"ref": "partner"}, tracked)
}

func TestCapture_TrackingKeyNamingAField(t *testing.T) {
	tracked, prefill := Capture(form("name"), "name=Ada")
	assert.Equal(t, "Ada", tracked["name"])
	assert.Equal(t, "Ada", prefill["name"])
}

func TestApply(t *testing.T) {
	s := domain.NewSession("s", "contact", "v", "ZA", time.Now())
	Apply(s, map[string]string{"utm_source": "x"}, map[string]string{"name": "Ada"})

	assert.Equal(t, "x", s.Tracking["utm_source"])
	assert.Equal(t, "Ada", s.Values["name"])
	assert.NotContains(t, s.Values, "utm_source")
}

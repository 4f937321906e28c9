package submit

import (
	"strings"

	"github.com/bytedance/sonic"

	"github.com/tenxafrica/intake/internal/domain"
)

// DefaultFailureMessage is shown when neither an override nor the remote side
// supplies a message.
const DefaultFailureMessage = "TRANSMISSION_FAILED. RETRY?"

// MisconfiguredMessage is shown when a form has no webhook.
const MisconfiguredMessage = "WEBHOOK_NOT_CONFIGURED"

// webhookResponse is the tolerated response body; both keys are optional.
type webhookResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Categorize maps a remote error message to its category.
func Categorize(message string) domain.ErrorKind {
	m := strings.ToLower(strings.TrimSpace(message))
	switch {
	case strings.Contains(m, "captcha"):
		return domain.ErrorInvalidChallenge
	case strings.Contains(m, "already exists"), strings.Contains(m, "already on file"):
		return domain.ErrorDuplicate
	case strings.Contains(m, "processing error"):
		return domain.ErrorProcessing
	default:
		return domain.ErrorGeneric
	}
}

// DisplayMessage picks the user-facing string for a category: the form's
// override, then the remote message, then DefaultFailureMessage.
func DisplayMessage(overrides domain.ErrorMessages, kind domain.ErrorKind, remote string) string {
	var configured string
	switch kind {
	case domain.ErrorInvalidChallenge:
		configured = overrides.InvalidCaptcha
	case domain.ErrorProcessing:
		configured = overrides.ProcessingError
	case domain.ErrorDuplicate:
		configured = overrides.Duplicate
	case domain.ErrorGeneric:
		configured = overrides.Generic
	}
	if configured != "" {
		return configured
	}
	if remote = strings.TrimSpace(remote); remote != "" {
		return remote
	}
	return DefaultFailureMessage
}

// Classify interprets a webhook response. A 2xx status without an error
// marker is success; a duplicate-lead error is its own terminal outcome.
func Classify(def *domain.FormDefinition, status int, body []byte) domain.Result {
	var resp webhookResponse
	if len(body) > 0 {
		// Bodies are best effort; anything unparsable counts as absent.
		_ = sonic.Unmarshal(body, &resp)
	}

	ok := status >= 200 && status <= 299
	if ok && !strings.EqualFold(resp.Status, "error") {
		success := def.Success
		return domain.Result{Outcome: domain.OutcomeSuccess, Success: &success}
	}

	kind := Categorize(resp.Message)
	msg := DisplayMessage(def.ErrorMessages, kind, resp.Message)
	if kind == domain.ErrorDuplicate {
		return domain.Result{Outcome: domain.OutcomeDuplicate, Kind: kind, Message: msg}
	}
	return domain.Result{Outcome: domain.OutcomeError, Kind: kind, Message: msg, Retryable: true}
}

// Failure is the result of a submission that never got a response.
func Failure(def *domain.FormDefinition) domain.Result {
	return domain.Result{
		Outcome:   domain.OutcomeError,
		Kind:      domain.ErrorGeneric,
		Message:   DisplayMessage(def.ErrorMessages, domain.ErrorGeneric, ""),
		Retryable: true,
	}
}

// Misconfigured is the non-retryable result of a form without a webhook.
func Misconfigured() domain.Result {
	return domain.Result{
		Outcome: domain.OutcomeError,
		Kind:    domain.ErrorMisconfigured,
		Message: MisconfiguredMessage,
	}
}

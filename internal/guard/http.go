package guard

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
)

// maxResponseBytes bounds how much of a check response is read.
const maxResponseBytes = 64 << 10

// HTTPChecker posts {"email": ...} to a webhook and expects {"exists", "name"}.
type HTTPChecker struct {
	URL    string
	Client *http.Client
}

// NewHTTPChecker returns a checker with its own client timeout.
func NewHTTPChecker(url string, timeout time.Duration) *HTTPChecker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPChecker{URL: url, Client: &http.Client{Timeout: timeout}}
}

type checkRequest struct {
	Email string `json:"email"`
}

// CheckDuplicate implements Checker.
func (c *HTTPChecker) CheckDuplicate(ctx context.Context, email string) (Result, error) {
	body, err := sonic.Marshal(checkRequest{Email: email})
	if err != nil {
		return Result{}, fmt.Errorf("encode check request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build check request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("duplicate check: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, fmt.Errorf("read check response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("duplicate check: unexpected status %d", resp.StatusCode)
	}

	var r Result
	if err := sonic.Unmarshal(raw, &r); err != nil {
		return Result{}, fmt.Errorf("decode check response: %w", err)
	}
	return r, nil
}

package challenge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newProvider(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("secret") != "s3cret" {
			t.Errorf("Expected secret to be forwarded, got %q", r.PostForm.Get("secret"))
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestTurnstile_Verify(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    bool
		wantErr bool
	}{
		{"accepted", http.StatusOK, `{"success": true, "hostname": "tenx.africa"}`, true, false},
		{"rejected", http.StatusOK, `{"success": false, "error-codes": ["invalid-input-response"]}`, false, false},
		{"provider error", http.StatusOK, `{"success": false, "error-codes": ["internal-error"]}`, false, true},
		{"bad status", http.StatusBadGateway, ``, false, true},
		{"garbage", http.StatusOK, `<html>`, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newProvider(t, tt.status, tt.body)
			defer srv.Close()

			v := NewTurnstile("s3cret", time.Second)
			v.Endpoint = srv.URL

			got, err := v.Verify(context.Background(), "token")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

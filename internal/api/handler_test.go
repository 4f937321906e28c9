//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenxafrica/intake/internal/domain"
	"github.com/tenxafrica/intake/internal/engine"
	"github.com/tenxafrica/intake/internal/guard"
	"github.com/tenxafrica/intake/internal/identity"
	"github.com/tenxafrica/intake/internal/store"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected application/json, got %q", ct)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func testDefinition() *domain.FormDefinition {
	return &domain.FormDefinition{
		Slug:              "consulting",
		Title:             "Digital consulting",
		WebhookURL:        "https://hooks.example.com/lead",
		DuplicateCheckURL: "https://hooks.example.com/check",
		DuplicatePolicy:   domain.DuplicateAcknowledge,
		RequireChallenge:  true,
		AllowBack:         true,
		Stages: []domain.StageDefinition{
			{ID: "identity", Prompt: "Who are we talking to?", HistoryLabel: "Name", Fields: []domain.FieldDefinition{
				{Name: "name", Kind: domain.KindText, Required: true},
			}},
			{ID: "contact", Prompt: "How do we reach you?", HistoryLabel: "Contact", Fields: []domain.FieldDefinition{
				{Name: "email", Kind: domain.KindEmail, Required: true},
				{Name: "phone", Kind: domain.KindPhone},
			}},
			{ID: "budget", Prompt: "Budget?", HistoryLabel: "Budget", Fields: []domain.FieldDefinition{
				{Name: "budget", Kind: domain.KindSingle, Required: true, Options: []domain.Option{
					{Value: "small", Label: "Under 50k"},
					{Value: "large", Label: "Over 50k"},
				}},
			}},
			{ID: "brief", Prompt: "Anything to share?", HistoryLabel: "Brief", Fields: []domain.FieldDefinition{
				{Name: "brief", Kind: domain.KindFile, File: &domain.FileConstraints{Multiple: true, MaxSizeMB: 1}},
			}},
			{ID: "security", Kind: domain.StageKindChallenge, Prompt: "One last check", HistoryLabel: "Verified"},
		},
		Success: domain.SuccessConfig{Headline: "Received", Message: "We will be in touch."},
	}
}

type fakeGuard struct {
	known map[string]bool
}

func (f *fakeGuard) Forget(string) {}

func (f *fakeGuard) Check(_ context.Context, email string) guard.Verdict {
	if f.known[guard.Normalize(email)] {
		return guard.Verdict{Exists: true, Message: guard.Message("", "hello@example.com")}
	}
	return guard.Verdict{}
}

type fakeSubmitter struct {
	mu   sync.Mutex
	seen []map[string]string
}

func (f *fakeSubmitter) Submit(_ context.Context, def *domain.FormDefinition, s *domain.Session) domain.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	values := make(map[string]string, len(s.Values))
	for k, v := range s.Values {
		values[k] = v
	}
	f.seen = append(f.seen, values)
	return domain.Result{Outcome: domain.OutcomeSuccess, Success: &def.Success}
}

func (f *fakeSubmitter) Seen() []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]string(nil), f.seen...)
}

type fakeStreams struct {
	mu     sync.Mutex
	closed []string
}

func (f *fakeStreams) CloseSession(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, id)
}

func (f *fakeStreams) Closed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.closed...)
}

type testServer struct {
	*httptest.Server
	handler *Handler
	sub     *fakeSubmitter
	streams *fakeStreams
}

func newTestServer(t *testing.T, limiter *RateLimiter) *testServer {
	t.Helper()
	sub := &fakeSubmitter{}
	streams := &fakeStreams{}
	g := &fakeGuard{known: map[string]bool{"known@example.com": true}}
	eng := engine.New(testDefinition(), g, sub, engine.Options{})

	h := NewHandler(store.NewMemory(), []*engine.Engine{eng}, Options{
		Limiter: limiter,
		Streams: streams,
	})
	r := chi.NewRouter()
	r.Use(identity.Middleware(true))
	h.RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, handler: h, sub: sub, streams: streams}
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	c := &http.Client{Jar: jar, Timeout: 5 * time.Second}
	t.Cleanup(c.CloseIdleConnections)
	return c
}

func call(t *testing.T, c *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decodeView(t *testing.T, data []byte) engine.View {
	t.Helper()
	var v engine.View
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func decodeError(t *testing.T, data []byte) errorBody {
	t.Helper()
	var e errorBody
	require.NoError(t, json.Unmarshal(data, &e), string(data))
	return e
}

func fieldValue(v engine.View, name string) string {
	for _, st := range v.Stages {
		for _, f := range st.Fields {
			if f.Name == name {
				return f.Value
			}
		}
	}
	return ""
}

func fieldView(v engine.View, name string) engine.FieldView {
	for _, st := range v.Stages {
		for _, f := range st.Fields {
			if f.Name == name {
				return f
			}
		}
	}
	return engine.FieldView{}
}

func createSession(t *testing.T, ts *testServer, c *http.Client, query string) engine.View {
	t.Helper()
	resp, data := call(t, c, http.MethodPost, ts.URL+"/api/forms/consulting/sessions"+query, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	return decodeView(t, data)
}

func multipartFiles(t *testing.T, files map[string]string) (string, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, mimeType := range files {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", `form-data; name="files"; filename="`+name+`"`)
		hdr.Set("Content-Type", mimeType)
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write([]byte("%PDF-1.4 test content"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return mw.FormDataContentType(), &buf
}

func TestSessionFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	c := newClient(t)

	v := createSession(t, ts, c, "?utm_source=ads&name=Ada")
	base := ts.URL + "/api/sessions/" + v.ID
	assert.Equal(t, "Ada", fieldValue(v, "name"), "query prefill")
	assert.Equal(t, 0, v.CurrentStage)

	resp, data := call(t, c, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, v.ID, decodeView(t, data).ID)

	resp, data = call(t, c, http.MethodPost, base+"/advance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.Equal(t, 1, decodeView(t, data).CurrentStage)

	resp, _ = call(t, c, http.MethodPut, base+"/values/email", map[string]string{"value": "not-an-email"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, data = call(t, c, http.MethodPost, base+"/advance", nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decodeError(t, data)
	assert.Equal(t, "stage_invalid", body.Error)
	require.Len(t, body.Fields, 1)
	assert.Equal(t, "email", body.Fields[0].Field)
	require.NotNil(t, body.Session)
	assert.Equal(t, 1, body.Session.CurrentStage)

	patch := `[{"op":"add","path":"/email","value":"ada@example.com"},{"op":"add","path":"/phone","value":"071 123 4567"}]`
	resp, data = call(t, c, http.MethodPatch, base+"/values", patch)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.Equal(t, "ada@example.com", fieldValue(decodeView(t, data), "email"))

	resp, data = call(t, c, http.MethodPost, base+"/phone/blur", map[string]string{})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.Equal(t, "+27 71 123 4567", fieldValue(decodeView(t, data), "phone"))

	resp, _ = call(t, c, http.MethodPost, base+"/advance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, data = call(t, c, http.MethodPost, base+"/select/budget", map[string]string{"value": "large"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.Equal(t, 3, decodeView(t, data).CurrentStage, "radio selection auto-advances")

	ct, buf := multipartFiles(t, map[string]string{"brief.pdf": "application/pdf", "notes.txt": "text/plain"})
	req, err := http.NewRequest(http.MethodPost, base+"/files/brief", buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", ct)
	fresp, err := c.Do(req)
	require.NoError(t, err)
	data, err = io.ReadAll(fresp.Body)
	fresp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, fresp.StatusCode, string(data))
	brief := fieldView(decodeView(t, data), "brief")
	require.Len(t, brief.Files, 1)
	assert.Equal(t, "brief.pdf", brief.Files[0].Name)
	assert.Equal(t, "1 file(s) ignored (type)", brief.Note)

	resp, _ = call(t, c, http.MethodPost, base+"/advance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, data = call(t, c, http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "challenge_required", decodeError(t, data).Error)

	resp, data = call(t, c, http.MethodPost, base+"/challenge", map[string]string{"token": "tok-123"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeView(t, data).ChallengeSet)

	resp, data = call(t, c, http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	v = decodeView(t, data)
	assert.Equal(t, domain.OutcomeSuccess, v.Outcome)
	require.NotNil(t, v.Result)
	assert.Equal(t, "Received", v.Result.Success.Headline)
	seen := ts.sub.Seen()
	require.Len(t, seen, 1)
	assert.Equal(t, "ada@example.com", seen[0]["email"])

	resp, data = call(t, c, http.MethodPut, base+"/values/name", map[string]string{"value": "Grace"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "session_closed", decodeError(t, data).Error)

	resp, data = call(t, c, http.MethodPost, base+"/restart", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	v = decodeView(t, data)
	assert.Equal(t, 0, v.CurrentStage)
	assert.Equal(t, domain.OutcomePending, v.Outcome)
	assert.Equal(t, []string{v.ID}, ts.streams.Closed())
}

func TestSession_ForeignVisitorNotFound(t *testing.T) {
	ts := newTestServer(t, nil)
	owner := newClient(t)
	v := createSession(t, ts, owner, "")

	stranger := newClient(t)
	resp, data := call(t, stranger, http.MethodGet, ts.URL+"/api/sessions/"+v.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "session_not_found", decodeError(t, data).Error)

	resp, _ = call(t, stranger, http.MethodPost, ts.URL+"/api/sessions/"+v.ID+"/advance", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateSession_UnknownForm(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, data := call(t, newClient(t), http.MethodPost, ts.URL+"/api/forms/nope/sessions", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "form_not_found", decodeError(t, data).Error)
}

func TestDuplicateLead_FlagPersistsAndAcknowledges(t *testing.T) {
	ts := newTestServer(t, nil)
	c := newClient(t)
	v := createSession(t, ts, c, "?name=Ada")
	base := ts.URL + "/api/sessions/" + v.ID

	call(t, c, http.MethodPost, base+"/advance", nil)
	call(t, c, http.MethodPut, base+"/values/email", map[string]string{"value": "Known@Example.com"})

	resp, data := call(t, c, http.MethodPost, base+"/advance", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decodeError(t, data)
	assert.Equal(t, "duplicate_lead", body.Error)
	require.NotNil(t, body.Session)
	require.NotNil(t, body.Session.Duplicate)

	resp, data = call(t, c, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, decodeView(t, data).Duplicate, "flag is saved with the rejection")

	resp, _ = call(t, c, http.MethodPost, base+"/duplicate/ack", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, data = call(t, c, http.MethodPost, base+"/advance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.Equal(t, 2, decodeView(t, data).CurrentStage)
}

func TestPatchValues(t *testing.T) {
	ts := newTestServer(t, nil)
	c := newClient(t)
	v := createSession(t, ts, c, "?name=Ada")
	base := ts.URL + "/api/sessions/" + v.ID

	tests := []struct {
		name       string
		patch      string
		wantStatus int
		wantError  string
	}{
		{"unknown field rejects whole patch", `[{"op":"replace","path":"/name","value":"Grace"},{"op":"add","path":"/nope","value":"x"}]`, http.StatusNotFound, "unknown_field"},
		{"field on a later stage", `[{"op":"add","path":"/email","value":"a@b.co"}]`, http.StatusConflict, "field_not_active"},
		{"malformed patch", `{"op":"add"}`, http.StatusBadRequest, "bad_request"},
		{"non-string value", `[{"op":"replace","path":"/name","value":7}]`, http.StatusBadRequest, "bad_request"},
		{"failed test op", `[{"op":"test","path":"/name","value":"Grace"}]`, http.StatusBadRequest, "bad_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := call(t, c, http.MethodPatch, base+"/values", tt.patch)
			assert.Equal(t, tt.wantStatus, resp.StatusCode, string(data))
			assert.Equal(t, tt.wantError, decodeError(t, data).Error)

			_, data = call(t, c, http.MethodGet, base, nil)
			assert.Equal(t, "Ada", fieldValue(decodeView(t, data), "name"))
		})
	}

	resp, data := call(t, c, http.MethodPatch, base+"/values", `[{"op":"remove","path":"/name"}]`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.Equal(t, "", fieldValue(decodeView(t, data), "name"))
}

func TestCountry(t *testing.T) {
	ts := newTestServer(t, nil)
	c := newClient(t)
	v := createSession(t, ts, c, "")
	base := ts.URL + "/api/sessions/" + v.ID

	resp, data := call(t, c, http.MethodPost, base+"/country", map[string]string{"action": "open"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeView(t, data).CountryOpen)

	resp, data = call(t, c, http.MethodPost, base+"/country", map[string]string{"country": "gb"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	v = decodeView(t, data)
	assert.Equal(t, "GB", v.PhoneCountry)
	assert.False(t, v.CountryOpen, "selection closes the picker")

	resp, data = call(t, c, http.MethodPost, base+"/country", map[string]string{"country": "XX"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "unknown_country", decodeError(t, data).Error)

	resp, _ = call(t, c, http.MethodPost, base+"/country", map[string]string{"action": "wiggle"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestModal(t *testing.T) {
	ts := newTestServer(t, nil)
	c := newClient(t)
	v := createSession(t, ts, c, "")
	base := ts.URL + "/api/sessions/" + v.ID

	resp, data := call(t, c, http.MethodPost, base+"/modal", map[string]any{"name": "get-started", "open": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	v = decodeView(t, data)
	assert.Equal(t, []string{"get-started"}, v.Modals)
	assert.True(t, v.BodyScrollLocked)

	resp, data = call(t, c, http.MethodPost, base+"/modal", map[string]any{"name": "get-started", "open": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decodeView(t, data).BodyScrollLocked)

	call(t, c, http.MethodPost, base+"/modal", map[string]any{"name": "get-started", "open": true})
	call(t, c, http.MethodPost, base+"/modal", map[string]any{"name": "privacy", "action": "open"})
	resp, data = call(t, c, http.MethodPost, base+"/modal", map[string]any{"action": "escape"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	v = decodeView(t, data)
	assert.Equal(t, "get-started", v.ActiveModal)
	assert.True(t, v.BodyScrollLocked)

	resp, data = call(t, c, http.MethodPost, base+"/modal", map[string]any{"action": "close_all"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeView(t, data).Modals)

	resp, _ = call(t, c, http.MethodPost, base+"/modal", map[string]any{"open": true})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = call(t, c, http.MethodPost, base+"/modal", map[string]any{"action": "wiggle"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteSession(t *testing.T) {
	ts := newTestServer(t, nil)
	c := newClient(t)
	v := createSession(t, ts, c, "")
	base := ts.URL + "/api/sessions/" + v.ID

	resp, _ := call(t, newClient(t), http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "only the owner can discard")

	resp, _ = call(t, c, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{v.ID}, ts.streams.Closed())

	resp, _ = call(t, c, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMutate_SessionBusy(t *testing.T) {
	ts := newTestServer(t, nil)
	c := newClient(t)
	v := createSession(t, ts, c, "")

	unlock, ok := ts.handler.lock(v.ID)
	require.True(t, ok)
	resp, data := call(t, c, http.MethodPost, ts.URL+"/api/sessions/"+v.ID+"/advance", nil)
	unlock()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "session_busy", decodeError(t, data).Error)
}

func (h *Handler) heldLocks() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.busy)
}

func TestLocks_ReleasedAfterEveryRequest(t *testing.T) {
	ts := newTestServer(t, nil)
	c := newClient(t)

	for i := range 50 {
		resp, _ := call(t, c, http.MethodPost, ts.URL+"/api/sessions/missing-"+strconv.Itoa(i)+"/back", nil)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	}
	assert.Zero(t, ts.handler.heldLocks(), "missing sessions leave no lock behind")

	v := createSession(t, ts, c, "?name=Ada")
	resp, _ := call(t, c, http.MethodPost, ts.URL+"/api/sessions/"+v.ID+"/advance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = call(t, c, http.MethodDelete, ts.URL+"/api/sessions/"+v.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Zero(t, ts.handler.heldLocks())

	unlock, ok := ts.handler.lock("a")
	require.True(t, ok)
	_, ok = ts.handler.lock("a")
	assert.False(t, ok, "a held session cannot be locked twice")
	unlock()
	unlock, ok = ts.handler.lock("a")
	require.True(t, ok)
	unlock()
}

func TestForms(t *testing.T) {
	ts := newTestServer(t, nil)
	c := newClient(t)

	resp, data := call(t, c, http.MethodGet, ts.URL+"/api/forms", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Forms []formSummary `json:"forms"`
	}
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list.Forms, 1)
	assert.Equal(t, formSummary{Slug: "consulting", Title: "Digital consulting", Stages: 5}, list.Forms[0])

	resp, data = call(t, c, http.MethodGet, ts.URL+"/api/forms/consulting", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, string(data), "hooks.example.com", "webhook endpoints stay private")
	assert.Contains(t, string(data), `"requireChallenge":true`)

	resp, _ = call(t, c, http.MethodGet, ts.URL+"/api/forms/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCountries(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, data := call(t, newClient(t), http.MethodGet, ts.URL+"/api/countries", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Countries []struct {
			Code        string `json:"code"`
			Name        string `json:"name"`
			CallingCode int    `json:"calling_code"`
		} `json:"countries"`
		Default string `json:"default"`
	}
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "ZA", body.Default)

	found := false
	for _, r := range body.Countries {
		if r.Code == "ZA" {
			found = true
			assert.Equal(t, 27, r.CallingCode)
			assert.Equal(t, "South Africa", r.Name)
		}
	}
	assert.True(t, found, "ZA is listed")
}

func TestRevealSource(t *testing.T) {
	ts := newTestServer(t, nil)
	c := newClient(t)
	v := createSession(t, ts, c, "")
	s, err := ts.handler.repo.GetSession(context.Background(), v.ID)
	require.NoError(t, err)
	ctx := context.Background()

	p, err := ts.handler.CurrentPrompt(ctx, v.ID, s.VisitorID)
	require.NoError(t, err)
	assert.Equal(t, "identity", p.StageID)
	assert.Equal(t, "Who are we talking to?", p.Text)
	assert.False(t, p.Revealed)

	require.NoError(t, ts.handler.MarkRevealed(ctx, v.ID, s.VisitorID, "identity"))
	p, err = ts.handler.CurrentPrompt(ctx, v.ID, s.VisitorID)
	require.NoError(t, err)
	assert.True(t, p.Revealed)

	_, err = ts.handler.CurrentPrompt(ctx, v.ID, "v_someoneelse")
	assert.ErrorIs(t, err, store.ErrNotFound)

	unlock, ok := ts.handler.lock(v.ID)
	require.True(t, ok)
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, ts.handler.MarkRevealed(cctx, v.ID, s.VisitorID, "identity"), context.Canceled)
	unlock()
}

func TestHealth(t *testing.T) {
	h := NewHealthHandler(store.NewMemory(), 1)
	r := chi.NewRouter()
	h.RegisterHealth(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
}

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"sort"

	"github.com/bytedance/sonic"
	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/go-chi/chi/v5"

	"github.com/tenxafrica/intake/internal/domain"
	"github.com/tenxafrica/intake/internal/engine"
	"github.com/tenxafrica/intake/internal/identity"
	"github.com/tenxafrica/intake/internal/ui"
)

// multipartFilesKey is the form key file picks are sent under.
const multipartFilesKey = "files"

// GetSession returns the render state of a session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eng, s, err := h.load(ctx, chi.URLParam(r, "id"), identity.VisitorIDFromContext(ctx))
	if err != nil {
		h.fail(w, nil, nil, err)
		return
	}
	JSON(w, http.StatusOK, eng.View(s))
}

// DeleteSession discards a session and ends its streams.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	unlock, ok := h.lock(id)
	if !ok {
		h.fail(w, nil, nil, errSessionBusy)
		return
	}
	if _, _, err := h.load(ctx, id, identity.VisitorIDFromContext(ctx)); err != nil {
		unlock()
		h.fail(w, nil, nil, err)
		return
	}
	err := h.repo.DeleteSession(ctx, id)
	unlock()
	if err != nil {
		slog.Error("Failed to delete session", "error", err, "session_id", id)
		Error(w, http.StatusInternalServerError, "delete_failed")
		return
	}
	if h.opts.Streams != nil {
		h.opts.Streams.CloseSession(id)
	}

	slog.Info("Session discarded", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

type valueRequest struct {
	Value string `json:"value"`
}

// SetValue stores the value of one field.
func (h *Handler) SetValue(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, nil, nil, badRequest(err))
		return
	}
	field := chi.URLParam(r, "field")
	h.mutate(w, r, func(_ context.Context, eng *engine.Engine, s *domain.Session) error {
		return eng.SetValue(s, field, req.Value)
	})
}

// PatchValues applies an RFC 6902 patch to the session's values. The patch is
// all or nothing: one rejected field leaves every value unchanged.
func (h *Handler) PatchValues(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	if err != nil {
		h.fail(w, nil, nil, badRequest(err))
		return
	}
	patch, err := jsonpatch.DecodePatch(body)
	if err != nil {
		h.fail(w, nil, nil, badRequest(err))
		return
	}

	h.mutate(w, r, func(_ context.Context, eng *engine.Engine, s *domain.Session) error {
		changed, err := patchValues(s.Values, patch)
		if err != nil {
			return err
		}
		next, err := cloneSession(s)
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(changed))
		for k := range changed {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := eng.SetValue(next, k, changed[k]); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
		}
		*s = *next
		return nil
	})
}

// patchValues returns the values the patch changes. Removed keys map to "".
func patchValues(values map[string]string, patch jsonpatch.Patch) (map[string]string, error) {
	doc, err := sonic.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("encode values: %w", err)
	}
	out, err := patch.Apply(doc)
	if err != nil {
		return nil, badRequest(err)
	}
	var patched map[string]string
	if err := sonic.Unmarshal(out, &patched); err != nil {
		return nil, badRequest(fmt.Errorf("values must be strings: %w", err))
	}

	changed := make(map[string]string)
	for k, v := range patched {
		if values[k] != v {
			changed[k] = v
		}
	}
	for k, v := range values {
		if _, ok := patched[k]; !ok && v != "" {
			changed[k] = ""
		}
	}
	return changed, nil
}

func cloneSession(s *domain.Session) (*domain.Session, error) {
	data, err := sonic.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	var c domain.Session
	if err := sonic.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	c.EnsureMaps()
	return &c, nil
}

// SetFiles replaces the picked files of a file field. Files arrive as
// multipart parts under the "files" key; an empty pick clears the field.
func (h *Handler) SetFiles(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
		h.fail(w, nil, nil, badRequest(err))
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			slog.Debug("Failed to remove multipart temp files", "error", err)
		}
	}()

	files, err := readFiles(r)
	if err != nil {
		h.fail(w, nil, nil, badRequest(err))
		return
	}
	field := chi.URLParam(r, "field")
	h.mutate(w, r, func(_ context.Context, eng *engine.Engine, s *domain.Session) error {
		_, err := eng.SetFiles(s, field, files)
		return err
	})
}

func readFiles(r *http.Request) ([]domain.File, error) {
	headers := r.MultipartForm.File[multipartFilesKey]
	files := make([]domain.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
		}
		content, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
		}

		mimeType := fh.Header.Get("Content-Type")
		if mimeType == "" || mimeType == "application/octet-stream" {
			if byExt := mime.TypeByExtension(filepath.Ext(fh.Filename)); byExt != "" {
				mimeType = byExt
			}
		}
		files = append(files, domain.File{
			Name:     fh.Filename,
			MIMEType: mimeType,
			Size:     fh.Size,
			Content:  content,
		})
	}
	return files, nil
}

// Toggle opts an optional field out of or back into the form.
func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Off bool `json:"off"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, nil, nil, badRequest(err))
		return
	}
	field := chi.URLParam(r, "field")
	h.mutate(w, r, func(_ context.Context, eng *engine.Engine, s *domain.Session) error {
		return eng.Toggle(s, field, req.Off)
	})
}

// Select records a choice. Auto-advancing stages move on once it is valid.
func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, nil, nil, badRequest(err))
		return
	}
	field := chi.URLParam(r, "field")
	h.mutate(w, r, func(ctx context.Context, eng *engine.Engine, s *domain.Session) error {
		advanced, err := eng.Select(ctx, s, field, req.Value)
		if advanced {
			slog.Debug("Stage auto-advanced", "session_id", s.ID, "stage", s.CurrentStage)
		}
		return err
	})
}

// BlurPhone canonicalises a phone field, "phone" unless the body names one.
func (h *Handler) BlurPhone(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Field string `json:"field"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, nil, nil, badRequest(err))
		return
	}
	if req.Field == "" {
		req.Field = "phone"
	}
	h.mutate(w, r, func(_ context.Context, eng *engine.Engine, s *domain.Session) error {
		return eng.BlurPhone(s, req.Field)
	})
}

var pickerActions = map[ui.DisclosureAction]bool{
	ui.ActionOpen:    true,
	ui.ActionClose:   true,
	ui.ActionToggle:  true,
	ui.ActionDismiss: true,
}

// Country selects the phone region, or drives the country picker when the
// body carries an action instead.
func (h *Handler) Country(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Country string              `json:"country"`
		Action  ui.DisclosureAction `json:"action"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, nil, nil, badRequest(err))
		return
	}
	if req.Country == "" && !pickerActions[req.Action] {
		h.fail(w, nil, nil, badRequest(errors.New("need a country or a picker action")))
		return
	}
	h.mutate(w, r, func(_ context.Context, eng *engine.Engine, s *domain.Session) error {
		if req.Country != "" {
			return eng.SetCountry(s, req.Country)
		}
		return eng.CountryPicker(s, req.Action)
	})
}

// Advance moves past the active stage.
func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(ctx context.Context, eng *engine.Engine, s *domain.Session) error {
		return eng.Advance(ctx, s)
	})
}

// Back returns to the previous stage.
func (h *Handler) Back(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(_ context.Context, eng *engine.Engine, s *domain.Session) error {
		return eng.Back(s)
	})
}

// AcknowledgeDuplicate continues past a flagged email.
func (h *Handler) AcknowledgeDuplicate(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(_ context.Context, eng *engine.Engine, s *domain.Session) error {
		return eng.AcknowledgeDuplicate(s)
	})
}

// Challenge receives the verification widget's token.
func (h *Handler) Challenge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, nil, nil, badRequest(err))
		return
	}
	h.mutate(w, r, func(_ context.Context, eng *engine.Engine, s *domain.Session) error {
		return eng.SetChallengeToken(s, req.Token)
	})
}

// Submit posts the completed session. A failed transmission is reported in
// the view's result, not as an HTTP error.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(ctx context.Context, eng *engine.Engine, s *domain.Session) error {
		res, err := eng.Submit(ctx, s)
		if err != nil {
			return err
		}
		slog.Info("Session submitted", "session_id", s.ID, "form", s.FormSlug, "outcome", res.Outcome, "kind", res.Kind)
		return nil
	})
}

// Restart resets the session to its first stage.
func (h *Handler) Restart(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(_ context.Context, eng *engine.Engine, s *domain.Session) error {
		eng.Restart(s)
		if h.opts.Streams != nil {
			h.opts.Streams.CloseSession(s.ID)
		}
		return nil
	})
}

// RevealComplete records that a stage prompt finished revealing.
func (h *Handler) RevealComplete(w http.ResponseWriter, r *http.Request) {
	stage := chi.URLParam(r, "stage")
	h.mutate(w, r, func(_ context.Context, eng *engine.Engine, s *domain.Session) error {
		return eng.RevealComplete(s, stage)
	})
}

var modalActions = map[ui.ModalAction]bool{
	ui.ModalOpen:     true,
	ui.ModalClose:    true,
	ui.ModalEscape:   true,
	ui.ModalCloseAll: true,
}

// Modal opens or closes a named modal. Without an action, open picks between
// opening and closing; "escape" closes the topmost modal.
func (h *Handler) Modal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string         `json:"name"`
		Open   bool           `json:"open"`
		Action ui.ModalAction `json:"action"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, nil, nil, badRequest(err))
		return
	}
	if req.Action == "" {
		req.Action = ui.ModalClose
		if req.Open {
			req.Action = ui.ModalOpen
		}
	}
	if !modalActions[req.Action] {
		h.fail(w, nil, nil, badRequest(fmt.Errorf("unknown modal action %q", req.Action)))
		return
	}
	if req.Name == "" && (req.Action == ui.ModalOpen || req.Action == ui.ModalClose) {
		h.fail(w, nil, nil, badRequest(errors.New("modal name is required")))
		return
	}
	h.mutate(w, r, func(_ context.Context, eng *engine.Engine, s *domain.Session) error {
		return eng.SetModal(s, req.Action, req.Name)
	})
}

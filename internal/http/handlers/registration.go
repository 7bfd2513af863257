package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/partsplit-prereg/internal/registration"
	"github.com/wolfman30/partsplit-prereg/pkg/logging"
)

const defaultMaxUploadBytes int64 = 10 << 20

// SessionStore hands out one registration flow per visitor.
type SessionStore interface {
	Open(variantName string) (string, *registration.Flow, error)
	Get(id string) (*registration.Flow, error)
	Close(ctx context.Context, id string) error
}

// PreviewReader serves a selected asset back to the page before submission.
type PreviewReader interface {
	Get(ctx context.Context, ref string) ([]byte, string, error)
}

// RegistrationHandler exposes registration flows over HTTP.
type RegistrationHandler struct {
	sessions  SessionStore
	previews  PreviewReader
	maxUpload int64
	logger    *logging.Logger
}

// NewRegistrationHandler creates the handler. previews may be nil, in which
// case preview requests return 404.
func NewRegistrationHandler(sessions SessionStore, previews PreviewReader, maxUpload int64, logger *logging.Logger) *RegistrationHandler {
	if sessions == nil {
		panic("handlers: session store required")
	}
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RegistrationHandler{sessions: sessions, previews: previews, maxUpload: maxUpload, logger: logger}
}

type createSessionRequest struct {
	Variant string `json:"variant"`
}

type sessionResponse struct {
	SessionID string             `json:"session_id"`
	State     registration.State `json:"state"`
}

type submitRequest struct {
	Contact     string `json:"contact"`
	ContactMode string `json:"contact_mode"`
	Consent     bool   `json:"consent"`
}

type submitResponse struct {
	State            registration.State `json:"state"`
	SubmittedContact string             `json:"submitted_contact"`
	ImageURL         string             `json:"image_url,omitempty"`
	Confirmed        bool               `json:"confirmed"`
}

type phoneFormatResponse struct {
	Digits  string `json:"digits"`
	Display string `json:"display"`
	Valid   bool   `json:"valid"`
}

// CreateSession opens a flow for one form on the page.
// POST /api/sessions
func (h *RegistrationHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, 4<<10)).Decode(&req); err != nil {
			jsonError(w, "invalid_json", http.StatusBadRequest)
			return
		}
	}
	id, flow, err := h.sessions.Open(req.Variant)
	if errors.Is(err, registration.ErrUnknownVariant) {
		jsonError(w, "unknown_variant", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.logger.Error("failed to open registration session", "error", err, "variant", req.Variant)
		jsonError(w, "internal", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{SessionID: id, State: flow.State()})
}

// GetSession returns the current form state.
// GET /api/sessions/{id}
func (h *RegistrationHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, flow, ok := h.flow(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: id, State: flow.State()})
}

// DeleteSession tears the flow down and releases its preview.
// DELETE /api/sessions/{id}
func (h *RegistrationHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PutAsset selects (or replaces) the character image.
// PUT /api/sessions/{id}/asset
func (h *RegistrationHandler) PutAsset(w http.ResponseWriter, r *http.Request) {
	id, flow, ok := h.flow(w, r)
	if !ok {
		return
	}
	if err := h.parseMultipart(w, r); err != nil {
		jsonError(w, "invalid_form", http.StatusBadRequest)
		return
	}
	file, err := h.readAsset(r)
	if err != nil || file == nil {
		h.writeError(w, registration.ErrInvalidAsset, flow.State().Mode)
		return
	}
	if err := flow.SelectAsset(r.Context(), *file); err != nil {
		h.writeError(w, err, flow.State().Mode)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: id, State: flow.State()})
}

// DeleteAsset clears the selected image.
// DELETE /api/sessions/{id}/asset
func (h *RegistrationHandler) DeleteAsset(w http.ResponseWriter, r *http.Request) {
	id, flow, ok := h.flow(w, r)
	if !ok {
		return
	}
	if err := flow.RemoveAsset(r.Context()); err != nil {
		h.writeError(w, err, flow.State().Mode)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: id, State: flow.State()})
}

// Submit validates and sends the form. Accepts JSON or multipart with an
// optional file part.
// POST /api/sessions/{id}/submit
func (h *RegistrationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	_, flow, ok := h.flow(w, r)
	if !ok {
		return
	}
	in, err := h.decodeSubmit(w, r)
	if err != nil {
		jsonError(w, "invalid_form", http.StatusBadRequest)
		return
	}

	// The submission outlives a client disconnect; the flow bounds each step.
	outcome, err := flow.Submit(context.WithoutCancel(r.Context()), in)
	if err != nil {
		mode := in.Mode
		if mode == "" {
			mode = flow.State().Mode
		}
		h.writeError(w, err, mode)
		return
	}

	state := flow.State()
	writeJSON(w, http.StatusCreated, submitResponse{
		State:            state,
		SubmittedContact: state.SubmittedContact,
		ImageURL:         outcome.Record.ImageURL,
		Confirmed:        outcome.Confirmed,
	})
}

// Reset returns the form to its initial state.
// POST /api/sessions/{id}/reset
func (h *RegistrationHandler) Reset(w http.ResponseWriter, r *http.Request) {
	id, flow, ok := h.flow(w, r)
	if !ok {
		return
	}
	if err := flow.Reset(r.Context()); err != nil {
		h.writeError(w, err, flow.State().Mode)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: id, State: flow.State()})
}

// GetPreview streams a selected image back to the page.
// GET /api/previews/{ref}
func (h *RegistrationHandler) GetPreview(w http.ResponseWriter, r *http.Request) {
	if h.previews == nil {
		jsonError(w, "preview_not_found", http.StatusNotFound)
		return
	}
	data, contentType, err := h.previews.Get(r.Context(), chi.URLParam(r, "ref"))
	if errors.Is(err, registration.ErrPreviewNotFound) {
		jsonError(w, "preview_not_found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to read preview", "error", err)
		jsonError(w, "internal", http.StatusInternalServerError)
		return
	}
	writeBlob(w, data, contentType, "private, no-store")
}

// FormatPhone mirrors the page's as-you-type phone formatting.
// GET /api/phone/format?value=
func (h *RegistrationHandler) FormatPhone(w http.ResponseWriter, r *http.Request) {
	digits := registration.LimitPhoneDigits(r.URL.Query().Get("value"))
	writeJSON(w, http.StatusOK, phoneFormatResponse{
		Digits:  digits,
		Display: registration.FormatPhoneDisplay(digits),
		Valid:   registration.ValidatePhone(digits),
	})
}

func (h *RegistrationHandler) flow(w http.ResponseWriter, r *http.Request) (string, *registration.Flow, bool) {
	id := chi.URLParam(r, "id")
	flow, err := h.sessions.Get(id)
	if err != nil {
		h.writeError(w, err, "")
		return "", nil, false
	}
	return id, flow, true
}

func (h *RegistrationHandler) decodeSubmit(w http.ResponseWriter, r *http.Request) (registration.Input, error) {
	var in registration.Input
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "multipart/form-data", "application/x-www-form-urlencoded":
		if mediaType == "multipart/form-data" {
			if err := h.parseMultipart(w, r); err != nil {
				return in, err
			}
		} else if err := r.ParseForm(); err != nil {
			return in, err
		}
		in.Contact = r.FormValue("contact")
		in.ConsentGiven = parseConsent(r.FormValue("consent"))
		in.Mode = parseMode(r.FormValue("contact_mode"))
		if mediaType == "multipart/form-data" {
			asset, err := h.readAsset(r)
			if err != nil {
				return in, err
			}
			in.Asset = asset
		}
	default:
		var req submitRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 16<<10)).Decode(&req); err != nil {
			return in, err
		}
		in.Contact, in.Mode, in.ConsentGiven = req.Contact, parseMode(req.ContactMode), req.Consent
	}
	return in, nil
}

func (h *RegistrationHandler) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+(1<<20))
	return r.ParseMultipartForm(h.maxUpload)
}

// readAsset returns the "file" part, or nil when the form has none.
func (h *RegistrationHandler) readAsset(r *http.Request) (*registration.AssetFile, error) {
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUpload+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > h.maxUpload {
		return nil, fmt.Errorf("handlers: file exceeds %d bytes", h.maxUpload)
	}
	return &registration.AssetFile{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (h *RegistrationHandler) writeError(w http.ResponseWriter, err error, mode registration.ContactMode) {
	switch {
	case errors.Is(err, registration.ErrSessionNotFound):
		jsonError(w, "session_not_found", http.StatusNotFound)
		return
	case errors.Is(err, registration.ErrFlowClosed):
		jsonError(w, registration.ReasonCode(err), http.StatusGone)
		return
	}

	status := http.StatusInternalServerError
	switch {
	case registration.IsValidationError(err):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, registration.ErrAlreadyInProgress):
		status = http.StatusConflict
	case errors.Is(err, registration.ErrUploadFailed), errors.Is(err, registration.ErrPersistFailed):
		status = http.StatusBadGateway
	default:
		h.logger.Error("unexpected registration error", "error", err)
	}
	writeJSON(w, status, errorBody{
		Error:   registration.ReasonCode(err),
		Message: registration.UserMessage(err, mode),
	})
}

// parseMode passes unknown modes through so the flow rejects them as an invalid contact.
func parseMode(raw string) registration.ContactMode {
	if mode, ok := registration.ParseContactMode(raw); ok {
		return mode
	}
	return registration.ContactMode(strings.TrimSpace(raw))
}

func parseConsent(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on", "yes":
		return true
	}
	ok, _ := strconv.ParseBool(raw)
	return ok
}

func writeBlob(w http.ResponseWriter, data []byte, contentType, cacheControl string) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", cacheControl)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

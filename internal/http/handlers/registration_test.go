package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/partsplit-prereg/internal/registration"
	"github.com/wolfman30/partsplit-prereg/internal/storage/objects"
	"github.com/wolfman30/partsplit-prereg/internal/storage/records"
	"github.com/wolfman30/partsplit-prereg/pkg/logging"
)

type testEnv struct {
	handler  *RegistrationHandler
	sessions *registration.Sessions
	objects  *objects.MemoryStore
	records  *records.MemoryStore
	previews *registration.MemoryPreviews
}

func newTestEnv(t *testing.T, recordStore registration.RecordStore, objectStore registration.ObjectStore) *testEnv {
	t.Helper()
	env := &testEnv{
		objects:  objects.NewMemoryStore("http://localhost/uploads"),
		records:  records.NewMemoryStore(),
		previews: registration.NewMemoryPreviews(),
	}
	if recordStore == nil {
		recordStore = env.records
	}
	if objectStore == nil {
		objectStore = env.objects
	}
	logger := logging.New("error")
	env.sessions = registration.NewSessions(func(v registration.Variant) (*registration.Flow, error) {
		return registration.NewFlow(v, registration.Collaborators{
			Objects:  objectStore,
			Records:  recordStore,
			Previews: env.previews,
		}, registration.WithLogger(logger))
	}, 0, logger)
	env.handler = NewRegistrationHandler(env.sessions, env.previews, 1<<20, logger)
	return env
}

func (e *testEnv) router() http.Handler {
	r := chi.NewRouter()
	r.Post("/api/sessions", e.handler.CreateSession)
	r.Get("/api/sessions/{id}", e.handler.GetSession)
	r.Delete("/api/sessions/{id}", e.handler.DeleteSession)
	r.Put("/api/sessions/{id}/asset", e.handler.PutAsset)
	r.Delete("/api/sessions/{id}/asset", e.handler.DeleteAsset)
	r.Post("/api/sessions/{id}/submit", e.handler.Submit)
	r.Post("/api/sessions/{id}/reset", e.handler.Reset)
	r.Get("/api/previews/{ref}", e.handler.GetPreview)
	r.Get("/api/phone/format", e.handler.FormatPhone)
	return r
}

func (e *testEnv) open(t *testing.T, variant string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/sessions", "application/json", strings.NewReader(`{"variant":"`+variant+`"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)
	return resp.SessionID
}

func (e *testEnv) do(t *testing.T, method, target, contentType string, body *strings.Reader) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, body)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.router().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) doMultipart(t *testing.T, method, target string, fields map[string]string, fileName, fileType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if data != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
		h.Set("Content-Type", fileType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	e.router().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func TestCreateAndGetSession(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	id := env.open(t, "hero_reserve")

	rec := env.do(t, http.MethodGet, "/api/sessions/"+id, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, registration.PhaseIdle, resp.State.Phase)
	assert.Equal(t, "hero_reserve", resp.State.Variant)
}

func TestCreateSessionDefaultsToEarlyAccess(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec := env.do(t, http.MethodPost, "/api/sessions", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"variant":"early_access"`)
}

func TestCreateSessionUnknownVariant(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec := env.do(t, http.MethodPost, "/api/sessions", "application/json", strings.NewReader(`{"variant":"newsletter"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown_variant", decodeError(t, rec).Error)
}

func TestGetSessionNotFound(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec := env.do(t, http.MethodGet, "/api/sessions/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "session_not_found", decodeError(t, rec).Error)
}

func TestSubmitEarlyAccessJSON(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	id := env.open(t, "early_access")

	rec := env.do(t, http.MethodPost, "/api/sessions/"+id+"/submit", "application/json",
		strings.NewReader(`{"contact":"  Fan@Example.com ","consent":true}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp submitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, registration.PhaseSuccess, resp.State.Phase)
	assert.Equal(t, "fan@example.com", resp.SubmittedContact)
	assert.True(t, resp.Confirmed)

	stored, err := env.records.List(context.Background(), records.ListFilter{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "fan@example.com", stored[0].Email)
}

func TestSubmitValidationErrors(t *testing.T) {
	cases := []struct {
		name    string
		variant string
		body    string
		code    string
		message string
	}{
		{"missing contact", "early_access", `{"contact":"  ","consent":true}`, "missing_contact", "이메일을 입력해주세요"},
		{"invalid email", "early_access", `{"contact":"user@.com","consent":true}`, "invalid_contact", "올바른 이메일 형식이 아닙니다"},
		{"consent required", "early_access", `{"contact":"a@b.co"}`, "consent_required", "개인정보 수집 및 이용에 동의해주세요"},
		{"invalid phone", "hero_reserve", `{"contact":"010-123","contact_mode":"phone","consent":true}`, "invalid_contact", "올바른 전화번호 형식이 아닙니다 (10-11자리)"},
		{"mode not offered", "early_access", `{"contact":"01012345678","contact_mode":"phone","consent":true}`, "invalid_contact", ""},
		{"asset required", "demo_request", `{"contact":"a@b.co"}`, "invalid_asset", "이미지와 연락처를 모두 입력해주세요."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, nil, nil)
			id := env.open(t, tc.variant)

			rec := env.do(t, http.MethodPost, "/api/sessions/"+id+"/submit", "application/json", strings.NewReader(tc.body))
			require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
			body := decodeError(t, rec)
			assert.Equal(t, tc.code, body.Error)
			if tc.message != "" {
				assert.Equal(t, tc.message, body.Message)
			}
			assert.Equal(t, 0, env.records.Len())
		})
	}
}

func TestSubmitHeroReservePhoneForm(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	id := env.open(t, "hero_reserve")

	rec := env.doMultipart(t, http.MethodPost, "/api/sessions/"+id+"/submit",
		map[string]string{"contact": "010-1234-5678", "contact_mode": "phone", "consent": "on"}, "", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp submitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "01012345678", resp.SubmittedContact)
}

func TestSubmitDemoRequestWithFile(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	id := env.open(t, "demo_request")

	rec := env.doMultipart(t, http.MethodPost, "/api/sessions/"+id+"/submit",
		map[string]string{"contact": "artist@studio.kr"}, "hero.png", "image/png", testPNG(t))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp submitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.ImageURL, "http://localhost/uploads/"))
	assert.True(t, strings.HasSuffix(resp.ImageURL, ".png"))
	assert.Equal(t, 1, env.objects.Len())
}

func TestSubmitDemoRequestSniffsUntypedFile(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	id := env.open(t, "demo_request")

	rec := env.doMultipart(t, http.MethodPost, "/api/sessions/"+id+"/submit",
		map[string]string{"contact": "artist@studio.kr"}, "upload", "", testPNG(t))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 1, env.objects.Len())
}

func TestPutAssetThenPreviewThenSubmit(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	id := env.open(t, "demo_request")
	data := testPNG(t)

	rec := env.doMultipart(t, http.MethodPut, "/api/sessions/"+id+"/asset", nil, "hero.png", "image/png", data)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.State.Asset)

	rec = env.do(t, http.MethodGet, "/api/previews/"+resp.State.Asset.PreviewRef, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, data, rec.Body.Bytes())

	rec = env.do(t, http.MethodPost, "/api/sessions/"+id+"/submit", "application/json", strings.NewReader(`{"contact":"a@b.co"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 0, env.previews.Len(), "preview released after success")
}

func TestPutAssetRejectsUnsupportedType(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	id := env.open(t, "demo_request")

	rec := env.doMultipart(t, http.MethodPut, "/api/sessions/"+id+"/asset", nil, "notes.txt", "text/plain", []byte("hello"))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "unsupported_asset_type", body.Error)
	assert.Equal(t, "PNG 또는 JPG 파일만 업로드 가능합니다.", body.Message)
}

func TestPutAssetMissingFile(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	id := env.open(t, "demo_request")

	rec := env.doMultipart(t, http.MethodPut, "/api/sessions/"+id+"/asset", map[string]string{"x": "y"}, "", "", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_asset", decodeError(t, rec).Error)
}

func TestDeleteAsset(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	id := env.open(t, "demo_request")
	rec := env.doMultipart(t, http.MethodPut, "/api/sessions/"+id+"/asset", nil, "hero.png", "image/png", testPNG(t))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/sessions/"+id+"/asset", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"asset"`)
	assert.Equal(t, 0, env.previews.Len())
}

type failingRecords struct{}

func (failingRecords) Insert(context.Context, registration.Record) error {
	return errors.New("connection refused")
}

func TestSubmitPersistFailure(t *testing.T) {
	env := newTestEnv(t, failingRecords{}, nil)
	id := env.open(t, "early_access")

	rec := env.do(t, http.MethodPost, "/api/sessions/"+id+"/submit", "application/json", strings.NewReader(`{"contact":"a@b.co","consent":true}`))
	require.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "persist_failed", body.Error)
	assert.Equal(t, "업로드 중 오류가 발생했습니다. 다시 시도해주세요.", body.Message)

	rec = env.do(t, http.MethodGet, "/api/sessions/"+id, "", nil)
	assert.Contains(t, rec.Body.String(), `"phase":"failed"`)
}

type blockingObjects struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingObjects) Put(ctx context.Context, _ string, _ []byte, _ string) error {
	close(b.started)
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *blockingObjects) PublicURL(key string) string { return "https://cdn.local/" + key }

func TestSubmitWhileInProgressConflicts(t *testing.T) {
	blocker := &blockingObjects{started: make(chan struct{}), release: make(chan struct{})}
	env := newTestEnv(t, nil, blocker)
	id := env.open(t, "demo_request")
	data := testPNG(t)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- env.doMultipart(t, http.MethodPost, "/api/sessions/"+id+"/submit",
			map[string]string{"contact": "a@b.co"}, "hero.png", "image/png", data)
	}()
	<-blocker.started

	rec := env.doMultipart(t, http.MethodPost, "/api/sessions/"+id+"/submit",
		map[string]string{"contact": "a@b.co"}, "hero.png", "image/png", data)
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "already_in_progress", body.Error)
	assert.Empty(t, body.Message)

	rec = env.do(t, http.MethodPost, "/api/sessions/"+id+"/reset", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(blocker.release)
	first := <-done
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, 1, env.records.Len())
}

func TestResetAfterSuccess(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	id := env.open(t, "early_access")
	rec := env.do(t, http.MethodPost, "/api/sessions/"+id+"/submit", "application/json", strings.NewReader(`{"contact":"a@b.co","consent":true}`))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/sessions/"+id+"/reset", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, registration.PhaseIdle, resp.State.Phase)
	assert.Empty(t, resp.State.SubmittedContact)
	assert.False(t, resp.State.ConsentGiven)
}

func TestDeleteSession(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	id := env.open(t, "early_access")

	rec := env.do(t, http.MethodDelete, "/api/sessions/"+id, "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/sessions/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetPreviewNotFound(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec := env.do(t, http.MethodGet, "/api/previews/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFormatPhone(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	cases := []struct {
		value   string
		display string
		valid   bool
	}{
		{"010", "010", false},
		{"0101234", "010-1234", false},
		{"010-1234-5678", "010-1234-5678", true},
		{"0101234567899", "010-1234-5678", true},
	}
	for _, tc := range cases {
		rec := env.do(t, http.MethodGet, "/api/phone/format?value="+tc.value, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp phoneFormatResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, tc.display, resp.Display, tc.value)
		assert.Equal(t, tc.valid, resp.Valid, tc.value)
	}
}

func TestParseConsent(t *testing.T) {
	for _, v := range []string{"on", "true", "1", "YES"} {
		assert.True(t, parseConsent(v), v)
	}
	for _, v := range []string{"", "off", "false", "0"} {
		assert.False(t, parseConsent(v), v)
	}
}

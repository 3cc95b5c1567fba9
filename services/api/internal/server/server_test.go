package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"gobarber/pkg/domain"
	"gobarber/pkg/storage"
	"gobarber/pkg/store"
	"gobarber/services/api/internal/app"
)

type recordingMail struct {
	sent []domain.CancellationMail
}

func (m *recordingMail) DispatchCancellation(_ context.Context, c domain.CancellationMail) error {
	m.sent = append(m.sent, c)
	return nil
}

type apiHarness struct {
	t    *testing.T
	url  string
	mail *recordingMail
}

func newHarness(t *testing.T, mutate ...func(*Config)) *apiHarness {
	t.Helper()
	mailer := &recordingMail{}
	now := time.Date(2024, 1, 10, 6, 0, 0, 0, time.UTC)
	core, err := app.New(app.Config{
		Store:     store.NewMemoryStore(),
		Objects:   storage.NewMemoryStore("http://files.local"),
		JWTSecret: "test-secret",
		Mail:      mailer,
		Now:       func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	redis := miniredis.RunT(t)
	cfg := Config{
		App:                      core,
		RedisAddr:                redis.Addr(),
		SignupRateLimitPerMinute: 100,
		LoginRateLimitPerMinute:  100,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })
	httpSrv := httptest.NewServer(srv.Router())
	t.Cleanup(httpSrv.Close)
	return &apiHarness{t: t, url: httpSrv.URL, mail: mailer}
}

func (h *apiHarness) do(method, path, token string, body any) (*http.Response, []byte) {
	h.t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			h.t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.url+path, reader)
	if err != nil {
		h.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

// signUp registers and logs in, returning the user id and token.
func (h *apiHarness) signUp(name, email string, provider bool) (int64, string) {
	h.t.Helper()
	resp, _ := h.do(http.MethodPost, "/users", "", map[string]any{
		"name": name, "email": email, "password": "secret1", "provider": provider,
	})
	if resp.StatusCode != http.StatusOK {
		h.t.Fatalf("register %s: status %d", email, resp.StatusCode)
	}
	resp, body := h.do(http.MethodPost, "/sessions", "", map[string]string{"email": email, "password": "secret1"})
	if resp.StatusCode != http.StatusOK {
		h.t.Fatalf("login %s: status %d", email, resp.StatusCode)
	}
	var session app.Session
	if err := json.Unmarshal(body, &session); err != nil {
		h.t.Fatalf("decode session: %v", err)
	}
	return session.User.ID, session.Token
}

func decodeError(t *testing.T, body []byte) errorResponse {
	t.Helper()
	var out errorResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode error body %q: %v", body, err)
	}
	return out
}

func TestAppointmentLifecycle(t *testing.T) {
	h := newHarness(t)
	_, clientToken := h.signUp("Ana", "ana@example.com", false)
	providerID, providerToken := h.signUp("Diego", "diego@example.com", true)

	resp, body := h.do(http.MethodPost, "/appointments", clientToken, map[string]any{
		"provider_id": providerID, "date": "2024-01-10T10:15:00Z",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create: status %d body %s", resp.StatusCode, body)
	}
	var appt domain.Appointment
	if err := json.Unmarshal(body, &appt); err != nil {
		t.Fatalf("decode appointment: %v", err)
	}
	if !appt.Date.Equal(time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("date = %v", appt.Date)
	}

	resp, body = h.do(http.MethodPost, "/appointments", clientToken, map[string]any{
		"provider_id": providerID, "date": "2024-01-10T10:40:00Z",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("double booking: expected 401, got %d", resp.StatusCode)
	}
	if e := decodeError(t, body); e.Error != "Date is not available." || e.Code != codeConflict {
		t.Fatalf("unexpected error body: %+v", e)
	}

	resp, body = h.do(http.MethodGet, "/appointments?page=1", clientToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: status %d", resp.StatusCode)
	}
	var listing []domain.AppointmentListing
	if err := json.Unmarshal(body, &listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(listing) != 1 || listing[0].Provider.Name != "Diego" {
		t.Fatalf("unexpected listing: %+v", listing)
	}

	resp, body = h.do(http.MethodGet, "/notifications", providerToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("notifications: status %d", resp.StatusCode)
	}
	var notes []domain.Notification
	if err := json.Unmarshal(body, &notes); err != nil {
		t.Fatalf("decode notifications: %v", err)
	}
	if len(notes) != 1 || notes[0].Content != "Novo agendamento de Ana para dia 10 de janeiro, às 10:00h" {
		t.Fatalf("unexpected notifications: %+v", notes)
	}
	resp, _ = h.do(http.MethodPut, fmt.Sprintf("/notifications/%d", notes[0].ID), providerToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mark read: status %d", resp.StatusCode)
	}

	path := fmt.Sprintf("/appointments/%d", appt.ID)
	resp, _ = h.do(http.MethodDelete, path, providerToken, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("foreign cancel: expected 401, got %d", resp.StatusCode)
	}
	resp, body = h.do(http.MethodDelete, path, clientToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel: status %d body %s", resp.StatusCode, body)
	}
	if len(h.mail.sent) != 1 || h.mail.sent[0].ProviderEmail != "diego@example.com" {
		t.Fatalf("expected cancellation mail, got %+v", h.mail.sent)
	}
	resp, body = h.do(http.MethodDelete, path, clientToken, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("re-cancel: expected 401, got %d", resp.StatusCode)
	}
	if e := decodeError(t, body); e.Code != codePolicy {
		t.Fatalf("re-cancel code = %q", e.Code)
	}
	resp, _ = h.do(http.MethodDelete, "/appointments/999", clientToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown appointment: expected 404, got %d", resp.StatusCode)
	}
}

func TestCreateAppointmentStatusCodes(t *testing.T) {
	h := newHarness(t)
	clientID, clientToken := h.signUp("Ana", "ana@example.com", false)
	providerID, _ := h.signUp("Diego", "diego@example.com", true)

	cases := []struct {
		name   string
		body   any
		status int
		errMsg string
	}{
		{"malformed json", `{"provider_id":`, http.StatusBadRequest, "Validation fails"},
		{"missing fields", map[string]any{}, http.StatusBadRequest, "Validation fails"},
		{"bad date", map[string]any{"provider_id": providerID, "date": "soon"}, http.StatusBadRequest, "Validation fails"},
		{"past date", map[string]any{"provider_id": providerID, "date": "2024-01-10T05:00:00Z"}, http.StatusUnauthorized, "Past dates are not permitted."},
		{"not a provider", map[string]any{"provider_id": clientID, "date": "2024-01-10T12:00:00Z"}, http.StatusUnauthorized, "You can only create appointments with providers."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := h.do(http.MethodPost, "/appointments", clientToken, tc.body)
			if resp.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d (body %s)", resp.StatusCode, tc.status, body)
			}
			e := decodeError(t, body)
			if e.Error != tc.errMsg {
				t.Fatalf("error = %q, want %q", e.Error, tc.errMsg)
			}
			if e.RequestID == "" || e.RequestID != resp.Header.Get("X-Request-Id") {
				t.Fatalf("request id not echoed: body=%q header=%q", e.RequestID, resp.Header.Get("X-Request-Id"))
			}
		})
	}
}

func TestAuthenticatedRoutesRequireToken(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(http.MethodGet, "/appointments", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", resp.StatusCode)
	}
	if e := decodeError(t, body); e.Code != codeUnauthorized {
		t.Fatalf("code = %q", e.Code)
	}
	resp, _ = h.do(http.MethodGet, "/appointments", "not-a-jwt", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("invalid token: expected 401, got %d", resp.StatusCode)
	}
	resp, _ = h.do(http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", resp.StatusCode)
	}
}

func TestNotificationsAreProviderOnly(t *testing.T) {
	h := newHarness(t)
	_, clientToken := h.signUp("Ana", "ana@example.com", false)

	resp, body := h.do(http.MethodGet, "/notifications", clientToken, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if e := decodeError(t, body); e.Error != "Only provider can load notifications." {
		t.Fatalf("error = %q", e.Error)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	h := newHarness(t)
	h.signUp("Ana", "ana@example.com", false)

	resp, body := h.do(http.MethodPost, "/users", "", map[string]any{
		"name": "Other", "email": "ana@example.com", "password": "secret1",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if e := decodeError(t, body); e.Error != "User already exists." {
		t.Fatalf("error = %q", e.Error)
	}
}

func TestUploadFileAndSetAvatar(t *testing.T) {
	h := newHarness(t)
	_, token := h.signUp("Diego", "diego@example.com", true)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "me.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write([]byte("png-bytes"))
	_ = mw.Close()

	req, _ := http.NewRequest(http.MethodPost, h.url+"/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload: status %d", resp.StatusCode)
	}
	var file domain.File
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		t.Fatalf("decode file: %v", err)
	}
	if file.Name != "me.png" || file.URL == "" {
		t.Fatalf("unexpected file: %+v", file)
	}

	updResp, body := h.do(http.MethodPut, "/users", token, map[string]any{"avatar_id": file.ID})
	if updResp.StatusCode != http.StatusOK {
		t.Fatalf("update profile: status %d body %s", updResp.StatusCode, body)
	}
	var user domain.User
	if err := json.Unmarshal(body, &user); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	if user.Avatar == nil || user.Avatar.URL != file.URL {
		t.Fatalf("avatar not applied: %+v", user.Avatar)
	}

	provResp, body := h.do(http.MethodGet, "/providers", token, nil)
	if provResp.StatusCode != http.StatusOK {
		t.Fatalf("providers: status %d", provResp.StatusCode)
	}
	var providers []domain.User
	if err := json.Unmarshal(body, &providers); err != nil {
		t.Fatalf("decode providers: %v", err)
	}
	if len(providers) != 1 || providers[0].Avatar == nil {
		t.Fatalf("unexpected providers: %+v", providers)
	}
}

func TestUploadFileTooLarge(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MaxUploadBytes = 64 })
	_, token := h.signUp("Diego", "diego@example.com", true)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "big.png")
	_, _ = part.Write(bytes.Repeat([]byte("x"), 1024))
	_ = mw.Close()

	req, _ := http.NewRequest(http.MethodPost, h.url+"/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized upload, got %d", resp.StatusCode)
	}
}

func TestRouterAppliesMiddleware(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.AllowedOrigins = []string{"https://app.gobarber.local"} })

	req, err := http.NewRequest(http.MethodOptions, h.url+"/appointments", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Origin", "https://app.gobarber.local")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight: expected 204, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.gobarber.local" {
		t.Fatalf("allow origin = %q", got)
	}

	resp, _ = h.do(http.MethodGet, "/appointments", "", nil)
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatalf("expected request id on rejected request")
	}
	if got := resp.Header.Get("Cache-Control"); got != "no-store" {
		t.Fatalf("Cache-Control = %q", got)
	}
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q", got)
	}
}

package server

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"

	"gobarber/pkg/storage"
	"gobarber/pkg/store"
	"gobarber/services/api/internal/app"
)

func TestLoginRateLimit(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.LoginRateLimitPerMinute = 1 })

	creds := map[string]string{"email": "nobody@example.com", "password": "secret1"}
	resp1, _ := h.do(http.MethodPost, "/sessions", "", creds)
	if resp1.StatusCode != http.StatusUnauthorized {
		t.Fatalf("first request expected 401, got %d", resp1.StatusCode)
	}

	resp2, body := h.do(http.MethodPost, "/sessions", "", creds)
	if resp2.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", resp2.StatusCode)
	}
	retry, err := strconv.Atoi(resp2.Header.Get("Retry-After"))
	if err != nil || retry < 1 || retry > 60 {
		t.Fatalf("unexpected Retry-After %q", resp2.Header.Get("Retry-After"))
	}
	if e := decodeError(t, body); e.Code != codeRateLimited {
		t.Fatalf("code = %q", e.Code)
	}
}

func TestServerRequiresRedisRateLimiter(t *testing.T) {
	core, err := app.New(app.Config{
		Store:     store.NewMemoryStore(),
		Objects:   storage.NewMemoryStore(""),
		JWTSecret: "s",
		Mail:      &recordingMail{},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if _, err := New(Config{App: core}); err == nil {
		t.Fatalf("expected redis-backed limiter initialization to fail without redis addr")
	}
}

func TestServerRejectsBadTrustedProxy(t *testing.T) {
	core, err := app.New(app.Config{
		Store:     store.NewMemoryStore(),
		Objects:   storage.NewMemoryStore(""),
		JWTSecret: "s",
		Mail:      &recordingMail{},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	_, err = New(Config{App: core, RedisAddr: "127.0.0.1:0", TrustedProxyCIDRs: []string{"not-a-cidr"}})
	if err == nil {
		t.Fatalf("expected invalid trusted proxy to fail")
	}
}

// lockedBuffer is written by handler goroutines and read by the test.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRepeatedLoginFailuresRaiseSecurityAlert(t *testing.T) {
	logs := &lockedBuffer{}
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	h := newHarness(t)
	creds := map[string]string{"email": "nobody@example.com", "password": "wrong-pass"}
	for i := 0; i < 10; i++ {
		resp, _ := h.do(http.MethodPost, "/sessions", "", creds)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, resp.StatusCode)
		}
	}
	if n := strings.Count(logs.String(), `"msg":"security_alert"`); n != 1 {
		t.Fatalf("expected one security_alert log line, got %d", n)
	}
}

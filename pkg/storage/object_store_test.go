package storage

import (
	"context"
	"strings"
	"testing"
)

func TestJoinURL(t *testing.T) {
	cases := []struct {
		base, key, want string
	}{
		{"https://cdn.example.com/", "avatars/a.png", "https://cdn.example.com/avatars/a.png"},
		{"https://cdn.example.com", "/avatars/my photo.png", "https://cdn.example.com/avatars/my%20photo.png"},
	}
	for _, tc := range cases {
		if got := JoinURL(tc.base, tc.key); got != tc.want {
			t.Fatalf("JoinURL(%q, %q) = %q, want %q", tc.base, tc.key, got, tc.want)
		}
	}
}

func TestMemoryStorePutURLDelete(t *testing.T) {
	s := NewMemoryStore("http://localhost:3333/files")
	ctx := context.Background()

	if err := s.Put(ctx, "avatars/x.png", strings.NewReader("png-bytes"), 9, "image/png"); err != nil {
		t.Fatalf("put: %v", err)
	}
	data, ct, ok := s.Get("avatars/x.png")
	if !ok || string(data) != "png-bytes" || ct != "image/png" {
		t.Fatalf("unexpected object: ok=%v data=%q ct=%q", ok, data, ct)
	}
	u, err := s.URL(ctx, "avatars/x.png")
	if err != nil || u != "http://localhost:3333/files/avatars/x.png" {
		t.Fatalf("url = %q err=%v", u, err)
	}
	if err := s.Delete(ctx, "avatars/x.png"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, ok := s.Get("avatars/x.png"); ok {
		t.Fatalf("object should be gone")
	}
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/vilaca/flatrest/internal/domain"
)

// TestOpen_WiresCacheAndStore tests the composition root with a config file.
// Follows AAA (Arrange, Act, Assert) pattern.
func TestOpen_WiresCacheAndStore(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	path := filepath.Join(dir, "flatrest.yaml")
	data := fmt.Sprintf("cache:\n  size: 8\nstore:\n  path: %s\n", filepath.Join(dir, "responses.db"))
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	g := &Globals{Config: path, BaseURL: "https://mirror.example.org", Format: "tsv", Strict: true}

	// Act
	a, err := g.open()

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer a.Close()
	if a.cache == nil || a.store == nil || a.service == nil {
		t.Fatalf("expected cache, store and service to be wired: %+v", a)
	}
	if a.cfg.BaseURL != "https://mirror.example.org" || !a.cfg.Strict {
		t.Errorf("flag overrides not applied: %+v", a.cfg)
	}
	if a.out.Format() != "tsv" {
		t.Errorf("expected tsv renderer, got %s", a.out.Format())
	}
}

func TestOpen_StoreWithoutMemoryCache(t *testing.T) {
	// Arrange
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("path:map00010\tGlycolysis\n"))
	}))
	defer srv.Close()
	dir := t.TempDir()
	path := filepath.Join(dir, "flatrest.yaml")
	data := fmt.Sprintf("cache:\n  size: 0\nstore:\n  path: %s\n", filepath.Join(dir, "responses.db"))
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	a, err := (&Globals{Config: path, BaseURL: srv.URL, Format: "json"}).open()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer a.Close()

	// Act
	_, err1 := a.cache.Fetch(context.Background(), srv.URL+"/list/pathway")
	_, err2 := a.cache.Fetch(context.Background(), srv.URL+"/list/pathway")

	// Assert
	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors %v %v", err1, err2)
	}
	stats := a.cache.Stats()
	if stats.Entries != 0 || stats.StoreHits != 1 {
		t.Errorf("expected the store to serve the repeat with no memory entries, got %+v", stats)
	}
}

func TestOpen_RejectsBadFlags(t *testing.T) {
	g := &Globals{BaseURL: "ftp://nowhere", Format: "json"}

	if _, err := g.open(); err == nil {
		t.Error("expected error for non-http base URL")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&domain.InvalidQueryError{Field: "resource"}, 2},
		{fmt.Errorf("get batch 1/1: %w", context.Canceled), 130},
		{&domain.RemoteRequestError{StatusCode: 500}, 1},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

package barkbackend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNotify(t *testing.T) {
	var gotPath, gotIcon string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotIcon = r.URL.Query().Get("icon")
	}))
	defer srv.Close()

	b := new(Backend)
	if err := b.Start(context.Background(), map[string]interface{}{"host": srv.URL}); err != nil {
		t.Fatal(err)
	}
	defer b.Stop()

	if err := b.Notify("device1", "job done", "ok: 1/1"); err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(gotPath, "/device1/") {
		t.Errorf("Expected the device key in the path, got %q", gotPath)
	}
	if !strings.Contains(gotPath, "job done") {
		t.Errorf("Expected the title in the path, got %q", gotPath)
	}
	if gotIcon == "" {
		t.Error("Expected an icon query parameter")
	}
}

func TestNotifyErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	b := new(Backend)
	if err := b.Start(context.Background(), map[string]interface{}{"host": srv.URL}); err != nil {
		t.Fatal(err)
	}
	defer b.Stop()

	if err := b.Notify("device1", "t", "b"); err == nil {
		t.Error("Expected an error for a non-2xx response")
	}
}

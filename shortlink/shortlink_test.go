package shortlink

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExpandRewritesResolvedLinks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/short", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final/abc", http.StatusFound)
	})
	mux.HandleFunc("/final/", func(w http.ResponseWriter, r *http.Request) {})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := New()
	r.Client = srv.Client()
	r.Recognized = func(u string) bool { return strings.Contains(u, "/final/") }

	text := "看这里 " + srv.URL + "/short 很好"
	got := r.Expand(context.Background(), text)
	want := "看这里 " + srv.URL + "/final/abc 很好"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestExpandLeavesUnresolvableLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Resolves, but never to a recognized provider.
	}))
	defer srv.Close()

	r := New()
	r.Client = srv.Client()
	r.Recognized = func(u string) bool { return false }

	text := "左 " + srv.URL + "/x 右 http://127.0.0.1:1/unreachable 完"
	if got := r.Expand(context.Background(), text); got != text {
		t.Errorf("Expected text to be unchanged, got %q", got)
	}
}

func TestExpandSkipsRecognizedLinks(t *testing.T) {
	// A recognized link must never be touched, so no request is made
	// for it at all.
	r := New()
	r.Recognized = func(u string) bool { return true }

	text := "https://pan.quark.cn/s/abc"
	if got := r.Expand(context.Background(), text); got != text {
		t.Errorf("Expected text to be unchanged, got %q", got)
	}
}

func TestExpandNoURLs(t *testing.T) {
	r := New()
	text := "没有链接的纯文本"
	if got := r.Expand(context.Background(), text); got != text {
		t.Errorf("Expected text to be unchanged, got %q", got)
	}
}

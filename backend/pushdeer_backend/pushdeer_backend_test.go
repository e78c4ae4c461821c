package pushdeerbackend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNotify(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		got = map[string]string{
			"path":    r.URL.Path,
			"pushkey": q.Get("pushkey"),
			"text":    q.Get("text"),
			"desp":    q.Get("desp"),
			"type":    q.Get("type"),
		}
	}))
	defer srv.Close()

	b := new(Backend)
	if err := b.Start(context.Background(), map[string]interface{}{"host": srv.URL}); err != nil {
		t.Fatal(err)
	}
	defer b.Stop()

	if err := b.Notify("pk1", "job done", "ok: 2/3"); err != nil {
		t.Fatal(err)
	}

	if got["path"] != "/message/push" {
		t.Errorf("Unexpected path: %q", got["path"])
	}
	if got["pushkey"] != "pk1" || got["text"] != "job done" || got["desp"] != "ok: 2/3" {
		t.Errorf("Unexpected parameters: %v", got)
	}
	if got["type"] != "markdown" {
		t.Errorf("Expected markdown type, got %q", got["type"])
	}
}

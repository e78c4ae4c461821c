package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type recordingSink struct {
	mu    sync.Mutex
	id    string
	err   error
	calls []string
}

func (s *recordingSink) Start(ctx context.Context, cfg map[string]interface{}) error { return nil }

func (s *recordingSink) Notify(key, title, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, key+"|"+title+"|"+body)
	return s.err
}

func (s *recordingSink) ID() string { return s.id }

func (s *recordingSink) Stop() error { return nil }

func TestNotifyFansOut(t *testing.T) {
	a := &recordingSink{id: "a"}
	b := &recordingSink{id: "b"}

	n := New()
	n.Add(a, "key-a")
	n.Add(b, "key-b")

	n.Notify("title", "body")

	if len(a.calls) != 1 || a.calls[0] != "key-a|title|body" {
		t.Errorf("Unexpected calls on sink a: %v", a.calls)
	}
	if len(b.calls) != 1 || b.calls[0] != "key-b|title|body" {
		t.Errorf("Unexpected calls on sink b: %v", b.calls)
	}
}

func TestNotifySwallowsErrors(t *testing.T) {
	bad := &recordingSink{id: "bad", err: errors.New("boom")}
	good := &recordingSink{id: "good"}

	n := New()
	n.Add(bad, "k1")
	n.Add(good, "k2")

	// Must not panic and must still reach the healthy sink.
	n.Notify("t", "b")

	if len(good.calls) != 1 {
		t.Errorf("Expected the healthy sink to be notified, got %v", good.calls)
	}
}

func TestFromConfigUnknownType(t *testing.T) {
	_, err := FromConfig(context.Background(), []SinkConfig{{Type: "carrier-pigeon"}})
	if err == nil {
		t.Error("Expected an error for an unknown sink type")
	}
}

func TestFromConfigBark(t *testing.T) {
	n, err := FromConfig(context.Background(), []SinkConfig{
		{Type: "bark", Key: "device-key"},
		{Type: "pushdeer", Key: "push-key"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(n.entries) != 2 {
		t.Fatalf("Expected 2 sinks, got %d", len(n.entries))
	}
	if n.entries[0].sink.ID() != "bark" || n.entries[1].sink.ID() != "pushdeer" {
		t.Errorf("Unexpected sink ids: %s, %s", n.entries[0].sink.ID(), n.entries[1].sink.ID())
	}
	n.Stop()
}

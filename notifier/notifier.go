// Package notifier fans out end-of-job notifications to the configured
// sinks. Delivery is strictly best-effort: sink errors are logged and
// swallowed, never surfaced to the job.
package notifier

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/panrelay/panrelay/backend"
	barkbackend "github.com/panrelay/panrelay/backend/bark_backend"
	kafkabackend "github.com/panrelay/panrelay/backend/kafka_backend"
	pushdeerbackend "github.com/panrelay/panrelay/backend/pushdeer_backend"
	sqsbackend "github.com/panrelay/panrelay/backend/sqs_backend"
)

// SinkConfig selects and configures one notification sink.
type SinkConfig struct {
	// Type is the sink identifier: "bark", "pushdeer", "kafka" or
	// "sqs".
	Type string `json:"type"`

	// Key is the sink-specific destination (device key, topic, queue
	// URL).
	Key string `json:"key"`

	// Settings are passed verbatim to the sink's Start.
	Settings map[string]interface{} `json:"settings"`
}

type entry struct {
	sink backend.Sink
	key  string
}

// Notifier delivers each notification to every registered sink.
type Notifier struct {
	entries []entry

	Log *log.Logger
}

// New returns an empty Notifier.
func New() *Notifier {
	return &Notifier{
		Log: log.New(os.Stderr, "[notifier] ", log.Ldate|log.Ltime),
	}
}

// Add registers a started sink with its destination key.
func (n *Notifier) Add(s backend.Sink, key string) {
	n.entries = append(n.entries, entry{sink: s, key: key})
}

// FromConfig builds a Notifier from sink configurations, starting each
// sink. An unknown sink type or a failed Start aborts construction.
func FromConfig(ctx context.Context, cfgs []SinkConfig) (*Notifier, error) {
	n := New()
	for _, cfg := range cfgs {
		var s backend.Sink
		switch cfg.Type {
		case "bark":
			s = new(barkbackend.Backend)
		case "pushdeer":
			s = new(pushdeerbackend.Backend)
		case "kafka":
			s = new(kafkabackend.Backend)
		case "sqs":
			s = new(sqsbackend.Backend)
		default:
			return nil, fmt.Errorf("unknown notification sink type: %q", cfg.Type)
		}

		if err := s.Start(ctx, cfg.Settings); err != nil {
			return nil, fmt.Errorf("could not start %s sink: %s", cfg.Type, err)
		}
		n.Add(s, cfg.Key)
	}
	return n, nil
}

// Notify delivers the notification to all sinks concurrently and waits
// for every attempt to finish.
func (n *Notifier) Notify(title, body string) {
	var wg sync.WaitGroup
	for _, e := range n.entries {
		wg.Add(1)
		go func(e entry) {
			defer wg.Done()
			if err := e.sink.Notify(e.key, title, body); err != nil {
				n.Log.Printf("%s notification failed: %s", e.sink.ID(), err)
			}
		}(e)
	}
	wg.Wait()
}

// Stop stops all sinks.
func (n *Notifier) Stop() {
	for _, e := range n.entries {
		if err := e.sink.Stop(); err != nil {
			n.Log.Printf("error stopping %s sink: %s", e.sink.ID(), err)
		}
	}
}

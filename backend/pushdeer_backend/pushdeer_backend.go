package pushdeerbackend

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// DefaultHost is the public PushDeer API endpoint.
const DefaultHost = "https://api2.pushdeer.com"

var transport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	MaxIdleConns:          100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
}

// Backend delivers notifications through the PushDeer push service.
type Backend struct {
	client *http.Client
	host   string
}

// ID returns "pushdeer".
func (b *Backend) ID() string {
	return "pushdeer"
}

// Start starts the sink based on configuration provided by cfg.
// Recognized keys: "host" (alternate or self-hosted endpoint).
func (b *Backend) Start(ctx context.Context, cfg map[string]interface{}) error {
	b.host = DefaultHost
	if h, ok := cfg["host"].(string); ok && h != "" {
		b.host = h
	}
	b.client = &http.Client{
		Transport: transport,
		Timeout:   30 * time.Second,
	}
	return nil
}

// Notify pushes one markdown message keyed by the given push key.
func (b *Backend) Notify(key, title, body string) error {
	q := url.Values{}
	q.Set("pushkey", key)
	q.Set("text", title)
	q.Set("desp", body)
	q.Set("type", "markdown")

	res, err := b.client.Get(b.host + "/message/push?" + q.Encode())
	if err != nil {
		return err
	}
	res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("pushdeer push returned status %s", res.Status)
	}
	return nil
}

// Stop shuts down the sink.
func (b *Backend) Stop() error {
	b.client.CloseIdleConnections()
	return nil
}

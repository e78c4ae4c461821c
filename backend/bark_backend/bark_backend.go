package barkbackend

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// DefaultHost is the public Bark push gateway.
const DefaultHost = "https://api.day.app"

const defaultIcon = "https://day.app/assets/images/avatar.jpg"

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

// Backend delivers notifications to an iOS device through the Bark
// push service.
type Backend struct {
	client *http.Client
	host   string
	icon   string
}

// ID returns "bark".
func (b *Backend) ID() string {
	return "bark"
}

// Start starts the sink based on configuration provided by cfg.
// Recognized keys: "host" (alternate gateway), "icon".
func (b *Backend) Start(ctx context.Context, cfg map[string]interface{}) error {
	b.host = DefaultHost
	if h, ok := cfg["host"].(string); ok && h != "" {
		b.host = h
	}
	b.icon = defaultIcon
	if i, ok := cfg["icon"].(string); ok && i != "" {
		b.icon = i
	}
	b.client = &http.Client{
		Transport: transport,
		Timeout:   30 * time.Second,
	}
	return nil
}

// Notify pushes one message to the device identified by key.
func (b *Backend) Notify(key, title, body string) error {
	u := fmt.Sprintf("%s/%s/%s/%s?icon=%s",
		b.host, key, url.PathEscape(title), url.PathEscape(body), url.QueryEscape(b.icon))

	res, err := b.client.Get(u)
	if err != nil {
		return err
	}
	res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("bark push returned status %s", res.Status)
	}
	return nil
}

// Stop shuts down the sink.
func (b *Backend) Stop() error {
	b.client.CloseIdleConnections()
	return nil
}

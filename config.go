package main

import (
	"encoding/json"
	"os"

	"github.com/panrelay/panrelay/notifier"
)

// Destination folders used when the config leaves them unset.
const (
	DefaultQuarkSavePath = "来自：分享/LinkRelay"
	DefaultBaiduSavePath = "/我的资源/LinkRelay"
)

// Config holds the app's configuration
type Config struct {
	Quark struct {
		Cookie    string `json:"cookie"`
		SavePath  string `json:"save_path"`
		InjectURL string `json:"inject_url"`
	} `json:"quark"`

	Baidu struct {
		Cookie         string `json:"cookie"`
		SavePath       string `json:"save_path"`
		InjectURL      string `json:"inject_url"`
		InjectPassword string `json:"inject_password"`
	} `json:"baidu"`

	Notifier struct {
		Sinks []notifier.SinkConfig `json:"sinks"`
	} `json:"notifier"`
}

func parseConfig(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.UseNumber()
	if err := dec.Decode(&cfg); err != nil {
		return err
	}

	if cfg.Quark.SavePath == "" {
		cfg.Quark.SavePath = DefaultQuarkSavePath
	}
	if cfg.Baidu.SavePath == "" {
		cfg.Baidu.SavePath = DefaultBaiduSavePath
	}
	return nil
}

// Copyright 2024-2026 Aiku AI

package slack

import (
	"testing"

	"gopkg.in/yaml.v3"
)

// TestConfigDefaults checks that the embedded example config parses and that
// PostProcess fills defaults.
func TestConfigDefaults(t *testing.T) {
	t.Parallel()
	var cfg Config
	if err := yaml.Unmarshal([]byte(ExampleConfig), &cfg); err != nil {
		t.Fatalf("example config failed to parse: %v", err)
	}
	cfg.Token = "xoxb-test"
	if err := cfg.PostProcess(); err != nil {
		t.Fatalf("post-process failed: %v", err)
	}
	if cfg.APIBaseURL != defaultAPIBaseURL {
		t.Errorf("expected default API base URL, got %q", cfg.APIBaseURL)
	}
	if cfg.PingInterval != 10 {
		t.Errorf("expected default ping interval, got %d", cfg.PingInterval)
	}
}

// TestConfigRequiresToken checks that a missing token is rejected.
func TestConfigRequiresToken(t *testing.T) {
	t.Parallel()
	cfg := &Config{}
	if err := cfg.PostProcess(); err == nil {
		t.Fatal("expected an error for a missing token")
	}
}

// TestConfigPostMessageValues checks the wire encoding of the formatting
// flags, including the 1/0 form for link_names, and that unset flags are
// omitted entirely.
func TestConfigPostMessageValues(t *testing.T) {
	t.Parallel()

	empty := (&Config{Token: "t"}).postMessageValues()
	if len(empty) != 0 {
		t.Errorf("expected unset flags to be omitted, got %v", empty)
	}

	parse := "none"
	linkNames := true
	unfurlLinks := false
	cfg := &Config{
		Token:       "t",
		Parse:       &parse,
		LinkNames:   &linkNames,
		UnfurlLinks: &unfurlLinks,
	}
	values := cfg.postMessageValues()
	if got := values.Get("parse"); got != "none" {
		t.Errorf("expected parse=none, got %q", got)
	}
	if got := values.Get("link_names"); got != "1" {
		t.Errorf("expected link_names=1, got %q", got)
	}
	if got := values.Get("unfurl_links"); got != "false" {
		t.Errorf("expected unfurl_links=false, got %q", got)
	}
	if _, present := values["unfurl_media"]; present {
		t.Error("expected unfurl_media to be omitted when unset")
	}
}

// TestConfigProxy checks proxy validation and parsing.
func TestConfigProxy(t *testing.T) {
	t.Parallel()
	cfg := &Config{Token: "t", Proxy: "http://proxy.example.com:3128"}
	if err := cfg.PostProcess(); err != nil {
		t.Fatalf("valid proxy rejected: %v", err)
	}
	if u := cfg.proxyURL(); u == nil || u.Host != "proxy.example.com:3128" {
		t.Errorf("unexpected proxy URL: %v", u)
	}
	if u := (&Config{Token: "t"}).proxyURL(); u != nil {
		t.Errorf("expected nil proxy when unconfigured, got %v", u)
	}
}

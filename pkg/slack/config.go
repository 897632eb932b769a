// Copyright 2024-2026 Aiku AI

package slack

import (
	_ "embed"
	"fmt"
	"net/url"

	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

// Config holds the Slack adapter configuration.
type Config struct {
	// Token is the Slack API authentication token. Required.
	Token string `yaml:"token"`
	// Proxy is an optional outbound HTTP(S) proxy URL applied to both the
	// REST client and the RTM WebSocket dialer.
	Proxy string `yaml:"proxy"`
	// APIBaseURL overrides the Slack API endpoint. Defaults to
	// https://slack.com/api. Mainly useful for tests and on-prem relays.
	APIBaseURL string `yaml:"api_base_url"`
	// PingInterval is the WebSocket ping interval in seconds. Defaults to 10.
	PingInterval int `yaml:"ping_interval"`
	// StorePath selects the sqlite identity store. Empty keeps identities
	// in memory only.
	StorePath string `yaml:"store_path"`

	// chat.postMessage formatting flags, forwarded verbatim on text sends
	// when set. Pointers distinguish "unset" from an explicit false.
	Parse       *string `yaml:"parse"`
	LinkNames   *bool   `yaml:"link_names"`
	UnfurlLinks *bool   `yaml:"unfurl_links"`
	UnfurlMedia *bool   `yaml:"unfurl_media"`
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// PostProcess validates the config and fills defaults.
func (c *Config) PostProcess() error {
	if c.Token == "" {
		return fmt.Errorf("slack: token is required")
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 10
	}
	if c.Proxy != "" {
		if _, err := url.Parse(c.Proxy); err != nil {
			return fmt.Errorf("slack: invalid proxy URL: %w", err)
		}
	}
	return nil
}

// proxyURL returns the parsed proxy URL, nil when no proxy is configured.
func (c *Config) proxyURL() *url.URL {
	if c.Proxy == "" {
		return nil
	}
	u, err := url.Parse(c.Proxy)
	if err != nil {
		return nil
	}
	return u
}

// postMessageValues builds the configured formatting parameters for
// chat.postMessage. Booleans the service expects as 1/0 are encoded that way.
func (c *Config) postMessageValues() url.Values {
	values := url.Values{}
	if c.Parse != nil {
		values.Set("parse", *c.Parse)
	}
	if c.LinkNames != nil {
		if *c.LinkNames {
			values.Set("link_names", "1")
		} else {
			values.Set("link_names", "0")
		}
	}
	if c.UnfurlLinks != nil {
		values.Set("unfurl_links", fmt.Sprintf("%t", *c.UnfurlLinks))
	}
	if c.UnfurlMedia != nil {
		values.Set("unfurl_media", fmt.Sprintf("%t", *c.UnfurlMedia))
	}
	return values
}

// Package config loads environment variables and provides a typed Config used across the gateway.
// It applies sensible defaults so the binary can run locally with minimal setup; the
// subdomain and channel mappings are required and validated fail-fast at startup.
package config

import (
	"fmt"
	"os"
	"strings"
)

// ChannelMapping binds one IRC channel name to a room on a subdomain. Rooms
// are configured by display name and resolved to handles at startup.
type ChannelMapping struct {
	Subdomain string
	RoomName  string
}

type Config struct {
	// Listeners
	IRCAddr  string // IRC TCP listener, default :6667
	HTTPAddr string // admin/metrics HTTP listener, default :8080

	// ServerHost is the name used as the prefix on numeric replies.
	ServerHost string

	// Subdomains maps each chat subdomain to its static API token.
	Subdomains map[string]string

	// Channels maps IRC channel names (normalized to a '#'/'&' prefix) to
	// their room mapping. Only these channels are ever joinable.
	Channels map[string]ChannelMapping
}

// Load reads environment variables and applies defaults.
//
//	IRC_ADDR            listen address for IRC (default :6667)
//	HTTP_ADDR           listen address for the admin surface (default :8080)
//	IRC_SERVER_HOST     reply prefix host (default localhost)
//	CAMPFIRE_SUBDOMAINS comma list of subdomain:token pairs
//	CAMPFIRE_CHANNELS   comma list of #channel=subdomain/Room Name entries
func Load() (*Config, error) {
	cfg := &Config{
		IRCAddr:    getenvDefault("IRC_ADDR", ":6667"),
		HTTPAddr:   getenvDefault("HTTP_ADDR", ":8080"),
		ServerHost: getenvDefault("IRC_SERVER_HOST", "localhost"),
		Subdomains: make(map[string]string),
		Channels:   make(map[string]ChannelMapping),
	}

	subs := os.Getenv("CAMPFIRE_SUBDOMAINS")
	for _, entry := range splitList(subs) {
		sub, token, ok := strings.Cut(entry, ":")
		if !ok || sub == "" || token == "" {
			return nil, fmt.Errorf("config: bad CAMPFIRE_SUBDOMAINS entry %q (want subdomain:token)", entry)
		}
		cfg.Subdomains[sub] = token
	}

	chans := os.Getenv("CAMPFIRE_CHANNELS")
	for _, entry := range splitList(chans) {
		name, target, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("config: bad CAMPFIRE_CHANNELS entry %q (want #channel=subdomain/Room Name)", entry)
		}
		sub, roomName, ok := strings.Cut(target, "/")
		if !ok || sub == "" || roomName == "" {
			return nil, fmt.Errorf("config: bad CAMPFIRE_CHANNELS target %q (want subdomain/Room Name)", target)
		}
		cfg.Channels[NormalizeChannelName(name)] = ChannelMapping{Subdomain: sub, RoomName: roomName}
	}

	return cfg, cfg.Validate()
}

// Validate checks the cross-references the bridge relies on: every channel
// must point at a configured subdomain. Violations are fatal at startup.
func (c *Config) Validate() error {
	for name, mapping := range c.Channels {
		if _, ok := c.Subdomains[mapping.Subdomain]; !ok {
			return fmt.Errorf("config: channel %q references subdomain %q which is not configured", name, mapping.Subdomain)
		}
	}
	return nil
}

// ValidateBridgeReady errors unless at least one subdomain and one channel
// are configured; the gateway has nothing to serve otherwise.
func (c *Config) ValidateBridgeReady() error {
	if len(c.Subdomains) == 0 {
		return fmt.Errorf("config: CAMPFIRE_SUBDOMAINS is empty")
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("config: CAMPFIRE_CHANNELS is empty")
	}
	return nil
}

// NormalizeChannelName ensures the IRC '#'/'&' prefix.
func NormalizeChannelName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || name[0] == '#' || name[0] == '&' {
		return name
	}
	return "#" + name
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

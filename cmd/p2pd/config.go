package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/punchctl/internal/config"
	"github.com/danmuck/punchctl/internal/protocol/session"
)

const defaultPort = 8800

type serverOptions struct {
	Port        int
	Session     session.Config
	AdminAddr   string
	AdminToken  string
	CorsOrigins []string
	LogLevel    string
}

func defaultServerOptions() serverOptions {
	return serverOptions{
		Port:    defaultPort,
		Session: session.DefaultConfig(),
	}
}

// loadServerOptions overlays the keys present in path onto the defaults.
func loadServerOptions(path string) (serverOptions, error) {
	opts := defaultServerOptions()

	var raw config.ServerConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return serverOptions{}, fmt.Errorf("load p2pd config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return serverOptions{}, fmt.Errorf("load p2pd config: unknown key %q", undecoded[0].String())
	}
	if err := config.ValidateServerConfig(raw); err != nil {
		return serverOptions{}, err
	}

	if meta.IsDefined("listen_port") {
		if raw.ListenPort == 0 {
			return serverOptions{}, fmt.Errorf("%w: listen_port must be set", config.ErrInvalidConfig)
		}
		opts.Port = raw.ListenPort
	}

	if meta.IsDefined("ack_timeout") {
		if d, ok, _ := config.ParseDuration("ack_timeout", raw.AckTimeout); ok {
			opts.Session.AckTimeout = d
		}
	}

	if meta.IsDefined("max_retries") {
		opts.Session.MaxRetries = raw.MaxRetries
	}

	if meta.IsDefined("backoff_multiplier") {
		opts.Session.Backoff.Multiplier = raw.BackoffMultiplier
	}

	if meta.IsDefined("admin_addr") {
		opts.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}

	if meta.IsDefined("admin_token") {
		opts.AdminToken = strings.TrimSpace(raw.AdminToken)
	}

	if meta.IsDefined("cors_origins") {
		opts.CorsOrigins = normalizeOrigins(raw.CorsOrigins)
	}

	if meta.IsDefined("log_level") {
		opts.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if err := opts.Session.Validate(); err != nil {
		return serverOptions{}, err
	}
	return opts, nil
}

// parsePort accepts a decimal port in [1, 65535].
func parsePort(raw string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", raw)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/punchctl/internal/config"
	"github.com/danmuck/punchctl/internal/protocol/session"
)

const defaultName = "babylon"

type clientOptions struct {
	Name      string
	LocalPort int
	Session   session.Config
	LogLevel  string
}

func defaultClientOptions() clientOptions {
	return clientOptions{
		Name:    defaultName,
		Session: session.DefaultConfig(),
	}
}

// loadClientOptions overlays the keys present in path onto the defaults.
func loadClientOptions(path string) (clientOptions, error) {
	opts := defaultClientOptions()

	var raw config.ClientConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return clientOptions{}, fmt.Errorf("load p2pc config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return clientOptions{}, fmt.Errorf("load p2pc config: unknown key %q", undecoded[0].String())
	}
	if err := config.ValidateClientConfig(raw); err != nil {
		return clientOptions{}, err
	}

	if meta.IsDefined("name") {
		if name := strings.TrimSpace(raw.Name); name != "" {
			opts.Name = name
		}
	}

	if meta.IsDefined("local_port") {
		opts.LocalPort = raw.LocalPort
	}

	if meta.IsDefined("login_retry_timeout") {
		if d, ok, _ := config.ParseDuration("login_retry_timeout", raw.LoginRetryTimeout); ok {
			opts.Session.LoginRetryTimeout = d
		}
	}

	if meta.IsDefined("login_retransmits") {
		opts.Session.LoginRetransmits = raw.LoginRetransmits
	}

	if meta.IsDefined("log_level") {
		opts.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if err := opts.Session.Validate(); err != nil {
		return clientOptions{}, err
	}
	return opts, nil
}

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Template renders the default config for kind ("server" or "client").
func Template(kind string) (string, error) {
	var (
		v   any
		hdr string
	)
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "server", "p2pd":
		v, hdr = DefaultServerConfig(), serverHeader
	case "client", "p2pc":
		v, hdr = DefaultClientConfig(), clientHeader
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
	body, err := toml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("render %s template: %w", kind, err)
	}
	return hdr + string(body), nil
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

// DefaultServerConfig mirrors p2pd's built-in defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenPort:        8800,
		AckTimeout:        "4s",
		MaxRetries:        3,
		BackoffMultiplier: 1.0,
		AdminAddr:         "",
		AdminToken:        "",
		CorsOrigins:       []string{"http://localhost:3000"},
		LogLevel:          "info",
	}
}

// DefaultClientConfig mirrors p2pc's built-in defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Name:              "babylon",
		LocalPort:         0,
		LoginRetryTimeout: "2s",
		LoginRetransmits:  1,
		LogLevel:          "info",
	}
}

const serverHeader = `# p2pd rendezvous server
# listen_port is overridden by the positional port argument.
# admin_addr enables /health, /ready, /metrics and /peers when set, e.g. "127.0.0.1:8801".
# admin_token, when set, is required as a bearer token on /peers.

`

const clientHeader = `# p2pc peer client
# local_port 0 binds a random port in [8196, 28196).

`

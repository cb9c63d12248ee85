package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/danmuck/punchctl/internal/logging"
)

var ErrInvalidConfig = errors.New("config: invalid")

// ServerConfig is the on-disk shape of a p2pd config file.
type ServerConfig struct {
	ListenPort        int      `toml:"listen_port"`
	AckTimeout        string   `toml:"ack_timeout"`
	MaxRetries        int      `toml:"max_retries"`
	BackoffMultiplier float64  `toml:"backoff_multiplier"`
	AdminAddr         string   `toml:"admin_addr"`
	AdminToken        string   `toml:"admin_token"`
	CorsOrigins       []string `toml:"cors_origins"`
	LogLevel          string   `toml:"log_level"`
}

// ClientConfig is the on-disk shape of a p2pc config file.
type ClientConfig struct {
	Name              string `toml:"name"`
	LocalPort         int    `toml:"local_port"`
	LoginRetryTimeout string `toml:"login_retry_timeout"`
	LoginRetransmits  int    `toml:"login_retransmits"`
	LogLevel          string `toml:"log_level"`
}

func LoadServerConfig(path string) (ServerConfig, error) {
	var cfg ServerConfig
	if err := loadToml(path, &cfg); err != nil {
		return ServerConfig{}, err
	}
	if err := ValidateServerConfig(cfg); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

func LoadClientConfig(path string) (ClientConfig, error) {
	var cfg ClientConfig
	if err := loadToml(path, &cfg); err != nil {
		return ClientConfig{}, err
	}
	if err := ValidateClientConfig(cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

// loadToml rejects unknown keys so typos fail validation.
func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("config parse failed (%s): unknown keys:\n%s", path, strict.String())
		}
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateServerConfig(cfg ServerConfig) error {
	if err := validatePort("listen_port", cfg.ListenPort); err != nil {
		return err
	}
	if err := validateDuration("ack_timeout", cfg.AckTimeout); err != nil {
		return err
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries %d is negative", ErrInvalidConfig, cfg.MaxRetries)
	}
	if cfg.BackoffMultiplier != 0 && cfg.BackoffMultiplier < 1 {
		return fmt.Errorf("%w: backoff_multiplier %v below 1", ErrInvalidConfig, cfg.BackoffMultiplier)
	}
	if addr := strings.TrimSpace(cfg.AdminAddr); addr != "" && !strings.Contains(addr, ":") {
		return fmt.Errorf("%w: admin_addr %q needs host:port", ErrInvalidConfig, addr)
	}
	return validateLevel(cfg.LogLevel)
}

func ValidateClientConfig(cfg ClientConfig) error {
	if name := cfg.Name; name != "" && strings.ContainsAny(name, " \t:") {
		return fmt.Errorf("%w: name %q contains separators", ErrInvalidConfig, name)
	}
	if err := validatePort("local_port", cfg.LocalPort); err != nil {
		return err
	}
	if err := validateDuration("login_retry_timeout", cfg.LoginRetryTimeout); err != nil {
		return err
	}
	if cfg.LoginRetransmits < 0 {
		return fmt.Errorf("%w: login_retransmits %d is negative", ErrInvalidConfig, cfg.LoginRetransmits)
	}
	return validateLevel(cfg.LogLevel)
}

// ParseDuration accepts Go duration strings; empty means unset.
func ParseDuration(field, raw string) (time.Duration, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, field, err)
	}
	if d <= 0 {
		return 0, false, fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, field)
	}
	return d, true, nil
}

func validateDuration(field, raw string) error {
	_, _, err := ParseDuration(field, raw)
	return err
}

func validatePort(field string, port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("%w: %s %d out of range", ErrInvalidConfig, field, port)
	}
	return nil
}

func validateLevel(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	if _, ok := logging.ParseLevel(raw); !ok {
		return fmt.Errorf("%w: log_level %q", ErrInvalidConfig, raw)
	}
	return nil
}

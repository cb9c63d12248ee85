package logging

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel     = "P2P_LOG_LEVEL"
	EnvLogTimestamp = "P2P_LOG_TIMESTAMP"
	EnvLogNoColor   = "P2P_LOG_NOCOLOR"
	EnvLogAsync     = "P2P_LOG_ASYNC"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config is the resolved logger shape for one process.
type Config struct {
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
	// Async routes output through a non-blocking diode ring. Entries are
	// dropped when the ring is full.
	Async    bool
	DiodeBuf int
	Out      io.Writer
}

var configureOnce sync.Once

func ConfigureRuntime() {
	Configure(ProfileRuntime)
}

func ConfigureTests() {
	Configure(ProfileTest)
}

func Configure(profile Profile) {
	configureOnce.Do(func() {
		cfg := DefaultConfig(profile)
		applyEnvOverrides(&cfg)
		Apply(cfg)
	})
}

// SetLevel overrides the global level after Configure, e.g. from a config file.
func SetLevel(raw string) error {
	lvl, ok := ParseLevel(raw)
	if !ok {
		return fmt.Errorf("logging: unknown level %q", raw)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

func DefaultConfig(profile Profile) Config {
	cfg := Config{
		Out:      os.Stderr,
		DiodeBuf: 1000,
	}
	switch profile {
	case ProfileTest:
		cfg.Level = zerolog.DebugLevel
		cfg.Timestamp = false
	default:
		cfg.Level = zerolog.InfoLevel
		cfg.Timestamp = true
	}
	return cfg
}

// Apply installs cfg as the global zerolog logger.
func Apply(cfg Config) {
	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}
	if cfg.Async && cfg.DiodeBuf > 0 {
		out = diode.NewWriter(out, cfg.DiodeBuf, 10*time.Millisecond, func(missed int) {
			fmt.Fprintf(os.Stderr, "logging: dropped %d log entries\n", missed)
		})
	}
	console := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    cfg.NoColor,
		TimeFormat: time.RFC3339,
	}
	if !cfg.Timestamp {
		console.PartsExclude = []string{zerolog.TimestampFieldName}
	}
	ctx := zerolog.New(console).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	log.Logger = ctx.Logger()
	zerolog.SetGlobalLevel(cfg.Level)
}

func applyEnvOverrides(cfg *Config) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogAsync)); ok {
		cfg.Async = v
	}
}

// ParseLevel maps operator level names onto zerolog levels.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace", "diagnostics":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none", "inactive":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

package session

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/danmuck/punchctl/internal/testutil/testlog"
)

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestNextBackoffDelayJitterBounds(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{InitialDelay: time.Second, Multiplier: 1.0, Jitter: true}
	rng := rand.New(rand.NewSource(7))
	for i := 1; i <= 20; i++ {
		got := NextBackoffDelay(cfg, i, rng)
		if got < 500*time.Millisecond || got >= 1500*time.Millisecond {
			t.Fatalf("attempt%d jitter out of range got=%v", i, got)
		}
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("nil rng jitter got=%v", got)
	}
}

func TestRetryDelayDefaultsToConstantAckTimeout(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	for attempt := 1; attempt <= 4; attempt++ {
		if got := cfg.RetryDelay(attempt, nil); got != 4000*time.Millisecond {
			t.Fatalf("attempt%d got=%v", attempt, got)
		}
	}

	cfg.Backoff.Multiplier = 2.0
	cfg.Backoff.MaxDelay = 10 * time.Second
	if got := cfg.RetryDelay(2, nil); got != 8*time.Second {
		t.Fatalf("grown attempt2 got=%v", got)
	}
	if got := cfg.RetryDelay(3, nil); got != 10*time.Second {
		t.Fatalf("capped attempt3 got=%v", got)
	}
}

func TestDefaultConfigValidates(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.MaxRetries != 3 || cfg.AckBurst != 2 || cfg.LoginRetransmits != 1 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.InitiatorPacing) != 3 || cfg.InitiatorPacing[0] != time.Second || cfg.InitiatorPacing[1] != 0 {
		t.Fatalf("unexpected initiator pacing: %v", cfg.InitiatorPacing)
	}
}

func TestWithDefaultsKeepsExplicitCounts(t *testing.T) {
	testlog.Start(t)
	cfg := Config{MaxRetries: 0, LoginRetransmits: 0}.WithDefaults()
	if cfg.AckTimeout != 4000*time.Millisecond || cfg.LoginRetryTimeout != 2000*time.Millisecond {
		t.Fatalf("durations not defaulted: %+v", cfg)
	}
	if cfg.MaxRetries != 0 || cfg.LoginRetransmits != 0 {
		t.Fatalf("explicit zero counts overwritten: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("zero-retry config should validate: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"ack timeout", func(c *Config) { c.AckTimeout = 0 }, ErrInvalidAckTimeout},
		{"retries", func(c *Config) { c.MaxRetries = -1 }, ErrInvalidMaxRetries},
		{"multiplier", func(c *Config) { c.Backoff.Multiplier = 0.5 }, ErrInvalidBackoff},
		{"login timeout", func(c *Config) { c.LoginRetryTimeout = -time.Second }, ErrInvalidLoginRetry},
		{"ack burst", func(c *Config) { c.AckBurst = 0 }, ErrInvalidAckBurst},
		{"empty pacing", func(c *Config) { c.ResponderPacing = []time.Duration{} }, ErrInvalidPacing},
		{"negative pacing", func(c *Config) { c.InitiatorPacing = []time.Duration{-1} }, ErrInvalidPacing},
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(&cfg)
		if err := cfg.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

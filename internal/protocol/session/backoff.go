package session

import (
	"math"
	"math/rand"
	"time"
)

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 || cfg.InitialDelay <= 0 {
		return applyJitter(cfg, float64(cfg.InitialDelay), rng)
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return applyJitter(cfg, delay, rng)
}

// RetryDelay is the wait before open-channel attempt N+1, where attempt 1 is
// the initial send. The default schedule is a constant AckTimeout.
func (c Config) RetryDelay(attempt int, rng *rand.Rand) time.Duration {
	b := c.Backoff
	if b.InitialDelay <= 0 {
		b.InitialDelay = c.AckTimeout
	}
	return NextBackoffDelay(b, attempt, rng)
}

func applyJitter(cfg BackoffConfig, delay float64, rng *rand.Rand) time.Duration {
	if !cfg.Jitter || delay <= 0 {
		return time.Duration(delay)
	}
	f := 0.5
	if rng != nil {
		f = 0.5 + rng.Float64()
	}
	return time.Duration(delay * f)
}

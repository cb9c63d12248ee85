package session

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidAckTimeout = errors.New("session: invalid ack timeout")
	ErrInvalidMaxRetries = errors.New("session: invalid max retries")
	ErrInvalidBackoff    = errors.New("session: invalid backoff")
	ErrInvalidLoginRetry = errors.New("session: invalid login retry")
	ErrInvalidPacing     = errors.New("session: invalid talk-shake pacing")
	ErrInvalidAckBurst   = errors.New("session: invalid ack burst")
)

// BackoffConfig shapes the delay between open-channel retransmissions.
// InitialDelay of zero means "use AckTimeout".
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines rendezvous timing for both roles.
type Config struct {
	// AckTimeout is how long the server waits for an open-channel ack.
	AckTimeout time.Duration
	// MaxRetries bounds open-channel retransmissions after the first send.
	MaxRetries int
	Backoff    BackoffConfig

	// LoginRetryTimeout arms the client's login retransmit timer.
	LoginRetryTimeout time.Duration
	// LoginRetransmits is how many times that timer resends the buffered line.
	LoginRetransmits int

	// AckBurst is how many "response: success" lines answer one open-channel.
	AckBurst int
	// InitiatorPacing holds the pause before each talk-shake sent after user-info.
	InitiatorPacing []time.Duration
	// ResponderPacing holds the pause before each talk-shake sent after open-channel.
	ResponderPacing []time.Duration
}

// DefaultConfig returns the protocol's reference timing.
func DefaultConfig() Config {
	return Config{
		AckTimeout: 4000 * time.Millisecond,
		MaxRetries: 3,
		Backoff: BackoffConfig{
			Multiplier: 1.0,
		},
		LoginRetryTimeout: 2000 * time.Millisecond,
		LoginRetransmits:  1,
		AckBurst:          2,
		InitiatorPacing:   []time.Duration{time.Second, 0, time.Second},
		ResponderPacing:   []time.Duration{0, 0, time.Second},
	}
}

// WithDefaults fills unset durations, multipliers and pacing from
// DefaultConfig. Counts are taken as given since zero is meaningful.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.AckTimeout == 0 {
		c.AckTimeout = def.AckTimeout
	}
	if c.Backoff.Multiplier == 0 {
		c.Backoff.Multiplier = def.Backoff.Multiplier
	}
	if c.LoginRetryTimeout == 0 {
		c.LoginRetryTimeout = def.LoginRetryTimeout
	}
	if c.AckBurst == 0 {
		c.AckBurst = def.AckBurst
	}
	if c.InitiatorPacing == nil {
		c.InitiatorPacing = def.InitiatorPacing
	}
	if c.ResponderPacing == nil {
		c.ResponderPacing = def.ResponderPacing
	}
	return c
}

func (c Config) Validate() error {
	if c.AckTimeout <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAckTimeout, c.AckTimeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxRetries, c.MaxRetries)
	}
	if c.Backoff.Multiplier < 1.0 {
		return fmt.Errorf("%w: multiplier %v below 1", ErrInvalidBackoff, c.Backoff.Multiplier)
	}
	if c.Backoff.InitialDelay < 0 || c.Backoff.MaxDelay < 0 {
		return fmt.Errorf("%w: negative delay", ErrInvalidBackoff)
	}
	if c.LoginRetryTimeout <= 0 {
		return fmt.Errorf("%w: timeout %v", ErrInvalidLoginRetry, c.LoginRetryTimeout)
	}
	if c.LoginRetransmits < 0 {
		return fmt.Errorf("%w: retransmits %d", ErrInvalidLoginRetry, c.LoginRetransmits)
	}
	if c.AckBurst < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidAckBurst, c.AckBurst)
	}
	if err := validatePacing("initiator", c.InitiatorPacing); err != nil {
		return err
	}
	return validatePacing("responder", c.ResponderPacing)
}

func validatePacing(role string, pacing []time.Duration) error {
	if len(pacing) == 0 {
		return fmt.Errorf("%w: %s has no shots", ErrInvalidPacing, role)
	}
	for i, d := range pacing {
		if d < 0 {
			return fmt.Errorf("%w: %s[%d] is negative", ErrInvalidPacing, role, i)
		}
	}
	return nil
}

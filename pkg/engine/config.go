package engine

import "time"

// Config holds configuration for the dialogue engine.
type Config struct {
	// SweepInterval is how often idle sessions are looked for. Zero means
	// the session store default.
	SweepInterval time.Duration

	// PersistTimeout bounds one submission hand-off, retries included.
	// Zero or negative means 30s.
	PersistTimeout time.Duration

	// PersistRetries is the number of retries after a failed save.
	// Negative means no retries; zero means the default of 3.
	PersistRetries int

	// PersistBackoff is the initial delay between save retries. Zero or
	// negative means 200ms.
	PersistBackoff time.Duration
}

func (c Config) persistTimeout() time.Duration {
	if c.PersistTimeout <= 0 {
		return 30 * time.Second
	}
	return c.PersistTimeout
}

func (c Config) persistRetries() uint64 {
	switch {
	case c.PersistRetries < 0:
		return 0
	case c.PersistRetries == 0:
		return 3
	default:
		return uint64(c.PersistRetries)
	}
}

func (c Config) persistBackoff() time.Duration {
	if c.PersistBackoff <= 0 {
		return 200 * time.Millisecond
	}
	return c.PersistBackoff
}

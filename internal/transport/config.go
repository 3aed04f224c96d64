package transport

import (
	"time"

	"github.com/danmuck/statelink/internal/protocol/netstring"
)

// Config bounds the transport's socket operations. WaitFor itself is
// unbounded unless the caller's context says otherwise; PollInterval only
// caps how long a blocking read runs before cancellation is rechecked.
type Config struct {
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	PollInterval   time.Duration
	Limits         netstring.Limits
}

func DefaultConfig() Config {
	return Config{}.WithDefaults()
}

func (c Config) WithDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.Limits.MaxFrameBytes <= 0 {
		c.Limits = netstring.DefaultLimits()
	}
	return c
}

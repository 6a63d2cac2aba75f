package tuyable

import (
	"time"

	"github.com/pion/logging"

	"github.com/tuyable/tuyable/pkg/device"
	"github.com/tuyable/tuyable/pkg/dispatch"
	"github.com/tuyable/tuyable/pkg/frame"
	"github.com/tuyable/tuyable/pkg/session"
)

// Defaults applied by Open for zero-valued Config fields.
const (
	// DefaultHeartbeatInterval is the default keep-alive period.
	DefaultHeartbeatInterval = 30 * time.Second

	// DefaultNegotiationAttempts is how often Open tries the key exchange
	// before giving up. A key mismatch is fatal on the first attempt; the
	// budget only covers lost handshake frames.
	DefaultNegotiationAttempts = 3
)

// Config holds per-device configuration for Open. The zero value is usable
// for a fingerbot; unset fields get defaults.
type Config struct {
	// Category selects the device mapper (default CategoryFingerbot).
	Category device.Category

	// ProductID resolves the product's datapoint ids. Unknown ids fall
	// back to category defaults.
	ProductID string

	// MTU caps the wire size of one fragment (default frame.DefaultMTU).
	MTU int

	// Timeout is the first-attempt response timeout for commands and
	// handshake steps (default dispatch.DefaultTimeout).
	Timeout time.Duration

	// MaxRetries is the command retransmission budget after the first
	// attempt (default dispatch.DefaultMaxRetries). Negative disables
	// retransmission.
	MaxRetries int

	// NegotiationAttempts bounds key-exchange tries (default
	// DefaultNegotiationAttempts). Negative means a single attempt.
	NegotiationAttempts int

	// HeartbeatInterval is the keep-alive period (default
	// DefaultHeartbeatInterval). Negative disables the heartbeat loop.
	HeartbeatInterval time.Duration

	// StaleAfter bounds how long an incomplete reassembly buffer may live
	// (default frame.DefaultStaleAfter).
	StaleAfter time.Duration

	// NewExchange overrides the key-negotiation strategy. The default is
	// the nonce exchange; firmware families with a different handshake
	// plug in here.
	NewExchange func(session.Credential) session.Exchange

	// LoggerFactory provides loggers for the device and its dispatcher
	// (default logging.NewDefaultLoggerFactory()).
	LoggerFactory logging.LoggerFactory
}

// applyDefaults fills in default values for unset fields.
func (c *Config) applyDefaults() {
	if c.Category == "" {
		c.Category = device.CategoryFingerbot
	}
	if c.MTU <= 0 {
		c.MTU = frame.DefaultMTU
	}
	if c.Timeout <= 0 {
		c.Timeout = dispatch.DefaultTimeout
	}
	if c.NegotiationAttempts == 0 {
		c.NegotiationAttempts = DefaultNegotiationAttempts
	} else if c.NegotiationAttempts < 0 {
		c.NegotiationAttempts = 1
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = frame.DefaultStaleAfter
	}
	if c.NewExchange == nil {
		c.NewExchange = func(cred session.Credential) session.Exchange {
			return session.NewNonceExchange(cred)
		}
	}
	if c.LoggerFactory == nil {
		c.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
}

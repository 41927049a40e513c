// SPDX-License-Identifier: GPL-3.0-or-later

package rtpproxy

import "time"

const (
	// DefaultRCacheTTL is how long a cached reply stays observable for
	// its cookie.
	DefaultRCacheTTL = 60 * time.Second

	// DefaultSessionTTL is the per-direction session time-to-live, in
	// heartbeat ticks, refreshed on packet arrival.
	DefaultSessionTTL = 60

	// DefaultPortMin and DefaultPortMax bound the media port pools.
	DefaultPortMin = 35000
	DefaultPortMax = 65000
)

// Config holds common configuration for the relay.
//
// Pass this to constructor functions to pre-wire dependencies.
// All fields have sensible defaults set by [NewConfig].
type Config struct {
	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewConfig] to [DefaultErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	//
	// Set by [NewConfig] to [DefaultSLogger].
	Logger SLogger

	// TimeNow returns the current time.
	//
	// Set by [NewConfig] to [time.Now].
	TimeNow func() time.Time

	// PortMin and PortMax bound the even/odd media port pools, for
	// both address families.
	//
	// Set by [NewConfig] to [DefaultPortMin] and [DefaultPortMax].
	PortMin int
	PortMax int

	// BindIP4 and BindIP6 are the local addresses media sockets bind
	// to, one per family.
	//
	// Set by [NewConfig] to the unspecified address of each family.
	BindIP4 string
	BindIP6 string

	// TOS is the type-of-service byte applied to IPv4 media sockets.
	// Negative disables the option.
	//
	// Set by [NewConfig] to -1.
	TOS int

	// SessionTTL is the initial per-direction session time-to-live in
	// heartbeat ticks.
	//
	// Set by [NewConfig] to [DefaultSessionTTL].
	SessionTTL int

	// RCacheTTL is how long the retransmit cache retains replies.
	//
	// Set by [NewConfig] to [DefaultRCacheTTL].
	RCacheTTL time.Duration

	// RecordPCAP selects PCAP output for the recorder; it also gates
	// the single-file `RS` command modifier.
	RecordPCAP bool

	// NotifyTarget is where session timeout notifications go. Empty
	// leaves the notification subsystem unconfigured, which in turn
	// makes the 20081224 capability probe reply 0.
	NotifyTarget string
}

// NewConfig creates a [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{
		ErrClassifier: DefaultErrClassifier,
		Logger:        DefaultSLogger(),
		TimeNow:       time.Now,
		PortMin:       DefaultPortMin,
		PortMax:       DefaultPortMax,
		BindIP4:       "0.0.0.0",
		BindIP6:       "::",
		TOS:           -1,
		SessionTTL:    DefaultSessionTTL,
		RCacheTTL:     DefaultRCacheTTL,
	}
}

// SPDX-License-Identifier: GPL-3.0-or-later

package rtpproxy

import "log/slog"

// Notifier delivers session timeout notifications to the signalling
// controller. The wire protocol of the emitter lives outside this
// package; the engine only needs to know whether the subsystem is
// configured (the 20081224 capability probe depends on it) and where to
// hand expired sessions.
type Notifier interface {
	// Enabled reports whether a notification target is configured.
	Enabled() bool

	// SessionTimeout announces that the session expired.
	SessionTimeout(s *Session)
}

// NewNotifier returns the [Notifier] for the config: disabled when no
// target is set, otherwise one that logs the notification toward the
// target.
func NewNotifier(cfg *Config) Notifier {
	if cfg.NotifyTarget == "" {
		return disabledNotifier{}
	}
	return &logNotifier{logger: cfg.Logger, target: cfg.NotifyTarget}
}

type disabledNotifier struct{}

var _ Notifier = disabledNotifier{}

func (disabledNotifier) Enabled() bool { return false }

func (disabledNotifier) SessionTimeout(s *Session) {}

type logNotifier struct {
	logger SLogger
	target string
}

var _ Notifier = &logNotifier{}

func (n *logNotifier) Enabled() bool { return true }

func (n *logNotifier) SessionTimeout(s *Session) {
	n.logger.Info(
		"timeoutNotify",
		slog.String("target", n.target),
		slog.String("callID", s.CallID),
		slog.String("fromTag", s.FromTag),
		slog.String("toTag", s.ToTag),
	)
}

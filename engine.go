// SPDX-License-Identifier: GPL-3.0-or-later

package rtpproxy

import (
	"io"
	"net"
	"time"
)

// derivedStatsPeriod is how often the derived-statistics gauges refresh.
const derivedStatsPeriod = time.Second

// Engine ties the command parser, the dispatcher, the session store, the
// port allocator and the reply path together. One engine serves any
// number of control endpoints; commands from a single endpoint are
// processed in arrival order by that endpoint's reader goroutine.
//
// Construct via [NewEngine]; stop via [*Engine.Shutdown]. The exported
// collaborator fields may be replaced after construction but before the
// engine serves traffic.
type Engine struct {
	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewEngine] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	//
	// Set by [NewEngine] from [Config.Logger].
	Logger SLogger

	// TimeNow is the function to get the current time.
	//
	// Set by [NewEngine] from [Config.TimeNow].
	TimeNow func() time.Time

	// Stats is the relay's counter set.
	Stats *Stats

	// Sessions is the session store.
	Sessions *SessionStore

	// Sched drives the derived-stats, TTL and cache-eviction ticks.
	Sched *Scheduler

	// RCache is the datagram retransmit cache.
	RCache *RetransCache

	// Alloc provides even/odd media socket pairs.
	//
	// Set by [NewEngine] to a [*ListenerAllocator]; tests substitute
	// fakes.
	Alloc PairAllocator

	// Sender delivers datagram replies off the control goroutine.
	//
	// Set by [NewEngine] to an [*AsyncSender]; tests substitute
	// synchronous fakes.
	Sender DatagramSender

	// Recorder and Player are the media collaborators engaged by
	// RECORD/COPY and PLAY/NOPLAY.
	Recorder Recorder
	Player   Player

	// Notifier delivers session timeout notifications.
	Notifier Notifier

	cfg       *Config
	async     *AsyncSender
	statsTask *TimedTask
	ttlTask   *TimedTask
}

// NewEngine wires an [*Engine] from the config and starts its periodic
// tasks.
func NewEngine(cfg *Config) *Engine {
	e := &Engine{
		ErrClassifier: cfg.ErrClassifier,
		Logger:        cfg.Logger,
		TimeNow:       cfg.TimeNow,
		Stats:         NewStats(),
		Sessions:      NewSessionStore(cfg),
		Alloc:         NewListenerAllocator(cfg),
		Recorder:      noopRecorder{},
		Player:        noopPlayer{},
		Notifier:      NewNotifier(cfg),
		cfg:           cfg,
	}
	e.Sched = NewScheduler()
	e.Sched.TimeNow = cfg.TimeNow
	e.RCache = NewRetransCache(cfg, e.Sched)
	e.async = NewAsyncSender(cfg)
	e.Sender = e.async
	e.statsTask = e.Sched.Schedule(derivedStatsPeriod, func(now time.Time, arg any) CBResult {
		arg.(*Stats).UpdateDerived(now)
		return CBMore
	}, e.Stats, nil)
	e.ttlTask = e.Sched.Schedule(heartbeatPeriod, func(now time.Time, arg any) CBResult {
		e.Sessions.TickTTL(func(s *Session) {
			e.Stats.Bump("nsess_destroyed")
			e.Stats.Bump("nsess_timeout")
			if e.Notifier.Enabled() {
				e.Notifier.SessionTimeout(s)
			}
		})
		return CBMore
	}, nil, nil)
	return e
}

// Shutdown cancels the periodic tasks, purges the sessions, and stops
// the scheduler and the net-I/O goroutine.
func (e *Engine) Shutdown() {
	e.statsTask.Cancel()
	e.ttlTask.Cancel()
	e.Sessions.Purge()
	e.RCache.Shutdown()
	e.Sched.Shutdown()
	e.async.Shutdown()
}

// SubmitDatagram handles one datagram control message: parse, dispatch,
// reply. The reply goes back to raddr through w via the async sender.
func (e *Engine) SubmitDatagram(buf []byte, w PacketWriter, raddr net.Addr) {
	cmd := e.newCommand(true, w, nil, raddr)
	defer cmd.finish()
	if e.splitCommand(cmd, string(buf)) {
		return
	}
	e.handleCommand(cmd)
}

// SubmitStream handles one command line from a stream control
// connection, writing the reply to sw.
func (e *Engine) SubmitStream(line []byte, sw io.Writer) {
	cmd := e.newCommand(false, nil, sw, nil)
	defer cmd.finish()
	if e.splitCommand(cmd, string(line)) {
		return
	}
	e.handleCommand(cmd)
}

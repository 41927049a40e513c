// SPDX-License-Identifier: GPL-3.0-or-later

package rtpproxy

import (
	"net"
	"sync/atomic"
	"time"
)

// StreamPair is one leg's two consecutive UDP sockets, RTP on the even
// base port and RTCP on base port + 1, both bound to the same local
// address.
type StreamPair struct {
	// RTP is the socket bound to the even base port.
	RTP *net.UDPConn

	// RTCP is the socket bound to base port + 1.
	RTCP *net.UDPConn

	// Port is the RTP base port.
	Port int

	// Peer is the learned or signalled remote media address. Nil until
	// the first packet arrives in learning mode.
	Peer *net.UDPAddr
}

// Close closes both sockets. Safe on a partially-initialized pair.
func (sp *StreamPair) Close() {
	if sp.RTP != nil {
		sp.RTP.Close()
	}
	if sp.RTCP != nil {
		sp.RTCP.Close()
	}
}

// Session is one bidirectional call: a call-id, a from-tag, an optional
// to-tag, and up to two stream pairs, one per leg. Leg 0 faces the
// caller (from→to direction) and leg 1 faces the callee.
//
// A session with no to-tag is "weak": it represents one half of a call
// and is eligible for partial deletion.
type Session struct {
	// ID is the opaque id keying the weak-reference table.
	ID string

	// CallID, FromTag and ToTag identify the call. ToTag is empty
	// until LOOKUP promotes the session.
	CallID  string
	FromTag string
	ToTag   string

	// Legs are the session's stream pairs, indexed by direction.
	// Either may be nil while the corresponding side has not completed
	// its UPDATE/LOOKUP.
	Legs [2]*StreamPair

	// PCount are per-direction relayed packet counters.
	PCount [2]atomic.Int64

	// TTL are the per-direction time-to-live tick counters, refreshed
	// on packet arrival and decremented by the heartbeat.
	TTL [2]atomic.Int64

	// Codecs and PTime are the codec list and packet time recorded at
	// the last update, reused by PLAY with the "session" literal.
	Codecs string
	PTime  int

	// CreatedAt is the session creation time; lastActivity holds the
	// unix nanoseconds of the most recent packet or command touching
	// the session.
	CreatedAt    time.Time
	lastActivity atomic.Int64

	// weakCnt counts weak holds on the session; a weak DELETE
	// decrements it and destroys the session only at zero.
	weakCnt atomic.Int64

	// rc implements the shared-ownership discipline. The store's
	// call-id index holds the owning reference.
	rc *RefCounted
}

// newSession creates a session with one reference owned by the caller
// and both TTL counters charged.
func newSession(callID, fromTag string, ttl int, now time.Time) *Session {
	s := &Session{
		ID:        NewSessionID(),
		CallID:    callID,
		FromTag:   fromTag,
		CreatedAt: now,
	}
	s.TTL[0].Store(int64(ttl))
	s.TTL[1].Store(int64(ttl))
	s.lastActivity.Store(now.UnixNano())
	s.rc = NewRefCounted("session " + s.ID)
	s.rc.Attach(s.finalize)
	return s
}

// finalize closes the session's sockets. Runs exactly once, when the
// last reference drops.
func (s *Session) finalize() {
	for _, leg := range s.Legs {
		if leg != nil {
			leg.Close()
		}
	}
}

// IncRef and DecRef expose the session's reference counter for
// cross-goroutine hand-offs.
func (s *Session) IncRef() { s.rc.IncRef() }

// DecRef drops one reference; the final drop closes the sockets.
func (s *Session) DecRef() { s.rc.DecRef() }

// Live reports whether the session still holds references.
func (s *Session) Live() bool { return s.rc.Live() }

// Weak reports whether the session has no to-tag yet.
func (s *Session) Weak() bool {
	return s.ToTag == ""
}

// AddWeakHold registers one weak hold on the session.
func (s *Session) AddWeakHold() {
	s.weakCnt.Add(1)
}

// DropWeakHold removes one weak hold and reports whether any remain.
func (s *Session) DropWeakHold() int64 {
	n := s.weakCnt.Add(-1)
	if n < 0 {
		s.weakCnt.Store(0)
		n = 0
	}
	return n
}

// Touch refreshes the direction's TTL and the activity timestamp.
func (s *Session) Touch(dir int, ttl int, now time.Time) {
	s.TTL[dir].Store(int64(ttl))
	s.lastActivity.Store(now.UnixNano())
}

// LastActivity returns the time of the most recent packet or command
// touching the session.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// TickTTL decrements both direction TTLs and reports whether either
// side has expired.
func (s *Session) TickTTL() bool {
	expired := false
	for i := range s.TTL {
		if s.TTL[i].Add(-1) <= 0 {
			expired = true
		}
	}
	return expired
}

// ActiveStreams counts the session's allocated stream pairs.
func (s *Session) ActiveStreams() int {
	n := 0
	for _, leg := range s.Legs {
		if leg != nil {
			n++
		}
	}
	return n
}

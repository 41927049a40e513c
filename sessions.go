// SPDX-License-Identifier: GPL-3.0-or-later

package rtpproxy

import (
	"log/slog"
	"sync"
	"time"
)

// heartbeatPeriod is how often the store decrements session TTLs.
const heartbeatPeriod = time.Second

// SessionStore keeps two indices over the same logical session set: a
// strong index keyed by call-id (one call-id may hold several sessions
// during transient states) and a weak index keyed by opaque session id,
// validated by generation on every resolve.
//
// The call-id index owns the sessions: inserting takes the owning
// reference and removing drops it, which closes the sockets once no
// other holder remains. The weak index never keeps a session alive.
//
// All methods are safe for concurrent use. Accessors never hold the
// store lock across blocking I/O.
type SessionStore struct {
	mu       sync.Mutex
	byCallID map[string][]*Session
	weak     map[string]weakEntry
	nextGen  uint64

	// Logger is the [SLogger] to use.
	//
	// Set by [NewSessionStore] from [Config.Logger].
	Logger SLogger

	// TimeNow is the function to get the current time.
	//
	// Set by [NewSessionStore] from [Config.TimeNow].
	TimeNow func() time.Time
}

// weakEntry pairs a non-owning session handle with the generation it was
// registered under. A generation mismatch on resolve means the handle is
// dangling.
type weakEntry struct {
	gen uint64
	s   *Session
}

// NewSessionStore creates an empty [*SessionStore].
func NewSessionStore(cfg *Config) *SessionStore {
	return &SessionStore{
		byCallID: make(map[string][]*Session),
		weak:     make(map[string]weakEntry),
		Logger:   cfg.Logger,
		TimeNow:  cfg.TimeNow,
	}
}

// Insert registers the session under its call-id and in the weak table,
// taking ownership of the caller's reference. Returns the generation for
// weak resolves.
func (ss *SessionStore) Insert(s *Session) uint64 {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.nextGen++
	gen := ss.nextGen
	ss.byCallID[s.CallID] = append(ss.byCallID[s.CallID], s)
	ss.weak[s.ID] = weakEntry{gen: gen, s: s}
	return gen
}

// FindStream resolves a call-id/tag triple to a session and the index of
// the leg whose tag matched fromTag: 0 when fromTag matched the
// session's from-tag, 1 when the tags matched reversed.
//
// The returned session carries a reference taken while the store lock
// was still held, so the TTL reaper cannot finalize it between lookup
// and first use. The caller must DecRef after final use.
func (ss *SessionStore) FindStream(callID, fromTag, toTag string) (*Session, int, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	for _, s := range ss.byCallID[callID] {
		if s.FromTag == fromTag && (toTag == "" || s.ToTag == "" || s.ToTag == toTag) {
			s.IncRef()
			return s, 0, true
		}
		if s.FromTag == toTag && s.ToTag == fromTag {
			s.IncRef()
			return s, 1, true
		}
		// A promoted session also answers to its to-tag alone.
		if s.ToTag != "" && s.ToTag == fromTag && toTag == "" {
			s.IncRef()
			return s, 1, true
		}
	}
	return nil, 0, false
}

// Promote records the to-tag on a weak session.
func (ss *SessionStore) Promote(s *Session, toTag string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	s.ToTag = toTag
}

// WeakResolve returns the session registered under the id if it is still
// current at the given generation. Like [*SessionStore.FindStream] it
// takes the caller's reference under the store lock; the caller must
// DecRef after final use.
func (ss *SessionStore) WeakResolve(id string, gen uint64) (*Session, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	e, ok := ss.weak[id]
	if !ok || e.gen != gen {
		return nil, false
	}
	e.s.IncRef()
	return e.s, true
}

// DeleteResult says what [*SessionStore.Delete] did.
type DeleteResult int

const (
	// DeleteNotFound means the triple resolved to no session.
	DeleteNotFound = DeleteResult(iota)

	// DeleteWeakDropped means a weak hold was dropped and the session
	// stays.
	DeleteWeakDropped

	// DeleteDestroyed means the session was removed.
	DeleteDestroyed
)

// Delete resolves the triple and removes the session. With weak set it
// only drops one weak hold, removing the session when no holds remain.
func (ss *SessionStore) Delete(callID, fromTag, toTag string, weak bool) DeleteResult {
	ss.mu.Lock()
	var victim *Session
	for _, s := range ss.byCallID[callID] {
		if (s.FromTag == fromTag && (toTag == "" || s.ToTag == "" || s.ToTag == toTag)) ||
			(s.FromTag == toTag && s.ToTag == fromTag) ||
			(s.ToTag != "" && s.ToTag == fromTag && toTag == "") {
			victim = s
			break
		}
	}
	if victim == nil {
		ss.mu.Unlock()
		return DeleteNotFound
	}
	if weak && victim.DropWeakHold() > 0 {
		ss.mu.Unlock()
		return DeleteWeakDropped
	}
	ss.removeLocked(victim)
	ss.mu.Unlock()
	victim.DecRef()
	return DeleteDestroyed
}

// removeLocked unlinks the session from both indices. The caller drops
// the owning reference after releasing the lock.
func (ss *SessionStore) removeLocked(victim *Session) {
	list := ss.byCallID[victim.CallID]
	for i, s := range list {
		if s == victim {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(ss.byCallID, victim.CallID)
	} else {
		ss.byCallID[victim.CallID] = list
	}
	delete(ss.weak, victim.ID)
}

// Purge removes every session and returns how many were destroyed.
func (ss *SessionStore) Purge() int {
	ss.mu.Lock()
	var victims []*Session
	for _, list := range ss.byCallID {
		victims = append(victims, list...)
	}
	ss.byCallID = make(map[string][]*Session)
	ss.weak = make(map[string]weakEntry)
	ss.mu.Unlock()
	for _, s := range victims {
		s.DecRef()
	}
	return len(victims)
}

// Len returns the number of stored sessions.
func (ss *SessionStore) Len() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	n := 0
	for _, list := range ss.byCallID {
		n += len(list)
	}
	return n
}

// ActiveStreams counts allocated stream pairs across all sessions.
func (ss *SessionStore) ActiveStreams() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	n := 0
	for _, list := range ss.byCallID {
		for _, s := range list {
			n += s.ActiveStreams()
		}
	}
	return n
}

// ForEach invokes fn for every session while holding the store lock; fn
// must not block or re-enter the store.
func (ss *SessionStore) ForEach(fn func(*Session)) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	for _, list := range ss.byCallID {
		for _, s := range list {
			fn(s)
		}
	}
}

// TickTTL decrements every session's TTL counters and removes the
// expired ones, invoking onExpire for each after it has been unlinked.
// Called by the engine's heartbeat task.
func (ss *SessionStore) TickTTL(onExpire func(*Session)) {
	ss.mu.Lock()
	var expired []*Session
	for _, list := range ss.byCallID {
		for _, s := range list {
			if s.TickTTL() {
				expired = append(expired, s)
			}
		}
	}
	for _, s := range expired {
		ss.removeLocked(s)
	}
	ss.mu.Unlock()
	for _, s := range expired {
		ss.Logger.Info(
			"sessionTimeout",
			slog.String("callID", s.CallID),
			slog.String("fromTag", s.FromTag),
			slog.String("toTag", s.ToTag),
		)
		if onExpire != nil {
			onExpire(s)
		}
		s.DecRef()
	}
}

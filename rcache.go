// SPDX-License-Identifier: GPL-3.0-or-later

package rtpproxy

import (
	"sync"
	"time"
)

// rcacheEvictPeriod is how often the eviction task scans for stale
// entries.
const rcacheEvictPeriod = 10 * time.Second

// RetransCache maps a datagram command's cookie to the reply bytes last
// sent for it. If the same cookie arrives again within the TTL, the
// cached reply is re-sent verbatim and the command's effect on session
// state is suppressed, giving at-most-once semantics over UDP.
//
// Entries older than the TTL are evicted by a periodic task on the
// engine's timed scheduler and are never observable through
// [*RetransCache.Lookup].
type RetransCache struct {
	mu      sync.Mutex
	entries map[string]rcacheEntry
	ttl     time.Duration
	timeNow func() time.Time
	task    *TimedTask
	rc      *RefCounted
}

type rcacheEntry struct {
	reply string
	when  time.Time
}

// NewRetransCache creates a [*RetransCache] with the TTL from cfg and
// registers its eviction task on the scheduler.
func NewRetransCache(cfg *Config, sched *Scheduler) *RetransCache {
	rc := &RetransCache{
		entries: make(map[string]rcacheEntry),
		ttl:     cfg.RCacheTTL,
		timeNow: cfg.TimeNow,
		rc:      NewRefCounted("rcache"),
	}
	rc.rc.IncRef() // held by the eviction task
	rc.task = sched.Schedule(rcacheEvictPeriod, func(now time.Time, arg any) CBResult {
		arg.(*RetransCache).Evict(now)
		return CBMore
	}, rc, rc.rc)
	return rc
}

// Lookup returns the reply cached for the cookie, if present and fresh.
func (rc *RetransCache) Lookup(cookie string) (string, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	e, ok := rc.entries[cookie]
	if !ok || rc.timeNow().Sub(e.when) > rc.ttl {
		return "", false
	}
	return e.reply, true
}

// Insert records the reply last sent for the cookie. The when argument is
// the command's arrival timestamp.
func (rc *RetransCache) Insert(cookie, reply string, when time.Time) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.entries[cookie] = rcacheEntry{reply: reply, when: when}
}

// Evict removes entries older than the TTL relative to now.
func (rc *RetransCache) Evict(now time.Time) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for cookie, e := range rc.entries {
		if now.Sub(e.when) > rc.ttl {
			delete(rc.entries, cookie)
		}
	}
}

// Len returns the number of cached entries, stale ones included.
func (rc *RetransCache) Len() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.entries)
}

// Shutdown cancels the eviction task and drops the cache's own reference.
func (rc *RetransCache) Shutdown() {
	rc.task.Cancel()
	rc.rc.DecRef()
}

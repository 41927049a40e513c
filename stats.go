// SPDX-License-Identifier: GPL-3.0-or-later

package rtpproxy

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Counter is one named atomic counter.
type Counter struct {
	// Name is the stable counter name used by GET_STATS and INFO.
	Name string

	// Descr is the human-readable description added by "Gv".
	Descr string

	val atomic.Int64
}

// Add increments the counter by n.
func (c *Counter) Add(n int64) {
	c.val.Add(n)
}

// Value returns the current counter value.
func (c *Counter) Value() int64 {
	return c.val.Load()
}

// Stats is the relay's named counter set plus the derived values
// maintained by the periodic update tick.
//
// Counters are atomic and may be bumped from any goroutine. The derived
// values (command rate, average load) are refreshed by
// [*Stats.UpdateDerived], which the engine schedules on its timed
// scheduler.
type Stats struct {
	ordered []*Counter
	byName  map[string]*Counter

	// loadBits holds the float64 bits of the average load gauge.
	loadBits atomic.Uint64

	// rateBits holds the float64 bits of the commands-per-second gauge.
	rateBits atomic.Uint64

	// mu guards the update-tick bookkeeping below.
	mu       sync.Mutex
	lastTick time.Time
	lastCmds int64
	haveTick bool
}

// statsTable lists every counter the relay maintains, in reply order.
var statsTable = []struct {
	name  string
	descr string
}{
	{"ncmds_rcvd", "Number of commands received"},
	{"ncmds_rcvd_ndups", "Number of duplicate commands received"},
	{"ncmds_succd", "Number of commands successfully processed"},
	{"ncmds_errs", "Number of commands ended up with an error"},
	{"ncmds_repld", "Number of commands replied"},
	{"nsess_created", "Number of sessions created"},
	{"nsess_destroyed", "Number of sessions destroyed"},
	{"nsess_timeout", "Number of sessions destroyed due to TTL expiry"},
	{"npkts_rcvd", "Number of packets received"},
	{"npkts_relayed", "Number of packets relayed"},
	{"npkts_played", "Number of packets played back"},
	{"nplrs_created", "Number of player instances created"},
	{"nplrs_destroyed", "Number of player instances destroyed"},
}

// NewStats creates the counter set with all counters at zero.
func NewStats() *Stats {
	st := &Stats{byName: make(map[string]*Counter)}
	for _, e := range statsTable {
		c := &Counter{Name: e.name, Descr: e.descr}
		st.ordered = append(st.ordered, c)
		st.byName[e.name] = c
	}
	return st
}

// Bump increments the named counter by one. Unknown names are ignored so
// collaborators compiled against a newer counter table degrade safely.
func (st *Stats) Bump(name string) {
	st.Add(name, 1)
}

// Add increments the named counter by n.
func (st *Stats) Add(name string, n int64) {
	if c, ok := st.byName[name]; ok {
		c.Add(n)
	}
}

// Get returns the named counter value, or zero for unknown names.
func (st *Stats) Get(name string) int64 {
	if c, ok := st.byName[name]; ok {
		return c.Value()
	}
	return 0
}

// Counters returns the counters in stable reply order.
func (st *Stats) Counters() []*Counter {
	return st.ordered
}

// UpdateDerived refreshes the command-rate and average-load gauges. The
// engine invokes it from a timed-scheduler task.
func (st *Stats) UpdateDerived(now time.Time) {
	cmds := st.Get("ncmds_rcvd")
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.haveTick {
		st.haveTick = true
		st.lastTick = now
		st.lastCmds = cmds
		return
	}
	elapsed := now.Sub(st.lastTick).Seconds()
	if elapsed <= 0 {
		return
	}
	rate := float64(cmds-st.lastCmds) / elapsed
	st.rateBits.Store(math.Float64bits(rate))
	// Exponential moving average over the rate, normalized against a
	// nominal 1000 cmds/sec ceiling, stands in for scheduler load.
	prev := math.Float64frombits(st.loadBits.Load())
	load := prev*0.9 + (rate/1000.0)*0.1
	st.loadBits.Store(math.Float64bits(load))
	st.lastTick = now
	st.lastCmds = cmds
}

// CommandRate returns the commands-per-second gauge.
func (st *Stats) CommandRate() float64 {
	return math.Float64frombits(st.rateBits.Load())
}

// AverageLoad returns the average-load gauge reported by "I l".
func (st *Stats) AverageLoad() float64 {
	return math.Float64frombits(st.loadBits.Load())
}

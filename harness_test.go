// SPDX-License-Identifier: GPL-3.0-or-later

package rtpproxy

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/bassosimone/slogstub"
)

// newCapturingLogger returns a logger that captures all log records into
// the returned slice. The caller can inspect the slice after exercising
// the code under test to verify which events were emitted.
func newCapturingLogger() (*slog.Logger, *[]slog.Record) {
	var records []slog.Record
	handler := &slogstub.FuncHandler{
		EnabledFunc: func(ctx context.Context, level slog.Level) bool {
			return true
		},
		HandleFunc: func(ctx context.Context, record slog.Record) error {
			records = append(records, record)
			return nil
		},
	}
	return slog.New(handler), &records
}

// testClock is a manually-advanced clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakePairAllocator hands out stream pairs with no sockets behind them,
// on consecutive even ports.
type fakePairAllocator struct {
	mu   sync.Mutex
	next int
	fail error
}

func (f *fakePairAllocator) Allocate(family string) (*StreamPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	if f.next == 0 {
		f.next = 36000
	}
	pair := &StreamPair{Port: f.next}
	f.next += 2
	return pair, nil
}

// syncSender delivers datagram replies synchronously and records them.
type syncSender struct {
	mu   sync.Mutex
	sent []string
}

func (s *syncSender) SendTo(w PacketWriter, addr net.Addr, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, string(payload))
}

func (s *syncSender) replies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *syncSender) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return ""
	}
	return s.sent[len(s.sent)-1]
}

// testRaddr is the datagram source address used by the harness.
var testRaddr = &net.UDPAddr{IP: net.IPv4(192, 0, 2, 1), Port: 9999}

// newTestEngine wires an engine with a deterministic clock, a fake pair
// allocator and a synchronous sender.
func newTestEngine(t *testing.T) (*Engine, *syncSender, *testClock) {
	t.Helper()
	clock := newTestClock()
	cfg := NewConfig()
	cfg.TimeNow = clock.Now
	e := NewEngine(cfg)
	t.Cleanup(e.Shutdown)
	sender := &syncSender{}
	e.Sender = sender
	e.Alloc = &fakePairAllocator{}
	return e, sender, clock
}

// submit runs one datagram command through the engine and returns the
// reply payload, cookie included.
func submit(e *Engine, sender *syncSender, line string) string {
	e.SubmitDatagram([]byte(line), nil, testRaddr)
	return sender.last()
}

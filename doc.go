// SPDX-License-Identifier: GPL-3.0-or-later

// Package rtpproxy implements an RTP relay daemon: a media-plane
// intermediary that proxies bidirectional RTP and RTCP streams between
// two SIP endpoints whose signalling flows through an external
// controller.
//
// # Control Protocol
//
// The controller steers the relay over a line-oriented text protocol on
// a stream (TCP/UNIX) or datagram (UDP/UNIX) endpoint. One command per
// line; replies are newline-terminated. Over the datagram transport
// every command starts with an opaque cookie echoed back on the reply;
// a retransmit cache keyed by cookie gives at-most-once semantics over
// the unreliable transport.
//
// The command engine is split the classic way: [*Engine.splitCommand]
// tokenizes, strips the cookie, splits at the "&&" sub-command marker
// and pre-parses the common call-id/tag fields; the dispatcher then
// runs the per-opcode handlers (version and capability probes, INFO,
// session UPDATE/LOOKUP/DELETE, PLAY/NOPLAY, RECORD/COPY, QUERY,
// GET_STATS).
//
// # Sessions and Ports
//
// A session is one bidirectional call: call-id, from-tag, optional
// to-tag, and up to two stream pairs. A stream pair is two consecutive
// UDP sockets bound to the same local address, RTP on the even port and
// RTCP on the odd one; pairs come out of per-family port pools walked
// in a pseudo-random but exhaustive order. UPDATE is the only command
// that creates sessions; LOOKUP promotes them by adding the to-tag;
// DELETE (weak or full), DELETE_ALL and TTL expiry destroy them.
//
// # Concurrency
//
// The control goroutine owns parsing and dispatch. Datagram replies are
// handed to a net-I/O goroutine through a bounded FIFO [*WorkQueue], so
// dispatch never blocks on the network. A [*Scheduler] goroutine drives
// the derived-statistics refresh, session TTL accounting and retransmit
// cache eviction. Objects crossing goroutines follow the [*RefCounted]
// discipline: incref before enqueue, decref after final use, destructor
// on the final drop, and a trap on any use after destruction.
//
// # Observability
//
// All components log through [SLogger] (compatible with [log/slog]) and
// classify errors via [ErrClassifier]. By default logging is disabled.
// The named counter set behind INFO and GET_STATS doubles as a
// prometheus collector, see [NewStatsCollector].
package rtpproxy

// SPDX-License-Identifier: GPL-3.0-or-later

package rtpproxy

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bassosimone/runtimex"
)

// handleCommand runs Step II of command processing: parse the
// op-specific parameters, resolve the session where the opcode needs
// one, and execute.
func (e *Engine) handleCommand(cmd *Command) {
	var (
		playcount  int
		pname      string
		codecs     string
		recName    string
		singleFile bool
		weak       bool
		verbose    bool
		ulop       *ulOpts
	)

	switch cmd.CCA.Op {
	case OpVerFeature:
		e.handleVerFeature(cmd)
		return

	case OpGetVer:
		// This returns the base version.
		e.replyNumber(cmd, CProtoVer)
		return

	case OpDeleteAll:
		e.Logger.Info("deletingAllSessions", slog.String("spanID", cmd.Span))
		n := e.Sessions.Purge()
		e.Stats.Add("nsess_destroyed", int64(n))
		e.replyOK(cmd)
		return

	case OpInfo:
		e.handleInfo(cmd, cmd.Args[0][1:])
		return

	case OpPlay:
		// P[count] callid pname codecs from_tag [to_tag]. The codecs
		// list may be the literal "session", which reuses the list
		// saved at the last update.
		playcount = 1
		pname = cmd.Args[2]
		codecs = cmd.Args[3]
		if mods := cmd.Args[0][1:]; mods != "" {
			n, err := strconv.Atoi(mods)
			if err != nil {
				e.logSyntaxError(cmd)
				e.replyError(cmd, ECodeParsePlayCnt)
				return
			}
			playcount = n
		}

	case OpCopy:
		recName = cmd.Args[2]
		fallthrough
	case OpRecord:
		mods := cmd.Args[0][1:]
		switch {
		case mods == "":
			singleFile = false
		case upperByte(mods[0]) == 'S' && len(mods) == 1:
			singleFile = e.cfg.RecordPCAP
		default:
			e.logSyntaxError(cmd)
			e.replyError(cmd, ECodeParseMod)
			return
		}

	case OpDelete:
		// D[w] call_id from_tag [to_tag]
		for _, c := range cmd.Args[0][1:] {
			switch c {
			case 'w', 'W':
				weak = true
			default:
				e.Logger.Error(
					"unknownCommandModifier",
					slog.String("rname", cmd.CCA.RName),
					slog.String("modifier", string(c)),
					slog.String("spanID", cmd.Span),
				)
				e.replyError(cmd, ECodeParseMod)
				return
			}
		}

	case OpUpdate, OpLookup:
		ulop = e.parseULOpts(cmd)
		if ulop == nil {
			return
		}

	case OpGetStats:
		for _, c := range cmd.Args[0][1:] {
			switch c {
			case 'v', 'V':
				verbose = true
			default:
				e.Logger.Error(
					"unknownCommandModifier",
					slog.String("rname", cmd.CCA.RName),
					slog.String("modifier", string(c)),
					slog.String("spanID", cmd.Span),
				)
				e.replyError(cmd, ECodeParseMod)
				return
			}
		}
		e.handleGetStats(cmd, verbose)
		return
	}

	// Delete applies to all streams of the session and carries its own
	// weak semantics, so it resolves the triple through the store.
	if cmd.CCA.Op == OpDelete {
		switch e.Sessions.Delete(cmd.CCA.CallID, cmd.CCA.FromTag, cmd.CCA.ToTag, weak) {
		case DeleteNotFound:
			e.logRequestFailed(cmd)
			e.replyError(cmd, ECodeSessUnknown)
		case DeleteDestroyed:
			e.Stats.Bump("nsess_destroyed")
			e.replyOK(cmd)
		default:
			e.replyOK(cmd)
		}
		return
	}

	// FindStream hands back an already-owned reference; the command
	// keeps it until finished.
	s, dir, found := e.Sessions.FindStream(cmd.CCA.CallID, cmd.CCA.FromTag, cmd.CCA.ToTag)
	if found {
		// All ops but UPDATE act on the stream opposite the one the
		// from-tag matched.
		if cmd.CCA.Op != OpUpdate {
			dir = 1 - dir
		}
		cmd.Session = s
	}

	if !found && cmd.CCA.Op != OpUpdate {
		e.logRequestFailed(cmd)
		if cmd.CCA.Op == OpLookup {
			e.ulReplyPort(cmd, nil)
			return
		}
		e.replyError(cmd, ECodeSessUnknown)
		return
	}

	switch cmd.CCA.Op {
	case OpRecord:
		if err := e.Recorder.Record(s, singleFile); err != nil {
			e.replyError(cmd, ECodeCopyFail)
			return
		}
		e.replyOK(cmd)

	case OpNoPlay:
		e.Player.Stop(s, dir)
		e.replyOK(cmd)

	case OpPlay:
		e.Player.Stop(s, dir)
		resolved, ptime, ok := playCodecs(s, codecs)
		if !ok {
			e.replyError(cmd, ECodeInvalidArg5)
			return
		}
		if playcount != 0 {
			if err := e.Player.Play(s, dir, resolved, pname, playcount, ptime); err != nil {
				e.replyError(cmd, ECodePlayFail)
				return
			}
			e.Stats.Bump("nplrs_created")
		}
		e.replyOK(cmd)

	case OpCopy:
		if err := e.Recorder.Copy(s, dir, recName, singleFile); err != nil {
			e.replyError(cmd, ECodeCopyFail)
			return
		}
		e.replyOK(cmd)

	case OpQuery:
		e.handleQuery(cmd, s, dir)

	case OpUpdate, OpLookup:
		e.handleUpdateLookup(cmd, ulop, dir)

	default:
		// Programmatic error, should not happen.
		runtimex.Assert(false)
	}
}

func (e *Engine) logRequestFailed(cmd *Command) {
	toTag := cmd.CCA.ToTag
	if toTag == "" {
		toTag = "NONE"
	}
	e.Logger.Info(
		"requestFailed",
		slog.String("rname", cmd.CCA.RName),
		slog.String("callID", cmd.CCA.CallID),
		slog.String("fromTag", cmd.CCA.FromTag),
		slog.String("toTag", toTag),
		slog.String("spanID", cmd.Span),
	)
}

// handleInfo replies the counters summary. The b modifier (brief) is
// accepted for compatibility; l appends the average load.
func (e *Engine) handleInfo(cmd *Command, opts string) {
	load := false
	for _, c := range opts {
		switch c {
		case 'b', 'B':
			// The brief listing was retired; accepted as a no-op.
		case 'l', 'L':
			load = true
		default:
			e.logSyntaxError(cmd)
			e.replyError(cmd, ECodeParseArgs)
			return
		}
	}

	packetsIn := e.Stats.Get("npkts_rcvd")
	packetsOut := e.Stats.Get("npkts_relayed") + e.Stats.Get("npkts_played")
	created := e.Stats.Get("nsess_created")
	active := created - e.Stats.Get("nsess_destroyed")
	streams := e.Sessions.ActiveStreams()

	var b strings.Builder
	fmt.Fprintf(&b, "sessions created: %d\n", created)
	fmt.Fprintf(&b, "active sessions: %d\n", active)
	fmt.Fprintf(&b, "active streams: %d\n", streams)
	fmt.Fprintf(&b, "packets received: %d\n", packetsIn)
	fmt.Fprintf(&b, "packets transmitted: %d\n", packetsOut)
	if load {
		fmt.Fprintf(&b, "average load: %f\n", e.Stats.AverageLoad())
	}
	e.replyText(cmd, b.String())
}

// handleVerFeature replies 1 when the probed datestamp names a known
// capability whose runtime precondition is met, else 0.
func (e *Engine) handleVerFeature(cmd *Command) {
	probe := cmd.Args[1]
	// Only advertise the timeout-notification capability when the
	// notification subsystem is actually configured.
	if probe == "20081224" && !e.Notifier.Enabled() {
		e.replyNumber(cmd, 0)
		return
	}
	for _, pc := range protoCaps {
		if pc.ID == probe {
			e.replyNumber(cmd, 1)
			return
		}
	}
	e.replyNumber(cmd, 0)
}

// handleQuery replies the per-stream counter text:
// ttl, packets from caller, packets from callee, relayed, dropped.
func (e *Engine) handleQuery(cmd *Command, s *Session, dir int) {
	ttl := s.TTL[dir].Load()
	if other := s.TTL[1-dir].Load(); other < ttl {
		ttl = other
	}
	p0 := s.PCount[0].Load()
	p1 := s.PCount[1].Load()
	e.replyText(cmd, fmt.Sprintf("%d %d %d %d %d\n", ttl, p0, p1, p0+p1, 0))
}

// handleGetStats replies every counter value; verbose adds the
// descriptions.
func (e *Engine) handleGetStats(cmd *Command, verbose bool) {
	var b strings.Builder
	for _, c := range e.Stats.Counters() {
		if verbose {
			fmt.Fprintf(&b, "%s (%s) = %d\n", c.Name, c.Descr, c.Value())
		} else {
			fmt.Fprintf(&b, "%s = %d\n", c.Name, c.Value())
		}
	}
	e.replyText(cmd, b.String())
}

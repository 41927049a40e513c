// SPDX-License-Identifier: GPL-3.0-or-later

package rtpproxy

import (
	"log/slog"
	"net"
	"strconv"
	"strings"
)

// ulOpts are the parsed options of an UPDATE or LOOKUP command:
//
//	U[mods] call_id from_tag addr port [to_tag]
//
// Modifiers: w marks a weak update, a an asymmetric peer, i/e pick the
// internal/external interface, x requests automatic bridging, n forces
// a new port, z<ms> sets the repacketization time, c<list> records the
// codec list.
type ulOpts struct {
	weak    bool
	asym    bool
	newPort bool
	ptime   int
	codecs  string
	addr    *net.UDPAddr
	family  string
	toTag   string
}

// parseULOpts parses the modifiers and positional arguments of an
// UPDATE/LOOKUP command. On failure it replies the error and returns
// nil, mirroring the pre-parser contract.
func (e *Engine) parseULOpts(cmd *Command) *ulOpts {
	ulop := &ulOpts{ptime: -1}

	mods := cmd.Args[0][1:]
	for i := 0; i < len(mods); i++ {
		switch upperByte(mods[i]) {
		case 'W':
			ulop.weak = true
		case 'A':
			ulop.asym = true
		case 'I', 'E', 'X', 'S':
			// Interface selection, bridging and strong mode are
			// accepted for controller compatibility; the relay
			// has a single media interface.
		case 'N':
			ulop.newPort = true
		case 'Z':
			j := i + 1
			for j < len(mods) && mods[j] >= '0' && mods[j] <= '9' {
				j++
			}
			if j == i+1 {
				e.logSyntaxError(cmd)
				e.replyError(cmd, ECodeInvalidArg4)
				return nil
			}
			ulop.ptime, _ = strconv.Atoi(mods[i+1 : j])
			i = j - 1
		case 'C':
			j := i + 1
			for j < len(mods) && (mods[j] >= '0' && mods[j] <= '9' || mods[j] == ',') {
				j++
			}
			if j == i+1 {
				e.logSyntaxError(cmd)
				e.replyError(cmd, ECodeInvalidArg3)
				return nil
			}
			ulop.codecs = mods[i+1 : j]
			i = j - 1
		default:
			e.Logger.Error(
				"unknownCommandModifier",
				slog.String("rname", cmd.CCA.RName),
				slog.String("modifier", string(mods[i])),
				slog.String("spanID", cmd.Span),
			)
			e.replyError(cmd, ECodeParseMod)
			return nil
		}
	}

	ip := net.ParseIP(cmd.Args[3])
	if ip == nil {
		e.logSyntaxError(cmd)
		e.replyError(cmd, ECodeInvalidArg1)
		return nil
	}
	port, err := strconv.Atoi(cmd.Args[4])
	if err != nil || port < 1 || port > 65535 {
		e.logSyntaxError(cmd)
		e.replyError(cmd, ECodeInvalidArg2)
		return nil
	}
	ulop.addr = &net.UDPAddr{IP: ip, Port: port}
	ulop.family = "ip6"
	if ip.To4() != nil {
		ulop.family = "ip4"
	}
	ulop.toTag = cmd.CCA.ToTag
	return ulop
}

// ulReplyPort replies the base RTP port of the leg serving the
// requesting side, or the synthetic no-port reply 0 when the lookup
// found nothing.
func (e *Engine) ulReplyPort(cmd *Command, pair *StreamPair) {
	if pair == nil {
		e.replyNumber(cmd, 0)
		return
	}
	e.replyNumber(cmd, pair.Port)
}

// handleUpdateLookup implements the U and L opcodes. UPDATE is the only
// opcode that may create a session; LOOKUP promotes an existing one by
// adding the to-tag. dir is the stream index resolved by the session
// store; it is not used when no session matched.
func (e *Engine) handleUpdateLookup(cmd *Command, ulop *ulOpts, dir int) {
	now := e.TimeNow()

	if cmd.Session == nil {
		// LOOKUP never creates: reply the no-port sentinel.
		if cmd.CCA.Op == OpLookup {
			e.ulReplyPort(cmd, nil)
			return
		}
		pair, err := e.Alloc.Allocate(ulop.family)
		if err != nil {
			e.Logger.Error(
				"pairAllocationFailed",
				slog.String("callID", cmd.CCA.CallID),
				slog.Any("err", err),
				slog.String("errClass", e.ErrClassifier.Classify(err)),
				slog.String("spanID", cmd.Span),
			)
			if err == ErrNoPorts {
				e.replyError(cmd, ECodeNoPorts)
			} else {
				e.replyError(cmd, ECodeAllocFail)
			}
			return
		}
		pair.Peer = ulop.addr
		s := newSession(cmd.CCA.CallID, cmd.CCA.FromTag, e.cfg.SessionTTL, now)
		s.Legs[0] = pair
		s.Codecs = ulop.codecs
		s.PTime = ulop.ptime
		if ulop.toTag != "" {
			s.ToTag = ulop.toTag
		}
		if ulop.weak {
			s.AddWeakHold()
		}
		// Take the command's reference before the session becomes
		// reachable through the store, so no other goroutine can
		// finalize it first.
		s.IncRef()
		cmd.Session = s
		e.Sessions.Insert(s)
		e.Stats.Bump("nsess_created")
		e.Logger.Info(
			"sessionCreated",
			slog.String("sessionID", s.ID),
			slog.String("callID", s.CallID),
			slog.String("fromTag", s.FromTag),
			slog.Int("port", pair.Port),
			slog.String("spanID", cmd.Span),
		)
		e.ulReplyPort(cmd, pair)
		return
	}

	s := cmd.Session
	leg := 0
	if cmd.CCA.Op == OpLookup {
		if s.Weak() && ulop.toTag != "" {
			e.Sessions.Promote(s, ulop.toTag)
		}
		leg = 1
	} else {
		leg = dir
	}
	if s.Legs[leg] == nil || (ulop.newPort && cmd.CCA.Op == OpUpdate) {
		pair, err := e.Alloc.Allocate(ulop.family)
		if err != nil {
			e.Logger.Error(
				"pairAllocationFailed",
				slog.String("callID", cmd.CCA.CallID),
				slog.Any("err", err),
				slog.String("errClass", e.ErrClassifier.Classify(err)),
				slog.String("spanID", cmd.Span),
			)
			if err == ErrNoPorts {
				e.replyError(cmd, ECodeNoPorts)
			} else {
				e.replyError(cmd, ECodeAllocFail)
			}
			return
		}
		if old := s.Legs[leg]; old != nil {
			old.Close()
		}
		s.Legs[leg] = pair
	}
	s.Legs[leg].Peer = ulop.addr
	if ulop.codecs != "" {
		s.Codecs = ulop.codecs
		s.PTime = ulop.ptime
	}
	if ulop.weak && cmd.CCA.Op == OpUpdate {
		s.AddWeakHold()
	}
	s.Touch(leg, e.cfg.SessionTTL, now)
	e.ulReplyPort(cmd, s.Legs[leg])
}

// playCodecs resolves the codec list of a PLAY command, honoring the
// "session" literal that reuses the codecs recorded at last update.
func playCodecs(s *Session, codecs string) (string, int, bool) {
	if strings.EqualFold(codecs, "session") {
		if s.Codecs == "" {
			return "", 0, false
		}
		return s.Codecs, s.PTime, true
	}
	return codecs, -1, true
}

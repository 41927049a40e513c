// SPDX-License-Identifier: GPL-3.0-or-later

package rtpproxy

import (
	"io"
	"log/slog"
	"net"
	"strings"
	"time"
)

// RTPCMaxArgc caps the main and sub-command argument vectors.
const RTPCMaxArgc = 20

// Opcode identifies one control-protocol operation.
type Opcode int

const (
	OpInvalid = Opcode(iota)
	OpGetVer
	OpVerFeature
	OpInfo
	OpDeleteAll
	OpDelete
	OpPlay
	OpNoPlay
	OpRecord
	OpCopy
	OpUpdate
	OpLookup
	OpQuery
	OpGetStats
)

// CommonArgs are the fields the pre-parser extracts for every opcode.
type CommonArgs struct {
	// Op is the parsed opcode.
	Op Opcode

	// RName is the static opcode label used in log records.
	RName string

	// CallID, FromTag and ToTag identify the call the command refers
	// to. Empty for opcodes that do not address a session.
	CallID  string
	FromTag string
	ToTag   string
}

// Command is one control request in flight, created when a command is
// read from a control endpoint and destroyed after its reply is written.
type Command struct {
	// Created is the arrival timestamp.
	Created time.Time

	// Datagram says whether the command arrived over the datagram
	// transport (and thus carries a cookie).
	Datagram bool

	// W is the reply writer for datagram commands; Raddr is the
	// source address the reply goes back to.
	W     PacketWriter
	Raddr net.Addr

	// SW is the reply writer for stream commands.
	SW io.Writer

	// Cookie is the opaque token echoed back on the reply, datagram
	// mode only.
	Cookie string

	// Args and SubcArgs are the tokenized argument vectors, split at
	// the "&&" token.
	Args     []string
	SubcArgs []string

	// CCA holds the pre-parsed common fields.
	CCA CommonArgs

	// Session is the session resolved during dispatch; the command
	// holds one reference on it until finished.
	Session *Session

	// Span correlates all log records emitted for this command.
	Span string
}

// finish releases what the command holds.
func (cmd *Command) finish() {
	if cmd.Session != nil {
		cmd.Session.DecRef()
		cmd.Session = nil
	}
}

// isAmpAmp reports whether the token is the sub-command separator.
func isAmpAmp(tok string) bool {
	return tok == "&&"
}

// newCommand constructs a [*Command] for one raw control message.
func (e *Engine) newCommand(datagram bool, w PacketWriter, sw io.Writer, raddr net.Addr) *Command {
	return &Command{
		Created:  e.TimeNow(),
		Datagram: datagram,
		W:        w,
		Raddr:    raddr,
		SW:       sw,
		Span:     NewSpanID(),
	}
}

// splitCommand tokenizes the raw buffer into cmd.Args/cmd.SubcArgs,
// strips the cookie in datagram mode, guards against retransmits, and
// pre-parses the common fields. It returns true when the command is
// complete: either a parse error was replied or a cached duplicate
// reply was re-sent.
func (e *Engine) splitCommand(cmd *Command, buf string) bool {
	if n := len(buf); n > 0 && buf[n-1] == '\n' {
		e.Logger.Debug(
			"commandReceived",
			slog.String("cmd", buf[:n-1]),
			slog.String("spanID", cmd.Span),
		)
	} else {
		e.Logger.Debug(
			"commandReceived",
			slog.String("cmd", buf),
			slog.String("spanID", cmd.Span),
		)
	}
	e.Stats.Bump("ncmds_rcvd")

	subc := false
	for _, tok := range strings.FieldsFunc(buf, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\r' || r == '\n'
	}) {
		if !subc {
			// Stream communication mode doesn't use a cookie.
			if cmd.Datagram && cmd.Cookie == "" && len(cmd.Args) == 0 {
				cmd.Cookie = tok
				if e.guardRetrans(cmd) {
					return true
				}
				continue
			}
			if isAmpAmp(tok) {
				subc = true
				continue
			}
			if len(cmd.Args) >= RTPCMaxArgc {
				e.replyError(cmd, ECodeParseArgC)
				return true
			}
			cmd.Args = append(cmd.Args, tok)
			continue
		}
		if len(cmd.SubcArgs) >= RTPCMaxArgc {
			e.replyError(cmd, ECodeParseArgC)
			return true
		}
		cmd.SubcArgs = append(cmd.SubcArgs, tok)
	}

	switch {
	case cmd.Datagram && cmd.Cookie == "":
		e.logSyntaxError(cmd)
		e.replyError(cmd, ECodeParseNoCookie)
		return true
	case len(cmd.Args) < 1:
		e.logSyntaxError(cmd)
		e.replyError(cmd, ECodeParseEmpty)
		return true
	case subc && len(cmd.SubcArgs) < 1:
		e.logSyntaxError(cmd)
		e.replyError(cmd, ECodeParseSubCEmpty)
		return true
	}

	// Step I: parse parameters that are common to all ops.
	return e.preParse(cmd)
}

func (e *Engine) logSyntaxError(cmd *Command) {
	e.Logger.Error("commandSyntaxError", slog.String("spanID", cmd.Span))
}

// guardRetrans consults the retransmit cache: on a hit it re-sends the
// cached reply verbatim, corrects the received-command counters, and
// reports that the command is complete.
func (e *Engine) guardRetrans(cmd *Command) bool {
	cached, ok := e.RCache.Lookup(cmd.Cookie)
	if !ok {
		return false
	}
	e.Sender.SendTo(cmd.W, cmd.Raddr, []byte(cached))
	e.Stats.Add("ncmds_rcvd", -1)
	e.Stats.Bump("ncmds_rcvd_ndups")
	return true
}

// opcodeTable maps the opcode letter to the opcode and its label.
var opcodeTable = map[byte]struct {
	op    Opcode
	rname string
}{
	'V': {OpGetVer, "ver"},
	'I': {OpInfo, "info"},
	'X': {OpDeleteAll, "delete_all"},
	'D': {OpDelete, "delete"},
	'P': {OpPlay, "play"},
	'S': {OpNoPlay, "noplay"},
	'R': {OpRecord, "record"},
	'C': {OpCopy, "copy"},
	'U': {OpUpdate, "update"},
	'L': {OpLookup, "lookup"},
	'Q': {OpQuery, "query"},
	'G': {OpGetStats, "get_stats"},
}

// preParse extracts the opcode and the common call-id/tag fields into
// cmd.CCA. It returns true when the command is complete because an
// error was replied.
func (e *Engine) preParse(cmd *Command) bool {
	op0 := cmd.Args[0]
	entry, ok := opcodeTable[upperByte(op0[0])]
	if !ok {
		e.logSyntaxError(cmd)
		e.replyError(cmd, ECodeCmdUnknown)
		return true
	}
	cmd.CCA.Op = entry.op
	cmd.CCA.RName = entry.rname

	// VF is the V opcode with the F modifier.
	if cmd.CCA.Op == OpGetVer && len(op0) > 1 && upperByte(op0[1]) == 'F' {
		cmd.CCA.Op = OpVerFeature
		cmd.CCA.RName = "ver_feature"
		if len(cmd.Args) < 2 {
			e.logSyntaxError(cmd)
			e.replyError(cmd, ECodeParseArgs)
			return true
		}
	}

	// Positions of call-id and tags vary by opcode.
	var needed int
	var fromIdx int
	switch cmd.CCA.Op {
	case OpUpdate, OpLookup:
		needed, fromIdx = 5, 2
	case OpDelete, OpNoPlay, OpRecord, OpQuery:
		needed, fromIdx = 3, 2
	case OpCopy:
		needed, fromIdx = 4, 3
	case OpPlay:
		needed, fromIdx = 5, 4
	default:
		return false
	}
	if len(cmd.Args) < needed {
		e.logSyntaxError(cmd)
		e.replyError(cmd, ECodeParseArgs)
		return true
	}
	cmd.CCA.CallID = cmd.Args[1]
	cmd.CCA.FromTag = cmd.Args[fromIdx]
	switch cmd.CCA.Op {
	case OpUpdate, OpLookup:
		if len(cmd.Args) > 5 {
			cmd.CCA.ToTag = cmd.Args[5]
		}
	default:
		if len(cmd.Args) > fromIdx+1 {
			cmd.CCA.ToTag = cmd.Args[fromIdx+1]
		}
	}
	return false
}

func upperByte(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}

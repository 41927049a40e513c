// SPDX-License-Identifier: GPL-3.0-or-later

package rtpproxy

// Reply codes are stable across versions: 0 is OK, positive numbers are
// values, and errors are rendered as "E<code>\n". Parse errors occupy
// the 1..7 band; semantic errors start at 8.
const (
	// ECodeCmdUnknown is an unrecognized opcode letter.
	ECodeCmdUnknown = 0

	// ECodeParseEmpty is an empty command.
	ECodeParseEmpty = 1

	// ECodeParseNoCookie is a datagram command without a cookie.
	ECodeParseNoCookie = 2

	// ECodeParseSubCEmpty is an empty sub-command after "&&".
	ECodeParseSubCEmpty = 3

	// ECodeParseArgC is an argument-vector overflow.
	ECodeParseArgC = 4

	// ECodeParseMod is a malformed opcode modifier character.
	ECodeParseMod = 5

	// ECodeParsePlayCnt is a malformed PLAY repeat count.
	ECodeParsePlayCnt = 6

	// ECodeParseArgs is a missing or malformed common argument
	// detected by the pre-parser, or an unknown INFO modifier.
	ECodeParseArgs = 7

	// ECodeSessUnknown means the call-id/tag triple resolves to no
	// session.
	ECodeSessUnknown = 8

	// ECodePlayFail means the play request was rejected by the player.
	ECodePlayFail = 9

	// ECodeCopyFail means the copy request was rejected by the
	// recorder.
	ECodeCopyFail = 10

	// ECodeInvalidArg1..4 are opcode-specific semantic errors:
	// 1 is a malformed peer address, 2 a malformed peer port, 3 a
	// malformed codec list, 4 a malformed repacketization time.
	ECodeInvalidArg1 = 11
	ECodeInvalidArg2 = 12
	ECodeInvalidArg3 = 13
	ECodeInvalidArg4 = 14

	// ECodeInvalidArg5 means PLAY asked for the "session" codecs but
	// no codecs were recorded at the last update.
	ECodeInvalidArg5 = 15

	// ECodeNoPorts means the port-pair pool is exhausted.
	ECodeNoPorts = 16

	// ECodeAllocFail is a hard listener-allocation failure.
	ECodeAllocFail = 17

	// ECodeQueryFail means QUERY could not resolve the stream
	// counters.
	ECodeQueryFail = 18
)

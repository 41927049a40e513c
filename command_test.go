// SPDX-License-Identifier: GPL-3.0-or-later

package rtpproxy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitCommandTokenization(t *testing.T) {
	e, _, _ := newTestEngine(t)

	cmd := e.newCommand(true, nil, nil, testRaddr)
	done := e.splitCommand(cmd, "y1 tok1 tok2 && sub1 sub2\n")
	require.False(t, done)
	assert.Equal(t, "y1", cmd.Cookie)
	assert.Equal(t, []string{"tok1", "tok2"}, cmd.Args)
	assert.Equal(t, []string{"sub1", "sub2"}, cmd.SubcArgs)
}

func TestSplitCommandSeparators(t *testing.T) {
	e, _, _ := newTestEngine(t)

	// Runs of any separator collapse; empty tokens are elided.
	cmd := e.newCommand(false, nil, nil, nil)
	done := e.splitCommand(cmd, "\t V  \r\n")
	require.False(t, done)
	assert.Equal(t, []string{"V"}, cmd.Args)
	assert.Empty(t, cmd.SubcArgs)
}

func TestSplitCommandStreamModeHasNoCookie(t *testing.T) {
	e, _, _ := newTestEngine(t)

	cmd := e.newCommand(false, nil, nil, nil)
	done := e.splitCommand(cmd, "V\n")
	require.False(t, done)
	assert.Equal(t, "", cmd.Cookie)
	assert.Equal(t, []string{"V"}, cmd.Args)
}

func TestSplitCommandParseErrors(t *testing.T) {
	t.Run("empty command", func(t *testing.T) {
		e, _, _ := newTestEngine(t)
		var sb strings.Builder
		cmd := e.newCommand(false, nil, &sb, nil)
		done := e.splitCommand(cmd, "\n")
		assert.True(t, done)
		assert.Equal(t, "E1\n", sb.String())
	})

	t.Run("missing cookie in datagram mode", func(t *testing.T) {
		e, sender, _ := newTestEngine(t)
		cmd := e.newCommand(true, nil, nil, testRaddr)
		done := e.splitCommand(cmd, "\n")
		assert.True(t, done)
		assert.Equal(t, "E2\n", sender.last())
	})

	t.Run("cookie alone is an empty command", func(t *testing.T) {
		e, sender, _ := newTestEngine(t)
		cmd := e.newCommand(true, nil, nil, testRaddr)
		done := e.splitCommand(cmd, "c1\n")
		assert.True(t, done)
		assert.Equal(t, "c1 E1\n", sender.last())
	})

	t.Run("empty sub-command", func(t *testing.T) {
		e, sender, _ := newTestEngine(t)
		cmd := e.newCommand(true, nil, nil, testRaddr)
		done := e.splitCommand(cmd, "c1 U call-A ft 1.2.3.4 5000 &&\n")
		assert.True(t, done)
		assert.Equal(t, "c1 E3\n", sender.last())
	})

	t.Run("argument vector overflow", func(t *testing.T) {
		e, sender, _ := newTestEngine(t)
		cmd := e.newCommand(true, nil, nil, testRaddr)
		line := "c1 " + strings.Repeat("arg ", RTPCMaxArgc+1) + "\n"
		done := e.splitCommand(cmd, line)
		assert.True(t, done)
		assert.Equal(t, "c1 E4\n", sender.last())
	})
}

func TestPreParseCommonFields(t *testing.T) {
	e, _, _ := newTestEngine(t)

	tests := []struct {
		line    string
		op      Opcode
		rname   string
		callID  string
		fromTag string
		toTag   string
	}{
		{"V", OpGetVer, "ver", "", "", ""},
		{"VF 20191015", OpVerFeature, "ver_feature", "", "", ""},
		{"Il", OpInfo, "info", "", "", ""},
		{"X", OpDeleteAll, "delete_all", "", "", ""},
		{"G", OpGetStats, "get_stats", "", "", ""},
		{"D call-A ft", OpDelete, "delete", "call-A", "ft", ""},
		{"Dw call-A ft tt", OpDelete, "delete", "call-A", "ft", "tt"},
		{"U call-A ft 1.2.3.4 5000", OpUpdate, "update", "call-A", "ft", ""},
		{"L call-A ft 5.6.7.8 6000 tt", OpLookup, "lookup", "call-A", "ft", "tt"},
		{"P call-A prompt 0,8 ft tt", OpPlay, "play", "call-A", "ft", "tt"},
		{"S call-A ft", OpNoPlay, "noplay", "call-A", "ft", ""},
		{"R call-A ft tt", OpRecord, "record", "call-A", "ft", "tt"},
		{"C call-A rec-name ft tt", OpCopy, "copy", "call-A", "ft", "tt"},
		{"Q call-A ft tt", OpQuery, "query", "call-A", "ft", "tt"},
	}
	for _, tc := range tests {
		cmd := e.newCommand(false, nil, nil, nil)
		done := e.splitCommand(cmd, tc.line+"\n")
		require.False(t, done, "line %q", tc.line)
		assert.Equal(t, tc.op, cmd.CCA.Op, "line %q", tc.line)
		assert.Equal(t, tc.rname, cmd.CCA.RName, "line %q", tc.line)
		assert.Equal(t, tc.callID, cmd.CCA.CallID, "line %q", tc.line)
		assert.Equal(t, tc.fromTag, cmd.CCA.FromTag, "line %q", tc.line)
		assert.Equal(t, tc.toTag, cmd.CCA.ToTag, "line %q", tc.line)
	}
}

func TestPreParseErrors(t *testing.T) {
	t.Run("unknown opcode", func(t *testing.T) {
		e, sender, _ := newTestEngine(t)
		assert.Equal(t, "c1 E0\n", submit(e, sender, "c1 Z call-A\n"))
	})

	t.Run("missing arguments", func(t *testing.T) {
		e, sender, _ := newTestEngine(t)
		assert.Equal(t, "c1 E7\n", submit(e, sender, "c1 U call-A\n"))
	})

	t.Run("ver feature without id", func(t *testing.T) {
		e, sender, _ := newTestEngine(t)
		assert.Equal(t, "c1 E7\n", submit(e, sender, "c1 VF\n"))
	})
}

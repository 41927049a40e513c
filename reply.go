// SPDX-License-Identifier: GPL-3.0-or-later

package rtpproxy

import (
	"fmt"
	"log/slog"
	"strings"
)

// doReply writes the reply for the command and bumps the reply
// counters.
//
// Stream mode writes to the control connection directly. Datagram mode
// prepends the cookie, records the composed reply in the retransmit
// cache, and hands the bytes to the async net-I/O goroutine so dispatch
// never blocks on the network.
func (e *Engine) doReply(cmd *Command, body string, errd bool) {
	e.Logger.Debug(
		"sendingReply",
		slog.String("reply", strings.TrimSuffix(body, "\n")),
		slog.String("spanID", cmd.Span),
	)
	if !cmd.Datagram {
		if cmd.SW != nil {
			if _, err := cmd.SW.Write([]byte(body)); err != nil {
				e.Logger.Error(
					"replyWriteFailed",
					slog.Any("err", err),
					slog.String("errClass", e.ErrClassifier.Classify(err)),
					slog.String("spanID", cmd.Span),
				)
			}
		}
	} else {
		payload := body
		if cmd.Cookie != "" {
			payload = cmd.Cookie + " " + body
			e.RCache.Insert(cmd.Cookie, payload, cmd.Created)
		}
		e.Sender.SendTo(cmd.W, cmd.Raddr, []byte(payload))
	}
	e.Stats.Bump("ncmds_repld")
	if errd {
		e.Stats.Bump("ncmds_errs")
	} else {
		e.Stats.Bump("ncmds_succd")
	}
}

// replyNumber replies a decimal value; 0 is the OK reply.
func (e *Engine) replyNumber(cmd *Command, number int) {
	e.doReply(cmd, fmt.Sprintf("%d\n", number), false)
}

// replyOK replies 0.
func (e *Engine) replyOK(cmd *Command) {
	e.replyNumber(cmd, 0)
}

// replyError replies E<code>.
func (e *Engine) replyError(cmd *Command, ecode int) {
	e.doReply(cmd, fmt.Sprintf("E%d\n", ecode), true)
}

// replyText replies a preformatted multi-line body.
func (e *Engine) replyText(cmd *Command, body string) {
	e.doReply(cmd, body, false)
}

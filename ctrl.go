// SPDX-License-Identifier: GPL-3.0-or-later

package rtpproxy

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/bassosimone/safeconn"
)

// ctrlReadBuf bounds one datagram control message.
const ctrlReadBuf = 8 * 1024

// ControlServer runs the control-protocol service loops over stream and
// datagram endpoints, feeding one [*Engine].
//
// Commands from a single endpoint are processed in arrival order and
// their replies are emitted in the same order.
//
// All fields are safe to modify after construction but before first
// use.
type ControlServer struct {
	// Engine processes the commands.
	Engine *Engine

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewControlServer] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	//
	// Set by [NewControlServer] from [Config.Logger].
	Logger SLogger
}

// NewControlServer returns a [*ControlServer] feeding the engine.
func NewControlServer(cfg *Config, engine *Engine) *ControlServer {
	return &ControlServer{
		Engine:        engine,
		ErrClassifier: cfg.ErrClassifier,
		Logger:        cfg.Logger,
	}
}

// ServeDatagram reads control messages from the packet conn until the
// context is done or the conn fails. The conn is closed when the
// context is done, which unblocks the read loop.
func (cs *ControlServer) ServeDatagram(ctx context.Context, conn net.PacketConn) error {
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()
	buf := make([]byte, ctrlReadBuf)
	for {
		n, raddr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			cs.Logger.Error(
				"controlReadFailed",
				slog.Any("err", err),
				slog.String("errClass", cs.ErrClassifier.Classify(err)),
			)
			return err
		}
		msg := make([]byte, n)
		copy(msg, buf[:n])
		cs.Engine.SubmitDatagram(msg, conn, raddr)
	}
}

// ServeStream accepts control connections and serves each on its own
// goroutine until the context is done. The listener is closed when the
// context is done, which unblocks the accept loop.
func (cs *ControlServer) ServeStream(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		ln.Close()
	})
	defer stop()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			cs.Logger.Error(
				"controlAcceptFailed",
				slog.Any("err", err),
				slog.String("errClass", cs.ErrClassifier.Classify(err)),
			)
			return err
		}
		go cs.serveStreamConn(ctx, conn)
	}
}

// serveStreamConn reads one command per line and replies inline, in
// arrival order.
func (cs *ControlServer) serveStreamConn(ctx context.Context, conn net.Conn) {
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()
	defer conn.Close()
	cs.Logger.Info(
		"controlConnOpen",
		slog.String("protocol", safeconn.Network(conn)),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
	)
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, ctrlReadBuf), ctrlReadBuf)
	for scanner.Scan() {
		cs.Engine.SubmitStream(scanner.Bytes(), conn)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
		cs.Logger.Debug(
			"controlConnReadFailed",
			slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
			slog.Any("err", err),
			slog.String("errClass", cs.ErrClassifier.Classify(err)),
		)
	}
	cs.Logger.Info(
		"controlConnClosed",
		slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
	)
}

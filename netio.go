// SPDX-License-Identifier: GPL-3.0-or-later

package rtpproxy

import (
	"log/slog"
	"net"
)

// netioBatch is how many queued sends the net-I/O goroutine drains per
// critical section.
const netioBatch = 64

// sigNetioShutdown is the sentinel that stops the net-I/O goroutine.
const sigNetioShutdown = 1

// PacketWriter is where a datagram reply is written. [net.PacketConn]
// satisfies this interface.
type PacketWriter interface {
	WriteTo(p []byte, addr net.Addr) (int, error)
}

// DatagramSender hands reply datagrams off for asynchronous sending, so
// dispatch never blocks on the network.
type DatagramSender interface {
	SendTo(w PacketWriter, addr net.Addr, payload []byte)
}

// sendReq is one queued datagram send.
type sendReq struct {
	w       PacketWriter
	addr    net.Addr
	payload []byte
}

// AsyncSender is the production [DatagramSender]: a work queue drained
// in batches by a dedicated net-I/O goroutine.
//
// Construct via [NewAsyncSender]; stop via [*AsyncSender.Shutdown].
type AsyncSender struct {
	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewAsyncSender] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	//
	// Set by [NewAsyncSender] from [Config.Logger].
	Logger SLogger

	queue *WorkQueue
	done  chan struct{}
}

var _ DatagramSender = &AsyncSender{}

// NewAsyncSender creates an [*AsyncSender] and starts its goroutine.
func NewAsyncSender(cfg *Config) *AsyncSender {
	as := &AsyncSender{
		ErrClassifier: cfg.ErrClassifier,
		Logger:        cfg.Logger,
		queue:         NewWorkQueue(1024, "netio"),
		done:          make(chan struct{}),
	}
	go as.run()
	return as
}

// SendTo implements [DatagramSender]. It enqueues the send and returns
// immediately; delivery failures are logged by the net-I/O goroutine.
func (as *AsyncSender) SendTo(w PacketWriter, addr net.Addr, payload []byte) {
	as.queue.Put(NewDataItem(&sendReq{w: w, addr: addr, payload: payload}, nil))
}

// Shutdown enqueues the shutdown sentinel, waits for the goroutine to
// drain and exit, then destroys the queue.
func (as *AsyncSender) Shutdown() {
	as.queue.Put(NewSignalItem(sigNetioShutdown))
	<-as.done
	as.queue.Destroy()
}

func (as *AsyncSender) run() {
	defer close(as.done)
	var buf [netioBatch]*WorkItem
	for {
		n := as.queue.GetBatch(buf[:], true)
		for i := 0; i < n; i++ {
			wi := buf[i]
			if wi.Kind == WorkItemSignal {
				return
			}
			req := wi.Data.(*sendReq)
			if _, err := req.w.WriteTo(req.payload, req.addr); err != nil {
				as.Logger.Debug(
					"sendtoFailed",
					slog.String("remoteAddr", req.addr.String()),
					slog.Any("err", err),
					slog.String("errClass", as.ErrClassifier.Classify(err)),
				)
			}
			wi.Release()
		}
	}
}

// SPDX-License-Identifier: GPL-3.0-or-later

package rtpproxy

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/higebu/netfd"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// mediaSocketRcvBuf is the receive buffer applied to media sockets.
const mediaSocketRcvBuf = 256 * 1024

// PTUResult is the outcome of one twin-listener creation attempt.
type PTUResult int

const (
	// PTUOK means both sockets are bound and the search is over.
	PTUOK = PTUResult(iota)

	// PTUOneMore means the candidate base port is busy; the search
	// moves on to the next candidate.
	PTUOneMore

	// PTUBrkErr is a hard failure that aborts the search.
	PTUBrkErr
)

// ErrNoPorts is returned when every candidate base port in the pool has
// been tried without success.
var ErrNoPorts = errors.New("rtpproxy: out of media ports")

// TwinCreator attempts to create a twin listener on the given even base
// port. It returns [PTUOK] on success, [PTUOneMore] when the port is
// busy, and [PTUBrkErr] together with the underlying error on hard
// failures.
type TwinCreator func(port int) (PTUResult, error)

// PortTable walks a pool of even base ports in a pseudo-random but
// pool-exhaustive order, handing each candidate to a caller-supplied
// [TwinCreator]. One table exists per address family.
type PortTable struct {
	mu       sync.Mutex
	basePort int
	nPorts   int
	rng      *rand.Rand
}

// NewPortTable creates a [*PortTable] over [minPort, maxPort]. The lower
// bound is rounded up to even; each candidate base port is even.
func NewPortTable(minPort, maxPort int) *PortTable {
	if minPort%2 != 0 {
		minPort++
	}
	n := (maxPort - minPort) / 2
	if n < 1 {
		n = 1
	}
	return &PortTable{
		basePort: minPort,
		nPorts:   n,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// GetPort runs the allocation search. Candidates are visited starting
// from a random pool index with a stride coprime to the pool size, so
// the walk covers every base port exactly once without scanning
// linearly. Returns the bound base port on success, [ErrNoPorts] when
// the pool is exhausted, or the creator's error on a hard failure.
func (pt *PortTable) GetPort(create TwinCreator) (int, error) {
	pt.mu.Lock()
	start := pt.rng.Intn(pt.nPorts)
	stride := pt.rng.Intn(pt.nPorts) + 1
	for gcd(stride, pt.nPorts) != 1 {
		stride++
	}
	pt.mu.Unlock()

	for i := 0; i < pt.nPorts; i++ {
		idx := (start + i*stride) % pt.nPorts
		port := pt.basePort + idx*2
		res, err := create(port)
		switch res {
		case PTUOK:
			return port, nil
		case PTUOneMore:
			continue
		default:
			return 0, err
		}
	}
	return 0, ErrNoPorts
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// PairAllocator allocates bound even/odd socket pairs for one leg of a
// session. The production implementation is [*ListenerAllocator]; tests
// substitute fakes.
type PairAllocator interface {
	Allocate(family string) (*StreamPair, error)
}

// ListenerAllocator binds real UDP twin listeners out of per-family
// port pools.
//
// All fields are safe to modify after construction but before first use.
type ListenerAllocator struct {
	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewListenerAllocator] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	//
	// Set by [NewListenerAllocator] from [Config.Logger].
	Logger SLogger

	// BindIP4 and BindIP6 are the per-family local bind addresses.
	BindIP4 string
	BindIP6 string

	// TOS is the type-of-service byte for IPv4 sockets; negative
	// disables it.
	TOS int

	// Table4 and Table6 are the per-family port pools.
	Table4 *PortTable
	Table6 *PortTable
}

var _ PairAllocator = &ListenerAllocator{}

// NewListenerAllocator returns a [*ListenerAllocator] with pools built
// from the config's port range.
func NewListenerAllocator(cfg *Config) *ListenerAllocator {
	return &ListenerAllocator{
		ErrClassifier: cfg.ErrClassifier,
		Logger:        cfg.Logger,
		BindIP4:       cfg.BindIP4,
		BindIP6:       cfg.BindIP6,
		TOS:           cfg.TOS,
		Table4:        NewPortTable(cfg.PortMin, cfg.PortMax),
		Table6:        NewPortTable(cfg.PortMin, cfg.PortMax),
	}
}

// Allocate implements [PairAllocator]. The family argument is "ip4" or
// "ip6".
func (la *ListenerAllocator) Allocate(family string) (*StreamPair, error) {
	network, bindIP := "udp4", la.BindIP4
	table := la.Table4
	if family == "ip6" {
		network, bindIP = "udp6", la.BindIP6
		table = la.Table6
	}
	var pair *StreamPair
	port, err := table.GetPort(func(port int) (PTUResult, error) {
		p, res, err := la.createTwinListener(network, bindIP, port)
		pair = p
		return res, err
	})
	if err != nil {
		return nil, err
	}
	pair.Port = port
	return pair, nil
}

// createTwinListener binds the even/odd socket pair at the candidate
// base port and applies the media socket options.
func (la *ListenerAllocator) createTwinListener(network, bindIP string, basePort int) (*StreamPair, PTUResult, error) {
	ip := net.ParseIP(bindIP)
	if ip == nil {
		return nil, PTUBrkErr, fmt.Errorf("rtpproxy: invalid bind address %q", bindIP)
	}
	var conns [2]*net.UDPConn
	for i := 0; i < 2; i++ {
		conn, err := net.ListenUDP(network, &net.UDPAddr{IP: ip, Port: basePort + i})
		if err != nil {
			for j := 0; j < i; j++ {
				conns[j].Close()
			}
			if errors.Is(err, syscall.EADDRINUSE) || errors.Is(err, syscall.EACCES) {
				return nil, PTUOneMore, err
			}
			la.Logger.Error(
				"bindFailed",
				slog.String("protocol", network),
				slog.Int("port", basePort+i),
				slog.Any("err", err),
				slog.String("errClass", la.ErrClassifier.Classify(err)),
			)
			return nil, PTUBrkErr, err
		}
		la.setMediaSockOpts(network, conn)
		conns[i] = conn
	}
	return &StreamPair{RTP: conns[0], RTCP: conns[1]}, PTUOK, nil
}

// setMediaSockOpts applies the receive buffer, receive timestamping and,
// for IPv4, the configured TOS byte. Option failures are logged and the
// socket is used anyway.
func (la *ListenerAllocator) setMediaSockOpts(network string, conn *net.UDPConn) {
	if err := conn.SetReadBuffer(mediaSocketRcvBuf); err != nil {
		la.Logger.Warn(
			"setRcvBufFailed",
			slog.Any("err", err),
			slog.String("errClass", la.ErrClassifier.Classify(err)),
		)
	}
	fd := netfd.GetFdFromConn(conn)
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_TIMESTAMP, 1); err != nil {
		la.Logger.Warn(
			"setTimestampFailed",
			slog.Any("err", err),
			slog.String("errClass", la.ErrClassifier.Classify(err)),
		)
	}
	if network == "udp4" && la.TOS >= 0 {
		if err := ipv4.NewConn(conn).SetTOS(la.TOS); err != nil {
			la.Logger.Warn(
				"setTOSFailed",
				slog.Int("tos", la.TOS),
				slog.Any("err", err),
				slog.String("errClass", la.ErrClassifier.Classify(err)),
			)
		}
	}
}

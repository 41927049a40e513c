// SPDX-License-Identifier: GPL-3.0-or-later

// Command rtpproxyd runs the RTP relay daemon.
package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ca4ti/rtpproxy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
)

func main() {
	var (
		listenUDP    = pflag.StringP("listen-udp", "l", "127.0.0.1:22222", "datagram control endpoint")
		listenTCP    = pflag.StringP("listen-tcp", "s", "", "stream control endpoint (disabled when empty)")
		portMin      = pflag.Int("port-min", rtpproxy.DefaultPortMin, "lowest media port")
		portMax      = pflag.Int("port-max", rtpproxy.DefaultPortMax, "highest media port")
		tos          = pflag.Int("tos", -1, "TOS byte for IPv4 media sockets, -1 disables")
		sessionTTL   = pflag.Int("ttl", rtpproxy.DefaultSessionTTL, "session TTL in seconds")
		rcacheTTL    = pflag.Duration("rcache-ttl", rtpproxy.DefaultRCacheTTL, "retransmit cache TTL")
		notifyTarget = pflag.StringP("notify", "n", "", "session timeout notification target")
		recordPCAP   = pflag.Bool("record-pcap", false, "record media to PCAP files")
		metricsAddr  = pflag.String("metrics", "", "prometheus /metrics endpoint (disabled when empty)")
		verbose      = pflag.BoolP("verbose", "v", false, "log debug records too")
	)
	pflag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := rtpproxy.NewConfig()
	cfg.Logger = logger
	cfg.PortMin = *portMin
	cfg.PortMax = *portMax
	cfg.TOS = *tos
	cfg.SessionTTL = *sessionTTL
	cfg.RCacheTTL = *rcacheTTL
	cfg.NotifyTarget = *notifyTarget
	cfg.RecordPCAP = *recordPCAP

	engine := rtpproxy.NewEngine(cfg)
	defer engine.Shutdown()
	server := rtpproxy.NewControlServer(cfg, engine)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(rtpproxy.NewStatsCollector("rtpproxy", engine.Stats, nil))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Error("metricsServerFailed", slog.Any("err", err))
			}
		}()
	}

	errch := make(chan error, 2)

	udpAddr, err := net.ResolveUDPAddr("udp", *listenUDP)
	if err != nil {
		logger.Error("badControlAddress", slog.String("addr", *listenUDP), slog.Any("err", err))
		os.Exit(1)
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		logger.Error("controlBindFailed", slog.String("addr", *listenUDP), slog.Any("err", err))
		os.Exit(1)
	}
	logger.Info("controlListening", slog.String("protocol", "udp"), slog.String("addr", *listenUDP))
	go func() {
		errch <- server.ServeDatagram(ctx, udpConn)
	}()

	if *listenTCP != "" {
		ln, err := net.Listen("tcp", *listenTCP)
		if err != nil {
			logger.Error("controlBindFailed", slog.String("addr", *listenTCP), slog.Any("err", err))
			os.Exit(1)
		}
		logger.Info("controlListening", slog.String("protocol", "tcp"), slog.String("addr", *listenTCP))
		go func() {
			errch <- server.ServeStream(ctx, ln)
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shuttingDown")
	case err := <-errch:
		if err != nil {
			logger.Error("controlLoopFailed", slog.Any("err", err))
		}
	}
}

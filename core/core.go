// Package core supervises the whole process lifecycle: load
// configuration, build the plugin registry, start observability, bind
// every configured listener, and run them until one exits.
package core

import (
	"context"
	"fmt"

	"github.com/ahdark-oss/vdns/core/dnsserver"
	"github.com/ahdark-oss/vdns/internal/config"
	"github.com/ahdark-oss/vdns/internal/observability"
	vlog "github.com/ahdark-oss/vdns/plugin/pkg/log"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Run loads configPath, builds the plugin registry and every configured
// listener, and blocks until one listener exits (by error or shutdown
// signal via ctx), at which point it tears the rest down.
func Run(ctx context.Context, configPath string) error {
	log := vlog.Named("core")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("core: %w", err)
	}
	vlog.SetDebug(cfg.Debug)

	app, err := config.BuildRegistry(cfg)
	if err != nil {
		return fmt.Errorf("core: %w", err)
	}

	listeners, err := config.ExtractListeners(cfg)
	if err != nil {
		return fmt.Errorf("core: %w", err)
	}

	metrics := observability.NewMetrics()

	_, shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Exporter:   observability.ExporterType(cfg.Observability.TraceExporterType),
		Endpoint:   cfg.Observability.TraceExporterEndpoint,
		SampleRate: cfg.Observability.TraceSampleRate,
	})
	if err != nil {
		return fmt.Errorf("core: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Observability.MetricsExporterType == "prometheus" {
		g.Go(func() error {
			return metrics.Serve(gctx, cfg.Observability.MetricsListenAddr)
		})
	}

	var servers []*dnsserver.Server
	var quicServers []*dnsserver.QUICServer
	var httpServers []*dnsserver.HTTPServer

	for _, l := range listeners.UDP {
		srv := dnsserver.New(l.Config.Listen, l.Config.Entry, app, metrics)
		srv.SetDebug(cfg.Debug, cfg.Debug)
		servers = append(servers, srv)
		g.Go(func() error {
			pc, err := dnsserver.ListenUDP(l.Config.Listen)
			if err != nil {
				return fmt.Errorf("core: udp_server %q: %w", l.Tag, err)
			}
			return srv.ServePacket(pc)
		})
	}

	for _, l := range listeners.TCP {
		srv := dnsserver.New(l.Config.Listen, l.Config.Entry, app, metrics)
		srv.SetDebug(cfg.Debug, cfg.Debug)
		servers = append(servers, srv)
		g.Go(func() error {
			if l.Config.Cert != "" && l.Config.Key != "" {
				ln, err := dnsserver.ListenTLS(l.Config.Listen, l.Config.Cert, l.Config.Key)
				if err != nil {
					return fmt.Errorf("core: tcp_server %q: %w", l.Tag, err)
				}
				return srv.Serve(ln, "tcp-tls")
			}
			ln, err := dnsserver.ListenTCP(l.Config.Listen)
			if err != nil {
				return fmt.Errorf("core: tcp_server %q: %w", l.Tag, err)
			}
			return srv.Serve(ln, "tcp")
		})
	}

	for _, l := range listeners.QUIC {
		qs, err := dnsserver.NewQUICServer(l.Config.Listen, l.Config.Entry, l.Config.Cert, l.Config.Key, app, metrics)
		if err != nil {
			return fmt.Errorf("core: quic_server %q: %w", l.Tag, err)
		}
		quicServers = append(quicServers, qs)
		g.Go(func() error { return qs.Serve(gctx) })
	}

	for _, l := range listeners.HTTP {
		entries := make([]dnsserver.HTTPEntry, len(l.Config.Entries))
		copy(entries, l.Config.Entries)
		for _, e := range entries {
			if err := app.ValidateEntry(e.Exec); err != nil {
				return fmt.Errorf("core: http_server %q: %w", l.Tag, err)
			}
		}
		hs, err := dnsserver.NewHTTPServer(l.Config.Listen, entries, l.Config.SrcIPHeaders, l.Config.Cert, l.Config.Key, app, metrics)
		if err != nil {
			return fmt.Errorf("core: http_server %q: %w", l.Tag, err)
		}
		httpServers = append(httpServers, hs)
		g.Go(func() error { return hs.Serve() })
	}

	g.Go(func() error {
		<-gctx.Done()
		for _, s := range servers {
			_ = s.Stop()
		}
		for _, s := range quicServers {
			_ = s.Stop()
		}
		for _, s := range httpServers {
			_ = s.Stop(context.Background())
		}
		return nil
	})

	log.Info("vdns listeners started",
		zap.Int("udp", len(listeners.UDP)),
		zap.Int("tcp", len(listeners.TCP)),
		zap.Int("quic", len(listeners.QUIC)),
		zap.Int("http", len(listeners.HTTP)))

	return g.Wait()
}

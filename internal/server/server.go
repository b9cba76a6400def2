// Package server orchestrates all components: NATS transport, discovery
// service, registry, catalog, manifest resolver, and the HTTP bridge.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openarcloud/spatialdds-discovery/internal/config"
	"github.com/openarcloud/spatialdds-discovery/pkg/catalog"
	"github.com/openarcloud/spatialdds-discovery/pkg/discovery"
	"github.com/openarcloud/spatialdds-discovery/pkg/manifest"
	"github.com/openarcloud/spatialdds-discovery/pkg/protocol"
	"github.com/openarcloud/spatialdds-discovery/pkg/registry"
	"github.com/openarcloud/spatialdds-discovery/pkg/seed"
	"github.com/openarcloud/spatialdds-discovery/pkg/spatial"
	"github.com/openarcloud/spatialdds-discovery/pkg/transport"
)

const logPrefix = "server:server"

// Server is the spatialdds service orchestrator.
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
}

// Run starts the service, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}

	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting spatialdds service %s (domain %d)", logPrefix, cfg.ServiceID, cfg.Domain))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Server{cfg: cfg}

	// Step 1: Connect to NATS. A bus connection failure is fatal.
	bus, err := transport.ConnectNats(cfg.NatsURL, cfg.ServiceName)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
	}

	// Step 2: Build the service announce from configuration.
	bbox, err := cfg.ParseCoverageBbox()
	if err != nil {
		bus.Close()
		return err
	}
	announce := protocol.Announce{
		ServiceID: cfg.ServiceID,
		Name:      cfg.ServiceName,
		Kind:      cfg.ServiceKind,
		Coverage:  spatial.BboxCoverage(bbox[0], bbox[1], bbox[2], bbox[3]),
		TTLSec:    cfg.AnnounceTTL,
		Stamp:     spatial.Now(),
	}
	if uris := cfg.ManifestURIList(); len(uris) > 0 {
		announce.ManifestURI = uris[0]
	}

	// Step 3: Registry store, pre-seeded with known services, and the
	// manifest resolver.
	store := registry.NewStore()
	if applied := seed.LoadRegistrySeed().Apply(store); applied > 0 {
		slog.Info(fmt.Sprintf("%s - Seeded %d registry entries", logPrefix, applied))
	}
	resolver := manifest.NewResolver(&manifest.ResolverOpts{
		LocalTable: cfg.ManifestTable(),
		AllowHTTPS: cfg.AllowHTTPS,
	})

	// Step 4: Optional catalog seed.
	var cat *catalog.Service
	if cfg.CatalogSeed != "" {
		entries, err := catalog.LoadSeedFile(cfg.CatalogSeed)
		if err != nil {
			bus.Close()
			return fmt.Errorf("%s - failed to load catalog seed: %w", logPrefix, err)
		}
		cat = catalog.NewService()
		if err := cat.Load(entries); err != nil {
			bus.Close()
			return fmt.Errorf("%s - failed to load catalog seed: %w", logPrefix, err)
		}
	}

	// Step 5: Discovery service over its own transport.
	var svc *discovery.Service
	serviceTransport, err := transport.New(bus, transport.Options{
		Domain:        cfg.Domain,
		LocalSenderID: cfg.ServiceID,
		Callback:      func(env *transport.Envelope) { svc.HandleEnvelope(env) },
	})
	if err != nil {
		bus.Close()
		return fmt.Errorf("%s - transport init: %w", logPrefix, err)
	}

	// svc must be assigned before Start: the callback runs on the delivery
	// goroutine as soon as the subscription exists.
	svc, err = discovery.NewService(serviceTransport, discovery.ServiceOptions{
		Announce:       announce,
		AnnounceTTLSec: cfg.AnnounceTTL,
		Localizer: &discovery.StaticLocalizer{
			Pose: spatial.GeoPose{
				LatDeg:    (bbox[1] + bbox[3]) / 2,
				LonDeg:    (bbox[0] + bbox[2]) / 2,
				QXYZW:     [4]float64{0, 0, 0, 1},
				FrameKind: spatial.FrameEarthFixed,
			},
			Confidence: 0.9,
			RMSEm:      0.4,
		},
		Catalog:      cat,
		Registry:     store,
		Domain:       cfg.Domain,
		ManifestURIs: cfg.ManifestURIList(),
		BootstrapTTL: cfg.AnnounceTTL,
	})
	if err != nil {
		bus.Close()
		return fmt.Errorf("%s - discovery service init: %w", logPrefix, err)
	}
	if err := serviceTransport.Start(); err != nil {
		bus.Close()
		return fmt.Errorf("%s - transport start: %w", logPrefix, err)
	}

	// Step 6: Publish the announce now and re-publish within the TTL window.
	if err := svc.PublishAnnounce(); err != nil {
		slog.Error(fmt.Sprintf("%s - initial announce: %v", logPrefix, err))
	}
	go func() {
		interval := time.Duration(cfg.AnnounceTTL) * time.Second / 3
		if interval < time.Second {
			interval = time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := svc.PublishAnnounce(); err != nil {
					slog.Warn(fmt.Sprintf("%s - announce republish: %v", logPrefix, err))
				}
			}
		}
	}()

	// Step 7: Bridge client for HTTP-initiated protocol round-trips.
	clientOpts := discovery.ClientOptions{
		ClientID:       cfg.ServiceID + "-bridge",
		Domain:         cfg.Domain,
		Resolver:       resolver,
		ManifestTTLSec: cfg.ManifestTTL,
	}
	if uris := cfg.ManifestURIList(); len(uris) > 0 {
		clientOpts.ManifestURI = uris[0]
	}
	client, err := discovery.NewClient(bus, clientOpts)
	if err != nil {
		serviceTransport.Stop()
		bus.Close()
		return fmt.Errorf("%s - bridge client init: %w", logPrefix, err)
	}

	// Step 8: HTTP bridge.
	bridge := NewBridge(client, store, cfg)
	httpAddr := cfg.HTTPListenAddr()
	s.httpServer = &http.Server{Addr: httpAddr, Handler: bridge.Routes()}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP bridge listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - spatialdds service is ready", logPrefix))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	// Graceful shutdown.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	s.httpServer.Shutdown(shutdownCtx)
	cancel()
	client.Close()
	serviceTransport.Stop()
	bus.Close()

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

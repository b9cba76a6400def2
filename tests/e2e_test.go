// Package tests contains end-to-end tests for the spatialdds discovery
// protocol. These tests start an embedded NATS server and run full
// request/response exchanges between a real service and a real client.
package tests

import (
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"

	"github.com/openarcloud/spatialdds-discovery/pkg/catalog"
	"github.com/openarcloud/spatialdds-discovery/pkg/discovery"
	"github.com/openarcloud/spatialdds-discovery/pkg/protocol"
	"github.com/openarcloud/spatialdds-discovery/pkg/registry"
	"github.com/openarcloud/spatialdds-discovery/pkg/spatial"
	"github.com/openarcloud/spatialdds-discovery/pkg/transport"
)

const (
	e2eTestPrefix = "tests:e2e_test"
	e2eNatsPort   = 14240
)

// testEnv holds one embedded-NATS discovery deployment.
type testEnv struct {
	ns      *natsserver.Server
	svcBus  *transport.NatsBus
	cliBus  *transport.NatsBus
	svc     *discovery.Service
	svcTr   *transport.Transport
	client  *discovery.Client
	store   *registry.Store
	catalog *catalog.Service
}

func setupE2E(t *testing.T) *testEnv {
	t.Helper()

	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   e2eNatsPort,
		NoLog:  true,
		NoSigs: true,
	}
	ns, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("%s - failed to create NATS server: %v", e2eTestPrefix, err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("%s - NATS server failed to start", e2eTestPrefix)
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	svcBus, err := transport.ConnectNats(ns.ClientURL(), "e2e-service")
	if err != nil {
		t.Fatalf("%s - service NATS connect failed: %v", e2eTestPrefix, err)
	}
	t.Cleanup(svcBus.Close)
	cliBus, err := transport.ConnectNats(ns.ClientURL(), "e2e-client")
	if err != nil {
		t.Fatalf("%s - client NATS connect failed: %v", e2eTestPrefix, err)
	}
	t.Cleanup(cliBus.Close)

	store := registry.NewStore()
	sf := spatial.BboxCoverage(-122.52, 37.70, -122.35, 37.85)

	cat := catalog.NewService()
	if err := cat.Load([]protocol.CatalogEntry{
		{ContentID: "mesh-soma", Kind: "mesh", UpdatedSec: 300, Coverage: sf},
		{ContentID: "mesh-mission", Kind: "mesh", UpdatedSec: 200, Coverage: sf},
	}); err != nil {
		t.Fatalf("%s - catalog load failed: %v", e2eTestPrefix, err)
	}

	var svc *discovery.Service
	svcTr, err := transport.New(svcBus, transport.Options{
		LocalSenderID: "vps-001",
		Callback:      func(env *transport.Envelope) { svc.HandleEnvelope(env) },
	})
	if err != nil {
		t.Fatalf("%s - service transport init failed: %v", e2eTestPrefix, err)
	}
	t.Cleanup(svcTr.Stop)

	svc, err = discovery.NewService(svcTr, discovery.ServiceOptions{
		Announce: protocol.Announce{
			ServiceID:   "vps-001",
			Name:        "sf-vps",
			Kind:        "vps",
			Coverage:    sf,
			ManifestURI: "spatialdds://sf.example/zone:soma/manifest:vps-001",
			TTLSec:      300,
			Stamp:       spatial.Now(),
		},
		Localizer: &discovery.StaticLocalizer{
			Pose: spatial.GeoPose{
				LatDeg: 37.77, LonDeg: -122.42, AltM: 12,
				QXYZW:     [4]float64{0, 0, 0, 1},
				FrameKind: spatial.FrameEarthFixed,
			},
			Confidence: 0.9,
			RMSEm:      0.4,
		},
		Catalog:      cat,
		Registry:     store,
		Domain:       0,
		ManifestURIs: []string{"spatialdds://sf.example/zone:soma/manifest:vps-001"},
		BootstrapTTL: 600,
	})
	if err != nil {
		t.Fatalf("%s - NewService failed: %v", e2eTestPrefix, err)
	}
	if err := svcTr.Start(); err != nil {
		t.Fatalf("%s - service transport start failed: %v", e2eTestPrefix, err)
	}

	client, err := discovery.NewClient(cliBus, discovery.ClientOptions{ClientID: "e2e-client"})
	if err != nil {
		t.Fatalf("%s - NewClient failed: %v", e2eTestPrefix, err)
	}
	t.Cleanup(client.Close)

	return &testEnv{
		ns: ns, svcBus: svcBus, cliBus: cliBus,
		svc: svc, svcTr: svcTr, client: client,
		store: store, catalog: cat,
	}
}

func TestE2E_DiscoveryScenario(t *testing.T) {
	env := setupE2E(t)

	// Query fully inside the service's coverage.
	inside := spatial.BboxCoverage(-122.45, 37.75, -122.40, 37.80)
	resp, err := env.client.Discover(inside, "", 5*time.Second)
	if err != nil {
		t.Fatalf("%s - Discover failed: %v", e2eTestPrefix, err)
	}
	if resp == nil {
		t.Fatalf("%s - Discover timed out", e2eTestPrefix)
	}
	if len(resp.Results) != 1 || resp.Results[0].ServiceID != "vps-001" {
		t.Fatalf("%s - results = %+v, want vps-001", e2eTestPrefix, resp.Results)
	}

	// Disjoint query returns an empty result set.
	disjoint := spatial.BboxCoverage(-50.0, 0.0, -49.0, 1.0)
	resp, err = env.client.Discover(disjoint, "", 5*time.Second)
	if err != nil {
		t.Fatalf("%s - disjoint Discover failed: %v", e2eTestPrefix, err)
	}
	if resp == nil {
		t.Fatalf("%s - disjoint Discover timed out", e2eTestPrefix)
	}
	if len(resp.Results) != 0 {
		t.Fatalf("%s - disjoint query returned %d results", e2eTestPrefix, len(resp.Results))
	}
}

func TestE2E_BootstrapThenLocalize(t *testing.T) {
	env := setupE2E(t)

	boot, err := env.client.Bootstrap(10 * time.Second)
	if err != nil {
		t.Fatalf("%s - Bootstrap failed: %v", e2eTestPrefix, err)
	}
	if boot == nil {
		t.Fatalf("%s - Bootstrap timed out", e2eTestPrefix)
	}
	if len(boot.ManifestURIs) != 1 || boot.TTLSec != 600 {
		t.Fatalf("%s - bootstrap response = %+v", e2eTestPrefix, boot)
	}

	resp, err := env.client.Localize(protocol.LocalizeRequest{
		ServiceID:           "vps-001",
		QualityRequirements: &protocol.QualityRequirements{MinConfidence: 0.8, MaxRMSEm: 1.0},
	}, 10*time.Second)
	if err != nil {
		t.Fatalf("%s - Localize failed: %v", e2eTestPrefix, err)
	}
	if resp == nil {
		t.Fatalf("%s - Localize timed out", e2eTestPrefix)
	}
	if !resp.Quality.Success || resp.NodeGeo == nil {
		t.Fatalf("%s - quality = %+v node_geo = %+v", e2eTestPrefix, resp.Quality, resp.NodeGeo)
	}
	if resp.NodeGeo.GeoPose.LatDeg != 37.77 {
		t.Errorf("%s - pose lat = %v, want 37.77", e2eTestPrefix, resp.NodeGeo.GeoPose.LatDeg)
	}
}

func TestE2E_CatalogPagination(t *testing.T) {
	env := setupE2E(t)

	first, err := env.client.QueryCatalog(protocol.CatalogQuery{Limit: 1}, 6*time.Second)
	if err != nil {
		t.Fatalf("%s - QueryCatalog failed: %v", e2eTestPrefix, err)
	}
	if first == nil {
		t.Fatalf("%s - QueryCatalog timed out", e2eTestPrefix)
	}
	if len(first.Results) != 1 || first.Results[0].ContentID != "mesh-soma" {
		t.Fatalf("%s - first page = %+v", e2eTestPrefix, first.Results)
	}
	if first.NextPageToken == "" {
		t.Fatalf("%s - expected a next page token", e2eTestPrefix)
	}

	second, err := env.client.QueryCatalog(protocol.CatalogQuery{Limit: 1, PageToken: first.NextPageToken}, 6*time.Second)
	if err != nil {
		t.Fatalf("%s - second QueryCatalog failed: %v", e2eTestPrefix, err)
	}
	if second == nil {
		t.Fatalf("%s - second QueryCatalog timed out", e2eTestPrefix)
	}
	if len(second.Results) != 1 || second.Results[0].ContentID != "mesh-mission" {
		t.Fatalf("%s - second page = %+v", e2eTestPrefix, second.Results)
	}
	if second.NextPageToken != "" {
		t.Errorf("%s - next_page_token = %q, want empty at end", e2eTestPrefix, second.NextPageToken)
	}
}

func TestE2E_AnnounceReachesClient(t *testing.T) {
	env := setupE2E(t)

	// Announces are periodic on a non-retaining bus, so republish until the
	// reader picks one up.
	var ann *protocol.Announce
	deadline := time.Now().Add(10 * time.Second)
	for ann == nil {
		if time.Now().After(deadline) {
			t.Fatalf("%s - no fresh announce received", e2eTestPrefix)
		}
		if err := env.svc.PublishAnnounce(); err != nil {
			t.Fatalf("%s - PublishAnnounce failed: %v", e2eTestPrefix, err)
		}
		var err error
		ann, err = env.client.FreshAnnounce(300, 300*time.Millisecond)
		if err != nil {
			t.Fatalf("%s - FreshAnnounce failed: %v", e2eTestPrefix, err)
		}
	}
	if ann.ServiceID != "vps-001" || ann.ManifestURI == "" {
		t.Errorf("%s - announce = %+v", e2eTestPrefix, ann)
	}
}

func TestE2E_AnchorDeltaPropagates(t *testing.T) {
	env := setupE2E(t)

	err := env.client.PublishAnchorDelta(protocol.AnchorDelta{
		SetID: "soma-anchors",
		Op:    protocol.AnchorOpUpsert,
		Entry: protocol.AnchorEntry{
			AnchorID: "anchor-7",
			GeoPose: spatial.GeoPose{
				LatDeg: 37.78, LonDeg: -122.41, AltM: 5,
				QXYZW:     [4]float64{0, 0, 0, 1},
				FrameKind: spatial.FrameEarthFixed,
				Stamp:     spatial.Now(),
			},
			Confidence: 0.75,
		},
		Revision: 1,
	})
	if err != nil {
		t.Fatalf("%s - PublishAnchorDelta failed: %v", e2eTestPrefix, err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		entries, rev := env.svc.Anchors().Entries("soma-anchors")
		if len(entries) == 1 && rev == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("%s - anchor delta never applied", e2eTestPrefix)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

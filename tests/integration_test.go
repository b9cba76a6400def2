//go:build integration

package tests

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"

	"github.com/openarcloud/spatialdds-discovery/internal/config"
	"github.com/openarcloud/spatialdds-discovery/internal/server"
	"github.com/openarcloud/spatialdds-discovery/pkg/discovery"
	"github.com/openarcloud/spatialdds-discovery/pkg/protocol"
	"github.com/openarcloud/spatialdds-discovery/pkg/registry"
	"github.com/openarcloud/spatialdds-discovery/pkg/spatial"
	"github.com/openarcloud/spatialdds-discovery/pkg/transport"
)

const (
	integrationTestPrefix = "tests:integration_test"
	integrationNatsPort   = 14241
)

func startNats(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   integrationNatsPort,
		NoLog:  true,
		NoSigs: true,
	}
	ns, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("%s - failed to create NATS server: %v", integrationTestPrefix, err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("%s - NATS server failed to start", integrationTestPrefix)
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns
}

// TestIntegration_BridgeOverNats runs the HTTP bridge against a live
// discovery service over embedded NATS.
func TestIntegration_BridgeOverNats(t *testing.T) {
	ns := startNats(t)

	svcBus, err := transport.ConnectNats(ns.ClientURL(), "integration-service")
	if err != nil {
		t.Fatalf("%s - service connect failed: %v", integrationTestPrefix, err)
	}
	t.Cleanup(svcBus.Close)
	bridgeBus, err := transport.ConnectNats(ns.ClientURL(), "integration-bridge")
	if err != nil {
		t.Fatalf("%s - bridge connect failed: %v", integrationTestPrefix, err)
	}
	t.Cleanup(bridgeBus.Close)

	store := registry.NewStore()
	var svc *discovery.Service
	svcTr, err := transport.New(svcBus, transport.Options{
		LocalSenderID: "vps-001",
		Callback:      func(env *transport.Envelope) { svc.HandleEnvelope(env) },
	})
	if err != nil {
		t.Fatalf("%s - transport init failed: %v", integrationTestPrefix, err)
	}
	t.Cleanup(svcTr.Stop)

	svc, err = discovery.NewService(svcTr, discovery.ServiceOptions{
		Announce: protocol.Announce{
			ServiceID: "vps-001",
			Name:      "sf-vps",
			Kind:      "vps",
			Coverage:  spatial.BboxCoverage(-122.52, 37.70, -122.35, 37.85),
			TTLSec:    300,
			Stamp:     spatial.Now(),
		},
		Localizer: &discovery.StaticLocalizer{
			Pose: spatial.GeoPose{
				LatDeg: 37.77, LonDeg: -122.42,
				QXYZW:     [4]float64{0, 0, 0, 1},
				FrameKind: spatial.FrameEarthFixed,
			},
			Confidence: 0.9,
			RMSEm:      0.4,
		},
		Registry: store,
	})
	if err != nil {
		t.Fatalf("%s - NewService failed: %v", integrationTestPrefix, err)
	}
	if err := svcTr.Start(); err != nil {
		t.Fatalf("%s - transport start failed: %v", integrationTestPrefix, err)
	}

	client, err := discovery.NewClient(bridgeBus, discovery.ClientOptions{ClientID: "integration-bridge"})
	if err != nil {
		t.Fatalf("%s - NewClient failed: %v", integrationTestPrefix, err)
	}
	t.Cleanup(client.Close)

	cfg := &config.Config{
		DiscoverTimeout: 5 * time.Second,
		LocalizeTimeout: 10 * time.Second,
		CatalogTimeout:  6 * time.Second,
	}
	bridge := server.NewBridge(client, store, cfg)
	ts := httptest.NewServer(bridge.Routes())
	t.Cleanup(ts.Close)

	// Search through the bridge reaches the service over NATS.
	searchBody := `{"coverage":[{"type":"bbox","bbox":[-122.45,37.75,-122.40,37.80],"crs":"EPSG:4979","frame_ref":{"uuid":"u","fqn":"earth-fixed"}}]}`
	resp, err := http.Post(ts.URL+"/search", "application/json", strings.NewReader(searchBody))
	if err != nil {
		t.Fatalf("%s - POST /search failed: %v", integrationTestPrefix, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("%s - /search = %d", integrationTestPrefix, resp.StatusCode)
	}
	var coverage protocol.CoverageResponse
	if err := json.NewDecoder(resp.Body).Decode(&coverage); err != nil {
		t.Fatalf("%s - decode /search response: %v", integrationTestPrefix, err)
	}
	if len(coverage.Results) != 1 || coverage.Results[0].ServiceID != "vps-001" {
		t.Fatalf("%s - /search results = %+v", integrationTestPrefix, coverage.Results)
	}

	// Localize through the bridge.
	localizeBody := `{"service_id":"vps-001","quality_requirements":{"min_confidence":0.8}}`
	locResp, err := http.Post(ts.URL+"/v1/localize", "application/json", strings.NewReader(localizeBody))
	if err != nil {
		t.Fatalf("%s - POST /v1/localize failed: %v", integrationTestPrefix, err)
	}
	defer locResp.Body.Close()
	if locResp.StatusCode != http.StatusOK {
		t.Fatalf("%s - /v1/localize = %d", integrationTestPrefix, locResp.StatusCode)
	}
	var localize protocol.LocalizeResponse
	if err := json.NewDecoder(locResp.Body).Decode(&localize); err != nil {
		t.Fatalf("%s - decode /v1/localize response: %v", integrationTestPrefix, err)
	}
	if !localize.Quality.Success {
		t.Fatalf("%s - localize quality = %+v", integrationTestPrefix, localize.Quality)
	}
}

// TestIntegration_DomainIsolation verifies instances in different transport
// domains never see each other.
func TestIntegration_DomainIsolation(t *testing.T) {
	ns := startNats(t)

	svcBus, err := transport.ConnectNats(ns.ClientURL(), "domain-service")
	if err != nil {
		t.Fatalf("%s - service connect failed: %v", integrationTestPrefix, err)
	}
	t.Cleanup(svcBus.Close)
	cliBus, err := transport.ConnectNats(ns.ClientURL(), "domain-client")
	if err != nil {
		t.Fatalf("%s - client connect failed: %v", integrationTestPrefix, err)
	}
	t.Cleanup(cliBus.Close)

	store := registry.NewStore()
	var svc *discovery.Service
	svcTr, err := transport.New(svcBus, transport.Options{
		Domain:        1,
		LocalSenderID: "vps-001",
		Callback:      func(env *transport.Envelope) { svc.HandleEnvelope(env) },
	})
	if err != nil {
		t.Fatalf("%s - transport init failed: %v", integrationTestPrefix, err)
	}
	t.Cleanup(svcTr.Stop)

	svc, err = discovery.NewService(svcTr, discovery.ServiceOptions{
		Announce: protocol.Announce{
			ServiceID: "vps-001",
			Kind:      "vps",
			Coverage:  spatial.BboxCoverage(-122.52, 37.70, -122.35, 37.85),
			TTLSec:    300,
			Stamp:     spatial.Now(),
		},
		Registry: store,
	})
	if err != nil {
		t.Fatalf("%s - NewService failed: %v", integrationTestPrefix, err)
	}
	if err := svcTr.Start(); err != nil {
		t.Fatalf("%s - transport start failed: %v", integrationTestPrefix, err)
	}

	// Client is in domain 2; its query must never reach the domain-1 service.
	client, err := discovery.NewClient(cliBus, discovery.ClientOptions{ClientID: "domain-client", Domain: 2})
	if err != nil {
		t.Fatalf("%s - NewClient failed: %v", integrationTestPrefix, err)
	}
	t.Cleanup(client.Close)

	resp, err := client.Discover(spatial.BboxCoverage(-122.45, 37.75, -122.40, 37.80), "", time.Second)
	if err != nil {
		t.Fatalf("%s - Discover failed: %v", integrationTestPrefix, err)
	}
	if resp != nil {
		t.Fatalf("%s - cross-domain query was answered: %+v", integrationTestPrefix, resp)
	}
}

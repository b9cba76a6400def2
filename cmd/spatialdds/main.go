// Package main is the entrypoint for the spatialdds discovery service.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/openarcloud/spatialdds-discovery/internal/config"
	"github.com/openarcloud/spatialdds-discovery/internal/server"
	"github.com/openarcloud/spatialdds-discovery/pkg/discovery"
	"github.com/openarcloud/spatialdds-discovery/pkg/manifest"
	"github.com/openarcloud/spatialdds-discovery/pkg/spatial"
	"github.com/openarcloud/spatialdds-discovery/pkg/transport"
)

const usage = `Usage: spatialdds [command]

Commands:
  (default)        Start the discovery service (NATS, announce, HTTP bridge).
  discover         Demo client: publish a coverage query for the configured
                   bbox and print the responses.
  resolve <uri>    Resolve a manifest URI and print the manifest and status.

Environment: SPATIALDDS_NATS_URL, SPATIALDDS_DOMAIN, SPATIALDDS_COVERAGE_BBOX,
SPATIALDDS_MANIFEST_TTL, SPATIALDDS_ALLOW_HTTPS, SPATIALDDS_MANIFEST_FILES,
SPATIALDDS_ANNOUNCE_TTL, SPATIALDDS_HTTP_PORT, LOG_LEVEL.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "discover":
		if err := runDiscover(); err != nil {
			log.Fatalf("spatialdds discover: %v", err)
		}
		return
	case "resolve":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "resolve requires a manifest URI.\n%s", usage)
			os.Exit(1)
		}
		if err := runResolve(args[1]); err != nil {
			log.Fatalf("spatialdds resolve: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "":
		// fall through to server
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("spatialdds: fatal error: %v", err)
	}
}

// runDiscover publishes one coverage query over NATS and prints the
// matching announces.
func runDiscover() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	bbox, err := cfg.ParseCoverageBbox()
	if err != nil {
		return err
	}

	bus, err := transport.ConnectNats(cfg.NatsURL, cfg.ServiceName+"-client")
	if err != nil {
		return err
	}
	defer bus.Close()

	client, err := discovery.NewClient(bus, discovery.ClientOptions{Domain: cfg.Domain})
	if err != nil {
		return err
	}
	defer client.Close()

	coverage := spatial.BboxCoverage(bbox[0], bbox[1], bbox[2], bbox[3])
	resp, err := client.Discover(coverage, "", cfg.DiscoverTimeout)
	if err != nil {
		return err
	}
	if resp == nil {
		fmt.Println("no coverage response within deadline")
		return nil
	}

	out, err := json.MarshalIndent(resp.Results, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("%d service(s) cover %v:\n%s\n", len(resp.Results), bbox, out)
	return nil
}

// runResolve resolves one manifest URI with the configured local table and
// prints the outcome.
func runResolve(uri string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	resolver := manifest.NewResolver(&manifest.ResolverOpts{
		LocalTable: cfg.ManifestTable(),
		AllowHTTPS: cfg.AllowHTTPS,
	})

	m, status := resolver.Resolve(uri, cfg.ManifestTTL)
	statusOut, _ := json.MarshalIndent(status, "", "  ")
	fmt.Printf("status: %s\n", statusOut)
	if m == nil {
		fmt.Println("manifest: <unresolved>")
		return nil
	}
	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("manifest: %s\n", out)
	return nil
}

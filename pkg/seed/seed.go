// Package seed loads startup seed data for the registry.
package seed

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/openarcloud/spatialdds-discovery/pkg/protocol"
	"github.com/openarcloud/spatialdds-discovery/pkg/registry"
	"github.com/openarcloud/spatialdds-discovery/pkg/spatial"
)

const logPrefix = "seed:seed"

// ServiceSeed is one pre-known service in a seed file.
type ServiceSeed struct {
	Announce protocol.Announce `json:"announce"`
	SelfURI  string            `json:"self_uri,omitempty"`
	Class    string            `json:"class,omitempty"`
}

// RegistrySeed pre-populates the registry with known services at startup,
// so peers can be discovered before their first live announce arrives.
type RegistrySeed struct {
	Name     string        `json:"name,omitempty"`
	Services []ServiceSeed `json:"services"`
}

// LoadRegistrySeed loads a registry seed from file paths.
// It tries paths in order: first any paths passed in, then the
// SPATIALDDS_REGISTRY_SEED env var, then defaults. Unreadable files are
// skipped silently, malformed files with a warning. When no file matches
// an empty seed is returned.
func LoadRegistrySeed(paths ...string) *RegistrySeed {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv("SPATIALDDS_REGISTRY_SEED"); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/registry-seed.json", "registry-seed.json")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		var s RegistrySeed
		if err := json.Unmarshal(data, &s); err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse seed file %s: %v", logPrefix, p, err))
			continue
		}

		slog.Info(fmt.Sprintf("%s - Loaded registry seed from %s (%d services)", logPrefix, p, len(s.Services)))
		return &s
	}

	return &RegistrySeed{}
}

// Apply registers every seed service in the store, stamping entries that
// carry no timestamp. Entries that fail validation are skipped with a
// warning so one bad entry never blocks the rest.
func (s *RegistrySeed) Apply(store *registry.Store) int {
	applied := 0
	for i := range s.Services {
		svc := s.Services[i]
		if svc.Announce.Stamp.Sec == 0 {
			svc.Announce.Stamp = spatial.Now()
		}
		entry := registry.Entry{
			Announce: svc.Announce,
			SelfURI:  svc.SelfURI,
			Class:    svc.Class,
		}
		if err := store.Register(entry); err != nil {
			slog.Warn(fmt.Sprintf("%s - Skipping seed entry %q: %v", logPrefix, svc.Announce.ServiceID, err))
			continue
		}
		applied++
	}
	return applied
}

// Package registry holds the in-memory service registry: announces keyed by
// their canonical identity, replaced on re-registration, scanned linearly on
// search. Entries are visible to search immediately after register.
package registry

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openarcloud/spatialdds-discovery/pkg/protocol"
	"github.com/openarcloud/spatialdds-discovery/pkg/spatial"
)

const storeLogPrefix = "registry:store"

// Entry is one registered service.
type Entry struct {
	Announce protocol.Announce `json:"announce"`
	// SelfURI is the service's spatialdds:// identity. When set it is the
	// canonical key; otherwise the announce's service_id is.
	SelfURI       string `json:"self_uri,omitempty"`
	Class         string `json:"class,omitempty"`
	RegisteredSec int64  `json:"registered_sec"`
}

// CanonicalKey returns the identity used for upsert-by-replace.
func (e Entry) CanonicalKey() string {
	if e.SelfURI != "" {
		return e.SelfURI
	}
	return e.Announce.ServiceID
}

// Filter narrows a search. Zero-value fields do not filter.
type Filter struct {
	Kind     string
	Class    string
	Tags     []string
	Expr     string
	Coverage []spatial.CoverageElement
}

// Store owns the registered entries. All methods are safe for concurrent
// use; registration order is preserved across upserts of distinct keys.
type Store struct {
	mu      sync.RWMutex
	entries []Entry
	now     func() time.Time
}

// NewStore creates an empty registry store.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// Register validates the entry and upserts it by canonical key: any existing
// entry with the same key is removed and the new one appended. Validation
// errors are returned to the caller so malformed entries never become
// visible to search.
func (s *Store) Register(entry Entry) error {
	if entry.CanonicalKey() == "" {
		return &spatial.ValidationError{
			Kind:    spatial.MissingField,
			Field:   "service_id",
			Message: "entry carries neither self_uri nor service_id",
		}
	}
	if entry.SelfURI != "" {
		if _, err := spatial.ParseSpatialURI(entry.SelfURI); err != nil {
			return err
		}
	}
	if len(entry.Announce.Coverage) == 0 {
		return &spatial.ValidationError{
			Kind:    spatial.MissingField,
			Field:   "coverage",
			Message: "announce coverage must be non-empty",
		}
	}
	if err := spatial.ValidateCoverage(entry.Announce.Coverage, entry.Announce.CoverageFrameRef); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.RegisteredSec == 0 {
		entry.RegisteredSec = s.now().Unix()
	}
	key := entry.CanonicalKey()
	kept := s.entries[:0]
	for _, existing := range s.entries {
		if existing.CanonicalKey() != key {
			kept = append(kept, existing)
		}
	}
	s.entries = append(kept, entry)
	slog.Info(fmt.Sprintf("%s - registered %s kind=%s (total %d)", storeLogPrefix, key, entry.Announce.Kind, len(s.entries)))
	return nil
}

// Search scans the entries applying kind/class/tag/expr filters, then
// coverage intersection when the filter carries coverage. A validation
// failure while checking a candidate's coverage includes the candidate
// rather than dropping it; the fail-open decision is logged.
func (s *Store) Search(filter Filter) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []Entry
	for _, entry := range s.entries {
		if filter.Kind != "" && entry.Announce.Kind != filter.Kind {
			continue
		}
		if filter.Class != "" && entry.Class != filter.Class {
			continue
		}
		if !hasAllTags(entry.Announce.Tags, filter.Tags) {
			continue
		}
		if filter.Expr != "" && !protocol.MatchExpr(exprFields(entry), filter.Expr) {
			continue
		}
		if len(filter.Coverage) > 0 && !s.coverageMatches(entry, filter.Coverage) {
			continue
		}
		results = append(results, entry)
	}
	return results
}

// coverageMatches reports whether the entry's coverage intersects the
// filter's, failing open when the candidate's coverage does not validate.
func (s *Store) coverageMatches(entry Entry, queryCoverage []spatial.CoverageElement) bool {
	if err := spatial.ValidateCoverage(entry.Announce.Coverage, entry.Announce.CoverageFrameRef); err != nil {
		slog.Warn(fmt.Sprintf("%s - fail-open: including %s despite coverage error: %v",
			storeLogPrefix, entry.CanonicalKey(), err))
		return true
	}
	return spatial.Intersects(queryCoverage, entry.Announce.Coverage)
}

// List returns a snapshot of all entries in registration order.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// FindByServiceID returns the entry whose announce carries the given
// service id, or false when none is registered.
func (s *Store) FindByServiceID(serviceID string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entry := range s.entries {
		if entry.Announce.ServiceID == serviceID {
			return entry, true
		}
	}
	return Entry{}, false
}

// Len returns the number of registered entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func hasAllTags(entryTags, wanted []string) bool {
	for _, want := range wanted {
		found := false
		for _, tag := range entryTags {
			if tag == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func exprFields(entry Entry) map[string]string {
	return map[string]string{
		"service_id": entry.Announce.ServiceID,
		"name":       entry.Announce.Name,
		"kind":       entry.Announce.Kind,
		"class":      entry.Class,
	}
}

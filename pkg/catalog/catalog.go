// Package catalog serves spatial content metadata: entries are filtered by
// expression and coverage, sorted on a fixed key, and paginated with opaque
// offset tokens so repeated queries enumerate every match exactly once.
package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/openarcloud/spatialdds-discovery/pkg/protocol"
	"github.com/openarcloud/spatialdds-discovery/pkg/spatial"
)

const logPrefix = "catalog:catalog"

const (
	defaultLimit = 20
	maxLimit     = 500
)

// Service holds the catalog dataset and answers catalog queries.
type Service struct {
	mu      sync.RWMutex
	entries []protocol.CatalogEntry
}

// NewService creates an empty catalog service.
func NewService() *Service {
	return &Service{}
}

// Load replaces the dataset. Entries with coverage must validate; the first
// invalid entry aborts the load so a partially bad seed never half-applies.
func (s *Service) Load(entries []protocol.CatalogEntry) error {
	for i, entry := range entries {
		if entry.ContentID == "" {
			return &spatial.ValidationError{
				Kind:    spatial.MissingField,
				Field:   fmt.Sprintf("entries[%d].content_id", i),
				Message: "content_id is required",
			}
		}
		if len(entry.Coverage) > 0 {
			if err := spatial.ValidateCoverage(entry.Coverage, nil); err != nil {
				return fmt.Errorf("%s - entries[%d] (%s): %w", logPrefix, i, entry.ContentID, err)
			}
		}
	}
	s.mu.Lock()
	s.entries = append([]protocol.CatalogEntry(nil), entries...)
	s.mu.Unlock()
	slog.Info(fmt.Sprintf("%s - loaded %d entries", logPrefix, len(entries)))
	return nil
}

// Add validates and appends one entry.
func (s *Service) Add(entry protocol.CatalogEntry) error {
	if entry.ContentID == "" {
		return &spatial.ValidationError{Kind: spatial.MissingField, Field: "content_id", Message: "content_id is required"}
	}
	if len(entry.Coverage) > 0 {
		if err := spatial.ValidateCoverage(entry.Coverage, nil); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
	return nil
}

// Len returns the dataset size.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Query answers one catalog query: expression filter, then coverage
// intersection, then sort by updated_sec descending with content_id
// ascending as the tie-breaker, then one page at the token's offset. The
// response's next_page_token is empty once the offset reaches the end.
func (s *Service) Query(q *protocol.CatalogQuery) *protocol.CatalogResponse {
	s.mu.RLock()
	matched := make([]protocol.CatalogEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		if q.Expr != "" && !protocol.MatchExpr(exprFields(entry), q.Expr) {
			continue
		}
		if len(q.Coverage) > 0 && !spatial.Intersects(q.Coverage, entry.Coverage) {
			continue
		}
		matched = append(matched, entry)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].UpdatedSec != matched[j].UpdatedSec {
			return matched[i].UpdatedSec > matched[j].UpdatedSec
		}
		return matched[i].ContentID < matched[j].ContentID
	})

	limit := q.Limit
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset := protocol.ParsePageToken(q.PageToken)
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	slog.Debug(fmt.Sprintf("%s - query %s matched=%d offset=%d limit=%d", logPrefix, q.QueryID, len(matched), offset, limit))
	return &protocol.CatalogResponse{
		Proto:         protocol.Version,
		QueryID:       q.QueryID,
		Results:       matched[offset:end],
		NextPageToken: protocol.NextPageToken(offset, limit, len(matched)),
		Stamp:         spatial.Now(),
	}
}

// LoadSeedFile reads a JSON array of catalog entries from disk.
func LoadSeedFile(path string) ([]protocol.CatalogEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s - read seed %s: %w", logPrefix, path, err)
	}
	var entries []protocol.CatalogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%s - parse seed %s: %w", logPrefix, path, err)
	}
	return entries, nil
}

func exprFields(entry protocol.CatalogEntry) map[string]string {
	return map[string]string{
		"content_id": entry.ContentID,
		"kind":       entry.Kind,
		"title":      entry.Title,
	}
}

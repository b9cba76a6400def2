package discovery

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/openarcloud/spatialdds-discovery/pkg/protocol"
)

const anchorsLogPrefix = "discovery:anchors"

// AnchorSets assembles anchor sets from fire-and-forget deltas. Checksums
// ride along for consumer-side integrity; the bus never re-verifies them.
type AnchorSets struct {
	mu   sync.RWMutex
	sets map[string]*anchorSet
}

type anchorSet struct {
	entries  map[string]protocol.AnchorEntry
	revision int64
}

// NewAnchorSets creates an empty collection.
func NewAnchorSets() *AnchorSets {
	return &AnchorSets{sets: map[string]*anchorSet{}}
}

// Apply folds one delta into its set. Deltas with a revision at or below
// the set's current revision are dropped as replays.
func (a *AnchorSets) Apply(delta *protocol.AnchorDelta) {
	if delta.SetID == "" || delta.Entry.AnchorID == "" {
		slog.Warn(fmt.Sprintf("%s - dropping delta without set_id/anchor_id", anchorsLogPrefix))
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	set, ok := a.sets[delta.SetID]
	if !ok {
		set = &anchorSet{entries: map[string]protocol.AnchorEntry{}}
		a.sets[delta.SetID] = set
	}
	if delta.Revision != 0 && delta.Revision <= set.revision {
		slog.Debug(fmt.Sprintf("%s - ignoring replayed delta rev=%d set=%s", anchorsLogPrefix, delta.Revision, delta.SetID))
		return
	}
	switch delta.Op {
	case protocol.AnchorOpUpsert:
		set.entries[delta.Entry.AnchorID] = delta.Entry
	case protocol.AnchorOpRemove:
		delete(set.entries, delta.Entry.AnchorID)
	default:
		slog.Warn(fmt.Sprintf("%s - unknown delta op %q set=%s", anchorsLogPrefix, delta.Op, delta.SetID))
		return
	}
	if delta.Revision > set.revision {
		set.revision = delta.Revision
	}
}

// Entries returns a set's anchors sorted by anchor id, with the set's
// current revision. A missing set returns an empty slice and revision 0.
func (a *AnchorSets) Entries(setID string) ([]protocol.AnchorEntry, int64) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	set, ok := a.sets[setID]
	if !ok {
		return nil, 0
	}
	out := make([]protocol.AnchorEntry, 0, len(set.entries))
	for _, entry := range set.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AnchorID < out[j].AnchorID })
	return out, set.revision
}

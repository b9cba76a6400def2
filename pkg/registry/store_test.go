package registry

import (
	"errors"
	"testing"

	"github.com/openarcloud/spatialdds-discovery/pkg/protocol"
	"github.com/openarcloud/spatialdds-discovery/pkg/spatial"
)

const storeTestPrefix = "registry:store_test"

func vpsEntry(serviceID string, west, south, east, north float64) Entry {
	return Entry{
		Announce: protocol.Announce{
			ServiceID: serviceID,
			Name:      serviceID,
			Kind:      "vps",
			Coverage:  spatial.BboxCoverage(west, south, east, north),
			Stamp:     spatial.Now(),
			Tags:      []string{"outdoor"},
		},
	}
}

func TestRegister_UpsertByReplace(t *testing.T) {
	store := NewStore()

	first := vpsEntry("vps-001", -122.5, 37.7, -122.3, 37.8)
	first.Announce.Name = "first"
	if err := store.Register(first); err != nil {
		t.Fatalf("%s - first register failed: %v", storeTestPrefix, err)
	}
	if err := store.Register(vpsEntry("vps-002", 0, 0, 1, 1)); err != nil {
		t.Fatalf("%s - second register failed: %v", storeTestPrefix, err)
	}

	replacement := vpsEntry("vps-001", -122.5, 37.7, -122.3, 37.8)
	replacement.Announce.Name = "replacement"
	if err := store.Register(replacement); err != nil {
		t.Fatalf("%s - replacement register failed: %v", storeTestPrefix, err)
	}

	if store.Len() != 2 {
		t.Fatalf("%s - Len = %d, want 2", storeTestPrefix, store.Len())
	}
	entry, ok := store.FindByServiceID("vps-001")
	if !ok || entry.Announce.Name != "replacement" {
		t.Errorf("%s - vps-001 = %+v, want replacement", storeTestPrefix, entry.Announce)
	}
}

func TestRegister_ValidationSurfaced(t *testing.T) {
	store := NewStore()

	tests := []struct {
		name  string
		entry Entry
		kind  spatial.ValidationKind
	}{
		{
			name:  "no identity",
			entry: Entry{Announce: protocol.Announce{Coverage: spatial.BboxCoverage(0, 0, 1, 1)}},
			kind:  spatial.MissingField,
		},
		{
			name:  "empty coverage",
			entry: Entry{Announce: protocol.Announce{ServiceID: "vps-003"}},
			kind:  spatial.MissingField,
		},
		{
			name: "bad self uri",
			entry: Entry{
				SelfURI:  "spatialdds://authority/not-a-zone",
				Announce: protocol.Announce{ServiceID: "vps-004", Coverage: spatial.BboxCoverage(0, 0, 1, 1)},
			},
			kind: spatial.BadGeometry,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := store.Register(tc.entry)
			var verr *spatial.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("%s - err = %v, want ValidationError", storeTestPrefix, err)
			}
			if verr.Kind != tc.kind {
				t.Errorf("%s - kind = %s, want %s", storeTestPrefix, verr.Kind, tc.kind)
			}
		})
	}

	if store.Len() != 0 {
		t.Errorf("%s - invalid entries became visible: Len = %d", storeTestPrefix, store.Len())
	}
}

func TestSearch_Filters(t *testing.T) {
	store := NewStore()
	sf := vpsEntry("vps-sf", -122.52, 37.70, -122.35, 37.85)
	if err := store.Register(sf); err != nil {
		t.Fatalf("%s - register failed: %v", storeTestPrefix, err)
	}
	catalog := vpsEntry("catalog-sf", -122.52, 37.70, -122.35, 37.85)
	catalog.Announce.Kind = "catalog"
	catalog.Announce.Tags = []string{"indoor"}
	if err := store.Register(catalog); err != nil {
		t.Fatalf("%s - register failed: %v", storeTestPrefix, err)
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"no filter", Filter{}, []string{"vps-sf", "catalog-sf"}},
		{"by kind", Filter{Kind: "vps"}, []string{"vps-sf"}},
		{"by tag", Filter{Tags: []string{"indoor"}}, []string{"catalog-sf"}},
		{"tag miss", Filter{Tags: []string{"indoor", "night"}}, nil},
		{"by expr", Filter{Expr: `kind == "catalog"`}, []string{"catalog-sf"}},
		{
			"coverage inside",
			Filter{Coverage: spatial.BboxCoverage(-122.45, 37.75, -122.40, 37.80)},
			[]string{"vps-sf", "catalog-sf"},
		},
		{
			"coverage disjoint",
			Filter{Coverage: spatial.BboxCoverage(-50.0, 0.0, -49.0, 1.0)},
			nil,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := store.Search(tc.filter)
			if len(got) != len(tc.want) {
				t.Fatalf("%s - got %d results, want %d", storeTestPrefix, len(got), len(tc.want))
			}
			for i, want := range tc.want {
				if got[i].Announce.ServiceID != want {
					t.Errorf("%s - result[%d] = %s, want %s", storeTestPrefix, i, got[i].Announce.ServiceID, want)
				}
			}
		})
	}
}

func TestSearch_FailOpenOnBadCandidateCoverage(t *testing.T) {
	store := NewStore()

	// Register a valid entry, then corrupt its coverage behind the store's
	// validation by mutating the slice the announce shares.
	entry := vpsEntry("vps-broken", -122.5, 37.7, -122.3, 37.8)
	if err := store.Register(entry); err != nil {
		t.Fatalf("%s - register failed: %v", storeTestPrefix, err)
	}
	entry.Announce.Coverage[0].Bbox = nil

	got := store.Search(Filter{Coverage: spatial.BboxCoverage(-50.0, 0.0, -49.0, 1.0)})
	if len(got) != 1 {
		t.Fatalf("%s - fail-open candidate excluded: got %d results", storeTestPrefix, len(got))
	}
}

// Package manifest resolves logical manifest URIs to structured topic maps,
// with a TTL cache, local and remote resolution strategies, and fallback to
// the canonical protocol topics on any failure.
package manifest

import (
	"github.com/openarcloud/spatialdds-discovery/pkg/topics"
)

// TopicBinding maps a logical protocol role to a concrete topic name.
type TopicBinding struct {
	Role  string `json:"role"`
	Topic string `json:"topic"`
}

// Manifest maps a service's logical roles to concrete topics.
type Manifest struct {
	Name      string         `json:"name,omitempty"`
	ServiceID string         `json:"service_id,omitempty"`
	Kind      string         `json:"kind,omitempty"`
	Topics    []TopicBinding `json:"topics"`
}

// TopicIndex builds a role-to-topic lookup. Later bindings win on
// duplicate roles.
func (m *Manifest) TopicIndex() map[string]string {
	index := make(map[string]string, len(m.Topics))
	for _, binding := range m.Topics {
		if binding.Role != "" && binding.Topic != "" {
			index[binding.Role] = binding.Topic
		}
	}
	return index
}

// TopicNames returns the concrete topic names a manifest supplies.
func (m *Manifest) TopicNames() []string {
	names := make([]string, 0, len(m.Topics))
	for _, binding := range m.Topics {
		names = append(names, binding.Topic)
	}
	return names
}

// SelectTopic resolves a role against a manifest topic index, falling back
// to the canonical topic when the manifest is absent or lacks the role.
// The second return names where the choice came from.
func SelectTopic(index map[string]string, role, fallback string) (string, string) {
	if topic, ok := index[role]; ok {
		return topic, topics.SourceManifest
	}
	return fallback, topics.SourceFallback
}

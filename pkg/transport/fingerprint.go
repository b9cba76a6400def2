package transport

import (
	"encoding/json"

	"github.com/openarcloud/spatialdds-discovery/pkg/protocol"
)

// fingerprint content-addresses a sent envelope for self-echo suppression.
// A collision drops a foreign message as an echo; accepted at 256-bit width.
func fingerprint(msgType, logicalTopic, requestID string, payload []byte) string {
	buf := make([]byte, 0, len(msgType)+len(logicalTopic)+len(requestID)+len(payload)+3)
	buf = append(buf, msgType...)
	buf = append(buf, 0)
	buf = append(buf, logicalTopic...)
	buf = append(buf, 0)
	buf = append(buf, requestID...)
	buf = append(buf, 0)
	buf = append(buf, payload...)
	return protocol.PayloadHash(buf)
}

// senderIDFromPayload extracts the sender identity a payload may embed,
// checking the conventional keys and falling back to the client frame FQN.
func senderIDFromPayload(payload []byte) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return ""
	}
	for _, key := range []string{"from", "source_id", "sender_id"} {
		if raw, ok := fields[key]; ok {
			var s string
			if err := json.Unmarshal(raw, &s); err == nil && s != "" {
				return s
			}
		}
	}
	if raw, ok := fields["client_frame_ref"]; ok {
		var frame struct {
			FQN string `json:"fqn"`
		}
		if err := json.Unmarshal(raw, &frame); err == nil && frame.FQN != "" {
			return frame.FQN
		}
	}
	return ""
}

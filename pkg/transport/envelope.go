package transport

import "encoding/json"

// Envelope is the transport-level wrapper carried across the bus. Payload
// stays opaque to the envelope layer; RequestID is empty unless the message
// is part of a request/response exchange.
type Envelope struct {
	MsgType      string          `json:"msg_type"`
	LogicalTopic string          `json:"logical_topic"`
	Payload      json.RawMessage `json:"payload"`
	StampNs      int64           `json:"stamp_ns"`
	RequestID    string          `json:"request_id,omitempty"`
}

// EncodeEnvelope serializes an envelope for the bus.
func EncodeEnvelope(env *Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// DecodeEnvelope deserializes an envelope received from the bus.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

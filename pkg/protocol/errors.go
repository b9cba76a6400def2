package protocol

// Error codes for protocol-level failures.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeResolution       = "RESOLUTION_FAILURE"
	CodeTimeout          = "CORRELATION_TIMEOUT"
	CodeTransportInit    = "TRANSPORT_INIT_FAILURE"
	CodeUnsupportedProto = "UNSUPPORTED_PROTO"
)

// ProtocolError is a structured error with a machine-readable code.
type ProtocolError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Retryable bool        `json:"retryable"`
}

func (e *ProtocolError) Error() string {
	return e.Code + ": " + e.Message
}

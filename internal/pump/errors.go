package pump

import "fmt"

// Kind is a pump error taxonomy value. Kinds classify failures, not Go
// error types, so a single PumpError type carries a Kind plus a message.
type Kind string

const (
	Malformed             Kind = "MALFORMED"
	EnvelopeInvalid       Kind = "ENVELOPE_INVALID"
	PayloadShapeInvalid   Kind = "PAYLOAD_SHAPE_INVALID"
	NoRoute               Kind = "NO_ROUTE"
	SchemaInvalid         Kind = "SCHEMA_INVALID"
	DeserialisationFailed Kind = "DESERIALISATION_FAILED"
	HandlerFault          Kind = "HANDLER_FAULT"
	Internal              Kind = "INTERNAL"
)

// PumpError is the error value stages record into a Message State. It is
// never thrown up the pipeline; the error-filter stage inspects it.
type PumpError struct {
	Kind     Kind
	Message  string
	ThreadID string
}

func (e *PumpError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// newError builds a PumpError, convenience for stage implementations.
func newError(kind Kind, threadID, format string, args ...interface{}) *PumpError {
	return &PumpError{Kind: kind, ThreadID: threadID, Message: fmt.Sprintf(format, args...)}
}

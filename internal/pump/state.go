package pump

import "github.com/dullfig/xml-pipeline/internal/xmltree"

// HandlerMetadata is passed into every handler invocation alongside the
// typed payload. OwnName is empty unless the invoking listener is an
// agent, matching §3's "own_name is non-null iff is_agent".
type HandlerMetadata struct {
	ThreadID   string
	FromID     string
	OwnName    string
	IsSelfCall bool
}

// MessageState is the record carried stage-to-stage through the pipeline.
// Each stage either advances it (filling in more fields) or records an
// error and leaves the rest zero. A MessageState with a non-nil Err must
// never reach the dispatcher (§3 invariant).
type MessageState struct {
	RawBytes []byte

	Envelope *Envelope
	Payload  *xmltree.Element

	// TypedPayload holds the value produced by the per-listener
	// deserialiser once the schema stage has run.
	TypedPayload PayloadType

	ThreadID string
	FromID   string
	ToID     string

	// TargetListeners is populated by the router; at most one entry is
	// used by the schema stage (§4.6), but registering several listeners
	// under one root_tag is rejected by this implementation (see §9 open
	// question), so it is never more than one in practice.
	TargetListeners []*Listener

	Err *PumpError

	// Metadata is free-form, carried for forward compatibility with
	// handlers that want to stash auxiliary data between stages.
	Metadata map[string]interface{}
}

// newMessageState creates a MessageState for freshly injected bytes.
func newMessageState(raw []byte) *MessageState {
	return &MessageState{RawBytes: raw, Metadata: make(map[string]interface{})}
}

// fail records an error into the state. Once set, downstream stages must
// check HasError before doing further work.
func (ms *MessageState) fail(err *PumpError) {
	ms.Err = err
}

// HasError reports whether this state already carries an error.
func (ms *MessageState) HasError() bool {
	return ms.Err != nil
}

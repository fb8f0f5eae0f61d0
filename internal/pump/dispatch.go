package pump

import (
	"fmt"

	"github.com/dullfig/xml-pipeline/internal/xmltree"
)

// Dispatcher invokes listener handlers under the two-level bounded
// concurrency scheme from §4.7/§5: a global slot count across every
// handler invocation, plus a per-agent slot count for listeners flagged
// is_agent.
type Dispatcher struct {
	global chan struct{}
	agents map[string]chan struct{}
}

// NewDispatcher builds a Dispatcher for the given registry. maxHandlers
// bounds total concurrent handler invocations; maxPerAgent bounds
// concurrent invocations of any single agent listener.
func NewDispatcher(reg *Registry, maxHandlers, maxPerAgent int) *Dispatcher {
	d := &Dispatcher{
		global: make(chan struct{}, maxHandlers),
		agents: make(map[string]chan struct{}),
	}
	for _, l := range reg.Listeners() {
		if l.IsAgent {
			d.agents[l.Name] = make(chan struct{}, maxPerAgent)
		}
	}
	return d
}

// dispatchResult is what Dispatch hands back to the pump loop: zero or
// more raw envelope byte strings ready for re-injection.
type dispatchResult struct {
	responses [][]byte
}

// Dispatch runs one listener invocation to completion (§4.7): it
// acquires the global slot, then the agent slot if applicable, invokes
// the handler, recovers from any panic as a HANDLER_FAULT, and converts
// whatever the handler returned into zero or more outgoing envelopes.
func (d *Dispatcher) Dispatch(l *Listener, payload PayloadType, env *Envelope) *dispatchResult {
	d.global <- struct{}{}
	defer func() { <-d.global }()

	if sem, ok := d.agents[l.Name]; ok {
		sem <- struct{}{}
		defer func() { <-sem }()
	}

	metadata := HandlerMetadata{
		ThreadID:   env.ThreadID,
		FromID:     env.FromID,
		IsSelfCall: env.FromID == l.Name,
	}
	if l.IsAgent {
		metadata.OwnName = l.Name
	}

	raw, response, err := d.invoke(l, payload, metadata)
	if err != nil {
		return &dispatchResult{responses: [][]byte{huhEnvelope(l.Name, env.ThreadID, err.Error())}}
	}

	switch {
	case response != nil:
		out, serr := serializeHandlerResponse(l, response, env.ThreadID)
		if serr != nil {
			return &dispatchResult{responses: [][]byte{huhEnvelope(l.Name, env.ThreadID, serr.Error())}}
		}
		return &dispatchResult{responses: [][]byte{out}}
	case raw != nil:
		return &dispatchResult{responses: fanOut(l.Name, env.ThreadID, raw)}
	default:
		return &dispatchResult{}
	}
}

// invoke calls the handler, converting a panic into a HANDLER_FAULT
// error rather than letting it propagate into the pump loop (§4.7).
func (d *Dispatcher) invoke(l *Listener, payload PayloadType, metadata HandlerMetadata) (raw []byte, response *HandlerResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener %q panicked: %v", l.Name, r)
		}
	}()
	return l.Handler(payload, metadata)
}

func serializeHandlerResponse(l *Listener, resp *HandlerResponse, threadID string) ([]byte, error) {
	if resp.Payload == nil {
		return nil, fmt.Errorf("listener %q returned a HandlerResponse with no payload", l.Name)
	}
	el, err := resp.Payload.ToElement()
	if err != nil {
		return nil, fmt.Errorf("serializing response payload: %w", err)
	}
	env := &Envelope{FromID: l.Name, ToID: resp.To, ThreadID: threadID, Payload: el}
	return serializeEnvelope(env)
}

// huhEnvelope builds the synthetic error envelope from §6.5: a <huh>
// payload carrying a human-readable message, re-injected for observability
// (§7).
func huhEnvelope(fromName, threadID, message string) []byte {
	payload := &xmltree.Element{Name: "huh", Text: message}
	env := &Envelope{FromID: fromName, ThreadID: threadID, Payload: payload}
	out, err := serializeEnvelope(env)
	if err != nil {
		// Serialization of a two-field envelope cannot realistically
		// fail; fall back to a minimal literal so the loop never stalls.
		return []byte(fmt.Sprintf("<message xmlns=%q><meta><thread>%s</thread></meta><huh>%s</huh></message>", EnvelopeNS, threadID, message))
	}
	return out
}

package pump

import (
	"fmt"
	"strings"

	"github.com/dullfig/xml-pipeline/internal/xmltree"
)

// PayloadType is the boundary contract between the pump and a payload
// value (§6.4). TypeName reports the payload's tag name; every value
// also knows how to serialise itself back to an element, the way
// the source's @xmlify-decorated dataclasses carry their own xml_value
// method rather than routing through a listener-keyed serialiser -- a
// handler emitting a payload type its own listener never receives (the
// two-hop scenario's GreetingResponse-in, ShoutedResponse-out) would
// otherwise have no serialiser to call.
type PayloadType interface {
	// TypeName is the payload's tag name. Routing does not consult it; a
	// listener's root_tag is built from its PayloadCodec.TypeName.
	TypeName() string

	// ToElement renders the value back to an XML element for outgoing
	// envelopes.
	ToElement() (*xmltree.Element, error)
}

// PayloadCodec binds a payload type name to the functions that validate
// and construct it from an incoming element. Listener registration
// installs one per listener, giving the open extensibility of option (a)
// in §9 rather than a closed variant type.
type PayloadCodec struct {
	// TypeName is the payload element's local name, e.g. "Greeting".
	TypeName string

	// Validate checks the raw element against the payload's schema,
	// returning a SchemaInvalid-flavoured error on failure. A nil
	// Validate is permitted for payload types with no schema beyond
	// "well-formed XML".
	Validate func(el *xmltree.Element) error

	// Parse constructs a typed payload value from a validated element.
	Parse func(el *xmltree.Element) (PayloadType, error)
}

// HandlerResponse is the structured response form a handler may return
// (§6.3): the dispatcher wraps it into an envelope addressed to To, with
// from and thread filled in from the invoking listener and metadata.
type HandlerResponse struct {
	Payload PayloadType
	To      string
}

// HandlerFunc is the shape of listener handler code: given a typed
// payload and its metadata, it returns a response. Returning (nil, nil,
// nil) means the listener is a sink with nothing to re-inject.
type HandlerFunc func(payload PayloadType, metadata HandlerMetadata) (raw []byte, response *HandlerResponse, err error)

// Listener is an immutable registration: a name, a payload codec, a
// handler, and the agent/peer/broadcast flags from §3.
type Listener struct {
	Name        string
	Codec       PayloadCodec
	Handler     HandlerFunc
	Description string
	IsAgent     bool
	Peers       []string
	Broadcast   bool

	// RootTag is "<name>.<payload_type>" lowercased (just the payload
	// type for a Broadcast listener), computed once at registration.
	RootTag string
}

// Registry holds the listener set and routing table built at bootstrap
// (the per-agent semaphores live in the Dispatcher). It is read-only once
// the pump's Run has started, matching §5's "populated during bootstrap
// and read-only thereafter".
type Registry struct {
	listeners map[string]*Listener   // by name
	byRootTag map[string][]*Listener // routing table
	order     []*Listener            // registration order, for tie-breaks
}

// NewRegistry returns an empty listener registry.
func NewRegistry() *Registry {
	return &Registry{
		listeners: make(map[string]*Listener),
		byRootTag: make(map[string][]*Listener),
	}
}

// Register adds a listener. RootTag is computed here and must be unique
// across the registry (§3 invariant): this implementation does not
// support several listeners sharing a root_tag, since §4.6's schema step
// only consults the first listener, and silently picking one of several
// candidate schemas would be worse than rejecting the collision outright.
// A listener flagged Broadcast instead gets a bare, name-less root_tag
// (just the lowercased payload type), which is what makes it reachable
// by the naked routing key §4.5 describes for to_id-less messages -- a
// directed lookup never matches it. Uniqueness is still enforced, so at
// most one broadcast listener may claim a given payload type.
func (r *Registry) Register(l *Listener) error {
	if l.Name == "" {
		return fmt.Errorf("pump: listener registration requires a name")
	}
	if _, exists := r.listeners[l.Name]; exists {
		return fmt.Errorf("pump: listener %q already registered", l.Name)
	}
	if l.Broadcast {
		l.RootTag = strings.ToLower(l.Codec.TypeName)
	} else {
		l.RootTag = strings.ToLower(l.Name) + "." + strings.ToLower(l.Codec.TypeName)
	}
	if existing := r.byRootTag[l.RootTag]; len(existing) > 0 {
		return fmt.Errorf("pump: root_tag %q collides between listener %q and %q", l.RootTag, existing[0].Name, l.Name)
	}

	r.listeners[l.Name] = l
	r.byRootTag[l.RootTag] = []*Listener{l}
	r.order = append(r.order, l)
	return nil
}

// ByName looks up a listener by its registered name.
func (r *Registry) ByName(name string) (*Listener, bool) {
	l, ok := r.listeners[name]
	return l, ok
}

// Lookup resolves a routing key to its listener list, in registration
// order (§4.5 tie-break rule).
func (r *Registry) Lookup(rootTag string) []*Listener {
	return r.byRootTag[rootTag]
}

// Listeners returns every registered listener in registration order.
func (r *Registry) Listeners() []*Listener {
	return r.order
}

package pump

import (
	"encoding/xml"
	"fmt"

	"github.com/dullfig/xml-pipeline/internal/xmltree"
)

// EnvelopeNS is the namespace every envelope's <message> root must
// declare.
const EnvelopeNS = "https://xml-pipeline.org/ns/envelope/v1"

// Envelope is the parsed outer shape of an inbound or outbound message:
// control fields plus the single payload element, extracted by the
// envelope-validate and payload-extract steps.
type Envelope struct {
	FromID   string
	ToID     string
	ThreadID string
	Payload  *xmltree.Element
}

var metaNames = map[xml.Name]bool{
	{Space: EnvelopeNS, Local: "from"}:   true,
	{Space: EnvelopeNS, Local: "to"}:     true,
	{Space: EnvelopeNS, Local: "thread"}: true,
	{Space: "", Local: "from"}:           true,
	{Space: "", Local: "to"}:             true,
	{Space: "", Local: "thread"}:         true,
}

// repairAndCanonicalize is stage 2: raw bytes to a canonical XML tree.
// Anything that cannot be parsed at all is MALFORMED; everything else
// (attribute order, namespace declaration spelling) is normalised by
// xmltree.Canonicalize so downstream stages compare deterministically.
func repairAndCanonicalize(raw []byte) (*xmltree.Element, *PumpError) {
	root, err := xmltree.Parse(raw)
	if err != nil {
		return nil, newError(Malformed, "", "unable to parse XML: %v", err)
	}
	xmltree.Canonicalize(root)
	return root, nil
}

// validateEnvelope is stage 3. It asserts the <message> root in the
// envelope namespace, accepts either the <meta>-wrapped or direct-child
// control-element form (§6.1, §9 open question #2), and rejects more than
// one each of from/to/thread. It returns the root unchanged: from/to/thread
// and the payload are extracted by extractPayload (stage 4); this stage
// only asserts envelope shape validity.
func validateEnvelope(root *xmltree.Element) (*xmltree.Element, *PumpError) {
	if root.Name != "message" || root.Space != EnvelopeNS {
		return nil, newError(EnvelopeInvalid, "", "root element must be <message> in namespace %s, got {%s}%s", EnvelopeNS, root.Space, root.Name)
	}

	meta := root.Child(EnvelopeNS, "meta")
	controlHolder := root
	if meta != nil {
		controlHolder = meta
	}

	for _, field := range []string{"from", "to", "thread"} {
		matches := 0
		for _, c := range controlHolder.Children {
			if c.Name == field && (c.Space == EnvelopeNS || c.Space == "") {
				matches++
			}
		}
		if matches > 1 {
			return nil, newError(EnvelopeInvalid, "", "envelope has %d <%s> elements, at most one allowed", matches, field)
		}
	}

	return root, nil
}

// extractPayload is stage 4. Given the validated <message> root, it
// isolates the single child that is not one of the three control
// elements (accounting for the <meta>-wrapped form) and fills in
// from/to/thread on the returned Envelope.
func extractPayload(root *xmltree.Element) (*Envelope, *PumpError) {
	meta := root.Child(EnvelopeNS, "meta")
	controlHolder := root
	var payloadSiblings []*xmltree.Element
	if meta != nil {
		controlHolder = meta
		payloadSiblings = root.ChildrenExcept(map[xml.Name]bool{{Space: EnvelopeNS, Local: "meta"}: true})
	} else {
		payloadSiblings = root.ChildrenExcept(metaNames)
	}

	env := &Envelope{}
	if from := controlHolder.Child("", "from"); from != nil {
		env.FromID = from.Text
	} else if from := controlHolder.Child(EnvelopeNS, "from"); from != nil {
		env.FromID = from.Text
	}
	if to := controlHolder.Child("", "to"); to != nil {
		env.ToID = to.Text
	} else if to := controlHolder.Child(EnvelopeNS, "to"); to != nil {
		env.ToID = to.Text
	}
	if thread := controlHolder.Child("", "thread"); thread != nil {
		env.ThreadID = thread.Text
	} else if thread := controlHolder.Child(EnvelopeNS, "thread"); thread != nil {
		env.ThreadID = thread.Text
	}

	if len(payloadSiblings) != 1 {
		return nil, newError(PayloadShapeInvalid, env.ThreadID, "expected exactly one payload element, found %d", len(payloadSiblings))
	}
	env.Payload = payloadSiblings[0]
	return env, nil
}

// assignThread is stage 5: generate a fresh identifier if the envelope
// did not carry one, else preserve it verbatim (§4.4, §3 invariant).
func assignThread(env *Envelope, gen func() string) {
	if env.ThreadID == "" {
		env.ThreadID = gen()
	}
}

// serializeEnvelope renders an outgoing Envelope in the canonical
// <meta>-wrapped form (§9 open question #2: accept both on ingress, emit
// only the wrapped form).
func serializeEnvelope(env *Envelope) ([]byte, error) {
	meta := &xmltree.Element{Space: EnvelopeNS, Name: "meta"}
	if env.FromID != "" {
		meta.Children = append(meta.Children, &xmltree.Element{Space: EnvelopeNS, Name: "from", Text: env.FromID})
	}
	if env.ToID != "" {
		meta.Children = append(meta.Children, &xmltree.Element{Space: EnvelopeNS, Name: "to", Text: env.ToID})
	}
	if env.ThreadID != "" {
		meta.Children = append(meta.Children, &xmltree.Element{Space: EnvelopeNS, Name: "thread", Text: env.ThreadID})
	}

	if env.Payload == nil {
		return nil, fmt.Errorf("pump: cannot serialize envelope with no payload")
	}

	root := &xmltree.Element{
		Space:    EnvelopeNS,
		Name:     "message",
		Children: []*xmltree.Element{meta, env.Payload},
	}
	return xmltree.Serialize(root)
}

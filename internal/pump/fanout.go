package pump

import (
	"github.com/dullfig/xml-pipeline/internal/xmltree"
)

// fanOut is stage 9 (§4.8): a handler's raw response bytes may contain
// several sibling payload roots. It wraps the bytes in a synthetic
// container, parses, and produces one re-injectable envelope per child,
// each carrying the inherited thread identifier and from = listener.name.
// A single-payload response yields a single envelope. A parse failure
// returns the original bytes unchanged, preserving them so the next pass
// through repair/envelope-validate can surface the error observably
// rather than swallowing it here.
//
// §4.7 allows a handler to return "a serialised envelope" directly -- the
// original source's own handlers build a complete <message> and return it
// as bytes rather than going through the structured HandlerResponse path.
// A sibling that is already a <message> in the envelope namespace is such
// a case: its payload and <to> are lifted out and re-emitted in a single
// <meta>-wrapped envelope (from and thread set as above), not wrapped
// again as the payload of a fresh envelope, or the outer tag becomes
// "message" and routing fails with NO_ROUTE on re-injection. A <message>
// whose payload cannot be isolated is re-emitted as written, so the next
// pass surfaces the error.
func fanOut(fromName, threadID string, raw []byte) [][]byte {
	wrapped := append(append([]byte("<_fanout>"), raw...), []byte("</_fanout>")...)
	root, err := xmltree.Parse(wrapped)
	if err != nil {
		return [][]byte{raw}
	}

	if len(root.Children) == 0 {
		return [][]byte{raw}
	}

	out := make([][]byte, 0, len(root.Children))
	for _, child := range root.Children {
		env := &Envelope{FromID: fromName, ThreadID: threadID, Payload: child}
		if child.Name == "message" && child.Space == EnvelopeNS {
			inner, perr := extractPayload(child)
			if perr != nil {
				b, err := xmltree.Serialize(child)
				if err != nil {
					b = raw
				}
				out = append(out, b)
				continue
			}
			env.ToID, env.Payload = inner.ToID, inner.Payload
		}

		b, err := serializeEnvelope(env)
		if err != nil {
			out = append(out, raw)
			continue
		}
		out = append(out, b)
	}
	return out
}

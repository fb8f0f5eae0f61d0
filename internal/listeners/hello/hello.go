// Package hello is a small demo organism: greeter receives a Greeting and
// replies with a GreetingResponse, either directly to the sender
// (Register) or addressed to shouter (RegisterTwoHop), which upper-cases
// the text and replies to the original sender. It exists to exercise the
// pump end to end with a minimal, readable pair of listeners.
package hello

import (
	"fmt"
	"strings"

	"github.com/dullfig/xml-pipeline/internal/pump"
	"github.com/dullfig/xml-pipeline/internal/xmltree"
)

// Greeting is the payload greeter listens for.
type Greeting struct {
	Name string
}

func (Greeting) TypeName() string { return "Greeting" }

func (g Greeting) ToElement() (*xmltree.Element, error) {
	return &xmltree.Element{
		Name:     "Greeting",
		Children: []*xmltree.Element{{Name: "name", Text: g.Name}},
	}, nil
}

// GreetingResponse is what greeter emits, and what shouter listens for.
// OriginalSender tracks who started the conversation so a later hop can
// address its own reply back to them, rather than to whichever listener
// forwarded it along.
type GreetingResponse struct {
	Text           string
	OriginalSender string
}

func (GreetingResponse) TypeName() string { return "GreetingResponse" }

func (r GreetingResponse) ToElement() (*xmltree.Element, error) {
	return &xmltree.Element{
		Name: "GreetingResponse",
		Children: []*xmltree.Element{
			{Name: "message", Text: r.Text},
			{Name: "original_sender", Text: r.OriginalSender},
		},
	}, nil
}

// ShoutedResponse is shouter's reply, addressed back to the original
// sender.
type ShoutedResponse struct {
	Text string
}

func (ShoutedResponse) TypeName() string { return "ShoutedResponse" }

func (r ShoutedResponse) ToElement() (*xmltree.Element, error) {
	return &xmltree.Element{Name: "ShoutedResponse", Text: r.Text}, nil
}

// GreetingCodec is the PayloadCodec for Greeting: a <name> child, no
// schema beyond well-formed presence of that child.
var GreetingCodec = pump.PayloadCodec{
	TypeName: "Greeting",
	Validate: func(el *xmltree.Element) error {
		if el.Child("", "name") == nil {
			return fmt.Errorf("Greeting requires a <name> child")
		}
		return nil
	},
	Parse: func(el *xmltree.Element) (pump.PayloadType, error) {
		name := el.Child("", "name")
		if name == nil {
			return nil, fmt.Errorf("Greeting requires a <name> child")
		}
		return Greeting{Name: name.Text}, nil
	},
}

// GreetingResponseCodec is the PayloadCodec for GreetingResponse.
var GreetingResponseCodec = pump.PayloadCodec{
	TypeName: "GreetingResponse",
	Validate: func(el *xmltree.Element) error {
		if m := el.Child("", "message"); m == nil || m.Text == "" {
			return fmt.Errorf("GreetingResponse requires a <message> child")
		}
		return nil
	},
	Parse: func(el *xmltree.Element) (pump.PayloadType, error) {
		r := GreetingResponse{}
		if m := el.Child("", "message"); m != nil {
			r.Text = m.Text
		}
		if s := el.Child("", "original_sender"); s != nil {
			r.OriginalSender = s.Text
		}
		return r, nil
	},
}

// ShoutedResponseCodec is the PayloadCodec for ShoutedResponse.
var ShoutedResponseCodec = pump.PayloadCodec{
	TypeName: "ShoutedResponse",
	Parse: func(el *xmltree.Element) (pump.PayloadType, error) {
		return ShoutedResponse{Text: el.Text}, nil
	},
}

// HandleGreeting replies "Hello, <name>!" to the sender who greeted us.
func HandleGreeting(payload pump.PayloadType, metadata pump.HandlerMetadata) ([]byte, *pump.HandlerResponse, error) {
	g := payload.(Greeting)
	return nil, &pump.HandlerResponse{
		Payload: GreetingResponse{Text: "Hello, " + g.Name + "!"},
		To:      metadata.FromID,
	}, nil
}

// MakeGreetingToShouter builds a HandleGreeting variant that, instead of
// replying to the sender directly, forwards to "shouter" -- the two-hop
// flow from the end-to-end scenarios. It tracks metadata.FromID as the
// conversation's original sender so shouter can close the loop back to
// them instead of replying to greeter.
func MakeGreetingToShouter(shouterName string) pump.HandlerFunc {
	return func(payload pump.PayloadType, metadata pump.HandlerMetadata) ([]byte, *pump.HandlerResponse, error) {
		g := payload.(Greeting)
		return nil, &pump.HandlerResponse{
			Payload: GreetingResponse{Text: "Hello, " + g.Name + "!", OriginalSender: metadata.FromID},
			To:      shouterName,
		}, nil
	}
}

// HandleShout upper-cases the greeting text and sends it back to
// whoever originally started the conversation, not to whichever listener
// forwarded it along.
func HandleShout(payload pump.PayloadType, metadata pump.HandlerMetadata) ([]byte, *pump.HandlerResponse, error) {
	r := payload.(GreetingResponse)
	return nil, &pump.HandlerResponse{
		Payload: ShoutedResponse{Text: strings.ToUpper(r.Text)},
		To:      r.OriginalSender,
	}, nil
}

// Register installs greeter, replying directly to whoever addressed it,
// and shouter, replying to the GreetingResponse's OriginalSender.
// greeterAgent and shouterAgent control whether
// the respective listener is registered as an agent (subject to the
// per-agent concurrency limit).
func Register(reg *pump.Registry, greeterAgent, shouterAgent bool) error {
	greeterHandler := HandleGreeting
	if err := reg.Register(&pump.Listener{
		Name:        "greeter",
		Codec:       GreetingCodec,
		Handler:     greeterHandler,
		Description: "Greets whoever addresses it.",
		IsAgent:     greeterAgent,
	}); err != nil {
		return err
	}
	return reg.Register(&pump.Listener{
		Name:        "shouter",
		Codec:       GreetingResponseCodec,
		Handler:     HandleShout,
		Description: "Upper-cases a greeting and replies to its origin.",
		IsAgent:     shouterAgent,
	})
}

// RegisterTwoHop installs greeter forwarding to shouter instead of
// replying directly, matching end-to-end scenario 2.
func RegisterTwoHop(reg *pump.Registry) error {
	if err := reg.Register(&pump.Listener{
		Name:        "greeter",
		Codec:       GreetingCodec,
		Handler:     MakeGreetingToShouter("shouter"),
		Description: "Greets, then forwards to shouter.",
	}); err != nil {
		return err
	}
	return reg.Register(&pump.Listener{
		Name:        "shouter",
		Codec:       GreetingResponseCodec,
		Handler:     HandleShout,
		Description: "Upper-cases a greeting and replies to its origin.",
	})
}

package hello

import (
	"testing"

	"github.com/dullfig/xml-pipeline/internal/pump"
	"github.com/dullfig/xml-pipeline/internal/xmltree"
)

func TestGreetingCodecRoundTrip(t *testing.T) {
	el, err := Greeting{Name: "World"}.ToElement()
	if err != nil {
		t.Fatalf("ToElement: %v", err)
	}
	if err := GreetingCodec.Validate(el); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	parsed, err := GreetingCodec.Parse(el)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	g, ok := parsed.(Greeting)
	if !ok || g.Name != "World" {
		t.Fatalf("parsed = %+v, want Greeting{World}", parsed)
	}
}

func TestGreetingCodecRejectsMissingName(t *testing.T) {
	el := &xmltree.Element{Name: "Greeting"}
	if err := GreetingCodec.Validate(el); err == nil {
		t.Fatalf("expected validation error for missing <name>")
	}
}

func TestHandleGreetingRepliesToSender(t *testing.T) {
	_, resp, err := HandleGreeting(Greeting{Name: "World"}, pump.HandlerMetadata{FromID: "user"})
	if err != nil {
		t.Fatalf("HandleGreeting: %v", err)
	}
	if resp == nil || resp.To != "user" {
		t.Fatalf("resp = %+v, want To=user", resp)
	}
	gr, ok := resp.Payload.(GreetingResponse)
	if !ok || gr.Text != "Hello, World!" {
		t.Fatalf("resp.Payload = %+v, want Hello, World!", resp.Payload)
	}
}

func TestHandleShoutUppercases(t *testing.T) {
	_, resp, err := HandleShout(GreetingResponse{Text: "hello, alice!", OriginalSender: "alice"}, pump.HandlerMetadata{FromID: "greeter"})
	if err != nil {
		t.Fatalf("HandleShout: %v", err)
	}
	sr, ok := resp.Payload.(ShoutedResponse)
	if !ok || sr.Text != "HELLO, ALICE!" {
		t.Fatalf("resp.Payload = %+v, want HELLO, ALICE!", resp.Payload)
	}
	if resp.To != "alice" {
		t.Fatalf("resp.To = %q, want alice (the original sender, not greeter who forwarded it)", resp.To)
	}
}

func TestGreetingResponseCodecRoundTrip(t *testing.T) {
	el, err := GreetingResponse{Text: "Hello, World!", OriginalSender: "user"}.ToElement()
	if err != nil {
		t.Fatalf("ToElement: %v", err)
	}
	if err := GreetingResponseCodec.Validate(el); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	parsed, err := GreetingResponseCodec.Parse(el)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	gr, ok := parsed.(GreetingResponse)
	if !ok || gr.Text != "Hello, World!" || gr.OriginalSender != "user" {
		t.Fatalf("parsed = %+v, want {Hello, World! user}", parsed)
	}
}

// The two-hop flow (greeter forwards to shouter) must close the loop
// back to whoever originally sent the Greeting, not to greeter.
func TestMakeGreetingToShouterTracksOriginalSender(t *testing.T) {
	forward := MakeGreetingToShouter("shouter")
	_, resp, err := forward(Greeting{Name: "alice"}, pump.HandlerMetadata{FromID: "alice"})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if resp.To != "shouter" {
		t.Fatalf("resp.To = %q, want shouter", resp.To)
	}
	gr, ok := resp.Payload.(GreetingResponse)
	if !ok || gr.OriginalSender != "alice" {
		t.Fatalf("resp.Payload = %+v, want OriginalSender=alice", resp.Payload)
	}

	_, shout, err := HandleShout(gr, pump.HandlerMetadata{FromID: "greeter"})
	if err != nil {
		t.Fatalf("HandleShout: %v", err)
	}
	if shout.To != "alice" {
		t.Fatalf("terminal response addressed to %q, want alice (the original sender)", shout.To)
	}
	sr, ok := shout.Payload.(ShoutedResponse)
	if !ok || sr.Text != "HELLO, ALICE!" {
		t.Fatalf("shout.Payload = %+v, want HELLO, ALICE!", shout.Payload)
	}
}

func TestRegisterDirectReply(t *testing.T) {
	reg := pump.NewRegistry()
	if err := Register(reg, true, false); err != nil {
		t.Fatalf("Register: %v", err)
	}
	greeter, ok := reg.ByName("greeter")
	if !ok || !greeter.IsAgent {
		t.Fatalf("expected greeter registered as an agent")
	}
	shouter, ok := reg.ByName("shouter")
	if !ok || shouter.IsAgent {
		t.Fatalf("expected shouter registered as a non-agent")
	}
}

func TestRegisterTwoHop(t *testing.T) {
	reg := pump.NewRegistry()
	if err := RegisterTwoHop(reg); err != nil {
		t.Fatalf("RegisterTwoHop: %v", err)
	}
	if _, ok := reg.ByName("greeter"); !ok {
		t.Fatalf("expected greeter registered")
	}
	if _, ok := reg.ByName("shouter"); !ok {
		t.Fatalf("expected shouter registered")
	}
}

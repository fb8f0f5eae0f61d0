package pump

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dullfig/xml-pipeline/internal/xmltree"
)

type greeting struct{ Name string }

func (greeting) TypeName() string { return "Greeting" }
func (g greeting) ToElement() (*xmltree.Element, error) {
	return &xmltree.Element{Name: "Greeting", Children: []*xmltree.Element{{Name: "name", Text: g.Name}}}, nil
}

type greetingResponse struct {
	Text           string
	OriginalSender string
}

func (greetingResponse) TypeName() string { return "GreetingResponse" }
func (r greetingResponse) ToElement() (*xmltree.Element, error) {
	return &xmltree.Element{
		Name: "GreetingResponse",
		Children: []*xmltree.Element{
			{Name: "message", Text: r.Text},
			{Name: "original_sender", Text: r.OriginalSender},
		},
	}, nil
}

var greetingCodec = PayloadCodec{
	TypeName: "Greeting",
	Parse: func(el *xmltree.Element) (PayloadType, error) {
		name := el.Child("", "name")
		if name == nil {
			return nil, fmt.Errorf("missing name")
		}
		return greeting{Name: name.Text}, nil
	},
}

func envelopeBytes(from, to, thread, payloadXML string) []byte {
	meta := "<meta>"
	if from != "" {
		meta += "<from>" + from + "</from>"
	}
	if to != "" {
		meta += "<to>" + to + "</to>"
	}
	if thread != "" {
		meta += "<thread>" + thread + "</thread>"
	}
	meta += "</meta>"
	return []byte(fmt.Sprintf(`<message xmlns=%q>%s%s</message>`, EnvelopeNS, meta, payloadXML))
}

func newTestRegistry(t *testing.T, handler HandlerFunc) *Registry {
	t.Helper()
	reg := NewRegistry()
	if err := reg.Register(&Listener{Name: "greeter", Codec: greetingCodec, Handler: handler}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return reg
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

// Scenario 1: Greeting round-trip.
func TestGreetingRoundTrip(t *testing.T) {
	var gotName, gotThread string
	var calls int
	handler := func(payload PayloadType, metadata HandlerMetadata) ([]byte, *HandlerResponse, error) {
		calls++
		g := payload.(greeting)
		gotName = g.Name
		gotThread = metadata.ThreadID
		return nil, &HandlerResponse{Payload: greetingResponse{Text: "Hello, " + g.Name + "!"}, To: metadata.FromID}, nil
	}
	reg := newTestRegistry(t, handler)

	p := New(reg, Options{})
	go p.Run()
	defer p.Shutdown()

	p.Inject(envelopeBytes("user", "greeter", "T1", `<Greeting><name>World</name></Greeting>`))

	waitFor(t, func() bool { return calls == 1 })
	if gotName != "World" {
		t.Fatalf("gotName = %q, want World", gotName)
	}
	if gotThread != "T1" {
		t.Fatalf("gotThread = %q, want T1", gotThread)
	}
}

// Scenario 2: two-hop agent flow. greeter forwards to shouter, tracking
// the original sender; shouter's own reply must close the loop back to
// that original sender, not to greeter who merely forwarded the message.
func TestTwoHopAgentFlow(t *testing.T) {
	var order []string

	greeterHandler := func(payload PayloadType, metadata HandlerMetadata) ([]byte, *HandlerResponse, error) {
		order = append(order, "greeter")
		g := payload.(greeting)
		return nil, &HandlerResponse{
			Payload: greetingResponse{Text: "Hello, " + g.Name + "!", OriginalSender: metadata.FromID},
			To:      "shouter",
		}, nil
	}

	type shoutResult struct{ Text, To string }
	resultCh := make(chan shoutResult, 1)
	shouterHandler := func(payload PayloadType, metadata HandlerMetadata) ([]byte, *HandlerResponse, error) {
		order = append(order, "shouter")
		r := payload.(greetingResponse)
		shouted := strings.ToUpper(r.Text)
		resultCh <- shoutResult{Text: shouted, To: r.OriginalSender}
		return nil, &HandlerResponse{
			Payload: greetingResponse{Text: shouted, OriginalSender: r.OriginalSender},
			To:      r.OriginalSender,
		}, nil
	}

	reg := NewRegistry()
	if err := reg.Register(&Listener{Name: "greeter", Codec: greetingCodec, Handler: greeterHandler}); err != nil {
		t.Fatalf("Register greeter: %v", err)
	}
	greetingRespCodec := PayloadCodec{
		TypeName: "GreetingResponse",
		Parse: func(el *xmltree.Element) (PayloadType, error) {
			r := greetingResponse{}
			if m := el.Child("", "message"); m != nil {
				r.Text = m.Text
			}
			if s := el.Child("", "original_sender"); s != nil {
				r.OriginalSender = s.Text
			}
			return r, nil
		},
	}
	if err := reg.Register(&Listener{Name: "shouter", Codec: greetingRespCodec, Handler: shouterHandler}); err != nil {
		t.Fatalf("Register shouter: %v", err)
	}

	p := New(reg, Options{})
	go p.Run()
	defer p.Shutdown()

	p.Inject(envelopeBytes("alice", "greeter", "", `<Greeting><name>alice</name></Greeting>`))

	select {
	case got := <-resultCh:
		if got.Text != "HELLO, ALICE!" {
			t.Fatalf("got text = %q, want HELLO, ALICE!", got.Text)
		}
		if got.To != "alice" {
			t.Fatalf("terminal response addressed to %q, want alice (the original sender)", got.To)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for shouter")
	}
	if len(order) != 2 || order[0] != "greeter" || order[1] != "shouter" {
		t.Fatalf("order = %v, want [greeter shouter]", order)
	}
}

// Scenario 3: malformed ingress never reaches a handler.
func TestMalformedIngressNoDispatch(t *testing.T) {
	calls := 0
	reg := newTestRegistry(t, func(PayloadType, HandlerMetadata) ([]byte, *HandlerResponse, error) {
		calls++
		return nil, nil, nil
	})
	p := New(reg, Options{})
	go p.Run()
	defer p.Shutdown()

	p.Inject([]byte(`<not valid xml`))
	time.Sleep(100 * time.Millisecond)
	if calls != 0 {
		t.Fatalf("calls = %d, want 0", calls)
	}
}

// Scenario 4: unknown route never reaches a handler.
func TestUnknownRouteNoDispatch(t *testing.T) {
	calls := 0
	reg := newTestRegistry(t, func(PayloadType, HandlerMetadata) ([]byte, *HandlerResponse, error) {
		calls++
		return nil, nil, nil
	})
	p := New(reg, Options{})
	go p.Run()
	defer p.Shutdown()

	p.Inject(envelopeBytes("user", "nonexistent", "", `<Greeting><name>World</name></Greeting>`))
	time.Sleep(100 * time.Millisecond)
	if calls != 0 {
		t.Fatalf("calls = %d, want 0", calls)
	}
}

// Scenario 5: multi-payload response fan-out. greeter's handler returns
// two sibling bare payloads addressed to nobody in particular; each
// reaches its own broadcast listener via the naked routing key.
func TestResponseFanOut(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	record := func(tag string) HandlerFunc {
		return func(PayloadType, HandlerMetadata) ([]byte, *HandlerResponse, error) {
			mu.Lock()
			seen = append(seen, tag)
			mu.Unlock()
			return nil, nil, nil
		}
	}
	bareCodec := func(tag string) PayloadCodec {
		return PayloadCodec{TypeName: tag, Parse: func(el *xmltree.Element) (PayloadType, error) {
			return bareElementPayload{el}, nil
		}}
	}

	reg := newTestRegistry(t, func(PayloadType, HandlerMetadata) ([]byte, *HandlerResponse, error) {
		return []byte(`<A/><B/>`), nil, nil
	})
	if err := reg.Register(&Listener{Name: "a-sink", Codec: bareCodec("A"), Handler: record("A"), Broadcast: true}); err != nil {
		t.Fatalf("Register a-sink: %v", err)
	}
	if err := reg.Register(&Listener{Name: "b-sink", Codec: bareCodec("B"), Handler: record("B"), Broadcast: true}); err != nil {
		t.Fatalf("Register b-sink: %v", err)
	}

	p := New(reg, Options{})
	go p.Run()
	defer p.Shutdown()

	p.Inject(envelopeBytes("user", "greeter", "T5", `<Greeting><name>World</name></Greeting>`))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	})
	mu.Lock()
	defer mu.Unlock()
	if !(seen[0] == "A" && seen[1] == "B") && !(seen[0] == "B" && seen[1] == "A") {
		t.Fatalf("seen = %v, want one A and one B", seen)
	}
}

type bareElementPayload struct{ el *xmltree.Element }

func (bareElementPayload) TypeName() string                      { return "" }
func (p bareElementPayload) ToElement() (*xmltree.Element, error) { return p.el, nil }

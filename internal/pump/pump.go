// Package pump implements the agent message pump: the ingress pipeline,
// router, bounded-concurrency dispatcher, response fan-out, and the
// queue-driven loop that ties them together.
package pump

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dullfig/xml-pipeline/internal/logging"
	"github.com/dullfig/xml-pipeline/internal/xmltree"
)

// State is the queue/pipeline driver's lifecycle state (§4.9).
type State int32

const (
	StateNew State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateRunning:
		return "RUNNING"
	case StateDraining:
		return "DRAINING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// dequeuePoll is the bounded-wait interval the run loop uses to notice a
// drain condition when the queue is empty.
const dequeuePoll = 500 * time.Millisecond

// Pump owns the work queue and runs the steady-state pipeline loop
// described in §4.9. Its routing table and listener registry are read-only
// once Run starts, and Run builds the per-agent semaphores from the
// registry as it stands then, so they are safe for the concurrent readers
// the dispatch stage spawns.
type Pump struct {
	reg        *Registry
	dispatcher *Dispatcher
	logger     *logging.SessionLogger
	opts       Options

	queue chan []byte
	slots chan struct{} // bounds max_concurrent_pipelines

	state atomic.Int32
	wg    sync.WaitGroup // in-flight pipeline items

	stop chan struct{}
	done chan struct{}
}

// Options configures a new Pump. Logger may be nil, in which case the
// global logger (if set) is used.
type Options struct {
	MaxConcurrentPipelines int
	MaxConcurrentHandlers  int
	MaxConcurrentPerAgent  int
	Logger                 *logging.SessionLogger
}

// New builds a Pump over a registry. Listeners may still be registered
// until Run is called; the registry must not be mutated after that (§5's
// read-only-after-bootstrap contract).
func New(reg *Registry, opts Options) *Pump {
	if opts.MaxConcurrentPipelines <= 0 {
		opts.MaxConcurrentPipelines = 50
	}
	if opts.MaxConcurrentHandlers <= 0 {
		opts.MaxConcurrentHandlers = 20
	}
	if opts.MaxConcurrentPerAgent <= 0 {
		opts.MaxConcurrentPerAgent = 5
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	p := &Pump{
		reg:        reg,
		dispatcher: NewDispatcher(reg, opts.MaxConcurrentHandlers, opts.MaxConcurrentPerAgent),
		logger:     logger,
		opts:       opts,
		queue:      make(chan []byte, 4096),
		slots:      make(chan struct{}, opts.MaxConcurrentPipelines),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	p.state.Store(int32(StateNew))
	return p
}

// State reports the driver's current lifecycle state.
func (p *Pump) State() State {
	return State(p.state.Load())
}

// Inject enqueues a new message, the producer role §4.9 names first
// among the driver's responsibilities. raw must be a complete envelope
// document; bare payload elements should be wrapped with InjectPayload
// instead.
func (p *Pump) Inject(raw []byte) {
	p.queue <- raw
}

// InjectPayload is a convenience for callers (demo listeners, tests, the
// CLI entrypoint) that have a bare payload element rather than a
// complete envelope: it builds the <meta>-wrapped form described in
// §6.1 and enqueues it.
func (p *Pump) InjectPayload(fromID, toID, threadID string, payload *xmltree.Element) error {
	env := &Envelope{FromID: fromID, ToID: toID, ThreadID: threadID, Payload: payload}
	raw, err := serializeEnvelope(env)
	if err != nil {
		return err
	}
	p.Inject(raw)
	return nil
}

// Run transitions NEW → RUNNING and drains the queue until Shutdown is
// called and all in-flight work completes, at which point it transitions
// DRAINING → STOPPED and returns. It is meant to be called once, from
// whatever goroutine owns the pump's lifetime.
func (p *Pump) Run() {
	if !p.state.CompareAndSwap(int32(StateNew), int32(StateRunning)) {
		return
	}
	defer close(p.done)
	defer p.state.Store(int32(StateStopped))

	// Rebuild so agents registered between New and Run get their semaphore.
	p.dispatcher = NewDispatcher(p.reg, p.opts.MaxConcurrentHandlers, p.opts.MaxConcurrentPerAgent)

	ticker := time.NewTicker(dequeuePoll)
	defer ticker.Stop()

	for {
		select {
		case raw := <-p.queue:
			p.slots <- struct{}{}
			p.wg.Add(1)
			go func(raw []byte) {
				defer p.wg.Done()
				defer func() { <-p.slots }()
				p.processOne(raw)
			}(raw)
		case <-ticker.C:
			if p.State() == StateDraining && len(p.queue) == 0 {
				p.wg.Wait()
				if len(p.queue) == 0 {
					return
				}
			}
		case <-p.stop:
			p.wg.Wait()
			return
		}
	}
}

// Shutdown is cooperative (§5): it stops admitting new dispatches and
// lets in-flight handlers finish, then blocks until the run loop has
// transitioned to STOPPED once the queue is empty and nothing is in
// flight. Calling Shutdown before Run has ever started transitions
// straight to STOPPED.
func (p *Pump) Shutdown() {
	if p.state.CompareAndSwap(int32(StateNew), int32(StateStopped)) {
		return
	}
	p.state.CompareAndSwap(int32(StateRunning), int32(StateDraining))
	<-p.done
}

// Cancel forces an immediate stop regardless of draining state (the "any
// -> STOPPED on unrecoverable cancellation" transition in §4.9). In-flight
// handlers are still allowed to finish; only new queue items stop being
// admitted.
func (p *Pump) Cancel() {
	select {
	case <-p.stop:
	default:
		close(p.stop)
	}
	<-p.done
}

// processOne runs one item through the full pipeline (repair through
// dispatch) and re-injects whatever the dispatcher produced, per the
// re-injection rule in §4.9: every state emerging from dispatch goes
// back on the queue; error states short-circuit before dispatch and are
// only logged (the error-filter stage of §7's propagation policy).
func (p *Pump) processOne(raw []byte) {
	ms := newMessageState(raw)

	root, perr := repairAndCanonicalize(raw)
	if perr != nil {
		ms.fail(perr)
		p.logError(ms.Err)
		return
	}

	root, perr = validateEnvelope(root)
	if perr != nil {
		ms.fail(perr)
		p.logError(ms.Err)
		return
	}

	env, perr := extractPayload(root)
	if perr != nil {
		ms.fail(perr)
		p.logError(ms.Err)
		return
	}
	ms.Envelope = env
	ms.Payload = env.Payload

	assignThread(env, uuid.NewString)
	ms.ThreadID, ms.FromID, ms.ToID = env.ThreadID, env.FromID, env.ToID

	targets, perr := route(p.reg, env)
	if perr != nil {
		ms.fail(perr)
		p.logError(ms.Err)
		return
	}
	ms.TargetListeners = targets
	target := targets[0]

	payload, perr := validateAndDeserialize(target, env)
	if perr != nil {
		ms.fail(perr)
		p.logError(ms.Err)
		return
	}
	ms.TypedPayload = payload

	result := p.dispatcher.Dispatch(target, ms.TypedPayload, env)
	for _, resp := range result.responses {
		p.Inject(resp)
	}
}

func (p *Pump) logError(perr *PumpError) {
	if p.logger != nil {
		p.logger.PumpError(perr.ThreadID, string(perr.Kind), perr.Message)
	}
}

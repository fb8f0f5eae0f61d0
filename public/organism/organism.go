// Package organism provides a public API for embedding the message pump
// in other Go applications.
//
// An Organism wraps a pump.Pump and its listener registry, letting a host
// application register handlers in-process, inject envelopes, and run the
// pump to completion without depending on internal package paths.
//
// Example usage:
//
//	org, err := organism.New(organism.Config{MaxConcurrentPerAgent: 5})
//	org.MustRegister(&pump.Listener{Name: "greeter", Codec: greetingCodec, Handler: handleGreeting})
//	go org.Run()
//	org.Inject(envelopeBytes)
//	org.Shutdown()
package organism

import (
	"fmt"

	"github.com/dullfig/xml-pipeline/internal/config"
	"github.com/dullfig/xml-pipeline/internal/logging"
	"github.com/dullfig/xml-pipeline/internal/pump"
	"github.com/dullfig/xml-pipeline/internal/xmltree"
)

// Config configures a new Organism.
type Config struct {
	MaxConcurrentPipelines int
	MaxConcurrentHandlers  int
	MaxConcurrentPerAgent  int

	// LogDir, if set, enables session logging via a SessionLogger rooted
	// there. If empty, no logging is performed unless a global logger
	// has already been installed by the caller.
	LogDir string
}

// Organism is the embeddable handle on a running message pump.
type Organism struct {
	reg    *pump.Registry
	pump   *pump.Pump
	logger *logging.SessionLogger
}

// New creates an Organism with an empty listener registry. Listeners
// must be registered before Run is called; the registry is read-only
// once the pump starts.
func New(cfg Config) (*Organism, error) {
	var logger *logging.SessionLogger
	if cfg.LogDir != "" {
		var err error
		logger, err = logging.New(cfg.LogDir, false)
		if err != nil {
			return nil, fmt.Errorf("organism: %w", err)
		}
	}

	reg := pump.NewRegistry()
	p := pump.New(reg, pump.Options{
		MaxConcurrentPipelines: cfg.MaxConcurrentPipelines,
		MaxConcurrentHandlers:  cfg.MaxConcurrentHandlers,
		MaxConcurrentPerAgent:  cfg.MaxConcurrentPerAgent,
		Logger:                 logger,
	})

	return &Organism{reg: reg, pump: p, logger: logger}, nil
}

// FromOrganismConfig builds the Config fields that come from an organism
// description file (§6.2), leaving LogDir for the caller to set.
func FromOrganismConfig(cfg *config.OrganismConfig) Config {
	return Config{
		MaxConcurrentPipelines: cfg.MaxConcurrentPipelines,
		MaxConcurrentHandlers:  cfg.MaxConcurrentHandlers,
		MaxConcurrentPerAgent:  cfg.MaxConcurrentPerAgent,
	}
}

// Register installs a listener. It must be called before Run.
func (o *Organism) Register(l *pump.Listener) error {
	return o.reg.Register(l)
}

// MustRegister is Register, panicking on error; convenient at startup
// where a registration failure is a programming error, not a runtime
// condition to recover from.
func (o *Organism) MustRegister(l *pump.Listener) {
	if err := o.Register(l); err != nil {
		panic(err)
	}
}

// Inject enqueues a complete envelope document.
func (o *Organism) Inject(raw []byte) {
	o.pump.Inject(raw)
}

// InjectPayload wraps a bare payload element in an envelope and enqueues
// it, for callers that have not built the envelope XML themselves.
func (o *Organism) InjectPayload(fromID, toID, threadID string, payload *xmltree.Element) error {
	return o.pump.InjectPayload(fromID, toID, threadID, payload)
}

// Run starts the pump's steady-state loop; it blocks until Shutdown is
// called elsewhere and the queue has drained.
func (o *Organism) Run() {
	o.pump.Run()
}

// Shutdown stops admitting new dispatches, waits for in-flight handlers
// and the queue to drain, then returns once the driver has reached
// STOPPED.
func (o *Organism) Shutdown() {
	o.pump.Shutdown()
	if o.logger != nil {
		o.logger.Close()
	}
}

// State reports the underlying pump's lifecycle state.
func (o *Organism) State() pump.State {
	return o.pump.State()
}

// Command organism boots a pump from an organism config file, registers
// the built-in demo listeners, and runs until an OS signal requests
// shutdown.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dullfig/xml-pipeline/internal/config"
	"github.com/dullfig/xml-pipeline/internal/listeners/hello"
	"github.com/dullfig/xml-pipeline/internal/logging"
	"github.com/dullfig/xml-pipeline/internal/pump"
	"github.com/dullfig/xml-pipeline/public/organism"
)

func main() {
	configPath := flag.String("config", "", "organism config file path")
	logDir := flag.String("log-dir", "./logs", "session log directory")
	flag.Parse()

	if *configPath == "" {
		log.Fatal("organism: -config is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("organism: failed to load config: %v", err)
	}

	logger, err := logging.New(*logDir, false)
	if err != nil {
		log.Fatalf("organism: failed to start logging: %v", err)
	}
	logging.SetGlobalLogger(logger)
	defer logger.Close()

	org, err := organism.New(organism.FromOrganismConfig(cfg))
	if err != nil {
		log.Fatalf("organism: %v", err)
	}

	if err := registerListeners(org, cfg); err != nil {
		log.Fatalf("organism: failed to register listeners: %v", err)
	}

	logger.Info("organism %q starting (PID %d), %d listener(s) registered", cfg.Organism.Name, os.Getpid(), len(cfg.Listeners))

	go org.Run()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("organism %q received shutdown signal, draining", cfg.Organism.Name)
	org.Shutdown()
	logger.Info("organism %q stopped", cfg.Organism.Name)
}

// registerListeners wires the organism config's listener list to the
// handlers known to this binary. A real deployment would resolve
// payload_class/handler identifiers dynamically (e.g. a plugin registry);
// this demo binary only knows the hello package's greeter/shouter pair,
// matched by name.
func registerListeners(org *organism.Organism, cfg *config.OrganismConfig) error {
	byName := make(map[string]config.ListenerConfig, len(cfg.Listeners))
	for _, l := range cfg.Listeners {
		byName[l.Name] = l
	}

	known := 0
	if lc, ok := byName["greeter"]; ok {
		known++
		if err := org.Register(&pump.Listener{
			Name:        "greeter",
			Codec:       hello.GreetingCodec,
			Handler:     hello.HandleGreeting,
			Description: lc.Description,
			IsAgent:     lc.Agent,
			Peers:       lc.Peers,
			Broadcast:   lc.Broadcast,
		}); err != nil {
			return err
		}
	}
	if lc, ok := byName["shouter"]; ok {
		known++
		if err := org.Register(&pump.Listener{
			Name:        "shouter",
			Codec:       hello.GreetingResponseCodec,
			Handler:     hello.HandleShout,
			Description: lc.Description,
			IsAgent:     lc.Agent,
			Peers:       lc.Peers,
			Broadcast:   lc.Broadcast,
		}); err != nil {
			return err
		}
	}

	if known != len(cfg.Listeners) {
		return fmt.Errorf("config references listeners this binary does not know how to construct")
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
organism:
  name: demo
max_concurrent_per_agent: 3
listeners:
  - name: greeter
    payload_class: Greeting
    handler: HandleGreeting
    agent: true
  - name: shouter
    payload_class: GreetingResponse
    handler: HandleShout
`

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "organism.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Organism.Port != 8765 {
		t.Fatalf("Port = %d, want 8765", cfg.Organism.Port)
	}
	if cfg.ThreadScheduling != BreadthFirst {
		t.Fatalf("ThreadScheduling = %q, want breadth-first", cfg.ThreadScheduling)
	}
	if cfg.MaxConcurrentPipelines != 50 || cfg.MaxConcurrentHandlers != 20 {
		t.Fatalf("unexpected concurrency defaults: %+v", cfg)
	}
	if cfg.MaxConcurrentPerAgent != 3 {
		t.Fatalf("MaxConcurrentPerAgent = %d, want 3 (explicit override)", cfg.MaxConcurrentPerAgent)
	}
	if len(cfg.Listeners) != 2 || cfg.Listeners[0].Name != "greeter" || !cfg.Listeners[0].Agent {
		t.Fatalf("unexpected listeners: %+v", cfg.Listeners)
	}
}

func TestLoadRejectsMissingName(t *testing.T) {
	path := writeTemp(t, "organism:\n  port: 1\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing organism.name")
	}
}

func TestLoadRejectsDuplicateListenerNames(t *testing.T) {
	path := writeTemp(t, `
organism:
  name: demo
listeners:
  - name: greeter
    payload_class: Greeting
  - name: greeter
    payload_class: GreetingResponse
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for duplicate listener names")
	}
}

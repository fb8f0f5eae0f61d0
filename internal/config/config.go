// Package config loads the organism description: the YAML document naming
// the organism, its concurrency limits, and its ordered list of listeners.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ThreadScheduling is a policy hint for the queue driver; the core pump
// does not currently change behaviour based on it, but it is carried
// through so operators can express intent and future drivers can act on
// it.
type ThreadScheduling string

const (
	BreadthFirst ThreadScheduling = "breadth-first"
	DepthFirst   ThreadScheduling = "depth-first"
)

// OrganismConfig is the top-level document loaded from an organism YAML
// file.
type OrganismConfig struct {
	Organism OrganismInfo `yaml:"organism"`

	ThreadScheduling ThreadScheduling `yaml:"thread_scheduling"`

	MaxConcurrentPipelines int `yaml:"max_concurrent_pipelines"`
	MaxConcurrentHandlers  int `yaml:"max_concurrent_handlers"`
	MaxConcurrentPerAgent  int `yaml:"max_concurrent_per_agent"`

	Listeners []ListenerConfig `yaml:"listeners"`
}

// OrganismInfo holds the organism's identity fields.
type OrganismInfo struct {
	Name     string `yaml:"name"`
	Identity string `yaml:"identity"`
	Port     int    `yaml:"port"`
}

// ListenerConfig describes one entry in the organism's listener list. This
// package only carries the handler and payload type identifiers; nothing
// here resolves them (the demo binary matches listeners by name).
type ListenerConfig struct {
	Name        string   `yaml:"name"`
	PayloadType string   `yaml:"payload_class"`
	Handler     string   `yaml:"handler"`
	Description string   `yaml:"description"`
	Agent       bool     `yaml:"agent"`
	Peers       []string `yaml:"peers"`
	Broadcast   bool     `yaml:"broadcast"`
}

// Load reads and parses an organism config file, applying the defaults
// from §6.2: port 8765, breadth-first scheduling, 50/20/5 concurrency
// limits.
func Load(filename string) (*OrganismConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read organism config: %w", err)
	}

	var cfg OrganismConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse organism config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *OrganismConfig) {
	if cfg.Organism.Port == 0 {
		cfg.Organism.Port = 8765
	}
	if cfg.ThreadScheduling == "" {
		cfg.ThreadScheduling = BreadthFirst
	}
	if cfg.MaxConcurrentPipelines == 0 {
		cfg.MaxConcurrentPipelines = 50
	}
	if cfg.MaxConcurrentHandlers == 0 {
		cfg.MaxConcurrentHandlers = 20
	}
	if cfg.MaxConcurrentPerAgent == 0 {
		cfg.MaxConcurrentPerAgent = 5
	}
}

func validate(cfg *OrganismConfig) error {
	if cfg.Organism.Name == "" {
		return fmt.Errorf("organism config: organism.name is required")
	}
	if cfg.MaxConcurrentPipelines < 0 || cfg.MaxConcurrentHandlers < 0 || cfg.MaxConcurrentPerAgent < 0 {
		return fmt.Errorf("organism config: concurrency limits cannot be negative")
	}
	seen := make(map[string]bool, len(cfg.Listeners))
	for _, l := range cfg.Listeners {
		if l.Name == "" {
			return fmt.Errorf("organism config: listener entry missing name")
		}
		if seen[l.Name] {
			return fmt.Errorf("organism config: duplicate listener name %q", l.Name)
		}
		seen[l.Name] = true
	}
	return nil
}

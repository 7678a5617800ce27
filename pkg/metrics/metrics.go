// Package metrics provides a small built-in-collector registry so
// cmd/tiermemd can gather every prometheus.Collector the daemon wires in
// (today, just tiermem's Telemetry) into one pedantic registry without
// hardcoding the list at the call site.
package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type InitCollector func() (prometheus.Collector, error)

// Registry collects named prometheus.Collector constructors and builds a
// pedantic Gatherer from them on demand. Unlike the package-level
// registry this replaced, a Registry carries no global state, so each
// daemon process constructs and owns its own instead of every collector
// call site racing a shared map.
type Registry struct {
	mu         sync.Mutex
	collectors map[string]InitCollector
}

func NewRegistry() *Registry {
	return &Registry{collectors: make(map[string]InitCollector)}
}

func (r *Registry) RegisterCollector(name string, init InitCollector) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, found := r.collectors[name]; found {
		return fmt.Errorf("collector %s already registered", name)
	}
	r.collectors[name] = init
	return nil
}

// Gatherer builds a fresh prometheus.Gatherer from every collector
// registered so far.
func (r *Registry) Gatherer() (prometheus.Gatherer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg := prometheus.NewPedanticRegistry()
	collected := make([]prometheus.Collector, 0, len(r.collectors))
	for _, cb := range r.collectors {
		c, err := cb()
		if err != nil {
			return nil, err
		}
		collected = append(collected, c)
	}
	reg.MustRegister(collected...)
	return reg, nil
}

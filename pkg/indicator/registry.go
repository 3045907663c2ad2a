package indicator

import (
	"fmt"
	"sync"

	"github.com/mohamedkhairy/displacement-tracker/internal/models"
)

// Registry manages metric definitions in registration order
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]models.MetricDefinition
	order       []string
}

// NewRegistry creates a new metric registry
func NewRegistry() *Registry {
	return &Registry{
		definitions: make(map[string]models.MetricDefinition),
		order:       make([]string, 0),
	}
}

// NewRegistryFromConfig creates a registry holding every metric of a scoring config
func NewRegistryFromConfig(cfg *models.ScoringConfig) (*Registry, error) {
	r := NewRegistry()
	for _, def := range cfg.Metrics {
		if err := r.Register(def); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register registers a metric definition
func (r *Registry) Register(def models.MetricDefinition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("invalid metric definition: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.definitions[def.Name]; exists {
		return fmt.Errorf("metric %q already registered", def.Name)
	}

	r.definitions[def.Name] = def
	r.order = append(r.order, def.Name)
	return nil
}

// Get retrieves a metric definition by name
func (r *Registry) Get(name string) (models.MetricDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, exists := r.definitions[name]
	if !exists {
		return models.MetricDefinition{}, fmt.Errorf("%w: %q not found", models.ErrInvalidMetric, name)
	}
	return def, nil
}

// List returns all definitions in registration order
func (r *Registry) List() []models.MetricDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]models.MetricDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.definitions[name])
	}
	return defs
}

// Names returns the registered metric names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Required returns the names of metrics that must be present to score a window
func (r *Registry) Required() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.order))
	for _, name := range r.order {
		if !r.definitions[name].Optional {
			names = append(names, name)
		}
	}
	return names
}

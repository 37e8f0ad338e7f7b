package multiagent

import (
	"iter"
	"log/slog"
	"slices"
	"sync"

	"energyscope/internal/domain"
	"energyscope/internal/infra/logger"
)

// Registry holds the registered specialists in registration order.
// Registration happens at startup; lookups during query processing only read.
type Registry struct {
	mu          sync.RWMutex
	specialists map[string]domain.Specialist
	order       []string
	defaultName string
	logger      *slog.Logger
}

// NewRegistry creates a Registry whose fallback specialist is defaultName.
func NewRegistry(defaultName string, log *slog.Logger) *Registry {
	return &Registry{
		specialists: make(map[string]domain.Specialist),
		defaultName: defaultName,
		logger:      logger.OrNop(log),
	}
}

// Register adds a specialist under its capability name.
func (r *Registry) Register(s domain.Specialist) error {
	name := s.Capabilities().Name
	if name == "" {
		return domain.NewSubSystemError("specialist", "Registry.Register", domain.ErrInvalidInput, "specialist has no name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specialists[name]; exists {
		return domain.NewSubSystemError("specialist", "Registry.Register", domain.ErrDuplicate, name)
	}
	r.specialists[name] = s
	r.order = append(r.order, name)
	r.logger.Info("specialist registered", "name", name, "intents", s.Capabilities().SupportedIntents)
	return nil
}

// Get returns the specialist registered under name.
func (r *Registry) Get(name string) (domain.Specialist, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.specialists[name]
	if !ok {
		return nil, domain.NewSubSystemError("specialist", "Registry.Get", domain.ErrNotFound, name)
	}
	return s, nil
}

// Default returns the fallback specialist.
func (r *Registry) Default() (domain.Specialist, error) {
	return r.Get(r.defaultName)
}

// DefaultName returns the name of the fallback specialist.
func (r *Registry) DefaultName() string { return r.defaultName }

// List yields capability descriptors in registration order. The sequence is
// restartable: each iteration walks the registry afresh.
func (r *Registry) List() iter.Seq[domain.CapabilityDescriptor] {
	return func(yield func(domain.CapabilityDescriptor) bool) {
		for _, s := range r.snapshot() {
			if !yield(s.Capabilities()) {
				return
			}
		}
	}
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Len returns the number of registered specialists.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *Registry) snapshot() []domain.Specialist {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Specialist, len(r.order))
	for i, name := range r.order {
		out[i] = r.specialists[name]
	}
	return out
}

package llm

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"respstream/internal/domain"
	"respstream/internal/infra/config"
)

// Registry holds named response streamers.
type Registry struct {
	mu        sync.RWMutex
	streamers map[string]domain.ResponseStreamer
}

// NewRegistry creates an empty streamer registry.
func NewRegistry() *Registry {
	return &Registry{
		streamers: make(map[string]domain.ResponseStreamer),
	}
}

// NewRegistryFromConfig builds one streamer per configured provider, each
// behind a circuit breaker when the breaker is enabled.
func NewRegistryFromConfig(cfg *config.Config, logger *slog.Logger, opts ...ProviderOption) (*Registry, error) {
	r := NewRegistry()
	for _, pc := range cfg.LLM.Providers {
		p, err := NewResponsesProvider(pc, cfg.Stream, logger, opts...)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", pc.Name, err)
		}
		var s domain.ResponseStreamer = p
		if cfg.LLM.CircuitBreaker.Enabled {
			s = NewCircuitBreakerStreamer(p, cfg.LLM.CircuitBreaker, logger)
		}
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a streamer. Returns error if name already registered.
func (r *Registry) Register(s domain.ResponseStreamer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := s.Name()
	if _, exists := r.streamers[name]; exists {
		return domain.NewDomainError("Registry.Register", domain.ErrDuplicate, name)
	}
	r.streamers[name] = s
	return nil
}

// Get retrieves a streamer by name.
func (r *Registry) Get(name string) (domain.ResponseStreamer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.streamers[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrProviderNotFound, name)
	}
	return s, nil
}

// List returns all registered names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.streamers))
	for name := range r.streamers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

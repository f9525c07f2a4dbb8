package ai

import (
	"fmt"
	"sort"
	"sync"
	"time"

	. "github.com/thehoang-x-five/Rag-OCR/internal/logging"
)

// Registry owns the name -> (adapter, status) map. Reads hand out
// defensive copies; the single write path takes a short critical section
// and never holds the lock across I/O.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registryEntry
	order   []string // enabled names in ascending priority
}

type registryEntry struct {
	adapter Provider
	cfg     ProviderConfig
	status  Status
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registryEntry)}
}

// NewRegistryFromConfigs builds adapters for every enabled config and
// registers them. A config whose adapter cannot be constructed is skipped
// with a warning, matching how a missing API key should degrade.
func NewRegistryFromConfigs(cfgs []ProviderConfig) (*Registry, error) {
	r := NewRegistry()
	for _, cfg := range cfgs {
		if !cfg.Enabled {
			L_debug("llm: provider disabled, skipping", "name", cfg.Name)
			continue
		}
		adapter, err := NewProviderAdapter(cfg)
		if err != nil {
			L_warn("llm: failed to initialize provider, skipping", "name", cfg.Name, "error", err)
			continue
		}
		if err := r.Register(adapter, cfg); err != nil {
			return nil, err
		}
	}
	L_info("llm: registry created", "providers", len(r.order))
	return r, nil
}

// NewProviderAdapter constructs the adapter for a config by provider name.
func NewProviderAdapter(cfg ProviderConfig) (Provider, error) {
	switch cfg.Name {
	case ProviderGroq:
		return NewGroqProvider(cfg)
	case ProviderDeepSeek:
		return NewDeepSeekProvider(cfg)
	case ProviderGemini:
		return NewGeminiProvider(cfg)
	case ProviderLocalLLM:
		return NewLocalLLMProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Name)
	}
}

// Register adds an adapter with its config. Names must be unique.
func (r *Registry) Register(adapter Provider, cfg ProviderConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := adapter.Name()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("provider %s already registered", name)
	}

	r.entries[name] = &registryEntry{
		adapter: adapter,
		cfg:     cfg,
		status: Status{
			Name:           name,
			Available:      true,
			LastChecked:    time.Now(),
			SupportsVision: adapter.SupportsVision(),
		},
	}
	r.order = append(r.order, name)
	sort.SliceStable(r.order, func(i, j int) bool {
		return r.entries[r.order[i]].cfg.Priority < r.entries[r.order[j]].cfg.Priority
	})

	L_debug("llm: provider registered", "name", name, "priority", cfg.Priority, "vision", adapter.SupportsVision())
	return nil
}

// ByPriority returns the enabled adapters in ascending priority order.
func (r *Registry) ByPriority() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Provider, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].adapter)
	}
	return out
}

// Names returns the registered provider names in priority order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Adapter returns a registered adapter by name.
func (r *Registry) Adapter(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.adapter, true
}

// Status returns a copy of one provider's status record.
func (r *Registry) Status(name string) (Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return Status{}, false
	}
	return e.status, true
}

// StatusSnapshot returns a defensive copy of every status record, for the
// health endpoint.
func (r *Registry) StatusSnapshot() map[string]Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[string]Status, len(r.entries))
	for name, e := range r.entries {
		snapshot[name] = e.status
	}
	return snapshot
}

// update applies one mutation to a provider's status under the write lock.
func (r *Registry) update(name string, fn func(*Status)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		fn(&e.status)
	}
}

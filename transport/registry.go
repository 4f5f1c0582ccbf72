package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
)

var (
	ErrUnknownTransport = errors.New("activityflow: unknown transport")
	// ErrIncompleteTransport is returned by Build when a builder hands back a
	// transport that cannot both publish activities and serve consumer groups.
	ErrIncompleteTransport = errors.New("activityflow: transport lacks a publisher or group subscribers")
)

type entry struct {
	builder Builder
	caps    Capabilities
	hasCaps bool
}

// Registry resolves a PUBSUB_SYSTEM name to the builder that reaches the
// activity topic on that broker. Transport packages add themselves from init.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// DefaultRegistry holds the transports linked into the binary.
var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds or replaces the builder for name, keeping capabilities that
// were registered earlier. It panics on an empty name or a nil builder, both
// of which are programming errors in a transport package.
func (r *Registry) Register(name string, builder Builder) {
	mustRegistrable(name, builder)
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entries[name]
	e.builder = builder
	r.entries[name] = e
}

// RegisterWithCapabilities is Register plus the capabilities reported for
// name. An empty caps.Name is filled with name.
func (r *Registry) RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	mustRegistrable(name, builder)
	if caps.Name == "" {
		caps.Name = name
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = entry{builder: builder, caps: caps, hasCaps: true}
}

func mustRegistrable(name string, builder Builder) {
	if name == "" {
		panic("transport: Register called with an empty name")
	}
	if builder == nil {
		panic("transport: Register builder is nil for " + name)
	}
}

// GetCapabilities returns what name reported at registration. Unknown names
// and transports registered without capabilities get a zero value carrying
// only the name, which makes the service warn about every missing guarantee.
func (r *Registry) GetCapabilities(name string) Capabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[name]; ok && e.hasCaps {
		return e.caps
	}
	return Capabilities{Name: name}
}

// Build creates the transport selected by cfg.GetPubSubSystem. The result
// always has a publisher and a group subscriber factory.
func (r *Registry) Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	if cfg == nil {
		return Transport{}, errors.New("config is required")
	}
	name := cfg.GetPubSubSystem()

	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return Transport{}, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownTransport, name, r.Names())
	}

	t, err := e.builder(ctx, cfg, logger)
	if err != nil {
		return Transport{}, fmt.Errorf("build %s transport: %w", name, err)
	}
	if t.Publisher == nil || t.NewSubscriber == nil {
		if t.Publisher != nil {
			_ = t.Publisher.Close()
		}
		return Transport{}, fmt.Errorf("%w: %s", ErrIncompleteTransport, name)
	}
	return t, nil
}

// Names returns the registered transport names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Register adds a transport builder to the default registry.
func Register(name string, builder Builder) {
	DefaultRegistry.Register(name, builder)
}

// RegisterWithCapabilities adds a builder and its capabilities to the
// default registry.
func RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	DefaultRegistry.RegisterWithCapabilities(name, builder, caps)
}

// Build creates a transport using the default registry.
func Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	return DefaultRegistry.Build(ctx, cfg, logger)
}

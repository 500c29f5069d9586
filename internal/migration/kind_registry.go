package migration

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// KindConstructor builds a runnable Kind from a descriptor. Constructors are
// pure with respect to the registry: they read the descriptor's payload and
// return a Kind, nothing more.
type KindConstructor func(d Descriptor) (Kind, error)

// KindRegistry maps a descriptor's KindTag to the constructor that knows how
// to build a runnable Kind from it. The SQL and code kinds register
// themselves at package init; third-party extensions register through the
// same Register method.
type KindRegistry interface {
	// Register adds a constructor under tag. Re-registering an existing
	// tag returns ErrKindAlreadyRegistered.
	Register(tag string, ctor KindConstructor) error
	// Build looks up tag and invokes its constructor against d. Returns
	// ErrUnknownKind if no constructor is registered under d.KindTag.
	Build(d Descriptor) (Kind, error)
	// Tags returns the registered tags, sorted.
	Tags() []string
}

// InMemoryKindRegistry is the default, thread-safe KindRegistry.
type InMemoryKindRegistry struct {
	mu    sync.RWMutex
	ctors map[string]KindConstructor
	log   *zap.Logger
}

var _ KindRegistry = (*InMemoryKindRegistry)(nil)

// NewInMemoryKindRegistry creates an empty registry. A nil logger is
// replaced with a no-op logger.
func NewInMemoryKindRegistry(log *zap.Logger) *InMemoryKindRegistry {
	if log == nil {
		log = zap.NewNop()
	}
	return &InMemoryKindRegistry{
		ctors: make(map[string]KindConstructor),
		log:   log.With(zap.String("component", "kind_registry")),
	}
}

// ErrKindAlreadyRegistered is returned by Register on a duplicate tag.
var ErrKindAlreadyRegistered = fmt.Errorf("migration: kind already registered")

func (r *InMemoryKindRegistry) Register(tag string, ctor KindConstructor) error {
	if tag == "" {
		return fmt.Errorf("migration: kind tag must not be empty")
	}
	if ctor == nil {
		return fmt.Errorf("migration: kind constructor must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ctors[tag]; exists {
		return fmt.Errorf("%w: %s", ErrKindAlreadyRegistered, tag)
	}
	r.ctors[tag] = ctor
	r.log.Info("kind registered", zap.String("tag", tag))
	return nil
}

func (r *InMemoryKindRegistry) Build(d Descriptor) (Kind, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[d.KindTag]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, d.KindTag)
	}
	k, err := ctor(d)
	if err != nil {
		return nil, fmt.Errorf("build kind %s for migration %d: %w", d.KindTag, d.ID, err)
	}
	return k, nil
}

func (r *InMemoryKindRegistry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tags := make([]string, 0, len(r.ctors))
	for tag := range r.ctors {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// DefaultKindRegistry is the process-wide registry the SQL and code kinds
// register themselves into at init time. Applications that need an isolated
// registry (tests, multi-tenant discovery with conflicting tags) build their
// own with NewInMemoryKindRegistry and register SQLKindTag/CodeKindTag by
// hand via RegisterSQLKind/RegisterCodeKind.
var DefaultKindRegistry = NewInMemoryKindRegistry(nil)

func init() {
	_ = RegisterSQLKind(DefaultKindRegistry)
	_ = RegisterCodeKind(DefaultKindRegistry)
}

package semaphore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/viant/kcore/errs"
	"github.com/viant/kcore/internal/logger"
	"github.com/viant/kcore/service/dao"
	"github.com/viant/kcore/service/dao/store"
	"github.com/viant/kcore/service/scheduler"
)

// Config represents registry configuration
type Config struct {
	MaxSemaphores int `json:"maxSemaphores" yaml:"maxSemaphores"`
}

// DefaultConfig returns the default registry configuration
func DefaultConfig() Config {
	return Config{MaxSemaphores: 1024}
}

// Option customises the registry
type Option func(*Registry)

// WithConfig sets the registry configuration
func WithConfig(config Config) Option {
	return func(r *Registry) {
		r.config = config
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// Registry is the bounded table of live semaphores
type Registry struct {
	config Config
	sched  *scheduler.Service
	logger *slog.Logger
	store  *store.MemoryStore[ID, Semaphore]

	mu     sync.Mutex
	nextID ID
}

var _ dao.Service[ID, Semaphore] = (*store.MemoryStore[ID, Semaphore])(nil)

// Create allocates a registered semaphore
func (r *Registry) Create(initial, limit uint32) (*Semaphore, error) {
	sem, err := New(r.sched, initial, limit)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	sem.id = r.nextID + 1
	if err := r.store.Save(context.Background(), sem); err != nil {
		return nil, fmt.Errorf("failed to create semaphore: %w", err)
	}
	r.nextID++
	r.logger.Debug("semaphore created", "id", sem.id, "initial", initial, "max", limit)
	return sem, nil
}

// Lookup returns a live semaphore
func (r *Registry) Lookup(id ID) (*Semaphore, error) {
	sem, err := r.store.Load(context.Background(), id)
	if err != nil {
		return nil, fmt.Errorf("semaphore %d: %w", id, errs.ErrInvalidHandle)
	}
	return sem, nil
}

// Delete destroys a semaphore and frees its slot
func (r *Registry) Delete(id ID) error {
	sem, err := r.Lookup(id)
	if err != nil {
		return err
	}
	sem.Destroy()
	if err = r.store.Delete(context.Background(), id); err != nil {
		return fmt.Errorf("semaphore %d: %w", id, errs.ErrInvalidHandle)
	}
	r.logger.Debug("semaphore deleted", "id", id)
	return nil
}

// List returns live semaphores ordered by id
func (r *Registry) List() []*Semaphore {
	ret, _ := r.store.List(context.Background())
	return ret
}

// Len returns the number of live semaphores
func (r *Registry) Len() int {
	return r.store.Len()
}

// Scheduler returns the scheduler waiters block on
func (r *Registry) Scheduler() *scheduler.Service {
	return r.sched
}

// NewRegistry creates a registry bound to the supplied scheduler
func NewRegistry(sched *scheduler.Service, options ...Option) *Registry {
	ret := &Registry{config: DefaultConfig(), sched: sched}
	for _, opt := range options {
		opt(ret)
	}
	if ret.config.MaxSemaphores <= 0 {
		ret.config.MaxSemaphores = DefaultConfig().MaxSemaphores
	}
	ret.logger = logger.OrDefault(ret.logger)
	ret.store = store.NewMemoryStore[ID, Semaphore](
		func(s *Semaphore) ID { return s.id },
		ret.config.MaxSemaphores,
		func(a, b ID) bool { return a < b },
	)
	return ret
}

package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/swarm-handbook/editor/internal/dashboard"
	"github.com/swarm-handbook/editor/internal/observability"
)

// Manager creates sessions and runs events against them. Events for one
// session are handled one at a time, to completion; different sessions run
// in parallel.
type Manager struct {
	store   Store
	opts    dashboard.Options
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *zap.Logger
	newID   func() string

	locks keyedMutex
}

// NewManager creates a Manager. opts is shared by every Controller it
// builds.
func NewManager(store Store, opts dashboard.Options, ttl time.Duration) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:   store,
		opts:    opts,
		ttl:     ttl,
		metrics: opts.Metrics,
		logger:  logger,
		newID:   uuid.NewString,
	}
}

// Store returns the underlying store.
func (m *Manager) Store() Store {
	return m.store
}

// Create starts a session whose Controller is preloaded from location (a
// deep link such as "?SW_MAGx_LR_1B"). fn, if non-nil, runs against the new
// Controller before it is saved.
func (m *Manager) Create(ctx context.Context, location string, fn func(c *dashboard.Controller) error) (string, error) {
	id := m.newID()
	ctx, span := observability.StartSpan(ctx, observability.SpanSessionCreate, observability.AttrSessionID.String(id))

	c := dashboard.New(ctx, m.opts, location)
	var fnErr error
	if fn != nil {
		fnErr = fn(c)
	}
	if err := m.store.Save(ctx, id, c.Snapshot(), m.ttl); err != nil {
		observability.EndSpanWithError(span, err)
		return "", err
	}

	m.metrics.SessionCreated()
	observability.RequestLogger(ctx, m.logger).Info("session created",
		zap.String("session_id", id),
		zap.String("product_id", c.Product().ProductID),
	)
	observability.EndSpanWithError(span, fnErr)
	return id, fnErr
}

// With restores session id, runs fn, and saves the result. The state is
// saved even when fn fails so that notifications survive. A missing session
// is a NOT_FOUND error.
func (m *Manager) With(ctx context.Context, id string, fn func(c *dashboard.Controller) error) error {
	unlock := m.locks.Lock(id)
	defer unlock()

	ctx, span := observability.StartSpan(ctx, observability.SpanSessionEvent, observability.AttrSessionID.String(id))
	snap, err := m.store.Get(ctx, id)
	if err != nil {
		observability.EndSpanWithError(span, err)
		return err
	}

	c := dashboard.FromSnapshot(ctx, m.opts, snap)
	fnErr := fn(c)
	span.SetAttributes(observability.AttrProductID.String(c.Product().ProductID))

	if err := m.store.Save(ctx, id, c.Snapshot(), m.ttl); err != nil {
		observability.EndSpanWithError(span, err)
		return err
	}
	observability.EndSpanWithError(span, fnErr)
	return fnErr
}

// Delete ends session id.
func (m *Manager) Delete(ctx context.Context, id string) error {
	unlock := m.locks.Lock(id)
	defer unlock()

	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.metrics.SessionDeleted()
	observability.RequestLogger(ctx, m.logger).Info("session deleted", zap.String("session_id", id))
	return nil
}

// keyedMutex hands out one mutex per key and forgets it once no goroutine
// holds or waits for it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// Lock locks key and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedEntry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/chainflow/internal/logging"
	"github.com/aretw0/chainflow/pkg/chain"
	"github.com/aretw0/chainflow/pkg/domain"
	"github.com/aretw0/chainflow/pkg/ports"
	"github.com/aretw0/chainflow/pkg/schema"
)

// DefaultLockTTL bounds how long a distributed run lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager serializes access to persisted runs. Local locks are reference
// counted and dropped once unused; a DistributedLocker extends the guarantee
// across replicas.
type Manager struct {
	store ports.SnapshotStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides DefaultLockTTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new Manager on top of the given store.
func NewManager(store ports.SnapshotStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller locks entry.mu and calls release after unlocking.
func (m *Manager) acquire(runID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[runID]
	if !exists {
		entry = &lockEntry{}
		m.locks[runID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry at zero.
func (m *Manager) release(runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[runID]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, runID)
	}
}

// Start executes a freshly built chain and persists its snapshot under the
// chain's ID, suspended or finished.
func (m *Manager) Start(ctx context.Context, r chain.Runnable, vars map[string]any) (*domain.Snapshot, error) {
	c := r.Core()
	var snap *domain.Snapshot
	err := m.WithLock(ctx, c.ID(), func(ctx context.Context) error {
		c.Execute(ctx, vars)
		snap = c.Snapshot()
		m.logger.Info("run started", "run_id", snap.ID, "chain", snap.Name, "status", snap.Status)
		return m.save(ctx, snap)
	})
	return snap, err
}

// Resume restores the persisted run into r, which must come from the same
// wiring, resumes it with vars and persists the new snapshot.
// It returns domain.ErrNotResumable when the run is not suspended or vars
// misses or mistypes a waiting parameter.
func (m *Manager) Resume(ctx context.Context, runID string, r chain.Runnable, vars map[string]any) (*domain.Snapshot, error) {
	c := r.Core()
	var snap *domain.Snapshot
	err := m.WithLock(ctx, runID, func(ctx context.Context) error {
		stored, err := m.store.Load(ctx, runID)
		if err != nil {
			return err
		}
		if !stored.Suspended() {
			return fmt.Errorf("%w: run %s is %s", domain.ErrNotResumable, runID, stored.Status)
		}
		if missing := Missing(stored, vars); len(missing) > 0 {
			return fmt.Errorf("%w: run %s still waits for %v", domain.ErrNotResumable, runID, missing)
		}
		if err := schema.CheckParameters(stored.WaitInputParameters, vars); err != nil {
			return fmt.Errorf("%w: run %s: %w", domain.ErrNotResumable, runID, err)
		}
		if err := c.Restore(stored); err != nil {
			return err
		}
		if !c.Resume(ctx, vars) {
			return fmt.Errorf("%w: run %s", domain.ErrNotResumable, runID)
		}
		snap = c.Snapshot()
		m.logger.Info("run resumed", "run_id", runID, "status", snap.Status)
		return m.save(ctx, snap)
	})
	return snap, err
}

// Missing lists the waiting parameters of snap that vars does not carry.
func Missing(snap *domain.Snapshot, vars map[string]any) []string {
	var missing []string
	for _, p := range snap.WaitInputParameters {
		if _, ok := vars[p.Name]; !ok {
			missing = append(missing, p.Name)
		}
	}
	return missing
}

func (m *Manager) save(ctx context.Context, snap *domain.Snapshot) error {
	if err := m.store.Save(ctx, snap.ID, snap); err != nil {
		return fmt.Errorf("failed to persist run %s: %w", snap.ID, err)
	}
	return nil
}

// Load retrieves an existing run from the store.
func (m *Manager) Load(ctx context.Context, runID string) (*domain.Snapshot, error) {
	var snap *domain.Snapshot
	err := m.WithLock(ctx, runID, func(ctx context.Context) error {
		var err error
		snap, err = m.store.Load(ctx, runID)
		return err
	})
	return snap, err
}

// Save persists a snapshot.
func (m *Manager) Save(ctx context.Context, runID string, snap *domain.Snapshot) error {
	return m.WithLock(ctx, runID, func(ctx context.Context) error {
		return m.store.Save(ctx, runID, snap)
	})
}

// Delete removes the run from the store.
func (m *Manager) Delete(ctx context.Context, runID string) error {
	return m.WithLock(ctx, runID, func(ctx context.Context) error {
		return m.store.Delete(ctx, runID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Summaries loads every stored run. Runs deleted between List and Load are skipped.
func (m *Manager) Summaries(ctx context.Context) ([]*domain.Snapshot, error) {
	ids, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Snapshot, 0, len(ids))
	for _, id := range ids {
		snap, err := m.store.Load(ctx, id)
		if errors.Is(err, domain.ErrRunNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load run %s: %w", id, err)
		}
		out = append(out, snap)
	}
	return out, nil
}

// Store returns the underlying snapshot store.
func (m *Manager) Store() ports.SnapshotStore {
	return m.store
}

// WithLock executes fn while holding the run's local and distributed locks.
func (m *Manager) WithLock(ctx context.Context, runID string, fn func(context.Context) error) error {
	entry := m.acquire(runID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(runID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, runID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("failed to release distributed lock (will expire via TTL)",
					"run_id", runID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/chainflow/pkg/adapters/memory"
	"github.com/aretw0/chainflow/pkg/adapters/redis"
	"github.com/aretw0/chainflow/pkg/agent"
	"github.com/aretw0/chainflow/pkg/chain"
	"github.com/aretw0/chainflow/pkg/domain"
	"github.com/aretw0/chainflow/pkg/ports"
	"github.com/aretw0/chainflow/pkg/schema"
	"github.com/aretw0/chainflow/pkg/session"
)

// slowStore simulates IO latency and records overlapping calls.
type slowStore struct {
	*memory.Store
	mu      sync.Mutex
	active  int
	overlap bool
}

func (s *slowStore) Save(ctx context.Context, runID string, snap *domain.Snapshot) error {
	s.mu.Lock()
	s.active++
	if s.active > 1 {
		s.overlap = true
	}
	s.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	s.mu.Lock()
	s.active--
	s.mu.Unlock()
	return s.Store.Save(ctx, runID, snap)
}

var _ ports.SnapshotStore = (*slowStore)(nil)

func TestManager_SerializesPerRun(t *testing.T) {
	store := &slowStore{Store: memory.NewStore()}
	mgr := session.NewManager(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, mgr.Save(ctx, "race", &domain.Snapshot{ID: "race", Cursor: i}))
		}()
	}
	wg.Wait()

	assert.False(t, store.overlap, "saves of one run must not overlap")
}

// greeter asks for a name, then greets.
func greeter(t *testing.T) *chain.Sequential {
	t.Helper()
	ask := agent.NewUser("ask", "name", agent.WithID("ask"))
	greet, err := agent.NewTemplate("greet", "Hello, {{.name}}!",
		agent.WithID("greet"), agent.WithParameters(domain.Required("name")))
	require.NoError(t, err)
	s, err := chain.NewSequential([]chain.Node{chain.NewAgentNode(ask), chain.NewAgentNode(greet)},
		chain.WithName("greeter"))
	require.NoError(t, err)
	return s
}

func TestManager_StartResume(t *testing.T) {
	mgr := session.NewManager(memory.NewStore())
	ctx := context.Background()

	first := greeter(t)
	snap, err := mgr.Start(ctx, first, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPauseForInput, snap.Status)
	assert.Equal(t, "greeter", snap.Name)

	ids, err := mgr.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID()}, ids)

	_, err = mgr.Resume(ctx, first.ID(), greeter(t), map[string]any{"other": 1})
	assert.ErrorIs(t, err, domain.ErrNotResumable)

	done, err := mgr.Resume(ctx, first.ID(), greeter(t), map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinishedNormal, done.Status)
	assert.Equal(t, "Hello, Ada!", done.Output.Value())

	stored, err := mgr.Load(ctx, first.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinishedNormal, stored.Status)

	_, err = mgr.Resume(ctx, first.ID(), greeter(t), map[string]any{"name": "Bob"})
	assert.ErrorIs(t, err, domain.ErrNotResumable)

	_, err = mgr.Resume(ctx, "missing", greeter(t), nil)
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestManager_ResumeChecksTypes(t *testing.T) {
	mgr := session.NewManager(memory.NewStore())
	ctx := context.Background()

	build := func() *chain.Sequential {
		age, err := agent.NewTemplate("age", "{{.age}} years",
			agent.WithID("age"), agent.WithParameters(domain.Parameter{Name: "age", Type: "int", Required: true}))
		require.NoError(t, err)
		s, err := chain.NewSequential([]chain.Node{chain.NewAgentNode(age)}, chain.WithName("aging"))
		require.NoError(t, err)
		return s
	}

	first := build()
	_, err := mgr.Start(ctx, first, nil)
	require.NoError(t, err)

	_, err = mgr.Resume(ctx, first.ID(), build(), map[string]any{"age": "old"})
	assert.ErrorIs(t, err, domain.ErrNotResumable)
	assert.ErrorIs(t, err, schema.ErrInvalidValue)

	done, err := mgr.Resume(ctx, first.ID(), build(), map[string]any{"age": float64(42)})
	require.NoError(t, err)
	assert.Equal(t, "42 years", done.Output.Value())
}

func TestManager_Summaries(t *testing.T) {
	mgr := session.NewManager(memory.NewStore())
	ctx := context.Background()

	_, err := mgr.Start(ctx, greeter(t), nil)
	require.NoError(t, err)
	_, err = mgr.Start(ctx, greeter(t), map[string]any{"name": "x"})
	require.NoError(t, err)

	sums, err := mgr.Summaries(ctx)
	require.NoError(t, err)
	require.Len(t, sums, 2)
	statuses := []domain.Status{sums[0].Status, sums[1].Status}
	assert.ElementsMatch(t, []domain.Status{domain.StatusPauseForInput, domain.StatusFinishedNormal}, statuses)
}

func TestManager_DistributedLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	mgr := session.NewManager(memory.NewStore(), session.WithLocker(redis.NewLocker(client, "test:")))
	ctx := context.Background()

	err := mgr.WithLock(ctx, "run", func(context.Context) error {
		assert.True(t, mr.Exists("test:lock:run"))
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("test:lock:run"))
}

package runner_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/backend/surface"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/render"
	"github.com/aretw0/arbor/pkg/runner"
	"github.com/aretw0/arbor/pkg/session"
)

// schedBackend adds a serial callback queue to the null backend.
type schedBackend struct {
	nullBackend
	queue chan func()
	once  sync.Once
}

func (b *schedBackend) Schedule(fn func()) {
	b.once.Do(func() {
		go func() {
			for f := range b.queue {
				f()
			}
		}()
	})
	b.queue <- fn
}

func TestQueuedModeRunsOnBackendQueue(t *testing.T) {
	be := &schedBackend{queue: make(chan func(), 8)}
	rc := render.New(be)

	r := runner.New(commands(domain.Command{
		Name: "queued",
		Handler: func(ctx context.Context, _ domain.Args) (any, error) {
			return nil, render.Emit(ctx, "from the queue")
		},
	}), rc)

	run, err := r.Submit(context.Background(), domain.Request{
		Command: "queued",
		Mode:    domain.ModeQueued,
	})
	require.NoError(t, err)

	res, err := run.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"from the queue"}, res.Transcript)
}

func TestQueuedModeOnSurfaceBackend(t *testing.T) {
	be := surface.New()
	be.StartLoop()
	defer be.Stop()
	rc := render.New(be)

	r := runner.New(commands(domain.Command{
		Name: "queued",
		Handler: func(ctx context.Context, _ domain.Args) (any, error) {
			return nil, render.Emit(ctx, "through the loop")
		},
	}), rc)

	// The run's final walk mounts through the surface; it must finish
	// even though the body itself was scheduled by the surface.
	done := make(chan domain.Result, 1)
	go func() {
		res, err := r.Execute(context.Background(), domain.Request{
			Command: "queued",
			Mode:    domain.ModeQueued,
		})
		assert.NoError(t, err)
		done <- res
	}()

	select {
	case res := <-done:
		require.NoError(t, res.Err)
		assert.Equal(t, []string{"through the loop"}, res.Transcript)
		assert.Contains(t, be.Content(), "through the loop")
	case <-time.After(3 * time.Second):
		t.Fatal("queued run never finished on the surface backend")
	}
}

func TestLongHintDefaultsToBackground(t *testing.T) {
	rc := render.New(&nullBackend{})
	started := make(chan struct{})
	release := make(chan struct{})

	r := runner.New(commands(domain.Command{
		Name:  "slow",
		Hints: domain.Hints{Long: true},
		Handler: func(ctx context.Context, _ domain.Args) (any, error) {
			close(started)
			<-release
			return nil, nil
		},
	}), rc)

	// No explicit mode: the Long hint must keep Submit from blocking.
	run, err := r.Submit(context.Background(), domain.Request{Command: "slow"})
	require.NoError(t, err)
	assert.False(t, run.Finished())

	<-started
	close(release)
	_, err = run.Wait(context.Background())
	require.NoError(t, err)
}

func TestSessionSerialization(t *testing.T) {
	rc := render.New(&nullBackend{})
	var active, maxActive int
	var mu sync.Mutex

	r := runner.New(commands(domain.Command{
		Name: "locked",
		Handler: func(ctx context.Context, _ domain.Args) (any, error) {
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			return nil, nil
		},
	}), rc, runner.WithSessions(session.NewManager()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Execute(context.Background(), domain.Request{
				Command: "locked",
				Session: "same-client",
				Mode:    domain.ModeBackground,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive, "same-session runs must not overlap")
}

func TestRunObserveSeesLiveEmissions(t *testing.T) {
	rc := render.New(&nullBackend{})
	release := make(chan struct{})

	r := runner.New(commands(domain.Command{
		Name: "chatty",
		Handler: func(ctx context.Context, _ domain.Args) (any, error) {
			_ = render.Emit(ctx, "first")
			<-release
			_ = render.Emit(ctx, "second")
			return nil, nil
		},
	}), rc)

	run, err := r.Submit(context.Background(), domain.Request{
		Command: "chatty",
		Mode:    domain.ModeBackground,
	})
	require.NoError(t, err)

	seen := make(chan string, 4)
	remove := run.Observe(func(n domain.Node) {
		if leaf, ok := n.(*domain.Leaf); ok {
			seen <- leaf.Text
		}
	})
	defer remove()

	// "first" may have landed before Observe; collect what arrives after
	// the release and check ordering of the late emission.
	close(release)
	res, err := run.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, res.Transcript)
}

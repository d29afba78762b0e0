package surface

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/domain"
)

func TestMountBeforeLoopIsOffLoop(t *testing.T) {
	s := New()
	a, err := s.Build(context.Background(), domain.Text("early"))
	require.NoError(t, err)

	err = s.Mount(context.Background(), a)
	assert.ErrorIs(t, err, domain.ErrOffLoop)
}

func TestMountAndContent(t *testing.T) {
	s := New()
	s.StartLoop()
	defer s.Stop()
	ctx := context.Background()

	for _, text := range []string{"first", "second"} {
		a, err := s.Build(ctx, domain.Text(text))
		require.NoError(t, err)
		require.NoError(t, s.Mount(ctx, a))
	}

	content := s.Content()
	assert.Contains(t, content, "first")
	assert.Contains(t, content, "second")
}

func TestAppendBeforeMountAttachesDirectly(t *testing.T) {
	s := New()
	s.StartLoop()
	defer s.Stop()
	ctx := context.Background()

	cont, err := s.Container(ctx, domain.Group(nil))
	require.NoError(t, err)
	child, err := s.Build(ctx, domain.Text("inner"))
	require.NoError(t, err)

	// Parent not visible yet: no loop round-trip required.
	require.NoError(t, s.Append(ctx, cont, child))
	require.NoError(t, s.Mount(ctx, cont))

	assert.Contains(t, s.Content(), "inner")
}

func TestAppendAfterMountMarshalsOntoLoop(t *testing.T) {
	s := New()
	s.StartLoop()
	defer s.Stop()
	ctx := context.Background()

	cont, err := s.Container(ctx, domain.LiveGroup(nil))
	require.NoError(t, err)
	require.NoError(t, s.Mount(ctx, cont))

	late, err := s.Build(ctx, domain.Text("late"))
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, cont, late))

	assert.Contains(t, s.Content(), "late")
}

func TestScheduleFIFO(t *testing.T) {
	s := New()
	s.StartLoop()
	defer s.Stop()

	got := make(chan int, 2)
	s.Schedule(func() { got <- 1 })
	s.Schedule(func() { got <- 2 })

	assert.Equal(t, 1, <-got)
	assert.Equal(t, 2, <-got)
}

func TestScheduledWorkCanMount(t *testing.T) {
	s := New()
	s.StartLoop()
	defer s.Stop()

	// The scheduled body mounts through post; it must not wedge the
	// queue it was scheduled on.
	done := make(chan error, 1)
	s.Schedule(func() {
		a, err := s.Build(context.Background(), domain.Text("from the queue"))
		if err != nil {
			done <- err
			return
		}
		done <- s.Mount(context.Background(), a)
	})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled mount never completed")
	}
	assert.Contains(t, s.Content(), "from the queue")
}

func TestActivatorFires(t *testing.T) {
	fired := make(chan string, 1)
	s := New(WithActivator(func(n domain.Node, value string) {
		fired <- value
	}))
	s.StartLoop()
	defer s.Stop()

	btn := domain.NewButton("Go", nil)
	s.fireActivate(btn, "")

	select {
	case v := <-fired:
		assert.Equal(t, "", v)
	case <-time.After(time.Second):
		t.Fatal("activator never fired")
	}
}

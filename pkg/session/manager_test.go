package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/arbor/pkg/session"
	"github.com/stretchr/testify/assert"
)

func TestManager_Serializes(t *testing.T) {
	manager := session.NewManager()
	ctx := context.Background()

	var active, maxActive int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := manager.WithLock(ctx, "client-1", func(context.Context) error {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()

				time.Sleep(2 * time.Millisecond) // Simulate a run

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive, "runs for the same session must not overlap")
}

func TestManager_IndependentKeys(t *testing.T) {
	manager := session.NewManager()
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_ = manager.WithLock(ctx, "a", func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	// A different key must not block behind "a".
	done := make(chan struct{})
	go func() {
		_ = manager.WithLock(ctx, "b", func(context.Context) error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("independent session key blocked")
	}
	close(release)
}

package state

import (
	"context"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/render"
)

// Bind emits a live region rendering val through renderFn and keeps it
// following the cell: every Set after the region is built appends the
// re-rendered value to the region. Changes made before the build are
// folded into the initial render, which reads the cell at build time.
//
// The returned stop func unhooks the region from the cell. It is also
// safe to just let the scope close; emissions into a closed live scope
// are recorded and dropped, never built.
func Bind[T any](ctx context.Context, val *Value[T], renderFn func(T) any) (stop func(), err error) {
	var mu sync.Mutex
	var liveCtx context.Context

	node := domain.LiveGroup(func(ctx context.Context) error {
		mu.Lock()
		liveCtx = ctx
		mu.Unlock()
		return render.Emit(ctx, renderFn(val.Get()))
	})
	if err := render.Emit(ctx, node); err != nil {
		return nil, err
	}

	remove := val.Observe(func(next T) {
		mu.Lock()
		target := liveCtx
		mu.Unlock()
		if target == nil {
			// Not built yet; the initial render will pick this value up.
			return
		}
		_ = render.Emit(target, renderFn(next))
	})
	return remove, nil
}

package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"github.com/smileynet/fedicache/internal/entity"
)

// call is one shared fetch. Its context is detached from every caller and is
// cancelled only once all of them have gone.
type call struct {
	ctx     context.Context
	cancel  context.CancelCauseFunc
	waiters []context.Context
}

// sharedFunc runs the fetch of a call. abandoned returns the cause once no
// caller is left to receive the result, and nil otherwise.
type sharedFunc func(ctx context.Context, abandoned func() error) error

// share runs fn once for all concurrent callers using key. Each caller waits
// on its own ctx: a caller that gives up gets its context error at once while
// the others keep waiting. When the last caller gives up, the shared fetch is
// cancelled and share waits for it to record the failure.
func (o *Orchestrator) share(ctx context.Context, key, op string, p entity.Path, fn sharedFunc) error {
	o.mu.Lock()
	c, ok := o.calls[key]
	if !ok {
		cctx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
		c = &call{ctx: cctx, cancel: cancel}
		o.calls[key] = c
	}
	c.waiters = append(c.waiters, ctx)
	ch := o.flight.DoChan(key, func() (any, error) {
		defer func() {
			o.release(key, c)
			c.cancel(nil)
		}()
		return nil, fn(c.ctx, func() error { return o.abandoned(c) })
	})
	o.mu.Unlock()

	if ok {
		o.log.Debug("fetch shared", zap.Stringer("path", p), zap.String("op", op))
	}

	select {
	case r := <-ch:
		return r.Err
	case <-ctx.Done():
	}

	if o.abandoned(c) == nil {
		return &OpError{Op: op, Path: p, Err: ctx.Err()}
	}
	o.release(key, c)
	c.cancel(context.Cause(ctx))
	r := <-ch
	return r.Err
}

// release stops new callers from joining c.
func (o *Orchestrator) release(key string, c *call) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.calls[key] == c {
		delete(o.calls, key)
		o.flight.Forget(key)
	}
}

func (o *Orchestrator) abandoned(c *call) error {
	if err := context.Cause(c.ctx); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	var cause error
	for _, w := range c.waiters {
		if w.Err() == nil {
			return nil
		}
		cause = context.Cause(w)
	}
	return cause
}

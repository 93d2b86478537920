package controller

import (
	"context"
	"sync"

	"github.com/go-kit/log/level"

	"github.com/sonic-net/fgnhgctl/internal/fglog"
)

// retryQueue holds requests that failed with fgerr.ErrTransient, drained
// on the running loop's retry ticker (SPEC_FULL.md §7, grounded on
// BackendScheduler.running's scheduleTicker-driven retry cadence).
type retryQueue struct {
	mu    sync.Mutex
	items []*request
}

func (q *retryQueue) push(req *request) {
	req.reply = nil
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, req)
}

func (q *retryQueue) drain() []*request {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (c *Controller) drainRetryQueue(ctx context.Context) {
	items := c.retryMu.drain()
	if len(items) == 0 {
		return
	}
	level.Info(fglog.Logger).Log("msg", "retrying transient failures", "count", len(items))
	for _, req := range items {
		c.handle(ctx, req)
	}
}

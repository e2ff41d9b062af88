package background

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/logger"
)

// Registry supervises fire-and-forget work. Tasks run detached from the
// request that spawned them but remain observable: shutdown drains every
// registered task before returning, and panics are captured instead of
// taking the process down.
//
// Register never fails; a registry that is already draining runs the task
// inline so callers can stay oblivious to lifecycle state.
type Registry struct {
	log *logger.Logger

	mu       sync.Mutex
	wg       sync.WaitGroup
	draining bool
}

func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{log: log.With("service", "background")}
}

// Register runs fn on its own goroutine. The context passed to fn is
// detached from any request context: background work must not be cancelled
// by the caller disconnecting.
func (r *Registry) Register(name string, fn func(ctx context.Context) error) {
	r.mu.Lock()
	if r.draining {
		r.mu.Unlock()
		r.run(context.Background(), name, fn)
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		r.run(context.Background(), name, fn)
	}()
}

func (r *Registry) run(ctx context.Context, name string, fn func(ctx context.Context) error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("background task panicked", "task", name, "panic", fmt.Sprint(rec))
		}
	}()
	if err := fn(ctx); err != nil {
		r.log.Warn("background task failed", "task", name, "error", err.Error())
	}
}

// Drain waits for all registered tasks to finish, up to the timeout.
// Returns false if the timeout expired with tasks still running.
func (r *Registry) Drain(timeout time.Duration) bool {
	r.mu.Lock()
	r.draining = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		r.log.Warn("background drain timed out", "timeout", timeout.String())
		return false
	}
}

package ingestion_engine

import (
	"context"
	"errors"
	"sync"
)

// ErrSuperseded is the cancellation cause of a run replaced by a newer run for the same document.
var ErrSuperseded = errors.New("superseded by a newer run")

type run struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// runRegistry keeps at most one live run per document. A new run cancels the
// previous one and waits for it to exit before touching the document.
type runRegistry struct {
	mu   sync.Mutex
	runs map[string]*run
}

func newRunRegistry() *runRegistry {
	return &runRegistry{runs: make(map[string]*run)}
}

// acquire registers a run for id. The returned release must be called when the run ends.
func (r *runRegistry) acquire(ctx context.Context, id string) (context.Context, func(), error) {
	runCtx, cancel := context.WithCancelCause(ctx)
	mine := &run{cancel: cancel, done: make(chan struct{})}

	r.mu.Lock()
	prev := r.runs[id]
	r.runs[id] = mine
	r.mu.Unlock()

	release := func() { r.finish(id, mine, prev) }

	if prev != nil {
		prev.cancel(ErrSuperseded)
		select {
		case <-prev.done:
		case <-runCtx.Done():
			err := context.Cause(runCtx)
			release()
			return nil, nil, err
		}
	}
	return runCtx, release, nil
}

// finish unregisters mine. Its done channel closes only once prev has exited
// too, so a later run never overlaps an older one.
func (r *runRegistry) finish(id string, mine, prev *run) {
	r.mu.Lock()
	if r.runs[id] == mine {
		delete(r.runs, id)
	}
	r.mu.Unlock()
	mine.cancel(nil)

	if prev == nil {
		close(mine.done)
		return
	}
	go func() {
		<-prev.done
		close(mine.done)
	}()
}

// active reports how many documents have a live run.
func (r *runRegistry) active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

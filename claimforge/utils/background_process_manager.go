package utils

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// BackgroundProcessManager owns the long-running goroutines (claim cycles,
// ledger maintenance) so shutdown can stop them deterministically.
type BackgroundProcessManager struct {
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	processes map[string]context.CancelFunc
	mu        sync.Mutex
}

func NewBackgroundProcessManager() *BackgroundProcessManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &BackgroundProcessManager{
		ctx:       ctx,
		cancel:    cancel,
		processes: make(map[string]context.CancelFunc),
	}
}

// StartProcess registers and starts a named background process. Starting a
// name twice replaces the previous instance.
func (bpm *BackgroundProcessManager) StartProcess(name string, fn func(ctx context.Context)) {
	bpm.mu.Lock()
	if cancel, exists := bpm.processes[name]; exists {
		slog.Warn("Background process already running, replacing", slog.String("process", name))
		cancel()
	}
	processCtx, processCancel := context.WithCancel(bpm.ctx)
	bpm.processes[name] = processCancel
	bpm.mu.Unlock()

	bpm.wg.Add(1)
	go func() {
		defer bpm.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Background process panic",
					slog.String("process", name),
					slog.Any("panic", r))
			}
		}()

		slog.Info("Starting background process", slog.String("process", name))
		fn(processCtx)
		slog.Info("Background process ended", slog.String("process", name))
	}()
}

// Context returns the manager-scoped context for routines that manage their
// own goroutines.
func (bpm *BackgroundProcessManager) Context() context.Context {
	return bpm.ctx
}

// Shutdown cancels every process and waits for them up to the timeout.
func (bpm *BackgroundProcessManager) Shutdown(timeout time.Duration) error {
	bpm.cancel()

	done := make(chan struct{})
	go func() {
		bpm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("All background processes stopped")
		return nil
	case <-time.After(timeout):
		slog.Warn("Timeout waiting for background processes to stop",
			slog.Duration("timeout", timeout))
		return context.DeadlineExceeded
	}
}

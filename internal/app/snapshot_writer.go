package app

import (
	"context"
	"sync"
	"time"
)

// writeTimeout bounds one store write issued by the background writer.
const writeTimeout = 10 * time.Second

// snapshotWriter persists layout snapshots on one background goroutine.
// Pending writes coalesce per key so only the newest snapshot is stored.
type snapshotWriter struct {
	store  LayoutStore
	logger Logger

	mu      sync.Mutex
	pending map[string]string
	order   []string
	busy    bool
	idle    chan struct{}
	closed  bool

	wake      chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newSnapshotWriter(store LayoutStore, logger Logger) *snapshotWriter {
	idle := make(chan struct{})
	close(idle)
	w := &snapshotWriter{
		store:   store,
		logger:  logger,
		pending: map[string]string{},
		idle:    idle,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// enqueue schedules a write and never blocks on the store.
func (w *snapshotWriter) enqueue(key, value string) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	if _, ok := w.pending[key]; !ok {
		w.order = append(w.order, key)
	}
	w.pending[key] = value
	if !w.busy {
		w.busy = true
		w.idle = make(chan struct{})
	}
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return true
}

// flush waits until every enqueued write has been attempted.
func (w *snapshotWriter) flush(ctx context.Context) error {
	w.mu.Lock()
	idle := w.idle
	w.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close drains pending writes and stops the goroutine.
func (w *snapshotWriter) close() {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		close(w.stop)
		<-w.done
	})
}

func (w *snapshotWriter) run() {
	defer close(w.done)
	for {
		select {
		case <-w.wake:
			w.drain()
		case <-w.stop:
			w.drain()
			return
		}
	}
}

func (w *snapshotWriter) drain() {
	for {
		w.mu.Lock()
		if len(w.order) == 0 {
			if w.busy {
				w.busy = false
				close(w.idle)
			}
			w.mu.Unlock()
			return
		}
		key := w.order[0]
		w.order = w.order[1:]
		value := w.pending[key]
		delete(w.pending, key)
		w.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := w.store.Set(ctx, key, value)
		cancel()
		if err != nil {
			w.logger.Error("layout write failed", "key", key, "err", err)
			continue
		}
		w.logger.Debug("layout written", "key", key, "bytes", len(value))
	}
}

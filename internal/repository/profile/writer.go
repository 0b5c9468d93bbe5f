package profile

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/shopdex/internal/domain/profile"
)

// writeTimeout bounds a single delta write so a stuck store cannot wedge
// the writer goroutine.
const writeTimeout = 2 * time.Second

type applier interface {
	ApplyDelta(ctx context.Context, d profile.Delta) error
}

// Writer applies profile deltas asynchronously. The response path submits
// a delta and moves on; write failures are logged and dropped.
type Writer struct {
	applier applier
	logger  *zap.Logger
	ch      chan profile.Delta
	done    chan struct{}
}

// NewWriter creates a delta writer with the given queue depth.
func NewWriter(a applier, logger *zap.Logger, buffer int) *Writer {
	if buffer <= 0 {
		buffer = 64
	}
	return &Writer{
		applier: a,
		logger:  logger,
		ch:      make(chan profile.Delta, buffer),
		done:    make(chan struct{}),
	}
}

// Start launches the single writer goroutine.
func (w *Writer) Start() {
	go w.run()
}

// Submit enqueues a delta without blocking. A full queue drops the delta:
// personalization signal is best-effort.
func (w *Writer) Submit(d profile.Delta) bool {
	select {
	case w.ch <- d:
		return true
	default:
		w.logger.Warn("profile delta queue full, dropping delta",
			zap.String("user_id", d.UserID))
		return false
	}
}

// Close stops accepting deltas, drains the queue and waits for the writer
// goroutine to finish.
func (w *Writer) Close() {
	close(w.ch)
	<-w.done
}

func (w *Writer) run() {
	defer close(w.done)
	for d := range w.ch {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := w.applier.ApplyDelta(ctx, d); err != nil {
			w.logger.Warn("profile delta write failed",
				zap.String("user_id", d.UserID), zap.Error(err))
		}
		cancel()
	}
}

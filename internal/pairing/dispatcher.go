package pairing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Aidin1998/teammatch/internal/matchqueue"
	"github.com/Aidin1998/teammatch/pkg/metrics"
	"go.uber.org/zap"
)

// ErrDispatcherStopped is returned by QueueChanged once the dispatcher is stopped
var ErrDispatcherStopped = errors.New("signal dispatcher stopped")

// HandlerFunc reacts to a queue-changed signal
type HandlerFunc func(ctx context.Context, key matchqueue.QueueKey) error

type signal struct {
	key matchqueue.QueueKey
	at  time.Time
}

// LocalDispatcher delivers queue-changed signals to a worker pool in this process.
// The enqueuing caller only waits for buffer space, never for pairing.
type LocalDispatcher struct {
	handler HandlerFunc
	workers int
	signals chan signal
	logger  *zap.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	startMu sync.Mutex
	started bool
}

// NewLocalDispatcher creates a dispatcher with the given worker count and signal buffer
func NewLocalDispatcher(handler HandlerFunc, workers, buffer int, logger *zap.Logger) *LocalDispatcher {
	if workers < 1 {
		workers = 1
	}
	if buffer < 1 {
		buffer = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalDispatcher{
		handler: handler,
		workers: workers,
		signals: make(chan signal, buffer),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers
func (d *LocalDispatcher) Start() error {
	d.startMu.Lock()
	defer d.startMu.Unlock()
	if d.started {
		return nil
	}
	d.started = true
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work(i)
	}
	d.logger.Info("Signal dispatcher started", zap.Int("workers", d.workers))
	return nil
}

// Stop cancels in-flight handlers and waits for the workers to exit
func (d *LocalDispatcher) Stop() error {
	d.cancel()
	d.wg.Wait()
	d.logger.Info("Signal dispatcher stopped")
	return nil
}

// QueueChanged implements matchqueue.Signaler
func (d *LocalDispatcher) QueueChanged(ctx context.Context, key matchqueue.QueueKey) error {
	if d.ctx.Err() != nil {
		return ErrDispatcherStopped
	}
	select {
	case d.signals <- signal{key: key, at: time.Now()}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.ctx.Done():
		return ErrDispatcherStopped
	}
}

func (d *LocalDispatcher) work(id int) {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case sig := <-d.signals:
			if err := d.handler(d.ctx, sig.key); err != nil {
				d.logger.Error("Queue-changed handler failed",
					zap.Int("worker", id),
					zap.String("queue", sig.key.String()),
					zap.Error(err))
			}
			metrics.SignalLatency.Observe(time.Since(sig.at).Seconds())
		}
	}
}

package matchqueue

import (
	"context"
	"time"

	apperrors "github.com/Aidin1998/teammatch/pkg/errors"
	"github.com/Aidin1998/teammatch/pkg/metrics"
	"github.com/Aidin1998/teammatch/pkg/models"
	"go.uber.org/zap"
)

// Signaler is told that a queue may now hold a pair. Delivery is at-least-once
// and handlers must tolerate duplicates and spurious signals.
type Signaler interface {
	QueueChanged(ctx context.Context, key QueueKey) error
}

// Pair is two requests popped from one queue, First having been queued earlier.
type Pair struct {
	First  models.MatchRequest
	Second models.MatchRequest
}

// Queue is the enqueue / pair-off surface over a RegionalQueueStore.
type Queue struct {
	store    RegionalQueueStore
	signaler Signaler
	logger   *zap.Logger
}

// NewQueue creates a Queue. The signaler may be set later with SetSignaler.
func NewQueue(store RegionalQueueStore, signaler Signaler, logger *zap.Logger) *Queue {
	return &Queue{store: store, signaler: signaler, logger: logger}
}

// SetSignaler installs the queue-changed sink. Must be called before the first Enqueue.
func (q *Queue) SetSignaler(s Signaler) {
	q.signaler = s
}

// Enqueue appends the request to its queue and raises a queue-changed signal.
// It never waits for pairing; only a store failure is reported.
func (q *Queue) Enqueue(ctx context.Context, req models.MatchRequest) error {
	if req.TeamID == "" || req.EventType == "" || req.Region == "" {
		return apperrors.Validation.Explain("match request needs team, event type and region")
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}

	key := KeyFor(req)
	if err := q.store.Push(ctx, key, req); err != nil {
		return err
	}
	metrics.QueueEnqueued.WithLabelValues(string(req.EventType)).Inc()

	q.logger.Info("Match request enqueued",
		zap.String("team_id", req.TeamID),
		zap.String("queue", key.String()),
		zap.Int("rating", req.Rating))

	if q.signaler != nil {
		if err := q.signaler.QueueChanged(ctx, key); err != nil {
			// the request stays queued and is paired on the next signal for this key
			q.logger.Warn("Failed to raise queue-changed signal",
				zap.String("queue", key.String()),
				zap.Error(err))
		}
	}
	return nil
}

// Size reports the number of queued requests for key
func (q *Queue) Size(ctx context.Context, key QueueKey) (int64, error) {
	return q.store.Size(ctx, key)
}

// TryMatch pops two requests from key. When fewer than two can be taken, whatever
// was popped is pushed back to the head in reverse pop order and ok is false.
// Safe to call concurrently for the same key: each pop is atomic, so a request is
// handed to at most one caller.
//
// Further requests from the team at the head are set aside while popping for a
// partner and go back to the head in their original order, so a team is never
// paired against itself and no ticket is lost.
func (q *Queue) TryMatch(ctx context.Context, key QueueKey) (Pair, bool, error) {
	n, err := q.store.Size(ctx, key)
	if err != nil {
		return Pair{}, false, err
	}
	if n < 2 {
		return Pair{}, false, nil
	}

	first, ok, err := q.store.Pop(ctx, key)
	if err != nil || !ok {
		return Pair{}, false, err
	}

	var held []models.MatchRequest
	for {
		second, ok, err := q.store.Pop(ctx, key)
		if err != nil || !ok {
			q.restoreAll(ctx, key, held)
			q.restore(ctx, key, first)
			return Pair{}, false, err
		}
		if second.TeamID == first.TeamID {
			q.logger.Debug("Holding back duplicate match request",
				zap.String("team_id", second.TeamID),
				zap.String("queue", key.String()))
			held = append(held, second)
			continue
		}
		q.restoreAll(ctx, key, held)
		metrics.PairsFormed.WithLabelValues(string(key.EventType)).Inc()
		return Pair{First: first, Second: second}, true, nil
	}
}

// Restore puts a pair that could not be used back at the head of its queue,
// First ahead of Second.
func (q *Queue) Restore(ctx context.Context, pair Pair) {
	key := KeyFor(pair.First)
	q.restore(ctx, key, pair.Second)
	q.restore(ctx, key, pair.First)
}

// restoreAll pushes popped requests back to the head, last popped first.
func (q *Queue) restoreAll(ctx context.Context, key QueueKey, popped []models.MatchRequest) {
	for i := len(popped) - 1; i >= 0; i-- {
		q.restore(ctx, key, popped[i])
	}
}

func (q *Queue) restore(ctx context.Context, key QueueKey, req models.MatchRequest) {
	metrics.PairRestores.Inc()
	// a cancelled caller must not lose the request it already popped
	if err := q.store.PushFront(context.WithoutCancel(ctx), key, req); err != nil {
		q.logger.Error("Failed to restore match request to queue head",
			zap.String("team_id", req.TeamID),
			zap.String("queue", key.String()),
			zap.Error(err))
	}
}

// Package matchqueue holds pending auto-match requests in FIFO lists partitioned by
// event type and region, and pairs them off from the head.
package matchqueue

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "github.com/Aidin1998/teammatch/pkg/errors"
	"github.com/Aidin1998/teammatch/pkg/models"
)

// DefaultPrefix is the key namespace used when none is configured
const DefaultPrefix = "match_queue"

// QueueKey partitions requests; only requests with equal keys are ever paired.
type QueueKey struct {
	EventType models.EventType `json:"eventType"`
	Region    string           `json:"region"`
}

// KeyFor returns the queue a request belongs to
func KeyFor(req models.MatchRequest) QueueKey {
	return QueueKey{EventType: req.EventType, Region: req.Region}
}

func (k QueueKey) String() string {
	return fmt.Sprintf("%s:%s", k.EventType, k.Region)
}

// RegionalQueueStore is a shared, key-partitioned FIFO. Every call is atomic on its own;
// there are no multi-call transactions.
type RegionalQueueStore interface {
	// Push appends to the tail; the request is visible to Pop immediately.
	Push(ctx context.Context, key QueueKey, req models.MatchRequest) error
	Size(ctx context.Context, key QueueKey) (int64, error)
	// Pop removes the head. ok is false when the queue is empty.
	Pop(ctx context.Context, key QueueKey) (req models.MatchRequest, ok bool, err error)
	// PushFront reinserts at the head, ahead of everything queued.
	PushFront(ctx context.Context, key QueueKey, req models.MatchRequest) error
}

func encodeRequest(req models.MatchRequest) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal match request: %w", err)
	}
	return data, nil
}

func decodeRequest(data []byte) (models.MatchRequest, error) {
	var req models.MatchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("failed to unmarshal match request: %w", err)
	}
	return req, nil
}

func unavailable(op string, key QueueKey, err error) error {
	return apperrors.StoreUnavailable.Explain("queue %s %s failed", op, key).Wrap(err)
}

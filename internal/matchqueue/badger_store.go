package matchqueue

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Aidin1998/teammatch/pkg/models"
	"github.com/dgraph-io/badger/v3"
)

const badgerConflictRetries = 64

// BadgerStore is a disk-backed, single-process RegionalQueueStore.
//
// Each queue is a window [head, tail) of sequence numbers; items live under
// "<queue>i<seq>" and the bounds under "<queue>h" and "<queue>t", where <queue> is
// the length-prefixed event type and region. Sequence numbers start in the middle
// of the uint64 range so PushFront can grow the window downwards.
type BadgerStore struct {
	db *badger.DB
}

const seqOrigin uint64 = 1 << 63

// NewBadgerStore opens (or creates) a queue database at path
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger db: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Close releases the underlying database
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// queuePrefix length-prefixes each component so no region can spell out
// another queue's bookkeeping keys.
func queuePrefix(key QueueKey) []byte {
	k := binary.AppendUvarint(nil, uint64(len(key.EventType)))
	k = append(k, string(key.EventType)...)
	k = binary.AppendUvarint(k, uint64(len(key.Region)))
	return append(k, key.Region...)
}

func headKey(key QueueKey) []byte { return append(queuePrefix(key), 'h') }
func tailKey(key QueueKey) []byte { return append(queuePrefix(key), 't') }

func itemKey(key QueueKey, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(append(queuePrefix(key), 'i'), seq)
}

func readSeq(txn *badger.Txn, k []byte) (uint64, error) {
	item, err := txn.Get(k)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return seqOrigin, nil
	}
	if err != nil {
		return 0, err
	}
	var seq uint64
	err = item.Value(func(v []byte) error {
		if len(v) != 8 {
			return fmt.Errorf("corrupt sequence at %q", k)
		}
		seq = binary.BigEndian.Uint64(v)
		return nil
	})
	return seq, err
}

func writeSeq(txn *badger.Txn, k []byte, seq uint64) error {
	return txn.Set(k, binary.BigEndian.AppendUint64(nil, seq))
}

func bounds(txn *badger.Txn, key QueueKey) (head, tail uint64, err error) {
	if head, err = readSeq(txn, headKey(key)); err != nil {
		return 0, 0, err
	}
	if tail, err = readSeq(txn, tailKey(key)); err != nil {
		return 0, 0, err
	}
	return head, tail, nil
}

// update runs fn in a read-write transaction, retrying when a concurrent
// transaction touched the same keys.
func (s *BadgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < badgerConflictRetries; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func (s *BadgerStore) Push(ctx context.Context, key QueueKey, req models.MatchRequest) error {
	data, err := encodeRequest(req)
	if err != nil {
		return err
	}
	err = s.update(ctx, func(txn *badger.Txn) error {
		tail, err := readSeq(txn, tailKey(key))
		if err != nil {
			return err
		}
		if err := txn.Set(itemKey(key, tail), data); err != nil {
			return err
		}
		return writeSeq(txn, tailKey(key), tail+1)
	})
	if err != nil {
		return unavailable("push", key, err)
	}
	return nil
}

func (s *BadgerStore) Size(ctx context.Context, key QueueKey) (int64, error) {
	var n int64
	err := s.db.View(func(txn *badger.Txn) error {
		head, tail, err := bounds(txn, key)
		if err != nil {
			return err
		}
		n = int64(tail - head)
		return nil
	})
	if err != nil {
		return 0, unavailable("size", key, err)
	}
	return n, nil
}

func (s *BadgerStore) Pop(ctx context.Context, key QueueKey) (models.MatchRequest, bool, error) {
	var data []byte
	err := s.update(ctx, func(txn *badger.Txn) error {
		data = nil
		head, tail, err := bounds(txn, key)
		if err != nil {
			return err
		}
		if head == tail {
			return nil
		}
		item, err := txn.Get(itemKey(key, head))
		if err != nil {
			return err
		}
		if data, err = item.ValueCopy(nil); err != nil {
			return err
		}
		if err := txn.Delete(itemKey(key, head)); err != nil {
			return err
		}
		return writeSeq(txn, headKey(key), head+1)
	})
	if err != nil {
		return models.MatchRequest{}, false, unavailable("pop", key, err)
	}
	if data == nil {
		return models.MatchRequest{}, false, nil
	}
	req, err := decodeRequest(data)
	if err != nil {
		return models.MatchRequest{}, false, err
	}
	return req, true, nil
}

func (s *BadgerStore) PushFront(ctx context.Context, key QueueKey, req models.MatchRequest) error {
	data, err := encodeRequest(req)
	if err != nil {
		return err
	}
	err = s.update(ctx, func(txn *badger.Txn) error {
		head, err := readSeq(txn, headKey(key))
		if err != nil {
			return err
		}
		head--
		if err := txn.Set(itemKey(key, head), data); err != nil {
			return err
		}
		return writeSeq(txn, headKey(key), head)
	})
	if err != nil {
		return unavailable("push-front", key, err)
	}
	return nil
}

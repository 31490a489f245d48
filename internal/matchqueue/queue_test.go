package matchqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	apperrors "github.com/Aidin1998/teammatch/pkg/errors"
	"github.com/Aidin1998/teammatch/pkg/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var soccerSeoul = QueueKey{EventType: models.EventSoccer, Region: "Seoul"}

func request(team string) models.MatchRequest {
	return models.MatchRequest{TeamID: team, EventType: models.EventSoccer, Region: "Seoul", Rating: 1000}
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisStore(rdb, ""), mr
}

func newBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func stores(t *testing.T) map[string]RegionalQueueStore {
	rs, _ := newRedisStore(t)
	return map[string]RegionalQueueStore{
		"redis":  rs,
		"badger": newBadgerStore(t),
	}
}

type recordingSignaler struct {
	mu   sync.Mutex
	keys []QueueKey
	err  error
}

func (r *recordingSignaler) QueueChanged(_ context.Context, key QueueKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	return r.err
}

func TestStoreFIFOAndPushFront(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Push(ctx, soccerSeoul, request("A")))
			require.NoError(t, store.Push(ctx, soccerSeoul, request("B")))
			require.NoError(t, store.PushFront(ctx, soccerSeoul, request("Z")))

			n, err := store.Size(ctx, soccerSeoul)
			require.NoError(t, err)
			assert.EqualValues(t, 3, n)

			for _, want := range []string{"Z", "A", "B"} {
				got, ok, err := store.Pop(ctx, soccerSeoul)
				require.NoError(t, err)
				require.True(t, ok)
				assert.Equal(t, want, got.TeamID)
			}

			_, ok, err := store.Pop(ctx, soccerSeoul)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStoreKeysArePartitioned(t *testing.T) {
	ctx := context.Background()
	busan := QueueKey{EventType: models.EventSoccer, Region: "Busan"}
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Push(ctx, soccerSeoul, request("A")))
			n, err := store.Size(ctx, busan)
			require.NoError(t, err)
			assert.Zero(t, n)
			_, ok, err := store.Pop(ctx, busan)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestBadgerKeysDoNotCollide(t *testing.T) {
	ctx := context.Background()
	store := newBadgerStore(t)
	keys := []QueueKey{
		{EventType: models.EventSoccer, Region: "a"},
		{EventType: models.EventSoccer, Region: "a/h"},
		{EventType: models.EventSoccer, Region: "a/i/"},
		{EventType: models.EventSoccer, Region: "x:y"},
		{EventType: models.EventSoccer + ":x", Region: "y"},
	}
	for i, key := range keys {
		for j := 0; j <= i; j++ {
			require.NoError(t, store.Push(ctx, key, models.MatchRequest{
				TeamID: fmt.Sprintf("%s-%d", key.Region, j), EventType: key.EventType, Region: key.Region,
			}))
		}
	}
	for i, key := range keys {
		n, err := store.Size(ctx, key)
		require.NoError(t, err)
		assert.EqualValues(t, i+1, n, "queue %q/%q", key.EventType, key.Region)
		for j := 0; j <= i; j++ {
			got, ok, err := store.Pop(ctx, key)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, fmt.Sprintf("%s-%d", key.Region, j), got.TeamID)
		}
	}
}

func TestTryMatchPairsInArrivalOrder(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			sig := &recordingSignaler{}
			q := NewQueue(store, sig, zaptest.NewLogger(t))

			require.NoError(t, q.Enqueue(ctx, request("A")))
			_, ok, err := q.TryMatch(ctx, soccerSeoul)
			require.NoError(t, err)
			assert.False(t, ok, "a single request must not pair")

			require.NoError(t, q.Enqueue(ctx, request("B")))
			pair, ok, err := q.TryMatch(ctx, soccerSeoul)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "A", pair.First.TeamID)
			assert.Equal(t, "B", pair.Second.TeamID)
			assert.Len(t, sig.keys, 2)
			assert.Equal(t, soccerSeoul, sig.keys[0])

			n, err := q.Size(ctx, soccerSeoul)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestEnqueueSignalFailureIsNotFatal(t *testing.T) {
	store, _ := newRedisStore(t)
	q := NewQueue(store, &recordingSignaler{err: errors.New("bus down")}, zaptest.NewLogger(t))

	require.NoError(t, q.Enqueue(context.Background(), request("A")))
	n, err := q.Size(context.Background(), soccerSeoul)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestEnqueueStoreUnavailable(t *testing.T) {
	store, mr := newRedisStore(t)
	q := NewQueue(store, nil, zaptest.NewLogger(t))
	mr.Close()

	err := q.Enqueue(context.Background(), request("A"))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.StoreUnavailable))
}

func TestEnqueueValidates(t *testing.T) {
	store, _ := newRedisStore(t)
	q := NewQueue(store, nil, zaptest.NewLogger(t))
	err := q.Enqueue(context.Background(), models.MatchRequest{TeamID: "A"})
	assert.True(t, apperrors.Is(err, apperrors.Validation))
}

func TestTryMatchKeepsDuplicateTickets(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		teams     []string
		wantPairs [][2]string
		wantLeft  []string
	}{
		{teams: []string{"A", "A", "B"}, wantPairs: [][2]string{{"A", "B"}}, wantLeft: []string{"A"}},
		{teams: []string{"A", "A", "A", "B", "C"}, wantPairs: [][2]string{{"A", "B"}, {"A", "C"}}, wantLeft: []string{"A"}},
		{teams: []string{"A", "A", "B", "B"}, wantPairs: [][2]string{{"A", "B"}, {"A", "B"}}},
		{teams: []string{"A", "A", "A"}, wantLeft: []string{"A", "A", "A"}},
	}
	for name, store := range stores(t) {
		for _, tc := range cases {
			t.Run(fmt.Sprintf("%s/%v", name, tc.teams), func(t *testing.T) {
				q := NewQueue(store, nil, zaptest.NewLogger(t))
				for _, team := range tc.teams {
					require.NoError(t, q.Enqueue(ctx, request(team)))
				}

				var pairs [][2]string
				for {
					pair, ok, err := q.TryMatch(ctx, soccerSeoul)
					require.NoError(t, err)
					if !ok {
						break
					}
					pairs = append(pairs, [2]string{pair.First.TeamID, pair.Second.TeamID})
				}

				var left []string
				for {
					req, ok, err := store.Pop(ctx, soccerSeoul)
					require.NoError(t, err)
					if !ok {
						break
					}
					left = append(left, req.TeamID)
				}

				assert.Equal(t, tc.wantPairs, pairs)
				assert.Equal(t, tc.wantLeft, left)
				assert.Equal(t, len(tc.teams), 2*len(pairs)+len(left))
			})
		}
	}
}

func TestTryMatchDuplicateOnlyRestoresBoth(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)
	q := NewQueue(store, nil, zaptest.NewLogger(t))

	require.NoError(t, q.Enqueue(ctx, request("A")))
	require.NoError(t, q.Enqueue(ctx, request("A")))
	_, ok, err := q.TryMatch(ctx, soccerSeoul)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := store.Size(ctx, soccerSeoul)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	head, ok, err := store.Pop(ctx, soccerSeoul)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "A", head.TeamID)
}

// racyStore reports a stale size, as if another caller drained the queue
// between Size and the second Pop.
type racyStore struct {
	RegionalQueueStore
	staleSize int64
	popErr    error
	pops      int
}

func (s *racyStore) Size(context.Context, QueueKey) (int64, error) { return s.staleSize, nil }

func (s *racyStore) Pop(ctx context.Context, key QueueKey) (models.MatchRequest, bool, error) {
	s.pops++
	if s.pops == 2 && s.popErr != nil {
		return models.MatchRequest{}, false, s.popErr
	}
	return s.RegionalQueueStore.Pop(ctx, key)
}

func TestTryMatchRestoresPartialPop(t *testing.T) {
	ctx := context.Background()
	for _, popErr := range []error{nil, apperrors.StoreUnavailable.Explain("lost connection")} {
		t.Run(fmt.Sprintf("err=%v", popErr), func(t *testing.T) {
			inner, _ := newRedisStore(t)
			require.NoError(t, inner.Push(ctx, soccerSeoul, request("A")))
			store := &racyStore{RegionalQueueStore: inner, staleSize: 2, popErr: popErr}
			q := NewQueue(store, nil, zaptest.NewLogger(t))

			_, ok, err := q.TryMatch(ctx, soccerSeoul)
			assert.False(t, ok)
			if popErr != nil {
				assert.ErrorIs(t, err, apperrors.StoreUnavailable)
			} else {
				assert.NoError(t, err)
			}

			head, ok, err := inner.Pop(ctx, soccerSeoul)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "A", head.TeamID)
		})
	}
}

func TestConcurrentTryMatchNeverDuplicatesOrLoses(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			q := NewQueue(store, nil, zaptest.NewLogger(t))
			const teams = 60
			for i := 0; i < teams; i++ {
				require.NoError(t, q.Enqueue(ctx, request(fmt.Sprintf("team-%02d", i))))
			}

			var (
				mu    sync.Mutex
				seen  = map[string]int{}
				pairs int
				wg    sync.WaitGroup
			)
			for w := 0; w < 6; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for {
						pair, ok, err := q.TryMatch(ctx, soccerSeoul)
						if err != nil {
							t.Errorf("try match: %v", err)
							return
						}
						if !ok {
							n, _ := q.Size(ctx, soccerSeoul)
							if n < 2 {
								return
							}
							continue
						}
						mu.Lock()
						pairs++
						seen[pair.First.TeamID]++
						seen[pair.Second.TeamID]++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			n, err := q.Size(ctx, soccerSeoul)
			require.NoError(t, err)
			assert.Equal(t, teams, 2*pairs+int(n))
			for team, count := range seen {
				assert.Equal(t, 1, count, "team %s paired more than once", team)
			}
		})
	}
}

func TestRestorePairKeepsOrder(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)
	q := NewQueue(store, nil, zaptest.NewLogger(t))
	for _, team := range []string{"A", "B", "C"} {
		require.NoError(t, q.Enqueue(ctx, request(team)))
	}
	pair, ok, err := q.TryMatch(ctx, soccerSeoul)
	require.NoError(t, err)
	require.True(t, ok)

	q.Restore(ctx, pair)
	for _, want := range []string{"A", "B", "C"} {
		got, ok, err := store.Pop(ctx, soccerSeoul)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, got.TeamID)
	}
}

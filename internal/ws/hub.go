// Package ws provides a sharded WebSocket hub that addresses clients by user id
// and keeps a short replay buffer per user.
package ws

import (
	"encoding/json"
	"errors"
	"hash/fnv"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// DefaultReplayTTL is how long a disconnected user's replay buffer outlives
// their last delivery or connection.
const DefaultReplayTTL = 10 * time.Minute

// ErrHubStopped is returned by SendToUser after Stop
var ErrHubStopped = errors.New("websocket hub stopped")

// Message is one frame pushed to a user. Seq increases across the hub so a
// reconnecting client can ask for everything after the last Seq it saw.
type Message struct {
	Topic string          `json:"topic"`
	Seq   uint64          `json:"seq"`
	Data  json.RawMessage `json:"data"`
}

// ringBuffer holds the last N messages for a user.
type ringBuffer struct {
	buf   []Message
	size  int
	start int
	count int

	// lastUsed is the last delivery or disconnect for the user
	lastUsed time.Time
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{buf: make([]Message, size), size: size}
}

// add appends a message, overwriting old entries when full.
func (r *ringBuffer) add(msg Message) {
	idx := (r.start + r.count) % r.size
	if r.count == r.size {
		r.start = (r.start + 1) % r.size
		r.count--
	}
	r.buf[idx] = msg
	r.count++
}

// getSince returns messages with Seq > since.
func (r *ringBuffer) getSince(since uint64) []Message {
	var out []Message
	for i := 0; i < r.count; i++ {
		msg := r.buf[(r.start+i)%r.size]
		if msg.Seq > since {
			out = append(out, msg)
		}
	}
	return out
}

// Client represents a single WebSocket connection owned by one user.
type Client struct {
	userID string
	since  uint64
	conn   *websocket.Conn
	send   chan Message
	hub    *Hub
}

type hubShard struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

type delivery struct {
	userID string
	msg    Message
}

// Hub manages all WebSocket clients, sharded by user id.
type Hub struct {
	shards     []*hubShard
	shardCount uint32

	register   chan *Client
	unregister chan *Client
	deliveries chan delivery
	stop       chan struct{}
	stopOnce   sync.Once

	// buffers is owned by run
	buffers    map[string]*ringBuffer
	retained   atomic.Int64
	replaySize int
	replayTTL  time.Duration

	seqMu   sync.Mutex
	nextSeq uint64

	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHub creates a Hub with given shard count and replay buffer size per user.
// A user's buffer is dropped once they have been disconnected and sent nothing
// for replayTTL; a non-positive replayTTL keeps buffers forever.
func NewHub(shardCount, replaySize int, replayTTL time.Duration, logger *zap.Logger) *Hub {
	if shardCount < 1 {
		shardCount = 1
	}
	if replaySize < 1 {
		replaySize = 1
	}
	h := &Hub{
		shards:     make([]*hubShard, shardCount),
		shardCount: uint32(shardCount),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliveries: make(chan delivery),
		stop:       make(chan struct{}),
		buffers:    make(map[string]*ringBuffer),
		replaySize: replaySize,
		replayTTL:  replayTTL,
		nextSeq:    1,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
	for i := range h.shards {
		h.shards[i] = &hubShard{clients: make(map[string]map[*Client]struct{})}
	}
	go h.run()
	return h
}

// run handles registration, unregistration and delivery. Replay on register and
// live delivery are serialised here, so a client never sees a frame twice or out of order.
func (h *Hub) run() {
	var sweep <-chan time.Time
	if h.replayTTL > 0 {
		ticker := time.NewTicker(max(h.replayTTL/2, time.Millisecond))
		defer ticker.Stop()
		sweep = ticker.C
	}

	for {
		select {
		case <-h.stop:
			h.closeAll()
			return
		case client := <-h.register:
			sh := h.shardFor(client.userID)
			sh.mu.Lock()
			set, ok := sh.clients[client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				sh.clients[client.userID] = set
			}
			set[client] = struct{}{}
			sh.mu.Unlock()
			if buf, ok := h.buffers[client.userID]; ok {
				for _, m := range buf.getSince(client.since) {
					h.offer(client, m)
				}
			}
		case client := <-h.unregister:
			h.remove(client)
			if buf, ok := h.buffers[client.userID]; ok {
				buf.lastUsed = time.Now()
			}
		case d := <-h.deliveries:
			buf, ok := h.buffers[d.userID]
			if !ok {
				buf = newRingBuffer(h.replaySize)
				h.buffers[d.userID] = buf
				h.retained.Add(1)
			}
			buf.add(d.msg)
			buf.lastUsed = time.Now()

			sh := h.shardFor(d.userID)
			sh.mu.RLock()
			for c := range sh.clients[d.userID] {
				h.offer(c, d.msg)
			}
			sh.mu.RUnlock()
		case now := <-sweep:
			h.evictIdle(now)
		}
	}
}

// evictIdle drops the buffers of users with no live client whose last delivery
// or disconnect is older than the replay TTL.
func (h *Hub) evictIdle(now time.Time) {
	for userID, buf := range h.buffers {
		if now.Sub(buf.lastUsed) < h.replayTTL || h.ClientCount(userID) > 0 {
			continue
		}
		delete(h.buffers, userID)
		h.retained.Add(-1)
	}
}

// offer queues msg without blocking; a client whose buffer is full misses the
// frame and can recover it through replay on reconnect.
func (h *Hub) offer(c *Client, msg Message) {
	select {
	case c.send <- msg:
	default:
		h.logger.Warn("Dropping frame for slow websocket client",
			zap.String("user_id", c.userID),
			zap.Uint64("seq", msg.Seq))
	}
}

func (h *Hub) remove(c *Client) {
	sh := h.shardFor(c.userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	set, ok := sh.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(sh.clients, c.userID)
	}
	close(c.send)
}

func (h *Hub) closeAll() {
	for _, sh := range h.shards {
		sh.mu.Lock()
		for userID, set := range sh.clients {
			for c := range set {
				close(c.send)
			}
			delete(sh.clients, userID)
		}
		sh.mu.Unlock()
	}
}

func (h *Hub) shardFor(key string) *hubShard {
	hasher := fnv.New32a()
	hasher.Write([]byte(key))
	return h.shards[hasher.Sum32()%h.shardCount]
}

// ServeWS upgrades HTTP to WS and registers the connection for userID. Buffered
// frames with Seq > since are replayed first.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string, since uint64) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}
	c := &Client{
		userID: userID,
		since:  since,
		conn:   conn,
		send:   make(chan Message, sendBuffer),
		hub:    h,
	}
	select {
	case h.register <- c:
	case <-h.stop:
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// SendToUser pushes data to every connection of userID and records it for replay.
// It does not wait for the frame to be written.
func (h *Hub) SendToUser(userID, topic string, data []byte) error {
	h.seqMu.Lock()
	seq := h.nextSeq
	h.nextSeq++
	h.seqMu.Unlock()

	select {
	case <-h.stop:
		return ErrHubStopped
	default:
	}

	select {
	case h.deliveries <- delivery{userID: userID, msg: Message{Topic: topic, Seq: seq, Data: data}}:
		return nil
	case <-h.stop:
		return ErrHubStopped
	}
}

// ClientCount returns the number of live connections for userID
func (h *Hub) ClientCount(userID string) int {
	sh := h.shardFor(userID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return len(sh.clients[userID])
}

// ReplayBuffers reports how many users currently have a replay buffer
func (h *Hub) ReplayBuffers() int {
	return int(h.retained.Load())
}

// Stop disconnects every client and rejects further sends
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// readPump drains control frames and detects disconnects.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stop:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump sends messages and heartbeats to the client.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() { ticker.Stop(); c.conn.Close() }()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

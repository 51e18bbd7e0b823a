package so_sim

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.viam.com/rdk/logging"
	goutils "go.viam.com/utils"
)

// ActionMessage is the joint-feed wire format: one sample of every motor's
// value, keyed by URDF joint name.
//
//	{"timestamp": 1717171717.42, "actions": {"gripper": 0.12, ...}}
type ActionMessage struct {
	Timestamp float64            `json:"timestamp"`
	Actions   map[string]float64 `json:"actions"`
}

// FeedClient consumes the leader streamer's WebSocket feed and forwards
// each sample to a sink (the frame loop's action queue). It reconnects
// with a fixed backoff for as long as its context lives.
type FeedClient struct {
	url    string
	logger logging.Logger
	sink   func(map[string]float64)
}

func NewFeedClient(url string, sink func(map[string]float64), logger logging.Logger) *FeedClient {
	return &FeedClient{url: url, sink: sink, logger: logger}
}

// Run blocks, maintaining the feed connection until ctx is cancelled.
func (c *FeedClient) Run(ctx context.Context) {
	for {
		if err := c.consume(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warnf("joint feed disconnected: %v", err)
		}
		if !goutils.SelectContextOrWait(ctx, 2*time.Second) {
			return
		}
	}
}

func (c *FeedClient) consume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	c.logger.Infof("joint feed connected to %s", c.url)

	// Unblock ReadMessage on cancellation.
	done := make(chan struct{})
	defer close(done)
	goutils.PanicCapturingGo(func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg ActionMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debugf("dropping malformed feed message: %v", err)
			continue
		}
		if len(msg.Actions) == 0 {
			continue
		}
		c.sink(msg.Actions)
	}
}

// FeedHub is the broadcasting side: the leader streamer publishes one
// ActionMessage per frame and every connected viewer receives it. Slow or
// dead clients are dropped rather than allowed to stall the broadcast.
type FeedHub struct {
	logger   logging.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func NewFeedHub(logger logging.Logger) *FeedHub {
	return &FeedHub{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// ClientCount returns the number of connected viewers.
func (h *FeedHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// ServeHTTP upgrades the connection and parks it until the peer goes away.
func (h *FeedHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnf("websocket upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	total := len(h.conns)
	h.mu.Unlock()
	h.logger.Infof("client connected, total clients: %d", total)

	// Drain (and discard) incoming frames to notice disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.conns, conn)
	total = len(h.conns)
	h.mu.Unlock()
	conn.Close()
	h.logger.Infof("client disconnected, total clients: %d", total)
}

// Broadcast sends one message to every connected client.
func (h *FeedHub) Broadcast(msg ActionMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Errorf("failed to marshal action message: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.SetWriteDeadline(time.Now().Add(time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debugf("dropping feed client: %v", err)
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

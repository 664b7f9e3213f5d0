// Package relay carries messages between the channel adapters and the
// messaging middleware over websocket connections.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/honus/comwechat/internal/channel"
)

const (
	FrameMessage = "message"
	FrameStatus  = "status"
	FrameSend    = "send"
	FrameCommand = "command"
	FrameResult  = "result"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 50 * time.Second
	maxFrameSize   = 32 << 20
	clientQueue    = 256
	defaultBacklog = 512
	requestTimeout = 5 * time.Minute
)

// ErrBacklogFull is returned by Deliver when no client is connected and the backlog is full.
var ErrBacklogFull = errors.New("relay backlog full")

// Frame is the JSON envelope exchanged with middleware clients.
type Frame struct {
	Kind     string              `json:"kind"`
	ID       string              `json:"id,omitempty"`
	Channel  channel.ChannelType `json:"channel,omitempty"`
	Message  *channel.Message    `json:"message,omitempty"`
	Status   *channel.Status     `json:"status,omitempty"`
	Callable string              `json:"callable,omitempty"`
	Kwargs   map[string]string   `json:"kwargs,omitempty"`
	OK       bool                `json:"ok"`
	Result   string              `json:"result,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// Dispatcher routes requests coming from the middleware to adapters.
type Dispatcher interface {
	Send(ctx context.Context, channelType channel.ChannelType, msg channel.Message) error
	InvokeCommand(ctx context.Context, channelType channel.ChannelType, callable string, kwargs map[string]string) (string, error)
}

// Options configures a Hub.
type Options struct {
	// DefaultChannel is used for requests that do not name a channel.
	DefaultChannel channel.ChannelType
	// Backlog bounds the frames kept while no client is connected.
	Backlog int
}

type client struct {
	id   string
	name string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	// backlog holds frames queued before the client connected. Only the
	// write loop touches it, and it drains it before anything in send.
	backlog [][]byte
	// sends feeds send requests to a single worker so they reach the
	// adapter in the order the client wrote them.
	sends chan Frame
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub fans adapter output out to every connected middleware client and
// dispatches client requests. It implements channel.Coordinator.
type Hub struct {
	logger     *slog.Logger
	dispatcher Dispatcher
	opts       Options
	upgrader   websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*client
	backlog [][]byte
}

// NewHub creates a hub. The dispatcher may be set later with SetDispatcher.
func NewHub(log *slog.Logger, dispatcher Dispatcher, opts Options) *Hub {
	if log == nil {
		log = slog.Default()
	}
	if opts.Backlog <= 0 {
		opts.Backlog = defaultBacklog
	}
	return &Hub{
		logger:     log.With(slog.String("component", "relay")),
		dispatcher: dispatcher,
		opts:       opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Clients authenticate with a bearer token, not cookies.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: map[string]*client{},
	}
}

// SetDispatcher installs the request dispatcher.
func (h *Hub) SetDispatcher(d Dispatcher) {
	h.mu.Lock()
	h.dispatcher = d
	h.mu.Unlock()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Backlog returns the number of frames waiting for a client.
func (h *Hub) Backlog() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.backlog)
}

// Deliver implements channel.Coordinator.
func (h *Hub) Deliver(ctx context.Context, msg channel.Message) error {
	return h.publish(Frame{Kind: FrameMessage, Channel: msg.Channel, Message: &msg, OK: true})
}

// DeliverStatus implements channel.Coordinator.
func (h *Hub) DeliverStatus(ctx context.Context, status channel.Status) error {
	return h.publish(Frame{Kind: FrameStatus, Channel: status.Channel, Status: &status, OK: true})
}

func (h *Hub) publish(frame Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		if len(h.backlog) >= h.opts.Backlog {
			return ErrBacklogFull
		}
		h.backlog = append(h.backlog, data)
		return nil
	}
	for _, c := range h.clients {
		h.enqueueLocked(c, data)
	}
	return nil
}

// enqueueLocked queues data for c, dropping the client when it cannot keep up.
func (h *Hub) enqueueLocked(c *client, data []byte) {
	select {
	case c.send <- data:
	default:
		h.logger.Warn("relay client too slow, disconnecting", slog.String("client", c.name))
		delete(h.clients, c.id)
		c.close()
	}
}

// ServeHTTP upgrades the request and serves the client until it disconnects
// or ctx is done. name identifies the client in logs.
func (h *Hub) ServeHTTP(ctx context.Context, w http.ResponseWriter, r *http.Request, name string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade: %w", err)
	}
	h.Serve(ctx, conn, name)
	return nil
}

// Serve runs the read and write loops of an established connection.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, name string) {
	c := &client{
		id:    uuid.NewString(),
		name:  name,
		conn:  conn,
		send:  make(chan []byte, clientQueue),
		done:  make(chan struct{}),
		sends: make(chan Frame, clientQueue),
	}
	h.mu.Lock()
	h.clients[c.id] = c
	c.backlog = h.backlog
	h.backlog = nil
	h.mu.Unlock()
	h.logger.Info("relay client connected", slog.String("client", name), slog.String("id", c.id), slog.Int("backlog", len(c.backlog)))

	ctx, cancel := context.WithCancel(ctx)
	var (
		wg     sync.WaitGroup
		unsent [][]byte
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		unsent = h.writeLoop(ctx, c)
	}()
	go func() {
		defer wg.Done()
		for frame := range c.sends {
			h.handle(ctx, c, frame)
		}
	}()
	h.readLoop(ctx, c)

	cancel()
	close(c.sends)
	c.close()
	wg.Wait()
	_ = conn.Close()
	h.mu.Lock()
	delete(h.clients, c.id)
	if len(unsent) > 0 {
		h.backlog = append(unsent, h.backlog...)
	}
	h.mu.Unlock()
	h.logger.Info("relay client disconnected", slog.String("client", name), slog.String("id", c.id), slog.Int("requeued", len(unsent)))
}

func (h *Hub) readLoop(ctx context.Context, c *client) {
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("relay read failed", slog.String("client", c.name), slog.Any("error", err))
			}
			return
		}
		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.reply(c, Frame{Kind: FrameResult, Error: "invalid frame: " + err.Error()})
			continue
		}
		if frame.Kind != FrameSend {
			go h.handle(ctx, c, frame)
			continue
		}
		select {
		case c.sends <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// writeLoop returns the backlog frames it could not write.
func (h *Hub) writeLoop(ctx context.Context, c *client) [][]byte {
	for i, data := range c.backlog {
		select {
		case <-ctx.Done():
			_ = c.conn.Close()
			return c.backlog[i:]
		case <-c.done:
			_ = c.conn.Close()
			return c.backlog[i:]
		default:
		}
		if err := h.write(c, data); err != nil {
			return c.backlog[i:]
		}
	}
	c.backlog = nil

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = c.conn.Close()
			return nil
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			_ = c.conn.Close()
			return nil
		case data := <-c.send:
			if err := h.write(c, data); err != nil {
				return nil
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = c.conn.Close()
				return nil
			}
		}
	}
}

func (h *Hub) write(c *client, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.logger.Warn("relay write failed", slog.String("client", c.name), slog.Any("error", err))
		_ = c.conn.Close()
		return err
	}
	return nil
}

// handle runs one client request and answers with a result frame carrying the request id.
func (h *Hub) handle(ctx context.Context, c *client, frame Frame) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	h.mu.Lock()
	dispatcher := h.dispatcher
	h.mu.Unlock()

	result := Frame{Kind: FrameResult, ID: frame.ID}
	ct := frame.Channel
	if ct == "" {
		ct = h.opts.DefaultChannel
	}
	var err error
	switch {
	case dispatcher == nil:
		err = errors.New("relay has no dispatcher")
	case frame.Kind == FrameSend:
		if frame.Message == nil {
			err = errors.New("message is required")
			break
		}
		err = dispatcher.Send(ctx, ct, *frame.Message)
	case frame.Kind == FrameCommand:
		result.Result, err = dispatcher.InvokeCommand(ctx, ct, frame.Callable, frame.Kwargs)
	default:
		err = fmt.Errorf("unsupported frame kind %q", frame.Kind)
	}
	if err != nil {
		h.logger.Warn("relay request failed", slog.String("client", c.name), slog.String("kind", frame.Kind), slog.String("id", frame.ID), slog.Any("error", err))
		result.Error = err.Error()
	} else {
		result.OK = true
	}
	h.reply(c, result)
}

func (h *Hub) reply(c *client, frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("encode result failed", slog.Any("error", err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	h.enqueueLocked(c, data)
}

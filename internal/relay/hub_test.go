package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/honus/comwechat/internal/channel"
)

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []channel.Message
	err  error
	// slow delays Send for messages with this text.
	slow string
}

func (f *fakeDispatcher) Send(ctx context.Context, ct channel.ChannelType, msg channel.Message) error {
	if f.slow != "" && msg.Text == f.slow {
		time.Sleep(150 * time.Millisecond)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

func (f *fakeDispatcher) InvokeCommand(ctx context.Context, ct channel.ChannelType, callable string, kwargs map[string]string) (string, error) {
	if ct != "honus.comwechat" {
		return "", errors.New("wrong channel")
	}
	return callable + ":" + kwargs["v3"], nil
}

func dial(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.ServeHTTP(r.Context(), w, r, "test")
	}))
	t.Cleanup(srv.Close)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestHubBacklogFlushedOnConnect(t *testing.T) {
	t.Parallel()

	hub := NewHub(quietLogger(), &fakeDispatcher{}, Options{Backlog: 2})
	ctx := context.Background()
	require.NoError(t, hub.Deliver(ctx, channel.Message{ID: "1", Text: "one"}))
	require.NoError(t, hub.DeliverStatus(ctx, channel.Status{Type: channel.StatusMessageRemoval, MessageID: "1"}))
	assert.ErrorIs(t, hub.Deliver(ctx, channel.Message{ID: "2"}), ErrBacklogFull)
	assert.Equal(t, 2, hub.Backlog())

	conn := dial(t, hub)
	first := readFrame(t, conn)
	assert.Equal(t, FrameMessage, first.Kind)
	require.NotNil(t, first.Message)
	assert.Equal(t, "one", first.Message.Text)
	second := readFrame(t, conn)
	assert.Equal(t, FrameStatus, second.Kind)
	require.NotNil(t, second.Status)
	assert.Equal(t, "1", second.Status.MessageID)
	assert.Equal(t, 0, hub.Backlog())

	require.NoError(t, hub.Deliver(ctx, channel.Message{ID: "3", Text: "live"}))
	live := readFrame(t, conn)
	assert.Equal(t, "live", live.Message.Text)
}

func TestHubBacklogLargerThanClientQueue(t *testing.T) {
	t.Parallel()

	hub := NewHub(quietLogger(), &fakeDispatcher{}, Options{Backlog: 512})
	ctx := context.Background()
	const queued = 400
	for i := 0; i < queued; i++ {
		require.NoError(t, hub.Deliver(ctx, channel.Message{ID: strconv.Itoa(i)}))
	}

	conn := dial(t, hub)
	for i := 0; i < queued; i++ {
		f := readFrame(t, conn)
		require.NotNil(t, f.Message)
		require.Equal(t, strconv.Itoa(i), f.Message.ID)
	}
	assert.Equal(t, 1, hub.Clients())
	assert.Equal(t, 0, hub.Backlog())

	require.NoError(t, hub.Deliver(ctx, channel.Message{ID: "live"}))
	assert.Equal(t, "live", readFrame(t, conn).Message.ID)
}

func TestHubWriteLoopReturnsUnsentBacklog(t *testing.T) {
	t.Parallel()

	hub := NewHub(quietLogger(), &fakeDispatcher{}, Options{})
	backlog := [][]byte{[]byte(`{"kind":"message"}`), []byte(`{"kind":"status"}`)}
	got := make(chan [][]byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := hub.upgrader.Upgrade(w, r, nil)
		if err != nil {
			got <- nil
			return
		}
		c := &client{name: "gone", conn: conn, send: make(chan []byte, 1), done: make(chan struct{}), backlog: backlog}
		c.close()
		got <- hub.writeLoop(context.Background(), c)
	}))
	t.Cleanup(srv.Close)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	select {
	case unsent := <-got:
		assert.Equal(t, backlog, unsent)
	case <-time.After(2 * time.Second):
		t.Fatal("write loop did not return")
	}
}

func TestHubSendRequestsKeepOrder(t *testing.T) {
	t.Parallel()

	d := &fakeDispatcher{slow: "first"}
	hub := NewHub(quietLogger(), d, Options{DefaultChannel: "honus.comwechat"})
	conn := dial(t, hub)

	require.NoError(t, conn.WriteJSON(Frame{Kind: FrameSend, ID: "a", Message: &channel.Message{Text: "first"}}))
	require.NoError(t, conn.WriteJSON(Frame{Kind: FrameSend, ID: "b", Message: &channel.Message{Text: "second"}}))
	assert.Equal(t, "a", readFrame(t, conn).ID)
	assert.Equal(t, "b", readFrame(t, conn).ID)

	d.mu.Lock()
	defer d.mu.Unlock()
	require.Len(t, d.sent, 2)
	assert.Equal(t, "first", d.sent[0].Text)
	assert.Equal(t, "second", d.sent[1].Text)
}

func TestHubSendRequest(t *testing.T) {
	t.Parallel()

	d := &fakeDispatcher{}
	hub := NewHub(quietLogger(), d, Options{DefaultChannel: "honus.comwechat"})
	conn := dial(t, hub)

	require.NoError(t, conn.WriteJSON(Frame{Kind: FrameSend, ID: "req-1", Message: &channel.Message{Type: channel.MessageText, Text: "hi"}}))
	res := readFrame(t, conn)
	assert.Equal(t, FrameResult, res.Kind)
	assert.Equal(t, "req-1", res.ID)
	assert.True(t, res.OK)
	d.mu.Lock()
	require.Len(t, d.sent, 1)
	assert.Equal(t, "hi", d.sent[0].Text)
	d.mu.Unlock()

	d.mu.Lock()
	d.err = channel.ErrSendFailed
	d.mu.Unlock()
	require.NoError(t, conn.WriteJSON(Frame{Kind: FrameSend, ID: "req-2", Message: &channel.Message{Text: "x"}}))
	res = readFrame(t, conn)
	assert.False(t, res.OK)
	assert.Equal(t, channel.ErrSendFailed.Error(), res.Error)
}

func TestHubCommandRequest(t *testing.T) {
	t.Parallel()

	hub := NewHub(quietLogger(), &fakeDispatcher{}, Options{DefaultChannel: "honus.comwechat"})
	conn := dial(t, hub)

	require.NoError(t, conn.WriteJSON(Frame{Kind: FrameCommand, ID: "c1", Callable: "add_friend", Kwargs: map[string]string{"v3": "v3_x"}}))
	res := readFrame(t, conn)
	assert.True(t, res.OK)
	assert.Equal(t, "add_friend:v3_x", res.Result)
}

func TestHubRejectsBadFrames(t *testing.T) {
	t.Parallel()

	hub := NewHub(quietLogger(), &fakeDispatcher{}, Options{})
	conn := dial(t, hub)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	res := readFrame(t, conn)
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "invalid frame")

	require.NoError(t, conn.WriteJSON(Frame{Kind: "bogus", ID: "b"}))
	res = readFrame(t, conn)
	assert.Equal(t, "b", res.ID)
	assert.Contains(t, res.Error, "unsupported frame kind")

	require.NoError(t, conn.WriteJSON(Frame{Kind: FrameSend, ID: "m"}))
	res = readFrame(t, conn)
	assert.Equal(t, "message is required", res.Error)
}

func TestHubClientDisconnect(t *testing.T) {
	t.Parallel()

	hub := NewHub(quietLogger(), &fakeDispatcher{}, Options{})
	conn := dial(t, hub)
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Deliver(context.Background(), channel.Message{ID: "after"}))
	assert.Equal(t, 1, hub.Backlog())
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

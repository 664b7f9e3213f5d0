package channel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type fakeCoordinator struct {
	mu       sync.Mutex
	messages []Message
	statuses []Status
}

func (f *fakeCoordinator) Deliver(ctx context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeCoordinator) DeliverStatus(ctx context.Context, status Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	return nil
}

type fakeAdapter struct {
	channelType ChannelType
	connectErr  error
	mu          sync.Mutex
	connects    int
	sent        []Message
	stops       int
	coordinator Coordinator
}

func (f *fakeAdapter) Type() ChannelType {
	return f.channelType
}

func (f *fakeAdapter) Descriptor() Descriptor {
	return Descriptor{
		Type:        f.channelType,
		DisplayName: "Fake",
		Capabilities: ChannelCapabilities{
			MessageTypes: []MessageType{MessageText, MessageImage},
		},
	}
}

func (f *fakeAdapter) Connect(ctx context.Context, coord Coordinator) (Connection, error) {
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	f.mu.Lock()
	f.connects++
	f.coordinator = coord
	f.mu.Unlock()
	return NewConnection(f.channelType, func(context.Context) error {
		f.mu.Lock()
		f.stops++
		f.mu.Unlock()
		return nil
	}), nil
}

func (f *fakeAdapter) Send(ctx context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeAdapter) InvokeCommand(ctx context.Context, callable string, kwargs map[string]string) (string, error) {
	return callable + ":" + kwargs["v3"], nil
}

func newTestManager(adapter *fakeAdapter, coord Coordinator) *Manager {
	reg := NewRegistry()
	if err := reg.Register(adapter); err != nil {
		panic(err)
	}
	return NewManager(slog.New(slog.NewTextHandler(io.Discard, nil)), reg, coord)
}

func TestManagerReconcileConnectsOnce(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{channelType: "fake"}
	coord := &fakeCoordinator{}
	m := newTestManager(adapter, coord)

	m.reconcile(context.Background())
	m.reconcile(context.Background())

	if adapter.connects != 1 {
		t.Fatalf("expected single connect, got %d", adapter.connects)
	}
	if adapter.coordinator != coord {
		t.Fatalf("expected coordinator to be passed to adapter")
	}
	statuses := m.ConnectionStatuses()
	if len(statuses) != 1 || !statuses[0].Running {
		t.Fatalf("unexpected statuses: %+v", statuses)
	}

	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if adapter.stops != 1 {
		t.Fatalf("expected stop, got %d", adapter.stops)
	}
	statuses = m.ConnectionStatuses()
	if len(statuses) != 1 || statuses[0].Running {
		t.Fatalf("expected stopped status, got %+v", statuses)
	}
}

func TestManagerRecordsConnectFailure(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{channelType: "fake", connectErr: errors.New("hook offline")}
	m := newTestManager(adapter, &fakeCoordinator{})
	m.reconcile(context.Background())

	statuses := m.ConnectionStatuses()
	if len(statuses) != 1 {
		t.Fatalf("expected one status, got %d", len(statuses))
	}
	if statuses[0].Running || statuses[0].LastError != "hook offline" {
		t.Fatalf("unexpected status: %+v", statuses[0])
	}
}

func TestManagerSend(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{channelType: "fake"}
	m := newTestManager(adapter, &fakeCoordinator{})
	ctx := context.Background()

	msg := Message{Type: MessageText, Text: "hi", Conversation: Conversation{ID: "wxid_a"}}
	if err := m.Send(ctx, "fake", msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(adapter.sent) != 1 {
		t.Fatalf("expected message to reach adapter")
	}

	if err := m.Send(ctx, "fake", Message{Type: MessageText, Text: "hi"}); err == nil {
		t.Fatalf("expected error for missing conversation")
	}
	if err := m.Send(ctx, "fake", Message{Type: MessageText, Conversation: Conversation{ID: "x"}}); err == nil {
		t.Fatalf("expected error for empty message")
	}
	video := Message{Type: MessageVideo, Attachment: &Attachment{Path: "/tmp/a.mp4"}, Conversation: Conversation{ID: "x"}}
	if err := m.Send(ctx, "fake", video); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
	if err := m.Send(ctx, "missing", msg); err == nil {
		t.Fatalf("expected error for unknown channel")
	}
}

func TestManagerInvokeCommand(t *testing.T) {
	t.Parallel()

	m := newTestManager(&fakeAdapter{channelType: "fake"}, &fakeCoordinator{})
	got, err := m.InvokeCommand(context.Background(), "fake", "add_friend", map[string]string{"v3": "v3_x"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if got != "add_friend:v3_x" {
		t.Fatalf("unexpected result: %s", got)
	}
	if _, err := m.Chats(context.Background(), "fake"); err == nil {
		t.Fatalf("expected error for adapter without chat listing")
	}
}

func TestManagerStartStopsOnCancel(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{channelType: "fake"}
	m := newTestManager(adapter, &fakeCoordinator{})
	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		adapter.mu.Lock()
		connects := adapter.connects
		adapter.mu.Unlock()
		if connects == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("adapter never connected")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	for {
		adapter.mu.Lock()
		stops := adapter.stops
		adapter.mu.Unlock()
		if stops == 1 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("adapter never stopped")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// ConnectionStatus describes runtime status for one adapter connection.
type ConnectionStatus struct {
	ChannelType ChannelType `json:"channel_type"`
	Running     bool        `json:"running"`
	LastError   string      `json:"last_error,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Manager connects every registered Receiver to the coordinator, retries failed
// connections, and routes outbound requests to the matching adapter.
type Manager struct {
	registry      *Registry
	coordinator   Coordinator
	retryInterval time.Duration
	logger        *slog.Logger

	mu             sync.Mutex
	connections    map[ChannelType]Connection
	connectionMeta map[ChannelType]ConnectionStatus
}

// NewManager creates a Manager with the given logger, registry, and coordinator.
func NewManager(log *slog.Logger, registry *Registry, coordinator Coordinator) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Manager{
		registry:       registry,
		coordinator:    coordinator,
		retryInterval:  30 * time.Second,
		logger:         log.With(slog.String("component", "channel")),
		connections:    map[ChannelType]Connection{},
		connectionMeta: map[ChannelType]ConnectionStatus{},
	}
}

// Registry returns the adapter registry used by this manager.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Start connects all receivers and keeps retrying failed ones until ctx is done.
func (m *Manager) Start(ctx context.Context) {
	m.logger.Info("manager start")
	go func() {
		m.reconcile(ctx)
		ticker := time.NewTicker(m.retryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				m.logger.Info("manager stop")
				m.stopAll(context.WithoutCancel(ctx))
				return
			case <-ticker.C:
				m.reconcile(ctx)
			}
		}
	}()
}

func (m *Manager) reconcile(ctx context.Context) {
	for _, ct := range m.registry.Types() {
		if err := m.ensureConnection(ctx, ct); err != nil {
			m.logger.Error("adapter start failed", slog.String("channel", ct.String()), slog.Any("error", err))
		}
	}
}

func (m *Manager) ensureConnection(ctx context.Context, ct ChannelType) error {
	receiver, ok := m.registry.GetReceiver(ct)
	if !ok {
		return nil
	}
	m.mu.Lock()
	if conn, ok := m.connections[ct]; ok && conn != nil && conn.Running() {
		m.setConnectionStatusLocked(ct, true, nil)
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	m.logger.Info("adapter start", slog.String("channel", ct.String()))
	conn, err := receiver.Connect(ctx, m.coordinator)
	if err != nil {
		m.markConnectionStatus(ct, false, err)
		return err
	}
	m.mu.Lock()
	m.connections[ct] = conn
	m.setConnectionStatusLocked(ct, true, nil)
	m.mu.Unlock()
	return nil
}

func (m *Manager) stopAll(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ct, conn := range m.connections {
		if conn == nil {
			continue
		}
		if err := conn.Stop(ctx); err != nil && !errors.Is(err, ErrStopNotSupported) {
			m.logger.Warn("adapter stop failed", slog.String("channel", ct.String()), slog.Any("error", err))
		}
		m.setConnectionStatusLocked(ct, false, nil)
		delete(m.connections, ct)
	}
}

func (m *Manager) markConnectionStatus(ct ChannelType, running bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setConnectionStatusLocked(ct, running, err)
}

func (m *Manager) setConnectionStatusLocked(ct ChannelType, running bool, err error) {
	status := ConnectionStatus{
		ChannelType: ct,
		Running:     running,
		UpdatedAt:   time.Now().UTC(),
	}
	if err != nil {
		status.LastError = err.Error()
	}
	m.connectionMeta[ct] = status
}

// Send delivers an outbound message to the adapter of the given channel type.
func (m *Manager) Send(ctx context.Context, channelType ChannelType, msg Message) error {
	sender, ok := m.registry.GetSender(channelType)
	if !ok {
		return fmt.Errorf("unsupported channel type: %s", channelType)
	}
	if strings.TrimSpace(msg.Conversation.ID) == "" {
		return fmt.Errorf("conversation id is required")
	}
	if msg.IsEmpty() {
		return fmt.Errorf("message is required")
	}
	if adapter, ok := m.registry.Get(channelType); ok {
		caps := adapter.Descriptor().Capabilities
		if len(caps.MessageTypes) > 0 && !caps.Supports(msg.Type) {
			return fmt.Errorf("channel %s does not support %s messages", channelType, msg.Type)
		}
	}
	m.logger.Info("send outbound",
		slog.String("channel", channelType.String()),
		slog.String("conversation", msg.Conversation.ID),
		slog.String("type", string(msg.Type)),
	)
	if err := sender.Send(ctx, msg); err != nil {
		m.logger.Error("send outbound failed", slog.String("channel", channelType.String()), slog.Any("error", err))
		return err
	}
	return nil
}

// InvokeCommand runs a command callable on the adapter of the given channel type.
func (m *Manager) InvokeCommand(ctx context.Context, channelType ChannelType, callable string, kwargs map[string]string) (string, error) {
	invoker, ok := m.registry.GetCommandInvoker(channelType)
	if !ok {
		return "", fmt.Errorf("channel %s does not support commands", channelType)
	}
	return invoker.InvokeCommand(ctx, callable, kwargs)
}

// Chats lists the known chats of the given channel type.
func (m *Manager) Chats(ctx context.Context, channelType ChannelType) ([]Chat, error) {
	lister, ok := m.registry.GetChatLister(channelType)
	if !ok {
		return nil, fmt.Errorf("channel %s does not list chats", channelType)
	}
	return lister.Chats(ctx)
}

// Shutdown stops all active connections.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stopAll(ctx)
	return nil
}

// ConnectionStatuses returns observed connection statuses sorted by channel type.
func (m *Manager) ConnectionStatuses() []ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]ConnectionStatus, 0, len(m.connectionMeta))
	for _, status := range m.connectionMeta {
		items = append(items, status)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].ChannelType < items[j].ChannelType
	})
	return items
}

package channel

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrStopNotSupported is returned when a connection does not support graceful shutdown.
var ErrStopNotSupported = errors.New("channel connection stop not supported")

// ErrSendFailed is surfaced to the middleware when the platform reports a failed send.
// The text is shown to the user as is.
var ErrSendFailed = errors.New("发送失败，请在手机端确认")

// ErrChatNotFound is returned by ChatLister when the id is unknown.
var ErrChatNotFound = errors.New("chat not found")

// Coordinator accepts messages and status updates produced by adapters.
type Coordinator interface {
	Deliver(ctx context.Context, msg Message) error
	DeliverStatus(ctx context.Context, status Status) error
}

// Adapter is the base interface every channel adapter must implement.
type Adapter interface {
	Type() ChannelType
	Descriptor() Descriptor
}

// Descriptor holds read-only metadata for a registered channel type.
type Descriptor struct {
	Type         ChannelType         `json:"type"`
	DisplayName  string              `json:"display_name"`
	Emoji        string              `json:"emoji,omitempty"`
	Capabilities ChannelCapabilities `json:"capabilities"`
}

// ChannelCapabilities lists what an adapter accepts on the outbound side.
type ChannelCapabilities struct {
	MessageTypes []MessageType `json:"message_types"`
	Reply        bool          `json:"reply"`
	Edit         bool          `json:"edit"`
	Commands     bool          `json:"commands"`
}

// Supports reports whether t is one of the accepted outbound message types.
func (c ChannelCapabilities) Supports(t MessageType) bool {
	for _, item := range c.MessageTypes {
		if item == t {
			return true
		}
	}
	return false
}

// Sender is an adapter capable of sending outbound messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Receiver is an adapter capable of establishing a long-lived connection to receive messages.
type Receiver interface {
	Connect(ctx context.Context, coord Coordinator) (Connection, error)
}

// ChatLister exposes the adapter's known chats.
type ChatLister interface {
	Chats(ctx context.Context) ([]Chat, error)
	Chat(ctx context.Context, id string) (Chat, error)
}

// CommandInvoker runs a command previously attached to a delivered message.
type CommandInvoker interface {
	InvokeCommand(ctx context.Context, callable string, kwargs map[string]string) (string, error)
}

// Connection represents an active, long-lived link to a channel platform.
type Connection interface {
	ChannelType() ChannelType
	Stop(ctx context.Context) error
	Running() bool
}

// BaseConnection is a default Connection implementation backed by a stop function.
type BaseConnection struct {
	channelType ChannelType
	stop        func(ctx context.Context) error
	running     atomic.Bool
}

// NewConnection creates a BaseConnection for the given channel type and stop function.
func NewConnection(channelType ChannelType, stop func(ctx context.Context) error) *BaseConnection {
	conn := &BaseConnection{
		channelType: channelType,
		stop:        stop,
	}
	conn.running.Store(true)
	return conn
}

// ChannelType returns the type of channel this connection serves.
func (c *BaseConnection) ChannelType() ChannelType {
	return c.channelType
}

// Stop gracefully shuts down the connection.
func (c *BaseConnection) Stop(ctx context.Context) error {
	if c.stop == nil {
		return ErrStopNotSupported
	}
	c.running.Store(false)
	return c.stop(ctx)
}

// Running reports whether the connection is still active.
func (c *BaseConnection) Running() bool {
	return c.running.Load()
}

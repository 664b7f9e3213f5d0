// Package channel defines the boundary between platform adapters and the messaging middleware.
// It holds the shared message, chat and status types, the adapter interfaces, and a registry.
package channel

import (
	"strings"
	"time"
)

// ChannelType identifies a messaging platform adapter (e.g., "honus.comwechat").
type ChannelType string

// String returns the channel type as a plain string.
func (c ChannelType) String() string {
	return string(c)
}

// MessageType classifies the payload of a message.
type MessageType string

const (
	MessageText        MessageType = "text"
	MessageImage       MessageType = "image"
	MessageSticker     MessageType = "sticker"
	MessageAnimation   MessageType = "animation"
	MessageVoice       MessageType = "voice"
	MessageVideo       MessageType = "video"
	MessageFile        MessageType = "file"
	MessageLink        MessageType = "link"
	MessageLocation    MessageType = "location"
	MessageUnsupported MessageType = "unsupported"
)

// ConversationType distinguishes private chats, group chats and system chats.
type ConversationType string

const (
	ConversationPrivate ConversationType = "private"
	ConversationGroup   ConversationType = "group"
	ConversationSystem  ConversationType = "system"
)

// Identity represents a message author.
type Identity struct {
	SubjectID   string            `json:"subject_id"`
	DisplayName string            `json:"display_name,omitempty"`
	Alias       string            `json:"alias,omitempty"`
	Self        bool              `json:"self,omitempty"`
	System      bool              `json:"system,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// Attribute returns the trimmed value for the given key, or empty string if absent.
func (i Identity) Attribute(key string) string {
	if i.Attributes == nil {
		return ""
	}
	return strings.TrimSpace(i.Attributes[key])
}

// Conversation holds metadata about the chat a message belongs to.
type Conversation struct {
	ID       string           `json:"id"`
	Type     ConversationType `json:"type"`
	Name     string           `json:"name,omitempty"`
	Metadata map[string]any   `json:"metadata,omitempty"`
}

// IsGroup reports whether the conversation is a group chat.
func (c Conversation) IsGroup() bool {
	return c.Type == ConversationGroup
}

// Attachment is a binary payload carried by a message. Path points to a local file;
// Base64 carries inline bytes when the peer cannot share a filesystem with us.
type Attachment struct {
	Path   string `json:"path,omitempty"`
	Name   string `json:"name,omitempty"`
	Mime   string `json:"mime,omitempty"`
	Size   int64  `json:"size,omitempty"`
	Base64 string `json:"base64,omitempty"`
}

// HasPayload reports whether a local path or inline data is available.
func (a Attachment) HasPayload() bool {
	return strings.TrimSpace(a.Path) != "" || strings.TrimSpace(a.Base64) != ""
}

// Command is an action attached to a message that the user may invoke later.
type Command struct {
	Name         string            `json:"name"`
	CallableName string            `json:"callable_name"`
	Kwargs       map[string]string `json:"kwargs,omitempty"`
}

// Message is the unified message structure exchanged with the middleware.
type Message struct {
	ID           string         `json:"id,omitempty"`
	Channel      ChannelType    `json:"channel,omitempty"`
	Type         MessageType    `json:"type"`
	Text         string         `json:"text,omitempty"`
	Attachment   *Attachment    `json:"attachment,omitempty"`
	Filename     string         `json:"filename,omitempty"`
	Conversation Conversation   `json:"conversation"`
	Sender       Identity       `json:"sender"`
	Target       *Message       `json:"target,omitempty"`
	Commands     []Command      `json:"commands,omitempty"`
	Edit         bool           `json:"edit,omitempty"`

	// DeliveredToChannel marks a message the middleware previously routed to this channel.
	DeliveredToChannel bool           `json:"delivered_to_channel,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	ReceivedAt         time.Time      `json:"received_at,omitempty"`
}

// IsEmpty reports whether the message carries no content.
func (m Message) IsEmpty() bool {
	return strings.TrimSpace(m.Text) == "" && (m.Attachment == nil || !m.Attachment.HasPayload())
}

// MetadataString returns the string stored under key, or empty string.
func (m Message) MetadataString(key string) string {
	if m.Metadata == nil {
		return ""
	}
	v, _ := m.Metadata[key].(string)
	return v
}

// MetadataMap returns the nested map stored under key, or nil.
func (m Message) MetadataMap(key string) map[string]any {
	if m.Metadata == nil {
		return nil
	}
	v, _ := m.Metadata[key].(map[string]any)
	return v
}

// StatusType identifies a status update.
type StatusType string

const (
	StatusMessageRemoval StatusType = "message_removal"
)

// Status is a non-message update, such as a message being withdrawn by its author.
type Status struct {
	Type         StatusType   `json:"type"`
	Channel      ChannelType  `json:"channel"`
	Conversation Conversation `json:"conversation"`
	MessageID    string       `json:"message_id"`
}

// Chat is an entry of an adapter's contact listing.
type Chat struct {
	ID   string           `json:"id"`
	Type ConversationType `json:"type"`
	Name string           `json:"name"`
	// Official marks subscription/service accounts.
	Official bool `json:"official,omitempty"`
}

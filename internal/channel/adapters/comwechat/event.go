package comwechat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/honus/comwechat/internal/channel"
	"github.com/honus/comwechat/internal/hook"
)

// EventMeta identifies a normalized event for deduplication.
type EventMeta struct {
	ID         string
	Type       string
	ReceivedAt time.Time
}

func (m EventMeta) meta() EventMeta { return m }

// Event is the closed set of inbound events produced by Normalize.
type Event interface {
	meta() EventMeta
}

// MessageEvent is a chat message, possibly carrying a payload that is still downloading.
type MessageEvent struct {
	EventMeta
	Kind   hook.Kind
	Chat   channel.Conversation
	Author channel.Identity
	Raw    hook.Event
}

// RevokeEvent withdraws a previously delivered message.
type RevokeEvent struct {
	EventMeta
	Chat      channel.Conversation
	RevokedID string
}

type TransferEvent struct {
	EventMeta
	Sender   string
	Name     string
	Transfer transferNotice
}

type FriendRequestEvent struct {
	EventMeta
	Sender  string
	Request friendRequest
}

type CardEvent struct {
	EventMeta
	Sender string
	Name   string
	Card   contactCard
}

// SystemEvent is a notice WeChat posts into a chat, such as a member joining a group.
type SystemEvent struct {
	EventMeta
	Chat channel.Conversation
	Text string
}

// Normalizer turns raw hook events into typed events.
type Normalizer struct {
	directory *Directory
	selfID    func() string
	now       func() time.Time
}

func NewNormalizer(directory *Directory, selfID func() string) *Normalizer {
	return &Normalizer{directory: directory, selfID: selfID, now: time.Now}
}

// Normalize classifies raw. A nil Event with a nil error means the record is
// intentionally ignored: event notifications and echoes of our own sends.
func (n *Normalizer) Normalize(ctx context.Context, raw hook.Event) (Event, error) {
	if err := raw.Validate(); err != nil {
		return nil, err
	}
	kind := raw.Kind()
	meta := EventMeta{
		ID:         string(raw.MsgID),
		Type:       strings.TrimSpace(string(raw.Type)),
		ReceivedAt: n.now().UTC(),
	}

	switch kind {
	case hook.KindEventNotify:
		return nil, nil
	case hook.KindRevoke:
		id, err := parseRevoke(raw.Message)
		if err != nil {
			return nil, err
		}
		return RevokeEvent{EventMeta: meta, Chat: n.chat(ctx, raw.Sender), RevokedID: id}, nil
	case hook.KindTransfer:
		if raw.SentByPhone() {
			return MessageEvent{
				EventMeta: meta,
				Kind:      kind,
				Chat:      n.privateChat(ctx, raw.Sender),
				Author:    n.contactIdentity(ctx, raw.Sender),
				Raw:       raw,
			}, nil
		}
		transfer, err := parseTransfer(raw.Message)
		if err != nil {
			return nil, err
		}
		return TransferEvent{EventMeta: meta, Sender: raw.Sender, Name: n.directory.Name(ctx, raw.Sender), Transfer: transfer}, nil
	case hook.KindFriendRequest:
		req, err := parseFriendRequest(raw.Message)
		if err != nil {
			return nil, err
		}
		return FriendRequestEvent{EventMeta: meta, Sender: raw.Sender, Request: req}, nil
	case hook.KindCard:
		card, err := parseCard(raw.Message)
		if err != nil {
			return nil, err
		}
		return CardEvent{EventMeta: meta, Sender: raw.Sender, Name: n.directory.Name(ctx, raw.Sender), Card: card}, nil
	case hook.KindSystem:
		return SystemEvent{EventMeta: meta, Chat: n.chat(ctx, raw.Sender), Text: replaceEmoticons(raw.Message)}, nil
	}

	if raw.Echo() {
		return nil, nil
	}
	raw.Message = replaceEmoticons(raw.Message)
	ev := MessageEvent{EventMeta: meta, Kind: kind, Raw: raw}
	ev.Chat = n.chat(ctx, raw.Sender)
	switch {
	case raw.SentByPhone():
		ev.Author = n.selfIdentity(ctx)
	case raw.IsGroup():
		member := strings.TrimSpace(raw.Wxid)
		if member == "" {
			return nil, fmt.Errorf("%w: wxid", errMissingField)
		}
		ev.Author = n.memberIdentity(raw.Sender, member)
	default:
		ev.Author = n.contactIdentity(ctx, raw.Sender)
	}
	return ev, nil
}

func (n *Normalizer) chat(ctx context.Context, sender string) channel.Conversation {
	if strings.Contains(sender, "@chatroom") {
		return channel.Conversation{ID: sender, Type: channel.ConversationGroup, Name: n.directory.Name(ctx, sender)}
	}
	return n.privateChat(ctx, sender)
}

func (n *Normalizer) privateChat(ctx context.Context, sender string) channel.Conversation {
	conv := channel.Conversation{ID: sender, Type: channel.ConversationPrivate, Name: n.directory.Name(ctx, sender)}
	if strings.HasPrefix(sender, "gh_") {
		conv.Metadata = map[string]any{"is_mp": true}
	}
	return conv
}

func (n *Normalizer) selfIdentity(ctx context.Context) channel.Identity {
	self := n.selfID()
	return channel.Identity{SubjectID: self, DisplayName: n.directory.Name(ctx, self), Self: true}
}

func (n *Normalizer) contactIdentity(ctx context.Context, wxid string) channel.Identity {
	return channel.Identity{SubjectID: wxid, DisplayName: n.directory.Name(ctx, wxid)}
}

func (n *Normalizer) memberIdentity(group, wxid string) channel.Identity {
	name, ok := n.directory.Contact(wxid)
	if !ok || name == "" {
		name = wxid
	}
	return channel.Identity{
		SubjectID:   wxid,
		DisplayName: name,
		Alias:       n.directory.MemberAlias(group, wxid),
	}
}

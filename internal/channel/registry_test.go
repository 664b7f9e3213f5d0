package channel_test

import (
	"context"
	"testing"

	"github.com/honus/comwechat/internal/channel"
)

type listerAdapter struct{}

func (a *listerAdapter) Type() channel.ChannelType { return "Lister" }

func (a *listerAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{Type: "lister", DisplayName: "Lister"}
}

func (a *listerAdapter) Chats(ctx context.Context) ([]channel.Chat, error) {
	return []channel.Chat{{ID: "a", Type: channel.ConversationPrivate, Name: "A"}}, nil
}

func (a *listerAdapter) Chat(ctx context.Context, id string) (channel.Chat, error) {
	return channel.Chat{}, channel.ErrChatNotFound
}

func TestRegistryNormalizesType(t *testing.T) {
	t.Parallel()
	reg := channel.NewRegistry()
	if err := reg.Register(&listerAdapter{}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, ok := reg.Get(" LISTER "); !ok {
		t.Fatalf("expected lookup to be case and space insensitive")
	}
	if err := reg.Register(&listerAdapter{}); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
	ct, err := reg.ParseChannelType("Lister")
	if err != nil || ct != "lister" {
		t.Fatalf("ParseChannelType = (%q, %v)", ct, err)
	}
	if _, err := reg.ParseChannelType("nope"); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}

func TestRegistryOptionalInterfaces(t *testing.T) {
	t.Parallel()
	reg := channel.NewRegistry()
	if err := reg.Register(&listerAdapter{}); err != nil {
		t.Fatalf("register: %v", err)
	}

	lister, ok := reg.GetChatLister("lister")
	if !ok || lister == nil {
		t.Fatalf("expected chat lister")
	}
	if _, ok := reg.GetSender("lister"); ok {
		t.Fatalf("adapter does not implement Sender")
	}
	if _, ok := reg.GetCommandInvoker("lister"); ok {
		t.Fatalf("adapter does not implement CommandInvoker")
	}
	if got := reg.ListDescriptors(); len(got) != 1 || got[0].DisplayName != "Lister" {
		t.Fatalf("unexpected descriptors: %+v", got)
	}
}

func TestCapabilitiesSupports(t *testing.T) {
	t.Parallel()
	caps := channel.ChannelCapabilities{MessageTypes: []channel.MessageType{channel.MessageText}}
	if !caps.Supports(channel.MessageText) || caps.Supports(channel.MessageVoice) {
		t.Fatalf("unexpected Supports result")
	}
}

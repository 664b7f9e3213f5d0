package comwechat

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/honus/comwechat/internal/channel"
	"github.com/honus/comwechat/internal/hook"
)

const (
	systemAuthorID = "__system__"
	systemName     = "ℹ System"
)

// HandleEvent runs one raw hook event through normalization, deduplication and
// payload deferral, then delivers the result. It never blocks on payload downloads.
func (a *Adapter) HandleEvent(ctx context.Context, raw hook.Event) error {
	coord := a.coordinator()
	if coord == nil {
		return ErrNotConnected
	}
	ev, err := a.normalizer.Normalize(ctx, raw)
	if err != nil {
		a.logger.Warn("drop malformed event", slog.String("msgid", string(raw.MsgID)), slog.String("type", string(raw.Type)), slog.Any("error", err))
		return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if ev == nil {
		return nil
	}
	meta := ev.meta()
	if !a.dedup.Admit(meta.ID, meta.Type) {
		a.logger.Debug("drop duplicate event", slog.String("msgid", meta.ID), slog.String("type", meta.Type))
		return nil
	}

	switch e := ev.(type) {
	case MessageEvent:
		if path, ok := a.deferredPath(e); ok {
			a.pending.Add(path, e)
			return nil
		}
		return coord.Deliver(ctx, a.buildMessage(e, "", false))
	case RevokeEvent:
		return coord.DeliverStatus(ctx, channel.Status{
			Type:         channel.StatusMessageRemoval,
			Channel:      Type,
			Conversation: e.Chat,
			MessageID:    e.RevokedID,
		})
	case SystemEvent:
		return coord.Deliver(ctx, channel.Message{
			ID:           e.ID,
			Channel:      Type,
			Type:         channel.MessageText,
			Text:         e.Text,
			Conversation: e.Chat,
			Sender:       channel.Identity{SubjectID: systemAuthorID, DisplayName: systemName, System: true},
			ReceivedAt:   e.ReceivedAt,
		})
	case TransferEvent:
		text := fmt.Sprintf("收到 %s 转账:\n金额为 %s 元\n", e.Name, e.Transfer.Money)
		cmd, err := a.signedCommand("Accept", callableProcessTransfer, map[string]string{
			"transcationid": e.Transfer.TransactionID,
			"transferid":    e.Transfer.TransferID,
			"wxid":          e.Sender,
		})
		if err != nil {
			return err
		}
		return coord.Deliver(ctx, a.systemMessage(notice{ChatID: e.Sender, Name: e.Name, Text: text, Commands: []channel.Command{cmd}}))
	case FriendRequestEvent:
		cmd, err := a.signedCommand("Accept", callableProcessFriendRequest, map[string]string{
			"v3": e.Request.V3,
			"v4": e.Request.V4,
		})
		if err != nil {
			return err
		}
		return coord.Deliver(ctx, a.systemMessage(notice{ChatID: e.Sender, Text: e.Request.Text(), Commands: []channel.Command{cmd}}))
	case CardEvent:
		n := notice{ChatID: e.Sender, Name: e.Name, Text: e.Card.Text()}
		if a.opts.CardAddFriend && e.Card.CanAdd() {
			cmd, err := a.signedCommand("Add To Friend", callableAddFriend, map[string]string{"v3": e.Card.Username})
			if err != nil {
				return err
			}
			n.Commands = []channel.Command{cmd}
		}
		return coord.Deliver(ctx, a.systemMessage(n))
	default:
		return fmt.Errorf("unhandled event %T", ev)
	}
}

// deferredPath reports where the payload of ev will appear when it is not local yet.
func (a *Adapter) deferredPath(ev MessageEvent) (string, bool) {
	raw := ev.Raw
	if strings.Contains(raw.FilePath, "FileStorage") && !strings.Contains(raw.FilePath, "Cache") {
		return localFilePath(a.opts.Dir, raw.FilePath), true
	}
	if ev.Kind == hook.KindVideo && raw.ThumbPath != "" {
		return localFilePath(a.opts.Dir, strings.ReplaceAll(raw.ThumbPath, ".jpg", ".mp4")), true
	}
	if ev.Kind == hook.KindVoice {
		id := voiceClientMsgID(raw.Message)
		if id == "" {
			id = ev.ID
		}
		self := strings.TrimSpace(raw.Self)
		if self == "" {
			self = a.selfID()
		}
		return a.opts.Dir + self + "/" + id + ".amr", true
	}
	return "", false
}

func (a *Adapter) deliverPending(ctx context.Context, ev MessageEvent, path string, timedOut bool) {
	coord := a.coordinator()
	if coord == nil {
		a.logger.Warn("drop settled payload, not connected", slog.String("msgid", ev.ID))
		return
	}
	if err := coord.Deliver(ctx, a.buildMessage(ev, path, timedOut)); err != nil {
		a.logger.Error("deliver message failed", slog.String("msgid", ev.ID), slog.Any("error", err))
	}
}

func infoTypeOf(ev MessageEvent) string {
	if ev.Raw.IsAnimatedSticker() {
		return "animatedsticker"
	}
	return string(ev.Kind)
}

// buildMessage converts ev into a middleware message. path is the settled
// payload location, if any. A timed-out payload becomes a text notice.
func (a *Adapter) buildMessage(ev MessageEvent, path string, timedOut bool) channel.Message {
	raw := ev.Raw
	msg := channel.Message{
		ID:           ev.ID,
		Channel:      Type,
		Type:         channel.MessageText,
		Conversation: ev.Chat,
		Sender:       ev.Author,
		Metadata: map[string]any{
			metaInfo: map[string]any{"type": infoTypeOf(ev)},
		},
		ReceivedAt: ev.ReceivedAt,
	}
	if timedOut {
		msg.Text = fmt.Sprintf("[%s 下载超时,请在手机端查看]", ev.Kind)
		return msg
	}
	if ev.Kind != hook.KindText {
		msg.Metadata[metaWxXML] = raw.Message
	}
	if path == "" && raw.FilePath != "" {
		path = localFilePath(a.opts.Dir, raw.FilePath)
	}

	switch ev.Kind {
	case hook.KindText:
		msg.Text = raw.Message
	case hook.KindImage:
		a.attach(&msg, channel.MessageImage, path, ev.Kind)
	case hook.KindVoice:
		a.attach(&msg, channel.MessageVoice, path, ev.Kind)
	case hook.KindVideo:
		a.attach(&msg, channel.MessageVideo, path, ev.Kind)
	case hook.KindFile:
		a.attach(&msg, channel.MessageFile, path, ev.Kind)
		if app, err := parseAppMessage(raw.Message); err == nil && app.Title != "" {
			msg.Filename = app.Title
		}
	case hook.KindSticker:
		if path != "" {
			a.attach(&msg, channel.MessageSticker, path, ev.Kind)
			break
		}
		msg.Text = "[表情]"
		if u := stickerURL(raw.Message); u != "" {
			msg.Metadata["sticker_url"] = u
		}
	case hook.KindLocation:
		loc, err := parseLocation(raw.Message)
		if err != nil {
			msg.Text = raw.Message
			break
		}
		msg.Type = channel.MessageLocation
		msg.Text = loc.Text()
		msg.Metadata["latitude"] = loc.X
		msg.Metadata["longitude"] = loc.Y
	case hook.KindShare, hook.KindTransfer:
		app, err := parseAppMessage(raw.Message)
		if err != nil {
			msg.Text = raw.Message
			break
		}
		if ev.Kind == hook.KindShare {
			msg.Type = channel.MessageLink
			msg.Metadata["link"] = map[string]any{"title": app.Title, "description": app.Des, "url": app.URL}
		}
		msg.Text = joinNonEmpty(app.Title, app.Des, app.URL)
	default:
		msg.Text = raw.Message
	}
	return msg
}

func (a *Adapter) attach(msg *channel.Message, t channel.MessageType, path string, kind hook.Kind) {
	if path == "" {
		msg.Text = "[" + string(kind) + "]"
		return
	}
	att := &channel.Attachment{
		Path: path,
		Name: baseName(path),
		Mime: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
	}
	if info, err := os.Stat(path); err == nil {
		att.Size = info.Size()
	}
	if att.Mime == "" && kind == hook.KindVoice {
		att.Mime = "audio/amr"
	}
	msg.Type = t
	msg.Attachment = att
}

func joinNonEmpty(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n")
}

// notice is a message from the system chat.
type notice struct {
	ChatID   string
	Name     string
	Text     string
	Commands []channel.Command
	Target   *channel.Message
}

func (a *Adapter) systemMessage(n notice) channel.Message {
	name := n.Name
	if name == "" {
		name = systemName
	}
	return channel.Message{
		ID:           uuid.NewString(),
		Channel:      Type,
		Type:         channel.MessageText,
		Text:         n.Text,
		Conversation: channel.Conversation{ID: n.ChatID, Type: channel.ConversationSystem, Name: name},
		Sender:       channel.Identity{SubjectID: systemAuthorID, DisplayName: name, System: true},
		Commands:     n.Commands,
		Target:       n.Target,
		ReceivedAt:   a.now().UTC(),
	}
}

func (a *Adapter) notify(ctx context.Context, n notice) error {
	coord := a.coordinator()
	if coord == nil {
		return ErrNotConnected
	}
	return coord.Deliver(ctx, a.systemMessage(n))
}

package comwechat

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/honus/comwechat/internal/channel"
	"github.com/honus/comwechat/internal/hook"
)

// Send dispatches one outbound message to WeChat. A hook status of 0 is
// reported as channel.ErrSendFailed.
func (a *Adapter) Send(ctx context.Context, msg channel.Message) error {
	chatID := strings.TrimSpace(msg.Conversation.ID)
	if chatID == "" {
		return fmt.Errorf("conversation id is required")
	}
	if msg.Edit {
		a.logger.Debug("edit not supported, sending as new message", slog.String("msgid", msg.ID))
	}

	if msg.Text != "" {
		if ref, ok := findForwardToken(msg.Text); ok {
			if !ref.Mine(Type) {
				a.logger.Debug("forward token from another channel", slog.String("digest", ref.Digest), slog.String("msgid", ref.MsgID))
				return nil
			}
			res, err := a.client.ForwardMessage(ctx, chatID, ref.MsgID)
			return checkResult(res, err)
		}
	}

	if msg.Type == channel.MessageVoice {
		converted, cleanup, err := a.voiceAsClip(ctx, msg)
		if err != nil {
			return err
		}
		defer cleanup()
		msg = converted
	}

	var (
		res hook.Result
		err error
	)
	switch msg.Type {
	case channel.MessageText:
		if cmd, ok := parseCommand(msg.Text); ok {
			return a.runCommand(ctx, chatID, msg, cmd)
		}
		res, err = a.sendText(ctx, chatID, msg)
	case channel.MessageLink:
		res, err = a.sendText(ctx, chatID, msg)
	case channel.MessageImage, channel.MessageSticker:
		res, err = a.sendMedia(ctx, chatID, msg, "", a.client.SendImage)
	case channel.MessageFile, channel.MessageVideo:
		res, err = a.sendMedia(ctx, chatID, msg, msg.Filename, a.client.SendFile)
		// The hook reports video uploads as failed even when they go through.
		if err == nil && msg.Type == channel.MessageVideo {
			res = hook.Result{}
		}
	case channel.MessageAnimation:
		res, err = a.sendMedia(ctx, chatID, msg, "", a.client.SendEmotion)
	default:
		return fmt.Errorf("unsupported message type: %s", msg.Type)
	}
	return checkResult(res, err)
}

func checkResult(res hook.Result, err error) error {
	if err != nil {
		return err
	}
	if res.Failed() {
		return channel.ErrSendFailed
	}
	return nil
}

type mediaSendFunc func(ctx context.Context, receiver, path string) (hook.Result, error)

// sendMedia stages the attachment, sends it, schedules the staged copy for
// deletion and follows up with the caption, if any.
func (a *Adapter) sendMedia(ctx context.Context, chatID string, msg channel.Message, filename string, send mediaSendFunc) (hook.Result, error) {
	staged, err := a.stage(ctx, msg.Attachment, filename)
	if err != nil {
		return hook.Result{}, err
	}
	a.logger.Debug("send media", slog.String("type", string(msg.Type)), slog.String("local", staged.Local), slog.String("remote", staged.Remote))
	res, err := send(ctx, chatID, staged.Remote)
	a.reaper.Track(staged.Local)
	if err != nil {
		return res, err
	}
	if strings.TrimSpace(msg.Text) != "" {
		if _, err := a.sendText(ctx, chatID, msg); err != nil {
			a.logger.Warn("send caption failed", slog.String("chat", chatID), slog.Any("error", err))
		}
	}
	return res, nil
}

// voiceAsClip transcodes a voice note to MP3 and re-tags it as a video, which
// the hook delivers as a playable file.
func (a *Adapter) voiceAsClip(ctx context.Context, msg channel.Message) (channel.Message, func(), error) {
	if msg.Attachment == nil || !msg.Attachment.HasPayload() {
		return msg, func() {}, fmt.Errorf("voice attachment is required")
	}
	src := msg.Attachment.Path
	var tmpSrc string
	if src == "" {
		f, err := os.CreateTemp("", "voice_source_*.ogg")
		if err != nil {
			return msg, func() {}, err
		}
		tmpSrc = f.Name()
		_ = f.Close()
		if err := writeAttachment(tmpSrc, msg.Attachment); err != nil {
			_ = os.Remove(tmpSrc)
			return msg, func() {}, err
		}
		src = tmpSrc
	}
	mp3, err := a.transcoder.ToMP3(ctx, src)
	if tmpSrc != "" {
		_ = os.Remove(tmpSrc)
	}
	if err != nil {
		return msg, func() {}, fmt.Errorf("transcode voice: %w", err)
	}
	msg.Type = channel.MessageVideo
	msg.Attachment = &channel.Attachment{Path: mp3, Name: voiceNoteName, Mime: "audio/mpeg"}
	msg.Filename = voiceNoteName
	return msg, func() { _ = os.Remove(mp3) }, nil
}

// sendText sends msg.Text, quoting msg.Target when set. Replies to our own
// messages are quoted inline; anything else uses WeChat's reference XML.
func (a *Adapter) sendText(ctx context.Context, chatID string, msg channel.Message) (hook.Result, error) {
	text := msg.Text
	if t := msg.Target; t != nil {
		if t.Sender.Self && t.DeliveredToChannel {
			quote := t.Text
			if quote == "" {
				quote = typeName(t.Type)
			}
			text = quotedText(quote, msg.Text)
		} else {
			return a.client.SendXML(ctx, chatID, buildQuoteXML(a.selfID(), text, *t), "")
		}
	}
	return a.client.SendText(ctx, chatID, text)
}

// typeName renders a message type the way it appears in quotes, such as "Image".
func typeName(t channel.MessageType) string {
	name := string(t)
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

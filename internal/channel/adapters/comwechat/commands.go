package comwechat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/honus/comwechat/internal/channel"
	"github.com/honus/comwechat/internal/hook"
)

const helpText = `/search - 按关键字匹配好友昵称搜索联系人

/addtogroup - 按wxid添加好友到群组

/getmemberlist - 查看群组用户wxid

/at - 后面跟wxid，多个用英文,隔开，最后可用空格隔开，带内容。

/sendcard - 后面格式'wxid nickname'

/changename - 修改群组名称

/addfriend - 后面格式'wxid message'

/getstaticinfo - 可获取friends, groups, contacts信息`

// Checked in order; a prefix match wins, so "/atx" is still /at.
var commandNames = []string{
	"/changename",
	"/getmemberlist",
	"/getstaticinfo",
	"/helpcomwechat",
	"/search",
	"/addtogroup",
	"/forward",
	"/at",
	"/sendcard",
	"/addfriend",
}

type textCommand struct {
	Name string
	Arg  string
}

func parseCommand(text string) (textCommand, bool) {
	for _, name := range commandNames {
		if strings.HasPrefix(text, name) {
			arg := strings.TrimPrefix(text, name)
			arg = strings.TrimPrefix(arg, " ")
			return textCommand{Name: name, Arg: arg}, true
		}
	}
	return textCommand{}, false
}

// splitFirst splits s at its first space.
func splitFirst(s string) (string, string) {
	head, tail, _ := strings.Cut(s, " ")
	return head, tail
}

func (a *Adapter) runCommand(ctx context.Context, chatID string, msg channel.Message, cmd textCommand) error {
	a.logger.Debug("chat command", slog.String("command", cmd.Name), slog.String("chat", chatID))
	var (
		res hook.Result
		err error
	)
	switch cmd.Name {
	case "/changename":
		res, err = a.client.SetChatroomName(ctx, chatID, strings.TrimSpace(cmd.Arg))
	case "/getmemberlist":
		return a.memberList(ctx, chatID)
	case "/getstaticinfo":
		text, ok := a.directory.Snapshot(strings.TrimSpace(cmd.Arg))
		if !ok {
			text = "当前仅支持查询friends, groups, group_members, contacts"
		}
		return a.notify(ctx, notice{ChatID: chatID, Text: text})
	case "/helpcomwechat":
		return a.notify(ctx, notice{ChatID: chatID, Text: helpText})
	case "/search":
		var b strings.Builder
		b.WriteString("result:")
		for _, hit := range a.directory.Search(cmd.Arg) {
			fmt.Fprintf(&b, "\n%s : %s", hit.Wxid, hit.Name)
		}
		return a.notify(ctx, notice{ChatID: chatID, Text: b.String()})
	case "/addtogroup":
		res, err = a.client.AddChatroomMember(ctx, chatID, strings.TrimSpace(cmd.Arg))
	case "/forward":
		return a.markForward(ctx, chatID, msg.Target)
	case "/at":
		users, text := splitFirst(cmd.Arg)
		if msg.Target != nil {
			users, text = msg.Target.Sender.SubjectID, cmd.Arg
		}
		if users == "" {
			res, err = a.client.SendText(ctx, chatID, msg.Text)
			break
		}
		res, err = a.client.SendAt(ctx, chatID, users, text)
	case "/sendcard":
		user, nickname := splitFirst(cmd.Arg)
		if user == "" {
			res, err = a.client.SendText(ctx, chatID, msg.Text)
			break
		}
		res, err = a.client.SendCard(ctx, chatID, user, nickname)
	case "/addfriend":
		user, invite := splitFirst(cmd.Arg)
		if user == "" {
			res, err = a.client.SendText(ctx, chatID, msg.Text)
			break
		}
		res, err = a.client.AddContactByWxid(ctx, user, invite)
	default:
		return fmt.Errorf("unknown command: %s", cmd.Name)
	}
	return checkResult(res, err)
}

func (a *Adapter) memberList(ctx context.Context, chatID string) error {
	members, err := a.client.ChatroomMembers(ctx, chatID)
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("群组成员包括：")
	for _, wxid := range members {
		name, ok := a.directory.Contact(wxid)
		if !ok || name == "" {
			name, err = a.client.ChatroomMemberNickname(ctx, chatID, wxid)
			if err != nil || name == "" {
				name = wxid
			}
		}
		fmt.Fprintf(&b, "\n%s : %s", wxid, name)
	}
	return a.notify(ctx, notice{ChatID: chatID, Text: b.String()})
}

// markForward edits the quoted message so it carries a forward token. Sending
// the edited message into another chat forwards the original WeChat message.
func (a *Adapter) markForward(ctx context.Context, chatID string, target *channel.Message) error {
	if target == nil {
		return nil
	}
	if !isDecimal(target.ID) {
		return a.notify(ctx, notice{
			ChatID: chatID,
			Text:   fmt.Sprintf("无法转发%s,不是有效的微信消息", target.ID),
			Target: target,
		})
	}
	coord := a.coordinator()
	if coord == nil {
		return ErrNotConnected
	}
	edited := *target
	edited.Text = patchForwardText(Type, target.Text, target.ID)
	edited.Edit = true
	return coord.Deliver(ctx, edited)
}

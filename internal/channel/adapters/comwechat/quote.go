package comwechat

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/honus/comwechat/internal/channel"
)

const (
	metaWxXML = "wx_xml"
	metaInfo  = "comwechat_info"
)

// quoteTemplate args: self wxid, reply text, refer type, target msgid,
// target sender (twice), target display name, content block.
const quoteTemplate = `<?xml version="1.0"?><msg><fromusername>%s</fromusername><scene>0</scene><commenturl></commenturl><appmsg appid="" sdkver="0"><title>%s</title><des></des><action>view</action><type>57</type><showtype>0</showtype><content></content><url></url><dataurl></dataurl><lowurl></lowurl><lowdataurl></lowdataurl><recorditem></recorditem><thumburl></thumburl><messageaction></messageaction><refermsg><type>%d</type><svrid>%s</svrid><fromusr>%s</fromusr><chatusr>%s</chatusr><displayname>%s</displayname>%s</refermsg></appmsg><appinfo><version>1</version><appname>Window wechat</appname></appinfo></msg>`

const (
	referText     = 1
	referImage    = 3
	referVoice    = 34
	referVideo    = 43
	referSticker  = 47
	referLocation = 48
	referAppMsg   = 49
)

var wxEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"\n", "&#x0A;",
	"\t", "&#x09;",
	`"`, "&quot;",
)

func escapeWX(s string) string {
	return wxEscaper.Replace(s)
}

// infoType returns the raw hook type recorded on a message this channel delivered.
func infoType(msg channel.Message) string {
	v, _ := msg.MetadataMap(metaInfo)["type"].(string)
	return v
}

// referType maps the quoted message kind to WeChat's reference type code.
func referType(target channel.Message) int {
	raw := infoType(target)
	switch {
	case raw == "animatedsticker":
		return referSticker
	case target.Type == channel.MessageImage:
		return referImage
	case target.Type == channel.MessageVoice:
		return referVoice
	case target.Type == channel.MessageVideo:
		return referVideo
	case target.Type == channel.MessageSticker, target.Type == channel.MessageAnimation:
		return referSticker
	case target.Type == channel.MessageLocation:
		return referLocation
	case target.Type == channel.MessageFile:
		return referAppMsg
	case raw == "share":
		return referAppMsg
	default:
		return referText
	}
}

// buildQuoteXML renders a reply to target as WeChat reference XML.
func buildQuoteXML(selfID, text string, target channel.Message) string {
	content := target.MetadataString(metaWxXML)
	if content == "" {
		content = target.Text
	}
	block := "<content />"
	if content != "" {
		block = "<content>" + escapeWX(content) + "</content>"
	}
	sender := target.Sender.SubjectID
	return fmt.Sprintf(quoteTemplate,
		selfID,
		escapeWX(text),
		referType(target),
		target.ID,
		sender,
		sender,
		escapeWX(target.Sender.DisplayName),
		block,
	)
}

// quotedText renders text below an inline quote of an earlier message.
func quotedText(quote, text string) string {
	return "「" + quote + "」\n- - - - - - - - - - - - - - -\n" + text
}

var forwardPattern = regexp.MustCompile(`ehforwarderbot://([^/\s]+)/forward/(\d+)`)

const forwardPrompt = "请将这条信息转发到目标聊天中"

func channelDigest(ct channel.ChannelType) string {
	sum := md5.Sum([]byte(ct.String()))
	return hex.EncodeToString(sum[:])
}

// forwardToken builds the text marker that re-injects msgid into this channel.
func forwardToken(ct channel.ChannelType, msgid string) string {
	return "ehforwarderbot://" + channelDigest(ct) + "/forward/" + msgid
}

type forwardRef struct {
	Digest string
	MsgID  string
	Start  int
}

// findForwardToken locates the first forward token in text.
func findForwardToken(text string) (forwardRef, bool) {
	m := forwardPattern.FindStringSubmatchIndex(text)
	if m == nil {
		return forwardRef{}, false
	}
	return forwardRef{
		Digest: text[m[2]:m[3]],
		MsgID:  text[m[4]:m[5]],
		Start:  m[0],
	}, true
}

// Mine reports whether the token was issued by the given channel.
func (r forwardRef) Mine(ct channel.ChannelType) bool {
	return r.Digest == channelDigest(ct)
}

// patchForwardText returns target text carrying a fresh forward token for msgid.
// An existing token and everything after it is replaced.
func patchForwardText(ct channel.ChannelType, targetText, msgid string) string {
	text := forwardToken(ct, msgid) + "\n" + forwardPrompt
	if targetText == "" {
		return text
	}
	if ref, ok := findForwardToken(targetText); ok {
		return targetText[:ref.Start] + text
	}
	return targetText + "\n\n---\n" + text
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

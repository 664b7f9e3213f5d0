package comwechat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/honus/comwechat/internal/channel"
)

func TestReferType(t *testing.T) {
	t.Parallel()

	withInfo := func(msgType channel.MessageType, raw string) channel.Message {
		return channel.Message{Type: msgType, Metadata: map[string]any{metaInfo: map[string]any{"type": raw}}}
	}
	cases := []struct {
		name   string
		target channel.Message
		want   int
	}{
		{"text", channel.Message{Type: channel.MessageText}, 1},
		{"image", channel.Message{Type: channel.MessageImage}, 3},
		{"voice", channel.Message{Type: channel.MessageVoice}, 34},
		{"video", channel.Message{Type: channel.MessageVideo}, 43},
		{"sticker", channel.Message{Type: channel.MessageSticker}, 47},
		{"animation", channel.Message{Type: channel.MessageAnimation}, 47},
		{"animated sticker delivered as text", withInfo(channel.MessageText, "animatedsticker"), 47},
		{"location", channel.Message{Type: channel.MessageLocation}, 48},
		{"file", channel.Message{Type: channel.MessageFile}, 49},
		{"share", withInfo(channel.MessageLink, "share"), 49},
		{"plain link", channel.Message{Type: channel.MessageLink}, 1},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, referType(tc.target))
		})
	}
}

func TestBuildQuoteXML(t *testing.T) {
	t.Parallel()

	target := channel.Message{
		ID:     "123456",
		Type:   channel.MessageImage,
		Sender: channel.Identity{SubjectID: "wxid_friend", DisplayName: `Tom & "Jerry"`},
		Metadata: map[string]any{
			metaWxXML: `<msg><img length="1"/></msg>`,
		},
	}
	xml := buildQuoteXML("wxid_self", "nice <pic>\nreally", target)

	assert.Contains(t, xml, "<fromusername>wxid_self</fromusername>")
	assert.Contains(t, xml, "<title>nice &lt;pic&gt;&#x0A;really</title>")
	assert.Contains(t, xml, "<type>3</type><svrid>123456</svrid>")
	assert.Contains(t, xml, "<fromusr>wxid_friend</fromusr><chatusr>wxid_friend</chatusr>")
	assert.Contains(t, xml, "<displayname>Tom &amp; &quot;Jerry&quot;</displayname>")
	assert.Contains(t, xml, "<content>&lt;msg&gt;&lt;img length=&quot;1&quot;/&gt;&lt;/msg&gt;</content>")
}

func TestBuildQuoteXMLEmptyContent(t *testing.T) {
	t.Parallel()

	xml := buildQuoteXML("wxid_self", "hi", channel.Message{ID: "1", Sender: channel.Identity{SubjectID: "a"}})
	assert.Contains(t, xml, "<content />")
}

func TestQuotedText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "「hello」\n- - - - - - - - - - - - - - -\nworld", quotedText("hello", "world"))
}

func TestForwardTokenRoundTrip(t *testing.T) {
	t.Parallel()

	token := forwardToken(Type, "7788")
	require.Len(t, channelDigest(Type), 32)

	ref, ok := findForwardToken("see " + token + "\nplease")
	require.True(t, ok)
	assert.Equal(t, "7788", ref.MsgID)
	assert.Equal(t, 4, ref.Start)
	assert.True(t, ref.Mine(Type))
	assert.False(t, ref.Mine("other.channel"))

	_, ok = findForwardToken("ehforwarderbot://abc/forward/notanumber")
	assert.False(t, ok)
}

func TestPatchForwardText(t *testing.T) {
	t.Parallel()

	token := forwardToken(Type, "42") + "\n" + forwardPrompt

	assert.Equal(t, token, patchForwardText(Type, "", "42"))
	assert.Equal(t, "hello\n\n---\n"+token, patchForwardText(Type, "hello", "42"))

	once := patchForwardText(Type, "hello", "41")
	twice := patchForwardText(Type, once, "42")
	assert.Equal(t, "hello\n\n---\n"+token, twice)
	assert.Equal(t, 1, strings.Count(twice, "ehforwarderbot://"))
}

func TestIsDecimal(t *testing.T) {
	t.Parallel()

	assert.True(t, isDecimal("0123"))
	assert.False(t, isDecimal(""))
	assert.False(t, isDecimal("12a"))
	assert.False(t, isDecimal("-1"))
}

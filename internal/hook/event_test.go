package hook

import (
	"encoding/json"
	"testing"
)

func TestEventKind(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		want Kind
	}{
		{"numeric text", `{"type":1,"sender":"a","msgid":1}`, KindText},
		{"named voice", `{"type":"voice","sender":"a","msgid":"1"}`, KindVoice},
		{"app transfer", `{"type":49,"sender":"a","msgid":1,"message":"<msg><appmsg><type>2000</type></appmsg></msg>"}`, KindTransfer},
		{"app file", `{"type":49,"sender":"a","msgid":1,"message":"<msg><appmsg><type>6</type></appmsg></msg>"}`, KindFile},
		{"app share", `{"type":49,"sender":"a","msgid":1,"message":"<msg><appmsg><type>5</type></appmsg></msg>"}`, KindShare},
		{"revoke", `{"type":10002,"sender":"a","msgid":1}`, KindRevoke},
		{"named msg suffix", `{"type":"revoke_msg","sender":"a","msgid":1}`, KindRevoke},
		{"animated sticker", `{"type":"animatedsticker","sender":"a","msgid":1}`, KindSticker},
		{"unknown code", `{"type":9999,"sender":"a","msgid":1}`, KindUnknown},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var ev Event
			if err := json.Unmarshal([]byte(tc.raw), &ev); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := ev.Kind(); got != tc.want {
				t.Fatalf("Kind() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	var ev Event
	if err := json.Unmarshal([]byte(`{"type":1,"msgid":7}`), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := ev.Validate(); err == nil {
		t.Fatalf("expected missing sender to fail validation")
	}
	ev.Sender = "wxid_a"
	if err := ev.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(ev.MsgID) != "7" {
		t.Fatalf("numeric msgid should decode as string, got %q", ev.MsgID)
	}
}

func TestEventFlags(t *testing.T) {
	t.Parallel()

	var ev Event
	if err := json.Unmarshal([]byte(`{"type":1,"sender":"1@chatroom","msgid":1,"isSendMsg":"1","isSendByPhone":1}`), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !ev.IsGroup() || !ev.SentByPhone() || ev.Echo() {
		t.Fatalf("unexpected flags: %+v", ev)
	}
	ev.IsSendByPhone = false
	if !ev.Echo() {
		t.Fatalf("expected echo")
	}
}

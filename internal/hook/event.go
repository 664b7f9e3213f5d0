package hook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Kind is the normalized classification of a raw event.
type Kind string

const (
	KindText          Kind = "text"
	KindImage         Kind = "image"
	KindVoice         Kind = "voice"
	KindVideo         Kind = "video"
	KindFile          Kind = "file"
	KindSticker       Kind = "sticker"
	KindLocation      Kind = "location"
	KindShare         Kind = "share"
	KindCard          Kind = "card"
	KindFriendRequest Kind = "friend_request"
	KindTransfer      Kind = "transfer"
	KindRevoke        Kind = "revoke"
	KindSystem        Kind = "system"
	KindEventNotify   Kind = "eventnotify"
	KindUnknown       Kind = "unknown"
)

var numericKinds = map[int]Kind{
	1:     KindText,
	3:     KindImage,
	34:    KindVoice,
	37:    KindFriendRequest,
	42:    KindCard,
	43:    KindVideo,
	47:    KindSticker,
	48:    KindLocation,
	51:    KindEventNotify,
	10000: KindSystem,
	10002: KindRevoke,
}

var namedKinds = map[string]Kind{
	"text":            KindText,
	"image":           KindImage,
	"voice":           KindVoice,
	"video":           KindVideo,
	"file":            KindFile,
	"sticker":         KindSticker,
	"animatedsticker": KindSticker,
	"location":        KindLocation,
	"share":           KindShare,
	"app":             KindShare,
	"card":            KindCard,
	"friend_request":  KindFriendRequest,
	"frdver":          KindFriendRequest,
	"transfer":        KindTransfer,
	"revoke":          KindRevoke,
	"revokemsg":       KindRevoke,
	"system":          KindSystem,
	"sysmsg":          KindSystem,
	"eventnotify":     KindEventNotify,
}

var appTypePattern = regexp.MustCompile(`<type>\s*(\d+)\s*</type>`)

// FlexString accepts a JSON string or number.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	*f = FlexString(n.String())
	return nil
}

// FlexBool accepts true/false, 0/1 and their string forms.
type FlexBool bool

func (f *FlexBool) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	switch strings.ToLower(raw) {
	case "", "null", "0", "false":
		*f = false
	case "1", "true":
		*f = true
	default:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid bool %q", raw)
		}
		*f = n != 0
	}
	return nil
}

// Event is a raw message record pushed by the hook. Type is either the
// WeChat numeric message type or a symbolic name.
type Event struct {
	Type          FlexString `json:"type" validate:"required"`
	Sender        string     `json:"sender" validate:"required"`
	Message       string     `json:"message"`
	MsgID         FlexString `json:"msgid" validate:"required"`
	Wxid          string     `json:"wxid"`
	FilePath      string     `json:"filepath"`
	ThumbPath     string     `json:"thumb_path"`
	Self          string     `json:"self"`
	IsSendMsg     FlexBool   `json:"isSendMsg"`
	IsSendByPhone FlexBool   `json:"isSendByPhone"`
	Time          string     `json:"time"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validate checks the required fields.
func (e Event) Validate() error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	if err := validate.Struct(e); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}
	return nil
}

// Kind classifies the event. App messages (type 49) are refined by the
// embedded <type> element: 2000 is a transfer, 6 a file, anything else a share.
func (e Event) Kind() Kind {
	raw := strings.TrimSpace(string(e.Type))
	if code, err := strconv.Atoi(raw); err == nil {
		if code == 49 {
			return appKind(e.Message)
		}
		if k, ok := numericKinds[code]; ok {
			return k
		}
		return KindUnknown
	}
	name := strings.ToLower(raw)
	name = strings.TrimSuffix(name, "_msg")
	if k, ok := namedKinds[name]; ok {
		if k == KindShare {
			return appKind(e.Message)
		}
		return k
	}
	return KindUnknown
}

// IsAnimatedSticker reports a sticker declared by symbolic name as animated.
func (e Event) IsAnimatedSticker() bool {
	return strings.EqualFold(strings.TrimSpace(string(e.Type)), "animatedsticker")
}

// IsGroup reports whether the event was posted in a chatroom.
func (e Event) IsGroup() bool {
	return strings.Contains(e.Sender, "@chatroom")
}

// SentByPhone reports a message the account owner sent from another device.
func (e Event) SentByPhone() bool {
	return bool(e.IsSendMsg) && bool(e.IsSendByPhone)
}

// Echo reports the hook echoing back a message this client sent itself.
func (e Event) Echo() bool {
	return bool(e.IsSendMsg) && !bool(e.IsSendByPhone)
}

func appKind(message string) Kind {
	m := appTypePattern.FindStringSubmatch(message)
	if m == nil {
		return KindShare
	}
	switch m[1] {
	case "2000":
		return KindTransfer
	case "6":
		return KindFile
	default:
		return KindShare
	}
}

// Package hook is a client for the ComWeChat HTTP hook that drives the desktop WeChat client.
package hook

import (
	"encoding/json"
	"strconv"
	"strings"
)

// APIType is the numeric operation selector passed as ?type=N.
type APIType int

const (
	APIIsLogin           APIType = 0
	APISelfInfo          APIType = 1
	APISendText          APIType = 2
	APISendAt            APIType = 3
	APISendCard          APIType = 4
	APISendImage         APIType = 5
	APISendFile          APIType = 6
	APIStartHook         APIType = 9
	APIVoiceSavePath     APIType = 11
	APIImageSavePath     APIType = 13
	APIAddContactByWxid  APIType = 20
	APIAddContactByV3    APIType = 21
	APIVerifyApply       APIType = 23
	APIChatroomMembers   APIType = 25
	APIMemberNickname    APIType = 26
	APIAddChatroomMember APIType = 28
	APISetChatroomName   APIType = 30
	APIDBHandles         APIType = 32
	APIQueryDatabase     APIType = 34
	APISetVersion        APIType = 35
	APIForwardMessage    APIType = 40
	APIQRCode            APIType = 41
	APISendXML           APIType = 43
	APIGetTransfer       APIType = 45
	APISendEmotion       APIType = 46
)

// Result is the common response envelope. Msg is the status indicator: 0 means failure.
type Result struct {
	Msg    json.RawMessage `json:"msg,omitempty"`
	Result string          `json:"result,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Status parses Msg as an integer. ok is false when the field is absent or malformed.
func (r Result) Status() (int, bool) {
	raw := strings.Trim(strings.TrimSpace(string(r.Msg)), `"`)
	if raw == "" || raw == "null" {
		return 0, false
	}
	if raw == "true" {
		return 1, true
	}
	if raw == "false" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Failed reports a present status equal to zero. An absent or malformed status is not a failure.
func (r Result) Failed() bool {
	status, ok := r.Status()
	return ok && status == 0
}

// Succeeded reports a present, non-zero status.
func (r Result) Succeeded() bool {
	status, ok := r.Status()
	return ok && status != 0
}

// SelfInfo describes the logged-in account.
type SelfInfo struct {
	Wxid     string `json:"wxId"`
	Number   string `json:"wxNumber"`
	Nickname string `json:"wxNickName"`
	FilePath string `json:"wxFilePath"`
}

// Contact is a row of the local contact table.
type Contact struct {
	Wxid     string `json:"wxid"`
	Alias    string `json:"alias"`
	Type     int    `json:"type"`
	Nickname string `json:"nickname"`
	Remark   string `json:"remark"`
}

// DisplayName renders "remark(nickname)" when a remark is set, else the nickname.
func (c Contact) DisplayName() string {
	if c.Remark != "" {
		return c.Remark + "(" + c.Nickname + ")"
	}
	return c.Nickname
}

// IsGroup reports whether the contact is a chatroom.
func (c Contact) IsGroup() bool {
	return strings.Contains(c.Wxid, "@chatroom")
}

// Listed reports whether the contact belongs to the friend/group listings.
// Types 0 and 4 are strangers and group-only members.
func (c Contact) Listed() bool {
	return c.Type != 0 && c.Type != 4
}

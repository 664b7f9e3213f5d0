package comwechat

import (
	"encoding/xml"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var errMissingField = errors.New("missing required field")

func decodeXML(raw string, v any) error {
	dec := xml.NewDecoder(strings.NewReader(strings.TrimSpace(raw)))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity
	return dec.Decode(v)
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s", errMissingField, field)
	}
	return nil
}

// transferNotice is a received money transfer.
type transferNotice struct {
	Money         string
	TransactionID string
	TransferID    string
}

var transferMoneyPattern = regexp.MustCompile(`收到转账(.*?)元`)

func parseTransfer(raw string) (transferNotice, error) {
	var doc struct {
		AppMsg struct {
			Des     string `xml:"des"`
			PayInfo struct {
				FeeDesc       string `xml:"feedesc"`
				TransactionID string `xml:"transcationid"`
				TransferID    string `xml:"transferid"`
			} `xml:"wcpayinfo"`
		} `xml:"appmsg"`
	}
	if err := decodeXML(raw, &doc); err != nil {
		return transferNotice{}, fmt.Errorf("parse transfer: %w", err)
	}
	info := doc.AppMsg.PayInfo
	out := transferNotice{
		TransactionID: strings.TrimSpace(info.TransactionID),
		TransferID:    strings.TrimSpace(info.TransferID),
	}
	if m := transferMoneyPattern.FindStringSubmatch(doc.AppMsg.Des); m != nil {
		out.Money = m[1]
	} else if m := transferMoneyPattern.FindStringSubmatch(raw); m != nil {
		out.Money = m[1]
	} else {
		out.Money = strings.TrimLeft(strings.TrimSpace(info.FeeDesc), "￥¥")
	}
	if err := errors.Join(
		required("money", out.Money),
		required("transcationid", out.TransactionID),
		required("transferid", out.TransferID),
	); err != nil {
		return transferNotice{}, err
	}
	return out, nil
}

// friendRequest is an incoming contact request.
type friendRequest struct {
	FromNickname string `xml:"fromnickname,attr"`
	Content      string `xml:"content,attr"`
	HeadImgURL   string `xml:"bigheadimgurl,attr"`
	V3           string `xml:"encryptusername,attr"`
	V4           string `xml:"ticket,attr"`
}

func parseFriendRequest(raw string) (friendRequest, error) {
	var req friendRequest
	if err := decodeXML(raw, &req); err != nil {
		return friendRequest{}, fmt.Errorf("parse friend request: %w", err)
	}
	if !strings.HasPrefix(req.V3, "v3") {
		return friendRequest{}, fmt.Errorf("%w: encryptusername", errMissingField)
	}
	if !strings.HasPrefix(req.V4, "v4") {
		return friendRequest{}, fmt.Errorf("%w: ticket", errMissingField)
	}
	return req, nil
}

func (r friendRequest) Text() string {
	return "好友申请:\n" +
		"名字: " + r.FromNickname + "\n" +
		"验证内容: " + r.Content + "\n" +
		"头像: " + r.HeadImgURL
}

// contactCard is a shared contact.
type contactCard struct {
	Username   string `xml:"username,attr"`
	Nickname   string `xml:"nickname,attr"`
	Province   string `xml:"province,attr"`
	City       string `xml:"city,attr"`
	Sex        string `xml:"sex,attr"`
	HeadImgURL string `xml:"bigheadimgurl,attr"`
}

func parseCard(raw string) (contactCard, error) {
	var card contactCard
	if err := decodeXML(raw, &card); err != nil {
		return contactCard{}, fmt.Errorf("parse card: %w", err)
	}
	if err := required("username", card.Username); err != nil {
		return contactCard{}, err
	}
	return card, nil
}

func (c contactCard) Text() string {
	var b strings.Builder
	b.WriteString("名片信息:\n")
	if c.Nickname != "" {
		b.WriteString("昵称: " + c.Nickname + "\n")
	}
	if c.City != "" {
		b.WriteString("城市: " + c.City + "\n")
	}
	if c.Province != "" {
		b.WriteString("省份: " + c.Province + "\n")
	}
	switch c.Sex {
	case "0":
		b.WriteString("性别: 未知\n")
	case "1":
		b.WriteString("性别: 男\n")
	case "2":
		b.WriteString("性别: 女\n")
	}
	if c.HeadImgURL != "" {
		b.WriteString("头像: " + c.HeadImgURL + "\n")
	}
	return b.String()
}

// CanAdd reports whether the card carries an encrypted id usable for a friend request.
func (c contactCard) CanAdd() bool {
	return strings.Contains(c.Username, "v3")
}

func parseRevoke(raw string) (string, error) {
	var doc struct {
		Revoke struct {
			NewMsgID string `xml:"newmsgid"`
		} `xml:"revokemsg"`
	}
	if err := decodeXML(raw, &doc); err != nil {
		return "", fmt.Errorf("parse revoke: %w", err)
	}
	id := strings.TrimSpace(doc.Revoke.NewMsgID)
	if err := required("newmsgid", id); err != nil {
		return "", err
	}
	return id, nil
}

// appMessage is the shared part of type 49 app messages.
type appMessage struct {
	Title string `xml:"appmsg>title"`
	Des   string `xml:"appmsg>des"`
	URL   string `xml:"appmsg>url"`
	Type  string `xml:"appmsg>type"`
}

func parseAppMessage(raw string) (appMessage, error) {
	var msg appMessage
	if err := decodeXML(raw, &msg); err != nil {
		return appMessage{}, fmt.Errorf("parse app message: %w", err)
	}
	return msg, nil
}

type location struct {
	X       string `xml:"x,attr"`
	Y       string `xml:"y,attr"`
	Label   string `xml:"label,attr"`
	PoiName string `xml:"poiname,attr"`
}

func parseLocation(raw string) (location, error) {
	var doc struct {
		Location location `xml:"location"`
	}
	if err := decodeXML(raw, &doc); err != nil {
		return location{}, fmt.Errorf("parse location: %w", err)
	}
	return doc.Location, nil
}

func (l location) Text() string {
	parts := make([]string, 0, 2)
	if l.PoiName != "" {
		parts = append(parts, l.PoiName)
	}
	if l.Label != "" && l.Label != l.PoiName {
		parts = append(parts, l.Label)
	}
	return strings.Join(parts, "\n")
}

var clientMsgIDPattern = regexp.MustCompile(`clientmsgid="(.*?)"`)

func voiceClientMsgID(raw string) string {
	m := clientMsgIDPattern.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

var cdnURLPattern = regexp.MustCompile(`cdnurl\s*=\s*"(.*?)"`)

func stickerURL(raw string) string {
	m := cdnURLPattern.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	return strings.ReplaceAll(m[1], "&amp;", "&")
}

package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrNotLoggedIn is returned by calls that need an active WeChat session.
var ErrNotLoggedIn = errors.New("wechat is not logged in")

// Client is the set of hook operations used by the adapter.
type Client interface {
	IsLogin(ctx context.Context) (bool, error)
	QRCode(ctx context.Context) ([]byte, error)
	SelfInfo(ctx context.Context) (SelfInfo, error)
	SetVersion(ctx context.Context, version string) (Result, error)
	SetSavePath(ctx context.Context, api APIType, path string) (Result, error)
	StartHook(ctx context.Context, callbackURL string) (Result, error)

	SendText(ctx context.Context, wxid, msg string) (Result, error)
	SendAt(ctx context.Context, chatroomID, wxids, msg string) (Result, error)
	SendCard(ctx context.Context, receiver, sharedWxid, nickname string) (Result, error)
	SendImage(ctx context.Context, receiver, imgPath string) (Result, error)
	SendFile(ctx context.Context, receiver, filePath string) (Result, error)
	SendEmotion(ctx context.Context, wxid, imgPath string) (Result, error)
	SendXML(ctx context.Context, wxid, xml, imgPath string) (Result, error)
	ForwardMessage(ctx context.Context, wxid, msgid string) (Result, error)

	SetChatroomName(ctx context.Context, chatroomID, name string) (Result, error)
	ChatroomMembers(ctx context.Context, chatroomID string) ([]string, error)
	ChatroomMemberNickname(ctx context.Context, chatroomID, wxid string) (string, error)
	AddChatroomMember(ctx context.Context, chatroomID, wxids string) (Result, error)
	AddContactByWxid(ctx context.Context, wxid, msg string) (Result, error)
	AddContactByV3(ctx context.Context, v3, msg string) (Result, error)
	VerifyApply(ctx context.Context, v3, v4 string) (Result, error)
	GetTransfer(ctx context.Context, transactionID, transferID, wxid string) (Result, error)

	DBHandle(ctx context.Context, name string) (int64, error)
	QueryDatabase(ctx context.Context, handle int64, sql string) ([][]string, error)
}

// HTTPClient talks to the hook's local HTTP API.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPClient creates a client for baseURL (for example http://127.0.0.1:18888/api/).
func NewHTTPClient(log *slog.Logger, baseURL string, timeout time.Duration) *HTTPClient {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL:    strings.TrimSpace(baseURL),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.With(slog.String("component", "hook")),
	}
}

func (c *HTTPClient) endpoint(api APIType) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse hook base url: %w", err)
	}
	q := u.Query()
	q.Set("type", strconv.Itoa(int(api)))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// post sends payload and returns the raw body.
func (c *HTTPClient) post(ctx context.Context, api APIType, payload any) ([]byte, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	endpoint, err := c.endpoint(api)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hook request type=%d: %w", api, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("hook error", slog.Int("type", int(api)), slog.Int("status", resp.StatusCode), slog.String("body_prefix", truncate(string(respBody), 300)))
		return nil, fmt.Errorf("hook error type=%d: status %d", api, resp.StatusCode)
	}
	return respBody, nil
}

// call posts payload and decodes the envelope. When out is non-nil the body is
// decoded into it as well, for endpoints that return fields outside the envelope.
func (c *HTTPClient) call(ctx context.Context, api APIType, payload any, out any) (Result, error) {
	body, err := c.post(ctx, api, payload)
	if err != nil {
		return Result{}, err
	}
	var res Result
	if err := json.Unmarshal(body, &res); err != nil {
		c.logger.Error("hook response parse failed", slog.Int("type", int(api)), slog.String("body_prefix", truncate(string(body), 300)), slog.Any("error", err))
		return Result{}, fmt.Errorf("failed to parse hook response: %w", err)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return res, fmt.Errorf("failed to parse hook response: %w", err)
		}
	}
	return res, nil
}

func (c *HTTPClient) IsLogin(ctx context.Context) (bool, error) {
	var out struct {
		IsLogin int `json:"is_login"`
	}
	if _, err := c.call(ctx, APIIsLogin, nil, &out); err != nil {
		return false, err
	}
	return out.IsLogin == 1, nil
}

// QRCode returns the login QR code image. A nil slice means the hook answered
// with a JSON envelope instead, which it does once the session is logged in.
func (c *HTTPClient) QRCode(ctx context.Context) ([]byte, error) {
	body, err := c.post(ctx, APIQRCode, nil)
	if err != nil {
		return nil, err
	}
	var res Result
	if json.Unmarshal(body, &res) == nil && strings.EqualFold(res.Result, "OK") {
		return nil, nil
	}
	return body, nil
}

func (c *HTTPClient) SelfInfo(ctx context.Context) (SelfInfo, error) {
	res, err := c.call(ctx, APISelfInfo, nil, nil)
	if err != nil {
		return SelfInfo{}, err
	}
	var info SelfInfo
	if err := decodeData(res.Data, &info); err != nil {
		return SelfInfo{}, fmt.Errorf("decode self info: %w", err)
	}
	if info.Wxid == "" {
		return SelfInfo{}, ErrNotLoggedIn
	}
	return info, nil
}

func (c *HTTPClient) SetVersion(ctx context.Context, version string) (Result, error) {
	return c.call(ctx, APISetVersion, map[string]any{"version": version}, nil)
}

func (c *HTTPClient) SetSavePath(ctx context.Context, api APIType, path string) (Result, error) {
	if api != APIImageSavePath && api != APIVoiceSavePath {
		return Result{}, fmt.Errorf("unsupported save path api: %d", api)
	}
	return c.call(ctx, api, map[string]any{"save_path": path}, nil)
}

func (c *HTTPClient) StartHook(ctx context.Context, callbackURL string) (Result, error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return Result{}, fmt.Errorf("parse callback url: %w", err)
	}
	port, _ := strconv.Atoi(u.Port())
	return c.call(ctx, APIStartHook, map[string]any{
		"port":    port,
		"ip":      u.Hostname(),
		"url":     callbackURL,
		"timeout": "3000",
	}, nil)
}

func (c *HTTPClient) SendText(ctx context.Context, wxid, msg string) (Result, error) {
	return c.call(ctx, APISendText, map[string]any{"wxid": wxid, "msg": msg}, nil)
}

func (c *HTTPClient) SendAt(ctx context.Context, chatroomID, wxids, msg string) (Result, error) {
	return c.call(ctx, APISendAt, map[string]any{
		"chatroom_id":   chatroomID,
		"wxids":         wxids,
		"msg":           msg,
		"auto_nickname": 1,
	}, nil)
}

func (c *HTTPClient) SendCard(ctx context.Context, receiver, sharedWxid, nickname string) (Result, error) {
	return c.call(ctx, APISendCard, map[string]any{"receiver": receiver, "shared_wxid": sharedWxid, "nickname": nickname}, nil)
}

func (c *HTTPClient) SendImage(ctx context.Context, receiver, imgPath string) (Result, error) {
	return c.call(ctx, APISendImage, map[string]any{"receiver": receiver, "img_path": imgPath}, nil)
}

func (c *HTTPClient) SendFile(ctx context.Context, receiver, filePath string) (Result, error) {
	return c.call(ctx, APISendFile, map[string]any{"receiver": receiver, "file_path": filePath}, nil)
}

func (c *HTTPClient) SendEmotion(ctx context.Context, wxid, imgPath string) (Result, error) {
	return c.call(ctx, APISendEmotion, map[string]any{"wxid": wxid, "img_path": imgPath}, nil)
}

func (c *HTTPClient) SendXML(ctx context.Context, wxid, xml, imgPath string) (Result, error) {
	return c.call(ctx, APISendXML, map[string]any{"wxid": wxid, "xml": xml, "img_path": imgPath, "msg_type": 49}, nil)
}

func (c *HTTPClient) ForwardMessage(ctx context.Context, wxid, msgid string) (Result, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(msgid), 10, 64)
	if err != nil {
		return Result{}, fmt.Errorf("invalid msgid %q: %w", msgid, err)
	}
	return c.call(ctx, APIForwardMessage, map[string]any{"wxid": wxid, "msgid": id}, nil)
}

func (c *HTTPClient) SetChatroomName(ctx context.Context, chatroomID, name string) (Result, error) {
	return c.call(ctx, APISetChatroomName, map[string]any{"chatroom_id": chatroomID, "chatroom_name": name}, nil)
}

func (c *HTTPClient) ChatroomMembers(ctx context.Context, chatroomID string) ([]string, error) {
	var out struct {
		Members string `json:"members"`
	}
	if _, err := c.call(ctx, APIChatroomMembers, map[string]any{"chatroom_id": chatroomID}, &out); err != nil {
		return nil, err
	}
	return SplitMembers(out.Members), nil
}

func (c *HTTPClient) ChatroomMemberNickname(ctx context.Context, chatroomID, wxid string) (string, error) {
	var out struct {
		Nickname string `json:"nickname"`
	}
	if _, err := c.call(ctx, APIMemberNickname, map[string]any{"chatroom_id": chatroomID, "wxid": wxid}, &out); err != nil {
		return "", err
	}
	return out.Nickname, nil
}

func (c *HTTPClient) AddChatroomMember(ctx context.Context, chatroomID, wxids string) (Result, error) {
	return c.call(ctx, APIAddChatroomMember, map[string]any{"chatroom_id": chatroomID, "wxids": wxids}, nil)
}

func (c *HTTPClient) AddContactByWxid(ctx context.Context, wxid, msg string) (Result, error) {
	return c.call(ctx, APIAddContactByWxid, map[string]any{"wxid": wxid, "msg": msg}, nil)
}

func (c *HTTPClient) AddContactByV3(ctx context.Context, v3, msg string) (Result, error) {
	return c.call(ctx, APIAddContactByV3, map[string]any{"v3": v3, "msg": msg, "add_type": 0x6}, nil)
}

func (c *HTTPClient) VerifyApply(ctx context.Context, v3, v4 string) (Result, error) {
	return c.call(ctx, APIVerifyApply, map[string]any{"v3": v3, "v4": v4}, nil)
}

func (c *HTTPClient) GetTransfer(ctx context.Context, transactionID, transferID, wxid string) (Result, error) {
	return c.call(ctx, APIGetTransfer, map[string]any{
		"wxid":          wxid,
		"transcationid": transactionID,
		"transferid":    transferID,
	}, nil)
}

func (c *HTTPClient) DBHandle(ctx context.Context, name string) (int64, error) {
	res, err := c.call(ctx, APIDBHandles, nil, nil)
	if err != nil {
		return 0, err
	}
	var handles []struct {
		Name   string `json:"db_name"`
		Handle int64  `json:"handle"`
	}
	if err := decodeData(res.Data, &handles); err != nil {
		return 0, fmt.Errorf("decode db handles: %w", err)
	}
	for _, h := range handles {
		if h.Name == name {
			return h.Handle, nil
		}
	}
	return 0, fmt.Errorf("database %s not found", name)
}

// QueryDatabase runs sql against handle. The first returned row is the column header.
func (c *HTTPClient) QueryDatabase(ctx context.Context, handle int64, sql string) ([][]string, error) {
	res, err := c.call(ctx, APIQueryDatabase, map[string]any{"db_handle": handle, "sql": sql}, nil)
	if err != nil {
		return nil, err
	}
	if res.Failed() {
		return nil, fmt.Errorf("query database failed")
	}
	var raw [][]any
	if err := decodeData(res.Data, &raw); err != nil {
		return nil, fmt.Errorf("decode query result: %w", err)
	}
	rows := make([][]string, 0, len(raw))
	for _, r := range raw {
		row := make([]string, 0, len(r))
		for _, cell := range r {
			row = append(row, cellString(cell))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// SplitMembers splits the hook's "^G" separated member list, skipping empty ids.
func SplitMembers(raw string) []string {
	parts := strings.Split(raw, "^G")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func decodeData(raw json.RawMessage, out any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("empty data")
	}
	return json.Unmarshal(raw, out)
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

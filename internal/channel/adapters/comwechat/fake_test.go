package comwechat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/honus/comwechat/internal/channel"
	"github.com/honus/comwechat/internal/config"
	"github.com/honus/comwechat/internal/hook"
)

var (
	okResult     = hook.Result{Msg: json.RawMessage("1")}
	failedResult = hook.Result{Msg: json.RawMessage("0")}
)

// fakeClient records hook calls. Database queries are answered from the
// contact, room and voice tables.
type fakeClient struct {
	mu    sync.Mutex
	calls []string

	loggedIn bool
	self     hook.SelfInfo
	result   hook.Result

	contacts  [][]string
	rooms     [][]string
	voice     map[string]string
	members   []string
	nicknames map[string]string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		loggedIn:  true,
		self:      hook.SelfInfo{Wxid: "wxid_self", Nickname: "Me", FilePath: `C:\WeChat Files`},
		result:    okResult,
		voice:     map[string]string{},
		nicknames: map[string]string{},
	}
}

func (f *fakeClient) record(format string, args ...any) hook.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	return f.result
}

func (f *fakeClient) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeClient) IsLogin(ctx context.Context) (bool, error) { return f.loggedIn, nil }

func (f *fakeClient) QRCode(ctx context.Context) ([]byte, error) { return nil, nil }

func (f *fakeClient) SelfInfo(ctx context.Context) (hook.SelfInfo, error) { return f.self, nil }

func (f *fakeClient) SetVersion(ctx context.Context, version string) (hook.Result, error) {
	return f.record("SetVersion %s", version), nil
}

func (f *fakeClient) SetSavePath(ctx context.Context, api hook.APIType, path string) (hook.Result, error) {
	return f.record("SetSavePath %d %s", api, path), nil
}

func (f *fakeClient) StartHook(ctx context.Context, callbackURL string) (hook.Result, error) {
	return f.record("StartHook %s", callbackURL), nil
}

func (f *fakeClient) SendText(ctx context.Context, wxid, msg string) (hook.Result, error) {
	return f.record("SendText %s %s", wxid, msg), nil
}

func (f *fakeClient) SendAt(ctx context.Context, chatroomID, wxids, msg string) (hook.Result, error) {
	return f.record("SendAt %s %s %s", chatroomID, wxids, msg), nil
}

func (f *fakeClient) SendCard(ctx context.Context, receiver, sharedWxid, nickname string) (hook.Result, error) {
	return f.record("SendCard %s %s %s", receiver, sharedWxid, nickname), nil
}

func (f *fakeClient) SendImage(ctx context.Context, receiver, imgPath string) (hook.Result, error) {
	return f.record("SendImage %s %s", receiver, imgPath), nil
}

func (f *fakeClient) SendFile(ctx context.Context, receiver, filePath string) (hook.Result, error) {
	return f.record("SendFile %s %s", receiver, filePath), nil
}

func (f *fakeClient) SendEmotion(ctx context.Context, wxid, imgPath string) (hook.Result, error) {
	return f.record("SendEmotion %s %s", wxid, imgPath), nil
}

func (f *fakeClient) SendXML(ctx context.Context, wxid, xml, imgPath string) (hook.Result, error) {
	return f.record("SendXML %s %s", wxid, xml), nil
}

func (f *fakeClient) ForwardMessage(ctx context.Context, wxid, msgid string) (hook.Result, error) {
	return f.record("ForwardMessage %s %s", wxid, msgid), nil
}

func (f *fakeClient) SetChatroomName(ctx context.Context, chatroomID, name string) (hook.Result, error) {
	return f.record("SetChatroomName %s %s", chatroomID, name), nil
}

func (f *fakeClient) ChatroomMembers(ctx context.Context, chatroomID string) ([]string, error) {
	return f.members, nil
}

func (f *fakeClient) ChatroomMemberNickname(ctx context.Context, chatroomID, wxid string) (string, error) {
	return f.nicknames[wxid], nil
}

func (f *fakeClient) AddChatroomMember(ctx context.Context, chatroomID, wxids string) (hook.Result, error) {
	return f.record("AddChatroomMember %s %s", chatroomID, wxids), nil
}

func (f *fakeClient) AddContactByWxid(ctx context.Context, wxid, msg string) (hook.Result, error) {
	return f.record("AddContactByWxid %s %s", wxid, msg), nil
}

func (f *fakeClient) AddContactByV3(ctx context.Context, v3, msg string) (hook.Result, error) {
	return f.record("AddContactByV3 %s", v3), nil
}

func (f *fakeClient) VerifyApply(ctx context.Context, v3, v4 string) (hook.Result, error) {
	return f.record("VerifyApply %s %s", v3, v4), nil
}

func (f *fakeClient) GetTransfer(ctx context.Context, transactionID, transferID, wxid string) (hook.Result, error) {
	return f.record("GetTransfer %s %s %s", transactionID, transferID, wxid), nil
}

func (f *fakeClient) DBHandle(ctx context.Context, name string) (int64, error) {
	if name == hook.DBMediaMsg0 {
		return 2, nil
	}
	return 1, nil
}

func (f *fakeClient) QueryDatabase(ctx context.Context, handle int64, sql string) ([][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case strings.Contains(sql, "FROM ChatRoom"):
		return append([][]string{{"ChatRoomName", "UserNameList", "DisplayNameList"}}, f.rooms...), nil
	case strings.Contains(sql, "FROM Contact WHERE"):
		for _, row := range f.contacts {
			if strings.Contains(sql, hook.QuoteSQL(row[0])) {
				return [][]string{{"UserName"}, row}, nil
			}
		}
		return [][]string{{"UserName"}}, nil
	case strings.Contains(sql, "FROM Contact"):
		return append([][]string{{"UserName", "Alias", "Type", "NickName", "Remark"}}, f.contacts...), nil
	case strings.Contains(sql, "FROM Media"):
		for id, blob := range f.voice {
			if strings.HasSuffix(sql, id) {
				return [][]string{{"Buf"}, {blob}}, nil
			}
		}
		return [][]string{{"Buf"}}, nil
	}
	return nil, fmt.Errorf("unexpected query %q", sql)
}

type fakeCoordinator struct {
	mu       sync.Mutex
	messages []channel.Message
	statuses []channel.Status
}

func (f *fakeCoordinator) Deliver(ctx context.Context, msg channel.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeCoordinator) DeliverStatus(ctx context.Context, status channel.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeCoordinator) Messages() []channel.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]channel.Message(nil), f.messages...)
}

func (f *fakeCoordinator) Statuses() []channel.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]channel.Status(nil), f.statuses...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestAdapter returns a logged-in adapter wired to fakes, without the
// background workers that Connect starts.
func newTestAdapter(t *testing.T, client *fakeClient) (*Adapter, *fakeCoordinator) {
	t.Helper()
	a, err := NewAdapter(discardLogger(), client, Options{
		Dir:           t.TempDir(),
		PathMode:      config.PathModeNative,
		CommandSecret: "test-secret",
		CardAddFriend: true,
	})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	coord := &fakeCoordinator{}
	a.mu.Lock()
	a.self = client.self
	a.basePath = client.self.FilePath
	a.coord = coord
	a.mu.Unlock()
	if err := a.directory.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh directory: %v", err)
	}
	return a, coord
}

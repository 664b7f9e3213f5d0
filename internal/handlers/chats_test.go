package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/honus/comwechat/internal/channel"
)

type fakeDirectory []channel.Chat

func (f fakeDirectory) Chats(ctx context.Context) ([]channel.Chat, error) {
	return f, nil
}

func (f fakeDirectory) Chat(ctx context.Context, id string) (channel.Chat, error) {
	for _, c := range f {
		if c.ID == id {
			return c, nil
		}
	}
	return channel.Chat{}, channel.ErrChatNotFound
}

func TestChatsHandler(t *testing.T) {
	t.Parallel()

	e := echo.New()
	NewChatsHandler(fakeDirectory{
		{ID: "wxid_a", Type: channel.ConversationPrivate, Name: "Alice"},
		{ID: "1@chatroom", Type: channel.ConversationGroup, Name: "Family"},
	}).Register(e)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/chats")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []channel.Chat
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)

	rec = get("/chats?type=group")
	var groups []channel.Chat
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &groups))
	require.Len(t, groups, 1)
	assert.Equal(t, "Family", groups[0].Name)

	rec = get("/chats/wxid_a")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Alice"`)

	assert.Equal(t, http.StatusNotFound, get("/chats/wxid_missing").Code)
}

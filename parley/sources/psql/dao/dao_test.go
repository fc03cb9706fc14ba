package dao

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"parley/parley/sources/psql"
	"parley/parley/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
)

func setupStore(t *testing.T) (*Store, *DeviceDAO) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := psql.Open(context.Background(), sqlite.Open(dsn))
	require.NoError(t, err)
	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(db.Close)
	return NewStore(db.DB), NewDeviceDAO(db.DB)
}

func TestListChatsIsOwnerScopedNewestFirst(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	first, err := s.CreateChat(ctx, "alice", types.DefaultChatTitle)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := s.CreateChat(ctx, "alice", "Groceries")
	require.NoError(t, err)
	_, err = s.CreateChat(ctx, "bob", types.DefaultChatTitle)
	require.NoError(t, err)

	chats, err := s.ListChats(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, second.ID, chats[0].ID)
	assert.Equal(t, first.ID, chats[1].ID)
	for _, c := range chats {
		assert.Equal(t, "alice", c.UserID)
	}

	again, err := s.ListChats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, chats, again)
}

func TestGetChatHidesForeignChats(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	chat, err := s.CreateChat(ctx, "alice", types.DefaultChatTitle)
	require.NoError(t, err)

	got, err := s.GetChat(ctx, "bob", chat.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = s.GetChat(ctx, "alice", chat.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, types.DefaultChatTitle, got.Title)
}

func TestDeleteChatCascadesMessages(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	chat, err := s.CreateChat(ctx, "alice", types.DefaultChatTitle)
	require.NoError(t, err)
	_, err = s.SaveMessage(ctx, chat.ID, types.RoleUser, "hi")
	require.NoError(t, err)
	_, err = s.SaveMessage(ctx, chat.ID, types.RoleAssistant, "hello")
	require.NoError(t, err)

	ok, err := s.DeleteChat(ctx, "bob", chat.ID)
	require.NoError(t, err)
	assert.False(t, ok, "foreign owner must not delete")

	ok, err = s.DeleteChat(ctx, "alice", chat.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	msgs, err := s.ListMessages(ctx, chat.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	got, err := s.GetChat(ctx, "alice", chat.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRenameChatIsConditional(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	chat, err := s.CreateChat(ctx, "alice", types.DefaultChatTitle)
	require.NoError(t, err)

	ok, err := s.RenameChat(ctx, "alice", chat.ID, types.DefaultChatTitle, "Weekend plans")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.RenameChat(ctx, "alice", chat.ID, types.DefaultChatTitle, "Something else")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.DeleteChat(ctx, "alice", chat.ID)
	require.NoError(t, err)
	ok, err = s.RenameChat(ctx, "alice", chat.ID, "Weekend plans", "Ghost")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMessagesOrderedAndScopedDelete(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	chat, err := s.CreateChat(ctx, "alice", types.DefaultChatTitle)
	require.NoError(t, err)
	other, err := s.CreateChat(ctx, "alice", types.DefaultChatTitle)
	require.NoError(t, err)

	var ids []string
	for _, content := range []string{"one", "two", "three"} {
		m, err := s.SaveMessage(ctx, chat.ID, types.RoleUser, content)
		require.NoError(t, err)
		ids = append(ids, m.ID)
		time.Sleep(time.Millisecond)
	}

	msgs, err := s.ListMessages(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "three", msgs[2].Content)

	ok, err := s.DeleteMessage(ctx, other.ID, ids[1])
	require.NoError(t, err)
	assert.False(t, ok, "delete is scoped to the chat")

	ok, err = s.DeleteMessage(ctx, chat.ID, ids[1])
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.DeleteMessage(ctx, chat.ID, ids[1])
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.SaveMessage(ctx, chat.ID, types.Role("system"), "nope")
	assert.ErrorIs(t, err, types.ErrInvalidRole)
}

func TestTouchDevice(t *testing.T) {
	_, devices := setupStore(t)
	ctx := context.Background()

	d1, err := devices.TouchDevice(ctx, "device-1")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	d2, err := devices.TouchDevice(ctx, "device-1")
	require.NoError(t, err)

	assert.True(t, d1.FirstSeen.Equal(d2.FirstSeen))
	assert.True(t, d2.LastSeen.After(d1.LastSeen))
}

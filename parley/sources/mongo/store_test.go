package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"parley/parley/config"
	"parley/parley/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupStore connects to the server named by MONGO_TEST_URI and uses a
// throwaway database that is dropped afterwards.
func setupStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := NewDatabase(ctx, config.Config{MongoURI: uri, MongoDB: "parley_test_" + uuid.NewString()[:8]})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.DB.Drop(context.Background())
		db.Close()
	})
	require.NoError(t, db.Ping(ctx))
	return NewStore(db)
}

func TestStoreChats(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	first, err := s.CreateChat(ctx, "alice", types.DefaultChatTitle)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := s.CreateChat(ctx, "alice", "Groceries")
	require.NoError(t, err)
	_, err = s.CreateChat(ctx, "bob", types.DefaultChatTitle)
	require.NoError(t, err)

	chats, err := s.ListChats(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, second.ID, chats[0].ID)
	assert.Equal(t, first.ID, chats[1].ID)

	got, err := s.GetChat(ctx, "bob", first.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	ok, err := s.RenameChat(ctx, "alice", first.ID, types.DefaultChatTitle, "Trip plans")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.RenameChat(ctx, "alice", first.ID, types.DefaultChatTitle, "Other")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreMessagesAndCascade(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	chat, err := s.CreateChat(ctx, "alice", types.DefaultChatTitle)
	require.NoError(t, err)
	user, err := s.SaveMessage(ctx, chat.ID, types.RoleUser, "Hello")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = s.SaveMessage(ctx, chat.ID, types.RoleAssistant, "Hi there!")
	require.NoError(t, err)
	_, err = s.SaveMessage(ctx, chat.ID, types.Role("system"), "nope")
	assert.ErrorIs(t, err, types.ErrInvalidRole)

	msgs, err := s.ListMessages(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hello", msgs[0].Content)

	ok, err := s.DeleteMessage(ctx, "other-chat", user.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.DeleteMessage(ctx, chat.ID, user.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.DeleteChat(ctx, "bob", chat.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.DeleteChat(ctx, "alice", chat.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	msgs, err = s.ListMessages(ctx, chat.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestTouchDevice(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	d1, err := s.TouchDevice(ctx, "device-1")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	d2, err := s.TouchDevice(ctx, "device-1")
	require.NoError(t, err)
	assert.Equal(t, d1.FirstSeen.Unix(), d2.FirstSeen.Unix())
	assert.False(t, d2.LastSeen.Before(d1.LastSeen))
}

func TestMessagesKeepCreationOrderWithinOneMillisecond(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	chat, err := s.CreateChat(ctx, "alice", types.DefaultChatTitle)
	require.NoError(t, err)
	var want []string
	for i := 0; i < 20; i++ {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleAssistant
		}
		m, err := s.SaveMessage(ctx, chat.ID, role, "")
		require.NoError(t, err)
		want = append(want, m.ID)
	}

	msgs, err := s.ListMessages(ctx, chat.ID)
	require.NoError(t, err)
	var got []string
	for _, m := range msgs {
		got = append(got, m.ID)
	}
	assert.Equal(t, want, got)
}

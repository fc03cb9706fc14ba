package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"parley/parley/config"
	"parley/parley/controllers"
	"parley/parley/realtime"
	"parley/parley/services/llm/llmtest"
	"parley/parley/services/titles"
	"parley/parley/sources/psql"
	"parley/parley/sources/psql/dao"
	"parley/parley/types"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
)

func newServer(t *testing.T, cfg config.Config, fake *llmtest.Fake) *httptest.Server {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := psql.Open(context.Background(), sqlite.Open(dsn))
	require.NoError(t, err)
	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	prompts, err := config.LoadPrompts("")
	require.NoError(t, err)
	hub := realtime.NewHub()
	chat := controllers.NewChatController(dao.NewStore(db.DB), fake, titles.NewGenerator(fake, "m", prompts), hub,
		controllers.ChatOptions{Model: "m"})

	srv := httptest.NewServer(NewRouter(Handlers{
		Chat:   chat,
		Auth:   controllers.NewAuthController(dao.NewDeviceDAO(db.DB), cfg),
		Health: controllers.NewHealthController(db),
		Hub:    hub,
	}, cfg))
	t.Cleanup(func() {
		srv.Close()
		chat.Wait()
		db.Close()
	})
	return srv
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, srv *httptest.Server, query string) *wsClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?"+query, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(event string, data interface{}) {
	c.t.Helper()
	frame, err := realtime.Encode(event, data)
	require.NoError(c.t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(c.t, c.conn.Write(ctx, websocket.MessageText, frame))
}

// readUntil returns every envelope received up to and including the first
// one named event.
func (c *wsClient) readUntil(event string) []realtime.Envelope {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var got []realtime.Envelope
	for {
		_, data, err := c.conn.Read(ctx)
		require.NoError(c.t, err, "waiting for %s", event)
		var env realtime.Envelope
		require.NoError(c.t, json.Unmarshal(data, &env))
		got = append(got, env)
		if env.Event == event {
			return got
		}
	}
}

func last(envs []realtime.Envelope) realtime.Envelope {
	return envs[len(envs)-1]
}

func TestWebsocketConversation(t *testing.T) {
	fake := &llmtest.Fake{Chunks: []string{"Hi", " there"}, Title: "Greeting"}
	srv := newServer(t, config.Config{}, fake)
	c := dial(t, srv, "userId=alice")

	c.send(realtime.EventListChats, nil)
	assert.JSONEq(t, `[]`, string(last(c.readUntil(realtime.EventChatsList)).Data))

	c.send(realtime.EventCreateChat, nil)
	var chat types.Chat
	require.NoError(t, last(c.readUntil(realtime.EventChatCreated)).Decode(&chat))
	assert.Equal(t, types.DefaultChatTitle, chat.Title)

	c.send(realtime.EventJoinChat, chat.ID)
	var history realtime.ChatHistory
	require.NoError(t, last(c.readUntil(realtime.EventChatHistory)).Decode(&history))
	assert.Empty(t, history.Messages)

	c.send(realtime.EventUserMessage, realtime.UserMessageRequest{ChatID: chat.ID, Content: "Hello"})
	frames := c.readUntil(realtime.EventStreamEnd)
	var streamed strings.Builder
	var sawList bool
	for _, env := range frames {
		switch env.Event {
		case realtime.EventStreamChunk:
			var f realtime.StreamFrame
			require.NoError(t, env.Decode(&f))
			streamed.WriteString(f.Chunk)
		case realtime.EventChatsList:
			sawList = true
		}
	}
	assert.Equal(t, realtime.EventStreamStart, frames[0].Event)
	assert.Equal(t, "Hi there", streamed.String())

	var chats []types.Chat
	if sawList {
		for _, env := range frames {
			if env.Event == realtime.EventChatsList {
				require.NoError(t, env.Decode(&chats))
			}
		}
	} else {
		require.NoError(t, last(c.readUntil(realtime.EventChatsList)).Decode(&chats))
	}
	require.Len(t, chats, 1)
	assert.Equal(t, "Greeting", chats[0].Title)

	c.send(realtime.EventJoinChat, chat.ID)
	require.NoError(t, last(c.readUntil(realtime.EventChatHistory)).Decode(&history))
	require.Len(t, history.Messages, 2)
	assert.Equal(t, "Hi there", history.Messages[1].Content)

	// A second tab of the same user sees the broadcast delete.
	tab := dial(t, srv, "userId=alice")
	tab.send(realtime.EventJoinChat, chat.ID)
	tab.readUntil(realtime.EventChatHistory)
	c.send(realtime.EventDeleteMessage, realtime.DeleteMessageRequest{MessageID: history.Messages[0].ID, ChatID: chat.ID})
	var deleted string
	require.NoError(t, last(tab.readUntil(realtime.EventMessageDeleted)).Decode(&deleted))
	assert.Equal(t, history.Messages[0].ID, deleted)
	c.readUntil(realtime.EventMessageDeleted)

	c.send(realtime.EventDeleteChat, chat.ID)
	c.readUntil(realtime.EventChatDeleted)
	assert.JSONEq(t, `[]`, string(last(c.readUntil(realtime.EventChatsList)).Data))

	c.send(realtime.EventJoinChat, chat.ID)
	var msg string
	require.NoError(t, last(c.readUntil(realtime.EventError)).Decode(&msg))
	assert.Equal(t, realtime.ErrChatNotFound, msg)
}

func TestWebsocketRejectsBadFrames(t *testing.T) {
	srv := newServer(t, config.Config{}, &llmtest.Fake{})
	c := dial(t, srv, "userId=alice")

	ctx := context.Background()
	require.NoError(t, c.conn.Write(ctx, websocket.MessageText, []byte("not json")))
	var msg string
	require.NoError(t, last(c.readUntil(realtime.EventError)).Decode(&msg))
	assert.Equal(t, realtime.ErrInvalidPayload, msg)

	c.send("summon_dragon", nil)
	require.NoError(t, last(c.readUntil(realtime.EventError)).Decode(&msg))
	assert.Equal(t, realtime.ErrUnknownEvent, msg)

	// The connection keeps serving after errors.
	c.send(realtime.EventListChats, nil)
	c.readUntil(realtime.EventChatsList)
}

func TestWebsocketTokenAuth(t *testing.T) {
	cfg := config.Config{JWTSecret: "s3cret"}
	srv := newServer(t, cfg, &llmtest.Fake{})

	resp, err := http.Post(srv.URL+"/auth/token", "application/json", bytes.NewBufferString(`{"deviceId":"device-1"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tok types.TokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tok))
	require.NotEmpty(t, tok.Token)

	c := dial(t, srv, "token="+tok.Token)
	c.send(realtime.EventCreateChat, nil)
	var chat types.Chat
	require.NoError(t, last(c.readUntil(realtime.EventChatCreated)).Decode(&chat))
	assert.Equal(t, "device-1", chat.UserID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, res, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?token=forged", nil)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestRESTMirror(t *testing.T) {
	srv := newServer(t, config.Config{}, &llmtest.Fake{})

	get := func(path, user string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
		require.NoError(t, err)
		if user != "" {
			req.Header.Set("X-User-Id", user)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := get("/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	c := dial(t, srv, "userId=alice")
	c.send(realtime.EventCreateChat, nil)
	var chat types.Chat
	require.NoError(t, last(c.readUntil(realtime.EventChatCreated)).Decode(&chat))

	resp = get("/chats", "alice")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var chats []types.Chat
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&chats))
	require.Len(t, chats, 1)
	assert.Equal(t, chat.ID, chats[0].ID)

	assert.Equal(t, http.StatusUnauthorized, get("/chats", "").StatusCode)
	assert.Equal(t, http.StatusOK, get("/chats/"+chat.ID+"/messages", "alice").StatusCode)
	assert.Equal(t, http.StatusNotFound, get("/chats/"+chat.ID+"/messages", "bob").StatusCode)
	assert.Equal(t, http.StatusNotFound, get("/chats/"+chat.ID+"/transcript", "alice").StatusCode)

	resp, err := http.Post(srv.URL+"/auth/token", "application/json", bytes.NewBufferString(`{"deviceId":""}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOriginPatterns(t *testing.T) {
	assert.Equal(t, []string{"localhost:5173"}, originPatterns("localhost:5173"))
	assert.Equal(t, []string{"app.example.com", "localhost:5173"},
		originPatterns("https://app.example.com/, http://localhost:5173"))
	assert.Empty(t, originPatterns(""))
}

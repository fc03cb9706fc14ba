// Package client keeps a local mirror of one user's chats over the websocket
// protocol and exposes the user actions that drive it.
package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"parley/parley/realtime"
	"parley/parley/types"
	httputils "parley/parley/utils/http"
	"parley/parley/utils/logging"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

// Identity is how the client authenticates the handshake: a token when the
// server issues them, the raw device id otherwise.
type Identity struct {
	DeviceID string
	Token    string
}

// RequestToken registers deviceID with the server. The returned token is
// empty when the server runs without JWT auth.
func RequestToken(ctx context.Context, serverURL, deviceID string) (*types.TokenResponse, error) {
	var resp types.TokenResponse
	err := httputils.PostJSON(ctx, http.DefaultClient, strings.TrimSuffix(serverURL, "/")+"/auth/token",
		types.TokenRequest{DeviceID: deviceID}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

type Client struct {
	conn *websocket.Conn

	mu    sync.Mutex
	state State

	// OnEvent, when set, runs after each server event is applied, with a
	// snapshot of the resulting state. Events are delivered one at a time.
	OnEvent func(env realtime.Envelope, s State)
}

// WSURL builds the websocket endpoint for an http(s) server URL.
func WSURL(serverURL string, id Identity) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	q := url.Values{}
	if id.Token != "" {
		q.Set("token", id.Token)
	} else {
		q.Set("userId", id.DeviceID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func Dial(ctx context.Context, serverURL string, id Identity) (*Client, error) {
	wsURL, err := WSURL(serverURL, id)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(1 << 20)
	return &Client{conn: conn}, nil
}

// Run reads server events until ctx ends or the connection closes.
func (c *Client) Run(ctx context.Context) error {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return err
		}
		var env realtime.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logging.ErrorLogger.Error("decoding server frame", zap.Error(err))
			continue
		}
		c.mu.Lock()
		err = c.state.Apply(env)
		snapshot := c.state.Clone()
		c.mu.Unlock()
		if err != nil {
			logging.ErrorLogger.Error("applying server event", zap.String("event", env.Event), zap.Error(err))
			continue
		}
		if c.OnEvent != nil {
			c.OnEvent(env, snapshot)
		}
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

func (c *Client) emit(ctx context.Context, event string, data interface{}) error {
	frame, err := realtime.Encode(event, data)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, frame)
}

func (c *Client) ListChats(ctx context.Context) error {
	return c.emit(ctx, realtime.EventListChats, nil)
}

func (c *Client) CreateChat(ctx context.Context) error {
	return c.emit(ctx, realtime.EventCreateChat, nil)
}

// SelectChat activates chatID locally and asks for its history.
func (c *Client) SelectChat(ctx context.Context, chatID string) error {
	c.mu.Lock()
	c.state.activate(chatID)
	c.mu.Unlock()
	return c.emit(ctx, realtime.EventJoinChat, chatID)
}

// DeleteChat asks confirm first and sends nothing when it returns false.
func (c *Client) DeleteChat(ctx context.Context, chatID string, confirm func(chatID string) bool) (bool, error) {
	if confirm != nil && !confirm(chatID) {
		return false, nil
	}
	return true, c.emit(ctx, realtime.EventDeleteChat, chatID)
}

func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	c.mu.Lock()
	chatID := c.state.ActiveChatID
	c.mu.Unlock()
	if chatID == "" {
		return ErrNoActiveChat
	}
	return c.emit(ctx, realtime.EventDeleteMessage, realtime.DeleteMessageRequest{MessageID: messageID, ChatID: chatID})
}

// SendMessage appends the user's text optimistically and sends it. Server
// errors later never remove the optimistic message.
func (c *Client) SendMessage(ctx context.Context, content string) error {
	c.mu.Lock()
	chatID := c.state.ActiveChatID
	if chatID == "" {
		c.state.Err = ErrNoActiveChat.Error()
		c.mu.Unlock()
		return ErrNoActiveChat
	}
	c.state.Messages = append(c.state.Messages, types.Message{
		ID:        "local-" + uuid.New().String(),
		ChatID:    chatID,
		Role:      types.RoleUser,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
	c.state.Loading = true
	c.state.Typing = true
	c.mu.Unlock()
	return c.emit(ctx, realtime.EventUserMessage, realtime.UserMessageRequest{ChatID: chatID, Content: content})
}

package controllers

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"parley/parley/realtime"
	"parley/parley/services/llm"
	"parley/parley/types"
	"parley/parley/utils/logging"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ChatStore is the persistence the chat protocol needs. Both the gorm DAOs
// and the mongo store satisfy it.
type ChatStore interface {
	CreateChat(ctx context.Context, userID, title string) (*types.Chat, error)
	ListChats(ctx context.Context, userID string) ([]types.Chat, error)
	// GetChat returns nil, nil when the chat does not exist or is not owned by userID.
	GetChat(ctx context.Context, userID, chatID string) (*types.Chat, error)
	DeleteChat(ctx context.Context, userID, chatID string) (bool, error)
	RenameChat(ctx context.Context, userID, chatID, from, to string) (bool, error)
	SaveMessage(ctx context.Context, chatID string, role types.Role, content string) (*types.Message, error)
	ListMessages(ctx context.Context, chatID string) ([]types.Message, error)
	DeleteMessage(ctx context.Context, chatID, messageID string) (bool, error)
}

// Archiver keeps a copy of a chat before it is deleted.
type Archiver interface {
	ArchiveTranscript(ctx context.Context, chat types.Chat, messages []types.Message) (string, error)
}

type TitleGenerator interface {
	Generate(ctx context.Context, firstMessage string) string
}

type ChatOptions struct {
	Model        string
	SystemPrompt string
	// HistoryTurns > 0 sends up to that many earlier messages with each prompt.
	HistoryTurns int
	// Archiver is optional.
	Archiver Archiver
}

type ChatController struct {
	store  ChatStore
	llm    llm.Client
	titles TitleGenerator
	hub    *realtime.Hub
	opts   ChatOptions

	tracer   trace.Tracer
	streams  metric.Int64Counter
	chunks   metric.Int64Counter
	failures metric.Int64Counter

	// mu guards lanes and closed. A connection has a lane while its
	// user_message work is queued or running.
	mu     sync.Mutex
	lanes  map[realtime.Emitter][]func()
	closed bool
	wg     sync.WaitGroup
}

func NewChatController(store ChatStore, client llm.Client, titles TitleGenerator, hub *realtime.Hub, opts ChatOptions) *ChatController {
	c := &ChatController{
		store:  store,
		llm:    client,
		titles: titles,
		hub:    hub,
		opts:   opts,
		lanes:  make(map[realtime.Emitter][]func()),
		tracer: otel.Tracer("parley/controllers"),
	}
	meter := otel.Meter("parley/controllers")
	c.streams = counter(meter, "parley.streams", "Generation streams opened")
	c.chunks = counter(meter, "parley.stream.chunks", "Chunks forwarded to clients")
	c.failures = counter(meter, "parley.stream.failures", "Generation streams that failed")
	return c
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	ctr, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		logging.ErrorLogger.Error("creating counter", zap.String("name", name), zap.Error(err))
	}
	return ctr
}

func (c *ChatController) add(ctx context.Context, ctr metric.Int64Counter, n int64) {
	if ctr != nil {
		ctr.Add(ctx, n)
	}
}

// Close stops accepting user messages. Work already queued still runs; call
// Wait afterwards to let it finish.
func (c *ChatController) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Wait blocks until background work (streams and title renames) finishes.
func (c *ChatController) Wait() {
	c.wg.Wait()
}

// enqueue runs fn after every earlier fn queued for e, on a goroutine that
// lives as long as e's lane is non-empty. It reports false once closed.
func (c *ChatController) enqueue(e realtime.Emitter, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	queue, running := c.lanes[e]
	c.lanes[e] = append(queue, fn)
	if !running {
		c.wg.Add(1)
		go c.drain(e)
	}
	return true
}

func (c *ChatController) drain(e realtime.Emitter) {
	defer c.wg.Done()
	for {
		c.mu.Lock()
		queue := c.lanes[e]
		if len(queue) == 0 {
			delete(c.lanes, e)
			c.mu.Unlock()
			return
		}
		fn := queue[0]
		c.lanes[e] = queue[1:]
		c.mu.Unlock()
		fn()
	}
}

// Dispatch routes one inbound event. user_message is queued on the
// connection's lane, detached from ctx cancellation: replies stream one at a
// time in the order they were asked for, a stream outlives its connection and
// other events keep being served meanwhile.
func (c *ChatController) Dispatch(ctx context.Context, e realtime.Emitter, userID string, env realtime.Envelope) {
	ctx, span := c.tracer.Start(ctx, "event."+env.Event,
		trace.WithAttributes(attribute.String("event", env.Event), attribute.String("user.id", userID)))
	defer span.End()

	switch env.Event {
	case realtime.EventListChats:
		c.ListChats(ctx, e, userID)
	case realtime.EventCreateChat:
		c.CreateChat(ctx, e, userID)
	case realtime.EventJoinChat:
		var chatID string
		if err := env.Decode(&chatID); err != nil {
			c.invalidPayload(ctx, e, env, err)
			return
		}
		c.JoinChat(ctx, e, userID, chatID)
	case realtime.EventDeleteChat:
		var chatID string
		if err := env.Decode(&chatID); err != nil {
			c.invalidPayload(ctx, e, env, err)
			return
		}
		c.DeleteChat(ctx, e, userID, chatID)
	case realtime.EventDeleteMessage:
		var req realtime.DeleteMessageRequest
		if err := env.Decode(&req); err != nil {
			c.invalidPayload(ctx, e, env, err)
			return
		}
		c.DeleteMessage(ctx, e, userID, req)
	case realtime.EventUserMessage:
		var req realtime.UserMessageRequest
		if err := env.Decode(&req); err != nil {
			c.invalidPayload(ctx, e, env, err)
			return
		}
		bg := context.WithoutCancel(ctx)
		if !c.enqueue(e, func() { c.UserMessage(bg, e, userID, req) }) {
			e.Emit(realtime.EventError, realtime.ErrUnavailable)
		}
	default:
		span.SetStatus(codes.Error, "unknown event")
		logging.AppLogger.Warn("unknown event", zap.String("event", env.Event), zap.String("user_id", userID))
		e.Emit(realtime.EventError, realtime.ErrUnknownEvent)
	}
}

func (c *ChatController) invalidPayload(ctx context.Context, e realtime.Emitter, env realtime.Envelope, err error) {
	trace.SpanFromContext(ctx).RecordError(err)
	logging.AppLogger.Warn("invalid payload", zap.String("event", env.Event), zap.Error(err))
	e.Emit(realtime.EventError, realtime.ErrInvalidPayload)
}

// fail logs err and surfaces msg to the client.
func (c *ChatController) fail(ctx context.Context, e realtime.Emitter, msg, op string, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	logging.ErrorLogger.Error(op, zap.Error(err))
	e.Emit(realtime.EventError, msg)
}

func (c *ChatController) ListChats(ctx context.Context, e realtime.Emitter, userID string) {
	chats, err := c.store.ListChats(ctx, userID)
	if err != nil {
		c.fail(ctx, e, realtime.ErrInternal, "listing chats", err)
		return
	}
	if chats == nil {
		chats = []types.Chat{}
	}
	e.Emit(realtime.EventChatsList, chats)
}

// CreateChat is a no-op for connections without a bound user.
func (c *ChatController) CreateChat(ctx context.Context, e realtime.Emitter, userID string) {
	if userID == "" {
		return
	}
	chat, err := c.store.CreateChat(ctx, userID, types.DefaultChatTitle)
	if err != nil {
		c.fail(ctx, e, realtime.ErrInternal, "creating chat", err)
		return
	}
	logging.AppLogger.Info("chat created", zap.String("chat_id", chat.ID), zap.String("user_id", userID))
	e.Emit(realtime.EventChatCreated, chat)
}

func (c *ChatController) JoinChat(ctx context.Context, e realtime.Emitter, userID, chatID string) {
	chat, err := c.store.GetChat(ctx, userID, chatID)
	if err != nil {
		c.fail(ctx, e, realtime.ErrInternal, "loading chat", err)
		return
	}
	if chat == nil {
		e.Emit(realtime.EventError, realtime.ErrChatNotFound)
		return
	}
	c.hub.Join(chat.ID, e)

	messages, err := c.store.ListMessages(ctx, chat.ID)
	if err != nil {
		c.fail(ctx, e, realtime.ErrInternal, "loading messages", err)
		return
	}
	if messages == nil {
		messages = []types.Message{}
	}
	e.Emit(realtime.EventChatHistory, realtime.ChatHistory{ChatID: chat.ID, Messages: messages})
}

// DeleteChat removes the chat and its messages, archiving a transcript first
// when an archiver is configured. Archive failures never block the delete.
func (c *ChatController) DeleteChat(ctx context.Context, e realtime.Emitter, userID, chatID string) {
	chat, err := c.store.GetChat(ctx, userID, chatID)
	if err != nil {
		c.fail(ctx, e, realtime.ErrInternal, "loading chat", err)
		return
	}
	if chat == nil {
		e.Emit(realtime.EventError, realtime.ErrChatNotFound)
		return
	}
	if c.opts.Archiver != nil {
		c.archive(ctx, *chat)
	}

	deleted, err := c.store.DeleteChat(ctx, userID, chatID)
	if err != nil && !deleted {
		c.fail(ctx, e, realtime.ErrInternal, "deleting chat", err)
		return
	}
	if err != nil {
		// The chat is gone; only some of its messages may remain.
		logging.ErrorLogger.Error("deleting chat messages", zap.String("chat_id", chatID), zap.Error(err))
	}
	if !deleted {
		e.Emit(realtime.EventError, realtime.ErrChatNotFound)
		return
	}
	c.hub.Close(chatID)
	logging.AppLogger.Info("chat deleted", zap.String("chat_id", chatID), zap.String("user_id", userID))
	e.Emit(realtime.EventChatDeleted, chatID)
	c.ListChats(ctx, e, userID)
}

func (c *ChatController) archive(ctx context.Context, chat types.Chat) {
	messages, err := c.store.ListMessages(ctx, chat.ID)
	if err != nil {
		logging.ErrorLogger.Error("loading messages for archive", zap.String("chat_id", chat.ID), zap.Error(err))
		return
	}
	key, err := c.opts.Archiver.ArchiveTranscript(ctx, chat, messages)
	if err != nil {
		logging.ErrorLogger.Error("archiving transcript", zap.String("chat_id", chat.ID), zap.Error(err))
		return
	}
	logging.AppLogger.Info("transcript archived", zap.String("chat_id", chat.ID), zap.String("key", key))
}

// DeleteMessage removes one message of a chat owned by the caller and tells
// everyone in the chat's room. Deleting a missing message still broadcasts.
func (c *ChatController) DeleteMessage(ctx context.Context, e realtime.Emitter, userID string, req realtime.DeleteMessageRequest) {
	if req.ChatID == "" || req.MessageID == "" {
		e.Emit(realtime.EventError, realtime.ErrInvalidPayload)
		return
	}
	chat, err := c.store.GetChat(ctx, userID, req.ChatID)
	if err != nil {
		c.fail(ctx, e, realtime.ErrInternal, "loading chat", err)
		return
	}
	if chat == nil {
		e.Emit(realtime.EventError, realtime.ErrChatNotFound)
		return
	}
	if _, err := c.store.DeleteMessage(ctx, req.ChatID, req.MessageID); err != nil {
		c.fail(ctx, e, realtime.ErrInternal, "deleting message", err)
		return
	}
	c.hub.Broadcast(req.ChatID, realtime.EventMessageDeleted, req.MessageID)
}

// UserMessage persists the user's text, streams the reply chunk by chunk and
// persists the assembled reply. Once ai_stream_start has been emitted,
// ai_stream_end is always emitted exactly once.
func (c *ChatController) UserMessage(ctx context.Context, e realtime.Emitter, userID string, req realtime.UserMessageRequest) {
	ctx, span := c.tracer.Start(ctx, "chat.user_message", trace.WithAttributes(attribute.String("chat.id", req.ChatID)))
	defer span.End()

	if req.ChatID == "" {
		e.Emit(realtime.EventError, realtime.ErrChatIDRequired)
		return
	}
	chat, err := c.store.GetChat(ctx, userID, req.ChatID)
	if err != nil {
		c.fail(ctx, e, realtime.ErrInternal, "loading chat", err)
		return
	}
	if chat == nil {
		e.Emit(realtime.EventError, realtime.ErrChatNotFound)
		return
	}

	prompt, err := c.buildPrompt(ctx, chat.ID, req.Content)
	if err != nil {
		c.fail(ctx, e, realtime.ErrInternal, "loading history", err)
		return
	}
	if _, err := c.store.SaveMessage(ctx, chat.ID, types.RoleUser, req.Content); err != nil {
		c.fail(ctx, e, realtime.ErrInternal, "saving user message", err)
		return
	}

	if chat.Title == types.DefaultChatTitle {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.renameChat(ctx, e, userID, chat.ID, req.Content)
		}()
	}

	frame := realtime.StreamFrame{ChatID: chat.ID, StreamID: uuid.NewString()}
	e.Emit(realtime.EventStreamStart, frame)
	defer e.Emit(realtime.EventStreamEnd, frame)

	full, err := c.stream(ctx, e, frame, prompt)
	if err != nil {
		c.add(ctx, c.failures, 1)
		c.fail(ctx, e, realtime.ErrGeneration, "streaming reply", err)
		return
	}
	if _, err := c.store.SaveMessage(ctx, chat.ID, types.RoleAssistant, full); err != nil {
		c.fail(ctx, e, realtime.ErrInternal, "saving assistant message", err)
	}
}

// buildPrompt seeds the generation with the system prompt, up to
// HistoryTurns earlier messages and the new user text.
func (c *ChatController) buildPrompt(ctx context.Context, chatID, content string) ([]llm.Message, error) {
	var msgs []llm.Message
	if c.opts.SystemPrompt != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: c.opts.SystemPrompt})
	}
	if c.opts.HistoryTurns > 0 {
		history, err := c.store.ListMessages(ctx, chatID)
		if err != nil {
			return nil, err
		}
		if len(history) > c.opts.HistoryTurns {
			history = history[len(history)-c.opts.HistoryTurns:]
		}
		for _, m := range history {
			msgs = append(msgs, llm.Message{Role: string(m.Role), Content: m.Content})
		}
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: content}), nil
}

func (c *ChatController) stream(ctx context.Context, e realtime.Emitter, frame realtime.StreamFrame, prompt []llm.Message) (string, error) {
	defer logging.LogDuration(ctx, "stream_reply")()
	c.add(ctx, c.streams, 1)

	stream, err := c.llm.Stream(ctx, llm.Request{Model: c.opts.Model, Messages: prompt})
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var full strings.Builder
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			return full.String(), nil
		}
		if err != nil {
			return "", err
		}
		full.WriteString(chunk)
		c.add(ctx, c.chunks, 1)
		frame.Chunk = chunk
		e.Emit(realtime.EventStreamChunk, frame)
	}
}

// renameChat replaces the default title once. The chats_list push is skipped
// when the chat was deleted or renamed in the meantime.
func (c *ChatController) renameChat(ctx context.Context, e realtime.Emitter, userID, chatID, firstMessage string) {
	title := c.titles.Generate(ctx, firstMessage)
	if title == types.DefaultChatTitle {
		return
	}
	renamed, err := c.store.RenameChat(ctx, userID, chatID, types.DefaultChatTitle, title)
	if err != nil {
		logging.ErrorLogger.Error("renaming chat", zap.String("chat_id", chatID), zap.Error(err))
		return
	}
	if !renamed {
		return
	}
	logging.AppLogger.Info("chat renamed", zap.String("chat_id", chatID), zap.String("title", title))
	c.ListChats(ctx, e, userID)
}

var (
	ErrChatNotFound    = errors.New("chat not found")
	ErrArchiveDisabled = errors.New("transcript archive is not configured")
)

// TranscriptReader is implemented by archivers that can also read back.
type TranscriptReader interface {
	GetTranscript(ctx context.Context, userID, chatID string) (*types.Transcript, error)
}

// Chats lists the caller's chats for the REST mirror.
func (c *ChatController) Chats(ctx context.Context, userID string) ([]types.Chat, error) {
	chats, err := c.store.ListChats(ctx, userID)
	if err != nil {
		return nil, err
	}
	if chats == nil {
		chats = []types.Chat{}
	}
	return chats, nil
}

// History returns a chat's messages, or ErrChatNotFound when the caller does not own it.
func (c *ChatController) History(ctx context.Context, userID, chatID string) ([]types.Message, error) {
	chat, err := c.store.GetChat(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}
	messages, err := c.store.ListMessages(ctx, chat.ID)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []types.Message{}
	}
	return messages, nil
}

// Transcript reads back the archive written when a chat was deleted.
func (c *ChatController) Transcript(ctx context.Context, userID, chatID string) (*types.Transcript, error) {
	reader, ok := c.opts.Archiver.(TranscriptReader)
	if !ok {
		return nil, ErrArchiveDisabled
	}
	t, err := reader.GetTranscript(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrChatNotFound
	}
	return t, nil
}

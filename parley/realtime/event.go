package realtime

import (
	"encoding/json"

	"parley/parley/types"
)

// Inbound events.
const (
	EventListChats     = "list_chats"
	EventCreateChat    = "create_chat"
	EventJoinChat      = "join_chat"
	EventDeleteChat    = "delete_chat"
	EventDeleteMessage = "delete_message"
	EventUserMessage   = "user_message"
)

// Outbound events.
const (
	EventChatsList      = "chats_list"
	EventChatCreated    = "chat_created"
	EventChatHistory    = "chat_history"
	EventChatDeleted    = "chat_deleted"
	EventMessageDeleted = "message_deleted"
	EventStreamStart    = "ai_stream_start"
	EventStreamChunk    = "ai_stream_chunk"
	EventStreamEnd      = "ai_stream_end"
	EventError          = "error"
)

// Error strings sent to clients.
const (
	ErrChatNotFound   = "Chat not found"
	ErrChatIDRequired = "Chat ID is required"
	ErrUnknownEvent   = "Unknown event"
	ErrInvalidPayload = "Invalid payload"
	ErrGeneration     = "Failed to generate response"
	ErrInternal       = "Something went wrong"
	ErrUnavailable    = "Server is shutting down"
)

// Envelope is the frame format in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode wraps data in an envelope for event.
func Encode(event string, data interface{}) ([]byte, error) {
	env := Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// Decode unmarshals the envelope's data into v. A missing payload leaves v untouched.
func (e Envelope) Decode(v interface{}) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

type ChatHistory struct {
	ChatID   string          `json:"chatId"`
	Messages []types.Message `json:"messages"`
}

type DeleteMessageRequest struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
}

type UserMessageRequest struct {
	ChatID  string `json:"chatId"`
	Content string `json:"content"`
}

// StreamFrame is the payload of ai_stream_start, ai_stream_chunk and
// ai_stream_end. StreamID is shared by the frames of one reply.
type StreamFrame struct {
	ChatID   string `json:"chatId"`
	StreamID string `json:"streamId,omitempty"`
	Chunk    string `json:"chunk,omitempty"`
}

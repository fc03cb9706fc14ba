package client

import (
	"encoding/json"
	"errors"

	"parley/parley/realtime"
	"parley/parley/types"

	"github.com/google/uuid"
)

// ErrNoActiveChat is returned by actions that need a selected chat.
var ErrNoActiveChat = errors.New("no active chat selected")

// State mirrors what the server has pushed for one user. Stream events are
// applied only while their chat is the active one.
type State struct {
	Chats        []types.Chat
	ActiveChatID string
	Messages     []types.Message
	Loading      bool
	Typing       bool
	Err          string

	// pendingID names the assistant message being streamed into.
	pendingID string
}

// Clone returns a copy that shares no slices with s.
func (s State) Clone() State {
	s.Chats = append([]types.Chat(nil), s.Chats...)
	s.Messages = append([]types.Message(nil), s.Messages...)
	return s
}

func (s *State) streaming() bool {
	return s.pendingID != ""
}

// Apply reduces one server event into the state. Unknown events are ignored.
func (s *State) Apply(env realtime.Envelope) error {
	switch env.Event {
	case realtime.EventChatsList:
		var chats []types.Chat
		if err := env.Decode(&chats); err != nil {
			return err
		}
		s.Chats = chats
	case realtime.EventChatCreated:
		var chat types.Chat
		if err := env.Decode(&chat); err != nil {
			return err
		}
		s.Chats = append([]types.Chat{chat}, s.Chats...)
		s.activate(chat.ID)
	case realtime.EventChatHistory:
		var h realtime.ChatHistory
		if err := env.Decode(&h); err != nil {
			return err
		}
		if h.ChatID == s.ActiveChatID {
			s.Messages = h.Messages
		}
	case realtime.EventChatDeleted:
		var chatID string
		if err := env.Decode(&chatID); err != nil {
			return err
		}
		s.Chats = removeChat(s.Chats, chatID)
		if chatID == s.ActiveChatID {
			s.activate("")
		}
	case realtime.EventMessageDeleted:
		var messageID string
		if err := env.Decode(&messageID); err != nil {
			return err
		}
		s.Messages = removeMessage(s.Messages, messageID)
	case realtime.EventStreamStart:
		f, ok := s.activeFrame(env)
		if !ok {
			return nil
		}
		s.Loading = true
		s.Err = ""
		s.pendingID = pendingKey(f.StreamID)
		s.Messages = append(s.Messages, types.Message{
			ID:     s.pendingID,
			ChatID: s.ActiveChatID,
			Role:   types.RoleAssistant,
		})
	case realtime.EventStreamChunk:
		f, ok := s.activeFrame(env)
		if !ok {
			return nil
		}
		s.Typing = false
		s.appendChunk(f)
	case realtime.EventStreamEnd:
		f, ok := s.activeFrame(env)
		if !ok {
			return nil
		}
		// The end of an older reply leaves a newer one streaming.
		if f.StreamID == "" || s.pendingID == pendingKey(f.StreamID) {
			s.Loading = false
			s.pendingID = ""
		}
	case realtime.EventError:
		var msg string
		if err := env.Decode(&msg); err != nil {
			return err
		}
		s.Err = msg
		s.Loading = false
		s.Typing = false
	}
	return nil
}

func (s *State) activate(chatID string) {
	s.ActiveChatID = chatID
	s.Messages = nil
	s.Loading = false
	s.Typing = false
	s.pendingID = ""
}

// activeFrame decodes a stream frame and reports whether it belongs to the
// active chat.
func (s *State) activeFrame(env realtime.Envelope) (realtime.StreamFrame, bool) {
	var f realtime.StreamFrame
	if err := json.Unmarshal(env.Data, &f); err != nil {
		return f, false
	}
	return f, s.ActiveChatID != "" && f.ChatID == s.ActiveChatID
}

// pendingKey names the local message a reply streams into. Frames without a
// stream id get a fresh key.
func pendingKey(streamID string) string {
	if streamID == "" {
		return "pending-" + uuid.New().String()
	}
	return "pending-" + streamID
}

// appendChunk extends the message of the frame's reply, or the pending one
// when the frame carries no stream id. A chunk with nothing to extend, such
// as one arriving right after a join, opens a new message.
func (s *State) appendChunk(f realtime.StreamFrame) {
	target := s.pendingID
	if f.StreamID != "" {
		target = pendingKey(f.StreamID)
	}
	if target != "" {
		for i := range s.Messages {
			if s.Messages[i].ID == target {
				s.Messages[i].Content += f.Chunk
				return
			}
		}
	}
	if target == "" {
		target = pendingKey("")
	}
	s.pendingID = target
	s.Messages = append(s.Messages, types.Message{
		ID:      s.pendingID,
		ChatID:  s.ActiveChatID,
		Role:    types.RoleAssistant,
		Content: f.Chunk,
	})
}

func removeChat(chats []types.Chat, id string) []types.Chat {
	out := chats[:0:0]
	for _, c := range chats {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}

func removeMessage(msgs []types.Message, id string) []types.Message {
	out := msgs[:0:0]
	for _, m := range msgs {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}

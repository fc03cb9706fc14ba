package client

import (
	"encoding/json"
	"testing"

	"parley/parley/realtime"
	"parley/parley/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(t *testing.T, event string, data interface{}) realtime.Envelope {
	t.Helper()
	var e realtime.Envelope
	frame, err := realtime.Encode(event, data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(frame, &e))
	return e
}

func apply(t *testing.T, s *State, event string, data interface{}) {
	t.Helper()
	require.NoError(t, s.Apply(env(t, event, data)))
}

func TestChatListReducers(t *testing.T) {
	s := &State{}
	apply(t, s, realtime.EventChatsList, []types.Chat{{ID: "a"}, {ID: "b"}})
	assert.Len(t, s.Chats, 2)

	s.Messages = []types.Message{{ID: "old"}}
	apply(t, s, realtime.EventChatCreated, types.Chat{ID: "c", Title: types.DefaultChatTitle})
	assert.Equal(t, "c", s.Chats[0].ID)
	assert.Equal(t, "c", s.ActiveChatID)
	assert.Empty(t, s.Messages)

	apply(t, s, realtime.EventChatDeleted, "a")
	assert.Equal(t, "c", s.ActiveChatID)
	assert.Len(t, s.Chats, 2)

	s.Messages = []types.Message{{ID: "m1"}}
	apply(t, s, realtime.EventChatDeleted, "c")
	assert.Empty(t, s.ActiveChatID)
	assert.Empty(t, s.Messages)
	assert.Equal(t, []types.Chat{{ID: "b"}}, s.Chats)
}

func TestHistoryAppliesOnlyToActiveChat(t *testing.T) {
	s := &State{ActiveChatID: "c1"}
	apply(t, s, realtime.EventChatHistory, realtime.ChatHistory{ChatID: "c2", Messages: []types.Message{{ID: "x"}}})
	assert.Empty(t, s.Messages)
	apply(t, s, realtime.EventChatHistory, realtime.ChatHistory{ChatID: "c1", Messages: []types.Message{{ID: "m1"}, {ID: "m2"}}})
	assert.Len(t, s.Messages, 2)

	apply(t, s, realtime.EventMessageDeleted, "m1")
	apply(t, s, realtime.EventMessageDeleted, "m1")
	assert.Equal(t, []types.Message{{ID: "m2"}}, s.Messages)
}

func TestStreamReducers(t *testing.T) {
	s := &State{ActiveChatID: "c1", Typing: true, Err: "stale"}
	apply(t, s, realtime.EventStreamStart, realtime.StreamFrame{ChatID: "c1"})
	assert.True(t, s.Loading)
	assert.Empty(t, s.Err)
	require.Len(t, s.Messages, 1)
	assert.Equal(t, types.RoleAssistant, s.Messages[0].Role)
	assert.True(t, s.streaming())

	apply(t, s, realtime.EventStreamChunk, realtime.StreamFrame{ChatID: "c1", Chunk: "Hel"})
	assert.False(t, s.Typing)
	// Chunks follow the pending message by id, not list position.
	s.Messages = append(s.Messages, types.Message{ID: "m9", Role: types.RoleUser, Content: "later"})
	apply(t, s, realtime.EventStreamChunk, realtime.StreamFrame{ChatID: "c1", Chunk: "lo"})
	assert.Equal(t, "Hello", s.Messages[0].Content)
	assert.Equal(t, "later", s.Messages[1].Content)

	apply(t, s, realtime.EventStreamEnd, realtime.StreamFrame{ChatID: "c1"})
	assert.False(t, s.Loading)
	assert.False(t, s.streaming())
}

func TestStreamEventsForInactiveChatAreIgnored(t *testing.T) {
	s := &State{ActiveChatID: "c2", Loading: true}
	apply(t, s, realtime.EventStreamStart, realtime.StreamFrame{ChatID: "c1"})
	apply(t, s, realtime.EventStreamChunk, realtime.StreamFrame{ChatID: "c1", Chunk: "x"})
	apply(t, s, realtime.EventStreamEnd, realtime.StreamFrame{ChatID: "c1"})
	assert.Empty(t, s.Messages)
	assert.True(t, s.Loading)

	none := &State{}
	apply(t, none, realtime.EventStreamStart, realtime.StreamFrame{ChatID: "c1"})
	assert.Empty(t, none.Messages)
}

func TestChunkWithoutStartOpensMessage(t *testing.T) {
	s := &State{ActiveChatID: "c1"}
	apply(t, s, realtime.EventStreamChunk, realtime.StreamFrame{ChatID: "c1", Chunk: "mid"})
	apply(t, s, realtime.EventStreamChunk, realtime.StreamFrame{ChatID: "c1", Chunk: "way"})
	require.Len(t, s.Messages, 1)
	assert.Equal(t, "midway", s.Messages[0].Content)
}

func TestErrorReducer(t *testing.T) {
	s := &State{ActiveChatID: "c1", Loading: true, Typing: true,
		Messages: []types.Message{{ID: "local-1", Role: types.RoleUser, Content: "hi"}}}
	apply(t, s, realtime.EventError, "Failed to generate response")
	assert.Equal(t, "Failed to generate response", s.Err)
	assert.False(t, s.Loading)
	assert.False(t, s.Typing)
	assert.Len(t, s.Messages, 1, "optimistic message kept")
}

func TestCloneIsIndependent(t *testing.T) {
	s := State{Chats: []types.Chat{{ID: "a"}}, Messages: []types.Message{{ID: "m"}}}
	c := s.Clone()
	c.Chats[0].ID = "changed"
	c.Messages[0].ID = "changed"
	assert.Equal(t, "a", s.Chats[0].ID)
	assert.Equal(t, "m", s.Messages[0].ID)
}

func TestStreamFramesAreKeyedByStreamID(t *testing.T) {
	s := &State{ActiveChatID: "c1"}
	apply(t, s, realtime.EventStreamStart, realtime.StreamFrame{ChatID: "c1", StreamID: "a"})
	apply(t, s, realtime.EventStreamStart, realtime.StreamFrame{ChatID: "c1", StreamID: "b"})
	apply(t, s, realtime.EventStreamChunk, realtime.StreamFrame{ChatID: "c1", StreamID: "a", Chunk: "A1"})
	apply(t, s, realtime.EventStreamChunk, realtime.StreamFrame{ChatID: "c1", StreamID: "b", Chunk: "B1"})
	apply(t, s, realtime.EventStreamChunk, realtime.StreamFrame{ChatID: "c1", StreamID: "a", Chunk: "A2"})
	apply(t, s, realtime.EventStreamEnd, realtime.StreamFrame{ChatID: "c1", StreamID: "a"})
	assert.True(t, s.Loading, "b is still streaming")
	assert.True(t, s.streaming())

	apply(t, s, realtime.EventStreamChunk, realtime.StreamFrame{ChatID: "c1", StreamID: "b", Chunk: "B2"})
	apply(t, s, realtime.EventStreamEnd, realtime.StreamFrame{ChatID: "c1", StreamID: "b"})
	assert.False(t, s.Loading)
	assert.False(t, s.streaming())

	require.Len(t, s.Messages, 2)
	assert.Equal(t, "A1A2", s.Messages[0].Content)
	assert.Equal(t, "B1B2", s.Messages[1].Content)
}

// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"io"
	"sync"
	"time"

	"parley/parley/services/llm"
)

// Fake replays Chunks on every Stream call and answers Generate with Title.
// StreamErr fails the stream open; FailAfter > 0 fails the stream with
// ChunkErr after that many chunks.
type Fake struct {
	Chunks    []string
	Title     string
	TitleErr  error
	StreamErr error
	ChunkErr  error
	FailAfter int
	// ChunkDelay is slept before each chunk.
	ChunkDelay time.Duration
	// TitleGate, when set, blocks Generate until it is closed.
	TitleGate chan struct{}

	mu       sync.Mutex
	requests []llm.Request
	titles   []llm.Request
}

func (f *Fake) Generate(ctx context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	f.titles = append(f.titles, req)
	f.mu.Unlock()
	if f.TitleGate != nil {
		select {
		case <-f.TitleGate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.TitleErr != nil {
		return "", f.TitleErr
	}
	return f.Title, nil
}

func (f *Fake) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.StreamErr != nil {
		return nil, f.StreamErr
	}
	return &fakeStream{f: f}, nil
}

// StreamRequests returns a copy of every request passed to Stream.
func (f *Fake) StreamRequests() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.requests...)
}

// TitleRequests returns a copy of every request passed to Generate.
func (f *Fake) TitleRequests() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.titles...)
}

type fakeStream struct {
	f   *Fake
	pos int
}

func (s *fakeStream) Recv() (string, error) {
	if s.f.FailAfter > 0 && s.pos == s.f.FailAfter {
		return "", s.f.ChunkErr
	}
	if s.pos >= len(s.f.Chunks) {
		return "", io.EOF
	}
	time.Sleep(s.f.ChunkDelay)
	chunk := s.f.Chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *fakeStream) Close() error { return nil }

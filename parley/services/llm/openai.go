package llm

import (
	"context"
	"io"

	"parley/parley/utils/logging"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint:
// OpenAI itself, Groq, and Gemini's compatibility layer.
type OpenAIClient struct {
	client *openai.Client
}

func NewOpenAIClient(apiKey, baseURL string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg)}
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func (c *OpenAIClient) Generate(ctx context.Context, req Request) (string, error) {
	defer logging.LogDuration(ctx, "openai_generate")()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  toOpenAIMessages(req.Messages),
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return "", errors.Wrap(err, "creating chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) Stream(ctx context.Context, req Request) (Stream, error) {
	defer logging.LogDuration(ctx, "openai_stream_open")()

	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  toOpenAIMessages(req.Messages),
		MaxTokens: req.MaxTokens,
		Stream:    true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating chat completion stream")
	}
	return &chatCompletionStream{stream: stream}, nil
}

type chatCompletionStream struct {
	stream *openai.ChatCompletionStream
}

// Recv skips frames that carry no text, such as role-only or usage frames.
func (s *chatCompletionStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if err == io.EOF {
			return "", io.EOF
		}
		if err != nil {
			return "", errors.Wrap(err, "receiving stream chunk")
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		return resp.Choices[0].Delta.Content, nil
	}
}

func (s *chatCompletionStream) Close() error {
	s.stream.Close()
	return nil
}

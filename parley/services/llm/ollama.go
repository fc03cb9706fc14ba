package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	httputils "parley/parley/utils/http"
	"parley/parley/utils/logging"

	"github.com/pkg/errors"
)

type OllamaClient struct {
	baseURL string
	http    *http.Client
}

func NewOllamaClient(baseURL string) *OllamaClient {
	return &OllamaClient{baseURL: baseURL, http: http.DefaultClient}
}

type ollamaChatRequest struct {
	Model    string      `json:"model"`
	Messages []Message   `json:"messages"`
	Stream   bool        `json:"stream"`
	Options  interface{} `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

func ollamaOptions(req Request) interface{} {
	if req.MaxTokens <= 0 {
		return nil
	}
	return map[string]int{"num_predict": req.MaxTokens}
}

func (c *OllamaClient) Generate(ctx context.Context, req Request) (string, error) {
	defer logging.LogDuration(ctx, "ollama_generate")()
	var resp ollamaChatResponse
	err := httputils.PostJSON(ctx, c.http, c.baseURL+"/chat", ollamaChatRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Options:  ollamaOptions(req),
	}, &resp)
	if err != nil {
		return "", errors.Wrap(err, "ollama chat")
	}
	if resp.Error != "" {
		return "", errors.New(resp.Error)
	}
	return resp.Message.Content, nil
}

func (c *OllamaClient) Stream(ctx context.Context, req Request) (Stream, error) {
	defer logging.LogDuration(ctx, "ollama_stream_open")()
	body, err := httputils.PostStream(ctx, c.http, c.baseURL+"/chat", ollamaChatRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   true,
		Options:  ollamaOptions(req),
	})
	if err != nil {
		return nil, errors.Wrap(err, "ollama chat stream")
	}
	return &ollamaStream{body: body, decoder: json.NewDecoder(body)}, nil
}

// ollamaStream reads newline-delimited JSON chunks until one reports done.
type ollamaStream struct {
	body    io.ReadCloser
	decoder *json.Decoder
	done    bool
}

func (s *ollamaStream) Recv() (string, error) {
	for {
		if s.done {
			return "", io.EOF
		}
		var chunk ollamaChatResponse
		if err := s.decoder.Decode(&chunk); err != nil {
			if err == io.EOF {
				return "", io.ErrUnexpectedEOF
			}
			return "", errors.Wrap(err, "decoding ollama chunk")
		}
		if chunk.Error != "" {
			return "", errors.New(chunk.Error)
		}
		if chunk.Done {
			s.done = true
		}
		if chunk.Message.Content != "" {
			return chunk.Message.Content, nil
		}
	}
}

func (s *ollamaStream) Close() error {
	return s.body.Close()
}

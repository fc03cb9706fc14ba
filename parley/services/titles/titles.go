package titles

import (
	"context"
	"strings"
	"unicode/utf8"

	"parley/parley/config"
	"parley/parley/services/llm"
	"parley/parley/types"
	"parley/parley/utils/logging"

	"go.uber.org/zap"
)

const (
	maxTitleTokens = 50
	maxTitleRunes  = 80
)

type Generator struct {
	client  llm.Client
	model   string
	prompts *config.Prompts
}

func NewGenerator(client llm.Client, model string, prompts *config.Prompts) *Generator {
	return &Generator{client: client, model: model, prompts: prompts}
}

// Generate asks for a short title for a chat opening with firstMessage. It
// never fails: any error or empty answer yields the default title.
func (g *Generator) Generate(ctx context.Context, firstMessage string) string {
	defer logging.LogDuration(ctx, "generate_chat_title")()

	resp, err := g.client.Generate(ctx, llm.Request{
		Model:     g.model,
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: g.prompts.Title(firstMessage)}},
		MaxTokens: maxTitleTokens,
	})
	if err != nil {
		logging.ErrorLogger.Error("title generation failed", zap.Error(err))
		return types.DefaultChatTitle
	}
	if title := Clean(resp); title != "" {
		return title
	}
	return types.DefaultChatTitle
}

// Clean normalises a model-written title: one line, no surrounding quotes or
// markdown emphasis, bounded length.
func Clean(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, "\"'`*# ")
	if strings.HasPrefix(strings.ToLower(s), "title:") {
		s = strings.TrimSpace(s[len("title:"):])
		s = strings.Trim(s, "\"'`*# ")
	}
	if utf8.RuneCountInString(s) > maxTitleRunes {
		s = strings.TrimSpace(string([]rune(s)[:maxTitleRunes]))
	}
	return s
}

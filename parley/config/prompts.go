package config

import (
	"fmt"
	"strings"

	"github.com/magiconair/properties"
)

const (
	defaultTitlePrompt = `Generate a very short, concise title (max 4-5 words) for a chat that starts with this message: "%s". Do not use quotes.`
)

// Prompts holds the prompt templates sent to the generation service.
type Prompts struct {
	// SystemPrompt is prepended to every streamed generation when non-empty.
	SystemPrompt string
	// TitlePrompt must contain exactly one %s verb for the first user message.
	TitlePrompt string
}

// LoadPrompts reads prompt templates from a .properties file. An empty path
// yields the built-in defaults.
func LoadPrompts(path string) (*Prompts, error) {
	p := &Prompts{TitlePrompt: defaultTitlePrompt}
	if path == "" {
		return p, nil
	}
	props, err := properties.LoadFile(path, properties.UTF8)
	if err != nil {
		return nil, fmt.Errorf("loading prompts: %w", err)
	}
	p.SystemPrompt = props.GetString("system_prompt", "")
	p.TitlePrompt = props.GetString("title_prompt", defaultTitlePrompt)
	if strings.Count(p.TitlePrompt, "%s") != 1 {
		return nil, fmt.Errorf("title_prompt must contain exactly one %%s")
	}
	return p, nil
}

// Title renders the title prompt for the given first message.
func (p *Prompts) Title(firstMessage string) string {
	return fmt.Sprintf(p.TitlePrompt, firstMessage)
}

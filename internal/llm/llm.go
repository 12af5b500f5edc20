// Package llm wraps the chat-completion calls made by the generation and
// synthesis stages.
package llm

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Client performs one chat completion and returns the first choice's text.
type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, messages []Message) (string, error)

func (f ClientFunc) Complete(ctx context.Context, messages []Message) (string, error) {
	return f(ctx, messages)
}

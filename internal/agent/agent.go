package agent

import "context"

// Answer is the model's reply to one question.
type Answer struct {
	Text     string `json:"text"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Invoker asks the configured model a single natural-language question.
type Invoker interface {
	Ask(ctx context.Context, question string) (Answer, error)
}

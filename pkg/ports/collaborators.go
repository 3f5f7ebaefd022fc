package ports

import "context"

// ChatResponse is the reply of a model-chat collaborator.
type ChatResponse struct {
	Message string `json:"message"`
	Model   string `json:"model,omitempty"`
}

// Text returns the raw text message.
func (r ChatResponse) Text() string {
	return r.Message
}

// ChatClient sends a prompt to a language model.
// Vendor transports live outside this module and plug in through this port.
type ChatClient interface {
	Chat(ctx context.Context, prompt string) (ChatResponse, error)
}

// ExpressionEngine evaluates an expression against a chain and returns its text value.
// Routers use the result as a comma-separated list of target IDs.
type ExpressionEngine interface {
	Run(ctx context.Context, expression string, view ChainView) (string, error)
}

// ChatFunc adapts a function to ChatClient.
type ChatFunc func(ctx context.Context, prompt string) (ChatResponse, error)

// Chat implements ChatClient.
func (f ChatFunc) Chat(ctx context.Context, prompt string) (ChatResponse, error) {
	return f(ctx, prompt)
}

// ExpressionFunc adapts a function to ExpressionEngine.
type ExpressionFunc func(ctx context.Context, expression string, view ChainView) (string, error)

// Run implements ExpressionEngine.
func (f ExpressionFunc) Run(ctx context.Context, expression string, view ChainView) (string, error) {
	return f(ctx, expression, view)
}

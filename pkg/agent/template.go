package agent

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/aretw0/chainflow/pkg/domain"
	"github.com/aretw0/chainflow/pkg/ports"
)

// Template is an input/output agent rendering a text/template from its bound
// variables.
type Template struct {
	Base
	tmpl *template.Template
}

// NewTemplate parses text. Missing keys render as empty strings.
func NewTemplate(name, text string, opts ...Option) (*Template, error) {
	tmpl, err := template.New(name).Option("missingkey=zero").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	return &Template{Base: NewBase(name, opts...), tmpl: tmpl}, nil
}

func (t *Template) Execute(_ context.Context, vars map[string]any, _ ports.ChainView) (domain.Output, error) {
	text, err := render(t.tmpl, vars)
	if err != nil {
		return nil, err
	}
	return domain.NewOutput(text), nil
}

// Chat is a model-calling agent: it renders its prompt and asks the chat client.
// The output carries the response text and, when known, the model name.
type Chat struct {
	Base
	client ports.ChatClient
	prompt *template.Template
}

// NewChat builds a model-calling agent.
func NewChat(name string, client ports.ChatClient, prompt string, opts ...Option) (*Chat, error) {
	tmpl, err := template.New(name).Option("missingkey=zero").Parse(prompt)
	if err != nil {
		return nil, fmt.Errorf("parse prompt %s: %w", name, err)
	}
	return &Chat{Base: NewBase(name, opts...), client: client, prompt: tmpl}, nil
}

func (c *Chat) Execute(ctx context.Context, vars map[string]any, _ ports.ChainView) (domain.Output, error) {
	prompt, err := render(c.prompt, vars)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Chat(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("chat %s: %w", c.Name(), err)
	}
	out := domain.NewOutput(resp.Text())
	if resp.Model != "" {
		out["model"] = resp.Model
	}
	return out, nil
}

// User hands a human answer back to the chain. Its single required parameter
// suspends the chain until the answer is supplied on resume.
type User struct {
	Base
	param string
}

// NewUser builds a user agent waiting for param.
func NewUser(name, param string, opts ...Option) *User {
	p := domain.Required(param)
	opts = append([]Option{WithParameters(p)}, opts...)
	return &User{Base: NewBase(name, opts...), param: param}
}

func (u *User) Execute(_ context.Context, vars map[string]any, _ ports.ChainView) (domain.Output, error) {
	return domain.NewOutput(vars[u.param]), nil
}

func render(tmpl *template.Template, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

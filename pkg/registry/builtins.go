package registry

import (
	"errors"

	"github.com/aretw0/chainflow/pkg/agent"
	"github.com/aretw0/chainflow/pkg/ports"
)

// Built-in agent types.
const (
	TypeConstant = "constant"
	TypeTemplate = "template"
	TypeUser     = "user"
	TypeChat     = "chat"
)

// ErrNoChatClient is returned when a chat agent is declared without a client.
var ErrNoChatClient = errors.New("no chat client configured")

// RegisterBuiltins registers the constant, template, user and chat agent types.
// chat may be nil; chat agents then fail to build.
func RegisterBuiltins(r *Registry, chat ports.ChatClient) {
	r.Register(TypeConstant, func(spec Spec) (ports.Agent, error) {
		return agent.Constant(nameOr(spec.Name, TypeConstant), spec.With["value"], spec.Options()...), nil
	})

	r.Register(TypeTemplate, func(spec Spec) (ports.Agent, error) {
		return agent.NewTemplate(nameOr(spec.Name, TypeTemplate), spec.String("text"), spec.Options()...)
	})

	r.Register(TypeUser, func(spec Spec) (ports.Agent, error) {
		param := spec.String("param")
		if param == "" {
			param = "input"
		}
		return agent.NewUser(nameOr(spec.Name, TypeUser), param, spec.Options()...), nil
	})

	r.Register(TypeChat, func(spec Spec) (ports.Agent, error) {
		if chat == nil {
			return nil, ErrNoChatClient
		}
		return agent.NewChat(nameOr(spec.Name, TypeChat), chat, spec.String("prompt"), spec.Options()...)
	})
}

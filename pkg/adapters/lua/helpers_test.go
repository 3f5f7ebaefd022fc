package lua_test

import (
	"github.com/aretw0/chainflow/pkg/agent"
)

func constantAgent(id string, v any) *agent.Value {
	return agent.Constant(id, v, agent.WithID(id))
}

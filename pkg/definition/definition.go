package definition

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/chainflow/pkg/domain"
	"github.com/aretw0/chainflow/pkg/schema"
)

// Chain kinds accepted in definitions.
const (
	KindSequential = "sequential"
	KindParallel   = "parallel"
	KindLoop       = "loop"
	KindRouter     = "router"
)

// ToolsConfigName is the base name of the process tools file, skipped by LoadDir.
const ToolsConfigName = "tools"

// Definition declares one chain.
type Definition struct {
	ID          string         `mapstructure:"id" json:"id"`
	Kind        string         `mapstructure:"kind" json:"kind"`
	Description string         `mapstructure:"description" json:"description,omitempty"`
	Memory      map[string]any `mapstructure:"memory" json:"memory,omitempty"`

	// Reduce names the parallel reducer: collect, merge or first.
	Reduce      string `mapstructure:"reduce" json:"reduce,omitempty"`
	Concurrency int    `mapstructure:"concurrency" json:"concurrency,omitempty"`

	// Route configures router chains.
	Route *RouteSpec `mapstructure:"route" json:"route,omitempty"`

	Agents []AgentSpec `mapstructure:"agents" json:"agents,omitempty"`
	Nodes  []NodeSpec  `mapstructure:"nodes" json:"nodes"`
}

// AgentSpec declares an agent built through the registry.
type AgentSpec struct {
	ID      string             `mapstructure:"id" json:"id"`
	Type    string             `mapstructure:"type" json:"type"`
	Name    string             `mapstructure:"name" json:"name,omitempty"`
	Params  []domain.Parameter `mapstructure:"params" json:"params,omitempty"`
	Outputs []string           `mapstructure:"outputs" json:"outputs,omitempty"`
	Mapping map[string]string  `mapstructure:"mapping" json:"mapping,omitempty"`
	With    map[string]any     `mapstructure:"with" json:"with,omitempty"`
}

// NodeSpec declares one step. Exactly one of Agent, Router and Chain is set.
type NodeSpec struct {
	ID    string `mapstructure:"id" json:"id"`
	Agent string `mapstructure:"agent" json:"agent,omitempty"`

	// Outputs renames the agent's declared output keys (key -> target).
	Outputs map[string]string `mapstructure:"outputs" json:"outputs,omitempty"`

	// When gates invokers (parallel, loop, router chains). Skip discards a
	// sequential node result. Both are expressions evaluated to a boolean.
	When string `mapstructure:"when" json:"when,omitempty"`
	Skip string `mapstructure:"skip" json:"skip,omitempty"`

	// MaxPasses halts a loop chain once the given number of passes completed.
	MaxPasses int `mapstructure:"max_passes" json:"max_passes,omitempty"`

	Router *RouteSpec  `mapstructure:"router" json:"router,omitempty"`
	Chain  *Definition `mapstructure:"chain" json:"chain,omitempty"`
}

// RouteSpec configures a router: an expression or a chat prompt computing the
// target ids, and how several matches resolve.
type RouteSpec struct {
	Expression string     `mapstructure:"expression" json:"expression,omitempty"`
	Prompt     string     `mapstructure:"prompt" json:"prompt,omitempty"`
	Static     string     `mapstructure:"static" json:"static,omitempty"`
	Strategy   string     `mapstructure:"strategy" json:"strategy,omitempty"`
	Nodes      []NodeSpec `mapstructure:"nodes" json:"nodes,omitempty"`
}

// Parse decodes a definition. format is "json" or "yaml" (default).
func Parse(data []byte, format string) (*Definition, error) {
	var raw map[string]any
	switch strings.ToLower(format) {
	case "json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: parse json: %v", domain.ErrInvalidDefinition, err)
		}
	default:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: parse yaml: %v", domain.ErrInvalidDefinition, err)
		}
	}
	return Decode(raw)
}

// Decode maps a generic document onto a Definition and validates it.
func Decode(raw map[string]any) (*Definition, error) {
	var def Definition
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &def,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidDefinition, err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Load reads a definition file. The extension selects the format.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition: %w", err)
	}
	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
	}
	def, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if def.ID == "" {
		def.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return def, nil
}

// LoadDir reads every .yaml, .yml and .json definition in dir, keyed by id.
func LoadDir(dir string) (map[string]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions dir: %w", err)
	}
	defs := make(map[string]*Definition)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		switch ext {
		case ".yaml", ".yml", ".json":
		default:
			continue
		}
		if strings.TrimSuffix(strings.ToLower(entry.Name()), ext) == ToolsConfigName {
			continue
		}
		def, err := Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if _, dup := defs[def.ID]; dup {
			return nil, fmt.Errorf("%w: chain %q defined twice", domain.ErrDuplicateID, def.ID)
		}
		defs[def.ID] = def
	}
	return defs, nil
}

// IDs returns the sorted ids of defs.
func IDs(defs map[string]*Definition) []string {
	out := make([]string, 0, len(defs))
	for id := range defs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Validate checks the structure without resolving agents.
func (d *Definition) Validate() error {
	switch d.Kind {
	case "":
		d.Kind = KindSequential
	case KindSequential, KindParallel, KindLoop, KindRouter:
	default:
		return fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidDefinition, d.Kind)
	}
	switch d.Reduce {
	case "", "collect", "merge", "first":
	default:
		return fmt.Errorf("%w: unknown reducer %q", domain.ErrInvalidDefinition, d.Reduce)
	}
	if d.Kind == KindRouter && (d.Route == nil || d.Route.empty()) {
		return fmt.Errorf("%w: router chain %q needs a route", domain.ErrInvalidDefinition, d.ID)
	}
	for _, a := range d.Agents {
		if err := schema.CheckDeclarations(a.Params); err != nil {
			return fmt.Errorf("%w: agent %q: %v", domain.ErrInvalidDefinition, a.ID, err)
		}
	}
	return validateNodes(d.ID, d.Nodes)
}

func validateNodes(owner string, nodes []NodeSpec) error {
	for i := range nodes {
		n := &nodes[i]
		set := 0
		for _, ok := range []bool{n.Agent != "", n.Router != nil, n.Chain != nil} {
			if ok {
				set++
			}
		}
		if set != 1 {
			return fmt.Errorf("%w: node %d of %q must set exactly one of agent, router, chain", domain.ErrInvalidDefinition, i, owner)
		}
		if n.ID == "" {
			switch {
			case n.Agent != "":
				n.ID = n.Agent
			case n.Chain != nil && n.Chain.ID != "":
				n.ID = n.Chain.ID
			default:
				return fmt.Errorf("%w: node %d of %q needs an id", domain.ErrInvalidDefinition, i, owner)
			}
		}
		if n.Router != nil {
			if n.Router.empty() {
				return fmt.Errorf("%w: router node %q needs an expression, prompt or static route", domain.ErrInvalidDefinition, n.ID)
			}
			if err := validateNodes(n.ID, n.Router.Nodes); err != nil {
				return err
			}
		}
		if n.Chain != nil {
			if err := n.Chain.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *RouteSpec) empty() bool {
	return r.Expression == "" && r.Prompt == "" && r.Static == ""
}

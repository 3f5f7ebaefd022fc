package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// EnvPrefix prefixes the environment variables carrying arguments.
const EnvPrefix = "CHAINFLOW_ARG_"

// DefaultGracePeriod is how long a cancelled process may take to exit after
// the interrupt before it is killed.
const DefaultGracePeriod = 5 * time.Second

var (
	// ErrNotRegistered is returned for tools outside the allow-list.
	ErrNotRegistered = errors.New("process tool not registered")

	// ErrExecution wraps a non-zero exit or a failed start.
	ErrExecution = errors.New("process execution failed")
)

// Runner executes allow-listed local processes. Arguments never become
// command-line flags: they are passed as environment variables, which keeps
// values out of the argument vector.
type Runner struct {
	registry map[string]ProcessConfig
	baseDir  string
	grace    time.Duration
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithRegistry populates the allow-list from a loaded config.
func WithRegistry(tools map[string]ProcessConfig) RunnerOption {
	return func(r *Runner) {
		for name, tool := range tools {
			tool.Name = name
			r.registry[name] = tool
		}
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithGracePeriod overrides DefaultGracePeriod.
func WithGracePeriod(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.grace = d
	}
}

// NewRunner creates a new Process Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: make(map[string]ProcessConfig),
		grace:    DefaultGracePeriod,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted command to the allow-list.
func (r *Runner) Register(name string, command string, args ...string) {
	r.registry[name] = ProcessConfig{Name: name, Command: command, Args: args}
}

// Tool returns the configuration of a registered tool.
func (r *Runner) Tool(name string) (ProcessConfig, bool) {
	tool, ok := r.registry[name]
	return tool, ok
}

// Names returns the registered tool names, sorted.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.registry))
	for name := range r.registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes the named tool. stdin may be nil. A trimmed stdout that parses
// as a JSON object or array is returned decoded; anything else is returned as
// a string.
func (r *Runner) Run(ctx context.Context, name string, args map[string]any, stdin io.Reader) (any, error) {
	tool, ok := r.registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}

	cmd := exec.CommandContext(ctx, tool.Command, tool.Args...)
	cmd.Dir = r.baseDir
	cmd.Stdin = stdin
	// Interrupt first so well-behaved tools can clean up; WaitDelay bounds the wait.
	cmd.Cancel = func() error {
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
	cmd.WaitDelay = r.grace

	cmd.Env = cmd.Environ()
	for k, v := range tool.Environment {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	for k, v := range args {
		cmd.Env = append(cmd.Env, EnvPrefix+envKey(k)+"="+envValue(v))
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrExecution, name, ctxErr)
		}
		return nil, fmt.Errorf("%w: %s: %v: %s", ErrExecution, name, err, strings.TrimSpace(stderr.String()))
	}
	return decode(stdout.String()), nil
}

func decode(output string) any {
	trimmed := strings.TrimSpace(output)
	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return trimmed
}

// envKey upper-cases k and replaces anything outside [A-Z0-9_] with '_'.
func envKey(k string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, k)
}

// envValue formats primitives directly and everything else as JSON.
func envValue(v any) string {
	switch v.(type) {
	case string, int, int64, float64, bool:
		return fmt.Sprintf("%v", v)
	case nil:
		return ""
	}
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return fmt.Sprintf("%v", v)
}

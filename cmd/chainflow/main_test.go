package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/chainflow"
)

const greeterYAML = `
id: greeter
agents:
  - id: ask
    type: user
    with: {param: name}
  - id: hello
    type: template
    params: [{name: name, required: true}]
    with: {text: "Hello, {{.name}}!"}
nodes:
  - agent: ask
  - agent: hello
`

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(bytes.NewReader(nil))
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greeter.yaml"), []byte(greeterYAML), 0644))

	assert.Contains(t, execute(t, "version"), chainflow.Version)
	assert.Contains(t, execute(t, "validate", "--dir", dir), "1 chain(s) valid.")

	graph := execute(t, "graph", "greeter", "--dir", dir)
	assert.Contains(t, graph, "graph TD")
	assert.Contains(t, graph, "greeter_hello")

	execute(t, "run", "greeter", "--dir", dir, "--headless")
	assert.Contains(t, execute(t, "session", "ls", "--dir", dir), "greeter")
}

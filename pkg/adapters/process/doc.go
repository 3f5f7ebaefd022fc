// Package process runs allow-listed local commands as agents and as a chat
// client. Tools are declared in a tools.yaml file; arguments travel as
// CHAINFLOW_ARG_* environment variables.
package process

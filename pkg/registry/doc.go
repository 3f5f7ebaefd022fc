// Package registry resolves agent type names used by chain definitions into
// agents. Hosts create a Registry, register the built-in types with
// RegisterBuiltins and add their own factories or plain functions.
package registry

// Package definition loads declarative chain definitions (YAML or JSON) and
// compiles them into runnable chains.
//
// A definition names its kind (sequential, parallel, loop, router), declares
// agents by registry type and lists nodes. Nodes reference an agent, hold a
// router with its own target nodes, or embed a nested chain definition.
// Conditions (when, skip) and expression routes are evaluated by the
// configured ports.ExpressionEngine.
package definition

// Package agent provides ready-made agents for chains.
//
// Func and Value wrap Go functions, Template renders text from bound variables,
// Chat calls a ports.ChatClient and User waits for a human answer. All of them
// embed Base, which carries the id, declared parameters, output keys and an
// output mapping table.
package agent

/*
Package observability turns chain events into metrics and structured logs.

Both listeners subscribe to domain.EventAny on a root chain; events of nested
chains bubble up to them.
*/
package observability

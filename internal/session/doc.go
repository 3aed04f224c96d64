// Package session threads protocol state through a shared transport.
//
// A Session is a lightweight view: a transport reference plus a cursor
// pointing at the interaction that most recently produced a state token.
// Fork copies the cursor, so independent lines of commands can be explored
// over one connection without disturbing each other. A Session is not safe
// for concurrent use; fork instead and drive each fork from one goroutine.
package session

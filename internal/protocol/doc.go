// Package protocol owns the wire contract shared with stateful
// interpreter servers.
//
// Ownership boundary:
// - netstring framing primitives
// - JSON-RPC request/reply envelopes and state tokens
// - tagged wire value primitives
package protocol

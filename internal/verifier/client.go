// Package verifier is the thin typed surface over a session: one method
// per server operation, parameters named the way the server names them.
package verifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/danmuck/statelink/internal/protocol/wire"
	"github.com/danmuck/statelink/internal/session"
)

// Client wraps one session with named operations.
type Client struct {
	sess *session.Session
}

func New(sess *session.Session) *Client {
	return &Client{sess: sess}
}

// Fork snapshots the underlying session so this client's line of commands
// can continue independently.
func (c *Client) Fork() *Client {
	return &Client{sess: c.sess.Fork()}
}

func (c *Client) Session() *session.Session {
	return c.sess
}

// ChangeDirectory moves the server's working directory. Command.
func (c *Client) ChangeDirectory(ctx context.Context, dir string) (*session.Interaction, error) {
	return c.sess.Command(ctx, "change directory", map[string]any{"directory": dir})
}

// LoadModule loads a source file into the server. Command.
func (c *Client) LoadModule(ctx context.Context, file string) (*session.Interaction, error) {
	return c.sess.Command(ctx, "load module", map[string]any{"file": file})
}

// LoadFile loads a bare source file, untyped, into the server. Command.
func (c *Client) LoadFile(ctx context.Context, file string) (*session.Interaction, error) {
	return c.sess.Command(ctx, "load file", map[string]any{"file": file})
}

// EvaluateExpression evaluates expr against the current state. Query.
func (c *Client) EvaluateExpression(ctx context.Context, expr string) (*session.Interaction, error) {
	return c.sess.Query(ctx, "evaluate expression", map[string]any{"expression": expr})
}

// VisibleNames lists the names in scope. Query.
func (c *Client) VisibleNames(ctx context.Context) (*session.Interaction, error) {
	return c.sess.Query(ctx, "visible names", nil)
}

// CallResult resolves a function call's answer to its wire value.
type CallResult struct {
	*session.Interaction
}

// Value extracts and decodes the "value" field of the call answer.
func (r CallResult) Value(ctx context.Context) (wire.Value, error) {
	answer, err := r.Result(ctx)
	if err != nil {
		return wire.Value{}, err
	}
	var body struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(answer, &body); err != nil {
		return wire.Value{}, fmt.Errorf("verifier: call answer: %w", err)
	}
	if len(body.Value) == 0 {
		return wire.Value{}, fmt.Errorf("verifier: call answer carries no value")
	}
	return wire.DecodeJSON(body.Value)
}

// Call applies a named function to args, each encoded through the wire
// codec. Query.
func (c *Client) Call(ctx context.Context, fun string, args ...any) (CallResult, error) {
	encoded := make([]any, len(args))
	for i, arg := range args {
		v, err := wire.FromNative(arg)
		if err != nil {
			return CallResult{}, fmt.Errorf("verifier: argument %d: %w", i, err)
		}
		encoded[i] = wire.Encode(v)
	}
	it, err := c.sess.Query(ctx, "call", map[string]any{
		"function":  fun,
		"arguments": encoded,
	})
	if err != nil {
		return CallResult{}, err
	}
	return CallResult{Interaction: it}, nil
}

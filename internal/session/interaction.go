package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/danmuck/statelink/internal/protocol"
	"github.com/danmuck/statelink/internal/protocol/wire"
	"github.com/danmuck/statelink/internal/transport"
)

var ErrMissingState = errors.New("session: command reply carries no state token")

// Kind distinguishes state-advancing commands from read-only queries.
type Kind int

const (
	KindCommand Kind = iota + 1
	KindQuery
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindQuery:
		return "query"
	default:
		return "invalid"
	}
}

// ServerError is a failure reply, carrying the server's message verbatim
// plus any structured diagnostic payload.
type ServerError struct {
	Method  string
	Code    int
	Message string
	Data    json.RawMessage
}

func (e *ServerError) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("server error %d on %q: %s %s", e.Code, e.Method, e.Message, e.Data)
	}
	return fmt.Sprintf("server error %d on %q: %s", e.Code, e.Method, e.Message)
}

// Interaction is one outstanding or completed request. The id is assigned
// at send time and never changes; the reply is fetched lazily and cached.
type Interaction struct {
	tr        *transport.Transport
	id        uint64
	method    string
	kind      Kind
	initState json.RawMessage

	mu       sync.Mutex
	resolved bool
	resp     protocol.Response
}

func (it *Interaction) ID() uint64     { return it.id }
func (it *Interaction) Method() string { return it.method }
func (it *Interaction) Kind() Kind     { return it.kind }

// Raw blocks until the reply is available and returns it as received.
func (it *Interaction) Raw(ctx context.Context) (protocol.Response, error) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.resolved {
		return it.resp, nil
	}
	resp, err := it.tr.WaitFor(ctx, it.id)
	if err != nil {
		return protocol.Response{}, err
	}
	it.resp = resp
	it.resolved = true
	return resp, nil
}

// Result blocks for the reply and returns the raw answer, or a
// *ServerError when the server reported a failure.
func (it *Interaction) Result(ctx context.Context) (json.RawMessage, error) {
	resp, err := it.Raw(ctx)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, &ServerError{
			Method:  it.method,
			Code:    resp.Error.Code,
			Message: resp.Error.Message,
			Data:    resp.Error.Data,
		}
	}
	return resp.Result.Answer, nil
}

// Value returns the answer decoded through the wire value codec.
func (it *Interaction) Value(ctx context.Context) (wire.Value, error) {
	answer, err := it.Result(ctx)
	if err != nil {
		return wire.Value{}, err
	}
	return wire.DecodeJSON(answer)
}

// StateToken returns the state this interaction exposes to its successors:
// the reply's new state for a command, the construction-time snapshot for
// a query.
func (it *Interaction) StateToken(ctx context.Context) (json.RawMessage, error) {
	if it.kind == KindQuery {
		return it.initState, nil
	}
	resp, err := it.Raw(ctx)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, &ServerError{
			Method:  it.method,
			Code:    resp.Error.Code,
			Message: resp.Error.Message,
			Data:    resp.Error.Data,
		}
	}
	if len(resp.Result.State) == 0 {
		return nil, fmt.Errorf("%w: method %q", ErrMissingState, it.method)
	}
	return resp.Result.State, nil
}

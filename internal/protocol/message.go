package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Version is the only jsonrpc version the servers speak.
const Version = "2.0"

// StateKey is the params field carrying the caller's protocol-state token.
const StateKey = "state"

// FreshState is the token for a server that has not executed any command
// on behalf of this logical session: the empty sequence.
func FreshState() json.RawMessage {
	return json.RawMessage("[]")
}

// Request is one client->server message.
type Request struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	ID      uint64         `json:"id"`
	Params  map[string]any `json:"params"`
}

func NewRequest(id uint64, method string, params map[string]any) Request {
	if params == nil {
		params = map[string]any{}
	}
	return Request{
		JSONRPC: Version,
		Method:  method,
		ID:      id,
		Params:  params,
	}
}

func (r Request) Validate() error {
	if r.JSONRPC != Version {
		return fmt.Errorf("%w: jsonrpc=%q", ErrInvalidRequest, r.JSONRPC)
	}
	if strings.TrimSpace(r.Method) == "" {
		return fmt.Errorf("%w: missing method", ErrInvalidRequest)
	}
	if r.ID == 0 {
		return fmt.Errorf("%w: missing id", ErrInvalidRequest)
	}
	return nil
}

// Result is the success half of a reply. State is present for commands and
// absent for queries; both halves are kept opaque until a caller decodes
// the answer.
type Result struct {
	Answer json.RawMessage `json:"answer"`
	State  json.RawMessage `json:"state,omitempty"`
}

// ResponseError is the failure half of a reply, verbatim from the server.
type ResponseError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Response is one server->client message, stored under its request id.
type Response struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      uint64         `json:"id"`
	Result  *Result        `json:"result,omitempty"`
	Error   *ResponseError `json:"error,omitempty"`

	raw json.RawMessage
}

func (r Response) Validate() error {
	if r.JSONRPC != "" && r.JSONRPC != Version {
		return fmt.Errorf("%w: jsonrpc=%q", ErrVersionMismatch, r.JSONRPC)
	}
	if r.Result == nil && r.Error == nil {
		return ErrMissingResult
	}
	if r.Result != nil && r.Error != nil {
		return ErrAmbiguousResponse
	}
	return nil
}

// Raw returns the reply exactly as received, for diagnostics.
func (r Response) Raw() json.RawMessage {
	return r.raw
}

// EncodeRequest validates and marshals one request payload. Framing is the
// transport's concern.
func EncodeRequest(r Request) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(r)
}

// DecodeResponse parses one reply payload. The result is validated so a
// stored reply is never half-formed.
func DecodeResponse(payload []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if err := resp.Validate(); err != nil {
		return Response{}, err
	}
	resp.raw = append(json.RawMessage(nil), payload...)
	return resp, nil
}

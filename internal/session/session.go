package session

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/danmuck/statelink/internal/logging"
	"github.com/danmuck/statelink/internal/protocol"
	"github.com/danmuck/statelink/internal/transport"
)

// Session is one logical line of commands and queries over a shared
// transport. The cursor points at the interaction whose reply holds the
// state token the next operation should consume.
type Session struct {
	tr     *transport.Transport
	log    zerolog.Logger
	cursor *Interaction
}

func New(tr *transport.Transport) *Session {
	return &Session{
		tr:  tr,
		log: logging.Logger("session"),
	}
}

// Fork returns an independent session sharing this one's transport, with
// its cursor copied as of now. Commands on either session advance only
// that session's own cursor; ids and replies stay global to the transport.
func (s *Session) Fork() *Session {
	return &Session{
		tr:     s.tr,
		log:    s.log,
		cursor: s.cursor,
	}
}

func (s *Session) Transport() *transport.Transport {
	return s.tr
}

// StateToken resolves the state the next operation should carry: the fresh
// empty-sequence token when nothing has run yet, otherwise the cursor
// interaction's resulting state. Resolving may block on the cursor's reply.
func (s *Session) StateToken(ctx context.Context) (json.RawMessage, error) {
	if s.cursor == nil {
		return protocol.FreshState(), nil
	}
	return s.cursor.StateToken(ctx)
}

// Command sends a state-advancing operation and moves the cursor to the
// returned interaction. The reply is not awaited here.
func (s *Session) Command(ctx context.Context, method string, params map[string]any) (*Interaction, error) {
	it, err := s.issue(ctx, KindCommand, method, params)
	if err != nil {
		return nil, err
	}
	s.cursor = it
	return it, nil
}

// Query sends a read-only operation carrying a snapshot of the current
// state. The cursor is untouched.
func (s *Session) Query(ctx context.Context, method string, params map[string]any) (*Interaction, error) {
	return s.issue(ctx, KindQuery, method, params)
}

func (s *Session) issue(ctx context.Context, kind Kind, method string, params map[string]any) (*Interaction, error) {
	state, err := s.StateToken(ctx)
	if err != nil {
		return nil, err
	}

	sent := make(map[string]any, len(params)+1)
	for k, v := range params {
		sent[k] = v
	}
	sent[protocol.StateKey] = state

	id, err := s.tr.Send(method, sent)
	if err != nil {
		return nil, err
	}
	s.log.Debug().Uint64("id", id).Str("method", method).Stringer("kind", kind).Msg("issued")
	return &Interaction{
		tr:        s.tr,
		id:        id,
		method:    method,
		kind:      kind,
		initState: state,
	}, nil
}

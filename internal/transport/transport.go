package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/statelink/internal/logging"
	"github.com/danmuck/statelink/internal/protocol"
	"github.com/danmuck/statelink/internal/protocol/netstring"
)

var (
	// ErrClosed reports a connection that was closed locally or severed by
	// the peer. Fatal; the transport cannot be reused.
	ErrClosed = errors.New("transport: connection closed")

	// ErrProtocol reports a malformed frame or reply from the server.
	// Fatal; the byte stream cannot be resynchronized.
	ErrProtocol = errors.New("transport: protocol violation")
)

// pumpGrab bounds how long Pump waits for the first readable byte. It is
// a drain of what is already in flight, not a wait.
const pumpGrab = time.Millisecond

// Transport is the owner of one connection: the socket, the request id
// source, the inbound byte accumulator, and the reply map. Replies are
// retained for the transport's lifetime.
type Transport struct {
	cfg    Config
	log    zerolog.Logger
	nextID atomic.Uint64

	mu      sync.Mutex
	conn    net.Conn
	buf     []byte
	scratch []byte
	replies map[uint64]protocol.Response
	fatal   error
}

// Dial connects to a server at addr.
func Dial(addr string, cfg Config) (*Transport, error) {
	cfg = cfg.WithDefaults()
	conn, err := net.DialTimeout("tcp", addr, cfg.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	t := &Transport{
		cfg:     cfg,
		log:     logging.Logger("transport"),
		conn:    conn,
		scratch: make([]byte, 4096),
		replies: make(map[uint64]protocol.Response),
	}
	t.log.Debug().Str("addr", addr).Msg("connected")
	return t, nil
}

// DialPort connects to a locally launched server announcing the given port.
func DialPort(port int, cfg Config) (*Transport, error) {
	return Dial(fmt.Sprintf("127.0.0.1:%d", port), cfg)
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fatal == nil {
		t.fatal = ErrClosed
	}
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// Send allocates a fresh request id, frames the request, and writes it.
// It returns as soon as the bytes are on the wire; it never waits for the
// reply.
func (t *Transport) Send(method string, params map[string]any) (uint64, error) {
	id := t.nextID.Add(1)
	payload, err := protocol.EncodeRequest(protocol.NewRequest(id, method, params))
	if err != nil {
		return 0, err
	}
	frame := netstring.Encode(string(payload))

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fatal != nil {
		return 0, t.fatal
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout)); err != nil {
		return 0, t.fail(err)
	}
	if _, err := t.conn.Write(frame); err != nil {
		return 0, t.fail(err)
	}
	t.log.Debug().Uint64("id", id).Str("method", method).Int("bytes", len(frame)).Msg("sent")
	return id, nil
}

// Pump drains whatever the server has already written, decodes every
// complete frame in the accumulator, and shelves the replies by id. It
// treats "nothing readable" as done, not as an error.
func (t *Transport) Pump() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fatal != nil {
		return t.fatal
	}
	var fillErr error
	for {
		n, err := t.fillLocked(time.Now().Add(pumpGrab))
		if err != nil {
			fillErr = err
			break
		}
		if n == 0 {
			break
		}
	}
	// Frames that made it into the accumulator are decoded even when the
	// read that followed them failed.
	if err := t.decodeLocked(); err != nil {
		return err
	}
	return fillErr
}

// WaitFor blocks until the reply for id is available, reading and shelving
// replies for other ids along the way. Cancellation and deadlines come
// from ctx; with a background context it waits indefinitely, like the
// servers' own clients do.
func (t *Transport) WaitFor(ctx context.Context, id uint64) (protocol.Response, error) {
	for {
		t.mu.Lock()
		if resp, ok := t.replies[id]; ok {
			t.mu.Unlock()
			return resp, nil
		}
		if t.fatal != nil {
			err := t.fatal
			t.mu.Unlock()
			return protocol.Response{}, err
		}

		deadline := time.Now().Add(t.cfg.PollInterval)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		_, fillErr := t.fillLocked(deadline)
		decErr := t.decodeLocked()
		if resp, ok := t.replies[id]; ok {
			// The bytes that arrived with the failure may have completed
			// this very reply.
			t.mu.Unlock()
			return resp, nil
		}
		t.mu.Unlock()
		if decErr != nil {
			return protocol.Response{}, decErr
		}
		if fillErr != nil {
			return protocol.Response{}, fillErr
		}
		if err := ctx.Err(); err != nil {
			return protocol.Response{}, err
		}
	}
}

// HasReply reports whether the reply for id has already been shelved.
func (t *Transport) HasReply(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.replies[id]
	return ok
}

// fillLocked performs one deadline-bounded read into the accumulator.
// A deadline expiry is "no data", not an error. Peer shutdown poisons the
// transport.
func (t *Transport) fillLocked(deadline time.Time) (int, error) {
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return 0, t.fail(err)
	}
	n, err := t.conn.Read(t.scratch)
	if n > 0 {
		t.buf = append(t.buf, t.scratch[:n]...)
	}
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return n, nil
		}
		return n, t.fail(err)
	}
	return n, nil
}

// decodeLocked consumes every complete frame in the accumulator. Bytes of
// a trailing incomplete frame stay buffered for the next read.
func (t *Transport) decodeLocked() error {
	for {
		msg, rest, err := netstring.Decode(t.buf, t.cfg.Limits)
		if errors.Is(err, netstring.ErrIncomplete) {
			return nil
		}
		if err != nil {
			return t.fail(fmt.Errorf("%w: %v", ErrProtocol, err))
		}
		t.buf = rest

		resp, err := protocol.DecodeResponse([]byte(msg))
		if err != nil {
			return t.fail(fmt.Errorf("%w: %v", ErrProtocol, err))
		}
		// Replies for ids nobody asked about yet are shelved all the same.
		t.replies[resp.ID] = resp
		t.log.Debug().Uint64("id", resp.ID).Bool("error", resp.Error != nil).Msg("reply shelved")
	}
}

// fail poisons the transport with the first fatal error and keeps
// returning it.
func (t *Transport) fail(err error) error {
	if t.fatal != nil {
		return t.fatal
	}
	switch {
	case errors.Is(err, ErrProtocol):
		t.fatal = err
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		t.fatal = ErrClosed
	default:
		t.fatal = fmt.Errorf("%w: %v", ErrClosed, err)
	}
	t.log.Error().Err(t.fatal).Msg("transport failed")
	return t.fatal
}

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/danmuck/statelink/internal/protocol"
	"github.com/danmuck/statelink/internal/protocol/netstring"
	"github.com/danmuck/statelink/internal/testutil/testlog"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ConnectTimeout = 500 * time.Millisecond
	cfg.WriteTimeout = 500 * time.Millisecond
	cfg.PollInterval = 20 * time.Millisecond
	return cfg
}

func startEndpoint(t *testing.T, serve func(conn net.Conn) error) (string, chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		defer ln.Close()
		conn, err := ln.Accept()
		if err != nil {
			done <- err
			return
		}
		defer conn.Close()
		done <- serve(conn)
	}()
	t.Cleanup(func() { _ = ln.Close() })
	return ln.Addr().String(), done
}

// readRequest consumes one framed request from conn.
func readRequest(conn net.Conn, buf *[]byte) (protocol.Request, error) {
	scratch := make([]byte, 4096)
	for {
		msg, rest, err := netstring.Decode(*buf, netstring.DefaultLimits())
		if err == nil {
			*buf = rest
			var req protocol.Request
			if err := json.Unmarshal([]byte(msg), &req); err != nil {
				return protocol.Request{}, err
			}
			return req, nil
		}
		if !errors.Is(err, netstring.ErrIncomplete) {
			return protocol.Request{}, err
		}
		n, err := conn.Read(scratch)
		if n > 0 {
			*buf = append(*buf, scratch[:n]...)
		}
		if err != nil {
			return protocol.Request{}, err
		}
	}
}

func successReply(id uint64, answer string, state string) []byte {
	msg := fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":{"answer":%s,"state":%s}}`, id, answer, state)
	return netstring.Encode(msg)
}

func TestSendAssignsMonotonicIDs(t *testing.T) {
	testlog.Start(t)
	addr, done := startEndpoint(t, func(conn net.Conn) error {
		var buf []byte
		for i := 0; i < 3; i++ {
			if _, err := readRequest(conn, &buf); err != nil {
				return err
			}
		}
		return nil
	})

	tr, err := Dial(addr, testConfig())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer tr.Close()

	for want := uint64(1); want <= 3; want++ {
		id, err := tr.Send("noop", nil)
		if err != nil {
			t.Fatalf("send: %v", err)
		}
		if id != want {
			t.Fatalf("unexpected id: got %d want %d", id, want)
		}
	}
	if err := <-done; err != nil {
		t.Fatalf("endpoint: %v", err)
	}
}

func TestWaitForResolvesOutOfOrderReplies(t *testing.T) {
	testlog.Start(t)
	addr, done := startEndpoint(t, func(conn net.Conn) error {
		var buf []byte
		if _, err := readRequest(conn, &buf); err != nil {
			return err
		}
		if _, err := readRequest(conn, &buf); err != nil {
			return err
		}
		// Reply to the second request before the first.
		if _, err := conn.Write(successReply(2, `"second"`, `["s2"]`)); err != nil {
			return err
		}
		_, err := conn.Write(successReply(1, `"first"`, `["s1"]`))
		return err
	})

	tr, err := Dial(addr, testConfig())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer tr.Close()

	id1, err := tr.Send("first", nil)
	if err != nil {
		t.Fatalf("send first: %v", err)
	}
	id2, err := tr.Send("second", nil)
	if err != nil {
		t.Fatalf("send second: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := tr.WaitFor(ctx, id1)
	if err != nil {
		t.Fatalf("wait for first: %v", err)
	}
	if string(resp.Result.Answer) != `"first"` {
		t.Fatalf("unexpected answer: %s", resp.Result.Answer)
	}
	// The earlier-arriving reply for id2 was shelved, not dropped.
	if !tr.HasReply(id2) {
		t.Fatalf("reply for id %d was dropped", id2)
	}
	resp, err = tr.WaitFor(ctx, id2)
	if err != nil {
		t.Fatalf("wait for second: %v", err)
	}
	if string(resp.Result.Answer) != `"second"` {
		t.Fatalf("unexpected answer: %s", resp.Result.Answer)
	}
	if err := <-done; err != nil {
		t.Fatalf("endpoint: %v", err)
	}
}

func TestWaitForSurvivesSplitFrames(t *testing.T) {
	testlog.Start(t)
	reply := successReply(1, "7", `[]`)
	addr, done := startEndpoint(t, func(conn net.Conn) error {
		var buf []byte
		if _, err := readRequest(conn, &buf); err != nil {
			return err
		}
		for _, b := range reply {
			if _, err := conn.Write([]byte{b}); err != nil {
				return err
			}
			time.Sleep(time.Millisecond)
		}
		return nil
	})

	tr, err := Dial(addr, testConfig())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer tr.Close()

	id, err := tr.Send("slow", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := tr.WaitFor(ctx, id)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if string(resp.Result.Answer) != "7" {
		t.Fatalf("unexpected answer: %s", resp.Result.Answer)
	}
	if err := <-done; err != nil {
		t.Fatalf("endpoint: %v", err)
	}
}

func TestWaitForAbortsOnMalformedFrame(t *testing.T) {
	testlog.Start(t)
	addr, done := startEndpoint(t, func(conn net.Conn) error {
		var buf []byte
		if _, err := readRequest(conn, &buf); err != nil {
			return err
		}
		_, err := conn.Write([]byte("not a netstring"))
		return err
	})

	tr, err := Dial(addr, testConfig())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer tr.Close()

	id, err := tr.Send("whatever", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := tr.WaitFor(ctx, id); !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("endpoint: %v", err)
	}
}

func TestWaitForReportsSeveredConnection(t *testing.T) {
	testlog.Start(t)
	addr, done := startEndpoint(t, func(conn net.Conn) error {
		var buf []byte
		if _, err := readRequest(conn, &buf); err != nil {
			return err
		}
		return conn.Close()
	})

	tr, err := Dial(addr, testConfig())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer tr.Close()

	id, err := tr.Send("whatever", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := tr.WaitFor(ctx, id); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("endpoint: %v", err)
	}
}

func TestWaitForHonorsContextDeadline(t *testing.T) {
	testlog.Start(t)
	addr, done := startEndpoint(t, func(conn net.Conn) error {
		var buf []byte
		if _, err := readRequest(conn, &buf); err != nil {
			return err
		}
		// Never answer; block until the client hangs up.
		_, err := readRequest(conn, &buf)
		return err
	})

	tr, err := Dial(addr, testConfig())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	id, err := tr.Send("never answered", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := tr.WaitFor(ctx, id); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	_ = tr.Close()
	if err := <-done; err == nil {
		t.Fatalf("endpoint should observe close")
	}
}

func TestPumpShelvesWithoutBlocking(t *testing.T) {
	testlog.Start(t)
	addr, done := startEndpoint(t, func(conn net.Conn) error {
		var buf []byte
		if _, err := readRequest(conn, &buf); err != nil {
			return err
		}
		_, err := conn.Write(successReply(1, "true", `[]`))
		return err
	})

	tr, err := Dial(addr, testConfig())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer tr.Close()

	id, err := tr.Send("ping", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !tr.HasReply(id) {
		if time.Now().After(deadline) {
			t.Fatalf("reply never shelved")
		}
		if err := tr.Pump(); err != nil {
			t.Fatalf("pump: %v", err)
		}
	}
	if err := <-done; err != nil {
		t.Fatalf("endpoint: %v", err)
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	testlog.Start(t)
	addr, done := startEndpoint(t, func(conn net.Conn) error {
		var buf []byte
		if _, err := readRequest(conn, &buf); err != nil {
			return err
		}
		_, err := readRequest(conn, &buf)
		return err
	})

	tr, err := Dial(addr, testConfig())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if _, err := tr.Send("first", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := tr.Send("second", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := <-done; err == nil {
		t.Fatalf("endpoint should observe close")
	}
}

func TestDialRefusedConnection(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	if _, err := Dial(addr, testConfig()); err == nil {
		t.Fatalf("expected dial failure")
	}
}

package launch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/statelink/internal/testutil/testlog"
)

func TestStartParsesAnnouncedPort(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p, err := Start(ctx, "sh", "-c", "echo 'PORT 45001'; sleep 60")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Close()
	if p.Port != 45001 {
		t.Fatalf("unexpected port: %d", p.Port)
	}
}

func TestStartRejectsMalformedAnnouncement(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Start(ctx, "sh", "-c", "echo 'listening on 45001'")
	if !errors.Is(err, ErrBadAnnouncement) {
		t.Fatalf("expected ErrBadAnnouncement, got %v", err)
	}
}

func TestStartRejectsSilentExit(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Start(ctx, "true")
	if !errors.Is(err, ErrNoAnnouncement) {
		t.Fatalf("expected ErrNoAnnouncement, got %v", err)
	}
}

func TestStartRejectsOutOfRangePort(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Start(ctx, "sh", "-c", "echo 'PORT 99999999'")
	if !errors.Is(err, ErrBadAnnouncement) {
		t.Fatalf("expected ErrBadAnnouncement, got %v", err)
	}
}

func TestStartRequiresCommand(t *testing.T) {
	testlog.Start(t)
	_, err := Start(context.Background(), "")
	if !errors.Is(err, ErrCommandRequired) {
		t.Fatalf("expected ErrCommandRequired, got %v", err)
	}
}

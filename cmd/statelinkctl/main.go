package main

import (
	"context"
	"fmt"
	"os"

	"github.com/danmuck/statelink/internal/launch"
	"github.com/danmuck/statelink/internal/logging"
	"github.com/danmuck/statelink/internal/session"
	"github.com/danmuck/statelink/internal/transport"
	"github.com/danmuck/statelink/internal/verifier"
)

func main() {
	logging.ConfigureRuntime()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "statelinkctl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	path := "config.toml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg, err := loadRunConfig(path)
	if err != nil {
		return err
	}

	ctx := context.Background()
	tr, cleanup, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	client := verifier.New(session.New(tr))
	if cfg.Module != "" {
		it, err := client.LoadModule(ctx, cfg.Module)
		if err != nil {
			return err
		}
		if _, err := it.Result(ctx); err != nil {
			return err
		}
	}
	if cfg.Expression != "" {
		it, err := client.EvaluateExpression(ctx, cfg.Expression)
		if err != nil {
			return err
		}
		answer, err := it.Result(ctx)
		if err != nil {
			return err
		}
		fmt.Println(string(answer))
	}
	return nil
}

// connect launches the configured server command, or dials a running one
// when an address is given instead.
func connect(ctx context.Context, cfg runConfig) (*transport.Transport, func(), error) {
	if cfg.Address != "" {
		tr, err := transport.Dial(cfg.Address, cfg.Transport)
		if err != nil {
			return nil, nil, err
		}
		return tr, func() { _ = tr.Close() }, nil
	}

	proc, err := launch.Start(ctx, cfg.ServerCommand, cfg.ServerArgs...)
	if err != nil {
		return nil, nil, err
	}
	tr, err := transport.DialPort(proc.Port, cfg.Transport)
	if err != nil {
		_ = proc.Close()
		return nil, nil, err
	}
	return tr, func() {
		_ = tr.Close()
		_ = proc.Close()
	}, nil
}

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/statelink/internal/transport"
)

var errNoServer = errors.New("config: either address or server_command is required")

type runConfig struct {
	ServerCommand string
	ServerArgs    []string
	Address       string
	Module        string
	Expression    string
	Transport     transport.Config
}

// statelinkctl config.toml key mapping to runtime settings.
type fileConfig struct {
	ServerCommand  string   `toml:"server_command"`
	ServerArgs     []string `toml:"server_args"`
	Address        string   `toml:"address"`
	Module         string   `toml:"module"`
	Expression     string   `toml:"expression"`
	ConnectTimeout string   `toml:"connect_timeout"`
	WriteTimeout   string   `toml:"write_timeout"`
	PollInterval   string   `toml:"poll_interval"`
	MaxFrameBytes  int      `toml:"max_frame_bytes"`
}

func defaultRunConfig() runConfig {
	return runConfig{
		Transport: transport.DefaultConfig(),
	}
}

func loadRunConfig(path string) (runConfig, error) {
	cfg := defaultRunConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return runConfig{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("server_command") {
		cfg.ServerCommand = strings.TrimSpace(raw.ServerCommand)
	}
	if meta.IsDefined("server_args") {
		cfg.ServerArgs = raw.ServerArgs
	}
	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("module") {
		cfg.Module = strings.TrimSpace(raw.Module)
	}
	if meta.IsDefined("expression") {
		cfg.Expression = raw.Expression
	}

	if meta.IsDefined("connect_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ConnectTimeout))
		if err != nil {
			return runConfig{}, fmt.Errorf("parse connect_timeout: %w", err)
		}
		cfg.Transport.ConnectTimeout = d
	}
	if meta.IsDefined("write_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.WriteTimeout))
		if err != nil {
			return runConfig{}, fmt.Errorf("parse write_timeout: %w", err)
		}
		cfg.Transport.WriteTimeout = d
	}
	if meta.IsDefined("poll_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.PollInterval))
		if err != nil {
			return runConfig{}, fmt.Errorf("parse poll_interval: %w", err)
		}
		cfg.Transport.PollInterval = d
	}
	if meta.IsDefined("max_frame_bytes") {
		cfg.Transport.Limits.MaxFrameBytes = raw.MaxFrameBytes
	}

	if cfg.Address == "" && cfg.ServerCommand == "" {
		return runConfig{}, errNoServer
	}
	return cfg, nil
}

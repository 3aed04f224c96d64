// Package launch starts a server subprocess and captures its announced
// port. The announcement line on stdout is the entire handshake surface:
// "PORT <decimal>".
package launch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"

	"github.com/danmuck/statelink/internal/logging"
)

var (
	ErrCommandRequired = errors.New("launch: command required")
	ErrNoAnnouncement  = errors.New("launch: server exited before announcing a port")
	ErrBadAnnouncement = errors.New("launch: malformed port announcement")
)

var portLine = regexp.MustCompile(`^PORT (\d+)$`)

// Process is a running server subprocess whose port has been captured.
type Process struct {
	Port int
	cmd  *exec.Cmd
}

// Start launches command with args and blocks until the first stdout line.
// Only that line is consumed; the server keeps running until Close.
func Start(ctx context.Context, command string, args ...string) (*Process, error) {
	if command == "" {
		return nil, ErrCommandRequired
	}
	log := logging.Logger("launch")

	cmd := exec.CommandContext(ctx, command, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("launch: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launch: start %q: %w", command, err)
	}

	scanner := bufio.NewScanner(stdout)
	if !scanner.Scan() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoAnnouncement, err)
		}
		return nil, ErrNoAnnouncement
	}
	line := scanner.Text()

	match := portLine.FindStringSubmatch(line)
	if match == nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, fmt.Errorf("%w: %q", ErrBadAnnouncement, line)
	}
	port, err := strconv.Atoi(match[1])
	if err != nil || port <= 0 || port > 65535 {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, fmt.Errorf("%w: port %q out of range", ErrBadAnnouncement, match[1])
	}

	log.Info().Str("command", command).Int("port", port).Msg("server announced")
	return &Process{Port: port, cmd: cmd}, nil
}

// Close kills the server process and reaps it.
func (p *Process) Close() error {
	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil {
		_ = p.cmd.Wait()
		return err
	}
	_ = p.cmd.Wait()
	return nil
}

package mcp

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/agentforge/core/tools"
)

// StdioTransport spawns a child process and frames JSON-RPC over its
// stdin/stdout pipes, one message per line.
type StdioTransport struct {
	*lineTransport
	cmd *exec.Cmd
}

// NewStdioTransport starts cmd with args and env, wiring its stdin/stdout
// to a line-delimited JSON-RPC transport. env is expected to already have
// reserved keys filtered by tools.FilterEnv.
func NewStdioTransport(ctx context.Context, cmdPath string, args []string, env map[string]string) (*StdioTransport, error) {
	cmd := exec.CommandContext(ctx, cmdPath, args...)
	cmd.Env = make([]string, 0, len(env))
	for k, v := range env {
		if tools.IsReservedEnvVar(k) {
			continue
		}
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cmdPath, err)
	}
	return &StdioTransport{
		lineTransport: newLineTransport(stdin, stdout, stdin),
		cmd:           cmd,
	}, nil
}

// Close closes the child's stdin and waits for it to exit. A child that
// doesn't honor stdin closing as a shutdown signal is left to the caller's
// context cancellation to reap.
func (t *StdioTransport) Close() error {
	err := t.lineTransport.Close()
	_ = t.cmd.Wait()
	return err
}

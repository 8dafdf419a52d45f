// Package cliexec runs provider CLIs either on plain pipes or under a pseudo-terminal.
package cliexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
)

type Command struct {
	Path string
	Args []string
	Env  []string
	Dir  string
}

// Process is a started command whose output is read until EOF, then waited on.
type Process interface {
	io.Reader
	Wait() error
	Close() error
}

type Executor interface {
	// Output runs the command to completion.
	Output(ctx context.Context, cmd Command) (stdout, stderr []byte, err error)
	// Start runs the command and exposes its output as a stream.
	Start(ctx context.Context, cmd Command) (Process, error)
}

// ExitError carries the stderr of a command that exited non-zero.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return fmt.Sprintf("exit status %d: %s", e.Code, e.Stderr)
}

func build(ctx context.Context, c Command) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Env = c.Env
	cmd.Dir = c.Dir
	return cmd
}

// Pipes runs commands with separate stdout and stderr pipes.
type Pipes struct{}

func (Pipes) Output(ctx context.Context, c Command) ([]byte, []byte, error) {
	cmd := build(ctx, c)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if ctx.Err() != nil {
		return stdout.Bytes(), stderr.Bytes(), ctx.Err()
	}
	return stdout.Bytes(), stderr.Bytes(), exitError(err, stderr.String())
}

func (Pipes) Start(ctx context.Context, c Command) (Process, error) {
	cmd := build(ctx, c)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", c.Path, err)
	}
	return &pipeProcess{ReadCloser: out, cmd: cmd, stderr: &stderr, ctx: ctx}, nil
}

type pipeProcess struct {
	io.ReadCloser
	cmd    *exec.Cmd
	stderr *bytes.Buffer
	ctx    context.Context
}

func (p *pipeProcess) Wait() error {
	err := p.cmd.Wait()
	if p.ctx.Err() != nil {
		return p.ctx.Err()
	}
	return exitError(err, p.stderr.String())
}

// Terminal runs commands attached to a pseudo-terminal, for CLIs that refuse to run without a TTY.
type Terminal struct {
	Rows uint16
	Cols uint16
}

func (t Terminal) size() *pty.Winsize {
	rows, cols := t.Rows, t.Cols
	if rows == 0 {
		rows = 24
	}
	if cols == 0 {
		cols = 200
	}
	return &pty.Winsize{Rows: rows, Cols: cols}
}

func (t Terminal) Output(ctx context.Context, c Command) ([]byte, []byte, error) {
	proc, err := t.Start(ctx, c)
	if err != nil {
		return nil, nil, err
	}
	defer proc.Close()
	out, readErr := io.ReadAll(proc)
	waitErr := proc.Wait()
	if waitErr != nil {
		return out, nil, waitErr
	}
	if readErr != nil {
		return out, nil, fmt.Errorf("read terminal: %w", readErr)
	}
	return out, nil, nil
}

func (t Terminal) Start(ctx context.Context, c Command) (Process, error) {
	cmd := build(ctx, c)
	f, err := pty.StartWithSize(cmd, t.size())
	if err != nil {
		return nil, fmt.Errorf("start %s on pty: %w", c.Path, err)
	}
	return &ptyProcess{f: f, cmd: cmd, ctx: ctx}, nil
}

type ptyProcess struct {
	f   *os.File
	cmd *exec.Cmd
	ctx context.Context
}

// Read maps the EIO a pty master returns after the child exits to io.EOF.
func (p *ptyProcess) Read(b []byte) (int, error) {
	n, err := p.f.Read(b)
	if err != nil && errors.Is(err, syscall.EIO) {
		return n, io.EOF
	}
	return n, err
}

func (p *ptyProcess) Wait() error {
	err := p.cmd.Wait()
	if p.ctx.Err() != nil {
		return p.ctx.Err()
	}
	return exitError(err, "")
}

func (p *ptyProcess) Close() error { return p.f.Close() }

func exitError(err error, stderr string) error {
	if err == nil {
		return nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return &ExitError{Code: ee.ExitCode(), Stderr: stderr}
	}
	return err
}

// LookPath reports whether the binary resolves on PATH (or is an existing path).
func LookPath(bin string) (string, error) {
	return exec.LookPath(bin)
}

// Fake is an Executor for tests that replays canned output.
type Fake struct {
	Stdout  string
	Stderr  string
	Err     error
	Calls   []Command
	OnStart func(ctx context.Context, cmd Command) error
}

func (f *Fake) Output(ctx context.Context, c Command) ([]byte, []byte, error) {
	f.Calls = append(f.Calls, c)
	if f.OnStart != nil {
		if err := f.OnStart(ctx, c); err != nil {
			return nil, nil, err
		}
	}
	return []byte(f.Stdout), []byte(f.Stderr), f.Err
}

func (f *Fake) Start(ctx context.Context, c Command) (Process, error) {
	f.Calls = append(f.Calls, c)
	if f.OnStart != nil {
		if err := f.OnStart(ctx, c); err != nil {
			return nil, err
		}
	}
	return &fakeProcess{Reader: bytes.NewBufferString(f.Stdout), err: f.Err}, nil
}

type fakeProcess struct {
	io.Reader
	err error
}

func (p *fakeProcess) Wait() error  { return p.err }
func (p *fakeProcess) Close() error { return nil }

// Package capability holds the adapters through which the engine changes
// the machine: shell commands, package managers, containers, the process
// environment and the firewall.
package capability

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"

	"github.com/balaji-balu/offsetup/internal/fault"
)

// Runner starts a program and waits for it.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// Exec runs programs found on PATH. A missing program is reported as
// CapabilityUnavailableError.
type Exec struct {
	Logger *zap.Logger
}

func (e Exec) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, fault.Wrap(fault.ErrCapabilityUnavailable, err, "%s", name)
	}
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if e.Logger != nil {
		e.Logger.Debug("exec", zap.String("cmd", name), zap.Strings("args", args), zap.String("dir", dir))
	}
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = errors.Join(ctx.Err(), err)
		}
		return out.Bytes(), &ExitError{Cmd: shellquote.Join(append([]string{name}, args...)...), Output: tail(out.String()), Err: err}
	}
	return out.Bytes(), nil
}

// ExitError is a program that ran and failed.
type ExitError struct {
	Cmd    string
	Output string
	Err    error
}

func (e *ExitError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s: %v", e.Cmd, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Cmd, e.Err, e.Output)
}

func (e *ExitError) Unwrap() error { return e.Err }

func tail(s string) string {
	s = strings.TrimSpace(s)
	lines := strings.Split(s, "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, "\n")
}

// classify wraps err with kind unless the tool itself was missing.
func classify(kind *fault.Kind, err error, format string, args ...any) error {
	if errors.Is(err, fault.ErrCapabilityUnavailable) {
		return err
	}
	return fault.Wrap(kind, err, format, args...)
}

// Shell runs pre_install and source install command lines.
type Shell interface {
	Run(ctx context.Context, line, dir string) error
}

// CommandShell executes simple command lines directly and hands anything
// using shell syntax to sh, or cmd on Windows.
type CommandShell struct {
	Runner Runner
	GOOS   string
}

func NewShell(r Runner) *CommandShell {
	return &CommandShell{Runner: r, GOOS: runtime.GOOS}
}

func (s *CommandShell) Run(ctx context.Context, line, dir string) error {
	name, args, err := s.argv(line)
	if err != nil {
		return fault.Wrap(fault.ErrCommand, err, "%s", line)
	}
	if _, err := s.Runner.Run(ctx, dir, name, args...); err != nil {
		return classify(fault.ErrCommand, err, "%s", line)
	}
	return nil
}

func (s *CommandShell) argv(line string) (string, []string, error) {
	if s.GOOS == "windows" {
		return "cmd", []string{"/C", line}, nil
	}
	if strings.ContainsAny(line, "|&;<>()$`*?~") {
		return "sh", []string{"-c", line}, nil
	}
	words, err := shellquote.Split(line)
	if err != nil {
		return "", nil, err
	}
	if len(words) == 0 {
		return "", nil, errors.New("empty command")
	}
	return words[0], words[1:], nil
}

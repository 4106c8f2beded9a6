// Package gotool wraps the go command in its archive-producing build modes.
package gotool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/execabs"
)

// ExecFunc runs a fully prepared command and reports its exit code. A nil
// error with a zero code is success; a non-nil error means the command
// could not run at all. It exists so tests can observe and fake process
// execution.
type ExecFunc func(ctx context.Context, cmd *exec.Cmd) (int, error)

// Go drives a go toolchain binary.
type Go struct {
	bin  string
	exec ExecFunc
}

// Option configures a Go.
type Option func(*Go)

// WithBin selects the go binary to run instead of the first "go" on PATH.
func WithBin(path string) Option {
	return func(g *Go) { g.bin = path }
}

// WithExec replaces the process executor.
func WithExec(fn ExecFunc) Option {
	return func(g *Go) { g.exec = fn }
}

// New locates the go binary and returns a ready-to-use Go.
func New(opts ...Option) (*Go, error) {
	g := &Go{}
	for _, opt := range opts {
		opt(g)
	}
	if g.bin == "" {
		bin, err := execabs.LookPath("go")
		if err != nil {
			return nil, fmt.Errorf("failed to locate go binary: %w", err)
		}
		g.bin = bin
	}
	if g.exec == nil {
		g.exec = runCmd
	}
	return g, nil
}

// Bin returns the path of the go binary in use.
func (g *Go) Bin() string { return g.bin }

func runCmd(ctx context.Context, cmd *exec.Cmd) (int, error) {
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return 0, err
}

// Invocation describes one "go build" run.
type Invocation struct {
	Dir       string // -C dir, must be the first flag (Go 1.21)
	BuildMode string // -buildmode value, e.g. "c-archive"
	Output    string // -o path
	Ldflags   string
	Trimpath  bool
	Flags     []string // extra flags, passed verbatim before the packages
	Packages  []string
	Env       []string  // full child environment
	Stderr    io.Writer // diagnostics sink, defaults to os.Stderr
}

// Args assembles the go argument list for the invocation.
func (inv *Invocation) Args() []string {
	args := []string{"build"}
	if inv.Dir != "" {
		args = append(args, "-C", inv.Dir)
	}
	if inv.Ldflags != "" {
		args = append(args, "-ldflags", inv.Ldflags)
	}
	if inv.Trimpath {
		args = append(args, "-trimpath")
	}
	if inv.BuildMode != "" {
		args = append(args, "-buildmode", inv.BuildMode)
	}
	if inv.Output != "" {
		args = append(args, "-o", inv.Output)
	}
	args = append(args, inv.Flags...)
	return append(args, inv.Packages...)
}

// ExitError reports a go invocation that exited non-zero.
type ExitError struct {
	Code   int
	Output string // diagnostic output captured from the child
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("go build failed (exit status %d)", e.Code)
	if e.Output != "" {
		msg += ":\n" + e.Output
	}
	return msg
}

// Build runs "go build" as described by inv, blocking until the child
// exits. Child output is streamed to inv.Stderr and captured for error
// reporting; nothing is ever written to the parent's stdout, which belongs
// to the host build's directive channel. A non-zero exit returns
// *ExitError carrying the exit code. No retries: toolchain failures are
// deterministic for fixed inputs.
func (g *Go) Build(ctx context.Context, inv Invocation) error {
	diag := inv.Stderr
	if diag == nil {
		diag = os.Stderr
	}
	var captured bytes.Buffer
	out := io.MultiWriter(diag, &captured)

	cmd := exec.CommandContext(ctx, g.bin, inv.Args()...)
	cmd.Env = inv.Env
	cmd.Stdout = out
	cmd.Stderr = out

	code, err := g.exec(ctx, cmd)
	if err != nil {
		return fmt.Errorf("failed to run %s: %w", g.bin, err)
	}
	if code != 0 {
		return &ExitError{Code: code, Output: strings.TrimSpace(captured.String())}
	}
	return nil
}

// Version reports the toolchain version, e.g. "1.24.0".
func (g *Go) Version(ctx context.Context) (string, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, g.bin, "version")
	cmd.Stdout = &out

	code, err := g.exec(ctx, cmd)
	if err != nil {
		return "", fmt.Errorf("failed to run %s version: %w", g.bin, err)
	}
	if code != 0 {
		return "", fmt.Errorf("%s version exited with status %d", g.bin, code)
	}
	return ParseVersion(out.String())
}

// ParseVersion extracts the toolchain version from "go version" output,
// so "go version go1.24.0 linux/amd64" yields "1.24.0".
func ParseVersion(out string) (string, error) {
	for _, f := range strings.Fields(out) {
		if strings.HasPrefix(f, "go") && len(f) > 2 && f[2] >= '0' && f[2] <= '9' {
			return f[2:], nil
		}
	}
	return "", fmt.Errorf("unrecognized go version output %q", strings.TrimSpace(out))
}

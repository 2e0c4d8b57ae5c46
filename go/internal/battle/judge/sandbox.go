package judge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrTimeout is returned when a program exceeds its wall-clock budget.
	ErrTimeout = errors.New("execution timed out")
	// ErrNonZeroExit is returned when a program exits unsuccessfully.
	ErrNonZeroExit = errors.New("program exited with non-zero status")
)

// Program is a self-contained source file plus the command that runs it.
// Command is executed inside the directory holding Filename.
type Program struct {
	Filename string
	Source   string
	Command  []string
	Stdin    string
}

// Output is what a sandboxed run produced.
type Output struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	Duration  time.Duration
	Truncated bool
}

// Sandbox executes untrusted programs. Implementations must bound the run by ctx.
// Production deployments are expected to put a hardened boundary (namespaces,
// no network, cpu/memory limits) behind this interface.
type Sandbox interface {
	Execute(ctx context.Context, prog Program) (Output, error)
}

const DefaultMaxOutputBytes = 1 << 20

// ProcessSandbox runs each program in a fresh process and temp directory with a
// cleared environment and its own process group.
type ProcessSandbox struct {
	MaxOutputBytes int
	WaitDelay      time.Duration
}

func NewProcessSandbox() *ProcessSandbox {
	return &ProcessSandbox{
		MaxOutputBytes: DefaultMaxOutputBytes,
		WaitDelay:      time.Second,
	}
}

func (s *ProcessSandbox) Execute(ctx context.Context, prog Program) (Output, error) {
	if len(prog.Command) == 0 {
		return Output{}, fmt.Errorf("program has no command")
	}

	dir, err := os.MkdirTemp("", "battle-judge-*")
	if err != nil {
		return Output{}, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := os.WriteFile(filepath.Join(dir, prog.Filename), []byte(prog.Source), 0o600); err != nil {
		return Output{}, fmt.Errorf("write program: %w", err)
	}

	stdout := &limitedBuffer{limit: s.MaxOutputBytes}
	stderr := &limitedBuffer{limit: 64 << 10}

	cmd := exec.CommandContext(ctx, prog.Command[0], prog.Command[1:]...)
	cmd.Dir = dir
	cmd.Env = []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + dir,
		"TMPDIR=" + dir,
		"LANG=C.UTF-8",
	}
	cmd.Stdin = strings.NewReader(prog.Stdin)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = s.WaitDelay
	configureProcess(cmd)

	start := time.Now()
	runErr := cmd.Run()
	out := Output{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Duration:  time.Since(start),
		Truncated: stdout.truncated,
	}
	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return out, ErrTimeout
		}
		return out, ctx.Err()
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return out, fmt.Errorf("%w: exit code %d", ErrNonZeroExit, out.ExitCode)
		}
		return out, fmt.Errorf("run program: %w", runErr)
	}
	return out, nil
}

// limitedBuffer keeps the first limit bytes and silently discards the rest so a
// chatty program cannot exhaust memory.
type limitedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	remaining := b.limit - b.buf.Len()
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) String() string {
	return b.buf.String()
}

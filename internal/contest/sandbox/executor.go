package sandbox

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	appErr "contestoj/pkg/errors"
	"contestoj/pkg/utils/logger"

	"github.com/google/shlex"
	"go.uber.org/zap"
)

// Request is one execution of competitor code against one input.
type Request struct {
	Code      string
	Stdin     string
	TimeLimit time.Duration
}

// Result describes how the child process ended.
type Result struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	TimedOut  bool
	Crashed   bool
	Truncated bool
	Duration  time.Duration
}

// Executor runs untrusted code. The returned error is reserved for
// infrastructure failures; a failing program is reported in Result.
type Executor interface {
	Execute(ctx context.Context, req Request) (Result, error)
}

// ProcessExecutor runs each request in a fresh scratch directory as a child
// process in its own process group.
type ProcessExecutor struct {
	cfg  Config
	argv []string
	log  *zap.Logger
}

// NewProcessExecutor validates cfg and parses the interpreter command line.
func NewProcessExecutor(cfg Config) (*ProcessExecutor, error) {
	cfg.applyDefaults()
	argv, err := shlex.Split(cfg.Interpreter)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ConfigInvalid, "parse interpreter command %q", cfg.Interpreter)
	}
	if len(argv) == 0 {
		return nil, appErr.Newf(appErr.ConfigInvalid, "interpreter command is empty")
	}
	if strings.ContainsAny(cfg.SourceFile, `/\`) {
		return nil, appErr.Newf(appErr.ConfigInvalid, "source file must be a bare name: %q", cfg.SourceFile)
	}
	return &ProcessExecutor{cfg: cfg, argv: argv, log: logger.Named("sandbox")}, nil
}

// Config returns the effective configuration.
func (e *ProcessExecutor) Config() Config {
	return e.cfg
}

func (e *ProcessExecutor) Execute(ctx context.Context, req Request) (Result, error) {
	limit := req.TimeLimit
	if limit <= 0 {
		limit = e.cfg.TimeLimit
	}

	dir, err := os.MkdirTemp(e.cfg.ScratchRoot, "contest-run-*")
	if err != nil {
		return Result{}, appErr.Wrapf(err, appErr.WorkspaceFailed, "create scratch dir")
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			e.log.Warn("remove scratch dir failed", zap.String("dir", dir), zap.Error(err))
		}
	}()

	source := filepath.Join(dir, e.cfg.SourceFile)
	if err := os.WriteFile(source, []byte(req.Code), 0o600); err != nil {
		return Result{}, appErr.Wrapf(err, appErr.WorkspaceFailed, "write source file")
	}

	args := append(append([]string{}, e.argv[1:]...), source)
	cmd := exec.Command(e.argv[0], args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), e.cfg.Env...)
	cmd.Stdin = strings.NewReader(req.Stdin)
	stdout := newCappedBuffer(e.cfg.MaxOutputBytes)
	stderr := newCappedBuffer(e.cfg.MaxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = time.Second
	setProcAttr(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, appErr.Wrapf(err, appErr.SandboxStartFailed, "start %s", e.argv[0])
	}
	pid := cmd.Process.Pid

	if e.cfg.MemoryLimitMB > 0 {
		if err := applyMemoryLimit(pid, e.cfg.MemoryLimitMB); err != nil {
			e.log.Warn("apply memory limit failed", zap.Int("pid", pid), zap.Error(err))
		}
	}

	var timedOut atomic.Bool
	done := make(chan struct{})
	go func() {
		timer := time.NewTimer(limit)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			killProcessGroup(cmd)
		case <-timer.C:
			timedOut.Store(true)
			killProcessGroup(cmd)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)
	elapsed := time.Since(start)

	res := Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		ExitCode:  exitCode(waitErr, cmd.ProcessState),
		TimedOut:  timedOut.Load(),
		Truncated: stdout.Truncated() || stderr.Truncated(),
		Duration:  elapsed,
	}
	res.Crashed = !res.TimedOut && (res.ExitCode != 0 || strings.Contains(res.Stderr, TracebackMarker))

	if !res.TimedOut && ctx.Err() != nil {
		return res, appErr.Wrapf(ctx.Err(), appErr.Timeout, "execution cancelled")
	}
	return res, nil
}

func exitCode(err error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

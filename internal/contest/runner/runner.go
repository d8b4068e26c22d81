package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"contestoj/internal/contest/model"
	"contestoj/internal/contest/sandbox"
	appErr "contestoj/pkg/errors"
	"contestoj/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultPoolSize       = 4
	defaultAcquireTimeout = 2 * time.Second
	defaultRetryBase      = 200 * time.Millisecond
	defaultRetryMaxDelay  = 2 * time.Second
)

// Config controls the worker pool.
type Config struct {
	PoolSize       int           `yaml:"poolSize"`
	AcquireTimeout time.Duration `yaml:"acquireTimeout"`
	TimeLimit      time.Duration `yaml:"timeLimit"`
	MaxCodeBytes   int           `yaml:"maxCodeBytes"`

	// Dispatch retries a full pool this many times before giving up.
	RetryMax      int           `yaml:"retryMax"`
	RetryBase     time.Duration `yaml:"retryBase"`
	RetryMaxDelay time.Duration `yaml:"retryMaxDelay"`
}

// Outcome is delivered by Dispatch once judging finishes.
type Outcome struct {
	Result model.SubmissionResult
	Err    error
}

// Runner judges submissions against a problem's test cases.
type Runner struct {
	exec sandbox.Executor
	cfg  Config
	sem  chan struct{}
	log  *zap.Logger
}

// New creates a Runner backed by exec.
func New(exec sandbox.Executor, cfg Config) *Runner {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaultPoolSize
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = defaultAcquireTimeout
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaultRetryBase
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = defaultRetryMaxDelay
	}
	return &Runner{
		exec: exec,
		cfg:  cfg,
		sem:  make(chan struct{}, cfg.PoolSize),
		log:  logger.Named("runner"),
	}
}

// Run executes every test case in order. Failing tests never abort the run.
// Errors are returned only when the submission cannot be judged at all.
func (r *Runner) Run(ctx context.Context, problem model.Problem, code string) (model.SubmissionResult, error) {
	if strings.TrimSpace(code) == "" {
		return model.SubmissionResult{}, appErr.New(appErr.EmptySubmission)
	}
	if r.cfg.MaxCodeBytes > 0 && len(code) > r.cfg.MaxCodeBytes {
		return model.SubmissionResult{}, appErr.Newf(appErr.CodeTooLarge, "code is %d bytes, limit is %d", len(code), r.cfg.MaxCodeBytes)
	}
	if len(problem.TestCases) == 0 {
		return model.SubmissionResult{}, appErr.InvalidParamsError("problem", fmt.Sprintf("%d has no test cases", problem.ID))
	}

	if err := r.acquireSlot(ctx); err != nil {
		return model.SubmissionResult{}, err
	}
	defer r.releaseSlot()

	start := time.Now()
	verdicts := make([]model.TestVerdict, 0, len(problem.TestCases))
	for i, tc := range problem.TestCases {
		verdicts = append(verdicts, r.runCase(ctx, i+1, tc, code))
	}
	result := model.NewSubmissionResult(code, verdicts)

	logger.Info(ctx, "submission judged",
		zap.Int("problem_id", problem.ID),
		zap.Int("passed", result.PassedCount),
		zap.Int("total", result.TotalCount),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

// Dispatch judges the submission on its own goroutine. The channel receives
// exactly one Outcome and is then closed.
func (r *Runner) Dispatch(ctx context.Context, problem model.Problem, code string) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		var outcome Outcome
		for attempt := 0; ; attempt++ {
			outcome.Result, outcome.Err = r.Run(ctx, problem, code)
			if !appErr.IsRetryable(outcome.Err) || attempt >= r.cfg.RetryMax {
				break
			}
			delay := ComputePoolBackoff(attempt, r.cfg.RetryBase, r.cfg.RetryMaxDelay)
			r.log.Debug("judge pool full, retrying", zap.Int("attempt", attempt+1), zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				outcome.Err = ctx.Err()
				out <- outcome
				return
			case <-time.After(delay):
			}
		}
		out <- outcome
	}()
	return out
}

func (r *Runner) runCase(ctx context.Context, index int, tc model.TestCase, code string) model.TestVerdict {
	expected := strings.TrimSpace(tc.ExpectedOutput)
	verdict := model.TestVerdict{
		Index:    index,
		Input:    tc.Input,
		Expected: expected,
	}

	res, err := r.exec.Execute(ctx, sandbox.Request{
		Code:      code,
		Stdin:     tc.Input,
		TimeLimit: r.cfg.TimeLimit,
	})
	if err != nil {
		logger.Warn(ctx, "sandbox execution failed", zap.Int("test_id", index), zap.Error(err))
		verdict.Error = err.Error()
		return verdict
	}

	verdict.ActualOutput = strings.TrimSpace(res.Stdout)
	verdict.TimedOut = res.TimedOut
	verdict.Crashed = res.Crashed
	verdict.Duration = res.Duration

	switch {
	case res.TimedOut:
		verdict.Error = "Timeout"
	case res.Crashed:
		verdict.Error = crashMessage(res)
	default:
		verdict.Passed = verdict.ActualOutput == expected
	}
	return verdict
}

// crashMessage picks the last stderr line, which for a Python traceback is
// the exception itself.
func crashMessage(res sandbox.Result) string {
	lines := strings.Split(strings.TrimSpace(res.Stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return fmt.Sprintf("exit code %d", res.ExitCode)
}

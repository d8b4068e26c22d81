package model

import (
	"time"

	"github.com/google/uuid"
)

// TestVerdict is the outcome of one test case.
type TestVerdict struct {
	Index        int           `json:"test_id"`
	Passed       bool          `json:"passed"`
	Input        string        `json:"input"`
	Expected     string        `json:"expected"`
	ActualOutput string        `json:"actual"`
	Error        string        `json:"error,omitempty"`
	TimedOut     bool          `json:"timed_out,omitempty"`
	Crashed      bool          `json:"crashed,omitempty"`
	Duration     time.Duration `json:"duration_ns"`
}

// SubmissionResult is what the runner produces for one submission.
type SubmissionResult struct {
	Code        string        `json:"code"`
	Verdicts    []TestVerdict `json:"test_results"`
	PassedCount int           `json:"passed_tests"`
	TotalCount  int           `json:"total_tests"`
	AllPassed   bool          `json:"all_passed"`
}

// NewSubmissionResult derives the counters from verdicts.
func NewSubmissionResult(code string, verdicts []TestVerdict) SubmissionResult {
	passed := 0
	for _, v := range verdicts {
		if v.Passed {
			passed++
		}
	}
	return SubmissionResult{
		Code:        code,
		Verdicts:    verdicts,
		PassedCount: passed,
		TotalCount:  len(verdicts),
		AllPassed:   len(verdicts) > 0 && passed == len(verdicts),
	}
}

// Submission is one entry of a competitor's append-only history.
type Submission struct {
	ID          string        `json:"id"`
	Code        string        `json:"code"`
	SubmittedAt time.Time     `json:"submitted_at"`
	Verdicts    []TestVerdict `json:"test_results"`
	PassedCount int           `json:"passed_tests"`
	TotalCount  int           `json:"total_tests"`
	AllPassed   bool          `json:"all_passed"`
}

// NewSubmission stamps result with a fresh id and submission time.
func NewSubmission(result SubmissionResult, at time.Time) Submission {
	verdicts := make([]TestVerdict, len(result.Verdicts))
	copy(verdicts, result.Verdicts)
	return Submission{
		ID:          uuid.NewString(),
		Code:        result.Code,
		SubmittedAt: at,
		Verdicts:    verdicts,
		PassedCount: result.PassedCount,
		TotalCount:  result.TotalCount,
		AllPassed:   result.AllPassed,
	}
}

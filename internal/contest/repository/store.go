package repository

import (
	"context"
	"strings"
	"time"

	"contestoj/internal/contest/model"
	appErr "contestoj/pkg/errors"
)

// Store persists competitors and their submission history.
//
// A false result reports an expected contract failure such as a duplicate
// name or an unknown competitor. Errors are reserved for invalid input and
// infrastructure failures.
type Store interface {
	RegisterCompetitor(ctx context.Context, name string) (bool, error)
	IsNameTaken(ctx context.Context, name string) (bool, error)
	UpdateCurrentProblem(ctx context.Context, name string, problemID int) (bool, error)
	RecordSubmission(ctx context.Context, name string, problemID int, result model.SubmissionResult) (bool, error)
	GetProgress(ctx context.Context, name string, problemID int) (*model.ProblemProgress, error)
	GetCompetitor(ctx context.Context, name string) (*model.Competitor, error)
	ListCompetitors(ctx context.Context) ([]model.Competitor, error)
	SetJudgeApproval(ctx context.Context, name string, problemID int, status model.ApprovalStatus) (bool, error)
	StartCompetition(ctx context.Context) error
	SetProblemsLoaded(ctx context.Context, problemIDs []int) error
	Metadata(ctx context.Context) (model.CompetitionMeta, error)
	Reset(ctx context.Context) error
	Close() error
}

// ChangeKind names what happened to a competitor document.
type ChangeKind string

const (
	ChangeRegistered      ChangeKind = "registered"
	ChangeProblemSelected ChangeKind = "problem_selected"
	ChangeSubmission      ChangeKind = "submission"
	ChangeApproval        ChangeKind = "approval"
	ChangeImported        ChangeKind = "imported"
	ChangeStarted         ChangeKind = "started"
	ChangeReset           ChangeKind = "reset"
)

// ChangeEvent is broadcast by backends that support live updates.
type ChangeEvent struct {
	Name string     `json:"name,omitempty"`
	Kind ChangeKind `json:"kind"`
	At   time.Time  `json:"at"`
}

// ChangeNotifier streams change events until ctx is cancelled.
type ChangeNotifier interface {
	Subscribe(ctx context.Context) (<-chan ChangeEvent, error)
}

// ProblemCatalog mirrors the loaded problem set into the backend.
type ProblemCatalog interface {
	SaveProblems(ctx context.Context, problems []model.Problem) error
	LoadProblems(ctx context.Context) ([]model.Problem, error)
}

// Importer writes whole documents, overwriting existing ones.
type Importer interface {
	ImportMetadata(ctx context.Context, meta model.CompetitionMeta) error
	ImportCompetitor(ctx context.Context, competitor *model.Competitor) error
}

// Option customizes a store.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now for timestamps written by the store.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return appErr.ValidationError("name", "required")
	}
	return nil
}

func validateResult(result model.SubmissionResult) error {
	if result.PassedCount < 0 || result.PassedCount > result.TotalCount {
		return appErr.Newf(appErr.InvalidParams, "passed count %d out of range 0..%d", result.PassedCount, result.TotalCount)
	}
	if result.AllPassed != (result.TotalCount > 0 && result.PassedCount == result.TotalCount) {
		return appErr.Newf(appErr.InvalidParams, "all passed flag disagrees with %d/%d", result.PassedCount, result.TotalCount)
	}
	return nil
}

func validateStatus(status model.ApprovalStatus) error {
	if !status.Valid() {
		return appErr.Newf(appErr.InvalidApprovalStatus, "invalid approval status %q", string(status))
	}
	return nil
}

// mutation changes a competitor document and reports whether it did.
type mutation func(c *model.Competitor) bool

func selectProblem(problemID int, now time.Time) mutation {
	return func(c *model.Competitor) bool {
		c.SelectProblem(problemID, now)
		return true
	}
}

func appendSubmission(problemID int, sub model.Submission) mutation {
	return func(c *model.Competitor) bool {
		c.AddSubmission(problemID, sub)
		return true
	}
}

func approve(problemID int, status model.ApprovalStatus, now time.Time) mutation {
	return func(c *model.Competitor) bool {
		return c.SetApproval(problemID, status, now)
	}
}

func normalizeCompetitor(c *model.Competitor) {
	if c.Problems == nil {
		c.Problems = make(map[int]*model.ProblemProgress)
	}
	for id, p := range c.Problems {
		if p == nil {
			c.Problems[id] = &model.ProblemProgress{}
		}
	}
	if c.CurrentProblemID == 0 {
		c.CurrentProblemID = 1
	}
}

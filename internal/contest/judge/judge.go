package judge

import (
	"context"
	"sort"
	"time"

	"contestoj/internal/contest/model"
	appErr "contestoj/pkg/errors"
	"contestoj/pkg/utils/logger"

	"go.uber.org/zap"
)

// Store is the part of the submission store the judge overlay writes to.
type Store interface {
	SetJudgeApproval(ctx context.Context, name string, problemID int, status model.ApprovalStatus) (bool, error)
	GetProgress(ctx context.Context, name string, problemID int) (*model.ProblemProgress, error)
	ListCompetitors(ctx context.Context) ([]model.Competitor, error)
}

// PendingReview is a solved problem still waiting for a judge decision.
type PendingReview struct {
	Competitor  string               `json:"competitor"`
	ProblemID   int                  `json:"problem_id"`
	Status      model.ApprovalStatus `json:"status"`
	PassedCount int                  `json:"passed_tests"`
	TotalCount  int                  `json:"total_tests"`
	Attempts    int                  `json:"attempts"`
	SolvedAt    time.Time            `json:"solved_at"`
	Code        string               `json:"code"`
	Verdicts    []model.TestVerdict  `json:"test_results,omitempty"`
}

// Overlay annotates solved problems with judge decisions.
type Overlay struct {
	store Store
	log   *zap.Logger
}

func New(store Store) *Overlay {
	return &Overlay{store: store, log: logger.Named("judge")}
}

// Approve marks the competitor's problem as approved. It reports false
// when the competitor never submitted to that problem.
func (o *Overlay) Approve(ctx context.Context, name string, problemID int) (bool, error) {
	return o.decide(ctx, name, problemID, model.ApprovalApproved)
}

// Reject marks the competitor's problem as rejected.
func (o *Overlay) Reject(ctx context.Context, name string, problemID int) (bool, error) {
	return o.decide(ctx, name, problemID, model.ApprovalRejected)
}

// MarkPending puts a decision back into the review queue.
func (o *Overlay) MarkPending(ctx context.Context, name string, problemID int) (bool, error) {
	return o.decide(ctx, name, problemID, model.ApprovalPending)
}

func (o *Overlay) decide(ctx context.Context, name string, problemID int, status model.ApprovalStatus) (bool, error) {
	ctx = logger.WithProblem(logger.WithCompetitor(ctx, name), problemID)
	progress, err := o.store.GetProgress(ctx, name, problemID)
	if err != nil {
		return false, err
	}
	if progress == nil {
		return false, nil
	}
	if !progress.Solved() {
		// Stored, but ranking ignores decisions on unsolved problems.
		logger.Warn(ctx, "judge decision on unsolved problem", zap.String("status", string(status)))
	}
	ok, err := o.store.SetJudgeApproval(ctx, name, problemID, status)
	if err != nil {
		return false, appErr.Wrapf(err, appErr.GetCode(err), "set %s on %s/%d", status, name, problemID)
	}
	if ok {
		logger.Info(ctx, "judge decision recorded", zap.String("status", string(status)))
	}
	return ok, nil
}

// PendingReviews lists every solved problem whose approval is unset or
// pending, ordered by competitor name then problem id.
func (o *Overlay) PendingReviews(ctx context.Context) ([]PendingReview, error) {
	competitors, err := o.store.ListCompetitors(ctx)
	if err != nil {
		return nil, err
	}
	reviews := Pending(competitors)
	o.log.Debug("pending reviews listed", zap.Int("count", len(reviews)))
	return reviews, nil
}

// Pending extracts the review queue from competitor documents.
func Pending(competitors []model.Competitor) []PendingReview {
	reviews := make([]PendingReview, 0)
	for _, c := range competitors {
		for id, p := range c.Problems {
			if !p.AwaitingReview() {
				continue
			}
			best := p.BestResult
			reviews = append(reviews, PendingReview{
				Competitor:  c.Name,
				ProblemID:   id,
				Status:      p.JudgeApproval,
				PassedCount: best.PassedCount,
				TotalCount:  best.TotalCount,
				Attempts:    len(p.Submissions),
				SolvedAt:    best.SubmittedAt,
				Code:        best.Code,
				Verdicts:    best.Verdicts,
			})
		}
	}
	sort.Slice(reviews, func(i, j int) bool {
		if reviews[i].Competitor != reviews[j].Competitor {
			return reviews[i].Competitor < reviews[j].Competitor
		}
		return reviews[i].ProblemID < reviews[j].ProblemID
	})
	return reviews
}

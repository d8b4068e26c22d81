package model

import (
	"time"

	appErr "contestoj/pkg/errors"
)

// ApprovalStatus is the judge's verdict on a solved problem.
type ApprovalStatus string

const (
	ApprovalUnset    ApprovalStatus = ""
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalUnset, ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	}
	return false
}

// ParseApprovalStatus validates a raw status string.
func ParseApprovalStatus(raw string) (ApprovalStatus, error) {
	s := ApprovalStatus(raw)
	if !s.Valid() {
		return ApprovalUnset, appErr.Newf(appErr.InvalidApprovalStatus, "invalid approval status %q", raw)
	}
	return s, nil
}

// ProblemProgress is a competitor's history on one problem.
type ProblemProgress struct {
	Submissions       []Submission   `json:"submissions"`
	BestResult        *Submission    `json:"best_result"`
	JudgeApproval     ApprovalStatus `json:"judge_approval"`
	JudgeApprovalTime *time.Time     `json:"judge_approval_time,omitempty"`
}

// Solved reports whether the best result passed every test.
func (p *ProblemProgress) Solved() bool {
	return p != nil && p.BestResult != nil && p.BestResult.AllPassed
}

// AwaitingReview reports whether a solved problem still needs a judge decision.
func (p *ProblemProgress) AwaitingReview() bool {
	return p.Solved() && (p.JudgeApproval == ApprovalUnset || p.JudgeApproval == ApprovalPending)
}

// Competitor is the per-name document every backend stores.
type Competitor struct {
	Name             string                   `json:"name"`
	JoinedAt         time.Time                `json:"joined_at"`
	CurrentProblemID int                      `json:"current_problem"`
	LastActivity     time.Time                `json:"last_activity"`
	Problems         map[int]*ProblemProgress `json:"problems"`
}

// NewCompetitor returns a freshly registered competitor.
func NewCompetitor(name string, now time.Time) *Competitor {
	return &Competitor{
		Name:             name,
		JoinedAt:         now,
		CurrentProblemID: 1,
		LastActivity:     now,
		Problems:         make(map[int]*ProblemProgress),
	}
}

// SelectProblem records the problem the competitor is looking at.
func (c *Competitor) SelectProblem(problemID int, now time.Time) {
	c.CurrentProblemID = problemID
	c.LastActivity = now
}

// AddSubmission appends sub to the history of problemID. The best result is
// replaced only by a strictly greater passed count, so ties keep the earliest.
func (c *Competitor) AddSubmission(problemID int, sub Submission) {
	if c.Problems == nil {
		c.Problems = make(map[int]*ProblemProgress)
	}
	progress, ok := c.Problems[problemID]
	if !ok {
		progress = &ProblemProgress{}
		c.Problems[problemID] = progress
	}
	progress.Submissions = append(progress.Submissions, sub)
	if progress.BestResult == nil || sub.PassedCount > progress.BestResult.PassedCount {
		best := sub
		progress.BestResult = &best
	}
	c.LastActivity = sub.SubmittedAt
}

// SetApproval overwrites the judge status of problemID. It returns false when
// the competitor has no progress on that problem.
func (c *Competitor) SetApproval(problemID int, status ApprovalStatus, now time.Time) bool {
	progress, ok := c.Problems[problemID]
	if !ok || progress == nil {
		return false
	}
	progress.JudgeApproval = status
	at := now
	progress.JudgeApprovalTime = &at
	return true
}

// Clone returns a deep copy safe to hand out of a store.
func (c *Competitor) Clone() *Competitor {
	if c == nil {
		return nil
	}
	out := *c
	out.Problems = make(map[int]*ProblemProgress, len(c.Problems))
	for id, p := range c.Problems {
		out.Problems[id] = p.Clone()
	}
	return &out
}

// Clone returns a deep copy of the progress.
func (p *ProblemProgress) Clone() *ProblemProgress {
	if p == nil {
		return nil
	}
	out := *p
	out.Submissions = make([]Submission, len(p.Submissions))
	for i, s := range p.Submissions {
		out.Submissions[i] = s.clone()
	}
	if p.BestResult != nil {
		best := p.BestResult.clone()
		out.BestResult = &best
	}
	if p.JudgeApprovalTime != nil {
		at := *p.JudgeApprovalTime
		out.JudgeApprovalTime = &at
	}
	return &out
}

func (s Submission) clone() Submission {
	out := s
	out.Verdicts = make([]TestVerdict, len(s.Verdicts))
	copy(out.Verdicts, s.Verdicts)
	return out
}

// CompetitionMeta is the contest-wide metadata document.
type CompetitionMeta struct {
	Started        bool       `json:"competition_started"`
	StartTime      *time.Time `json:"start_time"`
	ProblemsLoaded []int      `json:"problems_loaded"`
}

// State is the whole local document.
type State struct {
	CompetitionMeta
	Competitors map[string]*Competitor `json:"competitors"`
}

// NewState returns an empty contest state.
func NewState() *State {
	return &State{
		CompetitionMeta: CompetitionMeta{ProblemsLoaded: []int{}},
		Competitors:     make(map[string]*Competitor),
	}
}

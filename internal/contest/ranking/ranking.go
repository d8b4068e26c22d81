package ranking

import (
	"context"
	"sort"
	"time"

	"contestoj/internal/contest/model"
)

// CompetitorLister is the slice of the store the ranking needs.
type CompetitorLister interface {
	ListCompetitors(ctx context.Context) ([]model.Competitor, error)
}

// LeaderboardEntry is one competitor's standing. It is derived on every
// query and never stored.
type LeaderboardEntry struct {
	Rank             int       `json:"rank"`
	Name             string    `json:"name"`
	ProblemsSolved   int       `json:"problems_solved"`
	ApprovedProblems int       `json:"approved_problems"`
	RejectedProblems int       `json:"rejected_problems"`
	PendingReviews   int       `json:"pending_reviews"`
	TotalTestsPassed int       `json:"total_tests_passed"`
	TotalSubmissions int       `json:"total_submissions"`
	Score            int       `json:"score"`
	CurrentProblemID int       `json:"current_problem"`
	LastActivity     time.Time `json:"last_activity"`
}

func (e LeaderboardEntry) sameStanding(o LeaderboardEntry) bool {
	return e.ApprovedProblems == o.ApprovedProblems &&
		e.ProblemsSolved == o.ProblemsSolved &&
		e.TotalTestsPassed == o.TotalTestsPassed
}

// ProblemStats aggregates one problem across all competitors.
type ProblemStats struct {
	TotalAttempts    int `json:"total_attempts"`
	TotalSolvers     int `json:"total_solvers"`
	TotalSubmissions int `json:"total_submissions"`
}

// Entry summarizes a single competitor. Approval counters only look at
// solved problems.
func Entry(c model.Competitor) LeaderboardEntry {
	e := LeaderboardEntry{
		Name:             c.Name,
		CurrentProblemID: c.CurrentProblemID,
		LastActivity:     c.LastActivity,
	}
	for _, p := range c.Problems {
		if p == nil {
			continue
		}
		e.TotalSubmissions += len(p.Submissions)
		if p.BestResult != nil {
			e.TotalTestsPassed += p.BestResult.PassedCount
		}
		if !p.Solved() {
			continue
		}
		e.ProblemsSolved++
		switch p.JudgeApproval {
		case model.ApprovalApproved:
			e.ApprovedProblems++
		case model.ApprovalRejected:
			e.RejectedProblems++
		default:
			e.PendingReviews++
		}
	}
	e.Score = e.ApprovedProblems - e.RejectedProblems
	return e
}

// BuildLeaderboard summarizes and ranks competitors.
func BuildLeaderboard(competitors []model.Competitor) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(competitors))
	for _, c := range competitors {
		entries = append(entries, Entry(c))
	}
	return Rank(entries)
}

// Rank orders entries in place by approved problems, then solved problems,
// then total tests passed, all descending. Exact ties keep name order and
// share a rank (1, 1, 3).
func Rank(entries []LeaderboardEntry) []LeaderboardEntry {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.ApprovedProblems != b.ApprovedProblems {
			return a.ApprovedProblems > b.ApprovedProblems
		}
		if a.ProblemsSolved != b.ProblemsSolved {
			return a.ProblemsSolved > b.ProblemsSolved
		}
		return a.TotalTestsPassed > b.TotalTestsPassed
	})
	for i := range entries {
		if i > 0 && entries[i].sameStanding(entries[i-1]) {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}
	return entries
}

// ComputeLeaderboard reads every competitor from store and ranks them.
func ComputeLeaderboard(ctx context.Context, store CompetitorLister) ([]LeaderboardEntry, error) {
	competitors, err := store.ListCompetitors(ctx)
	if err != nil {
		return nil, err
	}
	return BuildLeaderboard(competitors), nil
}

// BuildProblemStatistics counts attempts, solvers and submissions per
// problem id.
func BuildProblemStatistics(competitors []model.Competitor) map[int]ProblemStats {
	stats := make(map[int]ProblemStats)
	for _, c := range competitors {
		for id, p := range c.Problems {
			if p == nil {
				continue
			}
			s := stats[id]
			if len(p.Submissions) > 0 {
				s.TotalAttempts++
			}
			if p.Solved() {
				s.TotalSolvers++
			}
			s.TotalSubmissions += len(p.Submissions)
			stats[id] = s
		}
	}
	return stats
}

// ComputeProblemStatistics reads every competitor from store and aggregates
// per-problem statistics.
func ComputeProblemStatistics(ctx context.Context, store CompetitorLister) (map[int]ProblemStats, error) {
	competitors, err := store.ListCompetitors(ctx)
	if err != nil {
		return nil, err
	}
	return BuildProblemStatistics(competitors), nil
}

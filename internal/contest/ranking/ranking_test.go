package ranking_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"contestoj/internal/contest/model"
	"contestoj/internal/contest/ranking"
)

var base = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func resultWith(passed, total int) model.SubmissionResult {
	verdicts := make([]model.TestVerdict, total)
	for i := range verdicts {
		verdicts[i] = model.TestVerdict{Index: i + 1, Passed: i < passed}
	}
	return model.NewSubmissionResult("code", verdicts)
}

type attempt struct {
	problemID int
	passed    int
	total     int
	approval  model.ApprovalStatus
}

func competitor(name string, attempts ...attempt) model.Competitor {
	c := model.NewCompetitor(name, base)
	for _, a := range attempts {
		c.AddSubmission(a.problemID, model.NewSubmission(resultWith(a.passed, a.total), base))
		if a.approval != model.ApprovalUnset {
			c.SetApproval(a.problemID, a.approval, base)
		}
	}
	return *c
}

type fakeLister struct {
	competitors []model.Competitor
	err         error
}

func (f fakeLister) ListCompetitors(context.Context) ([]model.Competitor, error) {
	return f.competitors, f.err
}

func names(entries []ranking.LeaderboardEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func equalNames(got []ranking.LeaderboardEntry, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i].Name != want[i] {
			return false
		}
	}
	return true
}

func TestRank_ApprovedThenSolvedThenTests(t *testing.T) {
	entries := ranking.Rank([]ranking.LeaderboardEntry{
		{Name: "A", ApprovedProblems: 2, ProblemsSolved: 3, TotalTestsPassed: 10},
		{Name: "B", ApprovedProblems: 2, ProblemsSolved: 3, TotalTestsPassed: 8},
		{Name: "C", ApprovedProblems: 3, ProblemsSolved: 1, TotalTestsPassed: 1},
	})
	if !equalNames(entries, "C", "A", "B") {
		t.Fatalf("order = %v, want [C A B]", names(entries))
	}
	for i, e := range entries {
		if e.Rank != i+1 {
			t.Fatalf("%s rank = %d, want %d", e.Name, e.Rank, i+1)
		}
	}
}

func TestRank_TiesShareRankInNameOrder(t *testing.T) {
	entries := ranking.Rank([]ranking.LeaderboardEntry{
		{Name: "zoe", ProblemsSolved: 2, TotalTestsPassed: 5},
		{Name: "low", ProblemsSolved: 0, TotalTestsPassed: 1},
		{Name: "amy", ProblemsSolved: 2, TotalTestsPassed: 5, TotalSubmissions: 9},
	})
	if !equalNames(entries, "amy", "zoe", "low") {
		t.Fatalf("order = %v", names(entries))
	}
	if entries[0].Rank != 1 || entries[1].Rank != 1 || entries[2].Rank != 3 {
		t.Fatalf("ranks = %d %d %d, want 1 1 3", entries[0].Rank, entries[1].Rank, entries[2].Rank)
	}
}

func TestEntry_CountsOnlySolvedApprovals(t *testing.T) {
	c := competitor("dora",
		attempt{1, 3, 3, model.ApprovalApproved},
		attempt{2, 2, 2, model.ApprovalRejected},
		attempt{3, 1, 4, model.ApprovalApproved},
		attempt{4, 5, 5, model.ApprovalPending},
		attempt{5, 1, 1, model.ApprovalUnset},
	)
	c.AddSubmission(3, model.NewSubmission(resultWith(0, 4), base))

	e := ranking.Entry(c)
	if e.ProblemsSolved != 4 {
		t.Fatalf("solved = %d", e.ProblemsSolved)
	}
	if e.ApprovedProblems != 1 || e.RejectedProblems != 1 {
		t.Fatalf("approved/rejected = %d/%d, want 1/1", e.ApprovedProblems, e.RejectedProblems)
	}
	if e.PendingReviews != 2 {
		t.Fatalf("pending reviews = %d", e.PendingReviews)
	}
	if e.TotalTestsPassed != 3+2+1+5+1 {
		t.Fatalf("tests passed = %d", e.TotalTestsPassed)
	}
	if e.TotalSubmissions != 6 {
		t.Fatalf("submissions = %d", e.TotalSubmissions)
	}
	if e.Score != 0 || e.CurrentProblemID != 1 {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestComputeLeaderboard_RejectLowersApprovedCount(t *testing.T) {
	alice := competitor("alice", attempt{1, 2, 2, model.ApprovalApproved}, attempt{2, 1, 1, model.ApprovalApproved})
	bob := competitor("bob", attempt{1, 2, 2, model.ApprovalApproved}, attempt{2, 1, 1, model.ApprovalUnset})

	entries, err := ranking.ComputeLeaderboard(context.Background(), fakeLister{competitors: []model.Competitor{bob, alice}})
	if err != nil {
		t.Fatalf("ComputeLeaderboard: %v", err)
	}
	if !equalNames(entries, "alice", "bob") || entries[0].ApprovedProblems != 2 {
		t.Fatalf("before reject: %+v", entries)
	}

	alice.SetApproval(2, model.ApprovalRejected, base.Add(time.Minute))
	entries, err = ranking.ComputeLeaderboard(context.Background(), fakeLister{competitors: []model.Competitor{bob, alice}})
	if err != nil {
		t.Fatalf("ComputeLeaderboard: %v", err)
	}
	if entries[0].Name != "alice" || entries[0].ApprovedProblems != 1 || entries[0].RejectedProblems != 1 {
		t.Fatalf("after reject: %+v", entries[0])
	}
	if entries[0].Rank != 1 || entries[1].Rank != 1 {
		t.Fatalf("alice and bob should now tie: %+v", entries)
	}
}

func TestComputeLeaderboard_PropagatesStoreError(t *testing.T) {
	boom := errors.New("store down")
	if _, err := ranking.ComputeLeaderboard(context.Background(), fakeLister{err: boom}); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
	if _, err := ranking.ComputeProblemStatistics(context.Background(), fakeLister{err: boom}); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestBuildProblemStatistics(t *testing.T) {
	a := competitor("a", attempt{1, 2, 2, model.ApprovalUnset}, attempt{2, 0, 3, model.ApprovalUnset})
	a.AddSubmission(2, model.NewSubmission(resultWith(1, 3), base))
	b := competitor("b", attempt{1, 1, 2, model.ApprovalUnset})
	c := competitor("c")
	c.SelectProblem(3, base)

	stats := ranking.BuildProblemStatistics([]model.Competitor{a, b, c})
	if got := stats[1]; got != (ranking.ProblemStats{TotalAttempts: 2, TotalSolvers: 1, TotalSubmissions: 2}) {
		t.Fatalf("problem 1 stats = %+v", got)
	}
	if got := stats[2]; got != (ranking.ProblemStats{TotalAttempts: 1, TotalSolvers: 0, TotalSubmissions: 2}) {
		t.Fatalf("problem 2 stats = %+v", got)
	}
	if got := stats[3]; got.TotalAttempts != 0 || got.TotalSubmissions != 0 {
		t.Fatalf("viewing a problem is not an attempt: %+v", got)
	}
}

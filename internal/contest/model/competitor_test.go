package model_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"contestoj/internal/contest/model"
	appErr "contestoj/pkg/errors"
)

func resultWith(passed, total int) model.SubmissionResult {
	verdicts := make([]model.TestVerdict, total)
	for i := range verdicts {
		verdicts[i] = model.TestVerdict{Index: i + 1, Passed: i < passed}
	}
	return model.NewSubmissionResult("print(1)", verdicts)
}

func TestNewSubmissionResult_Counts(t *testing.T) {
	tests := []struct {
		passed, total int
		allPassed     bool
	}{
		{0, 3, false},
		{2, 3, false},
		{3, 3, true},
		{0, 0, false},
	}
	for _, tt := range tests {
		res := resultWith(tt.passed, tt.total)
		if res.PassedCount != tt.passed || res.TotalCount != tt.total {
			t.Fatalf("counts = %d/%d, want %d/%d", res.PassedCount, res.TotalCount, tt.passed, tt.total)
		}
		if res.PassedCount > res.TotalCount || res.PassedCount < 0 {
			t.Fatalf("passed count out of bounds: %+v", res)
		}
		if res.AllPassed != tt.allPassed {
			t.Fatalf("allPassed = %v for %d/%d", res.AllPassed, tt.passed, tt.total)
		}
	}
}

func TestAddSubmission_BestResultKeepsEarliestOnTie(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := model.NewCompetitor("alice", base)

	first := model.NewSubmission(resultWith(2, 3), base.Add(time.Minute))
	tie := model.NewSubmission(resultWith(2, 3), base.Add(2*time.Minute))
	worse := model.NewSubmission(resultWith(1, 3), base.Add(3*time.Minute))
	c.AddSubmission(4, first)
	c.AddSubmission(4, tie)
	c.AddSubmission(4, worse)

	progress := c.Problems[4]
	if len(progress.Submissions) != 3 {
		t.Fatalf("expected 3 submissions, got %d", len(progress.Submissions))
	}
	if progress.BestResult.ID != first.ID {
		t.Fatalf("best result should stay on the first 2/3 submission")
	}

	better := model.NewSubmission(resultWith(3, 3), base.Add(4*time.Minute))
	c.AddSubmission(4, better)
	if progress.BestResult.ID != better.ID || !progress.Solved() {
		t.Fatalf("strictly better submission should replace best result")
	}
	for _, s := range progress.Submissions {
		if s.PassedCount > progress.BestResult.PassedCount {
			t.Fatalf("best result is not the maximum")
		}
	}
	if !c.LastActivity.Equal(better.SubmittedAt) {
		t.Fatalf("last activity not updated: %v", c.LastActivity)
	}
}

func TestSetApproval(t *testing.T) {
	now := time.Now()
	c := model.NewCompetitor("bob", now)
	if c.SetApproval(1, model.ApprovalApproved, now) {
		t.Fatal("approval without progress must fail")
	}

	c.AddSubmission(1, model.NewSubmission(resultWith(1, 1), now))
	if !c.SetApproval(1, model.ApprovalApproved, now) {
		t.Fatal("approval should succeed")
	}
	if !c.SetApproval(1, model.ApprovalRejected, now.Add(time.Second)) {
		t.Fatal("second approval should succeed")
	}
	p := c.Problems[1]
	if p.JudgeApproval != model.ApprovalRejected {
		t.Fatalf("last write should win, got %q", p.JudgeApproval)
	}
	if p.JudgeApprovalTime == nil || !p.JudgeApprovalTime.Equal(now.Add(time.Second)) {
		t.Fatalf("approval time not updated: %v", p.JudgeApprovalTime)
	}
	if p.AwaitingReview() {
		t.Fatal("rejected problem is not awaiting review")
	}
}

func TestParseApprovalStatus(t *testing.T) {
	for _, raw := range []string{"", "pending", "approved", "rejected"} {
		if _, err := model.ParseApprovalStatus(raw); err != nil {
			t.Fatalf("ParseApprovalStatus(%q): %v", raw, err)
		}
	}
	_, err := model.ParseApprovalStatus("maybe")
	if !appErr.Is(err, appErr.InvalidApprovalStatus) {
		t.Fatalf("expected InvalidApprovalStatus, got %v", err)
	}
}

func TestClone_IsDeep(t *testing.T) {
	now := time.Now()
	c := model.NewCompetitor("carol", now)
	c.AddSubmission(2, model.NewSubmission(resultWith(1, 2), now))

	cp := c.Clone()
	cp.Problems[2].Submissions[0].Verdicts[0].Passed = false
	cp.Problems[2].JudgeApproval = model.ApprovalApproved
	cp.CurrentProblemID = 9

	if !c.Problems[2].Submissions[0].Verdicts[0].Passed {
		t.Fatal("clone shares verdicts with original")
	}
	if c.Problems[2].JudgeApproval != model.ApprovalUnset || c.CurrentProblemID != 1 {
		t.Fatal("clone mutation leaked into original")
	}
}

func TestState_JSONUsesStringProblemKeys(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	state := model.NewState()
	c := model.NewCompetitor("dave", now)
	c.AddSubmission(12, model.NewSubmission(resultWith(1, 1), now))
	state.Competitors[c.Name] = c

	data, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{`"competition_started":false`, `"problems":{"12":`, `"competitors":{"dave":`} {
		if !strings.Contains(string(data), key) {
			t.Fatalf("encoded state missing %s: %s", key, data)
		}
	}

	var decoded model.State
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Competitors["dave"].Problems[12].Solved() {
		t.Fatal("decoded progress lost its best result")
	}
}

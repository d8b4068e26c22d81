package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"contestoj/internal/contest/model"
	"contestoj/internal/contest/repository"
	appErr "contestoj/pkg/errors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type storeFactory func(t *testing.T, clock *fakeClock) repository.Store

func result(passed, total int) model.SubmissionResult {
	verdicts := make([]model.TestVerdict, total)
	for i := range verdicts {
		verdicts[i] = model.TestVerdict{Index: i + 1, Passed: i < passed}
	}
	return model.NewSubmissionResult("print(42)", verdicts)
}

func mustRegister(t *testing.T, s repository.Store, name string) {
	t.Helper()
	ok, err := s.RegisterCompetitor(context.Background(), name)
	if err != nil || !ok {
		t.Fatalf("register %s: ok=%v err=%v", name, ok, err)
	}
}

func mustRecord(t *testing.T, s repository.Store, name string, problemID int, res model.SubmissionResult) {
	t.Helper()
	ok, err := s.RecordSubmission(context.Background(), name, problemID, res)
	if err != nil || !ok {
		t.Fatalf("record %s/%d: ok=%v err=%v", name, problemID, ok, err)
	}
}

// runStoreContract checks the behaviour every backend must share.
func runStoreContract(t *testing.T, newStore storeFactory) {
	ctx := context.Background()

	t.Run("duplicate registration keeps the original", func(t *testing.T) {
		clock := newFakeClock()
		s := newStore(t, clock)
		mustRegister(t, s, "alice")
		joined := clock.Now()

		clock.Advance(time.Hour)
		ok, err := s.RegisterCompetitor(ctx, "alice")
		if err != nil || ok {
			t.Fatalf("duplicate register: ok=%v err=%v", ok, err)
		}
		c, err := s.GetCompetitor(ctx, "alice")
		if err != nil || c == nil {
			t.Fatalf("get competitor: %v", err)
		}
		if !c.JoinedAt.Equal(joined) {
			t.Fatalf("joinedAt changed: %v != %v", c.JoinedAt, joined)
		}
		if c.CurrentProblemID != 1 {
			t.Fatalf("current problem = %d, want 1", c.CurrentProblemID)
		}
		taken, err := s.IsNameTaken(ctx, "alice")
		if err != nil || !taken {
			t.Fatalf("IsNameTaken(alice) = %v, %v", taken, err)
		}
		taken, err = s.IsNameTaken(ctx, "Alice")
		if err != nil || taken {
			t.Fatalf("names are case-sensitive: IsNameTaken(Alice) = %v, %v", taken, err)
		}
	})

	t.Run("empty name is rejected", func(t *testing.T) {
		s := newStore(t, newFakeClock())
		if _, err := s.RegisterCompetitor(ctx, "   "); !appErr.Is(err, appErr.ValidationFailed) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("unknown competitor reports false", func(t *testing.T) {
		s := newStore(t, newFakeClock())
		if ok, err := s.RecordSubmission(ctx, "ghost", 1, result(1, 1)); ok || err != nil {
			t.Fatalf("record for unknown: ok=%v err=%v", ok, err)
		}
		if ok, err := s.UpdateCurrentProblem(ctx, "ghost", 2); ok || err != nil {
			t.Fatalf("select for unknown: ok=%v err=%v", ok, err)
		}
		if ok, err := s.SetJudgeApproval(ctx, "ghost", 1, model.ApprovalApproved); ok || err != nil {
			t.Fatalf("approve for unknown: ok=%v err=%v", ok, err)
		}
		if c, err := s.GetCompetitor(ctx, "ghost"); c != nil || err != nil {
			t.Fatalf("get unknown: %v %v", c, err)
		}
		if p, err := s.GetProgress(ctx, "ghost", 1); p != nil || err != nil {
			t.Fatalf("progress unknown: %v %v", p, err)
		}
	})

	t.Run("submissions keep history and best result", func(t *testing.T) {
		clock := newFakeClock()
		s := newStore(t, clock)
		mustRegister(t, s, "bob")

		mustRecord(t, s, "bob", 3, result(1, 3))
		clock.Advance(time.Minute)
		mustRecord(t, s, "bob", 3, result(2, 3))
		clock.Advance(time.Minute)
		mustRecord(t, s, "bob", 3, result(2, 3))
		clock.Advance(time.Minute)
		mustRecord(t, s, "bob", 3, result(0, 3))

		p, err := s.GetProgress(ctx, "bob", 3)
		if err != nil || p == nil {
			t.Fatalf("get progress: %v", err)
		}
		if len(p.Submissions) != 4 {
			t.Fatalf("history length = %d", len(p.Submissions))
		}
		if p.BestResult == nil || p.BestResult.PassedCount != 2 || p.BestResult.ID != p.Submissions[1].ID {
			t.Fatalf("best result should be the first 2/3 submission: %+v", p.BestResult)
		}
		for i := 1; i < len(p.Submissions); i++ {
			if p.Submissions[i].SubmittedAt.Before(p.Submissions[i-1].SubmittedAt) {
				t.Fatal("submissions are not chronological")
			}
		}
		if p.JudgeApproval != model.ApprovalUnset {
			t.Fatalf("new progress should have no approval, got %q", p.JudgeApproval)
		}
		if other, _ := s.GetProgress(ctx, "bob", 4); other != nil {
			t.Fatal("progress for an untouched problem should be absent")
		}

		c, _ := s.GetCompetitor(ctx, "bob")
		if !c.LastActivity.Equal(clock.Now()) {
			t.Fatalf("last activity = %v, want %v", c.LastActivity, clock.Now())
		}
	})

	t.Run("invalid result is rejected", func(t *testing.T) {
		s := newStore(t, newFakeClock())
		mustRegister(t, s, "carl")
		bad := model.SubmissionResult{PassedCount: 3, TotalCount: 2}
		if _, err := s.RecordSubmission(ctx, "carl", 1, bad); !appErr.Is(err, appErr.InvalidParams) {
			t.Fatalf("expected InvalidParams, got %v", err)
		}
	})

	t.Run("current problem", func(t *testing.T) {
		s := newStore(t, newFakeClock())
		mustRegister(t, s, "dana")
		if ok, err := s.UpdateCurrentProblem(ctx, "dana", 5); !ok || err != nil {
			t.Fatalf("select: ok=%v err=%v", ok, err)
		}
		c, _ := s.GetCompetitor(ctx, "dana")
		if c.CurrentProblemID != 5 {
			t.Fatalf("current problem = %d", c.CurrentProblemID)
		}
	})

	t.Run("approval is last write wins", func(t *testing.T) {
		clock := newFakeClock()
		s := newStore(t, clock)
		mustRegister(t, s, "erin")

		if ok, err := s.SetJudgeApproval(ctx, "erin", 1, model.ApprovalApproved); ok || err != nil {
			t.Fatalf("approval without progress: ok=%v err=%v", ok, err)
		}
		mustRecord(t, s, "erin", 1, result(2, 2))
		if _, err := s.SetJudgeApproval(ctx, "erin", 1, model.ApprovalStatus("great")); !appErr.Is(err, appErr.InvalidApprovalStatus) {
			t.Fatalf("expected InvalidApprovalStatus, got %v", err)
		}

		if ok, err := s.SetJudgeApproval(ctx, "erin", 1, model.ApprovalApproved); !ok || err != nil {
			t.Fatalf("approve: ok=%v err=%v", ok, err)
		}
		clock.Advance(time.Second)
		if ok, err := s.SetJudgeApproval(ctx, "erin", 1, model.ApprovalRejected); !ok || err != nil {
			t.Fatalf("reject: ok=%v err=%v", ok, err)
		}
		p, _ := s.GetProgress(ctx, "erin", 1)
		if p.JudgeApproval != model.ApprovalRejected {
			t.Fatalf("approval = %q, want rejected", p.JudgeApproval)
		}
		if p.JudgeApprovalTime == nil || !p.JudgeApprovalTime.Equal(clock.Now()) {
			t.Fatalf("approval time = %v, want %v", p.JudgeApprovalTime, clock.Now())
		}
	})

	t.Run("list is sorted by name", func(t *testing.T) {
		s := newStore(t, newFakeClock())
		for _, name := range []string{"zed", "amy", "Mia", "bo"} {
			mustRegister(t, s, name)
		}
		list, err := s.ListCompetitors(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		want := []string{"Mia", "amy", "bo", "zed"}
		if len(list) != len(want) {
			t.Fatalf("list length = %d", len(list))
		}
		for i, name := range want {
			if list[i].Name != name {
				t.Fatalf("list[%d] = %s, want %s", i, list[i].Name, name)
			}
		}
	})

	t.Run("lifecycle", func(t *testing.T) {
		clock := newFakeClock()
		s := newStore(t, clock)

		meta, err := s.Metadata(ctx)
		if err != nil || meta.Started {
			t.Fatalf("fresh metadata: %+v %v", meta, err)
		}
		if err := s.SetProblemsLoaded(ctx, []int{1, 2, 3}); err != nil {
			t.Fatalf("set problems loaded: %v", err)
		}
		if err := s.StartCompetition(ctx); err != nil {
			t.Fatalf("start: %v", err)
		}
		meta, err = s.Metadata(ctx)
		if err != nil || !meta.Started || meta.StartTime == nil || !meta.StartTime.Equal(clock.Now()) {
			t.Fatalf("started metadata: %+v %v", meta, err)
		}
		if len(meta.ProblemsLoaded) != 3 {
			t.Fatalf("problems loaded = %v", meta.ProblemsLoaded)
		}

		mustRegister(t, s, "finn")
		mustRecord(t, s, "finn", 1, result(1, 1))
		if err := s.Reset(ctx); err != nil {
			t.Fatalf("reset: %v", err)
		}
		list, err := s.ListCompetitors(ctx)
		if err != nil || len(list) != 0 {
			t.Fatalf("after reset: %v %v", list, err)
		}
		meta, _ = s.Metadata(ctx)
		if meta.Started || meta.StartTime != nil {
			t.Fatalf("metadata not reset: %+v", meta)
		}
		mustRegister(t, s, "finn")
	})

	t.Run("import overwrites documents", func(t *testing.T) {
		clock := newFakeClock()
		s := newStore(t, clock)
		imp, ok := s.(repository.Importer)
		if !ok {
			t.Skip("backend does not import")
		}
		mustRegister(t, s, "gia")

		c := model.NewCompetitor("gia", clock.Now().Add(-time.Hour))
		c.AddSubmission(2, model.NewSubmission(result(1, 1), clock.Now()))
		c.SetApproval(2, model.ApprovalApproved, clock.Now())
		if err := imp.ImportCompetitor(ctx, c); err != nil {
			t.Fatalf("import: %v", err)
		}
		got, _ := s.GetCompetitor(ctx, "gia")
		if !got.JoinedAt.Equal(c.JoinedAt) || got.Problems[2].JudgeApproval != model.ApprovalApproved {
			t.Fatalf("imported document not stored: %+v", got)
		}
		list, _ := s.ListCompetitors(ctx)
		if len(list) != 1 {
			t.Fatalf("import should not duplicate the index: %d entries", len(list))
		}
	})
}

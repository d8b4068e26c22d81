package console_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"contestoj/internal/contest/console"
	"contestoj/internal/contest/model"
	"contestoj/internal/contest/problemset"
	"contestoj/internal/contest/repository"
	"contestoj/internal/contest/runner"
	"contestoj/internal/contest/service"
)

// echoJudge passes every test whose expected output appears in the code.
type echoJudge struct{}

func (echoJudge) Run(_ context.Context, problem model.Problem, code string) (model.SubmissionResult, error) {
	verdicts := make([]model.TestVerdict, len(problem.TestCases))
	for i, tc := range problem.TestCases {
		verdicts[i] = model.TestVerdict{
			Index:    i + 1,
			Passed:   strings.Contains(code, tc.ExpectedOutput),
			Expected: tc.ExpectedOutput,
		}
	}
	return model.NewSubmissionResult(code, verdicts), nil
}

func (j echoJudge) Dispatch(ctx context.Context, problem model.Problem, code string) <-chan runner.Outcome {
	out := make(chan runner.Outcome, 1)
	res, err := j.Run(ctx, problem, code)
	out <- runner.Outcome{Result: res, Err: err}
	close(out)
	return out
}

func newContest(t *testing.T) (*service.Service, repository.Store) {
	t.Helper()
	store, err := repository.NewLocalStore(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	set, err := problemset.New([]model.Problem{
		{ID: 1, Title: "Hello", Description: "print hello", TestCases: []model.TestCase{{Input: "", ExpectedOutput: "hello"}}},
		{ID: 2, Title: "Pair", TestCases: []model.TestCase{{ExpectedOutput: "x"}, {ExpectedOutput: "y"}}},
	})
	if err != nil {
		t.Fatalf("problemset: %v", err)
	}
	svc, err := service.NewService(service.Config{Store: store, Judge: echoJudge{}, Problems: set, ExportDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store
}

func runScript(t *testing.T, svc console.Contest, script string, opts ...console.Option) string {
	t.Helper()
	var out bytes.Buffer
	s := console.New(svc, strings.NewReader(script), &out, opts...)
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}
	return out.String()
}

func TestSession_CompetitionWalkthrough(t *testing.T) {
	svc, store := newContest(t)
	src := filepath.Join(t.TempDir(), "sol.py")
	if err := os.WriteFile(src, []byte("print('x')\n"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	out := runScript(t, svc, strings.Join([]string{
		"start",
		"register alice",
		"problems",
		"show 1",
		"select id=2",
		`submit 1 code="print('hello')"`,
		"submit id=2 file=" + src,
		"progress 2",
		"pending",
		"approve alice 1",
		"leaderboard",
		"stats",
		"status",
		"export",
		"exit",
		"register never-reached",
	}, "\n"))

	for _, want := range []string{
		"competition started",
		"registered alice",
		"Problem 1: Hello",
		"alice is now on problem 2",
		"passed 1/1",
		"all tests passed",
		"passed 1/2",
		`FAIL expected "y"`,
		"best: 1/2",
		"unreviewed",
		"alice problem 1: approved",
		"exported ",
		"bye",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}

	if taken, _ := store.IsNameTaken(context.Background(), "never-reached"); taken {
		t.Fatal("commands after exit must not run")
	}
	board, _ := svc.Leaderboard(context.Background())
	if board[0].ApprovedProblems != 1 || board[0].TotalSubmissions != 2 {
		t.Fatalf("leaderboard: %+v", board[0])
	}
}

func TestSession_PromptsForMissingFields(t *testing.T) {
	svc, store := newContest(t)
	out := runScript(t, svc, "register\nbob\nreset\nno\n")

	if !strings.Contains(out, "competitor name:") || !strings.Contains(out, "registered bob") {
		t.Fatalf("prompt flow failed:\n%s", out)
	}
	if !strings.Contains(out, "reset cancelled") {
		t.Fatalf("reset should need confirmation:\n%s", out)
	}
	if taken, _ := store.IsNameTaken(context.Background(), "bob"); !taken {
		t.Fatal("bob should survive a cancelled reset")
	}
}

func TestSession_ReportsErrors(t *testing.T) {
	svc, _ := newContest(t)
	out := runScript(t, svc, strings.Join([]string{
		"dance",
		"submit 1 code=x",
		"use ghost",
		"show 42",
		"approve name=ghost id=1",
		"watch",
		"migrate",
		`submit "unterminated`,
	}, "\n"))

	for _, want := range []string{
		"unknown command: dance",
		"no competitor selected",
		"competitor ghost not found",
		"problem 42 not found",
		"has no submissions for problem 1",
		"does not publish change events",
		"no migration target configured",
		"parse command failed",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSession_MigrateAndHelp(t *testing.T) {
	svc, _ := newContest(t)
	dst, err := repository.NewLocalStore(filepath.Join(t.TempDir(), "dst.json"))
	if err != nil {
		t.Fatalf("dst: %v", err)
	}
	out := runScript(t, svc, "help\nregister carol\nmigrate\n", console.WithMigrationTarget(dst))

	if !strings.Contains(out, "leaderboard") || !strings.Contains(out, "submit id=<problem id>") {
		t.Fatalf("help output incomplete:\n%s", out)
	}
	if !strings.Contains(out, "migrated 1 competitors, 0 submissions") {
		t.Fatalf("migrate output:\n%s", out)
	}
	if taken, _ := dst.IsNameTaken(context.Background(), "carol"); !taken {
		t.Fatal("carol not migrated")
	}
}

package console

import (
	"context"
	"fmt"
	"strings"
	"time"

	"contestoj/internal/contest/model"
)

var (
	nameField    = Field{Name: "name", Aliases: []string{"competitor", "user"}, Prompt: "competitor name"}
	problemField = Field{Name: "id", Aliases: []string{"problem", "problem_id"}, Prompt: "problem id", Required: true}
)

func required(f Field) Field {
	f.Required = true
	return f
}

// Registry returns every console command keyed by name.
func Registry() map[string]Command {
	commands := []Command{
		{
			Name:    "register",
			Summary: "register a competitor and act as them",
			Fields:  []Field{required(nameField)},
			Run:     runRegister,
		},
		{
			Name:    "use",
			Summary: "act as an existing competitor",
			Fields:  []Field{required(nameField)},
			Run:     runUse,
		},
		{
			Name:    "problems",
			Summary: "list loaded problems",
			Run:     runProblems,
		},
		{
			Name:    "show",
			Summary: "show a problem statement",
			Fields:  []Field{problemField},
			Run:     runShow,
		},
		{
			Name:    "select",
			Summary: "move the current competitor to a problem",
			Fields:  []Field{problemField, nameField},
			Run:     runSelect,
		},
		{
			Name:    "submit",
			Summary: "judge a solution and record it",
			Fields: []Field{
				problemField,
				{Name: "file", Aliases: []string{"source_file"}, Prompt: "source file"},
				{Name: "code", Aliases: []string{"source_code"}, Prompt: "inline source"},
				nameField,
			},
			Run: runSubmit,
		},
		{
			Name:    "progress",
			Summary: "show submissions for a problem",
			Fields:  []Field{problemField, nameField},
			Run:     runProgress,
		},
		{
			Name:    "leaderboard",
			Summary: "show the ranked standings",
			Run:     runLeaderboard,
		},
		{
			Name:    "stats",
			Summary: "show per-problem statistics",
			Run:     runStats,
		},
		{
			Name:    "pending",
			Summary: "list solved problems awaiting review",
			Run:     runPending,
		},
		{
			Name:    "approve",
			Summary: "approve a solved problem",
			Fields:  []Field{required(nameField), problemField},
			Run:     decision("approved"),
		},
		{
			Name:    "reject",
			Summary: "reject a solved problem",
			Fields:  []Field{required(nameField), problemField},
			Run:     decision("rejected"),
		},
		{
			Name:    "review",
			Summary: "put a problem back into the review queue",
			Fields:  []Field{required(nameField), problemField},
			Run:     decision("pending"),
		},
		{
			Name:    "start",
			Summary: "mark the competition as started",
			Run:     runStart,
		},
		{
			Name:    "status",
			Summary: "show competition metadata",
			Run:     runStatus,
		},
		{
			Name:    "reset",
			Summary: "erase every competitor",
			Fields:  []Field{{Name: "confirm", Prompt: "type yes to confirm", Required: true}},
			Run:     runReset,
		},
		{
			Name:    "export",
			Summary: "export solutions as a zip",
			Fields:  []Field{nameField, {Name: "upload", Prompt: "true to upload to object storage"}},
			Run:     runExport,
		},
		{
			Name:    "migrate",
			Summary: "copy every document into the migration target",
			Run:     runMigrate,
		},
		{
			Name:    "watch",
			Summary: "stream live changes",
			Fields:  []Field{{Name: "for", Aliases: []string{"duration"}, Prompt: "duration, e.g. 30s"}},
			Run:     runWatch,
		},
	}

	registry := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		registry[cmd.Name] = cmd
	}
	return registry
}

func runRegister(ctx context.Context, s *Session, p Params) error {
	name := strings.TrimSpace(p.Get("name"))
	created, err := s.svc.Register(ctx, name)
	if err != nil {
		return err
	}
	s.competitor = name
	if created {
		s.printLine("registered %s", name)
	} else {
		s.printLine("%s is already registered, continuing as %s", name, name)
	}
	return nil
}

func runUse(ctx context.Context, s *Session, p Params) error {
	c, err := s.svc.Competitor(ctx, p.Get("name"))
	if err != nil {
		return err
	}
	s.competitor = c.Name
	s.printLine("acting as %s (problem %d)", c.Name, c.CurrentProblemID)
	return nil
}

func runProblems(_ context.Context, s *Session, _ Params) error {
	tw := s.table()
	fmt.Fprintln(tw, "ID\tTITLE\tDIFFICULTY\tTESTS")
	for _, pr := range s.svc.Problems() {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", pr.ID, pr.Title, pr.Difficulty, len(pr.TestCases))
	}
	return tw.Flush()
}

func runShow(_ context.Context, s *Session, p Params) error {
	id, err := p.Int("id")
	if err != nil {
		return err
	}
	pr, err := s.svc.Problem(id)
	if err != nil {
		return err
	}
	s.printLine("Problem %d: %s", pr.ID, pr.Title)
	if pr.Description != "" {
		s.printLine("%s", pr.Description)
	}
	if pr.InputFormat != "" {
		s.printLine("Input: %s", pr.InputFormat)
	}
	if pr.OutputFormat != "" {
		s.printLine("Output: %s", pr.OutputFormat)
	}
	if len(pr.TestCases) > 0 {
		s.printLine("Example: %q -> %q", pr.TestCases[0].Input, pr.TestCases[0].ExpectedOutput)
	}
	return nil
}

func runSelect(ctx context.Context, s *Session, p Params) error {
	id, err := p.Int("id")
	if err != nil {
		return err
	}
	name, err := s.actor(p)
	if err != nil {
		return err
	}
	if err := s.svc.SelectProblem(ctx, name, id); err != nil {
		return err
	}
	s.printLine("%s is now on problem %d", name, id)
	return nil
}

func runSubmit(ctx context.Context, s *Session, p Params) error {
	id, err := p.Int("id")
	if err != nil {
		return err
	}
	name, err := s.actor(p)
	if err != nil {
		return err
	}
	code := p.Get("code")
	if path := p.Get("file"); path != "" {
		if code, err = readSource(path); err != nil {
			return err
		}
	}
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("submit needs file=<path> or code=<source>")
	}

	outcome := <-s.svc.SubmitAsync(ctx, name, id, code)
	if outcome.Err != nil {
		return outcome.Err
	}
	res := outcome.Result
	for _, v := range res.Verdicts {
		s.printLine("  test %d: %s", v.Index, verdictLabel(v))
	}
	s.printLine("passed %d/%d", res.PassedCount, res.TotalCount)
	if res.AllPassed {
		s.printLine("all tests passed, awaiting judge review")
	}
	return nil
}

func verdictLabel(v model.TestVerdict) string {
	switch {
	case v.Passed:
		return "PASS"
	case v.TimedOut:
		return "TIMEOUT"
	case v.Crashed:
		return "CRASH " + v.Error
	case v.Error != "":
		return "ERROR " + v.Error
	default:
		return fmt.Sprintf("FAIL expected %q got %q", v.Expected, v.ActualOutput)
	}
}

func runProgress(ctx context.Context, s *Session, p Params) error {
	id, err := p.Int("id")
	if err != nil {
		return err
	}
	name, err := s.actor(p)
	if err != nil {
		return err
	}
	progress, err := s.svc.Progress(ctx, name, id)
	if err != nil {
		return err
	}
	if progress == nil {
		s.printLine("%s has not submitted to problem %d", name, id)
		return nil
	}
	tw := s.table()
	fmt.Fprintln(tw, "#\tSUBMITTED\tPASSED")
	for i, sub := range progress.Submissions {
		fmt.Fprintf(tw, "%d\t%s\t%d/%d\n", i+1, sub.SubmittedAt.Format(time.RFC3339), sub.PassedCount, sub.TotalCount)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if best := progress.BestResult; best != nil {
		s.printLine("best: %d/%d", best.PassedCount, best.TotalCount)
	}
	if progress.JudgeApproval != model.ApprovalUnset {
		s.printLine("judge: %s", progress.JudgeApproval)
	}
	return nil
}

func runLeaderboard(ctx context.Context, s *Session, _ Params) error {
	entries, err := s.svc.Leaderboard(ctx)
	if err != nil {
		return err
	}
	tw := s.table()
	fmt.Fprintln(tw, "RANK\tNAME\tAPPROVED\tSOLVED\tTESTS\tSUBMISSIONS\tPENDING\tPROBLEM")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
			e.Rank, e.Name, e.ApprovedProblems, e.ProblemsSolved, e.TotalTestsPassed, e.TotalSubmissions, e.PendingReviews, e.CurrentProblemID)
	}
	return tw.Flush()
}

func runStats(ctx context.Context, s *Session, _ Params) error {
	stats, err := s.svc.Statistics(ctx)
	if err != nil {
		return err
	}
	tw := s.table()
	fmt.Fprintln(tw, "PROBLEM\tATTEMPTS\tSOLVERS\tSUBMISSIONS")
	for _, pr := range s.svc.Problems() {
		st := stats[pr.ID]
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\n", pr.ID, st.TotalAttempts, st.TotalSolvers, st.TotalSubmissions)
	}
	return tw.Flush()
}

func runPending(ctx context.Context, s *Session, _ Params) error {
	reviews, err := s.svc.PendingReviews(ctx)
	if err != nil {
		return err
	}
	if len(reviews) == 0 {
		s.printLine("no pending reviews")
		return nil
	}
	tw := s.table()
	fmt.Fprintln(tw, "COMPETITOR\tPROBLEM\tPASSED\tATTEMPTS\tSTATUS")
	for _, r := range reviews {
		status := string(r.Status)
		if status == "" {
			status = "unreviewed"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d/%d\t%d\t%s\n", r.Competitor, r.ProblemID, r.PassedCount, r.TotalCount, r.Attempts, status)
	}
	return tw.Flush()
}

func decision(status string) func(context.Context, *Session, Params) error {
	return func(ctx context.Context, s *Session, p Params) error {
		id, err := p.Int("id")
		if err != nil {
			return err
		}
		name := p.Get("name")
		switch status {
		case "approved":
			err = s.svc.Approve(ctx, name, id)
		case "rejected":
			err = s.svc.Reject(ctx, name, id)
		default:
			err = s.svc.MarkPending(ctx, name, id)
		}
		if err != nil {
			return err
		}
		s.printLine("%s problem %d: %s", name, id, status)
		return nil
	}
}

func runStart(ctx context.Context, s *Session, _ Params) error {
	if err := s.svc.Start(ctx); err != nil {
		return err
	}
	s.printLine("competition started")
	return nil
}

func runStatus(ctx context.Context, s *Session, _ Params) error {
	meta, err := s.svc.Metadata(ctx)
	if err != nil {
		return err
	}
	if meta.Started && meta.StartTime != nil {
		s.printLine("started at %s", meta.StartTime.Format(time.RFC3339))
	} else {
		s.printLine("not started")
	}
	s.printLine("problems loaded: %v", meta.ProblemsLoaded)
	if s.competitor != "" {
		s.printLine("acting as %s", s.competitor)
	}
	return nil
}

func runReset(ctx context.Context, s *Session, p Params) error {
	if !strings.EqualFold(strings.TrimSpace(p.Get("confirm")), "yes") {
		s.printLine("reset cancelled")
		return nil
	}
	if err := s.svc.Reset(ctx); err != nil {
		return err
	}
	s.competitor = ""
	s.printLine("competition reset")
	return nil
}

func runExport(ctx context.Context, s *Session, p Params) error {
	name, err := s.actor(p)
	if err != nil {
		return err
	}
	if p.Bool("upload") {
		key, err := s.svc.UploadSolutions(ctx, name)
		if err != nil {
			return err
		}
		s.printLine("uploaded %s", key)
		return nil
	}
	path, err := s.svc.ExportSolutions(ctx, name)
	if err != nil {
		return err
	}
	s.printLine("exported %s", path)
	return nil
}

func runMigrate(ctx context.Context, s *Session, _ Params) error {
	if s.migrationTarget == nil {
		return fmt.Errorf("no migration target configured")
	}
	report, err := s.svc.Migrate(ctx, s.migrationTarget)
	if err != nil {
		return err
	}
	s.printLine("migrated %d competitors, %d submissions", report.Competitors, report.Submissions)
	return nil
}

func runWatch(ctx context.Context, s *Session, p Params) error {
	if raw := p.Get("for"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	events, err := s.svc.Watch(ctx)
	if err != nil {
		return err
	}
	s.printLine("watching for changes")
	for ev := range events {
		if ev.Name != "" {
			s.printLine("%s %s %s", ev.At.Format(time.RFC3339), ev.Kind, ev.Name)
		} else {
			s.printLine("%s %s", ev.At.Format(time.RFC3339), ev.Kind)
		}
	}
	return nil
}

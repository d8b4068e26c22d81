package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"contestoj/internal/contest/judge"
	"contestoj/internal/contest/model"
	"contestoj/internal/contest/ranking"
	"contestoj/internal/contest/repository"
	"contestoj/internal/contest/service"
	appErr "contestoj/pkg/errors"

	"github.com/google/shlex"
)

// Contest is the service surface the console drives.
type Contest interface {
	Problems() []model.Problem
	Problem(id int) (model.Problem, error)
	Register(ctx context.Context, name string) (bool, error)
	Competitor(ctx context.Context, name string) (*model.Competitor, error)
	SelectProblem(ctx context.Context, name string, problemID int) error
	Progress(ctx context.Context, name string, problemID int) (*model.ProblemProgress, error)
	SubmitAsync(ctx context.Context, name string, problemID int, code string) <-chan service.SubmitOutcome
	Leaderboard(ctx context.Context) ([]ranking.LeaderboardEntry, error)
	Statistics(ctx context.Context) (map[int]ranking.ProblemStats, error)
	Approve(ctx context.Context, name string, problemID int) error
	Reject(ctx context.Context, name string, problemID int) error
	MarkPending(ctx context.Context, name string, problemID int) error
	PendingReviews(ctx context.Context) ([]judge.PendingReview, error)
	Start(ctx context.Context) error
	Metadata(ctx context.Context) (model.CompetitionMeta, error)
	Reset(ctx context.Context) error
	ExportSolutions(ctx context.Context, name string) (string, error)
	UploadSolutions(ctx context.Context, name string) (string, error)
	Migrate(ctx context.Context, dst repository.Importer) (repository.MigrationReport, error)
	Watch(ctx context.Context) (<-chan repository.ChangeEvent, error)
}

// Session holds REPL state.
type Session struct {
	svc             Contest
	commands        map[string]Command
	competitor      string
	migrationTarget repository.Importer
	reader          *bufio.Reader
	outputWriter    *bufio.Writer
}

// Option customizes a Session.
type Option func(*Session)

// WithCompetitor starts the session acting as name.
func WithCompetitor(name string) Option {
	return func(s *Session) { s.competitor = strings.TrimSpace(name) }
}

// WithMigrationTarget enables the migrate command.
func WithMigrationTarget(dst repository.Importer) Option {
	return func(s *Session) { s.migrationTarget = dst }
}

func New(svc Contest, in io.Reader, out io.Writer, opts ...Option) *Session {
	s := &Session{
		svc:          svc,
		commands:     Registry(),
		reader:       bufio.NewReader(in),
		outputWriter: bufio.NewWriter(out),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run reads commands until exit, end of input or ctx cancellation.
func (s *Session) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		s.prompt()
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read input failed: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		switch line {
		case "exit", "quit":
			s.printLine("bye")
			return nil
		case "help":
			s.printHelp()
			continue
		}
		if err := s.Exec(ctx, line); err != nil {
			s.printError(err)
		}
	}
}

// Exec runs a single command line.
func (s *Session) Exec(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}
	cmd, ok := s.commands[strings.ToLower(tokens[0])]
	if !ok {
		return fmt.Errorf("unknown command: %s (try help)", tokens[0])
	}

	params := Params{}
	for i, token := range tokens[1:] {
		parts := strings.SplitN(token, "=", 2)
		if len(parts) == 2 {
			params.Set(parts[0], parts[1])
			continue
		}
		// A bare value fills the next field without one.
		if i < len(cmd.Fields) && !params.Has(cmd.Fields[i].Name) {
			params.Set(cmd.Fields[i].Name, token)
			continue
		}
		return fmt.Errorf("invalid param: %s", token)
	}
	params.Canonicalize(cmd.Fields)
	if err := s.promptMissing(cmd, params); err != nil {
		return err
	}
	return cmd.Run(ctx, s, params)
}

func (s *Session) promptMissing(cmd Command, params Params) error {
	for _, field := range cmd.Fields {
		if !field.Required || params.Get(field.Name) != "" {
			continue
		}
		s.printLine("%s:", field.Prompt)
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read input failed: %w", err)
		}
		params.Set(field.Name, strings.TrimSpace(line))
	}
	return nil
}

// actor is the explicit name parameter or the session's competitor.
func (s *Session) actor(p Params) (string, error) {
	if name := strings.TrimSpace(p.Get("name")); name != "" {
		return name, nil
	}
	if s.competitor == "" {
		return "", fmt.Errorf("no competitor selected, use register or pass name=<competitor>")
	}
	return s.competitor, nil
}

func (s *Session) prompt() {
	label := "contest"
	if s.competitor != "" {
		label = s.competitor
	}
	_, _ = s.outputWriter.WriteString(label + "> ")
	_ = s.outputWriter.Flush()
}

func (s *Session) table() *tabwriter.Writer {
	return tabwriter.NewWriter(&flushWriter{s.outputWriter}, 0, 4, 2, ' ', 0)
}

func (s *Session) printHelp() {
	s.printLine("usage: <command> key=value ...   (bare values fill fields in order)")
	s.printLine("system: help | exit")
	for _, name := range sortedNames(s.commands) {
		cmd := s.commands[name]
		s.printLine("  %-50s %s", cmd.usage(), cmd.Summary)
	}
}

func (s *Session) printError(err error) {
	var e *appErr.Error
	if errors.As(err, &e) {
		s.printLine("error [%d]: %s", e.Code, e.Error())
		return
	}
	s.printLine("error: %v", err)
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.outputWriter, format+"\n", args...)
	_ = s.outputWriter.Flush()
}

// flushWriter flushes the session buffer after every table write.
type flushWriter struct {
	w *bufio.Writer
}

func (f *flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if err != nil {
		return n, err
	}
	return n, f.w.Flush()
}

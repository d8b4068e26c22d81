package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"contestoj/internal/contest/export"
	"contestoj/internal/contest/judge"
	"contestoj/internal/contest/model"
	"contestoj/internal/contest/problemset"
	"contestoj/internal/contest/ranking"
	"contestoj/internal/contest/repository"
	"contestoj/internal/contest/runner"
	appErr "contestoj/pkg/errors"
	"contestoj/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Judge runs submissions against test cases.
type Judge interface {
	Run(ctx context.Context, problem model.Problem, code string) (model.SubmissionResult, error)
	Dispatch(ctx context.Context, problem model.Problem, code string) <-chan runner.Outcome
}

// SubmitOutcome is delivered by SubmitAsync once the submission is judged
// and recorded.
type SubmitOutcome struct {
	Result model.SubmissionResult
	Err    error
}

// Service is the contest facade used by the console.
type Service struct {
	store        repository.Store
	judge        Judge
	problems     *problemset.ProblemSet
	overlay      *judge.Overlay
	exporter     *export.Exporter
	exportDir    string
	storeTimeout time.Duration
	log          *zap.Logger

	orderMu sync.Mutex
	tails   map[string]chan struct{}
}

// Config holds service dependencies and settings.
type Config struct {
	Store        repository.Store
	Judge        Judge
	Problems     *problemset.ProblemSet
	Exporter     *export.Exporter
	ExportDir    string
	StoreTimeout time.Duration
}

// NewService creates a contest service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, appErr.ValidationError("store", "required")
	}
	if cfg.Judge == nil {
		return nil, appErr.ValidationError("judge", "required")
	}
	if cfg.Problems == nil {
		return nil, appErr.ValidationError("problems", "required")
	}
	exporter := cfg.Exporter
	if exporter == nil {
		exporter = export.NewExporter(cfg.Store)
	}
	exportDir := cfg.ExportDir
	if exportDir == "" {
		exportDir = "."
	}
	return &Service{
		store:        cfg.Store,
		judge:        cfg.Judge,
		problems:     cfg.Problems,
		overlay:      judge.New(cfg.Store),
		exporter:     exporter,
		exportDir:    exportDir,
		storeTimeout: cfg.StoreTimeout,
		log:          logger.Named("contest"),
		tails:        make(map[string]chan struct{}),
	}, nil
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}

// Problems returns the loaded problems ordered by id.
func (s *Service) Problems() []model.Problem {
	return s.problems.All()
}

// Problem returns one problem or ProblemNotFound.
func (s *Service) Problem(id int) (model.Problem, error) {
	return s.problems.Lookup(id)
}

// PublishProblems records the loaded ids in the metadata document and
// mirrors the problems into backends that keep a catalog.
func (s *Service) PublishProblems(ctx context.Context) error {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.SetProblemsLoaded(ctx, s.problems.IDs()); err != nil {
		return err
	}
	if catalog, ok := s.store.(repository.ProblemCatalog); ok {
		if err := catalog.SaveProblems(ctx, s.problems.All()); err != nil {
			return err
		}
	}
	logger.Info(ctx, "problems published", zap.Int("count", s.problems.Len()))
	return nil
}

// Register creates a competitor. It reports false when the name exists,
// in which case the caller may continue as that competitor.
func (s *Service) Register(ctx context.Context, name string) (bool, error) {
	name = normalizeName(name)
	ctx, cancel := s.storeCtx(logger.WithCompetitor(ctx, name))
	defer cancel()
	created, err := s.store.RegisterCompetitor(ctx, name)
	if err != nil {
		return false, err
	}
	if created {
		logger.Info(ctx, "competitor registered")
	}
	return created, nil
}

// Competitor returns the stored document or CompetitorNotFound.
func (s *Service) Competitor(ctx context.Context, name string) (*model.Competitor, error) {
	name = normalizeName(name)
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	c, err := s.store.GetCompetitor(ctx, name)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, competitorNotFound(name)
	}
	return c, nil
}

// SelectProblem moves the competitor to problemID.
func (s *Service) SelectProblem(ctx context.Context, name string, problemID int) error {
	name = normalizeName(name)
	if _, err := s.problems.Lookup(problemID); err != nil {
		return err
	}
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	ok, err := s.store.UpdateCurrentProblem(ctx, name, problemID)
	if err != nil {
		return err
	}
	if !ok {
		return competitorNotFound(name)
	}
	return nil
}

// Progress returns the competitor's progress on a problem, nil when there
// is none yet.
func (s *Service) Progress(ctx context.Context, name string, problemID int) (*model.ProblemProgress, error) {
	name = normalizeName(name)
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.GetProgress(ctx, name, problemID)
}

// Submit judges code synchronously and records the result.
func (s *Service) Submit(ctx context.Context, name string, problemID int, code string) (model.SubmissionResult, error) {
	name = normalizeName(name)
	problem, ctx, err := s.prepare(ctx, name, problemID)
	if err != nil {
		return model.SubmissionResult{}, err
	}
	result, err := s.judge.Run(ctx, problem, code)
	if err != nil {
		return model.SubmissionResult{}, err
	}
	if err := s.record(ctx, name, problemID, result); err != nil {
		return model.SubmissionResult{}, err
	}
	return result, nil
}

// SubmitAsync judges code on the runner pool. Results for the same
// competitor and problem are recorded in call order even when judging
// finishes out of order.
func (s *Service) SubmitAsync(ctx context.Context, name string, problemID int, code string) <-chan SubmitOutcome {
	name = normalizeName(name)
	out := make(chan SubmitOutcome, 1)
	problem, ctx, err := s.prepare(ctx, name, problemID)
	if err != nil {
		out <- SubmitOutcome{Err: err}
		close(out)
		return out
	}

	key := fmt.Sprintf("%s\x00%d", name, problemID)
	done := make(chan struct{})
	s.orderMu.Lock()
	prev := s.tails[key]
	s.tails[key] = done
	s.orderMu.Unlock()

	judged := s.judge.Dispatch(ctx, problem, code)
	go func() {
		defer close(out)
		defer s.releaseTail(key, done)

		outcome := <-judged
		if prev != nil {
			<-prev
		}
		if outcome.Err == nil {
			outcome.Err = s.record(ctx, name, problemID, outcome.Result)
		}
		if outcome.Err != nil {
			logger.Warn(ctx, "async submission failed", zap.Error(outcome.Err))
			out <- SubmitOutcome{Err: outcome.Err}
			return
		}
		out <- SubmitOutcome{Result: outcome.Result}
	}()
	return out
}

func (s *Service) releaseTail(key string, done chan struct{}) {
	close(done)
	s.orderMu.Lock()
	if s.tails[key] == done {
		delete(s.tails, key)
	}
	s.orderMu.Unlock()
}

func (s *Service) prepare(ctx context.Context, name string, problemID int) (model.Problem, context.Context, error) {
	ctx = logger.WithTraceID(logger.WithProblem(logger.WithCompetitor(ctx, name), problemID), uuid.NewString())
	problem, err := s.problems.Lookup(problemID)
	if err != nil {
		return model.Problem{}, ctx, err
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	taken, err := s.store.IsNameTaken(sctx, name)
	if err != nil {
		return model.Problem{}, ctx, err
	}
	if !taken {
		return model.Problem{}, ctx, competitorNotFound(name)
	}
	return problem, ctx, nil
}

func (s *Service) record(ctx context.Context, name string, problemID int, result model.SubmissionResult) error {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	ok, err := s.store.RecordSubmission(sctx, name, problemID, result)
	if err != nil {
		return err
	}
	if !ok {
		return competitorNotFound(name)
	}
	logger.Info(ctx, "submission recorded",
		zap.Int("passed", result.PassedCount),
		zap.Int("total", result.TotalCount),
		zap.Bool("all_passed", result.AllPassed))
	return nil
}

// Leaderboard ranks every competitor.
func (s *Service) Leaderboard(ctx context.Context) ([]ranking.LeaderboardEntry, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return ranking.ComputeLeaderboard(ctx, s.store)
}

// Statistics aggregates attempts and solvers per problem.
func (s *Service) Statistics(ctx context.Context) (map[int]ranking.ProblemStats, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return ranking.ComputeProblemStatistics(ctx, s.store)
}

// Approve records a judge approval. ProgressNotFound means the competitor
// never submitted to the problem.
func (s *Service) Approve(ctx context.Context, name string, problemID int) error {
	return s.decide(ctx, name, problemID, s.overlay.Approve)
}

// Reject records a judge rejection.
func (s *Service) Reject(ctx context.Context, name string, problemID int) error {
	return s.decide(ctx, name, problemID, s.overlay.Reject)
}

// MarkPending returns a problem to the review queue.
func (s *Service) MarkPending(ctx context.Context, name string, problemID int) error {
	return s.decide(ctx, name, problemID, s.overlay.MarkPending)
}

func (s *Service) decide(ctx context.Context, name string, problemID int, fn func(context.Context, string, int) (bool, error)) error {
	name = normalizeName(name)
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	ok, err := fn(ctx, name, problemID)
	if err != nil {
		return err
	}
	if !ok {
		return appErr.Newf(appErr.ProgressNotFound, "%s has no submissions for problem %d", name, problemID).
			WithDetail("competitor", name).
			WithDetail("problem_id", problemID)
	}
	return nil
}

// PendingReviews lists solved problems waiting for a judge decision.
func (s *Service) PendingReviews(ctx context.Context) ([]judge.PendingReview, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.overlay.PendingReviews(ctx)
}

// Start marks the competition as started.
func (s *Service) Start(ctx context.Context) error {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.StartCompetition(ctx); err != nil {
		return err
	}
	logger.Info(ctx, "competition started")
	return nil
}

// Metadata returns the competition metadata document.
func (s *Service) Metadata(ctx context.Context) (model.CompetitionMeta, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.Metadata(ctx)
}

// Reset erases every competitor and the metadata document.
func (s *Service) Reset(ctx context.Context) error {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.store.Reset(ctx); err != nil {
		return err
	}
	logger.Warn(ctx, "competition reset")
	return nil
}

// ExportSolutions writes the competitor's archive into the export dir.
func (s *Service) ExportSolutions(ctx context.Context, name string) (string, error) {
	name = normalizeName(name)
	return s.exporter.WriteFile(ctx, name, s.problems.All(), s.exportDir)
}

// UploadSolutions publishes the competitor's archive to object storage.
func (s *Service) UploadSolutions(ctx context.Context, name string) (string, error) {
	name = normalizeName(name)
	return s.exporter.Upload(ctx, name, s.problems.All())
}

// Migrate copies every document of this service's store into dst.
func (s *Service) Migrate(ctx context.Context, dst repository.Importer) (repository.MigrationReport, error) {
	return repository.Migrate(ctx, s.store, dst)
}

// Watch streams store change events when the backend supports them.
func (s *Service) Watch(ctx context.Context) (<-chan repository.ChangeEvent, error) {
	notifier, ok := s.store.(repository.ChangeNotifier)
	if !ok {
		return nil, appErr.New(appErr.NotSupported).WithMessage("store backend does not publish change events")
	}
	return notifier.Subscribe(ctx)
}

// Close releases the store.
func (s *Service) Close() error {
	return s.store.Close()
}

// normalizeName is applied at every entry point taking a competitor name.
func normalizeName(name string) string {
	return strings.TrimSpace(name)
}

func competitorNotFound(name string) error {
	return appErr.Newf(appErr.CompetitorNotFound, "competitor %s not found", name).WithDetail("competitor", name)
}

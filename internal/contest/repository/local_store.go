package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"contestoj/internal/contest/model"
	appErr "contestoj/pkg/errors"
	"contestoj/pkg/utils/logger"

	"go.uber.org/zap"
)

// LocalStore keeps the whole contest in one JSON document. Every operation
// holds an in-process mutex and an advisory lock on "<path>.lock", so
// processes sharing the file see serialized read-modify-write cycles.
type LocalStore struct {
	path string
	mu   sync.Mutex
	opts options
	log  *zap.Logger
}

// NewLocalStore opens path, creating an empty document when it is missing.
func NewLocalStore(path string, opts ...Option) (*LocalStore, error) {
	if path == "" {
		return nil, appErr.ValidationError("path", "required")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "create state dir %s", dir)
		}
	}
	s := &LocalStore{path: path, opts: buildOptions(opts), log: logger.Named("local_store")}
	if _, err := s.withState(context.Background(), func(*model.State) (bool, error) { return false, nil }); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the document location.
func (s *LocalStore) Path() string {
	return s.path
}

func (s *LocalStore) RegisterCompetitor(ctx context.Context, name string) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}
	return s.withState(ctx, func(state *model.State) (bool, error) {
		if _, ok := state.Competitors[name]; ok {
			return false, nil
		}
		state.Competitors[name] = model.NewCompetitor(name, s.opts.now())
		return true, nil
	})
}

func (s *LocalStore) IsNameTaken(ctx context.Context, name string) (bool, error) {
	var taken bool
	_, err := s.withState(ctx, func(state *model.State) (bool, error) {
		_, taken = state.Competitors[name]
		return false, nil
	})
	return taken, err
}

func (s *LocalStore) UpdateCurrentProblem(ctx context.Context, name string, problemID int) (bool, error) {
	return s.update(ctx, name, selectProblem(problemID, s.opts.now()))
}

func (s *LocalStore) RecordSubmission(ctx context.Context, name string, problemID int, result model.SubmissionResult) (bool, error) {
	if err := validateResult(result); err != nil {
		return false, err
	}
	return s.update(ctx, name, appendSubmission(problemID, model.NewSubmission(result, s.opts.now())))
}

func (s *LocalStore) SetJudgeApproval(ctx context.Context, name string, problemID int, status model.ApprovalStatus) (bool, error) {
	if err := validateStatus(status); err != nil {
		return false, err
	}
	return s.update(ctx, name, approve(problemID, status, s.opts.now()))
}

func (s *LocalStore) GetProgress(ctx context.Context, name string, problemID int) (*model.ProblemProgress, error) {
	c, err := s.GetCompetitor(ctx, name)
	if err != nil || c == nil {
		return nil, err
	}
	return c.Problems[problemID], nil
}

func (s *LocalStore) GetCompetitor(ctx context.Context, name string) (*model.Competitor, error) {
	var out *model.Competitor
	_, err := s.withState(ctx, func(state *model.State) (bool, error) {
		out = state.Competitors[name].Clone()
		return false, nil
	})
	return out, err
}

func (s *LocalStore) ListCompetitors(ctx context.Context) ([]model.Competitor, error) {
	var out []model.Competitor
	_, err := s.withState(ctx, func(state *model.State) (bool, error) {
		out = make([]model.Competitor, 0, len(state.Competitors))
		for _, c := range state.Competitors {
			out = append(out, *c.Clone())
		}
		return false, nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

func (s *LocalStore) StartCompetition(ctx context.Context) error {
	_, err := s.withState(ctx, func(state *model.State) (bool, error) {
		now := s.opts.now()
		state.Started = true
		state.StartTime = &now
		return true, nil
	})
	return err
}

func (s *LocalStore) SetProblemsLoaded(ctx context.Context, problemIDs []int) error {
	_, err := s.withState(ctx, func(state *model.State) (bool, error) {
		state.ProblemsLoaded = append([]int{}, problemIDs...)
		return true, nil
	})
	return err
}

func (s *LocalStore) Metadata(ctx context.Context) (model.CompetitionMeta, error) {
	var meta model.CompetitionMeta
	_, err := s.withState(ctx, func(state *model.State) (bool, error) {
		meta = state.CompetitionMeta
		meta.ProblemsLoaded = append([]int{}, state.ProblemsLoaded...)
		return false, nil
	})
	return meta, err
}

func (s *LocalStore) Reset(ctx context.Context) error {
	_, err := s.withState(ctx, func(state *model.State) (bool, error) {
		*state = *model.NewState()
		return true, nil
	})
	return err
}

func (s *LocalStore) ImportMetadata(ctx context.Context, meta model.CompetitionMeta) error {
	_, err := s.withState(ctx, func(state *model.State) (bool, error) {
		state.CompetitionMeta = meta
		if state.ProblemsLoaded == nil {
			state.ProblemsLoaded = []int{}
		}
		return true, nil
	})
	return err
}

func (s *LocalStore) ImportCompetitor(ctx context.Context, competitor *model.Competitor) error {
	if competitor == nil {
		return appErr.ValidationError("competitor", "required")
	}
	if err := validateName(competitor.Name); err != nil {
		return err
	}
	_, err := s.withState(ctx, func(state *model.State) (bool, error) {
		c := competitor.Clone()
		normalizeCompetitor(c)
		state.Competitors[c.Name] = c
		return true, nil
	})
	return err
}

func (s *LocalStore) Close() error {
	return nil
}

func (s *LocalStore) update(ctx context.Context, name string, fn mutation) (bool, error) {
	return s.withState(ctx, func(state *model.State) (bool, error) {
		c, ok := state.Competitors[name]
		if !ok {
			return false, nil
		}
		return fn(c), nil
	})
}

// withState runs fn under both locks and persists the state when fn reports
// a change. The returned bool is fn's.
func (s *LocalStore) withState(ctx context.Context, fn func(state *model.State) (bool, error)) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := lockFile(s.path + ".lock")
	if err != nil {
		return false, appErr.Wrapf(err, appErr.LockFailed, "lock %s", s.path)
	}
	defer unlock()

	state, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	changed, err := fn(state)
	if err != nil || !changed {
		return changed, err
	}
	if err := s.save(state); err != nil {
		return false, err
	}
	return true, nil
}

// load reads the document. A missing file yields a fresh state; an
// unreadable one is moved aside and replaced.
func (s *LocalStore) load(ctx context.Context) (*model.State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		state := model.NewState()
		if err := s.save(state); err != nil {
			return nil, err
		}
		return state, nil
	}
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "read %s", s.path)
	}

	state := model.NewState()
	if err := json.Unmarshal(data, state); err != nil {
		aside := fmt.Sprintf("%s.corrupt-%d", s.path, s.opts.now().Unix())
		logger.Warn(ctx, "state document is corrupt, starting fresh",
			zap.String("path", s.path), zap.String("moved_to", aside), zap.Error(err))
		if err := os.Rename(s.path, aside); err != nil {
			return nil, appErr.Wrapf(err, appErr.DocumentCorrupt, "move corrupt state aside")
		}
		state = model.NewState()
		if err := s.save(state); err != nil {
			return nil, err
		}
		return state, nil
	}

	if state.Competitors == nil {
		state.Competitors = make(map[string]*model.Competitor)
	}
	if state.ProblemsLoaded == nil {
		state.ProblemsLoaded = []int{}
	}
	for name, c := range state.Competitors {
		if c == nil {
			delete(state.Competitors, name)
			continue
		}
		if c.Name == "" {
			c.Name = name
		}
		normalizeCompetitor(c)
	}
	return state, nil
}

func (s *LocalStore) save(state *model.State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "encode state")
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "create temp state file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return appErr.Wrapf(err, appErr.DatabaseError, "write temp state file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return appErr.Wrapf(err, appErr.DatabaseError, "sync temp state file")
	}
	if err := tmp.Close(); err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "close temp state file")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "replace state file")
	}
	return nil
}

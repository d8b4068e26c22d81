package repository

import (
	"context"
	"encoding/json"
	"sort"

	"contestoj/internal/common/db"
	"contestoj/internal/contest/model"
	appErr "contestoj/pkg/errors"
)

const metaRowID = 1

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS contest_competitors (
		name VARCHAR(191) NOT NULL PRIMARY KEY,
		document JSON NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin`,
	`CREATE TABLE IF NOT EXISTS contest_meta (
		id TINYINT NOT NULL PRIMARY KEY,
		document JSON NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS contest_problems (
		id INT NOT NULL PRIMARY KEY,
		document JSON NOT NULL
	)`,
}

// MySQLStore keeps one JSON document per competitor row. Updates lock the
// row with SELECT ... FOR UPDATE inside a transaction.
type MySQLStore struct {
	db   db.Database
	opts options
}

// NewMySQLStore wraps database and creates the tables when missing.
func NewMySQLStore(ctx context.Context, database db.Database, opts ...Option) (*MySQLStore, error) {
	if database == nil {
		return nil, appErr.New(appErr.DatabaseError).WithMessage("database is not initialized")
	}
	s := &MySQLStore{db: database, opts: buildOptions(opts)}
	for _, stmt := range mysqlSchema {
		if _, err := database.Exec(ctx, stmt); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "create contest schema")
		}
	}
	return s, nil
}

func (s *MySQLStore) RegisterCompetitor(ctx context.Context, name string) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}
	data, err := json.Marshal(model.NewCompetitor(name, s.opts.now()))
	if err != nil {
		return false, appErr.Wrapf(err, appErr.DatabaseError, "encode competitor")
	}
	_, err = s.db.Exec(ctx, "INSERT INTO contest_competitors (name, document) VALUES (?, ?)", name, data)
	if _, dup := db.UniqueViolation(err); dup {
		return false, nil
	}
	if err != nil {
		return false, appErr.Wrapf(err, appErr.DatabaseError, "register competitor")
	}
	return true, nil
}

func (s *MySQLStore) IsNameTaken(ctx context.Context, name string) (bool, error) {
	var one int
	err := s.db.QueryRow(ctx, "SELECT 1 FROM contest_competitors WHERE name = ?", name).Scan(&one)
	if db.IsNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, appErr.Wrapf(err, appErr.DatabaseError, "check competitor")
	}
	return true, nil
}

func (s *MySQLStore) UpdateCurrentProblem(ctx context.Context, name string, problemID int) (bool, error) {
	return s.update(ctx, name, selectProblem(problemID, s.opts.now()))
}

func (s *MySQLStore) RecordSubmission(ctx context.Context, name string, problemID int, result model.SubmissionResult) (bool, error) {
	if err := validateResult(result); err != nil {
		return false, err
	}
	return s.update(ctx, name, appendSubmission(problemID, model.NewSubmission(result, s.opts.now())))
}

func (s *MySQLStore) SetJudgeApproval(ctx context.Context, name string, problemID int, status model.ApprovalStatus) (bool, error) {
	if err := validateStatus(status); err != nil {
		return false, err
	}
	return s.update(ctx, name, approve(problemID, status, s.opts.now()))
}

func (s *MySQLStore) GetProgress(ctx context.Context, name string, problemID int) (*model.ProblemProgress, error) {
	c, err := s.GetCompetitor(ctx, name)
	if err != nil || c == nil {
		return nil, err
	}
	return c.Problems[problemID], nil
}

func (s *MySQLStore) GetCompetitor(ctx context.Context, name string) (*model.Competitor, error) {
	var data []byte
	err := s.db.QueryRow(ctx, "SELECT document FROM contest_competitors WHERE name = ?", name).Scan(&data)
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load competitor")
	}
	return decodeCompetitor(data)
}

func (s *MySQLStore) ListCompetitors(ctx context.Context) ([]model.Competitor, error) {
	rows, err := s.db.Query(ctx, "SELECT document FROM contest_competitors")
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list competitors")
	}
	defer rows.Close()

	out := []model.Competitor{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan competitor")
		}
		c, err := decodeCompetitor(data)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "iterate competitors")
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MySQLStore) StartCompetition(ctx context.Context) error {
	return s.updateMeta(ctx, func(meta *model.CompetitionMeta) {
		now := s.opts.now()
		meta.Started = true
		meta.StartTime = &now
	})
}

func (s *MySQLStore) SetProblemsLoaded(ctx context.Context, problemIDs []int) error {
	return s.updateMeta(ctx, func(meta *model.CompetitionMeta) {
		meta.ProblemsLoaded = append([]int{}, problemIDs...)
	})
}

func (s *MySQLStore) Metadata(ctx context.Context) (model.CompetitionMeta, error) {
	var data []byte
	err := s.db.QueryRow(ctx, "SELECT document FROM contest_meta WHERE id = ?", metaRowID).Scan(&data)
	if db.IsNoRows(err) {
		return model.CompetitionMeta{ProblemsLoaded: []int{}}, nil
	}
	if err != nil {
		return model.CompetitionMeta{}, appErr.Wrapf(err, appErr.DatabaseError, "load metadata")
	}
	return decodeMeta(data)
}

func (s *MySQLStore) Reset(ctx context.Context) error {
	return s.db.Transaction(ctx, func(tx db.Transaction) error {
		if _, err := tx.Exec(ctx, "DELETE FROM contest_competitors"); err != nil {
			return appErr.Wrapf(err, appErr.DatabaseError, "reset competitors")
		}
		if _, err := tx.Exec(ctx, "DELETE FROM contest_meta"); err != nil {
			return appErr.Wrapf(err, appErr.DatabaseError, "reset metadata")
		}
		return nil
	})
}

func (s *MySQLStore) ImportMetadata(ctx context.Context, meta model.CompetitionMeta) error {
	return s.writeMeta(ctx, s.db, meta)
}

func (s *MySQLStore) ImportCompetitor(ctx context.Context, competitor *model.Competitor) error {
	if competitor == nil {
		return appErr.ValidationError("competitor", "required")
	}
	if err := validateName(competitor.Name); err != nil {
		return err
	}
	c := competitor.Clone()
	normalizeCompetitor(c)
	data, err := json.Marshal(c)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "encode competitor")
	}
	_, err = s.db.Exec(ctx,
		"INSERT INTO contest_competitors (name, document) VALUES (?, ?) ON DUPLICATE KEY UPDATE document = VALUES(document)",
		c.Name, data)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "import competitor")
	}
	return nil
}

// SaveProblems replaces the mirrored problem set.
func (s *MySQLStore) SaveProblems(ctx context.Context, problems []model.Problem) error {
	return s.db.Transaction(ctx, func(tx db.Transaction) error {
		if _, err := tx.Exec(ctx, "DELETE FROM contest_problems"); err != nil {
			return appErr.Wrapf(err, appErr.DatabaseError, "clear problems")
		}
		for _, p := range problems {
			data, err := json.Marshal(p)
			if err != nil {
				return appErr.Wrapf(err, appErr.DatabaseError, "encode problem %d", p.ID)
			}
			if _, err := tx.Exec(ctx, "INSERT INTO contest_problems (id, document) VALUES (?, ?)", p.ID, data); err != nil {
				return appErr.Wrapf(err, appErr.DatabaseError, "store problem %d", p.ID)
			}
		}
		return nil
	})
}

// LoadProblems returns the mirrored problems ordered by id.
func (s *MySQLStore) LoadProblems(ctx context.Context) ([]model.Problem, error) {
	rows, err := s.db.Query(ctx, "SELECT id, document FROM contest_problems ORDER BY id")
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load problems")
	}
	defer rows.Close()

	out := []model.Problem{}
	for rows.Next() {
		var (
			id   int
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan problem")
		}
		var p model.Problem
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, appErr.Wrapf(err, appErr.DocumentCorrupt, "decode problem %d", id)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "iterate problems")
	}
	return out, nil
}

func (s *MySQLStore) Close() error {
	return s.db.Close()
}

func (s *MySQLStore) update(ctx context.Context, name string, fn mutation) (bool, error) {
	var changed bool
	err := s.db.Transaction(ctx, func(tx db.Transaction) error {
		var data []byte
		err := tx.QueryRow(ctx, "SELECT document FROM contest_competitors WHERE name = ? FOR UPDATE", name).Scan(&data)
		if db.IsNoRows(err) {
			return nil
		}
		if err != nil {
			return appErr.Wrapf(err, appErr.DatabaseError, "lock competitor")
		}
		c, err := decodeCompetitor(data)
		if err != nil {
			return err
		}
		if !fn(c) {
			return nil
		}
		out, err := json.Marshal(c)
		if err != nil {
			return appErr.Wrapf(err, appErr.DatabaseError, "encode competitor")
		}
		if _, err := tx.Exec(ctx, "UPDATE contest_competitors SET document = ? WHERE name = ?", out, name); err != nil {
			return appErr.Wrapf(err, appErr.DatabaseError, "update competitor")
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

func (s *MySQLStore) updateMeta(ctx context.Context, fn func(meta *model.CompetitionMeta)) error {
	return s.db.Transaction(ctx, func(tx db.Transaction) error {
		meta := model.CompetitionMeta{ProblemsLoaded: []int{}}
		var data []byte
		err := tx.QueryRow(ctx, "SELECT document FROM contest_meta WHERE id = ? FOR UPDATE", metaRowID).Scan(&data)
		switch {
		case db.IsNoRows(err):
		case err != nil:
			return appErr.Wrapf(err, appErr.DatabaseError, "lock metadata")
		default:
			if meta, err = decodeMeta(data); err != nil {
				return err
			}
		}
		fn(&meta)
		return s.writeMeta(ctx, tx, meta)
	})
}

func (s *MySQLStore) writeMeta(ctx context.Context, q db.Querier, meta model.CompetitionMeta) error {
	if meta.ProblemsLoaded == nil {
		meta.ProblemsLoaded = []int{}
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "encode metadata")
	}
	_, err = q.Exec(ctx,
		"INSERT INTO contest_meta (id, document) VALUES (?, ?) ON DUPLICATE KEY UPDATE document = VALUES(document)",
		metaRowID, data)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "store metadata")
	}
	return nil
}

package problemset

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"contestoj/internal/contest/model"
	appErr "contestoj/pkg/errors"
	"contestoj/pkg/utils/validate"
)

// ProblemSet is an immutable, id-ordered collection of problems.
type ProblemSet struct {
	problems []model.Problem
	byID     map[int]int
}

// New validates problems and indexes them by id.
func New(problems []model.Problem) (*ProblemSet, error) {
	if len(problems) == 0 {
		return nil, appErr.New(appErr.ProblemSetEmpty)
	}
	sorted := make([]model.Problem, len(problems))
	copy(sorted, problems)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	byID := make(map[int]int, len(sorted))
	for i, p := range sorted {
		if err := validate.Struct(p); err != nil {
			return nil, appErr.GetError(err).WithDetail("problem_id", p.ID)
		}
		if _, dup := byID[p.ID]; dup {
			return nil, appErr.Newf(appErr.DuplicateProblem, "duplicate problem id %d", p.ID).WithDetail("problem_id", p.ID)
		}
		byID[p.ID] = i
	}
	return &ProblemSet{problems: sorted, byID: byID}, nil
}

// Get returns the problem with id.
func (s *ProblemSet) Get(id int) (model.Problem, bool) {
	i, ok := s.byID[id]
	if !ok {
		return model.Problem{}, false
	}
	return s.problems[i], true
}

// Lookup is Get returning ProblemNotFound for a missing id.
func (s *ProblemSet) Lookup(id int) (model.Problem, error) {
	p, ok := s.Get(id)
	if !ok {
		return model.Problem{}, appErr.Newf(appErr.ProblemNotFound, "problem %d not found", id).WithDetail("problem_id", id)
	}
	return p, nil
}

// All returns the problems ordered by id.
func (s *ProblemSet) All() []model.Problem {
	out := make([]model.Problem, len(s.problems))
	copy(out, s.problems)
	return out
}

// IDs returns the problem ids in ascending order.
func (s *ProblemSet) IDs() []int {
	ids := make([]int, len(s.problems))
	for i, p := range s.problems {
		ids[i] = p.ID
	}
	return ids
}

func (s *ProblemSet) Len() int { return len(s.problems) }

// Parse decodes a problem document. Accepted shapes are a list of problems,
// {"problems": [...]}, a session map {"session1": [...], ...} and a single
// problem object.
func Parse(data []byte) ([]model.Problem, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, appErr.New(appErr.ProblemSetEmpty)
	}

	switch data[0] {
	case '[':
		return decodeList(data)
	case '{':
	default:
		return nil, appErr.New(appErr.InvalidFormat).WithMessage("problem document must be a JSON array or object")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidFormat, "decode problem document")
	}
	if raw, ok := fields["problems"]; ok {
		return decodeList(raw)
	}
	if _, ok := fields["test_cases"]; ok {
		var p model.Problem
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, appErr.Wrapf(err, appErr.InvalidFormat, "decode problem")
		}
		return []model.Problem{p}, nil
	}

	sessions := make([]string, 0, len(fields))
	for key := range fields {
		sessions = append(sessions, key)
	}
	sort.Strings(sessions)
	var out []model.Problem
	for _, session := range sessions {
		problems, err := decodeList(fields[session])
		if err != nil {
			return nil, appErr.GetError(err).WithDetail("session", session)
		}
		out = append(out, problems...)
	}
	return out, nil
}

func decodeList(raw json.RawMessage) ([]model.Problem, error) {
	var problems []model.Problem
	if err := json.Unmarshal(raw, &problems); err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidFormat, "decode problem list")
	}
	return problems, nil
}

// LoadFile reads and validates a single problem document.
func LoadFile(path string) (*ProblemSet, error) {
	problems, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return New(problems)
}

var digits = regexp.MustCompile(`\d+`)

// LoadDir reads every *.json file in dir. A single-problem file without an
// id takes the first number in its file name, so problem3.json becomes id 3.
func LoadDir(dir string) (*ProblemSet, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "scan %s", dir)
	}
	sort.Strings(paths)

	var all []model.Problem
	for _, path := range paths {
		problems, err := readFile(path)
		if err != nil {
			return nil, err
		}
		if len(problems) == 1 && problems[0].ID == 0 {
			if m := digits.FindString(filepath.Base(path)); m != "" {
				problems[0].ID, _ = strconv.Atoi(m)
			}
		}
		all = append(all, problems...)
	}
	return New(all)
}

// Load picks LoadDir or LoadFile depending on what path is.
func Load(path string) (*ProblemSet, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.NotFound, "problem source %s", path)
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	return LoadFile(path)
}

func readFile(path string) ([]model.Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.NotFound, "read problem file %s", path)
	}
	problems, err := Parse(data)
	if err != nil {
		return nil, appErr.GetError(err).WithDetail("file", path)
	}
	return problems, nil
}

package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"contestoj/internal/common/storage"
	"contestoj/internal/contest/model"
	appErr "contestoj/pkg/errors"
	"contestoj/pkg/utils/logger"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"
)

const (
	summaryFile     = "SUMMARY.txt"
	archiveMIME     = "application/zip"
	defaultKeyRoot  = "exports"
	separatorLength = 50
)

// CompetitorGetter loads the document being exported.
type CompetitorGetter interface {
	GetCompetitor(ctx context.Context, name string) (*model.Competitor, error)
}

// ArchiveName is the file name used for a competitor's solutions.
func ArchiveName(name string) string {
	return fmt.Sprintf("solutions_%s.zip", sanitize(name))
}

// BuildArchive writes a zip holding problem_<id>.py for every problem plus a
// SUMMARY.txt. Each file carries the competitor's latest submission.
func BuildArchive(w io.Writer, c *model.Competitor, problems []model.Problem, now time.Time) error {
	zw := zip.NewWriter(w)
	var summary strings.Builder
	fmt.Fprintf(&summary, "Competitor: %s\n", c.Name)
	fmt.Fprintf(&summary, "Export Date: %s\n\n", now.UTC().Format(time.RFC3339))
	fmt.Fprintf(&summary, "%s\nProblem Results:\n%s\n", strings.Repeat("=", separatorLength), strings.Repeat("=", separatorLength))

	for _, p := range problems {
		progress := c.Problems[p.ID]
		var body strings.Builder
		fmt.Fprintf(&body, "# Problem %d: %s\n", p.ID, p.Title)
		if latest := latestSubmission(progress); latest != nil {
			fmt.Fprintf(&body, "# %s\n\n", strings.Repeat("-", separatorLength))
			body.WriteString(latest.Code)
			if !strings.HasSuffix(latest.Code, "\n") {
				body.WriteString("\n")
			}
		} else {
			body.WriteString("# No solution submitted\n")
		}
		if err := writeEntry(zw, fmt.Sprintf("problem_%d.py", p.ID), body.String(), now); err != nil {
			return err
		}
		fmt.Fprintf(&summary, "Problem %d: %s\n", p.ID, status(progress))
	}

	if err := writeEntry(zw, summaryFile, summary.String(), now); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return appErr.Wrapf(err, appErr.ExportFailed, "finish archive")
	}
	return nil
}

func status(p *model.ProblemProgress) string {
	switch {
	case p.Solved():
		s := fmt.Sprintf("PASSED (%d/%d)", p.BestResult.PassedCount, p.BestResult.TotalCount)
		if p.JudgeApproval != model.ApprovalUnset {
			s += ", judge " + string(p.JudgeApproval)
		}
		return s
	case p != nil && p.BestResult != nil:
		return fmt.Sprintf("NOT SOLVED (%d/%d)", p.BestResult.PassedCount, p.BestResult.TotalCount)
	default:
		return "NOT SOLVED"
	}
}

func latestSubmission(p *model.ProblemProgress) *model.Submission {
	if p == nil || len(p.Submissions) == 0 {
		return nil
	}
	return &p.Submissions[len(p.Submissions)-1]
}

func writeEntry(zw *zip.Writer, name, content string, modified time.Time) error {
	f, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
	if err != nil {
		return appErr.Wrapf(err, appErr.ExportFailed, "create %s", name)
	}
	if _, err := io.WriteString(f, content); err != nil {
		return appErr.Wrapf(err, appErr.ExportFailed, "write %s", name)
	}
	return nil
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ', 0:
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
}

// Exporter builds archives from the store and optionally publishes them to
// object storage.
type Exporter struct {
	store   CompetitorGetter
	objects storage.ObjectStorage
	bucket  string
	keyRoot string
	now     func() time.Time
	log     *zap.Logger
}

// Option customizes an Exporter.
type Option func(*Exporter)

// WithObjectStorage enables Upload.
func WithObjectStorage(objects storage.ObjectStorage, bucket string) Option {
	return func(e *Exporter) {
		e.objects = objects
		e.bucket = bucket
	}
}

// WithKeyPrefix sets the object key prefix, "exports" by default.
func WithKeyPrefix(prefix string) Option {
	return func(e *Exporter) {
		if prefix = strings.Trim(prefix, "/"); prefix != "" {
			e.keyRoot = prefix
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		if now != nil {
			e.now = now
		}
	}
}

func NewExporter(store CompetitorGetter, opts ...Option) *Exporter {
	e := &Exporter{store: store, keyRoot: defaultKeyRoot, now: time.Now, log: logger.Named("export")}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Archive renders the competitor's archive in memory.
func (e *Exporter) Archive(ctx context.Context, name string, problems []model.Problem) (*bytes.Buffer, error) {
	c, err := e.store.GetCompetitor(ctx, name)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, appErr.Newf(appErr.CompetitorNotFound, "competitor %s not found", name)
	}
	var buf bytes.Buffer
	if err := BuildArchive(&buf, c, problems, e.now()); err != nil {
		return nil, err
	}
	return &buf, nil
}

// WriteFile writes the archive into dir and returns its path.
func (e *Exporter) WriteFile(ctx context.Context, name string, problems []model.Problem, dir string) (string, error) {
	buf, err := e.Archive(ctx, name, problems)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", appErr.Wrapf(err, appErr.ExportFailed, "create export dir")
	}
	path := filepath.Join(dir, ArchiveName(name))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", appErr.Wrapf(err, appErr.ExportFailed, "write archive")
	}
	logger.Info(logger.WithCompetitor(ctx, name), "solutions exported", zap.String("path", path), zap.Int("bytes", buf.Len()))
	return path, nil
}

// Upload publishes the archive and returns its object key.
func (e *Exporter) Upload(ctx context.Context, name string, problems []model.Problem) (string, error) {
	if e.objects == nil || e.bucket == "" {
		return "", appErr.New(appErr.NotSupported).WithMessage("object storage is not configured")
	}
	buf, err := e.Archive(ctx, name, problems)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%s/%s/%d-%s", e.keyRoot, sanitize(name), e.now().Unix(), ArchiveName(name))
	size := int64(buf.Len())
	if err := e.objects.PutObject(ctx, e.bucket, key, buf, size, archiveMIME); err != nil {
		return "", appErr.Wrapf(err, appErr.ExportFailed, "upload %s", key)
	}
	stat, err := e.objects.StatObject(ctx, e.bucket, key)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.ExportFailed, "verify %s", key)
	}
	if stat.SizeBytes != size {
		return "", appErr.Newf(appErr.ExportFailed, "uploaded %s has %d bytes, want %d", key, stat.SizeBytes, size).
			WithDetail("key", key)
	}
	e.log.Info("solutions uploaded", zap.String("bucket", e.bucket), zap.String("key", key),
		zap.Int64("bytes", size), zap.String("etag", stat.ETag))
	return key, nil
}

package repository

import (
	"context"

	"contestoj/internal/contest/model"
	appErr "contestoj/pkg/errors"
	"contestoj/pkg/utils/logger"

	"go.uber.org/zap"
)

// Source is what Migrate reads from.
type Source interface {
	Metadata(ctx context.Context) (model.CompetitionMeta, error)
	ListCompetitors(ctx context.Context) ([]model.Competitor, error)
}

// MigrationReport counts what Migrate copied.
type MigrationReport struct {
	Competitors int
	Submissions int
}

// Migrate copies the metadata document and every competitor document from
// src into dst, overwriting documents with the same name.
func Migrate(ctx context.Context, src Source, dst Importer) (MigrationReport, error) {
	var report MigrationReport

	meta, err := src.Metadata(ctx)
	if err != nil {
		return report, appErr.Wrapf(err, appErr.GetCode(err), "read source metadata")
	}
	if err := dst.ImportMetadata(ctx, meta); err != nil {
		return report, err
	}

	competitors, err := src.ListCompetitors(ctx)
	if err != nil {
		return report, appErr.Wrapf(err, appErr.GetCode(err), "read source competitors")
	}
	for i := range competitors {
		c := &competitors[i]
		if err := dst.ImportCompetitor(ctx, c); err != nil {
			return report, appErr.Wrapf(err, appErr.GetCode(err), "import competitor %s", c.Name)
		}
		report.Competitors++
		for _, p := range c.Problems {
			report.Submissions += len(p.Submissions)
		}
	}

	logger.Info(ctx, "migration complete",
		zap.Int("competitors", report.Competitors),
		zap.Int("submissions", report.Submissions))
	return report, nil
}

package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/maildigest/internal/repo"
)

const ReportCleanupJobName = "report_cleanup"

// ReportCleanupJob drops digest reports older than the retention window.
type ReportCleanupJob struct {
	reports  *repo.ReportRepo
	keepDays int
}

func NewReportCleanupJob(reports *repo.ReportRepo, keepDays int) *ReportCleanupJob {
	if keepDays <= 0 {
		keepDays = 30
	}
	return &ReportCleanupJob{reports: reports, keepDays: keepDays}
}

func (j *ReportCleanupJob) Name() string {
	return ReportCleanupJobName
}

func (j *ReportCleanupJob) Run(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -j.keepDays).Unix()
	removed, err := j.reports.PurgeBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if removed > 0 {
		logutil.GetLogger(ctx).Info("expired reports purged",
			zap.Int64("removed", removed),
			zap.Int("keep_days", j.keepDays),
		)
	}
	return nil
}

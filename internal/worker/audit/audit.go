// Package audit は記事の作成者State整合性を定期的に検査するジョブを提供する。
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/blogman/internal/metrics"
	"github.com/hitoshi/blogman/internal/model"
)

// ViolationFinder は作成者Stateの件数が1件でない記事を検索するインターフェース。
// repository.StateRepositoryが実装する。
type ViolationFinder interface {
	FindAuthorshipViolations(ctx context.Context) ([]model.AuthorshipViolation, error)
}

// ViolationRecorder は整合性違反のメトリクスを記録するインターフェース。
type ViolationRecorder interface {
	RecordIntegrityViolation(kind string)
}

// Report は1回の検査結果。
type Report struct {
	MissingAuthor    int
	DuplicatedAuthor int
}

// Total は違反の合計件数を返す。
func (r Report) Total() int {
	return r.MissingAuthor + r.DuplicatedAuthor
}

// AuditJob は作成者Stateが欠落・重複している記事を報告するジョブ。
// データの修復は行わない。
type AuditJob struct {
	finder   ViolationFinder
	recorder ViolationRecorder
	logger   *slog.Logger
}

// NewAuditJob は新しいAuditJobを生成する。
func NewAuditJob(finder ViolationFinder, recorder ViolationRecorder, logger *slog.Logger) *AuditJob {
	return &AuditJob{
		finder:   finder,
		recorder: recorder,
		logger:   logger,
	}
}

// Audit は整合性違反を検索し、1件ずつERRORログとメトリクスに記録する。
func (j *AuditJob) Audit(ctx context.Context) (Report, error) {
	start := time.Now()

	violations, err := j.finder.FindAuthorshipViolations(ctx)
	if err != nil {
		j.logger.Error("整合性検査の実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return Report{}, fmt.Errorf("整合性検査に失敗: %w", err)
	}

	var report Report
	for _, v := range violations {
		kind := metrics.ViolationDuplicatedAuthor
		if v.AuthorCount == 0 {
			kind = metrics.ViolationMissingAuthor
			report.MissingAuthor++
		} else {
			report.DuplicatedAuthor++
		}

		j.recorder.RecordIntegrityViolation(kind)
		j.logger.Error("記事の作成者Stateが不正です",
			slog.String("kind", kind),
			slog.String("post_id", v.PostID),
			slog.String("title", v.Title),
			slog.Int("author_count", v.AuthorCount),
		)
	}

	j.logger.Info("整合性検査が完了しました",
		slog.Int("missing_author", report.MissingAuthor),
		slog.Int("duplicated_author", report.DuplicatedAuthor),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return report, nil
}

// Run はAuditを実行する。定期実行用。
func (j *AuditJob) Run(ctx context.Context) error {
	_, err := j.Audit(ctx)
	return err
}

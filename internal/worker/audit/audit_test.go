package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/hitoshi/blogman/internal/metrics"
	"github.com/hitoshi/blogman/internal/model"
)

type mockViolationFinder struct {
	findFn func(ctx context.Context) ([]model.AuthorshipViolation, error)
}

func (m *mockViolationFinder) FindAuthorshipViolations(ctx context.Context) ([]model.AuthorshipViolation, error) {
	if m.findFn != nil {
		return m.findFn(ctx)
	}
	return nil, nil
}

type mockRecorder struct {
	kinds map[string]int
}

func (m *mockRecorder) RecordIntegrityViolation(kind string) {
	if m.kinds == nil {
		m.kinds = map[string]int{}
	}
	m.kinds[kind]++
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, nil))
}

func TestAuditJob_Audit_ReportsViolations(t *testing.T) {
	var buf bytes.Buffer
	recorder := &mockRecorder{}
	job := NewAuditJob(&mockViolationFinder{
		findFn: func(ctx context.Context) ([]model.AuthorshipViolation, error) {
			return []model.AuthorshipViolation{
				{PostID: "post-1", Title: "orphan", AuthorCount: 0},
				{PostID: "post-2", Title: "twins", AuthorCount: 2},
				{PostID: "post-3", Title: "triplets", AuthorCount: 3},
			}, nil
		},
	}, recorder, newTestLogger(&buf))

	report, err := job.Audit(context.Background())
	if err != nil {
		t.Fatalf("Audit() error = %v", err)
	}

	if report.MissingAuthor != 1 || report.DuplicatedAuthor != 2 || report.Total() != 3 {
		t.Errorf("report = %+v", report)
	}
	if recorder.kinds[metrics.ViolationMissingAuthor] != 1 {
		t.Errorf("missing_author = %d, want 1", recorder.kinds[metrics.ViolationMissingAuthor])
	}
	if recorder.kinds[metrics.ViolationDuplicatedAuthor] != 2 {
		t.Errorf("duplicated_author = %d, want 2", recorder.kinds[metrics.ViolationDuplicatedAuthor])
	}

	logs := buf.String()
	for _, id := range []string{"post-1", "post-2", "post-3"} {
		if !strings.Contains(logs, id) {
			t.Errorf("ログに %s が記録されていない", id)
		}
	}
	if strings.Count(logs, `"level":"ERROR"`) != 3 {
		t.Errorf("ERRORログは違反ごとに1件であるべき。ログ出力: %s", logs)
	}
}

func TestAuditJob_Audit_NoViolations(t *testing.T) {
	var buf bytes.Buffer
	recorder := &mockRecorder{}
	job := NewAuditJob(&mockViolationFinder{}, recorder, newTestLogger(&buf))

	report, err := job.Audit(context.Background())
	if err != nil {
		t.Fatalf("Audit() error = %v", err)
	}
	if report.Total() != 0 {
		t.Errorf("report = %+v, want zero", report)
	}
	if len(recorder.kinds) != 0 {
		t.Errorf("違反がない場合はメトリクスを記録しない: %v", recorder.kinds)
	}
	if strings.Contains(buf.String(), `"level":"ERROR"`) {
		t.Errorf("違反がない場合はERRORログを出さない。ログ出力: %s", buf.String())
	}
}

func TestAuditJob_Run_PropagatesError(t *testing.T) {
	var buf bytes.Buffer
	dbErr := errors.New("db down")
	job := NewAuditJob(&mockViolationFinder{
		findFn: func(ctx context.Context) ([]model.AuthorshipViolation, error) {
			return nil, dbErr
		},
	}, &mockRecorder{}, newTestLogger(&buf))

	if err := job.Run(context.Background()); !errors.Is(err, dbErr) {
		t.Errorf("Run() error = %v, want %v", err, dbErr)
	}
}

// Package worker はバックグラウンドジョブの定期実行を提供する。
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job は定期実行されるジョブのインターフェース。
type Job interface {
	Run(ctx context.Context) error
}

// Task はジョブと実行間隔の組。
type Task struct {
	Name     string
	Interval time.Duration
	Job      Job
}

// Scheduler は複数のTaskをそれぞれの間隔で実行する。
type Scheduler struct {
	tasks  []Task
	logger *slog.Logger
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(logger *slog.Logger, tasks ...Task) *Scheduler {
	return &Scheduler{
		tasks:  tasks,
		logger: logger,
	}
}

// Start は各Taskを起動直後に1回実行し、以降は間隔ごとに実行する。
// コンテキストがキャンセルされると全Taskの終了を待って戻る。
func (s *Scheduler) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, task := range s.tasks {
		if task.Interval <= 0 {
			s.logger.Warn("実行間隔が不正なジョブをスキップしました",
				slog.String("job", task.Name),
				slog.Duration("interval", task.Interval),
			)
			continue
		}
		wg.Add(1)
		go func(t Task) {
			defer wg.Done()
			s.loop(ctx, t)
		}(task)
	}
	wg.Wait()
	s.logger.Info("ジョブスケジューラを停止しました")
}

func (s *Scheduler) loop(ctx context.Context, task Task) {
	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	s.logger.Info("ジョブを開始しました",
		slog.String("job", task.Name),
		slog.Duration("interval", task.Interval),
	)

	s.runOnce(ctx, task)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, task)
		}
	}
}

// runOnce はジョブを1回実行する。失敗してもスケジューラは停止しない。
func (s *Scheduler) runOnce(ctx context.Context, task Task) {
	if err := task.Job.Run(ctx); err != nil {
		s.logger.Error("ジョブの実行に失敗しました",
			slog.String("job", task.Name),
			slog.String("error", err.Error()),
		)
	}
}

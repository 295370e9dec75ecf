// Package reconcile はコースの受講者数を受講テーブルから再集計するジョブを提供する。
// 受講登録時のカウンター更新はベストエフォートのため、定期的に実数へ補正する。
package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// reconcileQuery は実数と異なるコースのみ更新する。更新件数が補正件数になる。
const reconcileQuery = `UPDATE courses c
SET enrollment_count = e.actual, updated_at = now()
FROM (
    SELECT c2.id, COUNT(en.id) AS actual
    FROM courses c2
    LEFT JOIN enrollments en ON en.course_id = c2.id
    GROUP BY c2.id
) e
WHERE c.id = e.id AND c.enrollment_count <> e.actual`

// Job は受講者数の再集計ジョブ。冪等で、補正対象がなくてもエラーにならない。
type Job struct {
	db     Executor
	logger *slog.Logger
}

// NewJob は新しいJobを生成する。
func NewJob(db Executor, logger *slog.Logger) *Job {
	return &Job{db: db, logger: logger}
}

// Run は全コースの受講者数を再集計し、補正したコース数を返す。
func (j *Job) Run(ctx context.Context) (int64, error) {
	start := time.Now()

	result, err := j.db.ExecContext(ctx, reconcileQuery)
	if err != nil {
		j.logger.Error("受講者数の再集計に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("受講者数の再集計に失敗: %w", err)
	}

	corrected, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("補正件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("補正件数の取得に失敗: %w", err)
	}

	level := slog.LevelInfo
	if corrected > 0 {
		level = slog.LevelWarn
	}
	j.logger.Log(ctx, level, "受講者数の再集計が完了しました",
		slog.Int64("corrected_count", corrected),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return corrected, nil
}

// Scheduler はcron式に従ってJobを定期実行する。
type Scheduler struct {
	job      *Job
	schedule string
	logger   *slog.Logger
}

// NewScheduler はSchedulerを生成する。scheduleは5フィールドの標準cron式。
func NewScheduler(job *Job, schedule string, logger *slog.Logger) *Scheduler {
	return &Scheduler{job: job, schedule: schedule, logger: logger}
}

// Start は起動直後に1回実行し、以降はcron式に従って実行する。
// コンテキストがキャンセルされると実行中のジョブの完了を待って戻る。
func (s *Scheduler) Start(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() { s.runOnce(ctx) }); err != nil {
		return fmt.Errorf("cron式の解析に失敗しました (%s): %w", s.schedule, err)
	}

	s.logger.Info("再集計スケジューラを開始しました",
		slog.String("schedule", s.schedule),
	)

	// 起動直後に1回実行
	s.runOnce(ctx)

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()

	s.logger.Info("再集計スケジューラを停止しました")
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	// エラーはJob側でログ出力済み。次回の実行で再試行する。
	_, _ = s.job.Run(ctx)
}

// ValidateSchedule はcron式を検証する。設定読み込み時の早期検出に使う。
func ValidateSchedule(schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("cron式が不正です (%s): %w", schedule, err)
	}
	return nil
}

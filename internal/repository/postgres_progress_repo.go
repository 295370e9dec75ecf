package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/microcourse/internal/model"
)

// PostgresProgressRepo はPostgreSQLを使用したレッスン進捗リポジトリ。
type PostgresProgressRepo struct {
	db *sql.DB
}

// NewPostgresProgressRepo はPostgresProgressRepoを生成する。
func NewPostgresProgressRepo(db *sql.DB) *PostgresProgressRepo {
	return &PostgresProgressRepo{db: db}
}

// Upsert はレッスン進捗をUPSERTし、保存後の行を返す。
// (user_id, lesson_id) の一意性制約で同時実行時も1行に収束する。
// time_spent / last_position は新しい値が0より大きい場合のみ上書きする。
func (r *PostgresProgressRepo) Upsert(ctx context.Context, p *model.LessonProgress) (*model.LessonProgress, error) {
	saved := &model.LessonProgress{}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO lesson_progress (id, user_id, lesson_id, course_id, is_completed, completed_at,
		                              time_spent, last_position, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		 ON CONFLICT ON CONSTRAINT lesson_progress_user_lesson_key DO UPDATE SET
		     is_completed  = lesson_progress.is_completed OR EXCLUDED.is_completed,
		     completed_at  = EXCLUDED.completed_at,
		     time_spent    = CASE WHEN EXCLUDED.time_spent > 0
		                          THEN EXCLUDED.time_spent ELSE lesson_progress.time_spent END,
		     last_position = CASE WHEN EXCLUDED.last_position > 0
		                          THEN EXCLUDED.last_position ELSE lesson_progress.last_position END,
		     updated_at    = EXCLUDED.updated_at
		 RETURNING id, user_id, lesson_id, course_id, is_completed, completed_at,
		           time_spent, last_position, created_at, updated_at`,
		p.ID, p.UserID, p.LessonID, p.CourseID, p.IsCompleted, p.CompletedAt,
		p.TimeSpent, p.LastPosition, p.UpdatedAt,
	).Scan(
		&saved.ID, &saved.UserID, &saved.LessonID, &saved.CourseID, &saved.IsCompleted, &saved.CompletedAt,
		&saved.TimeSpent, &saved.LastPosition, &saved.CreatedAt, &saved.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("レッスン進捗のUPSERTに失敗しました: %w", err)
	}
	return saved, nil
}

// ListByUserAndCourse はユーザーのコース内レッスン進捗をすべて返す。
func (r *PostgresProgressRepo) ListByUserAndCourse(ctx context.Context, userID, courseID string) ([]*model.LessonProgress, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, lesson_id, course_id, is_completed, completed_at,
		        time_spent, last_position, created_at, updated_at
		 FROM lesson_progress WHERE user_id = $1 AND course_id = $2`,
		userID, courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("レッスン進捗一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var list []*model.LessonProgress
	for rows.Next() {
		p := &model.LessonProgress{}
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.LessonID, &p.CourseID, &p.IsCompleted, &p.CompletedAt,
			&p.TimeSpent, &p.LastPosition, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("レッスン進捗行の読み取りに失敗しました: %w", err)
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("レッスン進捗一覧の走査に失敗しました: %w", err)
	}
	return list, nil
}

// compile-time interface check
var _ ProgressRepository = (*PostgresProgressRepo)(nil)

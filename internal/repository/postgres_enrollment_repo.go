package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/microcourse/internal/model"
)

// PostgresEnrollmentRepo はPostgreSQLを使用した受講リポジトリ。
type PostgresEnrollmentRepo struct {
	db *sql.DB
}

// NewPostgresEnrollmentRepo はPostgresEnrollmentRepoを生成する。
func NewPostgresEnrollmentRepo(db *sql.DB) *PostgresEnrollmentRepo {
	return &PostgresEnrollmentRepo{db: db}
}

// FindByUserAndCourse はユーザーIDとコースIDで受講を検索する。見つからない場合はnilを返す。
func (r *PostgresEnrollmentRepo) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*model.Enrollment, error) {
	e := &model.Enrollment{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, course_id, enrolled_at, progress, is_completed, completed_at, updated_at
		 FROM enrollments WHERE user_id = $1 AND course_id = $2`,
		userID, courseID,
	).Scan(&e.ID, &e.UserID, &e.CourseID, &e.EnrolledAt, &e.Progress, &e.IsCompleted, &e.CompletedAt, &e.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("受講の検索に失敗しました: %w", err)
	}
	return e, nil
}

// Create は受講を作成する。(user_id, course_id) 重複時はConstraintErrorを返す。
func (r *PostgresEnrollmentRepo) Create(ctx context.Context, e *model.Enrollment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO enrollments (id, user_id, course_id, enrolled_at, progress, is_completed, completed_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.UserID, e.CourseID, e.EnrolledAt, e.Progress, e.IsCompleted, e.CompletedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("受講の作成に失敗しました: %w", uniqueViolation(err))
	}
	return nil
}

// ListByUserWithCourse はユーザーの受講一覧をコース情報付きで受講日時の降順に返す。
func (r *PostgresEnrollmentRepo) ListByUserWithCourse(ctx context.Context, userID string) ([]model.EnrollmentWithCourse, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT e.id, e.user_id, e.course_id, e.enrolled_at, e.progress, e.is_completed,
		        e.completed_at, e.updated_at,
		        c.id, c.title, c.description, c.thumbnail, c.creator_id, u.name, c.status,
		        c.duration, c.difficulty, c.category, c.tags, c.enrollment_count
		 FROM enrollments e
		 JOIN courses c ON c.id = e.course_id
		 JOIN users u ON u.id = c.creator_id
		 WHERE e.user_id = $1
		 ORDER BY e.enrolled_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("受講一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var result []model.EnrollmentWithCourse
	for rows.Next() {
		var ewc model.EnrollmentWithCourse
		var thumbnail sql.NullString
		var tags []string
		if err := rows.Scan(
			&ewc.ID, &ewc.UserID, &ewc.CourseID, &ewc.EnrolledAt, &ewc.Progress, &ewc.IsCompleted,
			&ewc.CompletedAt, &ewc.UpdatedAt,
			&ewc.Course.ID, &ewc.Course.Title, &ewc.Course.Description, &thumbnail,
			&ewc.Course.CreatorID, &ewc.Course.CreatorName, &ewc.Course.Status,
			&ewc.Course.Duration, &ewc.Course.Difficulty, &ewc.Course.Category,
			pq.Array(&tags), &ewc.Course.EnrollmentCount,
		); err != nil {
			return nil, fmt.Errorf("受講行の読み取りに失敗しました: %w", err)
		}
		if thumbnail.Valid {
			ewc.Course.Thumbnail = &thumbnail.String
		}
		ewc.Course.Tags = tags
		result = append(result, ewc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("受講一覧の走査に失敗しました: %w", err)
	}
	return result, nil
}

// UpdateProgress は再計算した進捗を書き込む。後勝ち。
func (r *PostgresEnrollmentRepo) UpdateProgress(ctx context.Context, id string, progress int, isCompleted bool, completedAt *time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE enrollments
		 SET progress = $2, is_completed = $3, completed_at = $4, updated_at = NOW()
		 WHERE id = $1`,
		id, progress, isCompleted, completedAt,
	)
	if err != nil {
		return fmt.Errorf("受講進捗の更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ EnrollmentRepository = (*PostgresEnrollmentRepo)(nil)

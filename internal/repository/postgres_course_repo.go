package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/microcourse/internal/model"
)

const courseColumns = `c.id, c.title, c.description, c.thumbnail, c.creator_id, u.name,
	c.status, c.published_at, c.published_by, c.duration, c.difficulty, c.category,
	c.tags, c.enrollment_count, c.created_at, c.updated_at`

// PostgresCourseRepo はPostgreSQLを使用したコースリポジトリ。
type PostgresCourseRepo struct {
	db *sql.DB
}

// NewPostgresCourseRepo はPostgresCourseRepoを生成する。
func NewPostgresCourseRepo(db *sql.DB) *PostgresCourseRepo {
	return &PostgresCourseRepo{db: db}
}

func scanCourse(row interface{ Scan(...any) error }) (*model.Course, error) {
	c := &model.Course{}
	var thumbnail, publishedBy sql.NullString
	var tags []string
	err := row.Scan(
		&c.ID, &c.Title, &c.Description, &thumbnail, &c.CreatorID, &c.CreatorName,
		&c.Status, &c.PublishedAt, &publishedBy, &c.Duration, &c.Difficulty, &c.Category,
		pq.Array(&tags), &c.EnrollmentCount, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if thumbnail.Valid {
		c.Thumbnail = &thumbnail.String
	}
	if publishedBy.Valid {
		c.PublishedBy = &publishedBy.String
	}
	c.Tags = tags
	return c, nil
}

// FindByID は指定IDのコースを取得する。見つからない場合はnilを返す。
func (r *PostgresCourseRepo) FindByID(ctx context.Context, id string) (*model.Course, error) {
	c, err := scanCourse(r.db.QueryRowContext(ctx,
		`SELECT `+courseColumns+`
		 FROM courses c JOIN users u ON u.id = c.creator_id
		 WHERE c.id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("コースの取得に失敗しました: %w", err)
	}
	return c, nil
}

// List は検索条件に一致するコースを作成日時の降順で返す。
func (r *PostgresCourseRepo) List(ctx context.Context, filter model.CourseFilter) ([]*model.Course, error) {
	query, args := buildCourseListQuery(filter)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("コース一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var courses []*model.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("コース行の読み取りに失敗しました: %w", err)
		}
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("コース一覧の走査に失敗しました: %w", err)
	}
	return courses, nil
}

// buildCourseListQuery は検索条件からSELECT文と引数を組み立てる。
func buildCourseListQuery(filter model.CourseFilter) (string, []any) {
	var conds []string
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		visible := "c.status = ANY(" + next(pq.Array(statuses)) + ")"
		if filter.OrCreatorID != "" {
			visible = "(" + visible + " OR c.creator_id = " + next(filter.OrCreatorID) + ")"
		}
		conds = append(conds, visible)
	}
	if filter.Category != "" {
		conds = append(conds, "c.category = "+next(filter.Category))
	}
	if filter.Difficulty != "" {
		conds = append(conds, "c.difficulty = "+next(string(filter.Difficulty)))
	}
	if filter.Search != "" {
		p := next("%" + escapeLike(filter.Search) + "%")
		conds = append(conds, "(c.title ILIKE "+p+" OR c.description ILIKE "+p+")")
	}

	query := `SELECT ` + courseColumns + ` FROM courses c JOIN users u ON u.id = c.creator_id`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY c.created_at DESC"
	return query, args
}

// escapeLike はLIKEパターンのメタ文字をエスケープする。
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Create はコースを作成する。
func (r *PostgresCourseRepo) Create(ctx context.Context, c *model.Course) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO courses (id, title, description, thumbnail, creator_id, status, duration,
		                      difficulty, category, tags, enrollment_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		c.ID, c.Title, c.Description, c.Thumbnail, c.CreatorID, c.Status, c.Duration,
		c.Difficulty, c.Category, pq.Array(c.Tags), c.EnrollmentCount, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("コースの作成に失敗しました: %w", uniqueViolation(err))
	}
	return nil
}

// UpdateContent は下書きコースの内容フィールドを更新する。状態は変更しない。
// 状態の条件は同じUPDATE文で判定するため、審査提出と競合しても下書き以外は書き換えない。
func (r *PostgresCourseRepo) UpdateContent(ctx context.Context, c *model.Course) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE courses
		 SET title = $2, description = $3, thumbnail = $4, difficulty = $5,
		     category = $6, tags = $7, updated_at = $8
		 WHERE id = $1 AND status = 'draft'`,
		c.ID, c.Title, c.Description, c.Thumbnail, c.Difficulty,
		c.Category, pq.Array(c.Tags), c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("コースの更新に失敗しました: %w", err)
	}
	return requireDraftWrite(result)
}

// UpdateDuration はコースの合計時間（分）を更新する。
func (r *PostgresCourseRepo) UpdateDuration(ctx context.Context, id string, minutes int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE courses SET duration = $2, updated_at = NOW() WHERE id = $1`,
		id, minutes,
	)
	if err != nil {
		return fmt.Errorf("コース時間の更新に失敗しました: %w", err)
	}
	return nil
}

// TransitionStatus は現在の状態がfromの場合に限りtoへ遷移させる。
// 更新されなかった場合はfalseを返す。
func (r *PostgresCourseRepo) TransitionStatus(ctx context.Context, id string, from, to model.CourseStatus, publishedAt *time.Time, publishedBy *string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE courses
		 SET status = $3, published_at = $4, published_by = $5, updated_at = NOW()
		 WHERE id = $1 AND status = $2`,
		id, from, to, publishedAt, publishedBy,
	)
	if err != nil {
		return false, fmt.Errorf("コース状態の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	return rowsAffected == 1, nil
}

// Delete は下書きコースを削除する。レッスンはCASCADE削除される。
func (r *PostgresCourseRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1 AND status = 'draft'`, id)
	if err != nil {
		return fmt.Errorf("コースの削除に失敗しました: %w", err)
	}
	return requireDraftWrite(result)
}

// AddEnrollmentCount は受講者数カウンタにdeltaを加算する。結果は0未満にならない。
func (r *PostgresCourseRepo) AddEnrollmentCount(ctx context.Context, id string, delta int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE courses SET enrollment_count = GREATEST(enrollment_count + $2, 0) WHERE id = $1`,
		id, delta,
	)
	if err != nil {
		return fmt.Errorf("受講者数の更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ CourseRepository = (*PostgresCourseRepo)(nil)

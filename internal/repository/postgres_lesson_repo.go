package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/microcourse/internal/model"
)

const lessonColumns = `id, course_id, title, description, order_index, video_url,
	video_duration, transcript, resources, created_at, updated_at`

// PostgresLessonRepo はPostgreSQLを使用したレッスンリポジトリ。
type PostgresLessonRepo struct {
	db *sql.DB
}

// NewPostgresLessonRepo はPostgresLessonRepoを生成する。
func NewPostgresLessonRepo(db *sql.DB) *PostgresLessonRepo {
	return &PostgresLessonRepo{db: db}
}

func scanLesson(row interface{ Scan(...any) error }) (*model.Lesson, error) {
	l := &model.Lesson{}
	var resources []byte
	err := row.Scan(
		&l.ID, &l.CourseID, &l.Title, &l.Description, &l.OrderIndex, &l.VideoURL,
		&l.VideoDuration, &l.Transcript, &resources, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(resources) > 0 {
		if err := json.Unmarshal(resources, &l.Resources); err != nil {
			return nil, fmt.Errorf("リソースの復元に失敗しました: %w", err)
		}
	}
	return l, nil
}

func marshalResources(resources []model.Resource) ([]byte, error) {
	if resources == nil {
		resources = []model.Resource{}
	}
	return json.Marshal(resources)
}

// FindByID は指定IDのレッスンを取得する。見つからない場合はnilを返す。
func (r *PostgresLessonRepo) FindByID(ctx context.Context, id string) (*model.Lesson, error) {
	l, err := scanLesson(r.db.QueryRowContext(ctx,
		`SELECT `+lessonColumns+` FROM lessons WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("レッスンの取得に失敗しました: %w", err)
	}
	return l, nil
}

// ListByCourse はコースのレッスンをorder_index昇順で返す。
func (r *PostgresLessonRepo) ListByCourse(ctx context.Context, courseID string) ([]*model.Lesson, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+lessonColumns+` FROM lessons WHERE course_id = $1 ORDER BY order_index ASC`,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("レッスン一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var lessons []*model.Lesson
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, fmt.Errorf("レッスン行の読み取りに失敗しました: %w", err)
		}
		lessons = append(lessons, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("レッスン一覧の走査に失敗しました: %w", err)
	}
	return lessons, nil
}

// CountByCourse はコースのレッスン数を返す。
func (r *PostgresLessonRepo) CountByCourse(ctx context.Context, courseID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM lessons WHERE course_id = $1`,
		courseID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("レッスン数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// draftCourseLocked はコースが下書きであることを確認し、文の終了まで状態遷移を待たせる。
// FOR SHAREで取得した行は並行するTransitionStatusのUPDATEと直列化される。
const draftCourseLocked = `SELECT 1 FROM courses c WHERE c.id = %s AND c.status = 'draft' FOR SHARE`

// Create は下書きコースにレッスンを作成する。
func (r *PostgresLessonRepo) Create(ctx context.Context, l *model.Lesson) error {
	resources, err := marshalResources(l.Resources)
	if err != nil {
		return fmt.Errorf("リソースのエンコードに失敗しました: %w", err)
	}
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO lessons (id, course_id, title, description, order_index, video_url,
		                      video_duration, transcript, resources, created_at, updated_at)
		 SELECT $1::uuid, $2::uuid, $3::text, $4::text, $5::integer, $6::text,
		        $7::integer, $8::text, $9::jsonb, $10::timestamptz, $11::timestamptz
		 WHERE EXISTS (`+fmt.Sprintf(draftCourseLocked, "$2::uuid")+`)`,
		l.ID, l.CourseID, l.Title, l.Description, l.OrderIndex, l.VideoURL,
		l.VideoDuration, l.Transcript, resources, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("レッスンの作成に失敗しました: %w", uniqueViolation(err))
	}
	if err := requireDraftWrite(result); err != nil {
		return fmt.Errorf("レッスンの作成に失敗しました: %w", err)
	}
	return nil
}

// Update は下書きコースのレッスンを更新する。
func (r *PostgresLessonRepo) Update(ctx context.Context, l *model.Lesson) error {
	resources, err := marshalResources(l.Resources)
	if err != nil {
		return fmt.Errorf("リソースのエンコードに失敗しました: %w", err)
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE lessons
		 SET title = $2, description = $3, order_index = $4, video_url = $5,
		     video_duration = $6, transcript = $7, resources = $8, updated_at = $9
		 WHERE id = $1 AND EXISTS (`+fmt.Sprintf(draftCourseLocked, "lessons.course_id")+`)`,
		l.ID, l.Title, l.Description, l.OrderIndex, l.VideoURL,
		l.VideoDuration, l.Transcript, resources, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("レッスンの更新に失敗しました: %w", uniqueViolation(err))
	}
	if err := requireDraftWrite(result); err != nil {
		return fmt.Errorf("レッスンの更新に失敗しました: %w", err)
	}
	return nil
}

// Delete は下書きコースから指定IDのレッスンを削除する。
func (r *PostgresLessonRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM lessons WHERE id = $1 AND EXISTS (`+fmt.Sprintf(draftCourseLocked, "lessons.course_id")+`)`,
		id,
	)
	if err != nil {
		return fmt.Errorf("レッスンの削除に失敗しました: %w", err)
	}
	if err := requireDraftWrite(result); err != nil {
		return fmt.Errorf("レッスンの削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ LessonRepository = (*PostgresLessonRepo)(nil)

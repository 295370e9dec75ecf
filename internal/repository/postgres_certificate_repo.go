package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/microcourse/internal/model"
)

const certificateColumns = `id, user_id, course_id, serial, issued_at, course_title, user_name, completion_date`

// PostgresCertificateRepo はPostgreSQLを使用した修了証リポジトリ。
type PostgresCertificateRepo struct {
	db *sql.DB
}

// NewPostgresCertificateRepo はPostgresCertificateRepoを生成する。
func NewPostgresCertificateRepo(db *sql.DB) *PostgresCertificateRepo {
	return &PostgresCertificateRepo{db: db}
}

func scanCertificate(row interface{ Scan(...any) error }) (*model.Certificate, error) {
	c := &model.Certificate{}
	err := row.Scan(&c.ID, &c.UserID, &c.CourseID, &c.Serial, &c.IssuedAt,
		&c.CourseTitle, &c.UserName, &c.CompletionDate)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Create は修了証を作成する。
// (user_id, course_id) またはserialの重複時はConstraintErrorを返す。
func (r *PostgresCertificateRepo) Create(ctx context.Context, c *model.Certificate) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO certificates (`+certificateColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.UserID, c.CourseID, c.Serial, c.IssuedAt, c.CourseTitle, c.UserName, c.CompletionDate,
	)
	if err != nil {
		return fmt.Errorf("修了証の作成に失敗しました: %w", uniqueViolation(err))
	}
	return nil
}

// FindByUserAndCourse はユーザーIDとコースIDで修了証を検索する。見つからない場合はnilを返す。
func (r *PostgresCertificateRepo) FindByUserAndCourse(ctx context.Context, userID, courseID string) (*model.Certificate, error) {
	c, err := scanCertificate(r.db.QueryRowContext(ctx,
		`SELECT `+certificateColumns+` FROM certificates WHERE user_id = $1 AND course_id = $2`,
		userID, courseID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("修了証の検索に失敗しました: %w", err)
	}
	return c, nil
}

// FindBySerial はシリアル番号で修了証を検索する。見つからない場合はnilを返す。
func (r *PostgresCertificateRepo) FindBySerial(ctx context.Context, serial string) (*model.Certificate, error) {
	c, err := scanCertificate(r.db.QueryRowContext(ctx,
		`SELECT `+certificateColumns+` FROM certificates WHERE serial = $1`,
		serial,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("シリアル番号による修了証の検索に失敗しました: %w", err)
	}
	return c, nil
}

// ListByUser はユーザーの修了証を発行日時の降順で返す。
func (r *PostgresCertificateRepo) ListByUser(ctx context.Context, userID string) ([]*model.Certificate, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+certificateColumns+` FROM certificates WHERE user_id = $1 ORDER BY issued_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("修了証一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var certs []*model.Certificate
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, fmt.Errorf("修了証行の読み取りに失敗しました: %w", err)
		}
		certs = append(certs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("修了証一覧の走査に失敗しました: %w", err)
	}
	return certs, nil
}

// compile-time interface check
var _ CertificateRepository = (*PostgresCertificateRepo)(nil)

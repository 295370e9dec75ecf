package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/microcourse/internal/model"
)

const userColumns = `id, email, name, password_hash, role,
	application_status, application_motivation, application_experience,
	application_specialization, applied_at, reviewed_at, reviewed_by, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	user := &model.User{}
	var reviewedBy sql.NullString
	err := row.Scan(
		&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.Role,
		&user.Application.Status, &user.Application.Motivation, &user.Application.Experience,
		&user.Application.Specialization,
		&user.Application.AppliedAt, &user.Application.ReviewedAt, &reviewedBy,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if reviewedBy.Valid {
		user.Application.ReviewedBy = &reviewedBy.String
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		email,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("メールアドレスによるユーザーの検索に失敗しました: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, role, application_status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, user.Email, user.Name, user.PasswordHash, user.Role,
		user.Application.Status, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ユーザーの作成に失敗しました: %w", uniqueViolation(err))
	}
	return nil
}

// UpdateApplication はクリエイター申請とロールを更新する。
func (r *PostgresUserRepo) UpdateApplication(ctx context.Context, user *model.User) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET role = $2, application_status = $3, application_motivation = $4,
		     application_experience = $5, application_specialization = $6, applied_at = $7,
		     reviewed_at = $8, reviewed_by = $9, updated_at = $10
		 WHERE id = $1`,
		user.ID, user.Role, user.Application.Status, user.Application.Motivation,
		user.Application.Experience, user.Application.Specialization, user.Application.AppliedAt,
		user.Application.ReviewedAt, user.Application.ReviewedBy, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("クリエイター申請の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("ユーザーが見つかりません: %s", user.ID)
	}
	return nil
}

// ListByApplicationStatus は指定状態のクリエイター申請を持つユーザーを申請日時順に返す。
func (r *PostgresUserRepo) ListByApplicationStatus(ctx context.Context, status model.ApplicationStatus) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE application_status = $1 ORDER BY applied_at ASC`,
		status,
	)
	if err != nil {
		return nil, fmt.Errorf("クリエイター申請一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("ユーザー行の読み取りに失敗しました: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("クリエイター申請一覧の走査に失敗しました: %w", err)
	}
	return users, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)

package model

import "time"

// Role は利用者のロールを表す。
type Role string

const (
	// RoleLearner は受講者。
	RoleLearner Role = "learner"
	// RoleCreator はコース作成者。
	RoleCreator Role = "creator"
	// RoleAdmin は管理者。
	RoleAdmin Role = "admin"
)

// ApplicationStatus はクリエイター申請の状態を表す。
type ApplicationStatus string

const (
	ApplicationNone     ApplicationStatus = "none"
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationApproved ApplicationStatus = "approved"
	ApplicationRejected ApplicationStatus = "rejected"
)

// CreatorApplication はクリエイター申請の内容と審査結果を表す。
type CreatorApplication struct {
	Status         ApplicationStatus
	Motivation     string
	Experience     string
	Specialization string
	AppliedAt      *time.Time
	ReviewedAt     *time.Time
	ReviewedBy     *string
}

// User はサービス利用ユーザーを表す。
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         Role
	Application  CreatorApplication
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Actor はリクエストの実行者を表す。
// 認証ミドルウェアがトークンとユーザーレコードから解決する。
type Actor struct {
	UserID string
	Role   Role
}

// IsAdmin は管理者かどうかを返す。
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

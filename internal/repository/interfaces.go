// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/microcourse/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレス重複時はErrDuplicateをラップしたエラーを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateApplication はクリエイター申請とロールを更新する。
	UpdateApplication(ctx context.Context, user *model.User) error

	// ListByApplicationStatus は指定状態のクリエイター申請を持つユーザーを申請日時順に返す。
	ListByApplicationStatus(ctx context.Context, status model.ApplicationStatus) ([]*model.User, error)
}

// CourseRepository はコースデータの永続化インターフェース。
type CourseRepository interface {
	// FindByID は指定IDのコースを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Course, error)

	// List は検索条件に一致するコースを作成日時の降順で返す。
	List(ctx context.Context, filter model.CourseFilter) ([]*model.Course, error)

	// Create はコースを作成する。
	Create(ctx context.Context, course *model.Course) error

	// UpdateContent は下書きコースの内容フィールド（タイトル、説明、カテゴリ等）を更新する。
	// 状態は変更しない。下書きでない場合はErrCourseNotDraftを返す。
	UpdateContent(ctx context.Context, course *model.Course) error

	// UpdateDuration はコースの合計時間（分）を更新する。
	UpdateDuration(ctx context.Context, id string, minutes int) error

	// TransitionStatus は現在の状態がfromの場合に限りtoへ遷移させる。
	// publishedAt / publishedBy は公開時のみ非nilで渡す。
	// 状態が一致せず更新されなかった場合はfalseを返す。
	TransitionStatus(ctx context.Context, id string, from, to model.CourseStatus, publishedAt *time.Time, publishedBy *string) (bool, error)

	// Delete は下書きコースを削除する。レッスンはCASCADE削除される。
	// 下書きでない場合はErrCourseNotDraftを返す。
	Delete(ctx context.Context, id string) error

	// AddEnrollmentCount は受講者数カウンタにdeltaを加算する。結果は0未満にならない。
	AddEnrollmentCount(ctx context.Context, id string, delta int) error
}

// LessonRepository はレッスンデータの永続化インターフェース。
type LessonRepository interface {
	// FindByID は指定IDのレッスンを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Lesson, error)

	// ListByCourse はコースのレッスンをorder_index昇順で返す。
	ListByCourse(ctx context.Context, courseID string) ([]*model.Lesson, error)

	// CountByCourse はコースのレッスン数を返す。
	CountByCourse(ctx context.Context, courseID string) (int, error)

	// Create は下書きコースにレッスンを作成する。(course_id, order_index) 重複時はErrDuplicateを、
	// コースが下書きでない場合はErrCourseNotDraftをラップしたエラーを返す。
	Create(ctx context.Context, lesson *model.Lesson) error

	// Update は下書きコースのレッスンを更新する。(course_id, order_index) 重複時はErrDuplicateを、
	// コースが下書きでない場合はErrCourseNotDraftをラップしたエラーを返す。
	Update(ctx context.Context, lesson *model.Lesson) error

	// Delete は下書きコースから指定IDのレッスンを削除する。
	// コースが下書きでない場合はErrCourseNotDraftを返す。
	Delete(ctx context.Context, id string) error
}

// EnrollmentRepository は受講データの永続化インターフェース。
type EnrollmentRepository interface {
	// FindByUserAndCourse はユーザーIDとコースIDで受講を検索する。見つからない場合はnilを返す。
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*model.Enrollment, error)

	// Create は受講を作成する。(user_id, course_id) 重複時はErrDuplicateをラップしたエラーを返す。
	Create(ctx context.Context, enrollment *model.Enrollment) error

	// ListByUserWithCourse はユーザーの受講一覧をコース情報付きで受講日時の降順に返す。
	ListByUserWithCourse(ctx context.Context, userID string) ([]model.EnrollmentWithCourse, error)

	// UpdateProgress は再計算した進捗を書き込む。後勝ち。
	UpdateProgress(ctx context.Context, id string, progress int, isCompleted bool, completedAt *time.Time) error
}

// ProgressRepository はレッスン進捗の永続化インターフェース。
type ProgressRepository interface {
	// Upsert はレッスン進捗を冪等にUPSERTする。
	// TimeSpent / LastPosition は0より大きい場合のみ上書きし、既存値を後退させない。
	Upsert(ctx context.Context, progress *model.LessonProgress) (*model.LessonProgress, error)

	// ListByUserAndCourse はユーザーのコース内レッスン進捗をすべて返す。
	ListByUserAndCourse(ctx context.Context, userID, courseID string) ([]*model.LessonProgress, error)
}

// CertificateRepository は修了証の永続化インターフェース。
type CertificateRepository interface {
	// Create は修了証を作成する。
	// (user_id, course_id) またはserialの重複時はErrDuplicateをラップしたConstraintErrorを返す。
	Create(ctx context.Context, cert *model.Certificate) error

	// FindByUserAndCourse はユーザーIDとコースIDで修了証を検索する。見つからない場合はnilを返す。
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*model.Certificate, error)

	// FindBySerial はシリアル番号で修了証を検索する。見つからない場合はnilを返す。
	FindBySerial(ctx context.Context, serial string) (*model.Certificate, error)

	// ListByUser はユーザーの修了証を発行日時の降順で返す。
	ListByUser(ctx context.Context, userID string) ([]*model.Certificate, error)
}

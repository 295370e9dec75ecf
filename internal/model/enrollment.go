package model

import "time"

// Enrollment は受講者とコースの受講関係と集計済み進捗を表す。
// Progress はLessonProgressから再計算される派生値であり、クライアントから直接設定されない。
// IsCompleted は Progress == 100 のときに限りtrue。
type Enrollment struct {
	ID          string
	UserID      string
	CourseID    string
	EnrolledAt  time.Time
	Progress    int
	IsCompleted bool
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

// EnrollmentWithCourse は受講情報とコース概要を結合したモデル。
type EnrollmentWithCourse struct {
	Enrollment
	Course Course
}

// LessonProgress は受講者ごとのレッスン完了状態を表す。
type LessonProgress struct {
	ID           string
	UserID       string
	LessonID     string
	CourseID     string
	IsCompleted  bool
	CompletedAt  *time.Time
	TimeSpent    int // 秒
	LastPosition int // 秒
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Certificate はコース修了証を表す。
// CourseTitle / UserName / CompletionDate は発行時点のスナップショットで、以後は更新しない。
type Certificate struct {
	ID             string
	UserID         string
	CourseID       string
	Serial         string
	IssuedAt       time.Time
	CourseTitle    string
	UserName       string
	CompletionDate time.Time
}

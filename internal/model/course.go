// Package model はドメインモデルを定義する。
package model

import "time"

// CourseStatus はコースの公開審査状態を表す。
// draft → pending → published / rejected の順にのみ遷移する。
type CourseStatus string

const (
	// CourseStatusDraft は編集中。内容とレッスンの変更はこの状態でのみ許可される。
	CourseStatusDraft CourseStatus = "draft"
	// CourseStatusPending は審査待ち。
	CourseStatusPending CourseStatus = "pending"
	// CourseStatusPublished は公開済み。
	CourseStatusPublished CourseStatus = "published"
	// CourseStatusRejected は却下済み。
	CourseStatusRejected CourseStatus = "rejected"
)

// Valid は定義済みの状態かどうかを返す。
func (s CourseStatus) Valid() bool {
	switch s {
	case CourseStatusDraft, CourseStatusPending, CourseStatusPublished, CourseStatusRejected:
		return true
	}
	return false
}

// Difficulty はコースの難易度を表す。
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// Course はコースを表す。
// PublishedAt / PublishedBy は Status = published のときのみ非nil。
type Course struct {
	ID              string
	Title           string
	Description     string
	Thumbnail       *string
	CreatorID       string
	CreatorName     string // 一覧取得時のみ設定される
	Status          CourseStatus
	PublishedAt     *time.Time
	PublishedBy     *string
	Duration        int // 分
	Difficulty      Difficulty
	Category        string
	Tags            []string
	EnrollmentCount int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CourseFilter はコース一覧の検索条件を表す。
type CourseFilter struct {
	// Statuses が空でない場合は指定状態のみを返す。
	Statuses []CourseStatus
	// OrCreatorID が設定されている場合は Statuses に加えて当該作成者のコースも返す。
	OrCreatorID string
	Category    string
	Difficulty  Difficulty
	Search      string
}

// ResourceType はレッスン添付リソースの種別を表す。
type ResourceType string

const (
	ResourcePDF      ResourceType = "pdf"
	ResourceLink     ResourceType = "link"
	ResourceDocument ResourceType = "document"
)

// Resource はレッスンに添付される参考資料。
type Resource struct {
	Title string       `json:"title"`
	URL   string       `json:"url"`
	Type  ResourceType `json:"type"`
}

// Lesson はコース内のレッスンを表す。
// OrderIndex は同一コース内で一意。
type Lesson struct {
	ID            string
	CourseID      string
	Title         string
	Description   string
	OrderIndex    int
	VideoURL      string
	VideoDuration int // 秒
	Transcript    string
	Resources     []Resource
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

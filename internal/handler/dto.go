package handler

import (
	"time"

	"github.com/hitoshi/microcourse/internal/certificate"
	"github.com/hitoshi/microcourse/internal/model"
	"github.com/hitoshi/microcourse/internal/progress"
)

// userResponse はユーザー情報のAPIレスポンス。パスワードハッシュは含めない。
type userResponse struct {
	ID                 string                      `json:"id"`
	Email              string                      `json:"email"`
	Name               string                      `json:"name"`
	Role               model.Role                  `json:"role"`
	CreatorApplication *creatorApplicationResponse `json:"creator_application,omitempty"`
	CreatedAt          time.Time                   `json:"created_at"`
}

type creatorApplicationResponse struct {
	Status         model.ApplicationStatus `json:"status"`
	Motivation     string                  `json:"motivation,omitempty"`
	Experience     string                  `json:"experience,omitempty"`
	Specialization string                  `json:"specialization,omitempty"`
	AppliedAt      *time.Time              `json:"applied_at,omitempty"`
	ReviewedAt     *time.Time              `json:"reviewed_at,omitempty"`
}

type sessionResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      userResponse `json:"user"`
}

type courseResponse struct {
	ID              string             `json:"id"`
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	Thumbnail       *string            `json:"thumbnail"`
	CreatorID       string             `json:"creator_id"`
	CreatorName     string             `json:"creator_name,omitempty"`
	Status          model.CourseStatus `json:"status"`
	PublishedAt     *time.Time         `json:"published_at"`
	PublishedBy     *string            `json:"published_by"`
	Duration        int                `json:"duration"`
	Difficulty      model.Difficulty   `json:"difficulty"`
	Category        string             `json:"category"`
	Tags            []string           `json:"tags"`
	EnrollmentCount int                `json:"enrollment_count"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

type lessonResponse struct {
	ID            string           `json:"id"`
	CourseID      string           `json:"course_id"`
	Title         string           `json:"title"`
	Description   string           `json:"description"`
	OrderIndex    int              `json:"order_index"`
	VideoURL      string           `json:"video_url"`
	VideoDuration int              `json:"video_duration"`
	Transcript    string           `json:"transcript"`
	Resources     []model.Resource `json:"resources"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

type enrollmentResponse struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	CourseID    string     `json:"course_id"`
	EnrolledAt  time.Time  `json:"enrolled_at"`
	Progress    int        `json:"progress"`
	IsCompleted bool       `json:"is_completed"`
	CompletedAt *time.Time `json:"completed_at"`
}

type enrollmentWithCourseResponse struct {
	enrollmentResponse
	Course courseResponse `json:"course"`
}

type enrollmentStatusResponse struct {
	Enrolled   bool                `json:"enrolled"`
	Enrollment *enrollmentResponse `json:"enrollment,omitempty"`
}

type lessonProgressResponse struct {
	LessonID     string     `json:"lesson_id"`
	IsCompleted  bool       `json:"is_completed"`
	CompletedAt  *time.Time `json:"completed_at"`
	TimeSpent    int        `json:"time_spent"`
	LastPosition int        `json:"last_position"`
}

type summaryResponse struct {
	TotalLessons     int  `json:"total_lessons"`
	CompletedLessons int  `json:"completed_lessons"`
	Percentage       int  `json:"percentage"`
	IsCompleted      bool `json:"is_completed"`
	TimeSpent        int  `json:"time_spent"`
}

type completeLessonResponse struct {
	Progress   lessonProgressResponse `json:"progress"`
	Enrollment enrollmentResponse     `json:"enrollment"`
	Summary    summaryResponse        `json:"summary"`
}

type lessonStateResponse struct {
	Lesson   lessonResponse          `json:"lesson"`
	Progress *lessonProgressResponse `json:"progress"`
}

type courseProgressResponse struct {
	Course     courseResponse        `json:"course"`
	Enrollment enrollmentResponse    `json:"enrollment"`
	Lessons    []lessonStateResponse `json:"lessons"`
	Summary    summaryResponse       `json:"summary"`
}

type courseOverviewResponse struct {
	enrollmentWithCourseResponse
	Summary summaryResponse `json:"summary"`
}

type certificateResponse struct {
	ID             string    `json:"id"`
	CourseID       string    `json:"course_id"`
	Serial         string    `json:"serial"`
	CourseTitle    string    `json:"course_title"`
	UserName       string    `json:"user_name"`
	CompletionDate time.Time `json:"completion_date"`
	IssuedAt       time.Time `json:"issued_at"`
	VerifyURL      string    `json:"verify_url"`
}

type verificationResponse struct {
	Valid       bool                       `json:"valid"`
	Certificate *publicCertificateResponse `json:"certificate,omitempty"`
}

type publicCertificateResponse struct {
	Serial         string    `json:"serial"`
	UserName       string    `json:"user_name"`
	CourseTitle    string    `json:"course_title"`
	CompletionDate time.Time `json:"completion_date"`
	IssuedAt       time.Time `json:"issued_at"`
}

// --- 変換 ---

func toUserResponse(u *model.User) userResponse {
	resp := userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
	if u.Application.Status != "" && u.Application.Status != model.ApplicationNone {
		resp.CreatorApplication = &creatorApplicationResponse{
			Status:         u.Application.Status,
			Motivation:     u.Application.Motivation,
			Experience:     u.Application.Experience,
			Specialization: u.Application.Specialization,
			AppliedAt:      u.Application.AppliedAt,
			ReviewedAt:     u.Application.ReviewedAt,
		}
	}
	return resp
}

func toUserResponses(users []*model.User) []userResponse {
	out := make([]userResponse, len(users))
	for i, u := range users {
		out[i] = toUserResponse(u)
	}
	return out
}

func toCourseResponse(c *model.Course) courseResponse {
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	return courseResponse{
		ID:              c.ID,
		Title:           c.Title,
		Description:     c.Description,
		Thumbnail:       c.Thumbnail,
		CreatorID:       c.CreatorID,
		CreatorName:     c.CreatorName,
		Status:          c.Status,
		PublishedAt:     c.PublishedAt,
		PublishedBy:     c.PublishedBy,
		Duration:        c.Duration,
		Difficulty:      c.Difficulty,
		Category:        c.Category,
		Tags:            tags,
		EnrollmentCount: c.EnrollmentCount,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func toCourseResponses(courses []*model.Course) []courseResponse {
	out := make([]courseResponse, len(courses))
	for i, c := range courses {
		out[i] = toCourseResponse(c)
	}
	return out
}

func toLessonResponse(l *model.Lesson) lessonResponse {
	resources := l.Resources
	if resources == nil {
		resources = []model.Resource{}
	}
	return lessonResponse{
		ID:            l.ID,
		CourseID:      l.CourseID,
		Title:         l.Title,
		Description:   l.Description,
		OrderIndex:    l.OrderIndex,
		VideoURL:      l.VideoURL,
		VideoDuration: l.VideoDuration,
		Transcript:    l.Transcript,
		Resources:     resources,
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
	}
}

func toLessonResponses(lessons []*model.Lesson) []lessonResponse {
	out := make([]lessonResponse, len(lessons))
	for i, l := range lessons {
		out[i] = toLessonResponse(l)
	}
	return out
}

func toEnrollmentResponse(e *model.Enrollment) enrollmentResponse {
	return enrollmentResponse{
		ID:          e.ID,
		UserID:      e.UserID,
		CourseID:    e.CourseID,
		EnrolledAt:  e.EnrolledAt,
		Progress:    e.Progress,
		IsCompleted: e.IsCompleted,
		CompletedAt: e.CompletedAt,
	}
}

func toEnrollmentWithCourseResponse(e model.EnrollmentWithCourse) enrollmentWithCourseResponse {
	return enrollmentWithCourseResponse{
		enrollmentResponse: toEnrollmentResponse(&e.Enrollment),
		Course:             toCourseResponse(&e.Course),
	}
}

func toLessonProgressResponse(p *model.LessonProgress) *lessonProgressResponse {
	if p == nil {
		return nil
	}
	return &lessonProgressResponse{
		LessonID:     p.LessonID,
		IsCompleted:  p.IsCompleted,
		CompletedAt:  p.CompletedAt,
		TimeSpent:    p.TimeSpent,
		LastPosition: p.LastPosition,
	}
}

func toSummaryResponse(s progress.Summary) summaryResponse {
	return summaryResponse{
		TotalLessons:     s.TotalLessons,
		CompletedLessons: s.CompletedLessons,
		Percentage:       s.Percentage,
		IsCompleted:      s.IsCompleted,
		TimeSpent:        s.TimeSpent,
	}
}

func toCertificateResponse(c *model.Certificate, baseURL string) certificateResponse {
	return certificateResponse{
		ID:             c.ID,
		CourseID:       c.CourseID,
		Serial:         c.Serial,
		CourseTitle:    c.CourseTitle,
		UserName:       c.UserName,
		CompletionDate: c.CompletionDate,
		IssuedAt:       c.IssuedAt,
		VerifyURL:      baseURL + "/api/certificates/verify/" + c.Serial,
	}
}

func toVerificationResponse(v *certificate.Verification) verificationResponse {
	if !v.Valid || v.Certificate == nil {
		return verificationResponse{Valid: false}
	}
	return verificationResponse{
		Valid: true,
		Certificate: &publicCertificateResponse{
			Serial:         v.Certificate.Serial,
			UserName:       v.Certificate.UserName,
			CourseTitle:    v.Certificate.CourseTitle,
			CompletionDate: v.Certificate.CompletionDate,
			IssuedAt:       v.Certificate.IssuedAt,
		},
	}
}

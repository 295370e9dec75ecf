package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/microcourse/internal/enrollment"
	"github.com/hitoshi/microcourse/internal/model"
	"github.com/hitoshi/microcourse/internal/progress"
)

// EnrollmentServiceInterface は受講ハンドラーが必要とするサービスインターフェース。
type EnrollmentServiceInterface interface {
	Enroll(ctx context.Context, actor model.Actor, courseID string) (*model.Enrollment, error)
	ListMine(ctx context.Context, actor model.Actor) ([]model.EnrollmentWithCourse, error)
	Status(ctx context.Context, actor model.Actor, courseID string) (*enrollment.Status, error)
}

// ProgressServiceInterface は進捗ハンドラーが必要とするサービスインターフェース。
type ProgressServiceInterface interface {
	CompleteLesson(ctx context.Context, actor model.Actor, lessonID string, in progress.CompleteInput) (*progress.CompleteResult, error)
	CourseProgress(ctx context.Context, actor model.Actor, courseID string) (*progress.CourseProgress, error)
	Overview(ctx context.Context, actor model.Actor) ([]progress.CourseOverview, error)
}

// EnrollmentHandler は受講と進捗のHTTPハンドラー。
type EnrollmentHandler struct {
	enrollments EnrollmentServiceInterface
	progress    ProgressServiceInterface
}

// NewEnrollmentHandler はEnrollmentHandlerを生成する。
func NewEnrollmentHandler(enrollments EnrollmentServiceInterface, progress ProgressServiceInterface) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments, progress: progress}
}

type completeLessonRequest struct {
	TimeSpent    int `json:"time_spent" validate:"min=0"`
	LastPosition int `json:"last_position" validate:"min=0"`
}

// Enroll は公開コースに受講登録する。
// POST /api/enroll/{courseId}
func (h *EnrollmentHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	e, err := h.enrollments.Enroll(r.Context(), actorFrom(r), chi.URLParam(r, "courseId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEnrollmentResponse(e))
}

// MyCourses は自分の受講一覧を返す。
// GET /api/enroll/my-courses
func (h *EnrollmentHandler) MyCourses(w http.ResponseWriter, r *http.Request) {
	list, err := h.enrollments.ListMine(r.Context(), actorFrom(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	out := make([]enrollmentWithCourseResponse, len(list))
	for i, e := range list {
		out[i] = toEnrollmentWithCourseResponse(e)
	}
	writeJSON(w, http.StatusOK, out)
}

// Status はコースの受講状況を返す。
// GET /api/enroll/{courseId}/status
func (h *EnrollmentHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.enrollments.Status(r.Context(), actorFrom(r), chi.URLParam(r, "courseId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	resp := enrollmentStatusResponse{Enrolled: status.Enrolled}
	if status.Enrollment != nil {
		e := toEnrollmentResponse(status.Enrollment)
		resp.Enrollment = &e
	}
	writeJSON(w, http.StatusOK, resp)
}

// CompleteLesson はレッスンを完了にし、受講の進捗を再計算する。
// PATCH /api/progress/{lessonId}/complete
func (h *EnrollmentHandler) CompleteLesson(w http.ResponseWriter, r *http.Request) {
	var req completeLessonRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	if err := validateStruct(req); err != nil {
		handleServiceError(w, err)
		return
	}

	result, err := h.progress.CompleteLesson(r.Context(), actorFrom(r), chi.URLParam(r, "lessonId"), progress.CompleteInput{
		TimeSpent:    req.TimeSpent,
		LastPosition: req.LastPosition,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, completeLessonResponse{
		Progress:   *toLessonProgressResponse(result.Progress),
		Enrollment: toEnrollmentResponse(result.Enrollment),
		Summary:    toSummaryResponse(result.Summary),
	})
}

// CourseProgress はコース内の各レッスンの進捗と集計を返す。
// GET /api/progress/{courseId}
func (h *EnrollmentHandler) CourseProgress(w http.ResponseWriter, r *http.Request) {
	cp, err := h.progress.CourseProgress(r.Context(), actorFrom(r), chi.URLParam(r, "courseId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	lessons := make([]lessonStateResponse, len(cp.Lessons))
	for i, ls := range cp.Lessons {
		lessons[i] = lessonStateResponse{
			Lesson:   toLessonResponse(ls.Lesson),
			Progress: toLessonProgressResponse(ls.Progress),
		}
	}
	writeJSON(w, http.StatusOK, courseProgressResponse{
		Course:     toCourseResponse(cp.Course),
		Enrollment: toEnrollmentResponse(cp.Enrollment),
		Lessons:    lessons,
		Summary:    toSummaryResponse(cp.Summary),
	})
}

// Overview は受講中の全コースの進捗集計を返す。
// GET /api/progress
func (h *EnrollmentHandler) Overview(w http.ResponseWriter, r *http.Request) {
	list, err := h.progress.Overview(r.Context(), actorFrom(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	out := make([]courseOverviewResponse, len(list))
	for i, o := range list {
		out[i] = courseOverviewResponse{
			enrollmentWithCourseResponse: toEnrollmentWithCourseResponse(o.EnrollmentWithCourse),
			Summary:                      toSummaryResponse(o.Summary),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/microcourse/internal/catalog"
	"github.com/hitoshi/microcourse/internal/model"
)

// CatalogServiceInterface はコース・レッスンハンドラーが必要とするサービスインターフェース。
type CatalogServiceInterface interface {
	CreateCourse(ctx context.Context, actor model.Actor, in catalog.CourseInput) (*model.Course, error)
	GetCourse(ctx context.Context, actor *model.Actor, courseID string) (*model.Course, error)
	ListCourses(ctx context.Context, actor *model.Actor, f catalog.ListFilter) ([]*model.Course, error)
	ListForReview(ctx context.Context, actor model.Actor, status model.CourseStatus) ([]*model.Course, error)
	UpdateCourse(ctx context.Context, actor model.Actor, courseID string, in catalog.CourseUpdate) (*model.Course, error)
	SetThumbnail(ctx context.Context, actor model.Actor, courseID string, upload catalog.Upload) (*model.Course, error)
	DeleteCourse(ctx context.Context, actor model.Actor, courseID string) error
	SubmitCourse(ctx context.Context, actor model.Actor, courseID string) (*model.Course, error)
	ReviewCourse(ctx context.Context, actor model.Actor, courseID, action string) (*model.Course, error)

	CreateLesson(ctx context.Context, actor model.Actor, in catalog.LessonInput) (*model.Lesson, error)
	GetLesson(ctx context.Context, actor *model.Actor, lessonID string) (*model.Lesson, error)
	ListLessons(ctx context.Context, actor *model.Actor, courseID string) ([]*model.Lesson, error)
	UpdateLesson(ctx context.Context, actor model.Actor, lessonID string, in catalog.LessonUpdate) (*model.Lesson, error)
	DeleteLesson(ctx context.Context, actor model.Actor, lessonID string) error
	RegenerateTranscript(ctx context.Context, actor model.Actor, lessonID string) (*model.Lesson, error)
}

// CourseHandler はコース管理と審査のHTTPハンドラー。
type CourseHandler struct {
	service       CatalogServiceInterface
	maxImageBytes int64
}

// NewCourseHandler はCourseHandlerを生成する。maxImageBytesはサムネイルの上限サイズ。
func NewCourseHandler(service CatalogServiceInterface, maxImageBytes int64) *CourseHandler {
	return &CourseHandler{service: service, maxImageBytes: maxImageBytes}
}

type createCourseRequest struct {
	Title       string   `json:"title" validate:"min=3,max=200"`
	Description string   `json:"description" validate:"min=10,max=5000"`
	Category    string   `json:"category" validate:"notblank,max=100"`
	Difficulty  string   `json:"difficulty" validate:"omitempty,oneof=beginner intermediate advanced"`
	Tags        []string `json:"tags" validate:"max=20,dive,max=50"`
}

type updateCourseRequest struct {
	Title       *string  `json:"title" validate:"omitempty,min=3,max=200"`
	Description *string  `json:"description" validate:"omitempty,min=10,max=5000"`
	Category    *string  `json:"category" validate:"omitempty,notblank,max=100"`
	Difficulty  *string  `json:"difficulty" validate:"omitempty,oneof=beginner intermediate advanced"`
	Tags        []string `json:"tags" validate:"omitempty,max=20,dive,max=50"`
}

// CreateCourse は下書きコースを作成する。
// POST /api/courses
func (h *CourseHandler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	var req createCourseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	trimAll(&req.Title, &req.Description, &req.Category, &req.Difficulty)
	if err := validateStruct(req); err != nil {
		handleServiceError(w, err)
		return
	}

	course, err := h.service.CreateCourse(r.Context(), actorFrom(r), catalog.CourseInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Difficulty:  model.Difficulty(req.Difficulty),
		Tags:        req.Tags,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCourseResponse(course))
}

// ListCourses は実行者から見えるコース一覧を返す。認証は任意。
// GET /api/courses?category=&difficulty=&search=
func (h *CourseHandler) ListCourses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	courses, err := h.service.ListCourses(r.Context(), optionalActor(r), catalog.ListFilter{
		Category:   q.Get("category"),
		Difficulty: model.Difficulty(q.Get("difficulty")),
		Search:     q.Get("search"),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCourseResponses(courses))
}

// GetCourse はコース詳細を返す。認証は任意。
// GET /api/courses/{id}
func (h *CourseHandler) GetCourse(w http.ResponseWriter, r *http.Request) {
	course, err := h.service.GetCourse(r.Context(), optionalActor(r), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCourseResponse(course))
}

// UpdateCourse は下書きコースの内容を更新する。
// PUT /api/courses/{id}
func (h *CourseHandler) UpdateCourse(w http.ResponseWriter, r *http.Request) {
	var req updateCourseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	trimAll(req.Title, req.Description, req.Category, req.Difficulty)
	if err := validateStruct(req); err != nil {
		handleServiceError(w, err)
		return
	}

	in := catalog.CourseUpdate{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Tags:        req.Tags,
	}
	if req.Difficulty != nil {
		d := model.Difficulty(*req.Difficulty)
		in.Difficulty = &d
	}

	course, err := h.service.UpdateCourse(r.Context(), actorFrom(r), chi.URLParam(r, "id"), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCourseResponse(course))
}

// SetThumbnail はサムネイル画像をアップロードする。
// PUT /api/courses/{id}/thumbnail (multipart: thumbnail)
func (h *CourseHandler) SetThumbnail(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxImageBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		handleServiceError(w, model.NewInvalidMediaError("multipart/form-dataの解析に失敗しました"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("thumbnail")
	if err != nil {
		handleServiceError(w, model.NewValidationError(map[string]string{"thumbnail": "thumbnail is a required field"}))
		return
	}
	defer file.Close()

	course, err := h.service.SetThumbnail(r.Context(), actorFrom(r), chi.URLParam(r, "id"), catalog.Upload{
		Filename: header.Filename,
		Body:     file,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCourseResponse(course))
}

// DeleteCourse は下書きコースを削除する。
// DELETE /api/courses/{id}
func (h *CourseHandler) DeleteCourse(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteCourse(r.Context(), actorFrom(r), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubmitCourse は下書きコースを審査に提出する。
// PATCH /api/courses/{id}/submit
func (h *CourseHandler) SubmitCourse(w http.ResponseWriter, r *http.Request) {
	course, err := h.service.SubmitCourse(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCourseResponse(course))
}

// ListForReview は審査対象のコース一覧を返す。管理者専用。
// GET /api/admin/courses?status=pending
func (h *CourseHandler) ListForReview(w http.ResponseWriter, r *http.Request) {
	status := model.CourseStatus(r.URL.Query().Get("status"))
	courses, err := h.service.ListForReview(r.Context(), actorFrom(r), status)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCourseResponses(courses))
}

// ReviewCourse は審査待ちコースを公開または却下する。管理者専用。
// PATCH /api/admin/courses/{id}/publish
func (h *CourseHandler) ReviewCourse(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	if err := validateStruct(req); err != nil {
		handleServiceError(w, err)
		return
	}

	course, err := h.service.ReviewCourse(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req.Action)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCourseResponse(course))
}

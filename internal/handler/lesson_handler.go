package handler

import (
	"encoding/json"
	"errors"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/microcourse/internal/catalog"
	"github.com/hitoshi/microcourse/internal/model"
)

const (
	// multipartMemory はmultipartフォームをメモリに保持する上限。超過分は一時ファイルになる。
	multipartMemory = 8 << 20
	// multipartOverhead はファイル以外のフォーム項目に許容するバイト数。
	multipartOverhead = 1 << 20
)

// LessonHandler はレッスン管理のHTTPハンドラー。
type LessonHandler struct {
	service       CatalogServiceInterface
	maxVideoBytes int64
}

// NewLessonHandler はLessonHandlerを生成する。maxVideoBytesは動画の上限サイズ。
func NewLessonHandler(service CatalogServiceInterface, maxVideoBytes int64) *LessonHandler {
	return &LessonHandler{service: service, maxVideoBytes: maxVideoBytes}
}

type resourceRequest struct {
	Title string `json:"title" validate:"notblank,max=200"`
	URL   string `json:"url" validate:"required,http_url,max=2048"`
	Type  string `json:"type" validate:"oneof=pdf link document"`
}

type createLessonRequest struct {
	CourseID      string            `json:"course_id" validate:"required"`
	Title         string            `json:"title" validate:"min=3,max=200"`
	Description   string            `json:"description" validate:"min=10,max=5000"`
	OrderIndex    int               `json:"order_index" validate:"min=1"`
	VideoDuration int               `json:"video_duration" validate:"min=0"`
	VideoURL      string            `json:"video_url" validate:"omitempty,url,max=2048"`
	Transcript    string            `json:"transcript" validate:"max=100000"`
	Resources     []resourceRequest `json:"resources" validate:"max=20,dive"`
}

type updateLessonRequest struct {
	Title         *string           `json:"title" validate:"omitempty,min=3,max=200"`
	Description   *string           `json:"description" validate:"omitempty,min=10,max=5000"`
	OrderIndex    *int              `json:"order_index" validate:"omitempty,min=1"`
	VideoDuration *int              `json:"video_duration" validate:"omitempty,min=0"`
	VideoURL      *string           `json:"video_url" validate:"omitempty,url,max=2048"`
	Transcript    *string           `json:"transcript" validate:"omitempty,max=100000"`
	Resources     []resourceRequest `json:"resources" validate:"omitempty,max=20,dive"`
}

// CreateLesson は下書きコースにレッスンを追加する。
// 動画はmultipartのvideoでアップロードするか、video_urlで外部URLを指定する。
// POST /api/lessons
func (h *LessonHandler) CreateLesson(w http.ResponseWriter, r *http.Request) {
	var req createLessonRequest
	var video *catalog.Upload

	if isMultipart(r) {
		form, closeFn, err := h.parseForm(w, r)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		defer closeFn()

		var details map[string]string
		req.CourseID = form.value("course_id")
		req.Title = form.value("title")
		req.Description = form.value("description")
		req.VideoURL = form.value("video_url")
		req.Transcript = form.value("transcript")
		req.OrderIndex, details = form.intValue("order_index", 0, details)
		req.VideoDuration, details = form.intValue("video_duration", 0, details)
		req.Resources, details = form.resources(details)
		if len(details) > 0 {
			handleServiceError(w, model.NewValidationError(details))
			return
		}
		if video, err = form.upload("video"); err != nil {
			handleServiceError(w, err)
			return
		}
	} else if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	trimAll(&req.CourseID, &req.Title, &req.Description, &req.VideoURL)
	if err := validateStruct(req); err != nil {
		handleServiceError(w, err)
		return
	}

	lesson, err := h.service.CreateLesson(r.Context(), actorFrom(r), catalog.LessonInput{
		CourseID:      req.CourseID,
		Title:         req.Title,
		Description:   req.Description,
		OrderIndex:    req.OrderIndex,
		VideoDuration: req.VideoDuration,
		VideoURL:      req.VideoURL,
		Video:         video,
		Transcript:    req.Transcript,
		Resources:     toResources(req.Resources),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLessonResponse(lesson))
}

// GetLesson はレッスン詳細を返す。認証は任意。
// GET /api/lessons/{id}
func (h *LessonHandler) GetLesson(w http.ResponseWriter, r *http.Request) {
	lesson, err := h.service.GetLesson(r.Context(), optionalActor(r), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLessonResponse(lesson))
}

// ListLessons はコースのレッスン一覧を順序どおりに返す。認証は任意。
// GET /api/courses/{id}/lessons
func (h *LessonHandler) ListLessons(w http.ResponseWriter, r *http.Request) {
	lessons, err := h.service.ListLessons(r.Context(), optionalActor(r), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLessonResponses(lessons))
}

// UpdateLesson は下書きコースのレッスンを更新する。
// PUT /api/lessons/{id}
func (h *LessonHandler) UpdateLesson(w http.ResponseWriter, r *http.Request) {
	var req updateLessonRequest
	var video *catalog.Upload

	if isMultipart(r) {
		form, closeFn, err := h.parseForm(w, r)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		defer closeFn()

		var details map[string]string
		req.Title = form.optional("title")
		req.Description = form.optional("description")
		req.VideoURL = form.optional("video_url")
		req.Transcript = form.optional("transcript")
		req.OrderIndex, details = form.optionalInt("order_index", details)
		req.VideoDuration, details = form.optionalInt("video_duration", details)
		req.Resources, details = form.resources(details)
		if len(details) > 0 {
			handleServiceError(w, model.NewValidationError(details))
			return
		}
		if video, err = form.upload("video"); err != nil {
			handleServiceError(w, err)
			return
		}
	} else if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	trimAll(req.Title, req.Description, req.VideoURL)
	if err := validateStruct(req); err != nil {
		handleServiceError(w, err)
		return
	}

	lesson, err := h.service.UpdateLesson(r.Context(), actorFrom(r), chi.URLParam(r, "id"), catalog.LessonUpdate{
		Title:         req.Title,
		Description:   req.Description,
		OrderIndex:    req.OrderIndex,
		VideoDuration: req.VideoDuration,
		VideoURL:      req.VideoURL,
		Video:         video,
		Transcript:    req.Transcript,
		Resources:     toResources(req.Resources),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLessonResponse(lesson))
}

// DeleteLesson は下書きコースのレッスンを削除する。
// DELETE /api/lessons/{id}
func (h *LessonHandler) DeleteLesson(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteLesson(r.Context(), actorFrom(r), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegenerateTranscript はレッスンの文字起こしを再生成する。
// POST /api/lessons/{id}/regenerate-transcript
func (h *LessonHandler) RegenerateTranscript(w http.ResponseWriter, r *http.Request) {
	lesson, err := h.service.RegenerateTranscript(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLessonResponse(lesson))
}

// --- multipart ---

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// lessonForm はレッスンのmultipartフォーム。
type lessonForm struct {
	form   *multipart.Form
	opened []multipart.File
}

func (h *LessonHandler) parseForm(w http.ResponseWriter, r *http.Request) (*lessonForm, func(), error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxVideoBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, nil, model.NewInvalidMediaError("ファイルサイズが上限を超えています")
		}
		return nil, nil, model.NewInvalidMediaError("multipart/form-dataの解析に失敗しました")
	}
	lf := &lessonForm{form: r.MultipartForm}
	return lf, lf.close, nil
}

// close は開いたファイルを閉じ、一時ファイルを削除する。
func (f *lessonForm) close() {
	for _, file := range f.opened {
		file.Close()
	}
	f.form.RemoveAll()
}

func (f *lessonForm) value(key string) string {
	if v := f.form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func (f *lessonForm) optional(key string) *string {
	v, ok := f.form.Value[key]
	if !ok || len(v) == 0 {
		return nil
	}
	s := v[0]
	return &s
}

func (f *lessonForm) intValue(key string, def int, details map[string]string) (int, map[string]string) {
	raw := f.value(key)
	if raw == "" {
		return def, details
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def, addDetail(details, key, key+" must be an integer")
	}
	return n, details
}

func (f *lessonForm) optionalInt(key string, details map[string]string) (*int, map[string]string) {
	if f.optional(key) == nil {
		return nil, details
	}
	n, details := f.intValue(key, 0, details)
	return &n, details
}

// resources はJSON文字列として送られたresources項目を解析する。
func (f *lessonForm) resources(details map[string]string) ([]resourceRequest, map[string]string) {
	raw := f.value("resources")
	if raw == "" {
		return nil, details
	}
	var out []resourceRequest
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, addDetail(details, "resources", "resources must be a JSON array")
	}
	return out, details
}

// upload は指定キーのファイルを返す。ファイルがない場合はnil。
func (f *lessonForm) upload(key string) (*catalog.Upload, error) {
	headers := f.form.File[key]
	if len(headers) == 0 {
		return nil, nil
	}
	file, err := headers[0].Open()
	if err != nil {
		return nil, model.NewInvalidMediaError("アップロードファイルを開けません")
	}
	f.opened = append(f.opened, file)
	return &catalog.Upload{Filename: headers[0].Filename, Body: file}, nil
}

func addDetail(details map[string]string, key, msg string) map[string]string {
	if details == nil {
		details = make(map[string]string)
	}
	details[key] = msg
	return details
}

func toResources(in []resourceRequest) []model.Resource {
	if in == nil {
		return nil
	}
	out := make([]model.Resource, len(in))
	for i, r := range in {
		out[i] = model.Resource{Title: r.Title, URL: r.URL, Type: model.ResourceType(r.Type)}
	}
	return out
}

package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/microcourse/internal/certificate"
	"github.com/hitoshi/microcourse/internal/model"
)

// CertificateServiceInterface は修了証ハンドラーが必要とするサービスインターフェース。
type CertificateServiceInterface interface {
	Issue(ctx context.Context, actor model.Actor, courseID string) (*model.Certificate, bool, error)
	Get(ctx context.Context, actor model.Actor, courseID string) (*model.Certificate, error)
	List(ctx context.Context, actor model.Actor) ([]*model.Certificate, error)
	Verify(ctx context.Context, serial string) (*certificate.Verification, error)
	Download(ctx context.Context, actor model.Actor, courseID string) (string, []byte, error)
}

// CertificateHandler は修了証のHTTPハンドラー。
type CertificateHandler struct {
	service CertificateServiceInterface
	baseURL string
}

// NewCertificateHandler はCertificateHandlerを生成する。baseURLは検証URLの組み立てに使う。
func NewCertificateHandler(service CertificateServiceInterface, baseURL string) *CertificateHandler {
	return &CertificateHandler{service: service, baseURL: baseURL}
}

// Issue は修了証を発行する。発行済みの場合は既存の修了証を200で返す。
// POST /api/certificates/{courseId}
func (h *CertificateHandler) Issue(w http.ResponseWriter, r *http.Request) {
	cert, created, err := h.service.Issue(r.Context(), actorFrom(r), chi.URLParam(r, "courseId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, toCertificateResponse(cert, h.baseURL))
}

// List は自分の修了証一覧を返す。
// GET /api/certificates
func (h *CertificateHandler) List(w http.ResponseWriter, r *http.Request) {
	certs, err := h.service.List(r.Context(), actorFrom(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	out := make([]certificateResponse, len(certs))
	for i, c := range certs {
		out[i] = toCertificateResponse(c, h.baseURL)
	}
	writeJSON(w, http.StatusOK, out)
}

// Get はコースの修了証を返す。
// GET /api/certificates/{courseId}
func (h *CertificateHandler) Get(w http.ResponseWriter, r *http.Request) {
	cert, err := h.service.Get(r.Context(), actorFrom(r), chi.URLParam(r, "courseId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCertificateResponse(cert, h.baseURL))
}

// Verify はシリアル番号で修了証を検証する。認証不要。
// 該当がない場合も200で{valid:false}を返す。
// GET /api/certificates/verify/{serial}
func (h *CertificateHandler) Verify(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.Verify(r.Context(), chi.URLParam(r, "serial"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toVerificationResponse(v))
}

// Download は修了証のPDFを添付ファイルとして返す。
// GET /api/certificates/{courseId}/download
func (h *CertificateHandler) Download(w http.ResponseWriter, r *http.Request) {
	filename, data, err := h.service.Download(r.Context(), actorFrom(r), chi.URLParam(r, "courseId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

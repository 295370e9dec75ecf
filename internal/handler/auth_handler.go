// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/microcourse/internal/auth"
	"github.com/hitoshi/microcourse/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, name, email, password string) (*auth.Session, error)
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	CurrentUser(ctx context.Context, userID string) (*model.User, error)
	ApplyForCreator(ctx context.Context, actor model.Actor, in auth.CreatorApplicationInput) (*model.User, error)
	CreatorStatus(ctx context.Context, actor model.Actor) (*model.User, error)
	ListCreatorApplications(ctx context.Context, actor model.Actor) ([]*model.User, error)
	ReviewCreator(ctx context.Context, actor model.Actor, userID, action string) (*model.User, error)
}

// AuthHandler は認証とクリエイター申請のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

type registerRequest struct {
	Name     string `json:"name" validate:"notblank,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type creatorApplyRequest struct {
	Motivation     string `json:"motivation" validate:"min=50,max=2000"`
	Experience     string `json:"experience" validate:"min=20,max=2000"`
	Specialization string `json:"specialization" validate:"notblank,max=200"`
}

type reviewRequest struct {
	Action string `json:"action" validate:"required"`
}

// Register はユーザー登録を処理する。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	trimAll(&req.Name, &req.Email)
	if err := validateStruct(req); err != nil {
		handleServiceError(w, err)
		return
	}

	session, err := h.service.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

// Login はログインを処理し、アクセストークンを返す。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	trimAll(&req.Email)
	if err := validateStruct(req); err != nil {
		handleServiceError(w, err)
		return
	}

	session, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.CurrentUser(r.Context(), actorFrom(r).UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// ApplyForCreator はクリエイター申請を受け付ける。
// POST /api/creator/apply
func (h *AuthHandler) ApplyForCreator(w http.ResponseWriter, r *http.Request) {
	var req creatorApplyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	trimAll(&req.Motivation, &req.Experience, &req.Specialization)
	if err := validateStruct(req); err != nil {
		handleServiceError(w, err)
		return
	}

	user, err := h.service.ApplyForCreator(r.Context(), actorFrom(r), auth.CreatorApplicationInput{
		Motivation:     req.Motivation,
		Experience:     req.Experience,
		Specialization: req.Specialization,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// CreatorStatus は自分のクリエイター申請状況を返す。
// GET /api/creator/status
func (h *AuthHandler) CreatorStatus(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.CreatorStatus(r.Context(), actorFrom(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// ListCreatorApplications は審査待ちのクリエイター申請一覧を返す。
// GET /api/admin/creators
func (h *AuthHandler) ListCreatorApplications(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListCreatorApplications(r.Context(), actorFrom(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponses(users))
}

// ReviewCreator はクリエイター申請を承認または却下する。
// PATCH /api/admin/creators/{id}/approve
func (h *AuthHandler) ReviewCreator(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	if err := validateStruct(req); err != nil {
		handleServiceError(w, err)
		return
	}

	user, err := h.service.ReviewCreator(r.Context(), actorFrom(r), chi.URLParam(r, "id"), req.Action)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func toSessionResponse(s *auth.Session) sessionResponse {
	return sessionResponse{
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
		User:      toUserResponse(s.User),
	}
}

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/microcourse/internal/auth"
	"github.com/hitoshi/microcourse/internal/middleware"
	"github.com/hitoshi/microcourse/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	registerFn      func(ctx context.Context, name, email, password string) (*auth.Session, error)
	loginFn         func(ctx context.Context, email, password string) (*auth.Session, error)
	currentUserFn   func(ctx context.Context, userID string) (*model.User, error)
	applyFn         func(ctx context.Context, actor model.Actor, in auth.CreatorApplicationInput) (*model.User, error)
	statusFn        func(ctx context.Context, actor model.Actor) (*model.User, error)
	listFn          func(ctx context.Context, actor model.Actor) ([]*model.User, error)
	reviewCreatorFn func(ctx context.Context, actor model.Actor, userID, action string) (*model.User, error)
}

func (m *mockAuthService) Register(ctx context.Context, name, email, password string) (*auth.Session, error) {
	return m.registerFn(ctx, name, email, password)
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*auth.Session, error) {
	return m.loginFn(ctx, email, password)
}

func (m *mockAuthService) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	return m.currentUserFn(ctx, userID)
}

func (m *mockAuthService) ApplyForCreator(ctx context.Context, actor model.Actor, in auth.CreatorApplicationInput) (*model.User, error) {
	return m.applyFn(ctx, actor, in)
}

func (m *mockAuthService) CreatorStatus(ctx context.Context, actor model.Actor) (*model.User, error) {
	return m.statusFn(ctx, actor)
}

func (m *mockAuthService) ListCreatorApplications(ctx context.Context, actor model.Actor) ([]*model.User, error) {
	return m.listFn(ctx, actor)
}

func (m *mockAuthService) ReviewCreator(ctx context.Context, actor model.Actor, userID, action string) (*model.User, error) {
	return m.reviewCreatorFn(ctx, actor, userID, action)
}

func testUser(id string, role model.Role) *model.User {
	return &model.User{
		ID:        id,
		Email:     id + "@example.com",
		Name:      "User " + id,
		Role:      role,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func withActor(req *http.Request, userID string, role model.Role) *http.Request {
	ctx := middleware.ContextWithActor(req.Context(), model.Actor{UserID: userID, Role: role})
	return req.WithContext(ctx)
}

// --- テスト ---

func TestAuthHandler_Register(t *testing.T) {
	var gotName, gotEmail string
	svc := &mockAuthService{
		registerFn: func(_ context.Context, name, email, _ string) (*auth.Session, error) {
			gotName, gotEmail = name, email
			return &auth.Session{
				Token:     "jwt-token",
				ExpiresAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
				User:      testUser("u1", model.RoleLearner),
			}, nil
		},
	}
	h := NewAuthHandler(svc)

	body := `{"name":"  Jane  ","email":" jane@example.com ","password":"secret-pass"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	if gotName != "Jane" || gotEmail != "jane@example.com" {
		t.Errorf("service got name=%q email=%q, want trimmed values", gotName, gotEmail)
	}

	var resp sessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.Token != "jwt-token" || resp.User.Role != model.RoleLearner {
		t.Errorf("response = %+v", resp)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("response must not contain password fields")
	}
}

func TestAuthHandler_Register_ValidationError(t *testing.T) {
	called := false
	svc := &mockAuthService{
		registerFn: func(context.Context, string, string, string) (*auth.Session, error) {
			called = true
			return nil, nil
		},
	}
	h := NewAuthHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/auth/register",
		strings.NewReader(`{"name":"","email":"nope","password":"short"}`))
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if called {
		t.Error("service must not be called on validation error")
	}
	body := decodeError(t, rec)
	details, _ := body["details"].(map[string]interface{})
	for _, k := range []string{"name", "email", "password"} {
		if _, ok := details[k]; !ok {
			t.Errorf("details missing %q: %v", k, details)
		}
	}
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(context.Context, string, string) (*auth.Session, error) {
			return nil, model.NewInvalidCredentialsError()
		},
	}
	h := NewAuthHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"jane@example.com","password":"wrong-password"}`))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestAuthHandler_Me_UsesActorFromContext(t *testing.T) {
	svc := &mockAuthService{
		currentUserFn: func(_ context.Context, userID string) (*model.User, error) {
			return testUser(userID, model.RoleCreator), nil
		},
	}
	h := NewAuthHandler(svc)

	req := withActor(httptest.NewRequest(http.MethodGet, "/auth/me", nil), "u42", model.RoleCreator)
	rec := httptest.NewRecorder()
	h.Me(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp userResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.ID != "u42" {
		t.Errorf("id = %s, want u42", resp.ID)
	}
}

func TestAuthHandler_ApplyForCreator(t *testing.T) {
	var got auth.CreatorApplicationInput
	svc := &mockAuthService{
		applyFn: func(_ context.Context, _ model.Actor, in auth.CreatorApplicationInput) (*model.User, error) {
			got = in
			u := testUser("u1", model.RoleLearner)
			u.Application.Status = model.ApplicationPending
			return u, nil
		},
	}
	h := NewAuthHandler(svc)

	body, _ := json.Marshal(map[string]string{
		"motivation":     strings.Repeat("I want to teach. ", 4),
		"experience":     "Ten years of backend work",
		"specialization": " Go ",
	})
	req := withActor(httptest.NewRequest(http.MethodPost, "/api/creator/apply", strings.NewReader(string(body))), "u1", model.RoleLearner)
	rec := httptest.NewRecorder()
	h.ApplyForCreator(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	if got.Specialization != "Go" {
		t.Errorf("specialization = %q, want trimmed", got.Specialization)
	}
	if !strings.Contains(rec.Body.String(), `"status":"pending"`) {
		t.Errorf("body = %s, want pending application", rec.Body.String())
	}
}

func TestAuthHandler_ReviewCreator_PassesURLParam(t *testing.T) {
	var gotUserID, gotAction string
	svc := &mockAuthService{
		reviewCreatorFn: func(_ context.Context, _ model.Actor, userID, action string) (*model.User, error) {
			gotUserID, gotAction = userID, action
			return testUser(userID, model.RoleCreator), nil
		},
	}
	h := NewAuthHandler(svc)

	r := chi.NewRouter()
	r.Patch("/api/admin/creators/{id}/approve", h.ReviewCreator)

	req := withActor(httptest.NewRequest(http.MethodPatch, "/api/admin/creators/u9/approve",
		strings.NewReader(`{"action":"approve"}`)), "admin", model.RoleAdmin)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotUserID != "u9" || gotAction != "approve" {
		t.Errorf("got userID=%q action=%q", gotUserID, gotAction)
	}
}

func TestAuthHandler_ReviewCreator_MissingAction(t *testing.T) {
	svc := &mockAuthService{}
	h := NewAuthHandler(svc)

	req := withActor(httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{}`)), "admin", model.RoleAdmin)
	rec := httptest.NewRecorder()
	h.ReviewCreator(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

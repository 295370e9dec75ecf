package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/microcourse/internal/model"
	"github.com/hitoshi/microcourse/internal/repository/memrepo"
)

// --- モック ---

type mockUserRepo struct {
	findByIDFn    func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn func(ctx context.Context, email string) (*model.User, error)
	createFn      func(ctx context.Context, user *model.User) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}
func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}
func (m *mockUserRepo) UpdateApplication(ctx context.Context, user *model.User) error {
	return nil
}
func (m *mockUserRepo) ListByApplicationStatus(ctx context.Context, status model.ApplicationStatus) ([]*model.User, error) {
	return nil, nil
}

func newTestService(t *testing.T) (*Service, *memrepo.UserRepo) {
	t.Helper()
	users := memrepo.NewUserRepo(memrepo.New())
	svc := NewService(users, NewTokenManager("test-secret", time.Hour))
	svc.bcryptCost = bcrypt.MinCost
	return svc, users
}

func TestRegister_CreatesLearnerAndIssuesToken(t *testing.T) {
	svc, users := newTestService(t)
	ctx := context.Background()

	sess, err := svc.Register(ctx, "Jane Doe", "  Jane@Example.com ", "password123")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if sess.Token == "" {
		t.Error("expected token")
	}
	if sess.User.Role != model.RoleLearner {
		t.Errorf("Role = %q, want learner", sess.User.Role)
	}
	if sess.User.Email != "jane@example.com" {
		t.Errorf("Email = %q, want normalized", sess.User.Email)
	}

	stored, _ := users.FindByEmail(ctx, "jane@example.com")
	if stored == nil {
		t.Fatal("user was not stored")
	}
	if stored.PasswordHash == "password123" {
		t.Error("password must be hashed")
	}
}

func TestRegister_DuplicateEmail_ReturnsConflict(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "A", "a@example.com", "password123"); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	_, err := svc.Register(ctx, "B", "A@example.com", "password456")
	if !model.IsKind(err, model.KindConflict) {
		t.Errorf("Register() error = %v, want Conflict", err)
	}
}

func TestRegister_RepositoryError_IsWrapped(t *testing.T) {
	dbErr := errors.New("connection lost")
	svc := NewService(&mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error { return dbErr },
	}, NewTokenManager("s", time.Hour))
	svc.bcryptCost = bcrypt.MinCost

	_, err := svc.Register(context.Background(), "A", "a@example.com", "password123")
	if !errors.Is(err, dbErr) {
		t.Errorf("Register() error = %v, want wrapped dbErr", err)
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Error("infrastructure errors must not become APIError")
	}
}

func TestLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, "Jane", "jane@example.com", "password123"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  bool
	}{
		{name: "正しい資格情報", email: "jane@example.com", password: "password123"},
		{name: "大文字メールアドレス", email: "JANE@example.com", password: "password123"},
		{name: "パスワード不一致", email: "jane@example.com", password: "wrong", wantErr: true},
		{name: "未登録ユーザー", email: "nobody@example.com", password: "password123", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, err := svc.Login(ctx, tt.email, tt.password)
			if tt.wantErr {
				if !model.IsKind(err, model.KindUnauthorized) {
					t.Errorf("Login() error = %v, want Unauthorized", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Login() error = %v", err)
			}
			if sess.Token == "" {
				t.Error("expected token")
			}
		})
	}
}

func TestResolve_ReadsRoleFromUserRecord(t *testing.T) {
	svc, users := newTestService(t)
	ctx := context.Background()
	sess, _ := svc.Register(ctx, "Jane", "jane@example.com", "password123")

	actor, err := svc.Resolve(ctx, sess.Token)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if actor.UserID != sess.User.ID || actor.Role != model.RoleLearner {
		t.Errorf("actor = %+v", actor)
	}

	// 承認後は同じトークンでcreatorとして解決される
	u, _ := users.FindByID(ctx, sess.User.ID)
	u.Role = model.RoleCreator
	_ = users.UpdateApplication(ctx, u)

	actor, _ = svc.Resolve(ctx, sess.Token)
	if actor.Role != model.RoleCreator {
		t.Errorf("Role = %q, want creator", actor.Role)
	}
}

func TestResolve_InvalidTokenOrDeletedUser(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Resolve(ctx, "garbage"); !model.IsKind(err, model.KindUnauthorized) {
		t.Errorf("Resolve(garbage) error = %v, want Unauthorized", err)
	}

	token, _, _ := svc.tokens.Issue("ghost-user")
	if _, err := svc.Resolve(ctx, token); !model.IsKind(err, model.KindUnauthorized) {
		t.Errorf("Resolve(ghost) error = %v, want Unauthorized", err)
	}
}

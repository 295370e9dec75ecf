package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/microcourse/internal/model"
)

// 審査アクション。
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// CreatorApplicationInput はクリエイター申請の入力。
type CreatorApplicationInput struct {
	Motivation     string
	Experience     string
	Specialization string
}

// ApplyForCreator は受講者のクリエイター申請を受け付ける。
// 審査中の申請がある場合と既にクリエイターの場合は受け付けない。
func (s *Service) ApplyForCreator(ctx context.Context, actor model.Actor, in CreatorApplicationInput) (*model.User, error) {
	if actor.Role != model.RoleLearner {
		return nil, model.NewRoleRequiredError(model.RoleLearner)
	}
	user, err := s.CurrentUser(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	switch user.Application.Status {
	case model.ApplicationPending:
		return nil, model.NewApplicationPendingError()
	case model.ApplicationApproved:
		return nil, model.NewAlreadyCreatorError()
	}

	now := s.now()
	user.Application = model.CreatorApplication{
		Status:         model.ApplicationPending,
		Motivation:     in.Motivation,
		Experience:     in.Experience,
		Specialization: in.Specialization,
		AppliedAt:      &now,
	}
	user.UpdatedAt = now
	if err := s.userRepo.UpdateApplication(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to save creator application: %w", err)
	}

	slog.Info("creator application submitted", slog.String("user_id", user.ID))
	return user, nil
}

// CreatorStatus は実行者のクリエイター申請状況を返す。
func (s *Service) CreatorStatus(ctx context.Context, actor model.Actor) (*model.User, error) {
	return s.CurrentUser(ctx, actor.UserID)
}

// ListCreatorApplications は審査待ちのクリエイター申請を返す。管理者専用。
func (s *Service) ListCreatorApplications(ctx context.Context, actor model.Actor) ([]*model.User, error) {
	if !actor.IsAdmin() {
		return nil, model.NewRoleRequiredError(model.RoleAdmin)
	}
	users, err := s.userRepo.ListByApplicationStatus(ctx, model.ApplicationPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list creator applications: %w", err)
	}
	return users, nil
}

// ReviewCreator はクリエイター申請を承認または却下する。管理者専用。
// 承認時はロールをcreatorに変更する。
func (s *Service) ReviewCreator(ctx context.Context, actor model.Actor, userID, action string) (*model.User, error) {
	if !actor.IsAdmin() {
		return nil, model.NewRoleRequiredError(model.RoleAdmin)
	}
	if action != ActionApprove && action != ActionReject {
		return nil, model.NewInvalidActionError(action, ActionApprove, ActionReject)
	}

	user, err := s.CurrentUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Application.Status != model.ApplicationPending {
		return nil, model.NewApplicationNotPendingError()
	}

	now := s.now()
	reviewer := actor.UserID
	user.Application.ReviewedAt = &now
	user.Application.ReviewedBy = &reviewer
	if action == ActionApprove {
		user.Application.Status = model.ApplicationApproved
		user.Role = model.RoleCreator
	} else {
		user.Application.Status = model.ApplicationRejected
	}
	user.UpdatedAt = now

	if err := s.userRepo.UpdateApplication(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to save creator review: %w", err)
	}

	slog.Info("creator application reviewed",
		slog.String("user_id", user.ID),
		slog.String("action", action),
		slog.String("reviewer_id", reviewer),
	)
	return user, nil
}

// Package enrollment は受講登録（受講者とコースの関係）を管理する。
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/microcourse/internal/metrics"
	"github.com/hitoshi/microcourse/internal/model"
	"github.com/hitoshi/microcourse/internal/repository"
)

// Status は受講者とコースの受講状況。
type Status struct {
	Enrolled   bool
	Enrollment *model.Enrollment
}

// Service は受講登録のサービス層。
type Service struct {
	courses     repository.CourseRepository
	enrollments repository.EnrollmentRepository
	metrics     metrics.MetricsCollector
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	courses repository.CourseRepository,
	enrollments repository.EnrollmentRepository,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		courses:     courses,
		enrollments: enrollments,
		metrics:     collector,
		now:         time.Now,
	}
}

// Enroll は公開済みコースに受講登録する。
// 同じ受講者・コースの重複はストレージの一意性制約で検出し、Conflictを返す。
func (s *Service) Enroll(ctx context.Context, actor model.Actor, courseID string) (*model.Enrollment, error) {
	if actor.Role != model.RoleLearner {
		return nil, model.NewRoleRequiredError(model.RoleLearner)
	}

	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("コースの取得に失敗しました: %w", err)
	}
	if course == nil {
		return nil, model.NewCourseNotFoundError(courseID)
	}
	if course.Status != model.CourseStatusPublished {
		return nil, model.NewCourseNotPublishedError()
	}

	now := s.now()
	enrollment := &model.Enrollment{
		ID:         uuid.New().String(),
		UserID:     actor.UserID,
		CourseID:   courseID,
		EnrolledAt: now,
		Progress:   0,
		UpdatedAt:  now,
	}
	if err := s.enrollments.Create(ctx, enrollment); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewAlreadyEnrolledError()
		}
		return nil, fmt.Errorf("受講登録に失敗しました: %w", err)
	}

	// 受講者数は非トランザクションのカウンター。失敗しても受講登録は成立させ、定期再集計で補正する。
	if err := s.courses.AddEnrollmentCount(ctx, courseID, 1); err != nil {
		slog.Warn("受講者数の更新に失敗", "courseID", courseID, "error", err)
	}
	s.metrics.RecordEnrollment(courseID)

	slog.Info("受講登録", "userID", actor.UserID, "courseID", courseID, "enrollmentID", enrollment.ID)
	return enrollment, nil
}

// ListMine は実行者の受講一覧をコース概要付きで返す。
func (s *Service) ListMine(ctx context.Context, actor model.Actor) ([]model.EnrollmentWithCourse, error) {
	list, err := s.enrollments.ListByUserWithCourse(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("受講一覧の取得に失敗しました: %w", err)
	}
	return list, nil
}

// Status は実行者の指定コースへの受講状況を返す。
func (s *Service) Status(ctx context.Context, actor model.Actor, courseID string) (*Status, error) {
	e, err := s.enrollments.FindByUserAndCourse(ctx, actor.UserID, courseID)
	if err != nil {
		return nil, fmt.Errorf("受講の検索に失敗しました: %w", err)
	}
	return &Status{Enrolled: e != nil, Enrollment: e}, nil
}

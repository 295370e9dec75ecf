package progress

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/microcourse/internal/metrics"
	"github.com/hitoshi/microcourse/internal/model"
	"github.com/hitoshi/microcourse/internal/repository"
)

// CompleteInput はレッスン完了の任意入力。0は未指定として扱い、既存値を保持する。
type CompleteInput struct {
	TimeSpent    int
	LastPosition int
}

// CompleteResult はレッスン完了後の状態。
type CompleteResult struct {
	Progress   *model.LessonProgress
	Enrollment *model.Enrollment
	Summary    Summary
}

// LessonState はレッスンと受講者の進捗の組。Progressは未着手の場合nil。
type LessonState struct {
	Lesson   *model.Lesson
	Progress *model.LessonProgress
}

// CourseProgress はコース単位の進捗詳細。
type CourseProgress struct {
	Course     *model.Course
	Enrollment *model.Enrollment
	Lessons    []LessonState
	Summary    Summary
}

// CourseOverview は受講中コースの進捗概要。
type CourseOverview struct {
	model.EnrollmentWithCourse
	Summary Summary
}

// Service はレッスン進捗のサービス層。
type Service struct {
	courses     repository.CourseRepository
	lessons     repository.LessonRepository
	enrollments repository.EnrollmentRepository
	progress    repository.ProgressRepository
	metrics     metrics.MetricsCollector
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	courses repository.CourseRepository,
	lessons repository.LessonRepository,
	enrollments repository.EnrollmentRepository,
	progress repository.ProgressRepository,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		courses:     courses,
		lessons:     lessons,
		enrollments: enrollments,
		progress:    progress,
		metrics:     collector,
		now:         time.Now,
	}
}

// CompleteLesson はレッスンを完了として記録し、受講進捗を再集計する。
// 完了済みレッスンに対して再度呼んでもエラーにならず、同じ進捗率に収束する。
func (s *Service) CompleteLesson(ctx context.Context, actor model.Actor, lessonID string, in CompleteInput) (*CompleteResult, error) {
	if actor.Role != model.RoleLearner {
		return nil, model.NewRoleRequiredError(model.RoleLearner)
	}
	if in.TimeSpent < 0 || in.LastPosition < 0 {
		return nil, model.NewValidationError(map[string]string{"time_spent": "0以上の秒数を指定してください"})
	}

	lesson, err := s.lessons.FindByID(ctx, lessonID)
	if err != nil {
		return nil, fmt.Errorf("レッスンの取得に失敗しました: %w", err)
	}
	if lesson == nil {
		return nil, model.NewLessonNotFoundError(lessonID)
	}

	enrollment, err := s.enrollments.FindByUserAndCourse(ctx, actor.UserID, lesson.CourseID)
	if err != nil {
		return nil, fmt.Errorf("受講の検索に失敗しました: %w", err)
	}
	if enrollment == nil {
		return nil, model.NewNotEnrolledError()
	}

	course, err := s.courses.FindByID(ctx, lesson.CourseID)
	if err != nil {
		return nil, fmt.Errorf("コースの取得に失敗しました: %w", err)
	}
	if course == nil {
		return nil, model.NewLessonNotFoundError(lessonID)
	}
	if course.Status != model.CourseStatusPublished {
		return nil, model.NewCourseNotPublishedError()
	}

	now := s.now()
	saved, err := s.progress.Upsert(ctx, &model.LessonProgress{
		ID:           uuid.New().String(),
		UserID:       actor.UserID,
		LessonID:     lessonID,
		CourseID:     lesson.CourseID,
		IsCompleted:  true,
		CompletedAt:  &now,
		TimeSpent:    in.TimeSpent,
		LastPosition: in.LastPosition,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("レッスン進捗の保存に失敗しました: %w", err)
	}
	s.metrics.RecordLessonCompleted(lesson.CourseID)

	wasCompleted := enrollment.IsCompleted
	summary, err := s.recompute(ctx, enrollment, now)
	if err != nil {
		return nil, err
	}
	if summary.IsCompleted && !wasCompleted {
		s.metrics.RecordCourseCompleted(lesson.CourseID)
		slog.Info("コース修了", "userID", actor.UserID, "courseID", lesson.CourseID)
	}

	return &CompleteResult{Progress: saved, Enrollment: enrollment, Summary: summary}, nil
}

// recompute はコースの全レッスンと受講者の進捗から受講進捗を再計算して書き戻す。
// 100%到達時に修了日時を記録し、既に修了済みなら保持する。100%未満に戻った場合は修了を解除する。
// 書き込みは後勝ち。enrollmentは書き込んだ値で更新される。
func (s *Service) recompute(ctx context.Context, enrollment *model.Enrollment, now time.Time) (Summary, error) {
	lessons, err := s.lessons.ListByCourse(ctx, enrollment.CourseID)
	if err != nil {
		return Summary{}, fmt.Errorf("レッスン一覧の取得に失敗しました: %w", err)
	}
	records, err := s.progress.ListByUserAndCourse(ctx, enrollment.UserID, enrollment.CourseID)
	if err != nil {
		return Summary{}, fmt.Errorf("レッスン進捗の取得に失敗しました: %w", err)
	}
	summary := Aggregate(lessons, records)

	completedAt := completionTime(enrollment, summary, now)
	if err := s.enrollments.UpdateProgress(ctx, enrollment.ID, summary.Percentage, summary.IsCompleted, completedAt); err != nil {
		return Summary{}, fmt.Errorf("受講進捗の更新に失敗しました: %w", err)
	}

	enrollment.Progress = summary.Percentage
	enrollment.IsCompleted = summary.IsCompleted
	enrollment.CompletedAt = completedAt
	enrollment.UpdatedAt = now
	return summary, nil
}

// completionTime は再集計後の修了日時を決める。
func completionTime(enrollment *model.Enrollment, summary Summary, now time.Time) *time.Time {
	if !summary.IsCompleted {
		return nil
	}
	if enrollment.IsCompleted && enrollment.CompletedAt != nil {
		return enrollment.CompletedAt
	}
	return &now
}

// CourseProgress は実行者のコース進捗をレッスン単位で返す。受講していない場合はForbidden。
func (s *Service) CourseProgress(ctx context.Context, actor model.Actor, courseID string) (*CourseProgress, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("コースの取得に失敗しました: %w", err)
	}
	if course == nil {
		return nil, model.NewCourseNotFoundError(courseID)
	}

	enrollment, err := s.enrollments.FindByUserAndCourse(ctx, actor.UserID, courseID)
	if err != nil {
		return nil, fmt.Errorf("受講の検索に失敗しました: %w", err)
	}
	if enrollment == nil {
		return nil, model.NewNotEnrolledError()
	}

	lessons, err := s.lessons.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("レッスン一覧の取得に失敗しました: %w", err)
	}
	records, err := s.progress.ListByUserAndCourse(ctx, actor.UserID, courseID)
	if err != nil {
		return nil, fmt.Errorf("レッスン進捗の取得に失敗しました: %w", err)
	}

	byLesson := make(map[string]*model.LessonProgress, len(records))
	for _, p := range records {
		byLesson[p.LessonID] = p
	}
	states := make([]LessonState, 0, len(lessons))
	for _, l := range lessons {
		states = append(states, LessonState{Lesson: l, Progress: byLesson[l.ID]})
	}

	return &CourseProgress{
		Course:     course,
		Enrollment: enrollment,
		Lessons:    states,
		Summary:    Aggregate(lessons, records),
	}, nil
}

// Overview は実行者の受講中コースすべての進捗概要を返す。
func (s *Service) Overview(ctx context.Context, actor model.Actor) ([]CourseOverview, error) {
	enrollments, err := s.enrollments.ListByUserWithCourse(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("受講一覧の取得に失敗しました: %w", err)
	}

	overview := make([]CourseOverview, 0, len(enrollments))
	for _, e := range enrollments {
		lessons, err := s.lessons.ListByCourse(ctx, e.CourseID)
		if err != nil {
			return nil, fmt.Errorf("レッスン一覧の取得に失敗しました: %w", err)
		}
		records, err := s.progress.ListByUserAndCourse(ctx, actor.UserID, e.CourseID)
		if err != nil {
			return nil, fmt.Errorf("レッスン進捗の取得に失敗しました: %w", err)
		}
		overview = append(overview, CourseOverview{EnrollmentWithCourse: e, Summary: Aggregate(lessons, records)})
	}
	return overview, nil
}

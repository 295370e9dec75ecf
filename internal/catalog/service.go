package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/microcourse/internal/media"
	"github.com/hitoshi/microcourse/internal/model"
	"github.com/hitoshi/microcourse/internal/repository"
	"github.com/hitoshi/microcourse/internal/security"
)

// レビューアクション。
const (
	ActionPublish = "publish"
	ActionReject  = "reject"
)

// Describer はメディアから説明テキストを生成する。失敗時もプレースホルダーを返す。
type Describer interface {
	Describe(ctx context.Context, mediaLocator string, durationSeconds int) string
}

// Upload はアップロードされたファイル。
type Upload struct {
	Filename string
	Body     io.Reader
}

// Service はコース・レッスンカタログのサービス層。
type Service struct {
	courses     repository.CourseRepository
	lessons     repository.LessonRepository
	enrollments repository.EnrollmentRepository
	store       media.Store
	describer   Describer
	guard       security.URLGuard
	sanitizer   security.TextSanitizer
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	courses repository.CourseRepository,
	lessons repository.LessonRepository,
	enrollments repository.EnrollmentRepository,
	store media.Store,
	describer Describer,
	guard security.URLGuard,
	sanitizer security.TextSanitizer,
) *Service {
	return &Service{
		courses:     courses,
		lessons:     lessons,
		enrollments: enrollments,
		store:       store,
		describer:   describer,
		guard:       guard,
		sanitizer:   sanitizer,
		now:         time.Now,
	}
}

// CourseInput はコース作成の入力。
type CourseInput struct {
	Title       string
	Description string
	Category    string
	Difficulty  model.Difficulty
	Tags        []string
}

// CourseUpdate はコース更新の入力。nilのフィールドは変更しない。
type CourseUpdate struct {
	Title       *string
	Description *string
	Category    *string
	Difficulty  *model.Difficulty
	Tags        []string
}

// ListFilter はコース一覧の絞り込み条件。
type ListFilter struct {
	Category   string
	Difficulty model.Difficulty
	Search     string
}

// CreateCourse は下書き状態のコースを作成する。クリエイター専用。
func (s *Service) CreateCourse(ctx context.Context, actor model.Actor, in CourseInput) (*model.Course, error) {
	if actor.Role != model.RoleCreator {
		return nil, model.NewRoleRequiredError(model.RoleCreator)
	}

	now := s.now()
	course := &model.Course{
		ID:          uuid.New().String(),
		Title:       s.sanitizer.Plain(in.Title),
		Description: s.sanitizer.Rich(in.Description),
		CreatorID:   actor.UserID,
		Status:      model.CourseStatusDraft,
		Difficulty:  in.Difficulty,
		Category:    s.sanitizer.Plain(in.Category),
		Tags:        security.PlainAll(s.sanitizer, in.Tags),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if course.Difficulty == "" {
		course.Difficulty = model.DifficultyBeginner
	}
	if course.Tags == nil {
		course.Tags = []string{}
	}

	if err := s.courses.Create(ctx, course); err != nil {
		return nil, fmt.Errorf("コースの作成に失敗しました: %w", err)
	}

	slog.Info("コース作成", "courseID", course.ID, "creatorID", actor.UserID)
	return s.findVisible(ctx, &actor, course.ID)
}

// GetCourse はコースを返す。参照権限がない場合も存在しない場合と同じNotFoundを返す。
func (s *Service) GetCourse(ctx context.Context, actor *model.Actor, courseID string) (*model.Course, error) {
	return s.findVisible(ctx, actor, courseID)
}

// ListCourses は実行者が参照できるコースを新しい順に返す。
func (s *Service) ListCourses(ctx context.Context, actor *model.Actor, f ListFilter) ([]*model.Course, error) {
	filter := visibilityFilter(actor)
	filter.Category = f.Category
	filter.Difficulty = f.Difficulty
	filter.Search = f.Search

	courses, err := s.courses.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("コース一覧の取得に失敗しました: %w", err)
	}
	return courses, nil
}

// ListForReview は指定ステータスのコースを返す。管理者専用。statusが空の場合は審査待ち。
func (s *Service) ListForReview(ctx context.Context, actor model.Actor, status model.CourseStatus) ([]*model.Course, error) {
	if !actor.IsAdmin() {
		return nil, model.NewRoleRequiredError(model.RoleAdmin)
	}
	if status == "" {
		status = model.CourseStatusPending
	}
	if !status.Valid() {
		return nil, model.NewValidationError(map[string]string{"status": "無効なステータスです"})
	}

	courses, err := s.courses.List(ctx, model.CourseFilter{Statuses: []model.CourseStatus{status}})
	if err != nil {
		return nil, fmt.Errorf("審査対象コースの取得に失敗しました: %w", err)
	}
	return courses, nil
}

// UpdateCourse は下書きコースの内容を更新する。
func (s *Service) UpdateCourse(ctx context.Context, actor model.Actor, courseID string, in CourseUpdate) (*model.Course, error) {
	course, err := s.mutableCourse(ctx, actor, courseID)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		course.Title = s.sanitizer.Plain(*in.Title)
	}
	if in.Description != nil {
		course.Description = s.sanitizer.Rich(*in.Description)
	}
	if in.Category != nil {
		course.Category = s.sanitizer.Plain(*in.Category)
	}
	if in.Difficulty != nil {
		course.Difficulty = *in.Difficulty
	}
	if in.Tags != nil {
		course.Tags = security.PlainAll(s.sanitizer, in.Tags)
	}
	course.UpdatedAt = s.now()

	if err := s.courses.UpdateContent(ctx, course); err != nil {
		if errors.Is(err, repository.ErrCourseNotDraft) {
			return nil, s.draftWriteError(ctx, courseID, model.NewCourseNotFoundError(courseID))
		}
		return nil, fmt.Errorf("コースの更新に失敗しました: %w", err)
	}
	return s.findVisible(ctx, &actor, courseID)
}

// SetThumbnail は下書きコースのサムネイル画像を差し替える。
func (s *Service) SetThumbnail(ctx context.Context, actor model.Actor, courseID string, upload Upload) (*model.Course, error) {
	course, err := s.mutableCourse(ctx, actor, courseID)
	if err != nil {
		return nil, err
	}

	locator, err := s.store.Put(ctx, media.KindThumbnail, upload.Filename, upload.Body)
	if err != nil {
		return nil, err
	}
	previous := course.Thumbnail
	course.Thumbnail = &locator
	course.UpdatedAt = s.now()

	if err := s.courses.UpdateContent(ctx, course); err != nil {
		s.discardMedia(ctx, locator)
		if errors.Is(err, repository.ErrCourseNotDraft) {
			return nil, s.draftWriteError(ctx, courseID, model.NewCourseNotFoundError(courseID))
		}
		return nil, fmt.Errorf("サムネイルの更新に失敗しました: %w", err)
	}
	if previous != nil {
		s.discardMedia(ctx, *previous)
	}
	return s.findVisible(ctx, &actor, courseID)
}

// DeleteCourse は下書きコースを所属レッスンごと削除する。
func (s *Service) DeleteCourse(ctx context.Context, actor model.Actor, courseID string) error {
	course, err := s.mutableCourse(ctx, actor, courseID)
	if err != nil {
		return err
	}
	lessons, err := s.lessons.ListByCourse(ctx, courseID)
	if err != nil {
		return fmt.Errorf("レッスン一覧の取得に失敗しました: %w", err)
	}

	if err := s.courses.Delete(ctx, courseID); err != nil {
		if errors.Is(err, repository.ErrCourseNotDraft) {
			return s.draftWriteError(ctx, courseID, model.NewCourseNotFoundError(courseID))
		}
		return fmt.Errorf("コースの削除に失敗しました: %w", err)
	}

	if course.Thumbnail != nil {
		s.discardMedia(ctx, *course.Thumbnail)
	}
	for _, l := range lessons {
		s.discardMedia(ctx, l.VideoURL)
	}
	slog.Info("コース削除", "courseID", courseID, "lessons", len(lessons))
	return nil
}

// SubmitCourse は下書きコースを審査待ちにする。レッスンが1つ以上必要。
func (s *Service) SubmitCourse(ctx context.Context, actor model.Actor, courseID string) (*model.Course, error) {
	if _, err := s.mutableCourse(ctx, actor, courseID); err != nil {
		return nil, err
	}

	count, err := s.lessons.CountByCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("レッスン数の取得に失敗しました: %w", err)
	}
	if count == 0 {
		return nil, model.NewCourseHasNoLessonsError()
	}

	ok, err := s.courses.TransitionStatus(ctx, courseID, model.CourseStatusDraft, model.CourseStatusPending, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("コースステータスの更新に失敗しました: %w", err)
	}
	if !ok {
		return nil, s.notInStatusError(ctx, courseID, func(status model.CourseStatus) error {
			return model.NewCourseNotDraftError(status)
		})
	}

	slog.Info("コース審査申請", "courseID", courseID, "creatorID", actor.UserID, "lessons", count)
	return s.findVisible(ctx, &actor, courseID)
}

// ReviewCourse は審査待ちコースを公開または却下する。管理者専用。
// 公開時は公開者と公開日時をサーバー側で記録する。
func (s *Service) ReviewCourse(ctx context.Context, actor model.Actor, courseID, action string) (*model.Course, error) {
	if !actor.IsAdmin() {
		return nil, model.NewRoleRequiredError(model.RoleAdmin)
	}

	var (
		to          model.CourseStatus
		publishedAt *time.Time
		publishedBy *string
	)
	switch action {
	case ActionPublish:
		now := s.now()
		reviewer := actor.UserID
		to, publishedAt, publishedBy = model.CourseStatusPublished, &now, &reviewer
	case ActionReject:
		to = model.CourseStatusRejected
	default:
		return nil, model.NewInvalidActionError(action, ActionPublish, ActionReject)
	}

	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("コースの取得に失敗しました: %w", err)
	}
	if course == nil {
		return nil, model.NewCourseNotFoundError(courseID)
	}

	ok, err := s.courses.TransitionStatus(ctx, courseID, model.CourseStatusPending, to, publishedAt, publishedBy)
	if err != nil {
		return nil, fmt.Errorf("コースステータスの更新に失敗しました: %w", err)
	}
	if !ok {
		return nil, s.notInStatusError(ctx, courseID, func(model.CourseStatus) error {
			return model.NewCourseNotPendingError()
		})
	}

	slog.Info("コース審査", "courseID", courseID, "action", action, "reviewerID", actor.UserID)
	return s.findVisible(ctx, &actor, courseID)
}

// findVisible はコースを取得し、参照権限がなければNotFoundを返す。
func (s *Service) findVisible(ctx context.Context, actor *model.Actor, courseID string) (*model.Course, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("コースの取得に失敗しました: %w", err)
	}
	if !CanView(actor, course) {
		return nil, model.NewCourseNotFoundError(courseID)
	}
	return course, nil
}

// mutableCourse は変更対象のコースを取得する。
// 参照不可はNotFound、所有者でなければForbidden、下書き以外はPreconditionFailedを返す。
func (s *Service) mutableCourse(ctx context.Context, actor model.Actor, courseID string) (*model.Course, error) {
	course, err := s.findVisible(ctx, &actor, courseID)
	if err != nil {
		return nil, err
	}
	if !CanMutate(actor, course) {
		return nil, model.NewNotCourseOwnerError()
	}
	if course.Status != model.CourseStatusDraft {
		return nil, model.NewCourseNotDraftError(course.Status)
	}
	return course, nil
}

// notInStatusError は状態遷移のCASに失敗した理由をエラーに変換する。
// 遷移中に削除された場合はNotFoundを返す。
func (s *Service) notInStatusError(ctx context.Context, courseID string, build func(model.CourseStatus) error) error {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return fmt.Errorf("コースの取得に失敗しました: %w", err)
	}
	if course == nil {
		return model.NewCourseNotFoundError(courseID)
	}
	return build(course.Status)
}

// draftWriteError は下書き条件付きの書き込みが作用しなかった理由をエラーに変換する。
// コースが下書きのままならgone（対象の消失）を返す。
func (s *Service) draftWriteError(ctx context.Context, courseID string, gone error) error {
	return s.notInStatusError(ctx, courseID, func(status model.CourseStatus) error {
		if status == model.CourseStatusDraft {
			return gone
		}
		return model.NewCourseNotDraftError(status)
	})
}

// discardMedia は不要になったアップロードを削除する。失敗はログのみ。
func (s *Service) discardMedia(ctx context.Context, locator string) {
	if !media.IsLocal(locator) {
		return
	}
	if err := s.store.Delete(ctx, locator); err != nil {
		slog.Warn("メディア削除エラー", "locator", locator, "error", err)
	}
}

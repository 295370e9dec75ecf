package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hitoshi/microcourse/internal/media"
	"github.com/hitoshi/microcourse/internal/model"
	"github.com/hitoshi/microcourse/internal/repository"
)

// LessonInput はレッスン作成の入力。
// 動画はVideo（アップロード）かVideoURL（外部URL）のいずれかを指定する。
type LessonInput struct {
	CourseID      string
	Title         string
	Description   string
	OrderIndex    int
	VideoDuration int // 秒
	VideoURL      string
	Video         *Upload
	Transcript    string
	Resources     []model.Resource
}

// LessonUpdate はレッスン更新の入力。nilのフィールドは変更しない。
type LessonUpdate struct {
	Title         *string
	Description   *string
	OrderIndex    *int
	VideoDuration *int
	VideoURL      *string
	Video         *Upload
	Transcript    *string
	Resources     []model.Resource
}

// CreateLesson は下書きコースにレッスンを追加する。
// トランスクリプト未指定時は生成を試み、失敗してもレッスンは作成する。
func (s *Service) CreateLesson(ctx context.Context, actor model.Actor, in LessonInput) (*model.Lesson, error) {
	if actor.Role != model.RoleCreator {
		return nil, model.NewRoleRequiredError(model.RoleCreator)
	}
	if in.OrderIndex < 1 {
		return nil, model.NewValidationError(map[string]string{"order_index": "1以上の整数を指定してください"})
	}
	if in.VideoDuration < 0 {
		return nil, model.NewValidationError(map[string]string{"video_duration": "0以上の秒数を指定してください"})
	}
	if _, err := s.mutableCourse(ctx, actor, in.CourseID); err != nil {
		return nil, err
	}
	resources, err := s.sanitizeResources(in.Resources)
	if err != nil {
		return nil, err
	}

	videoURL, uploaded, err := s.resolveVideo(ctx, in.Video, in.VideoURL)
	if err != nil {
		return nil, err
	}
	if videoURL == "" {
		return nil, model.NewValidationError(map[string]string{"video": "動画ファイルまたは動画URLが必要です"})
	}

	transcript := s.sanitizer.Plain(in.Transcript)
	if transcript == "" {
		transcript = s.describer.Describe(ctx, videoURL, in.VideoDuration)
	}

	now := s.now()
	lesson := &model.Lesson{
		ID:            uuid.New().String(),
		CourseID:      in.CourseID,
		Title:         s.sanitizer.Plain(in.Title),
		Description:   s.sanitizer.Rich(in.Description),
		OrderIndex:    in.OrderIndex,
		VideoURL:      videoURL,
		VideoDuration: in.VideoDuration,
		Transcript:    transcript,
		Resources:     resources,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.lessons.Create(ctx, lesson); err != nil {
		if uploaded {
			s.discardMedia(ctx, videoURL)
		}
		if repository.IsConstraint(err, repository.ConstraintLessonOrder) {
			return nil, model.NewDuplicateOrderIndexError(in.OrderIndex)
		}
		if errors.Is(err, repository.ErrCourseNotDraft) {
			return nil, s.draftWriteError(ctx, in.CourseID, model.NewCourseNotFoundError(in.CourseID))
		}
		return nil, fmt.Errorf("レッスンの作成に失敗しました: %w", err)
	}
	if err := s.recomputeDuration(ctx, in.CourseID); err != nil {
		return nil, err
	}

	slog.Info("レッスン作成", "lessonID", lesson.ID, "courseID", in.CourseID, "orderIndex", in.OrderIndex)
	return lesson, nil
}

// GetLesson はレッスンを返す。
// 公開済みコース、作成者、管理者、受講者のいずれでもなければNotFoundを返す。
func (s *Service) GetLesson(ctx context.Context, actor *model.Actor, lessonID string) (*model.Lesson, error) {
	lesson, err := s.lessons.FindByID(ctx, lessonID)
	if err != nil {
		return nil, fmt.Errorf("レッスンの取得に失敗しました: %w", err)
	}
	if lesson == nil {
		return nil, model.NewLessonNotFoundError(lessonID)
	}

	course, err := s.courses.FindByID(ctx, lesson.CourseID)
	if err != nil {
		return nil, fmt.Errorf("コースの取得に失敗しました: %w", err)
	}
	ok, err := s.canViewLessons(ctx, actor, course)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.NewLessonNotFoundError(lessonID)
	}
	return lesson, nil
}

// ListLessons はコースのレッスンを表示順に返す。
func (s *Service) ListLessons(ctx context.Context, actor *model.Actor, courseID string) ([]*model.Lesson, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("コースの取得に失敗しました: %w", err)
	}
	ok, err := s.canViewLessons(ctx, actor, course)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.NewCourseNotFoundError(courseID)
	}

	lessons, err := s.lessons.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("レッスン一覧の取得に失敗しました: %w", err)
	}
	return lessons, nil
}

// UpdateLesson は下書きコースのレッスンを更新する。
func (s *Service) UpdateLesson(ctx context.Context, actor model.Actor, lessonID string, in LessonUpdate) (*model.Lesson, error) {
	lesson, err := s.mutableLesson(ctx, actor, lessonID)
	if err != nil {
		return nil, err
	}

	if in.OrderIndex != nil && *in.OrderIndex < 1 {
		return nil, model.NewValidationError(map[string]string{"order_index": "1以上の整数を指定してください"})
	}
	if in.VideoDuration != nil && *in.VideoDuration < 0 {
		return nil, model.NewValidationError(map[string]string{"video_duration": "0以上の秒数を指定してください"})
	}
	var resources []model.Resource
	if in.Resources != nil {
		if resources, err = s.sanitizeResources(in.Resources); err != nil {
			return nil, err
		}
	}

	var newURL string
	if in.VideoURL != nil {
		newURL = *in.VideoURL
	}
	videoURL, uploaded, err := s.resolveVideo(ctx, in.Video, newURL)
	if err != nil {
		return nil, err
	}

	previousVideo := lesson.VideoURL
	if videoURL != "" {
		lesson.VideoURL = videoURL
	}
	if in.Title != nil {
		lesson.Title = s.sanitizer.Plain(*in.Title)
	}
	if in.Description != nil {
		lesson.Description = s.sanitizer.Rich(*in.Description)
	}
	if in.OrderIndex != nil {
		lesson.OrderIndex = *in.OrderIndex
	}
	if in.VideoDuration != nil {
		lesson.VideoDuration = *in.VideoDuration
	}
	if in.Transcript != nil {
		lesson.Transcript = s.sanitizer.Plain(*in.Transcript)
	}
	if in.Resources != nil {
		lesson.Resources = resources
	}
	lesson.UpdatedAt = s.now()

	if err := s.lessons.Update(ctx, lesson); err != nil {
		if uploaded {
			s.discardMedia(ctx, videoURL)
		}
		if repository.IsConstraint(err, repository.ConstraintLessonOrder) {
			return nil, model.NewDuplicateOrderIndexError(lesson.OrderIndex)
		}
		if errors.Is(err, repository.ErrCourseNotDraft) {
			return nil, s.draftWriteError(ctx, lesson.CourseID, model.NewLessonNotFoundError(lessonID))
		}
		return nil, fmt.Errorf("レッスンの更新に失敗しました: %w", err)
	}
	if videoURL != "" && previousVideo != videoURL {
		s.discardMedia(ctx, previousVideo)
	}
	if in.VideoDuration != nil {
		if err := s.recomputeDuration(ctx, lesson.CourseID); err != nil {
			return nil, err
		}
	}
	return lesson, nil
}

// DeleteLesson は下書きコースからレッスンを削除する。
func (s *Service) DeleteLesson(ctx context.Context, actor model.Actor, lessonID string) error {
	lesson, err := s.mutableLesson(ctx, actor, lessonID)
	if err != nil {
		return err
	}
	if err := s.lessons.Delete(ctx, lessonID); err != nil {
		if errors.Is(err, repository.ErrCourseNotDraft) {
			return s.draftWriteError(ctx, lesson.CourseID, model.NewLessonNotFoundError(lessonID))
		}
		return fmt.Errorf("レッスンの削除に失敗しました: %w", err)
	}
	s.discardMedia(ctx, lesson.VideoURL)

	slog.Info("レッスン削除", "lessonID", lessonID, "courseID", lesson.CourseID)
	return s.recomputeDuration(ctx, lesson.CourseID)
}

// RegenerateTranscript はレッスンのトランスクリプトを再生成する。
func (s *Service) RegenerateTranscript(ctx context.Context, actor model.Actor, lessonID string) (*model.Lesson, error) {
	lesson, err := s.mutableLesson(ctx, actor, lessonID)
	if err != nil {
		return nil, err
	}

	lesson.Transcript = s.describer.Describe(ctx, lesson.VideoURL, lesson.VideoDuration)
	lesson.UpdatedAt = s.now()
	if err := s.lessons.Update(ctx, lesson); err != nil {
		if errors.Is(err, repository.ErrCourseNotDraft) {
			return nil, s.draftWriteError(ctx, lesson.CourseID, model.NewLessonNotFoundError(lessonID))
		}
		return nil, fmt.Errorf("トランスクリプトの保存に失敗しました: %w", err)
	}
	return lesson, nil
}

// mutableLesson は変更対象のレッスンを取得し、所属コースが変更可能かを確認する。
func (s *Service) mutableLesson(ctx context.Context, actor model.Actor, lessonID string) (*model.Lesson, error) {
	if actor.Role != model.RoleCreator {
		return nil, model.NewRoleRequiredError(model.RoleCreator)
	}
	lesson, err := s.lessons.FindByID(ctx, lessonID)
	if err != nil {
		return nil, fmt.Errorf("レッスンの取得に失敗しました: %w", err)
	}
	if lesson == nil {
		return nil, model.NewLessonNotFoundError(lessonID)
	}
	if _, err := s.mutableCourse(ctx, actor, lesson.CourseID); err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Kind == model.KindNotFound {
			return nil, model.NewLessonNotFoundError(lessonID)
		}
		return nil, err
	}
	return lesson, nil
}

// canViewLessons はレッスン参照可否を判定する。CanViewに加えて受講者を許可する。
func (s *Service) canViewLessons(ctx context.Context, actor *model.Actor, course *model.Course) (bool, error) {
	if course == nil {
		return false, nil
	}
	if CanView(actor, course) {
		return true, nil
	}
	if actor == nil {
		return false, nil
	}
	enrollment, err := s.enrollments.FindByUserAndCourse(ctx, actor.UserID, course.ID)
	if err != nil {
		return false, fmt.Errorf("受講の確認に失敗しました: %w", err)
	}
	return enrollment != nil, nil
}

// resolveVideo はアップロードを保存するか外部URLを検証し、動画ロケーターを返す。
// uploadedはこの呼び出しで新たに保存したかどうか。
func (s *Service) resolveVideo(ctx context.Context, upload *Upload, externalURL string) (locator string, uploaded bool, err error) {
	if upload != nil {
		locator, err = s.store.Put(ctx, media.KindVideo, upload.Filename, upload.Body)
		if err != nil {
			return "", false, err
		}
		return locator, true, nil
	}
	if externalURL == "" {
		return "", false, nil
	}
	if err := s.guard.ValidateURL(externalURL); err != nil {
		return "", false, model.NewValidationError(map[string]string{"video_url": err.Error()})
	}
	return externalURL, false, nil
}

// recomputeDuration はコースの合計時間（分）をレッスンの動画時間から再計算する。
func (s *Service) recomputeDuration(ctx context.Context, courseID string) error {
	lessons, err := s.lessons.ListByCourse(ctx, courseID)
	if err != nil {
		return fmt.Errorf("レッスン一覧の取得に失敗しました: %w", err)
	}
	if err := s.courses.UpdateDuration(ctx, courseID, DurationMinutes(lessons)); err != nil {
		return fmt.Errorf("コース時間の更新に失敗しました: %w", err)
	}
	return nil
}

// DurationMinutes はレッスン動画時間の合計を分に切り上げて返す。
func DurationMinutes(lessons []*model.Lesson) int {
	total := 0
	for _, l := range lessons {
		total += l.VideoDuration
	}
	return (total + 59) / 60
}

// sanitizeResources は添付リソースのタイトルを無害化し、URLをhttp(s)の安全なものに限定する。
func (s *Service) sanitizeResources(in []model.Resource) ([]model.Resource, error) {
	out := make([]model.Resource, 0, len(in))
	for i, r := range in {
		if err := s.guard.ValidateURL(r.URL); err != nil {
			return nil, model.NewValidationError(map[string]string{
				fmt.Sprintf("resources[%d].url", i): err.Error(),
			})
		}
		out = append(out, model.Resource{
			Title: s.sanitizer.Plain(r.Title),
			URL:   r.URL,
			Type:  r.Type,
		})
	}
	return out, nil
}

package enrollment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/microcourse/internal/metrics"
	"github.com/hitoshi/microcourse/internal/model"
	"github.com/hitoshi/microcourse/internal/repository/memrepo"
)

// --- モック ---

type countingMetrics struct {
	metrics.Nop
	mu          sync.Mutex
	enrollments int
}

func (m *countingMetrics) RecordEnrollment(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enrollments++
}

// failingCounter はAddEnrollmentCountだけが失敗するCourseRepository。
type failingCounter struct {
	*memrepo.CourseRepo
}

func (failingCounter) AddEnrollmentCount(context.Context, string, int) error {
	return errors.New("counter unavailable")
}

// --- テストヘルパー ---

var learner = model.Actor{UserID: "learner-1", Role: model.RoleLearner}

func seedCourse(t *testing.T, repo *memrepo.CourseRepo, id string, status model.CourseStatus) {
	t.Helper()
	c := &model.Course{ID: id, Title: "Course " + id, CreatorID: "creator-1", Status: status, CreatedAt: time.Now()}
	if status == model.CourseStatusPublished {
		now, by := time.Now(), "admin-1"
		c.PublishedAt, c.PublishedBy = &now, &by
	}
	if err := repo.Create(context.Background(), c); err != nil {
		t.Fatalf("seed course: %v", err)
	}
}

func newTestService(t *testing.T) (*Service, memrepo.Repositories, *countingMetrics) {
	t.Helper()
	_, repos := memrepo.NewRepositories()
	m := &countingMetrics{}
	return NewService(repos.Courses, repos.Enrollments, m), repos, m
}

// 2回目の受講登録がConflictになり、受講は1件だけ残ることを検証
func TestEnroll_TwiceYieldsConflict(t *testing.T) {
	svc, repos, m := newTestService(t)
	ctx := context.Background()
	seedCourse(t, repos.Courses, "c1", model.CourseStatusPublished)

	e, err := svc.Enroll(ctx, learner, "c1")
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	if e.Progress != 0 || e.IsCompleted || e.CompletedAt != nil {
		t.Errorf("new enrollment = %+v", e)
	}

	if _, err := svc.Enroll(ctx, learner, "c1"); !model.IsKind(err, model.KindConflict) {
		t.Errorf("second Enroll() error = %v, want Conflict", err)
	}

	list, _ := repos.Enrollments.ListByUserWithCourse(ctx, learner.UserID)
	if len(list) != 1 {
		t.Errorf("enrollments = %d, want 1", len(list))
	}
	course, _ := repos.Courses.FindByID(ctx, "c1")
	if course.EnrollmentCount != 1 {
		t.Errorf("EnrollmentCount = %d, want 1", course.EnrollmentCount)
	}
	if m.enrollments != 1 {
		t.Errorf("metrics enrollments = %d, want 1", m.enrollments)
	}
}

// 同時の受講登録でも成功は1件のみであることを検証
func TestEnroll_ConcurrentExactlyOneSuccess(t *testing.T) {
	svc, repos, _ := newTestService(t)
	ctx := context.Background()
	seedCourse(t, repos.Courses, "c1", model.CourseStatusPublished)

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Enroll(ctx, learner, "c1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	success, conflicts := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			success++
		case model.IsKind(err, model.KindConflict):
			conflicts++
		default:
			t.Errorf("unexpected error = %v", err)
		}
	}
	if success != 1 || conflicts != n-1 {
		t.Errorf("success = %d conflicts = %d", success, conflicts)
	}
}

func TestEnroll_Preconditions(t *testing.T) {
	svc, repos, _ := newTestService(t)
	ctx := context.Background()
	seedCourse(t, repos.Courses, "draft", model.CourseStatusDraft)
	seedCourse(t, repos.Courses, "pub", model.CourseStatusPublished)

	tests := []struct {
		name     string
		actor    model.Actor
		courseID string
		kind     model.ErrorKind
	}{
		{name: "存在しないコース", actor: learner, courseID: "missing", kind: model.KindNotFound},
		{name: "未公開コース", actor: learner, courseID: "draft", kind: model.KindPreconditionFailed},
		{name: "クリエイター", actor: model.Actor{UserID: "c", Role: model.RoleCreator}, courseID: "pub", kind: model.KindForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Enroll(ctx, tt.actor, tt.courseID); !model.IsKind(err, tt.kind) {
				t.Errorf("Enroll() error = %v, want %s", err, tt.kind)
			}
		})
	}
}

// カウンター更新の失敗が受講登録を失敗させないことを検証
func TestEnroll_CounterFailureIsBestEffort(t *testing.T) {
	_, repos := memrepo.NewRepositories()
	seedCourse(t, repos.Courses, "c1", model.CourseStatusPublished)
	svc := NewService(failingCounter{repos.Courses}, repos.Enrollments, nil)

	if _, err := svc.Enroll(context.Background(), learner, "c1"); err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
}

func TestStatusAndListMine(t *testing.T) {
	svc, repos, _ := newTestService(t)
	ctx := context.Background()
	seedCourse(t, repos.Courses, "c1", model.CourseStatusPublished)
	seedCourse(t, repos.Courses, "c2", model.CourseStatusPublished)

	st, err := svc.Status(ctx, learner, "c1")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Enrolled || st.Enrollment != nil {
		t.Errorf("status before enroll = %+v", st)
	}

	_, _ = svc.Enroll(ctx, learner, "c1")
	st, _ = svc.Status(ctx, learner, "c1")
	if !st.Enrolled || st.Enrollment == nil || st.Enrollment.CourseID != "c1" {
		t.Errorf("status after enroll = %+v", st)
	}

	list, err := svc.ListMine(ctx, learner)
	if err != nil {
		t.Fatalf("ListMine() error = %v", err)
	}
	if len(list) != 1 || list[0].Course.Title != "Course c1" {
		t.Errorf("ListMine() = %+v", list)
	}
}

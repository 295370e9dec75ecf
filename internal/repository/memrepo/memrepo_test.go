package memrepo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/microcourse/internal/model"
	"github.com/hitoshi/microcourse/internal/repository"
)

// 同一ペアの受講を同時に作成しても1件だけ成功することを検証
func TestEnrollmentRepo_Create_ConcurrentDuplicate(t *testing.T) {
	_, repos := NewRepositories()
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repos.Enrollments.Create(ctx, &model.Enrollment{
				ID:       "enr-" + string(rune('a'+i)),
				UserID:   "user-1",
				CourseID: "course-1",
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case !repository.IsConstraint(err, repository.ConstraintEnrollmentPair):
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("succeeded = %d, want 1", succeeded)
	}
}

// 同一コース内でorder_indexが重複するとConstraintErrorになることを検証
func TestLessonRepo_OrderIndexUnique(t *testing.T) {
	_, repos := NewRepositories()
	ctx := context.Background()
	_ = repos.Courses.Create(ctx, &model.Course{ID: "c1", Status: model.CourseStatusDraft})
	_ = repos.Courses.Create(ctx, &model.Course{ID: "c2", Status: model.CourseStatusDraft})

	if err := repos.Lessons.Create(ctx, &model.Lesson{ID: "l1", CourseID: "c1", OrderIndex: 1}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	err := repos.Lessons.Create(ctx, &model.Lesson{ID: "l2", CourseID: "c1", OrderIndex: 1})
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	// 別コースなら同じorder_indexを使える
	if err := repos.Lessons.Create(ctx, &model.Lesson{ID: "l3", CourseID: "c2", OrderIndex: 1}); err != nil {
		t.Errorf("Create() in another course error = %v", err)
	}
	// 自身の更新は重複扱いしない
	if err := repos.Lessons.Update(ctx, &model.Lesson{ID: "l1", CourseID: "c1", OrderIndex: 1, Title: "renamed"}); err != nil {
		t.Errorf("Update() error = %v", err)
	}
}

// 修了証のペア重複とシリアル重複が別の制約として報告されることを検証
func TestCertificateRepo_Constraints(t *testing.T) {
	_, repos := NewRepositories()
	ctx := context.Background()

	base := &model.Certificate{ID: "cert-1", UserID: "u1", CourseID: "c1", Serial: "abc"}
	if err := repos.Certificates.Create(ctx, base); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	err := repos.Certificates.Create(ctx, &model.Certificate{ID: "cert-2", UserID: "u1", CourseID: "c1", Serial: "def"})
	if !repository.IsConstraint(err, repository.ConstraintCertificatePair) {
		t.Errorf("expected pair constraint, got %v", err)
	}

	err = repos.Certificates.Create(ctx, &model.Certificate{ID: "cert-3", UserID: "u2", CourseID: "c1", Serial: "abc"})
	if !repository.IsConstraint(err, repository.ConstraintCertificateSerial) {
		t.Errorf("expected serial constraint, got %v", err)
	}
}

// レッスン進捗のUPSERTが0の時間値で既存値を後退させないことを検証
func TestProgressRepo_Upsert_DoesNotRegress(t *testing.T) {
	_, repos := NewRepositories()
	ctx := context.Background()
	now := time.Now()

	first, err := repos.Progress.Upsert(ctx, &model.LessonProgress{
		ID: "p1", UserID: "u1", LessonID: "l1", CourseID: "c1",
		IsCompleted: true, CompletedAt: &now, TimeSpent: 120, LastPosition: 90, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if first.TimeSpent != 120 || first.LastPosition != 90 {
		t.Fatalf("unexpected first row: %+v", first)
	}

	second, err := repos.Progress.Upsert(ctx, &model.LessonProgress{
		ID: "p-ignored", UserID: "u1", LessonID: "l1", CourseID: "c1",
		IsCompleted: true, CompletedAt: &now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if second.ID != "p1" {
		t.Errorf("second.ID = %q, want p1", second.ID)
	}
	if second.TimeSpent != 120 || second.LastPosition != 90 {
		t.Errorf("values regressed: time_spent=%d last_position=%d", second.TimeSpent, second.LastPosition)
	}

	third, _ := repos.Progress.Upsert(ctx, &model.LessonProgress{
		ID: "p-ignored", UserID: "u1", LessonID: "l1", CourseID: "c1",
		IsCompleted: true, CompletedAt: &now, TimeSpent: 300, UpdatedAt: now,
	})
	if third.TimeSpent != 300 || third.LastPosition != 90 {
		t.Errorf("unexpected merge: time_spent=%d last_position=%d", third.TimeSpent, third.LastPosition)
	}

	list, _ := repos.Progress.ListByUserAndCourse(ctx, "u1", "c1")
	if len(list) != 1 {
		t.Errorf("len(list) = %d, want 1", len(list))
	}
}

// 受講者数カウンタが0未満にならないことを検証
func TestCourseRepo_AddEnrollmentCount_FloorsAtZero(t *testing.T) {
	_, repos := NewRepositories()
	ctx := context.Background()
	_ = repos.Courses.Create(ctx, &model.Course{ID: "c1", Status: model.CourseStatusPublished})

	_ = repos.Courses.AddEnrollmentCount(ctx, "c1", 1)
	_ = repos.Courses.AddEnrollmentCount(ctx, "c1", -3)

	c, _ := repos.Courses.FindByID(ctx, "c1")
	if c.EnrollmentCount != 0 {
		t.Errorf("EnrollmentCount = %d, want 0", c.EnrollmentCount)
	}
}

// 状態遷移がfromと一致する場合のみ成功することを検証
func TestCourseRepo_TransitionStatus_CompareAndSet(t *testing.T) {
	_, repos := NewRepositories()
	ctx := context.Background()
	_ = repos.Courses.Create(ctx, &model.Course{ID: "c1", Status: model.CourseStatusPending})

	now := time.Now()
	admin := "admin-1"
	ok, err := repos.Courses.TransitionStatus(ctx, "c1", model.CourseStatusPending, model.CourseStatusPublished, &now, &admin)
	if err != nil || !ok {
		t.Fatalf("TransitionStatus() = %v, %v; want true, nil", ok, err)
	}
	ok, _ = repos.Courses.TransitionStatus(ctx, "c1", model.CourseStatusPending, model.CourseStatusRejected, nil, nil)
	if ok {
		t.Error("second transition from pending must fail")
	}

	c, _ := repos.Courses.FindByID(ctx, "c1")
	if c.Status != model.CourseStatusPublished || c.PublishedBy == nil || *c.PublishedBy != admin {
		t.Errorf("unexpected course state: %+v", c)
	}
}

// コース削除でレッスンもCASCADE削除されることを検証
func TestCourseRepo_Delete_CascadesLessons(t *testing.T) {
	_, repos := NewRepositories()
	ctx := context.Background()
	_ = repos.Courses.Create(ctx, &model.Course{ID: "c1", Status: model.CourseStatusDraft})
	_ = repos.Lessons.Create(ctx, &model.Lesson{ID: "l1", CourseID: "c1", OrderIndex: 1})
	_ = repos.Lessons.Create(ctx, &model.Lesson{ID: "l2", CourseID: "c1", OrderIndex: 2})

	if err := repos.Courses.Delete(ctx, "c1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	n, _ := repos.Lessons.CountByCourse(ctx, "c1")
	if n != 0 {
		t.Errorf("lessons left = %d, want 0", n)
	}
}

// 可視性フィルタが公開済みと自分のコースを返すことを検証
func TestCourseRepo_List_VisibilityFilter(t *testing.T) {
	_, repos := NewRepositories()
	ctx := context.Background()
	base := time.Now()
	_ = repos.Courses.Create(ctx, &model.Course{ID: "pub", CreatorID: "other", Status: model.CourseStatusPublished, Title: "Go Basics", CreatedAt: base})
	_ = repos.Courses.Create(ctx, &model.Course{ID: "mine", CreatorID: "me", Status: model.CourseStatusDraft, Title: "Draft", CreatedAt: base.Add(time.Minute)})
	_ = repos.Courses.Create(ctx, &model.Course{ID: "hidden", CreatorID: "other", Status: model.CourseStatusPending, Title: "Hidden", CreatedAt: base.Add(2 * time.Minute)})

	list, _ := repos.Courses.List(ctx, model.CourseFilter{
		Statuses:    []model.CourseStatus{model.CourseStatusPublished},
		OrCreatorID: "me",
	})
	if len(list) != 2 {
		t.Fatalf("len(list) = %d, want 2", len(list))
	}
	if list[0].ID != "mine" || list[1].ID != "pub" {
		t.Errorf("order = [%s %s], want [mine pub]", list[0].ID, list[1].ID)
	}

	found, _ := repos.Courses.List(ctx, model.CourseFilter{Search: "basics"})
	if len(found) != 1 || found[0].ID != "pub" {
		t.Errorf("search result = %v, want [pub]", found)
	}
}

// 返却値を書き換えても保存済みデータに影響しないことを検証
func TestCourseRepo_FindByID_ReturnsCopy(t *testing.T) {
	_, repos := NewRepositories()
	ctx := context.Background()
	_ = repos.Courses.Create(ctx, &model.Course{ID: "c1", Title: "Original", Tags: []string{"go"}})

	c, _ := repos.Courses.FindByID(ctx, "c1")
	c.Title = "Changed"
	c.Tags[0] = "rust"

	again, _ := repos.Courses.FindByID(ctx, "c1")
	if again.Title != "Original" || again.Tags[0] != "go" {
		t.Errorf("stored course mutated: %+v", again)
	}
}

// 下書き以外のコースには内容とレッスンを書き込めないことを検証
func TestDraftOnlyWrites(t *testing.T) {
	statuses := []model.CourseStatus{
		model.CourseStatusPending,
		model.CourseStatusPublished,
		model.CourseStatusRejected,
	}

	for _, status := range statuses {
		t.Run(string(status), func(t *testing.T) {
			_, repos := NewRepositories()
			ctx := context.Background()
			_ = repos.Courses.Create(ctx, &model.Course{ID: "c1", Title: "Go", Status: model.CourseStatusDraft})
			_ = repos.Lessons.Create(ctx, &model.Lesson{ID: "l1", CourseID: "c1", OrderIndex: 1})
			if ok, _ := repos.Courses.TransitionStatus(ctx, "c1", model.CourseStatusDraft, status, nil, nil); !ok {
				t.Fatal("TransitionStatus() = false")
			}

			checks := map[string]error{
				"Lessons.Create":        repos.Lessons.Create(ctx, &model.Lesson{ID: "l2", CourseID: "c1", OrderIndex: 2}),
				"Lessons.Update":        repos.Lessons.Update(ctx, &model.Lesson{ID: "l1", CourseID: "c1", OrderIndex: 1, Title: "renamed"}),
				"Lessons.Delete":        repos.Lessons.Delete(ctx, "l1"),
				"Courses.UpdateContent": repos.Courses.UpdateContent(ctx, &model.Course{ID: "c1", Title: "Renamed"}),
				"Courses.Delete":        repos.Courses.Delete(ctx, "c1"),
			}
			for name, err := range checks {
				if !errors.Is(err, repository.ErrCourseNotDraft) {
					t.Errorf("%s error = %v, want ErrCourseNotDraft", name, err)
				}
			}

			n, _ := repos.Lessons.CountByCourse(ctx, "c1")
			c, _ := repos.Courses.FindByID(ctx, "c1")
			if n != 1 || c == nil || c.Title != "Go" {
				t.Errorf("lessons = %d, course = %+v, want untouched", n, c)
			}
		})
	}
}

// 存在しないコースへのレッスン作成も拒否されることを検証
func TestLessonRepo_Create_UnknownCourse(t *testing.T) {
	_, repos := NewRepositories()
	err := repos.Lessons.Create(context.Background(), &model.Lesson{ID: "l1", CourseID: "missing", OrderIndex: 1})
	if !errors.Is(err, repository.ErrCourseNotDraft) {
		t.Errorf("error = %v, want ErrCourseNotDraft", err)
	}
}

package progress

import (
	"testing"

	"github.com/hitoshi/microcourse/internal/model"
)

func lessons(ids ...string) []*model.Lesson {
	out := make([]*model.Lesson, 0, len(ids))
	for _, id := range ids {
		out = append(out, &model.Lesson{ID: id})
	}
	return out
}

func done(lessonID string, timeSpent int) *model.LessonProgress {
	return &model.LessonProgress{LessonID: lessonID, IsCompleted: true, TimeSpent: timeSpent}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name          string
		lessons       []*model.Lesson
		progress      []*model.LessonProgress
		wantPercent   int
		wantCompleted bool
		wantDone      int
	}{
		{name: "レッスン0件は0%", lessons: nil, progress: nil, wantPercent: 0},
		{name: "未着手", lessons: lessons("a", "b"), wantPercent: 0},
		{name: "半分", lessons: lessons("a", "b"), progress: []*model.LessonProgress{done("a", 0)}, wantPercent: 50, wantDone: 1},
		{name: "全完了", lessons: lessons("a", "b"), progress: []*model.LessonProgress{done("b", 0), done("a", 0)}, wantPercent: 100, wantCompleted: true, wantDone: 2},
		{name: "1/3は33%", lessons: lessons("a", "b", "c"), progress: []*model.LessonProgress{done("a", 0)}, wantPercent: 33, wantDone: 1},
		{name: "2/3は67%", lessons: lessons("a", "b", "c"), progress: []*model.LessonProgress{done("a", 0), done("b", 0)}, wantPercent: 67, wantDone: 2},
		{name: "削除済みレッスンの進捗は無視", lessons: lessons("a"), progress: []*model.LessonProgress{done("gone", 0)}, wantPercent: 0},
		{name: "未完了の進捗は数えない", lessons: lessons("a"), progress: []*model.LessonProgress{{LessonID: "a"}}, wantPercent: 0},
		{name: "重複レコードは1件として数える", lessons: lessons("a", "b"), progress: []*model.LessonProgress{done("a", 0), done("a", 0)}, wantPercent: 50, wantDone: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Aggregate(tt.lessons, tt.progress)
			if s.Percentage != tt.wantPercent {
				t.Errorf("Percentage = %d, want %d", s.Percentage, tt.wantPercent)
			}
			if s.IsCompleted != tt.wantCompleted {
				t.Errorf("IsCompleted = %v, want %v", s.IsCompleted, tt.wantCompleted)
			}
			if s.CompletedLessons != tt.wantDone {
				t.Errorf("CompletedLessons = %d, want %d", s.CompletedLessons, tt.wantDone)
			}
			if s.TotalLessons != len(tt.lessons) {
				t.Errorf("TotalLessons = %d, want %d", s.TotalLessons, len(tt.lessons))
			}
		})
	}
}

// 完了の順序によらず同じ結果になることを検証
func TestAggregate_OrderIndependent(t *testing.T) {
	ls := lessons("a", "b", "c", "d")
	orders := [][]string{{"a", "b", "c", "d"}, {"d", "c", "b", "a"}, {"c", "a", "d", "b"}}
	for _, order := range orders {
		var ps []*model.LessonProgress
		for _, id := range order {
			ps = append(ps, done(id, 10))
		}
		s := Aggregate(ls, ps)
		if s.Percentage != 100 || !s.IsCompleted || s.TimeSpent != 40 {
			t.Errorf("order %v: %+v", order, s)
		}
	}
}

// Package progress はレッスン進捗の記録と受講進捗の集計を提供する。
package progress

import (
	"math"

	"github.com/hitoshi/microcourse/internal/model"
)

// Summary はコース単位の進捗集計結果。
type Summary struct {
	TotalLessons     int
	CompletedLessons int
	Percentage       int
	IsCompleted      bool
	TimeSpent        int // 秒
}

// Aggregate はコースの全レッスンとレッスン進捗から進捗率を算出する。
// 受講者が未着手のレッスンも分母に含める。レッスンが0件の場合は0%。
// 現在コースに属さないレッスンの進捗は無視する。
func Aggregate(lessons []*model.Lesson, progress []*model.LessonProgress) Summary {
	inCourse := make(map[string]bool, len(lessons))
	for _, l := range lessons {
		inCourse[l.ID] = true
	}

	s := Summary{TotalLessons: len(inCourse)}
	counted := make(map[string]bool, len(progress))
	for _, p := range progress {
		if !inCourse[p.LessonID] || counted[p.LessonID] {
			continue
		}
		counted[p.LessonID] = true
		s.TimeSpent += p.TimeSpent
		if p.IsCompleted {
			s.CompletedLessons++
		}
	}

	if s.TotalLessons > 0 {
		s.Percentage = int(math.Round(100 * float64(s.CompletedLessons) / float64(s.TotalLessons)))
	}
	s.IsCompleted = s.Percentage == 100
	return s
}

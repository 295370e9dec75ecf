// Package catalog はコース・レッスンのカタログと公開ステータスの状態遷移を提供する。
package catalog

import "github.com/hitoshi/microcourse/internal/model"

// CanMutate は実行者がコースの内容（レッスン構成を含む）を変更できる関係にあるかを返す。
// ステータスによる制限は含まない。
func CanMutate(actor model.Actor, course *model.Course) bool {
	return course != nil && actor.UserID != "" && actor.UserID == course.CreatorID
}

// CanView は実行者がコースを参照できるかを返す。actorがnilの場合は未ログイン。
// 公開済みは誰でも、それ以外は作成者と管理者のみ参照できる。
func CanView(actor *model.Actor, course *model.Course) bool {
	if course == nil {
		return false
	}
	if course.Status == model.CourseStatusPublished {
		return true
	}
	if actor == nil {
		return false
	}
	return actor.IsAdmin() || CanMutate(*actor, course)
}

// visibilityFilter は実行者に応じたコース一覧の可視範囲を返す。
func visibilityFilter(actor *model.Actor) model.CourseFilter {
	switch {
	case actor == nil:
		return model.CourseFilter{Statuses: []model.CourseStatus{model.CourseStatusPublished}}
	case actor.IsAdmin():
		return model.CourseFilter{}
	case actor.Role == model.RoleCreator:
		return model.CourseFilter{
			Statuses:    []model.CourseStatus{model.CourseStatusPublished},
			OrCreatorID: actor.UserID,
		}
	default:
		return model.CourseFilter{Statuses: []model.CourseStatus{model.CourseStatusPublished}}
	}
}

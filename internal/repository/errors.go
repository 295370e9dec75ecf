package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrDuplicate は一意性制約違反を表す。
var ErrDuplicate = errors.New("duplicate key")

// ErrCourseNotDraft はコースが下書きでない（または存在しない）ため内容を書き込めなかったことを表す。
var ErrCourseNotDraft = errors.New("course is not a draft")

// 一意性制約名。マイグレーションの制約名と一致させる。
const (
	ConstraintUserEmail         = "users_email_key"
	ConstraintLessonOrder       = "lessons_course_order_key"
	ConstraintEnrollmentPair    = "enrollments_user_course_key"
	ConstraintProgressPair      = "lesson_progress_user_lesson_key"
	ConstraintCertificatePair   = "certificates_user_course_key"
	ConstraintCertificateSerial = "certificates_serial_key"
)

// ConstraintError はどの一意性制約に違反したかを保持する。
// errors.Is(err, ErrDuplicate) でtrueになる。
type ConstraintError struct {
	Constraint string
}

// Error はerrorインターフェースを実装する。
func (e *ConstraintError) Error() string {
	return fmt.Sprintf("unique constraint violated: %s", e.Constraint)
}

// Unwrap はErrDuplicateを返す。
func (e *ConstraintError) Unwrap() error {
	return ErrDuplicate
}

// IsConstraint はerrが指定制約の違反かどうかを返す。
func IsConstraint(err error, constraint string) bool {
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return ce.Constraint == constraint
	}
	return false
}

// requireDraftWrite は下書き条件付きの書き込みが1行以上に作用したかを確認する。
// 作用しなかった場合はErrCourseNotDraftを返す。
func requireDraftWrite(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	if n == 0 {
		return ErrCourseNotDraft
	}
	return nil
}

// uniqueViolation はPostgreSQLのunique_violation (23505) をConstraintErrorに変換する。
// それ以外のエラーはそのまま返す。
func uniqueViolation(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return &ConstraintError{Constraint: pqErr.Constraint}
	}
	return err
}

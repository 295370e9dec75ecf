package model

import (
	"errors"
	"fmt"
)

// ErrorKind はエラーの分類を表す。ハンドラー層はKindからHTTPステータスを決定する。
type ErrorKind string

const (
	// KindNotFound は対象が存在しない、または呼び出し元から見えないことを示す。
	// 権限のない呼び出し元に存在を漏らさないため、両者を区別しない。
	KindNotFound ErrorKind = "not_found"
	// KindForbidden は認証済みだが必要な関係・ロールを持たないことを示す。
	KindForbidden ErrorKind = "forbidden"
	// KindPreconditionFailed は対象は正しいが状態が操作を許さないことを示す。
	KindPreconditionFailed ErrorKind = "precondition_failed"
	// KindConflict は一意性制約違反を示す。
	KindConflict ErrorKind = "conflict"
	// KindValidation は入力の形式不正を示す。
	KindValidation ErrorKind = "validation"
	// KindUnauthorized は未認証を示す。
	KindUnauthorized ErrorKind = "unauthorized"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Kind     ErrorKind
	Code     string            // エラーコード
	Message  string            // エラーメッセージ
	Category string            // カテゴリ: auth, validation, course, lesson, enrollment, certificate, system
	Action   string            // ユーザー向け対処方法
	Details  map[string]string // フィールド単位の検証エラー
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// IsKind はerrがAPIErrorであり、指定Kindを持つかどうかを返す。
func IsKind(err error, kind ErrorKind) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind == kind
	}
	return false
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	ErrCodeEmailTaken            = "EMAIL_TAKEN"
	ErrCodeRoleRequired          = "ROLE_REQUIRED"
	ErrCodeUserNotFound          = "USER_NOT_FOUND"
	ErrCodeApplicationPending    = "APPLICATION_PENDING"
	ErrCodeAlreadyCreator        = "ALREADY_CREATOR"
	ErrCodeApplicationNotPending = "APPLICATION_NOT_PENDING"
	ErrCodeInvalidRequest        = "INVALID_REQUEST"
	ErrCodeValidationFailed      = "VALIDATION_FAILED"
	ErrCodeInvalidAction         = "INVALID_ACTION"
	ErrCodeInvalidMedia          = "INVALID_MEDIA"
	ErrCodeCourseNotFound        = "COURSE_NOT_FOUND"
	ErrCodeNotCourseOwner        = "NOT_COURSE_OWNER"
	ErrCodeCourseNotDraft        = "COURSE_NOT_DRAFT"
	ErrCodeCourseHasNoLessons    = "COURSE_HAS_NO_LESSONS"
	ErrCodeCourseNotPending      = "COURSE_NOT_PENDING"
	ErrCodeCourseNotPublished    = "COURSE_NOT_PUBLISHED"
	ErrCodeLessonNotFound        = "LESSON_NOT_FOUND"
	ErrCodeDuplicateOrderIndex   = "DUPLICATE_ORDER_INDEX"
	ErrCodeAlreadyEnrolled       = "ALREADY_ENROLLED"
	ErrCodeNotEnrolled           = "NOT_ENROLLED"
	ErrCodeCourseNotCompleted    = "COURSE_NOT_COMPLETED"
	ErrCodeCertificateNotFound   = "CERTIFICATE_NOT_FOUND"
	ErrCodeSerialCollision       = "SERIAL_COLLISION"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Kind:     KindUnauthorized,
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Kind:     KindUnauthorized,
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewEmailTakenError は登録済みメールアドレスのエラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeEmailTaken,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログインするか、別のメールアドレスを使用してください。",
	}
}

// NewRoleRequiredError は必要なロールを持たない場合のエラーを生成する。
func NewRoleRequiredError(roles ...Role) *APIError {
	return &APIError{
		Kind:     KindForbidden,
		Code:     ErrCodeRoleRequired,
		Message:  fmt.Sprintf("この操作には次のロールが必要です: %v", roles),
		Category: "auth",
		Action:   "権限を持つアカウントでログインしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewApplicationPendingError は審査中の申請が既にある場合のエラーを生成する。
func NewApplicationPendingError() *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeApplicationPending,
		Message:  "審査中のクリエイター申請があります。",
		Category: "auth",
		Action:   "審査結果をお待ちください。",
	}
}

// NewAlreadyCreatorError は既にクリエイターである場合のエラーを生成する。
func NewAlreadyCreatorError() *APIError {
	return &APIError{
		Kind:     KindPreconditionFailed,
		Code:     ErrCodeAlreadyCreator,
		Message:  "既にクリエイターとして承認されています。",
		Category: "auth",
		Action:   "クリエイターダッシュボードからコースを作成してください。",
	}
}

// NewApplicationNotPendingError は審査対象の申請がない場合のエラーを生成する。
func NewApplicationNotPendingError() *APIError {
	return &APIError{
		Kind:     KindPreconditionFailed,
		Code:     ErrCodeApplicationNotPending,
		Message:  "審査待ちの申請ではありません。",
		Category: "auth",
		Action:   "申請一覧を再読み込みしてください。",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Kind:     KindValidation,
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しい形式でリクエストしてください。",
	}
}

// NewValidationError はフィールド単位の検証エラーを生成する。
func NewValidationError(details map[string]string) *APIError {
	return &APIError{
		Kind:     KindValidation,
		Code:     ErrCodeValidationFailed,
		Message:  "入力内容に誤りがあります。",
		Category: "validation",
		Action:   "各項目のエラーを確認して修正してください。",
		Details:  details,
	}
}

// NewInvalidActionError は審査アクションが不正な場合のエラーを生成する。
func NewInvalidActionError(action string, allowed ...string) *APIError {
	return &APIError{
		Kind:     KindValidation,
		Code:     ErrCodeInvalidAction,
		Message:  fmt.Sprintf("無効なアクションです: %s", action),
		Category: "validation",
		Action:   fmt.Sprintf("actionには %v のいずれかを指定してください。", allowed),
	}
}

// NewInvalidMediaError はアップロードファイルが不正な場合のエラーを生成する。
func NewInvalidMediaError(reason string) *APIError {
	return &APIError{
		Kind:     KindValidation,
		Code:     ErrCodeInvalidMedia,
		Message:  fmt.Sprintf("アップロードされたファイルを受け付けられません: %s", reason),
		Category: "validation",
		Action:   "ファイルの種類とサイズを確認してください。",
	}
}

// NewCourseNotFoundError はコース未検出エラーを生成する。
func NewCourseNotFoundError(courseID string) *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeCourseNotFound,
		Message:  fmt.Sprintf("指定されたコースが見つかりません: %s", courseID),
		Category: "course",
		Action:   "コースIDを確認してください。",
	}
}

// NewNotCourseOwnerError はコースの所有者でない場合のエラーを生成する。
func NewNotCourseOwnerError() *APIError {
	return &APIError{
		Kind:     KindForbidden,
		Code:     ErrCodeNotCourseOwner,
		Message:  "このコースを変更する権限がありません。",
		Category: "course",
		Action:   "自分が作成したコースのみ変更できます。",
	}
}

// NewCourseNotDraftError は下書き以外のコースを変更しようとした場合のエラーを生成する。
func NewCourseNotDraftError(status CourseStatus) *APIError {
	return &APIError{
		Kind:     KindPreconditionFailed,
		Code:     ErrCodeCourseNotDraft,
		Message:  fmt.Sprintf("下書き状態のコースのみ変更できます（現在: %s）。", status),
		Category: "course",
		Action:   "下書きのコースに対して操作してください。",
	}
}

// NewCourseHasNoLessonsError はレッスンのないコースを審査に出そうとした場合のエラーを生成する。
func NewCourseHasNoLessonsError() *APIError {
	return &APIError{
		Kind:     KindPreconditionFailed,
		Code:     ErrCodeCourseHasNoLessons,
		Message:  "審査に提出するには少なくとも1つのレッスンが必要です。",
		Category: "course",
		Action:   "レッスンを追加してから提出してください。",
	}
}

// NewCourseNotPendingError は審査待ちでないコースを審査しようとした場合のエラーを生成する。
func NewCourseNotPendingError() *APIError {
	return &APIError{
		Kind:     KindPreconditionFailed,
		Code:     ErrCodeCourseNotPending,
		Message:  "コースは審査待ちではありません。",
		Category: "course",
		Action:   "審査待ち一覧を再読み込みしてください。",
	}
}

// NewCourseNotPublishedError は公開されていないコースへの操作エラーを生成する。
func NewCourseNotPublishedError() *APIError {
	return &APIError{
		Kind:     KindPreconditionFailed,
		Code:     ErrCodeCourseNotPublished,
		Message:  "コースは公開されていません。",
		Category: "enrollment",
		Action:   "公開済みのコースを選択してください。",
	}
}

// NewLessonNotFoundError はレッスン未検出エラーを生成する。
func NewLessonNotFoundError(lessonID string) *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeLessonNotFound,
		Message:  fmt.Sprintf("指定されたレッスンが見つかりません: %s", lessonID),
		Category: "lesson",
		Action:   "レッスンIDを確認してください。",
	}
}

// NewDuplicateOrderIndexError はレッスンの表示順が重複した場合のエラーを生成する。
func NewDuplicateOrderIndexError(orderIndex int) *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeDuplicateOrderIndex,
		Message:  fmt.Sprintf("表示順 %d は既にこのコースで使用されています。", orderIndex),
		Category: "lesson",
		Action:   "別の表示順を指定してください。",
	}
}

// NewAlreadyEnrolledError は受講登録済みの場合のエラーを生成する。
func NewAlreadyEnrolledError() *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeAlreadyEnrolled,
		Message:  "このコースには既に受講登録しています。",
		Category: "enrollment",
		Action:   "マイコース一覧から受講を続けてください。",
	}
}

// NewNotEnrolledError は受講登録していない場合のエラーを生成する。
func NewNotEnrolledError() *APIError {
	return &APIError{
		Kind:     KindForbidden,
		Code:     ErrCodeNotEnrolled,
		Message:  "このコースに受講登録していません。",
		Category: "enrollment",
		Action:   "コースに受講登録してから操作してください。",
	}
}

// NewCourseNotCompletedError はコース未修了で修了証を要求した場合のエラーを生成する。
func NewCourseNotCompletedError() *APIError {
	return &APIError{
		Kind:     KindPreconditionFailed,
		Code:     ErrCodeCourseNotCompleted,
		Message:  "修了証を発行するにはコースを修了する必要があります。",
		Category: "certificate",
		Action:   "すべてのレッスンを完了してください。",
	}
}

// NewCertificateNotFoundError は修了証未検出エラーを生成する。
func NewCertificateNotFoundError() *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeCertificateNotFound,
		Message:  "修了証が見つかりません。",
		Category: "certificate",
		Action:   "修了証を発行してから再度お試しください。",
	}
}

// NewSerialCollisionError はシリアル番号が衝突した場合のエラーを生成する。
func NewSerialCollisionError() *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeSerialCollision,
		Message:  "修了証のシリアル番号が衝突しました。",
		Category: "certificate",
		Action:   "しばらく待ってから再度発行してください。",
	}
}

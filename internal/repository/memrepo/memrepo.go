// Package memrepo はrepositoryパッケージの各インターフェースをメモリ上で実装する。
// SQLスキーマと同じ一意性制約を持ち、サービス層とルーターのテストで使用する。
package memrepo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/microcourse/internal/model"
	"github.com/hitoshi/microcourse/internal/repository"
)

// DB は全テーブルを保持するインメモリデータベース。
// 1つのミューテックスで全テーブルを保護する。
type DB struct {
	mutex        sync.RWMutex
	users        map[string]*model.User
	courses      map[string]*model.Course
	lessons      map[string]*model.Lesson
	enrollments  map[string]*model.Enrollment
	progress     map[string]*model.LessonProgress
	certificates map[string]*model.Certificate
}

// New は空のDBを生成する。
func New() *DB {
	return &DB{
		users:        make(map[string]*model.User),
		courses:      make(map[string]*model.Course),
		lessons:      make(map[string]*model.Lesson),
		enrollments:  make(map[string]*model.Enrollment),
		progress:     make(map[string]*model.LessonProgress),
		certificates: make(map[string]*model.Certificate),
	}
}

func duplicate(constraint string) error {
	return &repository.ConstraintError{Constraint: constraint}
}

// isDraft はコースが存在し下書きであるかを返す。呼び出し時にロックを保持していること。
func (db *DB) isDraft(courseID string) bool {
	c, ok := db.courses[courseID]
	return ok && c.Status == model.CourseStatusDraft
}

// SeedLesson はコースの状態を確認せずにレッスンを書き込む。
// 公開後のデータ修正など、アプリケーション経由では起こらない状態をテストで再現するために使う。
func (db *DB) SeedLesson(lesson *model.Lesson) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.lessons[lesson.ID] = copyLesson(lesson)
}

// SeedCourse はコースの状態を確認せずにコースを上書きする。
func (db *DB) SeedCourse(course *model.Course) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	cp := *course
	cp.Tags = append([]string(nil), course.Tags...)
	db.courses[course.ID] = &cp
}

// ---------------------------------------------------------------------------
// users
// ---------------------------------------------------------------------------

// UserRepo はUserRepositoryのインメモリ実装。
type UserRepo struct{ db *DB }

// NewUserRepo はUserRepoを生成する。
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

func (r *UserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()
	if u, ok := r.db.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (r *UserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()
	for _, u := range r.db.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *UserRepo) Create(_ context.Context, user *model.User) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()
	for _, u := range r.db.users {
		if u.Email == user.Email {
			return duplicate(repository.ConstraintUserEmail)
		}
	}
	cp := *user
	r.db.users[user.ID] = &cp
	return nil
}

func (r *UserRepo) UpdateApplication(_ context.Context, user *model.User) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()
	u, ok := r.db.users[user.ID]
	if !ok {
		return nil
	}
	u.Role = user.Role
	u.Application = user.Application
	u.UpdatedAt = user.UpdatedAt
	return nil
}

func (r *UserRepo) ListByApplicationStatus(_ context.Context, status model.ApplicationStatus) ([]*model.User, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()
	var users []*model.User
	for _, u := range r.db.users {
		if u.Application.Status == status {
			cp := *u
			users = append(users, &cp)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		ai, aj := users[i].Application.AppliedAt, users[j].Application.AppliedAt
		if ai == nil || aj == nil {
			return ai != nil
		}
		return ai.Before(*aj)
	})
	return users, nil
}

// ---------------------------------------------------------------------------
// courses
// ---------------------------------------------------------------------------

// CourseRepo はCourseRepositoryのインメモリ実装。
type CourseRepo struct{ db *DB }

// NewCourseRepo はCourseRepoを生成する。
func NewCourseRepo(db *DB) *CourseRepo { return &CourseRepo{db: db} }

// copyCourse は呼び出し元がDB内部を書き換えないようにコピーを返す。
// 呼び出し時にロックを保持していること。
func (db *DB) copyCourse(c *model.Course) *model.Course {
	cp := *c
	cp.Tags = append([]string(nil), c.Tags...)
	if u, ok := db.users[c.CreatorID]; ok {
		cp.CreatorName = u.Name
	}
	return &cp
}

func (r *CourseRepo) FindByID(_ context.Context, id string) (*model.Course, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()
	if c, ok := r.db.courses[id]; ok {
		return r.db.copyCourse(c), nil
	}
	return nil, nil
}

func (r *CourseRepo) List(_ context.Context, filter model.CourseFilter) ([]*model.Course, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	search := strings.ToLower(filter.Search)
	var courses []*model.Course
	for _, c := range r.db.courses {
		if len(filter.Statuses) > 0 && !statusIn(c.Status, filter.Statuses) &&
			(filter.OrCreatorID == "" || c.CreatorID != filter.OrCreatorID) {
			continue
		}
		if filter.Category != "" && c.Category != filter.Category {
			continue
		}
		if filter.Difficulty != "" && c.Difficulty != filter.Difficulty {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(c.Title), search) &&
			!strings.Contains(strings.ToLower(c.Description), search) {
			continue
		}
		courses = append(courses, r.db.copyCourse(c))
	}
	sort.Slice(courses, func(i, j int) bool {
		return courses[i].CreatedAt.After(courses[j].CreatedAt)
	})
	return courses, nil
}

func statusIn(s model.CourseStatus, list []model.CourseStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (r *CourseRepo) Create(_ context.Context, course *model.Course) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()
	cp := *course
	cp.Tags = append([]string(nil), course.Tags...)
	r.db.courses[course.ID] = &cp
	return nil
}

func (r *CourseRepo) UpdateContent(_ context.Context, course *model.Course) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()
	c, ok := r.db.courses[course.ID]
	if !ok || c.Status != model.CourseStatusDraft {
		return repository.ErrCourseNotDraft
	}
	c.Title = course.Title
	c.Description = course.Description
	c.Thumbnail = course.Thumbnail
	c.Difficulty = course.Difficulty
	c.Category = course.Category
	c.Tags = append([]string(nil), course.Tags...)
	c.UpdatedAt = course.UpdatedAt
	return nil
}

func (r *CourseRepo) UpdateDuration(_ context.Context, id string, minutes int) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()
	if c, ok := r.db.courses[id]; ok {
		c.Duration = minutes
		c.UpdatedAt = time.Now()
	}
	return nil
}

func (r *CourseRepo) TransitionStatus(_ context.Context, id string, from, to model.CourseStatus, publishedAt *time.Time, publishedBy *string) (bool, error) {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()
	c, ok := r.db.courses[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	c.PublishedAt = publishedAt
	c.PublishedBy = publishedBy
	c.UpdatedAt = time.Now()
	return true, nil
}

// Delete は下書きコースと所属レッスンを削除する。
func (r *CourseRepo) Delete(_ context.Context, id string) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()
	if !r.db.isDraft(id) {
		return repository.ErrCourseNotDraft
	}
	delete(r.db.courses, id)
	for lid, l := range r.db.lessons {
		if l.CourseID == id {
			delete(r.db.lessons, lid)
		}
	}
	return nil
}

func (r *CourseRepo) AddEnrollmentCount(_ context.Context, id string, delta int) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()
	if c, ok := r.db.courses[id]; ok {
		c.EnrollmentCount = max(c.EnrollmentCount+delta, 0)
	}
	return nil
}

// ---------------------------------------------------------------------------
// lessons
// ---------------------------------------------------------------------------

// LessonRepo はLessonRepositoryのインメモリ実装。
type LessonRepo struct{ db *DB }

// NewLessonRepo はLessonRepoを生成する。
func NewLessonRepo(db *DB) *LessonRepo { return &LessonRepo{db: db} }

func copyLesson(l *model.Lesson) *model.Lesson {
	cp := *l
	cp.Resources = append([]model.Resource(nil), l.Resources...)
	return &cp
}

func (r *LessonRepo) FindByID(_ context.Context, id string) (*model.Lesson, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()
	if l, ok := r.db.lessons[id]; ok {
		return copyLesson(l), nil
	}
	return nil, nil
}

func (r *LessonRepo) ListByCourse(_ context.Context, courseID string) ([]*model.Lesson, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()
	var lessons []*model.Lesson
	for _, l := range r.db.lessons {
		if l.CourseID == courseID {
			lessons = append(lessons, copyLesson(l))
		}
	}
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].OrderIndex < lessons[j].OrderIndex })
	return lessons, nil
}

func (r *LessonRepo) CountByCourse(_ context.Context, courseID string) (int, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()
	n := 0
	for _, l := range r.db.lessons {
		if l.CourseID == courseID {
			n++
		}
	}
	return n, nil
}

// orderTaken は同一コース内でorderIndexが他のレッスンに使われているかを返す。
// 呼び出し時にロックを保持していること。
func (db *DB) orderTaken(courseID string, orderIndex int, exceptID string) bool {
	for _, l := range db.lessons {
		if l.CourseID == courseID && l.OrderIndex == orderIndex && l.ID != exceptID {
			return true
		}
	}
	return false
}

func (r *LessonRepo) Create(_ context.Context, lesson *model.Lesson) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()
	if !r.db.isDraft(lesson.CourseID) {
		return repository.ErrCourseNotDraft
	}
	if r.db.orderTaken(lesson.CourseID, lesson.OrderIndex, lesson.ID) {
		return duplicate(repository.ConstraintLessonOrder)
	}
	r.db.lessons[lesson.ID] = copyLesson(lesson)
	return nil
}

func (r *LessonRepo) Update(_ context.Context, lesson *model.Lesson) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()
	current, ok := r.db.lessons[lesson.ID]
	if !ok || !r.db.isDraft(current.CourseID) {
		return repository.ErrCourseNotDraft
	}
	if r.db.orderTaken(lesson.CourseID, lesson.OrderIndex, lesson.ID) {
		return duplicate(repository.ConstraintLessonOrder)
	}
	r.db.lessons[lesson.ID] = copyLesson(lesson)
	return nil
}

// Delete はレッスンと関連するレッスン進捗を削除する。
func (r *LessonRepo) Delete(_ context.Context, id string) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()
	l, ok := r.db.lessons[id]
	if !ok || !r.db.isDraft(l.CourseID) {
		return repository.ErrCourseNotDraft
	}
	delete(r.db.lessons, id)
	for pid, p := range r.db.progress {
		if p.LessonID == id {
			delete(r.db.progress, pid)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// enrollments
// ---------------------------------------------------------------------------

// EnrollmentRepo はEnrollmentRepositoryのインメモリ実装。
type EnrollmentRepo struct{ db *DB }

// NewEnrollmentRepo はEnrollmentRepoを生成する。
func NewEnrollmentRepo(db *DB) *EnrollmentRepo { return &EnrollmentRepo{db: db} }

func (r *EnrollmentRepo) FindByUserAndCourse(_ context.Context, userID, courseID string) (*model.Enrollment, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()
	for _, e := range r.db.enrollments {
		if e.UserID == userID && e.CourseID == courseID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *EnrollmentRepo) Create(_ context.Context, enrollment *model.Enrollment) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()
	for _, e := range r.db.enrollments {
		if e.UserID == enrollment.UserID && e.CourseID == enrollment.CourseID {
			return duplicate(repository.ConstraintEnrollmentPair)
		}
	}
	cp := *enrollment
	r.db.enrollments[enrollment.ID] = &cp
	return nil
}

func (r *EnrollmentRepo) ListByUserWithCourse(_ context.Context, userID string) ([]model.EnrollmentWithCourse, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()
	var result []model.EnrollmentWithCourse
	for _, e := range r.db.enrollments {
		if e.UserID != userID {
			continue
		}
		c, ok := r.db.courses[e.CourseID]
		if !ok {
			continue
		}
		result = append(result, model.EnrollmentWithCourse{Enrollment: *e, Course: *r.db.copyCourse(c)})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EnrolledAt.After(result[j].EnrolledAt) })
	return result, nil
}

func (r *EnrollmentRepo) UpdateProgress(_ context.Context, id string, progress int, isCompleted bool, completedAt *time.Time) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()
	if e, ok := r.db.enrollments[id]; ok {
		e.Progress = progress
		e.IsCompleted = isCompleted
		e.CompletedAt = completedAt
		e.UpdatedAt = time.Now()
	}
	return nil
}

// EnrollmentCounts はコースごとの実受講数を返す。カウンタ補正ジョブのテスト用。
func (db *DB) EnrollmentCounts() map[string]int {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	counts := make(map[string]int)
	for _, e := range db.enrollments {
		counts[e.CourseID]++
	}
	return counts
}

// ---------------------------------------------------------------------------
// lesson progress
// ---------------------------------------------------------------------------

// ProgressRepo はProgressRepositoryのインメモリ実装。
type ProgressRepo struct{ db *DB }

// NewProgressRepo はProgressRepoを生成する。
func NewProgressRepo(db *DB) *ProgressRepo { return &ProgressRepo{db: db} }

// Upsert はPostgreSQL実装と同じマージ規則でレッスン進捗を保存する。
func (r *ProgressRepo) Upsert(_ context.Context, p *model.LessonProgress) (*model.LessonProgress, error) {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()
	for _, existing := range r.db.progress {
		if existing.UserID != p.UserID || existing.LessonID != p.LessonID {
			continue
		}
		existing.IsCompleted = existing.IsCompleted || p.IsCompleted
		existing.CompletedAt = p.CompletedAt
		if p.TimeSpent > 0 {
			existing.TimeSpent = p.TimeSpent
		}
		if p.LastPosition > 0 {
			existing.LastPosition = p.LastPosition
		}
		existing.UpdatedAt = p.UpdatedAt
		cp := *existing
		return &cp, nil
	}
	cp := *p
	cp.CreatedAt = p.UpdatedAt
	r.db.progress[p.ID] = &cp
	out := cp
	return &out, nil
}

func (r *ProgressRepo) ListByUserAndCourse(_ context.Context, userID, courseID string) ([]*model.LessonProgress, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()
	var list []*model.LessonProgress
	for _, p := range r.db.progress {
		if p.UserID == userID && p.CourseID == courseID {
			cp := *p
			list = append(list, &cp)
		}
	}
	return list, nil
}

// ---------------------------------------------------------------------------
// certificates
// ---------------------------------------------------------------------------

// CertificateRepo はCertificateRepositoryのインメモリ実装。
type CertificateRepo struct{ db *DB }

// NewCertificateRepo はCertificateRepoを生成する。
func NewCertificateRepo(db *DB) *CertificateRepo { return &CertificateRepo{db: db} }

func (r *CertificateRepo) Create(_ context.Context, cert *model.Certificate) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()
	for _, c := range r.db.certificates {
		if c.UserID == cert.UserID && c.CourseID == cert.CourseID {
			return duplicate(repository.ConstraintCertificatePair)
		}
		if c.Serial == cert.Serial {
			return duplicate(repository.ConstraintCertificateSerial)
		}
	}
	cp := *cert
	r.db.certificates[cert.ID] = &cp
	return nil
}

func (r *CertificateRepo) FindByUserAndCourse(_ context.Context, userID, courseID string) (*model.Certificate, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()
	for _, c := range r.db.certificates {
		if c.UserID == userID && c.CourseID == courseID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *CertificateRepo) FindBySerial(_ context.Context, serial string) (*model.Certificate, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()
	for _, c := range r.db.certificates {
		if c.Serial == serial {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *CertificateRepo) ListByUser(_ context.Context, userID string) ([]*model.Certificate, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()
	var certs []*model.Certificate
	for _, c := range r.db.certificates {
		if c.UserID == userID {
			cp := *c
			certs = append(certs, &cp)
		}
	}
	sort.Slice(certs, func(i, j int) bool { return certs[i].IssuedAt.After(certs[j].IssuedAt) })
	return certs, nil
}

// Repositories はDBに対する全リポジトリをまとめて返す。
type Repositories struct {
	Users        *UserRepo
	Courses      *CourseRepo
	Lessons      *LessonRepo
	Enrollments  *EnrollmentRepo
	Progress     *ProgressRepo
	Certificates *CertificateRepo
}

// NewRepositories は新しいDBとその全リポジトリを生成する。
func NewRepositories() (*DB, Repositories) {
	db := New()
	return db, Repositories{
		Users:        NewUserRepo(db),
		Courses:      NewCourseRepo(db),
		Lessons:      NewLessonRepo(db),
		Enrollments:  NewEnrollmentRepo(db),
		Progress:     NewProgressRepo(db),
		Certificates: NewCertificateRepo(db),
	}
}

var (
	_ repository.UserRepository        = (*UserRepo)(nil)
	_ repository.CourseRepository      = (*CourseRepo)(nil)
	_ repository.LessonRepository      = (*LessonRepo)(nil)
	_ repository.EnrollmentRepository  = (*EnrollmentRepo)(nil)
	_ repository.ProgressRepository    = (*ProgressRepo)(nil)
	_ repository.CertificateRepository = (*CertificateRepo)(nil)
)

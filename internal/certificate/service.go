// Package certificate は修了証の発行、公開検証、PDF出力を提供する。
package certificate

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/microcourse/internal/metrics"
	"github.com/hitoshi/microcourse/internal/model"
	"github.com/hitoshi/microcourse/internal/repository"
)

// nonceSize はシリアル番号の入力に混ぜる乱数のバイト数。
const nonceSize = 16

// Notifier は修了証発行を受講者に通知する。失敗は内部で処理する。
type Notifier interface {
	CertificateIssued(ctx context.Context, user *model.User, cert *model.Certificate)
}

// Verification は公開検証の結果。Validがfalseの場合Certificateはnil。
type Verification struct {
	Valid       bool
	Certificate *PublicCertificate
}

// PublicCertificate は検証で公開する修了証の項目。
type PublicCertificate struct {
	Serial         string
	UserName       string
	CourseTitle    string
	CompletionDate time.Time
	IssuedAt       time.Time
}

// Service は修了証のサービス層。
type Service struct {
	users        repository.UserRepository
	courses      repository.CourseRepository
	enrollments  repository.EnrollmentRepository
	certificates repository.CertificateRepository
	renderer     *Renderer
	notifier     Notifier
	metrics      metrics.MetricsCollector
	now          func() time.Time
	newSerial    func(userID, courseID string, issuedAt time.Time) (string, error)
}

// NewService はServiceを生成する。notifierがnilの場合は通知しない。
func NewService(
	users repository.UserRepository,
	courses repository.CourseRepository,
	enrollments repository.EnrollmentRepository,
	certificates repository.CertificateRepository,
	renderer *Renderer,
	notifier Notifier,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		users:        users,
		courses:      courses,
		enrollments:  enrollments,
		certificates: certificates,
		renderer:     renderer,
		notifier:     notifier,
		metrics:      collector,
		now:          time.Now,
		newSerial:    NewSerial,
	}
}

// NewSerial は受講者ID、コースID、発行時刻と乱数からSHA-256のシリアル番号を生成する。
// 入力を知っていても乱数なしには再計算できない。
func NewSerial(userID, courseID string, issuedAt time.Time) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("乱数の生成に失敗しました: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(userID))
	h.Write([]byte{'|'})
	h.Write([]byte(courseID))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatInt(issuedAt.UnixNano(), 10)))
	h.Write([]byte{'|'})
	h.Write(nonce)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Issue は修了済みの受講者に修了証を発行する。
// 既に発行済みの場合は既存の修了証をそのまま返す（createdはfalse）。
func (s *Service) Issue(ctx context.Context, actor model.Actor, courseID string) (cert *model.Certificate, created bool, err error) {
	if actor.Role != model.RoleLearner {
		return nil, false, model.NewRoleRequiredError(model.RoleLearner)
	}

	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return nil, false, fmt.Errorf("コースの取得に失敗しました: %w", err)
	}
	if course == nil {
		return nil, false, model.NewCourseNotFoundError(courseID)
	}

	enrollment, err := s.enrollments.FindByUserAndCourse(ctx, actor.UserID, courseID)
	if err != nil {
		return nil, false, fmt.Errorf("受講の検索に失敗しました: %w", err)
	}
	if enrollment == nil {
		return nil, false, model.NewNotEnrolledError()
	}
	if !enrollment.IsCompleted {
		return nil, false, model.NewCourseNotCompletedError()
	}

	existing, err := s.certificates.FindByUserAndCourse(ctx, actor.UserID, courseID)
	if err != nil {
		return nil, false, fmt.Errorf("修了証の検索に失敗しました: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	user, err := s.users.FindByID(ctx, actor.UserID)
	if err != nil {
		return nil, false, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, false, model.NewUserNotFoundError()
	}

	now := s.now()
	serial, err := s.newSerial(actor.UserID, courseID, now)
	if err != nil {
		return nil, false, err
	}
	completionDate := now
	if enrollment.CompletedAt != nil {
		completionDate = *enrollment.CompletedAt
	}
	cert = &model.Certificate{
		ID:             uuid.New().String(),
		UserID:         actor.UserID,
		CourseID:       courseID,
		Serial:         serial,
		IssuedAt:       now,
		CourseTitle:    course.Title,
		UserName:       user.Name,
		CompletionDate: completionDate,
	}

	if err := s.certificates.Create(ctx, cert); err != nil {
		switch {
		case repository.IsConstraint(err, repository.ConstraintCertificatePair):
			// 同時発行で先行した修了証を返す
			winner, findErr := s.certificates.FindByUserAndCourse(ctx, actor.UserID, courseID)
			if findErr != nil {
				return nil, false, fmt.Errorf("修了証の検索に失敗しました: %w", findErr)
			}
			if winner != nil {
				return winner, false, nil
			}
			return nil, false, fmt.Errorf("修了証の作成に失敗しました: %w", err)
		case repository.IsConstraint(err, repository.ConstraintCertificateSerial):
			slog.Error("修了証シリアル番号の衝突", "userID", actor.UserID, "courseID", courseID)
			return nil, false, model.NewSerialCollisionError()
		}
		return nil, false, fmt.Errorf("修了証の作成に失敗しました: %w", err)
	}

	s.metrics.RecordCertificateIssued(courseID)
	slog.Info("修了証発行", "userID", actor.UserID, "courseID", courseID, "certificateID", cert.ID)
	if s.notifier != nil {
		s.notifier.CertificateIssued(ctx, user, cert)
	}
	return cert, true, nil
}

// Get は実行者の指定コースの修了証を返す。
func (s *Service) Get(ctx context.Context, actor model.Actor, courseID string) (*model.Certificate, error) {
	cert, err := s.certificates.FindByUserAndCourse(ctx, actor.UserID, courseID)
	if err != nil {
		return nil, fmt.Errorf("修了証の検索に失敗しました: %w", err)
	}
	if cert == nil {
		return nil, model.NewCertificateNotFoundError()
	}
	return cert, nil
}

// List は実行者の修了証を発行日時の新しい順に返す。
func (s *Service) List(ctx context.Context, actor model.Actor) ([]*model.Certificate, error) {
	certs, err := s.certificates.ListByUser(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("修了証一覧の取得に失敗しました: %w", err)
	}
	return certs, nil
}

// Verify はシリアル番号で修了証を検証する。認証不要。
// 存在しない場合はエラーではなくValid=falseを返す。
func (s *Service) Verify(ctx context.Context, serial string) (*Verification, error) {
	if serial == "" {
		s.metrics.RecordVerification(false)
		return &Verification{Valid: false}, nil
	}
	cert, err := s.certificates.FindBySerial(ctx, serial)
	if err != nil {
		return nil, fmt.Errorf("修了証の検証に失敗しました: %w", err)
	}
	s.metrics.RecordVerification(cert != nil)
	if cert == nil {
		return &Verification{Valid: false}, nil
	}
	return &Verification{
		Valid: true,
		Certificate: &PublicCertificate{
			Serial:         cert.Serial,
			UserName:       cert.UserName,
			CourseTitle:    cert.CourseTitle,
			CompletionDate: cert.CompletionDate,
			IssuedAt:       cert.IssuedAt,
		},
	}, nil
}

// Render は修了証をPDFに変換する。
func (s *Service) Render(cert *model.Certificate) ([]byte, error) {
	return s.renderer.Render(cert)
}

// Download は実行者の修了証PDFとファイル名を返す。
func (s *Service) Download(ctx context.Context, actor model.Actor, courseID string) (filename string, data []byte, err error) {
	cert, err := s.Get(ctx, actor, courseID)
	if err != nil {
		return "", nil, err
	}
	data, err = s.Render(cert)
	if err != nil {
		return "", nil, err
	}
	return Filename(cert), data, nil
}

// Package notify は受講者へのメール通知を提供する。
// 通知はベストエフォートであり、送信失敗は呼び出し元の処理を失敗させない。
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/hitoshi/microcourse/internal/model"
)

const (
	sendGridHost     = "https://api.sendgrid.com"
	sendGridEndpoint = "/v3/mail/send"
)

// Message は送信するメール。
type Message struct {
	To      mail.Address
	Subject string
	Text    string
	HTML    string
}

// Mailer はメールを送信する。
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SendGridMailer はSendGrid v3 APIで送信するMailer。
type SendGridMailer struct {
	key        string
	host       string
	from       *sgmail.Email
	subjPrefix string
	api        func(rest.Request) (*rest.Response, error)
}

// NewSendGridMailer はSendGridMailerを生成する。
func NewSendGridMailer(key, appName, fromEmail string) *SendGridMailer {
	return &SendGridMailer{
		key:        key,
		host:       sendGridHost,
		from:       sgmail.NewEmail(appName, fromEmail),
		subjPrefix: "[" + appName + "] ",
		api:        sendgrid.API,
	}
}

func (m *SendGridMailer) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = m.subjPrefix + msg.Subject
	p.AddTos(sgmail.NewEmail(msg.To.Name, msg.To.Address))

	v3 := sgmail.NewV3Mail()
	v3.SetFrom(m.from)
	v3.AddPersonalizations(p)
	v3.AddContent(sgmail.NewContent("text/plain", msg.Text))
	if msg.HTML != "" {
		v3.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}
	return v3
}

// Send はメールを送信する。4xx/5xxはエラーとして返す。
func (m *SendGridMailer) Send(ctx context.Context, msg Message) error {
	req := sendgrid.GetRequest(m.key, sendGridEndpoint, m.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m.prepare(msg))

	res, err := m.api(req)
	if err != nil {
		return fmt.Errorf("メール送信に失敗しました: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("メール送信に失敗しました: status=%d body=%s", res.StatusCode, res.Body)
	}
	return nil
}

// LogMailer は送信せずにログへ出力するMailer。APIキー未設定時に使用する。
type LogMailer struct{}

// Send はメールの宛先と件名をログに出力する。
func (LogMailer) Send(_ context.Context, msg Message) error {
	slog.Info("メール送信（ログのみ）", "to", msg.To.Address, "subject", msg.Subject)
	return nil
}

// Notifier はドメインイベントからメッセージを組み立てて送信する。
type Notifier struct {
	mailer       Mailer
	baseURL      string
	platformName string
}

// NewNotifier はNotifierを生成する。
func NewNotifier(mailer Mailer, baseURL, platformName string) *Notifier {
	return &Notifier{
		mailer:       mailer,
		baseURL:      strings.TrimRight(baseURL, "/"),
		platformName: platformName,
	}
}

// CertificateIssued は修了証発行の通知を送る。失敗はログに記録し、呼び出し元へは返さない。
func (n *Notifier) CertificateIssued(ctx context.Context, user *model.User, cert *model.Certificate) {
	verifyURL := n.baseURL + "/api/certificates/verify/" + cert.Serial
	msg := Message{
		To:      mail.Address{Name: user.Name, Address: user.Email},
		Subject: "Your certificate for " + cert.CourseTitle,
		Text: fmt.Sprintf(
			"Congratulations %s!\n\nYou have completed %q on %s.\nYour certificate can be verified at:\n%s\n\n%s",
			cert.UserName, cert.CourseTitle, cert.CompletionDate.Format("January 2, 2006"), verifyURL, n.platformName,
		),
	}
	if err := n.mailer.Send(ctx, msg); err != nil {
		slog.Warn("修了証発行メールの送信に失敗", "userID", user.ID, "certificateID", cert.ID, "error", err)
	}
}

// compile-time interface check
var (
	_ Mailer = (*SendGridMailer)(nil)
	_ Mailer = LogMailer{}
)

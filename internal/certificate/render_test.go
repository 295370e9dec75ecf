package certificate

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/hitoshi/microcourse/internal/model"
)

func testCertificate() *model.Certificate {
	return &model.Certificate{
		ID:             "cert-1",
		UserID:         "u1",
		CourseID:       "c1",
		Serial:         "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
		IssuedAt:       time.Date(2026, 2, 15, 8, 30, 0, 0, time.UTC),
		CourseTitle:    "Go Basics",
		UserName:       "José Müller",
		CompletionDate: time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC),
	}
}

// 1ページのPDFとして読み戻せることを検証
func TestRender_SinglePage(t *testing.T) {
	data, err := NewRenderer("MicroCourse Learning Platform").Render(testCertificate())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("rendered PDF cannot be parsed: %v", err)
	}
	if n := reader.NumPage(); n != 1 {
		t.Errorf("NumPage() = %d, want 1", n)
	}
}

// コース名の引用符やバックスラッシュがエスケープされずにそのまま描画されることを検証
func TestRender_CourseTitleVerbatim(t *testing.T) {
	cert := testCertificate()
	cert.CourseTitle = `The "Go" Path\Intro`

	data, err := NewRenderer("MicroCourse Learning Platform").Render(cert)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("rendered PDF cannot be parsed: %v", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		t.Fatalf("GetPlainText() error = %v", err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		t.Fatalf("read text: %v", err)
	}
	text := string(raw)

	if !strings.Contains(text, `"The "Go" Path\Intro"`) {
		t.Errorf("course title not rendered verbatim, text = %q", text)
	}
	if strings.Contains(text, `\"`) {
		t.Errorf("course title contains escape sequences, text = %q", text)
	}
}

// 同じ修了証から同じバイト列が生成されることを検証
func TestRender_Deterministic(t *testing.T) {
	r := NewRenderer("MicroCourse Learning Platform")
	a, err := r.Render(testCertificate())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	b, _ := r.Render(testCertificate())
	if !bytes.Equal(a, b) {
		t.Error("repeated renders differ")
	}

	other := testCertificate()
	other.CourseTitle = "Advanced Go"
	c, _ := r.Render(other)
	if bytes.Equal(a, c) {
		t.Error("different certificates rendered identically")
	}
}

func TestFilename(t *testing.T) {
	if got := Filename(testCertificate()); got != "certificate-01234567.pdf" {
		t.Errorf("Filename() = %q", got)
	}
	if got := Filename(&model.Certificate{Serial: "abc"}); got != "certificate-abc.pdf" {
		t.Errorf("Filename(short) = %q", got)
	}
}

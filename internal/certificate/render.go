package certificate

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"

	"github.com/hitoshi/microcourse/internal/model"
)

// A4横向きのページサイズ（mm）。
const (
	pageWidth  = 297.0
	pageHeight = 210.0
)

type rgb struct{ r, g, b int }

var (
	colorBackground = rgb{240, 248, 255}
	colorAccent     = rgb{0, 102, 204}
	colorMuted      = rgb{100, 100, 100}
	colorSerial     = rgb{150, 150, 150}
	colorText       = rgb{0, 0, 0}
)

// Renderer は修了証をA4横1ページのPDFに変換する。
type Renderer struct {
	platformName string
}

// NewRenderer はRendererを生成する。
func NewRenderer(platformName string) *Renderer {
	return &Renderer{platformName: platformName}
}

// Render は修了証のスナップショット項目だけからPDFを生成する。
// 作成日時には発行日時を埋め込むため、同じ修了証からは同じバイト列が得られる。
func (r *Renderer) Render(cert *model.Certificate) ([]byte, error) {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(cert.IssuedAt)
	pdf.SetModificationDate(cert.IssuedAt)
	pdf.SetTitle("Certificate of Completion", false)
	pdf.SetCreator(r.platformName, true)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	// コアフォントはcp1252のため、UTF-8の氏名やタイトルを変換する
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFillColor(colorBackground.r, colorBackground.g, colorBackground.b)
	pdf.Rect(0, 0, pageWidth, pageHeight, "F")

	pdf.SetDrawColor(colorAccent.r, colorAccent.g, colorAccent.b)
	pdf.SetLineWidth(3)
	pdf.Rect(15, 15, pageWidth-30, pageHeight-30, "D")
	pdf.SetLineWidth(1)
	pdf.Rect(25, 25, pageWidth-50, pageHeight-50, "D")

	line := func(y float64, style string, size float64, c rgb, text string) {
		pdf.SetFont("Helvetica", style, size)
		pdf.SetTextColor(c.r, c.g, c.b)
		pdf.SetXY(25, y)
		pdf.CellFormat(pageWidth-50, size*0.5, tr(text), "", 0, "C", false, 0, "")
	}

	line(45, "B", 28, colorAccent, "CERTIFICATE OF COMPLETION")
	line(68, "", 16, colorMuted, "This is to certify that")
	line(84, "B", 24, colorText, cert.UserName)
	line(104, "", 16, colorMuted, "has successfully completed the course")
	line(120, "B", 20, colorAccent, `"`+cert.CourseTitle+`"`)
	line(145, "", 14, colorMuted, "Completed on: "+cert.CompletionDate.Format("January 2, 2006"))
	line(160, "", 10, colorSerial, "Certificate ID: "+truncate(cert.Serial, 16)+"...")
	line(172, "B", 12, colorAccent, r.platformName)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("修了証PDFの生成に失敗しました: %w", err)
	}
	return buf.Bytes(), nil
}

// Filename はダウンロード時のファイル名を返す。
func Filename(cert *model.Certificate) string {
	return "certificate-" + truncate(cert.Serial, 8) + ".pdf"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Package render turns a submitted exam form into a PDF document.
package render

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/go-pdf/fpdf"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultTitle heads every exam document.
const DefaultTitle = "EXAMEN MEDICO 2025-2"

// Field is one submitted form field. Order is preserved end to end.
type Field struct {
	Name  string
	Value string
}

var (
	upper = cases.Upper(language.Spanish)
	lower = cases.Lower(language.Spanish)
)

// Label turns a field name into a caption: underscores become spaces, the
// first letter is upper-cased and the rest lower-cased ("tipo_SANGRE" ->
// "Tipo sangre").
func Label(name string) string {
	name = strings.ReplaceAll(name, "_", " ")
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return upper.String(string(r)) + lower.String(name[size:])
}

// Flatten replaces line breaks with spaces so each field renders as one
// paragraph.
func Flatten(value string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(value)
}

// Lines returns the "Label: value" paragraphs in field order.
func Lines(fields []Field) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, Label(f.Name)+": "+Flatten(f.Value))
	}
	return out
}

// ExamRenderer lays out exam documents on A4 pages.
type ExamRenderer struct {
	Title string
	// Compress toggles stream compression; tests turn it off to inspect text.
	Compress bool
}

func NewExamRenderer(title string) *ExamRenderer {
	if title == "" {
		title = DefaultTitle
	}
	return &ExamRenderer{Title: title, Compress: true}
}

// Render writes the PDF for fields to w.
func (r *ExamRenderer) Render(w io.Writer, fields []Field) error {
	pdf := r.build(fields)
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render exam: %w", err)
	}
	return nil
}

const (
	margin     = 12.0
	titleSize  = 13.0
	bodySize   = 9.0
	lineHeight = 5.0
)

func (r *ExamRenderer) build(fields []Field) *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(r.Compress)
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", titleSize)
	pdf.CellFormat(0, 8, tr(r.Title), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", bodySize)
	width, _ := pdf.GetPageSize()
	width -= 2 * margin
	for _, line := range Lines(fields) {
		pdf.MultiCell(width, lineHeight, tr(line), "", "L", false)
		pdf.Ln(1)
	}
	return pdf
}

package intake

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

const (
	timestampLayout = "20060102_150405"
	// DateLayout is the human readable submission date written into exams.
	DateLayout      = "02/01/2006 15:04"
	pdfExt          = ".pdf"
	fallbackPDFName = "documento.pdf"
)

// ExamFileName names the document generated for recordNumber at t. The
// random token keeps two submissions in the same second apart.
func ExamFileName(recordNumber string, t time.Time) string {
	return fmt.Sprintf("examen_%s_%s_%s%s", recordNumber, t.Format(timestampLayout), shortToken(), pdfExt)
}

// UploadFileName names an uploaded file: record, timestamp, a short random
// token and the sanitised original name.
func UploadFileName(recordNumber string, t time.Time, original string) string {
	safe := SecureFilename(original)
	if !strings.HasSuffix(strings.ToLower(safe), pdfExt) {
		safe = fallbackPDFName
	}
	return fmt.Sprintf("%s_%s_%s_%s", recordNumber, t.Format(timestampLayout), shortToken(), safe)
}

func shortToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// IsPDF reports whether name carries a .pdf extension, in any case.
func IsPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), pdfExt)
}

// SecureFilename reduces name to ASCII letters, digits, '_', '.' and '-'.
// Accents are decomposed and dropped, whitespace becomes '_', path
// separators are removed, and leading or trailing dots and underscores
// are trimmed.
func SecureFilename(name string) string {
	name = norm.NFKD.String(name)
	name = strings.NewReplacer("/", " ", `\`, " ").Replace(name)
	name = strings.Join(strings.Fields(name), "_")

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "._")
}

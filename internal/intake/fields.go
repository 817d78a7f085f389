package intake

import (
	"time"

	"github.com/serviciomed/serviciomed/internal/render"
)

// Names of the fields the server fills in on every exam.
const (
	FieldRecordNumber = "expediente"
	FieldDate         = "fecha"
)

// ExamFields returns submitted in submission order with the server-owned
// fields set: a submitted expediente/fecha keeps its position and has its
// value replaced, otherwise the field is appended. Repeated names keep
// their first occurrence; unnamed fields are dropped.
func ExamFields(submitted []render.Field, recordNumber string, at time.Time) []render.Field {
	out := make([]render.Field, 0, len(submitted)+2)
	seen := make(map[string]int, len(submitted))
	for _, f := range submitted {
		if f.Name == "" {
			continue
		}
		if _, dup := seen[f.Name]; dup {
			continue
		}
		seen[f.Name] = len(out)
		out = append(out, f)
	}

	set := func(name, value string) {
		if i, ok := seen[name]; ok {
			out[i].Value = value
			return
		}
		seen[name] = len(out)
		out = append(out, render.Field{Name: name, Value: value})
	}
	set(FieldRecordNumber, recordNumber)
	set(FieldDate, at.Format(DateLayout))
	return out
}

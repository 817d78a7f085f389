package sqlstore

import (
	"context"
	"strconv"

	"github.com/serviciomed/serviciomed/internal/dbx"
	"github.com/serviciomed/serviciomed/internal/models"
	"github.com/serviciomed/serviciomed/internal/store"
)

type surveyRepository struct {
	q dbx.DBTX
	d Dialect
}

func (r *surveyRepository) Create(ctx context.Context, s *models.SurveyResponse) error {
	query := `INSERT INTO survey_responses (record_number, answer, submitted_at)
		VALUES ($1, $2, $3)
		RETURNING id`

	var id int64
	if err := r.q.QueryRowContext(ctx, r.d.rebind(query), s.RecordNumber, s.Answer, dbTime(s.SubmittedAt)).Scan(&id); err != nil {
		return r.d.wrap("insert survey response", err)
	}
	s.ID = strconv.FormatInt(id, 10)
	return nil
}

func (r *surveyRepository) ListByRecordNumber(ctx context.Context, recordNumber string) ([]*models.SurveyResponse, error) {
	query := `SELECT id, record_number, answer, submitted_at FROM survey_responses
		WHERE record_number = $1
		ORDER BY id DESC`

	rows, err := r.q.QueryContext(ctx, r.d.rebind(query), recordNumber)
	if err != nil {
		return nil, r.d.wrap("select survey responses", err)
	}
	defer rows.Close()

	var result []*models.SurveyResponse
	for rows.Next() {
		var (
			s  models.SurveyResponse
			id int64
		)
		if err := rows.Scan(&id, &s.RecordNumber, &s.Answer, timestamp{&s.SubmittedAt}); err != nil {
			return nil, r.d.wrap("scan survey response", err)
		}
		s.ID = strconv.FormatInt(id, 10)
		result = append(result, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, r.d.wrap("select survey responses", err)
	}
	return result, nil
}

type examRepository struct {
	q dbx.DBTX
	d Dialect
}

func (r *examRepository) Create(ctx context.Context, e *models.ExamSubmission) error {
	query := `INSERT INTO exam_submissions (record_number, document, submitted_at)
		VALUES ($1, $2, $3)
		RETURNING id`

	var id int64
	if err := r.q.QueryRowContext(ctx, r.d.rebind(query), e.RecordNumber, e.Document, dbTime(e.SubmittedAt)).Scan(&id); err != nil {
		return r.d.wrap("insert exam submission", err)
	}
	e.ID = strconv.FormatInt(id, 10)
	return nil
}

func (r *examRepository) FindByDocument(ctx context.Context, recordNumber, document string) (*models.ExamSubmission, error) {
	query := `SELECT id, record_number, document, submitted_at FROM exam_submissions
		WHERE record_number = $1 AND document = $2`

	e, err := scanExam(r.q.QueryRowContext(ctx, r.d.rebind(query), recordNumber, document))
	if err != nil {
		return nil, r.d.wrap("select exam submission", err)
	}
	return e, nil
}

func (r *examRepository) ListByRecordNumber(ctx context.Context, recordNumber string) ([]*models.ExamSubmission, error) {
	query := `SELECT id, record_number, document, submitted_at FROM exam_submissions
		WHERE record_number = $1
		ORDER BY id DESC`

	rows, err := r.q.QueryContext(ctx, r.d.rebind(query), recordNumber)
	if err != nil {
		return nil, r.d.wrap("select exam submissions", err)
	}
	defer rows.Close()

	var result []*models.ExamSubmission
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, r.d.wrap("scan exam submission", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, r.d.wrap("select exam submissions", err)
	}
	return result, nil
}

func scanExam(row rowScanner) (*models.ExamSubmission, error) {
	var (
		e  models.ExamSubmission
		id int64
	)
	if err := row.Scan(&id, &e.RecordNumber, &e.Document, timestamp{&e.SubmittedAt}); err != nil {
		return nil, err
	}
	e.ID = strconv.FormatInt(id, 10)
	return &e, nil
}

type uploadRepository struct {
	q dbx.DBTX
	d Dialect
}

const uploadColumns = `id, record_number, stored_name, original_name, url, submitted_at`

func (r *uploadRepository) Create(ctx context.Context, doc *models.UploadedDocument) error {
	query := `INSERT INTO uploaded_documents (record_number, stored_name, original_name, url, submitted_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	var id int64
	err := r.q.QueryRowContext(ctx, r.d.rebind(query),
		doc.RecordNumber, doc.StoredName, doc.OriginalName, doc.URL, dbTime(doc.SubmittedAt)).Scan(&id)
	if err != nil {
		return r.d.wrap("insert uploaded document", err)
	}
	doc.ID = strconv.FormatInt(id, 10)
	return nil
}

func (r *uploadRepository) FindByID(ctx context.Context, id string) (*models.UploadedDocument, error) {
	n, ok := parseID(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	query := `SELECT ` + uploadColumns + ` FROM uploaded_documents WHERE id = $1`

	doc, err := scanUpload(r.q.QueryRowContext(ctx, r.d.rebind(query), n))
	if err != nil {
		return nil, r.d.wrap("select uploaded document", err)
	}
	return doc, nil
}

func (r *uploadRepository) FindByStoredName(ctx context.Context, storedName string) (*models.UploadedDocument, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploaded_documents WHERE stored_name = $1`

	doc, err := scanUpload(r.q.QueryRowContext(ctx, r.d.rebind(query), storedName))
	if err != nil {
		return nil, r.d.wrap("select uploaded document", err)
	}
	return doc, nil
}

func (r *uploadRepository) ListByRecordNumber(ctx context.Context, recordNumber string) ([]*models.UploadedDocument, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploaded_documents
		WHERE record_number = $1
		ORDER BY id DESC`

	rows, err := r.q.QueryContext(ctx, r.d.rebind(query), recordNumber)
	if err != nil {
		return nil, r.d.wrap("select uploaded documents", err)
	}
	defer rows.Close()

	var result []*models.UploadedDocument
	for rows.Next() {
		doc, err := scanUpload(rows)
		if err != nil {
			return nil, r.d.wrap("scan uploaded document", err)
		}
		result = append(result, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, r.d.wrap("select uploaded documents", err)
	}
	return result, nil
}

func scanUpload(row rowScanner) (*models.UploadedDocument, error) {
	var (
		doc models.UploadedDocument
		id  int64
	)
	if err := row.Scan(&id, &doc.RecordNumber, &doc.StoredName, &doc.OriginalName, &doc.URL, timestamp{&doc.SubmittedAt}); err != nil {
		return nil, err
	}
	doc.ID = strconv.FormatInt(id, 10)
	return &doc, nil
}

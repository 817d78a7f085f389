// Package intake runs the steps a student completes after logging in: the
// health survey, the exam form rendered to PDF and supporting PDF uploads.
// Every step is scoped to the caller's record number.
package intake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/serviciomed/serviciomed/internal/models"
	"github.com/serviciomed/serviciomed/internal/render"
	"github.com/serviciomed/serviciomed/internal/storage"
	"github.com/serviciomed/serviciomed/internal/store"
	"github.com/serviciomed/serviciomed/pkg/logger"
)

const (
	pdfContentType = "application/pdf"

	DefaultMaxUploadBytes = 16 << 20
	DefaultPresignTTL     = 5 * time.Minute
)

// Options tunes the service; zero values take the defaults.
type Options struct {
	MaxUploadBytes int64
	PresignTTL     time.Duration
}

type Service struct {
	store      store.Store
	blobs      storage.Store
	renderer   *render.ExamRenderer
	maxUpload  int64
	presignTTL time.Duration
	now        func() time.Time
}

func NewService(s store.Store, blobs storage.Store, renderer *render.ExamRenderer, opts Options) *Service {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = DefaultPresignTTL
	}
	return &Service{
		store:      s,
		blobs:      blobs,
		renderer:   renderer,
		maxUpload:  opts.MaxUploadBytes,
		presignTTL: opts.PresignTTL,
		now:        time.Now,
	}
}

// MaxUploadBytes is the largest accepted upload.
func (s *Service) MaxUploadBytes() int64 { return s.maxUpload }

// SubmitSurvey stores one survey answer.
func (s *Service) SubmitSurvey(ctx context.Context, recordNumber, answer string) (*models.SurveyResponse, error) {
	if strings.TrimSpace(answer) == "" {
		return nil, invalid("La respuesta no puede estar vacía")
	}
	resp := &models.SurveyResponse{
		RecordNumber: recordNumber,
		Answer:       answer,
		SubmittedAt:  s.now().UTC(),
	}
	if err := s.store.Surveys().Create(ctx, resp); err != nil {
		return nil, fmt.Errorf("save survey: %w", err)
	}
	return resp, nil
}

// SubmitExam renders the exam for the submitted fields, stores the PDF and
// records the submission. The blob is written before the row; when the row
// cannot be inserted the blob is removed again.
func (s *Service) SubmitExam(ctx context.Context, recordNumber string, submitted []render.Field) (*models.ExamSubmission, error) {
	now := s.now()
	name := ExamFileName(recordNumber, now)

	var buf bytes.Buffer
	if err := s.renderer.Render(&buf, ExamFields(submitted, recordNumber, now)); err != nil {
		return nil, err
	}

	exam := &models.ExamSubmission{
		RecordNumber: recordNumber,
		Document:     name,
		SubmittedAt:  now.UTC(),
	}
	key := storage.Key(recordNumber, name)
	if err := s.putThenInsert(ctx, key, buf.Bytes(), func(ctx context.Context) error {
		return s.store.Exams().Create(ctx, exam)
	}); err != nil {
		return nil, fmt.Errorf("save exam %s: %w", name, err)
	}
	return exam, nil
}

// Upload validates and stores one PDF supplied by the student. size is the
// declared length, or -1 when unknown.
func (s *Service) Upload(ctx context.Context, recordNumber, filename string, content io.Reader, size int64) (*models.UploadedDocument, error) {
	if filename == "" || content == nil || size == 0 {
		return nil, invalid("Selecciona un archivo PDF")
	}
	if !IsPDF(filename) {
		return nil, invalid("Solo se permiten archivos PDF")
	}
	if size > s.maxUpload {
		return nil, s.tooLarge()
	}
	data, err := io.ReadAll(io.LimitReader(content, s.maxUpload+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, invalid("Selecciona un archivo PDF")
	}
	if int64(len(data)) > s.maxUpload {
		return nil, s.tooLarge()
	}

	now := s.now()
	stored := UploadFileName(recordNumber, now, filename)
	key := storage.Key(recordNumber, stored)
	doc := &models.UploadedDocument{
		RecordNumber: recordNumber,
		StoredName:   stored,
		OriginalName: filename,
		URL:          s.blobs.ObjectURL(key),
		SubmittedAt:  now.UTC(),
	}
	if err := s.putThenInsert(ctx, key, data, func(ctx context.Context) error {
		return s.store.Uploads().Create(ctx, doc)
	}); err != nil {
		return nil, fmt.Errorf("save upload %s: %w", stored, err)
	}
	return doc, nil
}

func (s *Service) tooLarge() error {
	return invalid(fmt.Sprintf("El archivo excede el tamaño máximo de %d MB", s.maxUpload>>20))
}

func (s *Service) putThenInsert(ctx context.Context, key string, data []byte, insert func(context.Context) error) error {
	if err := s.blobs.Put(ctx, key, bytes.NewReader(data), int64(len(data)), pdfContentType); err != nil {
		return fmt.Errorf("store blob: %w", err)
	}
	if err := insert(ctx); err != nil {
		// The request context may already be cancelled; clean up regardless.
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if derr := s.blobs.Delete(cleanupCtx, key); derr != nil {
			logger.Warnf("intake: orphaned blob %s: %v", key, derr)
		}
		return err
	}
	return nil
}

// Documents lists what a student has submitted, newest first.
type Documents struct {
	Exams   []*models.ExamSubmission
	Uploads []*models.UploadedDocument
}

func (s *Service) ListDocuments(ctx context.Context, recordNumber string) (*Documents, error) {
	exams, err := s.store.Exams().ListByRecordNumber(ctx, recordNumber)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	uploads, err := s.store.Uploads().ListByRecordNumber(ctx, recordNumber)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	return &Documents{Exams: exams, Uploads: uploads}, nil
}

// OpenExam returns the PDF of an exam owned by recordNumber.
func (s *Service) OpenExam(ctx context.Context, recordNumber, document string) (io.ReadCloser, *models.ExamSubmission, error) {
	exam, err := s.store.Exams().FindByDocument(ctx, recordNumber, document)
	if err != nil {
		return nil, nil, notFound(err)
	}
	rc, err := s.blobs.Get(ctx, storage.Key(recordNumber, exam.Document))
	if err != nil {
		return nil, nil, notFound(err)
	}
	return rc, exam, nil
}

// FindUpload resolves ref, a numeric/ObjectID id or a stored name, to an
// upload owned by recordNumber.
func (s *Service) FindUpload(ctx context.Context, recordNumber, ref string) (*models.UploadedDocument, error) {
	doc, err := s.store.Uploads().FindByID(ctx, ref)
	if errors.Is(err, store.ErrNotFound) {
		doc, err = s.store.Uploads().FindByStoredName(ctx, ref)
	}
	if err != nil {
		return nil, notFound(err)
	}
	if doc.RecordNumber != recordNumber {
		return nil, ErrNotFound
	}
	return doc, nil
}

// OpenUpload returns the content of an upload owned by recordNumber.
func (s *Service) OpenUpload(ctx context.Context, recordNumber, storedName string) (io.ReadCloser, *models.UploadedDocument, error) {
	doc, err := s.store.Uploads().FindByStoredName(ctx, storedName)
	if err != nil {
		return nil, nil, notFound(err)
	}
	if doc.RecordNumber != recordNumber {
		return nil, nil, ErrNotFound
	}
	rc, err := s.blobs.Get(ctx, storage.Key(recordNumber, doc.StoredName))
	if err != nil {
		return nil, nil, notFound(err)
	}
	return rc, doc, nil
}

// UploadURL returns a temporary URL for doc, or storage.ErrPresignUnsupported.
func (s *Service) UploadURL(ctx context.Context, doc *models.UploadedDocument) (string, error) {
	return s.blobs.PresignedURL(ctx, storage.Key(doc.RecordNumber, doc.StoredName), s.presignTTL)
}

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidKey) {
		return ErrNotFound
	}
	return err
}

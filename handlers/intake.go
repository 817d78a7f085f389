package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/serviciomed/serviciomed/internal/intake"
	"github.com/serviciomed/serviciomed/internal/storage"
	"github.com/serviciomed/serviciomed/internal/tokens"
	"github.com/serviciomed/serviciomed/pkg/logger"
	"github.com/serviciomed/serviciomed/pkg/metrics"
	"github.com/serviciomed/serviciomed/pkg/middleware"
)

const msgDocumentNotFound = "Documento no encontrado"

// IntakeHandler serves the survey, exam, upload and document pages. Every
// route expects middleware.RequireSession in front of it.
type IntakeHandler struct {
	svc   *intake.Service
	flash *Flasher
}

func NewIntakeHandler(svc *intake.Service, flash *Flasher) *IntakeHandler {
	return &IntakeHandler{svc: svc, flash: flash}
}

func (h *IntakeHandler) Register(r gin.IRouter) {
	r.GET("/encuesta", h.page("encuesta.html", "Encuesta de salud"))
	r.POST("/encuesta", h.SubmitSurvey)
	r.GET("/examen", h.page("examen.html", "Examen médico"))
	r.POST("/examen", h.SubmitExam)
	r.GET("/subir_pdf", h.page("subir_pdf.html", "Subir documento"))
	r.POST("/subir_pdf", h.Upload)
	r.GET("/mis_documentos", h.Documents)
	r.GET("/descargar/:name", h.DownloadExam)
	r.GET("/descargar_subido/:name", h.DownloadUpload)
	r.GET("/descargar_privado/:ref", h.DownloadPrivate)
}

func (h *IntakeHandler) page(name, title string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, name, h.data(c, title, nil))
	}
}

func (h *IntakeHandler) data(c *gin.Context, title string, extra gin.H) gin.H {
	d := gin.H{
		"Title":       title,
		"Session":     middleware.CurrentSession(c),
		"Flashes":     h.flash.Pop(c),
		"MaxUploadMB": h.svc.MaxUploadBytes() >> 20,
	}
	for k, v := range extra {
		d[k] = v
	}
	return d
}

func (h *IntakeHandler) SubmitSurvey(c *gin.Context) {
	sess := middleware.CurrentSession(c)
	_, err := h.svc.SubmitSurvey(c.Request.Context(), sess.RecordNumber, c.PostForm("respuesta"))
	if h.fail(c, "survey", err, "/encuesta") {
		return
	}
	h.flash.Add(c, tokens.CategorySuccess, "Encuesta guardada")
	c.Redirect(http.StatusFound, "/examen")
}

func (h *IntakeHandler) SubmitExam(c *gin.Context) {
	sess := middleware.CurrentSession(c)
	fields, err := orderedFields(c.Writer, c.Request)
	if err != nil {
		logger.Warnf("exam form from %s: %v", sess.RecordNumber, err)
		metrics.IntakeSubmissions.WithLabelValues("exam", metrics.ResultRejected).Inc()
		h.flash.Add(c, tokens.CategoryError, "No se pudo leer el formulario")
		c.Redirect(http.StatusFound, "/examen")
		return
	}
	exam, err := h.svc.SubmitExam(c.Request.Context(), sess.RecordNumber, fields)
	if h.fail(c, "exam", err, "/examen") {
		return
	}
	h.flash.Add(c, tokens.CategorySuccess, "Examen generado: "+exam.Document)
	c.Redirect(http.StatusFound, "/subir_pdf")
}

func (h *IntakeHandler) Upload(c *gin.Context) {
	sess := middleware.CurrentSession(c)
	// Leave room for the multipart envelope; the service enforces the exact limit.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.svc.MaxUploadBytes()+1<<20)

	fh, err := c.FormFile("archivo")
	if err != nil {
		var tooLarge *http.MaxBytesError
		msg := "Selecciona un archivo PDF"
		if errors.As(err, &tooLarge) {
			msg = fmt.Sprintf("El archivo excede el tamaño máximo de %d MB", h.svc.MaxUploadBytes()>>20)
		}
		metrics.IntakeSubmissions.WithLabelValues("upload", metrics.ResultRejected).Inc()
		h.flash.Add(c, tokens.CategoryError, msg)
		c.Redirect(http.StatusFound, "/subir_pdf")
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.fail(c, "upload", err, "/subir_pdf")
		return
	}
	defer f.Close()

	doc, err := h.svc.Upload(c.Request.Context(), sess.RecordNumber, fh.Filename, f, fh.Size)
	if h.fail(c, "upload", err, "/subir_pdf") {
		return
	}
	h.flash.Add(c, tokens.CategorySuccess, "Documento subido: "+doc.OriginalName)
	c.Redirect(http.StatusFound, "/mis_documentos")
}

// fail reports err to the user and redirects back. It returns false when
// err is nil.
func (h *IntakeHandler) fail(c *gin.Context, step string, err error, back string) bool {
	if err == nil {
		metrics.IntakeSubmissions.WithLabelValues(step, metrics.ResultSuccess).Inc()
		return false
	}
	var verr *intake.ValidationError
	if errors.As(err, &verr) {
		metrics.IntakeSubmissions.WithLabelValues(step, metrics.ResultRejected).Inc()
		h.flash.Add(c, tokens.CategoryError, verr.Message)
	} else {
		metrics.IntakeSubmissions.WithLabelValues(step, metrics.ResultFailure).Inc()
		logger.Errorf("%s for %s: %v", step, middleware.CurrentSession(c).RecordNumber, err)
		_ = c.Error(err)
		h.flash.Add(c, tokens.CategoryError, msgGenericError)
	}
	c.Redirect(http.StatusFound, back)
	return true
}

func (h *IntakeHandler) Documents(c *gin.Context) {
	sess := middleware.CurrentSession(c)
	docs, err := h.svc.ListDocuments(c.Request.Context(), sess.RecordNumber)
	if err != nil {
		logger.Errorf("list documents for %s: %v", sess.RecordNumber, err)
		_ = c.Error(err)
		c.String(http.StatusInternalServerError, msgGenericError)
		return
	}
	c.HTML(http.StatusOK, "mis_documentos.html", h.data(c, "Mis documentos", gin.H{"Documents": docs}))
}

func (h *IntakeHandler) DownloadExam(c *gin.Context) {
	sess := middleware.CurrentSession(c)
	rc, exam, err := h.svc.OpenExam(c.Request.Context(), sess.RecordNumber, c.Param("name"))
	if h.missing(c, err) {
		return
	}
	defer rc.Close()
	sendPDF(c, rc, exam.Document)
}

func (h *IntakeHandler) DownloadUpload(c *gin.Context) {
	sess := middleware.CurrentSession(c)
	rc, doc, err := h.svc.OpenUpload(c.Request.Context(), sess.RecordNumber, c.Param("name"))
	if h.missing(c, err) {
		return
	}
	defer rc.Close()
	sendPDF(c, rc, doc.OriginalName)
}

// DownloadPrivate resolves an upload by id or stored name and redirects to
// a presigned URL, or streams the object when the backend cannot presign.
func (h *IntakeHandler) DownloadPrivate(c *gin.Context) {
	sess := middleware.CurrentSession(c)
	ctx := c.Request.Context()
	doc, err := h.svc.FindUpload(ctx, sess.RecordNumber, c.Param("ref"))
	if h.missing(c, err) {
		return
	}
	url, err := h.svc.UploadURL(ctx, doc)
	if err == nil {
		c.Redirect(http.StatusFound, url)
		return
	}
	if !errors.Is(err, storage.ErrPresignUnsupported) {
		logger.Warnf("presign %s: %v", doc.StoredName, err)
	}
	rc, _, err := h.svc.OpenUpload(ctx, sess.RecordNumber, doc.StoredName)
	if h.missing(c, err) {
		return
	}
	defer rc.Close()
	sendPDF(c, rc, doc.OriginalName)
}

func (h *IntakeHandler) missing(c *gin.Context, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, intake.ErrNotFound):
		c.String(http.StatusNotFound, msgDocumentNotFound)
	default:
		logger.Errorf("download: %v", err)
		_ = c.Error(err)
		c.String(http.StatusInternalServerError, msgGenericError)
	}
	return true
}

func sendPDF(c *gin.Context, r io.Reader, filename string) {
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": filename})
	c.DataFromReader(http.StatusOK, -1, "application/pdf", r, map[string]string{
		"Content-Disposition": disposition,
	})
}

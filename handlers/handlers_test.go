package handlers

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/serviciomed/serviciomed/internal/auth"
	"github.com/serviciomed/serviciomed/internal/intake"
	"github.com/serviciomed/serviciomed/internal/programs"
	"github.com/serviciomed/serviciomed/internal/records"
	"github.com/serviciomed/serviciomed/internal/render"
	"github.com/serviciomed/serviciomed/internal/sessions"
	"github.com/serviciomed/serviciomed/internal/storage"
	"github.com/serviciomed/serviciomed/internal/store"
	"github.com/serviciomed/serviciomed/internal/store/sqlite"
	"github.com/serviciomed/serviciomed/internal/users"
	"github.com/serviciomed/serviciomed/pkg/metrics"
)

const isc = "Ingeniería en Sistemas Computacionales"

func init() {
	gin.SetMode(gin.TestMode)
	auth.Cost = bcrypt.MinCost
}

type env struct {
	router *gin.Engine
	store  store.Store
	intake *intake.Service
	blobs  afero.Fs
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	s, err := sqlite.Open(ctx, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))

	catalog := programs.MustDefault()
	blobs := afero.NewMemMapFs()
	renderer := render.NewExamRenderer("")
	renderer.Compress = false
	intakeSvc := intake.NewService(s, storage.NewLocalStorage(blobs), renderer, intake.Options{MaxUploadBytes: 1 << 20})

	reg := prometheus.NewRegistry()
	metrics.RegisterCollectors(reg)

	r, err := NewRouter(Deps{
		Users:    users.NewService(s, records.NewAllocator(catalog)),
		Sessions: sessions.NewService(sessions.NewMemoryRepository()),
		Intake:   intakeSvc,
		Catalog:  catalog,
		Flash:    NewFlasher([]byte("test-secret"), false),
		Ready:    map[string]Pinger{"store": s},
		Gatherer: reg,
	})
	require.NoError(t, err)
	return &env{router: r, store: s, intake: intakeSvc, blobs: blobs}
}

// blobFiles lists every stored object.
func (e *env) blobFiles(t *testing.T) []string {
	t.Helper()
	var files []string
	err := afero.Walk(e.blobs, ".", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	require.NoError(t, err)
	return files
}

// client is a browser stand-in that keeps cookies between requests.
type client struct {
	t    *testing.T
	r    *gin.Engine
	jar  *cookiejar.Jar
	base *url.URL
}

func (e *env) client(t *testing.T) *client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	base, _ := url.Parse("http://serviciomed.test/")
	return &client{t: t, r: e.router, jar: jar, base: base}
}

func (cl *client) do(req *http.Request) *httptest.ResponseRecorder {
	for _, ck := range cl.jar.Cookies(cl.base) {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	cl.r.ServeHTTP(w, req)
	cl.jar.SetCookies(cl.base, w.Result().Cookies())
	return w
}

func (cl *client) get(path string) *httptest.ResponseRecorder {
	return cl.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (cl *client) post(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return cl.do(req)
}

func (cl *client) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	return cl.post(path, form.Encode())
}

func (cl *client) upload(path, filename, content string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("archivo", filename)
	require.NoError(cl.t, err)
	_, _ = io.WriteString(fw, content)
	require.NoError(cl.t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return cl.do(req)
}

func requireRedirect(t *testing.T, w *httptest.ResponseRecorder, to string) {
	t.Helper()
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	require.Equal(t, to, w.Header().Get("Location"))
}

func (cl *client) register(name, password, program string) *httptest.ResponseRecorder {
	return cl.postForm("/", url.Values{"nombre": {name}, "password": {password}, "carrera": {program}})
}

func (cl *client) login(name, password string) *httptest.ResponseRecorder {
	return cl.postForm("/login", url.Values{"nombre": {name}, "password": {password}})
}

func TestEndToEnd_RegisterLoginAndIntake(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	cl := e.client(t)

	w := cl.get("/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), isc)

	requireRedirect(t, cl.register("Ana", "pw", isc), "/login")
	w = cl.get("/login")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Tu expediente es ISC01")

	// the message is shown once
	assert.NotContains(t, cl.get("/login").Body.String(), "ISC01")

	requireRedirect(t, cl.login("Ana", "pw"), "/encuesta")

	w = cl.get("/encuesta")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Hola, Ana (ISC01)")

	requireRedirect(t, cl.postForm("/encuesta", url.Values{"respuesta": {"no alergias"}}), "/examen")
	surveys, err := e.store.Surveys().ListByRecordNumber(ctx, "ISC01")
	require.NoError(t, err)
	require.Len(t, surveys, 1)
	assert.Equal(t, "no alergias", surveys[0].Answer)

	w = cl.get("/examen")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<strong>ISC01</strong>")

	requireRedirect(t, cl.post("/examen", "peso=60&tipo_sangre=O%2B&expediente=HACK"), "/subir_pdf")
	docs, err := e.intake.ListDocuments(ctx, "ISC01")
	require.NoError(t, err)
	require.Len(t, docs.Exams, 1)
	exam := docs.Exams[0].Document
	assert.True(t, strings.HasPrefix(exam, "examen_ISC01_"), exam)

	requireRedirect(t, cl.upload("/subir_pdf", "resultado.pdf", "%PDF-1.4 resultado"), "/mis_documentos")

	docs, err = e.intake.ListDocuments(ctx, "ISC01")
	require.NoError(t, err)
	require.Len(t, docs.Exams, 1)
	require.Len(t, docs.Uploads, 1)
	up := docs.Uploads[0]
	assert.Equal(t, "ISC01", docs.Exams[0].RecordNumber)
	assert.Equal(t, "ISC01", up.RecordNumber)
	assert.Equal(t, "resultado.pdf", up.OriginalName)
	assert.NotEqual(t, up.OriginalName, up.StoredName)
	assert.True(t, strings.HasPrefix(up.StoredName, "ISC01_"), up.StoredName)
	assert.ElementsMatch(t, []string{"ISC01/" + exam, "ISC01/" + up.StoredName}, e.blobFiles(t))

	w = cl.get("/mis_documentos")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), exam)
	assert.Contains(t, w.Body.String(), "resultado.pdf")

	w = cl.get("/descargar/" + exam)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "%PDF-"))
	assert.Contains(t, w.Body.String(), "Peso: 60")
	assert.Contains(t, w.Body.String(), "Expediente: ISC01")
	assert.NotContains(t, w.Body.String(), "HACK")

	w = cl.get("/descargar_subido/" + up.StoredName)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF-1.4 resultado", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "resultado.pdf")

	// local storage cannot presign, so the private route streams
	w = cl.get("/descargar_privado/" + up.ID)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF-1.4 resultado", w.Body.String())

	requireRedirect(t, cl.get("/logout"), "/login")
	requireRedirect(t, cl.get("/encuesta"), "/login")
}

func TestRegister_DuplicateAndSequence(t *testing.T) {
	e := newEnv(t)
	cl := e.client(t)

	requireRedirect(t, cl.register("Ana", "pw", isc), "/login")
	cl.get("/login")

	requireRedirect(t, cl.register("Ana", "otra", isc), "/login")
	assert.Contains(t, cl.get("/login").Body.String(), "Usuario ya registrado")

	requireRedirect(t, cl.register("Luis", "pw", isc), "/login")
	assert.Contains(t, cl.get("/login").Body.String(), "Tu expediente es ISC02")

	requireRedirect(t, cl.register("Eva", "pw", "Licenciatura en Gastronomía"), "/login")
	assert.Contains(t, cl.get("/login").Body.String(), "Tu expediente es LG01")

	list, err := e.store.Users().FindByName(context.Background(), "Ana")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	requireRedirect(t, cl.register("", "pw", isc), "/")
	assert.Contains(t, cl.get("/").Body.String(), "Completa todos los campos")
}

func TestLogin_BadCredentials(t *testing.T) {
	e := newEnv(t)
	cl := e.client(t)
	requireRedirect(t, cl.register("Ana", "pw", isc), "/login")

	w := cl.login("Ana", "wrong")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Usuario o contraseña incorrectos")
	requireRedirect(t, cl.get("/encuesta"), "/login")

	w = cl.login("Nadie", "pw")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Usuario o contraseña incorrectos")
}

func TestProtectedRoutes_RequireSession(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	cl := e.client(t)

	for _, path := range []string{"/encuesta", "/examen", "/subir_pdf", "/mis_documentos", "/descargar/x.pdf", "/descargar_subido/x.pdf", "/descargar_privado/1"} {
		requireRedirect(t, cl.get(path), "/login")
	}
	requireRedirect(t, cl.postForm("/encuesta", url.Values{"respuesta": {"x"}}), "/login")
	requireRedirect(t, cl.post("/examen", "nombre=x"), "/login")
	requireRedirect(t, cl.upload("/subir_pdf", "a.pdf", "%PDF"), "/login")

	// a forged cookie is no better than none
	cl.jar.SetCookies(cl.base, []*http.Cookie{{Name: "serviciomed_session", Value: "forged", Path: "/"}})
	requireRedirect(t, cl.postForm("/encuesta", url.Values{"respuesta": {"x"}}), "/login")

	requireRedirect(t, cl.post("/examen", "peso=60"), "/login")
	requireRedirect(t, cl.upload("/subir_pdf", "b.pdf", "%PDF"), "/login")

	for _, rec := range []string{"", "ISC01"} {
		surveys, err := e.store.Surveys().ListByRecordNumber(ctx, rec)
		require.NoError(t, err)
		assert.Empty(t, surveys)
		exams, err := e.store.Exams().ListByRecordNumber(ctx, rec)
		require.NoError(t, err)
		assert.Empty(t, exams)
		uploads, err := e.store.Uploads().ListByRecordNumber(ctx, rec)
		require.NoError(t, err)
		assert.Empty(t, uploads)
	}
	assert.Empty(t, e.blobFiles(t))
}

func TestUpload_RejectsNonPDF(t *testing.T) {
	e := newEnv(t)
	cl := e.client(t)
	requireRedirect(t, cl.register("Ana", "pw", isc), "/login")
	requireRedirect(t, cl.login("Ana", "pw"), "/encuesta")

	requireRedirect(t, cl.upload("/subir_pdf", "foto.png", "png"), "/subir_pdf")
	assert.Contains(t, cl.get("/subir_pdf").Body.String(), "Solo se permiten archivos PDF")

	docs, err := e.intake.ListDocuments(context.Background(), "ISC01")
	require.NoError(t, err)
	assert.Empty(t, docs.Uploads)

	// a post without the file field
	requireRedirect(t, cl.postForm("/subir_pdf", url.Values{}), "/subir_pdf")
}

func TestDownloads_OwnerOnly(t *testing.T) {
	e := newEnv(t)
	ana := e.client(t)
	requireRedirect(t, ana.register("Ana", "pw", isc), "/login")
	requireRedirect(t, ana.login("Ana", "pw"), "/encuesta")
	requireRedirect(t, ana.upload("/subir_pdf", "a.pdf", "%PDF"), "/mis_documentos")
	requireRedirect(t, ana.post("/examen", "nombre=Ana"), "/subir_pdf")

	docs, err := e.intake.ListDocuments(context.Background(), "ISC01")
	require.NoError(t, err)
	require.Len(t, docs.Uploads, 1)
	require.Len(t, docs.Exams, 1)

	luis := e.client(t)
	requireRedirect(t, luis.register("Luis", "pw", isc), "/login")
	requireRedirect(t, luis.login("Luis", "pw"), "/encuesta")

	assert.Equal(t, http.StatusNotFound, luis.get("/descargar_subido/"+docs.Uploads[0].StoredName).Code)
	assert.Equal(t, http.StatusNotFound, luis.get("/descargar_privado/"+docs.Uploads[0].ID).Code)
	assert.Equal(t, http.StatusNotFound, luis.get("/descargar/"+docs.Exams[0].Document).Code)
	assert.Equal(t, http.StatusNotFound, ana.get("/descargar/missing.pdf").Code)
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t)
	cl := e.client(t)

	w := cl.get("/health")
	require.Equal(t, http.StatusOK, w.Code)

	w = cl.get("/ready")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"store":"ok"`)

	requireRedirect(t, cl.register("Ana", "pw", isc), "/login")
	w = cl.get("/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `serviciomed_registrations_total{prefix="ISC"}`)
}

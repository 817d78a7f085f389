package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/serviciomed/serviciomed/internal/auth"
	"github.com/serviciomed/serviciomed/internal/programs"
	"github.com/serviciomed/serviciomed/internal/sessions"
	"github.com/serviciomed/serviciomed/internal/tokens"
	"github.com/serviciomed/serviciomed/internal/users"
	"github.com/serviciomed/serviciomed/pkg/logger"
	"github.com/serviciomed/serviciomed/pkg/metrics"
	"github.com/serviciomed/serviciomed/pkg/middleware"
)

const (
	msgGenericError      = "Ocurrió un error, intenta de nuevo"
	msgBadCredentials    = "Usuario o contraseña incorrectos"
	msgAlreadyRegistered = "⚠️ Usuario ya registrado"
	msgMissingFields     = "Completa todos los campos"
)

// CookieOptions controls the session cookie.
type CookieOptions struct {
	TTL    time.Duration
	Secure bool
}

// AuthHandler holds dependencies
type AuthHandler struct {
	usersSvc    *users.Service
	sessionsSvc *sessions.Service
	catalog     *programs.Catalog
	flash       *Flasher
	cookie      CookieOptions
}

func NewAuthHandler(u *users.Service, s *sessions.Service, catalog *programs.Catalog, flash *Flasher, cookie CookieOptions) *AuthHandler {
	if cookie.TTL <= 0 {
		cookie.TTL = sessions.DefaultTTL
	}
	return &AuthHandler{usersSvc: u, sessionsSvc: s, catalog: catalog, flash: flash, cookie: cookie}
}

// Register mounts the public routes. limit guards the form posts and may be nil.
func (h *AuthHandler) Register(r gin.IRouter, limit gin.HandlerFunc) {
	post := []gin.HandlerFunc{}
	if limit != nil {
		post = append(post, limit)
	}
	r.GET("/", h.RegisterForm)
	r.POST("/", append(post, h.RegisterSubmit)...)
	r.GET("/login", h.LoginForm)
	r.POST("/login", append(post, h.Login)...)
	r.GET("/logout", h.Logout)
}

func (h *AuthHandler) RegisterForm(c *gin.Context) {
	c.HTML(http.StatusOK, "registro.html", gin.H{
		"Title":    "Registro",
		"Flashes":  h.flash.Pop(c),
		"Programs": h.catalog.Names(),
	})
}

// RegisterSubmit creates the user and shows the allocated record number on
// the login page.
func (h *AuthHandler) RegisterSubmit(c *gin.Context) {
	u, err := h.usersSvc.Register(c.Request.Context(), users.RegisterInput{
		Name:     c.PostForm("nombre"),
		Password: c.PostForm("password"),
		Program:  c.PostForm("carrera"),
	})
	switch {
	case err == nil:
		metrics.Registrations.WithLabelValues(h.catalog.Prefix(u.Program)).Inc()
		logger.Infof("registered %s as %s", u.Name, u.RecordNumber)
		h.flash.Add(c, tokens.CategorySuccess, "✅ Registro exitoso. Tu expediente es "+u.RecordNumber)
		c.Redirect(http.StatusFound, "/login")
	case errors.Is(err, users.ErrAlreadyRegistered):
		h.flash.Add(c, tokens.CategoryWarning, msgAlreadyRegistered)
		c.Redirect(http.StatusFound, "/login")
	case errors.Is(err, users.ErrInvalidInput):
		h.flash.Add(c, tokens.CategoryError, msgMissingFields)
		c.Redirect(http.StatusFound, "/")
	default:
		logger.Errorf("register: %v", err)
		h.flash.Add(c, tokens.CategoryError, msgGenericError)
		c.Redirect(http.StatusFound, "/")
	}
}

func (h *AuthHandler) LoginForm(c *gin.Context) {
	if middleware.CurrentSession(c) != nil {
		c.Redirect(http.StatusFound, "/encuesta")
		return
	}
	h.renderLogin(c, http.StatusOK)
}

func (h *AuthHandler) renderLogin(c *gin.Context, status int) {
	c.HTML(status, "login.html", gin.H{
		"Title":   "Iniciar sesión",
		"Flashes": h.flash.Pop(c),
	})
}

// Login checks the credentials and opens a server-side session.
func (h *AuthHandler) Login(c *gin.Context) {
	ctx := c.Request.Context()
	u, err := h.usersSvc.Authenticate(ctx, c.PostForm("nombre"), c.PostForm("password"))
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			logger.Errorf("login: %v", err)
		}
		metrics.Logins.WithLabelValues(metrics.ResultFailure).Inc()
		h.flash.Add(c, tokens.CategoryError, msgBadCredentials)
		h.renderLogin(c, http.StatusOK)
		return
	}

	id, err := h.sessionsSvc.CreateSession(ctx, u.Name, u.RecordNumber, h.cookie.TTL)
	if err != nil {
		logger.Errorf("failed to create session: %v", err)
		h.flash.Add(c, tokens.CategoryError, msgGenericError)
		h.renderLogin(c, http.StatusOK)
		return
	}
	metrics.Logins.WithLabelValues(metrics.ResultSuccess).Inc()
	h.setSessionCookie(c, id, int(h.cookie.TTL.Seconds()))
	c.Redirect(http.StatusFound, "/encuesta")
}

// Logout drops the server-side session and the cookie, whether or not the
// session still exists.
func (h *AuthHandler) Logout(c *gin.Context) {
	if id, err := c.Cookie(middleware.SessionCookie); err == nil {
		if err := h.sessionsSvc.Delete(c.Request.Context(), id); err != nil {
			logger.Warnf("failed to remove session: %v", err)
		}
	}
	h.setSessionCookie(c, "", -1)
	c.Redirect(http.StatusFound, "/login")
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, value, maxAge, "/", "", h.cookie.Secure, true)
}

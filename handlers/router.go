package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/serviciomed/serviciomed/internal/intake"
	"github.com/serviciomed/serviciomed/internal/programs"
	"github.com/serviciomed/serviciomed/internal/sessions"
	"github.com/serviciomed/serviciomed/internal/users"
	"github.com/serviciomed/serviciomed/internal/web"
	"github.com/serviciomed/serviciomed/pkg/middleware"
)

// Deps are the services the router dispatches to.
type Deps struct {
	Users    *users.Service
	Sessions *sessions.Service
	Intake   *intake.Service
	Catalog  *programs.Catalog
	Flash    *Flasher
	Cookie   CookieOptions
	// RateLimit guards the public form posts; nil disables it.
	RateLimit gin.HandlerFunc
	// Ready lists the dependencies checked by /ready.
	Ready map[string]Pinger
	// Gatherer backs /metrics; nil leaves the route out.
	Gatherer prometheus.Gatherer
}

// NewRouter builds the application engine.
func NewRouter(d Deps) (*gin.Engine, error) {
	tmpl, err := web.Templates()
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.SetHTMLTemplate(tmpl)
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger("/health", "/ready", "/metrics"))
	r.Use(middleware.LoadSession(d.Sessions))

	NewHealthHandler(d.Ready).Register(r)
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	NewAuthHandler(d.Users, d.Sessions, d.Catalog, d.Flash, d.Cookie).Register(r, d.RateLimit)

	protected := r.Group("/", middleware.RequireSession("/login"))
	NewIntakeHandler(d.Intake, d.Flash).Register(protected)
	return r, nil
}

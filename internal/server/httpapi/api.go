// Package httpapi serves the quantity-plan JSON endpoints over chi.
package httpapi

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/and161185/qty-planner/internal/service"
)

// Route paths served by the API.
const (
	PathLogin      = "/login"
	PathRefresh    = "/refresh"
	PathLogout     = "/logout"
	PathRegister   = "/register"
	PathMasterData = "/fetch-master-data"
	PathDetailView = "/mobapp_get_detail_view"
	PathSave       = "/save_quantity_plan_media_issue"
	PathMetrics    = "/metrics"
	PathHealth     = "/healthz"
)

// API implements the HTTP endpoints on top of the auth and plan services.
type API struct {
	auth     service.AuthService
	plans    service.PlanService
	log      *zap.Logger
	reg      *prometheus.Registry
	validate *validator.Validate
	timeout  time.Duration
	clients  *ClientLimiter
	now      func() time.Time
}

// Option configures an API.
type Option func(*API)

// WithRegistry exposes metrics from reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option { return func(a *API) { a.reg = reg } }

// WithRequestTimeout bounds handler run time (default 30s).
func WithRequestTimeout(d time.Duration) Option { return func(a *API) { a.timeout = d } }

// WithClientRate limits every client IP to rps requests per second. Zero disables it.
func WithClientRate(rps float64, burst int) Option {
	return func(a *API) {
		if rps > 0 {
			a.clients = NewClientLimiter(rps, burst, 10*time.Minute)
		}
	}
}

// New constructs the API.
func New(auth service.AuthService, plans service.PlanService, log *zap.Logger, opts ...Option) *API {
	if log == nil {
		log = zap.NewNop()
	}
	a := &API{
		auth:     auth,
		plans:    plans,
		log:      log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		timeout:  30 * time.Second,
		now:      time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	if a.reg == nil {
		a.reg = prometheus.NewRegistry()
		a.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return a
}

// Handler builds the router. Call it once per registry: collectors register on each call.
func (a *API) Handler() http.Handler {
	m := NewMetrics(a.reg)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(Logging(a.log))
	r.Use(Recover(a.log))
	r.Use(m.Middleware)
	if a.clients != nil {
		r.Use(a.clients.Middleware)
	}
	r.Use(middleware.Timeout(a.timeout))

	r.Get(PathHealth, func(w http.ResponseWriter, _ *http.Request) { ok(w, "ok", nil) })
	r.Method(http.MethodGet, PathMetrics, promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{}))

	r.Post(PathRegister, a.handleRegister)
	r.Post(PathLogin, a.handleLogin)
	r.Get(PathRefresh, a.handleRefresh)
	r.Post(PathLogout, a.handleLogout)

	r.Group(func(pr chi.Router) {
		pr.Use(Authenticate(a.auth, a.log))
		pr.Post(PathMasterData, a.handleMasterData)
		pr.Post(PathDetailView, a.handleDetailView)
		pr.Post(PathSave, a.handleSave)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) { fail(w, http.StatusNotFound, "Not found") })
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		fail(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}

// remoteIP returns the host part of RemoteAddr (RealIP has already applied forwarding headers).
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

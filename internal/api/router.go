package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/crewdeck/crewdeck/internal/activity"
	"github.com/crewdeck/crewdeck/internal/auth"
	"github.com/crewdeck/crewdeck/internal/metrics"
	"github.com/crewdeck/crewdeck/internal/notify"
	"github.com/crewdeck/crewdeck/internal/ratelimit"
	"github.com/crewdeck/crewdeck/internal/scoped"
	"github.com/crewdeck/crewdeck/internal/tenant"
)

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	TenantStore    *tenant.Store
	CrewStore      *scoped.CrewStore
	TaskStore      *scoped.TaskStore
	TimeEntryStore *scoped.TimeEntryStore
	ActivityStore  *activity.Store
	Collector      *activity.Collector
	Auth           *auth.Service
	Broker         *notify.Broker
	LoginLimiter   *ratelimit.Limiter
	Metrics        *metrics.Metrics
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(secureHeaders)
	r.Use(slogRequestLogger)
	r.Use(instrument(deps.Metrics))

	// Handlers.
	authH := newAuthHandler(deps.Auth)
	me := newMeHandler(deps.TenantStore)
	sites := newSiteHandler(deps.TenantStore, deps.Broker, deps.Collector)
	assignments := newAssignmentHandler(deps.TenantStore, deps.Broker, deps.Collector)
	crew := newCrewHandler(deps.CrewStore, deps.Collector)
	tasks := newTaskHandler(deps.TaskStore, deps.Collector)
	timeEntries := newTimeEntryHandler(deps.TimeEntryStore, deps.Collector)
	feed := newActivityHandler(deps.ActivityStore)
	users := newUserHandler(deps.TenantStore)
	events := newEventsHandler(deps.Broker)

	// Health check.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Metrics (Prometheus text format plus a JSON summary).
	r.Get("/metrics", deps.Metrics.PrometheusHandler().ServeHTTP)
	r.Get("/metrics/summary", deps.Metrics.Handler())

	// Login is the only unauthenticated API route, and the only
	// rate-limited one.
	r.Group(func(lr chi.Router) {
		lr.Use(ratelimit.Middleware(deps.LoginLimiter, deps.Metrics.IncRateLimitRejection))
		lr.Post("/api/v1/auth/login", authH.Login)
	})

	// Session-authed routes.
	r.Route("/api/v1", func(ar chi.Router) {
		ar.Use(auth.Middleware(deps.Auth, deps.Metrics))

		ar.Get("/auth/me", authH.Me)
		ar.Post("/auth/logout", authH.Logout)

		// The caller's own accessible-site surface.
		ar.Get("/me/sites", me.ListSites)
		ar.Get("/me/sites/{siteID}/role", me.SiteRole)
		ar.Get("/me/assignments", assignments.ListMine)

		// Change stream.
		ar.Get("/events", events.Stream)

		// Sites.
		ar.Get("/sites", sites.List)
		ar.Get("/sites/{siteID}", sites.Get)
		ar.Patch("/sites/{siteID}", sites.Update)
		ar.Delete("/sites/{siteID}", sites.Delete)
		ar.With(auth.RequireAdmin).Post("/sites", sites.Create)

		// Assignments.
		ar.Get("/sites/{siteID}/assignments", assignments.ListBySite)
		ar.Post("/sites/{siteID}/assignments", assignments.Create)
		ar.Patch("/assignments/{assignmentID}", assignments.Update)
		ar.Delete("/assignments/{assignmentID}", assignments.Delete)

		// Crew members.
		ar.Get("/sites/{siteID}/crew", crew.ListBySite)
		ar.Post("/sites/{siteID}/crew", crew.Create)
		ar.Get("/crew/{crewMemberID}", crew.Get)
		ar.Patch("/crew/{crewMemberID}", crew.Update)
		ar.Delete("/crew/{crewMemberID}", crew.Delete)

		// Tasks.
		ar.Get("/sites/{siteID}/tasks", tasks.ListBySite)
		ar.Post("/sites/{siteID}/tasks", tasks.CreateBySite)
		ar.Get("/tasks/org-wide", tasks.ListOrgWide)
		ar.Post("/tasks/org-wide", tasks.CreateOrgWide)
		ar.Get("/tasks/{taskID}", tasks.Get)
		ar.Patch("/tasks/{taskID}", tasks.Update)
		ar.Delete("/tasks/{taskID}", tasks.Delete)

		// Time entries.
		ar.Get("/sites/{siteID}/time-entries", timeEntries.ListBySite)
		ar.Post("/sites/{siteID}/time-entries", timeEntries.Create)
		ar.Patch("/time-entries/{timeEntryID}", timeEntries.Update)
		ar.Delete("/time-entries/{timeEntryID}", timeEntries.Delete)

		// Activity feed.
		ar.Get("/sites/{siteID}/activity", feed.ListBySite)

		// Users.
		ar.Get("/users/{userID}", users.Get)
		ar.With(auth.RequireAdmin).Get("/users", users.List)
		ar.With(auth.RequireAdmin).Post("/users", users.Create)
	})

	return r
}

// slogRequestLogger is a simple structured logging middleware using slog.
func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes", ww.BytesWritten(),
			"request_id", RequestIDFromContext(r.Context()),
		)
	})
}

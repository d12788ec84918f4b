package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/staff-portal/internal/directory"
	"github.com/kozaktomas/staff-portal/internal/enroll"
	"github.com/kozaktomas/staff-portal/internal/web/handlers"
	"github.com/kozaktomas/staff-portal/internal/web/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupRoutes() {
	sm := s.deps.SessionManager
	kind, err := directory.ParseIdentityKind(s.config.Directory.IdentityKey)
	if err != nil {
		kind = directory.IdentityEmail
	}

	authHandler := handlers.NewAuthHandler(s.deps.Engine, sm)
	faceHandler := handlers.NewFaceHandler(s.deps.FaceSessions, sm, s.log)
	usersHandler := handlers.NewUsersHandler(enroll.NewService(s.deps.Directory, s.deps.Images, kind, s.log), s.log)

	s.router.Get("/api/v1/health", handlers.HealthCheck)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))

	s.router.Route("/api/v1", func(r chi.Router) {
		// Anything that checks a credential, a face or loads the enrolled
		// pool is rate limited per client.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(s.config.Web.LoginRateLimit))

			r.Post("/auth/login", authHandler.Login)
			r.Post("/face/sessions", faceHandler.Open)
			r.Post("/face/sessions/{id}/login", faceHandler.Login)
			r.Post("/users", usersHandler.Register)
		})

		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/auth/status", authHandler.Status)
		r.Delete("/face/sessions/{id}", faceHandler.Cancel)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(sm))

			r.Get("/users", usersHandler.List)
			r.Post("/users/face", usersHandler.SetFace)
			if s.deps.Events != nil {
				r.Get("/login-events", handlers.NewEventsHandler(s.deps.Events, s.log).Recent)
			}
		})
	})
}

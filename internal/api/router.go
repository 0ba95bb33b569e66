package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/LuckPerms/rest-api/internal/docs"
)

// docsIndex is where GET / sends browsers.
const docsIndex = "/docs/swagger-ui"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.withRequestID)
	r.Use(s.logRequests)
	r.Use(s.recoverPanics)
	r.Use(s.limitBody)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	// Open routes
	r.Get("/", http.RedirectHandler(docsIndex, http.StatusFound).ServeHTTP)
	r.Handle("/docs/*", http.StripPrefix("/docs", docs.Handler()))

	// Everything else sits behind the auth gate
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/health", s.handle(s.health))
		if s.metricsHandler != nil {
			r.Handle("/metrics", s.metricsHandler)
		}

		r.Route("/user", func(r chi.Router) {
			r.Get("/lookup", s.handle(s.users.lookup))
			mountHolder(r, s, s.users)
		})
		r.Route("/group", func(r chi.Router) {
			mountHolder(r, s, s.groups)
		})
		r.Route("/track", func(r chi.Router) {
			mountHolder(r, s, s.tracks)
		})

		r.Route("/action", func(r chi.Router) {
			r.Get("/", s.handle(s.queryActions))
			r.Post("/", s.handle(s.submitAction))
		})

		r.Route("/messaging", func(r chi.Router) {
			r.Post("/update", s.handle(s.messagingUpdate))
			r.Post("/update/{id}", s.handle(s.messagingUserUpdate))
			r.Post("/custom", s.handle(s.messagingCustom))
		})

		r.Get("/event/{kind}", s.events.ServeHTTP)
	})

	return r
}

// mountHolder registers the shared holder operation set under r.
func mountHolder(r chi.Router, s *Server, h holderHandler) {
	r.Get("/", s.handle(h.getAll))
	r.Post("/", s.handle(h.create))
	r.Get("/search", s.handle(h.search))

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", s.handle(h.get))
		r.Patch("/", s.handle(h.update))
		r.Delete("/", s.handle(h.delete))

		r.Get("/nodes", s.handle(h.nodesGet))
		r.Post("/nodes", s.handle(h.nodesAddSingle))
		r.Patch("/nodes", s.handle(h.nodesAddMultiple))
		r.Put("/nodes", s.handle(h.nodesSet))
		r.Delete("/nodes", s.handle(h.nodesDelete))

		r.Get("/meta", s.handle(h.metaGet))

		for _, path := range []string{"/permission-check", "/permissionCheck"} {
			r.Get(path, s.handle(h.permissionCheck))
			r.Post(path, s.handle(h.permissionCheckCustom))
		}

		r.Post("/promote", s.handle(h.promote))
		r.Post("/demote", s.handle(h.demote))
	})
}

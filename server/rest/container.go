package rest

import (
	"github.com/go-chi/chi/v5"

	middlewares "github.com/mediadl/mediadl/server/middleware"
)

func Container(args *ContainerArgs) *Handler {
	var (
		service = ProvideService(args)
		handler = ProvideHandler(service)
	)
	return handler
}

func ApplyRouter(args *ContainerArgs) func(chi.Router) {
	return routes(Container(args))
}

func routes(h *Handler) func(chi.Router) {
	return func(r chi.Router) {
		r.Use(middlewares.ApplyAuthenticationByConfig)

		r.Route("/engines", func(r chi.Router) {
			r.Get("/", h.Engines())
			r.Get("/{name}", h.Engine())
			r.Get("/{name}/release", h.LatestRelease())
			r.Post("/{name}/install", h.InstallEngine())
			r.Post("/{name}/update", h.UpdateEngine())
		})

		r.Post("/probe", h.Probe())

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", h.Tasks())
			r.Post("/", h.Add())
			r.Get("/{id}", h.Task())
			r.Post("/start", h.Start())
			r.Post("/stop", h.Stop())
			r.Post("/remove", h.Remove())
		})
	}
}

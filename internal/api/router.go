package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/comicshelf/internal/library"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *library.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/comics", h.ListComics)
	r.Route("/comics/{id}", func(r chi.Router) {
		r.Get("/", h.GetComic)
		r.Put("/tags", h.SetTags)
		r.Put("/loved", h.SetLoved)
		r.Put("/disliked", h.SetDisliked)
		r.Put("/overrides", h.SetOverrides)
		r.Get("/progress", h.GetProgress)
		r.Put("/progress", h.SetProgress)
		r.Get("/command", h.Command)
		r.Post("/launch", h.Launch)
		r.Get("/thumbnail", h.Thumbnail)
	})

	r.Get("/tags", h.Tags)
	r.Post("/tokenize", h.Tokenize)
	r.Post("/rescan", h.Rescan)
	r.Post("/shuffle", h.Shuffle)

	r.Get("/extensions", h.Extensions)
	r.Post("/extensions/{name}", h.RunExtension)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}

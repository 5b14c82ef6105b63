package httpapi

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"deckmerge/internal/http/handlers"
	"deckmerge/internal/middleware"
)

func NewRouter(app *handlers.App, logger zerolog.Logger) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimiddleware.RealIP, chimiddleware.Recoverer)
	r.Use(middleware.Logger(logger))

	r.Get("/v1/healthz", app.Health)
	r.Post("/merge", app.MergeDeck)

	return r
}

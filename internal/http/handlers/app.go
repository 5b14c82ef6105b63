package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"deckmerge/internal/merge"
)

// App bundles the dependencies shared by HTTP handlers.
type App struct {
	Merge  *merge.Service
	Logger zerolog.Logger
}

func NewApp(svc *merge.Service, logger zerolog.Logger) *App {
	return &App{Merge: svc, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

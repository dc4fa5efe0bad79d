package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/derefd/internal/httpserver/deps"
	"github.com/MrSnakeDoc/derefd/internal/httpserver/handlers"
)

func init() {
	Register(Protected, func(r chi.Router, d deps.Deps) {
		r.Post("/reload", handlers.Reload(d))
	})
}

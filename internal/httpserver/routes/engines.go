package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/derefd/internal/httpserver/deps"
	"github.com/MrSnakeDoc/derefd/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/derefd/internal/httpserver/mw"
)

func init() { Register(Protected, registerEngines) }

func registerEngines(r chi.Router, d deps.Deps) {
	r.Get("/engines", handlers.Engines(d))
	r.Get("/sites", handlers.Sites(d))

	burst, perMinute := d.EnhanceBurst, d.EnhancePerMinute
	if burst <= 0 {
		burst = 30
	}
	if perMinute <= 0 {
		perMinute = 120
	}
	r.With(mw.RateLimit(mw.RateLimitConfig{
		Burst:      burst,
		PerMinute:  perMinute,
		MaxClients: 10000,
		TrustProxy: d.TrustProxy,
		Scope:      func(r *http.Request) string { return chi.URLParam(r, "name") },
		Metrics:    d.Metrics,
	})).Post("/engines/{name}/enhance", handlers.Enhance(d))
}

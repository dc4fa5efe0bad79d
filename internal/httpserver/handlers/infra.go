package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/derefd/internal/httpserver/deps"
	"github.com/MrSnakeDoc/derefd/internal/site"
)

type componentStatus struct {
	OK      bool   `json:"ok"`
	Loaded  *int   `json:"loaded,omitempty"`
	Total   *int   `json:"total,omitempty"`
	Source  string `json:"source,omitempty"`
	Mode    string `json:"mode,omitempty"`
	Impact  string `json:"impact,omitempty"`
	Error   string `json:"error,omitempty"`
	Subject string `json:"subject,omitempty"`
}

type infraResponse struct {
	ServingMode string                     `json:"serving_mode"`
	Components  map[string]componentStatus `json:"components"`
}

func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sitesCount := 0
		if d.Registry != nil {
			sitesCount = len(d.Registry.Lookup(site.CapabilitySite))
		}
		published := 0
		for _, reg := range d.Registrars {
			if reg.Published() != nil {
				published++
			}
		}
		total := len(d.Registrars)

		components := map[string]componentStatus{
			"sites": {
				OK:     sitesCount > 0,
				Loaded: &sitesCount,
				Source: d.SitesFile,
			},
			"engines": {
				OK:     published > 0,
				Loaded: &published,
				Total:  &total,
			},
			"redis":    checkRedis(r.Context(), d),
			"announce": checkAnnounce(d),
		}

		response := infraResponse{
			ServingMode: determineServingMode(components),
			Components:  components,
		}

		writeJSON(w, http.StatusOK, response)
	}
}

func determineServingMode(components map[string]componentStatus) string {
	if sites, exists := components["sites"]; exists && !sites.OK {
		return "critical" // nothing to dereference against
	}
	if engines, exists := components["engines"]; exists && !engines.OK {
		return "critical"
	}

	// Redis and NATS are optional, their loss only degrades the service
	for _, name := range []string{"redis", "announce"} {
		if c, exists := components[name]; exists && !c.OK && c.Mode != "disabled" {
			return "degraded"
		}
	}
	return "nominal"
}

func checkRedis(ctx context.Context, d deps.Deps) componentStatus {
	if d.RedisClient == nil {
		return componentStatus{
			OK:     false,
			Mode:   "disabled",
			Impact: "cache-and-mirror-disabled",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := d.RedisClient.Ping(ctx).Err(); err != nil {
		return componentStatus{
			OK:     false,
			Mode:   "degraded",
			Impact: "cache-and-mirror-unavailable",
			Error:  err.Error(),
		}
	}

	return componentStatus{
		OK:     true,
		Mode:   "optimal",
		Impact: "cache-and-mirror-enabled",
	}
}

func checkAnnounce(d deps.Deps) componentStatus {
	if d.Announcer == nil {
		return componentStatus{OK: false, Mode: "disabled"}
	}
	if !d.Announcer.Connected() {
		return componentStatus{OK: false, Mode: "degraded", Error: "not connected"}
	}
	return componentStatus{OK: true, Mode: "listening"}
}

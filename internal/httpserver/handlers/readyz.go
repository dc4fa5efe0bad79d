package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/derefd/internal/httpserver/deps"
	"github.com/MrSnakeDoc/derefd/internal/site"
)

type readyzResponse struct {
	Ready     bool `json:"ready"`
	Sites     int  `json:"sites"`
	Published int  `json:"published_engines"`
}

// Readyz reports ready once at least one site is registered and one engine
// is published.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := readyzResponse{}
		if d.Registry != nil {
			resp.Sites = len(d.Registry.Lookup(site.CapabilitySite))
		}
		for _, reg := range d.Registrars {
			if reg.Published() != nil {
				resp.Published++
			}
		}
		resp.Ready = resp.Sites > 0 && resp.Published > 0

		status := http.StatusOK
		if !resp.Ready {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}

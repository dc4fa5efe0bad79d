package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/derefd/internal/httpserver/deps"
	"github.com/MrSnakeDoc/derefd/internal/scheduler"
)

// Sites lists the registered sites.
func Sites(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sites := []scheduler.SiteStatus{}
		if d.Sites != nil {
			sites = append(sites, d.Sites.Sites()...)
		}
		writeJSON(w, http.StatusOK, sites)
	}
}

package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/derefd/internal/httpserver/deps"
	"github.com/MrSnakeDoc/derefd/internal/logger"
)

type reloadResponse struct {
	Status    string `json:"status"`
	SitesFile string `json:"sites_file,omitempty"`
}

// Reload queues a reload of the sites file. Only one reload can be pending.
func Reload(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case d.ReloadTrigger <- struct{}{}:
			d.Logger.Info("sites reload queued",
				logger.String("remote_ip", r.RemoteAddr),
				logger.String("sites_file", d.SitesFile))
			writeJSON(w, http.StatusAccepted, reloadResponse{Status: "queued", SitesFile: d.SitesFile})
		default:
			d.Logger.Warn("sites reload already pending",
				logger.String("remote_ip", r.RemoteAddr))
			writeError(w, http.StatusTooManyRequests, "a reload is already pending")
		}
	}
}

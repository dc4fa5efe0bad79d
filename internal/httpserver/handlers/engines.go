package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrSnakeDoc/derefd/internal/engine"
	"github.com/MrSnakeDoc/derefd/internal/httpserver/deps"
	"github.com/MrSnakeDoc/derefd/internal/logger"
)

const maxEnhanceBody = 1 << 20

type engineStatus struct {
	Name           string   `json:"name"`
	Site           string   `json:"site"`
	Active         bool     `json:"active"`
	Published      bool     `json:"published"`
	RegistrationID string   `json:"registration_id,omitempty"`
	TrackedSites   int      `json:"tracked_sites"`
	Sites          []string `json:"sites"`
}

// Engines lists the configured engines and their publication state.
func Engines(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := make([]engineStatus, 0, len(d.Registrars))
		for _, reg := range d.Registrars {
			st := engineStatus{
				Name:         reg.Name(),
				Site:         reg.SiteSelector(),
				Active:       reg.Active(),
				TrackedSites: reg.TrackedServiceCount(),
				Sites:        reg.Sites(),
			}
			if st.Sites == nil {
				st.Sites = []string{}
			}
			if p := reg.Published(); p != nil {
				st.Published = true
				st.RegistrationID = p.ID()
			}
			out = append(out, st)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type enhanceRequest struct {
	ID       string   `json:"id"`
	Entities []string `json:"entities"`
}

type enhanceResponse struct {
	ID           string               `json:"id"`
	Engine       string               `json:"engine"`
	Enhancements []engine.Enhancement `json:"enhancements"`
}

// Enhance runs a published engine over the entities of the request body.
func Enhance(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		eng := findPublished(d, name)
		if eng == nil {
			if knownEngine(d, name) {
				writeError(w, http.StatusServiceUnavailable, "engine is not published")
				return
			}
			writeError(w, http.StatusNotFound, "unknown engine")
			return
		}

		var req enhanceRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEnhanceBody))
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		entities := make([]string, 0, len(req.Entities))
		for _, e := range req.Entities {
			if e = strings.TrimSpace(e); e != "" {
				entities = append(entities, e)
			}
		}
		if len(entities) == 0 {
			writeError(w, http.StatusBadRequest, "entities must not be empty")
			return
		}
		if req.ID == "" {
			req.ID = uuid.NewString()
		}

		ci := engine.NewContentItem(req.ID, entities)
		if eng.CanEnhance(ci) == engine.CannotEnhance {
			writeError(w, http.StatusServiceUnavailable, "engine cannot enhance this content item")
			return
		}

		if err := eng.ComputeEnhancements(r.Context(), ci); err != nil {
			d.Logger.Warn("enhancement failed",
				logger.String("engine", name),
				logger.String("content_item", ci.ID),
				logger.Error(err))
			status := http.StatusBadGateway
			if errors.Is(err, context.DeadlineExceeded) || r.Context().Err() != nil {
				status = http.StatusGatewayTimeout
			}
			writeError(w, status, err.Error())
			return
		}

		enhancements := ci.Enhancements()
		if enhancements == nil {
			enhancements = []engine.Enhancement{}
		}
		writeJSON(w, http.StatusOK, enhanceResponse{
			ID:           ci.ID,
			Engine:       eng.Name(),
			Enhancements: enhancements,
		})
	}
}

// findPublished looks the engine up in the registry, so only published
// engines are reachable.
func findPublished(d deps.Deps, name string) engine.EnhancementEngine {
	if d.Registry == nil {
		return nil
	}
	for _, reg := range d.Registry.Lookup(engine.CapabilityEnhancementEngine) {
		if reg.Metadata().String(engine.PropertyName) != name {
			continue
		}
		if eng, ok := reg.Service().(engine.EnhancementEngine); ok {
			return eng
		}
	}
	return nil
}

func knownEngine(d deps.Deps, name string) bool {
	for _, reg := range d.Registrars {
		if reg.Name() == name {
			return true
		}
	}
	return false
}

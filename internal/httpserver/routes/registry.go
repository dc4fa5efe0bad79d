package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/derefd/internal/httpserver/deps"
	"github.com/MrSnakeDoc/derefd/internal/httpserver/mw"
)

// Access is the guard level applied to a group of routes.
type Access int

const (
	// Public routes are reachable by anyone.
	Public Access = iota
	// Internal routes are limited to the allowed CIDRs.
	Internal
	// Protected routes also require an allowed Host header.
	Protected
)

// Registrar mounts a group of routes.
type Registrar func(r chi.Router, d deps.Deps)

type group struct {
	access Access
	mount  Registrar
}

var groups []group

// Register adds a route group. Called from init functions.
func Register(access Access, mount Registrar) {
	groups = append(groups, group{access: access, mount: mount})
}

// RegisterAll mounts every group behind the guards of its access level.
func RegisterAll(r chi.Router, d deps.Deps) {
	for _, g := range groups {
		mws := guards(g.access, d)
		if len(mws) == 0 {
			g.mount(r, d)
			continue
		}
		g.mount(r.With(mws...), d)
	}
}

func guards(a Access, d deps.Deps) []func(http.Handler) http.Handler {
	switch a {
	case Internal:
		return []func(http.Handler) http.Handler{
			mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger, d.Metrics),
		}
	case Protected:
		return []func(http.Handler) http.Handler{
			mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger, d.Metrics),
			mw.EnforceHost(d.AllowedHosts, d.Logger, d.Metrics),
		}
	default:
		return nil
	}
}

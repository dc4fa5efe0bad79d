package mw

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/derefd/internal/logger"
	"github.com/MrSnakeDoc/derefd/internal/metrics"
	"github.com/MrSnakeDoc/derefd/internal/utils"
)

func passthrough(next http.Handler) http.Handler { return next }

// reject writes the JSON error body shared with the handlers.
func reject(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{msg})
}

// AllowOnlyCIDRS only lets callers whose address falls into allowed through.
// An empty list disables the check. When every entry is invalid nothing is
// let through.
func AllowOnlyCIDRS(allowed []string, trustProxy bool, log logger.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	set, err := utils.ParseAddrSet(allowed)
	if err != nil {
		log.Warn("ignoring invalid allowed CIDRs", logger.Error(err))
	}
	if set.Len() == 0 && err == nil {
		return passthrough
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := utils.ClientIP(r, trustProxy)
			if !set.Contains(ip) {
				log.Debug("request rejected",
					logger.String("reason", "cidr"),
					logger.String("ip", ip),
					logger.String("path", r.URL.Path))
				m.HTTPRejected("cidr")
				reject(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// EnforceHost only serves requests whose Host header matches one of the
// patterns. "*.example.com" matches any subdomain of example.com. Ports and
// letter case are ignored. An empty list disables the check.
func EnforceHost(allowedHosts []string, log logger.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	patterns := make([]string, 0, len(allowedHosts))
	for _, h := range allowedHosts {
		if h = normalizeHost(h); h != "" {
			patterns = append(patterns, h)
		}
	}
	if len(patterns) == 0 {
		return passthrough
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := normalizeHost(r.Host)
			for _, p := range patterns {
				if matchHost(host, p) {
					next.ServeHTTP(w, r)
					return
				}
			}
			log.Debug("request rejected",
				logger.String("reason", "host"),
				logger.String("host", r.Host),
				logger.String("path", r.URL.Path))
			m.HTTPRejected("host")
			reject(w, http.StatusForbidden, "forbidden")
		})
	}
}

func normalizeHost(h string) string {
	h = strings.TrimSpace(h)
	if host, _, err := net.SplitHostPort(h); err == nil {
		h = host
	}
	return strings.TrimSuffix(strings.ToLower(h), ".")
}

func matchHost(host, pattern string) bool {
	if suffix, ok := strings.CutPrefix(pattern, "*"); ok && strings.HasPrefix(suffix, ".") {
		return strings.HasSuffix(host, suffix) && len(host) > len(suffix)
	}
	return host == pattern
}

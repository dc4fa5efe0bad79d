package deps

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/derefd/internal/logger"
	"github.com/MrSnakeDoc/derefd/internal/metrics"
	"github.com/MrSnakeDoc/derefd/internal/registrar"
	"github.com/MrSnakeDoc/derefd/internal/registry"
	"github.com/MrSnakeDoc/derefd/internal/scheduler"
)

// SiteLister reports the registered sites.
type SiteLister interface {
	Sites() []scheduler.SiteStatus
}

// ConnStatus reports whether an optional connection is up.
type ConnStatus interface {
	Connected() bool
}

type Deps struct {
	Logger           logger.Logger
	StartTime        time.Time
	Version          string
	Commit           string
	BuildDate        string
	GoVersion        string
	TimeNow          func() time.Time       // for testing, defaults to time.Now
	AllowedHosts     []string               // Host headers allowed to access the server
	AllowedCIDRS     []string               // IPs allowed to access the admin endpoints
	TrustProxy       bool                   // true if running behind a trusted reverse proxy (e.g., cloudflared)
	RequestTimeout   time.Duration          // per-request deadline, bounds dereference calls
	EnhanceBurst     int                    // enhance requests a client may burst per engine
	EnhancePerMinute int                    // sustained enhance requests per client and engine
	SitesFile        string                 // Path to the site definitions file
	RedisClient      *redis.Client          // Redis client connection (nil when Redis is disabled)
	Registry         *registry.Registry     // Service registry shared by sites and engines
	Registrars       []*registrar.Registrar // One registrar per configured engine
	Sites            SiteLister             // Registered sites (file and announced)
	Announcer        ConnStatus             // NATS announcement listener (nil when disabled)
	Metrics          *metrics.Metrics       // Prometheus collectors (nil-safe)
	Gatherer         prometheus.Gatherer    // Registry served on /metrics
	ReloadTrigger    chan struct{}          // Channel to trigger a manual sites reload
}

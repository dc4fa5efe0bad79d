package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTP  HTTP
	Log   Log
	Defs  Definitions
	Redis Redis
	NATS  NATS
}

type HTTP struct {
	ListenAddr       string        // ex: ":8080"
	ShutdownTimeout  time.Duration // ex: 5s
	RequestTimeout   time.Duration // per-request deadline (ex: 10s)
	AllowedHosts     []string      // optional, restrict access to specific Host headers
	AllowedCIDRS     []string      // optional, restrict admin endpoints to IPs/CIDRs
	TrustProxy       bool          // true => trust X-Forwarded-For headers (e.g. cloudflared)
	EnhanceBurst     int           // enhance requests a client may burst per engine
	EnhancePerMinute int           // sustained enhance rate per client and engine
}

type Log struct {
	Level  string // "debug" | "info" | "warn" | "error"
	Pretty bool   // true => colored console, false => JSON
}

type Definitions struct {
	EnginesFile    string        // engine property maps, required
	SitesFile      string        // site definitions, reloaded on change
	ReloadInterval time.Duration // periodic sites reload
	CacheTTL       time.Duration // TTL of cached representations (0 = caching disabled)
}

// Redis is optional: an empty address disables caching, the engine mirror and
// persisted announcements.
type Redis struct {
	Addr             string
	Username         string
	Password         string
	PasswordRequired bool
	DB               int
	PoolSize         int
	DialTimeout      time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	ConnectTimeout   time.Duration // total time to retry connecting at startup
	RetryInterval    time.Duration // first wait between attempts, doubled each time
	MaxWait          time.Duration // cap of the wait between attempts
	PingTimeout      time.Duration // timeout of each ping attempt
	WarnThreshold    int           // attempts logged as warnings before errors
}

func (r Redis) Enabled() bool { return r.Addr != "" }

// NATS is optional: an empty URL disables site announcements.
type NATS struct {
	URL     string
	Subject string
}

func (n NATS) Enabled() bool { return n.URL != "" }

// Load reads the configuration from the environment and panics when it is
// invalid.
func Load() *Config {
	cfg, err := LoadFrom(os.LookupEnv)
	if err != nil {
		panic(fmt.Sprintf("❌ FATAL: invalid configuration: %v", err))
	}
	return cfg
}

// LoadFrom reads the configuration through lookup. Every invalid or missing
// required value is reported.
func LoadFrom(lookup func(string) (string, bool)) (*Config, error) {
	e := &env{lookup: lookup}

	cfg := &Config{
		HTTP: HTTP{
			ListenAddr:       e.str("DEREFD_LISTEN_PORT", ":8080"),
			ShutdownTimeout:  e.duration("DEREFD_SHUTDOWN_TIMEOUT", 5*time.Second),
			RequestTimeout:   e.duration("DEREFD_REQUEST_TIMEOUT", 10*time.Second),
			AllowedHosts:     e.list("DEREFD_ALLOWED_HOSTS"),
			AllowedCIDRS:     e.list("DEREFD_ALLOWED_CIDRS"),
			TrustProxy:       e.boolean("DEREFD_TRUST_PROXY", false),
			EnhanceBurst:     e.integer("DEREFD_ENHANCE_BURST", 30),
			EnhancePerMinute: e.integer("DEREFD_ENHANCE_PER_MINUTE", 120),
		},
		Log: Log{
			Level:  e.str("DEREFD_LOG_LEVEL", "info"),
			Pretty: e.boolean("DEREFD_PRETTY_LOG", true),
		},
		Defs: Definitions{
			EnginesFile:    e.require("DEREFD_ENGINES_FILE"),
			SitesFile:      e.str("DEREFD_SITES_FILE", "/app/sites.yaml"),
			ReloadInterval: e.duration("DEREFD_RELOAD_INTERVAL", 5*time.Minute),
			CacheTTL:       e.duration("DEREFD_CACHE_TTL", 10*time.Minute),
		},
		Redis: Redis{
			Addr:             e.str("DEREFD_REDIS_ADDR", ""),
			Username:         e.str("DEREFD_REDIS_USERNAME", "default"),
			Password:         e.str("DEREFD_REDIS_PASSWORD", ""),
			PasswordRequired: e.boolean("DEREFD_REDIS_PASSWORD_REQUIRED", false),
			DB:               e.integer("DEREFD_REDIS_DB", 0),
			PoolSize:         e.integer("REDIS_POOL_SIZE", 10),
			DialTimeout:      e.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:      e.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:     e.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			ConnectTimeout:   e.duration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
			RetryInterval:    e.duration("REDIS_RETRY_INTERVAL", 2*time.Second),
			MaxWait:          e.duration("REDIS_MAX_WAIT", 10*time.Second),
			PingTimeout:      e.duration("REDIS_PING_TIMEOUT", 5*time.Second),
			WarnThreshold:    e.integer("REDIS_WARN_THRESHOLD", 3),
		},
		NATS: NATS{
			URL:     e.str("DEREFD_NATS_URL", ""),
			Subject: e.str("DEREFD_NATS_SUBJECT", "derefd.sites.>"),
		},
	}

	if cfg.Redis.Enabled() && cfg.Redis.PasswordRequired && cfg.Redis.Password == "" {
		e.fail("DEREFD_REDIS_PASSWORD is required when DEREFD_REDIS_PASSWORD_REQUIRED=true")
	}
	if cfg.Defs.CacheTTL < 0 {
		e.fail("DEREFD_CACHE_TTL must not be negative")
	}

	return cfg, errors.Join(e.errs...)
}

// Redacted returns a copy safe to log.
func (c *Config) Redacted() Config {
	out := *c
	if out.Redis.Password != "" {
		out.Redis.Password = "***REDACTED***"
	}
	return out
}

// env reads typed values and collects the failures.
type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) fail(format string, args ...any) {
	e.errs = append(e.errs, fmt.Errorf(format, args...))
}

func (e *env) value(key string) string {
	v, _ := e.lookup(key)
	return strings.TrimSpace(v)
}

func (e *env) str(key, def string) string {
	if v := e.value(key); v != "" {
		return v
	}
	return def
}

func (e *env) require(key string) string {
	v := e.value(key)
	if v == "" {
		e.fail("required environment variable %s is not set", key)
	}
	return v
}

func (e *env) integer(key string, def int) int {
	v := e.value(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.fail("%s: invalid integer %q", key, v)
		return def
	}
	return i
}

func (e *env) boolean(key string, def bool) bool {
	v := e.value(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail("%s: invalid boolean %q", key, v)
		return def
	}
	return b
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := e.value(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail("%s: invalid duration %q", key, v)
		return def
	}
	return d
}

// list splits a comma separated value, dropping blanks and surrounding quotes.
func (e *env) list(key string) []string {
	var out []string
	for _, part := range strings.Split(e.value(key), ",") {
		if part = strings.Trim(strings.TrimSpace(part), `"'`); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package redis

import "fmt"

const (
	// KeyPrefixEngine is the prefix for published engine records
	KeyPrefixEngine = "derefd:engine:"
	// KeyAllEngines is the key for the set of all published engine IDs
	KeyAllEngines = "derefd:engines:all"
	// KeyPrefixSite is the prefix for announced site definitions
	KeyPrefixSite = "derefd:sitedef:"
	// KeyAllSites is the key for the set of all announced site IDs
	KeyAllSites = "derefd:sitedefs:all"
	// KeyPrefixCache is the prefix for cached dereference results
	KeyPrefixCache = "derefd:cache:"
)

// EngineKey returns the Redis key for an engine record by registration ID
func EngineKey(id string) string {
	return KeyPrefixEngine + id
}

// AllEnginesKey returns the key for the set of all engine record IDs
func AllEnginesKey() string {
	return KeyAllEngines
}

// SiteKey returns the Redis key for an announced site definition
func SiteKey(id string) string {
	return KeyPrefixSite + id
}

// AllSitesKey returns the key for the set of all announced site IDs
func AllSitesKey() string {
	return KeyAllSites
}

// CacheKey returns the Redis key for a cached dereference result
func CacheKey(engine, uri string) string {
	return KeyPrefixCache + engine + ":" + uri
}

// ExtractEngineID extracts the registration ID from an engine key
func ExtractEngineID(key string) (string, error) {
	if len(key) <= len(KeyPrefixEngine) {
		return "", fmt.Errorf("invalid engine key: %s", key)
	}
	return key[len(KeyPrefixEngine):], nil
}

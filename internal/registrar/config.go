package registrar

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/MrSnakeDoc/derefd/internal/dereference"
	"github.com/MrSnakeDoc/derefd/internal/engine"
	"github.com/MrSnakeDoc/derefd/internal/ldpath"
	"github.com/MrSnakeDoc/derefd/internal/registry"
)

const (
	// PropertySiteID selects the backing site. "entityhub" or "local" bind
	// to the local hub, "*" or an empty value to every site.
	PropertySiteID = "enhancer.engines.dereference.entityhub.siteId"

	SiteAll = "*"
)

// EntityhubIDs are the site ids denoting the local entity hub.
var EntityhubIDs = []string{"entityhub", "local"}

// ConfigurationError rejects an engine configuration.
type ConfigurationError struct {
	Property string
	Reason   string
	Err      error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid configuration for %s: %s: %v", e.Property, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid configuration for %s: %s", e.Property, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

type settings struct {
	name       string
	ranking    int
	hasRanking bool
	site       string
	fields     []string
	program    *ldpath.Program
}

func (s settings) metadata() registry.Metadata {
	md := registry.Metadata{
		engine.PropertyName: s.name,
		PropertySiteID:      s.site,
	}
	if s.hasRanking {
		md[registry.PropertyServiceRanking] = s.ranking
	}
	return md
}

func parseConfig(cfg Config) (settings, error) {
	var s settings

	name, err := parseName(cfg[engine.PropertyName])
	if err != nil {
		return s, err
	}
	s.name = name

	s.ranking, s.hasRanking, err = parseRanking(cfg[registry.PropertyServiceRanking])
	if err != nil {
		return s, err
	}

	s.site = parseSite(cfg[PropertySiteID])

	s.fields, err = dereference.ParseFieldsConfig(cfg[dereference.PropertyFields])
	if err != nil {
		return s, &ConfigurationError{Property: dereference.PropertyFields, Reason: "invalid field list", Err: err}
	}

	s.program, err = dereference.ParseLDPathConfig(cfg[dereference.PropertyLDPath])
	if err != nil {
		return s, &ConfigurationError{Property: dereference.PropertyLDPath, Reason: "invalid LDPath program", Err: err}
	}
	return s, nil
}

func parseName(v any) (string, error) {
	if v == nil {
		return "", &ConfigurationError{Property: engine.PropertyName, Reason: "the engine name must be configured"}
	}
	name := strings.TrimSpace(fmt.Sprint(v))
	if name == "" {
		return "", &ConfigurationError{Property: engine.PropertyName, Reason: "the engine name must be configured"}
	}
	return name, nil
}

// parseRanking accepts any integer or float type and base-10 strings. An
// absent value or an empty string leaves the ranking unset.
func parseRanking(v any) (int, bool, error) {
	switch t := v.(type) {
	case nil:
		return 0, false, nil
	case int:
		return t, true, nil
	case int8:
		return int(t), true, nil
	case int16:
		return int(t), true, nil
	case int32:
		return int(t), true, nil
	case int64:
		return int(t), true, nil
	case uint:
		return int(t), true, nil
	case uint8:
		return int(t), true, nil
	case uint16:
		return int(t), true, nil
	case uint32:
		return int(t), true, nil
	case uint64:
		return int(t), true, nil
	case float32:
		return int(math.Trunc(float64(t))), true, nil
	case float64:
		return int(math.Trunc(t)), true, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, false, &ConfigurationError{
				Property: registry.PropertyServiceRanking,
				Reason:   fmt.Sprintf("%q can not be converted to an integer value", t),
				Err:      err,
			}
		}
		return n, true, nil
	default:
		return 0, false, &ConfigurationError{
			Property: registry.PropertyServiceRanking,
			Reason:   fmt.Sprintf("unsupported type %T", v),
		}
	}
}

func parseSite(v any) string {
	if v == nil {
		return SiteAll
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return SiteAll
	}
	return s
}

func isEntityhub(site string) bool {
	for _, id := range EntityhubIDs {
		if strings.EqualFold(site, id) {
			return true
		}
	}
	return false
}

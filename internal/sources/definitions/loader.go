// Package definitions loads site and engine definitions from YAML files.
package definitions

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// LoadSites reads and validates the sites file.
func LoadSites(path string) ([]SiteDefinition, error) {
	data, err := readExpanded(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sites file: %w", err)
	}

	var file SitesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse sites yaml: %w", err)
	}

	seen := make(map[string]bool, len(file.Sites))
	for i := range file.Sites {
		if err := file.Sites[i].Normalize(); err != nil {
			return nil, fmt.Errorf("sites[%d]: %w", i, err)
		}
		id := file.Sites[i].ID
		if seen[id] {
			return nil, fmt.Errorf("sites[%d]: %w: duplicate site id %s", i, ErrInvalidDefinition, id)
		}
		seen[id] = true
	}
	return file.Sites, nil
}

// LoadEngines reads the engines file. The property maps are not validated
// here; registrars reject bad configurations on activation.
func LoadEngines(path string) ([]map[string]any, error) {
	data, err := readExpanded(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read engines file: %w", err)
	}

	var file EnginesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse engines yaml: %w", err)
	}
	for i, e := range file.Engines {
		if e == nil {
			return nil, fmt.Errorf("engines[%d]: %w: empty engine entry", i, ErrInvalidDefinition)
		}
	}
	return file.Engines, nil
}

func readExpanded(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return expandEnv(data), nil
}

// expandEnv substitutes ${VAR} and ${VAR:-default} with environment values.
// Unset variables without a default expand to an empty string.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(m []byte) []byte {
		sub := envPattern.FindSubmatch(m)
		if v, ok := os.LookupEnv(string(sub[1])); ok && v != "" {
			return []byte(v)
		}
		return sub[2]
	})
}

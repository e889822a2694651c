// Package source holds per-jurisdiction rate file configuration: the ordered
// column synonym lists and file layout hints that drive schema detection.
// The built-in table covers the jurisdictions currently collected; a YAML
// file can add or override entries at startup. The registry is immutable
// once loaded.
package source

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Config describes how one jurisdiction publishes its rate file.
type Config struct {
	// Ordered synonym lists per canonical field. Earlier entries win.
	NameColumns []string `yaml:"name_columns"`
	RateColumns []string `yaml:"rate_columns"`
	IDColumns   []string `yaml:"id_columns"`
	DateColumns []string `yaml:"date_columns"`

	// Layout hints for the file reader.
	SkipRows   int    `yaml:"skip_rows"`
	Sheet      string `yaml:"sheet"`       // sheet name; empty means SheetIndex
	SheetIndex int    `yaml:"sheet_index"` // zero-based
	FileType   string `yaml:"file_type"`   // "xlsx" (default), "csv", "pdf"

	// DateHeaders marks cumulative-listing formats where rates live under
	// date-valued column headers instead of a named rate column.
	DateHeaders bool `yaml:"date_headers"`

	Notes string `yaml:"notes"`
}

// Registry maps jurisdiction codes to their configs, falling back to a
// generic default for jurisdictions without a specific entry.
type Registry struct {
	configs  map[string]Config
	fallback Config
}

// Defaults returns the built-in registry.
func Defaults() *Registry {
	return &Registry{configs: builtinConfigs, fallback: defaultConfig}
}

// LoadOverrides merges YAML config entries over the built-in table and
// returns a new registry. The file maps jurisdiction codes to Config blocks;
// a "default" key replaces the fallback.
func LoadOverrides(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read config %s", path)
	}

	var overrides map[string]Config
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, eris.Wrapf(err, "source: parse config %s", path)
	}

	merged := make(map[string]Config, len(builtinConfigs)+len(overrides))
	for code, cfg := range builtinConfigs {
		merged[code] = cfg
	}

	fallback := defaultConfig
	for code, cfg := range overrides {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "DEFAULT" {
			fallback = cfg
			continue
		}
		merged[code] = cfg
	}

	return &Registry{configs: merged, fallback: fallback}, nil
}

// Get returns the config for a jurisdiction code, falling back to the
// generic default when the jurisdiction has no specific entry.
func (r *Registry) Get(jurisdiction string) Config {
	if cfg, ok := r.configs[strings.ToUpper(strings.TrimSpace(jurisdiction))]; ok {
		return cfg
	}
	return r.fallback
}

// Has reports whether a jurisdiction has a specific (non-fallback) config.
func (r *Registry) Has(jurisdiction string) bool {
	_, ok := r.configs[strings.ToUpper(strings.TrimSpace(jurisdiction))]
	return ok
}

// Jurisdictions returns the codes with specific configs.
func (r *Registry) Jurisdictions() []string {
	codes := make([]string, 0, len(r.configs))
	for code := range r.configs {
		codes = append(codes, code)
	}
	return codes
}

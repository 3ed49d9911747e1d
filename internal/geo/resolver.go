// Package geo resolves free-text country references to a country name,
// macro region and centroid coordinates using a configurable gazetteer.
// Resolution is deterministic table lookup; anything unresolved keeps
// the "Global" sentinel.
package geo

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jofongang/World-Monitor/internal/classify"
	"github.com/jofongang/World-Monitor/internal/model"
)

//go:embed countries.yaml
var defaultGazetteer []byte

// Location is a resolved geographic label set.
type Location struct {
	Country string
	Region  string
	Lat     *float64
	Lon     *float64
}

type countrySpec struct {
	Country string   `yaml:"country"`
	Region  string   `yaml:"region"`
	Lat     *float64 `yaml:"lat"`
	Lon     *float64 `yaml:"lon"`
	Aliases []string `yaml:"aliases"`
}

type gazetteerFile struct {
	Countries []countrySpec `yaml:"countries"`
}

type aliasEntry struct {
	alias     string
	canonical string
}

// Resolver holds the loaded gazetteer. Safe for concurrent use after
// construction.
type Resolver struct {
	byName  map[string]countrySpec
	aliases []aliasEntry
}

// NewResolver loads the gazetteer from path, or the embedded default
// table when path is empty.
func NewResolver(path string) (*Resolver, error) {
	raw := defaultGazetteer
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading gazetteer: %w", err)
		}
		raw = data
	}

	var file gazetteerFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing gazetteer: %w", err)
	}

	r := &Resolver{byName: make(map[string]countrySpec, len(file.Countries))}
	for _, spec := range file.Countries {
		name := strings.TrimSpace(spec.Country)
		if name == "" {
			continue
		}
		normalized := classify.Normalize(name)
		r.byName[normalized] = spec
		r.aliases = append(r.aliases, aliasEntry{alias: normalized, canonical: normalized})
		for _, alias := range spec.Aliases {
			token := classify.Normalize(alias)
			if token != "" {
				r.aliases = append(r.aliases, aliasEntry{alias: token, canonical: normalized})
			}
		}
	}
	// Longest alias first so "south korea" beats "korea".
	sort.SliceStable(r.aliases, func(i, j int) bool {
		return len(r.aliases[i].alias) > len(r.aliases[j].alias)
	})
	return r, nil
}

// Resolve picks the best location for an event. An explicit known
// country wins; an explicit unknown country is kept as-is; otherwise
// the text is scanned for country aliases.
func (r *Resolver) Resolve(country, region, text string) Location {
	countryName := strings.TrimSpace(country)
	regionName := strings.TrimSpace(region)
	if regionName == "" {
		regionName = model.GlobalLabel
	}

	if loc, ok := r.lookup(countryName); ok {
		return loc
	}

	if countryName != "" && !isSentinel(countryName) {
		return Location{Country: countryName, Region: regionName}
	}

	if loc, ok := r.detect(text); ok {
		return loc
	}

	if countryName == "" {
		countryName = model.GlobalLabel
	}
	return Location{Country: countryName, Region: regionName}
}

func (r *Resolver) lookup(country string) (Location, bool) {
	normalized := classify.Normalize(country)
	if normalized == "" || isSentinel(normalized) {
		return Location{}, false
	}

	spec, ok := r.byName[normalized]
	if !ok {
		for _, entry := range r.aliases {
			if entry.alias == normalized {
				spec, ok = r.byName[entry.canonical]
				break
			}
		}
	}
	if !ok {
		return Location{}, false
	}
	return specLocation(spec), true
}

func (r *Resolver) detect(text string) (Location, bool) {
	padded := " " + classify.Normalize(text) + " "
	if strings.TrimSpace(padded) == "" {
		return Location{}, false
	}
	for _, entry := range r.aliases {
		if !strings.Contains(padded, " "+entry.alias+" ") {
			continue
		}
		spec, ok := r.byName[entry.canonical]
		if !ok {
			continue
		}
		return specLocation(spec), true
	}
	return Location{}, false
}

func specLocation(spec countrySpec) Location {
	region := strings.TrimSpace(spec.Region)
	if region == "" {
		region = model.GlobalLabel
	}
	return Location{
		Country: strings.TrimSpace(spec.Country),
		Region:  region,
		Lat:     spec.Lat,
		Lon:     spec.Lon,
	}
}

func isSentinel(value string) bool {
	lowered := strings.ToLower(strings.TrimSpace(value))
	return lowered == "global" || lowered == "unknown"
}

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/julienschmidt/httprouter"
	"gopkg.in/yaml.v3"
)

// FlightTemplate is a curated flight loaded from a YAML file in the
// --flights directory, e.g.:
//
//	name: Islay Classics
//	description: Peat-forward single malts
//	whiskeys:
//	  - name: Ardbeg 10
//	    distillery: Ardbeg
//	    age_years: 10
//	    abv: 46.0
type FlightTemplate struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Whiskeys    []WhiskeyInput `json:"whiskeys" yaml:"whiskeys"`
}

func (t *FlightTemplate) validate() error {
	switch {
	case strings.TrimSpace(t.Name) == "":
		return errors.New("flight name is required")
	case len(t.Whiskeys) == 0:
		return errors.New("a flight needs at least one whiskey")
	case len(t.Whiskeys) > maxFlightSize:
		return fmt.Errorf("a flight cannot exceed %d whiskeys", maxFlightSize)
	}

	for i := range t.Whiskeys {
		if err := t.Whiskeys[i].validate(); err != nil {
			return fmt.Errorf("whiskey %d: %w", i+1, err)
		}
	}

	return nil
}

// FlightTemplateSummary is the list view: counts and blind labels
// only, so browsing templates doesn't spoil a flight for tasters.
type FlightTemplateSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Whiskeys    int      `json:"whiskeys"`
	Preview     []string `json:"preview"`
}

type flightCatalog struct {
	templates []FlightTemplate
	byName    map[string]*FlightTemplate
}

// loadFlightCatalog reads every template in dir. A missing directory
// just yields an empty catalog; a file that fails to parse or
// validate aborts startup, naming the file.
func loadFlightCatalog(dir string) (*flightCatalog, error) {
	catalog := &flightCatalog{byName: make(map[string]*FlightTemplate)}

	if dir == "" {
		return catalog, nil
	}

	entries, err := os.ReadDir(dir)

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return catalog, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read flights directory: %w", err)
	}

	seen := make(map[string]string)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		extension := strings.ToLower(filepath.Ext(entry.Name()))
		if extension != ".yaml" && extension != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())

		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}

		var template FlightTemplate

		if err := yaml.Unmarshal(raw, &template); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}

		if err := template.validate(); err != nil {
			return nil, fmt.Errorf("invalid flight template %s: %w", path, err)
		}

		key := strings.ToLower(template.Name)

		if other, exists := seen[key]; exists {
			return nil, fmt.Errorf("duplicate flight template %q in %s (already defined in %s)", template.Name, path, other)
		}

		seen[key] = path
		catalog.templates = append(catalog.templates, template)
	}

	sort.Slice(catalog.templates, func(i, j int) bool {
		return catalog.templates[i].Name < catalog.templates[j].Name
	})

	for i := range catalog.templates {
		catalog.byName[strings.ToLower(catalog.templates[i].Name)] = &catalog.templates[i]
	}

	return catalog, nil
}

func (c *flightCatalog) lookup(name string) (*FlightTemplate, bool) {
	template, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]

	return template, ok
}

func (c *flightCatalog) summaries() []FlightTemplateSummary {
	out := make([]FlightTemplateSummary, 0, len(c.templates))

	for i := range c.templates {
		template := &c.templates[i]

		preview := make([]string, 0, len(template.Whiskeys))
		for position := range template.Whiskeys {
			preview = append(preview, blindLabel(position))
		}

		out = append(out, FlightTemplateSummary{
			Name:        template.Name,
			Description: template.Description,
			Whiskeys:    len(template.Whiskeys),
			Preview:     preview,
		})
	}

	return out
}

func (s *server) serveFlightTemplates(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	jsonResponse(w, http.StatusOK, s.flights.summaries())
}

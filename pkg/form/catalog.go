package form

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rhuss/formchat/pkg/api"
)

// Catalog holds the loaded forms keyed by id. Forms are added at startup
// and never mutated afterwards.
type Catalog struct {
	mu    sync.RWMutex
	forms map[string]*Definition
}

// NewCatalog creates a catalog holding the given definitions.
func NewCatalog(defs ...*Definition) (*Catalog, error) {
	c := &Catalog{forms: make(map[string]*Definition, len(defs))}
	for _, d := range defs {
		if err := c.Add(d); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// LoadDir loads every *.yaml and *.yml file in dir. All malformed files
// are reported together; no catalog is returned if any file is malformed.
func LoadDir(dir string, defaultMaxAttempts int) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read forms directory: %w", err)
	}

	c := &Catalog{forms: make(map[string]*Definition)}
	var errs []error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		def, err := LoadFile(path, defaultMaxAttempts)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := c.Add(def); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		slog.Debug("form loaded", "id", def.ID, "questions", len(def.Questions), "path", path)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return c, nil
}

// Add registers a definition. Ids must be unique.
func (c *Catalog) Add(def *Definition) error {
	if def == nil || def.ID == "" {
		return api.NewMalformedFormError("", "form id is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.forms[def.ID]; exists {
		return api.NewMalformedFormError(def.ID, fmt.Sprintf("duplicate form id %q", def.ID))
	}
	c.forms[def.ID] = def
	return nil
}

// Get returns the form with the given id.
func (c *Catalog) Get(id string) (*Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.forms[id]
	return def, ok
}

// List returns summaries of all forms sorted by id.
func (c *Catalog) List() []api.FormSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]api.FormSummary, 0, len(c.forms))
	for _, d := range c.forms {
		out = append(out, d.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of forms.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.forms)
}

// Package nodes loads and serves the set of available workflow node types
// from declarative YAML documents.
package nodes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Xhuk/continuitybridge/internal/logging"
)

// Catalog is an explicitly constructed, explicitly loaded registry of node
// definitions. Callers own the instance and call Load before lookups; there
// is no lazy first-call load and no ambient singleton, so load timing is
// deterministic and testable.
type Catalog struct {
	dir    string
	logger *logging.Logger

	mu     sync.RWMutex
	defs   map[string]Definition
	loaded bool
}

// NewCatalog creates a catalog over a directory of YAML definition
// documents, one document per node type.
func NewCatalog(dir string, logger *logging.Logger) *Catalog {
	if logger == nil {
		logger = logging.New("node-catalog")
	}
	return &Catalog{dir: dir, logger: logger}
}

// Load reads and validates every definition document. A document that fails
// to parse or validate is skipped and logged; it never aborts the rest of
// the batch. Calling Load on an already-loaded catalog is an atomic full
// reload.
func (c *Catalog) Load(ctx context.Context) error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("read node definitions dir %s: %w", c.dir, err)
	}

	defs := make(map[string]Definition)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(c.dir, entry.Name())

		def, err := readDefinition(path)
		if err != nil {
			c.logger.WithContext(ctx).WithField("file", path).WithError(err).
				Warn("skipping invalid node definition")
			continue
		}
		if _, dup := defs[def.ID]; dup {
			c.logger.WithContext(ctx).WithNode(def.ID).WithField("file", path).
				Warn("skipping duplicate node definition id")
			continue
		}
		defs[def.ID] = def
	}

	c.mu.Lock()
	c.defs = defs
	c.loaded = true
	c.mu.Unlock()

	c.logger.WithContext(ctx).WithField("count", len(defs)).Info("node catalog loaded")
	return nil
}

// Reload atomically clears and reloads the entire set. There is no
// partial or incremental reload.
func (c *Catalog) Reload(ctx context.Context) error {
	return c.Load(ctx)
}

func readDefinition(path string) (Definition, error) {
	var def Definition
	data, err := os.ReadFile(path)
	if err != nil {
		return def, err
	}
	if err := yaml.Unmarshal(data, &def); err != nil {
		return def, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	def.SourceFile = path
	if err := def.Validate(); err != nil {
		return def, err
	}
	return def, nil
}

// All returns every admitted definition, sorted by id.
func (c *Catalog) All() ([]Definition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return nil, ErrNotLoaded
	}
	out := make([]Definition, 0, len(c.defs))
	for _, d := range c.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ByCategory returns the definitions of one category, sorted by id.
func (c *Catalog) ByCategory(cat Category) ([]Definition, error) {
	all, err := c.All()
	if err != nil {
		return nil, err
	}
	out := all[:0:0]
	for _, d := range all {
		if d.Category == cat {
			out = append(out, d)
		}
	}
	return out, nil
}

// ByID returns the definition with the given id.
func (c *Catalog) ByID(id string) (Definition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return Definition{}, ErrNotLoaded
	}
	d, ok := c.defs[id]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return d, nil
}

// Has reports whether a definition with the given id was admitted.
func (c *Catalog) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.defs[id]
	return ok
}

// Len returns the number of admitted definitions.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.defs)
}

package dashboard

import (
	"fmt"
	"sort"
	"sync"

	"github.com/JonMunkholm/soedash/internal/core"
)

// Level is the administrative level a source describes.
type Level string

const (
	LevelCentral  Level = "central"
	LevelProvince Level = "province"
)

// Definition describes one source workbook and how to read it.
type Definition struct {
	Key    string      `json:"key"`
	Title  string      `json:"title"`
	Level  Level       `json:"level"`
	Path   string      `json:"path"`
	Schema core.Schema `json:"-"`

	// SheetColumn, when set, makes the loader read every sheet and record
	// the sheet name in this column. Otherwise only the first sheet is read.
	SheetColumn string `json:"-"`
}

// Catalog holds the source definitions the dashboard serves.
type Catalog struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewCatalog creates a catalog holding defs.
func NewCatalog(defs ...Definition) (*Catalog, error) {
	c := &Catalog{defs: make(map[string]Definition)}
	for _, def := range defs {
		if err := c.Register(def); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register adds a definition. Keys must be unique.
func (c *Catalog) Register(def Definition) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if def.Key == "" {
		return fmt.Errorf("source definition has no key")
	}
	if _, exists := c.defs[def.Key]; exists {
		return fmt.Errorf("source already registered: %s", def.Key)
	}
	c.defs[def.Key] = def
	return nil
}

// Get returns a definition by key.
func (c *Catalog) Get(key string) (Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	def, ok := c.defs[key]
	return def, ok
}

// All returns every definition, sorted by level then key.
func (c *Catalog) All() []Definition {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]Definition, 0, len(c.defs))
	for _, def := range c.defs {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Level != result[j].Level {
			return result[i].Level < result[j].Level
		}
		return result[i].Key < result[j].Key
	})
	return result
}

// ByLevel returns the definitions of one level, sorted by key.
func (c *Catalog) ByLevel(level Level) []Definition {
	var result []Definition
	for _, def := range c.All() {
		if def.Level == level {
			result = append(result, def)
		}
	}
	return result
}

// Len returns the number of definitions.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.defs)
}

package catalog

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"
)

// #region catalog

// Catalog is an immutable, ordered set of modules with unique ids.
// Insertion order breaks ties between modules with equal Order.
type Catalog struct {
	modules []Module
	byID    map[string]int
}

// New validates modules, fills defaults and freezes them into a Catalog.
func New(modules []Module) (*Catalog, error) {
	c := &Catalog{
		modules: make([]Module, 0, len(modules)),
		byID:    make(map[string]int, len(modules)),
	}
	for _, m := range modules {
		if err := applyDefaults(&m); err != nil {
			return nil, err
		}
		if prev, dup := c.byID[m.ID]; dup {
			return nil, fmt.Errorf("%w %s (%s and %s)", ErrDuplicateID, m.ID, c.modules[prev].Path, m.Path)
		}
		c.byID[m.ID] = len(c.modules)
		c.modules = append(c.modules, m)
	}
	return c, nil
}

// Modules returns the modules in catalog order. The slice is a copy.
func (c *Catalog) Modules() []Module {
	return slices.Clone(c.modules)
}

// Len returns the number of modules.
func (c *Catalog) Len() int { return len(c.modules) }

// Get looks a module up by id.
func (c *Catalog) Get(id string) (Module, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Module{}, false
	}
	return c.modules[i], true
}

// Catalog lets a static *Catalog serve as a Source.
func (c *Catalog) Catalog() *Catalog { return c }

// #endregion catalog

// #region load

// LoadFS parses every *.md file directly under dir in fsys, in file-name order.
// Any malformed module fails the whole load.
func LoadFS(fsys fs.FS, dir string) (*Catalog, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read catalog dir %s: %w", dir, err)
	}

	var modules []Module
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		p := path.Join(dir, e.Name())
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read module %s: %w", p, err)
		}
		m, err := Parse(p, data)
		if err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}
	if len(modules) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrEmptyCatalog)
	}
	return New(modules)
}

// LoadDir loads a catalog from a directory on disk.
func LoadDir(dir string) (*Catalog, error) {
	return LoadFS(os.DirFS(dir), ".")
}

// #endregion load

// #region default

//go:embed modules/*.md
var defaultFS embed.FS

// Default loads the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return LoadFS(defaultFS, "modules")
}

// MustDefault is Default for program start-up; a broken embedded catalog panics.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded modules: %v", err))
	}
	return c
}

// DefaultFS exposes the embedded module sources, e.g. for exporting them to disk.
func DefaultFS() fs.FS {
	sub, err := fs.Sub(defaultFS, "modules")
	if err != nil {
		panic(err)
	}
	return sub
}

// #endregion default

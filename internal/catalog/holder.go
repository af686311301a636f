package catalog

import "sync/atomic"

// Source yields the catalog to use for one composition call.
type Source interface {
	Catalog() *Catalog
}

// Holder publishes whole-catalog swaps atomically. Readers that call Catalog
// once per composition never observe a partial update.
type Holder struct {
	current atomic.Pointer[Catalog]
}

// NewHolder returns a Holder serving c.
func NewHolder(c *Catalog) *Holder {
	h := &Holder{}
	h.current.Store(c)
	return h
}

// Catalog returns the current catalog.
func (h *Holder) Catalog() *Catalog { return h.current.Load() }

// Swap installs c and returns the catalog it replaced.
func (h *Holder) Swap(c *Catalog) *Catalog { return h.current.Swap(c) }

package catalog

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/swarm-handbook/editor/model"
)

// snapshot is an immutable view of the catalog indexed by product_id.
type snapshot struct {
	products map[string]*model.Product
	ids      []string
	checksum string
}

var emptySnapshot = &snapshot{products: map[string]*model.Product{}}

// Catalog is a read-optimized, thread-safe store of product records. It uses
// an atomic pointer swap for lock-free concurrent reads. Records handed out
// are clones; the snapshot is never mutated.
type Catalog struct {
	snap atomic.Pointer[snapshot]
}

// New creates a Catalog holding records.
func New(records []Record) *Catalog {
	c := &Catalog{}
	c.Replace(records)
	return c
}

// Replace atomically swaps the catalog contents for a snapshot built from
// records. Later records win over earlier ones with the same product_id.
func (c *Catalog) Replace(records []Record) {
	s := &snapshot{products: make(map[string]*model.Product, len(records))}

	checksumParts := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.Product == nil {
			continue
		}
		s.products[rec.Product.ProductID] = rec.Product.Clone()
		checksumParts = append(checksumParts, rec.Checksum)
	}

	s.ids = make([]string, 0, len(s.products))
	for id := range s.products {
		s.ids = append(s.ids, id)
	}
	sort.Strings(s.ids)

	sort.Strings(checksumParts)
	s.checksum = fmt.Sprintf("%x", sha256.Sum256([]byte(strings.Join(checksumParts, ":"))))

	c.snap.Store(s)
}

func (c *Catalog) current() *snapshot {
	if s := c.snap.Load(); s != nil {
		return s
	}
	return emptySnapshot
}

// Loaded reports whether a snapshot has been installed.
func (c *Catalog) Loaded() bool {
	return c.snap.Load() != nil
}

// Get returns a deep copy of the product with the given id, or a NOT_FOUND
// error.
func (c *Catalog) Get(id string) (*model.Product, error) {
	p, ok := c.current().products[id]
	if !ok {
		return nil, model.NewNotFoundError(fmt.Sprintf("product %q is not in the catalog", id))
	}
	return p.Clone(), nil
}

// Has reports whether id is in the catalog.
func (c *Catalog) Has(id string) bool {
	_, ok := c.current().products[id]
	return ok
}

// IDs returns every product_id in ascending order.
func (c *Catalog) IDs() []string {
	ids := c.current().ids
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// Match returns the ids starting with prefix, ignoring case, in ascending
// order. An empty prefix matches nothing.
func (c *Catalog) Match(prefix string) []string {
	if prefix == "" {
		return []string{}
	}
	want := strings.ToLower(prefix)
	out := []string{}
	for _, id := range c.current().ids {
		if strings.HasPrefix(strings.ToLower(id), want) {
			out = append(out, id)
		}
	}
	return out
}

// Products returns clones of every product in id order.
func (c *Catalog) Products() []*model.Product {
	s := c.current()
	out := make([]*model.Product, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, s.products[id].Clone())
	}
	return out
}

// Len returns the number of products.
func (c *Catalog) Len() int {
	return len(c.current().ids)
}

// Checksum returns the combined checksum of all loaded files.
func (c *Catalog) Checksum() string {
	return c.current().checksum
}

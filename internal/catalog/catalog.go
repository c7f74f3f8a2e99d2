// Package catalog serves the fixed, read-only item list behind /api/items.
package catalog

import "strings"

// Item is a catalog entry
type Item struct {
	ID   int    `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

var items = []Item{
	{ID: 1, Name: "Item A"},
	{ID: 2, Name: "Item B"},
	{ID: 3, Name: "Item C"},
}

// Catalog is an immutable list of items
type Catalog struct {
	items []Item
}

// Default returns the built-in three item catalog
func Default() *Catalog {
	return New(items)
}

// New returns a catalog holding a copy of list
func New(list []Item) *Catalog {
	c := &Catalog{items: make([]Item, len(list))}
	copy(c.items, list)
	return c
}

// All returns every item in catalog order
func (c *Catalog) All() []Item {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// Filter returns the items whose name contains filter, ignoring case, in
// catalog order. An empty filter matches everything. The result is never
// nil.
func (c *Catalog) Filter(filter string) []Item {
	if filter == "" {
		return c.All()
	}

	needle := strings.ToLower(filter)
	out := make([]Item, 0, len(c.items))
	for _, item := range c.items {
		if strings.Contains(strings.ToLower(item.Name), needle) {
			out = append(out, item)
		}
	}
	return out
}

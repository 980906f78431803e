package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"coverflow/escrow"
)

type childKey struct {
	product escrow.ProductType
	asset   string
}

// MemoryChildRegistry is an in-memory child registry used by tests and by
// cold-boot wiring before the database copy is seeded.
type MemoryChildRegistry struct {
	mu       sync.RWMutex
	children map[childKey]Child
}

// NewMemoryChildRegistry builds an empty in-memory child registry.
func NewMemoryChildRegistry() *MemoryChildRegistry {
	return &MemoryChildRegistry{children: make(map[childKey]Child)}
}

// Register stores a routing entry, rejecting duplicates.
func (r *MemoryChildRegistry) Register(_ context.Context, child Child) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := childKey{product: child.ProductType, asset: child.AssetID}
	if _, ok := r.children[key]; ok {
		return ErrDuplicateRegistration
	}
	if child.RegisteredAt.IsZero() {
		child.RegisteredAt = time.Now().UTC()
	}
	r.children[key] = child
	return nil
}

// Resolve returns the child registered for the product/asset pair.
func (r *MemoryChildRegistry) Resolve(_ context.Context, product escrow.ProductType, assetID string) (Child, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	child, ok := r.children[childKey{product: product, asset: assetID}]
	if !ok {
		return Child{}, ErrUnknownAsset
	}
	return child, nil
}

// List returns all entries ordered by product then asset.
func (r *MemoryChildRegistry) List(_ context.Context) ([]Child, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	children := make([]Child, 0, len(r.children))
	for _, child := range r.children {
		children = append(children, child)
	}
	sort.Slice(children, func(i, j int) bool {
		if children[i].ProductType != children[j].ProductType {
			return children[i].ProductType < children[j].ProductType
		}
		return children[i].AssetID < children[j].AssetID
	})
	return children, nil
}

type templateKey struct {
	product escrow.ProductType
	version int
}

// MemoryTemplateRegistry is an in-memory template registry.
type MemoryTemplateRegistry struct {
	mu        sync.RWMutex
	templates map[templateKey]Template
}

// NewMemoryTemplateRegistry builds an empty in-memory template registry.
func NewMemoryTemplateRegistry() *MemoryTemplateRegistry {
	return &MemoryTemplateRegistry{templates: make(map[templateKey]Template)}
}

// Put stores a template version, rejecting duplicates.
func (r *MemoryTemplateRegistry) Put(_ context.Context, tpl Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := templateKey{product: tpl.ProductType, version: tpl.Version}
	if _, ok := r.templates[key]; ok {
		return ErrDuplicateRegistration
	}
	if tpl.RegisteredAt.IsZero() {
		tpl.RegisteredAt = time.Now().UTC()
	}
	r.templates[key] = tpl
	return nil
}

// Latest returns the highest registered version for the product line.
func (r *MemoryTemplateRegistry) Latest(_ context.Context, product escrow.ProductType) (Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best Template
	found := false
	for key, tpl := range r.templates {
		if key.product != product {
			continue
		}
		if !found || tpl.Version > best.Version {
			best = tpl
			found = true
		}
	}
	if !found {
		return Template{}, ErrUnknownTemplate
	}
	return best, nil
}

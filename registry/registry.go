package registry

import (
	"context"
	"errors"
	"time"

	"coverflow/escrow"
)

var (
	// ErrDuplicateRegistration signals the key is already registered.
	ErrDuplicateRegistration = errors.New("registry: duplicate registration")
	// ErrUnknownAsset signals no child is registered for the product/asset pair.
	ErrUnknownAsset = errors.New("registry: unknown asset")
	// ErrUnknownTemplate signals no code template is registered for the product.
	ErrUnknownTemplate = errors.New("registry: unknown template")
)

// Child is a routing entry mapping a product/asset pair to the on-chain
// child that settles its policies.
type Child struct {
	ProductType  escrow.ProductType
	AssetID      string
	Address      string
	RegisteredAt time.Time
}

// Template is a versioned reference to the escrow code deployed for a
// product line.
type Template struct {
	ProductType  escrow.ProductType
	Version      int
	CodeRef      string
	RegisteredAt time.Time
}

// ChildRegistry resolves the settlement child for a product/asset pair.
type ChildRegistry interface {
	Register(ctx context.Context, child Child) error
	Resolve(ctx context.Context, product escrow.ProductType, assetID string) (Child, error)
	List(ctx context.Context) ([]Child, error)
}

// TemplateRegistry stores versioned code references per product line.
type TemplateRegistry interface {
	Put(ctx context.Context, tpl Template) error
	Latest(ctx context.Context, product escrow.ProductType) (Template, error)
}

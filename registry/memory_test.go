package registry

import (
	"context"
	"errors"
	"testing"

	"coverflow/escrow"
)

func TestChildRegistry_RegisterAndResolve(t *testing.T) {
	reg := NewMemoryChildRegistry()
	ctx := context.Background()

	child := Child{ProductType: escrow.ProductDepeg, AssetID: "USDT", Address: "child-depeg-usdt"}
	if err := reg.Register(ctx, child); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, err := reg.Resolve(ctx, escrow.ProductDepeg, "USDT")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Address != "child-depeg-usdt" {
		t.Fatalf("expected child-depeg-usdt, got %s", got.Address)
	}
	if got.RegisteredAt.IsZero() {
		t.Fatal("expected registration timestamp to be set")
	}
}

func TestChildRegistry_DuplicateRejected(t *testing.T) {
	reg := NewMemoryChildRegistry()
	ctx := context.Background()

	child := Child{ProductType: escrow.ProductExploit, AssetID: "USDC", Address: "child-a"}
	if err := reg.Register(ctx, child); err != nil {
		t.Fatalf("first register: %v", err)
	}

	child.Address = "child-b"
	if err := reg.Register(ctx, child); !errors.Is(err, ErrDuplicateRegistration) {
		t.Fatalf("expected ErrDuplicateRegistration, got %v", err)
	}

	got, err := reg.Resolve(ctx, escrow.ProductExploit, "USDC")
	if err != nil {
		t.Fatalf("resolve after duplicate: %v", err)
	}
	if got.Address != "child-a" {
		t.Fatalf("expected original registration to survive, got %s", got.Address)
	}
}

func TestChildRegistry_UnknownAsset(t *testing.T) {
	reg := NewMemoryChildRegistry()

	if _, err := reg.Resolve(context.Background(), escrow.ProductDepeg, "DOGE"); !errors.Is(err, ErrUnknownAsset) {
		t.Fatalf("expected ErrUnknownAsset, got %v", err)
	}
}

func TestChildRegistry_ListOrdered(t *testing.T) {
	reg := NewMemoryChildRegistry()
	ctx := context.Background()

	entries := []Child{
		{ProductType: escrow.ProductExploit, AssetID: "USDT", Address: "c3"},
		{ProductType: escrow.ProductDepeg, AssetID: "USDT", Address: "c2"},
		{ProductType: escrow.ProductDepeg, AssetID: "USDC", Address: "c1"},
	}
	for _, child := range entries {
		if err := reg.Register(ctx, child); err != nil {
			t.Fatalf("register %s/%s: %v", child.ProductType, child.AssetID, err)
		}
	}

	got, err := reg.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"c1", "c2", "c3"}
	if len(got) != len(want) {
		t.Fatalf("expected %d children, got %d", len(want), len(got))
	}
	for i, addr := range want {
		if got[i].Address != addr {
			t.Fatalf("position %d: expected %s, got %s", i, addr, got[i].Address)
		}
	}
}

func TestTemplateRegistry_LatestPicksHighestVersion(t *testing.T) {
	reg := NewMemoryTemplateRegistry()
	ctx := context.Background()

	for _, tpl := range []Template{
		{ProductType: escrow.ProductBridge, Version: 1, CodeRef: "hash-v1"},
		{ProductType: escrow.ProductBridge, Version: 3, CodeRef: "hash-v3"},
		{ProductType: escrow.ProductBridge, Version: 2, CodeRef: "hash-v2"},
		{ProductType: escrow.ProductDepeg, Version: 9, CodeRef: "other-line"},
	} {
		if err := reg.Put(ctx, tpl); err != nil {
			t.Fatalf("put v%d: %v", tpl.Version, err)
		}
	}

	got, err := reg.Latest(ctx, escrow.ProductBridge)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.Version != 3 || got.CodeRef != "hash-v3" {
		t.Fatalf("expected v3/hash-v3, got v%d/%s", got.Version, got.CodeRef)
	}
}

func TestTemplateRegistry_UnknownProduct(t *testing.T) {
	reg := NewMemoryTemplateRegistry()

	if _, err := reg.Latest(context.Background(), escrow.ProductOracleOutage); !errors.Is(err, ErrUnknownTemplate) {
		t.Fatalf("expected ErrUnknownTemplate, got %v", err)
	}
}

func TestTemplateRegistry_DuplicateVersionRejected(t *testing.T) {
	reg := NewMemoryTemplateRegistry()
	ctx := context.Background()

	tpl := Template{ProductType: escrow.ProductDepeg, Version: 1, CodeRef: "hash-a"}
	if err := reg.Put(ctx, tpl); err != nil {
		t.Fatalf("first put: %v", err)
	}
	tpl.CodeRef = "hash-b"
	if err := reg.Put(ctx, tpl); !errors.Is(err, ErrDuplicateRegistration) {
		t.Fatalf("expected ErrDuplicateRegistration, got %v", err)
	}
}

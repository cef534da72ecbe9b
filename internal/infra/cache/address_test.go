package cache

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestMemoryAddressCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryAddressCache(time.Minute)
	address := common.HexToAddress("0x1111111111111111111111111111111111111111")

	if _, ok := c.Get(ctx, "account:1"); ok {
		t.Fatalf("expected miss")
	}
	c.Set(ctx, "account:1", address)
	got, ok := c.Get(ctx, "account:1")
	if !ok || got != address {
		t.Fatalf("expected %s got %s", address.Hex(), got.Hex())
	}
}

func TestTieredFillsFirst(t *testing.T) {
	ctx := context.Background()
	first := NewMemoryAddressCache(time.Minute)
	second := NewMemoryAddressCache(time.Minute)
	tiered := NewTiered(first, second)
	address := common.HexToAddress("0x2222222222222222222222222222222222222222")

	second.Set(ctx, "account:2", address)
	if got, ok := tiered.Get(ctx, "account:2"); !ok || got != address {
		t.Fatalf("expected hit from second tier")
	}
	if got, ok := first.Get(ctx, "account:2"); !ok || got != address {
		t.Fatalf("expected first tier to be filled")
	}
}

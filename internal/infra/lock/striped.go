package lock

import (
	"context"

	"github.com/zeebo/xxh3"
)

// Striped serializes work per key with a fixed set of in-process locks.
// Distinct keys may share a stripe, which only costs concurrency.
type Striped struct {
	stripes []chan struct{}
}

func NewStriped(n int) *Striped {
	if n <= 0 {
		n = 64
	}
	stripes := make([]chan struct{}, n)
	for i := range stripes {
		stripes[i] = make(chan struct{}, 1)
	}
	return &Striped{stripes: stripes}
}

func (s *Striped) stripe(key string) chan struct{} {
	return s.stripes[xxh3.HashString(key)%uint64(len(s.stripes))]
}

// Lock blocks until key is free or ctx ends.
func (s *Striped) Lock(ctx context.Context, key string) (func(), error) {
	stripe := s.stripe(key)
	select {
	case stripe <- struct{}{}:
		return func() { <-stripe }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

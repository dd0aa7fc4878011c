package coupon

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Filter sizing for BloomGuard. One percent false positives only cost an
// extra lookup.
const (
	minBloomCapacity = 1024
	bloomFPR         = 0.01
)

// BloomGuard rejects codes that are definitely unknown before they reach
// the wrapped Resolver. Codes are matched case-insensitively, like the
// PostgreSQL lookup.
//
// The filter can be replaced at runtime with Reset; lookups never block.
type BloomGuard struct {
	next   Resolver
	filter atomic.Pointer[bloom.BloomFilter]
}

// NewBloomGuard wraps next with a filter built from codes. An empty code
// set disables the guard until Reset is called with a non-empty one.
func NewBloomGuard(next Resolver, codes []string) *BloomGuard {
	g := &BloomGuard{next: next}
	g.Reset(codes)
	return g
}

// Reset replaces the filter with one built from codes.
func (g *BloomGuard) Reset(codes []string) {
	if len(codes) == 0 {
		g.filter.Store(nil)
		return
	}
	n := uint(max(len(codes), minBloomCapacity))
	f := bloom.NewWithEstimates(n, bloomFPR)
	for _, c := range codes {
		f.AddString(normalize(c))
	}
	g.filter.Store(f)
}

// CodeLister lists every known coupon code.
// *postgres.CouponRepository implements it.
type CodeLister interface {
	ListCodes(ctx context.Context) ([]string, error)
}

// Refresh rebuilds the filter from src. On error the current filter is kept.
func (g *BloomGuard) Refresh(ctx context.Context, src CodeLister) (int, error) {
	codes, err := src.ListCodes(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list coupon codes")
	}
	g.Reset(codes)
	return len(codes), nil
}

// Watch refreshes the filter from src every interval until ctx is done, so
// codes added after startup are accepted within one interval.
func (g *BloomGuard) Watch(ctx context.Context, src CodeLister, interval time.Duration) {
	lg := zctx.From(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := g.Refresh(ctx, src)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				lg.Warn("Coupon filter refresh failed", zap.Error(err))
				continue
			}
			lg.Debug("Coupon filter refreshed", zap.Int("codes", n))
		}
	}
}

// Resolve returns an invalid coupon error for codes absent from the
// filter and delegates everything else.
func (g *BloomGuard) Resolve(ctx context.Context, code string) (*Discount, error) {
	if f := g.filter.Load(); f != nil && !f.TestString(normalize(code)) {
		return nil, Invalid(code)
	}
	return g.next.Resolve(ctx, code)
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

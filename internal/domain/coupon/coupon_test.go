package coupon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	err := Invalid("SAVE5")

	require.ErrorIs(t, err, ErrInvalidCoupon)
	assert.EqualError(t, err, `invalid coupon "SAVE5"`)
	assert.EqualError(t, ErrInvalidCoupon, "invalid coupon")

	var cErr *Error
	require.ErrorAs(t, errors.Wrap(err, "lookup"), &cErr)
	assert.Equal(t, "SAVE5", cErr.Code)

	assert.NotErrorIs(t, errors.New("invalid coupon"), ErrInvalidCoupon)
}

func TestNewDiscount(t *testing.T) {
	assert.True(t, decimal.NewFromInt(50).Equal(NewDiscount(decimal.NewFromInt(50)).Amount))
	assert.True(t, decimal.Zero.Equal(NewDiscount(decimal.NewFromInt(-5)).Amount))
}

type countingResolver struct {
	calls int
}

func (r *countingResolver) Resolve(_ context.Context, _ string) (*Discount, error) {
	r.calls++
	d := NewDiscount(decimal.NewFromInt(10))
	return &d, nil
}

func TestBloomGuard(t *testing.T) {
	next := &countingResolver{}
	g := NewBloomGuard(next, []string{"SAVE10", "welcome"})
	ctx := context.Background()

	d, err := g.Resolve(ctx, "save10")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(d.Amount))

	_, err = g.Resolve(ctx, "WELCOME")
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)

	_, err = g.Resolve(ctx, "definitely-not-a-known-code")
	require.ErrorIs(t, err, ErrInvalidCoupon)
	assert.Equal(t, 2, next.calls, "unknown code must not reach the resolver")
}

func TestBloomGuard_EmptyDisables(t *testing.T) {
	next := &countingResolver{}
	g := NewBloomGuard(next, nil)

	_, err := g.Resolve(context.Background(), "ANY")
	require.NoError(t, err)
	assert.Equal(t, 1, next.calls)

	g.Reset([]string{"ONLY"})
	_, err = g.Resolve(context.Background(), "OTHER-CODE-123")
	require.ErrorIs(t, err, ErrInvalidCoupon)
	assert.Equal(t, 1, next.calls)
}

type codeList struct {
	mu    sync.Mutex
	codes []string
	err   error
}

func (l *codeList) add(code string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.codes = append(l.codes, code)
}

func (l *codeList) ListCodes(context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	return append([]string(nil), l.codes...), nil
}

func TestBloomGuard_Refresh(t *testing.T) {
	ctx := context.Background()
	codes := &codeList{codes: []string{"A"}}
	g := NewBloomGuard(&countingResolver{}, nil)

	n, err := g.Refresh(ctx, codes)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = g.Resolve(ctx, "NEWCODE")
	require.ErrorIs(t, err, ErrInvalidCoupon)

	codes.add("NEWCODE")
	_, err = g.Refresh(ctx, codes)
	require.NoError(t, err)

	d, err := g.Resolve(ctx, "newcode")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(d.Amount))

	// A failed listing keeps the previous filter.
	codes.err = errors.New("connection refused")
	_, err = g.Refresh(ctx, codes)
	require.Error(t, err)
	_, err = g.Resolve(ctx, "NEWCODE")
	require.NoError(t, err)
}

func TestBloomGuard_Watch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	codes := &codeList{codes: []string{"A"}}
	g := NewBloomGuard(&countingResolver{}, []string{"A"})

	done := make(chan struct{})
	go func() {
		defer close(done)
		g.Watch(ctx, codes, 10*time.Millisecond)
	}()

	codes.add("LATE")
	require.Eventually(t, func() bool {
		_, err := g.Resolve(context.Background(), "LATE")
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not stop after cancel")
	}
}

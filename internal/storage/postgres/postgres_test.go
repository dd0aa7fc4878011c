//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/payment"
)

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "kart",
				"POSTGRES_PASSWORD": "kart",
				"POSTGRES_DB":       "kart",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	pool, err := NewPool(ctx, fmt.Sprintf("postgres://kart:kart@%s:%s/kart?sslmode=disable", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))
	// Migrations are idempotent.
	require.NoError(t, RunMigrations(ctx, pool))
	return pool
}

func TestPostgres(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	t.Run("OrderCreate", func(t *testing.T) {
		repo := NewOrderRepository(pool)

		stored, err := repo.Create(ctx, order.PricedOrder{
			Items:         []order.CartItem{{ProductID: "1", Price: decimal.RequireFromString("100.50"), Quantity: 2}},
			CouponID:      "123",
			TotalPrice:    decimal.RequireFromString("151"),
			PaymentMethod: payment.MethodCredit,
		})
		require.NoError(t, err)
		assert.Len(t, stored.ID, 36)
		assert.False(t, stored.CreatedAt.IsZero())

		var (
			total  decimal.Decimal
			method string
		)
		err = pool.QueryRow(ctx, `SELECT total_price, payment_method FROM orders WHERE id = $1`, stored.ID).
			Scan(&total, &method)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("151").Equal(total))
		assert.Equal(t, "CREDIT", method)
	})

	t.Run("CouponResolve", func(t *testing.T) {
		repo := NewCouponRepository(pool)
		require.NoError(t, repo.Upsert(ctx, "Save50", decimal.NewFromInt(50)))
		require.NoError(t, repo.Upsert(ctx, "OLD", decimal.NewFromInt(5)))
		_, err := pool.Exec(ctx, `UPDATE coupons SET valid_until = now() - interval '1 day' WHERE code = 'OLD'`)
		require.NoError(t, err)

		d, err := repo.Resolve(ctx, "SAVE50")
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(50).Equal(d.Amount))

		_, err = repo.Resolve(ctx, "OLD")
		require.ErrorIs(t, err, coupon.ErrInvalidCoupon)

		_, err = repo.Resolve(ctx, "MISSING")
		require.ErrorIs(t, err, coupon.ErrInvalidCoupon)

		codes, err := repo.ListCodes(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"Save50", "OLD"}, codes)
	})

	t.Run("CouponUpsertCaseVariant", func(t *testing.T) {
		repo := NewCouponRepository(pool)
		require.NoError(t, repo.Upsert(ctx, "ABC", decimal.NewFromInt(10)))
		require.NoError(t, repo.Upsert(ctx, "abc", decimal.NewFromInt(5)))

		var count int
		require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM coupons WHERE UPPER(code) = 'ABC'`).Scan(&count))
		assert.Equal(t, 1, count)

		d, err := repo.Resolve(ctx, "Abc")
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(5).Equal(d.Amount), d.Amount.String())
	})
}

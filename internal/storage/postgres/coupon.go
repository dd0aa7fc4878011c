package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/coupon"
)

const (
	getCouponDiscountSQL = `SELECT discount FROM coupons
		WHERE UPPER(code) = UPPER($1) AND active = TRUE
			AND (valid_from IS NULL OR valid_from <= now())
			AND (valid_until IS NULL OR valid_until > now())`

	listCouponCodesSQL = `SELECT code FROM coupons WHERE active = TRUE`

	// Codes are unique case-insensitively, so the conflict target is the
	// UPPER(code) index rather than the primary key.
	upsertCouponSQL = `INSERT INTO coupons (code, discount, active) VALUES ($1, $2, TRUE)
		ON CONFLICT ((UPPER(code))) DO UPDATE SET discount = EXCLUDED.discount, active = TRUE`
)

var _ coupon.Resolver = (*CouponRepository)(nil)

// CouponRepository implements coupon.Resolver backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// Resolve looks up an active, currently valid coupon by its code
// (case-insensitive). Unknown, inactive and expired coupons all resolve to
// an error matching coupon.ErrInvalidCoupon.
func (r *CouponRepository) Resolve(ctx context.Context, code string) (*coupon.Discount, error) {
	var amount decimal.Decimal
	err := r.pool.QueryRow(ctx, getCouponDiscountSQL, code).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.Invalid(code)
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	d := coupon.NewDiscount(amount)
	return &d, nil
}

// ListCodes returns the codes of all active coupons.
func (r *CouponRepository) ListCodes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listCouponCodesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupon codes: %w", err)
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("listing coupon codes: %w", err)
	}
	return codes, nil
}

// Upsert creates or reactivates a coupon with the given discount. A code
// that differs from a stored one only in case updates the stored coupon.
func (r *CouponRepository) Upsert(ctx context.Context, code string, discount decimal.Decimal) error {
	if _, err := r.pool.Exec(ctx, upsertCouponSQL, code, discount); err != nil {
		return fmt.Errorf("upserting coupon %q: %w", code, err)
	}
	return nil
}

package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

const createOrderSQL = `INSERT INTO orders (id, items, coupon_id, total_price, payment_method)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING created_at`

var _ order.Store = (*OrderRepository)(nil)

// OrderRepository implements order.Store backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

type itemRow struct {
	ProductID string          `json:"productId"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// Create assigns a UUID to the order and inserts it. The items are stored
// as JSONB. Every failure is an *order.PersistenceError.
func (r *OrderRepository) Create(ctx context.Context, o order.PricedOrder) (*order.StoredOrder, error) {
	rows := make([]itemRow, len(o.Items))
	for i, item := range o.Items {
		rows[i] = itemRow(item)
	}
	itemsJSON, err := json.Marshal(rows)
	if err != nil {
		return nil, &order.PersistenceError{Err: fmt.Errorf("marshaling order items: %w", err)}
	}

	stored := &order.StoredOrder{
		PricedOrder: o,
		ID:          uuid.New().String(),
	}
	err = r.pool.QueryRow(ctx, createOrderSQL,
		stored.ID, itemsJSON, o.CouponID, o.TotalPrice, string(o.PaymentMethod),
	).Scan(&stored.CreatedAt)
	if err != nil {
		return nil, &order.PersistenceError{Err: fmt.Errorf("creating order %q: %w", stored.ID, err)}
	}

	return stored, nil
}

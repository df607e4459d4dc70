package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/sticker-storefront/internal/domain/order"
)

var _ order.ReceiptLog = (*ReceiptLog)(nil)

// ReceiptLog implements order.ReceiptLog backed by PostgreSQL.
type ReceiptLog struct {
	pool *pgxpool.Pool
}

// NewReceiptLog returns a ReceiptLog that uses the given pool.
func NewReceiptLog(pool *pgxpool.Pool) *ReceiptLog {
	return &ReceiptLog{pool: pool}
}

// Record inserts a receipt. Amounts are stored as NUMERIC.
func (l *ReceiptLog) Record(ctx context.Context, r order.Receipt) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO receipts (
			id, order_id, session_id, pix_id, coupon_code,
			subtotal, discount, shipping, shipping_discount, final_total, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.New(), r.OrderID, r.SessionID, r.PixID, r.CouponCode,
		r.Totals.Subtotal, r.Totals.Discount, r.Totals.Shipping, r.Totals.ShippingDiscount, r.Totals.FinalTotal,
		r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("recording receipt for order %q: %w", r.OrderID, err)
	}
	return nil
}

// ListBySession returns the receipts of a session, newest first.
func (l *ReceiptLog) ListBySession(ctx context.Context, sessionID string) ([]order.Receipt, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT order_id, session_id, pix_id, coupon_code,
		       subtotal, discount, shipping, shipping_discount, final_total, created_at
		FROM receipts
		WHERE session_id = $1
		ORDER BY created_at DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	defer rows.Close()

	var out []order.Receipt
	for rows.Next() {
		var r order.Receipt
		if err := rows.Scan(
			&r.OrderID, &r.SessionID, &r.PixID, &r.CouponCode,
			&r.Totals.Subtotal, &r.Totals.Discount, &r.Totals.Shipping, &r.Totals.ShippingDiscount, &r.Totals.FinalTotal,
			&r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning receipt: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating receipts: %w", err)
	}
	return out, nil
}

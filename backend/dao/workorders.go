package dao

import (
	"context"
	"fmt"

	"fieldsync/backend"

	"github.com/go-playground/validator/v10"
)

// WorkOrders is the access object for the work_orders table
type WorkOrders struct {
	*Table[backend.WorkOrder, *backend.WorkOrder]
}

func NewWorkOrders(db *backend.Database, validate *validator.Validate) *WorkOrders {
	t := NewTable[backend.WorkOrder](db, validate)
	t.rekeys = append(t.rekeys, rekeyColumn("bills", "work_order_id"))
	return &WorkOrders{Table: t}
}

// ListByStatus lists work orders in one status (pending, completed, ...)
func (w *WorkOrders) ListByStatus(ctx context.Context, status string, page Page) ([]*backend.WorkOrder, error) {
	if status == "" {
		return w.List(ctx, page)
	}
	return w.listWhere(ctx, "status = ?", page, status)
}

// ListByCustomer lists the work orders of one customer
func (w *WorkOrders) ListByCustomer(ctx context.Context, customerID string, page Page) ([]*backend.WorkOrder, error) {
	return w.listWhere(ctx, "customer_id = ?", page, customerID)
}

// CountByStatus counts non-deleted work orders in status
func (w *WorkOrders) CountByStatus(ctx context.Context, status string) (int, error) {
	var n int
	err := w.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM work_orders WHERE status = ? AND deleted = 0", status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count work orders: %w", err)
	}
	return n, nil
}

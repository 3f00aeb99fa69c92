package dao

import (
	"context"
	"database/sql"
	"fmt"

	"fieldsync/backend"

	"github.com/go-playground/validator/v10"
)

// Bills is the access object for bills and their line items and payments.
// Children ride on the bill: they are written, loaded, rekeyed and
// replaced together with it.
type Bills struct {
	*Table[backend.Bill, *backend.Bill]
	items    *Table[backend.BillItem, *backend.BillItem]
	payments *Table[backend.Payment, *backend.Payment]
}

func NewBills(db *backend.Database, validate *validator.Validate) *Bills {
	b := &Bills{
		Table:    NewTable[backend.Bill](db, validate),
		items:    NewTable[backend.BillItem](db, validate),
		payments: NewTable[backend.Payment](db, validate),
	}
	b.afterInsert = b.insertChildren
	b.afterLoad = b.loadChildren
	b.afterUpsert = b.replaceChildren
	b.beforeRemove = b.deleteChildren
	b.rekeys = append(b.rekeys,
		rekeyColumn("bill_items", "bill_id"),
		rekeyColumn("payment_history", "bill_id"),
		rekeyColumn("work_orders", "bill_id"),
	)
	return b
}

// insertChildren writes the children of a locally created bill. They travel
// inside the bill's create payload, so they are not pending themselves.
func (b *Bills) insertChildren(ctx context.Context, tx *sql.Tx, bill *backend.Bill) error {
	now := bill.UpdatedAt
	for i := range bill.Items {
		item := &bill.Items[i]
		item.ApplyDefaults()
		item.BillID = bill.ID
		stampChild(&item.SyncMeta, backend.KindBillItem, now)
		if err := b.items.insertRow(ctx, tx, item); err != nil {
			return err
		}
	}
	for i := range bill.Payments {
		pay := &bill.Payments[i]
		pay.BillID = bill.ID
		if pay.PaidAt == "" {
			pay.PaidAt = now
		}
		stampChild(&pay.SyncMeta, backend.KindPayment, now)
		if err := b.payments.insertRow(ctx, tx, pay); err != nil {
			return err
		}
	}
	return nil
}

func stampChild(m *backend.SyncMeta, kind backend.Kind, now string) {
	if m.ID == "" {
		m.ID = backend.NewChildID(kind)
	}
	if m.ClientID == "" {
		m.ClientID = m.ID
	}
	if m.CreatedAt == "" {
		m.CreatedAt = now
	}
	if m.UpdatedAt == "" {
		m.UpdatedAt = now
	}
}

func (b *Bills) loadChildren(ctx context.Context, q querier, bill *backend.Bill) error {
	items, err := b.items.query(ctx, q, "WHERE bill_id = ? AND deleted = 0 ORDER BY created_at ASC, rowid ASC", bill.ID)
	if err != nil {
		return err
	}
	payments, err := b.payments.query(ctx, q, "WHERE bill_id = ? AND deleted = 0 ORDER BY paid_at ASC, rowid ASC", bill.ID)
	if err != nil {
		return err
	}
	bill.Items = derefAll(items)
	bill.Payments = derefAll(payments)
	return nil
}

// replaceChildren swaps the synced children of a pulled bill for the
// incoming ones. Arrays missing from the remote record leave children as-is.
func (b *Bills) replaceChildren(ctx context.Context, tx *sql.Tx, bill *backend.Bill) error {
	if bill.Items != nil {
		if _, err := tx.ExecContext(ctx, "DELETE FROM bill_items WHERE bill_id = ? AND pending_sync = 0", bill.ID); err != nil {
			return fmt.Errorf("failed to clear bill items: %w", err)
		}
		for i := range bill.Items {
			item := &bill.Items[i]
			item.BillID = bill.ID
			stampChild(&item.SyncMeta, backend.KindBillItem, bill.UpdatedAt)
			if _, err := tx.ExecContext(ctx, "DELETE FROM bill_items WHERE id = ?", item.ID); err != nil {
				return err
			}
			if err := b.items.insertRow(ctx, tx, item); err != nil {
				return err
			}
		}
	}
	if bill.Payments != nil {
		if _, err := tx.ExecContext(ctx, "DELETE FROM payment_history WHERE bill_id = ? AND pending_sync = 0", bill.ID); err != nil {
			return fmt.Errorf("failed to clear payments: %w", err)
		}
		for i := range bill.Payments {
			pay := &bill.Payments[i]
			pay.BillID = bill.ID
			stampChild(&pay.SyncMeta, backend.KindPayment, bill.UpdatedAt)
			if _, err := tx.ExecContext(ctx, "DELETE FROM payment_history WHERE id = ?", pay.ID); err != nil {
				return err
			}
			if err := b.payments.insertRow(ctx, tx, pay); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Bills) deleteChildren(ctx context.Context, tx *sql.Tx, billID string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM bill_items WHERE bill_id = ?", billID); err != nil {
		return fmt.Errorf("failed to delete bill items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM payment_history WHERE bill_id = ?", billID); err != nil {
		return fmt.Errorf("failed to delete payments: %w", err)
	}
	return nil
}

// ListByCustomer lists the bills of one customer
func (b *Bills) ListByCustomer(ctx context.Context, customerID string, page Page) ([]*backend.Bill, error) {
	return b.listWhere(ctx, "customer_id = ?", page, customerID)
}

// DueTotalsByCustomer sums the outstanding amount per customer
func (b *Bills) DueTotalsByCustomer(ctx context.Context) (map[string]float64, error) {
	rows, err := b.db.QueryContext(ctx,
		"SELECT customer_id, SUM(due_amount) FROM bills WHERE deleted = 0 GROUP BY customer_id")
	if err != nil {
		return nil, fmt.Errorf("failed to sum dues: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]float64)
	for rows.Next() {
		var id sql.NullString
		var due sql.NullFloat64
		if err := rows.Scan(&id, &due); err != nil {
			return nil, fmt.Errorf("failed to scan dues: %w", err)
		}
		totals[id.String] = due.Float64
	}
	return totals, rows.Err()
}

// MarkPendingPayment records a payment against a bill, recomputes the
// received and due amounts and queues the bill for update.
func (b *Bills) MarkPendingPayment(ctx context.Context, billID string, pay backend.Payment) error {
	if pay.Amount <= 0 {
		return &backend.ValidationError{Entity: string(backend.KindPayment), Fields: []string{"amount"}}
	}
	bill, err := b.GetByID(ctx, billID)
	if err != nil {
		return err
	}
	if err := b.guardTempID(ctx, billID, backend.OpUpdate); err != nil {
		return err
	}

	now := backend.Now()
	pay.BillID = billID
	if pay.PaidAt == "" {
		pay.PaidAt = now
	}
	pay.ID = ""
	pay.ClientID = ""
	stampChild(&pay.SyncMeta, backend.KindPayment, now)
	pay.PendingSync = true
	pay.SyncOp = backend.OpUpdate

	received := bill.ReceivedPayment + pay.Amount
	due := max(bill.TotalAmount-received, 0)
	status := "partial"
	if due == 0 {
		status = "paid"
	}

	return b.withTx(ctx, func(tx *sql.Tx) error {
		if err := b.payments.insertRow(ctx, tx, &pay); err != nil {
			return err
		}
		_, err := newUpdate(b.table, b.allowed).
			Set("received_payment", received).
			Set("due_amount", due).
			Set("status", status).
			Set("pending_sync", 1).
			Set("sync_op", string(backend.OpUpdate)).
			SetNull("sync_error").
			Set("updated_at", now).
			Where("id", billID).
			Exec(ctx, tx)
		if err != nil {
			return fmt.Errorf("failed to update bill totals: %w", err)
		}
		return nil
	})
}

// PendingPayments returns the payments of a bill not yet sent to the server
func (b *Bills) PendingPayments(ctx context.Context, billID string) ([]*backend.Payment, error) {
	return b.payments.query(ctx, b.db, "WHERE bill_id = ? AND pending_sync = 1 ORDER BY updated_at ASC, rowid ASC", billID)
}

// MarkPaymentSynced clears the pending state of one payment
func (b *Bills) MarkPaymentSynced(ctx context.Context, paymentID string) error {
	return b.payments.MarkSynced(ctx, paymentID, paymentID)
}

func derefAll[T any](ps []*T) []T {
	out := make([]T, 0, len(ps))
	for _, p := range ps {
		out = append(out, *p)
	}
	return out
}

package dao

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"fieldsync/backend"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := backend.InitDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

// requireSyncInvariant checks pending_sync=1 <=> sync_op IS NOT NULL on every table
func requireSyncInvariant(t *testing.T, s *Store) {
	t.Helper()
	for _, table := range []string{"customers", "work_orders", "bills", "bill_items", "payment_history", "items", "services", "bank_accounts"} {
		var bad int
		err := s.DB.QueryRow(`SELECT COUNT(*) FROM ` + table + `
			WHERE (pending_sync = 1 AND sync_op IS NULL) OR (pending_sync = 0 AND sync_op IS NOT NULL)`).Scan(&bad)
		require.NoError(t, err)
		require.Zerof(t, bad, "table %s violates pending/op invariant", table)
	}
}

func serverCustomer(id, name, updatedAt string) *backend.Customer {
	return &backend.Customer{
		SyncMeta:     backend.SyncMeta{ID: id, UpdatedAt: updatedAt},
		CustomerName: name,
		PhoneNumber:  "555-0100",
	}
}

func TestInsertLocalCreatesPendingCreate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.Customers.InsertLocal(ctx, &backend.Customer{CustomerName: "Asha", PhoneNumber: "98450"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "client-customer-"), "id %q", id)
	assert.True(t, backend.IsClientTempID(id))

	got, err := s.Customers.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ClientID)
	assert.True(t, got.PendingSync)
	assert.Equal(t, backend.OpCreate, got.SyncOp)
	assert.NotEmpty(t, got.CreatedAt)
	assert.NotEmpty(t, got.UpdatedAt)
	assert.Empty(t, got.SyncError)
	requireSyncInvariant(t, s)
}

func TestInsertLocalKeepsExplicitID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	acct := &backend.BankAccount{
		SyncMeta:      backend.SyncMeta{ID: "client-bank-1700000000000"},
		BankName:      "SBI",
		AccountNumber: "0001",
	}
	id, err := s.BankAccounts.InsertLocal(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, "client-bank-1700000000000", id)
}

func TestInsertLocalRejectsBlankRequiredFields(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Customers.InsertLocal(ctx, &backend.Customer{CustomerName: "   ", PhoneNumber: "1"})
	var verr *backend.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "customer_name")

	n, err := s.Customers.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing should be written on validation failure")
}

func TestMutationsOnClientTempIDAreRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.BankAccounts.InsertLocal(ctx, &backend.BankAccount{BankName: "HDFC", AccountNumber: "42"})
	require.NoError(t, err)

	tests := []struct {
		name string
		op   backend.SyncOp
		call func() error
	}{
		{"update", backend.OpUpdate, func() error {
			return s.BankAccounts.MarkPendingUpdate(ctx, id, func(a *backend.BankAccount) { a.BankName = "Changed" })
		}},
		{"delete", backend.OpDelete, func() error { return s.BankAccounts.MarkPendingDelete(ctx, id) }},
		{"set primary", backend.OpSetPrimary, func() error { return s.BankAccounts.MarkPendingSetPrimary(ctx, id) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			var nerr *backend.NotYetSyncedError
			require.ErrorAs(t, err, &nerr)
			assert.Equal(t, tt.op, nerr.Op)

			got, err := s.BankAccounts.GetByID(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, "HDFC", got.BankName)
			assert.False(t, got.IsPrimary)
			assert.False(t, got.Deleted)
			assert.Equal(t, backend.OpCreate, got.SyncOp)
			assert.Equal(t, "Waiting for server id to "+tt.op.Verb(), got.SyncError)
		})
	}
	requireSyncInvariant(t, s)
}

func TestMarkSyncedAdoptsServerID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	localID, err := s.BankAccounts.InsertLocal(ctx, &backend.BankAccount{
		SyncMeta:      backend.SyncMeta{ID: "client-bank-1700000000000"},
		BankName:      "SBI",
		AccountNumber: "0001",
	})
	require.NoError(t, err)

	require.NoError(t, s.BankAccounts.MarkSynced(ctx, localID, "abc123"))

	_, err = s.BankAccounts.GetByID(ctx, localID)
	assert.ErrorIs(t, err, backend.ErrNotFound)

	got, err := s.BankAccounts.GetByID(ctx, "abc123")
	require.NoError(t, err)
	assert.False(t, got.PendingSync)
	assert.Equal(t, backend.OpNone, got.SyncOp)
	assert.Equal(t, localID, got.ClientID, "client_id survives the id rewrite")
	requireSyncInvariant(t, s)
}

func TestMarkSyncedReplacesStaleServerRowAndRekeysReferences(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	custID, err := s.Customers.InsertLocal(ctx, &backend.Customer{CustomerName: "Ravi", PhoneNumber: "1"})
	require.NoError(t, err)
	woID, err := s.WorkOrders.InsertLocal(ctx, &backend.WorkOrder{CustomerID: custID, Note: "AC service"})
	require.NoError(t, err)
	billID, err := s.Bills.InsertLocal(ctx, &backend.Bill{CustomerID: custID, WorkOrderID: woID})
	require.NoError(t, err)

	// a pull stored the server copy before the create was acknowledged
	_, err = s.Customers.UpsertOne(ctx, serverCustomer("srv-cust", "Ravi", "2024-01-01T00:00:00.000Z"))
	require.NoError(t, err)

	require.NoError(t, s.Customers.MarkSynced(ctx, custID, "srv-cust"))

	customers, err := s.Customers.List(ctx, Page{})
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.Equal(t, "srv-cust", customers[0].ID)

	wo, err := s.WorkOrders.GetByID(ctx, woID)
	require.NoError(t, err)
	assert.Equal(t, "srv-cust", wo.CustomerID)

	require.NoError(t, s.WorkOrders.MarkSynced(ctx, woID, "srv-wo"))
	bill, err := s.Bills.GetByID(ctx, billID)
	require.NoError(t, err)
	assert.Equal(t, "srv-cust", bill.CustomerID)
	assert.Equal(t, "srv-wo", bill.WorkOrderID)
}

func TestMarkSyncedUnknownID(t *testing.T) {
	s := newTestStore(t)
	err := s.Services.MarkSynced(context.Background(), "missing", "srv")
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestMarkPendingUpdateWritesChangedFieldsAndCoalesces(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Customers.UpsertOne(ctx, serverCustomer("c1", "Meera", "2024-01-01T00:00:00.000Z"))
	require.NoError(t, err)

	require.NoError(t, s.Customers.MarkPendingUpdate(ctx, "c1", func(c *backend.Customer) {
		c.Address = "12 MG Road"
	}))
	require.NoError(t, s.Customers.MarkPendingUpdate(ctx, "c1", func(c *backend.Customer) {
		c.CustomerName = "Meera K"
	}))

	got, err := s.Customers.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Meera K", got.CustomerName)
	assert.Equal(t, "12 MG Road", got.Address)
	assert.Equal(t, "555-0100", got.PhoneNumber)
	assert.Equal(t, backend.OpUpdate, got.SyncOp)
	assert.Greater(t, got.UpdatedAt, "2024-01-01T00:00:00.000Z")

	pending, err := s.Customers.GetPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "second edit coalesces into the same pending row")
	requireSyncInvariant(t, s)
}

func TestMarkPendingUpdateClearsPreviousError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Services.UpsertOne(ctx, &backend.Service{
		SyncMeta:    backend.SyncMeta{ID: "s1", UpdatedAt: "2024-01-01T00:00:00.000Z"},
		ServiceName: "Install",
	})
	require.NoError(t, err)
	require.NoError(t, s.Services.MarkPendingUpdate(ctx, "s1", func(sv *backend.Service) { sv.ServicePrice = 500 }))
	require.NoError(t, s.Services.MarkSyncError(ctx, "s1", "boom"))
	require.NoError(t, s.Services.MarkPendingUpdate(ctx, "s1", func(sv *backend.Service) { sv.ServicePrice = 600 }))

	got, err := s.Services.GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, got.SyncError)
	assert.Equal(t, 600.0, got.ServicePrice)
}

func TestMarkPendingDeleteTombstones(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Items.UpsertOne(ctx, &backend.Item{
		SyncMeta: backend.SyncMeta{ID: "i1", UpdatedAt: "2024-01-01T00:00:00.000Z"},
		ItemName: "Filter",
	})
	require.NoError(t, err)
	require.NoError(t, s.Items.MarkPendingDelete(ctx, "i1"))

	_, err = s.Items.GetByID(ctx, "i1")
	assert.ErrorIs(t, err, backend.ErrNotFound)

	pending, err := s.Items.GetPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].Deleted)
	assert.Equal(t, backend.OpDelete, pending[0].SyncOp)
	requireSyncInvariant(t, s)
}

func TestUpsertOneLastWriteWins(t *testing.T) {
	tests := []struct {
		name      string
		local     string
		incoming  string
		wantName  string
		wantApply bool
	}{
		{"local newer survives", "2024-05-02T00:00:00.000Z", "2024-05-01T00:00:00.000Z", "local", false},
		{"remote newer wins", "2024-05-01T00:00:00.000Z", "2024-05-02T00:00:00.000Z", "remote", true},
		{"tie favors incoming", "2024-05-01T00:00:00.000Z", "2024-05-01T00:00:00.000Z", "remote", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := newTestStore(t)

			_, err := s.Customers.UpsertOne(ctx, serverCustomer("c1", "local", tt.local))
			require.NoError(t, err)

			applied, err := s.Customers.UpsertOne(ctx, serverCustomer("c1", "remote", tt.incoming))
			require.NoError(t, err)
			assert.Equal(t, tt.wantApply, applied)

			got, err := s.Customers.GetByID(ctx, "c1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, got.CustomerName)
		})
	}
}

func TestUpsertOneOverwritesRowWithoutTimestamp(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.DB.Exec(`INSERT INTO customers (id, customer_name, phone_number, pending_sync) VALUES ('c1', 'old', '1', 0)`)
	require.NoError(t, err)

	applied, err := s.Customers.UpsertOne(ctx, serverCustomer("c1", "new", "2020-01-01T00:00:00.000Z"))
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestUpsertOneKeepsColumnsMissingFromPull(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	stored := serverCustomer("c1", "Meera", "2024-01-01T00:00:00.000Z")
	stored.Address = "12 MG Road"
	_, err := s.Customers.UpsertOne(ctx, stored)
	require.NoError(t, err)

	obj, err := backend.DecodeObject([]byte(`{"_id": "c1", "customerName": "Meera K", "updatedAt": "2024-02-01T00:00:00.000Z"}`))
	require.NoError(t, err)
	var incoming backend.Customer
	require.NoError(t, backend.DecodeRemote(obj, &incoming))

	applied, err := s.Customers.UpsertOne(ctx, &incoming)
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := s.Customers.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Meera K", got.CustomerName)
	assert.Equal(t, "12 MG Road", got.Address)
	assert.Equal(t, "555-0100", got.PhoneNumber)
	assert.Equal(t, "2024-02-01T00:00:00.000Z", got.UpdatedAt)
}

func TestUpsertOneSkipsPendingRows(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Customers.UpsertOne(ctx, serverCustomer("c1", "Server", "2024-01-01T00:00:00.000Z"))
	require.NoError(t, err)
	require.NoError(t, s.Customers.MarkPendingUpdate(ctx, "c1", func(c *backend.Customer) { c.CustomerName = "Edited offline" }))

	applied, err := s.Customers.UpsertOne(ctx, serverCustomer("c1", "Newer server", "2099-01-01T00:00:00.000Z"))
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := s.Customers.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Edited offline", got.CustomerName)
	assert.Equal(t, backend.OpUpdate, got.SyncOp)
	requireSyncInvariant(t, s)
}

func TestUpsertManyIsNotTransactional(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	recs := []*backend.Customer{
		serverCustomer("c1", "One", "2024-01-01T00:00:00.000Z"),
		serverCustomer("", "No id", "2024-01-01T00:00:00.000Z"),
		serverCustomer("c3", "Three", "2024-01-01T00:00:00.000Z"),
	}
	applied, err := s.Customers.UpsertMany(ctx, recs)
	require.Error(t, err)
	assert.Equal(t, 1, applied)

	_, err = s.Customers.GetByID(ctx, "c1")
	assert.NoError(t, err, "records merged before the failure stay merged")
	_, err = s.Customers.GetByID(ctx, "c3")
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestMarkSyncErrorKeepsInvariant(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Customers.UpsertOne(ctx, serverCustomer("c1", "Synced", "2024-01-01T00:00:00.000Z"))
	require.NoError(t, err)
	localID, err := s.Customers.InsertLocal(ctx, &backend.Customer{CustomerName: "Local", PhoneNumber: "2"})
	require.NoError(t, err)

	require.NoError(t, s.Customers.MarkSyncError(ctx, "c1", "stray"))
	require.NoError(t, s.Customers.MarkSyncError(ctx, localID, "HTTP 500"))

	synced, err := s.Customers.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, synced.PendingSync)

	local, err := s.Customers.GetByID(ctx, localID)
	require.NoError(t, err)
	assert.True(t, local.PendingSync)
	assert.Equal(t, "HTTP 500", local.SyncError)
	requireSyncInvariant(t, s)
}

func TestGetPendingOldestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, ts := range []string{"2024-03-01T00:00:00.000Z", "2024-01-01T00:00:00.000Z", "2024-02-01T00:00:00.000Z"} {
		_, err := s.Services.InsertLocal(ctx, &backend.Service{
			SyncMeta:    backend.SyncMeta{UpdatedAt: ts},
			ServiceName: ts,
		})
		require.NoError(t, err)
	}

	pending, err := s.Services.GetPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "2024-01-01T00:00:00.000Z", pending[0].UpdatedAt)
	assert.Equal(t, "2024-02-01T00:00:00.000Z", pending[1].UpdatedAt)
	assert.Equal(t, "2024-03-01T00:00:00.000Z", pending[2].UpdatedAt)

	n, err := s.Services.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestListOrderingAndPaging(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i, ts := range []string{"2024-01-01T00:00:00.000Z", "2024-03-01T00:00:00.000Z", "2024-02-01T00:00:00.000Z"} {
		_, err := s.Customers.UpsertOne(ctx, serverCustomer(string(rune('a'+i)), ts, ts))
		require.NoError(t, err)
	}
	require.NoError(t, s.Customers.MarkPendingDelete(ctx, "a"))

	all, err := s.Customers.List(ctx, Page{})
	require.NoError(t, err)
	require.Len(t, all, 2, "tombstoned rows are excluded")
	assert.Equal(t, "b", all[0].ID)
	assert.Equal(t, "c", all[1].ID)

	page, err := s.Customers.List(ctx, Page{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "c", page[0].ID)
}

func TestCustomersSearch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Customers.InsertLocal(ctx, &backend.Customer{CustomerName: "Anita Rao", PhoneNumber: "111"})
	require.NoError(t, err)
	_, err = s.Customers.InsertLocal(ctx, &backend.Customer{CustomerName: "Vikram", PhoneNumber: "222"})
	require.NoError(t, err)

	found, err := s.Customers.Search(ctx, "rao", Page{})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Anita Rao", found[0].CustomerName)

	found, err = s.Customers.Search(ctx, "22", Page{})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Vikram", found[0].CustomerName)
}

func TestBankAccountSetPrimary(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.BankAccounts.UpsertOne(ctx, &backend.BankAccount{
		SyncMeta:      backend.SyncMeta{ID: "b1", UpdatedAt: "2024-01-01T00:00:00.000Z"},
		BankName:      "SBI",
		AccountNumber: "1",
	})
	require.NoError(t, err)

	_, err = s.BankAccounts.Primary(ctx)
	assert.ErrorIs(t, err, backend.ErrNotFound)

	require.NoError(t, s.BankAccounts.MarkPendingSetPrimary(ctx, "b1"))

	got, err := s.BankAccounts.Primary(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b1", got.ID)
	assert.Equal(t, backend.OpSetPrimary, got.SyncOp)
	requireSyncInvariant(t, s)
}

func TestBillInsertWithChildren(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.Bills.InsertLocal(ctx, &backend.Bill{
		CustomerID:      "cust-1",
		ReceivedPayment: 100,
		Items: []backend.BillItem{
			{ItemType: "service", ItemID: "svc-1", Price: 250, Qty: 2},
			{ItemType: "product", ItemID: "item-1", Price: 100},
		},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "client-bill-"))

	bill, err := s.Bills.GetByID(ctx, id)
	require.NoError(t, err)
	require.Len(t, bill.Items, 2)
	assert.Equal(t, 600.0, bill.Subtotal)
	assert.Equal(t, 600.0, bill.TotalAmount)
	assert.Equal(t, 500.0, bill.DueAmount)
	assert.Equal(t, "partial", bill.Status)
	for _, item := range bill.Items {
		assert.Equal(t, id, item.BillID)
		assert.False(t, item.PendingSync, "children travel with the bill create")
	}

	require.NoError(t, s.Bills.MarkSynced(ctx, id, "srv-bill"))
	bill, err = s.Bills.GetByID(ctx, "srv-bill")
	require.NoError(t, err)
	assert.Len(t, bill.Items, 2, "children follow the bill id")
	requireSyncInvariant(t, s)
}

func TestBillPendingPayment(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Bills.UpsertOne(ctx, &backend.Bill{
		SyncMeta:    backend.SyncMeta{ID: "b1", UpdatedAt: "2024-01-01T00:00:00.000Z"},
		CustomerID:  "c1",
		TotalAmount: 1000,
		DueAmount:   1000,
		Status:      "pending",
	})
	require.NoError(t, err)

	require.NoError(t, s.Bills.MarkPendingPayment(ctx, "b1", backend.Payment{Amount: 400, Note: "cash"}))
	bill, err := s.Bills.GetByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 400.0, bill.ReceivedPayment)
	assert.Equal(t, 600.0, bill.DueAmount)
	assert.Equal(t, "partial", bill.Status)
	assert.Equal(t, backend.OpUpdate, bill.SyncOp)

	require.NoError(t, s.Bills.MarkPendingPayment(ctx, "b1", backend.Payment{Amount: 600}))
	bill, err = s.Bills.GetByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "paid", bill.Status)
	assert.Zero(t, bill.DueAmount)

	pays, err := s.Bills.PendingPayments(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, pays, 2)
	requireSyncInvariant(t, s)

	for _, p := range pays {
		require.NoError(t, s.Bills.MarkPaymentSynced(ctx, p.ID))
	}
	pays, err = s.Bills.PendingPayments(ctx, "b1")
	require.NoError(t, err)
	assert.Empty(t, pays)
	requireSyncInvariant(t, s)
}

func TestBillPaymentOnTempIDRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.Bills.InsertLocal(ctx, &backend.Bill{CustomerID: "c1", TotalAmount: 100})
	require.NoError(t, err)

	err = s.Bills.MarkPendingPayment(ctx, id, backend.Payment{Amount: 50})
	var nerr *backend.NotYetSyncedError
	require.True(t, errors.As(err, &nerr))

	bill, err := s.Bills.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, backend.OpCreate, bill.SyncOp)
	assert.Empty(t, bill.Payments)
}

func TestBillUpsertReplacesChildren(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	remote := &backend.Bill{
		SyncMeta:   backend.SyncMeta{ID: "b1", UpdatedAt: "2024-01-01T00:00:00.000Z"},
		CustomerID: "c1",
		Items:      []backend.BillItem{{SyncMeta: backend.SyncMeta{ID: "li-1"}, ItemType: "product", Qty: 1}},
		Payments:   []backend.Payment{{SyncMeta: backend.SyncMeta{ID: "p-1"}, Amount: 10}},
	}
	_, err := s.Bills.UpsertOne(ctx, remote)
	require.NoError(t, err)

	newer := &backend.Bill{
		SyncMeta:   backend.SyncMeta{ID: "b1", UpdatedAt: "2024-02-01T00:00:00.000Z"},
		CustomerID: "c1",
		Items: []backend.BillItem{
			{SyncMeta: backend.SyncMeta{ID: "li-2"}, ItemType: "service", Qty: 1},
			{SyncMeta: backend.SyncMeta{ID: "li-3"}, ItemType: "product", Qty: 3},
		},
	}
	_, err = s.Bills.UpsertOne(ctx, newer)
	require.NoError(t, err)

	bill, err := s.Bills.GetByID(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, bill.Items, 2)
	assert.Len(t, bill.Payments, 1, "payments untouched when the array is absent")

	dues, err := s.Bills.DueTotalsByCustomer(ctx)
	require.NoError(t, err)
	assert.Contains(t, dues, "c1")
}

func TestWorkOrdersByStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.WorkOrders.InsertLocal(ctx, &backend.WorkOrder{CustomerID: "c1"})
	require.NoError(t, err)
	_, err = s.WorkOrders.UpsertOne(ctx, &backend.WorkOrder{
		SyncMeta:   backend.SyncMeta{ID: "w2", UpdatedAt: "2024-01-01T00:00:00.000Z"},
		CustomerID: "c1",
		Status:     "completed",
	})
	require.NoError(t, err)

	pending, err := s.WorkOrders.ListByStatus(ctx, "pending", Page{})
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	n, err := s.WorkOrders.CountByStatus(ctx, "completed")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	byCustomer, err := s.WorkOrders.ListByCustomer(ctx, "c1", Page{})
	require.NoError(t, err)
	assert.Len(t, byCustomer, 2)
}

func TestMetadata(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, ok, err := s.Metadata.Get(ctx, LastPullKey(backend.KindBill))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Metadata.Set(ctx, LastPullKey(backend.KindBill), "2024-01-01T00:00:00.000Z"))
	require.NoError(t, s.Metadata.Set(ctx, LastPullKey(backend.KindBill), "2024-02-01T00:00:00.000Z"))

	v, ok, err := s.Metadata.Get(ctx, "bills_last_pull")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2024-02-01T00:00:00.000Z", v)
}

func TestStoreCountsAndEmpty(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	empty, err := s.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)

	_, err = s.Items.InsertLocal(ctx, &backend.Item{ItemName: "Pump"})
	require.NoError(t, err)

	empty, err = s.IsEmpty(ctx)
	require.NoError(t, err)
	assert.False(t, empty)

	counts, err := s.PendingCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[backend.KindItem])
	assert.Equal(t, 0, counts[backend.KindCustomer])
}

func TestStoreQueueInPushOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	itemID, err := s.Items.InsertLocal(ctx, &backend.Item{ItemName: "Pump"})
	require.NoError(t, err)
	custID, err := s.Customers.InsertLocal(ctx, &backend.Customer{CustomerName: "Asha", PhoneNumber: "98"})
	require.NoError(t, err)
	require.NoError(t, s.Items.MarkSyncError(ctx, itemID, "server said no"))

	queue, err := s.Queue(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 2)

	assert.Equal(t, backend.KindCustomer, queue[0].Kind)
	assert.Equal(t, custID, queue[0].ID)
	assert.Equal(t, backend.OpCreate, queue[0].Op)

	assert.Equal(t, backend.KindItem, queue[1].Kind)
	assert.Equal(t, "server said no", queue[1].Error)
}

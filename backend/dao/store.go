package dao

import (
	"context"
	"reflect"
	"strings"

	"fieldsync/backend"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// Store holds one instance of every DAO. It is built once at startup and
// passed to the sync engines and commands.
type Store struct {
	DB           *backend.Database
	Customers    *Customers
	WorkOrders   *WorkOrders
	Bills        *Bills
	Items        *Items
	Services     *Services
	BankAccounts *BankAccounts
	Metadata     *Metadata
}

// NewStore builds every DAO over db
func NewStore(db *backend.Database) *Store {
	v := NewValidator()
	return &Store{
		DB:           db,
		Customers:    NewCustomers(db, v),
		WorkOrders:   NewWorkOrders(db, v),
		Bills:        NewBills(db, v),
		Items:        NewItems(db, v),
		Services:     NewServices(db, v),
		BankAccounts: NewBankAccounts(db, v),
		Metadata:     NewMetadata(db),
	}
}

// NewValidator returns a validator that knows the notblank tag and reports
// fields by their json name
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// only fails on an empty tag name
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// PendingCounter is the slice of a DAO used for status reporting
type PendingCounter interface {
	Kind() backend.Kind
	PendingCount(ctx context.Context) (int, error)
}

// Counters returns the top-level DAOs in push order
func (s *Store) Counters() []PendingCounter {
	return []PendingCounter{s.Customers, s.WorkOrders, s.Bills, s.Items, s.Services, s.BankAccounts}
}

// PendingCounts returns the number of dirty rows per kind
func (s *Store) PendingCounts(ctx context.Context) (map[backend.Kind]int, error) {
	counts := make(map[backend.Kind]int)
	for _, c := range s.Counters() {
		n, err := c.PendingCount(ctx)
		if err != nil {
			return nil, err
		}
		counts[c.Kind()] = n
	}
	return counts, nil
}

// IsEmpty reports whether no customers, bills, work orders or items are stored
func (s *Store) IsEmpty(ctx context.Context) (bool, error) {
	for _, c := range []interface {
		Count(ctx context.Context) (int, error)
	}{s.Customers, s.Bills, s.WorkOrders, s.Items} {
		n, err := c.Count(ctx)
		if err != nil {
			return false, err
		}
		if n > 0 {
			return false, nil
		}
	}
	return true, nil
}

// QueueEntry is one dirty record waiting to be pushed
type QueueEntry struct {
	Kind      backend.Kind   `json:"kind" yaml:"kind"`
	ID        string         `json:"id" yaml:"id"`
	Op        backend.SyncOp `json:"op" yaml:"op"`
	UpdatedAt string         `json:"updated_at" yaml:"updated_at"`
	Error     string         `json:"error,omitempty" yaml:"error,omitempty"`
}

func queued[P backend.Entity](ctx context.Context, kind backend.Kind, get func(context.Context) ([]P, error)) ([]QueueEntry, error) {
	recs, err := get(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]QueueEntry, 0, len(recs))
	for _, rec := range recs {
		m := rec.Meta()
		out = append(out, QueueEntry{Kind: kind, ID: m.ID, Op: m.SyncOp, UpdatedAt: m.UpdatedAt, Error: m.SyncError})
	}
	return out, nil
}

// Queue lists every pending record in push order
func (s *Store) Queue(ctx context.Context) ([]QueueEntry, error) {
	var all []QueueEntry
	for _, load := range []func() ([]QueueEntry, error){
		func() ([]QueueEntry, error) { return queued(ctx, backend.KindCustomer, s.Customers.GetPending) },
		func() ([]QueueEntry, error) { return queued(ctx, backend.KindWorkOrder, s.WorkOrders.GetPending) },
		func() ([]QueueEntry, error) { return queued(ctx, backend.KindBill, s.Bills.GetPending) },
		func() ([]QueueEntry, error) { return queued(ctx, backend.KindItem, s.Items.GetPending) },
		func() ([]QueueEntry, error) { return queued(ctx, backend.KindService, s.Services.GetPending) },
		func() ([]QueueEntry, error) { return queued(ctx, backend.KindBankAccount, s.BankAccounts.GetPending) },
	} {
		entries, err := load()
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	return all, nil
}

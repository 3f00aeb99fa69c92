package dao

import (
	"context"

	"fieldsync/backend"

	"github.com/go-playground/validator/v10"
)

// Customers is the access object for the customers table
type Customers struct {
	*Table[backend.Customer, *backend.Customer]
}

// NewCustomers builds the customers DAO. Work orders and bills that point
// at a customer follow its id when the server assigns one.
func NewCustomers(db *backend.Database, validate *validator.Validate) *Customers {
	t := NewTable[backend.Customer](db, validate)
	t.rekeys = append(t.rekeys,
		rekeyColumn("work_orders", "customer_id"),
		rekeyColumn("bills", "customer_id"),
	)
	return &Customers{Table: t}
}

// Search lists customers whose name or phone number contains term
func (c *Customers) Search(ctx context.Context, term string, page Page) ([]*backend.Customer, error) {
	if term == "" {
		return c.List(ctx, page)
	}
	pattern := "%" + term + "%"
	return c.listWhere(ctx, "(customer_name LIKE ? OR phone_number LIKE ?)", page, pattern, pattern)
}

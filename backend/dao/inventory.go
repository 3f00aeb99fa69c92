package dao

import (
	"fieldsync/backend"

	"github.com/go-playground/validator/v10"
)

// Items is the access object for inventory items
type Items struct {
	*Table[backend.Item, *backend.Item]
}

func NewItems(db *backend.Database, validate *validator.Validate) *Items {
	t := NewTable[backend.Item](db, validate)
	t.rekeys = append(t.rekeys, rekeyColumn("bill_items", "item_id"))
	return &Items{Table: t}
}

// Services is the access object for billable services
type Services struct {
	*Table[backend.Service, *backend.Service]
}

func NewServices(db *backend.Database, validate *validator.Validate) *Services {
	t := NewTable[backend.Service](db, validate)
	t.rekeys = append(t.rekeys, rekeyColumn("bill_items", "item_id"))
	return &Services{Table: t}
}

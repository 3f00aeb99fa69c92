package dao

import (
	"context"

	"fieldsync/backend"

	"github.com/go-playground/validator/v10"
)

// BankAccounts is the access object for payout bank accounts
type BankAccounts struct {
	*Table[backend.BankAccount, *backend.BankAccount]
}

func NewBankAccounts(db *backend.Database, validate *validator.Validate) *BankAccounts {
	return &BankAccounts{Table: NewTable[backend.BankAccount](db, validate)}
}

// MarkPendingSetPrimary flags the account as primary and queues the remote
// set-primary call. Other accounts are not touched; the server clears their
// flag and the next pull brings that back.
func (b *BankAccounts) MarkPendingSetPrimary(ctx context.Context, id string) error {
	return b.markPending(ctx, id, backend.OpSetPrimary, func(a *backend.BankAccount) {
		a.IsPrimary = true
	})
}

// Primary returns the account flagged primary, if any
func (b *BankAccounts) Primary(ctx context.Context) (*backend.BankAccount, error) {
	accounts, err := b.listWhere(ctx, "is_primary = 1", Page{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, backend.ErrNotFound
	}
	return accounts[0], nil
}

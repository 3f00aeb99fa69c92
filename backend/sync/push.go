package sync

import (
	"context"
	"errors"
	"fmt"

	"fieldsync/backend"
)

// pendingSource is the slice of a DAO a pusher drains
type pendingSource[P backend.Entity] interface {
	Kind() backend.Kind
	GetPending(ctx context.Context) ([]P, error)
	MarkSynced(ctx context.Context, localID, serverID string) error
	MarkSyncError(ctx context.Context, id, msg string) error
}

// waitingError holds back a record until something it depends on is synced.
// Its message is recorded on the row; the record is not counted as failed.
type waitingError struct {
	msg string
}

func (e *waitingError) Error() string { return e.msg }

func waitingFor(what string) error {
	return &waitingError{msg: "Waiting for server id of " + what}
}

// errDeleteUnsupported is recorded on bills queued for delete
var errDeleteUnsupported = errors.New("Delete not supported via sync yet")

// pusher drains the pending rows of one kind. The optional hooks replace the
// default remote call for an operation.
type pusher[P backend.Entity] struct {
	sm  *SyncManager
	src pendingSource[P]

	ready      func(rec P) error
	update     func(ctx context.Context, rec P) error
	remove     func(ctx context.Context, rec P) error
	setPrimary func(ctx context.Context, rec P) error
}

func (p pusher[P]) push(ctx context.Context, result *SyncResult) error {
	kind := p.src.Kind()
	pending, err := p.src.GetPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to get pending %s: %w", kind, err)
	}
	if len(pending) > 0 {
		p.sm.log.Debug("pushing", "kind", kind, "pending", len(pending))
	}

	for _, rec := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		meta := rec.Meta()
		localID, op := meta.ID, meta.SyncOp

		serverID, pushErr := p.pushOne(ctx, rec)
		if pushErr == nil {
			if err := p.src.MarkSynced(ctx, localID, serverID); err != nil {
				return fmt.Errorf("failed to mark %s %s synced: %w", kind, localID, err)
			}
			result.PushedRecords++
			continue
		}

		var waiting *waitingError
		var notSynced *backend.NotYetSyncedError
		switch {
		case isStorageFailure(pushErr):
			return fmt.Errorf("failed to push %s %s: %w", kind, localID, pushErr)
		case backend.IsAuthError(pushErr):
			return pushErr
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.As(pushErr, &waiting):
			if err := p.src.MarkSyncError(ctx, localID, waiting.msg); err != nil {
				return err
			}
			result.WaitingRecords++
		case errors.As(pushErr, &notSynced):
			if err := p.src.MarkSyncError(ctx, localID, notSynced.WaitingMessage()); err != nil {
				return err
			}
			result.WaitingRecords++
		default:
			var remoteErr *backend.RemoteError
			if errors.As(pushErr, &remoteErr) && remoteErr.EntityID == "" {
				remoteErr.WithEntity(string(kind), localID)
			}
			p.sm.log.Warn("push failed", "kind", kind, "id", localID, "op", op, "error", pushErr)
			if err := p.src.MarkSyncError(ctx, localID, pushErr.Error()); err != nil {
				return err
			}
			result.recordFailure(&RecordError{Kind: kind, ID: localID, Op: op, Err: pushErr})
		}
	}
	return nil
}

// pushOne sends one pending record and returns the id to mark it synced under
func (p pusher[P]) pushOne(ctx context.Context, rec P) (string, error) {
	meta := rec.Meta()
	kind := p.src.Kind()
	remote := p.sm.remote

	if meta.SyncOp == backend.OpCreate {
		if p.ready != nil {
			if err := p.ready(rec); err != nil {
				return "", err
			}
		}
		return remote.Create(ctx, kind, backend.Payload(rec))
	}

	if !meta.SyncOp.Valid() || meta.SyncOp == backend.OpNone {
		return "", fmt.Errorf("unknown sync operation %q", meta.SyncOp)
	}
	if backend.IsClientTempID(meta.ID) {
		return "", &backend.NotYetSyncedError{Entity: string(kind), ID: meta.ID, Op: meta.SyncOp}
	}

	switch meta.SyncOp {
	case backend.OpUpdate:
		if p.update != nil {
			return meta.ID, p.update(ctx, rec)
		}
		return meta.ID, remote.Update(ctx, kind, meta.ID, backend.Payload(rec))

	case backend.OpDelete:
		if p.remove != nil {
			return meta.ID, p.remove(ctx, rec)
		}
		err := remote.Delete(ctx, kind, meta.ID)
		var remoteErr *backend.RemoteError
		if errors.As(err, &remoteErr) && remoteErr.IsNotFound() {
			// already gone remotely
			return meta.ID, nil
		}
		return meta.ID, err

	case backend.OpSetPrimary:
		if p.setPrimary == nil {
			return "", fmt.Errorf("%s does not support %s", kind, meta.SyncOp.Verb())
		}
		return meta.ID, p.setPrimary(ctx, rec)
	}
	return "", fmt.Errorf("unknown sync operation %q", meta.SyncOp)
}

func workOrderReady(wo *backend.WorkOrder) error {
	if backend.IsClientTempID(wo.CustomerID) {
		return waitingFor("customer")
	}
	return nil
}

func billReady(bill *backend.Bill) error {
	if backend.IsClientTempID(bill.CustomerID) {
		return waitingFor("customer")
	}
	if backend.IsClientTempID(bill.WorkOrderID) {
		return waitingFor("work order")
	}
	for _, item := range bill.Items {
		if backend.IsClientTempID(item.ItemID) {
			return waitingFor("item")
		}
	}
	return nil
}

// pushBillPayments sends the bill's pending payments. Bill edits reach the
// server only through payments.
func (sm *SyncManager) pushBillPayments(ctx context.Context, bill *backend.Bill) error {
	payments, err := sm.store.Bills.PendingPayments(ctx, bill.ID)
	if err != nil {
		return storageFailure(err)
	}
	for _, pay := range payments {
		if err := sm.remote.AddBillPayment(ctx, bill.ID, pay.Amount, pay.Note); err != nil {
			return err
		}
		if err := sm.store.Bills.MarkPaymentSynced(ctx, pay.ID); err != nil {
			return storageFailure(err)
		}
	}
	return nil
}

func rejectBillDelete(context.Context, *backend.Bill) error {
	return errDeleteUnsupported
}

func (sm *SyncManager) pushSetPrimary(ctx context.Context, acct *backend.BankAccount) error {
	return sm.remote.SetPrimaryBankAccount(ctx, acct.ID)
}

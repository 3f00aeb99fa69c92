package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fieldsync/backend"
	"fieldsync/backend/dao"
	"fieldsync/internal/utils"
)

// Remote is the slice of the remote API the engines need
type Remote interface {
	Create(ctx context.Context, kind backend.Kind, payload map[string]any) (string, error)
	Update(ctx context.Context, kind backend.Kind, id string, payload map[string]any) error
	Delete(ctx context.Context, kind backend.Kind, id string) error
	SetPrimaryBankAccount(ctx context.Context, id string) error
	AddBillPayment(ctx context.Context, billID string, amount float64, note string) error
	List(ctx context.Context, kind backend.Kind) ([]json.RawMessage, error)
}

// AuthGate resolves to a usable session or backend.ErrAuthRequired
type AuthGate interface {
	WaitForAuth(ctx context.Context) (string, error)
}

// kindSync pairs the push and pull halves of one entity kind
type kindSync struct {
	kind backend.Kind
	push func(ctx context.Context, result *SyncResult) error
	pull func(ctx context.Context) (pulled, skipped int, err error)
}

// Phase names the half of a cycle being run
type Phase string

const (
	PhasePush Phase = "push"
	PhasePull Phase = "pull"
)

// SyncManager runs push and pull for every entity kind against one store
type SyncManager struct {
	store     *dao.Store
	remote    Remote
	kinds     []kindSync
	phaseHook func(Phase)
	log       *slog.Logger
}

// NewSyncManager creates a new sync manager
func NewSyncManager(store *dao.Store, remote Remote) *SyncManager {
	sm := &SyncManager{
		store:  store,
		remote: remote,
		log:    utils.Component("sync"),
	}
	sm.kinds = []kindSync{
		{
			kind: backend.KindCustomer,
			push: pusher[*backend.Customer]{sm: sm, src: store.Customers}.push,
			pull: puller[backend.Customer, *backend.Customer]{sm: sm, dst: store.Customers}.pull,
		},
		{
			kind: backend.KindWorkOrder,
			push: pusher[*backend.WorkOrder]{sm: sm, src: store.WorkOrders, ready: workOrderReady}.push,
			pull: puller[backend.WorkOrder, *backend.WorkOrder]{sm: sm, dst: store.WorkOrders}.pull,
		},
		{
			kind: backend.KindBill,
			push: pusher[*backend.Bill]{
				sm:     sm,
				src:    store.Bills,
				ready:  billReady,
				update: sm.pushBillPayments,
				remove: rejectBillDelete,
			}.push,
			pull: puller[backend.Bill, *backend.Bill]{sm: sm, dst: store.Bills}.pull,
		},
		{
			kind: backend.KindItem,
			push: pusher[*backend.Item]{sm: sm, src: store.Items}.push,
			pull: puller[backend.Item, *backend.Item]{sm: sm, dst: store.Items}.pull,
		},
		{
			kind: backend.KindService,
			push: pusher[*backend.Service]{sm: sm, src: store.Services}.push,
			pull: puller[backend.Service, *backend.Service]{sm: sm, dst: store.Services}.pull,
		},
		{
			kind: backend.KindBankAccount,
			push: pusher[*backend.BankAccount]{sm: sm, src: store.BankAccounts, setPrimary: sm.pushSetPrimary}.push,
			pull: puller[backend.BankAccount, *backend.BankAccount]{sm: sm, dst: store.BankAccounts}.pull,
		},
	}
	return sm
}

// RecordError is a per-record push failure. The record keeps its pending
// state and the message is stored as its sync_error.
type RecordError struct {
	Kind backend.Kind
	ID   string
	Op   backend.SyncOp
	Err  error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s %s %s: %v", e.Op.Verb(), e.Kind, e.ID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// RetryableFailuresError is returned by Sync when records failed with
// errors that may pass on another attempt (transport errors, 5xx, 429).
type RetryableFailuresError struct {
	Failures []*RecordError
}

func (e *RetryableFailuresError) Error() string {
	return fmt.Sprintf("%d record(s) failed with retryable errors, first: %v", len(e.Failures), e.Failures[0])
}

func (e *RetryableFailuresError) Unwrap() error {
	return e.Failures[0]
}

// SyncResult contains statistics about the sync operation
type SyncResult struct {
	PushedRecords  int
	WaitingRecords int
	FailedRecords  int
	PulledRecords  int
	SkippedRecords int
	Errors         []*RecordError
	Duration       time.Duration
}

func (r *SyncResult) recordFailure(rec *RecordError) {
	r.FailedRecords++
	r.Errors = append(r.Errors, rec)
}

// Retryable returns the per-record failures worth another attempt
func (r *SyncResult) Retryable() []*RecordError {
	var out []*RecordError
	for _, e := range r.Errors {
		if backend.IsTransientError(e.Err) {
			out = append(out, e)
		}
	}
	return out
}

func (r *SyncResult) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "pushed %d, pulled %d", r.PushedRecords, r.PulledRecords)
	if r.SkippedRecords > 0 {
		fmt.Fprintf(&sb, ", unchanged %d", r.SkippedRecords)
	}
	if r.WaitingRecords > 0 {
		fmt.Fprintf(&sb, ", waiting %d", r.WaitingRecords)
	}
	if r.FailedRecords > 0 {
		fmt.Fprintf(&sb, ", failed %d", r.FailedRecords)
	}
	fmt.Fprintf(&sb, " in %s", r.Duration.Round(time.Millisecond))
	return sb.String()
}

// Sync pushes every kind and then pulls every kind. Authentication and
// storage failures abort the cycle. Per-record failures are recorded on the
// rows; when any of them is retryable the result comes back with a
// *RetryableFailuresError after the pull has run.
func (sm *SyncManager) Sync(ctx context.Context) (*SyncResult, error) {
	startTime := time.Now()
	result := &SyncResult{}
	defer func() { result.Duration = time.Since(startTime) }()

	sm.enter(PhasePush)
	if err := sm.push(ctx, result); err != nil {
		return result, fmt.Errorf("push phase failed: %w", err)
	}
	sm.enter(PhasePull)
	if err := sm.pull(ctx, result); err != nil {
		return result, fmt.Errorf("pull phase failed: %w", err)
	}

	sm.log.Info("sync complete",
		"pushed", result.PushedRecords,
		"pulled", result.PulledRecords,
		"waiting", result.WaitingRecords,
		"failed", result.FailedRecords)

	if retryable := result.Retryable(); len(retryable) > 0 {
		return result, &RetryableFailuresError{Failures: retryable}
	}
	return result, nil
}

// OnPhase registers fn to be called as Sync enters each phase. It must be
// set before the manager is shared.
func (sm *SyncManager) OnPhase(fn func(Phase)) {
	sm.phaseHook = fn
}

func (sm *SyncManager) enter(p Phase) {
	if sm.phaseHook != nil {
		sm.phaseHook(p)
	}
}

// PullOnly executes only the pull phase
func (sm *SyncManager) PullOnly(ctx context.Context) (*SyncResult, error) {
	startTime := time.Now()
	result := &SyncResult{}
	err := sm.pull(ctx, result)
	result.Duration = time.Since(startTime)
	return result, err
}

func (sm *SyncManager) push(ctx context.Context, result *SyncResult) error {
	for _, k := range sm.kinds {
		if err := k.push(ctx, result); err != nil {
			return err
		}
	}
	return nil
}

func (sm *SyncManager) pull(ctx context.Context, result *SyncResult) error {
	for _, k := range sm.kinds {
		pulled, skipped, err := k.pull(ctx)
		if err != nil {
			return err
		}
		result.PulledRecords += pulled
		result.SkippedRecords += skipped
	}
	return nil
}

func (sm *SyncManager) lookup(kind backend.Kind) (kindSync, error) {
	for _, k := range sm.kinds {
		if k.kind == kind {
			return k, nil
		}
	}
	return kindSync{}, fmt.Errorf("kind %s is not synced", kind)
}

// PullKind pulls a single kind and stamps its last pull time
func (sm *SyncManager) PullKind(ctx context.Context, kind backend.Kind) (int, error) {
	k, err := sm.lookup(kind)
	if err != nil {
		return 0, err
	}
	pulled, _, err := k.pull(ctx)
	return pulled, err
}

// LastPulled returns the last successful pull time of kind, if any
func (sm *SyncManager) LastPulled(ctx context.Context, kind backend.Kind) (string, bool, error) {
	return sm.store.Metadata.Get(ctx, dao.LastPullKey(kind))
}

// EnsurePulled pulls kind only when it has never been pulled. It reports
// whether a pull ran.
func (sm *SyncManager) EnsurePulled(ctx context.Context, kind backend.Kind) (bool, error) {
	_, ok, err := sm.LastPulled(ctx, kind)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	if _, err := sm.PullKind(ctx, kind); err != nil {
		return false, err
	}
	return true, nil
}

// IsDatabaseEmpty reports whether no customers, bills, work orders or items
// are stored locally
func (sm *SyncManager) IsDatabaseEmpty(ctx context.Context) (bool, error) {
	return sm.store.IsEmpty(ctx)
}

// InitialPullAll waits for a session and pulls every kind, stopping at the
// first failure
func (sm *SyncManager) InitialPullAll(ctx context.Context, gate AuthGate) (*SyncResult, error) {
	if gate != nil {
		if _, err := gate.WaitForAuth(ctx); err != nil {
			return nil, err
		}
	}
	result, err := sm.PullOnly(ctx)
	if err != nil {
		return result, fmt.Errorf("initial pull failed: %w", err)
	}
	sm.log.Info("initial pull complete", "records", result.PulledRecords, "duration", result.Duration)
	return result, nil
}

// storeError marks failures of the local store met while pushing a record.
// They abort the push instead of being recorded on the row.
type storeError struct {
	err error
}

func (e *storeError) Error() string { return e.err.Error() }
func (e *storeError) Unwrap() error { return e.err }

func storageFailure(err error) error {
	if err == nil {
		return nil
	}
	return &storeError{err: err}
}

func isStorageFailure(err error) bool {
	var se *storeError
	return errors.As(err, &se)
}

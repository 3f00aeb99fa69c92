package dao

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"fieldsync/backend"
	"fieldsync/internal/utils"

	"github.com/go-playground/validator/v10"
)

// Page selects a window of a listing. A zero Limit returns every row.
type Page struct {
	Limit  int
	Offset int
}

// entityPtr constrains P to a pointer to T that is a sync entity
type entityPtr[T any] interface {
	*T
	backend.Entity
}

// rekeyFunc moves references from oldID to newID inside tx
type rekeyFunc func(ctx context.Context, tx *sql.Tx, oldID, newID string) error

// Table is the access object for one entity table. Every query is derived
// from the entity's field table.
type Table[T any, P entityPtr[T]] struct {
	db       *backend.Database
	kind     backend.Kind
	table    string
	columns  []string
	business map[string]bool
	allowed  map[string]bool
	validate *validator.Validate
	log      *slog.Logger

	// children hooks, set by DAOs whose records own child rows
	afterInsert  func(ctx context.Context, tx *sql.Tx, rec P) error
	afterLoad    func(ctx context.Context, q querier, rec P) error
	afterUpsert  func(ctx context.Context, tx *sql.Tx, rec P) error
	beforeRemove func(ctx context.Context, tx *sql.Tx, id string) error
	rekeys       []rekeyFunc
}

// NewTable builds the access object for the entity kind of T
func NewTable[T any, P entityPtr[T]](db *backend.Database, validate *validator.Validate) *Table[T, P] {
	var zero T
	p := P(&zero)

	t := &Table[T, P]{
		db:       db,
		kind:     p.Kind(),
		table:    p.Kind().Table(),
		business: make(map[string]bool),
		allowed:  make(map[string]bool),
		validate: validate,
		log:      utils.Component("dao").With("table", p.Kind().Table()),
	}
	for _, f := range backend.AllFields(p) {
		t.columns = append(t.columns, f.Column)
		t.allowed[f.Column] = true
	}
	for _, f := range p.Fields() {
		t.business[f.Column] = true
	}
	return t
}

// Kind returns the entity kind stored in the table
func (t *Table[T, P]) Kind() backend.Kind {
	return t.kind
}

func (t *Table[T, P]) selectSQL() string {
	return "SELECT " + strings.Join(t.columns, ", ") + " FROM " + t.table
}

func (t *Table[T, P]) scan(row interface{ Scan(...any) error }) (P, error) {
	var rec T
	p := P(&rec)
	fields := backend.AllFields(p)
	dests := make([]any, len(fields))
	for i, f := range fields {
		dests[i] = f.ScanDest()
	}
	if err := row.Scan(dests...); err != nil {
		return nil, err
	}
	return p, nil
}

func (t *Table[T, P]) query(ctx context.Context, q querier, where string, args ...any) ([]P, error) {
	rows, err := q.QueryContext(ctx, t.selectSQL()+" "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", t.table, err)
	}
	defer rows.Close()

	var out []P
	for rows.Next() {
		rec, err := t.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", t.table, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", t.table, err)
	}
	rows.Close()

	if t.afterLoad != nil {
		for _, rec := range out {
			if err := t.afterLoad(ctx, q, rec); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// getAny loads a row by id including tombstones
func (t *Table[T, P]) getAny(ctx context.Context, q querier, id string) (P, error) {
	recs, err := t.query(ctx, q, "WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, backend.ErrNotFound
	}
	return recs[0], nil
}

func pageClause(page Page) string {
	if page.Limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", page.Limit, max(page.Offset, 0))
}

// List returns non-deleted rows, most recently updated first
func (t *Table[T, P]) List(ctx context.Context, page Page) ([]P, error) {
	return t.listWhere(ctx, "", page)
}

// listWhere lists non-deleted rows matching an extra condition
func (t *Table[T, P]) listWhere(ctx context.Context, cond string, page Page, args ...any) ([]P, error) {
	where := "WHERE deleted = 0"
	if cond != "" {
		where += " AND " + cond
	}
	return t.query(ctx, t.db, where+" ORDER BY updated_at DESC"+pageClause(page), args...)
}

// GetByID returns a non-deleted row or backend.ErrNotFound
func (t *Table[T, P]) GetByID(ctx context.Context, id string) (P, error) {
	recs, err := t.query(ctx, t.db, "WHERE id = ? AND deleted = 0", id)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, backend.ErrNotFound
	}
	return recs[0], nil
}

func (t *Table[T, P]) insertRow(ctx context.Context, ex execer, rec P) error {
	fields := backend.AllFields(rec)
	args := make([]any, len(fields))
	for i, f := range fields {
		args[i] = f.Value()
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(fields)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.table, strings.Join(t.columns, ", "), placeholders)
	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", t.table, err)
	}
	return nil
}

// InsertLocal writes a new locally created record as a pending create and
// returns its id. A blank required field fails with *backend.ValidationError
// and nothing is written.
func (t *Table[T, P]) InsertLocal(ctx context.Context, rec P) (string, error) {
	if d, ok := any(rec).(backend.Defaulter); ok {
		d.ApplyDefaults()
	}
	if err := t.validate.StructCtx(ctx, rec); err != nil {
		return "", backend.NewValidationError(string(t.kind), err)
	}

	m := rec.Meta()
	if m.ID == "" {
		m.ID = backend.NewClientID(t.kind)
	}
	if m.ClientID == "" {
		m.ClientID = m.ID
	}
	now := backend.Now()
	if m.CreatedAt == "" {
		m.CreatedAt = now
	}
	if m.UpdatedAt == "" {
		m.UpdatedAt = now
	}
	m.Deleted = false
	m.PendingSync = true
	m.SyncOp = backend.OpCreate
	m.SyncError = ""

	err := t.withTx(ctx, func(tx *sql.Tx) error {
		if err := t.insertRow(ctx, tx, rec); err != nil {
			return err
		}
		if t.afterInsert != nil {
			return t.afterInsert(ctx, tx, rec)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	t.log.Debug("inserted local record", "id", m.ID)
	return m.ID, nil
}

// MarkPendingUpdate applies a typed mutation to the record and writes the
// changed business columns as a pending update. A second edit before the
// record syncs coalesces into the same pending row.
func (t *Table[T, P]) MarkPendingUpdate(ctx context.Context, id string, apply func(P)) error {
	return t.markPending(ctx, id, backend.OpUpdate, apply)
}

func (t *Table[T, P]) markPending(ctx context.Context, id string, op backend.SyncOp, apply func(P)) error {
	rec, err := t.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := t.guardTempID(ctx, id, op); err != nil {
		return err
	}

	before := rec.Fields()
	snapshot := make([]any, len(before))
	for i, f := range before {
		snapshot[i] = f.Value()
	}
	if apply != nil {
		apply(rec)
	}

	b := newUpdate(t.table, t.allowed)
	for i, f := range rec.Fields() {
		if f.Value() != snapshot[i] {
			b.Set(f.Column, f.Value())
		}
	}
	b.Set("pending_sync", 1).
		Set("sync_op", string(op)).
		SetNull("sync_error").
		Set("updated_at", backend.Now()).
		Where("id", id)

	if _, err := b.Exec(ctx, t.db); err != nil {
		return fmt.Errorf("failed to mark %s %s pending %s: %w", t.kind, id, op, err)
	}
	return nil
}

// MarkPendingDelete tombstones the record and queues a remote delete
func (t *Table[T, P]) MarkPendingDelete(ctx context.Context, id string) error {
	if _, err := t.GetByID(ctx, id); err != nil {
		return err
	}
	if err := t.guardTempID(ctx, id, backend.OpDelete); err != nil {
		return err
	}

	_, err := newUpdate(t.table, t.allowed).
		Set("deleted", 1).
		Set("pending_sync", 1).
		Set("sync_op", string(backend.OpDelete)).
		SetNull("sync_error").
		Set("updated_at", backend.Now()).
		Where("id", id).
		Exec(ctx, t.db)
	if err != nil {
		return fmt.Errorf("failed to mark %s %s deleted: %w", t.kind, id, err)
	}
	return nil
}

// guardTempID rejects op on a client-temporary id and records why on the row
func (t *Table[T, P]) guardTempID(ctx context.Context, id string, op backend.SyncOp) error {
	if !backend.IsClientTempID(id) {
		return nil
	}
	nerr := &backend.NotYetSyncedError{Entity: string(t.kind), ID: id, Op: op}
	if err := t.MarkSyncError(ctx, id, nerr.WaitingMessage()); err != nil {
		return err
	}
	return nerr
}

// UpsertOne merges a remote record. It reports whether the row was written.
// Rows with an unsynced local edit are left alone; otherwise the incoming
// record wins when the stored updated_at is empty or not newer.
func (t *Table[T, P]) UpsertOne(ctx context.Context, rec P) (bool, error) {
	m := rec.Meta()
	if m.ID == "" {
		return false, fmt.Errorf("cannot upsert %s without id", t.kind)
	}
	if m.UpdatedAt == "" {
		m.UpdatedAt = backend.Now()
	}
	if m.CreatedAt == "" {
		m.CreatedAt = m.UpdatedAt
	}

	applied := false
	err := t.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := t.getAny(ctx, tx, m.ID)
		if errors.Is(err, backend.ErrNotFound) {
			if m.ClientID == "" {
				m.ClientID = m.ID
			}
			if err := t.insertRow(ctx, tx, rec); err != nil {
				return err
			}
			applied = true
			return t.runAfterUpsert(ctx, tx, rec)
		}
		if err != nil {
			return err
		}

		em := existing.Meta()
		if em.PendingSync {
			t.log.Debug("skipping pull of pending record", "id", m.ID, "op", em.SyncOp)
			return nil
		}
		if em.UpdatedAt != "" && m.UpdatedAt < em.UpdatedAt {
			return nil
		}

		if em.ClientID != "" {
			m.ClientID = em.ClientID
		}
		b := newUpdate(t.table, t.allowed)
		for _, f := range backend.AllFields(rec) {
			if f.Column == "id" || (m.Missing(f.Column) && f.Column != "updated_at") {
				continue
			}
			b.Set(f.Column, f.Value())
		}
		if _, err := b.Where("id", m.ID).Exec(ctx, tx); err != nil {
			return fmt.Errorf("failed to update %s %s: %w", t.kind, m.ID, err)
		}
		applied = true
		return t.runAfterUpsert(ctx, tx, rec)
	})
	return applied, err
}

func (t *Table[T, P]) runAfterUpsert(ctx context.Context, tx *sql.Tx, rec P) error {
	if t.afterUpsert == nil {
		return nil
	}
	return t.afterUpsert(ctx, tx, rec)
}

// UpsertMany merges records one at a time. It stops at the first failure;
// records merged before it stay merged.
func (t *Table[T, P]) UpsertMany(ctx context.Context, recs []P) (int, error) {
	applied := 0
	for _, rec := range recs {
		ok, err := t.UpsertOne(ctx, rec)
		if err != nil {
			return applied, err
		}
		if ok {
			applied++
		}
	}
	return applied, nil
}

// MarkSynced clears the pending state and adopts the server id. References
// to the old id in other tables follow the rewrite.
func (t *Table[T, P]) MarkSynced(ctx context.Context, localID, serverID string) error {
	if serverID == "" {
		serverID = localID
	}
	err := t.withTx(ctx, func(tx *sql.Tx) error {
		if localID != serverID {
			// a pull may already have stored the server copy
			if t.beforeRemove != nil {
				if err := t.beforeRemove(ctx, tx, serverID); err != nil {
					return err
				}
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t.table+" WHERE id = ?", serverID); err != nil {
				return fmt.Errorf("failed to replace stale %s %s: %w", t.kind, serverID, err)
			}
		}

		n, err := newUpdate(t.table, t.allowed).
			Set("id", serverID).
			Set("pending_sync", 0).
			SetNull("sync_op").
			SetNull("sync_error").
			Where("id", localID).
			Exec(ctx, tx)
		if err != nil {
			return fmt.Errorf("failed to mark %s %s synced: %w", t.kind, localID, err)
		}
		if n == 0 {
			return backend.ErrNotFound
		}

		if localID != serverID {
			for _, rekey := range t.rekeys {
				if err := rekey(ctx, tx, localID, serverID); err != nil {
					return fmt.Errorf("failed to rekey references to %s: %w", localID, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	t.log.Debug("marked synced", "local_id", localID, "server_id", serverID)
	return nil
}

// MarkSyncError records msg on the row. Pending rows stay pending; a row
// without an op keeps pending_sync=0.
func (t *Table[T, P]) MarkSyncError(ctx context.Context, id, msg string) error {
	query := "UPDATE " + t.table + ` SET sync_error = ?,
		pending_sync = CASE WHEN sync_op IS NULL THEN pending_sync ELSE 1 END
		WHERE id = ?`
	if _, err := t.db.ExecContext(ctx, query, msg, id); err != nil {
		return fmt.Errorf("failed to record sync error on %s %s: %w", t.kind, id, err)
	}
	return nil
}

// GetPending returns rows waiting to be pushed, oldest edit first
func (t *Table[T, P]) GetPending(ctx context.Context) ([]P, error) {
	return t.query(ctx, t.db, "WHERE pending_sync = 1 ORDER BY updated_at ASC, rowid ASC")
}

// PendingCount returns the number of rows waiting to be pushed
func (t *Table[T, P]) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := t.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t.table+" WHERE pending_sync = 1").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending %s: %w", t.table, err)
	}
	return n, nil
}

// Count returns the number of non-deleted rows
func (t *Table[T, P]) Count(ctx context.Context) (int, error) {
	var n int
	err := t.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t.table+" WHERE deleted = 0").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", t.table, err)
	}
	return n, nil
}

func (t *Table[T, P]) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// rekeyColumn returns a rekeyFunc that rewrites table.column from the old id to the new one
func rekeyColumn(table, column string) rekeyFunc {
	query := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?", table, column, column)
	return func(ctx context.Context, tx *sql.Tx, oldID, newID string) error {
		_, err := tx.ExecContext(ctx, query, newID, oldID)
		return err
	}
}

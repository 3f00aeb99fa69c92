package dao

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// execer is satisfied by *sql.DB, *sql.Conn and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// updateBuilder assembles an UPDATE from named columns. Column names are
// checked against the table's known columns; values are always bound.
type updateBuilder struct {
	table   string
	allowed map[string]bool
	cols    []string
	args    []any
	where   []string
	wargs   []any
	err     error
}

func newUpdate(table string, allowed map[string]bool) *updateBuilder {
	return &updateBuilder{table: table, allowed: allowed}
}

func (b *updateBuilder) check(col string) bool {
	if b.err != nil {
		return false
	}
	if !b.allowed[col] {
		b.err = fmt.Errorf("unknown column %q for table %s", col, b.table)
		return false
	}
	return true
}

// Set assigns col = v. Setting the same column twice keeps the last value.
func (b *updateBuilder) Set(col string, v any) *updateBuilder {
	if !b.check(col) {
		return b
	}
	for i, c := range b.cols {
		if c == col {
			b.args[i] = v
			return b
		}
	}
	b.cols = append(b.cols, col)
	b.args = append(b.args, v)
	return b
}

// SetNull assigns col = NULL
func (b *updateBuilder) SetNull(col string) *updateBuilder {
	return b.Set(col, nil)
}

// Where adds an equality condition; conditions are joined with AND
func (b *updateBuilder) Where(col string, v any) *updateBuilder {
	if !b.check(col) {
		return b
	}
	b.where = append(b.where, col+" = ?")
	b.wargs = append(b.wargs, v)
	return b
}

// Empty reports whether no column has been set
func (b *updateBuilder) Empty() bool {
	return len(b.cols) == 0
}

// Build returns the statement and its arguments
func (b *updateBuilder) Build() (string, []any, error) {
	if b.err != nil {
		return "", nil, b.err
	}
	if len(b.cols) == 0 {
		return "", nil, fmt.Errorf("update of %s has no columns", b.table)
	}
	if len(b.where) == 0 {
		return "", nil, fmt.Errorf("update of %s has no condition", b.table)
	}

	sets := make([]string, len(b.cols))
	for i, c := range b.cols {
		sets[i] = c + " = ?"
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		b.table, strings.Join(sets, ", "), strings.Join(b.where, " AND "))

	args := make([]any, 0, len(b.args)+len(b.wargs))
	args = append(args, b.args...)
	args = append(args, b.wargs...)
	return query, args, nil
}

// Exec runs the update and returns the number of affected rows
func (b *updateBuilder) Exec(ctx context.Context, ex execer) (int64, error) {
	query, args, err := b.Build()
	if err != nil {
		return 0, err
	}
	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

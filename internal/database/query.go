package database

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/edgard/stashbot/internal/logger"
)

// Record maps column names to values. It is used both as the input of write
// operations and as the shape of returned rows.
type Record map[string]any

// Condition maps column names to values that must match by equality. All
// entries are combined with AND. A nil value matches SQL NULL.
type Condition map[string]any

// Order sorts a select by one column.
type Order struct {
	Column string
	Desc   bool
}

// SelectOptions controls ordering and paging of Select.
type SelectOptions struct {
	OrderBy []Order
	Limit   int
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Querier is a small parameterized query builder over named tables. Table
// and column names must be plain identifiers; every value is bound as a
// positional parameter and never appears in the query text.
type Querier struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewQuerier creates a Querier over an open connection pool.
func NewQuerier(db *sqlx.DB, log *slog.Logger) *Querier {
	if log == nil {
		log = logger.Discard()
	}
	return &Querier{db: db, logger: log.With("component", "querier")}
}

// Insert appends one row and returns it as persisted, including defaults
// assigned by the store.
func (q *Querier) Insert(ctx context.Context, table string, data Record) (Record, error) {
	query, args, err := buildInsert(table, data)
	if err != nil {
		return nil, err
	}
	rows, err := q.queryRecords(ctx, "insert", table, query, args)
	if err != nil {
		return nil, err
	}
	return firstRecord(rows), nil
}

// Upsert inserts a row or, when it conflicts on conflictColumns, updates every
// other column present in data to its new value.
func (q *Querier) Upsert(ctx context.Context, table string, data Record, conflictColumns []string) (Record, error) {
	query, args, err := buildUpsert(table, data, conflictColumns)
	if err != nil {
		return nil, err
	}
	rows, err := q.queryRecords(ctx, "upsert", table, query, args)
	if err != nil {
		return nil, err
	}
	return firstRecord(rows), nil
}

// Update sets data on every row matching cond and returns the updated rows.
// No match is not an error: the returned slice is simply empty.
func (q *Querier) Update(ctx context.Context, table string, data Record, cond Condition) ([]Record, error) {
	query, args, err := buildUpdate(table, data, cond)
	if err != nil {
		return nil, err
	}
	return q.queryRecords(ctx, "update", table, query, args)
}

// Select returns the requested columns (all when columns is empty) of rows
// matching cond.
func (q *Querier) Select(ctx context.Context, table string, columns []string, cond Condition, opts *SelectOptions) ([]Record, error) {
	query, args, err := buildSelect(table, columns, cond, opts)
	if err != nil {
		return nil, err
	}
	return q.queryRecords(ctx, "select", table, query, args)
}

// SelectInto is Select scanning into a slice of structs tagged with `db`.
func (q *Querier) SelectInto(ctx context.Context, dest any, table string, columns []string, cond Condition, opts *SelectOptions) error {
	query, args, err := buildSelect(table, columns, cond, opts)
	if err != nil {
		return err
	}
	return q.withConn(ctx, "select", table, func(conn *sqlx.Conn) error {
		return conn.SelectContext(ctx, dest, q.db.Rebind(query), args...)
	})
}

// withConn acquires one pooled connection for the duration of fn and always
// returns it to the pool.
func (q *Querier) withConn(ctx context.Context, op, table string, fn func(conn *sqlx.Conn) error) error {
	conn, err := q.db.Connx(ctx)
	if err != nil {
		return classify(op, table, err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			q.logger.WarnContext(ctx, "Error releasing connection", "op", op, "table", table, "error", closeErr)
		}
	}()

	if err := fn(conn); err != nil {
		err = classify(op, table, err)
		q.logger.DebugContext(ctx, "Query failed", "op", op, "table", table, "error", err)
		return err
	}
	return nil
}

func (q *Querier) queryRecords(ctx context.Context, op, table, query string, args []any) ([]Record, error) {
	var records []Record
	err := q.withConn(ctx, op, table, func(conn *sqlx.Conn) error {
		rows, err := conn.QueryxContext(ctx, q.db.Rebind(query), args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			row := make(map[string]any)
			if err := rows.MapScan(row); err != nil {
				return err
			}
			records = append(records, normalizeRecord(row))
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

func firstRecord(records []Record) Record {
	if len(records) == 0 {
		return nil
	}
	return records[0]
}

// normalizeRecord turns driver byte slices for text columns into strings so
// callers see the same types regardless of the driver.
func normalizeRecord(row map[string]any) Record {
	rec := make(Record, len(row))
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			rec[k] = string(b)
			continue
		}
		rec[k] = v
	}
	return rec
}

func validateIdentifiers(names ...string) error {
	for _, name := range names {
		if !identifierPattern.MatchString(name) {
			return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
		}
	}
	return nil
}

func sortedKeys[M ~map[string]any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func buildInsert(table string, data Record) (string, []any, error) {
	if len(data) == 0 {
		return "", nil, ErrEmptyData
	}
	columns := sortedKeys(data)
	if err := validateIdentifiers(append([]string{table}, columns...)...); err != nil {
		return "", nil, err
	}

	args := make([]any, 0, len(columns))
	for _, col := range columns {
		args = append(args, data[col])
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		table, strings.Join(columns, ", "), placeholders(len(columns)))
	return query, args, nil
}

func buildUpsert(table string, data Record, conflictColumns []string) (string, []any, error) {
	if len(conflictColumns) == 0 {
		return "", nil, fmt.Errorf("%w: upsert needs conflict columns", ErrInvalidIdentifier)
	}
	if err := validateIdentifiers(conflictColumns...); err != nil {
		return "", nil, err
	}
	for _, col := range conflictColumns {
		if _, ok := data[col]; !ok {
			return "", nil, fmt.Errorf("%w: conflict column %q missing from data", ErrInvalidIdentifier, col)
		}
	}

	insert, args, err := buildInsert(table, data)
	if err != nil {
		return "", nil, err
	}
	insert = strings.TrimSuffix(insert, " RETURNING *")

	var updates []string
	for _, col := range sortedKeys(data) {
		if slices.Contains(conflictColumns, col) {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", col, col))
	}

	// DO NOTHING would return no row on conflict; a no-op update keeps
	// RETURNING populated.
	if len(updates) == 0 {
		col := conflictColumns[0]
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", col, col))
	}

	query := fmt.Sprintf("%s ON CONFLICT (%s) DO UPDATE SET %s RETURNING *",
		insert, strings.Join(conflictColumns, ", "), strings.Join(updates, ", "))
	return query, args, nil
}

func buildUpdate(table string, data Record, cond Condition) (string, []any, error) {
	if len(data) == 0 {
		return "", nil, ErrEmptyData
	}
	if len(cond) == 0 {
		return "", nil, ErrEmptyCondition
	}
	columns := sortedKeys(data)
	if err := validateIdentifiers(append([]string{table}, columns...)...); err != nil {
		return "", nil, err
	}

	sets := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns)+len(cond))
	for _, col := range columns {
		sets = append(sets, col+" = ?")
		args = append(args, data[col])
	}

	where, whereArgs, err := buildWhere(cond)
	if err != nil {
		return "", nil, err
	}
	args = append(args, whereArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s%s RETURNING *", table, strings.Join(sets, ", "), where)
	return query, args, nil
}

func buildSelect(table string, columns []string, cond Condition, opts *SelectOptions) (string, []any, error) {
	if err := validateIdentifiers(append([]string{table}, columns...)...); err != nil {
		return "", nil, err
	}

	selection := "*"
	if len(columns) > 0 {
		selection = strings.Join(columns, ", ")
	}

	where, args, err := buildWhere(cond)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s%s", selection, table, where)

	if opts != nil {
		if len(opts.OrderBy) > 0 {
			parts := make([]string, 0, len(opts.OrderBy))
			for _, o := range opts.OrderBy {
				if err := validateIdentifiers(o.Column); err != nil {
					return "", nil, err
				}
				dir := "ASC"
				if o.Desc {
					dir = "DESC"
				}
				parts = append(parts, o.Column+" "+dir)
			}
			b.WriteString(" ORDER BY " + strings.Join(parts, ", "))
		}
		if opts.Limit > 0 {
			b.WriteString(" LIMIT " + strconv.Itoa(opts.Limit))
		}
	}

	return b.String(), args, nil
}

func buildWhere(cond Condition) (string, []any, error) {
	if len(cond) == 0 {
		return "", nil, nil
	}
	columns := sortedKeys(cond)
	if err := validateIdentifiers(columns...); err != nil {
		return "", nil, err
	}

	clauses := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns))
	for _, col := range columns {
		if cond[col] == nil {
			clauses = append(clauses, col+" IS NULL")
			continue
		}
		clauses = append(clauses, col+" = ?")
		args = append(args, cond[col])
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

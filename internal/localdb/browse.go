package localdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultLimit is the page size used when a caller passes a non-positive limit.
const DefaultLimit = 100

// ErrNoSuchTable is returned for table names not present in the snapshot.
var ErrNoSuchTable = errors.New("no such table")

// Column describes one column of a table, as reported by PRAGMA table_info.
type Column struct {
	CID        int     `json:"cid"`
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	NotNull    bool    `json:"notnull"`
	Default    *string `json:"dflt_value"`
	PrimaryKey int     `json:"pk"`
}

// Page is one window of a table's rows.
type Page struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	Total   int64            `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// QueryResult is the result of an ad-hoc statement. Statements that return
// rows fill Columns and Rows; others report RowsAffected.
type QueryResult struct {
	Columns      []string         `json:"columns,omitempty"`
	Rows         []map[string]any `json:"rows,omitempty"`
	RowsAffected int64            `json:"rows_affected"`
	Message      string           `json:"message,omitempty"`
}

// Tables returns the names of all tables, sorted.
func (d *DB) Tables(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// Columns returns the column definitions of table.
func (d *DB) Columns(ctx context.Context, table string) ([]Column, error) {
	if err := d.checkTable(ctx, table); err != nil {
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx, "PRAGMA table_info("+quoteIdent(table)+")")
	if err != nil {
		return nil, fmt.Errorf("failed to describe %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		var dflt sql.NullString
		if err := rows.Scan(&c.CID, &c.Name, &c.Type, &c.NotNull, &dflt, &c.PrimaryKey); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		if dflt.Valid {
			c.Default = &dflt.String
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// TableData returns limit rows of table starting at offset, together with
// the table's total row count.
func (d *DB) TableData(ctx context.Context, table string, limit, offset int) (*Page, error) {
	if err := d.checkTable(ctx, table); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if offset < 0 {
		offset = 0
	}

	ident := quoteIdent(table)
	rows, err := d.db.QueryContext(ctx, "SELECT * FROM "+ident+" LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}
	cols, data, err := collect(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}

	page := &Page{Columns: cols, Rows: data, Limit: limit, Offset: offset}
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+ident).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return page, nil
}

// Query runs an ad-hoc statement against the snapshot. Whether it returns
// rows is decided by the columns the statement yields, so commented SELECTs
// and INSERT ... RETURNING come back as rows.
func (d *DB) Query(ctx context.Context, query string) (*QueryResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("empty query")
	}

	// changes() is per connection, so the statement and the count share one.
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	cols, data, err := collect(rows)
	if err != nil {
		return nil, err
	}
	if len(cols) > 0 {
		return &QueryResult{Columns: cols, Rows: data}, nil
	}

	var n int64
	if err := conn.QueryRowContext(ctx, "SELECT changes()").Scan(&n); err != nil {
		return nil, fmt.Errorf("failed to count changes: %w", err)
	}
	return &QueryResult{
		RowsAffected: n,
		Message:      fmt.Sprintf("Query executed successfully. Rows affected: %d", n),
	}, nil
}

func (d *DB) checkTable(ctx context.Context, table string) error {
	var n int
	err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?", table).Scan(&n)
	if err != nil {
		return fmt.Errorf("failed to look up table %s: %w", table, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNoSuchTable, table)
	}
	return nil
}

// collect drains rows into column-keyed maps and closes rows.
func collect(rows *sql.Rows) ([]string, []map[string]any, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	data := []map[string]any{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = normalize(vals[i])
		}
		data = append(data, row)
	}
	return cols, data, rows.Err()
}

// normalize turns text stored as bytes into strings; real blobs stay []byte.
func normalize(v any) any {
	if b, ok := v.([]byte); ok && utf8.Valid(b) {
		return string(b)
	}
	return v
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

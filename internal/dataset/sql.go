package dataset

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQL drivers accepted by LoadSQL.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// LoadSQL runs query against dsn and returns every column rendered as text.
func LoadSQL(ctx context.Context, driverName, dsn, query string, opt Options) (*Dataset, error) {
	if query == "" {
		return nil, eris.New("sql: query is required")
	}
	switch driverName {
	case DriverSQLite, "sqlite3":
		db, err := OpenSQLite(dsn)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		return QuerySQL(ctx, db, query, opt)
	case DriverPostgres, "postgresql", "pgx":
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: connect")
		}
		defer pool.Close()
		return QueryPostgres(ctx, pool, query, opt)
	default:
		return nil, eris.Errorf("sql: unsupported driver %q (use sqlite or postgres)", driverName)
	}
}

// OpenSQLite opens a SQLite database in WAL mode with a busy timeout.
func OpenSQLite(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return db, nil
}

// QuerySQL reads a database/sql result set.
func QuerySQL(ctx context.Context, db *sql.DB, query string, opt Options) (*Dataset, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query")
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: columns")
	}
	b := newBuilder("sqlite query", cols, opt.MaxRows)
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan")
		}
		b.add(cellsText(vals))
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate")
	}
	return b.ds, nil
}

// querier is the subset of pgxpool.Pool used to read rows.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// QueryPostgres reads a result set through a pgx pool.
func QueryPostgres(ctx context.Context, q querier, query string, opt Options) (*Dataset, error) {
	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query")
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	header := make([]string, len(fields))
	for i, f := range fields {
		header[i] = f.Name
	}
	b := newBuilder("postgres query", header, opt.MaxRows)
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, eris.Wrap(err, "postgres: values")
		}
		b.add(cellsText(vals))
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate")
	}
	zap.L().Debug("postgres rows read", zap.Int("rows", len(b.ds.Rows)))
	return b.ds, nil
}

func cellsText(vals []any) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = cellText(v)
	}
	return out
}

// cellText renders a driver value the way it would appear in a CSV export.
func cellText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339)
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return ""
		}
		if _, again := dv.(driver.Valuer); again {
			return fmt.Sprint(dv)
		}
		return cellText(dv)
	default:
		return fmt.Sprint(x)
	}
}

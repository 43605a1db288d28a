package probe

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"conncheck/internal/domain"
)

// Supported db drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// QuerySpec describes one database verification.
type QuerySpec struct {
	Name          string
	Driver        string // mysql (default) or postgres
	Host          string // default 127.0.0.1
	Port          int    // default by driver
	User          string
	Password      string
	Database      string
	Query         string
	ExpectRowsMin *int // nil means 1
}

// DBProbe runs a single query against a relational endpoint and verifies
// the returned row count.
type DBProbe struct {
	// Open is the connection factory. Nil means database/sql; tests
	// substitute it.
	Open func(driverName, dsn string) (*sql.DB, error)
}

func NewDBProbe() *DBProbe { return &DBProbe{} }

// Verify connects, runs the query, and fetches every row. Connection and
// query failures are captured in the result, and the connection is always
// released before returning.
func (p *DBProbe) Verify(ctx context.Context, spec QuerySpec) domain.DBResult {
	driver := spec.Driver
	if driver == "" {
		driver = DriverMySQL
	}
	name := spec.Name
	if name == "" {
		name = driver + "-check"
	}

	res := domain.DBResult{Name: name}
	start := time.Now()
	defer func() {
		res.LatencyMS = time.Since(start).Milliseconds()
	}()

	rowcount, sample, err := p.fetch(ctx, driver, spec)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.RowCount = rowcount
	res.Sample = sample

	minRows := 1
	if spec.ExpectRowsMin != nil {
		minRows = *spec.ExpectRowsMin
	}
	res.Passed = rowcount >= minRows
	return res
}

func (p *DBProbe) fetch(ctx context.Context, driver string, spec QuerySpec) (int, map[string]any, error) {
	driverName, dsn, err := buildDSN(driver, spec)
	if err != nil {
		return 0, nil, err
	}

	open := p.Open
	if open == nil {
		open = sql.Open
	}
	db, err := open(driverName, dsn)
	if err != nil {
		return 0, nil, fmt.Errorf("open %s: %w", driver, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, spec.Query)
	if err != nil {
		return 0, nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return 0, nil, fmt.Errorf("columns: %w", err)
	}

	var (
		count  int
		sample map[string]any
	)
	for rows.Next() {
		if sample == nil {
			row, err := scanRow(rows, cols)
			if err != nil {
				return 0, nil, fmt.Errorf("scan: %w", err)
			}
			sample = row
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, nil, fmt.Errorf("fetch: %w", err)
	}
	return count, sample, nil
}

func scanRow(rows *sql.Rows, cols []string) (map[string]any, error) {
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	row := make(map[string]any, len(cols))
	for i, col := range cols {
		switch v := values[i].(type) {
		case []byte:
			row[col] = string(v)
		default:
			row[col] = v
		}
	}
	return row, nil
}

func buildDSN(driver string, spec QuerySpec) (string, string, error) {
	host := spec.Host
	if host == "" {
		host = "127.0.0.1"
	}
	switch driver {
	case DriverMySQL:
		port := spec.Port
		if port == 0 {
			port = 3306
		}
		cfg := mysql.NewConfig()
		cfg.User = spec.User
		cfg.Passwd = spec.Password
		cfg.Net = "tcp"
		cfg.Addr = fmt.Sprintf("%s:%d", host, port)
		cfg.DBName = spec.Database
		return DriverMySQL, cfg.FormatDSN(), nil
	case DriverPostgres:
		port := spec.Port
		if port == 0 {
			port = 5432
		}
		u := &url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(spec.User, spec.Password),
			Host:   fmt.Sprintf("%s:%d", host, port),
			Path:   "/" + spec.Database,
		}
		// database/sql name for the pgx adapter
		return "pgx", u.String(), nil
	default:
		return "", "", fmt.Errorf("unsupported db driver %q", driver)
	}
}

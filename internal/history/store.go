package history

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"opsbot/internal/agent/ports"
	"opsbot/internal/history/migrations"
	"opsbot/internal/logging"
	jsonx "opsbot/internal/shared/json"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	// DefaultListLimit applies when List is called with a non-positive limit.
	DefaultListLimit = 50
	// MaxListLimit caps a single page.
	MaxListLimit = 500

	writeTimeout = 5 * time.Second
)

// Record is one persisted tool call outcome.
type Record struct {
	ID            int64     `json:"id"`
	CallID        string    `json:"call_id"`
	ToolName      string    `json:"tool_name"`
	Success       bool      `json:"success"`
	Cached        bool      `json:"cached"`
	ExecutionTime float64   `json:"execution_time"`
	ErrorCode     string    `json:"error_code,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	Payload       string    `json:"payload,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type dialect struct {
	driver     string
	migrations fs.FS
	dir        string
	numbered   bool
}

var (
	sqliteDialect   = dialect{driver: "sqlite", migrations: migrations.SQLite, dir: "sqlite"}
	postgresDialect = dialect{driver: "pgx", migrations: migrations.Postgres, dir: "postgres", numbered: true}
)

// rebind rewrites ? placeholders into $n for drivers that need them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Store persists tool call results. It implements ports.CallObserver.
type Store struct {
	db      *sql.DB
	dialect dialect
	logger  logging.Logger
	now     func() time.Time
}

// Open connects to dsn and applies the schema. postgres:// and
// postgresql:// DSNs use PostgreSQL; anything else is a SQLite file path
// or a file: URI.
func Open(ctx context.Context, dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("history dsn is empty")
	}

	d := sqliteDialect
	connStr := dsn
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		d = postgresDialect
	} else if !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
		connStr = "file:" + dsn + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open(d.driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.driver, err)
	}
	if d.driver == sqliteDialect.driver {
		// A single writer avoids SQLITE_BUSY under concurrent dispatch.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.driver, err)
	}
	s := &Store{db: db, dialect: d, logger: logging.NewComponentLogger("history"), now: time.Now}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	entries, err := fs.ReadDir(s.dialect.migrations, s.dialect.dir)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := fs.ReadFile(s.dialect.migrations, s.dialect.dir+"/"+name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		for _, stmt := range strings.Split(string(data), ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("exec migration %s: %w", name, err)
			}
		}
	}
	return nil
}

// Append persists one result.
func (s *Store) Append(ctx context.Context, result ports.ToolResult) error {
	var code, message, payload string
	if result.Error != nil {
		code = string(result.Error.Code)
		message = result.Error.Message
	}
	if result.Success && result.Result != nil {
		data, err := jsonx.Marshal(result.Result)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		payload = string(data)
	}
	createdAt := result.Timestamp
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO tool_calls (
			call_id, tool_name, success, cached, execution_ms,
			error_code, error_message, payload, created_at_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		result.ID, result.ToolName, result.Success, result.Cached, result.ExecutionTime,
		code, message, payload, createdAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert tool call: %w", err)
	}
	return nil
}

// ObserveCall records result, logging rather than returning failures so a
// storage problem never fails the call itself.
func (s *Store) ObserveCall(ctx context.Context, result ports.ToolResult) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := s.Append(ctx, result); err != nil {
		s.logger.Warn("Failed to record call %s (%s): %v", result.ID, result.ToolName, err)
	}
}

// List returns the most recent records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
		SELECT id, call_id, tool_name, success, cached, execution_ms,
			error_code, error_message, payload, created_at_ms
		FROM tool_calls
		ORDER BY created_at_ms DESC, id DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("query tool calls: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var (
			rec       Record
			createdAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.CallID, &rec.ToolName, &rec.Success, &rec.Cached,
			&rec.ExecutionTime, &rec.ErrorCode, &rec.ErrorMessage, &rec.Payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan tool call: %w", err)
		}
		rec.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const timeFormat = time.RFC3339Nano

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS generations (
	app        TEXT NOT NULL,
	name       TEXT NOT NULL,
	created_at TEXT NOT NULL,
	PRIMARY KEY (app, name)
);
CREATE TABLE IF NOT EXISTS entries (
	app        TEXT NOT NULL,
	generation TEXT NOT NULL,
	key        TEXT NOT NULL,
	status     INTEGER NOT NULL,
	header     TEXT NOT NULL,
	body       BLOB NOT NULL,
	stored_at  TEXT NOT NULL,
	PRIMARY KEY (app, generation, key)
);`

// SQLiteBackend 将所有 App 的缓存代保存在同一个 SQLite 文件中。
type SQLiteBackend struct {
	sqlDB *sql.DB
}

// OpenSQLite opens (or creates) the SQLite cache database at path.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path required")
	}

	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// 单连接串行化写入，避免 SQLITE_BUSY。
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}

	return &SQLiteBackend{sqlDB: sqlDB}, nil
}

// Storage returns the namespace for one application.
func (b *SQLiteBackend) Storage(app string) (Storage, error) {
	if err := checkName(app); err != nil {
		return nil, err
	}
	return &sqliteStorage{db: b.sqlDB, app: app}, nil
}

// Close closes the underlying SQLite database.
func (b *SQLiteBackend) Close() error {
	if b == nil || b.sqlDB == nil {
		return nil
	}
	return b.sqlDB.Close()
}

type sqliteStorage struct {
	db  *sql.DB
	app string
}

func (s *sqliteStorage) Open(ctx context.Context, generation string) (Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkName(generation); err != nil {
		return nil, err
	}
	return &sqliteStore{db: s.db, app: s.app, name: generation}, nil
}

func (s *sqliteStorage) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM generations WHERE app = ? ORDER BY name`, s.app)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *sqliteStorage) Delete(ctx context.Context, generation string) (bool, error) {
	if err := checkName(generation); err != nil {
		return false, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE app = ? AND generation = ?`, s.app, generation); err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM generations WHERE app = ? AND name = ?`, s.app, generation)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return affected > 0, nil
}

type sqliteStore struct {
	db   *sql.DB
	app  string
	name string
}

func (s *sqliteStore) Name() string {
	return s.name
}

func (s *sqliteStore) Match(ctx context.Context, key string) (*Entry, error) {
	var (
		status   int
		header   string
		body     []byte
		storedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT status, header, body, stored_at FROM entries WHERE app = ? AND generation = ? AND key = ?`,
		s.app, s.name, key,
	).Scan(&status, &header, &body, &storedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	entry := &Entry{Key: key, Status: status, Body: body}
	if err := json.Unmarshal([]byte(header), &entry.Header); err != nil {
		return nil, fmt.Errorf("decode entry header: %w", err)
	}
	if entry.Header == nil {
		entry.Header = http.Header{}
	}
	if parsed, err := time.Parse(timeFormat, storedAt); err == nil {
		entry.StoredAt = parsed
	}
	return entry, nil
}

func (s *sqliteStore) Put(ctx context.Context, key string, entry Entry) error {
	header, err := json.Marshal(entry.Header)
	if err != nil {
		return err
	}
	storedAt := entry.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now().UTC()
	}
	body := entry.Body
	if body == nil {
		body = []byte{}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO generations (app, name, created_at) VALUES (?, ?, ?)`,
		s.app, s.name, time.Now().UTC().Format(timeFormat),
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO entries (app, generation, key, status, header, body, stored_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.app, s.name, key, entry.Status, string(header), body, storedAt.UTC().Format(timeFormat),
	); err != nil {
		return err
	}
	return tx.Commit()
}

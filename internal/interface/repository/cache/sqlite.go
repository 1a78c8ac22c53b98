package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"offlineproxy/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS caches (
	seq  INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS entries (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	cache_name TEXT NOT NULL,
	method     TEXT NOT NULL,
	url        TEXT NOT NULL,
	status     INTEGER NOT NULL,
	header     TEXT NOT NULL,
	type       TEXT NOT NULL,
	resp_url   TEXT NOT NULL,
	stored_at  INTEGER NOT NULL,
	compressed INTEGER NOT NULL,
	body       BLOB,
	UNIQUE (cache_name, method, url)
);
CREATE INDEX IF NOT EXISTS entries_cache_seq ON entries (cache_name, seq);
`

// SQLiteStorage はSQLiteに永続化するキャッシュストレージ実装
type SQLiteStorage struct {
	sqlDB *sql.DB
	codec *codec
}

// Verify interface implementation
var (
	_ domain.CacheStorage = (*SQLiteStorage)(nil)
	_ domain.Cache        = (*sqliteCache)(nil)
)

// OpenSQLite はSQLiteストレージを開き, スキーマを適用する
func OpenSQLite(path string) (*SQLiteStorage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// 書き込みを直列化する
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	c, err := newCodec()
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return &SQLiteStorage{sqlDB: sqlDB, codec: c}, nil
}

// Close はSQLiteのハンドルを閉じる
func (s *SQLiteStorage) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	s.codec.close()
	return s.sqlDB.Close()
}

// Open は名前のキャッシュを開く
func (s *SQLiteStorage) Open(ctx context.Context, name string) (domain.Cache, error) {
	if _, err := s.sqlDB.ExecContext(ctx, `INSERT OR IGNORE INTO caches (name) VALUES (?)`, name); err != nil {
		return nil, fmt.Errorf("open cache %s: %w", name, err)
	}
	return &sqliteCache{name: name, storage: s}, nil
}

// Has はキャッシュの存在を確認
func (s *SQLiteStorage) Has(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM caches WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup cache %s: %w", name, err)
	}
	return n > 0, nil
}

// Keys はキャッシュ名を作成順で返す
func (s *SQLiteStorage) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT name FROM caches ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list caches: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan cache name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Delete はキャッシュとそのエントリを削除
func (s *SQLiteStorage) Delete(ctx context.Context, name string) (bool, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE cache_name = ?`, name); err != nil {
		return false, fmt.Errorf("delete entries of %s: %w", name, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM caches WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete cache %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Match は全キャッシュを作成順に検索
func (s *SQLiteStorage) Match(ctx context.Context, key domain.RequestKey) (*domain.StoredResponse, bool, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT e.status, e.header, e.type, e.resp_url, e.stored_at, e.compressed, e.body
		   FROM entries e JOIN caches c ON c.name = e.cache_name
		  WHERE e.method = ? AND e.url = ?
		  ORDER BY c.seq
		  LIMIT 1`,
		key.Method, key.URL)
	return s.scanEntry(row)
}

func (s *SQLiteStorage) scanEntry(row *sql.Row) (*domain.StoredResponse, bool, error) {
	var (
		resp       domain.StoredResponse
		header     string
		respType   string
		storedAt   int64
		compressed bool
		body       []byte
	)

	err := row.Scan(&resp.Status, &header, &respType, &resp.URL, &storedAt, &compressed, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("scan entry: %w", err)
	}

	if err := json.Unmarshal([]byte(header), &resp.Header); err != nil {
		return nil, false, fmt.Errorf("decode header: %w", err)
	}
	resp.Body, err = s.codec.decompress(body, compressed)
	if err != nil {
		return nil, false, err
	}
	resp.Type = domain.ResponseType(respType)
	resp.StoredAt = time.UnixMilli(storedAt).UTC()
	return &resp, true, nil
}

type sqliteCache struct {
	name    string
	storage *SQLiteStorage
}

func (c *sqliteCache) Name() string {
	return c.name
}

func (c *sqliteCache) Match(ctx context.Context, key domain.RequestKey) (*domain.StoredResponse, bool, error) {
	row := c.storage.sqlDB.QueryRowContext(ctx,
		`SELECT status, header, type, resp_url, stored_at, compressed, body
		   FROM entries WHERE cache_name = ? AND method = ? AND url = ?`,
		c.name, key.Method, key.URL)
	return c.storage.scanEntry(row)
}

// Put はエントリを保存する. 既存キーの場合はseqを維持したまま内容だけ更新する
func (c *sqliteCache) Put(ctx context.Context, key domain.RequestKey, resp *domain.StoredResponse) error {
	header, err := json.Marshal(resp.Header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	body, compressed := c.storage.codec.compress(resp.Body)

	_, err = c.storage.sqlDB.ExecContext(ctx,
		`INSERT INTO entries (cache_name, method, url, status, header, type, resp_url, stored_at, compressed, body)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (cache_name, method, url) DO UPDATE SET
		   status = excluded.status,
		   header = excluded.header,
		   type = excluded.type,
		   resp_url = excluded.resp_url,
		   stored_at = excluded.stored_at,
		   compressed = excluded.compressed,
		   body = excluded.body`,
		c.name, key.Method, key.URL, resp.Status, string(header), string(resp.Type),
		resp.URL, resp.StoredAt.UTC().UnixMilli(), boolToInt(compressed), body)
	if err != nil {
		return fmt.Errorf("put %s into %s: %w", key, c.name, err)
	}
	return nil
}

func (c *sqliteCache) Delete(ctx context.Context, key domain.RequestKey) (bool, error) {
	res, err := c.storage.sqlDB.ExecContext(ctx,
		`DELETE FROM entries WHERE cache_name = ? AND method = ? AND url = ?`,
		c.name, key.Method, key.URL)
	if err != nil {
		return false, fmt.Errorf("delete %s from %s: %w", key, c.name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *sqliteCache) Keys(ctx context.Context) ([]domain.RequestKey, error) {
	rows, err := c.storage.sqlDB.QueryContext(ctx,
		`SELECT method, url FROM entries WHERE cache_name = ? ORDER BY seq`, c.name)
	if err != nil {
		return nil, fmt.Errorf("list keys of %s: %w", c.name, err)
	}
	defer rows.Close()

	var keys []domain.RequestKey
	for rows.Next() {
		var key domain.RequestKey
		if err := rows.Scan(&key.Method, &key.URL); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

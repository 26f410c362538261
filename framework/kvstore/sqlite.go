package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/akriventsev/bookshelf/framework/core"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// SQLiteConfig конфигурация встроенного SQLite хранилища
type SQLiteConfig struct {
	Path        string
	BusyTimeout int // миллисекунды
}

// DefaultSQLiteConfig возвращает конфигурацию SQLite по умолчанию
func DefaultSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{
		Path:        "./db/books.db",
		BusyTimeout: 5000,
	}
}

// Validate проверяет корректность конфигурации
func (c SQLiteConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	return nil
}

func (c SQLiteConfig) dsn() string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", c.Path, c.BusyTimeout)
}

// SQLiteStore хранилище в локальном файле SQLite
type SQLiteStore struct {
	db        *sql.DB
	namespace string
}

// NewSQLiteStore открывает (создает) файл базы и применяет миграции
func NewSQLiteStore(ctx context.Context, config SQLiteConfig, namespace string) (*SQLiteStore, error) {
	if err := config.Validate(); err != nil {
		return nil, core.Wrap(err, core.ErrInvalidConfig, "invalid sqlite config")
	}

	if dir := filepath.Dir(config.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, core.Wrap(err, core.ErrTransport, "failed to create sqlite directory")
		}
	}

	db, err := sql.Open("sqlite", config.dsn())
	if err != nil {
		return nil, core.Wrap(err, core.ErrTransport, "failed to open sqlite database")
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, core.Wrap(err, core.ErrTransport, "failed to open sqlite database")
	}
	if err := Migrate(ctx, db, goose.DialectSQLite3); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, namespace: namespace}, nil
}

// Get возвращает значение ключа
func (s *SQLiteStore) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}

	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv_entries WHERE namespace = ? AND key = ?`,
		s.namespace, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, core.Wrap(err, core.ErrTransport, "failed to get value from sqlite")
	}
	return value, true, nil
}

// Put перезаписывает значение ключа
func (s *SQLiteStore) Put(ctx context.Context, key, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_entries (namespace, key, value, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (namespace, key)
		DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, s.namespace, key, value)
	if err != nil {
		return core.Wrap(err, core.ErrTransport, "failed to put value into sqlite")
	}
	return nil
}

// Delete удаляет ключ
func (s *SQLiteStore) Delete(ctx context.Context, key []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE namespace = ? AND key = ?`, s.namespace, key)
	if err != nil {
		return core.Wrap(err, core.ErrTransport, "failed to delete value from sqlite")
	}
	return nil
}

// Close закрывает базу
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
)

type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// TxRunner выполняет fn в одной транзакции, сериализуя записи по ключам блокировки.
type TxRunner interface {
	WithinTx(ctx context.Context, lockKey string, fn func(exec SQLExecutor) error) error
	WithinTxLocks(ctx context.Context, lockKeys []string, fn func(exec SQLExecutor) error) error
}

type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "postgres":
		return DialectPostgres, nil
	case "sqlite":
		return DialectSQLite, nil
	}
	return 0, fmt.Errorf("unsupported driver %q", driver)
}

// Store is the shared handle every repository is built on.
// Queries are written with '?' placeholders and rebound per dialect.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewStore(db *sql.DB, dialect Dialect, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:      db,
		dialect: dialect,
		logger:  logger,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

// executor returns exec (or the pool when exec is nil) wrapped with placeholder rebinding.
func (s *Store) executor(exec SQLExecutor) SQLExecutor {
	if exec == nil {
		exec = s.db
	}
	if s.dialect != DialectPostgres {
		return exec
	}
	if _, ok := exec.(rebindExecutor); ok {
		return exec
	}
	return rebindExecutor{exec: exec}
}

func (s *Store) keyMutex(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	return m
}

// WithinTx runs fn inside one transaction. A non-empty lockKey serializes
// writers in this process and, on PostgreSQL, across processes through a
// transaction-scoped advisory lock. fn must not start another transaction.
func (s *Store) WithinTx(ctx context.Context, lockKey string, fn func(exec SQLExecutor) error) error {
	if lockKey == "" {
		return s.WithinTxLocks(ctx, nil, fn)
	}
	return s.WithinTxLocks(ctx, []string{lockKey}, fn)
}

// WithinTxLocks is WithinTx holding several keys at once. Keys are taken in
// sorted order, so callers with overlapping key sets cannot deadlock.
func (s *Store) WithinTxLocks(ctx context.Context, lockKeys []string, fn func(exec SQLExecutor) error) (err error) {
	keys := normalizeLockKeys(lockKeys)
	for _, key := range keys {
		m := s.keyMutex(key)
		m.Lock()
		defer m.Unlock()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.ErrorContext(ctx, "transaction rollback failed",
					slog.Any("lock_keys", keys), slog.Any("error", rbErr), slog.Any("cause", err))
			}
			return
		}
		if cErr := tx.Commit(); cErr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", cErr)
		}
	}()

	if s.dialect == DialectPostgres {
		for _, key := range keys {
			if _, err = tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key); err != nil {
				return fmt.Errorf("failed to acquire advisory lock %q: %w", key, err)
			}
		}
	}

	return fn(tx)
}

// normalizeLockKeys drops empty and repeated keys and sorts the rest.
func normalizeLockKeys(lockKeys []string) []string {
	keys := make([]string, 0, len(lockKeys))
	for _, key := range lockKeys {
		if key != "" && !slices.Contains(keys, key) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys
}

type rebindExecutor struct {
	exec SQLExecutor
}

func (r rebindExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return r.exec.ExecContext(ctx, rebind(query), args...)
}

func (r rebindExecutor) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return r.exec.QueryContext(ctx, rebind(query), args...)
}

func (r rebindExecutor) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return r.exec.QueryRowContext(ctx, rebind(query), args...)
}

// rebind converts '?' placeholders into PostgreSQL's $1, $2, ... form.
func rebind(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

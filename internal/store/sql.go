package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"governance-sync/internal/record"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

const (
	DialectSQLite = "sqlite"
	DialectMySQL  = "mysql"
)

var schemas = map[string][]string{
	DialectSQLite: {
		`CREATE TABLE IF NOT EXISTS sync_state (
			id INTEGER PRIMARY KEY,
			block INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sync_logs (
			seq INTEGER PRIMARY KEY,
			topics TEXT NOT NULL,
			data TEXT NOT NULL,
			transaction_index INTEGER NOT NULL,
			log_index INTEGER NOT NULL,
			block_number INTEGER NOT NULL
		)`,
	},
	DialectMySQL: {
		`CREATE TABLE IF NOT EXISTS sync_state (
			id TINYINT PRIMARY KEY,
			block BIGINT UNSIGNED NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sync_logs (
			seq BIGINT PRIMARY KEY,
			topics TEXT NOT NULL,
			data LONGTEXT NOT NULL,
			transaction_index INT UNSIGNED NOT NULL,
			log_index INT UNSIGNED NOT NULL,
			block_number BIGINT UNSIGNED NOT NULL
		)`,
	},
}

var upsertBlock = map[string]string{
	DialectSQLite: `INSERT INTO sync_state (id, block) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET block = excluded.block`,
	DialectMySQL: `INSERT INTO sync_state (id, block) VALUES (1, ?)
		ON DUPLICATE KEY UPDATE block = VALUES(block)`,
}

// SQLStore keeps the state in two tables: a single checkpoint row and the
// log entries keyed by their position in the append-only sequence.
type SQLStore struct {
	db      *sql.DB
	dialect string
	genesis uint64
}

func NewSQLStore(dialect, dsn string, genesis uint64) (*SQLStore, error) {
	schema, ok := schemas[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported sql dialect: %s", dialect)
	}
	if dsn == "" {
		return nil, errors.New("dsn is required")
	}

	db, err := sql.Open(dialect, dsn)
	if err != nil {
		return nil, failure("open", err)
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, failure("create schema", err)
		}
	}
	return &SQLStore{db: db, dialect: dialect, genesis: genesis}, nil
}

func (s *SQLStore) Load(ctx context.Context) (record.State, error) {
	var block uint64
	err := s.db.QueryRowContext(ctx, `SELECT block FROM sync_state WHERE id = 1`).Scan(&block)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return record.Genesis(s.genesis), nil
		}
		return record.State{}, failure("load checkpoint", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT topics, data, transaction_index, log_index, block_number
		FROM sync_logs ORDER BY seq ASC`)
	if err != nil {
		return record.State{}, failure("load logs", err)
	}
	defer rows.Close()

	st := record.State{Block: block, Logs: []record.LogEntry{}}
	for rows.Next() {
		var (
			lg        record.LogEntry
			topicsRaw string
		)
		if err := rows.Scan(&topicsRaw, &lg.Data, &lg.TransactionIndex, &lg.LogIndex, &lg.BlockNumber); err != nil {
			return record.State{}, failure("scan log", err)
		}
		if err := json.Unmarshal([]byte(topicsRaw), &lg.Topics); err != nil {
			return record.State{}, failure("decode topics", err)
		}
		st.Logs = append(st.Logs, lg)
	}
	if err := rows.Err(); err != nil {
		return record.State{}, failure("load logs", err)
	}
	return st, nil
}

// Save appends the entries beyond those already stored and moves the
// checkpoint, in one transaction. A state holding fewer entries than the
// table is rejected since the log is append-only.
func (s *SQLStore) Save(ctx context.Context, st record.State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return failure("begin", err)
	}

	var stored int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_logs`).Scan(&stored); err != nil {
		_ = tx.Rollback()
		return failure("count logs", err)
	}
	if stored > len(st.Logs) {
		_ = tx.Rollback()
		return failure("save", fmt.Errorf("state has %d logs but %d are stored", len(st.Logs), stored))
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO sync_logs (seq, topics, data, transaction_index, log_index, block_number)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return failure("prepare", err)
	}
	defer stmt.Close()

	for i := stored; i < len(st.Logs); i++ {
		lg := st.Logs[i]
		topics, err := json.Marshal(lg.Topics)
		if err != nil {
			_ = tx.Rollback()
			return failure("encode topics", err)
		}
		if _, err := stmt.ExecContext(ctx, int64(i), string(topics), lg.Data,
			int64(lg.TransactionIndex), int64(lg.LogIndex), int64(lg.BlockNumber)); err != nil {
			_ = tx.Rollback()
			return failure("insert log", err)
		}
	}

	if _, err := tx.ExecContext(ctx, upsertBlock[s.dialect], int64(st.Block)); err != nil {
		_ = tx.Rollback()
		return failure("save checkpoint", err)
	}

	if err := tx.Commit(); err != nil {
		return failure("commit", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

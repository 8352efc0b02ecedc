package queue

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
)

// DbUrlList is a durable UrlList over a relational table keyed by urlHash
// (SHA-1 hex of the URL), supporting multi-worker (and multi-process)
// dequeue via an optimistic conditional update. Its SQL is SQLite-dialect
// ("?" placeholders, AUTOINCREMENT, "INSERT ... ON CONFLICT DO ..."
// upserts) and is exercised with modernc.org/sqlite; it does not run
// unmodified against a Postgres driver, which expects "$1"-style
// placeholders.
type DbUrlList struct {
	db        *sql.DB
	tableName string

	once       sync.Once
	schemaErr  error
}

// DefaultTableName is the table name used when none is given.
const DefaultTableName = "url"

// NewDbUrlList builds a DbUrlList over an already-open *sql.DB. tableName
// defaults to DefaultTableName when empty. Schema creation is deferred
// until the first operation and cached so subsequent calls skip it.
func NewDbUrlList(db *sql.DB, tableName string) *DbUrlList {
	if tableName == "" {
		tableName = DefaultTableName
	}
	return &DbUrlList{db: db, tableName: tableName}
}

func (d *DbUrlList) ensureSchema(ctx context.Context) error {
	d.once.Do(func() {
		stmts := []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				url_hash TEXT NOT NULL UNIQUE,
				url TEXT NOT NULL,
				status_code INTEGER,
				error_code TEXT,
				error_message TEXT,
				num_errors INTEGER NOT NULL DEFAULT 0,
				crawled INTEGER NOT NULL DEFAULT 0
			)`, d.tableName),
			fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s_url_hash_idx ON %s (url_hash)`, d.tableName, d.tableName),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_crawled_idx ON %s (crawled)`, d.tableName, d.tableName),
		}
		for _, stmt := range stmts {
			if _, err := d.db.ExecContext(ctx, stmt); err != nil {
				d.schemaErr = fmt.Errorf("queue: create schema: %w", err)
				return
			}
		}
	})
	return d.schemaErr
}

// urlHash returns the SHA-1 hex digest used as the table's dedup key.
func urlHash(u string) string {
	sum := sha1.Sum([]byte(u))
	return hex.EncodeToString(sum[:])
}

// InsertIfNotExists adds record if its urlHash is not already present.
func (d *DbUrlList) InsertIfNotExists(ctx context.Context, record UrlRecord) error {
	if err := d.ensureSchema(ctx); err != nil {
		return err
	}
	query := fmt.Sprintf(
		`INSERT INTO %s (url_hash, url, crawled, num_errors) VALUES (?, ?, 0, 0)
		 ON CONFLICT (url_hash) DO NOTHING`, d.tableName)
	_, err := d.db.ExecContext(ctx, query, urlHash(record.URL), record.URL)
	return err
}

// InsertIfNotExistsBulk inserts many records, each independently
// idempotent, inside a single transaction (one round-trip to the store).
func (d *DbUrlList) InsertIfNotExistsBulk(ctx context.Context, records []UrlRecord) error {
	if err := d.ensureSchema(ctx); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	query := fmt.Sprintf(
		`INSERT INTO %s (url_hash, url, crawled, num_errors) VALUES (?, ?, 0, 0)
		 ON CONFLICT (url_hash) DO NOTHING`, d.tableName)
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, urlHash(r.URL), r.URL); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetNextUrl selects the smallest-id uncrawled row, then conditionally
// updates it to crawled=true; retries from the select if another worker
// won the race.
func (d *DbUrlList) GetNextUrl(ctx context.Context) (UrlRecord, error) {
	if err := d.ensureSchema(ctx); err != nil {
		return UrlRecord{}, err
	}
	selectQuery := fmt.Sprintf(
		`SELECT id, url, status_code, error_code, error_message, num_errors
		 FROM %s WHERE crawled = 0 ORDER BY id ASC LIMIT 1`, d.tableName)
	updateQuery := fmt.Sprintf(
		`UPDATE %s SET crawled = 1 WHERE id = ? AND crawled = 0`, d.tableName)

	for {
		var (
			id           int64
			url          string
			statusCode   sql.NullInt64
			errorCode    sql.NullString
			errorMessage sql.NullString
			numErrors    int
		)
		row := d.db.QueryRowContext(ctx, selectQuery)
		err := row.Scan(&id, &url, &statusCode, &errorCode, &errorMessage, &numErrors)
		if errors.Is(err, sql.ErrNoRows) {
			return UrlRecord{}, ErrQueueEmpty
		}
		if err != nil {
			return UrlRecord{}, err
		}

		res, err := d.db.ExecContext(ctx, updateQuery, id)
		if err != nil {
			return UrlRecord{}, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return UrlRecord{}, err
		}
		if affected == 0 {
			// Another worker won the race for this row; retry.
			continue
		}

		record := UrlRecord{URL: url, NumErrors: numErrors}
		if statusCode.Valid {
			v := int(statusCode.Int64)
			record.StatusCode = &v
		}
		if errorCode.Valid {
			v := ErrorCode(errorCode.String)
			record.ErrorCode = &v
		}
		if errorMessage.Valid {
			record.ErrorMessage = errorMessage.String
		}
		return record, nil
	}
}

// Upsert stores the outcome for record's URL: a successful outcome is
// written directly; a failure first reads the existing row's NumErrors
// and writes that value plus one, ignoring the caller's NumErrors. The
// read and the write are separate statements, not one transaction.
func (d *DbUrlList) Upsert(ctx context.Context, record UrlRecord) error {
	if err := d.ensureSchema(ctx); err != nil {
		return err
	}
	hash := urlHash(record.URL)

	if record.ErrorCode == nil {
		query := fmt.Sprintf(
			`INSERT INTO %s (url_hash, url, status_code, error_code, error_message, num_errors, crawled)
			 VALUES (?, ?, ?, NULL, NULL, 0, 1)
			 ON CONFLICT (url_hash) DO UPDATE SET
			   status_code = excluded.status_code,
			   error_code = NULL,
			   error_message = NULL,
			   num_errors = 0,
			   crawled = 1`, d.tableName)
		_, err := d.db.ExecContext(ctx, query, hash, record.URL, record.StatusCode)
		return err
	}

	var priorErrors int
	row := d.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT num_errors FROM %s WHERE url_hash = ?`, d.tableName), hash)
	switch err := row.Scan(&priorErrors); {
	case errors.Is(err, sql.ErrNoRows):
		priorErrors = 0
	case err != nil:
		return err
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (url_hash, url, status_code, error_code, error_message, num_errors, crawled)
		 VALUES (?, ?, ?, ?, ?, ?, 1)
		 ON CONFLICT (url_hash) DO UPDATE SET
		   status_code = excluded.status_code,
		   error_code = excluded.error_code,
		   error_message = excluded.error_message,
		   num_errors = excluded.num_errors,
		   crawled = 1`, d.tableName)
	_, err := d.db.ExecContext(ctx, query, hash, record.URL, record.StatusCode, string(*record.ErrorCode), record.ErrorMessage, priorErrors+1)
	return err
}

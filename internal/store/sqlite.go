package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/vLannaAi/i3speedex-sub004/internal/identity"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS identities (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	genre        TEXT NOT NULL DEFAULT '',
	email        TEXT NOT NULL DEFAULT '',
	email2       TEXT NOT NULL DEFAULT '',
	domain       TEXT NOT NULL DEFAULT '',
	domain2      TEXT NOT NULL DEFAULT '',
	buyer_ref    TEXT,
	producer_ref TEXT,
	status       TEXT NOT NULL DEFAULT 'active',
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS message_records (
	id                     TEXT PRIMARY KEY,
	raw_from               TEXT NOT NULL,
	email                  TEXT NOT NULL DEFAULT '',
	domain                 TEXT NOT NULL DEFAULT '',
	local_part             TEXT NOT NULL DEFAULT '',
	identity_ref           TEXT REFERENCES identities(id),
	name1                  TEXT NOT NULL DEFAULT '',
	name2                  TEXT NOT NULL DEFAULT '',
	name1pre               TEXT NOT NULL DEFAULT '',
	name2pre               TEXT NOT NULL DEFAULT '',
	name3                  TEXT NOT NULL DEFAULT '',
	genre                  TEXT NOT NULL DEFAULT '',
	is_personal            INTEGER NOT NULL DEFAULT 1,
	confidence             REAL NOT NULL DEFAULT 0,
	extraction_status      TEXT NOT NULL DEFAULT 'unprocessed',
	reasoning              TEXT NOT NULL DEFAULT '',
	chain_of_thought       TEXT NOT NULL DEFAULT '',
	display_classification TEXT NOT NULL DEFAULT '',
	version                INTEGER NOT NULL DEFAULT 1,
	created_at             DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at             DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_records_status ON message_records(extraction_status);
CREATE INDEX IF NOT EXISTS idx_records_identity_ref ON message_records(identity_ref);
CREATE INDEX IF NOT EXISTS idx_records_email ON message_records(email);

CREATE TABLE IF NOT EXISTS identity_queue (
	id          TEXT PRIMARY KEY,
	record_id   TEXT NOT NULL REFERENCES message_records(id),
	kind        TEXT NOT NULL,
	proposed    TEXT NOT NULL,
	current     TEXT,
	confidence  REAL NOT NULL DEFAULT 0,
	reasoning   TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'pending',
	reviewer    TEXT NOT NULL DEFAULT '',
	reviewed_at DATETIME,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_queue_status ON identity_queue(status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_queue_pending_record
	ON identity_queue(record_id) WHERE status = 'pending';
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqlRow matches both *sql.Row and *sql.Rows.
type sqlRow interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row sqlRow) (*identity.MessageRecord, error) {
	var r identity.MessageRecord
	err := row.Scan(
		&r.ID, &r.RawFrom, &r.Email, &r.Domain, &r.LocalPart, &r.IdentityRef,
		&r.Extraction.Name1, &r.Extraction.Name2, &r.Extraction.Name1Pre,
		&r.Extraction.Name2Pre, &r.Extraction.Name3, &r.Extraction.Genre,
		&r.Extraction.IsPersonal, &r.Extraction.Confidence,
		&r.Extraction.Status, &r.Extraction.Reasoning,
		&r.Extraction.ChainOfThought, &r.DisplayClassification,
		&r.Version, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Extraction.Email = r.Email
	r.Extraction.Domain = r.Domain
	return &r, nil
}

func (s *SQLiteStore) SelectUnprocessed(ctx context.Context, limit int) ([]identity.MessageRecord, error) {
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM message_records
		 WHERE identity_ref IS NULL AND extraction_status IN ('unprocessed', '')
		 ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select unprocessed")
	}
	defer rows.Close()

	var records []identity.MessageRecord
	for rows.Next() {
		r, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		records = append(records, *r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: select unprocessed iterate")
}

func (s *SQLiteStore) GetMessageRecord(ctx context.Context, recordID string) (*identity.MessageRecord, error) {
	r, err := scanSQLiteRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM message_records WHERE id = ?`,
		recordID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get record %s", recordID)
	}
	return r, nil
}

func (s *SQLiteStore) SaveExtractionResult(ctx context.Context, rec *identity.MessageRecord) error {
	e := rec.Extraction
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO message_records
		 (id, raw_from, email, domain, local_part,
		  name1, name2, name1pre, name2pre, name3, genre, is_personal,
		  confidence, extraction_status, reasoning, chain_of_thought,
		  display_classification, version, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   email = excluded.email, domain = excluded.domain,
		   local_part = excluded.local_part,
		   name1 = excluded.name1, name2 = excluded.name2,
		   name1pre = excluded.name1pre, name2pre = excluded.name2pre,
		   name3 = excluded.name3, genre = excluded.genre,
		   is_personal = excluded.is_personal,
		   confidence = excluded.confidence,
		   extraction_status = excluded.extraction_status,
		   reasoning = excluded.reasoning,
		   chain_of_thought = excluded.chain_of_thought,
		   display_classification = excluded.display_classification,
		   updated_at = excluded.updated_at`,
		rec.ID, rec.RawFrom, rec.Email, rec.Domain, rec.LocalPart,
		e.Name1, e.Name2, e.Name1Pre, e.Name2Pre, e.Name3, string(e.Genre),
		e.IsPersonal, e.Confidence, string(e.Status), e.Reasoning,
		e.ChainOfThought, rec.DisplayClassification, rec.Version,
		time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save extraction result %s", rec.ID)
}

func (s *SQLiteStore) ListProcessed(ctx context.Context, filter ProcessedFilter) ([]identity.MessageRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM message_records`
	args := []any{}

	if filter.Status != "" {
		query += ` WHERE extraction_status = ?`
		args = append(args, string(filter.Status))
	} else {
		query += ` WHERE extraction_status IN
			('extracted_high', 'extracted_medium', 'extracted_low', 'not_applicable')`
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list processed")
	}
	defer rows.Close()

	var records []identity.MessageRecord
	for rows.Next() {
		r, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		records = append(records, *r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list processed iterate")
}

func (s *SQLiteStore) UpdateDerivedFields(ctx context.Context, rec *identity.MessageRecord) error {
	e := rec.Extraction
	res, err := s.db.ExecContext(ctx,
		`UPDATE message_records SET
		   name1pre = ?, name2pre = ?, name3 = ?, genre = ?,
		   extraction_status = ?, display_classification = ?,
		   version = version + 1, updated_at = ?
		 WHERE id = ?`,
		e.Name1Pre, e.Name2Pre, e.Name3, string(e.Genre), string(e.Status),
		rec.DisplayClassification, time.Now().UTC(), rec.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update derived fields %s", rec.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("record not found: %s", rec.ID)
	}
	return nil
}

func (s *SQLiteStore) GenresForName(ctx context.Context, name string) ([]identity.Genre, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT genre FROM message_records
		 WHERE lower(name1) = lower(?) AND genre <> ''`,
		name,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: genres for name")
	}
	defer rows.Close()

	var genres []identity.Genre
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan genre")
		}
		genres = append(genres, identity.Genre(g))
	}
	return genres, eris.Wrap(rows.Err(), "sqlite: genres for name iterate")
}

func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[identity.Status]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT extraction_status, COUNT(*) FROM message_records GROUP BY extraction_status`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count by status")
	}
	defer rows.Close()

	counts := make(map[identity.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan status count")
		}
		counts[identity.Status(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count by status iterate")
}

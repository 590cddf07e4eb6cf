// Package docstore keeps CMS documents as JSON rows in a SQL database.
// PostgreSQL (lib/pq) and SQLite (go-sqlite3) are supported.
package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Techyishu/writerly/cms"
	"github.com/google/uuid"
	pg "github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

const (
	createDocumentsTable = `CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	slug TEXT,
	body TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`
	createDocumentsTypeIndex = "CREATE INDEX IF NOT EXISTS documents_type_idx ON documents (type)"
	// drafts share the slug of their published twin and keep the column NULL
	createDocumentsSlugIndex = "CREATE UNIQUE INDEX IF NOT EXISTS documents_slug_idx ON documents (type, slug)"
)

// Store - cms.Client on top of a SQL database
type Store struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// Open - opens and pings the database
// SQLite allows a single writer, so the pool is limited to one connection
func Open(driver, dsn string) (*sql.DB, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// New - creates store. Call Migrate before first use
func New(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver, now: time.Now}
}

// Migrate - creates documents table
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createDocumentsTable); err != nil {
		return fmt.Errorf("create documents table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, createDocumentsTypeIndex); err != nil {
		return fmt.Errorf("create documents index: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, createDocumentsSlugIndex); err != nil {
		return fmt.Errorf("create slug index: %w", err)
	}
	return nil
}

// Fetch - loads documents of the query type and filters them in memory
func (s *Store) Fetch(ctx context.Context, q *cms.Query) ([]cms.Document, error) {
	var rows *sql.Rows
	var err error
	if q.Type != "" {
		rows, err = s.db.QueryContext(ctx, "SELECT body FROM documents WHERE type = $1", q.Type)
	} else {
		rows, err = s.db.QueryContext(ctx, "SELECT body FROM documents")
	}
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []cms.Document
	for rows.Next() {
		var body string
		if err = rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc, err := decode(body)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	// rows must be closed before asset lookups: SQLite runs with a single connection
	rows.Close()

	selected := q.Select(docs)
	for _, doc := range selected {
		q.ResolveAssetRefs(doc, func(id string) (cms.Document, bool) {
			asset, err := s.GetDocument(ctx, id)
			return asset, err == nil
		})
	}
	return selected, nil
}

// GetDocument - returns cms.ErrNotFound if there is no such document
func (s *Store) GetDocument(ctx context.Context, id string) (cms.Document, error) {
	var body string
	err := s.db.QueryRowContext(ctx, "SELECT body FROM documents WHERE id = $1", id).Scan(&body)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, cms.ErrNotFound
		}
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return decode(body)
}

// Create - inserts a new document
// returns cms.ErrConflict when the ID or the slug of a published document is taken
func (s *Store) Create(ctx context.Context, doc cms.Document) (cms.Document, error) {
	stored := doc.Clone()
	id := stored.ID()
	if id == "" {
		id = uuid.New().String()
		stored["_id"] = id
	}
	now := s.now().UTC()
	stored["_createdAt"] = cms.FormatTime(now)
	stored["_updatedAt"] = cms.FormatTime(now)

	body, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	if _, err = s.db.ExecContext(ctx,
		"INSERT INTO documents (id, type, slug, body, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)",
		id, stored.Type(), uniqueSlug(stored), string(body), now, now); err != nil {
		if IsUniqueViolation(err) {
			return nil, cms.ErrConflict
		}
		return nil, fmt.Errorf("insert document: %w", err)
	}
	return stored, nil
}

// Patch - read-modify-write in one transaction. PostgreSQL locks the row, SQLite has a single connection
func (s *Store) Patch(ctx context.Context, id string, p *cms.Patch) (cms.Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	selectQuery := "SELECT body FROM documents WHERE id = $1"
	if s.driver == DriverPostgres {
		selectQuery += " FOR UPDATE"
	}
	var body string
	if err = tx.QueryRowContext(ctx, selectQuery, id).Scan(&body); err != nil {
		if err == sql.ErrNoRows {
			return nil, cms.ErrNotFound
		}
		return nil, fmt.Errorf("select document %s: %w", id, err)
	}
	doc, err := decode(body)
	if err != nil {
		return nil, err
	}
	if err = p.Apply(doc); err != nil {
		return nil, &cms.Error{StatusCode: 400, Message: err.Error(), Err: err}
	}
	now := s.now().UTC()
	doc["_updatedAt"] = cms.FormatTime(now)

	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	if _, err = tx.ExecContext(ctx, "UPDATE documents SET slug = $1, body = $2, updated_at = $3 WHERE id = $4",
		uniqueSlug(doc), string(encoded), now, id); err != nil {
		if IsUniqueViolation(err) {
			return nil, cms.ErrConflict
		}
		return nil, fmt.Errorf("update document %s: %w", id, err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return doc, nil
}

// Delete - removes document unless another document references it
func (s *Store) Delete(ctx context.Context, id string) error {
	referenced, err := s.isReferenced(ctx, id)
	if err != nil {
		return err
	}
	if referenced {
		return cms.ErrReferenced
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	if affected == 0 {
		return cms.ErrNotFound
	}
	return nil
}

// isReferenced - LIKE narrows candidates, the decoded body decides
func (s *Store) isReferenced(ctx context.Context, id string) (bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT body FROM documents WHERE id <> $1 AND body LIKE $2",
		id, "%"+id+"%")
	if err != nil {
		return false, fmt.Errorf("query references of %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var body string
		if err = rows.Scan(&body); err != nil {
			return false, fmt.Errorf("scan document: %w", err)
		}
		doc, err := decode(body)
		if err != nil {
			return false, err
		}
		if cms.References(doc, id) {
			return true, nil
		}
	}
	return false, rows.Err()
}

// uniqueSlug - value of the slug column. NULL is not unique, so drafts and slugless documents use it
func uniqueSlug(doc cms.Document) sql.NullString {
	slug := doc.String("slug.current")
	if slug == "" || strings.HasPrefix(doc.ID(), cms.DraftsPrefix) {
		return sql.NullString{}
	}
	return sql.NullString{String: slug, Valid: true}
}

func decode(body string) (cms.Document, error) {
	var doc cms.Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// IsUniqueViolation - true for primary key and unique constraint violations of both drivers
func IsUniqueViolation(err error) bool {
	var pqErr *pg.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

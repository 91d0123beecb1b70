package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the store was created by another version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// ThirdParty stores metadata of content absent from the official catalog.
type ThirdParty struct {
	db   *sql.DB
	path string
}

// OpenThirdParty opens or creates the store at path.
func OpenThirdParty(ctx context.Context, path string) (*ThirdParty, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	store := &ThirdParty{db: db, path: path}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the database.
func (s *ThirdParty) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record is one stored third-party content.
type Record struct {
	ID          uuid.UUID
	Title       string
	Description string
	Thumbnail   []byte
}

// Put stores title and description for id, keeping any thumbnail.
func (s *ThirdParty) Put(ctx context.Context, id uuid.UUID, title, description string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stories (uuid, title, description, updated_at) VALUES (?, ?, ?, ?)
         ON CONFLICT(uuid) DO UPDATE SET title = excluded.title,
             description = excluded.description, updated_at = excluded.updated_at`,
		key(id), title, description, now(),
	)
	if err != nil {
		return fmt.Errorf("store metadata: %w", err)
	}
	return nil
}

// PutThumbnail stores the thumbnail image for id.
func (s *ThirdParty) PutThumbnail(ctx context.Context, id uuid.UUID, image []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stories (uuid, thumbnail, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(uuid) DO UPDATE SET thumbnail = excluded.thumbnail, updated_at = excluded.updated_at`,
		key(id), image, now(),
	)
	if err != nil {
		return fmt.Errorf("store thumbnail: %w", err)
	}
	return nil
}

// Get returns the stored record for id.
func (s *ThirdParty) Get(ctx context.Context, id uuid.UUID) (Record, bool, error) {
	rec := Record{ID: id}
	err := s.db.QueryRowContext(ctx,
		`SELECT title, description, thumbnail FROM stories WHERE uuid = ?`, key(id),
	).Scan(&rec.Title, &rec.Description, &rec.Thumbnail)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get metadata: %w", err)
	}
	return rec, true, nil
}

// Match returns the stored identifiers containing fragment, in lexical order.
func (s *ThirdParty) Match(ctx context.Context, fragment string) ([]uuid.UUID, error) {
	if fragment == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT uuid FROM stories WHERE instr(uuid, ?) > 0 ORDER BY uuid`, strings.ToUpper(fragment))
	if err != nil {
		return nil, fmt.Errorf("match metadata: %w", err)
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan metadata: %w", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("match metadata: %w", err)
	}
	return out, nil
}

// Delete forgets id.
func (s *ThirdParty) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM stories WHERE uuid = ?`, key(id)); err != nil {
		return fmt.Errorf("delete metadata: %w", err)
	}
	return nil
}

func (s *ThirdParty) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: %s has version %d, expected %d (delete the file to rebuild it)",
			ErrSchemaMismatch, s.path, version, schemaVersion)
	}
	return nil
}

func (s *ThirdParty) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func key(id uuid.UUID) string {
	return strings.ToUpper(id.String())
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

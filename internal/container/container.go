package container

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel"

	"github.com/roach88/datapipe/internal/data"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - empty database
// 1 - meta and entries tables
const currentSchemaVersion = 1

// FormatVersion is the container format this package writes. Files tagged
// with a newer version are refused.
const FormatVersion = 1

// RootGroup names the group every entry is stored under.
const RootGroup = "DataStructure"

var tracer = otel.Tracer("github.com/roach88/datapipe/internal/container")

// ErrNotContainer is returned when a file lacks container metadata.
var ErrNotContainer = errors.New("not a datapipe container")

// ReadMode selects how much of a container Read loads.
type ReadMode int

const (
	// ReadFull loads structure, metadata and payloads.
	ReadFull ReadMode = iota
	// ReadPreflight loads structure and type/shape metadata only. Arrays get
	// placeholder stores and payload bytes are never selected.
	ReadPreflight
)

func (m ReadMode) String() string {
	if m == ReadPreflight {
		return "preflight"
	}
	return "full"
}

// File is an open container database.
type File struct {
	db   *sql.DB
	path string
}

// Create creates an empty container at path, replacing any existing file.
func Create(path string) (*File, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to replace container: %w", err)
	}
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	if err := applySchema(f.db); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return f, nil
}

// Open opens an existing container. The file must exist.
func Open(path string) (*File, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open container: %w", err)
	}
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	var version int
	if err := f.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		f.Close()
		return nil, fmt.Errorf("get user_version: %w", err)
	}
	if version == 0 {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotContainer, path)
	}
	if version > currentSchemaVersion {
		f.Close()
		return nil, fmt.Errorf("container schema %d is newer than supported %d", version, currentSchemaVersion)
	}
	return f, nil
}

func open(path string) (*File, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One connection: reads collect each level before descending.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	return &File{db: db, path: path}, nil
}

// Path returns the file path the container was opened at.
func (f *File) Path() string { return f.path }

// Close closes the database connection.
func (f *File) Close() error {
	if f.db == nil {
		return nil
	}
	return f.db.Close()
}

// Write creates the container at path, stores ds in it and regenerates the
// companion XDMF description.
func Write(ctx context.Context, path string, ds *data.Structure) (WriteStats, error) {
	f, err := Create(path)
	if err != nil {
		return WriteStats{}, err
	}
	stats, err := f.Write(ctx, ds)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close container: %w", cerr)
	}
	if err != nil {
		return WriteStats{}, err
	}
	if err := WriteXDMF(path, ds); err != nil {
		return stats, err
	}
	return stats, nil
}

// Read opens the container at path and reads it in the given mode.
func Read(ctx context.Context, path string, mode ReadMode) (*data.Structure, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.Read(ctx, mode)
}

// applyPragmas sets required SQLite configuration. The rollback journal is
// deleted after each transaction so a container is always a single file.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = DELETE",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("schema %d is newer than supported %d", version, currentSchemaVersion)
	}

	// Version 1 is the base schema; later versions add steps here.

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Meta is the root metadata of a container.
type Meta struct {
	FormatVersion int
	NextID        data.ID
	RootGroup     string
	Writer        string
}

// Meta reads the root metadata.
func (f *File) Meta(ctx context.Context) (Meta, error) {
	rows, err := f.db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return Meta{}, fmt.Errorf("query meta: %w", err)
	}
	defer rows.Close()

	values := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Meta{}, fmt.Errorf("scan meta: %w", err)
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return Meta{}, fmt.Errorf("iterate meta: %w", err)
	}

	raw, ok := values["format_version"]
	if !ok {
		return Meta{}, fmt.Errorf("%w: missing format_version", ErrNotContainer)
	}
	var m Meta
	if m.FormatVersion, err = strconv.Atoi(raw); err != nil {
		return Meta{}, fmt.Errorf("%w: format_version %q", ErrNotContainer, raw)
	}
	next, err := strconv.ParseUint(values["next_id"], 10, 64)
	if err != nil {
		return Meta{}, fmt.Errorf("%w: next_id %q", ErrNotContainer, values["next_id"])
	}
	m.NextID = data.ID(next)
	m.RootGroup = values["root_group"]
	m.Writer = values["writer"]
	return m, nil
}

package retrieval

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"
)

// PostgresDriver stores the document index in PostgreSQL with the pgvector
// extension, ranking by cosine distance in the database.
type PostgresDriver struct {
	db *sql.DB
}

// NewPostgresDriver connects to the given DSN and initializes the schema.
// Requires the pgvector extension to be installed.
func NewPostgresDriver(dsn string) (*PostgresDriver, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open index database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to connect to index database")
	}

	stmt := `
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS document (
			id SERIAL PRIMARY KEY,
			collection TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding vector NOT NULL,
			created_ts TIMESTAMPTZ DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_document_collection ON document (collection);
	`
	if _, err := db.Exec(stmt); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create document table")
	}

	return &PostgresDriver{db: db}, nil
}

// Insert implements Driver.
func (d *PostgresDriver) Insert(ctx context.Context, collection, content string, embedding []float32) error {
	_, err := d.db.ExecContext(ctx,
		"INSERT INTO document (collection, content, embedding) VALUES ($1, $2, $3)",
		collection, content, pgvector.NewVector(embedding))
	if err != nil {
		return errors.Wrap(err, "failed to insert document")
	}
	return nil
}

// Search implements Driver.
func (d *PostgresDriver) Search(ctx context.Context, collection string, embedding []float32, limit int) ([]string, error) {
	query := `
		SELECT content
		FROM document
		WHERE collection = $1
		ORDER BY embedding <=> $2
		LIMIT $3
	`
	rows, err := d.db.QueryContext(ctx, query, collection, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query documents")
	}
	defer rows.Close()

	results := []string{}
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, errors.Wrap(err, "failed to scan document")
		}
		results = append(results, content)
	}
	return results, rows.Err()
}

// Close implements Driver.
func (d *PostgresDriver) Close() error {
	return d.db.Close()
}

// NewDriver creates an index driver for the configured backend.
func NewDriver(driver, dsn string) (Driver, error) {
	switch driver {
	case "sqlite":
		return NewSQLiteDriver(dsn)
	case "postgres":
		return NewPostgresDriver(dsn)
	default:
		return nil, errors.Errorf("unsupported index driver: %s", driver)
	}
}

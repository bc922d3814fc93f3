package retrieval

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"
	"sort"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// SQLiteDriver stores the document index in a local SQLite file. SQLite has
// no native vector type, so embeddings are kept as little-endian float32
// blobs and ranked by cosine similarity in process. Fine for the few
// thousand snippets a health-document corpus holds; use the postgres
// driver beyond that.
type SQLiteDriver struct {
	db *sql.DB
}

// NewSQLiteDriver opens (and if needed initializes) the index at path.
func NewSQLiteDriver(path string) (*SQLiteDriver, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open index database")
	}

	stmt := `
		CREATE TABLE IF NOT EXISTS document (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			collection TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding BLOB NOT NULL,
			created_ts TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_document_collection ON document (collection);
	`
	if _, err := db.Exec(stmt); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create document table")
	}

	return &SQLiteDriver{db: db}, nil
}

// Insert implements Driver.
func (d *SQLiteDriver) Insert(ctx context.Context, collection, content string, embedding []float32) error {
	_, err := d.db.ExecContext(ctx,
		"INSERT INTO document (collection, content, embedding) VALUES ($1, $2, $3)",
		collection, content, encodeEmbedding(embedding))
	if err != nil {
		return errors.Wrap(err, "failed to insert document")
	}
	return nil
}

// Search implements Driver.
func (d *SQLiteDriver) Search(ctx context.Context, collection string, embedding []float32, limit int) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT content, embedding FROM document WHERE collection = $1", collection)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query documents")
	}
	defer rows.Close()

	type scored struct {
		content string
		score   float64
	}
	var candidates []scored

	for rows.Next() {
		var content string
		var blob []byte
		if err := rows.Scan(&content, &blob); err != nil {
			return nil, errors.Wrap(err, "failed to scan document")
		}
		stored, err := decodeEmbedding(blob)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, scored{
			content: content,
			score:   cosineSimilarity(embedding, stored),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(a, b int) bool {
		return candidates[a].score > candidates[b].score
	})

	results := make([]string, 0, limit)
	for n, c := range candidates {
		if n >= limit {
			break
		}
		results = append(results, c.content)
	}
	return results, nil
}

// Close implements Driver.
func (d *SQLiteDriver) Close() error {
	return d.db.Close()
}

func encodeEmbedding(embedding []float32) []byte {
	blob := make([]byte, 4*len(embedding))
	for n, v := range embedding {
		binary.LittleEndian.PutUint32(blob[n*4:], math.Float32bits(v))
	}
	return blob
}

func decodeEmbedding(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, errors.New("embedding blob length is not a multiple of 4")
	}
	embedding := make([]float32, len(blob)/4)
	for n := range embedding {
		embedding[n] = math.Float32frombits(binary.LittleEndian.Uint32(blob[n*4:]))
	}
	return embedding, nil
}

// cosineSimilarity returns 0 for mismatched or zero-length vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for n := range a {
		dot += float64(a[n]) * float64(b[n])
		normA += float64(a[n]) * float64(a[n])
		normB += float64(b[n]) * float64(b[n])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

package vectorsearch

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hession/haxu-mcp/internal/logger"
)

// SQLiteMatcher keeps document vectors as BLOBs and computes cosine
// similarity at query time. It suits collections of a few thousand rows.
type SQLiteMatcher struct {
	db *sql.DB
}

// OpenSQLiteMatcher opens (and if needed creates) a local vector store.
func OpenSQLiteMatcher(dbPath string) (*SQLiteMatcher, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create vector store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open vector database: %w", err)
	}

	m := &SQLiteMatcher{db: db}
	if err := m.initTables(); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

func (m *SQLiteMatcher) initTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			collection TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT,
			vector BLOB NOT NULL,
			dimension INTEGER NOT NULL,
			norm REAL NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection)`,
	}
	for _, query := range queries {
		if _, err := m.db.Exec(query); err != nil {
			return fmt.Errorf("failed to initialize vector tables: %w", err)
		}
	}
	return nil
}

// NewDocument is a document to be stored with its embedding.
type NewDocument struct {
	Content  string
	Metadata map[string]any
	Vector   []float32
}

// Insert stores documents in a collection in one transaction.
func (m *SQLiteMatcher) Insert(ctx context.Context, collection string, docs []NewDocument) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents (collection, content, metadata, vector, dimension, norm, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, doc := range docs {
		norm := calculateNorm(doc.Vector)
		if norm == 0 {
			return errors.New("document vector has zero norm")
		}
		var metadata sql.NullString
		if len(doc.Metadata) > 0 {
			data, err := json.Marshal(doc.Metadata)
			if err != nil {
				return fmt.Errorf("failed to encode metadata: %w", err)
			}
			metadata = sql.NullString{String: string(data), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, collection, doc.Content, metadata,
			vectorToBlob(doc.Vector), len(doc.Vector), norm, now); err != nil {
			return fmt.Errorf("failed to store document: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Match scans a collection and returns the Count best documents at or
// above Threshold, most similar first.
func (m *SQLiteMatcher) Match(ctx context.Context, q MatchQuery) ([]Document, error) {
	queryNorm := calculateNorm(q.Embedding)
	if queryNorm == 0 {
		return nil, errors.New("query vector has zero norm")
	}

	rows, err := m.db.QueryContext(ctx,
		"SELECT id, content, metadata, vector, norm FROM documents WHERE collection = ? AND dimension = ?",
		q.Collection, len(q.Embedding))
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			id       int64
			content  string
			metadata sql.NullString
			blob     []byte
			norm     float64
		)
		if err := rows.Scan(&id, &content, &metadata, &blob, &norm); err != nil {
			return nil, fmt.Errorf("failed to scan vector: %w", err)
		}
		if norm == 0 {
			continue
		}

		similarity := calculateDotProduct(q.Embedding, blobToVector(blob)) / (queryNorm * norm)
		if similarity < q.Threshold {
			continue
		}

		doc := Document{ID: id, Content: content, Similarity: similarity}
		if metadata.Valid {
			if err := json.Unmarshal([]byte(metadata.String), &doc.Metadata); err != nil {
				logger.With("collection", q.Collection).Warn("document %d has unreadable metadata: %v", id, err)
				doc.Metadata = nil
			}
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vectors: %w", err)
	}

	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].Similarity > docs[j].Similarity
	})
	if q.Count > 0 && len(docs) > q.Count {
		docs = docs[:q.Count]
	}
	return docs, nil
}

// Count returns the number of documents in a collection.
func (m *SQLiteMatcher) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE collection = ?", collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// Close closes the database connection
func (m *SQLiteMatcher) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// vectorToBlob encodes a vector as little-endian float32s
func vectorToBlob(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// blobToVector decodes a vector written by vectorToBlob
func blobToVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vector
}

func calculateNorm(vector []float32) float64 {
	var sum float64
	for _, v := range vector {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

func calculateDotProduct(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

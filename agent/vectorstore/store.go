// Package vectorstore keeps document chunks and their embeddings in a SQLite
// file and answers nearest-neighbour queries by cosine similarity.
package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const indexFile = "index.db"

var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Chunk is a piece of a source document.
type Chunk struct {
	ID        string
	Source    string
	Seq       int
	Content   string
	Embedding []float32
}

// Match is a chunk with its similarity to the query.
type Match struct {
	Chunk
	Score float64
}

type Store struct {
	db    *sql.DB
	path  string
	model string
}

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	id        TEXT PRIMARY KEY,
	source    TEXT NOT NULL,
	seq       INTEGER NOT NULL,
	content   TEXT NOT NULL,
	embedding BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS chunks_source ON chunks(source, seq);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// ResolvePath maps a db path to the SQLite file: paths ending in .db are used
// as-is, anything else is treated as a directory holding index.db.
func ResolvePath(dbPath string) string {
	if strings.HasSuffix(strings.ToLower(dbPath), ".db") {
		return dbPath
	}
	return filepath.Join(dbPath, indexFile)
}

// Open opens (creating if needed) the store for the given embedding model.
func Open(ctx context.Context, dbPath, embeddingModel string) (*Store, error) {
	file := ResolvePath(dbPath)
	if dir := filepath.Dir(file); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", file+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init vector db: %w", err)
	}
	s := &Store{db: db, path: file, model: embeddingModel}
	if err := s.checkModel(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) checkModel(ctx context.Context) error {
	stored, err := s.meta(ctx, "embedding_model")
	if err != nil {
		return err
	}
	if stored == "" {
		return s.setMeta(ctx, "embedding_model", s.model)
	}
	if stored != s.model {
		return fmt.Errorf("vector db %s was built with embedding model %q, not %q; remove it to rebuild", s.path, stored, s.model)
	}
	return nil
}

func (s *Store) meta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read meta %s: %w", key, err)
	}
	return v, nil
}

func (s *Store) setMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES(?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("write meta %s: %w", key, err)
	}
	return nil
}

// Dimensions returns the stored vector size, 0 for an empty store.
func (s *Store) Dimensions(ctx context.Context) (int, error) {
	v, err := s.meta(ctx, "dimensions")
	if err != nil || v == "" {
		return 0, err
	}
	return strconv.Atoi(v)
}

func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// Add inserts chunks in one transaction. Chunks without an ID get one.
func (s *Store) Add(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	dims, err := s.Dimensions(ctx)
	if err != nil {
		return err
	}
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %s#%d has no embedding", c.Source, c.Seq)
		}
		if dims == 0 {
			dims = len(c.Embedding)
		}
		if len(c.Embedding) != dims {
			return fmt.Errorf("%w: store has %d, chunk %s#%d has %d", ErrDimensionMismatch, dims, c.Source, c.Seq, len(c.Embedding))
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO chunks(id, source, seq, content, embedding) VALUES(?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, c := range chunks {
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx, id, c.Source, c.Seq, c.Content, encodeVector(c.Embedding)); err != nil {
			return fmt.Errorf("insert chunk %s#%d: %w", c.Source, c.Seq, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES('dimensions', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, strconv.Itoa(dims)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	return tx.Commit()
}

// Search returns the k chunks most similar to query, best first. k <= 0
// returns every chunk.
func (s *Store) Search(ctx context.Context, query []float32, k int) ([]Match, error) {
	dims, err := s.Dimensions(ctx)
	if err != nil {
		return nil, err
	}
	if dims == 0 {
		return nil, nil
	}
	if len(query) != dims {
		return nil, fmt.Errorf("%w: store has %d, query has %d", ErrDimensionMismatch, dims, len(query))
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, source, seq, content, embedding FROM chunks`)
	if err != nil {
		return nil, fmt.Errorf("scan chunks: %w", err)
	}
	defer rows.Close()

	qnorm := norm(query)
	var matches []Match
	for rows.Next() {
		var (
			c    Chunk
			blob []byte
		)
		if err := rows.Scan(&c.ID, &c.Source, &c.Seq, &c.Content, &blob); err != nil {
			return nil, fmt.Errorf("read chunk: %w", err)
		}
		c.Embedding = decodeVector(blob)
		matches = append(matches, Match{Chunk: c, Score: cosine(query, qnorm, c.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read chunks: %w", err)
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

func cosine(q []float32, qnorm float64, v []float32) float64 {
	if len(v) != len(q) || qnorm == 0 {
		return 0
	}
	var dot float64
	for i := range q {
		dot += float64(q[i]) * float64(v[i])
	}
	vn := norm(v)
	if vn == 0 {
		return 0
	}
	return dot / (qnorm * vn)
}

// Package retrieval implements the document index used to ground answers.
//
// Documents are chunked into paragraph passages and stored in SQLite; queries
// are ranked by token-frequency cosine similarity. Low-scoring passages are
// dropped so callers proceed ungrounded rather than with noise.
package retrieval

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"

	botel "github.com/DawoodTahir/MCP-Chatbot/internal/otel"
)

var tracer = botel.Tracer("github.com/DawoodTahir/MCP-Chatbot/internal/retrieval")

// MinScore is the cosine similarity below which a passage is not returned.
const MinScore = 0.1

const maxPassageChars = 2000

// Passage is one ranked retrieval result.
type Passage struct {
	DocID   string  `json:"doc_id"`
	Source  string  `json:"source"`
	Text    string  `json:"text"`
	Score   float64 `json:"score"`
	Ordinal int     `json:"ordinal"`
}

// Index is a SQLite-backed passage store answering similarity queries.
// Safe for concurrent use; database/sql serializes access to the single
// connection pool.
type Index struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	indexed_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS passages (
	doc_id  TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	ordinal INTEGER NOT NULL,
	text    TEXT NOT NULL,
	PRIMARY KEY (doc_id, ordinal)
);
`

// NewIndex opens (or creates) the index database at path.
func NewIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening index db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing index schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Close releases the underlying database handle.
func (i *Index) Close() error {
	return i.db.Close()
}

// Index ingests the plain-text artifact at path and returns its document ID.
// Re-indexing the same source replaces the previous document.
func (i *Index) Index(ctx context.Context, path string) (string, error) {
	ctx, span := tracer.Start(ctx, "retrieval.index")
	defer span.End()

	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading document %s: %w", path, err)
	}

	source := filepath.Base(path)
	chunks := chunk(string(content))
	docID := "doc_" + uuid.New().String()[:8]

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("starting index transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE source = ?`, source); err != nil {
		return "", fmt.Errorf("replacing document %s: %w", source, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (id, source, indexed_at) VALUES (?, ?, ?)`,
		docID, source, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("inserting document %s: %w", source, err)
	}
	for n, text := range chunks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO passages (doc_id, ordinal, text) VALUES (?, ?, ?)`,
			docID, n, text); err != nil {
			return "", fmt.Errorf("inserting passage %d of %s: %w", n, source, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing index transaction: %w", err)
	}

	span.SetAttributes(
		attribute.String("retrieval.doc_id", docID),
		attribute.Int("retrieval.passages", len(chunks)),
	)
	return docID, nil
}

// Query returns up to k passages ranked by cosine similarity to text.
// Passages scoring below MinScore are omitted; an empty result is not an error.
func (i *Index) Query(ctx context.Context, text string, k int) ([]Passage, error) {
	ctx, span := tracer.Start(ctx, "retrieval.query")
	defer span.End()

	queryVec := termVector(text)
	if len(queryVec) == 0 {
		return nil, nil
	}

	rows, err := i.db.QueryContext(ctx,
		`SELECT p.doc_id, d.source, p.ordinal, p.text
		 FROM passages p JOIN documents d ON d.id = p.doc_id`)
	if err != nil {
		return nil, fmt.Errorf("querying passages: %w", err)
	}
	defer rows.Close()

	var results []Passage
	for rows.Next() {
		var p Passage
		if err := rows.Scan(&p.DocID, &p.Source, &p.Ordinal, &p.Text); err != nil {
			return nil, fmt.Errorf("scanning passage: %w", err)
		}
		p.Score = cosine(queryVec, termVector(p.Text))
		if p.Score >= MinScore {
			results = append(results, p)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating passages: %w", err)
	}

	sort.Slice(results, func(a, b int) bool { return results[a].Score > results[b].Score })
	if k > 0 && len(results) > k {
		results = results[:k]
	}

	span.SetAttributes(attribute.Int("retrieval.results", len(results)))
	return results, nil
}

var splitParagraphs = regexp.MustCompile(`\n\s*\n`)

// chunk splits content into paragraph passages, merging short paragraphs and
// splitting oversized ones so each passage stays under maxPassageChars.
func chunk(content string) []string {
	var chunks []string
	var current strings.Builder

	flush := func() {
		text := strings.TrimSpace(current.String())
		if text != "" {
			chunks = append(chunks, text)
		}
		current.Reset()
	}

	for _, para := range splitParagraphs.Split(content, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		for len(para) > maxPassageChars {
			flush()
			cut := strings.LastIndexByte(para[:maxPassageChars], ' ')
			if cut <= 0 {
				cut = maxPassageChars
			}
			chunks = append(chunks, strings.TrimSpace(para[:cut]))
			para = strings.TrimSpace(para[cut:])
		}
		if current.Len()+len(para) > maxPassageChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()
	return chunks
}

var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

// termVector builds a lowercase term-frequency map for text.
func termVector(text string) map[string]float64 {
	vec := make(map[string]float64)
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if len(w) < 2 {
			continue
		}
		vec[w]++
	}
	return vec
}

// cosine computes cosine similarity between two term-frequency vectors.
func cosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for t, va := range a {
		normA += va * va
		if vb, ok := b[t]; ok {
			dot += va * vb
		}
	}
	for _, vb := range b {
		normB += vb * vb
	}
	if dot == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

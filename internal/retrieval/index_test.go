package retrieval

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := NewIndex(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestIndexAndQuery(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	path := writeDoc(t, "resume.txt",
		"Senior data engineer with five years of experience building spark pipelines.\n\n"+
			"Led a team migrating warehouse workloads to the cloud.\n\n"+
			"Enjoys hiking and photography on weekends.")

	docID, err := idx.Index(ctx, path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(docID, "doc_"))

	results, err := idx.Query(ctx, "experience as a data engineer with spark", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Text, "data engineer")
	assert.GreaterOrEqual(t, results[0].Score, MinScore)

	// Results come back best-first.
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestQueryTopKLimit(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	path := writeDoc(t, "notes.txt",
		"interview practice session one\n\ninterview practice session two\n\ninterview practice session three")
	_, err := idx.Index(ctx, path)
	require.NoError(t, err)

	results, err := idx.Query(ctx, "interview practice", 2)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 2)
}

func TestQueryUnrelatedReturnsNothing(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	path := writeDoc(t, "doc.txt", "kubernetes cluster autoscaling configuration guide")
	_, err := idx.Index(ctx, path)
	require.NoError(t, err)

	results, err := idx.Query(ctx, "zebra migration patterns savannah", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQueryEmptyIndex(t *testing.T) {
	idx := newTestIndex(t)

	results, err := idx.Query(context.Background(), "anything at all", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestReindexReplacesDocument(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "cv.txt")
	require.NoError(t, os.WriteFile(path, []byte("original text about gardening"), 0o600))
	first, err := idx.Index(ctx, path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("updated text about carpentry"), 0o600))
	second, err := idx.Index(ctx, path)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	results, err := idx.Query(ctx, "gardening", 5)
	require.NoError(t, err)
	assert.Empty(t, results, "old passages must be gone after reindex")

	results, err = idx.Query(ctx, "carpentry", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, second, results[0].DocID)
}

func TestChunkSplitsParagraphsAndOversized(t *testing.T) {
	chunks := chunk("first paragraph\n\nsecond paragraph")
	require.Len(t, chunks, 1, "short paragraphs merge into one passage")

	long := strings.Repeat("word ", 1200) // ~6000 chars
	chunks = chunk(long)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), maxPassageChars)
	}
}

func TestCosine(t *testing.T) {
	a := termVector("data engineer spark")
	assert.InDelta(t, 1.0, cosine(a, a), 1e-9)
	assert.Zero(t, cosine(a, termVector("zebra savannah")))
	assert.Zero(t, cosine(a, map[string]float64{}))
}

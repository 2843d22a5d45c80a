package vectorsearch

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hession/haxu-mcp/internal/upstream"
)

// fakeEmbedder maps texts onto fixed vectors for deterministic similarity
type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, ok := f.vectors[text]
	if !ok {
		return nil, errors.New("no vector for " + text)
	}
	return v, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func TestVectorBlobRoundTrip(t *testing.T) {
	vector := []float32{0.1, -2.5, 3, 0}
	got := blobToVector(vectorToBlob(vector))
	if len(got) != len(vector) {
		t.Fatalf("Expected %d values, got %d", len(vector), len(got))
	}
	for i := range vector {
		if got[i] != vector[i] {
			t.Errorf("Value %d: expected %v, got %v", i, vector[i], got[i])
		}
	}
}

func TestCalculateNorm(t *testing.T) {
	if n := calculateNorm([]float32{3, 4}); math.Abs(n-5) > 1e-9 {
		t.Errorf("Expected norm 5, got %v", n)
	}
	if d := calculateDotProduct([]float32{1, 2}, []float32{1, 2, 3}); d != 0 {
		t.Errorf("Mismatched dimensions should give 0, got %v", d)
	}
}

func openMatcher(t *testing.T) *SQLiteMatcher {
	t.Helper()
	m, err := OpenSQLiteMatcher(filepath.Join(t.TempDir(), "vectors.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteMatcher failed: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestSQLiteMatcher_Match(t *testing.T) {
	m := openMatcher(t)
	ctx := context.Background()

	err := m.Insert(ctx, "gdpr", []NewDocument{
		{Content: "consent", Vector: []float32{1, 0, 0}, Metadata: map[string]any{"article": "7"}},
		{Content: "erasure", Vector: []float32{0.8, 0.6, 0}},
		{Content: "portability", Vector: []float32{0, 0, 1}},
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := m.Insert(ctx, "pipl", []NewDocument{{Content: "other", Vector: []float32{1, 0, 0}}}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	docs, err := m.Match(ctx, MatchQuery{Collection: "gdpr", Embedding: []float32{1, 0, 0}, Threshold: 0.5, Count: 5})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("Expected 2 documents above threshold, got %d", len(docs))
	}
	if docs[0].Content != "consent" || docs[1].Content != "erasure" {
		t.Errorf("Unexpected order: %s, %s", docs[0].Content, docs[1].Content)
	}
	if math.Abs(docs[0].Similarity-1) > 1e-6 {
		t.Errorf("Expected similarity 1, got %v", docs[0].Similarity)
	}
	if docs[0].Metadata["article"] != "7" {
		t.Errorf("Metadata not preserved: %v", docs[0].Metadata)
	}

	docs, err = m.Match(ctx, MatchQuery{Collection: "gdpr", Embedding: []float32{1, 0, 0}, Threshold: 0, Count: 1})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("Expected count to cap results at 1, got %d", len(docs))
	}

	if _, err := m.Match(ctx, MatchQuery{Collection: "gdpr", Embedding: []float32{0, 0, 0}}); err == nil {
		t.Error("Expected error for zero query vector")
	}
}

func TestSQLiteMatcher_CorruptMetadataKeepsDocument(t *testing.T) {
	m := openMatcher(t)
	ctx := context.Background()

	err := m.Insert(ctx, "gdpr", []NewDocument{
		{Content: "consent", Vector: []float32{1, 0, 0}, Metadata: map[string]any{"article": "7"}},
	})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if _, err := m.db.ExecContext(ctx, "UPDATE documents SET metadata = ?", "{broken"); err != nil {
		t.Fatalf("Failed to corrupt metadata: %v", err)
	}

	docs, err := m.Match(ctx, MatchQuery{Collection: "gdpr", Embedding: []float32{1, 0, 0}, Count: 5})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(docs) != 1 || docs[0].Content != "consent" {
		t.Fatalf("Expected the document to survive, got %+v", docs)
	}
	if docs[0].Metadata != nil {
		t.Errorf("Expected no metadata, got %v", docs[0].Metadata)
	}
}

func TestSQLiteMatcher_Import(t *testing.T) {
	m := openMatcher(t)
	path := filepath.Join(t.TempDir(), "corpus.yaml")
	content := `collection: gdpr
documents:
  - content: consent
    metadata:
      article: "7"
  - content: erasure
  - content: portability
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write corpus: %v", err)
	}

	corpus, err := LoadCorpus(path)
	if err != nil {
		t.Fatalf("LoadCorpus failed: %v", err)
	}
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"consent":     {1, 0},
		"erasure":     {0, 1},
		"portability": {1, 1},
	}}

	n, err := m.Import(context.Background(), embedder, corpus, 2)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 imported, got %d", n)
	}
	count, _ := m.Count(context.Background(), "gdpr")
	if count != 3 {
		t.Errorf("Expected 3 stored, got %d", count)
	}
}

func TestLoadCorpus_MissingCollection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.yaml")
	os.WriteFile(path, []byte("documents:\n  - content: x\n"), 0644)
	if _, err := LoadCorpus(path); err == nil {
		t.Error("Expected error for corpus without collection")
	}
}

func TestSearcher_Search(t *testing.T) {
	m := openMatcher(t)
	ctx := context.Background()
	m.Insert(ctx, "gdpr", []NewDocument{{Content: "consent", Vector: []float32{1, 0}}})

	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"lawful basis": {1, 0.1},
		"unrelated":    {0, 1},
	}}
	s := NewSearcher(embedder, m, 0, 0)

	docs, err := s.Search(ctx, "gdpr", "lawful basis")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(docs) != 1 || docs[0].Content != "consent" {
		t.Errorf("Unexpected documents: %+v", docs)
	}

	_, err = s.Search(ctx, "gdpr", "unrelated")
	var empty *upstream.EmptyResultError
	if !errors.As(err, &empty) {
		t.Errorf("Expected EmptyResultError, got %v", err)
	}

	if _, err := s.Search(ctx, "gdpr", "  "); err == nil {
		t.Error("Expected error for empty query")
	}
}

func TestAzureOpenAIEmbedder(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		if r.Header.Get("api-key") != "secret" {
			t.Errorf("Expected api-key header")
		}
		if !strings.HasPrefix(r.URL.Path, "/openai/deployments/embed/embeddings") {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("api-version") != DefaultAPIVersion {
			t.Errorf("Unexpected api-version: %s", r.URL.Query().Get("api-version"))
		}
		var req embeddingRequest
		json.NewDecoder(r.Body).Decode(&req)
		// answer out of order to check index handling
		w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer server.Close()

	e, err := NewAzureOpenAIEmbedder(AzureEmbeddingConfig{
		Endpoint:   server.URL + "/",
		APIKey:     "secret",
		Deployment: "embed",
		MaxRetries: 1,
	}, upstream.New("", time.Second))
	if err != nil {
		t.Fatalf("NewAzureOpenAIEmbedder failed: %v", err)
	}
	e.backoff = func(int) time.Duration { return 0 }

	vectors, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if vectors[0][0] != 1 || vectors[1][1] != 1 {
		t.Errorf("Vectors not placed by index: %v", vectors)
	}
	if calls.Load() != 2 {
		t.Errorf("Expected one retry, got %d calls", calls.Load())
	}
}

func TestNewAzureOpenAIEmbedder_RequiresCredentials(t *testing.T) {
	if _, err := NewAzureOpenAIEmbedder(AzureEmbeddingConfig{APIKey: "k"}, nil); err == nil {
		t.Error("Expected error without endpoint")
	}
	if _, err := NewAzureOpenAIEmbedder(AzureEmbeddingConfig{Endpoint: "https://x"}, nil); err == nil {
		t.Error("Expected error without api key")
	}
}

func TestSupabaseMatcher_Match(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/rpc/match_documents" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("apikey") != "key" || r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("Missing auth headers")
		}
		var params rpcParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			t.Errorf("Bad body: %v", err)
		}
		if params.MatchThreshold != 0.5 || params.MatchCount != 3 || len(params.QueryEmbedding) != 2 {
			t.Errorf("Unexpected params: %+v", params)
		}
		w.Write([]byte(`[{"id":1,"content":"Art. 17","similarity":0.9}]`))
	}))
	defer server.Close()

	m, err := NewSupabaseMatcher(server.URL, "key", upstream.New("", time.Second))
	if err != nil {
		t.Fatalf("NewSupabaseMatcher failed: %v", err)
	}
	docs, err := m.Match(context.Background(), MatchQuery{
		Collection: "match_documents",
		Embedding:  []float32{1, 0},
		Threshold:  0.5,
		Count:      3,
	})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(docs) != 1 || docs[0].Content != "Art. 17" {
		t.Errorf("Unexpected documents: %+v", docs)
	}
}

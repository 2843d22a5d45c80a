package vectorsearch

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hession/haxu-mcp/internal/logger"
	"github.com/hession/haxu-mcp/internal/upstream"
)

const (
	DefaultThreshold = 0.5
	DefaultCount     = 3
)

// Searcher embeds a query and matches it against a collection.
type Searcher struct {
	embedder  Embedder
	matcher   Matcher
	threshold float64
	count     int
}

// NewSearcher creates a searcher. Non-positive threshold or count fall
// back to the defaults.
func NewSearcher(embedder Embedder, matcher Matcher, threshold float64, count int) *Searcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if count <= 0 {
		count = DefaultCount
	}
	return &Searcher{embedder: embedder, matcher: matcher, threshold: threshold, count: count}
}

// Search returns the documents of collection closest to query. A search
// that matches nothing fails with an upstream.EmptyResultError.
func (s *Searcher) Search(ctx context.Context, collection, query string) ([]Document, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	docs, err := s.matcher.Match(ctx, MatchQuery{
		Collection: collection,
		Embedding:  vector,
		Threshold:  s.threshold,
		Count:      s.count,
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("Semantic search in %s matched %d documents", collection, len(docs))
	if len(docs) == 0 {
		return nil, upstream.Empty("No relevant documents found.")
	}
	return docs, nil
}

// CorpusDocument is one entry of an import file.
type CorpusDocument struct {
	Content  string         `yaml:"content"`
	Metadata map[string]any `yaml:"metadata,omitempty"`
}

// Corpus is the YAML layout accepted by Import.
type Corpus struct {
	Collection string           `yaml:"collection"`
	Documents  []CorpusDocument `yaml:"documents"`
}

// LoadCorpus reads a corpus file.
func LoadCorpus(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus: %w", err)
	}
	var c Corpus
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse corpus: %w", err)
	}
	if c.Collection == "" {
		return nil, fmt.Errorf("corpus %s has no collection name", path)
	}
	return &c, nil
}

// Import embeds every document of a corpus and stores it. Documents are
// embedded in batches of batchSize.
func (m *SQLiteMatcher) Import(ctx context.Context, embedder Embedder, c *Corpus, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 16
	}

	imported := 0
	for start := 0; start < len(c.Documents); start += batchSize {
		end := min(start+batchSize, len(c.Documents))
		batch := c.Documents[start:end]

		texts := make([]string, len(batch))
		for i, d := range batch {
			texts[i] = d.Content
		}
		vectors, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return imported, fmt.Errorf("failed to embed documents %d-%d: %w", start, end-1, err)
		}
		if len(vectors) != len(batch) {
			return imported, fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(batch))
		}

		docs := make([]NewDocument, len(batch))
		for i, d := range batch {
			docs[i] = NewDocument{Content: d.Content, Metadata: d.Metadata, Vector: vectors[i]}
		}
		if err := m.Insert(ctx, c.Collection, docs); err != nil {
			return imported, err
		}
		imported += len(docs)
	}
	logger.Info("Imported %d documents into %s", imported, c.Collection)
	return imported, nil
}

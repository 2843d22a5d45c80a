package lawdb

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// builtinCorpus is seeded into a store that has no articles yet.
//
//go:embed corpus/criminal_law.yaml
var builtinCorpus []byte

// Corpus is the on-disk import format.
//
//	articles:
//	  - code: 133
//	    cause: 交通肇事罪
//	    paragraphs:
//	      - 违反交通运输管理法规……
type Corpus struct {
	Articles []Article `yaml:"articles"`
}

// LoadCorpus reads a YAML corpus file.
func LoadCorpus(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus file: %w", err)
	}
	return parseCorpus(data, path)
}

func parseCorpus(data []byte, source string) (*Corpus, error) {
	var corpus Corpus
	if err := yaml.Unmarshal(data, &corpus); err != nil {
		return nil, fmt.Errorf("failed to parse corpus %s: %w", source, err)
	}
	if len(corpus.Articles) == 0 {
		return nil, fmt.Errorf("corpus %s contains no articles", source)
	}
	return &corpus, nil
}

// Import loads a corpus file into the store and returns the article count.
func (s *Store) Import(ctx context.Context, path string) (int, error) {
	corpus, err := LoadCorpus(path)
	if err != nil {
		return 0, err
	}
	return s.load(ctx, corpus)
}

// Seed loads the built-in corpus when the store is empty. It returns the
// number of articles written, zero if the store already had data.
func (s *Store) Seed(ctx context.Context) (int, error) {
	count, err := s.Count(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}
	corpus, err := parseCorpus(builtinCorpus, "builtin")
	if err != nil {
		return 0, err
	}
	return s.load(ctx, corpus)
}

func (s *Store) load(ctx context.Context, corpus *Corpus) (int, error) {
	if err := s.Upsert(ctx, corpus.Articles); err != nil {
		return 0, err
	}
	return len(corpus.Articles), nil
}

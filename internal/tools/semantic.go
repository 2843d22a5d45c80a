package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hession/haxu-mcp/internal/vectorsearch"
)

// Collections searched by the semantic tools.
const (
	GDPRCollection = "match_documents"
	PIPLCollection = "match_pipl_documents"
)

// SemanticSearchTool runs a vector search over one regulation.
type SemanticSearchTool struct {
	name        string
	description string
	collection  string
	searcher    *vectorsearch.Searcher
}

// NewGDPRSearchTool searches the GDPR corpus.
func NewGDPRSearchTool(searcher *vectorsearch.Searcher) *SemanticSearchTool {
	return &SemanticSearchTool{
		name: "gdpr_semantic_search",
		description: "Perform semantic search against the GDPR, the European Union data protection " +
			"and privacy regulation in force since May 25, 2018. Returns up to 3 matching documents " +
			"with similarity above 0.5.",
		collection: GDPRCollection,
		searcher:   searcher,
	}
}

// NewPIPLSearchTool searches China's Personal Information Protection Law.
func NewPIPLSearchTool(searcher *vectorsearch.Searcher) *SemanticSearchTool {
	return &SemanticSearchTool{
		name: "China_pipl_semantic_search",
		description: "Perform semantic search against China PIPL, the Personal Information Protection " +
			"Law in force since November 1, 2021. Returns up to 3 matching documents with similarity " +
			"above 0.5.",
		collection: PIPLCollection,
		searcher:   searcher,
	}
}

func (t *SemanticSearchTool) Name() string        { return t.name }
func (t *SemanticSearchTool) Description() string { return t.description }

func (t *SemanticSearchTool) Parameters() []ParameterDef {
	return []ParameterDef{
		{
			Name:        "query_text",
			Type:        TypeString,
			Description: "The text of search query",
			Required:    true,
		},
	}
}

func (t *SemanticSearchTool) Execute(ctx context.Context, args Args) (string, error) {
	docs, err := t.searcher.Search(ctx, t.collection, args.String("query_text"))
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode documents: %w", err)
	}
	return string(data), nil
}

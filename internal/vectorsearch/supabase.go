package vectorsearch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/hession/haxu-mcp/internal/upstream"
)

// Document is one match returned by a Matcher.
type Document struct {
	ID         any            `json:"id"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Similarity float64        `json:"similarity"`
}

// MatchQuery parameterizes one similarity search. Collection names the
// match function (Supabase RPC) or the local collection (SQLite).
type MatchQuery struct {
	Collection string
	Embedding  []float32
	Threshold  float64
	Count      int
}

// Matcher finds the documents closest to an embedding.
type Matcher interface {
	Match(ctx context.Context, q MatchQuery) ([]Document, error)
}

// SupabaseMatcher calls pgvector match functions through PostgREST RPC.
type SupabaseMatcher struct {
	baseURL string
	apiKey  string
	http    *upstream.Client
}

// NewSupabaseMatcher creates a matcher for a Supabase project.
func NewSupabaseMatcher(projectURL, apiKey string, http *upstream.Client) (*SupabaseMatcher, error) {
	if strings.TrimSpace(projectURL) == "" {
		return nil, errors.New("supabase url is not configured")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("supabase key is not configured")
	}
	return &SupabaseMatcher{
		baseURL: strings.TrimRight(projectURL, "/"),
		apiKey:  apiKey,
		http:    http,
	}, nil
}

type rpcParams struct {
	QueryEmbedding []float32 `json:"query_embedding"`
	MatchThreshold float64   `json:"match_threshold"`
	MatchCount     int       `json:"match_count"`
}

// Match calls the RPC function named by q.Collection.
func (m *SupabaseMatcher) Match(ctx context.Context, q MatchQuery) ([]Document, error) {
	endpoint := fmt.Sprintf("%s/rest/v1/rpc/%s", m.baseURL, url.PathEscape(q.Collection))
	headers := map[string]string{
		"apikey":        m.apiKey,
		"Authorization": "Bearer " + m.apiKey,
		"Accept":        "application/json",
	}

	var docs []Document
	params := rpcParams{QueryEmbedding: q.Embedding, MatchThreshold: q.Threshold, MatchCount: q.Count}
	if err := m.http.PostJSON(ctx, "vector search", endpoint, headers, params, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

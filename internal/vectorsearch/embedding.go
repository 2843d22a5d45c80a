// Package vectorsearch answers semantic queries: the query text is embedded
// and matched against a document collection by cosine similarity, either in
// a Supabase (pgvector) database or in a local SQLite store.
package vectorsearch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hession/haxu-mcp/internal/upstream"
)

const (
	DefaultDeployment = "text-embedding-ada-002"
	DefaultAPIVersion = "2023-05-15"
)

// Embedder turns text into vectors.
type Embedder interface {
	// Embed returns the vector of one text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per text, in input order
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// AzureEmbeddingConfig configures an Azure OpenAI embedding deployment.
type AzureEmbeddingConfig struct {
	Endpoint   string // https://<resource>.openai.azure.com
	APIKey     string
	Deployment string
	APIVersion string
	MaxRetries int
}

// AzureOpenAIEmbedder calls an Azure OpenAI embeddings deployment.
type AzureOpenAIEmbedder struct {
	endpoint   string
	apiKey     string
	deployment string
	apiVersion string
	maxRetries int
	http       *upstream.Client
	backoff    func(retry int) time.Duration
}

// NewAzureOpenAIEmbedder creates an embedder on top of a shared upstream client.
func NewAzureOpenAIEmbedder(cfg AzureEmbeddingConfig, http *upstream.Client) (*AzureOpenAIEmbedder, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("azure openai endpoint is not configured")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("azure openai api key is not configured")
	}
	if cfg.Deployment == "" {
		cfg.Deployment = DefaultDeployment
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &AzureOpenAIEmbedder{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		deployment: cfg.Deployment,
		apiVersion: cfg.APIVersion,
		maxRetries: cfg.MaxRetries,
		http:       http,
		backoff: func(retry int) time.Duration {
			return time.Duration(1<<retry) * time.Second
		},
	}, nil
}

type embeddingRequest struct {
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the vector of one text
func (e *AzureOpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, &upstream.Error{Service: "embedding", Err: errors.New("empty embedding returned")}
	}
	return vectors[0], nil
}

// EmbedBatch returns one vector per text, retrying with exponential backoff.
func (e *AzureOpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var lastErr error
	for retry := 0; retry <= e.maxRetries; retry++ {
		vectors, err := e.doEmbed(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		if retry < e.maxRetries {
			select {
			case <-time.After(e.backoff(retry)):
			case <-ctx.Done():
				return nil, lastErr
			}
		}
	}
	return nil, lastErr
}

func (e *AzureOpenAIEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	endpoint := fmt.Sprintf("%s/openai/deployments/%s/embeddings?api-version=%s",
		e.endpoint, url.PathEscape(e.deployment), url.QueryEscape(e.apiVersion))

	var resp embeddingResponse
	headers := map[string]string{"api-key": e.apiKey}
	if err := e.http.PostJSON(ctx, "embedding", endpoint, headers, embeddingRequest{Input: texts}, &resp); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index >= 0 && data.Index < len(vectors) {
			vectors[data.Index] = data.Embedding
		}
	}
	return vectors, nil
}

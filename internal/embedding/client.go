package embedding

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultModel matches the sentence-transformers model the collections were sized for.
	DefaultModel = "sentence-transformers/all-MiniLM-L6-v2"
	// DefaultDimension is the vector size of both knowledge collections.
	DefaultDimension = 384
)

var (
	ErrEmptyText      = errors.New("text cannot be empty")
	ErrWrongDimension = errors.New("embedding has unexpected dimension")
	ErrNoData         = errors.New("no embedding data returned")
)

// API is the raw embedding call, split out so tests can stub the HTTP endpoint away.
type API interface {
	CreateEmbeddings(ctx context.Context, text string) ([]float32, error)
}

// Client generates fixed-dimension embeddings from any OpenAI-compatible endpoint.
type Client struct {
	api       API
	dimension int
}

type openAIAdapter struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// CreateEmbeddings calls the embeddings endpoint for a single input.
func (a *openAIAdapter) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: a.model,
	}
	resp, err := a.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, ErrNoData
	}
	return resp.Data[0].Embedding, nil
}

type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
}

// NewClient builds a client. BaseURL points it at a self-hosted server
// (text-embeddings-inference, Ollama, vLLM) instead of api.openai.com.
func NewClient(cfg Config) *Client {
	ocfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		ocfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return newClient(&openAIAdapter{
		client: openai.NewClientWithConfig(ocfg),
		model:  openai.EmbeddingModel(model),
	}, cfg.Dimension)
}

func newClient(api API, dimension int) *Client {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Client{api: api, dimension: dimension}
}

// Dimension returns the vector size every embedding must have.
func (c *Client) Dimension() int {
	return c.dimension
}

// GenerateEmbedding embeds text, rejecting vectors of the wrong size.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	vec, err := c.api.CreateEmbeddings(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(vec) != c.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrWrongDimension, len(vec), c.dimension)
	}
	return vec, nil
}

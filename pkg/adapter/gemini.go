package adapter

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"google.golang.org/genai"
)

type GeminiClient struct {
	client         *genai.Client
	embeddingModel string
	dimensions     int
}

type GeminiOption func(*GeminiClient)

func WithEmbeddingModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		g.embeddingModel = model
	}
}

func WithDimensions(dim int) GeminiOption {
	return func(g *GeminiClient) {
		g.dimensions = dim
	}
}

// NewGemini creates an Embedder backed by the Vertex AI embedding API
func NewGemini(ctx context.Context, projectID, location string, opts ...GeminiOption) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	g := &GeminiClient{
		client:         client,
		embeddingModel: "gemini-embedding-001",
		dimensions:     768,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

func (g *GeminiClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	}

	dim := int32(g.dimensions)
	resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, goerr.Wrap(model.ErrProviderFailure, "failed to embed content", goerr.V("cause", err.Error()))
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, goerr.Wrap(model.ErrProviderContract, "embedding count mismatch",
			goerr.V("requested", len(texts)),
			goerr.V("returned", len(resp.Embeddings)))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		vectors[i] = emb.Values
	}

	return vectors, nil
}

func (g *GeminiClient) Dimensions() int {
	return g.dimensions
}

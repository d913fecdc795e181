package adapter

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	openai "github.com/sashabaranov/go-openai"
)

type OpenAIClient struct {
	client         *openai.Client
	embeddingModel string
	dimensions     int
}

type OpenAIOption func(*OpenAIClient)

func WithOpenAIEmbeddingModel(model string) OpenAIOption {
	return func(o *OpenAIClient) {
		o.embeddingModel = model
	}
}

func WithOpenAIDimensions(dim int) OpenAIOption {
	return func(o *OpenAIClient) {
		o.dimensions = dim
	}
}

// NewOpenAI creates an Embedder backed by the OpenAI embeddings API
func NewOpenAI(apiKey string, opts ...OpenAIOption) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, goerr.New("openai api key is required")
	}

	o := &OpenAIClient{
		client:         openai.NewClient(apiKey),
		embeddingModel: string(openai.SmallEmbedding3),
		dimensions:     768,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o, nil
}

func (o *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(o.embeddingModel),
		Dimensions: o.dimensions,
	})
	if err != nil {
		return nil, goerr.Wrap(model.ErrProviderFailure, "failed to create embeddings", goerr.V("cause", err.Error()))
	}

	if len(resp.Data) != len(texts) {
		return nil, goerr.Wrap(model.ErrProviderContract, "embedding count mismatch",
			goerr.V("requested", len(texts)),
			goerr.V("returned", len(resp.Data)))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		vectors[i] = data.Embedding
	}

	return vectors, nil
}

func (o *OpenAIClient) Dimensions() int {
	return o.dimensions
}

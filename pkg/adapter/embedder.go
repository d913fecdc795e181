package adapter

import "context"

// Embedder converts text into fixed-dimension vectors. Implementations wrap
// external providers; latency and availability are outside this core's
// control. Embed must return exactly one vector per input text, in input
// order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"golang.org/x/time/rate"
)

const (
	// DefaultModel is the OpenAI embedding model used when none is configured.
	DefaultModel = "text-embedding-3-small"

	// DefaultDimension is the vector dimension for text-embedding-3-small.
	// Matches the vector(1536) column in the knowledge_entries schema.
	DefaultDimension = 1536

	// requestsPerSecond caps outbound embedding calls client-side, below
	// the API rate limit, so bursts of concurrent ingestion don't trip 429s.
	requestsPerSecond = 10

	// retryMaxElapsed bounds the total time spent retrying rate-limited
	// requests before the generator reports ErrUnavailable.
	retryMaxElapsed = 30 * time.Second
)

// OpenAI generates embeddings through the OpenAI API with client-side rate
// limiting and exponential backoff on rate-limit responses.
//
// Safe for concurrent use.
type OpenAI struct {
	client    *openai.Client
	model     string
	dimension int
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewOpenAI creates an OpenAI-backed Generator. The OPENAI_API_KEY
// environment variable must be set. Empty model/zero dimension fall back
// to DefaultModel/DefaultDimension.
func NewOpenAI(model string, dimension int, logger *slog.Logger) (*OpenAI, error) {
	if os.Getenv("OPENAI_API_KEY") == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}
	if model == "" {
		model = DefaultModel
	}
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	if logger == nil {
		logger = slog.Default()
	}

	// openai-go reads OPENAI_API_KEY from the environment
	client := openai.NewClient()

	return &OpenAI{
		client:    &client,
		model:     model,
		dimension: dimension,
		limiter:   rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		logger:    logger,
	}, nil
}

// Dimension returns the configured vector dimension.
func (o *OpenAI) Dimension() int {
	return o.dimension
}

// Embed returns the embedding vector for text. Rate-limit responses are
// retried with exponential backoff up to retryMaxElapsed; all failures are
// reported as ErrUnavailable so callers can degrade instead of aborting.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var vector []float32
	operation := func() error {
		resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: []string{text},
			},
			Model: openai.EmbeddingModel(o.model),
		})
		if err != nil {
			if isRateLimitError(err) {
				return err // retry with backoff
			}
			return backoff.Permanent(err)
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			return backoff.Permanent(errors.New("empty embedding response"))
		}
		vector = toFloat32(resp.Data[0].Embedding)
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = retryMaxElapsed

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		o.logger.Warn("embedding request failed", "model", o.model, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if len(vector) != o.dimension {
		return nil, fmt.Errorf("%w: model returned %d dimensions, expected %d",
			ErrUnavailable, len(vector), o.dimension)
	}
	return vector, nil
}

// isRateLimitError checks if the error is a rate limit error (HTTP 429).
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 converts []float64 to []float32.
// The OpenAI API returns float64; pgvector stores float32.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}

var _ Generator = (*OpenAI)(nil)

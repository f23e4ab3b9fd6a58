package ai

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryingEmbedder wraps another Embedder and retries failed calls with
// exponential backoff. Transient network hiccups against a local model
// server are common enough that the pipeline should not fail a whole
// document over one.
type RetryingEmbedder struct {
	inner      Embedder
	maxRetries uint64
	interval   time.Duration
}

var _ Embedder = (*RetryingEmbedder)(nil)

// NewRetryingEmbedder wraps inner with up to maxRetries retries starting
// at the given interval.
func NewRetryingEmbedder(inner Embedder, maxRetries int, interval time.Duration) *RetryingEmbedder {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &RetryingEmbedder{
		inner:      inner,
		maxRetries: uint64(maxRetries),
		interval:   interval,
	}
}

func (r *RetryingEmbedder) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.interval
	return backoff.WithContext(backoff.WithMaxRetries(b, r.maxRetries), ctx)
}

// EmbedText generates an embedding, retrying on failure.
func (r *RetryingEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return backoff.RetryWithData(func() ([]float32, error) {
		return r.inner.EmbedText(ctx, text)
	}, r.policy(ctx))
}

// EmbedTexts generates batch embeddings, retrying the whole batch on failure.
func (r *RetryingEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return backoff.RetryWithData(func() ([][]float32, error) {
		return r.inner.EmbedTexts(ctx, texts)
	}, r.policy(ctx))
}

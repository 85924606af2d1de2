package fingerprint

import (
	"context"
	"errors"
	"math"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrNoReferences is returned when Extract is called with an empty
	// reference set.
	ErrNoReferences = errors.New("no reference images provided")

	// ErrNoUsableReferences is returned when every reference failed to
	// embed; partial failures are skipped with a warning instead.
	ErrNoUsableReferences = errors.New("no usable reference images")
)

const defaultExtractConcurrency = 4

// Extractor turns an ordered set of reference images into a Fingerprint.
type Extractor struct {
	embedder    Embedder
	logger      *zap.Logger
	concurrency int
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithLogger sets the logger used for per-reference skip warnings.
func WithLogger(l *zap.Logger) ExtractorOption {
	return func(e *Extractor) { e.logger = l }
}

// WithConcurrency bounds the number of references embedded in parallel.
func WithConcurrency(n int) ExtractorOption {
	return func(e *Extractor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// NewExtractor creates an extractor around the injected embedding capability.
func NewExtractor(embedder Embedder, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		embedder:    embedder,
		logger:      zap.NewNop(),
		concurrency: defaultExtractConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// refResult holds the per-reference work product, indexed so the final
// reduction runs in the original reference order regardless of which
// goroutine finished first.
type refResult struct {
	embedding []float32
	stats     ColorStats
	err       error
}

// Extract computes the fingerprint of the given ordered reference set.
// References are processed on a bounded worker pool; an unreadable
// reference is skipped with a warning as long as at least one succeeds.
func (e *Extractor) Extract(ctx context.Context, refs []Reference) (*Fingerprint, error) {
	if len(refs) == 0 {
		return nil, ErrNoReferences
	}

	results := make([]refResult, len(refs))
	semaphore := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup

	for i := range refs {
		wg.Add(1)
		go func(idx int, ref Reference) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			if err := ctx.Err(); err != nil {
				results[idx] = refResult{err: err}
				return
			}

			embedding, err := e.embedder.EmbedImage(ctx, ref.Image)
			if err != nil {
				results[idx] = refResult{err: err}
				return
			}

			results[idx] = refResult{
				embedding: embedding,
				stats:     Stats(ref.Image),
			}
		}(i, refs[i])
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Reduce in input order so the result is reproducible.
	var (
		embeddingSum []float64
		usable       int
		fp           Fingerprint
	)
	for i, r := range results {
		if r.err != nil {
			e.logger.Warn("skipping unusable reference",
				zap.String("reference", refs[i].ID),
				zap.Error(r.err))
			continue
		}
		if embeddingSum == nil {
			embeddingSum = make([]float64, len(r.embedding))
		}
		if len(r.embedding) != len(embeddingSum) {
			// Embedding dimensionality is constant for the process
			// lifetime; a mismatch means the capability misbehaved.
			e.logger.Warn("skipping reference with mismatched embedding dimension",
				zap.String("reference", refs[i].ID),
				zap.Int("got", len(r.embedding)),
				zap.Int("want", len(embeddingSum)))
			continue
		}

		for j, v := range r.embedding {
			embeddingSum[j] += float64(v)
		}
		for j := range fp.Color.MeanRGB {
			fp.Color.MeanRGB[j] += r.stats.MeanRGB[j]
			fp.Color.StdRGB[j] += r.stats.StdRGB[j]
		}
		fp.Color.MeanChroma += r.stats.MeanChroma
		fp.Color.StdChroma += r.stats.StdChroma
		for j := range fp.Color.Histogram {
			fp.Color.Histogram[j] += r.stats.Histogram[j]
		}
		fp.Sources = append(fp.Sources, SourceEmbedding{
			ID:        refs[i].ID,
			Embedding: r.embedding,
		})
		usable++
	}

	if usable == 0 {
		return nil, ErrNoUsableReferences
	}

	n := float64(usable)
	for j := range fp.Color.MeanRGB {
		fp.Color.MeanRGB[j] /= n
		fp.Color.StdRGB[j] /= n
	}
	fp.Color.MeanChroma /= n
	fp.Color.StdChroma /= n
	for j := range fp.Color.Histogram {
		fp.Color.Histogram[j] /= n
	}

	fp.Embedding = normalizeMean(embeddingSum, n)
	fp.SourceCount = usable
	return &fp, nil
}

// normalizeMean divides the accumulated embedding by n and re-normalizes
// to unit length. A zero vector stays zero.
func normalizeMean(sum []float64, n float64) []float32 {
	mean := make([]float64, len(sum))
	var norm float64
	for i, v := range sum {
		mean[i] = v / n
		norm += mean[i] * mean[i]
	}
	norm = math.Sqrt(norm)

	out := make([]float32, len(mean))
	for i, v := range mean {
		if norm > 0 {
			v /= norm
		}
		out[i] = float32(v)
	}
	return out
}

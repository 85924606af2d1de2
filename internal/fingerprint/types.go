package fingerprint

import (
	"context"
	"image"
	"math"
)

// HistogramBins is the number of coarse luminance histogram bins kept in
// the color statistics. The render pipeline uses the histogram to bias
// highlight/shadow treatment.
const HistogramBins = 16

// ColorStats summarizes the color distribution of one or more images in
// a luma/chroma space (BT.601 luma, Cb/Cr chroma).
type ColorStats struct {
	MeanRGB    [3]float64             `json:"mean_rgb"` // channel means in [0, 1]
	StdRGB     [3]float64             `json:"std_rgb"`  // channel std devs in [0, 1]
	MeanChroma float64                `json:"mean_chroma"`
	StdChroma  float64                `json:"std_chroma"`
	Histogram  [HistogramBins]float64 `json:"histogram"` // normalized luma histogram
}

// SourceEmbedding keeps the embedding of a single reference image so the
// session can answer "which reference does this input resemble most".
type SourceEmbedding struct {
	ID        string    `json:"id"`
	Embedding []float32 `json:"-"`
}

// Fingerprint is the immutable perceptual + statistical summary of the
// current reference set. It is replaced wholesale whenever the
// references change; it is never blended with a stale fingerprint.
type Fingerprint struct {
	Embedding   []float32         `json:"-"` // unit-normalized mean embedding
	Color       ColorStats        `json:"color"`
	Sources     []SourceEmbedding `json:"sources"`
	SourceCount int               `json:"source_count"`
}

// Embedder is the injected perceptual-embedding capability: a pure
// function from image to fixed-length vector. Any concrete model can sit
// behind it without changing the extractor's contract.
type Embedder interface {
	EmbedImage(ctx context.Context, img image.Image) ([]float32, error)
}

// Reference is one decoded reference image with a stable identity.
type Reference struct {
	ID    string
	Image image.Image
}

// Luma returns the BT.601 luma of r, g, b values in [0, 1].
func Luma(r, g, b float64) float64 {
	return 0.299*r + 0.587*g + 0.114*b
}

// ChromaMagnitude returns the Cb/Cr chroma magnitude of an RGB sample.
func ChromaMagnitude(r, g, b float64) float64 {
	l := Luma(r, g, b)
	cb := 0.564 * (b - l)
	cr := 0.713 * (r - l)
	return math.Hypot(cb, cr)
}

// Stats computes ColorStats for a single image.
func Stats(img image.Image) ColorStats {
	bounds := img.Bounds()
	n := float64(bounds.Dx() * bounds.Dy())
	if n == 0 {
		return ColorStats{}
	}

	var sum, sumSq [3]float64
	var chromaSum, chromaSumSq float64
	var hist [HistogramBins]float64

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			pr, pg, pb, _ := img.At(x, y).RGBA()
			r := float64(pr>>8) / 255.0
			g := float64(pg>>8) / 255.0
			b := float64(pb>>8) / 255.0

			for i, v := range [3]float64{r, g, b} {
				sum[i] += v
				sumSq[i] += v * v
			}

			c := ChromaMagnitude(r, g, b)
			chromaSum += c
			chromaSumSq += c * c

			bin := int(Luma(r, g, b) * HistogramBins)
			if bin >= HistogramBins {
				bin = HistogramBins - 1
			}
			hist[bin]++
		}
	}

	var stats ColorStats
	for i := range stats.MeanRGB {
		mean := sum[i] / n
		stats.MeanRGB[i] = mean
		stats.StdRGB[i] = math.Sqrt(math.Max(0, sumSq[i]/n-mean*mean))
	}
	stats.MeanChroma = chromaSum / n
	stats.StdChroma = math.Sqrt(math.Max(0, chromaSumSq/n-stats.MeanChroma*stats.MeanChroma))
	for i := range hist {
		stats.Histogram[i] = hist[i] / n
	}
	return stats
}

// CosineSimilarity computes the cosine similarity between two embedding
// vectors. Returns a value between -1 and 1, where 1 means identical.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

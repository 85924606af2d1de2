package fingerprint

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"
)

// funcEmbedder adapts a plain function to the Embedder interface so
// tests can map specific images to embeddings or failures.
type funcEmbedder func(img image.Image) ([]float32, error)

func (f funcEmbedder) EmbedImage(_ context.Context, img image.Image) ([]float32, error) {
	return f(img)
}

func fixedEmbedder(embedding []float32) funcEmbedder {
	return func(image.Image) ([]float32, error) { return embedding, nil }
}

func failingEmbedder() funcEmbedder {
	return func(image.Image) ([]float32, error) {
		return nil, errors.New("embedding backend unavailable")
	}
}

// byImageEmbedder returns a per-image embedding, keyed by identity. Safe
// under the extractor's worker pool because the map is never mutated.
func byImageEmbedder(m map[image.Image][]float32) funcEmbedder {
	return func(img image.Image) ([]float32, error) {
		emb, ok := m[img]
		if !ok || emb == nil {
			return nil, errors.New("unreadable reference")
		}
		return emb, nil
	}
}

func uniformImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := range width {
		for y := range height {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestExtract_EmptyInput(t *testing.T) {
	e := NewExtractor(fixedEmbedder([]float32{1, 0}))

	_, err := e.Extract(context.Background(), nil)
	if !errors.Is(err, ErrNoReferences) {
		t.Errorf("expected ErrNoReferences, got %v", err)
	}
}

func TestExtract_SingleReferenceStatsMatchImage(t *testing.T) {
	img := uniformImage(20, 20, color.RGBA{204, 102, 51, 255})
	e := NewExtractor(fixedEmbedder([]float32{3, 4}))

	fp, err := e.Extract(context.Background(), []Reference{{ID: "ref-1", Image: img}})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	want := Stats(img)
	const tol = 1e-9
	for i := range want.MeanRGB {
		if math.Abs(fp.Color.MeanRGB[i]-want.MeanRGB[i]) > tol {
			t.Errorf("channel %d mean: got %f, want %f", i, fp.Color.MeanRGB[i], want.MeanRGB[i])
		}
		if math.Abs(fp.Color.StdRGB[i]-want.StdRGB[i]) > tol {
			t.Errorf("channel %d std: got %f, want %f", i, fp.Color.StdRGB[i], want.StdRGB[i])
		}
	}
	if math.Abs(fp.Color.MeanChroma-want.MeanChroma) > tol {
		t.Errorf("mean chroma: got %f, want %f", fp.Color.MeanChroma, want.MeanChroma)
	}

	if fp.SourceCount != 1 {
		t.Errorf("expected SourceCount 1, got %d", fp.SourceCount)
	}
}

func TestExtract_EmbeddingUnitNormalized(t *testing.T) {
	img := uniformImage(4, 4, color.White)
	e := NewExtractor(fixedEmbedder([]float32{3, 4}))

	fp, err := e.Extract(context.Background(), []Reference{{ID: "a", Image: img}})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	var norm float64
	for _, v := range fp.Embedding {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)

	if math.Abs(norm-1) > 1e-6 {
		t.Errorf("embedding norm should be 1, got %f", norm)
	}
}

func TestExtract_AveragesAcrossReferences(t *testing.T) {
	dark := uniformImage(8, 8, color.RGBA{0, 0, 0, 255})
	light := uniformImage(8, 8, color.RGBA{255, 255, 255, 255})

	e := NewExtractor(byImageEmbedder(map[image.Image][]float32{
		dark:  {1, 0},
		light: {0, 1},
	}))

	fp, err := e.Extract(context.Background(), []Reference{
		{ID: "dark", Image: dark},
		{ID: "light", Image: light},
	})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	// Channel means of pure black and pure white average to 0.5.
	for i, m := range fp.Color.MeanRGB {
		if math.Abs(m-0.5) > 0.01 {
			t.Errorf("channel %d mean should be ~0.5, got %f", i, m)
		}
	}

	// Mean of (1,0) and (0,1) re-normalized is (1/sqrt2, 1/sqrt2).
	want := float32(1 / math.Sqrt2)
	for i, v := range fp.Embedding {
		if math.Abs(float64(v-want)) > 1e-6 {
			t.Errorf("embedding[%d] should be %f, got %f", i, want, v)
		}
	}

	if fp.SourceCount != 2 {
		t.Errorf("expected SourceCount 2, got %d", fp.SourceCount)
	}
	if len(fp.Sources) != 2 || fp.Sources[0].ID != "dark" || fp.Sources[1].ID != "light" {
		t.Errorf("sources should preserve input order, got %+v", fp.Sources)
	}
}

func TestExtract_SkipsFailedReference(t *testing.T) {
	broken := uniformImage(4, 4, color.Black)
	good := uniformImage(4, 4, color.White)

	e := NewExtractor(byImageEmbedder(map[image.Image][]float32{
		good: {1, 0},
	}))

	fp, err := e.Extract(context.Background(), []Reference{
		{ID: "broken", Image: broken},
		{ID: "good", Image: good},
	})
	if err != nil {
		t.Fatalf("Extract should tolerate a partial failure: %v", err)
	}

	if fp.SourceCount != 1 {
		t.Errorf("expected SourceCount 1, got %d", fp.SourceCount)
	}
	if len(fp.Sources) != 1 || fp.Sources[0].ID != "good" {
		t.Errorf("expected only the good source, got %+v", fp.Sources)
	}
}

func TestExtract_AllReferencesFail(t *testing.T) {
	img := uniformImage(4, 4, color.White)
	e := NewExtractor(failingEmbedder())

	_, err := e.Extract(context.Background(), []Reference{
		{ID: "a", Image: img},
		{ID: "b", Image: img},
	})
	if !errors.Is(err, ErrNoUsableReferences) {
		t.Errorf("expected ErrNoUsableReferences, got %v", err)
	}
}

func TestExtract_Deterministic(t *testing.T) {
	warm := uniformImage(8, 8, color.RGBA{200, 40, 10, 255})
	cool := uniformImage(8, 8, color.RGBA{10, 40, 200, 255})
	refs := []Reference{
		{ID: "a", Image: warm},
		{ID: "b", Image: cool},
	}
	embedder := byImageEmbedder(map[image.Image][]float32{
		warm: {0.5, 0.5},
		cool: {0.5, -0.5},
	})

	run := func() *Fingerprint {
		fp, err := NewExtractor(embedder).Extract(context.Background(), refs)
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		return fp
	}

	fp1 := run()
	fp2 := run()

	for i := range fp1.Embedding {
		if fp1.Embedding[i] != fp2.Embedding[i] {
			t.Fatalf("embedding not reproducible at %d: %f vs %f", i, fp1.Embedding[i], fp2.Embedding[i])
		}
	}
	if fp1.Color != fp2.Color {
		t.Error("color stats not reproducible")
	}
}

func TestStats_UniformGray(t *testing.T) {
	img := uniformImage(10, 10, color.RGBA{128, 128, 128, 255})
	stats := Stats(img)

	want := 128.0 / 255.0
	for i, m := range stats.MeanRGB {
		if math.Abs(m-want) > 1e-9 {
			t.Errorf("channel %d mean should be %f, got %f", i, want, m)
		}
		if stats.StdRGB[i] != 0 {
			t.Errorf("channel %d std should be 0 for uniform image, got %f", i, stats.StdRGB[i])
		}
	}
	if stats.MeanChroma > 1e-9 {
		t.Errorf("gray image should have zero chroma, got %f", stats.MeanChroma)
	}

	var histSum float64
	for _, h := range stats.Histogram {
		histSum += h
	}
	if math.Abs(histSum-1) > 1e-9 {
		t.Errorf("histogram should be normalized, sums to %f", histSum)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float64
		delta    float64
	}{
		{"identical vectors", []float32{1, 0, 0}, []float32{1, 0, 0}, 1.0, 0.001},
		{"opposite vectors", []float32{1, 0, 0}, []float32{-1, 0, 0}, -1.0, 0.001},
		{"orthogonal vectors", []float32{1, 0, 0}, []float32{0, 1, 0}, 0.0, 0.001},
		{"different lengths", []float32{1, 0}, []float32{1, 0, 0}, 0.0, 0.001},
		{"zero vector", []float32{0, 0, 0}, []float32{1, 0, 0}, 0.0, 0.001},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := CosineSimilarity(tc.a, tc.b)
			if result < tc.expected-tc.delta || result > tc.expected+tc.delta {
				t.Errorf("CosineSimilarity(%v, %v) = %f; want %f", tc.a, tc.b, result, tc.expected)
			}
		})
	}
}

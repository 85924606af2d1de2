package render

import (
	"fmt"
	"image"
	"math"
)

// StageError reports a numeric guard violation inside a single stage.
// It is scoped to one image: a batch render of other images proceeds.
type StageError struct {
	Stage string
}

func (e *StageError) Error() string {
	return fmt.Sprintf("render stage %q produced non-finite values", e.Stage)
}

// frame is the pipeline's working representation: planar float64 RGB in
// [0, 1] plus the untouched alpha bytes. Stages mutate the planes in
// place; guard clamps them back into range after every stage.
type frame struct {
	w, h    int
	r, g, b []float64
	alpha   []uint8
}

func newFrame(src *image.RGBA) *frame {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	f := &frame{
		w:     w,
		h:     h,
		r:     make([]float64, w*h),
		g:     make([]float64, w*h),
		b:     make([]float64, w*h),
		alpha: make([]uint8, w*h),
	}

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		o := src.PixOffset(bounds.Min.X, y)
		for x := 0; x < w; x++ {
			f.r[i] = float64(src.Pix[o]) / 255.0
			f.g[i] = float64(src.Pix[o+1]) / 255.0
			f.b[i] = float64(src.Pix[o+2]) / 255.0
			f.alpha[i] = src.Pix[o+3]
			i++
			o += 4
		}
	}
	return f
}

// toRGBA converts the frame back to an RGBA raster with the given
// bounds. The uint8 -> float64 -> uint8 round trip is exact for
// untouched values, which keeps the zero-gain path pixel-identical.
func (f *frame) toRGBA(bounds image.Rectangle) *image.RGBA {
	dst := image.NewRGBA(bounds)
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		o := dst.PixOffset(bounds.Min.X, y)
		for x := 0; x < f.w; x++ {
			dst.Pix[o] = toByte(f.r[i])
			dst.Pix[o+1] = toByte(f.g[i])
			dst.Pix[o+2] = toByte(f.b[i])
			dst.Pix[o+3] = f.alpha[i]
			i++
			o += 4
		}
	}
	return dst
}

func toByte(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
}

// luma returns the BT.601 luma plane of the frame.
func (f *frame) luma() []float64 {
	l := make([]float64, len(f.r))
	for i := range l {
		l[i] = 0.299*f.r[i] + 0.587*f.g[i] + 0.114*f.b[i]
	}
	return l
}

// means returns the per-channel means of the frame.
func (f *frame) means() [3]float64 {
	var sum [3]float64
	for i := range f.r {
		sum[0] += f.r[i]
		sum[1] += f.g[i]
		sum[2] += f.b[i]
	}
	n := float64(len(f.r))
	if n == 0 {
		return sum
	}
	return [3]float64{sum[0] / n, sum[1] / n, sum[2] / n}
}

// guard validates the planes after a stage: any NaN/Inf fails the render
// for this image, finite out-of-range values are clamped back into [0, 1].
func (f *frame) guard(stage string) error {
	for _, plane := range [][]float64{f.r, f.g, f.b} {
		for i, v := range plane {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return &StageError{Stage: stage}
			}
			if v < 0 {
				plane[i] = 0
			} else if v > 1 {
				plane[i] = 1
			}
		}
	}
	return nil
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Rect)
	if src.Stride == dst.Stride {
		copy(dst.Pix, src.Pix)
		return dst
	}
	// Sub-images carry the parent's stride; copy row by row.
	row := 4 * src.Rect.Dx()
	for y := src.Rect.Min.Y; y < src.Rect.Max.Y; y++ {
		so := src.PixOffset(src.Rect.Min.X, y)
		do := dst.PixOffset(dst.Rect.Min.X, y)
		copy(dst.Pix[do:do+row], src.Pix[so:so+row])
	}
	return dst
}

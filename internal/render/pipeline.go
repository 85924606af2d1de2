package render

import (
	"context"
	"image"
	"math"

	"github.com/kozaktomas/photo-styler/internal/fingerprint"
	"github.com/kozaktomas/photo-styler/internal/params"
)

// Stage scale constants: the factor each axis contributes at nominal
// strength when pushed to its +100 extreme.
const (
	toneBaseWeight  = 0.35 // blend weight toward the fingerprint tone curve
	exposureScale   = 0.5  // max luminance offset from the exposure axis
	contrastScale   = 0.8  // max S-curve slope change from the contrast axis
	zoneScale       = 0.35 // max shadow lift / highlight compression
	clarityScale    = 0.8  // max local-contrast boost
	wbWarmthWeight  = 0.5  // how much fingerprint warmth biases white balance
	wbChannelScale  = 0.25 // max per-channel gain swing from white balance
	saturationScale = 0.8  // max chroma scaling from the saturation axis
	grainScale      = 0.08 // max grain amplitude in luminance units
)

// Pipeline applies the ordered stage sequence deterministically. It is
// stateless between renders and safe for concurrent use.
type Pipeline struct {
	grainSize int
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithGrainSize sets the grain lattice cell edge in pixels.
func WithGrainSize(cell int) PipelineOption {
	return func(p *Pipeline) {
		if cell > 0 {
			p.grainSize = cell
		}
	}
}

// New creates a render pipeline.
func New(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{grainSize: defaultGrainSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Gain maps the strength axis to the global stage multiplier. The curve
// is linear: -100 -> 0 (every stage magnitude zero, identity render),
// 0 -> 1 (nominal), +100 -> 2 (amplification ceiling).
func Gain(strength float64) float64 {
	return (strength + 100.0) / 100.0
}

// Render runs the stage sequence over src and returns a raster with the
// same dimensions and channel layout. imageID feeds the grain seed so
// identical inputs are byte-reproducible. The context is checked at
// every stage boundary so a superseded render can be abandoned early.
func (p *Pipeline) Render(ctx context.Context, imageID string, src *image.RGBA, fp *fingerprint.Fingerprint, pv *params.Vector) (*image.RGBA, error) {
	gain := Gain(pv.Get(params.Strength))
	if gain <= 0 {
		// Identity render: return an untouched copy of the input.
		return cloneRGBA(src), nil
	}

	fr := newFrame(src)
	seed := grainSeed(imageID, pv.Hash())

	stages := []struct {
		name string
		fn   func()
	}{
		{"tone_curve", func() { toneCurve(fr, fp, gain, pv) }},
		{"shadow_highlight", func() { recoverZones(fr, fp, gain, pv) }},
		{"clarity", func() { clarity(fr, gain, pv) }},
		{"white_balance", func() { whiteBalance(fr, fp, gain, pv) }},
		{"saturation", func() { saturate(fr, gain, pv) }},
		{"grain", func() {
			amp := grainScale * gain * pv.Get(params.Grain) / 100
			if amp > 0 {
				applyGrain(fr, seed, amp, p.grainSize)
			}
		}},
	}

	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stage.fn()
		if err := fr.guard(stage.name); err != nil {
			return nil, err
		}
	}

	return fr.toRGBA(src.Rect), nil
}

// toneCurve blends each channel toward the fingerprint's channel means
// and carries the exposure offset and contrast S-curve. With neutral
// axes and a fingerprint matching the image, the stage is an identity.
func toneCurve(f *frame, fp *fingerprint.Fingerprint, gain float64, pv *params.Vector) {
	weight := gain * toneBaseWeight
	exposure := gain * pv.Get(params.Exposure) / 100 * exposureScale
	slope := 1 + gain*pv.Get(params.Contrast)/100*contrastScale
	if slope < 0 {
		slope = 0
	}

	imgMean := f.means()
	var shift [3]float64
	for c := range shift {
		shift[c] = weight*(fp.Color.MeanRGB[c]-imgMean[c]) + exposure
	}

	if shift == [3]float64{} && slope == 1 {
		return
	}

	for i := range f.r {
		f.r[i] = 0.5 + (f.r[i]+shift[0]-0.5)*slope
		f.g[i] = 0.5 + (f.g[i]+shift[1]-0.5)*slope
		f.b[i] = 0.5 + (f.b[i]+shift[2]-0.5)*slope
	}
}

// recoverZones lifts shadows and compresses highlights independently,
// weighting each pixel by an edge-aware smoothed luminance so zone
// boundaries do not produce halos. The fingerprint's luma histogram
// scales the nominal magnitude: reference sets that live in the shadows
// push shadow handling harder, and vice versa for highlights.
func recoverZones(f *frame, fp *fingerprint.Fingerprint, gain float64, pv *params.Vector) {
	shadows := gain * pv.Get(params.Shadows) / 100 * zoneScale * zoneEmphasis(fp, 0)
	highlights := gain * pv.Get(params.Highlights) / 100 * zoneScale * zoneEmphasis(fp, fingerprint.HistogramBins-4)
	if shadows == 0 && highlights == 0 {
		return
	}

	luma := f.luma()
	smoothed := edgeAwareBlur(luma, f.w, f.h)

	for i, l := range luma {
		base := smoothed[i]
		var delta float64
		if shadows != 0 && base < 0.5 {
			zone := (0.5 - base) / 0.5
			delta += shadows * zone * (1 - l)
		}
		if highlights != 0 && base > 0.5 {
			zone := (base - 0.5) / 0.5
			delta -= highlights * zone * l
		}
		if delta == 0 {
			continue
		}
		f.r[i] += delta
		f.g[i] += delta
		f.b[i] += delta
	}
}

// zoneEmphasis sums four histogram bins starting at offset and maps the
// mass into a [1, 2] multiplier.
func zoneEmphasis(fp *fingerprint.Fingerprint, offset int) float64 {
	var mass float64
	for i := offset; i < offset+4 && i < fingerprint.HistogramBins; i++ {
		mass += fp.Color.Histogram[i]
	}
	return 1 + mass
}

// clarity boosts local contrast by pushing luminance away from a
// spatially smoothed copy of itself (an unsharp mask on luma).
func clarity(f *frame, gain float64, pv *params.Vector) {
	amount := gain * pv.Get(params.Clarity) / 100 * clarityScale
	if amount == 0 {
		return
	}

	luma := f.luma()
	smoothed := gaussianBlur(luma, f.w, f.h)

	for i, l := range luma {
		delta := amount * (l - smoothed[i])
		if delta == 0 {
			continue
		}
		f.r[i] += delta
		f.g[i] += delta
		f.b[i] += delta
	}
}

// whiteBalance applies warm/cool per-channel gains in linearized RGB so
// the shift behaves like chromatic adaptation instead of a hue rotation.
// The fingerprint's warmth (red mean minus blue mean) biases the shift;
// the white_balance axis steers it on top.
func whiteBalance(f *frame, fp *fingerprint.Fingerprint, gain float64, pv *params.Vector) {
	warmth := fp.Color.MeanRGB[0] - fp.Color.MeanRGB[2]
	amount := gain * (pv.Get(params.WhiteBalance)/100 + warmth*wbWarmthWeight)
	if amount == 0 {
		return
	}

	rGain := math.Max(0, 1+wbChannelScale*amount)
	bGain := math.Max(0, 1-wbChannelScale*amount)

	const gamma = 2.2
	for i := range f.r {
		lr := math.Pow(math.Max(0, f.r[i]), gamma) * rGain
		lb := math.Pow(math.Max(0, f.b[i]), gamma) * bGain
		f.r[i] = math.Pow(lr, 1/gamma)
		f.b[i] = math.Pow(lb, 1/gamma)
	}
}

// saturate scales chroma about the luma axis. The factor is monotonic in
// the saturation axis, which keeps mean output chroma monotonic too.
func saturate(f *frame, gain float64, pv *params.Vector) {
	if pv.Get(params.Saturation) == 0 {
		return
	}
	factor := 1 + saturationScale*gain*pv.Get(params.Saturation)/100
	if factor < 0 {
		factor = 0
	}

	for i := range f.r {
		l := 0.299*f.r[i] + 0.587*f.g[i] + 0.114*f.b[i]
		f.r[i] = l + factor*(f.r[i]-l)
		f.g[i] = l + factor*(f.g[i]-l)
		f.b[i] = l + factor*(f.b[i]-l)
	}
}

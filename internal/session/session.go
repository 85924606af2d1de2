package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kozaktomas/photo-styler/internal/feedback"
	"github.com/kozaktomas/photo-styler/internal/fingerprint"
	"github.com/kozaktomas/photo-styler/internal/params"
)

var (
	// ErrUnknownImage is returned when an operation names an asset the
	// session does not hold.
	ErrUnknownImage = errors.New("unknown image")

	// ErrSuperseded is returned by a render whose asset changed while
	// the render was running. The newer request owns the result.
	ErrSuperseded = errors.New("render superseded")

	// ErrNoFingerprint is returned when the session has no style yet.
	ErrNoFingerprint = errors.New("no fingerprint set")

	// ErrNoReferenceIndex is returned by MatchReference when the
	// fingerprint carries no per-source embeddings to match against.
	ErrNoReferenceIndex = errors.New("no reference embeddings available")
)

const defaultRenderConcurrency = 4

// Renderer produces a stylized raster for one image. The production
// implementation is render.Pipeline.
type Renderer interface {
	Render(ctx context.Context, imageID string, src *image.RGBA, fp *fingerprint.Fingerprint, pv *params.Vector) (*image.RGBA, error)
}

// cacheEntry is one memoized render, valid for exactly one combination
// of parameter hash and fingerprint version.
type cacheEntry struct {
	paramsHash uint64
	fpVersion  uint64
	img        *image.RGBA
}

// asset is one image under the session's management. The original
// raster is immutable; params and cache evolve with feedback.
type asset struct {
	id       string
	original *image.RGBA
	params   *params.Vector
	cache    *cacheEntry

	// generation counts render requests; a finished render may only be
	// cached when it still matches. cancel aborts the in-flight one.
	generation uint64
	cancel     context.CancelFunc
}

// Session owns the mutable state of one styling conversation: the
// active fingerprint, per-image parameters and render caches, and the
// nearest-reference index. Sessions are independent of each other and
// safe for concurrent use.
type Session struct {
	mu sync.Mutex

	renderer    Renderer
	interpreter *feedback.Interpreter
	embedder    fingerprint.Embedder
	logger      *zap.Logger
	concurrency int

	fp        *fingerprint.Fingerprint
	fpVersion uint64
	assets    map[string]*asset
	order     []string // insertion order, drives deterministic batch output

	refIndex *referenceIndex
}

// Option configures a Session.
type Option func(*Session)

// WithInterpreter enables ApplyFeedback.
func WithInterpreter(i *feedback.Interpreter) Option {
	return func(s *Session) { s.interpreter = i }
}

// WithEmbedder enables MatchReference.
func WithEmbedder(e fingerprint.Embedder) Option {
	return func(s *Session) { s.embedder = e }
}

// WithConcurrency bounds the RenderAll worker pool.
func WithConcurrency(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// New creates a session around a fingerprint and a renderer. fp may be
// nil; renders fail with ErrNoFingerprint until ReplaceFingerprint.
func New(fp *fingerprint.Fingerprint, renderer Renderer, opts ...Option) *Session {
	s := &Session{
		renderer:    renderer,
		logger:      zap.NewNop(),
		concurrency: defaultRenderConcurrency,
		fp:          fp,
		assets:      make(map[string]*asset),
	}
	if fp != nil {
		s.fpVersion = 1
		s.refIndex = buildReferenceIndex(fp.Sources)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddImage registers an image and returns its asset ID. The raster is
// treated as immutable from here on; parameters start neutral.
func (s *Session) AddImage(img *image.RGBA) (string, error) {
	if img == nil || img.Bounds().Empty() {
		return "", errors.New("image is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.assets[id] = &asset{
		id:       id,
		original: img,
		params:   params.NewVector(),
	}
	s.order = append(s.order, id)
	return id, nil
}

// RemoveImage drops an asset and cancels its in-flight render, if any.
func (s *Session) RemoveImage(imageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assets[imageID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownImage, imageID)
	}
	if a.cancel != nil {
		a.cancel()
	}
	delete(s.assets, imageID)
	for i, id := range s.order {
		if id == imageID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Images returns the asset IDs in insertion order.
func (s *Session) Images() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// ReplaceFingerprint swaps the style wholesale: the version bump
// invalidates every cached render and the reference index is rebuilt.
// Per-image parameters survive; they describe the user's taste, not
// the fingerprint.
func (s *Session) ReplaceFingerprint(fp *fingerprint.Fingerprint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fp = fp
	s.fpVersion++
	s.refIndex = nil
	if fp != nil {
		s.refIndex = buildReferenceIndex(fp.Sources)
	}
	for _, a := range s.assets {
		s.invalidate(a)
	}
}

// invalidate drops an asset's cache and abandons its in-flight render,
// if any; the superseded render's result is never cached. Callers hold
// the session lock.
func (s *Session) invalidate(a *asset) {
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.generation++
	a.cache = nil
}

// SetParameter sets one axis on one image and invalidates its cache.
func (s *Session) SetParameter(imageID string, axis params.Axis, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assets[imageID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownImage, imageID)
	}
	if err := a.params.Set(axis, value); err != nil {
		return err
	}
	s.invalidate(a)
	return nil
}

// Parameters returns a copy of an image's current parameter vector.
func (s *Session) Parameters(imageID string) (*params.Vector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assets[imageID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownImage, imageID)
	}
	return a.params.Clone(), nil
}

// ResetParameters returns an image's axes to neutral and invalidates
// its cache.
func (s *Session) ResetParameters(imageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assets[imageID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownImage, imageID)
	}
	a.params.Reset()
	s.invalidate(a)
	return nil
}

// ApplyFeedback interprets free-form text against an image's current
// parameters, merges the resulting delta, and invalidates that image's
// cache only. Returns the applied delta so callers can echo it.
func (s *Session) ApplyFeedback(ctx context.Context, imageID, text string) (params.Delta, error) {
	if s.interpreter == nil {
		return nil, errors.New("session has no feedback interpreter")
	}

	s.mu.Lock()
	a, ok := s.assets[imageID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownImage, imageID)
	}
	current := a.params.Clone()
	s.mu.Unlock()

	// Interpretation may call a delegate; keep the lock released.
	delta := s.interpreter.Interpret(ctx, text, current)

	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok = s.assets[imageID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownImage, imageID)
	}
	if len(delta) > 0 {
		a.params.Apply(delta)
		s.invalidate(a)
	}
	return delta, nil
}

// RenderImage renders one asset with its current parameters, serving
// from cache when the parameter hash and fingerprint version match. A
// concurrent newer request for the same asset supersedes this one: the
// older render is cancelled and reports ErrSuperseded.
func (s *Session) RenderImage(ctx context.Context, imageID string) (*image.RGBA, error) {
	s.mu.Lock()
	a, ok := s.assets[imageID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownImage, imageID)
	}
	if s.fp == nil {
		s.mu.Unlock()
		return nil, ErrNoFingerprint
	}

	hash := a.params.Hash()
	fpVersion := s.fpVersion
	if c := a.cache; c != nil && c.paramsHash == hash && c.fpVersion == fpVersion {
		img := c.img
		s.mu.Unlock()
		return img, nil
	}

	// Supersede any in-flight render of this asset.
	if a.cancel != nil {
		a.cancel()
	}
	renderCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.generation++
	gen := a.generation

	src := a.original
	fp := s.fp
	pv := a.params.Clone()
	s.mu.Unlock()

	img, err := s.renderer.Render(renderCtx, imageID, src, fp, pv)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok = s.assets[imageID]
	if !ok || a.generation != gen {
		return nil, ErrSuperseded
	}
	a.cancel = nil
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, ErrSuperseded
		}
		return nil, err
	}
	if s.fpVersion != fpVersion {
		// The style changed under us; the result is stale.
		return nil, ErrSuperseded
	}
	a.cache = &cacheEntry{paramsHash: hash, fpVersion: fpVersion, img: img}
	return img, nil
}

// Result is one RenderAll outcome. Err is set per image; one failing
// render never poisons the rest of the batch.
type Result struct {
	ID    string
	Image *image.RGBA
	Err   error
}

// RenderAll renders every asset on a bounded worker pool and returns
// results in insertion order regardless of completion order.
func (s *Session) RenderAll(ctx context.Context) []Result {
	s.mu.Lock()
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	concurrency := s.concurrency
	s.mu.Unlock()

	results := make([]Result, len(ids))
	semaphore := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			img, err := s.RenderImage(ctx, id)
			if err != nil {
				s.logger.Warn("render failed",
					zap.String("image", id),
					zap.Error(err))
			}
			results[i] = Result{ID: id, Image: img, Err: err}
		}(i, id)
	}
	wg.Wait()

	return results
}

// Match is a nearest-reference lookup result.
type Match struct {
	ReferenceID string
	Score       float64 // cosine similarity, higher is closer
}

// MatchReference embeds an image and returns the most similar reference
// from the active fingerprint's source set.
func (s *Session) MatchReference(ctx context.Context, img image.Image) (*Match, error) {
	if s.embedder == nil {
		return nil, errors.New("session has no embedder")
	}

	s.mu.Lock()
	idx := s.refIndex
	s.mu.Unlock()

	if idx == nil || idx.empty() {
		return nil, ErrNoReferenceIndex
	}

	emb, err := s.embedder.EmbedImage(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("failed to embed image: %w", err)
	}

	return idx.nearest(emb)
}

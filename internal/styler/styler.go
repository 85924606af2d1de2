package styler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/kozaktomas/photo-styler/internal/feedback"
	"github.com/kozaktomas/photo-styler/internal/fingerprint"
	"github.com/kozaktomas/photo-styler/internal/session"
)

// Styler drives a whole directory-level run: extract a fingerprint from
// the reference folder, stylize every input image, write the results.
type Styler struct {
	extractor   *fingerprint.Extractor
	renderer    session.Renderer
	interpreter *feedback.Interpreter
	logger      *zap.Logger
	concurrency int
	quiet       bool
}

// Option configures a Styler.
type Option func(*Styler)

// WithInterpreter enables the --feedback flow.
func WithInterpreter(i *feedback.Interpreter) Option {
	return func(s *Styler) { s.interpreter = i }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Styler) { s.logger = logger }
}

// WithConcurrency bounds the render worker pool.
func WithConcurrency(n int) Option {
	return func(s *Styler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// Quiet suppresses the progress bar (tests, scripted runs).
func Quiet() Option {
	return func(s *Styler) { s.quiet = true }
}

// New creates a Styler around an extractor and a renderer.
func New(extractor *fingerprint.Extractor, renderer session.Renderer, opts ...Option) *Styler {
	s := &Styler{
		extractor:   extractor,
		renderer:    renderer,
		logger:      zap.NewNop(),
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunOptions names the directories of one run. Feedback lines, when
// present, are applied to every image in order before rendering.
type RunOptions struct {
	ReferenceDir string
	InputDir     string
	OutputDir    string
	Feedback     []string
}

// RunResult summarizes a run.
type RunResult struct {
	Rendered int
	Skipped  int // inputs that failed to decode
	Failed   int // inputs that failed to render or encode
}

// Run stylizes every image in InputDir toward the look of ReferenceDir.
// Unreadable files are skipped with a warning; a failing render or
// write is counted and logged without stopping the batch.
func (s *Styler) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	refs, err := s.loadReferences(ctx, opts.ReferenceDir)
	if err != nil {
		return nil, err
	}

	fp, err := s.extractor.Extract(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("failed to extract fingerprint: %w", err)
	}

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	sessOpts := []session.Option{
		session.WithLogger(s.logger),
		session.WithConcurrency(s.concurrency),
	}
	if s.interpreter != nil {
		sessOpts = append(sessOpts, session.WithInterpreter(s.interpreter))
	}
	sess := session.New(fp, s.renderer, sessOpts...)

	result := &RunResult{}
	outputs, err := s.loadInputs(sess, opts.InputDir, result)
	if err != nil {
		return nil, err
	}
	if len(outputs) == 0 {
		return nil, errors.New("no usable input images")
	}

	if err := s.applyFeedback(ctx, sess, opts.Feedback); err != nil {
		return nil, err
	}

	s.renderAndWrite(ctx, sess, opts.OutputDir, outputs, result)
	return result, nil
}

func (s *Styler) loadReferences(ctx context.Context, dir string) ([]fingerprint.Reference, error) {
	paths, err := ListImages(dir)
	if err != nil {
		return nil, err
	}

	var refs []fingerprint.Reference
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := DecodeImage(path)
		if err != nil {
			s.logger.Warn("skipping unreadable reference", zap.String("path", path), zap.Error(err))
			continue
		}
		refs = append(refs, fingerprint.Reference{ID: filepath.Base(path), Image: img})
	}
	return refs, nil
}

// loadInputs registers every decodable input with the session and maps
// asset IDs to output file names.
func (s *Styler) loadInputs(sess *session.Session, dir string, result *RunResult) (map[string]string, error) {
	paths, err := ListImages(dir)
	if err != nil {
		return nil, err
	}

	outputs := make(map[string]string, len(paths))
	for _, path := range paths {
		img, err := DecodeImage(path)
		if err != nil {
			s.logger.Warn("skipping unreadable input", zap.String("path", path), zap.Error(err))
			result.Skipped++
			continue
		}
		id, err := sess.AddImage(img)
		if err != nil {
			s.logger.Warn("skipping input", zap.String("path", path), zap.Error(err))
			result.Skipped++
			continue
		}
		outputs[id] = filepath.Base(path)
	}
	return outputs, nil
}

func (s *Styler) applyFeedback(ctx context.Context, sess *session.Session, lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	if s.interpreter == nil {
		return errors.New("feedback given but no interpreter configured")
	}

	for _, line := range lines {
		for _, id := range sess.Images() {
			if _, err := sess.ApplyFeedback(ctx, id, line); err != nil {
				return fmt.Errorf("failed to apply feedback: %w", err)
			}
		}
	}
	return nil
}

// renderAndWrite renders every asset on a bounded pool and encodes the
// successful ones, one progress tick per image.
func (s *Styler) renderAndWrite(ctx context.Context, sess *session.Session, outDir string, outputs map[string]string, result *RunResult) {
	ids := sess.Images()
	bar := s.newProgressBar(len(ids))

	semaphore := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()
			defer bar.Add(1)

			img, err := sess.RenderImage(ctx, id)
			if err != nil {
				s.logger.Warn("render failed", zap.String("image", outputs[id]), zap.Error(err))
				mu.Lock()
				result.Failed++
				mu.Unlock()
				return
			}

			outPath := filepath.Join(outDir, outputs[id])
			if err := EncodeImage(outPath, img); err != nil {
				s.logger.Warn("write failed", zap.String("path", outPath), zap.Error(err))
				mu.Lock()
				result.Failed++
				mu.Unlock()
				return
			}

			mu.Lock()
			result.Rendered++
			mu.Unlock()
		}(id)
	}
	wg.Wait()
}

func (s *Styler) newProgressBar(total int) *progressbar.ProgressBar {
	writer := io.Writer(os.Stderr)
	if s.quiet {
		writer = io.Discard
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(writer),
		progressbar.OptionSetDescription(fmt.Sprintf("Rendering (%d workers)", s.concurrency)),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

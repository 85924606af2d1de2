package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-styler/internal/config"
	"github.com/kozaktomas/photo-styler/internal/fingerprint"
	"github.com/kozaktomas/photo-styler/internal/render"
	"github.com/kozaktomas/photo-styler/internal/styler"
)

var styleCmd = &cobra.Command{
	Use:   "style",
	Short: "Render input photos toward the look of a reference folder",
	Long: `Extract a style fingerprint from the reference folder and render every
image in the input folder toward that look.

Requires a running embedding service (EMBEDDING_URL).

Examples:
  # Basic run
  photo-styler style --refs ./look --input ./photos --output ./out

  # Steer the result with feedback (repeatable)
  photo-styler style --refs ./look --input ./photos --output ./out \
    --feedback "warmer, more grain" --feedback "lift the shadows"

  # More parallel renders
  photo-styler style --refs ./look --input ./photos --output ./out --concurrency 8`,
	RunE: runStyle,
}

func init() {
	rootCmd.AddCommand(styleCmd)

	styleCmd.Flags().String("refs", "", "Directory with reference images (required)")
	styleCmd.Flags().String("input", "", "Directory with images to stylize (required)")
	styleCmd.Flags().String("output", "", "Directory for rendered images (required)")
	styleCmd.Flags().StringSlice("feedback", nil, "Feedback applied to every image before rendering (repeatable)")
	styleCmd.Flags().Int("concurrency", 0, "Parallel renders (defaults to RENDER_CONCURRENCY)")
	styleCmd.Flags().Int("grain-size", 0, "Grain lattice cell in pixels (default 3)")
	styleCmd.Flags().Bool("quiet", false, "Suppress the progress bar")

	_ = styleCmd.MarkFlagRequired("refs")
	_ = styleCmd.MarkFlagRequired("input")
	_ = styleCmd.MarkFlagRequired("output")
}

func runStyle(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	interpreter, err := newInterpreter(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}

	concurrency := mustGetInt(cmd, "concurrency")
	if concurrency <= 0 {
		concurrency = cfg.Render.Concurrency
	}

	var renderOpts []render.PipelineOption
	if cell := mustGetInt(cmd, "grain-size"); cell > 0 {
		renderOpts = append(renderOpts, render.WithGrainSize(cell))
	}

	extractor := fingerprint.NewExtractor(newEmbedder(cfg), fingerprint.WithLogger(logger))

	stylerOpts := []styler.Option{
		styler.WithLogger(logger),
		styler.WithConcurrency(concurrency),
		styler.WithInterpreter(interpreter),
	}
	if mustGetBool(cmd, "quiet") {
		stylerOpts = append(stylerOpts, styler.Quiet())
	}

	s := styler.New(extractor, render.New(renderOpts...), stylerOpts...)

	result, err := s.Run(cmd.Context(), styler.RunOptions{
		ReferenceDir: mustGetString(cmd, "refs"),
		InputDir:     mustGetString(cmd, "input"),
		OutputDir:    mustGetString(cmd, "output"),
		Feedback:     mustGetStringSlice(cmd, "feedback"),
	})
	if err != nil {
		return err
	}

	fmt.Printf("\nRendered %d image(s)", result.Rendered)
	if result.Skipped > 0 {
		fmt.Printf(", skipped %d unreadable", result.Skipped)
	}
	if result.Failed > 0 {
		fmt.Printf(", %d failed", result.Failed)
	}
	fmt.Println()
	return nil
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-styler/internal/config"
	"github.com/kozaktomas/photo-styler/internal/fingerprint"
	"github.com/kozaktomas/photo-styler/internal/render"
	"github.com/kozaktomas/photo-styler/internal/session"
	"github.com/kozaktomas/photo-styler/internal/styler"
)

var matchCmd = &cobra.Command{
	Use:   "match <image>",
	Short: "Find the reference image closest in style to a photo",
	Long: `Embed a photo and report which reference image its style is closest
to, scored by cosine similarity over the embedding space.

Examples:
  photo-styler match ./photos/sunset.jpg --refs ./look`,
	Args: cobra.ExactArgs(1),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().String("refs", "", "Directory with reference images (required)")
	_ = matchCmd.MarkFlagRequired("refs")
}

func runMatch(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	refs, err := loadReferenceDir(mustGetString(cmd, "refs"), logger)
	if err != nil {
		return err
	}

	embedder := newEmbedder(cfg)
	extractor := fingerprint.NewExtractor(embedder, fingerprint.WithLogger(logger))
	fp, err := extractor.Extract(cmd.Context(), refs)
	if err != nil {
		return err
	}

	img, err := styler.DecodeImage(args[0])
	if err != nil {
		return err
	}

	sess := session.New(fp, render.New(),
		session.WithEmbedder(embedder),
		session.WithLogger(logger),
	)

	match, err := sess.MatchReference(cmd.Context(), img)
	if err != nil {
		return err
	}

	fmt.Printf("Closest reference: %s (similarity %.3f)\n", match.ReferenceID, match.Score)
	return nil
}

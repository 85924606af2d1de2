package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/photo-styler/internal/config"
	"github.com/kozaktomas/photo-styler/internal/fingerprint"
	"github.com/kozaktomas/photo-styler/internal/styler"
)

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint <reference-dir>",
	Short: "Extract and print a style fingerprint from a reference folder",
	Long: `Extract the style fingerprint of a reference folder and print its
summary: color statistics, embedding dimension and source count.

Examples:
  photo-styler fingerprint ./look
  photo-styler fingerprint ./look --json`,
	Args: cobra.ExactArgs(1),
	RunE: runFingerprint,
}

func init() {
	rootCmd.AddCommand(fingerprintCmd)

	fingerprintCmd.Flags().Bool("json", false, "Output as JSON")
}

func runFingerprint(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	refs, err := loadReferenceDir(args[0], logger)
	if err != nil {
		return err
	}

	extractor := fingerprint.NewExtractor(newEmbedder(cfg), fingerprint.WithLogger(logger))
	fp, err := extractor.Extract(cmd.Context(), refs)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		out, err := json.MarshalIndent(fingerprintSummary(fp), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("Sources:        %d\n", fp.SourceCount)
	fmt.Printf("Embedding dim:  %d\n", len(fp.Embedding))
	fmt.Printf("Mean RGB:       %.3f %.3f %.3f\n", fp.Color.MeanRGB[0], fp.Color.MeanRGB[1], fp.Color.MeanRGB[2])
	fmt.Printf("Std RGB:        %.3f %.3f %.3f\n", fp.Color.StdRGB[0], fp.Color.StdRGB[1], fp.Color.StdRGB[2])
	fmt.Printf("Mean chroma:    %.3f\n", fp.Color.MeanChroma)
	fmt.Printf("Warmth (R-B):   %+.3f\n", fp.Color.MeanRGB[0]-fp.Color.MeanRGB[2])
	return nil
}

type fpSummary struct {
	Sources      int        `json:"sources"`
	EmbeddingDim int        `json:"embedding_dim"`
	MeanRGB      [3]float64 `json:"mean_rgb"`
	StdRGB       [3]float64 `json:"std_rgb"`
	MeanChroma   float64    `json:"mean_chroma"`
	Warmth       float64    `json:"warmth"`
}

func fingerprintSummary(fp *fingerprint.Fingerprint) fpSummary {
	return fpSummary{
		Sources:      fp.SourceCount,
		EmbeddingDim: len(fp.Embedding),
		MeanRGB:      fp.Color.MeanRGB,
		StdRGB:       fp.Color.StdRGB,
		MeanChroma:   fp.Color.MeanChroma,
		Warmth:       fp.Color.MeanRGB[0] - fp.Color.MeanRGB[2],
	}
}

// loadReferenceDir lists and decodes a reference folder, skipping files
// that fail to decode.
func loadReferenceDir(dir string, logger *zap.Logger) ([]fingerprint.Reference, error) {
	paths, err := styler.ListImages(dir)
	if err != nil {
		return nil, err
	}

	var refs []fingerprint.Reference
	for _, path := range paths {
		img, err := styler.DecodeImage(path)
		if err != nil {
			logger.Warn("skipping unreadable reference", zap.String("path", path), zap.Error(err))
			continue
		}
		refs = append(refs, fingerprint.Reference{ID: filepath.Base(path), Image: img})
	}
	return refs, nil
}

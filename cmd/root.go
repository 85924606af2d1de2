package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "photo-styler",
	Short: "Stylize photos toward the look of a reference set",
	Long: `Photo Styler derives a style fingerprint from a folder of reference
images (via an external embedding service) and renders your photos
toward that look with a deterministic numeric pipeline. Free-form
feedback like "warmer, less grain" steers the result.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")
}

func initConfig() {
	// a .env file is optional; a missing one is not an error
	_ = godotenv.Load()
}

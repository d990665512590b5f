package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/mixdown/internal/app"
)

var (
	mixVocals         string
	mixMusic          string
	mixGenre          string
	mixReference      string
	mixOut            string
	mixTargetDuration time.Duration
	mixFallback       bool
	mixTimeout        time.Duration
)

var mixCmd = &cobra.Command{
	Use:   "mix",
	Short: "Mix a vocal recording over an instrumental track",
	Long: `Normalize, analyze, equalize, duck, widen and master a vocal WAV over an
instrumental WAV, then write the mix and print a summary.

The genre selects the mixing configuration: the stored default for the genre
wins over the built-in preset, and --reference matches against a stored
reference track instead.

Examples:
  mixdown mix --vocals vox.wav --music beat.wav --genre pop --out mix.wav
  mixdown mix --vocals vox.wav --music beat.wav --genre rock --reference <id> -o json`,
	Args: cobra.NoArgs,
	RunE: runMix,
}

func init() {
	rootCmd.AddCommand(mixCmd)

	mixCmd.Flags().StringVar(&mixVocals, "vocals", "", "vocal WAV file")
	mixCmd.Flags().StringVar(&mixMusic, "music", "", "instrumental WAV file")
	mixCmd.Flags().StringVarP(&mixGenre, "genre", "g", "", "genre of the mix")
	mixCmd.Flags().StringVar(&mixReference, "reference", "", "reference track id to match")
	mixCmd.Flags().StringVar(&mixOut, "out", "", "output WAV file")
	mixCmd.Flags().DurationVar(&mixTargetDuration, "target-duration", 0,
		"trim or pad the mix to this length (default is the longer input)")
	mixCmd.Flags().BoolVar(&mixFallback, "fallback", false,
		"use the pop preset when the genre is unknown")
	mixCmd.Flags().DurationVar(&mixTimeout, "timeout", 5*time.Minute,
		"timeout for the whole mix")

	mixCmd.MarkFlagRequired("vocals")
	mixCmd.MarkFlagRequired("music")
	mixCmd.MarkFlagRequired("genre")
}

func runMix(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), mixTimeout)
	defer cancel()

	application, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	result, err := application.MixFiles(ctx, app.MixFiles{
		VocalsPath:       mixVocals,
		MusicPath:        mixMusic,
		OutputPath:       mixOut,
		Genre:            mixGenre,
		ReferenceTrackID: mixReference,
		TargetDuration:   mixTargetDuration,
		AllowFallback:    mixFallback,
	})
	if err != nil {
		if outErr := application.Output(app.ErrorSummary(err)); outErr != nil {
			fmt.Fprintf(os.Stderr, "failed to write error report: %v\n", outErr)
		}
		return fmt.Errorf("%smix failed: %w%s", ColorRed, err, ColorReset)
	}

	if err := application.Output(application.MixReport(result)); err != nil {
		return err
	}
	if mixOut != "" && !quiet {
		fmt.Fprintf(os.Stderr, "%sMix written to %s%s\n", ColorGreen, mixOut, ColorReset)
	}
	return nil
}

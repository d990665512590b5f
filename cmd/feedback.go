package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/mixdown/internal/feedback"
	"github.com/RyanBlaney/mixdown/internal/store"
)

var (
	feedbackConfigID string
	feedbackMixID    string
	feedbackGenre    string
	feedbackRatings  store.Ratings
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Rate mixes and inspect per-configuration scores",
	Long: `Ratings feed the per-genre optimizer: once a genre has enough entries, a
configuration that beats the current default by the configured margin is
promoted as a new derived default.`,
}

var feedbackSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit 1-5 ratings for a mix",
	Args:  cobra.NoArgs,
	RunE:  runFeedbackSubmit,
}

var feedbackStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregated scores per configuration of a genre",
	Args:  cobra.NoArgs,
	RunE:  runFeedbackStats,
}

func init() {
	rootCmd.AddCommand(feedbackCmd)
	feedbackCmd.AddCommand(feedbackSubmitCmd, feedbackStatsCmd)

	flags := feedbackSubmitCmd.Flags()
	flags.StringVar(&feedbackConfigID, "config-id", "", "configuration id the mix used")
	flags.StringVar(&feedbackMixID, "mix", "", "mix id")
	flags.IntVar(&feedbackRatings.Overall, "overall", 0, "overall rating (1-5)")
	flags.IntVar(&feedbackRatings.Vocals, "vocals", 0, "vocal rating (1-5)")
	flags.IntVar(&feedbackRatings.Instrumental, "instrumental", 0, "instrumental rating (1-5)")
	flags.IntVar(&feedbackRatings.Clarity, "clarity", 0, "clarity rating (1-5)")
	flags.IntVar(&feedbackRatings.Balance, "balance", 0, "balance rating (1-5)")
	for _, name := range []string{"config-id", "overall", "vocals", "instrumental", "clarity", "balance"} {
		feedbackSubmitCmd.MarkFlagRequired(name)
	}

	feedbackStatsCmd.Flags().StringVarP(&feedbackGenre, "genre", "g", "", "genre to summarize")
	feedbackStatsCmd.MarkFlagRequired("genre")
}

func runFeedbackSubmit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	application, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	fb, outcome, err := application.SubmitFeedback(ctx, feedback.Submission{
		ConfigID: feedbackConfigID,
		MixID:    feedbackMixID,
		Ratings:  feedbackRatings,
	})
	if err != nil {
		return err
	}

	if err := application.Output(map[string]any{
		"feedback_id": fb.ID,
		"genre":       fb.Genre,
		"outcome":     outcome,
	}); err != nil {
		return err
	}
	if outcome != nil && outcome.Promoted && !quiet {
		fmt.Fprintf(os.Stderr, "%sPromoted %s as the %s default%s\n",
			ColorGreen, outcome.DerivedID, outcome.Genre, ColorReset)
	}
	return nil
}

func runFeedbackStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	application, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	scores, entries, err := application.FeedbackSummary(ctx, feedbackGenre)
	if err != nil {
		return err
	}

	rows := make([]map[string]any, len(scores))
	for i, score := range scores {
		rows[i] = map[string]any{
			"config_id":  score.ConfigID,
			"is_default": score.IsDefault,
			"mean":       score.Stats.Mean,
			"median":     score.Stats.Median,
			"count":      score.Stats.Count,
		}
	}
	return application.Output(map[string]any{
		"genre":   feedbackGenre,
		"entries": entries,
		"scores":  rows,
	})
}

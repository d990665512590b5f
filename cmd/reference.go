package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	referenceName  string
	referenceGenre string
)

var referenceCmd = &cobra.Command{
	Use:   "reference",
	Short: "Manage reference tracks",
	Long: `Reference tracks are analyzed recordings whose spectral balance, width and
dynamics a mix can be matched against with mix --reference.`,
}

var referenceAddCmd = &cobra.Command{
	Use:   "add FILE",
	Short: "Analyze and store a reference track",
	Args:  cobra.ExactArgs(1),
	RunE:  runReferenceAdd,
}

var referenceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored reference tracks",
	Args:  cobra.NoArgs,
	RunE:  runReferenceList,
}

func init() {
	rootCmd.AddCommand(referenceCmd)
	referenceCmd.AddCommand(referenceAddCmd, referenceListCmd)

	referenceAddCmd.Flags().StringVar(&referenceName, "name", "",
		"display name (default is the file name)")
	referenceAddCmd.Flags().StringVarP(&referenceGenre, "genre", "g", "", "genre of the track")
	referenceAddCmd.MarkFlagRequired("genre")

	referenceListCmd.Flags().StringVarP(&referenceGenre, "genre", "g", "", "only list this genre")
}

func runReferenceAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	application, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	ref, err := application.AddReference(ctx, referenceName, referenceGenre, args[0])
	if err != nil {
		return err
	}

	if err := application.Output(map[string]any{
		"id":              ref.ID,
		"name":            ref.Name,
		"genre":           ref.Genre,
		"stereo_width":    ref.StereoWidth,
		"crest_factor_db": ref.CrestFactorDB,
		"recommendations": ref.Recommendations,
	}); err != nil {
		return err
	}
	if !quiet {
		fmt.Fprintf(os.Stderr, "%sReference %s stored%s\n", ColorGreen, ref.ID, ColorReset)
	}
	return nil
}

func runReferenceList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	application, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	refs, err := application.ListReferences(ctx, referenceGenre)
	if err != nil {
		return err
	}

	rows := make([]map[string]any, len(refs))
	for i, ref := range refs {
		rows[i] = map[string]any{
			"id":           ref.ID,
			"name":         ref.Name,
			"genre":        ref.Genre,
			"stereo_width": ref.StereoWidth,
			"created_at":   ref.CreatedAt,
		}
	}
	return application.Output(rows)
}

package cmd

import (
	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze FILE",
	Short: "Measure the frequency profile and quality of a WAV file",
	Long: `Analyze a WAV file without mixing it: band energies, spectral features,
signal classification and objective quality metrics.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	application, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer application.Close()

	report, err := application.Analyze(args[0])
	if err != nil {
		return err
	}
	return application.Output(report)
}

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/RyanBlaney/mixdown/configs"
)

// configTestCmd represents the config test command
var configTestCmd = &cobra.Command{
	Use:   "config-test",
	Short: "Test and display all configuration values",
	Long: `Test configuration loading and display all values to verify proper parsing.

This command loads the configuration and displays all values in a structured format
to help verify that your YAML configuration is being parsed correctly.

Examples:
  # Test with default config file
  mixdown config-test

  # Test with specific config file
  mixdown --config /path/to/config.yaml config-test`,
	RunE: runConfigTest,
}

func init() {
	rootCmd.AddCommand(configTestCmd)
}

func runConfigTest(cmd *cobra.Command, args []string) error {
	fmt.Println("MIXDOWN CONFIGURATION TEST")
	fmt.Println(strings.Repeat("=", 80))

	// Load configuration
	config, err := configs.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	printSection("APPLICATION SETTINGS")
	printKeyValue("Verbose", fmt.Sprintf("%t", config.Verbose))
	printKeyValue("Log Level", config.LogLevel)
	printKeyValue("Output Format", config.OutputFormat)
	printKeyValue("Data Directory", config.DataDir)

	printSection("AUDIO ANALYSIS")
	printKeyValue("Window Size", fmt.Sprintf("%d", config.Audio.WindowSize))
	printKeyValue("Hop Size", fmt.Sprintf("%d", config.Audio.HopSize))

	printSection("MIXING")
	printKeyValue("Headroom", fmt.Sprintf("%.1f dB", config.Mixing.HeadroomDB))
	printKeyValue("Vocal EQ", fmt.Sprintf("%t", config.Mixing.ApplyVocalEQ))
	printKeyValue("Vocal Enhancement", fmt.Sprintf("%t", config.Mixing.EnhanceVocals))
	printKeyValue("Allow Fallback", fmt.Sprintf("%t", config.Mixing.AllowFallback))
	printKeyValue("Max Workers", fmt.Sprintf("%d", config.Mixing.MaxWorkers))
	printKeyValue("Presets File", config.Mixing.PresetsFile)

	printSection("MASTERING")
	printKeyValue("Target RMS", fmt.Sprintf("%.1f dBFS", config.Mastering.TargetRMSDB))
	printKeyValue("Max Gain", fmt.Sprintf("%.1f dB", config.Mastering.MaxGainDB))
	printKeyValue("Ceiling", fmt.Sprintf("%.2f dBFS", config.Mastering.CeilingDBFS))
	printKeyValue("Lookahead", fmt.Sprintf("%.1f ms", config.Mastering.LookaheadMs))
	printKeyValue("Release", fmt.Sprintf("%.1f ms", config.Mastering.ReleaseMs))

	printSection("DYNAMIC EQ")
	printKeyValue("Threshold", fmt.Sprintf("%.1f dB", config.EQ.ThresholdDB))
	printKeyValue("Max Gain", fmt.Sprintf("%.1f dB", config.EQ.MaxGainDB))
	printKeyValue("Strength", fmt.Sprintf("%.2f", config.EQ.Strength))
	printKeyValue("Noisy Strength", fmt.Sprintf("%.2f", config.EQ.NoisyStrength))

	printSection("STORE")
	printKeyValue("Driver", config.Store.Driver)
	printKeyValue("Path", config.Store.Path)
	printSubsection("Cache")
	printKeyValue("  Enabled", fmt.Sprintf("%t", config.Cache.Enabled))
	printKeyValue("  Size", fmt.Sprintf("%d entries", config.Cache.Size))
	printKeyValue("  TTL", config.Cache.TTL.String())

	printSection("FEEDBACK")
	printKeyValue("Min Entries", fmt.Sprintf("%d", config.Feedback.MinEntries))
	printKeyValue("Margin", fmt.Sprintf("%.2f", config.Feedback.Margin))
	printKeyValue("Neutral Prior", fmt.Sprintf("%.2f", config.Feedback.NeutralPrior))

	printSection("OUTPUT")
	printKeyValue("Precision", fmt.Sprintf("%d", config.Output.Precision))
	printKeyValue("Bit Depth", fmt.Sprintf("%d", config.Output.BitDepth))
	printKeyValue("Directory", config.Output.Directory)

	printSection("METRICS")
	printKeyValue("Enabled", fmt.Sprintf("%t", config.Metrics.Enabled))
	printKeyValue("Log File", config.Metrics.LogFile)

	printSection("VALIDATION")
	if err := configs.ValidateConfig(config); err != nil {
		fmt.Printf("%s%s%s\n", ColorRed, err, ColorReset)
		return fmt.Errorf("configuration is invalid: %w", err)
	}
	printKeyValue("Status", "valid")

	fmt.Println()
	fmt.Println(ColorGreen + strings.Repeat("-", 80))
	fmt.Println("CONFIGURATION TEST COMPLETED SUCCESSFULLY")
	fmt.Printf("Config file: %s\n", getConfigFilePath())
	fmt.Println(strings.Repeat("=", 80) + ColorReset)

	return nil
}

func printSection(title string) {
	fmt.Printf("\n%s\n", title)
	fmt.Println(strings.Repeat("-", len(title)))
}

func printSubsection(title string) {
	fmt.Printf("\n  %s\n", title)
}

func printKeyValue(key, value string) {
	if value == "" {
		fmt.Printf("%-35s\n", key)
	} else {
		fmt.Printf("%-35s %s\n", key+":", value)
	}
}

func getConfigFilePath() string {
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return "(none, defaults only)"
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/mixdown/internal/app"
	"github.com/RyanBlaney/mixdown/internal/preset"
)

var (
	presetsGenre  string
	presetsStored bool
	presetsFile   string
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "Inspect and export genre presets",
}

var presetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active presets or stored configurations",
	Long: `List the active preset table (built-ins plus mixing.presets_file overrides).
With --stored, list the stored configurations of --genre in resolution order.`,
	Args: cobra.NoArgs,
	RunE: runPresetsList,
}

var presetsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the active preset table to a YAML or JSON file",
	Long: `Export the active presets so they can be edited and loaded back through
mixing.presets_file.`,
	Args: cobra.NoArgs,
	RunE: runPresetsExport,
}

func init() {
	rootCmd.AddCommand(presetsCmd)
	presetsCmd.AddCommand(presetsListCmd, presetsExportCmd)

	presetsListCmd.Flags().StringVarP(&presetsGenre, "genre", "g", "", "only show this genre")
	presetsListCmd.Flags().BoolVar(&presetsStored, "stored", false,
		"list stored configurations instead of presets (requires --genre)")

	presetsExportCmd.Flags().StringVarP(&presetsFile, "file", "f", "", "destination file (.yaml or .json)")
	presetsExportCmd.MarkFlagRequired("file")
}

func runPresetsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	application, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	if presetsStored {
		if presetsGenre == "" {
			return fmt.Errorf("--stored requires --genre")
		}
		stored, err := application.StoredConfigurations(ctx, presetsGenre)
		if err != nil {
			return err
		}
		rows := make([]map[string]any, len(stored))
		for i, cfg := range stored {
			rows[i] = map[string]any{
				"id":          cfg.ID,
				"name":        cfg.Name,
				"origin":      string(cfg.Origin),
				"version":     cfg.Version,
				"parent_id":   cfg.ParentID,
				"usage_count": cfg.UsageCount,
				"is_default":  cfg.IsDefault,
			}
		}
		return application.Output(rows)
	}

	table := application.Presets()
	genre := preset.Canonicalize(presetsGenre)
	var rows []map[string]any
	for _, g := range table.Genres() {
		if genre != "" && g != genre {
			continue
		}
		cfg := table[g]
		rows = append(rows, map[string]any{
			"genre":        g,
			"id":           cfg.ID,
			"name":         cfg.Name,
			"width":        cfg.Stereo.Width,
			"sidechain":    cfg.Sidechain.Enabled,
			"threshold_db": cfg.Compression.ThresholdDB,
			"ratio":        cfg.Compression.Ratio,
		})
	}
	if genre != "" && len(rows) == 0 {
		return fmt.Errorf("no preset for genre %q", presetsGenre)
	}
	return application.Output(rows)
}

func runPresetsExport(cmd *cobra.Command, args []string) error {
	application, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer application.Close()

	if err := app.ExportPresetFile(presetsFile, application.Presets()); err != nil {
		return err
	}
	if !quiet {
		fmt.Fprintf(os.Stderr, "%sPresets written to %s%s\n", ColorGreen, presetsFile, ColorReset)
	}
	return nil
}

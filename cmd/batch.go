package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/mixdown/internal/app"
)

var batchTimeout time.Duration

// batchManifest lists independent mix jobs
type batchManifest struct {
	Jobs []batchJob `yaml:"jobs"`
}

type batchJob struct {
	Vocals         string        `yaml:"vocals"`
	Music          string        `yaml:"music"`
	Genre          string        `yaml:"genre"`
	Reference      string        `yaml:"reference"`
	Out            string        `yaml:"out"`
	TargetDuration time.Duration `yaml:"target_duration"`
	Fallback       bool          `yaml:"fallback"`
}

var batchCmd = &cobra.Command{
	Use:   "batch MANIFEST",
	Short: "Mix every job of a YAML manifest concurrently",
	Long: `Run independent mixes from a manifest on a bounded worker pool
(mixing.max_workers). Relative paths resolve against the manifest directory.

Manifest format:
  jobs:
    - vocals: vox1.wav
      music: beat1.wav
      genre: pop
      out: out/mix1.wav`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute,
		"timeout for the whole batch")
}

func runBatch(cmd *cobra.Command, args []string) error {
	manifest, err := loadBatchManifest(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), batchTimeout)
	defer cancel()

	application, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	jobs := make([]app.MixFiles, len(manifest.Jobs))
	for i, job := range manifest.Jobs {
		jobs[i] = app.MixFiles{
			VocalsPath:       job.Vocals,
			MusicPath:        job.Music,
			OutputPath:       job.Out,
			Genre:            job.Genre,
			ReferenceTrackID: job.Reference,
			TargetDuration:   job.TargetDuration,
			AllowFallback:    job.Fallback,
		}
	}

	items, summary := application.MixFilesBatch(ctx, jobs)

	rows := make([]map[string]any, len(items))
	for i, item := range items {
		if item.Err != nil {
			rows[i] = app.ErrorSummary(item.Err)
		} else {
			rows[i] = application.MixReport(item.Result)
		}
		rows[i]["job"] = item.Index
	}
	if err := application.Output(map[string]any{
		"summary": summary,
		"results": rows,
	}); err != nil {
		return err
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%s%d of %d mixes failed%s", ColorRed, summary.Failed, summary.Total, ColorReset)
	}
	if !quiet {
		fmt.Fprintf(os.Stderr, "%s%d mixes completed in %s%s\n", ColorGreen, summary.Succeeded, summary.Duration, ColorReset)
	}
	return nil
}

func loadBatchManifest(path string) (*batchManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest batchManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if len(manifest.Jobs) == 0 {
		return nil, fmt.Errorf("manifest %s has no jobs", path)
	}

	base := filepath.Dir(path)
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	for i := range manifest.Jobs {
		job := &manifest.Jobs[i]
		if job.Vocals == "" || job.Music == "" {
			return nil, fmt.Errorf("job %d needs both vocals and music", i)
		}
		job.Vocals = resolve(job.Vocals)
		job.Music = resolve(job.Music)
		job.Out = resolve(job.Out)
	}
	return &manifest, nil
}

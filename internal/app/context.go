package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"github.com/RyanBlaney/latency-benchmark-common/output"

	"github.com/RyanBlaney/mixdown/configs"
	"github.com/RyanBlaney/mixdown/internal/feedback"
	"github.com/RyanBlaney/mixdown/internal/index"
	"github.com/RyanBlaney/mixdown/internal/mixing"
	"github.com/RyanBlaney/mixdown/internal/preset"
	"github.com/RyanBlaney/mixdown/internal/quality"
	"github.com/RyanBlaney/mixdown/internal/store"
	"github.com/RyanBlaney/mixdown/pkg/audio"
	"github.com/RyanBlaney/mixdown/pkg/audio/analysis"
	"github.com/RyanBlaney/mixdown/pkg/audio/wavio"
)

// Context holds the application context and configuration
type Context struct {
	// CLI arguments
	OutputFile   string
	OutputFormat string
	Verbose      bool
	Quiet        bool

	// Runtime context
	Logger logging.Logger
	Config *configs.Config
}

// App owns the stores, index and pipeline for the lifetime of one command
type App struct {
	ctx          *Context
	config       *configs.Config
	logger       logging.Logger
	repo         store.Repository
	index        *index.MemoryIndex
	analyzer     *analysis.Analyzer
	estimator    *quality.Estimator
	presets      preset.Table
	resolver     *preset.Resolver
	orchestrator *mixing.Orchestrator
	loop         *feedback.Loop
	metrics      *metricsCollector
}

// NewApp loads configuration and wires every component
func NewApp(ctx context.Context, appCtx *Context) (*App, error) {
	// Set up logging
	logger := setupLogging(appCtx)
	appCtx.Logger = logger

	// Load configuration
	config := appCtx.Config
	if config == nil {
		loaded, err := configs.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		config = loaded
	}
	if err := configs.ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	appCtx.Config = config

	// Step 1: Open the repository, optionally behind the read cache
	repo, err := openRepository(ctx, config, logger)
	if err != nil {
		return nil, err
	}

	// Step 2: Warm the feature index from persisted vectors
	idx := index.NewMemoryIndex(repo, logger)
	if err := idx.Warm(ctx); err != nil {
		logger.Error(err, "Failed to warm feature index, reference matching starts empty")
	}

	// Step 3: Build the preset table with file overrides
	presets := preset.Builtins()
	if config.Mixing.PresetsFile != "" {
		file, err := LoadPresetFile(config.Mixing.PresetsFile)
		if err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to load presets: %w", err)
		}
		if presets, err = file.Apply(presets); err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to apply presets: %w", err)
		}
	}

	// Step 4: Wire the resolver, feedback loop and orchestrator
	locks := store.NewScopeLocks()
	resolver := preset.NewResolver(preset.Dependencies{
		Table:      presets,
		Configs:    repo,
		References: repo,
		Index:      idx,
		Locks:      locks,
	}, logger)
	loop := feedback.NewLoop(feedbackConfig(config), repo, locks, logger)

	analyzer := analysis.NewAnalyzer(analysisConfig(config), logger)
	estimator := quality.NewEstimator(analyzer, logger)
	orchestrator, err := mixing.NewOrchestrator(mixingConfig(config), mixing.Dependencies{
		Resolver:  resolver,
		Estimator: estimator,
		Sink:      loop,
		Indexer:   idx,
	}, logger)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to create mixing orchestrator: %w", err)
	}

	logger.Debug("Mixdown application initialized", logging.Fields{
		"store_driver":  config.Store.Driver,
		"cache_enabled": config.Cache.Enabled,
		"presets":       len(presets),
		"indexed":       idx.Len(analysis.FeatureFull),
		"output_format": appCtx.OutputFormat,
	})

	return &App{
		ctx:          appCtx,
		config:       config,
		logger:       logger,
		repo:         repo,
		index:        idx,
		analyzer:     analyzer,
		estimator:    estimator,
		presets:      presets,
		resolver:     resolver,
		orchestrator: orchestrator,
		loop:         loop,
		metrics:      newMetricsCollector(config.Metrics, logger),
	}, nil
}

// setupLogging configures logging based on context
func setupLogging(ctx *Context) logging.Logger {
	if ctx.Logger != nil {
		return ctx.Logger
	}
	switch {
	case ctx.Verbose:
		logging.SetLevel(logging.DebugLevel)
	case ctx.Quiet:
		logging.SetLevel(logging.ErrorLevel)
	default:
		logging.SetLevel(logging.InfoLevel)
	}
	return logging.NewDefaultLogger()
}

func openRepository(ctx context.Context, config *configs.Config, logger logging.Logger) (store.Repository, error) {
	var repo store.Repository
	switch config.Store.Driver {
	case "memory":
		repo = store.NewMemoryStore()
	default:
		sqlStore, err := store.OpenSQLStore(ctx, config.Store.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		repo = sqlStore
	}

	if config.Cache.Enabled {
		repo = store.NewCachedStore(repo, cacheConfig(config), logger)
	}
	return repo, nil
}

// Close waits for pending mix hand-offs and closes the repository
func (app *App) Close() error {
	app.orchestrator.Wait()
	return app.repo.Close()
}

// MixFiles describes a mix of two WAV files
type MixFiles struct {
	VocalsPath       string
	MusicPath        string
	OutputPath       string
	Genre            string
	ReferenceTrackID string
	TargetDuration   time.Duration
	AllowFallback    bool
}

// MixFiles reads both inputs, mixes them and writes the mastered result
func (app *App) MixFiles(ctx context.Context, files MixFiles) (*mixing.MixResult, error) {
	req, err := app.fileRequest(files)
	if err != nil {
		return nil, err
	}

	result, err := app.Mix(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := app.writeMix(files.OutputPath, result); err != nil {
		return nil, err
	}
	return result, nil
}

// MixFilesBatch mixes independent file jobs on the worker pool. Jobs whose
// inputs cannot be read fail on their own without reaching the pipeline.
func (app *App) MixFilesBatch(ctx context.Context, jobs []MixFiles) ([]mixing.BatchItem, mixing.BatchSummary) {
	start := time.Now()
	items := make([]mixing.BatchItem, len(jobs))

	var (
		reqs    []*mixing.Request
		indices []int
	)
	for i, files := range jobs {
		req, err := app.fileRequest(files)
		if err != nil {
			items[i] = mixing.BatchItem{Index: i, Err: err}
			continue
		}
		reqs = append(reqs, req)
		indices = append(indices, i)
	}

	if len(reqs) > 0 {
		mixed, _ := app.MixBatch(ctx, reqs)
		for j, item := range mixed {
			i := indices[j]
			item.Index = i
			if item.Err == nil {
				item.Err = app.writeMix(jobs[i].OutputPath, item.Result)
			}
			if item.Err != nil {
				item.Result = nil
			}
			items[i] = item
		}
	}

	summary := mixing.BatchSummary{Total: len(jobs), Duration: time.Since(start)}
	for _, item := range items {
		if item.Err != nil {
			summary.Failed++
		} else {
			summary.Succeeded++
		}
	}
	return items, summary
}

func (app *App) fileRequest(files MixFiles) (*mixing.Request, error) {
	vocals, err := wavio.ReadFile(files.VocalsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocals: %w", err)
	}
	music, err := wavio.ReadFile(files.MusicPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read music: %w", err)
	}

	return &mixing.Request{
		Vocals:           vocals,
		Music:            music,
		Genre:            files.Genre,
		ReferenceTrackID: files.ReferenceTrackID,
		AllowFallback:    files.AllowFallback || app.config.Mixing.AllowFallback,
		TargetDuration:   files.TargetDuration,
		Metadata: map[string]string{
			"vocals": filepath.Base(files.VocalsPath),
			"music":  filepath.Base(files.MusicPath),
		},
	}, nil
}

// writeMix writes a mastered mix; an empty path writes nothing
func (app *App) writeMix(path string, result *mixing.MixResult) error {
	if path == "" {
		return nil
	}
	if !filepath.IsAbs(path) && app.config.Output.Directory != "" {
		path = filepath.Join(app.config.Output.Directory, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := wavio.WriteFile(path, result.Buffer, app.config.Output.BitDepth); err != nil {
		return fmt.Errorf("failed to write mix: %w", err)
	}
	app.logger.Info("Mix written", logging.Fields{
		"output_file": path,
		"sample_rate": result.Buffer.SampleRate,
		"channels":    result.Buffer.Channels(),
		"duration_s":  result.Buffer.Duration().Seconds(),
	})
	return nil
}

// Mix runs one request and reports its runtime metrics
func (app *App) Mix(ctx context.Context, req *mixing.Request) (*mixing.MixResult, error) {
	result, err := app.orchestrator.Mix(ctx, req)
	app.metrics.recordMix(req.Genre, result, err)
	return result, err
}

// MixBatch runs independent requests on the configured worker pool
func (app *App) MixBatch(ctx context.Context, reqs []*mixing.Request) ([]mixing.BatchItem, mixing.BatchSummary) {
	items, summary := app.orchestrator.MixBatch(ctx, reqs, app.config.Mixing.MaxWorkers)
	for i, item := range items {
		app.metrics.recordMix(reqs[i].Genre, item.Result, item.Err)
	}
	return items, summary
}

// AnalysisReport is the measured profile of one file
type AnalysisReport struct {
	File           string                     `json:"file"`
	SampleRate     int                        `json:"sample_rate"`
	Channels       int                        `json:"channels"`
	Duration       float64                    `json:"duration_seconds"`
	Profile        *analysis.FrequencyProfile `json:"profile"`
	Classification analysis.Classification    `json:"classification"`
	Quality        *quality.Metrics           `json:"quality"`
}

// Analyze measures a WAV file without mixing it
func (app *App) Analyze(path string) (*AnalysisReport, error) {
	buf, err := wavio.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	profile, err := app.analyzer.Analyze(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze audio: %w", err)
	}
	metrics, err := app.estimator.Score(buf, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to score audio: %w", err)
	}

	return &AnalysisReport{
		File:           path,
		SampleRate:     buf.SampleRate,
		Channels:       buf.Channels(),
		Duration:       buf.Duration().Seconds(),
		Profile:        profile,
		Classification: analysis.Classify(profile),
		Quality:        metrics,
	}, nil
}

// AddReference analyzes a WAV file, stores it as a reference track and
// indexes its feature vectors
func (app *App) AddReference(ctx context.Context, name, genre, path string) (*store.ReferenceTrack, error) {
	if preset.Canonicalize(genre) == "" {
		return nil, audio.NewInputError(audio.ErrCodeInvalidParameter, "reference track requires a genre", audio.ErrInvalidParameter)
	}
	buf, err := wavio.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference audio: %w", err)
	}
	profile, err := app.analyzer.Analyze(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze reference audio: %w", err)
	}

	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	ref := preset.NewReferenceTrack(name, genre, profile)
	if err := app.repo.CreateReference(ctx, ref); err != nil {
		return nil, fmt.Errorf("failed to store reference track: %w", err)
	}

	vectors, err := preset.ReferenceVectors(ref)
	if err != nil {
		return nil, fmt.Errorf("failed to extract reference vectors: %w", err)
	}
	for _, v := range vectors {
		if err := app.index.Index(ctx, v); err != nil {
			return nil, fmt.Errorf("failed to index reference vector: %w", err)
		}
	}

	app.logger.Info("Reference track added", logging.Fields{
		"reference_id": ref.ID,
		"name":         ref.Name,
		"genre":        ref.Genre,
		"vectors":      len(vectors),
	})
	return ref, nil
}

// ListReferences lists stored reference tracks; an empty genre lists all
func (app *App) ListReferences(ctx context.Context, genre string) ([]*store.ReferenceTrack, error) {
	if genre != "" {
		genre = preset.Canonicalize(genre)
	}
	return app.repo.ListReferences(ctx, genre)
}

// SubmitFeedback forwards a rating to the feedback loop
func (app *App) SubmitFeedback(ctx context.Context, sub feedback.Submission) (*store.MixingFeedback, *feedback.Outcome, error) {
	return app.loop.SubmitFeedback(ctx, sub)
}

// FeedbackSummary aggregates the feedback of one genre
func (app *App) FeedbackSummary(ctx context.Context, genre string) ([]feedback.ConfigScore, int, error) {
	return app.loop.Summarize(ctx, preset.Canonicalize(genre))
}

// Presets returns a copy of the active preset table
func (app *App) Presets() preset.Table {
	return app.presets.Clone()
}

// StoredConfigurations lists the stored configurations of a genre in resolution order
func (app *App) StoredConfigurations(ctx context.Context, genre string) ([]*store.MixingConfiguration, error) {
	return app.repo.ListByGenre(ctx, preset.Canonicalize(genre))
}

// Output formats data with the configured formatter and writes it to the
// output file or stdout
func (app *App) Output(data any) error {
	return WriteOutput(data, app.ctx.OutputFormat, app.ctx.OutputFile, app.logger)
}

// WriteOutput formats data and writes it to path, or stdout when path is empty
func WriteOutput(data any, format, path string, logger logging.Logger) error {
	// Create formatter
	var formatter output.Formatter
	switch format {
	case "json":
		formatter = &output.JSONFormatter{}
	case "yaml":
		formatter = &output.YAMLFormatter{}
	case "csv":
		formatter = &output.CSVFormatter{}
	case "table":
		formatter = &output.TableFormatter{}
	default:
		formatter = &output.JSONFormatter{}
	}

	// Format data
	formattedData, err := formatter.Format(data, true)
	if err != nil {
		// JSON rejects infinite values; sanitize and retry
		if strings.Contains(err.Error(), "unsupported value") {
			formattedData, err = formatter.Format(sanitizeForJSON(data), true)
		}
		if err != nil {
			return fmt.Errorf("failed to format output data: %w", err)
		}
	}

	if path == "" {
		_, err = os.Stdout.Write(formattedData)
		return err
	}
	return writeToFile(path, formattedData, logger)
}

// writeToFile writes data to the specified output file
func writeToFile(path string, data []byte, logger logging.Logger) error {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	if logger != nil {
		logger.Debug("Results written to file", logging.Fields{
			"output_file": path,
			"size_bytes":  len(data),
		})
	}
	return nil
}

// MixSummary is the printable form of a mix result
func MixSummary(result *mixing.MixResult) map[string]any {
	summary := map[string]any{
		"mix_id":        result.ID,
		"genre":         result.Configuration.Scope.Genre,
		"config_id":     result.Configuration.ID,
		"config_source": string(result.ConfigSource),
		"signal_mode":   string(result.SignalMode),
		"enhancer":      result.Enhancer,
		"corrections":   len(result.Corrections),
		"sample_rate":   result.Buffer.SampleRate,
		"channels":      result.Buffer.Channels(),
		"duration_s":    result.Buffer.Duration().Seconds(),
		"peak_dbfs":     audio.LinearToDB(audio.Peak(result.Buffer)),
		"rms_dbfs":      audio.LinearToDB(audio.RMS(result.Buffer)),
		"quality":       result.Quality,
		"processing_ms": result.Duration.Milliseconds(),
	}
	if len(result.Warnings) > 0 {
		codes := make([]string, len(result.Warnings))
		for i, w := range result.Warnings {
			codes[i] = w.Code
		}
		summary["warnings"] = codes
	}
	return summary
}

// MixReport is MixSummary with top-level values rounded to the configured precision
func (app *App) MixReport(result *mixing.MixResult) map[string]any {
	summary := MixSummary(result)
	for key, value := range summary {
		if f, ok := value.(float64); ok {
			summary[key] = roundToDecimalPlaces(f, app.config.Output.Precision)
		}
	}
	return summary
}

// roundToDecimalPlaces rounds a float64 to the specified number of decimal places
func roundToDecimalPlaces(value float64, places int) float64 {
	if places < 0 || math.IsInf(value, 0) || math.IsNaN(value) {
		return value
	}
	multiplier := math.Pow(10, float64(places))
	return math.Round(value*multiplier) / multiplier
}

// ErrorSummary is the printable form of a failed mix
func ErrorSummary(err error) map[string]any {
	summary := map[string]any{"error": err.Error()}
	var stageErr *mixing.StageError
	if errors.As(err, &stageErr) {
		summary["state"] = string(stageErr.State)
	}
	if kind := audio.KindOf(err); kind != "" {
		summary["kind"] = string(kind)
	}
	return summary
}

// sanitizeForJSON recursively cleans infinite and NaN values from any data structure
func sanitizeForJSON(data any) any {
	switch v := data.(type) {
	case float64:
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return 0.0
		}
		return v
	case map[string]any:
		result := make(map[string]any)
		for k, val := range v {
			result[k] = sanitizeForJSON(val)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			result[i] = sanitizeForJSON(val)
		}
		return result
	case []float64:
		result := make([]float64, len(v))
		for i, val := range v {
			if !math.IsInf(val, 0) && !math.IsNaN(val) {
				result[i] = val
			}
		}
		return result
	default:
		// Use reflection to handle structs and other complex types
		return sanitizeWithReflection(data)
	}
}

// sanitizeWithReflection uses reflection to sanitize struct fields
func sanitizeWithReflection(data any) any {
	if data == nil {
		return nil
	}

	val := reflect.ValueOf(data)
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil
		}
		val = val.Elem()
	}

	switch val.Kind() {
	case reflect.Struct:
		if t, ok := val.Interface().(time.Time); ok {
			return t
		}
		result := make(map[string]any)
		typ := val.Type()
		for i := 0; i < val.NumField(); i++ {
			field := val.Field(i)
			fieldType := typ.Field(i)

			// Skip unexported fields
			if !field.CanInterface() {
				continue
			}

			// Get JSON tag name or use field name
			jsonTag := fieldType.Tag.Get("json")
			if jsonTag == "-" {
				continue
			}
			fieldName := fieldType.Name
			if name, _, _ := strings.Cut(jsonTag, ","); name != "" {
				fieldName = name
			}

			result[fieldName] = sanitizeForJSON(field.Interface())
		}
		return result
	case reflect.Slice, reflect.Array:
		result := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			result[i] = sanitizeForJSON(val.Index(i).Interface())
		}
		return result
	case reflect.Map:
		result := make(map[string]any)
		for _, key := range val.MapKeys() {
			keyStr := fmt.Sprintf("%v", key.Interface())
			result[keyStr] = sanitizeForJSON(val.MapIndex(key).Interface())
		}
		return result
	case reflect.Float64, reflect.Float32:
		f := val.Float()
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return 0.0
		}
		return f
	default:
		return val.Interface()
	}
}

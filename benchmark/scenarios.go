package benchmark

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-yolo/images"
	"github.com/nvr-ai/go-yolo/inference"
	"github.com/nvr-ai/go-yolo/inference/providers"
	"github.com/nvr-ai/go-yolo/models"
	"github.com/nvr-ai/go-yolo/models/postprocess"
)

// Scenario describes one benchmark configuration: which engine runs
// which model, at which source resolution and format, for how long.
type Scenario struct {
	Name       string               `json:"name" yaml:"name"`
	Engine     inference.EngineType `json:"engine" yaml:"engine"`
	Variant    models.Variant       `json:"variant" yaml:"variant"`
	ModelPath  string               `json:"model_path" yaml:"model_path"`
	Resolution images.Resolution    `json:"resolution" yaml:"resolution"`
	// Format restricts the run to corpus files of one container format.
	// Empty runs every file regardless of format.
	Format images.ImageFormat `json:"format,omitempty" yaml:"format,omitempty"`
	// RawHead marks models exported without the decode layer.
	RawHead     bool               `json:"raw_head,omitempty" yaml:"raw_head,omitempty"`
	Postprocess postprocess.Config `json:"postprocess" yaml:"postprocess"`
	Iterations  int                `json:"iterations" yaml:"iterations"`
	WarmupRuns  int                `json:"warmup_runs" yaml:"warmup_runs"`
}

// Validate reports whether the scenario carries enough to run.
func (s Scenario) Validate() error {
	if s.Name == "" {
		return errors.New("benchmark: scenario name is required")
	}
	if s.ModelPath == "" {
		return errors.Errorf("benchmark: scenario %s has no model path", s.Name)
	}
	if s.Resolution.Pixels.Width <= 0 || s.Resolution.Pixels.Height <= 0 {
		return errors.Errorf("benchmark: scenario %s has no resolution", s.Name)
	}
	return nil
}

// ScenarioSet groups related scenarios under a name for saving and
// loading as one file.
type ScenarioSet struct {
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Scenarios   []Scenario `json:"scenarios" yaml:"scenarios"`
}

// ScenarioBuilder assembles scenarios with a fluent API.
type ScenarioBuilder struct {
	scenario Scenario
}

// NewScenarioBuilder creates a builder seeded with interactive-run
// defaults: ONNX Runtime, yolov5s, 1080p JPEG, 100 iterations.
func NewScenarioBuilder(name string) *ScenarioBuilder {
	res, _ := images.GetResolutionByType(images.ResolutionTypeFHD1080p)
	return &ScenarioBuilder{
		scenario: Scenario{
			Name:        name,
			Engine:      inference.EngineONNXRuntime,
			Variant:     models.VariantYOLOv5s,
			Resolution:  res,
			Format:      images.FormatJPEG,
			Postprocess: postprocess.DefaultConfig(),
			Iterations:  100,
			WarmupRuns:  10,
		},
	}
}

// WithEngine sets the inference engine.
func (sb *ScenarioBuilder) WithEngine(engine inference.EngineType) *ScenarioBuilder {
	sb.scenario.Engine = engine
	return sb
}

// WithModel sets the model variant and weights path.
func (sb *ScenarioBuilder) WithModel(variant models.Variant, modelPath string) *ScenarioBuilder {
	sb.scenario.Variant = variant
	sb.scenario.ModelPath = modelPath
	return sb
}

// WithResolution sets the source frame resolution.
func (sb *ScenarioBuilder) WithResolution(res images.Resolution) *ScenarioBuilder {
	sb.scenario.Resolution = res
	return sb
}

// WithResolutionType looks the named standard up in the resolution
// catalog. Unknown names leave the current resolution unchanged.
func (sb *ScenarioBuilder) WithResolutionType(t images.ResolutionType) *ScenarioBuilder {
	if res, ok := images.GetResolutionByType(t); ok {
		sb.scenario.Resolution = res
	}
	return sb
}

// WithFormat restricts the run to one corpus container format.
func (sb *ScenarioBuilder) WithFormat(format images.ImageFormat) *ScenarioBuilder {
	sb.scenario.Format = format
	return sb
}

// WithRawHead marks the model as exported without its decode layer.
func (sb *ScenarioBuilder) WithRawHead() *ScenarioBuilder {
	sb.scenario.RawHead = true
	return sb
}

// WithPostprocess overrides the suppression settings.
func (sb *ScenarioBuilder) WithPostprocess(config postprocess.Config) *ScenarioBuilder {
	sb.scenario.Postprocess = config
	return sb
}

// WithIterations sets the number of timed iterations.
func (sb *ScenarioBuilder) WithIterations(iterations int) *ScenarioBuilder {
	sb.scenario.Iterations = iterations
	return sb
}

// WithWarmupRuns sets the number of untimed warmup runs.
func (sb *ScenarioBuilder) WithWarmupRuns(runs int) *ScenarioBuilder {
	sb.scenario.WarmupRuns = runs
	return sb
}

// Build returns the assembled scenario.
func (sb *ScenarioBuilder) Build() Scenario {
	return sb.scenario
}

// PredefinedScenarios provides the stock scenario sets.
type PredefinedScenarios struct{}

// QuickScenarios covers the two most common resolutions with short
// runs, for smoke-testing a model before a full sweep.
func (p PredefinedScenarios) QuickScenarios(modelPaths map[models.Variant]string) ScenarioSet {
	set := ScenarioSet{
		Name:        "quick",
		Description: "Short runs at nHD and 1080p for fast validation",
	}
	for _, variant := range sortedVariants(modelPaths) {
		for _, rt := range []images.ResolutionType{images.ResolutionTypeNHD, images.ResolutionTypeFHD1080p} {
			res, _ := images.GetResolutionByType(rt)
			set.Scenarios = append(set.Scenarios, NewScenarioBuilder(
				fmt.Sprintf("quick_%s_%s", variant, res.Pixels)).
				WithModel(variant, modelPaths[variant]).
				WithResolution(res).
				WithIterations(50).
				WithWarmupRuns(5).
				Build())
		}
	}
	return set
}

// ComprehensiveScenarios sweeps every model over every catalog
// resolution and container format.
func (p PredefinedScenarios) ComprehensiveScenarios(modelPaths map[models.Variant]string) ScenarioSet {
	set := ScenarioSet{
		Name:        "comprehensive",
		Description: "Full sweep across models, resolutions, and formats",
	}
	formats := []images.ImageFormat{images.FormatJPEG, images.FormatPNG, images.FormatWebP}
	for _, variant := range sortedVariants(modelPaths) {
		for _, res := range images.GetAllResolutions() {
			for _, format := range formats {
				set.Scenarios = append(set.Scenarios, NewScenarioBuilder(
					fmt.Sprintf("%s_%s_%s", variant, res.Pixels, format)).
					WithModel(variant, modelPaths[variant]).
					WithResolution(res).
					WithFormat(format).
					Build())
			}
		}
	}
	return set
}

// ResolutionComparisonScenarios holds the model fixed and sweeps the
// resolution catalog.
func (p PredefinedScenarios) ResolutionComparisonScenarios(
	variant models.Variant, modelPath string,
) ScenarioSet {
	set := ScenarioSet{
		Name:        "resolution_comparison",
		Description: fmt.Sprintf("Resolution sweep for %s", variant),
	}
	for _, res := range images.GetAllResolutions() {
		set.Scenarios = append(set.Scenarios, NewScenarioBuilder(
			fmt.Sprintf("res_%s_%s", variant, res.Pixels)).
			WithModel(variant, modelPath).
			WithResolution(res).
			Build())
	}
	return set
}

// FormatComparisonScenarios holds model and resolution fixed and sweeps
// the container formats.
func (p PredefinedScenarios) FormatComparisonScenarios(
	variant models.Variant, modelPath string, res images.Resolution,
) ScenarioSet {
	set := ScenarioSet{
		Name:        "format_comparison",
		Description: fmt.Sprintf("Container format sweep for %s at %s", variant, res.Pixels),
	}
	for _, format := range []images.ImageFormat{images.FormatJPEG, images.FormatPNG, images.FormatWebP} {
		set.Scenarios = append(set.Scenarios, NewScenarioBuilder(
			fmt.Sprintf("fmt_%s_%s", variant, format)).
			WithModel(variant, modelPath).
			WithResolution(res).
			WithFormat(format).
			Build())
	}
	return set
}

// ModelComparisonScenarios runs every provided model at 1080p.
func (p PredefinedScenarios) ModelComparisonScenarios(modelPaths map[models.Variant]string) ScenarioSet {
	set := ScenarioSet{
		Name:        "model_comparison",
		Description: "Model sweep at Full HD 1080p",
	}
	for _, variant := range sortedVariants(modelPaths) {
		set.Scenarios = append(set.Scenarios, NewScenarioBuilder(
			fmt.Sprintf("model_%s", variant)).
			WithModel(variant, modelPaths[variant]).
			Build())
	}
	return set
}

// EngineComparisonScenarios runs the same model through each available
// inference engine.
func (p PredefinedScenarios) EngineComparisonScenarios(
	variant models.Variant, modelPath string,
) ScenarioSet {
	set := ScenarioSet{
		Name:        "engine_comparison",
		Description: fmt.Sprintf("Engine sweep for %s", variant),
	}
	for _, engine := range inference.Engines {
		set.Scenarios = append(set.Scenarios, NewScenarioBuilder(
			fmt.Sprintf("engine_%s_%s", engine, variant)).
			WithEngine(engine).
			WithModel(variant, modelPath).
			Build())
	}
	return set
}

func sortedVariants(modelPaths map[models.Variant]string) []models.Variant {
	variants := make([]models.Variant, 0, len(modelPaths))
	for variant := range modelPaths {
		variants = append(variants, variant)
	}
	sort.Slice(variants, func(i, j int) bool { return variants[i] < variants[j] })
	return variants
}

// SaveScenarioSet writes a scenario set to path, as YAML when the
// extension is .yaml or .yml and as indented JSON otherwise.
func SaveScenarioSet(set ScenarioSet, path string) error {
	data, err := marshalByExtension(set, path)
	if err != nil {
		return errors.Wrapf(err, "benchmark: encoding scenario set %s", set.Name)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "benchmark: writing scenario set to %s", path)
	}
	return nil
}

// LoadScenarioSet reads a scenario set saved by SaveScenarioSet and
// validates every scenario in it.
func LoadScenarioSet(path string) (ScenarioSet, error) {
	var set ScenarioSet
	data, err := os.ReadFile(path)
	if err != nil {
		return set, errors.Wrapf(err, "benchmark: reading scenario set from %s", path)
	}
	if err := unmarshalByExtension(data, path, &set); err != nil {
		return set, errors.Wrapf(err, "benchmark: decoding scenario set from %s", path)
	}
	if len(set.Scenarios) == 0 {
		return set, errors.Errorf("benchmark: scenario set %s holds no scenarios", path)
	}
	for _, scenario := range set.Scenarios {
		if err := scenario.Validate(); err != nil {
			return set, err
		}
	}
	return set, nil
}

// Config carries suite-level settings for a benchmark run.
type Config struct {
	OutputDir string `json:"output_dir" yaml:"output_dir"`
	CorpusDir string `json:"corpus_dir" yaml:"corpus_dir"`
	// Provider configures the ONNX Runtime execution provider used for
	// scenarios on the onnxruntime engine.
	Provider       providers.Config          `json:"provider" yaml:"provider"`
	ModelPaths     map[models.Variant]string `json:"model_paths" yaml:"model_paths"`
	TimeoutSeconds int                       `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// DefaultConfig returns settings for a local run against the checked-in
// corpus layout.
func DefaultConfig() Config {
	return Config{
		OutputDir:      "./benchmark_results",
		CorpusDir:      "./test_images",
		Provider:       providers.DefaultConfig(),
		TimeoutSeconds: 3600,
	}
}

// SaveConfig writes a benchmark configuration to path, format selected
// by extension as in SaveScenarioSet.
func SaveConfig(config Config, path string) error {
	data, err := marshalByExtension(config, path)
	if err != nil {
		return errors.Wrap(err, "benchmark: encoding config")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "benchmark: writing config to %s", path)
	}
	return nil
}

// LoadConfig reads a benchmark configuration, filling unset fields from
// DefaultConfig.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return config, errors.Wrapf(err, "benchmark: reading config from %s", path)
	}
	if err := unmarshalByExtension(data, path, &config); err != nil {
		return config, errors.Wrapf(err, "benchmark: decoding config from %s", path)
	}
	if config.OutputDir == "" {
		config.OutputDir = DefaultConfig().OutputDir
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = DefaultConfig().TimeoutSeconds
	}
	return config, nil
}

func marshalByExtension(v interface{}, path string) ([]byte, error) {
	if isYAMLPath(path) {
		return yaml.Marshal(v)
	}
	return json.MarshalIndent(v, "", "  ")
}

func unmarshalByExtension(data []byte, path string, v interface{}) error {
	if isYAMLPath(path) {
		return yaml.Unmarshal(data, v)
	}
	return json.Unmarshal(data, v)
}

func isYAMLPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

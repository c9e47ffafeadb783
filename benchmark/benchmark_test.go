package benchmark

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-yolo/boxes"
	"github.com/nvr-ai/go-yolo/images"
	"github.com/nvr-ai/go-yolo/inference"
	"github.com/nvr-ai/go-yolo/metrics"
	"github.com/nvr-ai/go-yolo/models"
	"github.com/nvr-ai/go-yolo/models/postprocess"
	"github.com/nvr-ai/go-yolo/util"
)

// stubEngine returns canned detections and counts calls.
type stubEngine struct {
	mu      sync.Mutex
	calls   int
	results []postprocess.Result
	err     error
}

func (e *stubEngine) Predict(_ context.Context, _ image.Image) ([]postprocess.Result, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	return e.results, nil
}

func (e *stubEngine) Close() error { return nil }

func stubFactory(engine inference.Engine) EngineFactory {
	return func(Scenario) (inference.Engine, error) { return engine, nil }
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func testCorpus(t *testing.T, n, w, h int) []util.ImageFile {
	t.Helper()
	data := encodePNG(t, w, h)
	files := make([]util.ImageFile, n)
	for i := range files {
		files[i] = util.ImageFile{
			Path:   "frame-" + string(rune('1'+i)) + ".png",
			Data:   data,
			Format: images.FormatPNG,
			Frame:  i + 1,
		}
	}
	return files
}

func testScenario(name string, w, h int) Scenario {
	return Scenario{
		Name:      name,
		Engine:    inference.EngineONNXRuntime,
		Variant:   models.VariantYOLOv5s,
		ModelPath: "model.onnx",
		Resolution: images.Resolution{
			Name:        "test",
			AspectRatio: images.AspectRatio43,
			Pixels:      images.ResolutionPixels{Width: w, Height: h},
		},
		Format:      images.FormatPNG,
		Postprocess: postprocess.DefaultConfig(),
		Iterations:  4,
		WarmupRuns:  1,
	}
}

func TestScenarioBuilderDefaults(t *testing.T) {
	s := NewScenarioBuilder("baseline").Build()

	assert.Equal(t, "baseline", s.Name)
	assert.Equal(t, inference.EngineONNXRuntime, s.Engine)
	assert.Equal(t, models.VariantYOLOv5s, s.Variant)
	assert.Equal(t, 1920, s.Resolution.Pixels.Width)
	assert.Equal(t, 1080, s.Resolution.Pixels.Height)
	assert.Equal(t, images.FormatJPEG, s.Format)
	assert.Equal(t, 100, s.Iterations)
	assert.Equal(t, 10, s.WarmupRuns)
	assert.Equal(t, postprocess.DefaultConfig().ConfThreshold, s.Postprocess.ConfThreshold)
}

func TestScenarioBuilderOverrides(t *testing.T) {
	pp := postprocess.DefaultConfig()
	pp.ConfThreshold = 0.5

	s := NewScenarioBuilder("custom").
		WithEngine(inference.EngineOpenCVDNN).
		WithModel(models.VariantYOLOv3, "/models/yolov3.onnx").
		WithResolutionType(images.ResolutionTypeHD720p).
		WithFormat(images.FormatWebP).
		WithRawHead().
		WithPostprocess(pp).
		WithIterations(25).
		WithWarmupRuns(3).
		Build()

	assert.Equal(t, inference.EngineOpenCVDNN, s.Engine)
	assert.Equal(t, models.VariantYOLOv3, s.Variant)
	assert.Equal(t, "/models/yolov3.onnx", s.ModelPath)
	assert.Equal(t, 1280, s.Resolution.Pixels.Width)
	assert.Equal(t, images.FormatWebP, s.Format)
	assert.True(t, s.RawHead)
	assert.Equal(t, float32(0.5), s.Postprocess.ConfThreshold)
	assert.Equal(t, 25, s.Iterations)
	assert.Equal(t, 3, s.WarmupRuns)
}

func TestScenarioValidate(t *testing.T) {
	valid := testScenario("ok", 640, 480)
	assert.NoError(t, valid.Validate())

	noName := valid
	noName.Name = ""
	assert.ErrorContains(t, noName.Validate(), "name is required")

	noModel := valid
	noModel.ModelPath = ""
	assert.ErrorContains(t, noModel.Validate(), "no model path")

	noRes := valid
	noRes.Resolution.Pixels = images.ResolutionPixels{}
	assert.ErrorContains(t, noRes.Validate(), "no resolution")
}

func TestPredefinedScenarios(t *testing.T) {
	paths := map[models.Variant]string{
		models.VariantYOLOv5s: "/models/yolov5s.onnx",
		models.VariantYOLOv3:  "/models/yolov3.onnx",
	}
	var p PredefinedScenarios

	quick := p.QuickScenarios(paths)
	assert.Len(t, quick.Scenarios, 4)
	// Deterministic ordering: variants sweep in lexical order.
	assert.Contains(t, quick.Scenarios[0].Name, "yolov3")
	assert.Contains(t, quick.Scenarios[2].Name, "yolov5s")
	for _, s := range quick.Scenarios {
		assert.NoError(t, s.Validate())
		assert.Equal(t, 50, s.Iterations)
	}

	comprehensive := p.ComprehensiveScenarios(paths)
	want := len(paths) * len(images.GetAllResolutions()) * 3
	assert.Len(t, comprehensive.Scenarios, want)

	resCmp := p.ResolutionComparisonScenarios(models.VariantYOLOv5s, "/models/yolov5s.onnx")
	assert.Len(t, resCmp.Scenarios, len(images.GetAllResolutions()))

	engCmp := p.EngineComparisonScenarios(models.VariantYOLOv5s, "/models/yolov5s.onnx")
	require.Len(t, engCmp.Scenarios, len(inference.Engines))
	assert.Equal(t, inference.EngineONNXRuntime, engCmp.Scenarios[0].Engine)
	assert.Equal(t, inference.EngineOpenCVDNN, engCmp.Scenarios[1].Engine)
}

func TestScenarioSetRoundTrip(t *testing.T) {
	set := ScenarioSet{
		Name:        "roundtrip",
		Description: "save and load",
		Scenarios:   []Scenario{testScenario("a", 640, 480), testScenario("b", 1280, 720)},
	}

	for _, name := range []string{"set.json", "set.yaml"} {
		path := filepath.Join(t.TempDir(), name)
		require.NoError(t, SaveScenarioSet(set, path))

		loaded, err := LoadScenarioSet(path)
		require.NoError(t, err, name)
		assert.Equal(t, set.Name, loaded.Name)
		require.Len(t, loaded.Scenarios, 2)
		assert.Equal(t, set.Scenarios[0], loaded.Scenarios[0], name)
		assert.Equal(t, set.Scenarios[1], loaded.Scenarios[1], name)
	}
}

func TestLoadScenarioSetRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, SaveScenarioSet(ScenarioSet{Name: "empty"}, path))

	_, err := LoadScenarioSet(path)
	assert.ErrorContains(t, err, "holds no scenarios")
}

func TestConfigRoundTrip(t *testing.T) {
	config := DefaultConfig()
	config.OutputDir = "/tmp/out"
	config.ModelPaths = map[models.Variant]string{models.VariantYOLOv5s: "/models/yolov5s.onnx"}

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, SaveConfig(config, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config.OutputDir, loaded.OutputDir)
	assert.Equal(t, config.ModelPaths, loaded.ModelPaths)
	assert.Equal(t, config.Provider.Backend, loaded.Provider.Backend)
	assert.Equal(t, 3600, loaded.TimeoutSeconds)
}

func TestLatencyStats(t *testing.T) {
	stats := latencyStats([]float64{30, 10, 40, 20})

	assert.InDelta(t, 25.0, stats.AverageMs, 1e-9)
	assert.Equal(t, 10.0, stats.MinMs)
	assert.Equal(t, 40.0, stats.MaxMs)
	assert.InDelta(t, 25.0, stats.P50Ms, 1e-9)
	assert.InDelta(t, 38.5, stats.P95Ms, 1e-9)
	assert.InDelta(t, 39.7, stats.P99Ms, 1e-9)

	assert.Equal(t, LatencyMetrics{}, latencyStats(nil))
}

func TestPercentile(t *testing.T) {
	assert.Equal(t, 0.0, percentile(nil, 0.5))
	assert.Equal(t, 5.0, percentile([]float64{5}, 0.95))
	assert.Equal(t, 9.0, percentile([]float64{1, 3, 9}, 1.0))
	assert.InDelta(t, 3.0, percentile([]float64{1, 3, 9}, 0.5), 1e-9)
	assert.InDelta(t, 2.0, percentile([]float64{1, 3, 9}, 0.25), 1e-9)
}

func TestRunScenarioCollectsMetrics(t *testing.T) {
	engine := &stubEngine{results: []postprocess.Result{
		{Box: boxes.Box{10, 10, 50, 60}, Score: 0.9, Class: 0},
		{Box: boxes.Box{100, 80, 180, 160}, Score: 0.8, Class: 1},
	}}
	suite := NewSuite(stubFactory(engine), t.TempDir())
	suite.SetCorpus(testCorpus(t, 2, 64, 48))

	result, err := suite.RunScenario(context.Background(), testScenario("collect", 64, 48))
	require.NoError(t, err)

	assert.Equal(t, 4, result.Iterations)
	assert.Zero(t, result.ErrorRate)
	assert.Greater(t, result.FramesPerSecond, 0.0)
	assert.Equal(t, 8, result.DetectionCount)
	assert.Greater(t, result.SceneDensity, 0.0)
	assert.Greater(t, result.Memory.SysBytes, uint64(0))
	assert.Greater(t, result.CPU.NumCPU, 0)
	require.NotNil(t, result.ShapeStats)
	assert.Equal(t, int64(4), result.ShapeStats.TotalInferences)
	assert.Nil(t, result.Accuracy)

	// 1 warmup + 4 timed iterations.
	assert.Equal(t, 5, engine.calls)
}

func TestRunScenarioEmptyCorpus(t *testing.T) {
	suite := NewSuite(stubFactory(&stubEngine{}), t.TempDir())

	_, err := suite.RunScenario(context.Background(), testScenario("empty", 64, 48))
	assert.ErrorContains(t, err, "corpus is empty")
}

func TestRunScenarioFormatFilter(t *testing.T) {
	suite := NewSuite(stubFactory(&stubEngine{}), t.TempDir())
	suite.SetCorpus(testCorpus(t, 1, 64, 48))

	scenario := testScenario("webp_only", 64, 48)
	scenario.Format = images.FormatWebP

	_, err := suite.RunScenario(context.Background(), scenario)
	assert.ErrorContains(t, err, "no webp images")
}

func TestRunScenarioCanceledContext(t *testing.T) {
	engine := &stubEngine{}
	suite := NewSuite(stubFactory(engine), t.TempDir())
	suite.SetCorpus(testCorpus(t, 1, 64, 48))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := suite.RunScenario(ctx, testScenario("canceled", 64, 48))
	require.NoError(t, err)
	assert.Zero(t, result.Iterations)
	assert.Zero(t, engine.calls)
}

func TestSetGroundTruthLengthMismatch(t *testing.T) {
	suite := NewSuite(stubFactory(&stubEngine{}), t.TempDir())
	suite.SetCorpus(testCorpus(t, 2, 64, 48))

	err := suite.SetGroundTruth([][]metrics.GroundTruth{{}})
	assert.ErrorContains(t, err, "2 corpus images")
}

func TestRunScenarioAccuracyPass(t *testing.T) {
	detections := []postprocess.Result{
		{Box: boxes.Box{10, 10, 50, 60}, Score: 0.9, Class: 0},
		{Box: boxes.Box{100, 80, 180, 160}, Score: 0.8, Class: 1},
	}
	engine := &stubEngine{results: detections}
	suite := NewSuite(stubFactory(engine), t.TempDir())
	suite.SetCorpus(testCorpus(t, 2, 64, 48))

	truths := make([][]metrics.GroundTruth, 2)
	for i := range truths {
		for _, d := range detections {
			truths[i] = append(truths[i], metrics.GroundTruth{Box: d.Box, Class: d.Class})
		}
	}
	require.NoError(t, suite.SetGroundTruth(truths))

	result, err := suite.RunScenario(context.Background(), testScenario("accuracy", 64, 48))
	require.NoError(t, err)

	require.NotNil(t, result.Accuracy)
	// 101-point sampling reads the closing sentinel at recall 1.0, so a
	// perfect detector tops out at 0.995 rather than 1.0.
	assert.InDelta(t, 0.995, result.Accuracy.MAP50, 1e-6)
	assert.InDelta(t, 0.995, result.Accuracy.MAP, 1e-6)
	assert.Equal(t, 2, result.Accuracy.EvaluatedImages)
	assert.Equal(t, 4, result.Accuracy.GroundTruths)
}

func TestRunAllScenariosSavesResults(t *testing.T) {
	outputDir := t.TempDir()
	engine := &stubEngine{results: []postprocess.Result{
		{Box: boxes.Box{10, 10, 50, 60}, Score: 0.9, Class: 0},
	}}
	factory := func(s Scenario) (inference.Engine, error) {
		if s.Name == "broken" {
			return nil, assert.AnError
		}
		return engine, nil
	}

	suite := NewSuite(factory, outputDir)
	suite.SetCorpus(testCorpus(t, 1, 64, 48))
	suite.AddScenario(testScenario("works", 64, 48))
	suite.AddScenario(testScenario("broken", 64, 48))

	require.NoError(t, suite.RunAllScenarios(context.Background()))
	require.Len(t, suite.Results(), 1)
	assert.Equal(t, "works", suite.Results()[0].Scenario.Name)

	entries, err := os.ReadDir(outputDir)
	require.NoError(t, err)

	var jsonFound, csvFound bool
	for _, entry := range entries {
		switch filepath.Ext(entry.Name()) {
		case ".json":
			jsonFound = true
		case ".csv":
			csvFound = true
			data, err := os.ReadFile(filepath.Join(outputDir, entry.Name()))
			require.NoError(t, err)
			assert.Contains(t, string(data), "Scenario,Engine,Variant")
			assert.Contains(t, string(data), "works")
		}
	}
	assert.True(t, jsonFound, "timestamped JSON report")
	assert.True(t, csvFound, "CSV summary")
}

func TestRunAllScenariosAllFailed(t *testing.T) {
	factory := func(Scenario) (inference.Engine, error) { return nil, assert.AnError }
	suite := NewSuite(factory, t.TempDir())
	suite.SetCorpus(testCorpus(t, 1, 64, 48))
	suite.AddScenarioSet(ScenarioSet{Scenarios: []Scenario{testScenario("a", 64, 48)}})

	err := suite.RunAllScenarios(context.Background())
	assert.ErrorContains(t, err, "scenarios failed")
}

// Package integration holds benchmarks that need a real model and
// corpus on disk. Set YOLO_MODEL_PATH and YOLO_CORPUS_DIR to run them;
// they skip otherwise so the package stays safe for bare CI runners.
package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nvr-ai/go-yolo/benchmark"
	"github.com/nvr-ai/go-yolo/benchmark/engines"
	"github.com/nvr-ai/go-yolo/inference"
	"github.com/nvr-ai/go-yolo/inference/providers"
	"github.com/nvr-ai/go-yolo/models"
)

func requireAssets(b *testing.B) (modelPath, corpusDir string) {
	b.Helper()
	modelPath = os.Getenv("YOLO_MODEL_PATH")
	corpusDir = os.Getenv("YOLO_CORPUS_DIR")
	if modelPath == "" || corpusDir == "" {
		b.Skip("set YOLO_MODEL_PATH and YOLO_CORPUS_DIR to run integration benchmarks")
	}
	return modelPath, corpusDir
}

func runSet(b *testing.B, set benchmark.ScenarioSet, corpusDir string) {
	b.Helper()

	suite := benchmark.NewSuite(engines.ForScenario(providers.DefaultConfig()), b.TempDir())
	if err := suite.LoadCorpus(corpusDir); err != nil {
		b.Fatalf("loading corpus: %v", err)
	}
	for _, scenario := range set.Scenarios {
		scenario.Iterations = 10
		scenario.WarmupRuns = 2
		suite.AddScenario(scenario)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := suite.RunAllScenarios(ctx); err != nil {
			b.Fatalf("benchmark run: %v", err)
		}
	}
	b.StopTimer()

	for _, r := range suite.Results() {
		b.ReportMetric(r.FramesPerSecond, "fps")
		b.Logf("%s: %.2f FPS, %.2f ms avg, %d detections",
			r.Scenario.Name, r.FramesPerSecond, r.Latency.AverageMs, r.DetectionCount)
	}
}

func BenchmarkQuickScenarios(b *testing.B) {
	modelPath, corpusDir := requireAssets(b)

	var p benchmark.PredefinedScenarios
	set := p.QuickScenarios(map[models.Variant]string{models.VariantYOLOv5s: modelPath})
	runSet(b, set, corpusDir)
}

func BenchmarkResolutionSweep(b *testing.B) {
	modelPath, corpusDir := requireAssets(b)

	var p benchmark.PredefinedScenarios
	set := p.ResolutionComparisonScenarios(models.VariantYOLOv5s, modelPath)
	runSet(b, set, corpusDir)
}

func BenchmarkEngineComparison(b *testing.B) {
	modelPath, corpusDir := requireAssets(b)

	var p benchmark.PredefinedScenarios
	set := p.EngineComparisonScenarios(models.VariantYOLOv5s, modelPath)
	runSet(b, set, corpusDir)
}

func BenchmarkSingleScenario(b *testing.B) {
	modelPath, corpusDir := requireAssets(b)

	scenario := benchmark.NewScenarioBuilder("single").
		WithEngine(inference.EngineONNXRuntime).
		WithModel(models.VariantYOLOv5s, modelPath).
		WithIterations(10).
		WithWarmupRuns(2).
		Build()

	suite := benchmark.NewSuite(engines.ForScenario(providers.DefaultConfig()), b.TempDir())
	if err := suite.LoadCorpus(corpusDir); err != nil {
		b.Fatalf("loading corpus: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		result, err := suite.RunScenario(context.Background(), scenario)
		if err != nil {
			b.Fatalf("scenario: %v", err)
		}
		b.ReportMetric(result.FramesPerSecond, "fps")
	}
}

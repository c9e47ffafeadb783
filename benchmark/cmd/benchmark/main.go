// Command benchmark runs detector performance sweeps from the command
// line: pick a model and a stock scenario set, or load a saved one, and
// the suite times it over an image corpus.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"slices"
	"sort"
	"time"

	"github.com/nvr-ai/go-yolo/benchmark"
	"github.com/nvr-ai/go-yolo/benchmark/engines"
	"github.com/nvr-ai/go-yolo/images"
	"github.com/nvr-ai/go-yolo/inference"
	"github.com/nvr-ai/go-yolo/inference/providers"
	"github.com/nvr-ai/go-yolo/models"
	"github.com/nvr-ai/go-yolo/profiler"
)

var (
	configPath    = flag.String("config", "", "Path to benchmark configuration file (JSON or YAML)")
	scenariosPath = flag.String("scenarios", "", "Path to a saved scenario set (JSON or YAML)")
	outputDir     = flag.String("output", "", "Output directory for results (overrides config)")
	corpusDir     = flag.String("images", "", "Directory with benchmark images (overrides config)")
	modelPath     = flag.String("model", "", "Path to ONNX model file")
	variantName   = flag.String("variant", string(models.VariantYOLOv5s), "Model variant for -model")
	engineName    = flag.String("engine", string(inference.EngineONNXRuntime), "Inference engine for generated sets: onnxruntime or opencv-dnn")
	backendName   = flag.String("backend", "", "Execution provider backend: cpu, cuda, coreml, openvino, dnnl")
	quick         = flag.Bool("quick", false, "Run the quick scenario set")
	comprehensive = flag.Bool("comprehensive", false, "Run the comprehensive scenario set")
	resolutions   = flag.Bool("resolutions", false, "Run the resolution comparison set")
	formats       = flag.Bool("formats", false, "Run the format comparison set")
	compareEng    = flag.Bool("engines", false, "Run the engine comparison set")
	withProfiler  = flag.Bool("profile", false, "Emit runtime profiler reports during the run")
	timeout       = flag.Int("timeout", 0, "Benchmark timeout in seconds (overrides config)")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Detection benchmark runner\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\nOptions:\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprint(os.Stderr, `
Examples:
  # Quick sweep of one model
  benchmark -model ./models/yolov5s.onnx -quick -images ./corpus

  # Resolution comparison on CUDA
  benchmark -model ./models/yolov5s.onnx -resolutions -backend cuda -images ./corpus

  # ONNX Runtime vs OpenCV DNN
  benchmark -model ./models/yolov5s.onnx -engines -images ./corpus

  # Run a saved scenario set with a config file
  benchmark -scenarios ./scenarios/nightly.yaml -config ./benchmark.yaml
`)
	}
}

func main() {
	flag.Parse()

	engine := inference.EngineType(*engineName)
	if !slices.Contains(inference.Engines, engine) {
		log.Fatalf("unknown engine %q, expected one of %v", *engineName, inference.Engines)
	}

	config := benchmark.DefaultConfig()
	if *configPath != "" {
		loaded, err := benchmark.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("loading config: %v", err)
		}
		config = loaded
	}
	if *outputDir != "" {
		config.OutputDir = *outputDir
	}
	if *corpusDir != "" {
		config.CorpusDir = *corpusDir
	}
	if *timeout > 0 {
		config.TimeoutSeconds = *timeout
	}
	if *backendName != "" {
		config.Provider.Backend = providers.ProviderBackend(*backendName)
	}

	suite := benchmark.NewSuite(engines.ForScenario(config.Provider), config.OutputDir)
	if err := suite.LoadCorpus(config.CorpusDir); err != nil {
		log.Fatalf("loading corpus: %v", err)
	}

	if err := queueScenarios(suite, config, engine); err != nil {
		log.Fatalf("building scenarios: %v", err)
	}
	if len(suite.Scenarios()) == 0 {
		flag.Usage()
		log.Fatal("nothing to run: pass -scenarios or one of -quick, -comprehensive, -resolutions, -formats, -engines with a model")
	}

	if *withProfiler {
		rp := profiler.NewRuntimeProfiler(profiler.ProfilingOptions{})
		rp.Start()
		defer rp.Stop()
		suite.SetProfiler(rp)
	}

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(config.TimeoutSeconds)*time.Second)
	defer cancel()

	fmt.Printf("Queued %d scenarios, corpus %s, output %s\n",
		len(suite.Scenarios()), config.CorpusDir, config.OutputDir)
	if err := suite.RunAllScenarios(ctx); err != nil {
		log.Fatalf("benchmark run: %v", err)
	}

	printSummary(suite.Results())
}

// queueScenarios fills the suite from the -scenarios file and the
// generator flags. The -engine flag applies to generated sets only; a
// saved set and the engine comparison keep their own engines.
func queueScenarios(suite *benchmark.Suite, config benchmark.Config, engine inference.EngineType) error {
	if *scenariosPath != "" {
		set, err := benchmark.LoadScenarioSet(*scenariosPath)
		if err != nil {
			return err
		}
		suite.AddScenarioSet(set)
	}

	modelPaths := config.ModelPaths
	if *modelPath != "" {
		modelPaths = map[models.Variant]string{models.Variant(*variantName): *modelPath}
	}
	if len(modelPaths) == 0 {
		return nil
	}

	addWithEngine := func(set benchmark.ScenarioSet) {
		for i := range set.Scenarios {
			set.Scenarios[i].Engine = engine
		}
		suite.AddScenarioSet(set)
	}

	var p benchmark.PredefinedScenarios
	if *quick {
		addWithEngine(p.QuickScenarios(modelPaths))
	}
	if *comprehensive {
		addWithEngine(p.ComprehensiveScenarios(modelPaths))
	}

	variants := make([]models.Variant, 0, len(modelPaths))
	for v := range modelPaths {
		variants = append(variants, v)
	}
	sort.Slice(variants, func(i, j int) bool { return variants[i] < variants[j] })

	for _, v := range variants {
		if *resolutions {
			addWithEngine(p.ResolutionComparisonScenarios(v, modelPaths[v]))
		}
		if *formats {
			res, _ := images.GetResolutionByType(images.ResolutionTypeFHD1080p)
			addWithEngine(p.FormatComparisonScenarios(v, modelPaths[v], res))
		}
		if *compareEng {
			suite.AddScenarioSet(p.EngineComparisonScenarios(v, modelPaths[v]))
		}
	}
	return nil
}

func printSummary(results []benchmark.PerformanceMetrics) {
	if len(results) == 0 {
		return
	}

	fmt.Println("\n=== BENCHMARK RESULTS SUMMARY ===")
	best := results[0]
	for _, r := range results {
		fmt.Printf("%-42s %8.2f FPS  %8.2f ms avg  %6d detections",
			r.Scenario.Name, r.FramesPerSecond, r.Latency.AverageMs, r.DetectionCount)
		if r.Accuracy != nil {
			fmt.Printf("  mAP50 %.3f", r.Accuracy.MAP50)
		}
		fmt.Println()
		if r.FramesPerSecond > best.FramesPerSecond {
			best = r
		}
	}
	fmt.Printf("\nBest throughput: %s (%.2f FPS)\n", best.Scenario.Name, best.FramesPerSecond)
}

package benchmark

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-yolo/images"
	"github.com/nvr-ai/go-yolo/inference"
	"github.com/nvr-ai/go-yolo/inference/providers"
	"github.com/nvr-ai/go-yolo/metrics"
	"github.com/nvr-ai/go-yolo/profiler"
	"github.com/nvr-ai/go-yolo/util"
)

// EngineFactory builds the engine for one scenario. The suite owns the
// returned engine for the duration of the run and closes it afterwards.
type EngineFactory func(scenario Scenario) (inference.Engine, error)

// Suite manages and executes benchmark scenarios.
type Suite struct {
	mu        sync.RWMutex
	factory   EngineFactory
	outputDir string
	scenarios []Scenario
	corpus    []util.ImageFile
	truths    [][]metrics.GroundTruth
	results   []PerformanceMetrics
	profiler  *profiler.RuntimeProfiler
	density   inference.DensityEstimator
}

// NewSuite creates a suite that builds engines with factory and writes
// reports under outputDir.
func NewSuite(factory EngineFactory, outputDir string) *Suite {
	return &Suite{
		factory:   factory,
		outputDir: outputDir,
		density:   inference.NewDensityEstimator(inference.DefaultDensityEstimationConfig()),
	}
}

// SetProfiler attaches a runtime profiler; every timed inference is then
// recorded as the "inference" operation.
func (s *Suite) SetProfiler(rp *profiler.RuntimeProfiler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiler = rp
}

// AddScenario queues a scenario for RunAllScenarios.
func (s *Suite) AddScenario(scenario Scenario) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenarios = append(s.scenarios, scenario)
}

// AddScenarioSet queues every scenario in the set.
func (s *Suite) AddScenarioSet(set ScenarioSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenarios = append(s.scenarios, set.Scenarios...)
}

// Scenarios returns the queued scenarios.
func (s *Suite) Scenarios() []Scenario {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Scenario(nil), s.scenarios...)
}

// LoadCorpus reads the benchmark footage from dir. Any ground truth set
// earlier is discarded since its indices no longer correspond.
func (s *Suite) LoadCorpus(dir string) error {
	files, err := util.LoadDirectoryImageFiles(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.Errorf("benchmark: no readable images under %s", dir)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corpus = files
	s.truths = nil
	return nil
}

// SetCorpus installs an in-memory corpus, mainly for tests.
func (s *Suite) SetCorpus(files []util.ImageFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corpus = files
	s.truths = nil
}

// SetGroundTruth enables the accuracy pass. truths must be parallel to
// the corpus, one slice per image, with boxes in that image's native
// pixel space.
func (s *Suite) SetGroundTruth(truths [][]metrics.GroundTruth) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(truths) != len(s.corpus) {
		return errors.Errorf("benchmark: %d ground truth entries for %d corpus images",
			len(truths), len(s.corpus))
	}
	s.truths = truths
	return nil
}

// RunScenario executes a single benchmark scenario: warmup, timed
// iterations over the corpus at the scenario's resolution, then an
// accuracy pass when ground truth is present. Canceling ctx truncates
// the run and keeps the metrics gathered so far.
func (s *Suite) RunScenario(ctx context.Context, scenario Scenario) (*PerformanceMetrics, error) {
	if err := scenario.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	corpus := s.corpus
	truths := s.truths
	rp := s.profiler
	s.mu.RUnlock()

	if len(corpus) == 0 {
		return nil, errors.New("benchmark: corpus is empty, call LoadCorpus first")
	}
	frames := framesForFormat(corpus, scenario.Format)
	if len(frames) == 0 {
		return nil, errors.Errorf("benchmark: corpus holds no %s images for scenario %s",
			scenario.Format, scenario.Name)
	}

	engine, err := s.factory(scenario)
	if err != nil {
		return nil, errors.Wrapf(err, "benchmark: building engine for scenario %s", scenario.Name)
	}
	defer engine.Close()

	iterations := scenario.Iterations
	if iterations <= 0 {
		iterations = 1
	}
	width := scenario.Resolution.Pixels.Width
	height := scenario.Resolution.Pixels.Height

	fmt.Printf("Running scenario: %s\n", scenario.Name)
	fmt.Printf("  Engine: %s, Model: %s, Resolution: %s, Iterations: %d\n",
		scenario.Engine, scenario.Variant, scenario.Resolution.Pixels, iterations)

	// Untimed warmup settles allocator and provider caches.
	for i := 0; i < scenario.WarmupRuns; i++ {
		if ctx.Err() != nil {
			break
		}
		file := frames[i%len(frames)]
		img, err := prepareFrame(file, width, height)
		if err != nil {
			continue
		}
		_, _ = engine.Predict(ctx, img)
	}

	runtime.GC()
	var memBefore runtime.MemStats
	runtime.ReadMemStats(&memBefore)

	shapes := providers.NewDynamicShapeOptimizer(nil)
	latencies := make([]float64, 0, iterations)
	var decodeTotal, inferTotal time.Duration
	var detections, attempted, failed int
	var densitySum float64
	var densityRuns int

	start := time.Now()
	for i := 0; i < iterations; i++ {
		if ctx.Err() != nil {
			break
		}
		attempted++
		file := frames[i%len(frames)]

		decodeStart := time.Now()
		img, err := prepareFrame(file, width, height)
		decodeDur := time.Since(decodeStart)
		if err != nil {
			failed++
			continue
		}

		var done func()
		if rp != nil {
			done = rp.StartOperation("inference")
		}
		inferStart := time.Now()
		results, err := engine.Predict(ctx, img)
		inferDur := time.Since(inferStart)
		if done != nil {
			done()
		}
		if err != nil {
			failed++
			continue
		}

		decodeTotal += decodeDur
		inferTotal += inferDur
		ms := float64(inferDur.Microseconds()) / 1000.0
		latencies = append(latencies, ms)
		shapes.ObserveShape("frames", []int64{1, 3, int64(height), int64(width)}, ms)

		detections += len(results)
		if score, err := s.density.EstimateDensity(results); err == nil {
			densitySum += float64(score)
			densityRuns++
		}
		if rp != nil {
			rp.RecordMetric("detections_per_frame", float64(len(results)))
		}
	}
	total := time.Since(start)

	var memAfter runtime.MemStats
	runtime.ReadMemStats(&memAfter)

	result := &PerformanceMetrics{
		Scenario:          scenario,
		Timestamp:         time.Now(),
		Iterations:        attempted,
		TotalDuration:     total,
		DecodeDuration:    decodeTotal,
		InferenceDuration: inferTotal,
		Latency:           latencyStats(latencies),
		Memory: MemoryMetrics{
			AllocBytes:      memAfter.Alloc,
			TotalAllocBytes: memAfter.TotalAlloc - memBefore.TotalAlloc,
			SysBytes:        memAfter.Sys,
			NumGC:           memAfter.NumGC - memBefore.NumGC,
			HeapAllocBytes:  memAfter.HeapAlloc,
			HeapSysBytes:    memAfter.HeapSys,
		},
		CPU: CPUMetrics{
			NumCPU:     runtime.NumCPU(),
			Goroutines: runtime.NumGoroutine(),
		},
		DetectionCount: detections,
	}
	if total > 0 {
		result.FramesPerSecond = float64(len(latencies)) / total.Seconds()
	}
	if attempted > 0 {
		result.ErrorRate = float64(failed) / float64(attempted)
	}
	if densityRuns > 0 {
		result.SceneDensity = densitySum / float64(densityRuns)
	}
	if stats := shapes.Stats(); stats.TotalInferences > 0 {
		result.ShapeStats = &stats
	}

	if len(truths) > 0 && ctx.Err() == nil {
		accuracy, err := s.accuracyPass(ctx, engine, corpus, truths)
		if err != nil {
			return nil, errors.Wrapf(err, "benchmark: accuracy pass for scenario %s", scenario.Name)
		}
		result.Accuracy = accuracy
	}

	fmt.Printf("  Completed %d/%d iterations in %v (%.2f FPS, %d detections)\n",
		attempted-failed, iterations, total.Truncate(time.Millisecond),
		result.FramesPerSecond, detections)

	return result, nil
}

// accuracyPass scores the engine against ground truth. Each corpus image
// is evaluated exactly once at its native size so predictions land in
// the same pixel space as the annotations.
func (s *Suite) accuracyPass(
	ctx context.Context,
	engine inference.Engine,
	corpus []util.ImageFile,
	truths [][]metrics.GroundTruth,
) (*AccuracyMetrics, error) {
	thresholds := metrics.COCOIoUThresholds()

	var tp [][]bool
	var conf []float32
	var predCls []int
	var targetCls []int
	evaluated := 0

	for i, file := range corpus {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := file.Decode()
		if err != nil {
			return nil, errors.Wrapf(err, "decoding %s", file.Path)
		}
		results, err := engine.Predict(ctx, img)
		if err != nil {
			return nil, errors.Wrapf(err, "predicting %s", file.Path)
		}
		rows, err := metrics.MatchDetections(results, truths[i], thresholds)
		if err != nil {
			return nil, err
		}
		tp = append(tp, rows...)
		for _, r := range results {
			conf = append(conf, r.Score)
			predCls = append(predCls, r.Class)
		}
		for _, gt := range truths[i] {
			targetCls = append(targetCls, gt.Class)
		}
		evaluated++
	}

	if len(targetCls) == 0 {
		return nil, errors.New("ground truth holds no boxes")
	}
	res, err := metrics.APPerClass(tp, conf, predCls, targetCls, metrics.MethodInterp)
	if err != nil {
		return nil, err
	}
	report := metrics.NewReport(res, nil)
	return &AccuracyMetrics{
		MAP50:           report.MAP50,
		MAP:             report.MAP,
		MeanPrecision:   report.MeanPrecision,
		MeanRecall:      report.MeanRecall,
		Fitness:         report.Fitness,
		EvaluatedImages: evaluated,
		GroundTruths:    len(targetCls),
	}, nil
}

// RunAllScenarios executes every queued scenario and saves the results.
// A failing scenario is reported and skipped; the run only errors when
// nothing completed.
func (s *Suite) RunAllScenarios(ctx context.Context) error {
	scenarios := s.Scenarios()
	if len(scenarios) == 0 {
		return errors.New("benchmark: no scenarios queued")
	}

	completed := 0
	for i, scenario := range scenarios {
		fmt.Printf("\n[%d/%d] ", i+1, len(scenarios))
		result, err := s.RunScenario(ctx, scenario)
		if err != nil {
			fmt.Printf("Scenario %s failed: %v\n", scenario.Name, err)
			continue
		}
		s.mu.Lock()
		s.results = append(s.results, *result)
		s.mu.Unlock()
		completed++
	}

	if completed == 0 {
		return errors.Errorf("benchmark: all %d scenarios failed", len(scenarios))
	}
	return s.SaveResults()
}

// Results returns the metrics collected so far.
func (s *Suite) Results() []PerformanceMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]PerformanceMetrics(nil), s.results...)
}

// SaveResults writes the collected metrics as a timestamped JSON report
// plus a CSV summary under the suite's output directory.
func (s *Suite) SaveResults() error {
	results := s.Results()
	if len(results) == 0 {
		return errors.New("benchmark: no results to save")
	}
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return errors.Wrapf(err, "benchmark: creating output directory %s", s.outputDir)
	}

	stamp := time.Now().Format("20060102_150405")

	jsonPath := filepath.Join(s.outputDir, fmt.Sprintf("benchmark_results_%s.json", stamp))
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return errors.Wrap(err, "benchmark: encoding results")
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return errors.Wrapf(err, "benchmark: writing %s", jsonPath)
	}

	csvPath := filepath.Join(s.outputDir, fmt.Sprintf("benchmark_summary_%s.csv", stamp))
	if err := writeSummaryCSV(csvPath, results); err != nil {
		return err
	}

	fmt.Printf("\nResults saved to %s and %s\n", jsonPath, csvPath)
	return nil
}

func writeSummaryCSV(path string, results []PerformanceMetrics) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "benchmark: creating %s", path)
	}
	defer f.Close()

	fmt.Fprintln(f, "Scenario,Engine,Variant,Resolution,Format,FPS,Avg_Latency_ms,P95_Latency_ms,Memory_MB,Detections,Error_Rate,mAP50")
	for _, r := range results {
		mAP := ""
		if r.Accuracy != nil {
			mAP = fmt.Sprintf("%.4f", r.Accuracy.MAP50)
		}
		fmt.Fprintf(f, "%s,%s,%s,%s,%s,%.2f,%.2f,%.2f,%.1f,%d,%.4f,%s\n",
			r.Scenario.Name,
			r.Scenario.Engine,
			r.Scenario.Variant,
			r.Scenario.Resolution.Pixels,
			r.Scenario.Format,
			r.FramesPerSecond,
			r.Latency.AverageMs,
			r.Latency.P95Ms,
			float64(r.Memory.HeapAllocBytes)/(1024*1024),
			r.DetectionCount,
			r.ErrorRate,
			mAP)
	}
	return nil
}

// prepareFrame delivers one corpus frame at the scenario resolution.
// Frames already at size decode directly; everything else rides the VIPS
// thumbnail path, which decodes and scales in one step.
func prepareFrame(file util.ImageFile, width, height int) (image.Image, error) {
	w, h, err := images.DecodeBounds(file.Data, file.Format)
	if err != nil {
		return nil, errors.Wrapf(err, "benchmark: reading header of %s", file.Path)
	}
	if w == width && h == height {
		return file.Decode()
	}
	return images.ResizeImageToImage(file.Data, width, height, file.Format)
}

// framesForFormat filters the corpus by container format. An empty
// format keeps everything.
func framesForFormat(corpus []util.ImageFile, format images.ImageFormat) []util.ImageFile {
	if format == images.FormatUnknown {
		return corpus
	}
	var frames []util.ImageFile
	for _, file := range corpus {
		if file.Format == format {
			frames = append(frames, file)
		}
	}
	return frames
}

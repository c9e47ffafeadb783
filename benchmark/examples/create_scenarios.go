// Example program that generates the stock scenario sets as files the
// benchmark command can load with -scenarios.
package main

import (
	"fmt"
	"log"

	"github.com/nvr-ai/go-yolo/benchmark"
	"github.com/nvr-ai/go-yolo/images"
	"github.com/nvr-ai/go-yolo/inference"
	"github.com/nvr-ai/go-yolo/models"
)

func main() {
	var predefined benchmark.PredefinedScenarios

	modelPaths := map[models.Variant]string{
		models.VariantYOLOv5s: "../data/yolov5s.onnx",
	}

	save := func(set benchmark.ScenarioSet, path string) {
		if err := benchmark.SaveScenarioSet(set, path); err != nil {
			log.Fatalf("Failed to save %s: %v", path, err)
		}
		fmt.Printf("Saved %d scenarios to %s\n", len(set.Scenarios), path)
	}

	save(predefined.ComprehensiveScenarios(modelPaths), "comprehensive_scenarios.json")
	save(predefined.QuickScenarios(modelPaths), "quick_scenarios.yaml")
	save(predefined.ResolutionComparisonScenarios(
		models.VariantYOLOv5s, "../data/yolov5s.onnx"), "resolution_scenarios.yaml")

	res, _ := images.GetResolutionByType(images.ResolutionTypeHD720p)
	save(predefined.FormatComparisonScenarios(
		models.VariantYOLOv5s, "../data/yolov5s.onnx", res), "format_scenarios.yaml")

	save(predefined.EngineComparisonScenarios(
		models.VariantYOLOv5s, "../data/yolov5s.onnx"), "engine_scenarios.yaml")

	custom := benchmark.NewScenarioBuilder("custom_high_res_webp").
		WithModel(models.VariantYOLOv5s, "../data/yolov5s.onnx").
		WithEngine(inference.EngineOpenCVDNN).
		WithResolutionType(images.ResolutionTypeQHD1440p).
		WithFormat(images.FormatWebP).
		WithIterations(50).
		WithWarmupRuns(5).
		Build()

	save(benchmark.ScenarioSet{
		Name:        "custom",
		Description: "High resolution WebP frames through OpenCV DNN",
		Scenarios:   []benchmark.Scenario{custom},
	}, "custom_scenarios.yaml")

	fmt.Println("All scenario files created.")
}

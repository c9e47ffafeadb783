package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-yolo/models"
	"github.com/nvr-ai/go-yolo/onnx"
	"github.com/nvr-ai/go-yolo/profiler"
)

const (
	// deviceID is the ID of the video capture device to use.
	deviceID = 0
	// Default ONNX model path
	DefaultModelPath = "yolov5s.onnx"
	// Default output directory for saved frames
	DefaultOutputDir = "detections"
	// saveCooldown throttles how often annotated frames are written to disk.
	saveCooldown = 2 * time.Second
)

// Supported file extensions
var (
	supportedVideoExtensions = []string{".mp4", ".avi", ".mov"}
	supportedImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp"}
)

// InputType represents the type of input being processed
type InputType int

const (
	InputCamera InputType = iota
	InputVideo
	InputImage
)

// InputConfig holds the input configuration
type InputConfig struct {
	Type     InputType
	Path     string
	DeviceID int
}

func main() {
	// Parse command line arguments
	var (
		modelPath         string
		confidence        float64
		iou               float64
		inputSize         int
		classList         string
		outputDir         string
		saveFrames        bool
		videoPath         string
		imagePath         string
		showVisualization bool
	)
	flag.StringVar(&modelPath, "model", DefaultModelPath, "Path to YOLO ONNX model file")
	flag.Float64Var(&confidence, "confidence", 0.25, "Detection confidence threshold")
	flag.Float64Var(&iou, "iou", 0.45, "Suppression IoU threshold")
	flag.IntVar(&inputSize, "input-size", 640, "Square letterbox edge in pixels")
	flag.StringVar(&classList, "classes", "person,car,truck,bus,motorcycle,bicycle", "Comma-separated relevant class names (empty means all)")
	flag.StringVar(&outputDir, "output-dir", DefaultOutputDir, "Output directory for saved frames")
	flag.BoolVar(&saveFrames, "save-frames", false, "Save annotated frames containing relevant objects")
	flag.StringVar(&videoPath, "video", "", "Path to video file (.mp4, .avi, .mov)")
	flag.StringVar(&imagePath, "image", "", "Path to image file (.jpg, .jpeg, .png, .bmp)")
	flag.BoolVar(&showVisualization, "show-window", false, "Show visualization window")
	flag.Parse()

	// Validate input flags
	inputConfig, err := validateInputFlags(videoPath, imagePath)
	if err != nil {
		log.Fatal(err)
	}

	var relevant []string
	for _, name := range strings.Split(classList, ",") {
		if name = strings.TrimSpace(name); name != "" {
			relevant = append(relevant, name)
		}
	}

	detector, err := onnx.NewDetector(onnx.Config{
		ModelPath:       modelPath,
		InputSize:       inputSize,
		Family:          models.ModelFamilyYOLO,
		ConfThreshold:   float32(confidence),
		IoUThreshold:    float32(iou),
		RelevantClasses: relevant,
	})
	if err != nil {
		fmt.Printf("⚠️  Failed to initialize object detector: %v\n", err)
		fmt.Printf("💡 This could be due to:\n")
		fmt.Printf("   - Incompatible ONNX model format\n")
		fmt.Printf("   - Missing OpenCV DNN support\n")
		fmt.Printf("   - Corrupted model file\n")
		os.Exit(1)
	}
	defer detector.Close()
	fmt.Printf("✅ Object detector initialized successfully\n")

	// Create output directory if it doesn't exist
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		fmt.Printf("Warning: Failed to create output directory: %v\n", err)
	}

	fmt.Printf("\n🚀 Object Detection System Started\n")
	fmt.Printf("=====================================\n")
	fmt.Printf("⚙️  Configuration:\n")
	fmt.Printf("   🎥 Input type: %s\n", func() string {
		switch inputConfig.Type {
		case InputCamera:
			return fmt.Sprintf("Camera (Device %d)", inputConfig.DeviceID)
		case InputVideo:
			return fmt.Sprintf("Video: %s", inputConfig.Path)
		case InputImage:
			return fmt.Sprintf("Image: %s", inputConfig.Path)
		default:
			return "Unknown"
		}
	}())
	fmt.Printf("   🎯 Model: %s\n", modelPath)
	fmt.Printf("   📐 Input size: %dx%d\n", inputSize, inputSize)
	fmt.Printf("   📊 Confidence threshold: %.2f\n", confidence)
	fmt.Printf("   📊 IoU threshold: %.2f\n", iou)
	fmt.Printf("   🎯 Relevant classes: %s\n", strings.Join(detector.RelevantClasses(), ", "))
	fmt.Printf("   💾 Output directory: %s\n", outputDir)
	fmt.Printf("   📈 Profiling: ✅ Enabled\n")
	fmt.Printf("   🖼️  Show window: %t\n", showVisualization)
	fmt.Printf("=====================================\n\n")

	if inputConfig.Type == InputImage {
		processImage(detector, inputConfig.Path, outputDir)
		return
	}

	// Warm the DNN backend so first-frame latency doesn't pollute the log.
	if err := detector.WarmUp(2); err != nil {
		fmt.Printf("⚠️  Warm-up failed: %v\n", err)
	}

	// Initialize video capture based on input type
	var webcam *gocv.VideoCapture
	switch inputConfig.Type {
	case InputCamera:
		webcam, err = gocv.OpenVideoCapture(inputConfig.DeviceID)
		if err != nil {
			log.Fatalf("Error opening video capture device: %v", inputConfig.DeviceID)
		}
		fmt.Printf("Starting object detection on camera device: %v\n", inputConfig.DeviceID)
	case InputVideo:
		webcam, err = gocv.OpenVideoCapture(inputConfig.Path)
		if err != nil {
			log.Fatalf("Error opening video file: %v", inputConfig.Path)
		}
		fmt.Printf("Processing video: %s\n", inputConfig.Path)
	}
	defer webcam.Close()

	// Initialize a Mat to store the current frame.
	img := gocv.NewMat()
	defer img.Close()

	rp := profiler.NewRuntimeProfiler(profiler.ProfilingOptions{
		ReportInterval: 2 * time.Second,
		SampleInterval: 100 * time.Millisecond,
		MaxSamples:     600,
	})
	rp.Start()
	defer rp.Stop()

	var window *gocv.Window
	if showVisualization {
		// Create a window to display the video.
		window = gocv.NewWindow("Object Detection")
		defer window.Close()
		fmt.Printf("🖼️  Visualization window enabled\n")
	}

	frameCounter := 0
	frameCount := 0
	fps := 0.0
	lastTick := time.Now()
	var lastSave time.Time
	for {
		stopTiming := rp.StartOperation("frame_processing")

		// Read the next frame from the video capture device.
		if ok := webcam.Read(&img); !ok {
			stopTiming()
			if inputConfig.Type == InputVideo {
				fmt.Printf("End of video file: %v\n", inputConfig.Path)
			} else {
				fmt.Printf("Device closed: %v\n", inputConfig.DeviceID)
			}
			return
		}
		if img.Empty() {
			stopTiming()
			continue
		}

		detectStart := time.Now()
		detections, err := detector.Detect(img)
		if err != nil {
			stopTiming()
			fmt.Printf("Error detecting objects: %v\n", err)
			continue
		}
		inferenceMs := float64(time.Since(detectStart).Microseconds()) / 1000.0

		relevantCount, labels := drawDetections(&img, detections, detector)
		stopTiming()

		// Update FPS over a one-second window.
		frameCount++
		if elapsed := time.Since(lastTick).Seconds(); elapsed >= 1.0 {
			fps = float64(frameCount) / elapsed
			frameCount = 0
			lastTick = time.Now()
		}

		fmt.Printf("[Frame %d] FPS: %.1f | Inference: %.2fms | Detections: %d",
			frameCounter, fps, inferenceMs, len(detections))
		if relevantCount > 0 {
			fmt.Printf(" | Objects: ✅ Found (%s)", strings.Join(labels, ", "))
		} else {
			fmt.Printf(" | Objects: ❌ None")
		}
		fmt.Printf("\n")

		if saveFrames && relevantCount > 0 && time.Since(lastSave) >= saveCooldown {
			filename := filepath.Join(outputDir, fmt.Sprintf("frame_%d.jpg", frameCounter))
			if gocv.IMWrite(filename, img) {
				fmt.Printf("💾 Saved annotated frame to %s\n", filename)
				lastSave = time.Now()
			} else {
				fmt.Printf("❌ Failed to save frame to %s\n", filename)
			}
		}

		// Draw performance information
		perfText := fmt.Sprintf("FPS: %.1f | Inference: %.2fms", fps, inferenceMs)
		gocv.PutText(&img, perfText, image.Pt(10, 30), gocv.FontHersheyPlain, 1.2, color.RGBA{255, 255, 255, 0}, 2)

		// Show the image
		if showVisualization {
			window.IMShow(img)
			if window.WaitKey(1) >= 0 {
				return
			}
		}

		frameCounter++
	}
}

// validateInputFlags validates the input flags and returns the input configuration
func validateInputFlags(videoPath, imagePath string) (*InputConfig, error) {
	// Check if both or neither are provided
	if videoPath != "" && imagePath != "" {
		return nil, fmt.Errorf("error: cannot specify both --video and --image flags")
	}
	if videoPath == "" && imagePath == "" {
		// Default to camera
		return &InputConfig{Type: InputCamera, DeviceID: deviceID}, nil
	}

	// Validate video input
	if videoPath != "" {
		if err := validateFile(videoPath, supportedVideoExtensions); err != nil {
			return nil, fmt.Errorf("video validation error: %w", err)
		}
		return &InputConfig{Type: InputVideo, Path: videoPath}, nil
	}

	// Validate image input
	if imagePath != "" {
		if err := validateFile(imagePath, supportedImageExtensions); err != nil {
			return nil, fmt.Errorf("image validation error: %w", err)
		}
		return &InputConfig{Type: InputImage, Path: imagePath}, nil
	}

	return nil, fmt.Errorf("unexpected input configuration")
}

// validateFile checks if the file exists and has a supported extension
func validateFile(filePath string, supportedExtensions []string) error {
	// Check if file exists
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("file not found: %s", filePath)
	}

	// Check file extension
	ext := strings.ToLower(filepath.Ext(filePath))
	for _, supportedExt := range supportedExtensions {
		if ext == supportedExt {
			return nil
		}
	}

	return fmt.Errorf("unsupported file extension: %s. Supported extensions: %v", ext, supportedExtensions)
}

// processImage processes a single image file
func processImage(detector *onnx.Detector, imagePath, outputDir string) {
	// Load the image
	img := gocv.IMRead(imagePath, gocv.IMReadColor)
	if img.Empty() {
		log.Fatalf("Error reading image: %s", imagePath)
	}
	defer img.Close()

	fmt.Printf("Processing image: %s\n", imagePath)
	fmt.Printf("Image size: %dx%d\n", img.Cols(), img.Rows())

	start := time.Now()
	detections, err := detector.Detect(img)
	if err != nil {
		log.Fatalf("Error detecting objects: %v", err)
	}
	fmt.Printf("Found %d objects in %v\n", len(detections), time.Since(start))

	// Process detections
	for i, detection := range detections {
		if detector.IsRelevantClass(detection.ClassName) {
			fmt.Printf("Object %d: %s (confidence: %.2f) at %v\n",
				i+1, detection.ClassName, detection.Score, detection.Box)

			// Draw detection box on the image
			gocv.Rectangle(&img, detection.Box, color.RGBA{0, 255, 0, 0}, 2)
			label := fmt.Sprintf("%s %.2f", detection.ClassName, detection.Score)
			gocv.PutText(&img, label, detection.Box.Min, gocv.FontHersheyPlain, 0.8, color.RGBA{0, 255, 0, 0}, 2)
		}
	}

	// Save the processed image
	outputPath := filepath.Join(outputDir, "processed_"+filepath.Base(imagePath))
	if gocv.IMWrite(outputPath, img) {
		fmt.Printf("Processed image saved to: %s\n", outputPath)
	} else {
		fmt.Printf("Failed to save processed image\n")
	}
}

// drawDetections annotates relevant detections in place and returns their
// count together with "name(count)" labels for the frame log line.
func drawDetections(img *gocv.Mat, detections []onnx.Detection, detector *onnx.Detector) (int, []string) {
	objectCount := make(map[string]int)
	relevant := 0
	for _, detection := range detections {
		if !detector.IsRelevantClass(detection.ClassName) {
			continue
		}
		relevant++
		objectCount[detection.ClassName]++

		gocv.Rectangle(img, detection.Box, color.RGBA{0, 255, 0, 0}, 2)
		label := fmt.Sprintf("%s %.2f", detection.ClassName, detection.Score)
		gocv.PutText(img, label, detection.Box.Min, gocv.FontHersheyPlain, 0.8, color.RGBA{0, 255, 0, 0}, 2)
	}

	labels := make([]string, 0, len(objectCount))
	for objType, count := range objectCount {
		labels = append(labels, fmt.Sprintf("%s(%d)", objType, count))
	}
	return relevant, labels
}

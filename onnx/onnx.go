// Package onnx - YOLO inference through OpenCV's DNN module.
//
// The package loads decode-included ONNX exports with gocv.ReadNet and
// feeds the forward output through the shared suppression and
// coordinate pipeline. It trades the native-runtime control of package
// inference for a single OpenCV dependency, which suits capture loops
// already holding frames in gocv.Mat form.
package onnx

import (
	"fmt"
	"image"
	"image/color"
	"log"
	"os"
	"sort"
	"sync"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-yolo/boxes"
	"github.com/nvr-ai/go-yolo/images"
	"github.com/nvr-ai/go-yolo/models"
	"github.com/nvr-ai/go-yolo/models/postprocess"
)

// Detection is one object surviving suppression, in frame pixels.
type Detection struct {
	Box       image.Rectangle
	Score     float32
	ClassID   int
	ClassName string
}

// String formats the detection for logs.
func (d Detection) String() string {
	return fmt.Sprintf("Object %s (confidence %f): (%d, %d), (%d, %d)",
		d.ClassName, d.Score, d.Box.Min.X, d.Box.Min.Y, d.Box.Max.X, d.Box.Max.Y)
}

// Detector runs decode-included ONNX exports through gocv.ReadNet.
type Detector struct {
	modelPath       string
	inputSize       int
	family          models.ModelFamily
	postprocess     postprocess.Config
	relevantClasses map[string]bool
	backend         gocv.NetBackendType
	target          gocv.NetTargetType
	initialized     bool
	mu              sync.RWMutex
	net             gocv.Net
	layerNames      []string
}

// NewDetector loads the model and prepares it for inference.
func NewDetector(config Config) (*Detector, error) {
	if config.ModelPath == "" {
		return nil, errors.New("onnx: model path is required")
	}
	defaults := DefaultConfig()
	if config.InputSize <= 0 {
		config.InputSize = defaults.InputSize
	}
	if config.Family == "" {
		config.Family = defaults.Family
	}
	if config.ConfThreshold <= 0 {
		config.ConfThreshold = defaults.ConfThreshold
	}
	if config.IoUThreshold <= 0 {
		config.IoUThreshold = defaults.IoUThreshold
	}

	pp := postprocess.DefaultConfig()
	pp.ConfThreshold = config.ConfThreshold
	pp.IoUThreshold = config.IoUThreshold

	detector := &Detector{
		modelPath:       config.ModelPath,
		inputSize:       config.InputSize,
		family:          config.Family,
		postprocess:     pp,
		relevantClasses: make(map[string]bool, len(config.RelevantClasses)),
		backend:         config.Backend,
		target:          config.Target,
	}
	for _, className := range config.RelevantClasses {
		detector.relevantClasses[className] = true
	}

	if err := detector.initialize(); err != nil {
		return nil, errors.Wrap(err, "onnx: initializing detector")
	}
	return detector, nil
}

// initialize loads the network and pins the compute placement.
func (d *Detector) initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := os.Stat(d.modelPath); err != nil {
		return errors.Errorf("model file not found: %s", d.modelPath)
	}

	net := gocv.ReadNet(d.modelPath, "")
	if net.Empty() {
		return errors.Errorf("failed to load model: %s", d.modelPath)
	}
	d.net = net

	if err := d.net.SetPreferableBackend(d.backend); err != nil {
		d.net.Close()
		return errors.Wrap(err, "setting backend")
	}
	if err := d.net.SetPreferableTarget(d.target); err != nil {
		d.net.Close()
		return errors.Wrap(err, "setting target")
	}

	d.layerNames = d.net.GetLayerNames()
	if len(d.layerNames) == 0 {
		d.net.Close()
		return errors.New("model reports no layers")
	}

	d.initialized = true
	log.Printf("✅ detector ready: %s", d.modelPath)
	log.Printf("📋 input shape: %dx%d", d.inputSize, d.inputSize)
	log.Printf("🎯 confidence threshold: %.2f", d.postprocess.ConfThreshold)
	log.Printf("🔍 relevant classes: %v", d.RelevantClasses())
	log.Printf("📊 layers: %d", len(d.layerNames))
	return nil
}

// Detect runs inference on one frame and returns detections in frame
// pixels.
func (d *Detector) Detect(frame gocv.Mat) ([]Detection, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.initialized {
		return nil, errors.New("onnx: detector not initialized")
	}
	size := frame.Size()
	if len(size) < 2 || size[0] <= 0 || size[1] <= 0 {
		return nil, errors.New("onnx: empty frame")
	}
	srcH, srcW := size[0], size[1]

	padded, ratio := d.letterbox(frame)
	blob := gocv.BlobFromImage(padded, 1.0/255.0, image.Pt(d.inputSize, d.inputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	padded.Close()
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	raw, err := output.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "onnx: reading forward output")
	}
	pred, err := prediction(output.Size(), raw)
	if err != nil {
		return nil, err
	}

	res, err := postprocess.NonMaxSuppression(pred, d.postprocess)
	if err != nil {
		return nil, errors.Wrap(err, "onnx: suppressing candidates")
	}
	for _, fb := range res.MergeFallbacks {
		log.Printf("⚠️ merge fallback: %s", fb.Reason)
	}
	kept := res.Images[0]
	if len(kept) == 0 {
		return nil, nil
	}

	bxs := make([]boxes.Box, len(kept))
	for i, det := range kept {
		bxs[i] = det.Box
	}
	if err := images.ScaleCoords(d.inputSize, d.inputSize, bxs, srcW, srcH, &ratio); err != nil {
		return nil, errors.Wrap(err, "onnx: scaling coordinates")
	}

	out := make([]Detection, len(kept))
	for i, det := range kept {
		out[i] = Detection{
			Box: image.Rect(
				int(math32.Round(bxs[i][0])), int(math32.Round(bxs[i][1])),
				int(math32.Round(bxs[i][2])), int(math32.Round(bxs[i][3]))),
			Score:     det.Score,
			ClassID:   det.Class,
			ClassName: d.className(det.Class),
		}
	}
	return out, nil
}

// DetectROI runs detection on one region and maps boxes back to full
// frame coordinates.
func (d *Detector) DetectROI(frame gocv.Mat, roi image.Rectangle) ([]Detection, error) {
	size := frame.Size()
	if len(size) < 2 {
		return nil, errors.New("onnx: empty frame")
	}
	roi = roi.Intersect(image.Rect(0, 0, size[1], size[0]))
	if roi.Empty() {
		return nil, nil
	}
	region := frame.Region(roi)
	defer region.Close()

	detections, err := d.Detect(region)
	if err != nil {
		return nil, err
	}
	for i := range detections {
		detections[i].Box = detections[i].Box.Add(roi.Min)
	}
	return detections, nil
}

// letterbox resizes the frame onto the square network canvas, padding
// the remainder with the canonical gray. The returned ratio maps
// detections back to frame pixels.
func (d *Detector) letterbox(frame gocv.Mat) (gocv.Mat, images.Ratio) {
	size := frame.Size()
	srcH, srcW := size[0], size[1]
	r := images.ComputeRatio(srcW, srcH, d.inputSize, d.inputSize, true)
	newW := int(math32.Round(float32(srcW) * r.Gain))
	newH := int(math32.Round(float32(srcH) * r.Gain))

	scaled := gocv.NewMat()
	if newW == srcW && newH == srcH {
		frame.CopyTo(&scaled)
	} else {
		gocv.Resize(frame, &scaled, image.Pt(newW, newH), 0, 0, gocv.InterpolationLinear)
	}

	// Uneven padding leans on the right/bottom edge.
	left := int(math32.Round(r.PadX - 0.1))
	top := int(math32.Round(r.PadY - 0.1))
	padded := gocv.NewMat()
	gocv.CopyMakeBorder(scaled, &padded, top, d.inputSize-newH-top, left, d.inputSize-newW-left,
		gocv.BorderConstant, color.RGBA{R: 114, G: 114, B: 114, A: 255})
	scaled.Close()
	return padded, r
}

// prediction wraps one forward output as a (1, rows, outputs) tensor.
// OpenCV returns detection heads either squeezed to two dimensions or
// with the unit batch kept, depending on the export. The data is copied
// so the tensor outlives the Mat.
func prediction(dims []int, data []float32) (*tensor.Dense, error) {
	var rows, no int
	switch {
	case len(dims) == 3 && dims[0] == 1:
		rows, no = dims[1], dims[2]
	case len(dims) == 2:
		rows, no = dims[0], dims[1]
	default:
		return nil, errors.Errorf("onnx: unsupported output shape %v", dims)
	}
	if no < 6 {
		return nil, errors.Errorf("onnx: %d outputs per row, want at least 6 (was the decode layer exported?)", no)
	}
	if len(data) < rows*no {
		return nil, errors.Errorf("onnx: output holds %d floats for shape %v", len(data), dims)
	}
	buf := make([]float32, rows*no)
	copy(buf, data[:rows*no])
	return tensor.New(tensor.WithShape(1, rows, no), tensor.WithBacking(buf)), nil
}

// className resolves a class index to its label, or a placeholder for
// indices outside the family's catalog.
func (d *Detector) className(id int) string {
	if name := models.LookupName(d.family, id); name != "" {
		return name
	}
	return fmt.Sprintf("unknown_%d", id)
}

// IsRelevantClass reports whether a label is on the configured
// allow-list. An empty list treats every class as relevant.
func (d *Detector) IsRelevantClass(className string) bool {
	if len(d.relevantClasses) == 0 {
		return true
	}
	return d.relevantClasses[className]
}

// RelevantClasses returns the allow-list in sorted order.
func (d *Detector) RelevantClasses() []string {
	out := make([]string, 0, len(d.relevantClasses))
	for name := range d.relevantClasses {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// WarmUp runs throwaway forward passes so first-frame latency is paid
// before capture starts.
func (d *Detector) WarmUp(runs int) error {
	frame := gocv.NewMatWithSize(d.inputSize, d.inputSize, gocv.MatTypeCV8UC3)
	defer frame.Close()
	for i := 0; i < runs; i++ {
		if _, err := d.Detect(frame); err != nil {
			return err
		}
	}
	return nil
}

// Info describes a loaded detector.
type Info struct {
	ModelPath       string             `json:"modelPath"`
	InputSize       int                `json:"inputSize"`
	Family          models.ModelFamily `json:"family"`
	ConfThreshold   float32            `json:"confThreshold"`
	IoUThreshold    float32            `json:"iouThreshold"`
	RelevantClasses []string           `json:"relevantClasses"`
	Layers          int                `json:"layers"`
}

// Info reports the loaded model and its thresholds.
func (d *Detector) Info() Info {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Info{
		ModelPath:       d.modelPath,
		InputSize:       d.inputSize,
		Family:          d.family,
		ConfThreshold:   d.postprocess.ConfThreshold,
		IoUThreshold:    d.postprocess.IoUThreshold,
		RelevantClasses: d.RelevantClasses(),
		Layers:          len(d.layerNames),
	}
}

// ValidateModel checks that the model file is present and readable.
func ValidateModel(modelPath string) error {
	info, err := os.Stat(modelPath)
	if err != nil {
		return errors.Errorf("onnx: model file not found: %s", modelPath)
	}
	if info.IsDir() {
		return errors.Errorf("onnx: model path is a directory: %s", modelPath)
	}
	return nil
}

// Close releases the network.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return nil
	}
	d.initialized = false
	log.Printf("🔒 detector closed")
	if !d.net.Empty() {
		return d.net.Close()
	}
	return nil
}

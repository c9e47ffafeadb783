// Package inference - ONNX Runtime detector.
package inference

import (
	"context"
	"fmt"
	"image"
	"log"
	"sync"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-yolo/boxes"
	"github.com/nvr-ai/go-yolo/images"
	"github.com/nvr-ai/go-yolo/inference/providers"
	"github.com/nvr-ai/go-yolo/models"
	"github.com/nvr-ai/go-yolo/models/postprocess"
	"github.com/nvr-ai/go-yolo/models/preprocess"
	"github.com/nvr-ai/go-yolo/models/yolo"
)

// Config describes a detector: which model file to load, what the graph
// emits, and how its candidates are post-processed.
type Config struct {
	// ModelPath is the path to the ONNX model file.
	ModelPath string `json:"modelPath" yaml:"modelPath"`

	// Variant names the head geometry in the registry, e.g. "yolov5s".
	Variant models.Variant `json:"variant" yaml:"variant"`

	// NumClasses is the class count of the trained weights. Zero uses the
	// label count of the variant's family.
	NumClasses int `json:"numClasses" yaml:"numClasses"`

	// RawHead marks an export without the in-graph decode layer: the model
	// emits one (1, anchors, gridH, gridW, outputs) tensor per scale and
	// Predict applies the grid and anchor transform itself. Decoded exports
	// emit a single flat (1, cells, outputs) tensor.
	RawHead bool `json:"rawHead" yaml:"rawHead"`

	// InputName is the model's input node name. Defaults to "images".
	InputName string `json:"inputName" yaml:"inputName"`

	// OutputNames are the model's output node names. Defaults to "output0",
	// or one generated name per scale for raw heads.
	OutputNames []string `json:"outputNames" yaml:"outputNames"`

	// Provider selects the execution provider and session tuning.
	Provider providers.Config `json:"provider" yaml:"provider"`

	// Postprocess controls confidence filtering and suppression.
	Postprocess postprocess.Config `json:"postprocess" yaml:"postprocess"`
}

// Detector runs a YOLO-family ONNX model end to end: letterbox, session
// run, head decode when needed, suppression, and mapping boxes back onto
// the source frame.
//
// A detector owns one preallocated input/output tensor set, so Predict
// serializes callers; share frames across goroutines, not a Detector.
type Detector struct {
	config   Config
	spec     models.Spec
	head     *yolo.Head
	session  *providers.Session
	profiled *providers.ProfiledSession
	backend  providers.ProviderBackend
	prep     *preprocess.Preprocessor
	grids    []yolo.GridSize
	netSize  int
	total    int
	mu       sync.Mutex
}

// Info describes a loaded detector.
type Info struct {
	ModelPath  string                    `json:"modelPath"`
	Variant    models.Variant            `json:"variant"`
	NumClasses int                       `json:"numClasses"`
	InputSize  int                       `json:"inputSize"`
	RawHead    bool                      `json:"rawHead"`
	Backend    providers.ProviderBackend `json:"backend"`
}

// NewDetector loads the model and prepares a ready-to-run session,
// including any configured warmup iterations.
//
// Arguments:
//   - config: The detector configuration.
//
// Returns:
//   - *Detector: The initialized detector.
//   - error: An error if the variant, provider, or session setup fails.
func NewDetector(config Config) (*Detector, error) {
	if config.ModelPath == "" {
		return nil, errors.New("model path is required")
	}
	spec, ok := models.Lookup(config.Variant)
	if !ok {
		return nil, errors.Errorf("unknown model variant %q", config.Variant)
	}

	nc := config.NumClasses
	if nc == 0 {
		nc = familyClassCount(spec.Family)
	}
	if nc == 0 {
		return nil, errors.Errorf("class count required for family %q", spec.Family)
	}

	head, err := models.NewHead(config.Variant, nc)
	if err != nil {
		return nil, err
	}

	netSize := spec.InputSize
	grids := head.GridSizes(netSize, netSize)
	na := head.AnchorsPerScale()
	no := head.Outputs()
	total := 0
	for _, g := range grids {
		total += na * g.H * g.W
	}

	inputName := config.InputName
	if inputName == "" {
		inputName = "images"
	}

	outputNames := config.OutputNames
	var outputShapes [][]int64
	if config.RawHead {
		if len(outputNames) == 0 {
			for i := range grids {
				outputNames = append(outputNames, fmt.Sprintf("output%d", i))
			}
		}
		if len(outputNames) != len(grids) {
			return nil, errors.Errorf("raw head needs %d output names, got %d", len(grids), len(outputNames))
		}
		for _, g := range grids {
			outputShapes = append(outputShapes, []int64{1, int64(na), int64(g.H), int64(g.W), int64(no)})
		}
	} else {
		if len(outputNames) == 0 {
			outputNames = []string{"output0"}
		}
		if len(outputNames) != 1 {
			return nil, errors.Errorf("decoded models emit a single output, got %d names", len(outputNames))
		}
		outputShapes = [][]int64{{1, int64(total), int64(no)}}
	}

	prep, err := preprocess.NewPreprocessor(preprocess.ForSpec(spec))
	if err != nil {
		return nil, err
	}

	provider, err := config.Provider.Provider()
	if err != nil {
		return nil, err
	}

	session, err := providers.NewSession(provider, providers.NewSessionArgs{
		ModelPath:    config.ModelPath,
		InputNames:   []string{inputName},
		OutputNames:  outputNames,
		InputShapes:  [][]int64{{1, 3, int64(netSize), int64(netSize)}},
		OutputShapes: outputShapes,
		Optimization: config.Provider.Optimization,
	})
	if err != nil {
		return nil, err
	}

	d := &Detector{
		config:  config,
		spec:    spec,
		head:    head,
		session: session,
		backend: provider.Backend(),
		prep:    prep,
		grids:   grids,
		netSize: netSize,
		total:   total,
	}
	if config.Provider.EnableProfiling {
		d.profiled = providers.NewProfiledSession(session)
	}

	if n := config.Provider.WarmupIterations; n > 0 {
		if err := d.WarmUp(n); err != nil {
			d.Close()
			return nil, errors.Wrap(err, "warmup failed")
		}
		if d.profiled != nil {
			d.profiled.ResetMetrics()
		}
	}

	log.Printf("✅ detector ready: %s (%s, %d classes, %dx%d, %s)",
		config.ModelPath, config.Variant, nc, netSize, netSize, d.backend)

	return d, nil
}

// Predict runs one frame through the model and returns detections in
// source-image pixel coordinates.
//
// Arguments:
//   - ctx: Checked between stages; the native run itself is not cancellable.
//   - img: The frame to detect on.
//
// Returns:
//   - []postprocess.Result: Detections surviving suppression.
//   - error: An error if any stage fails.
func (d *Detector) Predict(ctx context.Context, img image.Image) ([]postprocess.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return nil, errors.New("detector is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ratio, err := PrepareInput(img, d.session.Inputs[0], d.netSize, d.netSize)
	if err != nil {
		return nil, errors.Wrap(err, "preparing input")
	}

	bounds := img.Bounds()
	return d.detect(ctx, ratio, bounds.Dx(), bounds.Dy())
}

// PredictFrame is Predict for a frame still in its container format, as
// capture pipelines hand them around. The preprocess layer decodes,
// letterboxes, and tensorizes the bytes; the session and suppression
// path is shared with Predict.
//
// Arguments:
//   - ctx: Checked between stages; the native run itself is not cancellable.
//   - frame: The encoded frame (JPEG, PNG, or WebP bytes).
//
// Returns:
//   - []postprocess.Result: Detections surviving suppression.
//   - error: An error if any stage fails.
func (d *Detector) PredictFrame(ctx context.Context, frame *images.Image) ([]postprocess.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return nil, errors.New("detector is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := d.prep.Preprocess(frame)
	if err != nil {
		return nil, errors.Wrap(err, "preprocessing frame")
	}
	dst := d.session.Inputs[0].GetData()
	if len(dst) != len(result.Data) {
		return nil, errors.Errorf("input tensor holds %d floats, preprocessor produced %d",
			len(dst), len(result.Data))
	}
	copy(dst, result.Data)

	return d.detect(ctx, result.Ratio, result.OriginalWidth, result.OriginalHeight)
}

// detect runs the already-filled input tensor through the session,
// suppression, and the mapping back to source-frame coordinates.
func (d *Detector) detect(ctx context.Context, ratio images.Ratio, srcW, srcH int) ([]postprocess.Result, error) {
	if err := d.run(); err != nil {
		return nil, errors.Wrap(err, "running session")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pred, err := d.decodeOutputs()
	if err != nil {
		return nil, err
	}

	batch, err := postprocess.NonMaxSuppression(pred, d.config.Postprocess)
	if err != nil {
		return nil, errors.Wrap(err, "suppressing candidates")
	}
	for _, fb := range batch.MergeFallbacks {
		log.Printf("⚠️ merge fallback on image %d: %s", fb.Image, fb.Reason)
	}

	results := batch.Images[0]
	if len(results) == 0 {
		return nil, nil
	}

	// Map boxes from network space back onto the source frame.
	bxs := make([]boxes.Box, len(results))
	for i := range results {
		bxs[i] = results[i].Box
	}
	if err := images.ScaleCoords(d.netSize, d.netSize, bxs, srcW, srcH, &ratio); err != nil {
		return nil, errors.Wrap(err, "scaling coordinates")
	}
	for i := range results {
		results[i].Box = bxs[i]
	}

	return results, nil
}

// run executes the session, through the profiler when one is attached.
func (d *Detector) run() error {
	if d.profiled != nil {
		return d.profiled.Run()
	}
	return d.session.Run()
}

// decodeOutputs turns the session's output tensors into the flat
// (1, cells, 5+classes) candidate tensor suppression expects. The returned
// tensors alias session memory and are only read before the next run.
func (d *Detector) decodeOutputs() (*tensor.Dense, error) {
	no := d.head.Outputs()

	if !d.config.RawHead {
		data := d.session.Outputs[0].GetData()
		if len(data) != d.total*no {
			return nil, errors.Errorf("output holds %d floats, expected %d", len(data), d.total*no)
		}
		return tensor.New(tensor.WithShape(1, d.total, no), tensor.WithBacking(data)), nil
	}

	na := d.head.AnchorsPerScale()
	scales := make([]*tensor.Dense, len(d.session.Outputs))
	for i, out := range d.session.Outputs {
		g := d.grids[i]
		data := out.GetData()
		if len(data) != na*g.H*g.W*no {
			return nil, errors.Errorf("scale %d holds %d floats, expected %d", i, len(data), na*g.H*g.W*no)
		}
		scales[i] = tensor.New(tensor.WithShape(1, na, g.H, g.W, no), tensor.WithBacking(data))
	}
	return yolo.Decode(d.head, scales)
}

// WarmUp runs inference to populate runtime caches and lazy kernels.
//
// Arguments:
//   - runs: The number of times to run inference.
//
// Returns:
//   - error: An error if the warmup fails.
func (d *Detector) WarmUp(runs int) error {
	for i := 0; i < runs; i++ {
		if err := d.run(); err != nil {
			return err
		}
	}
	return nil
}

// Metrics returns session timings when profiling is enabled, otherwise a
// zero value.
func (d *Detector) Metrics() providers.SessionMetrics {
	if d.profiled == nil {
		return providers.SessionMetrics{}
	}
	return d.profiled.Metrics()
}

// ClassName resolves a class index against the model family's label set.
func (d *Detector) ClassName(class int) string {
	return models.LookupName(d.spec.Family, class)
}

// Head exposes the model geometry the detector was built around.
func (d *Detector) Head() *yolo.Head {
	return d.head
}

// Info describes the loaded model and its runtime placement.
func (d *Detector) Info() Info {
	return Info{
		ModelPath:  d.config.ModelPath,
		Variant:    d.spec.Variant,
		NumClasses: d.head.NumClasses,
		InputSize:  d.netSize,
		RawHead:    d.config.RawHead,
		Backend:    d.backend,
	}
}

// Close releases the session and its tensors.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return nil
	}
	err := d.session.Close()
	d.session = nil
	d.profiled = nil
	log.Printf("🔒 detector closed")
	return err
}

// familyClassCount returns the label count of a family's class set.
func familyClassCount(family models.ModelFamily) int {
	for _, set := range models.AllClassSets {
		if set.Style == family {
			return len(set.Classes)
		}
	}
	return 0
}

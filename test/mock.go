// Package test exercises the detection pipeline end to end: deterministic
// synthetic scenes flow through target assignment, loss, decoding,
// suppression, and evaluation without model weights or native runtimes.
package test

import (
	"github.com/chewxy/math32"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-yolo/boxes"
	"github.com/nvr-ai/go-yolo/metrics"
	"github.com/nvr-ai/go-yolo/models/yolo"
)

// quietLogit is the background level implanted everywhere an object is
// not. sigmoid(-8) is about 3e-4, far below any confidence gate.
const quietLogit = -8

// SceneObject is one synthetic ground-truth object, center form in
// input-image pixels.
type SceneObject struct {
	Class int
	X     float32
	Y     float32
	W     float32
	H     float32
}

// Scene is a deterministic set of ground-truth objects together with the
// image extent they live in.
type Scene struct {
	ImgW    int
	ImgH    int
	Objects []SceneObject
}

// Targets returns the scene in training form: a (n, 6) tensor of
// [image, class, x, y, w, h] rows with normalized center-form boxes,
// all on image 0.
func (s Scene) Targets() *tensor.Dense {
	flat := make([]float32, 0, len(s.Objects)*6)
	for _, o := range s.Objects {
		flat = append(flat,
			0, float32(o.Class),
			o.X/float32(s.ImgW), o.Y/float32(s.ImgH),
			o.W/float32(s.ImgW), o.H/float32(s.ImgH),
		)
	}
	return tensor.New(tensor.WithShape(len(s.Objects), 6), tensor.WithBacking(flat))
}

// Truths returns the scene in evaluation form: corner-box ground truth
// in pixels.
func (s Scene) Truths() []metrics.GroundTruth {
	out := make([]metrics.GroundTruth, len(s.Objects))
	for i, o := range s.Objects {
		out[i] = metrics.GroundTruth{
			Box:   boxes.XYWHToXYXY(boxes.Box{o.X, o.Y, o.W, o.H}),
			Class: o.Class,
		}
	}
	return out
}

// MockSceneGenerator creates deterministic scenes and the raw head
// outputs that encode them, for idempotent pipeline testing.
//
// Arguments:
// - None.
//
// Returns:
// - A generator bound to one head and input extent.
//
// @example
// gen := NewMockSceneGenerator(head, 640, 640)
// scene := gen.GenerateScene(5)
// preds := gen.EncodePredictions(scene, 0.9, 0.8)
type MockSceneGenerator struct {
	head *yolo.Head
	imgW int
	imgH int
}

// NewMockSceneGenerator creates a generator for the given head and input
// extent. The extent should divide evenly by every stride, as real model
// inputs do.
//
// Arguments:
// - head: Model metadata; anchors drive object sizing and implanting.
// - imgW: Input width in pixels.
// - imgH: Input height in pixels.
//
// Returns:
// - A configured MockSceneGenerator instance.
//
// @example
// gen := NewMockSceneGenerator(head, 640, 640)
func NewMockSceneGenerator(head *yolo.Head, imgW, imgH int) *MockSceneGenerator {
	return &MockSceneGenerator{head: head, imgW: imgW, imgH: imgH}
}

// GenerateScene lays out count non-overlapping objects on a slot grid
// across the image, cycling classes and anchor-derived sizes so objects
// spread over the head's scales. Sizes are nudged off the exact anchor
// shape and clamped to their slot, keeping every pair of objects
// disjoint.
//
// Arguments:
// - count: Number of objects to place.
//
// Returns:
// - A Scene with count deterministic objects.
//
// @example
// scene := gen.GenerateScene(6)
func (g *MockSceneGenerator) GenerateScene(count int) Scene {
	scene := Scene{ImgW: g.imgW, ImgH: g.imgH}
	if count <= 0 {
		return scene
	}
	cols := int(math32.Ceil(math32.Sqrt(float32(count))))
	rows := (count + cols - 1) / cols
	cellW := float32(g.imgW) / float32(cols)
	cellH := float32(g.imgH) / float32(rows)
	na := g.head.AnchorsPerScale()
	for i := 0; i < count; i++ {
		scale := i % g.head.Scales()
		pix := g.head.PixelAnchors(scale)[(i/g.head.Scales())%na]
		scene.Objects = append(scene.Objects, SceneObject{
			Class: i % g.head.NumClasses,
			X:     (float32(i%cols) + 0.5) * cellW,
			Y:     (float32(i/cols) + 0.5) * cellH,
			W:     math32.Min(pix.W*1.05, cellW*0.85),
			H:     math32.Min(pix.H*0.95, cellH*0.85),
		})
	}
	return scene
}

// QuietPredictions returns per-scale prediction tensors with every logit
// at the background level: a scene with nothing in it.
//
// Arguments:
// - batch: Batch size of the tensors.
//
// Returns:
// - One (batch, anchors, gridH, gridW, outputs) tensor per scale.
//
// @example
// preds := gen.QuietPredictions(1)
func (g *MockSceneGenerator) QuietPredictions(batch int) []*tensor.Dense {
	na, no := g.head.AnchorsPerScale(), g.head.Outputs()
	preds := make([]*tensor.Dense, g.head.Scales())
	for i, grid := range g.head.GridSizes(g.imgH, g.imgW) {
		data := make([]float32, batch*na*grid.H*grid.W*no)
		for k := range data {
			data[k] = quietLogit
		}
		preds[i] = tensor.New(
			tensor.WithShape(batch, na, grid.H, grid.W, no),
			tensor.WithBacking(data),
		)
	}
	return preds
}

// EncodePredictions implants every scene object into quiet predictions at
// its best-matching scale, anchor, and cell. Box logits are chosen so
// decoding reproduces the object's box exactly; objectness and the target
// class carry the given probabilities.
//
// Arguments:
// - scene: The scene to encode, batch image 0.
// - objConf: Objectness probability of each implanted cell.
// - clsConf: Class probability of each implanted cell.
//
// Returns:
// - Per-scale prediction tensors with batch size 1.
//
// @example
// preds := gen.EncodePredictions(scene, 0.9, 0.8)
func (g *MockSceneGenerator) EncodePredictions(scene Scene, objConf, clsConf float32) []*tensor.Dense {
	preds := g.QuietPredictions(1)
	for _, o := range scene.Objects {
		g.implant(preds, o, objConf, clsConf, 0)
	}
	return preds
}

// AddEchoes implants a second copy of every scene object onto the next
// anchor of the same cell, approximating the duplicate responses a real
// head produces around strong objects. Needs a head with at least two
// anchors per scale so the echo lands in a distinct slot.
//
// Arguments:
// - preds: Predictions to mutate, typically from EncodePredictions.
// - scene: The scene whose objects are echoed.
// - objConf: Objectness probability of each echo.
// - clsConf: Class probability of each echo.
//
// Returns:
// - None.
//
// @example
// preds := gen.EncodePredictions(scene, 0.9, 0.8)
// gen.AddEchoes(preds, scene, 0.85, 0.8)
func (g *MockSceneGenerator) AddEchoes(preds []*tensor.Dense, scene Scene, objConf, clsConf float32) {
	for _, o := range scene.Objects {
		g.implant(preds, o, objConf, clsConf, 1)
	}
}

// implant writes one object into the prediction tensors. anchorShift
// rotates the anchor slot away from the best match, so echoes of the
// same object occupy distinct cells.
func (g *MockSceneGenerator) implant(preds []*tensor.Dense, o SceneObject, objConf, clsConf float32, anchorShift int) {
	scale, anchor := g.bestAnchor(o.W, o.H)
	na := g.head.AnchorsPerScale()
	anchor = (anchor + anchorShift) % na
	pix := g.head.PixelAnchors(scale)[anchor]
	stride := float32(g.head.Strides[scale])

	shape := preds[scale].Shape()
	gh, gw, no := shape[2], shape[3], shape[4]
	gx := o.X / stride
	gy := o.Y / stride
	gi := int(math32.Floor(gx))
	gj := int(math32.Floor(gy))

	data := preds[scale].Data().([]float32)
	base := ((anchor*gh+gj)*gw + gi) * no
	data[base] = logit((gx - float32(gi) + 0.5) / 2)
	data[base+1] = logit((gy - float32(gj) + 0.5) / 2)
	data[base+2] = logit(math32.Sqrt(o.W/pix.W) / 2)
	data[base+3] = logit(math32.Sqrt(o.H/pix.H) / 2)
	data[base+4] = logit(objConf)
	data[base+5+o.Class] = logit(clsConf)
}

// bestAnchor returns the (scale, anchor) pair whose pixel shape is
// closest to (w, h) under the worst-dimension ratio.
func (g *MockSceneGenerator) bestAnchor(w, h float32) (int, int) {
	bestS, bestA := 0, 0
	best := math32.Inf(1)
	for s := 0; s < g.head.Scales(); s++ {
		for a, pix := range g.head.PixelAnchors(s) {
			rw := w / pix.W
			rh := h / pix.H
			worst := math32.Max(math32.Max(rw, 1/rw), math32.Max(rh, 1/rh))
			if worst < best {
				best, bestS, bestA = worst, s, a
			}
		}
	}
	return bestS, bestA
}

// logit inverts the sigmoid so implanted cells decode to exact values.
func logit(p float32) float32 {
	return math32.Log(p / (1 - p))
}

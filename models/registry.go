// Package models - registry for detector presets.
package models

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-yolo/models/yolo"
)

// p5Anchors is the three-scale COCO anchor set shared by the YOLOv3 and
// YOLOv5 P5 exports.
var p5Anchors = [][]float32{
	{10, 13, 16, 30, 33, 23},
	{30, 61, 62, 45, 59, 119},
	{116, 90, 156, 198, 373, 326},
}

// p6Anchors is the four-scale set the 1280-input P6 exports assume.
var p6Anchors = [][]float32{
	{19, 27, 44, 40, 38, 94},
	{96, 68, 86, 152, 180, 137},
	{140, 301, 303, 264, 238, 542},
	{436, 615, 739, 380, 925, 792},
}

var specs = map[Variant]Spec{
	VariantYOLOv3: {
		Variant:   VariantYOLOv3,
		Family:    ModelFamilyYOLO,
		InputSize: 640,
		Strides:   []int{8, 16, 32},
		Anchors:   p5Anchors,
	},
	VariantYOLOv3SPP: {
		Variant:   VariantYOLOv3SPP,
		Family:    ModelFamilyYOLO,
		InputSize: 640,
		Strides:   []int{8, 16, 32},
		Anchors:   p5Anchors,
	},
	VariantYOLOv5s: {
		Variant:   VariantYOLOv5s,
		Family:    ModelFamilyYOLO,
		InputSize: 640,
		Strides:   []int{8, 16, 32},
		Anchors:   p5Anchors,
	},
	VariantYOLOv5m: {
		Variant:   VariantYOLOv5m,
		Family:    ModelFamilyYOLO,
		InputSize: 640,
		Strides:   []int{8, 16, 32},
		Anchors:   p5Anchors,
	},
	VariantYOLOv5l: {
		Variant:   VariantYOLOv5l,
		Family:    ModelFamilyYOLO,
		InputSize: 640,
		Strides:   []int{8, 16, 32},
		Anchors:   p5Anchors,
	},
	VariantYOLOv5s6: {
		Variant:   VariantYOLOv5s6,
		Family:    ModelFamilyYOLO,
		InputSize: 1280,
		Strides:   []int{8, 16, 32, 64},
		Anchors:   p6Anchors,
	},
	VariantYOLOv5m6: {
		Variant:   VariantYOLOv5m6,
		Family:    ModelFamilyYOLO,
		InputSize: 1280,
		Strides:   []int{8, 16, 32, 64},
		Anchors:   p6Anchors,
	},
}

// Lookup returns the spec registered for a variant.
func Lookup(v Variant) (Spec, bool) {
	s, ok := specs[v]
	return s, ok
}

// Variants lists the registered presets in lexical order.
func Variants() []Variant {
	out := make([]Variant, 0, len(specs))
	for v := range specs {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NewHead builds the detection head a variant's weights assume.
//
// Arguments:
//   - v: The registered preset to instantiate.
//   - numClasses: Class count of the trained weights, e.g. 80 for COCO.
//
// Returns:
//   - *yolo.Head: The head with anchors converted to grid units.
//   - error: An error if the variant is unknown or the geometry is invalid.
func NewHead(v Variant, numClasses int) (*yolo.Head, error) {
	spec, ok := specs[v]
	if !ok {
		return nil, errors.Errorf("models: unknown variant %q", v)
	}
	head, err := yolo.NewHead(numClasses, spec.Strides, spec.Anchors)
	if err != nil {
		return nil, errors.Wrapf(err, "models: variant %q", v)
	}
	return head, nil
}

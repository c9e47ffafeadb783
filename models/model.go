// Package models - detector presets and label catalogs.
package models

// ModelFamily identifies a label namespace.
type ModelFamily string

const (
	// ModelFamilyCOCO is the COCO namespace with background at index 0.
	ModelFamilyCOCO ModelFamily = "coco"
	// ModelFamilyYOLO is the zero-based 80-class COCO namespace.
	ModelFamilyYOLO ModelFamily = "yolo"
	// ModelFamilyVOC is the Pascal VOC namespace with background.
	ModelFamilyVOC ModelFamily = "voc"
)

// Variant names a detector preset whose exported weights share one
// head geometry.
type Variant string

const (
	// VariantYOLOv3 is the three-scale Darknet-53 detector.
	VariantYOLOv3 Variant = "yolov3"
	// VariantYOLOv3SPP adds the spatial-pyramid-pooling neck.
	VariantYOLOv3SPP Variant = "yolov3-spp"
	// VariantYOLOv5s is the small CSP detector.
	VariantYOLOv5s Variant = "yolov5s"
	// VariantYOLOv5m is the medium CSP detector.
	VariantYOLOv5m Variant = "yolov5m"
	// VariantYOLOv5l is the large CSP detector.
	VariantYOLOv5l Variant = "yolov5l"
	// VariantYOLOv5s6 is the four-scale P6 small detector.
	VariantYOLOv5s6 Variant = "yolov5s6"
	// VariantYOLOv5m6 is the four-scale P6 medium detector.
	VariantYOLOv5m6 Variant = "yolov5m6"
)

// Spec pins the geometry a variant's exported weights assume.
type Spec struct {
	Variant Variant     `json:"variant" yaml:"variant"`
	Family  ModelFamily `json:"family" yaml:"family"`
	// InputSize is the square letterbox target the variant was trained at.
	InputSize int `json:"input_size" yaml:"input_size"`
	// Strides are the detection-scale downsampling factors, ascending.
	Strides []int `json:"strides" yaml:"strides"`
	// Anchors holds one row of w,h pixel pairs per stride.
	Anchors [][]float32 `json:"anchors" yaml:"anchors"`
}

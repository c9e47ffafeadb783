package yolo

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Hyp carries every tunable the assignment and loss stages read. It is
// passed explicitly to BuildTargets and ComputeLoss so behavior never
// depends on ambient state.
type Hyp struct {
	// Box scales the box-regression loss term.
	Box float32 `yaml:"box" json:"box"`
	// Obj scales the objectness loss term.
	Obj float32 `yaml:"obj" json:"obj"`
	// Cls scales the classification loss term.
	Cls float32 `yaml:"cls" json:"cls"`
	// ClsPW is the positive-sample weight of the classification BCE.
	ClsPW float32 `yaml:"cls_pw" json:"cls_pw"`
	// ObjPW is the positive-sample weight of the objectness BCE.
	ObjPW float32 `yaml:"obj_pw" json:"obj_pw"`
	// FLGamma enables focal loss when > 0 and sets its focusing exponent.
	FLGamma float32 `yaml:"fl_gamma" json:"fl_gamma"`
	// FLAlpha is the focal-loss class balance factor.
	FLAlpha float32 `yaml:"fl_alpha" json:"fl_alpha"`
	// AnchorT is the shape-ratio threshold of the anchor filter: a target
	// matches an anchor when max(ratio, 1/ratio) along both dimensions
	// stays below this value.
	AnchorT float32 `yaml:"anchor_t" json:"anchor_t"`
	// GR blends the objectness target between 1.0 and the predicted box
	// quality: target = (1 - GR) + GR * clamp(IoU, 0).
	GR float32 `yaml:"gr" json:"gr"`
	// LabelSmoothing is the classification smoothing epsilon; positive
	// targets become 1 - eps/2 and negatives eps/2.
	LabelSmoothing float32 `yaml:"label_smoothing" json:"label_smoothing"`
}

// DefaultHyp returns the baseline hyperparameters used for COCO training.
func DefaultHyp() Hyp {
	return Hyp{
		Box:            0.05,
		Obj:            1.0,
		Cls:            0.58,
		ClsPW:          1.0,
		ObjPW:          1.0,
		FLGamma:        0.0,
		FLAlpha:        0.25,
		AnchorT:        4.0,
		GR:             1.0,
		LabelSmoothing: 0.0,
	}
}

// LoadHyp reads hyperparameters from a YAML file. Missing keys keep
// their DefaultHyp values.
func LoadHyp(path string) (Hyp, error) {
	h := DefaultHyp()
	data, err := os.ReadFile(path)
	if err != nil {
		return h, errors.Wrap(err, "hyp: read file")
	}
	if err := yaml.Unmarshal(data, &h); err != nil {
		return h, errors.Wrap(err, "hyp: parse file")
	}
	if err := h.Validate(); err != nil {
		return h, err
	}
	return h, nil
}

// Validate rejects values the downstream math cannot work with.
func (h Hyp) Validate() error {
	if h.AnchorT <= 0 {
		return errors.Errorf("hyp: anchor_t %v, want > 0", h.AnchorT)
	}
	if h.GR < 0 || h.GR > 1 {
		return errors.Errorf("hyp: gr %v, want in [0, 1]", h.GR)
	}
	if h.LabelSmoothing < 0 || h.LabelSmoothing >= 1 {
		return errors.Errorf("hyp: label_smoothing %v, want in [0, 1)", h.LabelSmoothing)
	}
	if h.FLGamma < 0 {
		return errors.Errorf("hyp: fl_gamma %v, want >= 0", h.FLGamma)
	}
	return nil
}

package yolo

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// Criterion scores raw logits against targets in [0, 1] and reduces to a
// mean. ComputeLoss holds one criterion for classification and one for
// objectness so focal or blur variants slot in without touching the
// composer.
type Criterion interface {
	Loss(logits, targets []float32) (float32, error)
}

// BCEWithLogits is binary cross-entropy evaluated directly on logits with
// an optional positive-sample weight.
type BCEWithLogits struct {
	// PosWeight multiplies the loss of positive targets. 1.0 is neutral.
	PosWeight float32
}

// NewBCEWithLogits builds the criterion with the given positive weight.
func NewBCEWithLogits(posWeight float32) *BCEWithLogits {
	return &BCEWithLogits{PosWeight: posWeight}
}

// element is the per-value loss in the numerically stable softplus form:
// pw*y*softplus(-x) + (1-y)*softplus(x).
func (c *BCEWithLogits) element(x, y float32) float32 {
	return c.PosWeight*y*softplus(-x) + (1-y)*softplus(x)
}

// Loss returns the mean element loss.
//
// Arguments:
//   - logits: Raw scores, any length > 0.
//   - targets: Desired probabilities in [0, 1], same length as logits.
//
// Returns:
//   - float32: Mean binary cross-entropy.
//   - error: An error if the slices disagree in length or are empty.
func (c *BCEWithLogits) Loss(logits, targets []float32) (float32, error) {
	if len(logits) != len(targets) {
		return 0, errors.Errorf("bce: %d logits vs %d targets", len(logits), len(targets))
	}
	if len(logits) == 0 {
		return 0, errors.New("bce: empty input")
	}
	var sum float32
	for i, x := range logits {
		sum += c.element(x, targets[i])
	}
	return sum / float32(len(logits)), nil
}

// FocalLoss wraps a BCE criterion with the focal modulation of
// https://arxiv.org/abs/1708.02002: easy examples are down-weighted by
// (1 - p_t)^gamma and classes balanced by alpha.
type FocalLoss struct {
	Base  *BCEWithLogits
	Gamma float32
	Alpha float32
}

// NewFocalLoss wraps base with focusing exponent gamma and balance alpha.
func NewFocalLoss(base *BCEWithLogits, gamma, alpha float32) *FocalLoss {
	return &FocalLoss{Base: base, Gamma: gamma, Alpha: alpha}
}

// Loss returns the mean focal-modulated binary cross-entropy.
func (c *FocalLoss) Loss(logits, targets []float32) (float32, error) {
	if len(logits) != len(targets) {
		return 0, errors.Errorf("focal: %d logits vs %d targets", len(logits), len(targets))
	}
	if len(logits) == 0 {
		return 0, errors.New("focal: empty input")
	}
	var sum float32
	for i, x := range logits {
		y := targets[i]
		l := c.Base.element(x, y)
		p := sigmoid(x)
		pt := y*p + (1-y)*(1-p)
		alphaFactor := y*c.Alpha + (1-y)*(1-c.Alpha)
		modulating := math32.Pow(1-pt, c.Gamma)
		sum += l * alphaFactor * modulating
	}
	return sum / float32(len(logits)), nil
}

// BCEBlur down-weights elements whose prediction overshoots the target,
// softening the penalty of boxes that look like missing labels.
type BCEBlur struct {
	Base  *BCEWithLogits
	Alpha float32
}

// NewBCEBlur wraps base with reduction strength alpha (0.05 typical).
func NewBCEBlur(base *BCEWithLogits, alpha float32) *BCEBlur {
	return &BCEBlur{Base: base, Alpha: alpha}
}

// Loss returns the mean blurred binary cross-entropy.
func (c *BCEBlur) Loss(logits, targets []float32) (float32, error) {
	if len(logits) != len(targets) {
		return 0, errors.Errorf("bceblur: %d logits vs %d targets", len(logits), len(targets))
	}
	if len(logits) == 0 {
		return 0, errors.New("bceblur: empty input")
	}
	var sum float32
	for i, x := range logits {
		y := targets[i]
		l := c.Base.element(x, y)
		dx := sigmoid(x) - y
		alphaFactor := 1 - math32.Exp((dx-1)/(c.Alpha+1e-4))
		sum += l * alphaFactor
	}
	return sum / float32(len(logits)), nil
}

// SmoothBCE returns the positive and negative classification targets for
// label-smoothing epsilon eps: (1 - eps/2, eps/2).
func SmoothBCE(eps float32) (positive, negative float32) {
	return 1.0 - 0.5*eps, 0.5 * eps
}

func sigmoid(x float32) float32 {
	return 1.0 / (1.0 + math32.Exp(-x))
}

// softplus is log(1 + exp(x)) arranged to avoid overflow for large x.
func softplus(x float32) float32 {
	if x > 0 {
		return x + math32.Log1p(math32.Exp(-x))
	}
	return math32.Log1p(math32.Exp(x))
}

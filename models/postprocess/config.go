// Package postprocess - turns raw detector candidates into final boxes
// via confidence filtering and non-max suppression.
package postprocess

import "time"

// Config controls one suppression pass. The zero value of the structural
// caps (MaxDetections, MaxCandidates, MaxWH, TimeLimit) means "use the
// default"; thresholds are always honored as given. A negative TimeLimit
// disables the wall-clock budget entirely.
type Config struct {
	// ConfThreshold drops candidates whose class confidence does not
	// exceed it. Class confidence is objectness times class score.
	ConfThreshold float32 `yaml:"conf_threshold" json:"conf_threshold"`
	// IoUThreshold is the overlap above which a lower-scored box is
	// suppressed.
	IoUThreshold float32 `yaml:"iou_threshold" json:"iou_threshold"`
	// Classes optionally restricts output to an allow-list of class ids.
	Classes []int `yaml:"classes,omitempty" json:"classes,omitempty"`
	// Agnostic suppresses across classes instead of per class.
	Agnostic bool `yaml:"agnostic" json:"agnostic"`
	// Merge refines surviving boxes to the score-weighted average of
	// their overlapping candidates.
	Merge bool `yaml:"merge" json:"merge"`
	// RequireRedundant drops merged boxes supported by only themselves.
	// Only read when Merge is set.
	RequireRedundant bool `yaml:"require_redundant" json:"require_redundant"`
	// MaxDetections caps the boxes kept per image.
	MaxDetections int `yaml:"max_detections" json:"max_detections"`
	// MaxCandidates is the upper candidate count for merge refinement;
	// beyond it merging is skipped for the image.
	MaxCandidates int `yaml:"max_candidates" json:"max_candidates"`
	// MaxWH is the class-offset constant that separates classes during
	// shared suppression.
	MaxWH float32 `yaml:"max_wh" json:"max_wh"`
	// TimeLimit bounds the whole batch; images left unprocessed when it
	// expires are reported, not errored.
	TimeLimit time.Duration `yaml:"time_limit" json:"time_limit"`
}

// DefaultConfig returns the standard inference-time configuration.
func DefaultConfig() Config {
	return Config{
		ConfThreshold:    0.1,
		IoUThreshold:     0.6,
		RequireRedundant: true,
		MaxDetections:    300,
		MaxCandidates:    3000,
		MaxWH:            4096,
		TimeLimit:        10 * time.Second,
	}
}

// withDefaults fills unset structural caps.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxDetections == 0 {
		c.MaxDetections = d.MaxDetections
	}
	if c.MaxCandidates == 0 {
		c.MaxCandidates = d.MaxCandidates
	}
	if c.MaxWH == 0 {
		c.MaxWH = d.MaxWH
	}
	if c.TimeLimit == 0 {
		c.TimeLimit = d.TimeLimit
	}
	return c
}

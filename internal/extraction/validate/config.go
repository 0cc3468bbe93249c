package validate

import (
	"github.com/aman-ankur/labextract/pkg/errors"
)

// Config names every scoring coefficient so per-vendor retuning never means
// a code change.
type Config struct {
	// ConfidenceThreshold drops candidates scoring below it.
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold"`

	// BaseScore is the starting confidence before adjustments.
	BaseScore float64 `json:"base_score" yaml:"base_score"`

	// CompleteBonus applies when name, value, and unit are all present;
	// IncompletePenalty when any is missing.
	CompleteBonus     float64 `json:"complete_bonus" yaml:"complete_bonus"`
	IncompletePenalty float64 `json:"incomplete_penalty" yaml:"incomplete_penalty"`

	// RangeBonus applies when a reference range was captured.
	RangeBonus float64 `json:"range_bonus" yaml:"range_bonus"`

	// TableBonus applies when the source chunk was table-derived.
	TableBonus float64 `json:"table_bonus" yaml:"table_bonus"`

	// DuplicatePenalty applies when a known prior of the same name carries
	// the identical value and unit.
	DuplicatePenalty float64 `json:"duplicate_penalty" yaml:"duplicate_penalty"`

	// ContradictionPenalty applies when a prior's numeric value differs by
	// more than ContradictionRatio relative to the larger magnitude.
	ContradictionPenalty float64 `json:"contradiction_penalty" yaml:"contradiction_penalty"`
	ContradictionRatio   float64 `json:"contradiction_ratio" yaml:"contradiction_ratio"`
}

// DefaultConfig returns the production scoring coefficients.
func DefaultConfig() *Config {
	return &Config{
		ConfidenceThreshold:  0.65,
		BaseScore:            0.7,
		CompleteBonus:        0.1,
		IncompletePenalty:    0.2,
		RangeBonus:           0.05,
		TableBonus:           0.05,
		DuplicatePenalty:     0.1,
		ContradictionPenalty: 0.15,
		ContradictionRatio:   0.5,
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.ConfidenceThreshold <= 0 || c.ConfidenceThreshold > 1 {
		return errors.InvalidInput("confidence_threshold must be in (0, 1]")
	}
	if c.BaseScore < 0 || c.BaseScore > 1 {
		return errors.InvalidInput("base_score must be in [0, 1]")
	}
	if c.CompleteBonus < 0 || c.IncompletePenalty < 0 || c.RangeBonus < 0 ||
		c.TableBonus < 0 || c.DuplicatePenalty < 0 || c.ContradictionPenalty < 0 {
		return errors.InvalidInput("scoring adjustments must be non-negative")
	}
	if c.ContradictionRatio <= 0 || c.ContradictionRatio >= 1 {
		return errors.InvalidInput("contradiction_ratio must be in (0, 1)")
	}
	return nil
}

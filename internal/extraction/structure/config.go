package structure

import (
	"github.com/aman-ankur/labextract/pkg/errors"
)

// TableThresholds controls geometric table detection. The strict values are
// tried first; the relaxed values only after a strict pass finds nothing.
type TableThresholds struct {
	MinRows          int     `json:"min_rows" yaml:"min_rows"`
	MinCols          int     `json:"min_cols" yaml:"min_cols"`
	AlignTolerance   float64 `json:"align_tolerance" yaml:"align_tolerance"`
	RelaxedMinRows   int     `json:"relaxed_min_rows" yaml:"relaxed_min_rows"`
	RelaxedMinCols   int     `json:"relaxed_min_cols" yaml:"relaxed_min_cols"`
	RelaxedTolerance float64 `json:"relaxed_tolerance" yaml:"relaxed_tolerance"`
}

// Config holds all structure-detection tuning constants.
type Config struct {
	// HeaderFraction and FooterFraction are the default zone boundaries as
	// fractions of page height.
	HeaderFraction float64 `json:"header_fraction" yaml:"header_fraction"`
	FooterFraction float64 `json:"footer_fraction" yaml:"footer_fraction"`

	// GapBreakThreshold marks a vertical word-row gap as a candidate zone
	// break; LargeGapThreshold is the minimum gap that may actually move a
	// boundary, with BoundaryPad added toward the page edge.
	GapBreakThreshold float64 `json:"gap_break_threshold" yaml:"gap_break_threshold"`
	LargeGapThreshold float64 `json:"large_gap_threshold" yaml:"large_gap_threshold"`
	BoundaryPad       float64 `json:"boundary_pad" yaml:"boundary_pad"`

	// EdgeSearchFraction is the top/bottom slice of the page in which gap
	// evidence may move the header/footer boundary.
	EdgeSearchFraction float64 `json:"edge_search_fraction" yaml:"edge_search_fraction"`

	BaseZoneConfidence float64 `json:"base_zone_confidence" yaml:"base_zone_confidence"`
	RefinedConfidence  float64 `json:"refined_confidence" yaml:"refined_confidence"`
	DegradedConfidence float64 `json:"degraded_confidence" yaml:"degraded_confidence"`

	Table TableThresholds `json:"table" yaml:"table"`

	// VendorPatternsPath optionally points at a YAML file of per-vendor
	// regex patterns that overrides the compiled-in table.
	VendorPatternsPath string `json:"vendor_patterns_path" yaml:"vendor_patterns_path"`
}

// DefaultConfig returns the tuning constants used in production.
func DefaultConfig() *Config {
	return &Config{
		HeaderFraction:     0.15,
		FooterFraction:     0.10,
		GapBreakThreshold:  20.0,
		LargeGapThreshold:  30.0,
		BoundaryPad:        5.0,
		EdgeSearchFraction: 0.30,
		BaseZoneConfidence: 0.7,
		RefinedConfidence:  0.9,
		DegradedConfidence: 0.5,
		Table: TableThresholds{
			MinRows:          2,
			MinCols:          2,
			AlignTolerance:   5.0,
			RelaxedMinRows:   2,
			RelaxedMinCols:   1,
			RelaxedTolerance: 12.0,
		},
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.HeaderFraction <= 0 || c.HeaderFraction >= 1 {
		return errors.InvalidInput("header_fraction must be in (0, 1)")
	}
	if c.FooterFraction <= 0 || c.FooterFraction >= 1 {
		return errors.InvalidInput("footer_fraction must be in (0, 1)")
	}
	if c.HeaderFraction+c.FooterFraction >= 1 {
		return errors.InvalidInput("header and footer fractions must leave room for content")
	}
	if c.EdgeSearchFraction <= 0 || c.EdgeSearchFraction > 0.5 {
		return errors.InvalidInput("edge_search_fraction must be in (0, 0.5]")
	}
	if c.GapBreakThreshold <= 0 || c.LargeGapThreshold <= 0 {
		return errors.InvalidInput("gap thresholds must be positive")
	}
	if c.Table.MinRows < 1 || c.Table.MinCols < 1 {
		return errors.InvalidInput("table min_rows/min_cols must be >= 1")
	}
	if c.Table.RelaxedMinRows < 1 || c.Table.RelaxedMinCols < 1 {
		return errors.InvalidInput("table relaxed_min_rows/relaxed_min_cols must be >= 1")
	}
	if c.Table.AlignTolerance <= 0 || c.Table.RelaxedTolerance <= 0 {
		return errors.InvalidInput("table alignment tolerances must be positive")
	}
	return nil
}

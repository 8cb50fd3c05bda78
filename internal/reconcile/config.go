package reconcile

// Config carries the reconciliation thresholds. Zero values fall back
// to the documented defaults so a zero Config is usable.
type Config struct {
	// OverlapTolerance is the max allowed area overlap between chunks,
	// relative to the smaller box. Default 0.10.
	OverlapTolerance float64

	// ContainFrac is the containment fraction at which a detection is
	// treated as table-internal content. Default 0.80.
	ContainFrac float64

	// IoUMin is the minimum IoU for adopting a layout classification.
	// Default 0.30.
	IoUMin float64

	// MergeGapFrac is the max gap between mergeable fragments as a
	// fraction of page height. Default 0.04.
	MergeGapFrac float64

	// TypeDiscount penalizes chunks whose layout classification
	// disagrees with a higher-confidence table/OCR signal. Default 0.15.
	TypeDiscount float64

	// NeedsReviewThreshold marks low-confidence chunks in the document
	// aggregate. Default 0.50.
	NeedsReviewThreshold float64
}

func (c Config) withDefaults() Config {
	if c.OverlapTolerance <= 0 {
		c.OverlapTolerance = 0.10
	}
	if c.ContainFrac <= 0 {
		c.ContainFrac = 0.80
	}
	if c.IoUMin <= 0 {
		c.IoUMin = 0.30
	}
	if c.MergeGapFrac <= 0 {
		c.MergeGapFrac = 0.04
	}
	if c.TypeDiscount <= 0 {
		c.TypeDiscount = 0.15
	}
	if c.NeedsReviewThreshold <= 0 {
		c.NeedsReviewThreshold = 0.50
	}
	return c
}

package bias

import "errors"

var (
	// ErrInvalidArgument is returned for out-of-range thresholds, unknown
	// directions, categories, models, and empty aggregation input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrStructuralMismatch marks a pair whose aligned spans differ in length.
	ErrStructuralMismatch = errors.New("structural mismatch")

	// ErrDegeneratePair marks a pair with no maskable shared tokens.
	ErrDegeneratePair = errors.New("degenerate pair")

	// ErrPredictionFailure wraps errors returned by the mask predictor.
	ErrPredictionFailure = errors.New("prediction failure")
)

// Package analyzer defines the per-image analysis contract consumed by
// the batch orchestrator. Implementations take an image reference and
// produce a full measurement result for one fish specimen.
package analyzer

import (
	"context"

	"github.com/octapulse-dev/octapulse-core/internal/domain"
)

// Options carries the per-image knobs a batch passes through to the
// underlying model.
type Options struct {
	// GridSizeInches is the physical size of one calibration grid square.
	GridSizeInches float64

	// IncludeVisualizations asks the analyzer to render annotated
	// artifacts alongside the numeric result.
	IncludeVisualizations bool

	// IncludeColorAnalysis enables the color profiling pass.
	IncludeColorAnalysis bool

	// IncludeLateralLineAnalysis enables lateral line tracing.
	IncludeLateralLineAnalysis bool
}

// Analyzer runs the measurement pipeline for a single image.
//
// Analyze returns a completed AnalysisResult on success. A nil result
// with a non-nil error means the image could not be analyzed at all;
// the orchestrator records it as a failed item without aborting the
// rest of the batch.
type Analyzer interface {
	Analyze(ctx context.Context, imageRef string, opts Options) (*domain.AnalysisResult, error)
}

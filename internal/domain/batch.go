package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultConcurrency bounds simultaneous analyzer invocations per batch
const DefaultConcurrency = 3

// DefaultGridSizeInches is the physical size of one calibration grid square
const DefaultGridSizeInches = 1.0

// BatchConfig carries the per-batch analysis options
type BatchConfig struct {
	GridSizeInches             float64 `json:"grid_square_size_inches"`
	IncludeVisualizations      bool    `json:"include_visualizations"`
	IncludeColorAnalysis       bool    `json:"include_color_analysis"`
	IncludeLateralLineAnalysis bool    `json:"include_lateral_line_analysis"`
	Concurrency                int     `json:"concurrency"`
}

// DefaultBatchConfig returns the configuration used when a caller
// supplies no overrides
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		GridSizeInches:             DefaultGridSizeInches,
		IncludeVisualizations:      true,
		IncludeColorAnalysis:       true,
		IncludeLateralLineAnalysis: true,
		Concurrency:                DefaultConcurrency,
	}
}

// Normalize fills unset numeric fields with their defaults
func (c *BatchConfig) Normalize() {
	if c.GridSizeInches == 0 {
		c.GridSizeInches = DefaultGridSizeInches
	}
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
}

// Validate rejects configurations no batch can run with
func (c BatchConfig) Validate() error {
	if c.GridSizeInches < 0 {
		return NewValidationError("grid square size must be positive, got %v", c.GridSizeInches)
	}
	if c.Concurrency < 0 {
		return NewValidationError("concurrency must be positive, got %d", c.Concurrency)
	}
	return nil
}

// NewBatchID returns a fresh unique batch identifier
func NewBatchID() string {
	return uuid.NewString()
}

// BatchSummary is the read-only status view of a batch
type BatchSummary struct {
	BatchID         string      `json:"batch_id"`
	Status          BatchStatus `json:"status"`
	TotalImages     int         `json:"total_images"`
	CompletedImages int         `json:"completed_images"`
	FailedImages    int         `json:"failed_images"`
	ProgressPercent float64     `json:"progress_percent"`
	Message         string      `json:"message,omitempty"`
	StartedAt       time.Time   `json:"started_at"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
}

// BatchProgress extends the status view with throughput estimates.
// Rate and ETA are nil until at least one image has completed and the
// batch is still processing.
type BatchProgress struct {
	BatchSummary
	CurrentImage            string     `json:"current_image,omitempty"`
	ProcessingRate          *float64   `json:"processing_rate,omitempty"`
	AverageProcessingTime   *float64   `json:"average_processing_time,omitempty"`
	EstimatedCompletionTime *time.Time `json:"estimated_completion_time,omitempty"`
}

// BatchResult is the complete outcome of a finished batch
type BatchResult struct {
	BatchID         string             `json:"batch_id"`
	Status          BatchStatus        `json:"status"`
	TotalImages     int                `json:"total_images"`
	CompletedImages int                `json:"completed_images"`
	FailedImages    int                `json:"failed_images"`
	InvalidImages   []string           `json:"invalid_images,omitempty"`
	Results         []*AnalysisResult  `json:"results"`
	Metadata        ProcessingMetadata `json:"processing_metadata"`
	ErrorMessage    string             `json:"error_message,omitempty"`
}

// BatchReceipt acknowledges batch creation
type BatchReceipt struct {
	BatchID       string      `json:"batch_id"`
	Status        BatchStatus `json:"status"`
	TotalImages   int         `json:"total_images"`
	InvalidImages []string    `json:"invalid_images"`
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// APIVersion is stamped into processing metadata on every result
const APIVersion = "1.0.0"

// DefaultModelVersion identifies the detection model family
const DefaultModelVersion = "yolov8"

// Point2D is a pixel coordinate in the source image
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BoundingBox is an axis-aligned detection box in pixel space
type BoundingBox struct {
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	Confidence float64 `json:"confidence"`
}

// Detection is one detected object instance
type Detection struct {
	ClassName   string      `json:"class_name"`
	Confidence  float64     `json:"confidence"`
	BoundingBox BoundingBox `json:"bounding_box"`
	MaskArea    *float64    `json:"mask_area,omitempty"`
}

// Measurement is a named anatomical distance derived from one image
type Measurement struct {
	Name           string   `json:"name"`
	DistanceInches float64  `json:"distance_inches"`
	Point1         Point2D  `json:"point1"`
	Point2         *Point2D `json:"point2,omitempty"`
	Label          string   `json:"label"`
	Type           string   `json:"measurement_type"`
}

// ColorAnalysis summarizes pigmentation of the detected specimen
type ColorAnalysis struct {
	MeanColorBGR     []float64   `json:"mean_color_bgr"`
	DominantColors   [][]float64 `json:"dominant_colors"`
	ColorPercentages []float64   `json:"color_percentages"`
	ColorVariance    []float64   `json:"color_variance"`
	TotalPixels      int         `json:"total_pixels"`
}

// LateralLineAnalysis describes the curvature of the lateral line
type LateralLineAnalysis struct {
	LinearityScore   float64   `json:"linearity_score"`
	MeanDeviation    float64   `json:"mean_deviation"`
	MaxDeviation     float64   `json:"max_deviation"`
	CenterlinePoints []Point2D `json:"centerline_points"`
}

// CalibrationInfo records how pixel distances map to physical units
type CalibrationInfo struct {
	PixelsPerInch        float64 `json:"pixels_per_inch"`
	GridSquareSizeInches float64 `json:"grid_square_size_inches"`
	DetectedSquares      int     `json:"detected_squares"`
	CalibrationQuality   string  `json:"calibration_quality"`
}

// ImageDimensions is the source image size in pixels
type ImageDimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ProcessingMetadata carries timing and version information for a result
type ProcessingMetadata struct {
	ProcessingTimeSeconds float64   `json:"processing_time_seconds"`
	ModelVersion          string    `json:"model_version"`
	APIVersion            string    `json:"api_version"`
	ProcessedAt           time.Time `json:"processed_at"`
}

// AnalysisResult is the complete outcome of analyzing one image.
// It is created once per item and never mutated afterwards.
type AnalysisResult struct {
	AnalysisID      string               `json:"analysis_id"`
	ImagePath       string               `json:"image_path"`
	Status          AnalysisStatus       `json:"status"`
	Dimensions      *ImageDimensions     `json:"image_dimensions,omitempty"`
	Calibration     *CalibrationInfo     `json:"calibration,omitempty"`
	DetectionCounts map[string]int       `json:"detections,omitempty"`
	Detections      []Detection          `json:"detailed_detections,omitempty"`
	Measurements    []Measurement        `json:"measurements"`
	Color           *ColorAnalysis       `json:"color_analysis,omitempty"`
	LateralLine     *LateralLineAnalysis `json:"lateral_line_analysis,omitempty"`
	Metadata        ProcessingMetadata   `json:"processing_metadata"`
	Visualizations  map[string]string    `json:"visualization_paths,omitempty"`
	ErrorMessage    string               `json:"error_message,omitempty"`
}

// NewAnalysisID returns a fresh unique analysis identifier
func NewAnalysisID() string {
	return uuid.NewString()
}

// NewFailedResult builds the failed-item result recorded when the
// analyzer returns an error for one image
func NewFailedResult(imageRef, errMsg string, elapsed time.Duration) *AnalysisResult {
	return &AnalysisResult{
		AnalysisID:   NewAnalysisID(),
		ImagePath:    imageRef,
		Status:       AnalysisFailed,
		Measurements: []Measurement{},
		Metadata: ProcessingMetadata{
			ProcessingTimeSeconds: elapsed.Seconds(),
			ModelVersion:          DefaultModelVersion,
			APIVersion:            APIVersion,
			ProcessedAt:           time.Now().UTC(),
		},
		ErrorMessage: errMsg,
	}
}

// MeanDetectionConfidence averages the per-detection confidences,
// returning false when the result has no detections
func (r *AnalysisResult) MeanDetectionConfidence() (float64, bool) {
	if len(r.Detections) == 0 {
		return 0, false
	}
	var sum float64
	for _, d := range r.Detections {
		sum += d.Confidence
	}
	return sum / float64(len(r.Detections)), true
}

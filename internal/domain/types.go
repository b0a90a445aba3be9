package domain

// BatchStatus represents the lifecycle state of a batch
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// IsTerminal reports whether no further state transitions are possible
func (s BatchStatus) IsTerminal() bool {
	return s == BatchCompleted || s == BatchFailed
}

// AnalysisStatus represents the state of a single image analysis
type AnalysisStatus string

const (
	AnalysisProcessing AnalysisStatus = "processing"
	AnalysisCompleted  AnalysisStatus = "completed"
	AnalysisFailed     AnalysisStatus = "failed"
)

// CorrelationStrength classifies the magnitude of a correlation coefficient
type CorrelationStrength string

const (
	StrengthVeryWeak   CorrelationStrength = "very_weak"
	StrengthWeak       CorrelationStrength = "weak"
	StrengthModerate   CorrelationStrength = "moderate"
	StrengthStrong     CorrelationStrength = "strong"
	StrengthVeryStrong CorrelationStrength = "very_strong"
)

// InsightCategory classifies a generated population insight
type InsightCategory string

const (
	InsightDistribution InsightCategory = "distribution"
	InsightCorrelation  InsightCategory = "correlation"
	InsightOutlier      InsightCategory = "outlier"
)

package domain

// Distribution summarizes one measurement column across a population
type Distribution struct {
	MeasurementName string  `json:"measurement_name"`
	Mean            float64 `json:"mean"`
	Median          float64 `json:"median"`
	StdDev          float64 `json:"std_dev"`
	MinValue        float64 `json:"min_value"`
	MaxValue        float64 `json:"max_value"`
	Q25             float64 `json:"q25"`
	Q75             float64 `json:"q75"`
	Skewness        float64 `json:"skewness"`
	Kurtosis        float64 `json:"kurtosis"`
	SampleSize      int     `json:"sample_size"`
}

// Correlation is a Pearson correlation between two measurement columns
type Correlation struct {
	Measurement1 string              `json:"measurement1"`
	Measurement2 string              `json:"measurement2"`
	Coefficient  float64             `json:"correlation_coefficient"`
	PValue       float64             `json:"p_value"`
	Strength     CorrelationStrength `json:"relationship_strength"`
}

// Insight is one rule-generated natural-language observation
type Insight struct {
	Category     InsightCategory `json:"category"`
	Title        string          `json:"title"`
	Insight      string          `json:"insight"`
	Confidence   float64         `json:"confidence"`
	DataPoints   int             `json:"data_points"`
	Significance *float64        `json:"statistical_significance,omitempty"`
}

// SizeBucket is one tercile of the population by body size
type SizeBucket struct {
	Count      int        `json:"count"`
	Percentage float64    `json:"percentage"`
	Range      [2]float64 `json:"range"`
}

// QualityMetrics buckets detection confidences across the population
type QualityMetrics struct {
	HighConfidence    int     `json:"high_confidence"`
	MediumConfidence  int     `json:"medium_confidence"`
	LowConfidence     int     `json:"low_confidence"`
	AverageConfidence float64 `json:"average_detection_confidence"`
}

// PopulationStatistics is the aggregate analysis of a completed batch.
// It is a value object computed fresh per request.
type PopulationStatistics struct {
	TotalFish             int                   `json:"total_fish"`
	SuccessfulAnalyses    int                   `json:"successful_analyses"`
	FailedAnalyses        int                   `json:"failed_analyses"`
	ProcessingTimeTotal   float64               `json:"processing_time_total"`
	ProcessingTimeAverage float64               `json:"processing_time_average"`
	Distributions         []Distribution        `json:"distributions"`
	Correlations          []Correlation         `json:"correlations"`
	Insights              []Insight             `json:"insights"`
	SizeClassification    map[string]SizeBucket `json:"size_classification"`
	QualityMetrics        QualityMetrics        `json:"quality_metrics"`
}

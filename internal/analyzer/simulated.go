package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/octapulse-dev/octapulse-core/internal/blobstore"
	"github.com/octapulse-dev/octapulse-core/internal/domain"
)

// SimulatedConfig tunes the simulated model.
type SimulatedConfig struct {
	// Latency is the artificial processing time per image.
	Latency time.Duration

	// FailureRate is the fraction of images (0..1) that deterministically
	// fail, selected by image reference so reruns fail the same images.
	FailureRate float64

	// ArtifactTTL bounds how long rendered artifacts stay in the store.
	ArtifactTTL time.Duration
}

// Simulated is a deterministic stand-in for the real detection model.
// All measurements are derived from a hash of the image reference, so
// the same image always produces the same result. It exists for local
// development and demos where no model weights are available.
type Simulated struct {
	store *blobstore.Store
	log   *slog.Logger

	latency     time.Duration
	failureRate float64
	artifactTTL time.Duration
}

// NewSimulated creates a simulated analyzer. The store may be nil when
// no visualization artifacts are needed.
func NewSimulated(store *blobstore.Store, cfg SimulatedConfig, log *slog.Logger) *Simulated {
	return &Simulated{
		store:       store,
		log:         log.With("component", "analyzer"),
		latency:     cfg.Latency,
		failureRate: cfg.FailureRate,
		artifactTTL: cfg.ArtifactTTL,
	}
}

var dimensionPresets = []domain.ImageDimensions{
	{Width: 1920, Height: 1080},
	{Width: 2560, Height: 1440},
	{Width: 3024, Height: 4032},
	{Width: 4000, Height: 3000},
}

// anatomical ratios relative to total length, with jitter bounds
var measurementPlan = []struct {
	name   string
	kind   string
	lo, hi float64
}{
	{"total_length", "length", 1.0, 1.0},
	{"standard_length", "length", 0.82, 0.88},
	{"fork_length", "length", 0.90, 0.94},
	{"head_length", "length", 0.21, 0.26},
	{"body_depth", "depth", 0.28, 0.34},
	{"eye_diameter", "diameter", 0.040, 0.055},
}

// Analyze produces a hash-seeded measurement result for one image.
func (s *Simulated) Analyze(ctx context.Context, imageRef string, opts Options) (*domain.AnalysisResult, error) {
	started := time.Now()

	if s.latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.latency):
		}
	}

	sum := sha256.Sum256([]byte(imageRef))
	if s.failureRate > 0 && float64(sum[0])/256.0 < s.failureRate {
		return nil, fmt.Errorf("no fish detected in %s", filepath.Base(imageRef))
	}

	rng := rand.New(rand.NewSource(int64(binary.BigEndian.Uint64(sum[8:16]))))
	between := func(lo, hi float64) float64 { return lo + rng.Float64()*(hi-lo) }

	gridSize := opts.GridSizeInches
	if gridSize <= 0 {
		gridSize = domain.DefaultGridSizeInches
	}
	ppi := between(48, 72) / gridSize
	totalLength := between(9, 18)
	originX := between(120, 320)
	originY := between(300, 540)

	result := &domain.AnalysisResult{
		AnalysisID: domain.NewAnalysisID(),
		ImagePath:  imageRef,
		Status:     domain.AnalysisCompleted,
		Dimensions: &dimensionPresets[rng.Intn(len(dimensionPresets))],
		Calibration: &domain.CalibrationInfo{
			PixelsPerInch:        ppi,
			GridSquareSizeInches: gridSize,
			DetectedSquares:      40 + rng.Intn(25),
			CalibrationQuality:   calibrationQuality(ppi),
		},
	}

	var bodyDepth float64
	for _, plan := range measurementPlan {
		dist := totalLength * between(plan.lo, plan.hi)
		if plan.name == "body_depth" {
			bodyDepth = dist
		}
		m := domain.Measurement{
			Name:           plan.name,
			DistanceInches: dist,
			Point1:         domain.Point2D{X: originX, Y: originY},
			Label:          fmt.Sprintf("%.2f in", dist),
			Type:           plan.kind,
		}
		switch plan.kind {
		case "depth":
			m.Point2 = &domain.Point2D{X: originX + totalLength*ppi*0.4, Y: originY + dist*ppi}
		case "diameter":
			m.Point1 = domain.Point2D{X: originX + totalLength*ppi*0.08, Y: originY - bodyDepth*ppi*0.2}
			m.Point2 = &domain.Point2D{X: m.Point1.X + dist*ppi, Y: m.Point1.Y}
		default:
			m.Point2 = &domain.Point2D{X: originX + dist*ppi, Y: originY}
		}
		result.Measurements = append(result.Measurements, m)
	}

	fishCount := 1
	if rng.Float64() < 0.15 {
		fishCount = 2
	}
	lengthPx := totalLength * ppi
	depthPx := bodyDepth * ppi
	for i := 0; i < fishCount; i++ {
		conf := between(0.82, 0.99)
		offset := float64(i) * depthPx * 1.6
		mask := lengthPx * depthPx * between(0.60, 0.75)
		result.Detections = append(result.Detections, domain.Detection{
			ClassName:  "fish",
			Confidence: conf,
			BoundingBox: domain.BoundingBox{
				X1:         originX,
				Y1:         originY - depthPx/2 + offset,
				X2:         originX + lengthPx,
				Y2:         originY + depthPx/2 + offset,
				Confidence: conf,
			},
			MaskArea: &mask,
		})
	}
	result.Detections = append(result.Detections, domain.Detection{
		ClassName:  "calibration_grid",
		Confidence: between(0.90, 0.99),
		BoundingBox: domain.BoundingBox{
			X1: 0, Y1: 0,
			X2:         float64(result.Dimensions.Width),
			Y2:         float64(result.Dimensions.Height) * 0.25,
			Confidence: 0.95,
		},
	})
	result.DetectionCounts = map[string]int{
		"fish":             fishCount,
		"calibration_grid": 1,
	}

	if opts.IncludeColorAnalysis {
		result.Color = s.colorProfile(rng, lengthPx, depthPx)
	}
	if opts.IncludeLateralLineAnalysis {
		result.LateralLine = s.lateralLine(rng, originX, originY, lengthPx)
	}
	if opts.IncludeVisualizations && s.store != nil {
		result.Visualizations = s.renderArtifacts(rng, result.AnalysisID)
	}

	result.Metadata = domain.ProcessingMetadata{
		ProcessingTimeSeconds: time.Since(started).Seconds(),
		ModelVersion:          domain.DefaultModelVersion,
		APIVersion:            domain.APIVersion,
		ProcessedAt:           time.Now().UTC(),
	}

	s.log.Debug("image analyzed",
		"image", imageRef,
		"fish", fishCount,
		"total_length_in", totalLength)
	return result, nil
}

func calibrationQuality(ppi float64) string {
	if ppi >= 60 {
		return "excellent"
	}
	return "good"
}

func (s *Simulated) colorProfile(rng *rand.Rand, lengthPx, depthPx float64) *domain.ColorAnalysis {
	between := func(lo, hi float64) float64 { return lo + rng.Float64()*(hi-lo) }
	triple := func(bLo, bHi, gLo, gHi, rLo, rHi float64) []float64 {
		return []float64{between(bLo, bHi), between(gLo, gHi), between(rLo, rHi)}
	}
	p1 := between(0.45, 0.60)
	p2 := between(0.20, 0.30)
	return &domain.ColorAnalysis{
		MeanColorBGR: triple(40, 90, 70, 130, 90, 160),
		DominantColors: [][]float64{
			triple(30, 70, 60, 110, 80, 150),
			triple(90, 140, 110, 160, 130, 190),
			triple(10, 40, 20, 60, 30, 80),
		},
		ColorPercentages: []float64{p1, p2, 1 - p1 - p2},
		ColorVariance:    []float64{between(100, 900), between(100, 900), between(100, 900)},
		TotalPixels:      int(lengthPx * depthPx * 0.7),
	}
}

func (s *Simulated) lateralLine(rng *rand.Rand, originX, originY, lengthPx float64) *domain.LateralLineAnalysis {
	const samples = 12
	points := make([]domain.Point2D, 0, samples)
	var meanDev, maxDev float64
	for i := 0; i < samples; i++ {
		dev := rng.Float64() * 6
		meanDev += dev
		if dev > maxDev {
			maxDev = dev
		}
		points = append(points, domain.Point2D{
			X: originX + lengthPx*float64(i)/(samples-1),
			Y: originY + dev - 3,
		})
	}
	return &domain.LateralLineAnalysis{
		LinearityScore:   0.85 + rng.Float64()*0.14,
		MeanDeviation:    meanDev / samples,
		MaxDeviation:     maxDev,
		CenterlinePoints: points,
	}
}

// renderArtifacts writes stub JPEG payloads to the store and returns
// the artifact keys by kind.
func (s *Simulated) renderArtifacts(rng *rand.Rand, analysisID string) map[string]string {
	paths := make(map[string]string, 2)
	for _, kind := range []string{"annotated", "grid_overlay"} {
		payload := make([]byte, 0, 70)
		payload = append(payload, 0xFF, 0xD8, 0xFF, 0xE0)
		body := make([]byte, 64)
		rng.Read(body)
		payload = append(payload, body...)
		payload = append(payload, 0xFF, 0xD9)

		key := blobstore.ArtifactKey(analysisID, kind)
		s.store.Put(key, payload, "image/jpeg", s.artifactTTL)
		paths[kind] = key
	}
	return paths
}

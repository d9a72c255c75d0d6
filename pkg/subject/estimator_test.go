package subject

import (
	"testing"
	"time"

	"github.com/scribeworks/notegen/pkg/config"
	"github.com/scribeworks/notegen/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func estimatorPipeline() config.Pipeline {
	cfg := config.DefaultPipeline()
	cfg.MinScopeKeywords = 2
	cfg.MaxScopeKeywords = 5
	return cfg
}

func detection(title, goal string, keywords []string, at time.Time) Detection {
	return Detection{Title: title, Goal: goal, Keywords: keywords, DetectedAt: at}
}

func TestDetectionWeight(t *testing.T) {
	assert.InDelta(t, 1.0, DetectionWeight(0), 1e-9)
	// Half-life: weight halves every two minutes.
	assert.InDelta(t, 0.5, DetectionWeight(2*time.Minute), 1e-6)
	assert.InDelta(t, 0.25, DetectionWeight(4*time.Minute), 1e-6)
	// Floor at 0.1 for very old detections.
	assert.Equal(t, 0.1, DetectionWeight(2*time.Hour))
	// Clock skew (future timestamps) clamps to full weight.
	assert.Equal(t, 1.0, DetectionWeight(-time.Minute))
}

func TestObserveRejectsSparseDetections(t *testing.T) {
	e := NewEstimator(estimatorPipeline())
	now := time.Now()

	assert.False(t, e.Observe(detection("", "goal", []string{"a", "b"}, now)))
	assert.False(t, e.Observe(detection("Title", "goal", []string{"only-one"}, now)))
	assert.Equal(t, 0, e.DetectionCount())

	assert.True(t, e.Observe(detection("Title", "goal", []string{"a", "b"}, now)))
	assert.Equal(t, 1, e.DetectionCount())
}

func TestObserveRejectedAfterLock(t *testing.T) {
	e := NewEstimator(estimatorPipeline())
	now := time.Now()
	require.True(t, e.Observe(detection("Title", "goal", []string{"a", "b"}, now)))

	e.Lock()
	assert.True(t, e.Locked())
	assert.False(t, e.Observe(detection("Title", "goal", []string{"a", "b"}, now)))
	assert.Equal(t, 1, e.DetectionCount())
}

func TestBestWeightsRecentDetectionsHigher(t *testing.T) {
	e := NewEstimator(estimatorPipeline())
	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	e.SetClock(func() time.Time { return now })

	// Two stale detections decay to the 0.1 floor each; one fresh
	// detection at full weight outweighs their 0.2 sum.
	old := now.Add(-time.Hour)
	require.True(t, e.Observe(detection("Quarterly Review", "review results", []string{"budget", "metrics"}, old)))
	require.True(t, e.Observe(detection("Quarterly Review", "review results", []string{"budget", "metrics"}, old)))
	require.True(t, e.Observe(detection("Platform Migration", "plan the migration", []string{"kubernetes", "rollout"}, now)))

	title, goal, keywords, ok := e.Best()
	require.True(t, ok)
	assert.Equal(t, "Platform Migration", title)
	assert.Equal(t, "plan the migration", goal)
	assert.Contains(t, keywords, "kubernetes")
}

func TestBestBeforeFirstDetection(t *testing.T) {
	e := NewEstimator(estimatorPipeline())
	_, _, _, ok := e.Best()
	assert.False(t, ok)
}

func TestBestCaseInsensitiveAccumulation(t *testing.T) {
	e := NewEstimator(estimatorPipeline())
	now := time.Now()
	require.True(t, e.Observe(detection("payment gateway", "ship it", []string{"stripe", "api"}, now)))
	require.True(t, e.Observe(detection("Payment Gateway", "ship it", []string{"Stripe", "API"}, now)))
	require.True(t, e.Observe(detection("Random Tangent", "other", []string{"x", "y"}, now)))

	title, _, keywords, ok := e.Best()
	require.True(t, ok)
	// First observed casing wins for the merged component.
	assert.Equal(t, "payment gateway", title)
	assert.Contains(t, keywords, "stripe")
}

func TestBestKeywordLimit(t *testing.T) {
	cfg := estimatorPipeline()
	cfg.MaxScopeKeywords = 3
	e := NewEstimator(cfg)
	now := time.Now()
	require.True(t, e.Observe(detection("T", "g", []string{"k1", "k2", "k3", "k4", "k5"}, now)))

	_, _, keywords, ok := e.Best()
	require.True(t, ok)
	assert.Len(t, keywords, 3)
}

func TestConfidenceBaselineUnderTwoDetections(t *testing.T) {
	e := NewEstimator(estimatorPipeline())

	conf := e.Confidence()
	assert.Equal(t, 0.3, conf.Score)
	assert.Equal(t, models.StabilityUnstable, conf.Status)
	assert.Equal(t, 0, conf.DetectionCount)

	require.True(t, e.Observe(detection("T", "g", []string{"a", "b"}, time.Now())))
	conf = e.Confidence()
	assert.Equal(t, 0.3, conf.Score)
	assert.Equal(t, 1, conf.DetectionCount)
}

func TestConfidenceConsistentDetections(t *testing.T) {
	e := NewEstimator(estimatorPipeline())
	now := time.Now()

	// Two identical detections: full title, goal and keyword agreement,
	// detection bonus 2/5.
	require.True(t, e.Observe(detection("Sprint Planning", "plan the sprint", []string{"backlog", "velocity"}, now)))
	require.True(t, e.Observe(detection("Sprint Planning", "plan the sprint", []string{"backlog", "velocity"}, now)))

	conf := e.Confidence()
	assert.InDelta(t, 0.30+0.25+0.25+0.20*0.4, conf.Score, 1e-9)
	assert.Equal(t, models.StabilityStable, conf.Status)

	// Five identical detections saturate the bonus.
	for i := 0; i < 3; i++ {
		require.True(t, e.Observe(detection("Sprint Planning", "plan the sprint", []string{"backlog", "velocity"}, now)))
	}
	conf = e.Confidence()
	assert.InDelta(t, 1.0, conf.Score, 1e-9)
	assert.Equal(t, 5, conf.DetectionCount)
}

func TestConfidenceDisagreementStaysUnstable(t *testing.T) {
	e := NewEstimator(estimatorPipeline())
	now := time.Now()

	// Fully disjoint detections: no consistency, no recurring keywords,
	// only the detection bonus contributes.
	require.True(t, e.Observe(detection("Topic A", "goal a", []string{"a1", "a2"}, now)))
	require.True(t, e.Observe(detection("Topic B", "goal b", []string{"b1", "b2"}, now)))

	conf := e.Confidence()
	assert.InDelta(t, 0.30*0.5+0.25*0.5+0.20*0.4, conf.Score, 1e-9)
	assert.Equal(t, models.StabilityUnstable, conf.Status)
	assert.Contains(t, conf.Message, "unstable")
}

func TestConfidenceEmergingBand(t *testing.T) {
	e := NewEstimator(estimatorPipeline())
	now := time.Now()

	// Titles and goals split 2/1, keywords fully disjoint:
	// 0.30*(2/3) + 0.25*(2/3) + 0 + 0.20*(3/5) = 0.4866...
	require.True(t, e.Observe(detection("Topic A", "goal a", []string{"a1", "a2"}, now)))
	require.True(t, e.Observe(detection("Topic A", "goal a", []string{"a3", "a4"}, now)))
	require.True(t, e.Observe(detection("Topic B", "goal b", []string{"b1", "b2"}, now)))

	conf := e.Confidence()
	assert.Equal(t, models.StabilityEmerging, conf.Status)
	assert.Equal(t, 3, conf.DetectionCount)
}

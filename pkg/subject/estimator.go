// Package subject maintains the session's draft subject: an LLM-backed
// detector plus a stability estimator that weight-averages noisy
// detections with exponential time decay.
package subject

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/scribeworks/notegen/pkg/config"
	"github.com/scribeworks/notegen/pkg/models"
	"github.com/scribeworks/notegen/pkg/textutil"
)

const (
	// halfLifeMs is the age at which a detection's weight decays to 0.5.
	halfLifeMs = 120000

	// weightFloor keeps old evidence from fully decaying.
	weightFloor = 0.1
	weightCeil  = 1.0

	// baselineConfidence applies while fewer than two detections exist.
	baselineConfidence = 0.3
)

// Stability factor weights.
const (
	titleConsistencyWeight = 0.30
	goalConsistencyWeight  = 0.25
	keywordStabilityWeight = 0.25
	detectionBonusWeight   = 0.20
)

// weightedComponent tracks one candidate value across detections. The
// cumulative weight is monotonically non-decreasing within a session.
type weightedComponent struct {
	value            string // original case from first observation
	cumulativeWeight float64
	firstSeenAt      time.Time
	lastSeenAt       time.Time
	occurrenceCount  int
}

// Detection is one successful subject detection result.
type Detection struct {
	Title         string
	Goal          string
	Keywords      []string
	DetectedAt    time.Time
	WindowStartMs int64
	WindowEndMs   int64
}

// Estimator accumulates detections into weighted candidate maps and
// exposes the current best subject with a stability score. Not safe for
// concurrent use; the session controller serializes access.
type Estimator struct {
	cfg      config.Pipeline
	titles   map[string]*weightedComponent
	goals    map[string]*weightedComponent
	keywords map[string]*weightedComponent
	history  []Detection
	locked   bool
	now      func() time.Time
}

// NewEstimator creates an estimator with the given keyword bounds.
func NewEstimator(cfg config.Pipeline) *Estimator {
	return &Estimator{
		cfg:      cfg,
		titles:   make(map[string]*weightedComponent),
		goals:    make(map[string]*weightedComponent),
		keywords: make(map[string]*weightedComponent),
		now:      time.Now,
	}
}

// SetClock overrides the estimator's clock. Test hook.
func (e *Estimator) SetClock(now func() time.Time) {
	e.now = now
}

// DetectionWeight computes the exponential time-decay weight of a
// detection of the given age, clamped to [0.1, 1.0].
func DetectionWeight(age time.Duration) float64 {
	ageMs := float64(age.Milliseconds())
	if ageMs < 0 {
		ageMs = 0
	}
	w := math.Exp(-math.Ln2 * ageMs / halfLifeMs)
	if w < weightFloor {
		return weightFloor
	}
	if w > weightCeil {
		return weightCeil
	}
	return w
}

// Observe folds a detection into the weighted maps. Returns false when
// the subject is locked or the detection carries fewer than the minimum
// scope keywords; such detections are ignored entirely.
func (e *Estimator) Observe(d Detection) bool {
	if e.locked {
		return false
	}
	if d.Title == "" || len(d.Keywords) < e.cfg.MinScopeKeywords {
		return false
	}

	w := DetectionWeight(e.now().Sub(d.DetectedAt))

	e.bump(e.titles, d.Title, w, d.DetectedAt)
	if d.Goal != "" {
		e.bump(e.goals, d.Goal, w, d.DetectedAt)
	}
	for _, kw := range d.Keywords {
		e.bump(e.keywords, kw, w, d.DetectedAt)
	}

	e.history = append(e.history, d)
	return true
}

func (e *Estimator) bump(m map[string]*weightedComponent, value string, w float64, at time.Time) {
	key := textutil.NormalizeKey(value)
	if key == "" {
		return
	}
	comp, ok := m[key]
	if !ok {
		comp = &weightedComponent{value: value, firstSeenAt: at}
		m[key] = comp
	}
	comp.cumulativeWeight += w
	comp.occurrenceCount++
	comp.lastSeenAt = at
}

// Best returns the current best title, goal and top keywords by
// cumulative weight. ok is false before the first accepted detection.
func (e *Estimator) Best() (title, goal string, keywords []string, ok bool) {
	if len(e.history) == 0 {
		return "", "", nil, false
	}
	title = heaviest(e.titles)
	goal = heaviest(e.goals)
	keywords = topValues(e.keywords, e.cfg.MaxScopeKeywords)
	return title, goal, keywords, true
}

func heaviest(m map[string]*weightedComponent) string {
	var best *weightedComponent
	for _, comp := range m {
		if best == nil || comp.cumulativeWeight > best.cumulativeWeight ||
			(comp.cumulativeWeight == best.cumulativeWeight && comp.firstSeenAt.Before(best.firstSeenAt)) {
			best = comp
		}
	}
	if best == nil {
		return ""
	}
	return best.value
}

func topValues(m map[string]*weightedComponent, limit int) []string {
	comps := make([]*weightedComponent, 0, len(m))
	for _, comp := range m {
		comps = append(comps, comp)
	}
	sort.Slice(comps, func(i, j int) bool {
		if comps[i].cumulativeWeight != comps[j].cumulativeWeight {
			return comps[i].cumulativeWeight > comps[j].cumulativeWeight
		}
		return comps[i].firstSeenAt.Before(comps[j].firstSeenAt)
	})
	if len(comps) > limit {
		comps = comps[:limit]
	}
	values := make([]string, len(comps))
	for i, comp := range comps {
		values[i] = comp.value
	}
	return values
}

// DetectionCount returns the number of accepted detections.
func (e *Estimator) DetectionCount() int {
	return len(e.history)
}

// History returns the accepted detections in observation order.
func (e *Estimator) History() []Detection {
	return e.history
}

// Lock freezes the estimator; subsequent Observe calls are rejected.
func (e *Estimator) Lock() {
	e.locked = true
}

// Locked reports whether the estimator has been locked.
func (e *Estimator) Locked() bool {
	return e.locked
}

// Confidence computes the stability assessment from the detection
// history: agreement on title and goal, keyword recurrence, and a bonus
// that saturates at five detections.
func (e *Estimator) Confidence() models.SubjectConfidence {
	n := len(e.history)
	if n < 2 {
		return models.SubjectConfidence{
			Score:          baselineConfidence,
			Status:         statusForScore(baselineConfidence),
			Message:        messageForStatus(statusForScore(baselineConfidence), n),
			DetectionCount: n,
		}
	}

	titleConsistency := modalFraction(e.history, func(d Detection) string { return d.Title })
	goalConsistency := modalFraction(e.history, func(d Detection) string { return d.Goal })
	keywordStability := recurringKeywordFraction(e.history)
	detectionBonus := math.Min(1, float64(n)/5)

	score := titleConsistencyWeight*titleConsistency +
		goalConsistencyWeight*goalConsistency +
		keywordStabilityWeight*keywordStability +
		detectionBonusWeight*detectionBonus

	score = math.Max(0, math.Min(1, score))
	status := statusForScore(score)

	return models.SubjectConfidence{
		Score:          score,
		Status:         status,
		Message:        messageForStatus(status, n),
		DetectionCount: n,
	}
}

// modalFraction returns the share of detections agreeing on the most
// common normalized value of the extracted field.
func modalFraction(history []Detection, field func(Detection) string) float64 {
	counts := make(map[string]int)
	total := 0
	for _, d := range history {
		key := textutil.NormalizeKey(field(d))
		if key == "" {
			continue
		}
		counts[key]++
		total++
	}
	if total == 0 {
		return 0
	}
	max := 0
	for _, c := range counts {
		if c > max {
			max = c
		}
	}
	return float64(max) / float64(total)
}

// recurringKeywordFraction returns the share of unique normalized
// keywords that appear in more than one detection.
func recurringKeywordFraction(history []Detection) float64 {
	detectionCounts := make(map[string]int)
	for _, d := range history {
		seen := make(map[string]struct{})
		for _, kw := range d.Keywords {
			key := textutil.NormalizeKey(kw)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			detectionCounts[key]++
		}
	}
	if len(detectionCounts) == 0 {
		return 0
	}
	recurring := 0
	for _, c := range detectionCounts {
		if c > 1 {
			recurring++
		}
	}
	return float64(recurring) / float64(len(detectionCounts))
}

func statusForScore(score float64) models.StabilityStatus {
	switch {
	case score < 0.4:
		return models.StabilityUnstable
	case score < 0.6:
		return models.StabilityEmerging
	case score < 0.85:
		return models.StabilityLikelyStable
	default:
		return models.StabilityStable
	}
}

func messageForStatus(status models.StabilityStatus, detections int) string {
	switch status {
	case models.StabilityUnstable:
		return fmt.Sprintf("Subject is still unstable after %d detection(s)", detections)
	case models.StabilityEmerging:
		return fmt.Sprintf("Subject is emerging across %d detections", detections)
	case models.StabilityLikelyStable:
		return fmt.Sprintf("Subject is likely stable across %d detections", detections)
	default:
		return fmt.Sprintf("Subject is stable across %d detections", detections)
	}
}

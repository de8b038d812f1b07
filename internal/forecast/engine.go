package forecast

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/riskpulse/riskpulse/internal/signal"
)

// Defaults for forecast generation.
const (
	DefaultHorizon  = 8
	DefaultLookback = 168 * time.Hour
	maxSeriesPoints = 240
)

// Engine generates forecasts from signal metric samples.
type Engine struct {
	signals signal.Store
	now     func() time.Time
}

// NewEngine creates a forecast engine.
func NewEngine(signals signal.Store) *Engine {
	return &Engine{
		signals: signals,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock injects a deterministic clock for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// ListMetrics returns the metric names observed within the lookback window.
func (e *Engine) ListMetrics(ctx context.Context, lookback time.Duration) ([]string, error) {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return e.signals.ListMetricNames(ctx, e.now().Add(-lookback))
}

// Generate forecasts the named metric horizon steps ahead. An empty series
// yields an insufficient_data result with zero confidence, never an error.
func (e *Engine) Generate(ctx context.Context, metric string, horizon int, lookback time.Duration) (*Result, error) {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	if lookback <= 0 {
		lookback = DefaultLookback
	}

	samples, err := e.signals.ListMetricSamples(ctx, metric, e.now().Add(-lookback), maxSeriesPoints)
	if err != nil {
		return nil, fmt.Errorf("load series for %s: %w", metric, err)
	}

	series := make([]Point, len(samples))
	for i, s := range samples {
		series[i] = Point{Timestamp: s.Timestamp, Value: s.Value}
	}

	switch {
	case len(series) == 0:
		return &Result{
			Metric:      metric,
			Method:      MethodInsufficientData,
			Trend:       TrendStable,
			Confidence:  0,
			Observed:    []Point{},
			Predicted:   []Point{},
			GeneratedAt: e.now(),
		}, nil
	case len(series) < 3:
		return e.naive(metric, series, horizon), nil
	default:
		return e.linear(metric, series, horizon), nil
	}
}

// naive repeats the last observed value across the horizon.
func (e *Engine) naive(metric string, series []Point, horizon int) *Result {
	last := series[len(series)-1]
	step := estimateStep(series)

	predicted := make([]Point, horizon)
	for i := 0; i < horizon; i++ {
		predicted[i] = Point{
			Timestamp: last.Timestamp.Add(step * time.Duration(i+1)),
			Value:     last.Value,
		}
	}
	return &Result{
		Metric:      metric,
		Method:      MethodNaive,
		Trend:       TrendStable,
		Confidence:  0.45,
		Observed:    series,
		Predicted:   predicted,
		GeneratedAt: e.now(),
	}
}

// linear fits y = slope*x + intercept by least squares and projects forward.
func (e *Engine) linear(metric string, series []Point, horizon int) *Result {
	base := series[0].Timestamp
	n := float64(len(series))

	var sumX, sumY, sumXY, sumXX float64
	for _, p := range series {
		x := p.Timestamp.Sub(base).Seconds()
		sumX += x
		sumY += p.Value
		sumXY += x * p.Value
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	var slope, intercept float64
	if denom != 0 {
		slope = (n*sumXY - sumX*sumY) / denom
		intercept = (sumY - slope*sumX) / n
	} else {
		intercept = sumY / n
	}

	// Root-mean-square residual of the fit.
	var sse float64
	for _, p := range series {
		x := p.Timestamp.Sub(base).Seconds()
		d := p.Value - (slope*x + intercept)
		sse += d * d
	}
	residual := math.Sqrt(sse / n)

	step := estimateStep(series)
	last := series[len(series)-1]
	predicted := make([]Point, horizon)
	for i := 0; i < horizon; i++ {
		ts := last.Timestamp.Add(step * time.Duration(i+1))
		x := ts.Sub(base).Seconds()
		predicted[i] = Point{Timestamp: ts, Value: slope*x + intercept}
	}

	trend := TrendStable
	if slope > 0 {
		trend = TrendRising
	} else if slope < 0 {
		trend = TrendFalling
	}

	valueScale := math.Max(stddev(series, sumY/n), 1e-6)
	fitQuality := math.Max(0, 1.0-residual/(valueScale*2.0))
	confidence := math.Min(0.95, math.Max(0.5, 0.5+fitQuality*0.4))

	return &Result{
		Metric:      metric,
		Method:      MethodLinear,
		Trend:       trend,
		Confidence:  math.Round(confidence*1000) / 1000,
		Observed:    series,
		Predicted:   predicted,
		GeneratedAt: e.now(),
	}
}

// estimateStep derives the projection step from the median positive gap
// between observations, clamped to [1m, 24h].
func estimateStep(series []Point) time.Duration {
	if len(series) < 2 {
		return time.Hour
	}
	var gaps []float64
	for i := 1; i < len(series); i++ {
		if d := series[i].Timestamp.Sub(series[i-1].Timestamp).Seconds(); d > 0 {
			gaps = append(gaps, d)
		}
	}
	if len(gaps) == 0 {
		return time.Hour
	}
	sort.Float64s(gaps)
	median := gaps[len(gaps)/2]
	if len(gaps)%2 == 0 {
		median = (gaps[len(gaps)/2-1] + gaps[len(gaps)/2]) / 2
	}
	median = math.Max(60, math.Min(median, 24*3600))
	return time.Duration(median * float64(time.Second))
}

func stddev(series []Point, mean float64) float64 {
	if len(series) == 0 {
		return 0
	}
	var sum float64
	for _, p := range series {
		d := p.Value - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(series)))
}

// Concern evaluation thresholds.
const (
	minConcernConfidence       = 0.6
	directionalChangeThreshold = 0.08
	unknownChangeThreshold     = 0.15
	criticalChangeThreshold    = 0.20
	criticalConfidence         = 0.7
)

var higherIsBadKeywords = []string{"churn", "latency", "error", "cac", "cost"}
var lowerIsBadKeywords = []string{"mrr", "arr", "revenue", "throughput", "request_rate", "engagement"}

// EvaluateConcern decides whether a forecast is bad enough to raise an
// incident. Returns nil when the trend is benign or the fit too weak.
func EvaluateConcern(result *Result) *Concern {
	if result.Confidence < minConcernConfidence || len(result.Observed) == 0 || len(result.Predicted) == 0 {
		return nil
	}

	observedLast := result.Observed[len(result.Observed)-1].Value
	predictedLast := result.Predicted[len(result.Predicted)-1].Value
	if observedLast == 0 {
		return nil
	}
	changeRatio := (predictedLast - observedLast) / math.Abs(observedLast)

	metric := strings.ToLower(result.Metric)
	higherIsBad := containsAny(metric, higherIsBadKeywords)
	lowerIsBad := containsAny(metric, lowerIsBadKeywords)

	var direction string
	switch {
	case higherIsBad && changeRatio >= directionalChangeThreshold:
		direction = "increasing"
	case lowerIsBad && changeRatio <= -directionalChangeThreshold:
		direction = "declining"
	case !higherIsBad && !lowerIsBad && math.Abs(changeRatio) >= unknownChangeThreshold:
		direction = "increasing"
		if changeRatio < 0 {
			direction = "declining"
		}
	default:
		return nil
	}

	severity := "high"
	if math.Abs(changeRatio) >= criticalChangeThreshold && result.Confidence >= criticalConfidence {
		severity = "critical"
	}

	directionWord := "upward"
	if changeRatio < 0 {
		directionWord = "downward"
	}

	return &Concern{
		Metric:    result.Metric,
		Title:     fmt.Sprintf("[Forecast] %s %s trend risk", result.Metric, direction),
		Direction: direction,
		Severity:  severity,
		Description: fmt.Sprintf(
			"Forecast indicates %s pressure for %s. Projected change is %+.1f%% from the latest observed value with %.0f%% confidence.",
			directionWord, result.Metric, changeRatio*100, result.Confidence*100),
		Hypothesis: fmt.Sprintf(
			"Trend shift in %s may be linked to correlated system/support/financial changes.", result.Metric),
		Actions: strings.Join([]string{
			"1. Validate forecast against recent anomaly and ticket trends.",
			"2. Run correlation graph on related signals to identify leading indicators.",
			"3. Define mitigation owner and watch thresholds for next cycle.",
		}, "\n"),
		Confidence:  result.Confidence,
		ChangeRatio: changeRatio,
		GeneratedAt: result.GeneratedAt,
	}
}

// CollectConcerns generates forecasts for up to maxMetrics recent metrics
// and returns those judged concerning, in metric name order.
func (e *Engine) CollectConcerns(ctx context.Context, maxMetrics, horizon int, lookback time.Duration) ([]*Concern, error) {
	if maxMetrics <= 0 {
		maxMetrics = 6
	}
	names, err := e.ListMetrics(ctx, lookback)
	if err != nil {
		return nil, err
	}
	if len(names) > maxMetrics {
		names = names[:maxMetrics]
	}

	var concerns []*Concern
	for _, name := range names {
		result, err := e.Generate(ctx, name, horizon, lookback)
		if err != nil {
			return nil, err
		}
		if c := EvaluateConcern(result); c != nil {
			concerns = append(concerns, c)
		}
	}
	return concerns, nil
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

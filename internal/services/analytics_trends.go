package services

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/temcen/drillsense/pkg/models"
)

var defaultTrendWindows = []int{7, 30, 90}

type trendMetric struct {
	name         string
	higherIsBest bool
	value        func(models.PerformanceRecord) (float64, bool)
}

var trendMetrics = []trendMetric{
	{
		name:         "completion_rate",
		higherIsBest: true,
		value: func(r models.PerformanceRecord) (float64, bool) {
			return float64(r.CompletionRate), true
		},
	},
	{
		name:         "satisfaction",
		higherIsBest: true,
		value: func(r models.PerformanceRecord) (float64, bool) {
			if r.Satisfaction == nil {
				return 0, false
			}
			return float64(*r.Satisfaction), true
		},
	},
	{
		name:         "injury_incidents",
		higherIsBest: false,
		value: func(r models.PerformanceRecord) (float64, bool) {
			return float64(r.InjuryIncidents), true
		},
	},
	{
		name:         "intensity",
		higherIsBest: true,
		value: func(r models.PerformanceRecord) (float64, bool) {
			return r.AverageIntensity, true
		},
	},
}

// performanceTrends compares the first and second half of each trailing window.
// perf must be sorted by timestamp. Windows with fewer than two records, and
// metrics missing from either half, are omitted.
func performanceTrends(perf []models.PerformanceRecord, now time.Time, windows []int, threshold float64) []models.PerformanceTrend {
	if len(windows) == 0 {
		windows = defaultTrendWindows
	}
	if threshold <= 0 {
		threshold = 5
	}

	trends := make([]models.PerformanceTrend, 0)
	for _, days := range windows {
		since := now.AddDate(0, 0, -days)
		window := make([]models.PerformanceRecord, 0)
		for _, r := range perf {
			if r.Timestamp.After(since) && !r.Timestamp.After(now) {
				window = append(window, r)
			}
		}
		if len(window) < 2 {
			continue
		}

		half := len(window) / 2
		for _, m := range trendMetrics {
			first := metricValues(window[:half], m)
			second := metricValues(window[half:], m)
			if len(first) == 0 || len(second) == 0 {
				continue
			}

			change := percentChange(stat.Mean(first, nil), stat.Mean(second, nil))
			trends = append(trends, models.PerformanceTrend{
				Metric:        m.name,
				WindowDays:    days,
				ChangePercent: change,
				Direction:     trendDirection(change, threshold, m.higherIsBest),
				SampleSize:    len(first) + len(second),
			})
		}
	}
	return trends
}

func metricValues(records []models.PerformanceRecord, m trendMetric) []float64 {
	values := make([]float64, 0, len(records))
	for _, r := range records {
		if v, ok := m.value(r); ok {
			values = append(values, v)
		}
	}
	return values
}

// percentChange returns 0 when the baseline is 0.
func percentChange(before, after float64) float64 {
	if before == 0 {
		return 0
	}
	return (after - before) / absFloat(before) * 100
}

func trendDirection(change, threshold float64, higherIsBest bool) models.TrendDirection {
	if !higherIsBest {
		change = -change
	}
	switch {
	case change > threshold:
		return models.TrendImproving
	case change < -threshold:
		return models.TrendDeclining
	default:
		return models.TrendStable
	}
}

// seasonalUsage buckets usage by hockey season. Ratios sum to 1 when there is
// any usage; peak and lowest months are chosen among observed months.
func seasonalUsage(usage []models.UsageEvent) models.SeasonalUsage {
	ratios := make(map[models.Season]float64, 4)
	for _, s := range models.Seasons() {
		ratios[s] = 0
	}
	result := models.SeasonalUsage{Ratios: ratios}
	if len(usage) == 0 {
		return result
	}

	months := make(map[time.Month]int)
	for _, e := range usage {
		m := e.Timestamp.Month()
		months[m]++
		ratios[models.SeasonForMonth(int(m))]++
	}
	for s := range ratios {
		ratios[s] /= float64(len(usage))
	}

	observed := make([]time.Month, 0, len(months))
	for m := range months {
		observed = append(observed, m)
	}
	sort.Slice(observed, func(i, j int) bool { return observed[i] < observed[j] })

	peak, lowest := observed[0], observed[0]
	for _, m := range observed[1:] {
		if months[m] > months[peak] {
			peak = m
		}
		if months[m] < months[lowest] {
			lowest = m
		}
	}
	result.PeakMonth = peak.String()
	result.LowestMonth = lowest.String()
	return result
}

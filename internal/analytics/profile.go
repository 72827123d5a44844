package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/rpattn/resultgrid/internal/domain"
)

// Histogram heuristics. The bucket cap and precision thresholds decide how a
// column is rendered in the stats panel.
const (
	MaxBucketCount = 12

	// Boundary decimals by observed range (max - min).
	fineRangeLimit   = 1.0   // below: 6 decimals
	unitRangeLimit   = 12.0  // up to: 2 decimals
	tensRangeLimit   = 120.0 // up to: 1 decimal, above: 0
	fineDecimals     = 6
	unitDecimals     = 2
	tensDecimals     = 1
	coarseDecimals   = 0
	medianFineCutoff = 1.0

	secondsPerDay = 24 * 60 * 60
	dateLayout    = "2006-01-02"
)

type columnProjection struct {
	keys     []float64
	flatMin  float64
	flatMax  float64
	integral bool
}

// Profile buckets a column and computes its summary statistics.
//
// Rows whose value is null, missing, an empty container or an unparseable
// timestamp count as nulls. Every other row lands in exactly one bucket.
func Profile(dataset domain.Dataset, column string, columnType domain.ColumnType) (domain.ColumnProfile, error) {
	if err := columnType.Validate(); err != nil {
		return domain.ColumnProfile{}, err
	}

	profile := domain.ColumnProfile{
		Column:  column,
		Type:    columnType,
		Buckets: []domain.Bucket{},
	}

	projection := project(dataset, column, columnType)
	if len(projection.keys) == 0 {
		profile.Stats = domain.ColumnStats{MinValue: "", MaxValue: ""}
		return profile, nil
	}

	keys := projection.keys
	sort.SliceStable(keys, func(i, j int) bool { return lessNaNLast(keys[i], keys[j]) })

	minValue, maxValue := keys[0], keys[len(keys)-1]
	if domain.IsAllNumericalTypes(columnType) && domain.IsContainerType(columnType) {
		minValue, maxValue = projection.flatMin, projection.flatMax
	}

	integerBucketing := projection.integral || domain.IsTextType(columnType)
	profile.Buckets = bucketize(keys, minValue, maxValue, integerBucketing, columnType)
	profile.Stats = domain.ColumnStats{
		TotalRows:   len(dataset),
		NullCount:   len(dataset) - len(keys),
		MinValue:    minValue,
		MaxValue:    maxValue,
		MedianValue: median(keys, columnType),
	}
	return profile, nil
}

func project(dataset domain.Dataset, column string, columnType domain.ColumnType) columnProjection {
	projection := columnProjection{
		keys:     make([]float64, 0, len(dataset)),
		flatMin:  math.Inf(1),
		flatMax:  math.Inf(-1),
		integral: true,
	}
	numericContainer := domain.IsAllNumericalTypes(columnType) && domain.IsContainerType(columnType)

	for _, record := range dataset {
		value, ok := present(record, column)
		if !ok {
			continue
		}
		key, ok := orderKey(columnType, value)
		if !ok {
			continue
		}
		projection.keys = append(projection.keys, key)

		if !numericContainer {
			if !isIntegral(key) {
				projection.integral = false
			}
			continue
		}
		for _, item := range cellElements(value) {
			n := numberValue(item)
			if !isIntegral(n) {
				projection.integral = false
			}
			switch {
			case math.IsNaN(n) || math.IsNaN(projection.flatMin):
				projection.flatMin, projection.flatMax = math.NaN(), math.NaN()
			default:
				projection.flatMin = math.Min(projection.flatMin, n)
				projection.flatMax = math.Max(projection.flatMax, n)
			}
		}
	}
	return projection
}

// bucketCountFor clamps the range to [1, MaxBucketCount]. Fractional ranges
// round down so each bucket spans at least one unit.
func bucketCountFor(valueRange float64) int {
	switch {
	case math.IsNaN(valueRange) || valueRange < 1:
		return 1
	case valueRange <= MaxBucketCount:
		return int(math.Floor(valueRange))
	default:
		return MaxBucketCount
	}
}

func boundaryDecimals(observedRange float64) int {
	switch {
	case observedRange < fineRangeLimit:
		return fineDecimals
	case observedRange <= unitRangeLimit:
		return unitDecimals
	case observedRange <= tensRangeLimit:
		return tensDecimals
	default:
		return coarseDecimals
	}
}

// bucketize splits [minValue, maxValue] into contiguous buckets. Bucket i holds
// keys in [start_i, start_i+1); the last bucket runs through maxValue.
// Buckets are half-open: a fractional range floors the bucket count, and
// non-integer buckets report End as the next bucket's Start.
func bucketize(keys []float64, minValue, maxValue float64, integer bool, columnType domain.ColumnType) []domain.Bucket {
	valueRange := maxValue - minValue + 1
	count := bucketCountFor(valueRange)
	size := valueRange / float64(count)

	starts := make([]float64, count+1)
	for i := 0; i <= count; i++ {
		starts[i] = minValue + float64(i)*size
		if integer {
			starts[i] = math.Floor(starts[i])
		}
	}

	counts := make([]int, count)
	for _, key := range keys {
		if idx, ok := locate(key, starts, maxValue); ok {
			counts[idx]++
		}
	}

	decimals := boundaryDecimals(maxValue - minValue)
	buckets := make([]domain.Bucket, count)
	for i := 0; i < count; i++ {
		start := starts[i]
		end := starts[i+1]
		if integer {
			end = starts[i+1] - 1
		}
		if i == count-1 {
			end = maxValue
		}
		buckets[i] = domain.Bucket{
			Index: i,
			Start: renderBoundary(start, decimals, columnType),
			End:   renderBoundary(end, decimals, columnType),
			Count: counts[i],
		}
	}
	return buckets
}

func locate(key float64, starts []float64, maxValue float64) (int, bool) {
	last := len(starts) - 2
	for i := 0; i <= last; i++ {
		if key < starts[i] {
			return 0, false
		}
		if i == last {
			if key <= maxValue {
				return i, true
			}
			return 0, false
		}
		if key < starts[i+1] {
			return i, true
		}
	}
	return 0, false
}

func renderBoundary(value float64, decimals int, columnType domain.ColumnType) any {
	if columnType == domain.ColumnTypeTimestamp {
		return formatDate(value)
	}
	return roundTo(value, decimals)
}

func formatDate(seconds float64) any {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return seconds
	}
	return time.Unix(int64(seconds), 0).UTC().Format(dateLayout)
}

// median averages the two middle keys for even counts. Timestamp medians are
// rounded to the nearest day and reported as a date.
func median(sorted []float64, columnType domain.ColumnType) any {
	n := len(sorted)
	var m float64
	if n%2 == 1 {
		m = sorted[n/2]
	} else {
		m = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	if columnType == domain.ColumnTypeTimestamp {
		if math.IsNaN(m) {
			return m
		}
		day := math.Round(m / secondsPerDay)
		return formatDate(day * secondsPerDay)
	}
	if m < medianFineCutoff {
		return roundTo(m, fineDecimals)
	}
	return roundTo(m, unitDecimals)
}

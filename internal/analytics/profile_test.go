package analytics

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rpattn/resultgrid/internal/domain"
)

func numericDataset(column string, values ...any) domain.Dataset {
	dataset := make(domain.Dataset, len(values))
	for i, v := range values {
		dataset[i] = domain.Record{column: v}
	}
	return dataset
}

func bucketTotal(buckets []domain.Bucket) int {
	total := 0
	for _, b := range buckets {
		total += b.Count
	}
	return total
}

func TestProfileNumericalMedianAndBuckets(t *testing.T) {
	dataset := numericDataset("x", 1, 2, 3, 4)

	profile, err := Profile(dataset, "x", domain.ColumnTypeNumerical)
	require.NoError(t, err)

	require.Equal(t, 4, profile.Stats.TotalRows)
	require.Equal(t, 0, profile.Stats.NullCount)
	require.Equal(t, 1.0, profile.Stats.MinValue)
	require.Equal(t, 4.0, profile.Stats.MaxValue)
	require.Equal(t, 2.5, profile.Stats.MedianValue)

	require.Len(t, profile.Buckets, 4)
	for i, b := range profile.Buckets {
		require.Equal(t, i, b.Index)
		require.Equal(t, float64(i+1), b.Start)
		require.Equal(t, float64(i+1), b.End)
		require.Equal(t, 1, b.Count)
	}
}

func TestProfileTextUsesLength(t *testing.T) {
	dataset := numericDataset("t", "text short", "a much longer text value")

	profile, err := Profile(dataset, "t", domain.ColumnTypeText)
	require.NoError(t, err)

	require.Equal(t, 10.0, profile.Stats.MinValue)
	require.Equal(t, 24.0, profile.Stats.MaxValue)
	require.Equal(t, 17.0, profile.Stats.MedianValue)
	require.Len(t, profile.Buckets, MaxBucketCount)
	require.Equal(t, 1, profile.Buckets[0].Count)
	require.Equal(t, 1, profile.Buckets[MaxBucketCount-1].Count)
	require.Equal(t, 24.0, profile.Buckets[MaxBucketCount-1].End)
}

func TestProfileEmptyAndAllNull(t *testing.T) {
	for name, dataset := range map[string]domain.Dataset{
		"empty":    {},
		"all null": numericDataset("x", nil, nil),
		"missing":  {domain.Record{"y": 1}},
	} {
		t.Run(name, func(t *testing.T) {
			profile, err := Profile(dataset, "x", domain.ColumnTypeNumerical)
			require.NoError(t, err)
			require.Empty(t, profile.Buckets)
			require.Equal(t, 0, profile.Stats.TotalRows)
			require.Equal(t, "", profile.Stats.MinValue)
			require.Equal(t, "", profile.Stats.MaxValue)
			require.Nil(t, profile.Stats.MedianValue)
		})
	}
}

func TestProfileUnsupportedType(t *testing.T) {
	_, err := Profile(numericDataset("x", 1), "x", domain.ColumnType("Matrix"))
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrUnsupportedColumnType))
}

func TestProfileNullCount(t *testing.T) {
	dataset := numericDataset("x", 5, nil, 7, []any{})
	profile, err := Profile(dataset, "x", domain.ColumnTypeNumerical)
	require.NoError(t, err)
	require.Equal(t, 4, profile.Stats.TotalRows)
	require.Equal(t, 2, profile.Stats.NullCount)
	require.Equal(t, 2, bucketTotal(profile.Buckets))
}

func TestProfileSingleValue(t *testing.T) {
	profile, err := Profile(numericDataset("x", 42, 42, 42), "x", domain.ColumnTypeNumerical)
	require.NoError(t, err)
	require.Len(t, profile.Buckets, 1)
	require.Equal(t, 3, profile.Buckets[0].Count)
	require.Equal(t, 42.0, profile.Buckets[0].Start)
	require.Equal(t, 42.0, profile.Buckets[0].End)
	require.Equal(t, 42.0, profile.Stats.MedianValue)
}

func TestProfileFractionalValues(t *testing.T) {
	profile, err := Profile(numericDataset("x", 0.1, 0.25, 0.4), "x", domain.ColumnTypeNumerical)
	require.NoError(t, err)
	require.Len(t, profile.Buckets, 1)
	require.Equal(t, 3, profile.Buckets[0].Count)
	require.Equal(t, 0.1, profile.Buckets[0].Start)
	require.Equal(t, 0.4, profile.Buckets[0].End)
	require.Equal(t, 0.25, profile.Stats.MedianValue)
}

func TestProfileWideRangeCapsBuckets(t *testing.T) {
	values := make([]any, 0, 1000)
	for i := 0; i < 1000; i++ {
		values = append(values, i)
	}
	profile, err := Profile(numericDataset("x", values...), "x", domain.ColumnTypeNumerical)
	require.NoError(t, err)
	require.Len(t, profile.Buckets, MaxBucketCount)
	require.Equal(t, 1000, bucketTotal(profile.Buckets))
	require.Equal(t, 999.0, profile.Buckets[MaxBucketCount-1].End)
	require.Equal(t, 499.5, profile.Stats.MedianValue)
}

func TestProfileBucketsAreContiguous(t *testing.T) {
	profile, err := Profile(numericDataset("x", 3, 17, 29, 30, 55, 91), "x", domain.ColumnTypeNumerical)
	require.NoError(t, err)
	require.Equal(t, 6, bucketTotal(profile.Buckets))
	for i := 1; i < len(profile.Buckets); i++ {
		prevEnd := profile.Buckets[i-1].End.(float64)
		start := profile.Buckets[i].Start.(float64)
		require.Equal(t, start-1, prevEnd)
	}
}

func TestProfileNumericContainerUsesFlattenedRange(t *testing.T) {
	dataset := numericDataset("scores",
		[]any{5.0, 100.0},
		[]any{1.0, 2.0},
		[]any{},
		[]any{3.0},
	)
	profile, err := Profile(dataset, "scores", domain.ColumnTypeSequenceNumerical)
	require.NoError(t, err)
	require.Equal(t, 1.0, profile.Stats.MinValue)
	require.Equal(t, 100.0, profile.Stats.MaxValue)
	require.Equal(t, 1, profile.Stats.NullCount)
	require.Equal(t, 3, bucketTotal(profile.Buckets))
	require.Equal(t, 3.0, profile.Stats.MedianValue)
}

func TestProfileTimestamp(t *testing.T) {
	dataset := numericDataset("created",
		"2024-01-01T00:00:00Z",
		"2024-01-03T00:00:00Z",
		"not a date",
		time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
	)
	profile, err := Profile(dataset, "created", domain.ColumnTypeTimestamp)
	require.NoError(t, err)

	require.Equal(t, 4, profile.Stats.TotalRows)
	require.Equal(t, 1, profile.Stats.NullCount)
	require.Equal(t, float64(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix()), profile.Stats.MinValue)
	require.Equal(t, float64(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC).Unix()), profile.Stats.MaxValue)
	require.Equal(t, "2024-01-03", profile.Stats.MedianValue)
	require.Len(t, profile.Buckets, MaxBucketCount)
	require.Equal(t, "2024-01-01", profile.Buckets[0].Start)
	require.Equal(t, "2024-01-05", profile.Buckets[MaxBucketCount-1].End)
	require.Equal(t, 3, bucketTotal(profile.Buckets))
}

func TestProfileTimestampMedianRoundsToNearestDay(t *testing.T) {
	afternoon := numericDataset("created", "2024-01-01T13:00:00Z", "2024-01-01T14:00:00Z")
	profile, err := Profile(afternoon, "created", domain.ColumnTypeTimestamp)
	require.NoError(t, err)
	require.Equal(t, "2024-01-02", profile.Stats.MedianValue)

	morning := numericDataset("created", "2024-01-01T01:00:00Z", "2024-01-01T02:00:00Z")
	profile, err = Profile(morning, "created", domain.ColumnTypeTimestamp)
	require.NoError(t, err)
	require.Equal(t, "2024-01-01", profile.Stats.MedianValue)
}

func TestProfileTextContainerUsesJoinedLength(t *testing.T) {
	dataset := numericDataset("tags", []any{"ab", "cd"}, []any{"abcdefgh"}, []any{}, nil)

	for _, columnType := range []domain.ColumnType{domain.ColumnTypeSequenceText, domain.ColumnTypeSetText} {
		profile, err := Profile(dataset, "tags", columnType)
		require.NoError(t, err)

		require.Equal(t, 2, profile.Stats.NullCount)
		require.Equal(t, 5.0, profile.Stats.MinValue)
		require.Equal(t, 8.0, profile.Stats.MaxValue)
		require.Equal(t, 6.5, profile.Stats.MedianValue)
		require.Len(t, profile.Buckets, 4)
		require.Equal(t, 5.0, profile.Buckets[0].Start)
		require.Equal(t, 5.0, profile.Buckets[0].End)
		require.Equal(t, 8.0, profile.Buckets[3].End)
		require.Equal(t, []int{1, 0, 0, 1}, []int{
			profile.Buckets[0].Count, profile.Buckets[1].Count, profile.Buckets[2].Count, profile.Buckets[3].Count,
		})
	}
}

func TestProfileBoundaryPrecision(t *testing.T) {
	tests := []struct {
		name        string
		values      []any
		buckets     int
		firstStart  float64
		secondStart float64
		lastEnd     float64
	}{
		{name: "below one keeps six decimals", values: []any{0.1234567, 0.5}, buckets: 1, firstStart: 0.123457, lastEnd: 0.5},
		{name: "up to twelve keeps two", values: []any{1, 2.5, 9.123}, buckets: 9, firstStart: 1, secondStart: 2.01, lastEnd: 9.12},
		{name: "up to one twenty keeps one", values: []any{0.5, 33.14159, 77.77777}, buckets: MaxBucketCount, firstStart: 0.5, secondStart: 7.0, lastEnd: 77.8},
		{name: "wider ranges keep none", values: []any{0.4, 250.6}, buckets: MaxBucketCount, firstStart: 0, secondStart: 21, lastEnd: 251},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile, err := Profile(numericDataset("x", tt.values...), "x", domain.ColumnTypeNumerical)
			require.NoError(t, err)
			require.Len(t, profile.Buckets, tt.buckets)
			require.InDelta(t, tt.firstStart, profile.Buckets[0].Start, 1e-9)
			if tt.buckets > 1 {
				require.InDelta(t, tt.secondStart, profile.Buckets[1].Start, 1e-9)
			}
			require.InDelta(t, tt.lastEnd, profile.Buckets[tt.buckets-1].End, 1e-9)
			require.Equal(t, len(tt.values), bucketTotal(profile.Buckets))
		})
	}
}

func TestBoundaryDecimalsThresholds(t *testing.T) {
	tests := []struct {
		observedRange float64
		want          int
	}{
		{0, 6},
		{0.999, 6},
		{1, 2},
		{12, 2},
		{12.01, 1},
		{120, 1},
		{120.5, 0},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, boundaryDecimals(tt.observedRange), "range %v", tt.observedRange)
	}
}

func TestProfileInvalidNumbersBecomeNaN(t *testing.T) {
	profile, err := Profile(numericDataset("x", "abc"), "x", domain.ColumnTypeNumerical)
	require.NoError(t, err)
	require.Equal(t, 1, profile.Stats.TotalRows)
	require.True(t, math.IsNaN(profile.Stats.MinValue.(float64)))
	require.Len(t, profile.Buckets, 1)
}

func TestProfileDoesNotMutateInput(t *testing.T) {
	dataset := numericDataset("x", 4, 1, 3)
	_, err := Profile(dataset, "x", domain.ColumnTypeNumerical)
	require.NoError(t, err)
	require.Equal(t, numericDataset("x", 4, 1, 3), dataset)
}

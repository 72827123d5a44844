package table

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/rpattn/resultgrid/internal/analytics"
	"github.com/rpattn/resultgrid/internal/domain"
	"github.com/rpattn/resultgrid/internal/metrics"
)

// ProfilerConfig tunes the column profiler.
type ProfilerConfig struct {
	CacheSize int
	Workers   int
	TopK      int
}

// DefaultProfilerConfig returns the defaults used when nothing is configured.
func DefaultProfilerConfig() ProfilerConfig {
	return ProfilerConfig{
		CacheSize: 512,
		Workers:   4,
		TopK:      10,
	}
}

// ColumnSummary is everything the stats panel shows for one column.
// Categorical columns are charted from Frequencies rather than the buckets.
type ColumnSummary struct {
	Profile     domain.ColumnProfile    `json:"profile"`
	Cardinality int                     `json:"cardinality"`
	Frequencies []domain.FrequencyShare `json:"frequencies"`
	Categorical bool                    `json:"categorical"`
}

// profileKey identifies a summary. A result set's version changes whenever its
// rows do, so stale entries are never served.
type profileKey struct {
	resultSetID uuid.UUID
	version     int64
	column      string
	columnType  domain.ColumnType
}

// Profiler computes column summaries concurrently and memoizes them.
type Profiler struct {
	cache   *lru.Cache[profileKey, ColumnSummary]
	workers int
	topK    int
	metrics *metrics.Metrics
}

// NewProfiler creates a profiler with a bounded summary cache.
func NewProfiler(cfg ProfilerConfig, m *metrics.Metrics) (*Profiler, error) {
	defaults := DefaultProfilerConfig()
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaults.CacheSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaults.TopK
	}

	cache, err := lru.New[profileKey, ColumnSummary](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile cache: %w", err)
	}
	return &Profiler{cache: cache, workers: cfg.Workers, topK: cfg.TopK, metrics: m}, nil
}

// Summaries profiles the named columns of rs over its unfiltered rows. An
// empty column list profiles every column. Results follow the requested order.
func (p *Profiler) Summaries(ctx context.Context, rs domain.ResultSet, columns []string) ([]ColumnSummary, error) {
	if len(columns) == 0 {
		columns = rs.ColumnNames()
	}

	descriptors := make([]domain.ColumnDescriptor, len(columns))
	for i, name := range columns {
		column, ok := rs.Column(name)
		if !ok {
			return nil, fmt.Errorf("unknown column %q", name)
		}
		descriptors[i] = column
	}

	summaries := make([]ColumnSummary, len(descriptors))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, column := range descriptors {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			summary, err := p.summary(rs, column)
			if err != nil {
				return err
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

func (p *Profiler) summary(rs domain.ResultSet, column domain.ColumnDescriptor) (ColumnSummary, error) {
	key := profileKey{resultSetID: rs.ID, version: rs.Version, column: column.Name, columnType: column.Type}
	if cached, ok := p.cache.Get(key); ok {
		p.observeCache("hit")
		return cached, nil
	}
	p.observeCache("miss")

	start := time.Now()
	profile, err := analytics.Profile(rs.Rows, column.Name, column.Type)
	if err != nil {
		return ColumnSummary{}, fmt.Errorf("failed to profile column %s: %w", column.Name, err)
	}
	summary := ColumnSummary{
		Profile:     profile,
		Cardinality: analytics.Cardinality(rs.Rows, column.Name),
		Frequencies: domain.TopFrequencies(analytics.FrequencyTable(rs.Rows, column.Name), p.topK),
		Categorical: domain.IsCategoricalType(column.Type),
	}
	p.cache.Add(key, summary)

	if p.metrics != nil {
		p.metrics.ProfilesComputed.WithLabelValues(string(column.Type)).Inc()
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		log.Printf("[PROFILE] column %s of result set %s took %s (%d rows)", column.Name, rs.ID, elapsed, len(rs.Rows))
	}
	return summary, nil
}

func (p *Profiler) observeCache(outcome string) {
	if p.metrics != nil {
		p.metrics.ProfileCache.WithLabelValues(outcome).Inc()
	}
}

// Forget drops the cached summaries of one result set, across all versions.
func (p *Profiler) Forget(resultSetID uuid.UUID) {
	for _, key := range p.cache.Keys() {
		if key.resultSetID == resultSetID {
			p.cache.Remove(key)
		}
	}
}

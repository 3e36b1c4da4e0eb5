package bufferpool

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/Blackdeer1524/RelDB/src/pkg/assert"
)

// poolMetrics tracks buffer pool traffic through the otel metric API.
// Without an SDK installed the counters are no-ops.
type poolMetrics struct {
	hits      metric.Int64Counter
	misses    metric.Int64Counter
	evictions metric.Int64Counter
	flushes   metric.Int64Counter
}

func newPoolMetrics() *poolMetrics {
	meter := otel.Meter("reldb/bufferpool")

	hits, err := meter.Int64Counter("bufferpool.hits")
	assert.NoError(err)
	misses, err := meter.Int64Counter("bufferpool.misses")
	assert.NoError(err)
	evictions, err := meter.Int64Counter("bufferpool.evictions")
	assert.NoError(err)
	flushes, err := meter.Int64Counter("bufferpool.flushes")
	assert.NoError(err)

	return &poolMetrics{
		hits:      hits,
		misses:    misses,
		evictions: evictions,
		flushes:   flushes,
	}
}

func (p *poolMetrics) hit()     { p.hits.Add(context.Background(), 1) }
func (p *poolMetrics) miss()    { p.misses.Add(context.Background(), 1) }
func (p *poolMetrics) evicted() { p.evictions.Add(context.Background(), 1) }
func (p *poolMetrics) flushed() { p.flushes.Add(context.Background(), 1) }

package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	tipHeight      prometheus.Gauge
	nextHeight     prometheus.Gauge
	blocksInserted prometheus.Counter
	rollbacks      prometheus.Counter
	fetchFailures  *prometheus.CounterVec
	idlePolls      prometheus.Counter
	insertDuration prometheus.Histogram
}

// newMetrics builds the sync collectors and registers them on reg when it is not nil
func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		tipHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cellar_tip_height", Help: "Tip height last reported by the node",
		}),
		nextHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cellar_next_height", Help: "Next block height to ingest",
		}),
		blocksInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cellar_blocks_inserted_total", Help: "Blocks written to the store",
		}),
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cellar_rollbacks_total", Help: "Blocks removed after a parent hash mismatch",
		}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cellar_fetch_failures_total", Help: "Transient failures by call",
		}, []string{"call"}),
		idlePolls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cellar_idle_polls_total", Help: "Polls that found no new block",
		}),
		insertDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "cellar_insert_duration_seconds", Help: "InsertBlock latency", Buckets: prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{
		m.tipHeight, m.nextHeight, m.blocksInserted, m.rollbacks, m.fetchFailures, m.idlePolls, m.insertDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

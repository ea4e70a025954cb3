package server

import (
	"fmt"

	"github.com/ValentinKolb/dCache/lib/db"
	"github.com/ValentinKolb/dCache/rpc/common"
	"github.com/VictoriaMetrics/metrics"
)

// serverMetrics counts RPC traffic per module. All series live in a private set,
// so several servers in one process do not share counters.
type serverMetrics struct {
	set *metrics.Set
}

func newServerMetrics() *serverMetrics {
	return &serverMetrics{set: metrics.NewSet()}
}

// observe records one handled request
func (m *serverMetrics) observe(module string, req, resp *common.Message) {
	m.set.GetOrCreateCounter(fmt.Sprintf(`dcache_rpc_requests_total{module=%q,type=%q}`, module, req.MsgType)).Inc()

	if resp.Err != "" {
		m.set.GetOrCreateCounter(fmt.Sprintf(`dcache_rpc_errors_total{module=%q,code=%q}`, module, resp.Code)).Inc()
		return
	}

	switch req.MsgType {
	case common.MsgTKVGet, common.MsgTKVGets, common.MsgTKVGetAndDelete, common.MsgTKVCounterGet, common.MsgTCacheRead:
		if resp.Found {
			m.set.GetOrCreateCounter(fmt.Sprintf(`dcache_hits_total{module=%q}`, module)).Inc()
		} else {
			m.set.GetOrCreateCounter(fmt.Sprintf(`dcache_misses_total{module=%q}`, module)).Inc()
		}
	}
}

// registerShard adds gauges for the entry count and estimated size of a shard's store.
// They are evaluated on every scrape.
func (m *serverMetrics) registerShard(shard *Shard) {
	info := func(field func(db.DatabaseInfo) int) func() float64 {
		return func() float64 {
			i, err := shard.Store.GetDBInfo()
			if err != nil {
				return 0
			}
			return float64(field(i))
		}
	}
	m.set.NewGauge(fmt.Sprintf(`dcache_entries{module=%q}`, shard.Module),
		info(func(i db.DatabaseInfo) int { return i.Entries }))
	m.set.NewGauge(fmt.Sprintf(`dcache_size_bytes{module=%q}`, shard.Module),
		info(func(i db.DatabaseInfo) int { return i.SizeBytes }))
}

// unknownShard records a request for a shard that is not served
func (m *serverMetrics) unknownShard() {
	m.set.GetOrCreateCounter(`dcache_rpc_unknown_shard_total`).Inc()
}

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// 指标定义
var (
	CacheLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ambient_cache_load_attempts_total", Help: "Audio load attempts by result"},
		[]string{"result"},
	)
	CacheLoadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ambient_cache_load_duration_seconds",
			Help:    "Time to fetch and decode one track",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)
	CacheReady = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "ambient_cache_ready_tracks", Help: "Ready tracks per category"},
		[]string{"category"},
	)
	Crossfades = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ambient_crossfades_total", Help: "Transitions by shape"},
		[]string{"shape"},
	)
	LanePlaying = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "ambient_lane_playing", Help: "1 while the lane is playing"},
		[]string{"category"},
	)
	LaneVolume = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "ambient_lane_volume", Help: "Lane volume 0..100"},
		[]string{"category"},
	)
	CatalogPolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ambient_catalog_polls_total", Help: "Catalog polls by outcome"},
		[]string{"outcome"},
	)
	StatusClients = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "ambient_status_clients", Help: "Connected status websocket clients"},
	)
)

var registerOnce sync.Once

// RegisterMetrics 注册全部指标，可重复调用
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			CacheLoads, CacheLoadDuration, CacheReady,
			Crossfades, LanePlaying, LaneVolume,
			CatalogPolls, StatusClients,
		)
	})
}

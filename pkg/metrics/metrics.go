package metrics

import (
	"time"

	"github.com/wicketlabs/pavilion/internal/config"
	"github.com/wicketlabs/pavilion/pkg/metrics/metricsTypes"
	"github.com/wicketlabs/pavilion/pkg/metrics/prometheus"
	"go.uber.org/zap"
)

type MetricsSinkConfig struct{}

// MetricsSink fans metrics out to the registered clients. A sink with no
// clients is valid and cheap, so library code can emit unconditionally.
type MetricsSink struct {
	config  *MetricsSinkConfig
	clients []metricsTypes.IMetricsClient
}

func NewMetricsSink(cfg *MetricsSinkConfig, clients []metricsTypes.IMetricsClient) (*MetricsSink, error) {
	if clients == nil {
		clients = make([]metricsTypes.IMetricsClient, 0)
	}
	return &MetricsSink{
		config:  cfg,
		clients: clients,
	}, nil
}

func (ms *MetricsSink) Incr(name string, labels []metricsTypes.MetricsLabel, value float64) {
	if ms == nil {
		return
	}
	for _, c := range ms.clients {
		_ = c.Incr(name, labels, value)
	}
}

func (ms *MetricsSink) Gauge(name string, value float64, labels []metricsTypes.MetricsLabel) {
	if ms == nil {
		return
	}
	for _, c := range ms.clients {
		_ = c.Gauge(name, value, labels)
	}
}

func (ms *MetricsSink) Timing(name string, value time.Duration, labels []metricsTypes.MetricsLabel) {
	if ms == nil {
		return
	}
	for _, c := range ms.clients {
		_ = c.Timing(name, value, labels)
	}
}

func (ms *MetricsSink) Flush() {
	if ms == nil {
		return
	}
	for _, c := range ms.clients {
		c.Flush()
	}
}

// InitMetricsSinksFromConfig builds the metrics clients enabled in config.
// An empty slice is a valid result; the sink handles it.
func InitMetricsSinksFromConfig(cfg *config.Config, l *zap.Logger) ([]metricsTypes.IMetricsClient, error) {
	clients := make([]metricsTypes.IMetricsClient, 0)

	if cfg.PrometheusConfig.Enabled {
		promClient, err := prometheus.NewPrometheusMetricsClient(&prometheus.PrometheusMetricsConfig{
			Metrics: MetricTypes(),
		}, l)
		if err != nil {
			return nil, err
		}
		clients = append(clients, promClient)
	}

	return clients, nil
}

// MetricTypes returns the metric definitions clients should register.
func MetricTypes() map[metricsTypes.MetricsType][]metricsTypes.MetricsTypeConfig {
	return map[metricsTypes.MetricsType][]metricsTypes.MetricsTypeConfig{
		metricsTypes.MetricsType_Incr: {
			{Name: metricsTypes.Metric_Incr_SnapshotCaptured, Labels: []string{"snapshotType"}},
			{Name: metricsTypes.Metric_Incr_SnapshotTokenFailed, Labels: []string{}},
			{Name: metricsTypes.Metric_Incr_TransferAttempted, Labels: []string{}},
			{Name: metricsTypes.Metric_Incr_TransferSucceeded, Labels: []string{}},
			{Name: metricsTypes.Metric_Incr_TransferFailed, Labels: []string{}},
			{Name: metricsTypes.Metric_Incr_PackAllocated, Labels: []string{}},
		},
		metricsTypes.MetricsType_Timing: {
			{Name: metricsTypes.Metric_Timing_SnapshotCapture, Labels: []string{}},
			{Name: metricsTypes.Metric_Timing_DistributionRun, Labels: []string{}},
		},
	}
}

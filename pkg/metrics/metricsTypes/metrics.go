package metricsTypes

import "time"

type IMetricsClient interface {
	Incr(name string, labels []MetricsLabel, value float64) error
	Gauge(name string, value float64, labels []MetricsLabel) error
	Timing(name string, value time.Duration, labels []MetricsLabel) error
	Flush()
}

type MetricsLabel struct {
	Name  string
	Value string
}

type MetricsType string

var (
	MetricsType_Incr   MetricsType = "incr"
	MetricsType_Gauge  MetricsType = "gauge"
	MetricsType_Timing MetricsType = "timing"
)

type MetricsTypeConfig struct {
	Name   string
	Labels []string
}

var (
	Metric_Incr_SnapshotCaptured    = "snapshot.captured"
	Metric_Incr_SnapshotTokenFailed = "snapshot.tokenQueryFailed"
	Metric_Incr_TransferAttempted   = "distribution.transferAttempted"
	Metric_Incr_TransferSucceeded   = "distribution.transferSucceeded"
	Metric_Incr_TransferFailed      = "distribution.transferFailed"
	Metric_Incr_PackAllocated       = "packs.allocated"

	Metric_Timing_SnapshotCapture = "snapshot.captureDuration"
	Metric_Timing_DistributionRun = "distribution.runDuration"
)

package notify

import "expvar"

var (
	metricQueuedTotal       = expvar.NewInt("notify_queued_total")
	metricDroppedTotal      = expvar.NewInt("notify_dropped_total")
	metricRetryTotal        = expvar.NewInt("notify_retry_total")
	metricRetryDroppedTotal = expvar.NewInt("notify_retry_dropped_total")
	metricSentTotal         = expvar.NewInt("notify_sent_total")
	metricFailedTotal       = expvar.NewInt("notify_failed_total")
	metricCircuitOpenTotal  = expvar.NewInt("notify_circuit_open_total")
	metricConfigReloadTotal = expvar.NewInt("notify_config_reload_total")
	metricConfigReloadError = expvar.NewInt("notify_config_reload_error_total")
)

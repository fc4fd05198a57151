package httptransport

import "expvar"

var (
	metricSpectatorSSETotal  = expvar.NewInt("spectator_sse_connections_total")
	metricSpectatorSSEActive = expvar.NewInt("spectator_sse_connections_active")

	metricHistoryQueryTotal  = expvar.NewInt("history_query_total")
	metricHistoryQueryErrors = expvar.NewInt("history_query_errors_total")
)

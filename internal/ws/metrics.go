package ws

import "expvar"

var (
	metricConnectionsActive = expvar.NewInt("ws_connections_active")
	metricInputDropped      = expvar.NewInt("ws_input_dropped_total")
	metricSendDropped       = expvar.NewInt("ws_send_dropped_total")
)

package arena

import "expvar"

var (
	metricGamesCreated      = expvar.NewInt("games_created_total")
	metricGamesCreateFailed = expvar.NewInt("games_create_failed_total")
	metricGamesActive       = expvar.NewInt("games_active")
	metricLobbyExpired      = expvar.NewInt("lobby_expired_total")
	metricSlotDoubleRelease = expvar.NewInt("slot_double_release_total")

	metricTicks         = expvar.NewInt("ticks_total")
	metricTickOverrun   = expvar.NewInt("tick_overrun_total")
	metricSessionErrors = expvar.NewInt("session_errors_total")
)

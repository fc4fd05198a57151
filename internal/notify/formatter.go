package notify

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"interactive-gym/internal/arena"
	"interactive-gym/internal/notify/platforms"
)

const (
	colorActive   = 0x5865F2
	colorProgress = 0x3BA55D
	colorDone     = 0x57F287
	colorWarn     = 0xFEE75C

	shortIDLimit  = 10
	defaultFooter = "interactive-gym"
)

// panelPlatforms edit one message per session instead of posting per event.
var panelPlatforms = map[string]bool{"discord": true, "feishu": true}

// formatMessage renders ev for target. Session events on panel platforms
// share the session's panel; the game_ended message closes it.
func formatMessage(target Target, ev Event) (platforms.Message, bool) {
	msg := platforms.Message{
		Title:     fmt.Sprintf("%s · %s", fallback(ev.Env, "game"), shortID(ev.SessionUUID)),
		Timestamp: ev.At.UTC().Format(time.RFC3339),
		Footer:    defaultFooter,
		Data:      ev,
	}
	episode := fmt.Sprintf("%d/%d", ev.EpisodeNum, ev.EpisodeBudget)

	switch ev.Type {
	case EventGameStarted:
		msg.Content = "game started"
		msg.Description = fmt.Sprintf("Game started with %d human(s) and %d bot(s).", len(ev.Humans), len(ev.Bots))
		msg.Color = colorActive
		msg.Fields = append(msg.Fields, platforms.Field{Name: "Episode", Value: episode, Inline: true})
		msg.Fields = append(msg.Fields, rosterFields(ev)...)
	case EventEpisodeEnded:
		msg.Content = "episode " + episode + " finished"
		msg.Description = fmt.Sprintf("Episode %s finished after %d ticks.", episode, ev.Ticks)
		msg.Color = colorProgress
		msg.Fields = append(msg.Fields, platforms.Field{Name: "Episode", Value: episode, Inline: true})
		msg.Fields = append(msg.Fields, rewardFields("Reward", ev.Rewards)...)
		msg.Fields = append(msg.Fields, rewardFields("Total", ev.TotalRewards)...)
	case EventGameEnded:
		msg.Content = "game ended"
		msg.Description = fmt.Sprintf("Game ended after %d of %d episode(s).", ev.EpisodeNum, ev.EpisodeBudget)
		msg.Color = colorDone
		if ev.EndReason != "" && ev.EndReason != arena.ReasonComplete {
			msg.Color = colorWarn
		}
		msg.Fields = append(msg.Fields, platforms.Field{Name: "Result", Value: fallback(ev.EndReason, ev.Status), Inline: true})
		msg.Fields = append(msg.Fields, rosterFields(ev)...)
		msg.Fields = append(msg.Fields, rewardFields("Total", ev.TotalRewards)...)
	case EventLobbyTimeout:
		msg.Content = "waiting room timed out"
		msg.Description = fmt.Sprintf("Waiting room closed with %d participant(s).", len(ev.Humans))
		msg.Color = colorWarn
		return msg, true
	default:
		return platforms.Message{}, false
	}
	if panelPlatforms[target.Platform] {
		msg.PanelKey = ev.SessionUUID
	}
	return msg, true
}

func rosterFields(ev Event) []platforms.Field {
	var out []platforms.Field
	for _, role := range sortedKeys(ev.Humans) {
		out = append(out, platforms.Field{Name: role, Value: "human " + shortID(ev.Humans[role]), Inline: true})
	}
	for _, role := range sortedKeys(ev.Bots) {
		out = append(out, platforms.Field{Name: role, Value: "policy " + ev.Bots[role], Inline: true})
	}
	return out
}

func rewardFields(label string, rewards map[string]float64) []platforms.Field {
	if len(rewards) == 0 {
		return nil
	}
	parts := make([]string, 0, len(rewards))
	for _, role := range sortedKeys(rewards) {
		parts = append(parts, role+" "+strconv.FormatFloat(rewards[role], 'f', -1, 64))
	}
	return []platforms.Field{{Name: label, Value: strings.Join(parts, ", "), Inline: false}}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func shortID(v string) string {
	if len(v) <= shortIDLimit {
		return v
	}
	return v[:shortIDLimit]
}

func fallback(v, d string) string {
	if strings.TrimSpace(v) == "" {
		return d
	}
	return v
}

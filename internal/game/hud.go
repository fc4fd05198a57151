package game

import (
	"strings"
	"text/template"
)

// hudView is the data a HUD template sees. Reward maps are keyed by role name.
type hudView struct {
	Episode  int
	Episodes int
	Tick     int
	Rewards  map[string]float64
	Totals   map[string]float64
}

// TemplateHUD compiles a text/template into a HUDFunc, for example
// `Episode {{.Episode}}/{{.Episodes}} | Score {{index .Rewards "left"}}`.
// A template that fails at render time yields an empty HUD.
func TemplateHUD(text string) (HUDFunc, error) {
	tmpl, err := template.New("hud").Option("missingkey=zero").Parse(text)
	if err != nil {
		return nil, err
	}
	return func(snap Snapshot) string {
		var b strings.Builder
		if err := tmpl.Execute(&b, hudView{
			Episode:  snap.EpisodeNum,
			Episodes: snap.EpisodeBudget,
			Tick:     snap.TickNum,
			Rewards:  byRoleName(snap.EpisodeRewards),
			Totals:   byRoleName(snap.TotalRewards),
		}); err != nil {
			return ""
		}
		return b.String()
	}, nil
}

func byRoleName(m map[Role]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

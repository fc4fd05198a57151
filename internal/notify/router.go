package notify

import "slices"

func matchTargets(targets []Target, ev Event) []Target {
	var out []Target
	for _, t := range targets {
		if !t.Enabled || !scopeMatches(t, ev) || !eventAllowed(t.EventAllowlist, ev.Type) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func scopeMatches(t Target, ev Event) bool {
	switch t.ScopeType {
	case "all":
		return true
	case "env":
		return t.ScopeValue != "" && t.ScopeValue == ev.Env
	}
	return false
}

func eventAllowed(allowlist []string, evType string) bool {
	return len(allowlist) == 0 || slices.Contains(allowlist, evType)
}

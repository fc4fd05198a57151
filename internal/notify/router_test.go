package notify

import "testing"

func TestMatchTargets(t *testing.T) {
	targets := []Target{
		{Platform: "discord", Endpoint: "https://x/1", ScopeType: "all", Enabled: true},
		{Platform: "feishu", Endpoint: "https://x/2", ScopeType: "env", ScopeValue: "catch", Enabled: true},
		{Platform: "webhook", Endpoint: "https://x/3", ScopeType: "env", ScopeValue: "overcooked", Enabled: true},
		{Platform: "webhook", Endpoint: "https://x/4", ScopeType: "all", Enabled: true, EventAllowlist: []string{EventGameEnded}},
		{Platform: "webhook", Endpoint: "https://x/5", ScopeType: "all", Enabled: false},
	}

	if got := matchTargets(targets, Event{Type: EventEpisodeEnded, Env: "catch"}); len(got) != 2 {
		t.Fatalf("expected 2 targets for episode_ended, got %d", len(got))
	}
	if got := matchTargets(targets, Event{Type: EventGameEnded, Env: "catch"}); len(got) != 3 {
		t.Fatalf("expected 3 targets for game_ended, got %d", len(got))
	}
	if got := matchTargets(targets, Event{Type: EventGameStarted, Env: "overcooked"}); len(got) != 2 {
		t.Fatalf("expected 2 targets for overcooked, got %d", len(got))
	}
}

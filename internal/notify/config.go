package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"interactive-gym/internal/config"
)

func ConfigFromServer(cfg config.ServerConfig) (Config, error) {
	out := Config{
		Enabled:             cfg.NotifyEnabled,
		ConfigPath:          strings.TrimSpace(cfg.NotifyConfigPath),
		ConfigReload:        time.Duration(cfg.NotifyConfigReloadMS) * time.Millisecond,
		Workers:             cfg.NotifyWorkers,
		RetryMax:            max(cfg.NotifyRetryMax, 0),
		RetryBase:           time.Duration(cfg.NotifyRetryBaseMS) * time.Millisecond,
		FailureThreshold:    3,
		CircuitOpenDuration: 30 * time.Second,
		RequestTimeout:      5 * time.Second,
		DispatchBuffer:      1024,
	}
	if !out.Enabled {
		return out, nil
	}

	raw := strings.TrimSpace(cfg.NotifyConfigJSON)
	if out.ConfigPath != "" {
		b, err := os.ReadFile(out.ConfigPath)
		if err != nil {
			return Config{}, fmt.Errorf("read notify config %q: %w", out.ConfigPath, err)
		}
		raw = strings.TrimSpace(string(b))
	}
	if raw == "" {
		return out, nil
	}
	targets, err := parseTargets(raw)
	if err != nil {
		return Config{}, err
	}
	out.Targets = targets
	return out, nil
}

// parseTargets decodes a JSON target list and drops disabled or malformed
// entries.
func parseTargets(raw string) ([]Target, error) {
	var targets []Target
	if err := json.Unmarshal([]byte(raw), &targets); err != nil {
		return nil, fmt.Errorf("parse notify targets: %w", err)
	}
	out := make([]Target, 0, len(targets))
	for _, t := range targets {
		t.Platform = strings.ToLower(strings.TrimSpace(t.Platform))
		t.ScopeType = strings.ToLower(strings.TrimSpace(t.ScopeType))
		if t.ScopeType == "" {
			t.ScopeType = "all"
		}
		if t.ScopeType != "all" && t.ScopeType != "env" {
			continue
		}
		t.Endpoint = strings.TrimSpace(t.Endpoint)
		if t.Endpoint == "" || !t.Enabled {
			continue
		}
		for i := range t.EventAllowlist {
			t.EventAllowlist[i] = strings.ToLower(strings.TrimSpace(t.EventAllowlist[i]))
		}
		out = append(out, t)
	}
	return out, nil
}

package platforms

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestDiscordAdapterPayload(t *testing.T) {
	var got map[string]any
	client := newTestHTTPClient(func(r *http.Request) (*http.Response, error) {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return response(http.StatusNoContent, ""), nil
	})

	adapter := NewDiscordAdapter(client)
	err := adapter.Send(context.Background(), "https://discord.example/webhook", "", Message{
		Title:       "Game started",
		Content:     "catch",
		Description: "2 players",
		Color:       12345,
		Timestamp:   "2026-01-01T00:00:00Z",
		Footer:      "footer-text",
		Fields: []Field{
			{Name: "left", Value: "p1", Inline: true},
			{Name: "right", Value: "random", Inline: false},
		},
	})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if got["content"] != "catch" {
		t.Fatalf("unexpected content: %v", got["content"])
	}
	embeds, ok := got["embeds"].([]any)
	if !ok || len(embeds) != 1 {
		t.Fatalf("unexpected embeds: %#v", got["embeds"])
	}
	embed := embeds[0].(map[string]any)
	if embed["description"] != "2 players" || embed["color"] != float64(12345) {
		t.Fatalf("unexpected embed: %#v", embed)
	}
	footer, ok := embed["footer"].(map[string]any)
	if !ok || footer["text"] != "footer-text" {
		t.Fatalf("unexpected footer: %#v", embed["footer"])
	}
	fields, ok := embed["fields"].([]any)
	if !ok || len(fields) != 2 {
		t.Fatalf("unexpected fields: %#v", embed["fields"])
	}
	if second := fields[1].(map[string]any); second["inline"] != false {
		t.Fatalf("expected second field inline=false, got %#v", second)
	}
}

func TestDiscordAdapterPanelEditsInPlace(t *testing.T) {
	var methods, paths []string
	client := newTestHTTPClient(func(r *http.Request) (*http.Response, error) {
		methods = append(methods, r.Method)
		paths = append(paths, r.URL.Path+"?"+r.URL.RawQuery)
		if r.Method == http.MethodPost {
			return response(http.StatusOK, `{"id":"m123"}`), nil
		}
		return response(http.StatusNoContent, ""), nil
	})

	endpoint := "https://discord.example/api/webhooks/wid/wtoken"
	adapter := NewDiscordAdapter(client)
	msg := Message{PanelKey: "sess-1", Title: "t", Description: "d"}
	for i := 0; i < 2; i++ {
		if err := adapter.Send(context.Background(), endpoint, "", msg); err != nil {
			t.Fatalf("send %d failed: %v", i, err)
		}
	}
	adapter.ForgetPanel(endpoint, msg.PanelKey)
	if adapter.panels.len() != 0 {
		t.Fatal("ForgetPanel kept the message id")
	}
	if err := adapter.Send(context.Background(), endpoint, "", msg); err != nil {
		t.Fatalf("third send failed: %v", err)
	}

	want := []string{http.MethodPost, http.MethodPatch, http.MethodPost}
	if strings.Join(methods, ",") != strings.Join(want, ",") {
		t.Fatalf("methods = %v, want %v", methods, want)
	}
	if !strings.Contains(paths[0], "wait=true") {
		t.Fatalf("create request missing wait=true: %s", paths[0])
	}
	if !strings.Contains(paths[1], "/api/webhooks/wid/wtoken/messages/m123") {
		t.Fatalf("unexpected patch path: %s", paths[1])
	}
}

func TestDiscordAdapterRecreatesDeletedPanel(t *testing.T) {
	var methods []string
	client := newTestHTTPClient(func(r *http.Request) (*http.Response, error) {
		methods = append(methods, r.Method)
		if r.Method == http.MethodPatch {
			return response(http.StatusNotFound, `{"message":"Unknown Message"}`), nil
		}
		return response(http.StatusOK, `{"id":"m9"}`), nil
	})
	endpoint := "https://discord.example/api/webhooks/wid/wtoken"
	adapter := NewDiscordAdapter(client)
	msg := Message{PanelKey: "sess-2", Title: "t"}
	for i := 0; i < 2; i++ {
		if err := adapter.Send(context.Background(), endpoint, "", msg); err != nil {
			t.Fatalf("send %d failed: %v", i, err)
		}
	}
	want := []string{http.MethodPost, http.MethodPatch, http.MethodPost}
	if strings.Join(methods, ",") != strings.Join(want, ",") {
		t.Fatalf("methods = %v, want %v", methods, want)
	}
}

func TestHTTPClientErrorRedactsToken(t *testing.T) {
	client := newTestHTTPClient(func(*http.Request) (*http.Response, error) {
		return response(http.StatusInternalServerError, "boom"), nil
	})
	_, _, err := client.Post(context.Background(), "https://discord.example/api/webhooks/wid/secret-token", nil, map[string]string{})
	if err == nil {
		t.Fatal("expected error for 500")
	}
	if strings.Contains(err.Error(), "secret-token") {
		t.Fatalf("error leaks webhook token: %v", err)
	}
}

package platforms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

type FeishuAdapter struct {
	client *HTTPClient
	panels *panelIDs
}

func NewFeishuAdapter(client *HTTPClient) *FeishuAdapter {
	return &FeishuAdapter{client: client, panels: newPanelIDs()}
}

func (a *FeishuAdapter) Name() string { return "feishu" }

// Send posts an interactive card. secret is either a bare signature or
// "sig:<signature>;bearer:<token>"; the bearer token is needed to edit panels.
func (a *FeishuAdapter) Send(ctx context.Context, endpoint, secret string, msg Message) error {
	signature, bearer := parseFeishuSecret(secret)
	headers := map[string]string{}
	if signature != "" {
		headers["X-Lark-Signature"] = signature
	}
	payload := feishuCard(msg)
	if strings.TrimSpace(msg.PanelKey) == "" {
		_, _, err := a.client.Post(ctx, endpoint, headers, payload)
		return err
	}

	key := panelID(endpoint, msg.PanelKey)
	if id := a.panels.get(key); id != "" && bearer != "" {
		if editURL, ok := feishuEditURL(endpoint, id); ok {
			status, _, err := a.client.Patch(ctx, editURL, map[string]string{"Authorization": "Bearer " + bearer}, payload)
			if err == nil || status != http.StatusNotFound {
				return err
			}
		}
	}
	_, body, err := a.client.Post(ctx, endpoint, headers, payload)
	if err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return err
	}
	id := firstMessageID(raw)
	if id == "" {
		return errors.New("feishu response missing message id")
	}
	a.panels.set(key, id)
	return nil
}

func (a *FeishuAdapter) ForgetPanel(endpoint, panelKey string) {
	a.panels.forget(endpoint, panelKey)
}

func feishuCard(msg Message) map[string]any {
	text := msg.Description
	if text == "" {
		text = msg.Content
	}
	elements := []map[string]string{{"tag": "markdown", "text": text}}
	for _, f := range msg.Fields {
		elements = append(elements, map[string]string{
			"tag":  "markdown",
			"text": "**" + f.Name + "**: " + f.Value,
		})
	}
	return map[string]any{
		"msg_type": "interactive",
		"card": map[string]any{
			"header": map[string]any{
				"title":    map[string]any{"tag": "plain_text", "content": msg.Title},
				"template": "blue",
			},
			"elements": elements,
		},
	}
}

func parseFeishuSecret(secret string) (signature, bearer string) {
	s := strings.TrimSpace(secret)
	if s == "" {
		return "", ""
	}
	parts := strings.Split(s, ";")
	for _, p := range parts {
		p = strings.TrimSpace(p)
		switch {
		case strings.HasPrefix(p, "sig:"):
			signature = strings.TrimSpace(strings.TrimPrefix(p, "sig:"))
		case strings.HasPrefix(p, "bearer:"):
			bearer = strings.TrimSpace(strings.TrimPrefix(p, "bearer:"))
		case len(parts) == 1:
			signature = p
		}
	}
	return signature, bearer
}

func feishuEditURL(endpoint, msgID string) (string, bool) {
	u, err := url.Parse(endpoint)
	if err != nil || msgID == "" {
		return "", false
	}
	u.Path = "/open-apis/im/v1/messages/" + msgID
	u.RawQuery = ""
	return u.String(), true
}

func firstMessageID(raw map[string]any) string {
	for _, m := range []any{raw, raw["data"]} {
		obj, ok := m.(map[string]any)
		if !ok {
			continue
		}
		for _, k := range []string{"message_id", "id"} {
			if v, ok := obj[k].(string); ok && strings.TrimSpace(v) != "" {
				return v
			}
		}
	}
	return ""
}

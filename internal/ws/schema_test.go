package ws

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func compileSchema(t *testing.T, data []byte) *jsonschema.Schema {
	t.Helper()
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("ws_v1.schema.json", strings.NewReader(string(data))); err != nil {
		t.Fatalf("add resource: %v", err)
	}
	schema, err := compiler.Compile("ws_v1.schema.json")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return schema
}

func TestWSProtocolSchema(t *testing.T) {
	data, err := os.ReadFile("../../api/schema/ws_v1.schema.json")
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	schema := compileSchema(t, data)

	samples := []string{
		`{"type":"join"}`,
		`{"type":"send_pressed_keys","session_id":"01J","pressed_keys":["ArrowLeft"]}`,
		`{"type":"reset_complete","session_id":"01J","room":"3f1c"}`,
		`{"type":"ping","ping_ms":42,"document_in_focus":true}`,
		`{"event":"server_session","data":{"session_id":"01J"},"server_ts":1}`,
		`{"event":"waiting_room","data":{"cur_num_players":1,"players_needed":1,"ms_remaining":60000},"server_ts":1}`,
		`{"event":"environment_state","data":{"game_state_objects":[{"id":"ball"}],"step":3,"hud_text":""},"server_ts":1}`,
		`{"event":"end_game","data":{"reason":"partner_left"},"server_ts":1}`,
	}
	for i, s := range samples {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			t.Fatalf("unmarshal sample %d: %v", i, err)
		}
		if err := schema.Validate(v); err != nil {
			t.Fatalf("schema validate sample %d: %v", i, err)
		}
	}

	bad := []string{
		`{"type":"fold"}`,
		`{"event":"state_update","data":{},"server_ts":1}`,
		`{"event":"pong","data":{}}`,
	}
	for i, s := range bad {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			t.Fatalf("unmarshal bad sample %d: %v", i, err)
		}
		if err := schema.Validate(v); err == nil {
			t.Fatalf("bad sample %d validated", i)
		}
	}
}

func TestGeneratedSchemaMatchesOutboundEvents(t *testing.T) {
	data, err := json.Marshal(ProtocolSchema())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	schema := compileSchema(t, data)

	for _, ev := range outboundEvents {
		v := map[string]any{"event": ev, "data": map[string]any{}, "server_ts": float64(1)}
		if err := schema.Validate(v); err != nil {
			t.Fatalf("event %s rejected: %v", ev, err)
		}
	}
	for _, typ := range []string{MsgJoin, MsgLeaveGame, MsgSendPressedKeys, MsgResetComplete, MsgPing} {
		if err := schema.Validate(map[string]any{"type": typ}); err != nil {
			t.Fatalf("message %s rejected: %v", typ, err)
		}
	}
}

package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/spf13/viper"
)

var ErrInvalidScene = errors.New("invalid scene")

const sceneEnvPrefix = "GYM"

type KeyBinding struct {
	Keys   []string `mapstructure:"keys"`
	Action int      `mapstructure:"action"`
}

type EnvSpec struct {
	Name string `mapstructure:"name"`
	// Render is "state" for JSON object lists or "rgb_array" for JPEG frames.
	Render string         `mapstructure:"render"`
	Params map[string]any `mapstructure:"params"`
}

// Scene describes one game: the environment, who plays which role and how
// the loop is paced. Files may be YAML, TOML or JSON.
type Scene struct {
	FPS                    int               `mapstructure:"fps"`
	FrameSkip              int               `mapstructure:"frame_skip"`
	NumEpisodes            int               `mapstructure:"num_episodes"`
	MaxSteps               int               `mapstructure:"max_steps"`
	WaitroomTimeoutMS      int64             `mapstructure:"waitroom_timeout_ms"`
	DefaultAction          int               `mapstructure:"default_action"`
	ActionPopulationMethod string            `mapstructure:"action_population_method"`
	InputMode              string            `mapstructure:"input_mode"`
	EnvSeed                int64             `mapstructure:"env_seed"`
	RandomSeed             bool              `mapstructure:"random_seed"`
	ResetFreezeMS          int64             `mapstructure:"reset_freeze_ms"`
	ResetTimeoutMS         int64             `mapstructure:"reset_timeout_ms"`
	ResetAckDeadlineMS     int64             `mapstructure:"reset_ack_deadline_ms"`
	MaxPing                int               `mapstructure:"max_ping"`
	MinPingMeasurements    int               `mapstructure:"min_ping_measurements"`
	ImageQuality           int               `mapstructure:"image_quality"`
	GameWidth              int               `mapstructure:"game_width"`
	GameHeight             int               `mapstructure:"game_height"`
	PolicyMapping          map[string]string `mapstructure:"policy_mapping"`
	ActionMapping          []KeyBinding      `mapstructure:"action_mapping"`
	Env                    EnvSpec           `mapstructure:"env"`
	SceneMetadata          map[string]any    `mapstructure:"scene_metadata"`
	GamePageText           string            `mapstructure:"game_page_text"`
	HUDTemplate            string            `mapstructure:"hud_template"`
}

type RoleBinding struct {
	Role   string
	Policy string
}

func setSceneDefaults(v *viper.Viper) {
	v.SetDefault("fps", 10)
	v.SetDefault("frame_skip", 4)
	v.SetDefault("num_episodes", 1)
	v.SetDefault("max_steps", 10000)
	v.SetDefault("waitroom_timeout_ms", 120000)
	v.SetDefault("default_action", 0)
	v.SetDefault("action_population_method", "default_action")
	v.SetDefault("input_mode", "pressed_keys")
	v.SetDefault("env_seed", 42)
	v.SetDefault("random_seed", false)
	v.SetDefault("reset_freeze_ms", 0)
	v.SetDefault("reset_timeout_ms", 3000)
	v.SetDefault("reset_ack_deadline_ms", 0)
	v.SetDefault("max_ping", 0)
	v.SetDefault("min_ping_measurements", 5)
	v.SetDefault("image_quality", 75)
	v.SetDefault("game_width", 600)
	v.SetDefault("game_height", 400)
	v.SetDefault("env.name", "catch")
	v.SetDefault("env.render", "state")
}

// LoadScene reads path, or only defaults when path is empty. GYM_ prefixed
// environment variables override scalar keys.
func LoadScene(path string) (Scene, error) {
	v := viper.New()
	setSceneDefaults(v)
	v.SetEnvPrefix(sceneEnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Scene{}, fmt.Errorf("read scene %s: %w", path, err)
		}
	}
	var sc Scene
	if err := v.Unmarshal(&sc); err != nil {
		return Scene{}, fmt.Errorf("decode scene: %w", err)
	}
	// Map and list keys merge path-wise in viper, so their defaults are
	// applied after decoding.
	if len(sc.PolicyMapping) == 0 {
		sc.PolicyMapping = map[string]string{"left": "human", "right": "human"}
	}
	if len(sc.ActionMapping) == 0 {
		sc.ActionMapping = []KeyBinding{
			{Keys: []string{"ArrowLeft"}, Action: 1},
			{Keys: []string{"ArrowRight"}, Action: 2},
		}
	}
	return sc, sc.Validate()
}

func (s Scene) Validate() error {
	var problems []string
	if s.FPS < 1 {
		problems = append(problems, "fps must be >= 1")
	}
	if s.FrameSkip < 1 {
		problems = append(problems, "frame_skip must be >= 1")
	}
	if s.NumEpisodes < 1 {
		problems = append(problems, "num_episodes must be >= 1")
	}
	if s.MaxSteps < 0 {
		problems = append(problems, "max_steps must be >= 0")
	}
	if s.WaitroomTimeoutMS < 0 || s.ResetFreezeMS < 0 || s.ResetTimeoutMS < 0 || s.ResetAckDeadlineMS < 0 {
		problems = append(problems, "durations must be >= 0")
	}
	switch s.ActionPopulationMethod {
	case "default_action", "previous_submitted_action":
	default:
		problems = append(problems, fmt.Sprintf("unknown action_population_method %q", s.ActionPopulationMethod))
	}
	switch s.InputMode {
	case "pressed_keys", "single_keypress":
	default:
		problems = append(problems, fmt.Sprintf("unknown input_mode %q", s.InputMode))
	}
	if s.ImageQuality < 1 || s.ImageQuality > 100 {
		problems = append(problems, "image_quality must be within 1..100")
	}
	if s.Env.Name == "" {
		problems = append(problems, "env.name is required")
	}
	switch s.Env.Render {
	case "state", "rgb_array":
	default:
		problems = append(problems, fmt.Sprintf("unknown env.render %q", s.Env.Render))
	}
	humans := 0
	for role, policy := range s.PolicyMapping {
		if role == "" || policy == "" {
			problems = append(problems, "policy_mapping entries need a role and a policy")
			continue
		}
		if policy == "human" {
			humans++
		}
	}
	if humans == 0 {
		problems = append(problems, "policy_mapping needs at least one human role")
	}
	for i, b := range s.ActionMapping {
		if len(b.Keys) == 0 {
			problems = append(problems, fmt.Sprintf("action_mapping[%d] has no keys", i))
		}
	}
	if s.HUDTemplate != "" {
		if _, err := template.New("hud").Parse(s.HUDTemplate); err != nil {
			problems = append(problems, fmt.Sprintf("hud_template: %v", err))
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("%w: %s", ErrInvalidScene, strings.Join(problems, "; "))
	}
	return nil
}

// Roles lists the policy mapping sorted by role name.
func (s Scene) Roles() []RoleBinding {
	out := make([]RoleBinding, 0, len(s.PolicyMapping))
	for role, policy := range s.PolicyMapping {
		out = append(out, RoleBinding{Role: role, Policy: policy})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out
}

func (s Scene) WaitroomTimeout() time.Duration {
	return time.Duration(s.WaitroomTimeoutMS) * time.Millisecond
}

func (s Scene) ResetFreeze() time.Duration {
	return time.Duration(s.ResetFreezeMS) * time.Millisecond
}

func (s Scene) ResetTimeout() time.Duration {
	return time.Duration(s.ResetTimeoutMS) * time.Millisecond
}

func (s Scene) ResetAckDeadline() time.Duration {
	return time.Duration(s.ResetAckDeadlineMS) * time.Millisecond
}

package main

import (
	"fmt"
	"slices"

	"interactive-gym/internal/arena"
	"interactive-gym/internal/config"
	"interactive-gym/internal/envs/catch"
	"interactive-gym/internal/game"
	"interactive-gym/internal/input"
	"interactive-gym/internal/policy"

	"github.com/go-viper/mapstructure/v2"
)

// sceneWiring is everything the coordinator needs that comes from the scene.
type sceneWiring struct {
	cfg        arena.Config
	newEnv     arena.EnvFactory
	translator *input.Translator
	policies   *policy.Runtime
}

func buildScene(sc config.Scene) (sceneWiring, error) {
	population, err := game.ParsePopulationPolicy(sc.ActionPopulationMethod)
	if err != nil {
		return sceneWiring{}, err
	}
	mode, err := arena.ParseInputMode(sc.InputMode)
	if err != nil {
		return sceneWiring{}, err
	}

	bindings := make([]input.Binding, 0, len(sc.ActionMapping))
	for _, b := range sc.ActionMapping {
		bindings = append(bindings, input.Binding{Keys: b.Keys, Action: game.Action(b.Action)})
	}
	translator, err := input.NewTranslator(bindings)
	if err != nil {
		return sceneWiring{}, fmt.Errorf("action_mapping: %w", err)
	}

	var roles []game.RoleSpec
	var roleNames []game.Role
	for _, rb := range sc.Roles() {
		roles = append(roles, game.RoleSpec{Role: game.Role(rb.Role), Policy: rb.Policy})
		roleNames = append(roleNames, game.Role(rb.Role))
	}

	var (
		newEnv  arena.EnvFactory
		stateFn game.StateFunc
		actions []game.Action
	)
	switch sc.Env.Name {
	case "catch":
		params := catch.DefaultParams()
		if err := mapstructure.Decode(sc.Env.Params, &params); err != nil {
			return sceneWiring{}, fmt.Errorf("env.params: %w", err)
		}
		if _, err := catch.New(roleNames, params); err != nil {
			return sceneWiring{}, err
		}
		newEnv = func() (game.Environment, error) { return catch.New(roleNames, params) }
		if len(roleNames) == 1 {
			solo := roleNames[0]
			newEnv = func() (game.Environment, error) {
				s, err := catch.NewSingle(solo, params)
				if err != nil {
					return nil, err
				}
				return game.WrapScalar(s, solo), nil
			}
		}
		if sc.Env.Render == "state" {
			stateFn = catch.State
		}
		actions = catch.Actions
	default:
		return sceneWiring{}, fmt.Errorf("%w: unknown env %q", config.ErrInvalidScene, sc.Env.Name)
	}

	runtime := policy.NewRuntime(actions, sc.EnvSeed)
	runtime.Register("catch-tracker", func(int64) (policy.Handle, error) { return catch.Tracker{}, nil })
	known := runtime.IDs()
	for _, r := range roles {
		if r.Policy != game.HumanPolicy && !slices.Contains(known, r.Policy) {
			return sceneWiring{}, fmt.Errorf("role %s: %w: %q", r.Role, policy.ErrUnknownPolicy, r.Policy)
		}
	}

	cfg := arena.Config{
		Session: game.Config{
			Roles:         roles,
			EpisodeBudget: sc.NumEpisodes,
			DefaultAction: game.Action(sc.DefaultAction),
			Population:    population,
			FrameSkip:     sc.FrameSkip,
			MaxSteps:      sc.MaxSteps,
			StateFn:       stateFn,
		},
		FPS:              sc.FPS,
		WaitroomTimeout:  sc.WaitroomTimeout(),
		InputMode:        mode,
		ResetFreeze:      sc.ResetFreeze(),
		ResetTimeout:     sc.ResetTimeout(),
		ResetAckDeadline: sc.ResetAckDeadline(),
		EnvSeed:          sc.EnvSeed,
		RandomSeed:       sc.RandomSeed,
		SceneMetadata:    sc.SceneMetadata,
	}
	if text := sc.GamePageText; text != "" {
		cfg.PageTextFn = func(string) string { return text }
	}
	if sc.HUDTemplate != "" {
		hud, err := game.TemplateHUD(sc.HUDTemplate)
		if err != nil {
			return sceneWiring{}, fmt.Errorf("%w: hud_template: %v", config.ErrInvalidScene, err)
		}
		cfg.Session.HUDFn = hud
	}
	return sceneWiring{
		cfg:        cfg,
		newEnv:     newEnv,
		translator: translator,
		policies:   runtime,
	}, nil
}

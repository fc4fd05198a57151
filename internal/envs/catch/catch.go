// Package catch is a small multi-role environment: a ball drops one row per
// step and every role steers its own paddle along the bottom row.
package catch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math/rand/v2"

	"interactive-gym/internal/game"
)

const (
	ActionStay  game.Action = 0
	ActionLeft  game.Action = 1
	ActionRight game.Action = 2
)

var Actions = []game.Action{ActionStay, ActionLeft, ActionRight}

type Params struct {
	Width       int `mapstructure:"width"`
	Height      int `mapstructure:"height"`
	Balls       int `mapstructure:"balls"`
	PaddleWidth int `mapstructure:"paddle_width"`
	CellPixels  int `mapstructure:"cell_pixels"`
}

func DefaultParams() Params {
	return Params{Width: 10, Height: 8, Balls: 5, PaddleWidth: 3, CellPixels: 16}
}

type Observation struct {
	BallX   int `json:"ball_x"`
	BallY   int `json:"ball_y"`
	PaddleX int `json:"paddle_x"`
	PaddleW int `json:"paddle_w"`
	Width   int `json:"width"`
	Height  int `json:"height"`
}

type Env struct {
	p       Params
	roles   []game.Role
	rnd     *rand.Rand
	paddles map[game.Role]int
	ballX   int
	ballY   int
	dropped int
}

func New(roles []game.Role, p Params) (*Env, error) {
	if len(roles) == 0 {
		return nil, errors.New("catch: no roles")
	}
	if p.Width < 3 || p.Height < 2 {
		return nil, fmt.Errorf("catch: board %dx%d too small", p.Width, p.Height)
	}
	if p.Balls < 1 {
		return nil, errors.New("catch: balls must be >= 1")
	}
	if p.PaddleWidth < 1 || p.PaddleWidth > p.Width {
		return nil, fmt.Errorf("catch: paddle width %d", p.PaddleWidth)
	}
	if p.CellPixels < 1 {
		p.CellPixels = 16
	}
	return &Env{
		p:       p,
		roles:   append([]game.Role(nil), roles...),
		rnd:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		paddles: map[game.Role]int{},
	}, nil
}

func (e *Env) MultiAgent() bool { return true }

func (e *Env) Reset(seed *int64) (game.Observations, error) {
	if seed != nil {
		e.rnd = rand.New(rand.NewPCG(uint64(*seed), 0))
	}
	start := (e.p.Width - e.p.PaddleWidth) / 2
	for _, r := range e.roles {
		e.paddles[r] = start
	}
	e.dropped = 0
	e.spawn()
	return e.observations(), nil
}

func (e *Env) Step(actions map[game.Role]game.Action) (game.StepResult, error) {
	for _, r := range e.roles {
		a, ok := actions[r]
		if !ok {
			return game.StepResult{}, fmt.Errorf("catch: missing action for %q", r)
		}
		switch a {
		case ActionStay:
		case ActionLeft:
			e.paddles[r] = max(0, e.paddles[r]-1)
		case ActionRight:
			e.paddles[r] = min(e.p.Width-e.p.PaddleWidth, e.paddles[r]+1)
		default:
			return game.StepResult{}, fmt.Errorf("catch: invalid action %d for %q", a, r)
		}
	}

	rewards := make(map[game.Role]float64, len(e.roles))
	e.ballY++
	if e.ballY == e.p.Height-1 {
		for _, r := range e.roles {
			if e.ballX >= e.paddles[r] && e.ballX < e.paddles[r]+e.p.PaddleWidth {
				rewards[r] = 1
			} else {
				rewards[r] = -1
			}
		}
		e.dropped++
		if e.dropped < e.p.Balls {
			e.spawn()
		}
	} else {
		for _, r := range e.roles {
			rewards[r] = 0
		}
	}
	done := e.dropped >= e.p.Balls
	return game.StepResult{
		Observations: e.observations(),
		Rewards:      rewards,
		Terminated:   game.Flags{game.AllRoles: done},
		Truncated:    game.Flags{game.AllRoles: false},
	}, nil
}

func (e *Env) spawn() {
	e.ballX = e.rnd.IntN(e.p.Width)
	e.ballY = 0
}

func (e *Env) observations() game.Observations {
	obs := make(game.Observations, len(e.roles))
	for _, r := range e.roles {
		obs[r] = Observation{BallX: e.ballX, BallY: e.ballY, PaddleX: e.paddles[r], PaddleW: e.p.PaddleWidth, Width: e.p.Width, Height: e.p.Height}
	}
	return obs
}

// Object is one drawable element of the state sent to browsers.
type Object struct {
	UUID       string `json:"uuid"`
	ObjectType string `json:"object_type"`
	X          int    `json:"x"`
	Y          int    `json:"y"`
	W          int    `json:"w"`
	H          int    `json:"h"`
	Fill       string `json:"fill"`
}

var paddleFills = []string{"#2b8cbe", "#e34a33", "#31a354", "#756bb1"}

// State renders e as drawable objects in cell units.
func State(env game.Environment) (any, error) {
	e, err := unwrap(env)
	if err != nil {
		return nil, err
	}
	objs := []Object{{UUID: "ball", ObjectType: "circle", X: e.ballX, Y: e.ballY, W: 1, H: 1, Fill: "#fdae61"}}
	for i, r := range e.roles {
		objs = append(objs, Object{
			UUID:       "paddle-" + string(r),
			ObjectType: "rect",
			X:          e.paddles[r],
			Y:          e.p.Height - 1,
			W:          e.p.PaddleWidth,
			H:          1,
			Fill:       paddleFills[i%len(paddleFills)],
		})
	}
	return objs, nil
}

func (e *Env) RenderFrame() (image.Image, error) {
	c := e.p.CellPixels
	img := image.NewRGBA(image.Rect(0, 0, e.p.Width*c, e.p.Height*c))
	fill(img, image.Rect(0, 0, e.p.Width*c, e.p.Height*c), color.RGBA{R: 20, G: 20, B: 28, A: 255})
	for i, r := range e.roles {
		shade := uint8(120 + 40*(i%3))
		x := e.paddles[r] * c
		y := (e.p.Height - 1) * c
		fill(img, image.Rect(x, y+c/2, x+e.p.PaddleWidth*c, y+c), color.RGBA{R: 40, G: shade, B: 220, A: 255})
	}
	fill(img, image.Rect(e.ballX*c, e.ballY*c, (e.ballX+1)*c, (e.ballY+1)*c), color.RGBA{R: 250, G: 180, B: 60, A: 255})
	return img, nil
}

func fill(img *image.RGBA, r image.Rectangle, col color.RGBA) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, y, col)
		}
	}
}

// Tracker is a bot policy that moves its paddle under the ball.
type Tracker struct{}

func (Tracker) Act(_ context.Context, obs any) (game.Action, error) {
	o, ok := obs.(Observation)
	if !ok {
		return ActionStay, nil
	}
	centre := o.PaddleX + o.PaddleW/2
	switch {
	case o.BallX < centre:
		return ActionLeft, nil
	case o.BallX > centre:
		return ActionRight, nil
	default:
		return ActionStay, nil
	}
}

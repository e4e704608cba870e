package client

import (
	"sync"

	"github.com/joehewett/eriswood/internal/model"
)

const (
	// smoothingAlpha is the per-tick fraction of the remaining distance to the
	// network target. 0<alpha<1 converges without overshoot and simply
	// settles on the last target if no further sample arrives.
	smoothingAlpha = 0.2

	// frameToggleTicks matches the local player's walk-cycle cadence.
	frameToggleTicks = 10
)

// RenderedPlayer is one remote player's smoothed, drawable state for the
// current frame.
type RenderedPlayer struct {
	PlayerID        string
	PlayerName      string
	Position        model.Position
	Frame           int
	SpriteVariant   int
	FacingDirection model.FacingDirection
}

// renderState is per-player smoothing bookkeeping. The walk animation is
// driven locally from the moving hint, not from the network currentFrame:
// samples arrive far slower than frames render, and a locally ticked cycle
// stays smooth regardless.
type renderState struct {
	x, y         float64
	targetX      float64
	targetY      float64
	moving       bool
	frame        int
	frameCounter int

	name   string
	sprite int
	facing model.FacingDirection
}

// Interpolator turns sparse network position samples into continuous motion.
// Observe feeds it roster updates whenever they arrive; Advance runs once per
// render tick, independent of network cadence.
type Interpolator struct {
	mu     sync.Mutex
	states map[string]*renderState
}

func NewInterpolator() *Interpolator {
	return &Interpolator{states: make(map[string]*renderState)}
}

// Observe sets each player's interpolation target from the latest roster and
// prunes state for players no longer present, in the same pass. A player seen
// for the first time starts at its reported position rather than sliding in
// from somewhere stale.
func (in *Interpolator) Observe(players []model.PlayerState) {
	in.mu.Lock()
	defer in.mu.Unlock()

	seen := make(map[string]bool, len(players))
	for _, p := range players {
		seen[p.PlayerID] = true
		st, ok := in.states[p.PlayerID]
		if !ok {
			st = &renderState{x: p.Position.X, y: p.Position.Y}
			in.states[p.PlayerID] = st
		}
		st.targetX = p.Position.X
		st.targetY = p.Position.Y
		st.moving = p.IsMoving
		st.name = p.PlayerName
		st.sprite = p.SpriteVariant
		st.facing = p.FacingDirection
	}

	for id := range in.states {
		if !seen[id] {
			delete(in.states, id)
		}
	}
}

// Advance runs one render tick: exponential smoothing toward each target and
// the local walk-cycle animation. It returns the drawable states.
func (in *Interpolator) Advance() []RenderedPlayer {
	in.mu.Lock()
	defer in.mu.Unlock()

	out := make([]RenderedPlayer, 0, len(in.states))
	for id, st := range in.states {
		st.x += (st.targetX - st.x) * smoothingAlpha
		st.y += (st.targetY - st.y) * smoothingAlpha

		if st.moving {
			st.frameCounter++
			if st.frameCounter%frameToggleTicks == 0 {
				if st.frame == 0 {
					st.frame = 1
				} else {
					st.frame = 0
				}
			}
		} else {
			st.frameCounter = 0
			st.frame = 0
		}

		out = append(out, RenderedPlayer{
			PlayerID:        id,
			PlayerName:      st.name,
			Position:        model.Position{X: st.x, Y: st.y},
			Frame:           st.frame,
			SpriteVariant:   st.sprite,
			FacingDirection: st.facing,
		})
	}
	return out
}

package track

import (
	"math"

	"github.com/vsariola/blipkit"
)

type (
	// ramp is a value that moves linearly to its target over a number of
	// effect ticks; with zero steps it jumps.
	ramp struct {
		value, target int
		steps         int
		remaining     int
	}

	// lfo is a periodic modulation with a period in effect ticks.
	lfo struct {
		period, depth int
		tick          int
	}
)

func (r *ramp) set(target int) {
	r.target = target
	if r.steps <= 0 {
		r.value = target
		r.remaining = 0
		return
	}
	r.remaining = r.steps
}

// jump sets the value immediately, cancelling a slide in progress.
func (r *ramp) jump(value int) {
	r.value, r.target, r.remaining = value, value, 0
}

// step moves the value one tick towards the target and reports whether it
// changed.
func (r *ramp) step() bool {
	if r.remaining <= 0 {
		return false
	}
	old := r.value
	r.value += (r.target - r.value) / r.remaining
	r.remaining--
	return r.value != old
}

func (l *lfo) active() bool {
	return l.period > 0 && l.depth != 0
}

// value returns the modulation of the current tick, -depth .. depth.
func (l *lfo) value() int {
	if !l.active() {
		return 0
	}
	return int(math.Round(math.Sin(2*math.Pi*float64(l.tick)/float64(l.period)) * float64(l.depth)))
}

func (l *lfo) step() bool {
	if !l.active() {
		return false
	}
	l.tick = (l.tick + 1) % l.period
	return true
}

// SetEffect enables or reconfigures an effect; all-zero parameters disable
// it.
//
//	EffectVolumeSlide  {ticks}            volume changes slide over ticks
//	EffectPanningSlide {ticks}            panning changes slide over ticks
//	EffectPortamento   {ticks}            note changes slide over ticks
//	EffectTremolo      {period, depth}    volume drops by up to depth
//	EffectVibrato      {period, depth}    pitch swings by depth cents
func (t *Track) SetEffect(effect blipkit.Effect, params [3]int) {
	switch effect {
	case blipkit.EffectVolumeSlide:
		t.volume.steps = max(params[0], 0)
	case blipkit.EffectPanningSlide:
		t.panning.steps = max(params[0], 0)
	case blipkit.EffectPortamento:
		t.note.steps = max(params[0], 0)
	case blipkit.EffectTremolo:
		t.tremolo = lfo{period: max(params[0], 0), depth: clamp(params[1], 0, blipkit.MaxVolume)}
	case blipkit.EffectVibrato:
		t.vibrato = lfo{period: max(params[0], 0), depth: params[1]}
	default:
		return
	}
	t.dirty = true
}

// stepEffects is called on every effect divider tick.
func (t *Track) stepEffects() (int, error) {
	changed := t.volume.step()
	changed = t.panning.step() || changed
	changed = t.note.step() || changed
	changed = t.tremolo.step() || changed
	changed = t.vibrato.step() || changed
	if changed {
		t.dirty = true
	}
	return 0, nil
}

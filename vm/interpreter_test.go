package vm_test

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/vsariola/blipkit"
	"github.com/vsariola/blipkit/vm"
)

// recorder is a sink that logs every call with the tick it happened at.
type recorder struct {
	tick   int
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.events = append(r.events, fmt.Sprintf("%d:", r.tick)+fmt.Sprintf(format, args...))
}

func (r *recorder) Attack(note int)                { r.add("attack %d", note) }
func (r *recorder) Release()                       { r.add("release") }
func (r *recorder) Mute()                          { r.add("mute") }
func (r *recorder) SetNote(note int)               { r.add("note %d", note) }
func (r *recorder) SetVolume(v int)                { r.add("volume %d", v) }
func (r *recorder) SetMasterVolume(v int)          { r.add("mastervolume %d", v) }
func (r *recorder) SetPanning(p int)               { r.add("panning %d", p) }
func (r *recorder) SetPitch(p int)                 { r.add("pitch %d", p) }
func (r *recorder) SetDutyCycle(d int)             { r.add("dutycycle %d", d) }
func (r *recorder) SetPhaseWrap(w int)             { r.add("phasewrap %d", w) }
func (r *recorder) SetWaveform(w blipkit.Waveform) { r.add("waveform %v", w) }
func (r *recorder) SetInstrument(i *blipkit.Instrument) {
	if i == nil {
		r.add("instrument nil")
		return
	}
	r.add("instrument %s", i.Name)
}
func (r *recorder) SetCustomWaveform(d *blipkit.WaveformData) {
	if d == nil {
		r.add("customwaveform nil")
		return
	}
	r.add("customwaveform %s", d.Name)
}
func (r *recorder) SetEffect(e blipkit.Effect, p [3]int) { r.add("effect %v %v", e, p) }

// run steps the interpreter the way a divider does, until it is done.
func run(t *testing.T, it *vm.Interpreter, maxTicks int) *recorder {
	t.Helper()
	r := &recorder{}
	for r.tick <= maxTicks {
		ticks, err := it.ApplyNextStep(r)
		if err != nil {
			t.Fatalf("ApplyNextStep failed at tick %v: %v", r.tick, err)
		}
		if ticks == 0 {
			if !it.Done() {
				t.Fatalf("returned 0 ticks at tick %v without being done", r.tick)
			}
			return r
		}
		r.tick += ticks
	}
	t.Fatalf("program did not finish in %v ticks", maxTicks)
	return nil
}

func code(words ...any) *vm.Program {
	var c []int32
	for _, w := range words {
		switch v := w.(type) {
		case vm.Opcode:
			c = append(c, int32(v))
		case int:
			c = append(c, int32(v))
		case int32:
			c = append(c, v)
		default:
			panic(fmt.Sprintf("bad word %T", w))
		}
	}
	return &vm.Program{Code: c}
}

func TestTickTiePrecedence(t *testing.T) {
	for mask := 0; mask < 8; mask++ {
		attack, release, mute := mask&1 != 0, mask&2 != 0, mask&4 != 0
		t.Run(fmt.Sprintf("attack=%v,release=%v,mute=%v", attack, release, mute), func(t *testing.T) {
			var words []any
			if attack {
				words = append(words, vm.OpAttackTicks, 2, 6000)
			}
			if release {
				words = append(words, vm.OpReleaseTicks, 2)
			}
			if mute {
				words = append(words, vm.OpMuteTicks, 2)
			}
			words = append(words, vm.OpStep, 4, vm.OpEnd)
			var want []string
			switch {
			case mute:
				want = []string{"2:mute"}
			case release:
				want = []string{"2:release"}
			case attack:
				want = []string{"2:attack 6000"}
			}
			for i := 0; i < 3; i++ {
				r := run(t, vm.NewInterpreter(code(words...), nil, nil), 100)
				if !slices.Equal(r.events, want) {
					t.Fatalf("run %v: events %v, want %v", i, r.events, want)
				}
			}
		})
	}
}

func TestImmediateGateOrder(t *testing.T) {
	it := vm.NewInterpreter(code(vm.OpAttack, 6000, vm.OpRelease, vm.OpMute, vm.OpAttack, 6100, vm.OpEnd), nil, nil)
	r := run(t, it, 10)
	want := []string{"0:attack 6000", "0:release", "0:mute", "0:attack 6100"}
	if !slices.Equal(r.events, want) {
		t.Fatalf("events %v, want %v", r.events, want)
	}
}

// nested builds a program that calls depth levels of subroutines; each level
// sets the volume to its depth after the call returns.
func nested(depth int) *vm.Program {
	words := []any{vm.OpCall, 5, vm.OpVolume, 0, vm.OpEnd}
	for k := 1; k <= depth; k++ {
		if k < depth {
			words = append(words, vm.OpCall, 5+k*5, vm.OpVolume, k, vm.OpReturn)
		} else {
			words = append(words, vm.OpVolume, k, vm.OpReturn)
		}
	}
	return code(words...)
}

func TestCallReturn(t *testing.T) {
	for _, depth := range []int{1, 2, 10, blipkit.StackSize} {
		it := vm.NewInterpreter(nested(depth), nil, nil)
		r := run(t, it, 0)
		if len(r.events) != depth+1 {
			t.Fatalf("depth %v: %v events", depth, len(r.events))
		}
		for i, e := range r.events {
			if want := fmt.Sprintf("0:volume %d", depth-i); e != want {
				t.Fatalf("depth %v: event %v = %q, want %q", depth, i, e, want)
			}
		}
	}
}

func TestFaults(t *testing.T) {
	tests := []struct {
		name    string
		program *vm.Program
		kind    blipkit.FaultKind
	}{
		{"overflow", nested(blipkit.StackSize + 1), blipkit.FaultStackOverflow},
		{"underflow", code(vm.OpReturn), blipkit.FaultStackUnderflow},
		{"unknown", code(vm.OpVolume, 1, 99), blipkit.FaultUnknownOpcode},
		{"negative", code(-1), blipkit.FaultUnknownOpcode},
		{"missingoperand", code(vm.OpVolume), blipkit.FaultTruncated},
		{"arpeggiocount", code(vm.OpArpeggio), blipkit.FaultTruncated},
		{"jumptarget", code(vm.OpJump, 100), blipkit.FaultTruncated},
		{"runaway", code(vm.OpJump, 0), blipkit.FaultRunaway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := vm.NewInterpreter(tt.program, nil, nil)
			r := &recorder{}
			ticks, err := it.ApplyNextStep(r)
			if !errors.Is(err, blipkit.ErrInterpreterFault) {
				t.Fatalf("ApplyNextStep() = %v, want an interpreter fault", err)
			}
			var fault *blipkit.FaultError
			if !errors.As(err, &fault) || fault.Kind != tt.kind {
				t.Fatalf("fault = %v, want kind %v", err, tt.kind)
			}
			if ticks != 0 || !it.Done() || it.Err() != err {
				t.Fatalf("interpreter not done after fault")
			}
			if ticks, err := it.ApplyNextStep(r); ticks != 0 || err != nil {
				t.Fatalf("call after fault = %v, %v; want 0, nil", ticks, err)
			}
		})
	}
}

func TestArpeggio(t *testing.T) {
	p := code(vm.OpArpeggioSpeed, 2, vm.OpArpeggio, 3, 0, 400, 700, vm.OpAttack, 6000, vm.OpStep, 12, vm.OpEnd)
	it := vm.NewInterpreter(p, nil, nil)
	r := run(t, it, 100)
	want := []string{
		"0:attack 6000", "2:note 6400", "4:note 6700", "6:note 6000",
		"8:note 6400", "10:note 6700", "12:note 6000",
	}
	if !slices.Equal(r.events, want) {
		t.Fatalf("events %v, want %v", r.events, want)
	}
}

func TestArpeggioStopsOnRelease(t *testing.T) {
	p := code(vm.OpArpeggioSpeed, 1, vm.OpArpeggio, 2, 0, 1200, vm.OpAttack, 6000, vm.OpStep, 2, vm.OpRelease, vm.OpStep, 3, vm.OpEnd)
	r := run(t, vm.NewInterpreter(p, nil, nil), 100)
	want := []string{"0:attack 6000", "1:note 7200", "2:note 6000", "2:release"}
	if !slices.Equal(r.events, want) {
		t.Fatalf("events %v, want %v", r.events, want)
	}
	if r.tick != 5 {
		t.Fatalf("finished at tick %v, want 5", r.tick)
	}
}

func TestScheduledAttackRestartsArpeggio(t *testing.T) {
	p := code(vm.OpArpeggioSpeed, 2, vm.OpArpeggio, 2, 0, 1200, vm.OpAttack, 6000, vm.OpAttackTicks, 4, 6700, vm.OpStep, 6, vm.OpEnd)
	r := run(t, vm.NewInterpreter(p, nil, nil), 100)
	want := []string{"0:attack 6000", "2:note 7200", "4:attack 6700", "6:note 7900"}
	if !slices.Equal(r.events, want) {
		t.Fatalf("events %v, want %v", r.events, want)
	}
}

func TestEndIsTerminal(t *testing.T) {
	it := vm.NewInterpreter(code(vm.OpEnd, vm.OpVolume, 1), nil, nil)
	r := &recorder{}
	for i := 0; i < 3; i++ {
		ticks, err := it.ApplyNextStep(r)
		if ticks != 0 || err != nil {
			t.Fatalf("call %v = %v, %v; want 0, nil", i, ticks, err)
		}
	}
	if len(r.events) != 0 || !it.Done() {
		t.Fatalf("events after end: %v", r.events)
	}
}

func TestPendingEventsOutliveEnd(t *testing.T) {
	p := code(vm.OpAttack, 6000, vm.OpReleaseTicks, 3, vm.OpEnd)
	r := run(t, vm.NewInterpreter(p, nil, nil), 100)
	want := []string{"0:attack 6000", "3:release"}
	if !slices.Equal(r.events, want) {
		t.Fatalf("events %v, want %v", r.events, want)
	}
}

func TestStepTicks(t *testing.T) {
	p := code(vm.OpTicks, 5, vm.OpStepTicks, vm.OpVolume, 1, vm.OpStepTicks, vm.OpVolume, 2, vm.OpEnd)
	r := run(t, vm.NewInterpreter(p, nil, nil), 100)
	want := []string{"5:volume 1", "10:volume 2"}
	if !slices.Equal(r.events, want) {
		t.Fatalf("events %v, want %v", r.events, want)
	}
}

func TestTables(t *testing.T) {
	instruments := []*blipkit.Instrument{{Name: "lead"}}
	waveforms := []*blipkit.WaveformData{{Name: "buzz"}}
	p := code(
		vm.OpInstrument, 0, vm.OpInstrument, -1, vm.OpInstrument, 5,
		vm.OpWaveform, blipkit.CustomWaveformFlag, vm.OpWaveform, blipkit.CustomWaveformFlag|3,
		vm.OpWaveform, int(blipkit.Noise),
		vm.OpEffect, int(blipkit.EffectVibrato), 1, 2, 3,
		vm.OpEnd)
	r := run(t, vm.NewInterpreter(p, instruments, waveforms), 0)
	want := []string{
		"0:instrument lead", "0:instrument nil", "0:instrument nil",
		"0:customwaveform buzz", "0:customwaveform nil", "0:waveform noise",
		"0:effect vibrato [1 2 3]",
	}
	if !slices.Equal(r.events, want) {
		t.Fatalf("events %v, want %v", r.events, want)
	}
}

func TestReset(t *testing.T) {
	p := code(vm.OpAttack, 6000, vm.OpStep, 3, vm.OpCall, 7, vm.OpEnd, vm.OpRelease, vm.OpStep, 2, vm.OpReturn)
	it := vm.NewInterpreter(p, nil, nil)
	first := run(t, it, 100)
	it.Reset()
	if it.Done() || it.PC() != 0 || it.Depth() != 0 || it.Program() != p {
		t.Fatal("Reset did not rewind the interpreter")
	}
	second := run(t, it, 100)
	if !slices.Equal(first.events, second.events) {
		t.Fatalf("after reset %v, want %v", second.events, first.events)
	}
	// reset in the middle of a subroutine
	it.Reset()
	r := &recorder{}
	it.ApplyNextStep(r)
	it.ApplyNextStep(r)
	if it.Depth() != 1 {
		t.Fatalf("Depth() = %v, want 1", it.Depth())
	}
	it.Reset()
	if it.Depth() != 0 {
		t.Fatal("Reset did not clear the call stack")
	}
}

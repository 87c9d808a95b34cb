package vm

import (
	"github.com/vsariola/blipkit"
)

// MaxInstructionsPerStep bounds the number of instructions executed by one
// ApplyNextStep call. A program that loops without ever stepping faults
// instead of hanging the renderer.
const MaxInstructionsPerStep = 1 << 16

type (
	// Interpreter executes a track program, one step at a time. The program
	// and the instrument and waveform tables are shared and only read; all
	// mutable state is the interpreter's own.
	Interpreter struct {
		program     *Program
		instruments []*blipkit.Instrument
		waveforms   []*blipkit.WaveformData

		pc    int
		stack callStack

		wait      int // ticks returned by the previous call
		step      int
		noteTicks int

		attack  gateEvent
		release gateEvent
		mute    gateEvent

		arpeggio        [blipkit.MaxArpeggio]int
		numArpeggio     int
		arpeggioIndex   int
		arpeggioCounter int
		arpeggioSpeed   int
		defaultSpeed    int
		baseNote        int
		noteOn          bool

		ended bool
		done  bool
		err   error
	}

	gateEvent struct {
		pending bool
		ticks   int
		note    int
	}

	callStack struct {
		addrs [blipkit.StackSize]int
		depth int
	}
)

// NewInterpreter returns an interpreter at the start of the program.
// Instrument and waveform operands are resolved against the given tables.
func NewInterpreter(program *Program, instruments []*blipkit.Instrument, waveforms []*blipkit.WaveformData) *Interpreter {
	if program == nil {
		program = &Program{}
	}
	return &Interpreter{
		program:       program,
		instruments:   instruments,
		waveforms:     waveforms,
		arpeggioSpeed: blipkit.DefaultArpeggioDivider,
		defaultSpeed:  blipkit.DefaultArpeggioDivider,
	}
}

func (it *Interpreter) Program() *Program { return it.program }

// PC returns the address of the next instruction to execute.
func (it *Interpreter) PC() int { return it.pc }

// Depth returns the number of return addresses on the call stack.
func (it *Interpreter) Depth() int { return it.stack.depth }

// Done reports whether the program has ended, or faulted, and no scheduled
// event is pending anymore.
func (it *Interpreter) Done() bool { return it.done }

// Err returns the fault that stopped the interpreter, if any.
func (it *Interpreter) Err() error { return it.err }

// SetArpeggioSpeed sets the arpeggio speed used until the program sets one
// with ArpeggioSpeed, and after each reset. Values below 1 are clamped to 1.
func (it *Interpreter) SetArpeggioSpeed(ticks int) {
	it.defaultSpeed = max(ticks, 1)
	it.arpeggioSpeed = it.defaultSpeed
}

// Reset rewinds the interpreter to the start of the program, clearing the
// call stack, all tick counters and the arpeggio. The program and the tables
// are kept.
func (it *Interpreter) Reset() {
	*it = Interpreter{
		program:       it.program,
		instruments:   it.instruments,
		waveforms:     it.waveforms,
		arpeggioSpeed: it.defaultSpeed,
		defaultSpeed:  it.defaultSpeed,
	}
}

// ApplyNextStep applies the events that are due and executes the program up
// to the next step, sending the results to sink. It returns the number of
// ticks that may pass before it has to be called again; the caller is
// expected to call it again after exactly that many ticks.
//
// Gate events scheduled with AttackTicks, ReleaseTicks and MuteTicks that fall
// due on the same tick resolve to exactly one transition: a mute wins over a
// release, and a release wins over an attack.
//
// When the program has ended and nothing is pending, the interpreter is done
// and ApplyNextStep returns 0; further calls do nothing. A corrupt program
// returns a *blipkit.FaultError and leaves the interpreter done.
func (it *Interpreter) ApplyNextStep(sink Sink) (int, error) {
	if it.done {
		return 0, nil
	}
	elapsed := it.wait
	it.wait = 0
	it.step -= elapsed
	if !it.applyGateEvents(sink, elapsed) {
		it.stepArpeggio(sink, elapsed)
	}
	if !it.ended && it.step <= 0 {
		if err := it.run(sink); err != nil {
			it.done = true
			it.err = err
			return 0, err
		}
	}
	ticks := it.nextEvent()
	if ticks <= 0 {
		it.done = true
		return 0, nil
	}
	it.wait = ticks
	return ticks, nil
}

func (it *Interpreter) stepArpeggio(sink Sink, elapsed int) {
	if !it.noteOn || it.numArpeggio < 2 {
		return
	}
	it.arpeggioCounter -= elapsed
	if it.arpeggioCounter > 0 {
		return
	}
	it.arpeggioIndex = (it.arpeggioIndex + 1) % it.numArpeggio
	it.arpeggioCounter = it.arpeggioSpeed
	sink.SetNote(it.baseNote + it.arpeggio[it.arpeggioIndex])
}

// applyGateEvents emits the winning gate event that is due, if any, and
// reports whether one was emitted.
func (it *Interpreter) applyGateEvents(sink Sink, elapsed int) bool {
	due := func(e *gateEvent) bool {
		if !e.pending {
			return false
		}
		e.ticks -= elapsed
		if e.ticks > 0 {
			return false
		}
		e.pending = false
		return true
	}
	attackDue := due(&it.attack)
	releaseDue := due(&it.release)
	muteDue := due(&it.mute)
	switch {
	case muteDue:
		it.doMute(sink)
	case releaseDue:
		it.doRelease(sink)
	case attackDue:
		it.doAttack(sink, it.attack.note)
	default:
		return false
	}
	return true
}

func (it *Interpreter) doAttack(sink Sink, note int) {
	it.baseNote = note
	it.noteOn = true
	it.arpeggioIndex = 0
	it.arpeggioCounter = it.arpeggioSpeed
	if it.numArpeggio > 0 {
		note += it.arpeggio[0]
	}
	sink.Attack(note)
}

func (it *Interpreter) doRelease(sink Sink) {
	it.noteOn = false
	sink.Release()
}

func (it *Interpreter) doMute(sink Sink) {
	it.noteOn = false
	sink.Mute()
}

// nextEvent returns the ticks until the earliest of the step, the pending gate
// events and the next arpeggio note. Once the program has ended only the gate
// events count.
func (it *Interpreter) nextEvent() int {
	ticks := 0
	consider := func(t int) {
		if t > 0 && (ticks == 0 || t < ticks) {
			ticks = t
		}
	}
	for _, e := range []*gateEvent{&it.attack, &it.release, &it.mute} {
		if e.pending {
			consider(max(e.ticks, 1))
		}
	}
	if it.ended {
		return ticks
	}
	consider(it.step)
	if it.noteOn && it.numArpeggio > 1 {
		consider(max(it.arpeggioCounter, 1))
	}
	return ticks
}

func (it *Interpreter) fault(kind blipkit.FaultKind, pc int) error {
	var op int32
	if pc >= 0 && pc < len(it.program.Code) {
		op = it.program.Code[pc]
	}
	return &blipkit.FaultError{Kind: kind, PC: pc, Opcode: op}
}

// run executes instructions until a step, the end of the program or a fault.
func (it *Interpreter) run(sink Sink) error {
	code := it.program.Code
	for n := 0; ; n++ {
		if it.pc >= len(code) {
			it.ended = true
			return nil
		}
		if n >= MaxInstructionsPerStep {
			return it.fault(blipkit.FaultRunaway, it.pc)
		}
		start := it.pc
		op := Opcode(code[start])
		if !op.Valid() {
			return it.fault(blipkit.FaultUnknownOpcode, start)
		}
		count := op.OperandCount()
		if count < 0 {
			if start+1 >= len(code) {
				return it.fault(blipkit.FaultTruncated, start)
			}
			count = 1 + max(int(code[start+1]), 0)
		}
		if start+1+count > len(code) {
			return it.fault(blipkit.FaultTruncated, start)
		}
		args := code[start+1 : start+1+count]
		it.pc = start + 1 + count
		switch op {
		case OpAttack:
			it.doAttack(sink, int(args[0]))
		case OpArpeggio:
			it.setArpeggio(sink, args[1:])
		case OpArpeggioSpeed:
			it.arpeggioSpeed = max(int(args[0]), 1)
		case OpAttackTicks:
			it.attack = gateEvent{pending: true, ticks: int(args[0]), note: int(args[1])}
		case OpRelease:
			it.doRelease(sink)
		case OpReleaseTicks:
			it.release = gateEvent{pending: true, ticks: int(args[0])}
		case OpMute:
			it.doMute(sink)
		case OpMuteTicks:
			it.mute = gateEvent{pending: true, ticks: int(args[0])}
		case OpVolume:
			sink.SetVolume(int(args[0]))
		case OpPanning:
			sink.SetPanning(int(args[0]))
		case OpPitch:
			sink.SetPitch(int(args[0]))
		case OpMasterVolume:
			sink.SetMasterVolume(int(args[0]))
		case OpStep:
			if args[0] > 0 {
				it.step = int(args[0])
				return nil
			}
		case OpTicks:
			it.noteTicks = int(args[0])
		case OpEffect:
			sink.SetEffect(blipkit.Effect(args[0]), [3]int{int(args[1]), int(args[2]), int(args[3])})
		case OpDutyCycle:
			sink.SetDutyCycle(int(args[0]))
		case OpPhaseWrap:
			sink.SetPhaseWrap(int(args[0]))
		case OpInstrument:
			sink.SetInstrument(it.instrument(int(args[0])))
		case OpWaveform:
			it.setWaveform(sink, args[0])
		case OpReturn:
			addr, ok := it.stack.pop()
			if !ok {
				return it.fault(blipkit.FaultStackUnderflow, start)
			}
			it.pc = addr
		case OpGroup:
			// entry point marker, resolved by the assembler
		case OpCall:
			if !it.validTarget(args[0]) {
				return it.fault(blipkit.FaultTruncated, start)
			}
			if !it.stack.push(it.pc) {
				return it.fault(blipkit.FaultStackOverflow, start)
			}
			it.pc = int(args[0])
		case OpJump:
			if !it.validTarget(args[0]) {
				return it.fault(blipkit.FaultTruncated, start)
			}
			it.pc = int(args[0])
		case OpEnd:
			it.ended = true
			return nil
		case OpStepTicks:
			if it.noteTicks > 0 {
				it.step = it.noteTicks
				return nil
			}
		}
	}
}

func (it *Interpreter) validTarget(addr int32) bool {
	return addr >= 0 && int(addr) <= len(it.program.Code)
}

func (it *Interpreter) setArpeggio(sink Sink, offsets []int32) {
	n := min(len(offsets), blipkit.MaxArpeggio)
	for i := 0; i < n; i++ {
		it.arpeggio[i] = int(offsets[i])
	}
	it.numArpeggio = n
	it.arpeggioIndex = 0
	it.arpeggioCounter = it.arpeggioSpeed
	if it.noteOn {
		note := it.baseNote
		if n > 0 {
			note += it.arpeggio[0]
		}
		sink.SetNote(note)
	}
}

func (it *Interpreter) instrument(index int) *blipkit.Instrument {
	if index < 0 || index >= len(it.instruments) {
		return nil
	}
	return it.instruments[index]
}

func (it *Interpreter) setWaveform(sink Sink, w int32) {
	if w&blipkit.CustomWaveformFlag == 0 {
		sink.SetWaveform(blipkit.Waveform(w))
		return
	}
	index := int(w &^ blipkit.CustomWaveformFlag)
	if index < 0 || index >= len(it.waveforms) {
		sink.SetCustomWaveform(nil)
		return
	}
	sink.SetCustomWaveform(it.waveforms[index])
}

func (s *callStack) push(addr int) bool {
	if s.depth >= len(s.addrs) {
		return false
	}
	s.addrs[s.depth] = addr
	s.depth++
	return true
}

func (s *callStack) pop() (int, bool) {
	if s.depth == 0 {
		return 0, false
	}
	s.depth--
	return s.addrs[s.depth], true
}

package vm

import "fmt"

// Opcode is the first word of an instruction in a compiled track program.
// The words following it are its operands.
type Opcode int32

const (
	OpAttack        Opcode = iota // note
	OpArpeggio                    // count, offset...
	OpArpeggioSpeed               // ticks
	OpAttackTicks                 // ticks, note
	OpRelease                     //
	OpReleaseTicks                // ticks
	OpMute                        //
	OpMuteTicks                   // ticks
	OpVolume                      // volume
	OpPanning                     // panning
	OpPitch                       // cents
	OpMasterVolume                // volume
	OpStep                        // ticks
	OpTicks                       // ticks
	OpEffect                      // effect, a, b, c
	OpDutyCycle                   // duty cycle
	OpPhaseWrap                   // phase wrap
	OpInstrument                  // instrument index
	OpWaveform                    // waveform, possibly CustomWaveformFlag | index
	OpReturn                      //
	OpGroup                       // group id
	OpCall                        // address
	OpJump                        // address
	OpEnd                         //
	OpStepTicks                   //
	numOpcodes
)

var opcodeNames = [numOpcodes]string{
	"attack",
	"arpeggio",
	"arpeggiospeed",
	"attackticks",
	"release",
	"releaseticks",
	"mute",
	"muteticks",
	"volume",
	"panning",
	"pitch",
	"mastervolume",
	"step",
	"ticks",
	"effect",
	"dutycycle",
	"phasewrap",
	"instrument",
	"waveform",
	"return",
	"group",
	"call",
	"jump",
	"end",
	"stepticks",
}

// operandCounts lists the number of operand words of each opcode; -1 means
// the first operand is a count of the operands that follow it.
var operandCounts = [numOpcodes]int{
	OpAttack:        1,
	OpArpeggio:      -1,
	OpArpeggioSpeed: 1,
	OpAttackTicks:   2,
	OpReleaseTicks:  1,
	OpMuteTicks:     1,
	OpVolume:        1,
	OpPanning:       1,
	OpPitch:         1,
	OpMasterVolume:  1,
	OpStep:          1,
	OpTicks:         1,
	OpEffect:        4,
	OpDutyCycle:     1,
	OpPhaseWrap:     1,
	OpInstrument:    1,
	OpWaveform:      1,
	OpGroup:         1,
	OpCall:          1,
	OpJump:          1,
}

// Valid reports whether op is a known opcode.
func (op Opcode) Valid() bool {
	return op >= 0 && op < numOpcodes
}

func (op Opcode) String() string {
	if !op.Valid() {
		return fmt.Sprintf("op(%d)", int32(op))
	}
	return opcodeNames[op]
}

// ParseOpcode returns the opcode with the given mnemonic.
func ParseOpcode(name string) (Opcode, bool) {
	for i, n := range opcodeNames {
		if n == name {
			return Opcode(i), true
		}
	}
	return 0, false
}

// OperandCount returns the number of fixed operand words of the opcode, or -1
// if the operands are counted by the first operand.
func (op Opcode) OperandCount() int {
	if !op.Valid() {
		return 0
	}
	return operandCounts[op]
}

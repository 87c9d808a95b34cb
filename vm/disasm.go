package vm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vsariola/blipkit"
)

// Instruction is a decoded instruction of a program.
type Instruction struct {
	Addr int
	Op   Opcode
	Args []int32 // operand words; for arpeggio the count is not included
}

// Disassemble decodes the opcode stream into instructions. It fails on
// unknown opcodes and on instructions cut short by the end of the code.
func Disassemble(code []int32) ([]Instruction, error) {
	var ret []Instruction
	for pc := 0; pc < len(code); {
		op := Opcode(code[pc])
		if !op.Valid() {
			return ret, &blipkit.FaultError{Kind: blipkit.FaultUnknownOpcode, PC: pc, Opcode: code[pc]}
		}
		start := pc + 1
		count := op.OperandCount()
		if count < 0 {
			if start >= len(code) {
				return ret, &blipkit.FaultError{Kind: blipkit.FaultTruncated, PC: pc, Opcode: code[pc]}
			}
			count = max(int(code[start]), 0)
			start++
		}
		if start+count > len(code) {
			return ret, &blipkit.FaultError{Kind: blipkit.FaultTruncated, PC: pc, Opcode: code[pc]}
		}
		ret = append(ret, Instruction{Addr: pc, Op: op, Args: code[start : start+count]})
		pc = start + count
	}
	return ret, nil
}

// Len returns the number of code words of the instruction.
func (in Instruction) Len() int {
	if in.Op == OpArpeggio {
		return 2 + len(in.Args)
	}
	return 1 + len(in.Args)
}

// String formats the instruction in assembler syntax.
func (in Instruction) String() string {
	var b strings.Builder
	b.WriteString(in.Op.String())
	for i, a := range in.Args {
		b.WriteByte(' ')
		b.WriteString(in.formatArg(i, a))
	}
	return b.String()
}

func (in Instruction) formatArg(index int, a int32) string {
	switch {
	case in.Op == OpAttack, in.Op == OpAttackTicks && index == 1:
		return NoteName(a)
	case in.Op == OpWaveform:
		if a&blipkit.CustomWaveformFlag != 0 {
			return fmt.Sprintf("custom:%d", a&^blipkit.CustomWaveformFlag)
		}
		if w := blipkit.Waveform(a); w >= 0 && w < blipkit.Custom {
			return w.String()
		}
	case in.Op == OpEffect && index == 0:
		if e := blipkit.Effect(a); e >= blipkit.EffectVolumeSlide && e <= blipkit.EffectVibrato {
			return e.String()
		}
	}
	return strconv.Itoa(int(a))
}

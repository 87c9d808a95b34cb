package vm

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/vsariola/blipkit"
)

type (
	// Symbols gives names to the entries of the instrument and waveform
	// tables, so that programs can refer to them by name.
	Symbols struct {
		Instruments map[string]int
		Waveforms   map[string]int
	}

	// SyntaxError is returned by Assemble for malformed source.
	SyntaxError struct {
		Line int
		Err  error
	}

	assembler struct {
		Program
		symbols Symbols
		fixups  map[string][]fixup
		line    int
		groupID int32
	}

	fixup struct {
		pos  int
		line int
	}
)

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// SongSymbols returns the instrument and waveform names of a song, the names
// its track programs can use as operands.
func SongSymbols(song *blipkit.Song) Symbols {
	sym := Symbols{Instruments: map[string]int{}, Waveforms: map[string]int{}}
	for i, instr := range song.Instruments {
		if instr.Name != "" {
			sym.Instruments[instr.Name] = i
		}
	}
	for i, w := range song.Waveforms {
		if w.Name != "" {
			sym.Waveforms[w.Name] = i
		}
	}
	return sym
}

// Assemble compiles program source without instrument or waveform names.
func Assemble(src string) (*Program, error) {
	return AssembleWithSymbols(src, Symbols{})
}

// AssembleWithSymbols compiles program source into a Program.
//
// The source has one instruction per line, or several separated by ';'. A '#'
// at the start of a line or after white space starts a comment. "name:" defines a jump label and "group name" a subroutine
// entry point; both may be referred to before they are defined. Operands are
// separated by spaces or commas:
//
//	volume 0.5            # fractions of full scale, or raw integers
//	arpeggio 0 400 700    # offsets in cents
//	attack c#4            # note names, optionally detuned: a4+25
//	attackticks 12 c4
//	waveform square       # built-in name, custom:N or a waveform name
//	effect vibrato 2 50 0
//	call riff
func AssembleWithSymbols(src string, symbols Symbols) (*Program, error) {
	a := &assembler{
		Program: Program{Groups: map[string]int{}, Labels: map[string]int{}},
		symbols: symbols,
		fixups:  map[string][]fixup{},
	}
	for i, line := range strings.Split(src, "\n") {
		a.line = i + 1
		line = stripComment(line)
		for _, stmt := range strings.Split(line, ";") {
			if err := a.statement(stmt); err != nil {
				return nil, &SyntaxError{Line: a.line, Err: err}
			}
		}
	}
	for name, fs := range a.fixups {
		return nil, &SyntaxError{Line: fs[0].line, Err: fmt.Errorf("undefined label %q", name)}
	}
	return &a.Program, nil
}

// stripComment cuts line at the first '#' that starts the line or follows
// white space or ';'. A '#' inside a word is a sharp, as in c#4.
func stripComment(line string) string {
	for i := 0; i < len(line); i++ {
		if line[i] == '#' && (i == 0 || line[i-1] == ' ' || line[i-1] == '\t' || line[i-1] == ';') {
			return line[:i]
		}
	}
	return line
}

func (a *assembler) statement(stmt string) error {
	fields := strings.FieldsFunc(stmt, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ',' || r == '\r'
	})
	for len(fields) > 0 && strings.HasSuffix(fields[0], ":") {
		if err := a.define(a.Labels, strings.TrimSuffix(fields[0], ":")); err != nil {
			return err
		}
		fields = fields[1:]
	}
	if len(fields) == 0 {
		return nil
	}
	op, ok := ParseOpcode(strings.ToLower(fields[0]))
	if !ok {
		return fmt.Errorf("unknown instruction %q", fields[0])
	}
	args := fields[1:]
	if c := op.OperandCount(); c >= 0 && c != len(args) {
		return fmt.Errorf("%v takes %v operands, got %v", op, c, len(args))
	}
	switch op {
	case OpGroup:
		if err := a.define(a.Groups, args[0]); err != nil {
			return err
		}
		a.op(op)
		a.operand(a.groupID)
		a.groupID++
		return nil
	case OpCall, OpJump:
		a.op(op)
		a.ref(args[0])
		return nil
	case OpArpeggio:
		if len(args) > blipkit.MaxArpeggio {
			return fmt.Errorf("arpeggio takes at most %v offsets", blipkit.MaxArpeggio)
		}
		offsets := make([]int32, len(args))
		for i, s := range args {
			v, err := parseInt(s)
			if err != nil {
				return err
			}
			offsets[i] = v
		}
		a.op(op)
		a.operand(int32(len(offsets)))
		a.operand(offsets...)
		return nil
	}
	values := make([]int32, len(args))
	for i, s := range args {
		v, err := a.parseOperand(op, i, s)
		if err != nil {
			return fmt.Errorf("%v operand %v: %w", op, i+1, err)
		}
		values[i] = v
	}
	a.op(op)
	a.operand(values...)
	return nil
}

func (a *assembler) parseOperand(op Opcode, index int, s string) (int32, error) {
	switch {
	case op == OpAttack, op == OpAttackTicks && index == 1:
		return ParseNote(s)
	case op == OpVolume, op == OpMasterVolume, op == OpPanning:
		return parseLevel(s)
	case op == OpWaveform:
		return a.parseWaveform(s)
	case op == OpInstrument:
		if s == "none" {
			return -1, nil
		}
		if i, ok := a.symbols.Instruments[s]; ok {
			return int32(i), nil
		}
	case op == OpEffect && index == 0:
		if e, err := blipkit.ParseEffect(s); err == nil {
			return int32(e), nil
		}
	}
	return parseInt(s)
}

func (a *assembler) parseWaveform(s string) (int32, error) {
	if rest, ok := strings.CutPrefix(s, "custom:"); ok {
		v, err := parseInt(rest)
		if err != nil {
			return 0, err
		}
		return blipkit.CustomWaveformFlag | v, nil
	}
	if i, ok := a.symbols.Waveforms[s]; ok {
		return blipkit.CustomWaveformFlag | int32(i), nil
	}
	if w, err := blipkit.ParseWaveform(s); err == nil && w < blipkit.Custom {
		return int32(w), nil
	}
	return parseInt(s)
}

// op appends an opcode to the code
func (a *assembler) op(op Opcode) {
	a.Code = append(a.Code, int32(op))
}

// operand appends operand words to the code
func (a *assembler) operand(values ...int32) {
	a.Code = append(a.Code, values...)
}

// ref appends an address operand; names not defined yet are added to the
// fixup list
func (a *assembler) ref(name string) {
	if addr, ok := a.lookup(name); ok {
		a.operand(int32(addr))
		return
	}
	if v, err := strconv.ParseInt(name, 0, 32); err == nil {
		a.operand(int32(v))
		return
	}
	a.fixups[name] = append(a.fixups[name], fixup{pos: len(a.Code), line: a.line})
	a.operand(0)
}

func (a *assembler) lookup(name string) (int, bool) {
	if addr, ok := a.Labels[name]; ok {
		return addr, true
	}
	addr, ok := a.Groups[name]
	return addr, ok
}

// define binds name to the current address; all earlier references to the
// name are fixed up
func (a *assembler) define(names map[string]int, name string) error {
	if name == "" {
		return errors.New("empty label")
	}
	if _, ok := a.lookup(name); ok {
		return fmt.Errorf("%q defined twice", name)
	}
	addr := len(a.Code)
	names[name] = addr
	for _, f := range a.fixups[name] {
		a.Code[f.pos] = int32(addr)
	}
	delete(a.fixups, name)
	return nil
}

func parseInt(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return int32(v), nil
}

// parseLevel parses a volume or panning: a fraction of full scale if it
// contains a decimal point, otherwise a raw value.
func parseLevel(s string) (int32, error) {
	if !strings.Contains(s, ".") {
		return parseInt(s)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid level %q", s)
	}
	return int32(math.Round(f * blipkit.MaxVolume)), nil
}

var (
	noteRegexp = regexp.MustCompile(`^([a-gA-G])([#b]?)(-?[0-9]+)([+-][0-9]+)?$`)
	semitones  = map[byte]int{'c': 0, 'd': 2, 'e': 4, 'f': 5, 'g': 7, 'a': 9, 'b': 11}
	noteNames  = [12]string{"c", "c#", "d", "d#", "e", "f", "f#", "g", "g#", "a", "a#", "b"}
)

// ParseNote parses a note name such as "c4", "f#3", "bb2" or "a4+25" into
// cents, with c-1 at 0 and a4 at 6900. Plain integers are taken as cents.
func ParseNote(s string) (int32, error) {
	if v, err := strconv.ParseInt(s, 0, 32); err == nil {
		return int32(v), nil
	}
	m := noteRegexp.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid note %q", s)
	}
	semitone := semitones[strings.ToLower(m[1])[0]]
	switch m[2] {
	case "#":
		semitone++
	case "b":
		semitone--
	}
	octave, _ := strconv.Atoi(m[3])
	cents := ((octave+1)*12 + semitone) * blipkit.NoteUnit
	if m[4] != "" {
		detune, _ := strconv.Atoi(m[4])
		cents += detune
	}
	return int32(cents), nil
}

// NoteName formats cents as a note name; ParseNote(NoteName(n)) == n.
func NoteName(cents int32) string {
	if cents < 0 {
		return strconv.Itoa(int(cents))
	}
	semis := int(cents) / blipkit.NoteUnit
	detune := int(cents) % blipkit.NoteUnit
	name := fmt.Sprintf("%s%d", noteNames[semis%12], semis/12-1)
	if detune != 0 {
		name += fmt.Sprintf("+%d", detune)
	}
	return name
}

package compiler

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/vsariola/blipkit"
	"github.com/vsariola/blipkit/vm"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type (
	SongMacros struct {
		Name     string // C identifier
		Title    string
		Song     *blipkit.Song // nil when compiling a lone program
		Programs []*ProgramMacros
	}

	ProgramMacros struct {
		Name         string // C identifier
		Title        string
		Clock        string
		Program      *vm.Program
		Instructions []vm.Instruction
	}
)

var nonIdentifier = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// NewSongMacros assembles the track programs of a song.
func NewSongMacros(name string, song *blipkit.Song) (*SongMacros, error) {
	ret := &SongMacros{Name: identifier(name), Title: title(name), Song: song}
	symbols := vm.SongSymbols(song)
	for i, t := range song.Tracks {
		trackName := t.Name
		if trackName == "" {
			trackName = fmt.Sprintf("track%d", i)
		}
		program, err := vm.AssembleWithSymbols(t.Program, symbols)
		if err != nil {
			return nil, fmt.Errorf("track %q: %w", trackName, err)
		}
		clock, err := blipkit.ParseClockType(t.Clock)
		if err != nil {
			return nil, fmt.Errorf("track %q: %w", trackName, err)
		}
		p, err := NewProgramMacros(trackName, clock.String(), program)
		if err != nil {
			return nil, err
		}
		ret.Programs = append(ret.Programs, p)
	}
	return ret, nil
}

// NewProgramMacros disassembles a program for the templates.
func NewProgramMacros(name, clock string, program *vm.Program) (*ProgramMacros, error) {
	instructions, err := vm.Disassemble(program.Code)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", name, err)
	}
	return &ProgramMacros{
		Name:         identifier(name),
		Title:        title(name),
		Clock:        clock,
		Program:      program,
		Instructions: instructions,
	}, nil
}

// Opcodes returns every opcode, for the opcode defines of the header.
func (s *SongMacros) Opcodes() []vm.Opcode {
	var ret []vm.Opcode
	for op := vm.Opcode(0); op.Valid(); op++ {
		ret = append(ret, op)
	}
	return ret
}

// Names returns the groups ("group riff") and labels ("loop:") defined at
// addr, groups first.
func (p *ProgramMacros) Names(addr int) []string {
	var groups, labels []string
	for name, a := range p.Program.Groups {
		if a == addr {
			groups = append(groups, "group "+name)
		}
	}
	for name, a := range p.Program.Labels {
		if a == addr {
			labels = append(labels, name+":")
		}
	}
	slices.Sort(groups)
	slices.Sort(labels)
	return append(groups, labels...)
}

// Words returns the code words of an instruction.
func (p *ProgramMacros) Words(in vm.Instruction) []int32 {
	return p.Program.Code[in.Addr : in.Addr+in.Len()]
}

func identifier(name string) string {
	id := strings.ToLower(strings.Trim(nonIdentifier.ReplaceAllString(name, "_"), "_"))
	if id == "" || (id[0] >= '0' && id[0] <= '9') {
		id = "_" + id
	}
	return id
}

func title(name string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(name, "_", " "))
}

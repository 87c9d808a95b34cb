// Package compiler renders assembled track programs through text/template:
// a commented listing (.lst) and a C header with the opcode streams (.h).
package compiler

import (
	"bytes"
	"embed"
	"fmt"
	"path/filepath"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/vsariola/blipkit"
	"github.com/vsariola/blipkit/vm"
)

type Compiler struct {
	Template *template.Template
}

//go:embed templates/*
var templateFS embed.FS

var templates = []string{"song.lst", "song.h"}

// New returns a new compiler using the default templates.
func New() (*Compiler, error) {
	tmpl, err := template.New("base").Funcs(sprig.TxtFuncMap()).ParseFS(templateFS, "templates/*.*")
	if err != nil {
		return nil, fmt.Errorf(`could not create templates: %v`, err)
	}
	return &Compiler{Template: tmpl}, nil
}

// NewFromTemplates returns a compiler using the templates song.lst and
// song.h in templateDirectory.
func NewFromTemplates(templateDirectory string) (*Compiler, error) {
	globPtrn := filepath.Join(templateDirectory, "*.*")
	tmpl, err := template.New("base").Funcs(sprig.TxtFuncMap()).ParseGlob(globPtrn)
	if err != nil {
		return nil, fmt.Errorf(`could not create template based on directory "%v": %v`, templateDirectory, err)
	}
	return &Compiler{Template: tmpl}, nil
}

// Program compiles a single program. The result maps file extensions to
// file contents.
func (com *Compiler) Program(name string, program *vm.Program) (map[string]string, error) {
	p, err := NewProgramMacros(name, "", program)
	if err != nil {
		return nil, err
	}
	return com.execute(&SongMacros{Name: identifier(name), Title: title(name), Programs: []*ProgramMacros{p}})
}

// Song assembles the programs of every track of the song and compiles them
// into one listing and one header.
func (com *Compiler) Song(name string, song *blipkit.Song) (map[string]string, error) {
	macros, err := NewSongMacros(name, song)
	if err != nil {
		return nil, err
	}
	return com.execute(macros)
}

func (com *Compiler) execute(data any) (map[string]string, error) {
	retmap := map[string]string{}
	for _, templateName := range templates {
		populatedTemplate, extension, err := com.compile(templateName, data)
		if err != nil {
			return nil, fmt.Errorf(`could not execute template "%v": %v`, templateName, err)
		}
		retmap[extension] = populatedTemplate
	}
	return retmap, nil
}

func (com *Compiler) compile(templateName string, data any) (string, string, error) {
	result := bytes.NewBufferString("")
	err := com.Template.ExecuteTemplate(result, templateName, data)
	extension := filepath.Ext(templateName)
	return result.String(), extension, err
}

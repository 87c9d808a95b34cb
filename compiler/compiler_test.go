package compiler_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vsariola/blipkit"
	"github.com/vsariola/blipkit/compiler"
	"github.com/vsariola/blipkit/vm"
)

const riff = `
loop:
	call riff
	jump loop
group riff
	arpeggio 0 400 700
	attack c4
	step 24
	return
`

func TestProgramListing(t *testing.T) {
	p, err := vm.Assemble(riff)
	if err != nil {
		t.Fatal(err)
	}
	comp, err := compiler.New()
	if err != nil {
		t.Fatalf("compiler.New failed: %v", err)
	}
	files, err := comp.Program("main riff", p)
	if err != nil {
		t.Fatalf("Program failed: %v", err)
	}
	lst := files[".lst"]
	for _, want := range []string{"; Main Riff", "loop:", "group riff", "arpeggio 0 400 700", "attack c4", "; [22 0]"} {
		if !strings.Contains(lst, want) {
			t.Errorf(".lst does not contain %q:\n%v", want, lst)
		}
	}
	h := files[".h"]
	for _, want := range []string{"#ifndef MAIN_RIFF_H", "#define BK_OP_ATTACK 0", "#define BK_OP_STEPTICKS 24", "main_riff_program[", "#define MAIN_RIFF_LENGTH "} {
		if !strings.Contains(h, want) {
			t.Errorf(".h does not contain %q:\n%v", want, h)
		}
	}
}

func TestSong(t *testing.T) {
	song, err := blipkit.ParseSong([]byte(`
instruments:
  - name: lead
tracks:
  - name: first
    program: instrument lead; attack a4; step 4; end
  - name: 2nd
    clock: effect
    program: end
`))
	if err != nil {
		t.Fatal(err)
	}
	comp, err := compiler.New()
	if err != nil {
		t.Fatal(err)
	}
	files, err := comp.Song("demo", song)
	if err != nil {
		t.Fatalf("Song failed: %v", err)
	}
	if !strings.Contains(files[".h"], "first_program[7]") || !strings.Contains(files[".h"], "_2nd_program[1]") {
		t.Errorf("unexpected header:\n%v", files[".h"])
	}
	if !strings.Contains(files[".lst"], "(effect clock)") {
		t.Errorf("listing should name the clock:\n%v", files[".lst"])
	}
	song.Tracks[0].Program = "instrument missing"
	if _, err := comp.Song("demo", song); err == nil || !strings.Contains(err.Error(), `track "first"`) {
		t.Errorf("got %v, want an assembly error naming the track", err)
	}
}

func TestNewFromTemplates(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "song.lst"), []byte("{{len .Programs}} programs"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "song.h"), []byte("// {{.Name}}"), 0644); err != nil {
		t.Fatal(err)
	}
	comp, err := compiler.NewFromTemplates(dir)
	if err != nil {
		t.Fatal(err)
	}
	files, err := comp.Program("x", &vm.Program{Code: []int32{int32(vm.OpEnd)}})
	if err != nil {
		t.Fatal(err)
	}
	if files[".lst"] != "1 programs" || files[".h"] != "// x" {
		t.Errorf("files = %v", files)
	}
	if _, err := compiler.NewFromTemplates(filepath.Join(dir, "missing")); err == nil {
		t.Error("a missing template directory should fail")
	}
}

package oto_test

import (
	"bytes"
	"testing"

	"github.com/vsariola/blipkit/oto"
)

func TestInt16ToLE(t *testing.T) {
	got := oto.Int16ToLE([]int16{1, -2, 0x1234}, nil)
	want := []byte{0x01, 0x00, 0xFE, 0xFF, 0x34, 0x12}
	if !bytes.Equal(got, want) {
		t.Fatalf("Int16ToLE = %x, want %x", got, want)
	}
	buf := make([]byte, 2, 16)
	if got := oto.Int16ToLE([]int16{-1}, buf[:0]); &got[0] != &buf[0] || len(got) != 2 {
		t.Error("Int16ToLE should reuse the capacity of dst")
	}
}

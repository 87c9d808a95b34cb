package arena_test

import (
	"slices"
	"testing"

	"github.com/vsariola/blipkit/arena"
)

func TestAttachOrder(t *testing.T) {
	var l arena.List[string]
	l.Attach("a")
	hb := l.Attach("b")
	l.Attach("c")
	if got := l.Snapshot(nil); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Fatalf("snapshot = %v, want [a b c]", got)
	}
	if !l.Detach(hb) {
		t.Fatal("detach of attached handle returned false")
	}
	l.Attach("d")
	if got := l.Snapshot(nil); !slices.Equal(got, []string{"a", "c", "d"}) {
		t.Fatalf("snapshot = %v, want [a c d]", got)
	}
	if l.Len() != 3 {
		t.Fatalf("Len() = %v, want 3", l.Len())
	}
}

func TestStaleHandle(t *testing.T) {
	var l arena.List[int]
	h := l.Attach(1)
	l.Detach(h)
	h2 := l.Attach(2) // reuses the slot
	if l.Detach(h) {
		t.Fatal("detach of stale handle returned true")
	}
	if _, ok := l.Get(h); ok {
		t.Fatal("Get of stale handle succeeded")
	}
	if v, ok := l.Get(h2); !ok || v != 2 {
		t.Fatalf("Get(h2) = %v, %v; want 2, true", v, ok)
	}
	if (arena.Handle{}).Valid() {
		t.Fatal("zero handle should not be valid")
	}
}

func TestDetachDuringIteration(t *testing.T) {
	var l arena.List[int]
	handles := make([]arena.Handle, 5)
	for i := range handles {
		handles[i] = l.Attach(i)
	}
	var visited []int
	for h, v := range l.All() {
		visited = append(visited, v)
		if v%2 == 0 {
			l.Detach(h)
		}
	}
	if !slices.Equal(visited, []int{0, 1, 2, 3, 4}) {
		t.Fatalf("visited %v", visited)
	}
	if got := l.Snapshot(nil); !slices.Equal(got, []int{1, 3}) {
		t.Fatalf("snapshot = %v, want [1 3]", got)
	}
}

func TestClear(t *testing.T) {
	var l arena.List[int]
	h := l.Attach(1)
	l.Attach(2)
	l.Clear()
	if l.Len() != 0 || l.Contains(h) {
		t.Fatal("Clear left values attached")
	}
	l.Attach(3)
	if got := l.Snapshot(nil); !slices.Equal(got, []int{3}) {
		t.Fatalf("snapshot = %v, want [3]", got)
	}
}

package procexec

import (
	"slices"
	"testing"
)

func TestLineSplitterBuffersPartialLines(t *testing.T) {
	var got []string
	s := NewLineSplitter(func(line string) { got = append(got, line) })

	_, _ = s.Write([]byte("10 MiB / 1 GiB, 1"))
	if len(got) != 0 {
		t.Fatalf("partial line emitted early: %v", got)
	}
	_, _ = s.Write([]byte("%, 2 MiB/s\r20 MiB / 1 GiB, 2%\n\n  \nDone"))
	s.Flush()

	want := []string{"10 MiB / 1 GiB, 1%, 2 MiB/s", "20 MiB / 1 GiB, 2%", "Done"}
	if !slices.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestStripANSI(t *testing.T) {
	in := "\x1b[2K\x1b[1GTransferred: \x1b[32m50%\x1b[0m"
	if got := StripANSI(in); got != "Transferred: 50%" {
		t.Fatalf("StripANSI = %q", got)
	}
}

func TestTailKeepsLastLines(t *testing.T) {
	tl := newTail(2)
	for _, line := range []string{"a", "b", "c"} {
		tl.add(line)
	}
	if got := tl.snapshot(); !slices.Equal(got, []string{"b", "c"}) {
		t.Fatalf("tail = %v", got)
	}
}

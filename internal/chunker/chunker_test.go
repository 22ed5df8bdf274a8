package chunker

import (
	"strings"
	"testing"
)

func TestSplit_Empty(t *testing.T) {
	s := New(1000, 100)
	if got := s.Split("   \n  "); len(got) != 0 {
		t.Errorf("want no chunks for blank input, got %d", len(got))
	}
}

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	s := New(1000, 100)
	got := s.Split("hello world")
	if len(got) != 1 || got[0] != "hello world" {
		t.Errorf("want single chunk, got %v", got)
	}
}

func TestSplit_OverlappingWindows(t *testing.T) {
	// No whitespace boundaries, so the splitter advances by size-overlap.
	text := strings.Repeat("a", 2500)
	s := New(1000, 100)
	got := s.Split(text)

	// ceil(2500 / (1000-100)) windows
	if len(got) != 3 {
		t.Fatalf("want 3 chunks, got %d", len(got))
	}
	if len(got[0]) != 1000 {
		t.Errorf("want first chunk of 1000, got %d", len(got[0]))
	}
	if len(got[2]) != 700 {
		t.Errorf("want final chunk of 700, got %d", len(got[2]))
	}
}

func TestSplit_ConsecutiveChunksShareOverlap(t *testing.T) {
	// Distinct characters so overlapping regions are comparable.
	var b strings.Builder
	for i := 0; i < 250; i++ {
		b.WriteByte(byte('a' + i%26))
	}
	text := b.String()

	s := New(100, 20)
	got := s.Split(text)
	if len(got) < 2 {
		t.Fatalf("want multiple chunks, got %d", len(got))
	}

	tail := got[0][len(got[0])-20:]
	head := got[1][:20]
	if tail != head {
		t.Errorf("want 20-char overlap between chunks, tail=%q head=%q", tail, head)
	}
}

func TestSplit_PrefersParagraphBoundary(t *testing.T) {
	text := strings.Repeat("x", 80) + "\n\n" + strings.Repeat("y", 80)
	s := New(100, 10)
	got := s.Split(text)

	if len(got) != 2 {
		t.Fatalf("want 2 chunks, got %d", len(got))
	}
	if strings.Contains(got[0], "y") {
		t.Errorf("first chunk should end at the paragraph break, got %q", got[0])
	}
}

func TestNew_ClampsOverlap(t *testing.T) {
	s := New(100, 200)
	if s.ChunkOverlap != 50 {
		t.Errorf("want overlap clamped to half chunk size, got %d", s.ChunkOverlap)
	}
}

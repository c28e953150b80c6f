package agent

import (
	"strings"
	"testing"
)

func TestIngestAppends(t *testing.T) {
	s := NewScreenBuffer(0)

	s.Ingest([]byte("hello "))
	screen := s.Ingest([]byte("world"))

	if screen != "hello world" {
		t.Errorf("expected appended output, got %q", screen)
	}
}

func TestIngestClearScreenRestartsBuffer(t *testing.T) {
	s := NewScreenBuffer(0)

	s.Ingest([]byte("old banner\nmore old output\n"))
	screen := s.Ingest([]byte("\x1b[2Jfresh screen"))

	if strings.Contains(screen, "old banner") {
		t.Errorf("clear screen should discard prior content, got %q", screen)
	}
	if !strings.Contains(screen, "fresh screen") {
		t.Errorf("new content missing after clear: %q", screen)
	}
}

func TestIngestKeepsContentAfterLastClear(t *testing.T) {
	s := NewScreenBuffer(0)

	screen := s.Ingest([]byte("first\x1b[2Jsecond\x1bcthird"))
	if strings.Contains(screen, "first") || strings.Contains(screen, "second") {
		t.Errorf("only content after the last clear should remain: %q", screen)
	}
	if !strings.Contains(screen, "third") {
		t.Errorf("content after last clear missing: %q", screen)
	}
}

func TestIngestCapTruncatesFromFront(t *testing.T) {
	s := NewScreenBuffer(1000)

	s.Ingest([]byte(strings.Repeat("a", 900)))
	screen := s.Ingest([]byte(strings.Repeat("b", 900)))

	if len(screen) > 1000 {
		t.Errorf("screen exceeds cap: %d bytes", len(screen))
	}
	if !strings.HasSuffix(screen, "b") {
		t.Errorf("truncation should keep the most recent output")
	}
	if strings.HasPrefix(screen, "a") && strings.Count(screen, "a") == 900 {
		t.Error("truncation kept the entire old content")
	}
}

func TestTruncationDoesNotCutMidEscape(t *testing.T) {
	s := NewScreenBuffer(100)

	// Build content so the natural cut point lands inside an escape sequence.
	chunk := strings.Repeat("x", 70) + "\x1b[38;5;123m" + strings.Repeat("y", 70)
	screen := s.Ingest([]byte(chunk))

	// The cut must land after the escape sequence, never inside its body.
	if strings.ContainsAny(screen[:1], "[0123456789;m") {
		t.Errorf("screen starts mid-escape: %q", screen[:10])
	}
	if !strings.HasSuffix(screen, "y") {
		t.Errorf("trailing content lost: %q", screen)
	}
}

func TestTruncationDoesNotCutMidRune(t *testing.T) {
	// 102-byte cap places the raw cut point two bytes into a rune.
	s := NewScreenBuffer(102)

	screen := s.Ingest([]byte(strings.Repeat("╭", 60))) // 3 bytes each, 180 bytes total
	for _, r := range screen {
		if r == '�' {
			t.Fatalf("screen contains replacement rune after truncation: %q", screen)
		}
	}
}

func TestReset(t *testing.T) {
	s := NewScreenBuffer(0)
	s.Ingest([]byte("content"))
	s.Reset()

	if s.Current() != "" || s.Len() != 0 {
		t.Error("reset should empty the buffer")
	}
}

func TestClearSequenceSplitAcrossChunks(t *testing.T) {
	s := NewScreenBuffer(0)

	s.Ingest([]byte("stale output\x1b["))
	screen := s.Ingest([]byte("2Jnew"))

	if strings.Contains(screen, "stale output") {
		t.Errorf("split clear sequence not detected: %q", screen)
	}
	if !strings.Contains(screen, "new") {
		t.Errorf("content after split clear missing: %q", screen)
	}
}

func TestClearSequenceSplitAfterLargeBuffer(t *testing.T) {
	s := NewScreenBuffer(0)

	// The home+erase sequence split after its fourth byte, with a large
	// buffer in front of it.
	s.Ingest([]byte(strings.Repeat("x", 10000) + "\x1b[H\x1b"))
	screen := s.Ingest([]byte("[J after"))

	if strings.Contains(screen, "x") {
		t.Errorf("split clear after a large buffer not detected: %q", screen[:20])
	}
	if !strings.Contains(screen, "after") {
		t.Errorf("content after split clear missing: %q", screen)
	}
}

func TestOldClearDeepInBufferIsNotRedetected(t *testing.T) {
	s := NewScreenBuffer(0)

	s.Ingest([]byte("gone\x1b[2Jkept screen"))
	screen := s.Ingest([]byte(" plus more"))

	if !strings.Contains(screen, "kept screen plus more") {
		t.Errorf("append after an old interior clear mangled the screen: %q", screen)
	}
}

func TestTruncationSkipsLongEscapeSequence(t *testing.T) {
	s := NewScreenBuffer(1000)

	// An OSC title sequence far longer than any short lookback; the raw
	// cut point lands deep inside its payload.
	osc := "\x1b]0;" + strings.Repeat("T", 295) + "\x07"
	content := strings.Repeat("a", 500) + osc + strings.Repeat("x", 700)

	screen := s.Ingest([]byte(content))
	if screen != strings.Repeat("x", 700) {
		t.Errorf("screen starts with %q, want only the content after the escape terminator", screen[:20])
	}
}

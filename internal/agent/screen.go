package agent

import (
	"strings"
	"unicode/utf8"

	cpsync "github.com/cpilot-dev/cpilot/internal/sync"
)

const (
	// DefaultScreenCap is the hard cap on the buffered screen size.
	DefaultScreenCap = 100 * 1024

	// truncateKeepRatio is the trailing fraction kept when the cap is hit.
	truncateKeepRatio = 0.75
)

// clearSequences are the control sequences that mark a full terminal repaint.
// Everything before the last occurrence of any of them is stale screen
// content, not incremental output.
var clearSequences = []string{
	"\x1b[2J", // erase display
	"\x1b[3J", // erase display + scrollback
	"\x1bc",   // full reset (RIS)
	"\x1b[H\x1b[J", // home + erase below
}

// ScreenBuffer reconstructs the child's "current screen" from the raw PTY
// byte stream. It has no lifecycle of its own; the session manager resets it
// on every spawn.
type ScreenBuffer struct {
	mu  cpsync.RWMutex
	buf strings.Builder
	cap int
}

// NewScreenBuffer creates a screen buffer with the given size cap.
// A non-positive cap falls back to DefaultScreenCap.
func NewScreenBuffer(capBytes int) *ScreenBuffer {
	if capBytes <= 0 {
		capBytes = DefaultScreenCap
	}
	return &ScreenBuffer{cap: capBytes}
}

// Ingest appends raw PTY output and returns the reconstructed current screen.
// A clear-screen sequence inside the chunk discards everything before it.
func (s *ScreenBuffer) Ingest(data []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunk := string(data)

	if idx := lastClearIndex(chunk); idx >= 0 {
		// The terminal repainted: start the screen at the clear marker.
		s.buf.Reset()
		s.buf.WriteString(chunk[idx:])
	} else if rest, ok := s.clearAcrossSeam(chunk); ok {
		// Clear sequence split across the chunk boundary.
		s.buf.Reset()
		s.buf.WriteString(rest)
	} else {
		s.buf.WriteString(chunk)
	}

	if s.buf.Len() > s.cap {
		s.truncateLocked()
	}

	return s.buf.String()
}

// Current returns the reconstructed screen.
func (s *ScreenBuffer) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buf.String()
}

// Len returns the buffered size in bytes.
func (s *ScreenBuffer) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buf.Len()
}

// Reset discards all buffered content.
func (s *ScreenBuffer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Reset()
}

// maxClearSeqLen is the longest clear sequence we look for, used to bound the
// split-across-chunks check.
var maxClearSeqLen = func() int {
	max := 0
	for _, seq := range clearSequences {
		if len(seq) > max {
			max = len(seq)
		}
	}
	return max
}()

// clearAcrossSeam detects a clear sequence that starts in the buffered tail
// and completes in the incoming chunk. Only the trailing maxClearSeqLen-1
// bytes of the buffer can start one, so the joined seam stays small no
// matter how large the buffer is. The caller has already ruled out a
// sequence wholly inside the chunk.
func (s *ScreenBuffer) clearAcrossSeam(chunk string) (string, bool) {
	if s.buf.Len() == 0 {
		return "", false
	}
	tail := maxClearSeqLen - 1
	if tail > s.buf.Len() {
		tail = s.buf.Len()
	}
	full := s.buf.String()
	seam := full[len(full)-tail:] + chunk
	idx := lastClearIndex(seam)
	if idx < 0 || idx >= tail {
		return "", false
	}
	return seam[idx:], true
}

// lastClearIndex returns the index of the last clear-screen sequence in s,
// or -1 when none is present.
func lastClearIndex(s string) int {
	last := -1
	for _, seq := range clearSequences {
		if idx := strings.LastIndex(s, seq); idx > last {
			last = idx
		}
	}
	return last
}

// truncateLocked keeps the trailing fraction of the buffer. The cut point is
// advanced past any partial escape sequence or partial UTF-8 rune so the
// remaining content never starts mid-escape.
func (s *ScreenBuffer) truncateLocked() {
	content := s.buf.String()
	cut := len(content) - int(float64(s.cap)*truncateKeepRatio)
	if cut <= 0 {
		return
	}

	cut = safeCutPoint(content, cut)

	s.buf.Reset()
	s.buf.WriteString(content[cut:])
}

// safeCutPoint adjusts the cut index so content[cut:] starts on a content
// boundary: not inside a UTF-8 rune and not inside an escape sequence that
// began before the cut.
func safeCutPoint(content string, cut int) int {
	// Step forward off a partial rune.
	for cut < len(content) && !utf8.RuneStart(content[cut]) {
		cut++
	}

	// Find the last ESC before the cut; if its sequence has not terminated
	// by the cut, skip forward past the terminator. OSC payloads can run
	// long, so the lookback is unbounded (truncation is rare).
	escIdx := strings.LastIndexByte(content[:cut], 0x1b)
	if escIdx < 0 {
		return cut
	}

	end := escapeEnd(content, escIdx)
	if end > cut {
		return end
	}
	return cut
}

// escapeEnd returns the index just past the escape sequence starting at idx.
// If the sequence is still open at end-of-string, len(content) is returned.
func escapeEnd(content string, idx int) int {
	i := idx + 1
	if i >= len(content) {
		return len(content)
	}

	switch content[i] {
	case '[': // CSI: parameters then a final byte in 0x40..0x7e
		for i++; i < len(content); i++ {
			if c := content[i]; c >= 0x40 && c <= 0x7e {
				return i + 1
			}
		}
		return len(content)
	case ']': // OSC: terminated by BEL or ST
		for i++; i < len(content); i++ {
			if content[i] == 0x07 {
				return i + 1
			}
			if content[i] == 0x1b && i+1 < len(content) && content[i+1] == '\\' {
				return i + 2
			}
		}
		return len(content)
	default: // two-byte escape
		return i + 1
	}
}

// Package agent supervises the AI CLI child process behind a pseudo-terminal
// and derives its state from raw terminal output.
package agent

import (
	"regexp"
	"strconv"
	"strings"
)

// ANSIStripper removes terminal escape codes so detector signatures match
// against clean text.
type ANSIStripper struct {
	// Matches CSI, OSC, DCS/PM/APC and charset escape sequences
	ansiPattern *regexp.Regexp
	// Control characters to drop (newline, carriage return, tab survive)
	controlPattern *regexp.Regexp
	// Cursor forward (CSI n C), replaced with spaces to preserve layout
	cursorForwardPattern *regexp.Regexp
}

// NewANSIStripper creates a new ANSI stripper.
func NewANSIStripper() *ANSIStripper {
	return &ANSIStripper{
		ansiPattern:          regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]|\x1b\][^\x07\x1b]*(?:\x07|\x1b\\)|\x1b[PX^_][^\x1b]*\x1b\\|\x1b[\(\)][AB012]|\x1b[>=]`),
		controlPattern:       regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1a\x1c-\x1f\x7f]`),
		cursorForwardPattern: regexp.MustCompile(`\x1b\[(\d*)C`),
	}
}

// Strip removes all ANSI escape codes and control characters from text.
func (p *ANSIStripper) Strip(text string) string {
	text = p.cursorForwardPattern.ReplaceAllStringFunc(text, func(match string) string {
		sub := p.cursorForwardPattern.FindStringSubmatch(match)
		count := 1
		if len(sub) > 1 && sub[1] != "" {
			if n, err := strconv.Atoi(sub[1]); err == nil && n > 0 {
				// Clamp to avoid pathological allocations
				if n > 200 {
					n = 200
				}
				count = n
			}
		}
		return strings.Repeat(" ", count)
	})

	result := p.ansiPattern.ReplaceAllString(text, "")
	return p.controlPattern.ReplaceAllString(result, "")
}

// IsBlank returns true if the text contains only whitespace or control codes.
func (p *ANSIStripper) IsBlank(text string) bool {
	return strings.TrimSpace(p.Strip(text)) == ""
}

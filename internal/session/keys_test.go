package session

import (
	"errors"
	"testing"

	"github.com/cpilot-dev/cpilot/internal/domain"
)

func TestKeySequence(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"up", "\x1b[A"},
		{"down", "\x1b[B"},
		{"right", "\x1b[C"},
		{"left", "\x1b[D"},
		{"escape", "\x1b"},
		{"enter", "\r"},
		{"space", " "},
		{"tab", "\t"},
		{"ENTER", "\r"},
		{" up ", "\x1b[A"},
	}
	for _, tt := range tests {
		seq, err := KeySequence(tt.name)
		if err != nil {
			t.Errorf("KeySequence(%q) failed: %v", tt.name, err)
			continue
		}
		if string(seq) != tt.want {
			t.Errorf("KeySequence(%q) = %q, want %q", tt.name, seq, tt.want)
		}
	}
}

func TestKeySequenceUnknown(t *testing.T) {
	if _, err := KeySequence("pageup"); !errors.Is(err, domain.ErrUnknownKey) {
		t.Errorf("unknown key: got %v, want ErrUnknownKey", err)
	}
}

func TestKeyNames(t *testing.T) {
	names := KeyNames()
	if len(names) != len(keySequences) {
		t.Errorf("KeyNames returned %d names, want %d", len(names), len(keySequences))
	}
}

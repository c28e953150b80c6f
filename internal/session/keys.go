package session

import (
	"strings"

	"github.com/cpilot-dev/cpilot/internal/domain"
)

// keySequences maps key names accepted over the API to the raw bytes the
// terminal expects for them.
var keySequences = map[string][]byte{
	"up":     []byte("\x1b[A"),
	"down":   []byte("\x1b[B"),
	"right":  []byte("\x1b[C"),
	"left":   []byte("\x1b[D"),
	"escape": []byte("\x1b"),
	"enter":  []byte("\r"),
	"space":  []byte(" "),
	"tab":    []byte("\t"),
}

// KeySequence resolves a key name to its terminal byte sequence.
func KeySequence(name string) ([]byte, error) {
	seq, ok := keySequences[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, domain.ErrUnknownKey
	}
	return seq, nil
}

// KeyNames lists the supported key names.
func KeyNames() []string {
	names := make([]string, 0, len(keySequences))
	for name := range keySequences {
		names = append(names, name)
	}
	return names
}

package agent

import (
	"regexp"
	"strings"
	"time"
)

// State is the detector's verdict about the child CLI.
type State string

const (
	// StateBusy means the CLI is still producing or working.
	StateBusy State = "busy"
	// StateReady means the CLI is idle and awaiting input.
	StateReady State = "ready"
	// StatePermission means the CLI is showing an interactive confirmation
	// prompt. Auto-advance must be suspended until it clears.
	StatePermission State = "permission"
)

// SignatureSet holds the injectable pattern lists the detector matches
// against the stripped current screen. The defaults track the Claude CLI's
// prompt text; deployments can override them from configuration when the
// CLI banner changes.
type SignatureSet struct {
	Ready      []*regexp.Regexp
	Busy       []*regexp.Regexp
	Permission []*regexp.Regexp
}

// CompileSignatures builds a SignatureSet from raw pattern strings.
// Invalid patterns are reported rather than skipped so configuration
// mistakes surface at startup, not at detection time.
func CompileSignatures(ready, busy, permission []string) (*SignatureSet, error) {
	compile := func(patterns []string) ([]*regexp.Regexp, error) {
		out := make([]*regexp.Regexp, 0, len(patterns))
		for _, p := range patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, err
			}
			out = append(out, re)
		}
		return out, nil
	}

	r, err := compile(ready)
	if err != nil {
		return nil, err
	}
	b, err := compile(busy)
	if err != nil {
		return nil, err
	}
	p, err := compile(permission)
	if err != nil {
		return nil, err
	}
	return &SignatureSet{Ready: r, Busy: b, Permission: p}, nil
}

// DefaultReadyPatterns match the Claude CLI's idle prompt.
var DefaultReadyPatterns = []string{
	`\? for shortcuts`,
	`Bypassing Permissions`,
	`\d+% context left`,
	`(?m)^\s*╭─`,
	`(?m)^\s*> $`,
}

// DefaultBusyPatterns match active work indicators. Busy wins over ready:
// a spinner below the prompt frame means the CLI is still going.
var DefaultBusyPatterns = []string{
	`esc to interrupt`,
	`ctrl\+c to interrupt`,
	`[✢✽✻✶✳·]\s*(?:Thinking|Scheming|Cooking|Analyzing|Processing|Considering|Baking)`,
	`(?:Thinking|Scheming|Cooking|Analyzing|Processing|Considering|Baking)…`,
}

// DefaultPermissionPatterns match interactive confirmation prompts.
var DefaultPermissionPatterns = []string{
	`Do you want to`,
	`Allow\?`,
	`(?m)^\s*❯\s*1\. Yes`,
	`trust the files in this folder`,
	`Esc to cancel`,
}

// DetectorPolicy holds the timing constants for readiness detection.
type DetectorPolicy struct {
	// Debounce is how long the output must stay silent after a ready
	// signature matches before Ready is reported.
	Debounce time.Duration

	// IdleFallback is the longer silence threshold after which a
	// non-trivial screen is treated as ready even without a signature.
	IdleFallback time.Duration

	// MinScreenBytes is the minimum stripped screen size for the idle
	// fallback to apply; tiny screens are banners, not finished output.
	MinScreenBytes int
}

// DefaultPolicy is the canonical detection policy: 2s debounce, 4s idle
// fallback, 64-byte minimum screen.
func DefaultPolicy() DetectorPolicy {
	return DetectorPolicy{
		Debounce:       2 * time.Second,
		IdleFallback:   4 * time.Second,
		MinScreenBytes: 64,
	}
}

// Detector decides whether the child CLI is awaiting input by inspecting
// the current screen and the time since the last output.
type Detector struct {
	signatures *SignatureSet
	policy     DetectorPolicy
	stripper   *ANSIStripper
}

// NewDetector creates a detector. A nil signature set selects the built-in
// Claude CLI defaults.
func NewDetector(signatures *SignatureSet, policy DetectorPolicy) *Detector {
	if signatures == nil {
		signatures, _ = CompileSignatures(DefaultReadyPatterns, DefaultBusyPatterns, DefaultPermissionPatterns)
	}
	if policy.Debounce == 0 {
		policy = DefaultPolicy()
	}
	return &Detector{
		signatures: signatures,
		policy:     policy,
		stripper:   NewANSIStripper(),
	}
}

// Policy returns the detector's timing constants.
func (d *Detector) Policy() DetectorPolicy {
	return d.policy
}

// Evaluate inspects the screen and output-idle time. sinceLastOutput is the
// elapsed time since the last byte arrived from the PTY.
func (d *Detector) Evaluate(screen string, sinceLastOutput time.Duration) State {
	clean := d.stripper.Strip(screen)

	// Permission prompts take precedence: the prompt box sits on an
	// otherwise idle-looking screen.
	if matchAny(d.signatures.Permission, clean) && !d.permissionCleared(clean) {
		return StatePermission
	}

	if matchAny(d.signatures.Busy, clean) {
		return StateBusy
	}

	if matchAny(d.signatures.Ready, clean) {
		if sinceLastOutput >= d.policy.Debounce {
			return StateReady
		}
		return StateBusy
	}

	// Fallback: a non-trivial screen that has been silent past the idle
	// threshold is treated as ready. This covers banner changes at the cost
	// of possible false completion.
	if sinceLastOutput >= d.policy.IdleFallback && len(strings.TrimSpace(clean)) >= d.policy.MinScreenBytes {
		return StateReady
	}

	return StateBusy
}

// permissionCleared reports whether the screen has returned to the normal
// ready prompt, i.e. the permission box was answered and repainted away.
// Matching a ready signature on the final line is the signal; the permission
// phrases may still be present in scrollback above it.
func (d *Detector) permissionCleared(clean string) bool {
	lines := strings.Split(strings.TrimRight(clean, "\n"), "\n")
	tail := lines
	if len(lines) > 5 {
		tail = lines[len(lines)-5:]
	}
	return matchAny(d.signatures.Ready, strings.Join(tail, "\n"))
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

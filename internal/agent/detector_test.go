package agent

import (
	"testing"
	"time"
)

const readyScreen = `╭──────────────────────────────────────────────╮
│ > │
╰──────────────────────────────────────────────╯
  ? for shortcuts`

const busyScreen = `✻ Thinking…

  esc to interrupt`

const permissionScreen = `Do you want to create hello.txt?

 ❯ 1. Yes
   2. Yes, allow all edits during this session
   3. No

 Esc to cancel`

func TestEvaluateReadyRequiresDebounce(t *testing.T) {
	d := NewDetector(nil, DefaultPolicy())

	if got := d.Evaluate(readyScreen, 500*time.Millisecond); got != StateBusy {
		t.Errorf("ready signature within debounce window should report busy, got %s", got)
	}
	if got := d.Evaluate(readyScreen, 3*time.Second); got != StateReady {
		t.Errorf("ready signature past debounce should report ready, got %s", got)
	}
}

func TestEvaluateBusySignatureWins(t *testing.T) {
	d := NewDetector(nil, DefaultPolicy())

	// Busy indicator below the prompt frame: still working.
	if got := d.Evaluate(readyScreen+"\n"+busyScreen, 10*time.Second); got != StateBusy {
		t.Errorf("busy signature should win over idle time, got %s", got)
	}
}

func TestEvaluatePermissionPrompt(t *testing.T) {
	d := NewDetector(nil, DefaultPolicy())

	if got := d.Evaluate(permissionScreen, 10*time.Second); got != StatePermission {
		t.Errorf("permission prompt not detected, got %s", got)
	}
}

func TestEvaluatePermissionClearsOnReadyPrompt(t *testing.T) {
	d := NewDetector(nil, DefaultPolicy())

	// Permission text remains in scrollback but the ready prompt is back
	// at the bottom of the screen.
	screen := permissionScreen + "\n\n" + readyScreen
	if got := d.Evaluate(screen, 3*time.Second); got != StateReady {
		t.Errorf("answered permission prompt should report ready, got %s", got)
	}
}

func TestEvaluateIdleFallback(t *testing.T) {
	d := NewDetector(nil, DefaultPolicy())

	unknownBanner := "some CLI output with no known signature, but plenty of text on screen to exceed the minimum size threshold"

	if got := d.Evaluate(unknownBanner, 2*time.Second); got != StateBusy {
		t.Errorf("fallback should not apply before idle threshold, got %s", got)
	}
	if got := d.Evaluate(unknownBanner, 5*time.Second); got != StateReady {
		t.Errorf("non-trivial silent screen should report ready, got %s", got)
	}
}

func TestEvaluateIdleFallbackIgnoresTinyScreens(t *testing.T) {
	d := NewDetector(nil, DefaultPolicy())

	if got := d.Evaluate("hi", 10*time.Second); got != StateBusy {
		t.Errorf("tiny screen should not trigger the idle fallback, got %s", got)
	}
}

func TestEvaluateStripsANSIBeforeMatching(t *testing.T) {
	d := NewDetector(nil, DefaultPolicy())

	colored := "\x1b[2m? for shortcuts\x1b[0m"
	if got := d.Evaluate(colored, 3*time.Second); got != StateReady {
		t.Errorf("signatures should match after ANSI stripping, got %s", got)
	}
}

func TestCustomSignatures(t *testing.T) {
	sigs, err := CompileSignatures([]string{`READY>`}, []string{`WORKING`}, nil)
	if err != nil {
		t.Fatalf("CompileSignatures: %v", err)
	}
	d := NewDetector(sigs, DetectorPolicy{
		Debounce:       time.Second,
		IdleFallback:   2 * time.Second,
		MinScreenBytes: 10,
	})

	if got := d.Evaluate("WORKING on it", time.Minute); got != StateBusy {
		t.Errorf("custom busy signature ignored, got %s", got)
	}
	if got := d.Evaluate("done READY>", 2*time.Second); got != StateReady {
		t.Errorf("custom ready signature ignored, got %s", got)
	}
}

func TestCompileSignaturesRejectsInvalidPattern(t *testing.T) {
	if _, err := CompileSignatures([]string{`[`}, nil, nil); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

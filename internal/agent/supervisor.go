package agent

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/creack/pty"
	"github.com/rs/zerolog/log"

	"github.com/cpilot-dev/cpilot/internal/domain"
	cpsync "github.com/cpilot-dev/cpilot/internal/sync"
)

const (
	// gracePeriod is how long Terminate waits after SIGTERM before SIGKILL.
	gracePeriod = 5 * time.Second

	// spawnCooldown is the minimum gap between a stop and the next spawn,
	// avoiding fd/resource races when the CLI restarts quickly.
	spawnCooldown = 1 * time.Second

	// healthInterval is the period of the liveness check.
	healthInterval = 30 * time.Second

	// defaultCols/defaultRows size the PTY; the CLI renders its prompt
	// frame against this width.
	defaultCols = 120
	defaultRows = 40
)

// ExitInfo describes how the child process ended.
type ExitInfo struct {
	Code   int
	Signal string
	Err    error
}

// Options configures a Supervisor.
type Options struct {
	Command         string
	Args            []string
	WorkDir         string
	SkipPermissions bool

	// OnOutput receives every chunk read from the PTY. Called from the
	// read goroutine; must not block.
	OnOutput func([]byte)

	// OnExit is called exactly once per spawn when the child ends,
	// after the PTY is closed.
	OnExit func(ExitInfo)

	// OnUnhealthy is called from the liveness ticker when the tracked
	// process no longer responds.
	OnUnhealthy func(reason string)
}

// Supervisor owns the child process: spawn, PTY I/O, termination,
// liveness. Exactly one child per supervisor; Spawn refuses to start a
// second process until Cleanup ran.
type Supervisor struct {
	opts Options

	mu        cpsync.Mutex
	cmd       *exec.Cmd
	ptmx      *os.File
	pid       int
	alive     bool
	lastStop  time.Time
	killTimer *time.Timer

	healthDone chan struct{}
}

// NewSupervisor creates a supervisor for the given command.
func NewSupervisor(opts Options) *Supervisor {
	return &Supervisor{opts: opts}
}

// Spawn starts the child process behind a PTY in the configured working
// directory. It fails if a process is already tracked or the post-stop
// cool-down has not elapsed.
func (s *Supervisor) Spawn() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.alive || s.cmd != nil {
		return domain.ErrSessionAlreadyRunning
	}
	if since := time.Since(s.lastStop); !s.lastStop.IsZero() && since < spawnCooldown {
		return domain.ErrSessionCoolingDown
	}

	args := make([]string, len(s.opts.Args))
	copy(args, s.opts.Args)
	if s.opts.SkipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}

	cmd := exec.Command(s.opts.Command, args...)
	cmd.Dir = s.opts.WorkDir
	cmd.Env = os.Environ()
	setupProcess(cmd)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: defaultRows, Cols: defaultCols})
	if err != nil {
		return domain.NewSessionError("spawn", err, 0)
	}

	s.cmd = cmd
	s.ptmx = ptmx
	s.pid = cmd.Process.Pid
	s.alive = true
	s.healthDone = make(chan struct{})

	log.Info().
		Str("command", s.opts.Command).
		Str("work_dir", s.opts.WorkDir).
		Int("pid", s.pid).
		Msg("agent process spawned")

	go s.readLoop(ptmx)
	go s.waitLoop(cmd, ptmx)
	go s.healthLoop(s.healthDone)

	return nil
}

// Write sends bytes to the child's input. It fails when no process is
// tracked or the PTY is closed.
func (s *Supervisor) Write(data []byte) error {
	s.mu.Lock()
	ptmx := s.ptmx
	alive := s.alive
	s.mu.Unlock()

	if !alive || ptmx == nil {
		return domain.ErrStdinUnavailable
	}
	if _, err := ptmx.Write(data); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStdinUnavailable, err)
	}
	return nil
}

// Terminate attempts graceful termination, escalating to a forced kill
// after the grace period. Returns true if a process was signalled.
func (s *Supervisor) Terminate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil || s.cmd.Process == nil || !s.alive {
		return false
	}

	pid := s.pid
	if err := terminateProcess(s.cmd); err != nil {
		log.Warn().Err(err).Int("pid", pid).Msg("graceful termination failed, killing now")
		_ = killProcess(s.cmd)
		return true
	}

	// Escalate if the child ignores the signal. The timer is cancelled by
	// the wait loop when the process exits in time.
	s.killTimer = time.AfterFunc(gracePeriod, func() {
		s.mu.Lock()
		cmd := s.cmd
		stillAlive := s.alive && cmd != nil && cmd.Process != nil && cmd.Process.Pid == pid
		s.mu.Unlock()
		if stillAlive {
			log.Warn().Int("pid", pid).Msg("grace period expired, force killing")
			_ = killProcess(cmd)
		}
	})

	return true
}

// IsAlive reports whether a child process is currently tracked and running.
func (s *Supervisor) IsAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

// PID returns the child's process ID, or 0.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pid
}

// Cleanup force-kills any stale handle, cancels pending kill timers and
// clears all tracking state. Callers must run it before re-spawning after
// an unclean stop.
func (s *Supervisor) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked()
}

func (s *Supervisor) cleanupLocked() {
	if s.killTimer != nil {
		s.killTimer.Stop()
		s.killTimer = nil
	}
	if s.healthDone != nil {
		close(s.healthDone)
		s.healthDone = nil
	}
	if s.cmd != nil && s.cmd.Process != nil && s.alive {
		_ = killProcess(s.cmd)
	}
	if s.ptmx != nil {
		_ = s.ptmx.Close()
		s.ptmx = nil
	}
	s.cmd = nil
	s.pid = 0
	s.alive = false
	s.lastStop = time.Now()
}

// Resize adjusts the PTY dimensions.
func (s *Supervisor) Resize(rows, cols uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ptmx == nil {
		return domain.ErrSessionNotRunning
	}
	return pty.Setsize(s.ptmx, &pty.Winsize{Rows: rows, Cols: cols})
}

// readLoop streams PTY output to the OnOutput callback until EOF.
func (s *Supervisor) readLoop(ptmx *os.File) {
	buf := make([]byte, 8192)
	for {
		n, err := ptmx.Read(buf)
		if n > 0 && s.opts.OnOutput != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.opts.OnOutput(chunk)
		}
		if err != nil {
			if err != io.EOF {
				// PTY read errors are expected on child exit (EIO on Linux).
				log.Debug().Err(err).Msg("pty read ended")
			}
			return
		}
	}
}

// waitLoop reaps the child and reports the exit upward.
func (s *Supervisor) waitLoop(cmd *exec.Cmd, ptmx *os.File) {
	err := cmd.Wait()

	info := ExitInfo{Err: err}
	if state := cmd.ProcessState; state != nil {
		info.Code = state.ExitCode()
		info.Signal = exitSignal(state)
	}

	s.mu.Lock()
	// Only clear state if this wait belongs to the tracked process; a
	// Cleanup+Spawn may already have replaced it.
	if s.cmd == cmd {
		if s.killTimer != nil {
			s.killTimer.Stop()
			s.killTimer = nil
		}
		if s.healthDone != nil {
			close(s.healthDone)
			s.healthDone = nil
		}
		_ = ptmx.Close()
		s.ptmx = nil
		s.cmd = nil
		s.pid = 0
		s.alive = false
		s.lastStop = time.Now()
	}
	s.mu.Unlock()

	log.Info().
		Int("exit_code", info.Code).
		Str("signal", info.Signal).
		Msg("agent process exited")

	if s.opts.OnExit != nil {
		s.opts.OnExit(info)
	}
}

// healthLoop periodically verifies the tracked process still responds.
func (s *Supervisor) healthLoop(done chan struct{}) {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.mu.Lock()
			cmd := s.cmd
			alive := s.alive
			pid := s.pid
			s.mu.Unlock()

			if !alive || cmd == nil {
				return
			}
			if !processResponds(pid) {
				log.Warn().Int("pid", pid).Msg("agent process unresponsive")
				if s.opts.OnUnhealthy != nil {
					s.opts.OnUnhealthy("process does not respond to signal 0")
				}
				return
			}
		}
	}
}

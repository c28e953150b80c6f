package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/cpilot-dev/cpilot/internal/config"
)

var (
	doctorJSON   bool
	doctorStrict bool
)

type doctorStatus string

const (
	doctorStatusOK   doctorStatus = "ok"
	doctorStatusWarn doctorStatus = "warn"
	doctorStatusFail doctorStatus = "fail"
)

type doctorCheck struct {
	ID          string       `json:"id"`
	Status      doctorStatus `json:"status"`
	Message     string       `json:"message"`
	Remediation string       `json:"remediation,omitempty"`
}

type doctorReport struct {
	Version     string        `json:"version"`
	GeneratedAt string        `json:"generated_at"`
	Overall     doctorStatus  `json:"overall_status"`
	Checks      []doctorCheck `json:"checks"`
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run local diagnostics with remediation hints",
	Long: `Run read-only diagnostics against the local cpilot setup and print
actionable hints.

By default the output is human-readable text.
Use --json for machine-readable output.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)

	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "output machine-readable JSON")
	doctorCmd.Flags().BoolVar(&doctorStrict, "strict", false, "return non-zero on warnings")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	report := collectDoctorReport()

	if doctorJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printDoctorText(report)
	}

	var fails, warns int
	for _, c := range report.Checks {
		switch c.Status {
		case doctorStatusFail:
			fails++
		case doctorStatusWarn:
			warns++
		}
	}
	if fails > 0 {
		return fmt.Errorf("doctor found %d failing check(s)", fails)
	}
	if doctorStrict && warns > 0 {
		return fmt.Errorf("doctor strict mode failed with %d warning(s)", warns)
	}
	return nil
}

func collectDoctorReport() doctorReport {
	checks := []doctorCheck{}

	cfg, cfgCheck := checkConfigLoad()
	checks = append(checks, cfgCheck)
	checks = append(checks, checkConfigDirectory())

	if cfg != nil {
		checks = append(checks,
			checkAgentCommand(cfg),
			checkDetectorPatterns(cfg),
			checkQueueDirectory(cfg),
			checkSettingsFile(cfg),
			checkPortAvailable(cfg),
		)
	}

	return doctorReport{
		Version:     version,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Overall:     overallDoctorStatus(checks),
		Checks:      checks,
	}
}

func overallDoctorStatus(checks []doctorCheck) doctorStatus {
	overall := doctorStatusOK
	for _, c := range checks {
		if c.Status == doctorStatusFail {
			return doctorStatusFail
		}
		if c.Status == doctorStatusWarn {
			overall = doctorStatusWarn
		}
	}
	return overall
}

// printDoctorText renders the report with a tinted slog logger, one line
// per check, colored by severity.
func printDoctorText(report doctorReport) {
	logger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.Kitchen,
	}))

	logger.Info("cpilot doctor", "version", report.Version, "overall", string(report.Overall))

	for _, c := range report.Checks {
		attrs := []any{"check", c.ID}
		if c.Remediation != "" {
			attrs = append(attrs, "hint", c.Remediation)
		}
		switch c.Status {
		case doctorStatusOK:
			logger.Info(c.Message, attrs...)
		case doctorStatusWarn:
			logger.Warn(c.Message, attrs...)
		case doctorStatusFail:
			logger.Error(c.Message, attrs...)
		}
	}
}

func checkConfigLoad() (*config.Config, doctorCheck) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, doctorCheck{
			ID:          "config.load",
			Status:      doctorStatusFail,
			Message:     fmt.Sprintf("configuration failed to load: %v", err),
			Remediation: "Run `cpilot config init` to create a valid config file.",
		}
	}
	return cfg, doctorCheck{
		ID:      "config.load",
		Status:  doctorStatusOK,
		Message: "configuration loads and validates",
	}
}

func checkConfigDirectory() doctorCheck {
	dir, err := config.GetConfigDir()
	if err != nil {
		return doctorCheck{
			ID:      "config.dir",
			Status:  doctorStatusFail,
			Message: fmt.Sprintf("cannot resolve config directory: %v", err),
		}
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return doctorCheck{
			ID:          "config.dir",
			Status:      doctorStatusWarn,
			Message:     fmt.Sprintf("config directory %s does not exist yet", dir),
			Remediation: "It is created on first `cpilot start`; nothing to do unless that fails.",
		}
	}
	return doctorCheck{
		ID:      "config.dir",
		Status:  doctorStatusOK,
		Message: fmt.Sprintf("config directory %s exists", dir),
	}
}

func checkAgentCommand(cfg *config.Config) doctorCheck {
	path, err := exec.LookPath(cfg.Agent.Command)
	if err != nil {
		return doctorCheck{
			ID:          "agent.command",
			Status:      doctorStatusFail,
			Message:     fmt.Sprintf("agent command %q not found in PATH", cfg.Agent.Command),
			Remediation: "Install the CLI or set agent.command to its full path.",
		}
	}
	return doctorCheck{
		ID:      "agent.command",
		Status:  doctorStatusOK,
		Message: fmt.Sprintf("agent command resolves to %s", path),
	}
}

func checkDetectorPatterns(cfg *config.Config) doctorCheck {
	if _, err := cfg.Detector.Signatures(); err != nil {
		return doctorCheck{
			ID:          "detector.patterns",
			Status:      doctorStatusFail,
			Message:     fmt.Sprintf("detector patterns do not compile: %v", err),
			Remediation: "Fix the regular expressions under detector.* in the config file.",
		}
	}
	return doctorCheck{
		ID:      "detector.patterns",
		Status:  doctorStatusOK,
		Message: "detector patterns compile",
	}
}

func checkQueueDirectory(cfg *config.Config) doctorCheck {
	dir := cfg.Queue.Dir
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return doctorCheck{
			ID:          "queue.dir",
			Status:      doctorStatusWarn,
			Message:     fmt.Sprintf("queue directory %s does not exist yet", dir),
			Remediation: "It is created on first use; nothing to do unless that fails.",
		}
	}

	// Verify it is writable; queue persistence depends on it.
	probe := filepath.Join(dir, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return doctorCheck{
			ID:          "queue.dir",
			Status:      doctorStatusFail,
			Message:     fmt.Sprintf("queue directory %s is not writable: %v", dir, err),
			Remediation: "Fix the directory permissions or point queue.dir elsewhere.",
		}
	}
	_ = os.Remove(probe)

	return doctorCheck{
		ID:      "queue.dir",
		Status:  doctorStatusOK,
		Message: fmt.Sprintf("queue directory %s is writable", dir),
	}
}

func checkSettingsFile(cfg *config.Config) doctorCheck {
	path := cfg.Workspace.SettingsPath
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return doctorCheck{
			ID:      "workspace.settings",
			Status:  doctorStatusOK,
			Message: "settings file not created yet (created on first start)",
		}
	}
	if err != nil {
		return doctorCheck{
			ID:      "workspace.settings",
			Status:  doctorStatusFail,
			Message: fmt.Sprintf("settings file %s is unreadable: %v", path, err),
		}
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return doctorCheck{
			ID:          "workspace.settings",
			Status:      doctorStatusFail,
			Message:     fmt.Sprintf("settings file %s is not valid JSON: %v", path, err),
			Remediation: "Delete the file; it is recreated with defaults on next start.",
		}
	}
	return doctorCheck{
		ID:      "workspace.settings",
		Status:  doctorStatusOK,
		Message: fmt.Sprintf("settings file %s parses", path),
	}
}

func checkPortAvailable(cfg *config.Config) doctorCheck {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return doctorCheck{
			ID:          "server.port",
			Status:      doctorStatusWarn,
			Message:     fmt.Sprintf("cannot bind %s: %v (a cpilot server may already be running)", addr, err),
			Remediation: "Stop the other process or choose a different server.port.",
		}
	}
	_ = ln.Close()
	return doctorCheck{
		ID:      "server.port",
		Status:  doctorStatusOK,
		Message: fmt.Sprintf("%s is available", addr),
	}
}

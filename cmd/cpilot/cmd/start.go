package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cpilot-dev/cpilot/internal/app"
	"github.com/cpilot-dev/cpilot/internal/config"
)

var (
	workspacePath string
	port          int
	host          string
	externalURL   string
	noQR          bool
)

// startCmd represents the start command.
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the cpilot server",
	Long: `Start the cpilot server: it supervises the agent CLI for the active
workspace, processes the persisted message queue, and serves the HTTP API
and WebSocket event stream on one port.

Examples:
  cpilot start                             # serve on 127.0.0.1:8787
  cpilot start --workspace ~/code/project  # set the active workspace
  cpilot start --port 9000                 # custom port
  cpilot start --host 0.0.0.0              # allow LAN connections

Tunnels:
  When the server is reached through a tunnel or forwarded port, pass the
  public URL so the pairing QR code advertises it:

  cpilot start --external-url https://your-tunnel.devtunnels.ms`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&workspacePath, "workspace", "", "workspace directory (default: current directory)")
	startCmd.Flags().IntVar(&port, "port", 0, "server port for HTTP and WebSocket (default: 8787)")
	startCmd.Flags().StringVar(&host, "host", "", "bind address (default: 127.0.0.1)")
	startCmd.Flags().StringVar(&externalURL, "external-url", "", "public base URL for tunnels, used in the pairing QR code")
	startCmd.Flags().BoolVar(&noQR, "no-qr", false, "do not print the pairing QR code")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Flag overrides
	if workspacePath != "" {
		cfg.Workspace.Default = workspacePath
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if host != "" {
		cfg.Server.Host = host
	}
	if externalURL != "" {
		cfg.Server.ExternalHTTPURL = externalURL
	}
	if noQR {
		cfg.Pairing.ShowQRInTerminal = false
	}

	// Re-validate after overrides.
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogging(cfg)

	log.Info().
		Str("version", version).
		Str("workspace", cfg.Workspace.Default).
		Str("agent", cfg.Agent.Command).
		Int("port", cfg.Server.Port).
		Msg("starting cpilot")

	application, err := app.New(cfg, version)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("application error: %w", err)
	}

	log.Info().Msg("cpilot stopped")
	return nil
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Logging.Format == "console" || verbose {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

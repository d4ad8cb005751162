// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/beatdeck/internal/api/connect"
	"github.com/osa030/beatdeck/internal/app/session"
	"github.com/osa030/beatdeck/internal/infra/config"
	"github.com/osa030/beatdeck/internal/infra/logger"
	"github.com/osa030/beatdeck/internal/infra/speaker"
)

var (
	app        = kingpin.New("beatdeck-server", "beatdeck preview playback daemon")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
	logFormat  = app.Flag("log-format", "Log format").Default(logger.FormatAuto).Enum(logger.FormatAuto, logger.FormatConsole, logger.FormatJSON)

	// check-config command
	checkConfigCmd = app.Command("check-config", "Validate the config file and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Initialize logger
	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
		Format: *logFormat,
	}
	// Override with command-line flags if specified
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	logCloser, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logCloser.Close()

	// Load config
	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Error().Msgf("Failed to load config: %v", err)
		os.Exit(1)
	}

	if command == checkConfigCmd.FullCommand() {
		printConfig(cfg)
		return
	}

	// Run server (defer ensures shutdown hook is called)
	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		logCloser.Close()
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Create session manager
	sessionMgr, err := session.New(ctx, cfg, session.Deps{})
	if err != nil {
		return errors.Wrap(err, "failed to create session manager")
	}
	defer sessionMgr.Close()

	if err := sessionMgr.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start session")
	}

	// Create RPC services
	playerService := apiconnect.NewPlayerService(sessionMgr)
	playlistService := apiconnect.NewPlaylistService(sessionMgr)

	if cfg.API.Token == "" {
		zlog.Warn().Msg("api.token is empty, control API is unauthenticated")
	}
	interceptors := connect.WithInterceptors(apiconnect.NewTokenInterceptor(cfg.API.Token))

	// Create HTTP mux
	mux := http.NewServeMux()
	mux.Handle(apiconnect.NewPlayerServiceHandler(playerService, interceptors))
	mux.Handle(apiconnect.NewPlaylistServiceHandler(playlistService, interceptors))

	// Create server with h2c (HTTP/2 cleartext) support
	serverAddr := cfg.Server.Addr
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to capture server startup errors
	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	// Start server
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", serverAddr)
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for server to start listening
	<-serverStartedCh
	time.Sleep(100 * time.Millisecond)

	// Execute startup hook if configured (after server is running)
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	// Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case <-sessionMgr.Done():
		zlog.Info().Msg("Session closed, shutting down...")
	case err := <-serverErrCh:
		return errors.Wrap(err, "server error")
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close session manager first to terminate active watch streams
	sessionMgr.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	// Execute shutdown hook if configured
	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return nil
}

// printConfig prints the effective configuration summary.
func printConfig(cfg *config.Config) {
	fmt.Println("Config OK")
	fmt.Printf("  Server Address: %s\n", cfg.Server.Addr)
	fmt.Printf("  API Token: %v\n", cfg.API.Token != "")
	fmt.Printf("  Storefront: %s\n", cfg.Storefront.BaseURL)
	fmt.Printf("  Preview Source: %s (ttl %v)\n", cfg.Preview.Source, cfg.PreviewTTL())
	fmt.Printf("  Output: %s\n", cfg.Output.Type)
	if cfg.Output.Type == config.OutputSpeaker && !speaker.Available {
		fmt.Println("    warning: this build has no local audio support")
	}
	fmt.Printf("  Playlist: %s at %s (key %s)\n", cfg.Playlist.Driver, cfg.Playlist.Path, cfg.Playlist.Key)
	fmt.Printf("  Last.fm: %v\n", cfg.LastFm.Enabled())
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}

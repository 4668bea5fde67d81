// Package main provides the obsflow daemon entry point.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/obsflow/internal/api/httpapi"
	"github.com/osa030/obsflow/internal/app/session"
	"github.com/osa030/obsflow/internal/infra/beatsaver"
	"github.com/osa030/obsflow/internal/infra/config"
	"github.com/osa030/obsflow/internal/infra/filename"
	"github.com/osa030/obsflow/internal/infra/logger"
	"github.com/osa030/obsflow/internal/infra/obsws"
)

var (
	app        = kingpin.New("obsflowd", "OBS recording and scene automation daemon")
	configPath = app.Flag("config", "Path to config file").Default("config/obsflow.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: from config)").String()
	noConnect  = app.Flag("no-connect", "Do not connect to OBS on startup").Bool()

	// check-config command
	checkConfigCmd = app.Command("check-config", "Validate the config file and exit")
)

func init() {
	// start command (default)
	app.Command("start", "Start the daemon (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if command == checkConfigCmd.FullCommand() {
		fmt.Printf("Config OK: %s\n", *configPath)
		return
	}

	loggerConfig := logger.Config{
		Output: cfg.Log.Output,
		Level:  cfg.Log.Level,
		File:   cfg.Log.File,
	}
	// Override with command-line flags if specified
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	closer, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closer.Close()

	zlog.Info().Msgf("Loaded config from %s", *configPath)

	// Run server (defer ensures shutdown hooks run)
	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main daemon logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	settings := config.NewHolder(cfg, *configPath)
	settings.OnReload(func(c *config.Config) {
		if !*verbose {
			logger.SetLevel(c.Log.Level)
		}
	})
	if err := settings.Watch(ctx); err != nil {
		zlog.Warn().Err(err).Msg("config hot reload disabled")
	}

	beatSaverClient, err := beatsaver.New(beatsaver.Config{
		BaseURL: cfg.BeatSaver.BaseURL,
		Timeout: cfg.BeatSaver.Timeout(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create BeatSaver client")
	}
	namer := filename.NewRenderer(settings, beatSaverClient)

	sessionMgr := session.NewManager(settings, obsws.NewDialer(), namer)
	api := httpapi.NewServer(sessionMgr, settings)

	serverAddr := cfg.Server.Addr
	// HTTP/2 cleartext lets clients multiplex the event stream with control calls
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           h2c.NewHandler(api.Handler(), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	listener, err := net.Listen("tcp", serverAddr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", serverAddr)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", listener.Addr())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	if !*noConnect {
		go func() {
			if err := sessionMgr.Enable(ctx); err != nil {
				zlog.Warn().Err(err).Msg("Not connected to OBS, use the connect API to retry")
			}
		}()
	}

	// Execute startup hooks (after the listener is ready)
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		runErr = errors.Wrap(err, "server error")
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Cancel long-lived requests (event streams) before shutdown waits on them
	cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}
	api.Wait()
	sessionMgr.Close()

	zlog.Info().Msg("Server stopped")

	executeHooks(settings.Get().Server.Hooks.OnStopped, "on_stopped")
	return runErr
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// sh -c allows redirection and pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}

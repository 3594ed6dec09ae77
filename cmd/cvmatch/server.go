package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/cvmatch/internal/api"
	"github.com/kalambet/cvmatch/internal/config"
	"github.com/kalambet/cvmatch/internal/cv"
	"github.com/kalambet/cvmatch/internal/extract"
	"github.com/kalambet/cvmatch/internal/gemini"
	"github.com/kalambet/cvmatch/internal/logger"
	"github.com/kalambet/cvmatch/internal/matcher"
	"github.com/kalambet/cvmatch/internal/proxy"
	"github.com/kalambet/cvmatch/internal/retention"
	"github.com/kalambet/cvmatch/internal/storage"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"start"},
	Short:   "Start the cvmatch server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running cvmatch server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cvmatch status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	Long: `Serve the MCP tools over stdio.

The MCP server keeps its own CV store; CVs stored through it are not
visible to a separately running 'cvmatch serve'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "cvmatch.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func healthURL(cfg config.Config) string {
	return cfg.Server.BaseURL() + cfg.Server.APIPrefix + "/health"
}

// newCompleter returns the configured completion backend, or nil when the
// selected provider has no API key.
func newCompleter(ctx context.Context, cfg config.Config) (matcher.Completer, error) {
	switch cfg.LLM.Provider {
	case config.ProviderGemini:
		if cfg.Gemini.APIKey == "" {
			return nil, nil
		}
		g, err := gemini.NewGenerator(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.LLM.Temperature)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		if cfg.LLM.APIKey == "" {
			return nil, nil
		}
		return proxy.NewClient(proxy.Options{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Timeout:     cfg.LLM.TimeoutDuration(),
			Temperature: cfg.LLM.Temperature,
		}), nil
	}
}

// buildDeps wires the CV store, the analyzer and, when enabled, the history
// database. The returned cleanup closes the database.
func buildDeps(ctx context.Context, cfg config.Config, log *zap.Logger) (api.Deps, *storage.Store, func(), error) {
	client, err := newCompleter(ctx, cfg)
	if err != nil {
		return api.Deps{}, nil, nil, fmt.Errorf("creating %s client: %w", cfg.LLM.Provider, err)
	}
	analyzer := matcher.NewAnalyzer(client, cfg.LLM.TimeoutDuration(), log.Named("matcher"))
	if analyzer.IsAvailable() {
		log.Info("match analyzer ready", zap.String("provider", cfg.LLM.Provider), zap.String("model", analyzer.Model()))
	} else {
		log.Warn("no API key configured; analysis endpoints will return 503", zap.String("provider", cfg.LLM.Provider))
	}

	deps := api.Deps{
		CVs:      cv.NewStore(),
		Analyzer: analyzer,
		Limits: extract.Limits{
			MaxBytes:          cfg.Upload.MaxBytes(),
			AllowedExtensions: cfg.Upload.Extensions(),
		},
		Prefix:  cfg.Server.APIPrefix,
		Origins: cfg.Server.Origins(),
		Version: version,
		Logger:  log.Named("api"),
	}

	loadDefaultCV(cfg.CV.DefaultPath, deps.CVs, log)

	cleanup := func() {}
	var store *storage.Store
	if cfg.History.Enabled {
		store, err = storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return api.Deps{}, nil, nil, fmt.Errorf("opening storage: %w", err)
		}
		deps.History = store
		cleanup = func() {
			if err := store.Close(); err != nil {
				log.Warn("closing storage", zap.Error(err))
			}
		}
	}
	return deps, store, cleanup, nil
}

// loadDefaultCV stores the CV at path, if any, as the current CV.
func loadDefaultCV(path string, store *cv.Store, log *zap.Logger) {
	if path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn("default CV not loaded", zap.String("path", path), zap.Error(err))
		return
	}
	text, err := extract.Text(path, data)
	if err != nil {
		log.Warn("default CV not loaded", zap.String("path", path), zap.Error(err))
		return
	}
	if strings.TrimSpace(text) == "" {
		log.Warn("default CV has no extractable text", zap.String("path", path))
		return
	}
	rc := store.Save(cv.Input{RawText: text})
	log.Info("default CV loaded", zap.String("path", path), zap.String("cv_id", rc.ID), zap.Int("text_length", rc.Summary.TextLength))
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "cvmatch version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer log.Sync()

	// Refuse to start twice: check the health endpoint, then the PID file.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL(cfg)); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("cvmatch is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("cvmatch is already running on %s", cfg.Server.Addr())
		return fmt.Errorf("server already running on %s", cfg.Server.Addr())
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, store, cleanup, err := buildDeps(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	if store != nil && cfg.History.RetentionDays > 0 {
		maxAge := time.Duration(cfg.History.RetentionDays) * 24 * time.Hour
		sched := retention.New(store, maxAge, retention.DefaultSpec, log.Named("retention"))
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("starting retention: %w", err)
		}
		defer sched.Stop()
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.NewHandler(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("cvmatch listening", zap.String("addr", srv.Addr), zap.String("prefix", cfg.Server.APIPrefix))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// stdout carries the MCP protocol, so logs stay on stderr.
	log, err := logger.New(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, _, cleanup, err := buildDeps(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	mcpSrv := api.NewMCPServer(deps)
	log.Info("MCP server started (stdio transport)")
	if err := server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("cvmatch is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop cvmatch (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to cvmatch (PID %d)", pid)
	return nil
}

type healthReport struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Analyzer string `json:"analyzer"`
	Database string `json:"database"`
	CVStore  struct {
		HasCV bool `json:"has_cv"`
		Count int  `json:"count"`
	} `json:"cv_store"`
}

func showStatus(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL(cfg), nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	switch {
	case err != nil:
		printStatus("Server", "stopped")
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
	default:
		var h healthReport
		decodeErr := json.NewDecoder(resp.Body).Decode(&h)
		resp.Body.Close()
		printStatus("Server", "running on %s (version %s)", cfg.Server.Addr(), h.Version)
		if decodeErr == nil {
			printStatus("Analyzer", "%s", h.Analyzer)
			printStatus("History", "%s", h.Database)
			printStatus("Stored CVs", "%d (current: %v)", h.CVStore.Count, h.CVStore.HasCV)
		}
	}

	model := cfg.LLM.Model
	if cfg.LLM.Provider == config.ProviderGemini {
		model = cfg.Gemini.Model
	}
	printStatus("Provider", "%s (%s)", cfg.LLM.Provider, model)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

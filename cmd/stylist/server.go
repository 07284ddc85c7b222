package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
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
	"golang.org/x/sync/errgroup"

	"github.com/stylist-dev/stylist/internal/api"
	"github.com/stylist-dev/stylist/internal/config"
	"github.com/stylist-dev/stylist/internal/filesync"
	"github.com/stylist-dev/stylist/internal/profile"
	"github.com/stylist-dev/stylist/internal/pushsync"
	"github.com/stylist-dev/stylist/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the stylist daemon (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		mcpStdio, _ := cmd.Flags().GetBool("mcp")
		return runServer(mcpStdio)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running stylist daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stylist daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools on stdio for a hosting editor")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "stylist.pid")
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

func runServer(mcpStdio bool) error {
	fmt.Fprintf(os.Stderr, "stylist version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Refuse to start twice. The health endpoint is the source of truth; the
	// PID file just improves the error message.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("stylist is already running (PID %d)", pid)
			return fmt.Errorf("daemon already running (PID %d)", pid)
		}
		printWarning("stylist is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("daemon already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	manager := profile.NewManager(store)

	g, gctx := errgroup.WithContext(ctx)

	// Push sync: a bind failure (port taken) disables the channel but never
	// kills the daemon.
	pushSrv := pushsync.NewServer(manager, cfg.Server.Port, version)
	pushRunning := false
	if cfg.Sync.PushEnabled {
		if err := pushSrv.Start(); err != nil {
			slog.Warn("push sync disabled", "error", err)
		} else {
			pushRunning = true
			g.Go(func() error {
				pushSrv.RunEvents(gctx)
				return nil
			})
		}
	}

	if cfg.Sync.FileEnabled {
		channel := filesync.New(manager, cfg.Sync.File,
			filesync.WithStorageLocation(cfg.Sync.StorageLocation),
		)
		g.Go(func() error {
			return channel.Run(gctx)
		})
	}

	if mcpStdio {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Store: manager, Version: version})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	slog.Info("stylist daemon started", "port", cfg.Server.Port, "push_sync", pushRunning, "file_sync", cfg.Sync.FileEnabled)

	<-ctx.Done()
	fmt.Fprintln(os.Stderr, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if pushRunning {
		if err := pushSrv.Stop(shutdownCtx); err != nil {
			slog.Warn("push sync shutdown", "error", err)
		}
	}
	return g.Wait()
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
		printError("stylist is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop stylist (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to stylist (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	running := false
	if err != nil {
		printStatus("Daemon", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Daemon", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Daemon", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if running {
		if cfgJSON, err := fetchProfiles(client, serverURL); err == nil {
			printStatus("Profiles", "%d", len(cfgJSON.List))
			if cfgJSON.ActiveProfileID != "" {
				if idx := cfgJSON.FindProfile(cfgJSON.ActiveProfileID); idx >= 0 {
					printStatus("Active", "%s", cfgJSON.List[idx].Name)
				}
			} else {
				printStatus("Active", "none")
			}
		}
	}

	printStatus("Sync file", "%s", cfg.Sync.File)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func fetchProfiles(client *http.Client, serverURL string) (profile.Config, error) {
	resp, err := client.Get(serverURL + "/profiles")
	if err != nil {
		return profile.Config{}, err
	}
	var cfg profile.Config
	if err := decodeJSON(resp, &cfg); err != nil {
		return profile.Config{}, err
	}
	return cfg, nil
}

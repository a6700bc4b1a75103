package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
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
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/purgekit/internal/api"
	"github.com/kalambet/purgekit/internal/config"
	"github.com/kalambet/purgekit/internal/locale"
	"github.com/kalambet/purgekit/internal/storage"
	"github.com/kalambet/purgekit/internal/task"
)

type serveOptions struct {
	addr     string
	maxConns int
	mcp      bool
	noAuth   bool
	rules    string
	scanBase string
}

var serveOpts serveOptions

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (and optionally the MCP server on stdio) in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(serveOpts)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and preferences status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveOpts.addr, "addr", defaultAddr, "listen address")
	serveCmd.Flags().IntVar(&serveOpts.maxConns, "max-conns", 32, "maximum concurrent HTTP connections")
	serveCmd.Flags().BoolVar(&serveOpts.mcp, "mcp", false, "also serve MCP on stdin/stdout")
	serveCmd.Flags().BoolVar(&serveOpts.noAuth, "no-auth", false, "do not require the bearer token")
	serveCmd.Flags().StringVar(&serveOpts.rules, "rules", "", "localization rules file (.xml or .yaml)")
	serveCmd.Flags().StringVar(&serveOpts.scanBase, "base", "/", "directory scans resolve rule locations against")
	statusCmd.Flags().StringVar(&serverAddr, "addr", defaultAddr, "server address")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "purgekit.pid")
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

func runServer(opts serveOptions) error {
	fmt.Fprintf(os.Stderr, "purgekit version %s\n", version)

	prefs, err := openStore()
	if err != nil {
		return err
	}
	if prefs.IsCorrupt() {
		printWarning("%s has unreadable values; run 'purgekit config reset'", prefs.Path())
	}

	// Debug logging follows the preference as well as the flag.
	logLevel := slog.LevelInfo
	if on, _ := prefs.Bool("debug"); on {
		logLevel = slog.LevelDebug
	}
	// With MCP on stdio, stdout belongs to the protocol.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	dir := resolvedDataDir()
	var token string
	if !opts.noAuth {
		if token, err = config.APIToken(dir); err != nil {
			return fmt.Errorf("initializing API token: %w", err)
		}
		slog.Info("API bearer token available", "file", filepath.Join(dir, "secrets.json"))
	}

	pidPath := pidFilePath(dir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get("http://" + opts.addr + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("purgekit is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		return fmt.Errorf("server already running on %s", opts.addr)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	var tree *locale.Tree
	if opts.rules != "" {
		tree, err = locale.LoadRules(opts.rules)
	} else {
		tree, err = locale.DefaultTree()
	}
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}

	store, err := storage.Open(dir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	runner := task.NewRunner(store, locale.NewResolver(tree, nil))
	defer runner.Wait()

	deps := api.Deps{
		Prefs:       api.NewPrefs(prefs),
		Tasks:       store,
		Runner:      runner,
		Token:       token,
		ScanBase:    opts.scanBase,
		BaseContext: gctx,
	}

	ln, err := net.Listen("tcp", opts.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", opts.addr, err)
	}
	if opts.maxConns > 0 {
		ln = netutil.LimitListener(ln, opts.maxConns)
	}
	srv := &http.Server{
		Handler:           api.NewHandler(deps),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return gctx
		},
	}

	g.Go(func() error {
		slog.Info("purgekit listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if opts.mcp {
		stdioSrv := server.NewStdioServer(api.NewMCPServer(deps, version))
		g.Go(func() error {
			err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout)
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)")
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func stopServer() error {
	pidPath := pidFilePath(resolvedDataDir())
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("purgekit is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop purgekit (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to purgekit (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	client, err := newAPIClient()
	if err != nil {
		printStatus("Server", "unknown (%v)", err)
	} else {
		resp, err := client.get(ctx, "/health")
		switch {
		case err != nil:
			printStatus("Server", "stopped")
		case resp.StatusCode == http.StatusOK:
			resp.Body.Close()
			printStatus("Server", "running on %s", serverAddr)
		default:
			resp.Body.Close()
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	err = withStore(func(s *config.Store) error {
		printStatus("Preferences", "%s", s.Path())
		if s.IsCorrupt() {
			printStatus("Integrity", "%s", colorize(colorRed, "corrupt"))
		} else {
			printStatus("Integrity", "ok")
		}
		printStatus("Kept languages", "%s", keptLabel(s.Languages()))
		return nil
	})
	if err != nil {
		printStatus("Preferences", "error: %v", err)
	}

	if store, err := openTasks(); err == nil {
		tasks, err := store.ListTasks(100)
		store.Close()
		if err == nil {
			printStatus("Tasks", "%s", countLabel(len(tasks), 100))
		}
	}

	printStatus("Data dir", "%s", resolvedDataDir())
	return nil
}

func keptLabel(langs []string) string {
	if len(langs) == 0 {
		return colorize(colorYellow, "none")
	}
	return strings.Join(langs, ", ")
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}

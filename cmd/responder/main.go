// Command responder runs the configured set of echo and web servers
// until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sirosfoundation/tcp-responder/internal/admin"
	"github.com/sirosfoundation/tcp-responder/internal/netinfo"
	"github.com/sirosfoundation/tcp-responder/internal/server"
	"github.com/sirosfoundation/tcp-responder/pkg/config"
	"github.com/sirosfoundation/tcp-responder/pkg/logging"
)

var (
	configFile = flag.String("config", config.DefaultConfigPath(), "Path to configuration file")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	version    = "dev"
	buildTime  = "unknown"
)

func init() {
	flag.StringVar(configFile, "c", config.DefaultConfigPath(), "Path to configuration file (shorthand)")
	flag.BoolVar(verbose, "v", false, "Enable verbose logging (shorthand)")
}

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Fatalf("Configuration file not found: %s\nRun 'responder-setup' to create one", *configFile)
		}
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *verbose {
		cfg.Logging.Level = "debug"
	}

	// Initialize logger
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting tcp-responder",
		zap.String("version", version),
		zap.String("build_time", buildTime),
		zap.Int("servers", len(cfg.Servers)),
	)

	// Start all configured servers. Startup is all-or-nothing: a
	// single failed bind leaves nothing running.
	mgr := server.NewManager(logger)
	if err := mgr.Start(cfg.Servers); err != nil {
		logger.Fatal("Failed to start servers", zap.Error(err))
	}

	printBanner(cfg.Servers)

	// Start admin server if configured
	var adminSrv *admin.Server
	if cfg.Admin.Port > 0 {
		adminSrv = admin.New(cfg.Admin, mgr, logger)
		if err := adminSrv.Start(); err != nil {
			_ = mgr.Stop(cfg.Shutdown.GracePeriod())
			logger.Fatal("Failed to start admin server", zap.Error(err))
		}
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("Shutting down", zap.String("signal", sig.String()))

	if err := mgr.Stop(cfg.Shutdown.GracePeriod()); err != nil {
		var shutdownErr *server.ShutdownError
		if errors.As(err, &shutdownErr) {
			// Forced closes are reported, not fatal.
			logger.Warn("Shutdown completed with forced closes", zap.Error(err))
		} else {
			logger.Error("Shutdown error", zap.Error(err))
		}
	}

	if adminSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := adminSrv.Shutdown(ctx); err != nil {
			logger.Error("Admin server forced to shutdown", zap.Error(err))
		}
	}

	logger.Info("All servers stopped")
}

// printBanner summarizes the active servers and, when any of them
// binds all interfaces, the host addresses they are reachable on.
func printBanner(specs []config.ServerSpec) {
	line := strings.Repeat("=", 60)

	fmt.Println("\n" + line)
	fmt.Println("tcp-responder - Active Servers")
	fmt.Println(line)

	hasWildcard := false
	for _, spec := range specs {
		fmt.Printf("  %s: %s:%d\n", strings.ToUpper(string(spec.Type)), spec.BindAddress, spec.Port)
		if spec.BindAddress == "0.0.0.0" {
			hasWildcard = true
		}
	}

	if hasWildcard {
		if ips := netinfo.ActiveIPs(); len(ips) > 0 {
			fmt.Println(line)
			fmt.Println("Active IP addresses on this system:")
			for _, ip := range ips {
				fmt.Printf("  %s\n", ip)
			}
			fmt.Println()
			fmt.Println("Servers bound to 0.0.0.0 are accessible via any of the")
			fmt.Println("above IP addresses.")
		}
	}

	fmt.Println(line)
	fmt.Println("Press Ctrl+C to stop all servers")
	fmt.Println(line + "\n")
}
